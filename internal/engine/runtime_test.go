package engine

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/devit-dispatch-prototype/internal/domain"
)

func newTestRuntime(maxConcurrent int) *agentRuntime {
	desc := domain.AgentDescriptor{
		Type:          "claude",
		Capabilities:  []string{"code.generate"},
		MaxConcurrent: maxConcurrent,
	}
	return newAgentRuntime(desc, NewAgentBreaker("claude", DefaultBreakerConfig(), nil), 0.1)
}

func TestRuntime_AcquireRespectsConcurrencyLimit(t *testing.T) {
	rt := newTestRuntime(2)

	assert.True(t, rt.tryAcquire())
	assert.True(t, rt.tryAcquire())
	assert.False(t, rt.tryAcquire())

	rt.release()
	assert.True(t, rt.tryAcquire())
	assert.Equal(t, 2, rt.currentLoad())
}

func TestRuntime_EMASmoothing(t *testing.T) {
	rt := newTestRuntime(1)

	// First sample seeds the average, then avg = 0.1*x + 0.9*avg.
	rt.recordOutcome(true, 100*time.Millisecond)
	assert.InDelta(t, 100, rt.avgLatencyMs(), 0.001)

	rt.recordOutcome(true, 200*time.Millisecond)
	assert.InDelta(t, 110, rt.avgLatencyMs(), 0.001)

	rt.recordOutcome(false, 300*time.Millisecond)
	assert.InDelta(t, 129, rt.avgLatencyMs(), 0.001)

	snap := rt.snapshot(false)
	assert.Equal(t, uint64(2), snap.Succeeded)
	assert.Equal(t, uint64(1), snap.Failed)
}

func TestRuntime_ErrorRingKeepsLastTen(t *testing.T) {
	rt := newTestRuntime(1)

	for i := 0; i < 15; i++ {
		rt.pushError(time.Now(), fmt.Sprintf("err-%d", i))
	}

	snap := rt.snapshot(false)
	require.Len(t, snap.RecentErrors, errorRingSize)
	assert.Equal(t, "err-5", snap.RecentErrors[0].Message)
	assert.Equal(t, "err-14", snap.RecentErrors[9].Message)
}

func TestRuntime_SnapshotReflectsHealthAndSuspension(t *testing.T) {
	rt := newTestRuntime(3)
	assert.True(t, rt.isHealthy())

	checkedAt := time.Now()
	rt.markHealth(false, checkedAt)

	snap := rt.snapshot(true)
	assert.False(t, snap.Healthy)
	assert.True(t, snap.Suspended)
	assert.Equal(t, checkedAt, snap.LastCheck)
	assert.Equal(t, "closed", snap.BreakerState)
	assert.Equal(t, 3, snap.MaxConcurrent)
}
