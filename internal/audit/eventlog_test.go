package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// captureSub records delivered batches; it can simulate a failing subscriber.
type captureSub struct {
	mu      sync.Mutex
	events  []DispatchEvent
	batches int
	fail    bool
}

func (s *captureSub) WriteBatch(_ context.Context, events []DispatchEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("sink unavailable")
	}
	s.events = append(s.events, events...)
	s.batches++
	return nil
}

func (s *captureSub) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestEventLog_DeliversOnFlushInterval(t *testing.T) {
	sub := &captureSub{}
	log := NewEventLog(EventLogConfig{}, zap.NewNop(), sub)
	log.Start()
	defer log.Stop()

	log.Log(DispatchEvent{ID: "e1", Type: EventTaskQueued, TaskID: "t1"})
	log.Log(DispatchEvent{ID: "e2", Type: EventTaskCompleted, TaskID: "t1"})

	require.Eventually(t, func() bool { return sub.count() == 2 }, 2*time.Second, 20*time.Millisecond)
	assert.Equal(t, "e1", sub.events[0].ID)
	assert.False(t, sub.events[0].Timestamp.IsZero())
}

func TestEventLog_FullBatchFlushesEarly(t *testing.T) {
	sub := &captureSub{}
	log := NewEventLog(EventLogConfig{}, zap.NewNop(), sub)
	log.Start()
	defer log.Stop()

	for i := 0; i < eventBatchSize; i++ {
		log.Log(DispatchEvent{ID: fmt.Sprintf("e%d", i), Type: EventTaskQueued})
	}

	// A full batch must not wait for the ticker.
	require.Eventually(t, func() bool { return sub.count() == eventBatchSize }, 200*time.Millisecond, 5*time.Millisecond)
}

func TestEventLog_StopDrainsRemainingEvents(t *testing.T) {
	sub := &captureSub{}
	log := NewEventLog(EventLogConfig{}, zap.NewNop(), sub)
	log.Start()

	for i := 0; i < 17; i++ {
		log.Log(DispatchEvent{ID: fmt.Sprintf("e%d", i), Type: EventTaskFailed})
	}
	log.Stop()

	assert.Equal(t, 17, sub.count())

	// After Stop the log silently drops instead of blocking or panicking.
	log.Log(DispatchEvent{ID: "late", Type: EventTaskQueued})
	assert.Equal(t, 17, sub.count())
}

func TestEventLog_ConfigControlsBufferAndFlush(t *testing.T) {
	sub := &captureSub{}
	log := NewEventLog(EventLogConfig{BufferSize: 1, FlushInterval: 20 * time.Millisecond}, zap.NewNop(), sub)

	// Worker not started yet: everything beyond the configured buffer is shed.
	log.Log(DispatchEvent{ID: "e1", Type: EventTaskQueued})
	log.Log(DispatchEvent{ID: "e2", Type: EventTaskQueued})
	assert.Equal(t, 1, log.Depth())

	log.Start()
	require.Eventually(t, func() bool { return sub.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "e1", sub.events[0].ID)
	log.Stop()
}

func TestEventLog_SubscriberFailureDoesNotStopOthers(t *testing.T) {
	broken := &captureSub{fail: true}
	healthy := &captureSub{}
	log := NewEventLog(EventLogConfig{}, zap.NewNop(), broken, healthy)
	log.Start()

	log.Log(DispatchEvent{ID: "e1", Type: EventBreakerOpened, AgentType: "claude"})
	log.Stop()

	assert.Equal(t, 0, broken.count())
	assert.Equal(t, 1, healthy.count())
}
