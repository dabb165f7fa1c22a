package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/devit-dispatch-prototype/internal/audit"
	"github.com/xela07ax/devit-dispatch-prototype/internal/domain"
	"go.uber.org/zap"
)

// fakeTransport routes outcomes per agent type.
type fakeTransport struct {
	mu    sync.Mutex
	fail  map[string]bool
	calls []string
}

func (f *fakeTransport) Send(_ context.Context, task domain.Task, agent domain.AgentDescriptor) (domain.TaskOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, agent.Type)
	if f.fail[agent.Type] {
		return domain.TaskOutput{}, &fakeSendError{agent: agent.Type}
	}
	return domain.TaskOutput{AgentType: agent.Type, Data: map[string]interface{}{"task": task.ID}}, nil
}

func (f *fakeTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeSendError struct{ agent string }

func (e *fakeSendError) Error() string { return "agent " + e.agent + " refused the call" }

type fakeProbe struct{}

func (fakeProbe) Check(context.Context, domain.AgentDescriptor) error { return nil }

// memorySink collects events synchronously for assertions.
type memorySink struct {
	mu     sync.Mutex
	events []audit.DispatchEvent
}

func (s *memorySink) Log(event audit.DispatchEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *memorySink) byType(t audit.EventType) []audit.DispatchEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []audit.DispatchEvent
	for _, e := range s.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func testEngineConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxQueueSize = 3
	cfg.QueueTimeout = time.Minute
	return cfg
}

func newTestEngine(t *testing.T, cfg Config, transport AgentTransport, sink EventSink, agents ...domain.AgentDescriptor) *ExecutionEngine {
	t.Helper()
	if len(agents) == 0 {
		agents = []domain.AgentDescriptor{{
			Type:          "claude",
			Capabilities:  []string{"code.generate", "code.review", "code.validate"},
			MaxConcurrent: 2,
		}}
	}
	e, err := NewExecutionEngine(cfg, agents, Options{
		Transport:   transport,
		Probe:       fakeProbe{},
		Provisioner: &stubProvisioner{},
		Events:      sink,
		Logger:      zap.NewNop(),
	})
	require.NoError(t, err)
	return e
}

func TestEngine_ExecuteTaskSuccess(t *testing.T) {
	transport := &fakeTransport{}
	sink := &memorySink{}
	e := newTestEngine(t, testEngineConfig(), transport, sink)

	result, err := e.ExecuteTask(context.Background(), domain.Task{Type: "codegen"})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.False(t, result.Queued)
	assert.NotEmpty(t, result.TaskID)
	require.NotNil(t, result.Result)
	assert.Equal(t, "claude", result.Result.AgentType)

	metrics := e.GetMetrics()
	assert.Equal(t, uint64(1), metrics.TotalSubmitted)
	assert.Equal(t, uint64(1), metrics.TotalCompleted)
	require.Len(t, sink.byType(audit.EventTaskCompleted), 1)
}

func TestEngine_ValidationErrors(t *testing.T) {
	e := newTestEngine(t, testEngineConfig(), &fakeTransport{}, nil)

	_, err := e.ExecuteTask(context.Background(), domain.Task{})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)

	_, err = e.ExecuteTask(context.Background(), domain.Task{Type: "codegen", Priority: "urgent"})
	require.ErrorAs(t, err, &vErr)
}

func TestEngine_SaturationQueuesAndDrainDispatches(t *testing.T) {
	transport := &fakeTransport{}
	sink := &memorySink{}
	e := newTestEngine(t, testEngineConfig(), transport, sink)

	// Occupy every slot so the next task has nowhere to go.
	rt := e.runtimes["claude"]
	require.True(t, rt.tryAcquire())
	require.True(t, rt.tryAcquire())

	result, err := e.ExecuteTask(context.Background(), domain.Task{Type: "codegen", Priority: domain.PriorityHigh})
	require.NoError(t, err)
	assert.True(t, result.Queued)
	assert.Equal(t, 0, result.QueuePosition)
	assert.Equal(t, time.Duration(0), result.EstimatedWait)
	require.Len(t, sink.byType(audit.EventTaskQueued), 1)

	// Capacity freed: the next drain tick picks the task up.
	rt.release()
	rt.release()
	e.drainTick(context.Background())
	e.inflight.Wait()

	assert.Equal(t, 0, e.GetQueueStatus().Size)
	assert.Equal(t, 1, transport.callCount())
	assert.Equal(t, uint64(1), e.GetMetrics().TotalCompleted)
}

func TestEngine_DrainRequeuesTaskWhenRoutingFails(t *testing.T) {
	transport := &fakeTransport{}
	sink := &memorySink{}
	e := newTestEngine(t, testEngineConfig(), transport, sink,
		domain.AgentDescriptor{Type: "reviewer", Capabilities: []string{"code.review"}, MaxConcurrent: 1},
		domain.AgentDescriptor{Type: "generator", Capabilities: []string{"code.generate"}, MaxConcurrent: 2},
	)

	reviewer := e.runtimes["reviewer"]
	require.True(t, reviewer.tryAcquire())

	result, err := e.ExecuteTask(context.Background(), domain.Task{Type: "code_review"})
	require.NoError(t, err)
	require.True(t, result.Queued)

	// The only capable agent turns unhealthy while the generator keeps free
	// slots, so the drain pops the task but cannot route it.
	reviewer.markHealth(false, time.Now())
	reviewer.release()

	e.drainTick(context.Background())
	e.inflight.Wait()

	// The task goes back to the queue instead of evaporating.
	assert.Equal(t, 1, e.GetQueueStatus().Size)
	assert.Equal(t, 0, transport.callCount())
	assert.Empty(t, sink.byType(audit.EventTaskFailed))
	require.Len(t, sink.byType(audit.EventTaskQueued), 2)

	// Once the agent recovers, the next tick dispatches it for real.
	reviewer.markHealth(true, time.Now())
	e.drainTick(context.Background())
	e.inflight.Wait()

	assert.Equal(t, 0, e.GetQueueStatus().Size)
	assert.Equal(t, []string{"reviewer"}, transport.calls)
	assert.Equal(t, uint64(1), e.GetMetrics().TotalCompleted)
}

func TestEngine_EstimateWaitScalesWithPosition(t *testing.T) {
	e := newTestEngine(t, testEngineConfig(), &fakeTransport{}, nil)

	// No latency samples yet: the estimate falls back to 30s per task.
	assert.Equal(t, time.Duration(0), e.EstimateWaitTime(0))
	assert.Equal(t, 60*time.Second, e.EstimateWaitTime(2))

	// With a measured average the estimate tracks it.
	e.runtimes["claude"].recordOutcome(true, 500*time.Millisecond)
	assert.Equal(t, 1500*time.Millisecond, e.EstimateWaitTime(3))
}

func TestEngine_QueueFullBackpressure(t *testing.T) {
	e := newTestEngine(t, testEngineConfig(), &fakeTransport{}, nil)

	rt := e.runtimes["claude"]
	require.True(t, rt.tryAcquire())
	require.True(t, rt.tryAcquire())

	for i := 0; i < 3; i++ {
		result, err := e.ExecuteTask(context.Background(), domain.Task{Type: "codegen"})
		require.NoError(t, err)
		require.True(t, result.Queued)
	}

	_, err := e.ExecuteTask(context.Background(), domain.Task{Type: "codegen"})
	var full *QueueFullError
	require.ErrorAs(t, err, &full)
}

func TestEngine_FailoverToSecondAgent(t *testing.T) {
	transport := &fakeTransport{fail: map[string]bool{"flaky": true}}
	sink := &memorySink{}
	e := newTestEngine(t, testEngineConfig(), transport, sink,
		domain.AgentDescriptor{Type: "flaky", Capabilities: []string{"code.generate"}, MaxConcurrent: 2, PriorityWeight: 0},
		domain.AgentDescriptor{Type: "backup", Capabilities: []string{"code.generate"}, MaxConcurrent: 2, PriorityWeight: 1},
	)

	result, err := e.ExecuteTask(context.Background(), domain.Task{Type: "codegen"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "backup", result.Result.AgentType)
	assert.Equal(t, []string{"flaky", "backup"}, transport.calls)

	// The failed attempt left its trace on the flaky agent.
	flaky, err := e.GetAgentStatus("flaky")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), flaky.Failed)
	require.Len(t, flaky.RecentErrors, 1)
}

func TestEngine_SingleFailoverOnly(t *testing.T) {
	transport := &fakeTransport{fail: map[string]bool{"a": true, "b": true}}
	e := newTestEngine(t, testEngineConfig(), transport, nil,
		domain.AgentDescriptor{Type: "a", Capabilities: []string{"code.generate"}, MaxConcurrent: 2, PriorityWeight: 0},
		domain.AgentDescriptor{Type: "b", Capabilities: []string{"code.generate"}, MaxConcurrent: 2, PriorityWeight: 1},
		domain.AgentDescriptor{Type: "c", Capabilities: []string{"code.generate"}, MaxConcurrent: 2, PriorityWeight: 2},
	)

	_, err := e.ExecuteTask(context.Background(), domain.Task{Type: "codegen"})
	require.Error(t, err)

	// Two attempts, never a third: c stays untouched.
	assert.Equal(t, []string{"a", "b"}, transport.calls)
}

func TestEngine_CancelQueuedTask(t *testing.T) {
	sink := &memorySink{}
	e := newTestEngine(t, testEngineConfig(), &fakeTransport{}, sink)

	rt := e.runtimes["claude"]
	require.True(t, rt.tryAcquire())
	require.True(t, rt.tryAcquire())

	result, err := e.ExecuteTask(context.Background(), domain.Task{Type: "codegen"})
	require.NoError(t, err)
	require.True(t, result.Queued)

	require.NoError(t, e.CancelQueuedTask(context.Background(), result.TaskID))
	assert.ErrorIs(t, e.CancelQueuedTask(context.Background(), result.TaskID), ErrNotFound)
	require.Len(t, sink.byType(audit.EventTaskCancelled), 1)
	assert.Equal(t, 0, e.GetQueueStatus().Size)
}

func TestEngine_ExpiredTasksAreDroppedOnDrain(t *testing.T) {
	sink := &memorySink{}
	e := newTestEngine(t, testEngineConfig(), &fakeTransport{}, sink)

	rt := e.runtimes["claude"]
	require.True(t, rt.tryAcquire())
	require.True(t, rt.tryAcquire())

	_, err := e.ExecuteTask(context.Background(), domain.Task{Type: "codegen"})
	require.NoError(t, err)

	// Rewind the queue clock so the entry is past its timeout.
	e.queue.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	rt.release()
	rt.release()

	e.drainTick(context.Background())
	e.inflight.Wait()

	assert.Equal(t, uint64(1), e.GetMetrics().TotalExpired)
	require.Len(t, sink.byType(audit.EventTaskExpired), 1)
	assert.Equal(t, 0, e.GetQueueStatus().Size)
}

func TestEngine_RestartAgentResetsBreaker(t *testing.T) {
	transport := &fakeTransport{fail: map[string]bool{"claude": true}}
	sink := &memorySink{}
	e := newTestEngine(t, testEngineConfig(), transport, sink)

	// Trip the breaker with five straight failures.
	for i := 0; i < 5; i++ {
		_, err := e.ExecuteTask(context.Background(), domain.Task{Type: "codegen"})
		require.Error(t, err)
	}
	status, err := e.GetAgentStatus("claude")
	require.NoError(t, err)
	require.Equal(t, "open", status.BreakerState)

	require.NoError(t, e.RestartAgent(context.Background(), "claude"))

	status, err = e.GetAgentStatus("claude")
	require.NoError(t, err)
	assert.Equal(t, "closed", status.BreakerState)
	require.Len(t, sink.byType(audit.EventAgentRestarted), 1)

	assert.Error(t, e.RestartAgent(context.Background(), "ghost"))
}

func TestEngine_ShutdownRejectsNewTasksAndFlushesQueue(t *testing.T) {
	sink := &memorySink{}
	e := newTestEngine(t, testEngineConfig(), &fakeTransport{}, sink)

	rt := e.runtimes["claude"]
	require.True(t, rt.tryAcquire())
	require.True(t, rt.tryAcquire())

	result, err := e.ExecuteTask(context.Background(), domain.Task{Type: "codegen"})
	require.NoError(t, err)
	require.True(t, result.Queued)

	e.Shutdown(context.Background())

	_, err = e.ExecuteTask(context.Background(), domain.Task{Type: "codegen"})
	assert.ErrorIs(t, err, ErrShuttingDown)
	require.Len(t, sink.byType(audit.EventTaskCancelled), 1)
	assert.Equal(t, 0, e.GetQueueStatus().Size)
}
