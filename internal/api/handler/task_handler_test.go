package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/devit-dispatch-prototype/internal/domain"
	"github.com/xela07ax/devit-dispatch-prototype/internal/engine"
	"go.uber.org/zap"
)

// fakeDispatcher returns scripted results per call.
type fakeDispatcher struct {
	result    domain.ExecuteResult
	err       error
	cancelErr error
}

func (f *fakeDispatcher) ExecuteTask(_ context.Context, task domain.Task) (domain.ExecuteResult, error) {
	return f.result, f.err
}

func (f *fakeDispatcher) GetQueueStatus() domain.QueueStatus {
	return domain.QueueStatus{Size: 1, MaxSize: 100}
}

func (f *fakeDispatcher) CancelQueuedTask(_ context.Context, taskID string) error {
	return f.cancelErr
}

func newTaskRouter(d Dispatcher) *chi.Mux {
	h := NewTaskHandler(d, zap.NewNop())
	r := chi.NewRouter()
	r.Post("/v1/tasks", h.Submit)
	r.Get("/v1/queue", h.QueueStatus)
	r.Delete("/v1/queue/{taskID}", h.Cancel)
	return r
}

func TestTaskHandler_SubmitImmediateResult(t *testing.T) {
	d := &fakeDispatcher{result: domain.ExecuteResult{
		TaskID:  "t1",
		Success: true,
		Result:  &domain.TaskOutput{AgentType: "claude"},
	}}
	r := newTaskRouter(d)

	req := httptest.NewRequest(http.MethodPost, "/v1/tasks", strings.NewReader(`{"type":"codegen"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var result domain.ExecuteResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.True(t, result.Success)
}

func TestTaskHandler_SubmitQueuedReturnsAccepted(t *testing.T) {
	d := &fakeDispatcher{result: domain.ExecuteResult{TaskID: "t1", Queued: true, QueuePosition: 2}}
	r := newTaskRouter(d)

	req := httptest.NewRequest(http.MethodPost, "/v1/tasks", strings.NewReader(`{"type":"codegen"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestTaskHandler_ErrorTaxonomyToStatusCodes(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"validation", &engine.ValidationError{Reason: "type required"}, http.StatusBadRequest},
		{"no_capable", &engine.NoCapableAgentError{TaskType: "x"}, http.StatusUnprocessableEntity},
		{"queue_full", &engine.QueueFullError{Max: 100}, http.StatusTooManyRequests},
		{"circuit_open", &engine.CircuitOpenError{AgentType: "claude"}, http.StatusServiceUnavailable},
		{"all_failed", &engine.AllAgentsFailedError{TaskID: "t1"}, http.StatusBadGateway},
		{"shutting_down", engine.ErrShuttingDown, http.StatusServiceUnavailable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newTaskRouter(&fakeDispatcher{err: tc.err})
			req := httptest.NewRequest(http.MethodPost, "/v1/tasks", strings.NewReader(`{"type":"x"}`))
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			assert.Equal(t, tc.code, rec.Code)
		})
	}
}

func TestTaskHandler_CancelNotFound(t *testing.T) {
	r := newTaskRouter(&fakeDispatcher{cancelErr: engine.ErrNotFound})

	req := httptest.NewRequest(http.MethodDelete, "/v1/queue/ghost", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTaskHandler_QueueStatus(t *testing.T) {
	r := newTaskRouter(&fakeDispatcher{})

	req := httptest.NewRequest(http.MethodGet, "/v1/queue", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var status domain.QueueStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.Equal(t, 1, status.Size)
}
