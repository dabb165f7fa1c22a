package connectors

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/devit-dispatch-prototype/internal/domain"
)

func agentServer(t *testing.T, handler http.HandlerFunc) domain.AgentDescriptor {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return domain.AgentDescriptor{Type: "claude", Endpoint: srv.URL}
}

func TestHTTPAdapter_SuccessfulCall(t *testing.T) {
	var gotReq executeRequest
	agent := agentServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/execute", r.URL.Path)
		assert.Equal(t, "task-1", r.Header.Get("X-DevIT-Task-ID"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		json.NewEncoder(w).Encode(executeResponse{
			Status: "success",
			Data:   map[string]interface{}{"review": "lgtm"},
		})
	})

	adapter := NewHTTPAdapter(5 * time.Second)
	task := domain.Task{
		ID:        "task-1",
		Type:      "code_review",
		Priority:  domain.PriorityHigh,
		Payload:   map[string]interface{}{"diff": "..."},
		Workspace: "/sandboxes/task-1",
	}

	out, err := adapter.Send(context.Background(), task, agent)
	require.NoError(t, err)

	assert.Equal(t, "claude", out.AgentType)
	assert.Equal(t, "lgtm", out.Data["review"])
	assert.Equal(t, "task-1", gotReq.TaskID)
	assert.Equal(t, "/sandboxes/task-1", gotReq.Workspace)
}

func TestHTTPAdapter_RateLimitedBecomesThrottleError(t *testing.T) {
	agent := agentServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	adapter := NewHTTPAdapter(5 * time.Second)
	_, err := adapter.Send(context.Background(), domain.Task{ID: "t1"}, agent)

	var throttle *ThrottleError
	require.ErrorAs(t, err, &throttle)
	assert.Equal(t, 7*time.Second, throttle.RetryAfter)
}

func TestHTTPAdapter_ServerErrorBecomesTransportError(t *testing.T) {
	agent := agentServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusInternalServerError)
	})

	adapter := NewHTTPAdapter(5 * time.Second)
	_, err := adapter.Send(context.Background(), domain.Task{ID: "t1"}, agent)

	var transport *TransportError
	require.ErrorAs(t, err, &transport)
	assert.Equal(t, http.StatusInternalServerError, transport.StatusCode)
	assert.Equal(t, "claude", transport.AgentType)
}

func TestHTTPAdapter_AgentReportedFailure(t *testing.T) {
	agent := agentServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(executeResponse{Status: "failed", Error: "context window exceeded"})
	})

	adapter := NewHTTPAdapter(5 * time.Second)
	_, err := adapter.Send(context.Background(), domain.Task{ID: "t1"}, agent)

	var transport *TransportError
	require.ErrorAs(t, err, &transport)
	assert.Contains(t, transport.Error(), "context window exceeded")
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 2*time.Second, parseRetryAfter(""))
	assert.Equal(t, 2*time.Second, parseRetryAfter("not-a-number"))
	assert.Equal(t, 15*time.Second, parseRetryAfter("15"))
}
