package connectors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/xela07ax/devit-dispatch-prototype/internal/domain"
)

// executeRequest — тело вызова агента.
type executeRequest struct {
	TaskID    string                 `json:"task_id"`
	Type      string                 `json:"type"`
	Priority  string                 `json:"priority"`
	Payload   map[string]interface{} `json:"payload"`
	Workspace string                 `json:"workspace,omitempty"`
}

// executeResponse — ответ агента. Содержимое data движок не интерпретирует.
type executeResponse struct {
	Status string                 `json:"status"`
	Data   map[string]interface{} `json:"data"`
	Error  string                 `json:"error"`
}

// HTTPAdapter доставляет задачи агенту по его HTTP API.
// Реализует транспортный контракт движка; политика ретраев живет уровнем
// выше, в RetryingTransport.
type HTTPAdapter struct {
	client      *http.Client
	callTimeout time.Duration
}

func NewHTTPAdapter(callTimeout time.Duration) *HTTPAdapter {
	return &HTTPAdapter{
		client:      &http.Client{},
		callTimeout: callTimeout,
	}
}

func (a *HTTPAdapter) Send(ctx context.Context, task domain.Task, agent domain.AgentDescriptor) (domain.TaskOutput, error) {
	started := time.Now()

	body, err := json.Marshal(executeRequest{
		TaskID:    task.ID,
		Type:      task.Type,
		Priority:  string(task.Priority),
		Payload:   task.Payload,
		Workspace: task.Workspace,
	})
	if err != nil {
		return domain.TaskOutput{}, fmt.Errorf("failed to marshal task payload: %w", err)
	}

	// Защитный таймаут на уровне одного вызова: общий дедлайн может быть
	// длиннее из-за ретраев выше по стеку.
	ctx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, agent.Endpoint+"/v1/execute", bytes.NewReader(body))
	if err != nil {
		return domain.TaskOutput{}, fmt.Errorf("failed to build agent request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-DevIT-Task-ID", task.ID)

	resp, err := a.client.Do(req)
	if err != nil {
		return domain.TaskOutput{}, &TransportError{AgentType: agent.Type, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return domain.TaskOutput{}, &ThrottleError{
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Cause:      fmt.Errorf("agent %s rate limited", agent.Type),
		}
	}
	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return domain.TaskOutput{}, &TransportError{
			AgentType:  agent.Type,
			StatusCode: resp.StatusCode,
			Cause:      fmt.Errorf("agent returned %q", string(raw)),
		}
	}

	var out executeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.TaskOutput{}, &TransportError{AgentType: agent.Type, Cause: fmt.Errorf("invalid agent response: %w", err)}
	}
	if out.Status != "" && out.Status != "success" {
		return domain.TaskOutput{}, &TransportError{AgentType: agent.Type, Cause: fmt.Errorf("agent reported %s: %s", out.Status, out.Error)}
	}

	return domain.TaskOutput{
		AgentType:  agent.Type,
		Data:       out.Data,
		DurationMs: time.Since(started).Milliseconds(),
	}, nil
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 2 * time.Second
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 2 * time.Second
}
