package connectors

import (
	"context"
	"fmt"
	"time"

	"github.com/xela07ax/devit-dispatch-prototype/internal/domain"
)

// MockAgentConnector — детерминированный транспорт для локальной разработки.
// Исходы заданы типом задачи, никакой случайности: поведение в тестах и
// демо-стенде воспроизводимо.
type MockAgentConnector struct {
	// Latency — фиксированная имитация времени ответа агента.
	Latency time.Duration
}

func (c *MockAgentConnector) Send(ctx context.Context, task domain.Task, agent domain.AgentDescriptor) (domain.TaskOutput, error) {
	if c.Latency > 0 {
		select {
		case <-time.After(c.Latency):
		case <-ctx.Done():
			return domain.TaskOutput{}, ctx.Err()
		}
	}

	switch task.Type {
	case "unstable":
		return domain.TaskOutput{}, &TransportError{
			AgentType: agent.Type,
			Cause:     fmt.Errorf("agent internal error"),
		}
	case "code_review":
		return domain.TaskOutput{
			AgentType:  agent.Type,
			Data:       map[string]interface{}{"status": "reviewed", "comments": []interface{}{}},
			DurationMs: c.Latency.Milliseconds(),
		}, nil
	case "codegen", "refactor":
		return domain.TaskOutput{
			AgentType:  agent.Type,
			Data:       map[string]interface{}{"status": "generated", "files_changed": 1},
			DurationMs: c.Latency.Milliseconds(),
		}, nil
	case "validation":
		return domain.TaskOutput{
			AgentType:  agent.Type,
			Data:       map[string]interface{}{"status": "passed"},
			DurationMs: c.Latency.Milliseconds(),
		}, nil
	default:
		return domain.TaskOutput{
			AgentType:  agent.Type,
			Data:       map[string]interface{}{"status": "done"},
			DurationMs: c.Latency.Milliseconds(),
		}, nil
	}
}

// MockHealthProbe — проба для стендов без живых агентов.
type MockHealthProbe struct{}

func (p *MockHealthProbe) Check(_ context.Context, _ domain.AgentDescriptor) error {
	return nil
}
