package engine

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound — задача отсутствует в очереди (cancel по несуществующему id).
var ErrNotFound = errors.New("task not found in queue")

// ErrShuttingDown — движок останавливается и новые задачи не принимает.
var ErrShuttingDown = errors.New("engine is shutting down")

// ValidationError — задача отклонена синхронно, без ретраев.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid task: %s", e.Reason)
}

// NoCapableAgentError — ни один сконфигурированный агент не покрывает
// требуемые capabilities. Задача не попадает в очередь.
type NoCapableAgentError struct {
	TaskType string
	Required []string
}

func (e *NoCapableAgentError) Error() string {
	return fmt.Sprintf("no capable agent for task type %q (required: %s)",
		e.TaskType, strings.Join(e.Required, ","))
}

// CircuitOpenError — выбранный агент отсечен предохранителем.
type CircuitOpenError struct {
	AgentType string
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker open for agent %s", e.AgentType)
}

// AllAgentsFailedError — failover исчерпан: после исключения упавшего
// агента кандидатов не осталось.
type AllAgentsFailedError struct {
	TaskID   string
	Excluded string
}

func (e *AllAgentsFailedError) Error() string {
	return fmt.Sprintf("all agents failed for task %s (last tried: %s)", e.TaskID, e.Excluded)
}

// QueueFullError — явный сигнал backpressure.
type QueueFullError struct {
	Max int
}

func (e *QueueFullError) Error() string {
	return fmt.Sprintf("task queue is full (max %d)", e.Max)
}

// TaskExpiredError — задача провела в очереди дольше queue_timeout.
type TaskExpiredError struct {
	TaskID string
	Age    time.Duration
}

func (e *TaskExpiredError) Error() string {
	return fmt.Sprintf("task %s expired after %s in queue", e.TaskID, e.Age)
}

// SandboxProvisionError — не удалось подготовить рабочую среду.
// Фатально для задачи, на этом уровне не ретраится.
type SandboxProvisionError struct {
	Key string
	Err error
}

func (e *SandboxProvisionError) Error() string {
	return fmt.Sprintf("sandbox provisioning failed for %s: %v", e.Key, e.Err)
}

func (e *SandboxProvisionError) Unwrap() error { return e.Err }
