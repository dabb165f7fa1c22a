package audit

import "time"

type EventType string

const (
	EventTaskQueued       EventType = "task_queued"
	EventTaskCompleted    EventType = "task_completed"
	EventTaskFailed       EventType = "task_failed"
	EventTaskExpired      EventType = "task_expired"
	EventTaskCancelled    EventType = "task_cancelled"
	EventAgentHealth      EventType = "agent_health_update"
	EventBreakerOpened    EventType = "breaker_opened"
	EventBreakerClosed    EventType = "breaker_closed"
	EventSandboxCreated   EventType = "sandbox_created"
	EventSandboxDestroyed EventType = "sandbox_destroyed"
	EventAgentRestarted   EventType = "agent_restarted"
)

// DispatchEvent — запись о факте в жизненном цикле задачи или агента.
// Движок только эмитит события; персистентность и доставка — забота подписчиков.
type DispatchEvent struct {
	ID        string    `json:"id"` // UUID события
	Type      EventType `json:"type"`
	TaskID    string    `json:"task_id,omitempty"`
	AgentType string    `json:"agent_type,omitempty"`

	// Detail — произвольный контекст события (позиция в очереди, ключ песочницы).
	Detail map[string]interface{} `json:"detail,omitempty"`

	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"duration_ms,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
