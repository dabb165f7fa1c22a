package domain

import "time"

// AgentDescriptor — статическое описание типа агента.
// Immutable после регистрации: runtime-состояние живет отдельно в движке.
type AgentDescriptor struct {
	Type         string   `json:"type"` // например, "claude-code", "codegen-bot"
	Capabilities []string `json:"capabilities"`

	MaxConcurrent  int `json:"max_concurrent"`
	PriorityWeight int `json:"priority_weight"` // меньше — предпочтительнее

	// Endpoint — адрес HTTP API агента для AgentTransport.
	Endpoint string `json:"endpoint"`

	// RequiresSandbox — агенту нужна изолированная рабочая среда на задачу.
	RequiresSandbox bool `json:"requires_sandbox"`
}

// HasCapabilities проверяет, что набор агента — надмножество требуемого.
func (d AgentDescriptor) HasCapabilities(required []string) bool {
	if len(required) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(d.Capabilities))
	for _, c := range d.Capabilities {
		set[c] = struct{}{}
	}
	for _, r := range required {
		if _, ok := set[r]; !ok {
			return false
		}
	}
	return true
}

// AgentError — запись в кольцевом буфере последних ошибок агента.
type AgentError struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// AgentStatus — снимок runtime-состояния агента для Observability API.
type AgentStatus struct {
	Type          string    `json:"type"`
	Healthy       bool      `json:"healthy"`
	Suspended     bool      `json:"suspended"`
	LastCheck     time.Time `json:"last_check"`
	BreakerState  string    `json:"breaker_state"` // closed | open | half_open
	CurrentLoad   int       `json:"current_load"`
	MaxConcurrent int       `json:"max_concurrent"`

	TotalTasks   uint64  `json:"total_tasks"`
	Succeeded    uint64  `json:"succeeded"`
	Failed       uint64  `json:"failed"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`

	RecentErrors []AgentError `json:"recent_errors"`
}

// EngineMetrics — агрегированный снимок движка.
type EngineMetrics struct {
	TotalSubmitted  uint64        `json:"total_submitted"`
	TotalCompleted  uint64        `json:"total_completed"`
	TotalFailed     uint64        `json:"total_failed"`
	TotalExpired    uint64        `json:"total_expired"`
	QueueDepth      int           `json:"queue_depth"`
	ActiveSandboxes int           `json:"active_sandboxes"`
	Agents          []AgentStatus `json:"agents"`
}
