package domain

import "time"

type TaskPriority string

const (
	PriorityHigh   TaskPriority = "high"
	PriorityNormal TaskPriority = "normal"
	PriorityLow    TaskPriority = "low"
)

// Rank возвращает числовой ранг приоритета для сортировки очереди.
// Меньше — важнее: high=0, normal=1, low=2.
func (p TaskPriority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityLow:
		return 2
	default:
		return 1
	}
}

func (p TaskPriority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

type TaskStatus string

const (
	TaskStatusQueued     TaskStatus = "queued"
	TaskStatusDispatched TaskStatus = "dispatched"
	TaskStatusDone       TaskStatus = "done"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusExpired    TaskStatus = "expired"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// Task — единица работы для AI-агента.
type Task struct {
	ID       string       `json:"id"` // UUID, присваивается движком если пуст
	Type     string       `json:"type"`
	Priority TaskPriority `json:"priority"`

	// Payload — непрозрачный для движка вход агента (промпт, diff, контекст).
	// Движок его не интерпретирует.
	Payload map[string]interface{} `json:"payload"`

	// SideEffects — признак операций с побочными эффектами (запись в репозиторий,
	// запуск команд). Добавляет агенту требования к capabilities.
	SideEffects bool `json:"side_effects,omitempty"`

	// PreferredAgent — необязательная подсказка маршрутизатору.
	PreferredAgent string `json:"preferred_agent,omitempty"`

	// Workspace — путь рабочей среды; заполняется движком после
	// выделения песочницы, отправителем игнорируется.
	Workspace string `json:"workspace,omitempty"`

	SubmittedAt time.Time `json:"submitted_at"`
	Attempts    int       `json:"attempts"`
}

// TaskOutput — результат, который вернул агент. Содержимое не оценивается.
type TaskOutput struct {
	AgentType  string                 `json:"agent_type"`
	Data       map[string]interface{} `json:"data"`
	DurationMs int64                  `json:"duration_ms"`
}

// ExecuteResult — немедленный ответ на submit: либо результат,
// либо подтверждение постановки в очередь с позицией.
type ExecuteResult struct {
	TaskID        string        `json:"task_id"`
	Success       bool          `json:"success"`
	Queued        bool          `json:"queued"`
	Result        *TaskOutput   `json:"result,omitempty"`
	QueuePosition int           `json:"queue_position,omitempty"`
	EstimatedWait time.Duration `json:"estimated_wait,omitempty"`
}

// QueuedTaskInfo — представление элемента очереди для Observability API.
type QueuedTaskInfo struct {
	TaskID     string       `json:"task_id"`
	Type       string       `json:"type"`
	Priority   TaskPriority `json:"priority"`
	Position   int          `json:"position"`
	EnqueuedAt time.Time    `json:"enqueued_at"`
}

type QueueStatus struct {
	Size    int              `json:"size"`
	MaxSize int              `json:"max_size"`
	Entries []QueuedTaskInfo `json:"entries"`
}
