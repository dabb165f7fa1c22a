package engine

import (
	"sync"
	"time"

	"github.com/xela07ax/devit-dispatch-prototype/internal/domain"
)

// queueEntry — задача в очереди ожидания.
type queueEntry struct {
	task       domain.Task
	enqueuedAt time.Time
}

// PriorityTaskQueue — ограниченная очередь с порядком
// (ранг приоритета по возрастанию, FIFO внутри ранга).
// Вставка — перед первым элементом со строго большим рангом: это сохраняет
// FIFO среди равных приоритетов без отдельных под-очередей.
type PriorityTaskQueue struct {
	mu      sync.Mutex
	entries []queueEntry
	maxSize int
	timeout time.Duration
	now     func() time.Time // подменяется в тестах
}

func NewPriorityTaskQueue(maxSize int, timeout time.Duration) *PriorityTaskQueue {
	return &PriorityTaskQueue{
		entries: make([]queueEntry, 0, maxSize),
		maxSize: maxSize,
		timeout: timeout,
		now:     time.Now,
	}
}

// Enqueue ставит задачу в очередь и возвращает ее позицию.
// При заполненной очереди — QueueFullError, явный backpressure.
func (q *PriorityTaskQueue) Enqueue(task domain.Task) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) >= q.maxSize {
		return 0, &QueueFullError{Max: q.maxSize}
	}

	rank := task.Priority.Rank()
	idx := len(q.entries)
	for i, e := range q.entries {
		if e.task.Priority.Rank() > rank {
			idx = i
			break
		}
	}

	entry := queueEntry{task: task, enqueuedAt: q.now()}
	q.entries = append(q.entries, queueEntry{})
	copy(q.entries[idx+1:], q.entries[idx:])
	q.entries[idx] = entry

	return idx, nil
}

// Drain снимает до n задач в хранимом порядке. Просроченные
// (старше queue_timeout) не диспетчеризуются: они возвращаются отдельным
// списком и в n не засчитываются.
func (q *PriorityTaskQueue) Drain(n int) (ready []domain.Task, expired []domain.Task) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	for len(q.entries) > 0 && len(ready) < n {
		entry := q.entries[0]
		q.entries = q.entries[1:]

		if q.timeout > 0 && now.Sub(entry.enqueuedAt) > q.timeout {
			expired = append(expired, entry.task)
			continue
		}
		ready = append(ready, entry.task)
	}
	return ready, expired
}

// Cancel удаляет задачу по id. Отменять можно только то, что еще в очереди.
func (q *PriorityTaskQueue) Cancel(taskID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, e := range q.entries {
		if e.task.ID == taskID {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (q *PriorityTaskQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Flush забирает все оставшиеся задачи (используется при shutdown).
func (q *PriorityTaskQueue) Flush() []domain.Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	tasks := make([]domain.Task, 0, len(q.entries))
	for _, e := range q.entries {
		tasks = append(tasks, e.task)
	}
	q.entries = q.entries[:0]
	return tasks
}

// Status — снимок очереди для Observability API.
func (q *PriorityTaskQueue) Status() domain.QueueStatus {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries := make([]domain.QueuedTaskInfo, 0, len(q.entries))
	for i, e := range q.entries {
		entries = append(entries, domain.QueuedTaskInfo{
			TaskID:     e.task.ID,
			Type:       e.task.Type,
			Priority:   e.task.Priority,
			Position:   i,
			EnqueuedAt: e.enqueuedAt,
		})
	}
	return domain.QueueStatus{
		Size:    len(entries),
		MaxSize: q.maxSize,
		Entries: entries,
	}
}
