package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/devit-dispatch-prototype/internal/domain"
	"github.com/xela07ax/devit-dispatch-prototype/internal/engine"
	"go.uber.org/zap"
)

// Dispatcher — что хендлерам нужно от ядра.
type Dispatcher interface {
	ExecuteTask(ctx context.Context, task domain.Task) (domain.ExecuteResult, error)
	GetQueueStatus() domain.QueueStatus
	CancelQueuedTask(ctx context.Context, taskID string) error
}

type TaskHandler struct {
	dispatcher Dispatcher
	logger     *zap.Logger
}

func NewTaskHandler(d Dispatcher, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{dispatcher: d, logger: logger}
}

// Submit принимает задачу: синхронный результат либо ack с позицией в очереди.
func (h *TaskHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var task domain.Task
	if err := json.NewDecoder(r.Body).Decode(&task); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.dispatcher.ExecuteTask(r.Context(), task)
	if err != nil {
		h.logger.Warn("task rejected", zap.String("task_type", task.Type), zap.Error(err))
		writeEngineError(w, err)
		return
	}

	status := http.StatusOK
	if result.Queued {
		status = http.StatusAccepted
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(result)
}

func (h *TaskHandler) QueueStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.dispatcher.GetQueueStatus())
}

func (h *TaskHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if taskID == "" {
		http.Error(w, "taskID is required", http.StatusBadRequest)
		return
	}

	if err := h.dispatcher.CancelQueuedTask(r.Context(), taskID); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeEngineError транслирует таксономию ошибок ядра в HTTP-статусы.
func writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	var (
		validation *engine.ValidationError
		noCapable  *engine.NoCapableAgentError
		queueFull  *engine.QueueFullError
		cbOpen     *engine.CircuitOpenError
		allFailed  *engine.AllAgentsFailedError
	)
	switch {
	case errors.As(err, &validation):
		status = http.StatusBadRequest
	case errors.As(err, &noCapable):
		status = http.StatusUnprocessableEntity
	case errors.As(err, &queueFull):
		status = http.StatusTooManyRequests
	case errors.As(err, &cbOpen), errors.Is(err, engine.ErrShuttingDown):
		status = http.StatusServiceUnavailable
	case errors.As(err, &allFailed):
		status = http.StatusBadGateway
	case errors.Is(err, engine.ErrNotFound):
		status = http.StatusNotFound
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
