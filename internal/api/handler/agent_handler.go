package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/devit-dispatch-prototype/internal/domain"
	"go.uber.org/zap"
)

// AgentControl — операции над агентами, которые открывает API.
type AgentControl interface {
	GetAgentStatus(agentType string) (domain.AgentStatus, error)
	GetAllAgentsStatus() []domain.AgentStatus
	RestartAgent(ctx context.Context, agentType string) error
}

// Suspender — nil, если Control Plane не подключен.
type Suspender interface {
	Suspend(ctx context.Context, agentType string) error
	Resume(ctx context.Context, agentType string) error
}

type AgentHandler struct {
	control AgentControl
	suspend Suspender
	logger  *zap.Logger
}

func NewAgentHandler(control AgentControl, suspend Suspender, logger *zap.Logger) *AgentHandler {
	return &AgentHandler{control: control, suspend: suspend, logger: logger}
}

func (h *AgentHandler) List(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.control.GetAllAgentsStatus())
}

func (h *AgentHandler) Get(w http.ResponseWriter, r *http.Request) {
	status, err := h.control.GetAgentStatus(chi.URLParam(r, "agentType"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// Restart выводит агента из ротации, дожидается in-flight задач и
// возвращает его со свежим предохранителем.
func (h *AgentHandler) Restart(w http.ResponseWriter, r *http.Request) {
	agentType := chi.URLParam(r, "agentType")

	if err := h.control.RestartAgent(r.Context(), agentType); err != nil {
		h.logger.Warn("agent restart failed", zap.String("agent_type", agentType), zap.Error(err))
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AgentHandler) Suspend(w http.ResponseWriter, r *http.Request) {
	h.setSuspended(w, r, true)
}

func (h *AgentHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.setSuspended(w, r, false)
}

func (h *AgentHandler) setSuspended(w http.ResponseWriter, r *http.Request, suspended bool) {
	if h.suspend == nil {
		http.Error(w, "suspend control plane is not configured", http.StatusNotImplemented)
		return
	}
	agentType := chi.URLParam(r, "agentType")

	// Сначала БД, потом кэш и Pub/Sub — ждем оба действия целиком
	var err error
	if suspended {
		err = h.suspend.Suspend(r.Context(), agentType)
	} else {
		err = h.suspend.Resume(r.Context(), agentType)
	}
	if err != nil {
		h.logger.Error("failed to change suspend state",
			zap.String("agent_type", agentType),
			zap.Bool("suspended", suspended),
			zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
