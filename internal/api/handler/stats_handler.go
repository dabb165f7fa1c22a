package handler

import (
	"encoding/json"
	"net/http"

	"github.com/xela07ax/devit-dispatch-prototype/internal/domain"
)

// StatsSource Описываем, что нам нужно от ядра
type StatsSource interface {
	GetMetrics() domain.EngineMetrics
}

type StatsHandler struct {
	source StatsSource
}

func NewStatsHandler(s StatsSource) *StatsHandler {
	return &StatsHandler{source: s}
}

func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.source.GetMetrics())
}
