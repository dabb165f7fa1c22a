package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/devit-dispatch-prototype/internal/audit"
	"github.com/xela07ax/devit-dispatch-prototype/internal/domain"
	"go.uber.org/zap"
)

// HealthProbe — внешняя проверка живости агента.
// nil — агент здоров; ошибка — детали падения.
type HealthProbe interface {
	Check(ctx context.Context, agent domain.AgentDescriptor) error
}

// HealthRegistry хранит здоровье агентов и гоняет периодические проверки.
// Ошибки проб поглощаются в состояние (healthy=false + кольцо ошибок),
// наружу не распространяются — сбой пробы не должен ронять вызывающего.
type HealthRegistry struct {
	runtimes map[string]*agentRuntime
	probe    HealthProbe
	events   EventSink
	logger   *zap.Logger
	interval time.Duration
}

func NewHealthRegistry(runtimes map[string]*agentRuntime, probe HealthProbe, interval time.Duration, events EventSink, logger *zap.Logger) *HealthRegistry {
	return &HealthRegistry{
		runtimes: runtimes,
		probe:    probe,
		events:   events,
		logger:   logger.With(zap.String("mod", "health")),
		interval: interval,
	}
}

// ForceCheck немедленно опрашивает агента и обновляет его состояние.
func (h *HealthRegistry) ForceCheck(ctx context.Context, agentType string) {
	rt, ok := h.runtimes[agentType]
	if !ok {
		return
	}

	now := time.Now()
	err := h.probe.Check(ctx, rt.desc)
	if err != nil {
		rt.markHealth(false, now)
		rt.pushError(now, err.Error())
		h.logger.Warn("health probe failed",
			zap.String("agent_type", agentType),
			zap.Error(err))
	} else {
		rt.markHealth(true, now)
	}

	if h.events != nil {
		event := audit.DispatchEvent{
			ID:        uuid.New().String(),
			Type:      audit.EventAgentHealth,
			AgentType: agentType,
			Detail:    map[string]interface{}{"healthy": err == nil},
			Timestamp: now,
		}
		if err != nil {
			event.Error = err.Error()
		}
		h.events.Log(event)
	}
}

// IsHealthy — быстрый ответ для фильтра маршрутизатора.
func (h *HealthRegistry) IsHealthy(agentType string) bool {
	rt, ok := h.runtimes[agentType]
	if !ok {
		return false
	}
	return rt.isHealthy()
}

// StartChecker — периодический опрос всех агентов. Каждый тик сам
// удерживает свои ошибки: один упавший опрос не останавливает цикл.
func (h *HealthRegistry) StartChecker(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.checkAll(ctx)
		}
	}
}

func (h *HealthRegistry) checkAll(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("health check tick panic recovered", zap.Any("panic", r))
		}
	}()

	for agentType := range h.runtimes {
		h.ForceCheck(ctx, agentType)
	}
}
