package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/devit-dispatch-prototype/internal/infra"
	"go.uber.org/zap"
)

// SuspendedSource отдает приостановленных агентов из источника истины (БД).
type SuspendedSource interface {
	GetSuspendedAgents(ctx context.Context) ([]string, error)
	SetAgentSuspended(ctx context.Context, agentType string, suspended bool) error
}

// SuspendManager — операторская приостановка агентов (Control Plane).
// Приостановленный агент исключается из маршрутизации, но его in-flight
// задачи добегают до конца. Состояние: БД → Redis (L2) → RAM (L1),
// сигналы в реальном времени через Pub/Sub.
type SuspendManager struct {
	repo   SuspendedSource
	rdb    *redis.Client
	logger *zap.Logger

	mu        sync.RWMutex
	suspended map[string]bool
}

func NewSuspendManager(rdb *redis.Client, repo SuspendedSource, logger *zap.Logger) *SuspendManager {
	return &SuspendManager{
		repo:      repo,
		rdb:       rdb,
		logger:    logger.With(zap.String("mod", "suspend")),
		suspended: make(map[string]bool),
	}
}

// Init прогревает кэши приостановленных агентов при старте диспетчера.
func (m *SuspendManager) Init(ctx context.Context) error {
	ids, err := m.repo.GetSuspendedAgents(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch suspended agents from DB: %w", err)
	}

	return WarmupState(ctx, m.rdb, m.logger, ids,
		infra.RedisKeySuspendedAgents, infra.RedisKeyLockWarmupSuspend,
		func(items []string) {
			m.mu.Lock()
			defer m.mu.Unlock()
			m.suspended = make(map[string]bool, len(items))
			for _, id := range items {
				m.suspended[id] = true
			}
		})
}

// StartListener подписывается на сигналы приостановки в реальном времени.
func (m *SuspendManager) StartListener(ctx context.Context) {
	SubscribeResilient(ctx, m.rdb, m.logger, infra.RedisChanAgentSuspend,
		func() error { return m.Init(ctx) }, // Ресинхронизация при переподключении
		func(agentType string, enabled bool) {
			m.mu.Lock()
			defer m.mu.Unlock()
			if enabled {
				m.suspended[agentType] = true
			} else {
				delete(m.suspended, agentType)
			}
		},
	)
}

// IsSuspended — быстрая проверка для Hot Path маршрутизатора.
func (m *SuspendManager) IsSuspended(agentType string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.suspended[agentType]
}

// Suspend фиксирует приостановку в БД и транслирует сигнал остальным
// инстансам. Локальный кэш обновляется сразу, не дожидаясь Pub/Sub.
func (m *SuspendManager) Suspend(ctx context.Context, agentType string) error {
	return m.setState(ctx, agentType, true)
}

func (m *SuspendManager) Resume(ctx context.Context, agentType string) error {
	return m.setState(ctx, agentType, false)
}

func (m *SuspendManager) setState(ctx context.Context, agentType string, suspended bool) error {
	// 1. Persistence Layer
	if err := m.repo.SetAgentSuspended(ctx, agentType, suspended); err != nil {
		m.logger.Error("failed to persist agent suspension",
			zap.String("agent_type", agentType),
			zap.Bool("suspended", suspended),
			zap.Error(err))
		return fmt.Errorf("suspension database error: %w", err)
	}

	// 2. L1 + L2
	m.mu.Lock()
	if suspended {
		m.suspended[agentType] = true
	} else {
		delete(m.suspended, agentType)
	}
	m.mu.Unlock()

	signal := "off"
	if suspended {
		signal = "on"
		m.rdb.SAdd(ctx, infra.RedisKeySuspendedAgents, agentType)
	} else {
		m.rdb.SRem(ctx, infra.RedisKeySuspendedAgents, agentType)
	}

	// 3. Real-time Signaling
	payload := fmt.Sprintf("%s:%s", agentType, signal)
	if err := m.rdb.Publish(ctx, infra.RedisChanAgentSuspend, payload).Err(); err != nil {
		m.logger.Warn("runtime signal delivery failed",
			zap.String("channel", infra.RedisChanAgentSuspend),
			zap.Error(err))
	} else {
		m.logger.Info("agent suspension updated",
			zap.String("agent_type", agentType),
			zap.Bool("suspended", suspended))
	}

	return nil
}
