package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/devit-dispatch-prototype/internal/audit"
	"go.uber.org/zap"
)

// SandboxHandle — ссылка на подготовленную рабочую среду задачи.
type SandboxHandle struct {
	Key       string `json:"key"`
	Workspace string `json:"workspace"` // путь/идентификатор изолированной среды
}

// SandboxSpec — параметры, с которыми провижинер готовит среду.
type SandboxSpec struct {
	AgentType string `json:"agent_type"`
	TaskType  string `json:"task_type"`
}

// SandboxProvisioner — внешний коллаборатор, который физически создает и
// уничтожает изолированные среды. Пул только управляет их жизненным циклом.
type SandboxProvisioner interface {
	Create(ctx context.Context, key string, spec SandboxSpec) (SandboxHandle, error)
	Destroy(ctx context.Context, key string) error
}

type sandboxStatus string

const (
	sandboxProvisioning sandboxStatus = "provisioning"
	sandboxReady        sandboxStatus = "ready"
	sandboxDestroying   sandboxStatus = "destroying"
)

// sandboxInstance — одна среда, привязанная ровно к одному ключу (= task id).
// Канал ready закрывается по завершении provisioning: это и есть
// per-key guard — конкурентные GetOrCreate того же ключа ждут одного создания.
type sandboxInstance struct {
	key       string
	handle    SandboxHandle
	createdAt time.Time
	lastUsed  time.Time
	status    sandboxStatus

	ready chan struct{}
	err   error
}

// SandboxPoolConfig — границы пула.
type SandboxPoolConfig struct {
	MaxInstances    int
	InstanceTimeout time.Duration // простой, после которого среду забирает sweep
	SweepInterval   time.Duration
}

// SandboxPool — ограниченный пул эфемерных сред с LRU-вытеснением.
// Инвариант: живых инстансов не больше MaxInstances; при создании нового
// поверх полного пула вытесняется ровно одна, самая давно не использованная.
type SandboxPool struct {
	cfg         SandboxPoolConfig
	provisioner SandboxProvisioner
	events      EventSink
	logger      *zap.Logger

	mu        sync.Mutex
	instances map[string]*sandboxInstance
	now       func() time.Time
}

func NewSandboxPool(cfg SandboxPoolConfig, provisioner SandboxProvisioner, events EventSink, logger *zap.Logger) *SandboxPool {
	return &SandboxPool{
		cfg:         cfg,
		provisioner: provisioner,
		events:      events,
		logger:      logger.With(zap.String("mod", "sandbox-pool")),
		instances:   make(map[string]*sandboxInstance),
		now:         time.Now,
	}
}

// GetOrCreate возвращает среду по ключу, создавая ее при отсутствии.
// Гарантии: на один ключ в любой момент максимум одно provisioning в полете
// (проигравшие гонку ждут результат победителя, а не создают дубль), а в
// лимит пула входят и создаваемые среды — конкурентные запросы с разными
// ключами не раздувают пул выше MaxInstances.
func (p *SandboxPool) GetOrCreate(ctx context.Context, key string, spec SandboxSpec) (SandboxHandle, error) {
	for {
		p.mu.Lock()

		if inst, ok := p.instances[key]; ok && inst.status != sandboxDestroying {
			inst.lastUsed = p.now()
			p.mu.Unlock()
			return p.await(ctx, inst)
		}

		if p.cfg.MaxInstances <= 0 || len(p.instances) < p.cfg.MaxInstances {
			return p.provision(ctx, key, spec, "")
		}

		// Полный пул: вытесняем ровно одного готового LRU.
		if evictKey := p.lruKeyLocked(); evictKey != "" {
			return p.provision(ctx, key, spec, evictKey)
		}

		// Все места заняты идущими provisioning — вытеснять нечего.
		// Ждем ближайший исход (успех даст LRU-кандидата, отказ освободит
		// место) и пробуем снова.
		var settling chan struct{}
		for _, inst := range p.instances {
			if inst.status == sandboxProvisioning {
				settling = inst.ready
				break
			}
		}
		p.mu.Unlock()

		select {
		case <-settling:
		case <-ctx.Done():
			return SandboxHandle{}, ctx.Err()
		}
	}
}

// provision создает среду под новый ключ. Вызывается под mu и сам его
// отпускает; слот в пуле резервируется до разблокировки, поэтому лимит
// не пробивается конкурентными создателями.
func (p *SandboxPool) provision(ctx context.Context, key string, spec SandboxSpec, evictKey string) (SandboxHandle, error) {
	inst := &sandboxInstance{
		key:       key,
		createdAt: p.now(),
		lastUsed:  p.now(),
		status:    sandboxProvisioning,
		ready:     make(chan struct{}),
	}
	p.instances[key] = inst

	if evictKey != "" {
		evicted := p.instances[evictKey]
		evicted.status = sandboxDestroying
		delete(p.instances, evictKey)
		p.mu.Unlock()
		p.destroyInstance(ctx, evictKey, "lru_evicted")
	} else {
		p.mu.Unlock()
	}

	handle, err := p.provisioner.Create(ctx, key, spec)

	p.mu.Lock()
	if err != nil {
		inst.err = &SandboxProvisionError{Key: key, Err: err}
		delete(p.instances, key)
		close(inst.ready)
		p.mu.Unlock()
		return SandboxHandle{}, inst.err
	}
	inst.handle = handle
	inst.status = sandboxReady
	inst.lastUsed = p.now()
	close(inst.ready)
	p.mu.Unlock()

	p.emit(audit.EventSandboxCreated, key, map[string]interface{}{
		"workspace":  handle.Workspace,
		"agent_type": spec.AgentType,
	})
	return handle, nil
}

// await дожидается завершения provisioning чужого инстанса.
func (p *SandboxPool) await(ctx context.Context, inst *sandboxInstance) (SandboxHandle, error) {
	select {
	case <-inst.ready:
	case <-ctx.Done():
		return SandboxHandle{}, ctx.Err()
	}
	if inst.err != nil {
		return SandboxHandle{}, inst.err
	}
	return inst.handle, nil
}

// lruKeyLocked находит единственного кандидата на вытеснение.
// Вызывается под mu.
func (p *SandboxPool) lruKeyLocked() string {
	var (
		oldestKey  string
		oldestUsed time.Time
	)
	for key, inst := range p.instances {
		if inst.status != sandboxReady {
			continue // идущее provisioning не вытесняем
		}
		if oldestKey == "" || inst.lastUsed.Before(oldestUsed) {
			oldestKey = key
			oldestUsed = inst.lastUsed
		}
	}
	return oldestKey
}

// Destroy освобождает среду. Идемпотентно: отсутствие ключа — no-op,
// ошибки провижинера поглощаются и не доходят до вызывающего.
func (p *SandboxPool) Destroy(ctx context.Context, key string) {
	p.mu.Lock()
	inst, ok := p.instances[key]
	if !ok || inst.status == sandboxDestroying {
		p.mu.Unlock()
		return
	}
	inst.status = sandboxDestroying
	delete(p.instances, key)
	p.mu.Unlock()

	p.destroyInstance(ctx, key, "released")
}

func (p *SandboxPool) destroyInstance(ctx context.Context, key, reason string) {
	if err := p.provisioner.Destroy(ctx, key); err != nil {
		// Cleanup — best-effort: фиксируем в логе, наружу не отдаем
		p.logger.Warn("sandbox destroy failed",
			zap.String("key", key),
			zap.String("reason", reason),
			zap.Error(err))
	}
	p.emit(audit.EventSandboxDestroyed, key, map[string]interface{}{"reason": reason})
}

// StartSweeper запускает фоновую уборку простаивающих сред.
// Паника одного тика не валит остальные циклы.
func (p *SandboxPool) StartSweeper(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.sweep(ctx)
		}
	}
}

func (p *SandboxPool) sweep(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("sandbox sweep panic recovered", zap.Any("panic", r))
		}
	}()

	now := p.now()
	var idle []string

	p.mu.Lock()
	for key, inst := range p.instances {
		if inst.status == sandboxReady && now.Sub(inst.lastUsed) > p.cfg.InstanceTimeout {
			inst.status = sandboxDestroying
			delete(p.instances, key)
			idle = append(idle, key)
		}
	}
	p.mu.Unlock()

	for _, key := range idle {
		p.destroyInstance(ctx, key, "idle_timeout")
	}
	if len(idle) > 0 {
		p.logger.Info("idle sandboxes reclaimed", zap.Int("count", len(idle)))
	}
}

// ReleaseAll уничтожает все среды (shutdown).
func (p *SandboxPool) ReleaseAll(ctx context.Context) {
	p.mu.Lock()
	keys := make([]string, 0, len(p.instances))
	for key, inst := range p.instances {
		inst.status = sandboxDestroying
		keys = append(keys, key)
	}
	p.instances = make(map[string]*sandboxInstance)
	p.mu.Unlock()

	for _, key := range keys {
		p.destroyInstance(ctx, key, "shutdown")
	}
}

func (p *SandboxPool) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.instances)
}

func (p *SandboxPool) emit(t audit.EventType, key string, detail map[string]interface{}) {
	if p.events == nil {
		return
	}
	p.events.Log(audit.DispatchEvent{
		ID:        uuid.New().String(),
		Type:      t,
		TaskID:    key,
		Detail:    detail,
		Timestamp: p.now(),
	})
}
