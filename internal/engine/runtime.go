package engine

import (
	"sync"
	"time"

	"github.com/xela07ax/devit-dispatch-prototype/internal/domain"
)

// errorRingSize — емкость кольцевого буфера последних ошибок агента.
const errorRingSize = 10

// agentRuntime — владелец изменяемого состояния одного агента.
// Все мутации идут через его мьютекс: завершения задач конкурентны,
// но сериализуются на уровне агента, а не глобальной блокировкой.
type agentRuntime struct {
	desc    domain.AgentDescriptor
	breaker *AgentBreaker

	emaAlpha float64

	mu        sync.Mutex
	load      int
	total     uint64
	succeeded uint64
	failed    uint64

	emaLatencyMs float64
	emaSeeded    bool

	healthy   bool
	lastCheck time.Time
	errRing   []domain.AgentError
}

func newAgentRuntime(desc domain.AgentDescriptor, breaker *AgentBreaker, emaAlpha float64) *agentRuntime {
	return &agentRuntime{
		desc:     desc,
		breaker:  breaker,
		emaAlpha: emaAlpha,
		healthy:  true, // до первой проверки считаем агента живым
		errRing:  make([]domain.AgentError, 0, errorRingSize),
	}
}

// tryAcquire атомарно занимает слот, если агент не на пределе.
func (a *agentRuntime) tryAcquire() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.load >= a.desc.MaxConcurrent {
		return false
	}
	a.load++
	a.total++
	return true
}

func (a *agentRuntime) release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.load > 0 {
		a.load--
	}
}

func (a *agentRuntime) currentLoad() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.load
}

// breakerRef — безопасный доступ к предохранителю: restartAgent может
// заменить его на свежий (закрытый).
func (a *agentRuntime) breakerRef() *AgentBreaker {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.breaker
}

func (a *agentRuntime) resetBreaker(b *AgentBreaker) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.breaker = b
}

// recordOutcome фиксирует исход попытки: счетчики + EMA латентности.
// avg = α·sample + (1-α)·avg; первый сэмпл задает avg напрямую.
func (a *agentRuntime) recordOutcome(success bool, latency time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if success {
		a.succeeded++
	} else {
		a.failed++
	}

	sample := float64(latency.Milliseconds())
	if !a.emaSeeded {
		a.emaLatencyMs = sample
		a.emaSeeded = true
		return
	}
	a.emaLatencyMs = a.emaAlpha*sample + (1-a.emaAlpha)*a.emaLatencyMs
}

func (a *agentRuntime) avgLatencyMs() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.emaLatencyMs
}

func (a *agentRuntime) markHealth(healthy bool, at time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.healthy = healthy
	a.lastCheck = at
}

func (a *agentRuntime) isHealthy() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.healthy
}

// pushError добавляет запись в кольцо, вытесняя самую старую после 10.
func (a *agentRuntime) pushError(at time.Time, msg string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.errRing) >= errorRingSize {
		a.errRing = a.errRing[1:]
	}
	a.errRing = append(a.errRing, domain.AgentError{Timestamp: at, Message: msg})
}

// snapshot — консистентная копия состояния для API и событий.
func (a *agentRuntime) snapshot(suspended bool) domain.AgentStatus {
	a.mu.Lock()
	defer a.mu.Unlock()

	errs := make([]domain.AgentError, len(a.errRing))
	copy(errs, a.errRing)

	return domain.AgentStatus{
		Type:          a.desc.Type,
		Healthy:       a.healthy,
		Suspended:     suspended,
		LastCheck:     a.lastCheck,
		BreakerState:  a.breaker.StateString(),
		CurrentLoad:   a.load,
		MaxConcurrent: a.desc.MaxConcurrent,
		TotalTasks:    a.total,
		Succeeded:     a.succeeded,
		Failed:        a.failed,
		AvgLatencyMs:  a.emaLatencyMs,
		RecentErrors:  errs,
	}
}
