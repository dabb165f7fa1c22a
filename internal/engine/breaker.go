package engine

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerConfig — настройки предохранителя, одинаковые для всех агентов.
type BreakerConfig struct {
	// FailureThreshold — сколько ошибок подряд выбивает предохранитель.
	FailureThreshold uint32
	// RecoveryTimeout — через сколько open лениво переходит в half_open.
	RecoveryTimeout time.Duration
	// HalfOpenMaxCalls — бюджет пробных вызовов в half_open; столько же
	// успехов подряд закрывает предохранитель. Конфигурируемо, не захардкожено.
	HalfOpenMaxCalls uint32
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
		HalfOpenMaxCalls: 3,
	}
}

// AgentBreaker — предохранитель одного агента поверх gobreaker.
// Two-step режим разделяет проверку допуска (Acquire при диспетчеризации)
// и фиксацию исхода (settle-callback ровно один раз на попытку).
type AgentBreaker struct {
	agentType string
	cb        *gobreaker.TwoStepCircuitBreaker
}

// NewAgentBreaker создает предохранитель. onChange вызывается при каждом
// переходе состояния — туда вешаются события и метрики.
func NewAgentBreaker(agentType string, cfg BreakerConfig, onChange func(agentType string, from, to gobreaker.State)) *AgentBreaker {
	settings := gobreaker.Settings{
		Name:        agentType,
		MaxRequests: cfg.HalfOpenMaxCalls,
		// Interval=0: счетчик ошибок в closed не сбрасывается по таймеру,
		// только успехом или сменой состояния.
		Interval: 0,
		Timeout:  cfg.RecoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
	}
	if onChange != nil {
		settings.OnStateChange = func(_ string, from, to gobreaker.State) {
			onChange(agentType, from, to)
		}
	}

	return &AgentBreaker{
		agentType: agentType,
		cb:        gobreaker.NewTwoStepCircuitBreaker(settings),
	}
}

// Allows — быстрая проверка для фильтра маршрутизатора, без побочных
// эффектов на счетчики. Чтение состояния лениво переводит open → half_open
// по истечении RecoveryTimeout.
func (b *AgentBreaker) Allows() bool {
	return b.cb.State() != gobreaker.StateOpen
}

// Acquire резервирует попытку вызова. Возвращенный settle обязан быть
// вызван ровно один раз по завершении попытки: settle(true) — успех,
// settle(false) — отказ (в half_open немедленно возвращает open).
func (b *AgentBreaker) Acquire() (settle func(success bool), err error) {
	done, err := b.cb.Allow()
	if err != nil {
		// И open, и исчерпанный бюджет half_open для вызывающего одно и то же:
		// агент сейчас недоступен через предохранитель.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &CircuitOpenError{AgentType: b.agentType}
		}
		return nil, err
	}
	return done, nil
}

// StateString — представление для статусов и событий.
func (b *AgentBreaker) StateString() string {
	switch b.cb.State() {
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// FailureCount — текущее число ошибок подряд (для Observability).
func (b *AgentBreaker) FailureCount() uint32 {
	return b.cb.Counts().ConsecutiveFailures
}
