package connectors

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/xela07ax/devit-dispatch-prototype/internal/domain"
	"golang.org/x/time/rate"
)

// AgentCaller — транспорт, который оборачивает RetryingTransport.
type AgentCaller interface {
	Send(ctx context.Context, task domain.Task, agent domain.AgentDescriptor) (domain.TaskOutput, error)
}

// RetryPolicy — политика повторов транспорта.
// Намеренно независима от предохранителя: ретраи гасят короткие сетевые
// сбои внутри одной попытки диспетчеризации, предохранитель решает,
// пускать ли к агенту вообще.
type RetryPolicy struct {
	Attempts   uint          // всего попыток, включая первую
	BaseDelay  time.Duration // delay = BaseDelay * Multiplier^attempt
	MaxDelay   time.Duration // потолок бэкоффа
	Multiplier float64

	// Rate limit на исходящие вызовы агентов
	RPS   float64
	Burst int
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:   3,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   10 * time.Second,
		Multiplier: 2,
		RPS:        100,
		Burst:      20,
	}
}

// RetryingTransport — транспорт с экспоненциальным бэкоффом и лимитером.
type RetryingTransport struct {
	next    AgentCaller
	policy  RetryPolicy
	limiter *rate.Limiter
}

func NewRetryingTransport(next AgentCaller, policy RetryPolicy) *RetryingTransport {
	return &RetryingTransport{
		next:    next,
		policy:  policy,
		limiter: rate.NewLimiter(rate.Limit(policy.RPS), policy.Burst),
	}
}

func (t *RetryingTransport) Send(ctx context.Context, task domain.Task, agent domain.AgentDescriptor) (domain.TaskOutput, error) {
	// 1. Rate Limiter
	if err := t.limiter.Wait(ctx); err != nil {
		return domain.TaskOutput{}, fmt.Errorf("rate limit exceeded: %w", err)
	}

	var out domain.TaskOutput

	// 2. Retry с умным расчетом задержки
	r := retry.New(
		retry.Context(ctx),
		retry.Attempts(t.policy.Attempts),
		retry.DelayType(func(n uint, err error, _ retry.DelayContext) time.Duration {
			// Агент прислал Retry-After — уважаем его, а не свой бэкофф
			var tErr *ThrottleError
			if errors.As(err, &tErr) {
				return tErr.RetryAfter
			}
			return t.backoff(n)
		}),
	)

	retryErr := r.Do(func() error {
		var callErr error
		out, callErr = t.next.Send(ctx, task, agent)
		return callErr
	})

	if retryErr != nil {
		return domain.TaskOutput{}, retryErr
	}
	return out, nil
}

// backoff: delay = base · multiplier^n, с потолком MaxDelay.
func (t *RetryingTransport) backoff(n uint) time.Duration {
	delay := float64(t.policy.BaseDelay)
	for i := uint(0); i < n; i++ {
		delay *= t.policy.Multiplier
		if delay >= float64(t.policy.MaxDelay) {
			return t.policy.MaxDelay
		}
	}
	return time.Duration(delay)
}
