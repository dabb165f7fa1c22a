package connectors

import (
	"fmt"
	"time"
)

// ThrottleError — агент попросил сбавить темп (HTTP 429 + Retry-After).
// Ретрай-политика уважает RetryAfter вместо стандартного бэкоффа.
type ThrottleError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("throttled: retry after %v (cause: %v)", e.RetryAfter, e.Cause)
}

func (e *ThrottleError) Unwrap() error { return e.Cause }

// TransportError — отказ доставки вызова агенту. После исчерпания ретраев
// поднимается наверх и засчитывается предохранителю как failure.
type TransportError struct {
	AgentType  string
	StatusCode int // 0 — сетевая ошибка без HTTP-статуса
	Cause      error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("agent %s transport failed [%d]: %v", e.AgentType, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("agent %s transport failed: %v", e.AgentType, e.Cause)
}

func (e *TransportError) Unwrap() error { return e.Cause }
