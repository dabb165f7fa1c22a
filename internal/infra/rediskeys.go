package infra

import "fmt"

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "devit"
)

// Ключи для Sets (состояние)
const (
	RedisKeySuspendedAgents   = RedisNamespace + ":agents:suspended_set"
	RedisKeyLockWarmupSuspend = RedisNamespace + ":lock:warmup:suspended"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanAgentSuspend — канал сигналов приостановки агентов
	// (формат payload: "agent_type:status").
	RedisChanAgentSuspend = RedisNamespace + ":agents:suspend-signal"
)

// GetWarmupLockKey Генератор ключей для блокировок (если нужны динамические)
func GetWarmupLockKey(resource string) string {
	return fmt.Sprintf("%s:lock:warmup:%s", RedisNamespace, resource)
}
