package infra

import "fmt"

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "sentinel"
)

// Ключи очереди эскалаций (состояние)
const (
	// RedisKeyEscalationPending — список transaction_id в ожидании ревью,
	// свежие в голове (LPUSH).
	RedisKeyEscalationPending = RedisNamespace + ":hitl:pending"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanHITLDecisions — канал для трансляции решений аналитика (HITL).
	RedisChanHITLDecisions = RedisNamespace + ":hitl:decisions"
)

// GetEscalationKey Генератор ключей записей эскалаций
func GetEscalationKey(transactionID string) string {
	return fmt.Sprintf("%s:hitl:escalation:%s", RedisNamespace, transactionID)
}
