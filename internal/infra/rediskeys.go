package infra

import (
	"fmt"
	"strconv"
)

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "demonlist"
)

const (
	RedisKeyLockWarmup = RedisNamespace + ":lock:warmup:movements"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanInvalidate — сигнал всем инстансам сбросить L1 для демона (payload: demon id).
	RedisChanInvalidate = RedisNamespace + ":movements:invalidate"
)

// MovementsKey — ключ L2-кэша журнала перемещений демона.
func MovementsKey(demonID int) string {
	return fmt.Sprintf("%s:movements:%d", RedisNamespace, demonID)
}

// ParseInvalidation разбирает payload сигнала инвалидации.
func ParseInvalidation(payload string) (int, error) {
	id, err := strconv.Atoi(payload)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid invalidation payload %q", payload)
	}
	return id, nil
}
