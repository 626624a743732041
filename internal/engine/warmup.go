package engine

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// WarmupCache прогревает кэш журналов для заданных демонов.
// Распределенная блокировка (SetNX) гарантирует, что прогрев делает только один инстанс.
// Возвращает число успешно загруженных журналов.
func WarmupCache(
	ctx context.Context,
	rdb *redis.Client,
	logger *zap.Logger,
	lockKey string,
	lockTTL time.Duration,
	ids []int,
	load func(ctx context.Context, demonID int) error,
) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	ok, err := rdb.SetNX(ctx, lockKey, "processing", lockTTL).Result()
	if err != nil {
		return 0, err
	}
	if !ok {
		logger.Debug("cache warm-up is already running elsewhere", zap.String("lock", lockKey))
		return 0, nil
	}

	logger.Info("warming up movement cache", zap.Int("count", len(ids)))

	loaded := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return loaded, ctx.Err()
		}
		if err := load(ctx, id); err != nil {
			logger.Warn("warm-up failed for demon", zap.Int("demon_id", id), zap.Error(err))
			continue
		}
		loaded++
	}
	return loaded, nil
}
