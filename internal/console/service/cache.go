package service

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/demonlist-history/internal/domain"
	"github.com/xela07ax/demonlist-history/internal/engine"
	"github.com/xela07ax/demonlist-history/internal/infra"
)

// cachedLog лежит в L1 и в Redis.
type cachedLog struct {
	Events    []domain.AuditEvent `json:"events"`
	FetchedAt time.Time           `json:"fetched_at"`
}

type l1Entry struct {
	log     cachedLog
	expires time.Time
}

// MovementCache — двухуровневый кэш журналов: L1 (RAM инстанса) и L2 (Redis, общий).
// Инвалидация рассылается через Pub/Sub, каждый инстанс сбрасывает свой L1.
type MovementCache struct {
	mu      sync.RWMutex
	l1      map[int]l1Entry
	rdb     *redis.Client
	ttl     time.Duration
	metrics *engine.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

func NewMovementCache(rdb *redis.Client, ttl time.Duration, metrics *engine.Metrics, logger *zap.Logger) *MovementCache {
	if metrics == nil {
		metrics = engine.NewMetrics(nil)
	}
	return &MovementCache{
		l1:      make(map[int]l1Entry),
		rdb:     rdb,
		ttl:     ttl,
		metrics: metrics,
		logger:  logger.Named("movement-cache"),
		now:     time.Now,
	}
}

// Get ищет журнал сначала в L1, потом в L2. Ошибки Redis — это промах, а не отказ.
func (c *MovementCache) Get(ctx context.Context, demonID int) (cachedLog, bool) {
	c.mu.RLock()
	entry, ok := c.l1[demonID]
	c.mu.RUnlock()

	if ok && c.now().Before(entry.expires) {
		c.metrics.CacheLookups.WithLabelValues("l1", "hit").Inc()
		return entry.log, true
	}
	c.metrics.CacheLookups.WithLabelValues("l1", "miss").Inc()

	if c.rdb == nil {
		return cachedLog{}, false
	}

	raw, err := c.rdb.Get(ctx, infra.MovementsKey(demonID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("redis read failed", zap.Int("demon_id", demonID), zap.Error(err))
		}
		c.metrics.CacheLookups.WithLabelValues("l2", "miss").Inc()
		return cachedLog{}, false
	}

	var log cachedLog
	if err := json.Unmarshal(raw, &log); err != nil {
		c.logger.Warn("corrupted cache entry", zap.Int("demon_id", demonID), zap.Error(err))
		c.metrics.CacheLookups.WithLabelValues("l2", "miss").Inc()
		return cachedLog{}, false
	}

	c.metrics.CacheLookups.WithLabelValues("l2", "hit").Inc()
	c.putL1(demonID, log)
	return log, true
}

// Put кладет журнал в оба уровня. Ошибка записи в Redis только логируется.
func (c *MovementCache) Put(ctx context.Context, demonID int, log cachedLog) {
	c.putL1(demonID, log)

	if c.rdb == nil {
		return
	}
	raw, err := json.Marshal(log)
	if err != nil {
		c.logger.Error("cache encode failed", zap.Int("demon_id", demonID), zap.Error(err))
		return
	}
	if err := c.rdb.Set(ctx, infra.MovementsKey(demonID), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("redis write failed", zap.Int("demon_id", demonID), zap.Error(err))
	}
}

func (c *MovementCache) putL1(demonID int, log cachedLog) {
	c.mu.Lock()
	c.l1[demonID] = l1Entry{log: log, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

// Drop сбрасывает только локальный L1.
func (c *MovementCache) Drop(demonID int) {
	c.mu.Lock()
	delete(c.l1, demonID)
	c.mu.Unlock()
}

// Reset полностью очищает L1 (после переподключения к Pub/Sub сигналы могли потеряться).
func (c *MovementCache) Reset() {
	c.mu.Lock()
	clear(c.l1)
	c.mu.Unlock()
}

// Invalidate удаляет журнал из L1 и L2 и оповещает остальные инстансы.
func (c *MovementCache) Invalidate(ctx context.Context, demonID int) error {
	c.Drop(demonID)
	if c.rdb == nil {
		return nil
	}

	// 1. Persistence Layer (L2)
	if err := c.rdb.Del(ctx, infra.MovementsKey(demonID)).Err(); err != nil {
		return err
	}

	// 2. Real-time Signaling
	if err := c.rdb.Publish(ctx, infra.RedisChanInvalidate, strconv.Itoa(demonID)).Err(); err != nil {
		c.logger.Warn("invalidation signal delivery failed",
			zap.Int("demon_id", demonID),
			zap.String("channel", infra.RedisChanInvalidate),
			zap.Error(err))
	}
	return nil
}
