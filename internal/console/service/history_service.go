package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xela07ax/demonlist-history/internal/domain"
	"github.com/xela07ax/demonlist-history/internal/engine"
	"github.com/xela07ax/demonlist-history/internal/history"
	"github.com/xela07ax/demonlist-history/internal/infra"
)

// MovementStore — чтение последнего сохраненного снапшота (fallback при недоступности upstream).
type MovementStore interface {
	Latest(ctx context.Context, demonID int) (domain.MovementSnapshot, error)
}

// SnapshotRecorder асинхронно пишет снапшоты.
type SnapshotRecorder interface {
	Record(snapshot domain.MovementSnapshot) bool
}

// MovementLog — журнал перемещений и откуда он взят.
type MovementLog struct {
	DemonID   int
	Events    []domain.AuditEvent
	FetchedAt time.Time
	Stale     bool // true — upstream недоступен, отдаем снапшот из Postgres
}

// HistoryResult: готовая таблица истории позиций.
type HistoryResult struct {
	DemonID          int                 `json:"demon_id"`
	ExtendedListSize int                 `json:"extended_list_size"`
	Stale            bool                `json:"stale"`
	FetchedAt        time.Time           `json:"fetched_at"`
	Rows             []domain.DisplayRow `json:"rows"`
}

// defaultFetchTimeout ограничивает общий запрос в upstream, если не задан SetFetchTimeout.
const defaultFetchTimeout = 30 * time.Second

type HistoryService struct {
	source   engine.MovementSource
	cache    *MovementCache
	store    MovementStore
	recorder SnapshotRecorder
	listInfo domain.ListInfo
	metrics  *engine.Metrics
	logger   *zap.Logger
	group    singleflight.Group
	now      func() time.Time

	fetchTimeout time.Duration
}

// NewHistoryService; store и recorder могут быть nil (режим без Postgres).
func NewHistoryService(
	source engine.MovementSource,
	cache *MovementCache,
	store MovementStore,
	recorder SnapshotRecorder,
	listInfo domain.ListInfo,
	metrics *engine.Metrics,
	logger *zap.Logger,
) *HistoryService {
	if metrics == nil {
		metrics = engine.NewMetrics(nil)
	}
	return &HistoryService{
		source:   source,
		cache:    cache,
		store:    store,
		recorder: recorder,
		listInfo: listInfo,
		metrics:  metrics,
		logger:   logger.Named("history-service"),
		now:      time.Now,

		fetchTimeout: defaultFetchTimeout,
	}
}

// SetFetchTimeout задает бюджет одного общего запроса в upstream (с учетом ретраев).
func (s *HistoryService) SetFetchTimeout(d time.Duration) {
	if d > 0 {
		s.fetchTimeout = d
	}
}

func (s *HistoryService) ListInfo() domain.ListInfo {
	return s.listInfo
}

// Movements возвращает журнал: L1 -> L2 -> upstream -> снапшот в Postgres.
func (s *HistoryService) Movements(ctx context.Context, demonID int) (MovementLog, error) {
	if demonID <= 0 {
		return MovementLog{}, domain.ErrInvalidDemonID
	}

	if cached, ok := s.cache.Get(ctx, demonID); ok {
		return MovementLog{DemonID: demonID, Events: cached.Events, FetchedAt: cached.FetchedAt}, nil
	}

	// Параллельные промахи по одному демону превращаются в один вызов upstream.
	// Запрос общий, поэтому живет на своем контексте: отмена у первого клиента
	// не должна ронять остальных ожидающих.
	ch := s.group.DoChan(strconv.Itoa(demonID), func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fetchTimeout)
		defer cancel()
		return s.fetch(fetchCtx, demonID)
	})
	select {
	case <-ctx.Done():
		return MovementLog{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return MovementLog{}, res.Err
		}
		return res.Val.(MovementLog), nil
	}
}

func (s *HistoryService) fetch(ctx context.Context, demonID int) (MovementLog, error) {
	events, err := s.source.Movements(ctx, demonID)
	if err == nil {
		fetchedAt := s.now()
		s.cache.Put(ctx, demonID, cachedLog{Events: events, FetchedAt: fetchedAt})
		if s.recorder != nil {
			s.recorder.Record(domain.MovementSnapshot{DemonID: demonID, Events: events, FetchedAt: fetchedAt})
		}
		return MovementLog{DemonID: demonID, Events: events, FetchedAt: fetchedAt}, nil
	}

	if errors.Is(err, domain.ErrDemonNotFound) || errors.Is(err, domain.ErrInvalidDemonID) || s.store == nil {
		return MovementLog{}, fmt.Errorf("history_service: demon %d: %w", demonID, err)
	}

	s.logger.Warn("upstream failed, falling back to stored snapshot",
		zap.Int("demon_id", demonID),
		zap.Error(err))

	snap, serr := s.store.Latest(ctx, demonID)
	if serr != nil {
		if !errors.Is(serr, domain.ErrSnapshotNotFound) {
			s.logger.Error("snapshot read failed", zap.Int("demon_id", demonID), zap.Error(serr))
		}
		s.metrics.CacheLookups.WithLabelValues("storage", "miss").Inc()
		return MovementLog{}, fmt.Errorf("history_service: demon %d: %w", demonID, err)
	}

	s.metrics.CacheLookups.WithLabelValues("storage", "hit").Inc()
	// Снапшот в кэш не кладем: следующий запрос снова попробует upstream
	return MovementLog{DemonID: demonID, Events: snap.Events, FetchedAt: snap.FetchedAt, Stale: true}, nil
}

// History строит таблицу истории позиций с учетом границы расширенного списка.
func (s *HistoryService) History(ctx context.Context, demonID int) (HistoryResult, error) {
	log, err := s.Movements(ctx, demonID)
	if err != nil {
		return HistoryResult{}, err
	}

	rows := history.NewProjector(s.listInfo.ExtendedListSize).Project(log.Events)
	s.metrics.ProjectedRows.Add(float64(len(rows)))

	return HistoryResult{
		DemonID:          demonID,
		ExtendedListSize: s.listInfo.ExtendedListSize,
		Stale:            log.Stale,
		FetchedAt:        log.FetchedAt,
		Rows:             rows,
	}, nil
}

// Chart строит данные графика позиции.
func (s *HistoryService) Chart(ctx context.Context, demonID int) (history.PositionChart, error) {
	log, err := s.Movements(ctx, demonID)
	if err != nil {
		return history.PositionChart{}, err
	}
	return history.Chart(log.Events, nil), nil
}

// Invalidate сбрасывает кэш демона на всех инстансах; следующий запрос пойдет в upstream.
func (s *HistoryService) Invalidate(ctx context.Context, demonID int) error {
	if demonID <= 0 {
		return domain.ErrInvalidDemonID
	}
	if err := s.cache.Invalidate(ctx, demonID); err != nil {
		return fmt.Errorf("history_service: invalidate demon %d: %w", demonID, err)
	}
	s.logger.Info("movement cache invalidated", zap.Int("demon_id", demonID))
	return nil
}

// Warm загружает журнал демона в кэш (используется прогревом при старте).
func (s *HistoryService) Warm(ctx context.Context, demonID int) error {
	_, err := s.Movements(ctx, demonID)
	return err
}

// Listen слушает сигналы инвалидации от других инстансов до отмены ctx.
func (s *HistoryService) Listen(ctx context.Context, rdb *redis.Client) {
	engine.ListenResilient(ctx, rdb, s.logger, infra.RedisChanInvalidate,
		func() error {
			s.cache.Reset()
			return nil
		},
		s.handleInvalidation,
	)
}

func (s *HistoryService) handleInvalidation(payload string) {
	demonID, err := infra.ParseInvalidation(payload)
	if err != nil {
		s.logger.Error("invalid signal format", zap.String("payload", payload))
		return
	}
	s.cache.Drop(demonID)
	s.logger.Debug("L1 entry dropped by signal", zap.Int("demon_id", demonID))
}
