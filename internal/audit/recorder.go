package audit

/*
Файл recorder.go сохраняет полученные из upstream журналы перемещений в Postgres,
чтобы при недоступности upstream сервис мог отдать последнюю известную историю.

- Non-blocking: Record не ждет БД, события идут через буферизованный канал.
- Batching: пакетная запись по таймеру или при достижении BatchSize.
  Для одного демона в пачке остается только самый свежий снапшот.
- Drain Pattern: Stop закрывает канал, воркер вычитывает остаток и делает Final Flush.
*/

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/demonlist-history/internal/domain"
)

// StorageInterface определяет, куда физически будут сохраняться снапшоты
type StorageInterface interface {
	// WriteBatch сохраняет пачку снапшотов за один раз
	WriteBatch(ctx context.Context, snapshots []domain.MovementSnapshot) error
}

// Gauge: метрика заполненности буфера.
type Gauge interface {
	Set(float64)
}

type Options struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
	Fill          Gauge
}

type Recorder struct {
	ch       chan domain.MovementSnapshot
	repo     StorageInterface
	logger   *zap.Logger
	opts     Options
	wg       sync.WaitGroup
	isClosed atomic.Bool
	stopOnce sync.Once
}

func NewRecorder(repo StorageInterface, opts Options, logger *zap.Logger) *Recorder {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 1000
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = time.Second
	}
	return &Recorder{
		ch:     make(chan domain.MovementSnapshot, opts.BufferSize),
		repo:   repo,
		logger: logger.With(zap.String("mod", "recorder")),
		opts:   opts,
	}
}

func (r *Recorder) Start() {
	r.wg.Add(1)
	go r.worker()
}

// Stop «запирает» вход в канал и ждет, пока воркер всё допишет.
func (r *Recorder) Stop() {
	r.stopOnce.Do(func() {
		r.isClosed.Store(true)

		// Даем крошечную паузу, чтобы текущие Record успели проскочить
		time.Sleep(10 * time.Millisecond)

		r.logger.Info("stopping recorder: closing channel and flushing buffer...")
		close(r.ch)
		r.wg.Wait()
		r.logger.Info("recorder stopped gracefully")
	})
}

// Record ставит снапшот в очередь. При переполнении снапшот отбрасывается (Load Shedding):
// это кэш последней известной истории, а не источник правды.
func (r *Recorder) Record(snapshot domain.MovementSnapshot) bool {
	if snapshot.FetchedAt.IsZero() {
		snapshot.FetchedAt = time.Now()
	}

	if r.isClosed.Load() {
		r.logger.Warn("snapshot dropped: recorder is stopping", zap.Int("demon_id", snapshot.DemonID))
		return false
	}

	select {
	case r.ch <- snapshot:
		r.reportFill()
		return true
	default:
		r.logger.Error("recorder_buffer_overflow", zap.Int("demon_id", snapshot.DemonID))
		return false
	}
}

func (r *Recorder) reportFill() {
	if r.opts.Fill != nil {
		r.opts.Fill.Set(float64(len(r.ch)))
	}
}

func (r *Recorder) worker() {
	defer r.wg.Done()

	batch := make([]domain.MovementSnapshot, 0, r.opts.BatchSize)
	index := make(map[int]int, r.opts.BatchSize) // demon id -> позиция в batch
	ticker := time.NewTicker(r.opts.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// Используем Background, так как основной контекст может быть уже закрыт
		if err := r.repo.WriteBatch(context.Background(), batch); err != nil {
			r.logger.Error("snapshot flush failed", zap.Int("size", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
		clear(index)
		r.reportFill()
	}

	for {
		select {
		case snapshot, ok := <-r.ch:
			if !ok {
				// Канал закрыт в Stop(): остаток уже вычитан, делаем финальный сброс
				flush()
				r.logger.Info("recorder worker finished")
				return
			}
			if i, dup := index[snapshot.DemonID]; dup {
				batch[i] = snapshot
				continue
			}
			index[snapshot.DemonID] = len(batch)
			batch = append(batch, snapshot)
			if len(batch) >= r.opts.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
