package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xela07ax/demonlist-history/internal/connectors"
	"github.com/xela07ax/demonlist-history/internal/domain"
)

// MovementSource отдает журнал перемещений (HTTP-клиент, фикстуры).
type MovementSource interface {
	Movements(ctx context.Context, demonID int) ([]domain.AuditEvent, error)
}

// ReliabilityConfig задает параметры защиты вызовов upstream.
type ReliabilityConfig struct {
	Name          string
	RPS           float64
	Burst         int
	Attempts      uint
	CallTimeout   time.Duration
	CBMaxRequests uint32
	CBInterval    time.Duration
	CBTimeout     time.Duration
	CBFailures    uint32
}

func DefaultReliabilityConfig() ReliabilityConfig {
	return ReliabilityConfig{
		Name:          "pointercrate",
		RPS:           20,
		Burst:         5,
		Attempts:      3,
		CallTimeout:   10 * time.Second,
		CBMaxRequests: 3,
		CBInterval:    5 * time.Second,
		CBTimeout:     30 * time.Second,
		CBFailures:    5,
	}
}

// ReliableSource оборачивает MovementSource: Rate Limiter -> Circuit Breaker -> Retry.
type ReliableSource struct {
	next    MovementSource
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	cfg     ReliabilityConfig
	metrics *Metrics
	logger  *zap.Logger
}

func NewReliableSource(next MovementSource, cfg ReliabilityConfig, metrics *Metrics, logger *zap.Logger) *ReliableSource {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	logger = logger.Named("reliability").With(zap.String("upstream", cfg.Name))

	// Настройка предохранителя
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.CBMaxRequests,
		Interval:    cfg.CBInterval,
		Timeout:     cfg.CBTimeout, // Время, через которое CB попробует "закрыться"
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > cfg.CBFailures
		},
		// 404 — нормальный ответ, предохранитель от него не срабатывает
		IsSuccessful: func(err error) bool {
			return err == nil || isPermanent(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerGauge(to))
		},
	})
	metrics.CircuitBreakerState.WithLabelValues(cfg.Name).Set(0)

	return &ReliableSource{
		next:    next,
		cb:      cb,
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		cfg:     cfg,
		metrics: metrics,
		logger:  logger,
	}
}

func (w *ReliableSource) Movements(ctx context.Context, demonID int) ([]domain.AuditEvent, error) {
	start := time.Now()
	events, err := w.call(ctx, demonID)
	w.metrics.UpstreamDuration.Observe(time.Since(start).Seconds())
	w.metrics.UpstreamRequests.WithLabelValues(outcome(err)).Inc()
	return events, err
}

func (w *ReliableSource) call(ctx context.Context, demonID int) ([]domain.AuditEvent, error) {
	// 1. Rate Limiter
	if err := w.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %s: rate limit exceeded: %w", domain.ErrUpstreamUnavailable, w.cfg.Name, err)
	}

	// 2. Circuit Breaker
	cbResult, err := w.cb.Execute(func() (interface{}, error) {
		var (
			finalData []domain.AuditEvent
			lastErr   error
		)

		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(w.cfg.Attempts),
			retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
				// Upstream сам сказал, сколько ждать
				var tErr *connectors.ThrottleError
				if errors.As(err, &tErr) {
					return tErr.RetryAfter
				}
				return retry.BackOffDelay(n, err, config)
			}),
		)

		retryErr := r.Do(func() error {
			tCtx, cancel := context.WithTimeout(ctx, w.cfg.CallTimeout)
			defer cancel()

			var callErr error
			finalData, callErr = w.next.Movements(tCtx, demonID)
			lastErr = callErr
			if isPermanent(callErr) {
				return retry.Unrecoverable(callErr)
			}
			return callErr
		})

		if retryErr != nil {
			// Отдаем последнюю ошибку источника, а не агрегат retry: по ней делается errors.Is
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, retryErr
		}
		return finalData, nil
	})

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrUpstreamUnavailable, w.cfg.Name, err)
		}
		if isPermanent(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrUpstreamUnavailable, err)
	}

	return cbResult.([]domain.AuditEvent), nil
}

// State возвращает текущее состояние предохранителя.
func (w *ReliableSource) State() gobreaker.State {
	return w.cb.State()
}

func isPermanent(err error) bool {
	return errors.Is(err, domain.ErrDemonNotFound) || errors.Is(err, domain.ErrInvalidDemonID)
}

func outcome(err error) string {
	var tErr *connectors.ThrottleError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrDemonNotFound):
		return "not_found"
	case errors.As(err, &tErr):
		return "throttled"
	default:
		return "error"
	}
}

func breakerGauge(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 0.5
	default:
		return 0
	}
}
