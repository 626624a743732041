package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/xela07ax/demonlist-history/internal/audit"
	"github.com/xela07ax/demonlist-history/internal/connectors"
	"github.com/xela07ax/demonlist-history/internal/console/handler"
	"github.com/xela07ax/demonlist-history/internal/console/server"
	"github.com/xela07ax/demonlist-history/internal/console/service"
	"github.com/xela07ax/demonlist-history/internal/domain"
	"github.com/xela07ax/demonlist-history/internal/engine"
	"github.com/xela07ax/demonlist-history/internal/infra"
	"github.com/xela07ax/demonlist-history/internal/infra/auth"
	"github.com/xela07ax/demonlist-history/internal/repository/postgres"
)

const serviceName = "demonlist.history.v1.HistoryService"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "historyd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Конфигурация и логгер
	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	// Контекст для управления жизненным циклом фоновых горутин
	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Метрики на отдельном порту
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := engine.NewMetrics(reg)

	metricsSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	// 3. Redis: L2 кэш и Pub/Sub инвалидаций
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	pingCtx, pingCancel := context.WithTimeout(appCtx, 3*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unreachable, L2 cache degraded", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
	}
	pingCancel()

	// 4. Postgres: снапшоты журналов (опционально)
	var (
		store    service.MovementStore
		recorder *audit.Recorder
	)
	if cfg.Database.URL != "" {
		repo, err := postgres.NewMovementRepo(cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			return fmt.Errorf("init movement repo: %w", err)
		}
		defer repo.Close()

		dbCtx, dbCancel := context.WithTimeout(appCtx, 5*time.Second)
		err = repo.Ping(dbCtx)
		if err == nil {
			err = repo.EnsureSchema(dbCtx)
		}
		dbCancel()
		if err != nil {
			return fmt.Errorf("database unreachable: %w", err)
		}

		recorder = audit.NewRecorder(repo, audit.Options{
			BufferSize:    cfg.Recorder.BufferSize,
			BatchSize:     cfg.Recorder.BatchSize,
			FlushInterval: cfg.Recorder.FlushInterval,
			Fill:          metrics.RecorderBufferFill,
		}, logger)
		recorder.Start()
		store = repo
	} else {
		logger.Warn("database.url is empty, snapshot fallback disabled")
	}

	// 5. Execution Layer: клиент upstream + Rate Limiter / Circuit Breaker / Retry
	client := connectors.NewPointercrateClient(cfg.Upstream.BaseURL, cfg.Upstream.Timeout, logger)
	source := engine.NewReliableSource(client, engine.ReliabilityConfig{
		Name:          "pointercrate",
		RPS:           cfg.Upstream.RPS,
		Burst:         cfg.Upstream.Burst,
		Attempts:      cfg.Upstream.Attempts,
		CallTimeout:   cfg.Upstream.Timeout,
		CBMaxRequests: cfg.Upstream.CBMaxRequests,
		CBInterval:    cfg.Upstream.CBInterval,
		CBTimeout:     cfg.Upstream.CBTimeout,
		CBFailures:    cfg.Upstream.CBFailures,
	}, metrics, logger)

	listInfo := resolveListInfo(appCtx, client, cfg, logger)

	// 6. Сервис истории
	var recorderDep service.SnapshotRecorder
	if recorder != nil {
		recorderDep = recorder
	}
	cache := service.NewMovementCache(rdb, cfg.Cache.TTL, metrics, logger)
	historySvc := service.NewHistoryService(source, cache, store, recorderDep, listInfo, metrics, logger)
	// Бюджет общего запроса: все попытки upstream плюс запас на бэкофф
	historySvc.SetFetchTimeout(time.Duration(cfg.Upstream.Attempts)*cfg.Upstream.Timeout + 5*time.Second)

	listenerDone := make(chan struct{})
	go func() {
		defer close(listenerDone)
		historySvc.Listen(appCtx, rdb)
	}()

	if len(cfg.Cache.WarmupIDs) > 0 {
		go func() {
			n, err := engine.WarmupCache(appCtx, rdb, logger, infra.RedisKeyLockWarmup,
				cfg.Cache.WarmupLock, cfg.Cache.WarmupIDs, historySvc.Warm)
			if err != nil {
				logger.Warn("cache warmup skipped", zap.Error(err))
				return
			}
			logger.Info("cache warmup finished", zap.Int("loaded", n))
		}()
	}

	// 7. Проверка токенов для служебных роутов
	var validator auth.TokenValidator
	if len(cfg.Auth.PublicKey) > 0 {
		pub, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
		if err != nil {
			return fmt.Errorf("auth public key: %w", err)
		}
		validator = auth.NewBaseValidator(pub, "")
	}

	// 8. HTTP Server
	api := server.NewHistoryServer(logger, metrics, validator, cfg.Auth.RequiredScope,
		handler.NewHistoryHandler(historySvc, logger))
	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 9. gRPC health для балансировщиков
	grpcSrv := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, healthSrv)
	healthSrv.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPC.Port))
	if err != nil {
		return fmt.Errorf("listen gRPC: %w", err)
	}
	go func() {
		logger.Info("gRPC health server started", zap.Int("port", cfg.GRPC.Port))
		if err := grpcSrv.Serve(lis); err != nil {
			logger.Error("gRPC server failed", zap.Error(err))
		}
	}()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("history API started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// 10. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case <-stop:
	case err := <-serveErr:
		logger.Error("http server failed", zap.Error(err))
	}
	logger.Info("history API stopping...")

	healthSrv.Shutdown()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", zap.Error(err))
	}
	grpcSrv.GracefulStop()
	_ = metricsSrv.Shutdown(shutdownCtx)

	cancel()
	<-listenerDone

	// Дописываем остаток буфера снапшотов
	if recorder != nil {
		recorder.Stop()
	}
	logger.Info("history API exited properly")
	return nil
}

// resolveListInfo берет размеры списка из upstream, при ошибке — из конфига.
func resolveListInfo(ctx context.Context, client *connectors.PointercrateClient, cfg *infra.Config, logger *zap.Logger) domain.ListInfo {
	fallback := domain.ListInfo{
		ListSize:         cfg.Demonlist.ListSize,
		ExtendedListSize: cfg.Demonlist.ExtendedListSize,
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	info, err := client.ListInfo(ctx)
	if err != nil || info.ExtendedListSize <= 0 {
		logger.Warn("list information unavailable, using configured sizes",
			zap.Int("extended_list_size", fallback.ExtendedListSize),
			zap.Error(err))
		return fallback
	}
	logger.Info("list information loaded",
		zap.Int("list_size", info.ListSize),
		zap.Int("extended_list_size", info.ExtendedListSize))
	return info
}
