package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/devit-dispatch-prototype/internal/api/handler"
	"github.com/xela07ax/devit-dispatch-prototype/internal/api/server"
	"github.com/xela07ax/devit-dispatch-prototype/internal/audit"
	"github.com/xela07ax/devit-dispatch-prototype/internal/connectors"
	"github.com/xela07ax/devit-dispatch-prototype/internal/domain"
	"github.com/xela07ax/devit-dispatch-prototype/internal/engine"
	"github.com/xela07ax/devit-dispatch-prototype/internal/infra"
	"github.com/xela07ax/devit-dispatch-prototype/internal/infra/auth"
	"github.com/xela07ax/devit-dispatch-prototype/internal/repository/postgres"
)

func agentDescriptors(cfg *infra.Config) []domain.AgentDescriptor {
	descriptors := make([]domain.AgentDescriptor, 0, len(cfg.Agents))
	for _, a := range cfg.Agents {
		descriptors = append(descriptors, a.Descriptor())
	}
	return descriptors
}

func main() {
	// 1. Конфигурация и логгер
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	if len(cfg.Agents) == 0 {
		logger.Fatal("no agents configured: define agents in config.yaml")
	}

	// Контекст для управления жизненным циклом фоновых горутин
	// При SIGTERM cancel() остановит слушателей и циклы движка
	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Инфраструктура и ресурсы
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Persistence слой опционален: без БД движок работает в чистой памяти
	var (
		taskStore engine.TaskStore
		eventSubs []audit.Subscriber
		agentRepo *postgres.AgentRepo
	)
	if cfg.Database.URL != "" {
		taskRepo := postgres.NewTaskRepo(cfg.Database.URL)
		pingCtx, pingCancel := context.WithTimeout(appCtx, 5*time.Second)
		if err := taskRepo.Ping(pingCtx); err != nil {
			logger.Fatal("database unreachable", zap.Error(err))
		}
		pingCancel()

		taskStore = taskRepo
		eventSubs = append(eventSubs, postgres.NewEventRepo(cfg.Database.URL))
		agentRepo = postgres.NewAgentRepo(cfg.Database.URL)
	}
	eventSubs = append(eventSubs, audit.NewZapSink(logger))

	eventLog := audit.NewEventLog(audit.EventLogConfig{
		BufferSize:    cfg.Engine.EventBufferSize,
		FlushInterval: cfg.Engine.EventFlushInterval,
	}, logger, eventSubs...)
	eventLog.Start()
	defer eventLog.Stop()

	// 3. Control Plane (операторская приостановка агентов)
	var suspend *engine.SuspendManager
	if agentRepo != nil {
		suspend = engine.NewSuspendManager(rdb, agentRepo, logger)
		if err := suspend.Init(appCtx); err != nil {
			logger.Fatal("failed to init suspend manager", zap.Error(err))
		}
		go suspend.StartListener(appCtx)
	}

	// 4. Execution Layer (транспорт + надежность)
	httpAdapter := connectors.NewHTTPAdapter(cfg.Engine.CallTimeout)
	transport := connectors.NewRetryingTransport(httpAdapter, connectors.RetryPolicy{
		Attempts:   cfg.Engine.RetryAttempts,
		BaseDelay:  cfg.Engine.RetryBase,
		MaxDelay:   cfg.Engine.RetryMax,
		Multiplier: 2,
		RPS:        cfg.Engine.RateRPS,
		Burst:      cfg.Engine.RateBurst,
	})

	provisioner, err := connectors.NewWorkspaceProvisioner(cfg.Engine.SandboxBaseDir)
	if err != nil {
		logger.Fatal("failed to init workspace provisioner", zap.Error(err))
	}

	// Метрики
	reg := prometheus.NewRegistry()
	metrics := engine.NewMetrics(reg)

	// Экспортируем метрики для Prometheus
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		addr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
		logger.Info("metrics endpoint started", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()

	// 5. Core (сборка движка)
	engineCfg := engine.Config{
		Breaker: engine.BreakerConfig{
			FailureThreshold: cfg.Engine.CBFailureThreshold,
			RecoveryTimeout:  cfg.Engine.CBRecoveryTimeout,
			HalfOpenMaxCalls: cfg.Engine.CBHalfOpenMaxCalls,
		},
		MaxQueueSize: cfg.Engine.MaxQueueSize,
		QueueTimeout: cfg.Engine.QueueTimeout,
		Sandbox: engine.SandboxPoolConfig{
			MaxInstances:    cfg.Engine.SandboxMaxInstances,
			InstanceTimeout: cfg.Engine.SandboxTimeout,
			SweepInterval:   cfg.Engine.SandboxSweepInterval,
		},
		DrainInterval:   cfg.Engine.DrainInterval,
		HealthInterval:  cfg.Engine.HealthInterval,
		MetricsInterval: cfg.Engine.MetricsInterval,
		EMAAlpha:        cfg.Engine.EMAAlpha,
		RestartTimeout:  cfg.Engine.RestartTimeout,
		ShutdownTimeout: cfg.Engine.ShutdownTimeout,
	}

	core, err := engine.NewExecutionEngine(engineCfg, agentDescriptors(cfg), engine.Options{
		Transport:   transport,
		Probe:       connectors.NewHTTPHealthProbe(5 * time.Second),
		Provisioner: provisioner,
		Events:      eventLog,
		Store:       taskStore,
		Suspend:     suspend,
		Metrics:     metrics,
		Logger:      logger,
	})
	if err != nil {
		logger.Fatal("failed to build execution engine", zap.Error(err))
	}
	core.Start(appCtx)

	// 6. HTTP API
	var validator auth.TokenValidator
	if len(cfg.Auth.PublicKey) > 0 {
		pubKey, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
		if err != nil {
			logger.Fatal("failed to parse auth public key", zap.Error(err))
		}
		validator = auth.NewBaseValidator(pubKey)
	} else {
		logger.Warn("auth public key is not configured, API is open")
	}

	var suspender handler.Suspender
	if suspend != nil {
		suspender = suspend
	}
	api := server.NewDispatchServer(cfg, logger, validator,
		handler.NewTaskHandler(core, logger),
		handler.NewAgentHandler(core, suspender, logger),
		handler.NewStatsHandler(core),
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("dispatch API started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	// 7. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Engine.ShutdownTimeout+5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}
	core.Shutdown(shutdownCtx)
	cancel()
}
