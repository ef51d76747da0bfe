package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/registria/registria/internal/app"
	"github.com/registria/registria/internal/observability"
	"github.com/registria/registria/internal/platform/cache"
	"github.com/registria/registria/internal/platform/db"
	"github.com/registria/registria/internal/registry"
	"github.com/registria/registria/internal/rolereq"
	"github.com/registria/registria/internal/shared"
	"github.com/registria/registria/internal/vehicles"
	"github.com/registria/registria/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	admin, err := cfg.AdminAccount()
	if err != nil {
		logger.Error("parse bootstrap admin", slog.Any("error", err))
		os.Exit(1)
	}
	operator, err := cfg.Operator()
	if err != nil {
		logger.Error("parse operator account", slog.Any("error", err))
		os.Exit(1)
	}

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(dbpool)
	receiptRecorder := shared.NewReceiptRecorder(dbpool, logger)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)

	dispatcher, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init dispatcher", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dispatcher.Close(); err != nil {
			logger.Warn("dispatcher close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	membershipCache := registry.NewMembershipCache(redisClient, cfg.MembershipCacheTTL)
	registryRepo := registry.NewRepository(dbpool)
	registryService := registry.NewService(registryRepo, membershipCache, auditLogger, logger)
	if err := registryService.Bootstrap(ctx, registry.BootstrapConfig{Admin: admin, Operator: operator}); err != nil {
		logger.Error("bootstrap registry", slog.Any("error", err))
		os.Exit(1)
	}
	registryHandler := registry.NewHandler(logger, registryService)

	roleReqRepo := rolereq.NewRepository(dbpool)
	roleReqService := rolereq.NewService(roleReqRepo, registryService, operator, rolereq.ServiceConfig{
		Receipts:   receiptRecorder,
		Dispatcher: dispatcher,
		Audit:      auditLogger,
		Metrics:    metrics,
		Logger:     logger,
	})
	roleReqHandler := rolereq.NewHandler(logger, roleReqService, idempotencyStore, receiptRecorder)

	vehicleRepo := vehicles.NewRepository(dbpool)
	vehicleService := vehicles.NewService(vehicleRepo, registryService, vehicles.ServiceConfig{
		Receipts:   receiptRecorder,
		Dispatcher: dispatcher,
		Audit:      auditLogger,
		Metrics:    metrics,
		Logger:     logger,
	})
	vehicleHandler := vehicles.NewHandler(logger, vehicleService, idempotencyStore, receiptRecorder)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:              logger,
		Config:              cfg,
		RegistryHandler:     registryHandler,
		RoleRequestHandler:  roleReqHandler,
		RegistrationHandler: vehicleHandler,
		JobHandler:          jobHandler,
		Pool:                dbpool,
		Metrics:             metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logger.Error("server exit", slog.Any("error", err))
		os.Exit(1)
	}
}
