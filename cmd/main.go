package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/thesisdesk/thesisdesk-backend/internal/clients/redis"
	"github.com/thesisdesk/thesisdesk-backend/internal/data/repos/billing"
	"github.com/thesisdesk/thesisdesk-backend/internal/data/repos/project"
	"github.com/thesisdesk/thesisdesk-backend/internal/data/repos/switchreq"
	"github.com/thesisdesk/thesisdesk-backend/internal/data/repos/user"
	"github.com/thesisdesk/thesisdesk-backend/internal/db"
	"github.com/thesisdesk/thesisdesk-backend/internal/http/handlers"
	"github.com/thesisdesk/thesisdesk-backend/internal/observability"
	"github.com/thesisdesk/thesisdesk-backend/internal/platform/envutil"
	"github.com/thesisdesk/thesisdesk-backend/internal/platform/logger"
	"github.com/thesisdesk/thesisdesk-backend/internal/platform/sendgrid"
	"github.com/thesisdesk/thesisdesk-backend/internal/server"
	"github.com/thesisdesk/thesisdesk-backend/internal/services"
)

func main() {
	logMode := envutil.Get("LOG_MODE", "development")

	log, err := logger.New(logMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "thesisdesk-backend",
		Environment: logMode,
		Version:     envutil.Get("APP_VERSION", "dev"),
	})
	if otelShutdown != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Fatal("postgres init failed", "error", err)
	}
	if err := postgresService.AutoMigrateAll(); err != nil {
		log.Fatal("postgres migration failed", "error", err)
	}
	gormDB := postgresService.DB()

	cache, err := redis.NewCache(log)
	if err != nil {
		log.Warn("redis unavailable, progress reads go straight to postgres", "error", err)
		cache = redis.NewNoopCache()
	} else {
		defer cache.Close()
	}

	var notifier services.ReceiptNotifier
	if mailer, err := sendgrid.NewFromEnv(log); err != nil {
		log.Warn("sendgrid unavailable, receipts disabled", "error", err)
		notifier = services.NewNoopNotifier(log)
	} else {
		notifier = services.NewReceiptNotifier(log, mailer)
	}

	projectRepo := project.NewProjectRepo(gormDB, log)
	paymentRepo := billing.NewPaymentRepo(gormDB, log)
	userRepo := user.NewUserRepo(gormDB, log)
	switchRepo := switchreq.NewSwitchRequestRepo(gormDB, log)

	lockService := services.NewLockService(gormDB, log, projectRepo)
	projectService := services.NewProjectService(gormDB, log, projectRepo, lockService)
	progressService := services.NewProgressService(gormDB, log, projectRepo, cache)
	billingService := services.NewBillingService(gormDB, log, paymentRepo, projectRepo, userRepo, lockService, notifier, cache)
	switchService := services.NewTopicSwitchService(gormDB, log, switchRepo, lockService)

	router := server.NewRouter(server.RouterConfig{
		Log:                  log,
		HealthHandler:        handlers.NewHealthHandler(),
		ProjectHandler:       handlers.NewProjectHandler(log, projectService),
		ProgressHandler:      handlers.NewProgressHandler(log, progressService),
		PaymentHandler:       handlers.NewPaymentHandler(log, billingService),
		SwitchRequestHandler: handlers.NewSwitchRequestHandler(log, switchService),
	})

	addr := ":" + envutil.Get("PORT", "8080")
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("server listening", "addr", addr, "mode", logMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}
