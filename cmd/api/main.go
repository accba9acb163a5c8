package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voicedesk/internal/agents"
	"voicedesk/internal/audit"
	"voicedesk/internal/auth"
	"voicedesk/internal/billing"
	"voicedesk/internal/calls"
	"voicedesk/internal/config"
	"voicedesk/internal/db"
	"voicedesk/internal/httpapi"
	"voicedesk/internal/reporting"
	"voicedesk/internal/telephony"
	"voicedesk/pkg/logger"
	"voicedesk/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	sqlDB, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer sqlDB.Close()

	if err := db.Migrate(rootCtx, sqlDB); err != nil {
		log.Error("migration failed", "err", err)
		os.Exit(1)
	}

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	provider := telephony.NewRetellProvider(cfg.Retell.BaseURL, cfg.Retell.APIKey)
	if err := provider.HealthCheck(rootCtx); err != nil {
		// Degraded start is acceptable; the provider may come back.
		log.Warn("call provider unreachable at boot", "err", err)
	}

	directory := agents.NewDirectory(provider, agents.RedisCache{RDB: rdb}, 0)

	billingSvc := billing.NewService(
		billing.NewPostgresStore(sqlDB),
		billing.NewStripeProcessor(cfg.Stripe.SecretKey, cfg.Stripe.CheckoutSuccessURL, cfg.Stripe.CheckoutCancelURL),
		billing.Settings{
			Currency:            cfg.Billing.Currency,
			SetupFeeMinor:       cfg.Billing.SetupFeeMinor,
			MonthlyFeeMinor:     cfg.Billing.MonthlyFeeMinor,
			BaseRatePerMinMinor: cfg.Billing.BaseRatePerMinMinor,
			UsageMultiplier:     cfg.Billing.UsageMultiplier,
		},
		log,
	)

	h := httpapi.Handlers{
		Auth:     authManager,
		Provider: provider,
		Agents:   directory,
		Calls:    calls.NewPostgresRepo(sqlDB),
		Billing:  billingSvc,
		Reports:  reporting.NewService(reporting.NewPostgresRepo(sqlDB)),
		Audit:    audit.NewService(audit.NewPostgresRepo(sqlDB)),

		Redis:              rdb,
		MaxConcurrentCalls: cfg.App.MaxConcurrentCalls,
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerAuthRoutes(r, h)
	registerRoutes(r, h, auth.RequireAccessToken(authManager))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
