package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Harshitk-cp/chainwatch/internal/api"
	"github.com/Harshitk-cp/chainwatch/internal/buildconfig"
	"github.com/Harshitk-cp/chainwatch/internal/config"
	"github.com/Harshitk-cp/chainwatch/internal/domain"
	"github.com/Harshitk-cp/chainwatch/internal/fetcher"
	"github.com/Harshitk-cp/chainwatch/internal/llm"
	"github.com/Harshitk-cp/chainwatch/internal/notifier"
	"github.com/Harshitk-cp/chainwatch/internal/ratelimit"
	"github.com/Harshitk-cp/chainwatch/internal/service"
	"github.com/Harshitk-cp/chainwatch/internal/store"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := config.Load(); err != nil {
		panic(err)
	}

	logger := newLogger(config.LogLevel())
	defer func() { _ = logger.Sync() }()

	dbURL := config.DatabaseURL()
	if dbURL == "" {
		logger.Fatal("DATABASE_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Fatal("failed to ping database", zap.Error(err))
	}
	if err := store.Migrate(ctx, pool); err != nil {
		logger.Fatal("failed to apply migrations", zap.Error(err))
	}
	logger.Info("connected to database")

	// Stores
	agentStore := store.NewAgentStore(pool, logger)
	snapshotStore := store.NewSnapshotStore(pool)
	alertStore := store.NewAlertStore(pool)

	// Outbound rate limiting
	limiterOpts := []ratelimit.Option{ratelimit.WithLogger(logger)}
	if !config.EnableRateLimiting() {
		limiterOpts = append(limiterOpts, ratelimit.Disabled())
	}
	limiter := ratelimit.New(ratelimit.DefaultServices(
		config.BitsCrunchRateLimitPerMinute(),
		config.BitsCrunchRateLimitPerMonth(),
	), limiterOpts...)

	// Collaborators
	var compiler domain.PlanCompiler
	compiler, err = llm.NewClient(config.LLMProvider(), config.LLMAPIKey(), limiter)
	if err != nil {
		logger.Warn("plan compiler unavailable, agent deploys disabled",
			zap.String("provider", config.LLMProvider()), zap.Error(err))
		compiler = nil
	} else {
		logger.Info("plan compiler initialized", zap.String("provider", config.LLMProvider()))
	}

	if config.BitsCrunchAPIKey() == "" {
		logger.Warn("BITSCRUNCH_API_KEY not set, metric fetches will be rejected upstream")
	}
	metrics := fetcher.NewClient(config.BitsCrunchAPIKey(), config.BitsCrunchBaseURL(), limiter, logger)

	var delivery domain.Notifier
	if token := config.TelegramBotToken(); token != "" {
		tg, err := notifier.NewTelegram(notifier.TelegramConfig{
			Token:         token,
			DefaultChatID: config.TelegramChatID(),
		}, limiter, logger)
		if err != nil {
			logger.Fatal("failed to initialize telegram notifier", zap.Error(err))
		}
		delivery = tg
	} else {
		logger.Warn("TELEGRAM_BOT_TOKEN not set, alerts will only be logged")
		delivery = notifier.NewLog(logger)
	}
	delivery = notifier.NewRecording(delivery, alertStore, logger)

	// Services
	agentSvc := service.NewAgentService(agentStore, alertStore, compiler)
	agentSvc.SetDefaults(config.DefaultScheduleInterval(), config.DefaultMaxRetries())

	evaluator := service.NewEvaluator(service.SeverityPolicy{
		HighRatio:     config.SeverityHighRatio(),
		CriticalRatio: config.SeverityCriticalRatio(),
	})
	scheduler := service.NewScheduler(agentStore, snapshotStore, metrics, delivery, evaluator, logger,
		service.SchedulerConfig{
			CheckInterval: config.CheckInterval(),
			ErrorBackoff:  config.SchedulerErrorBackoff(),
			MaxConcurrent: config.MaxConcurrentAgents(),
			RunTimeout:    config.AgentRunTimeout(),
		})

	app := api.NewApp(api.Deps{
		DB:             pool,
		Agents:         agentSvc,
		Scheduler:      scheduler,
		Limiter:        limiter,
		Logger:         logger,
		APIKey:         config.APIKey(),
		RateLimitRPS:   config.RateLimitRPS(),
		RateLimitBurst: config.RateLimitBurst(),
	})
	go app.IPLimiter.RunSweeper(ctx, 10*time.Minute)

	if config.SchedulerAutostart() {
		if err := scheduler.Start(); err != nil {
			logger.Fatal("failed to start scheduler", zap.Error(err))
		}
	}

	addr := config.ServerAddr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting",
			zap.String("addr", addr),
			zap.String("version", buildconfig.Version()),
			zap.String("commit", buildconfig.Commit()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	// In-flight agent runs finish before the pool closes.
	if scheduler.IsRunning() {
		_ = scheduler.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

func newLogger(level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
