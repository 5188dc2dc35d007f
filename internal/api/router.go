package api

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/Harshitk-cp/chainwatch/internal/api/handlers"
	mw "github.com/Harshitk-cp/chainwatch/internal/api/middleware"
	"github.com/Harshitk-cp/chainwatch/internal/buildconfig"
	"github.com/Harshitk-cp/chainwatch/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Pinger reports database reachability for /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	DB        Pinger
	Agents    *service.AgentService
	Scheduler handlers.SchedulerControl
	Limiter   handlers.QuotaReader
	Logger    *zap.Logger

	// APIKey protects /v1 when set.
	APIKey         string
	RateLimitRPS   float64
	RateLimitBurst int
}

// App holds the router and the state behind /metrics.
type App struct {
	Router    *chi.Mux
	IPLimiter *mw.IPRateLimiter

	deps      Deps
	metrics   *mw.HTTPMetrics
	startTime time.Time
}

func NewApp(deps Deps) *App {
	r := chi.NewRouter()
	app := &App{
		Router:    r,
		IPLimiter: mw.NewIPRateLimiter(deps.RateLimitRPS, deps.RateLimitBurst),
		deps:      deps,
		metrics:   &mw.HTTPMetrics{},
		startTime: time.Now(),
	}

	agentHandler := handlers.NewAgentHandler(deps.Agents, deps.Scheduler, deps.Logger)
	schedHandler := handlers.NewSchedulerHandler(deps.Scheduler, deps.Logger)
	quotaHandler := handlers.NewRateLimitHandler(deps.Limiter)

	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(app.metrics.Middleware)
	r.Use(mw.Logging(deps.Logger))
	r.Use(middleware.Recoverer)
	r.Use(app.IPLimiter.Middleware)

	r.Get("/health", app.healthHandler())
	r.Get("/metrics", app.metricsHandler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(deps.APIKey))

		r.Route("/agents", func(r chi.Router) {
			r.Post("/", agentHandler.Create)
			r.Get("/", agentHandler.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", agentHandler.GetByID)
				r.Get("/alerts", agentHandler.ListAlerts)
				r.Post("/run", agentHandler.Run)
				r.Post("/pause", agentHandler.Pause)
				r.Post("/resume", agentHandler.Resume)
				r.Post("/reset", agentHandler.Reset)
			})
		})

		r.Route("/scheduler", func(r chi.Router) {
			r.Get("/stats", schedHandler.Stats)
			r.Post("/start", schedHandler.Start)
			r.Post("/stop", schedHandler.Stop)
			r.Post("/cycle", schedHandler.Cycle)
		})

		r.Get("/ratelimits", quotaHandler.List)
		r.Get("/ratelimits/{service}", quotaHandler.Get)
	})

	return app
}

func (app *App) healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"status":    "ok",
			"version":   buildconfig.Version(),
			"commit":    buildconfig.Commit(),
			"scheduler": app.deps.Scheduler.Stats().Running,
		}
		status := http.StatusOK
		if app.deps.DB != nil {
			if err := app.deps.DB.Ping(r.Context()); err != nil {
				resp["status"] = "error"
				resp["error"] = err.Error()
				status = http.StatusServiceUnavailable
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func (app *App) metricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(app.startTime)

		response := map[string]any{
			"uptime_seconds": uptime.Seconds(),
			"uptime_human":   uptime.Round(time.Second).String(),
			"http":           app.metrics.Snapshot(),
			"scheduler":      app.deps.Scheduler.Stats(),
			"goroutines":     runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb":       float64(memStats.Alloc) / 1024 / 1024,
				"total_alloc_mb": float64(memStats.TotalAlloc) / 1024 / 1024,
				"sys_mb":         float64(memStats.Sys) / 1024 / 1024,
				"num_gc":         memStats.NumGC,
			},
			"go_version": runtime.Version(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	}
}
