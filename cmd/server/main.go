package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/gridwatch/queue-reliability/internal/auth"
	"github.com/gridwatch/queue-reliability/internal/cache"
	"github.com/gridwatch/queue-reliability/internal/config"
	"github.com/gridwatch/queue-reliability/internal/errors"
	"github.com/gridwatch/queue-reliability/internal/monitoring"
	"github.com/gridwatch/queue-reliability/internal/projectstore"
	"github.com/gridwatch/queue-reliability/internal/query"
	"github.com/gridwatch/queue-reliability/internal/ratelimit"
	"github.com/gridwatch/queue-reliability/internal/scorecard"
	"github.com/gridwatch/queue-reliability/internal/scoring"
	"github.com/gridwatch/queue-reliability/internal/security"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	store, err := projectstore.Open(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to open project store", "error", err, "path", cfg.DBPath)
		os.Exit(1)
	}
	defer store.Close()

	engine, err := scoring.NewEngine(cfg.Scoring)
	if err != nil {
		slog.Error("Failed to build scoring engine", "error", err)
		os.Exit(1)
	}

	appMetrics := monitoring.NewMetrics()
	appLogger := monitoring.NewLogger()
	appLogger.SetLevel(cfg.LogLevel)

	memoryMonitor := monitoring.NewMemoryMonitor(30*time.Second, appMetrics, appLogger)
	memoryMonitor.Start()

	srv := &server{
		queries: query.NewEngine(),
		builder: scorecard.NewBuilder(store, engine, cfg.BuildParallel),
		cache:   cache.NewCache(cfg.CacheTTL),
		metrics: appMetrics,
		logger:  appLogger,
	}

	// Score the population before accepting traffic. A failed startup
	// build is not fatal: the server comes up serving 503s until an
	// admin-triggered rebuild succeeds.
	if _, err := srv.rebuild(context.Background()); err != nil {
		slog.Error("Startup scoring cycle failed, serving not-ready until rebuild", "error", err)
	}

	r := newRouter(cfg, srv)

	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		slog.Info("Starting server", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	memoryMonitor.Stop()

	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server exited")
}

// newRouter assembles the middleware chain and routes. Health and the
// operational endpoints stay outside the authenticated group.
func newRouter(cfg *config.Config, srv *server) *gin.Engine {
	r := gin.New()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.AllowedOrigins
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, auth.HeaderAPIKey)
	r.Use(cors.New(corsConfig))

	r.Use(monitoring.MonitoringMiddleware(srv.metrics, srv.logger))
	r.Use(errors.ErrorHandler())
	r.Use(errors.RecoveryHandler())
	r.Use(security.HeadersMiddleware(cfg.EnableHSTS))

	r.GET("/health", srv.handleHealth)
	r.GET("/metrics", srv.handleMetrics)
	r.GET("/cache/stats", srv.handleCacheStats)

	limiter := ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerSecond: cfg.RateLimitRPS,
		Burst:             cfg.RateBurst,
	})

	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKeys))
	v1.Use(ratelimit.Middleware(limiter, srv.metrics))
	v1.Use(srv.cache.Middleware("/v1", srv.metrics, srv.logger))

	v1.GET("/developers", srv.handleListDevelopers)
	v1.GET("/developers/rankings", srv.handleRankings)
	v1.GET("/developers/compare", srv.handleCompare)
	v1.GET("/developers/:name", srv.handleGetDeveloper)
	v1.GET("/developers/:name/projects", srv.handleDeveloperProjects)
	v1.GET("/stats", srv.handleStats)
	v1.POST("/admin/rebuild", srv.handleRebuild)

	return r
}
