package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ieu-analytics/event2table/pkg/cache"
	"github.com/ieu-analytics/event2table/pkg/config"
	"github.com/ieu-analytics/event2table/pkg/database"
	"github.com/ieu-analytics/event2table/pkg/handlers"
	"github.com/ieu-analytics/event2table/pkg/middleware"
	"github.com/ieu-analytics/event2table/pkg/repositories"
	"github.com/ieu-analytics/event2table/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("bind_addr", cfg.BindAddr),
		zap.String("port", cfg.Port),
		zap.String("database", cfg.Database.Host),
		zap.String("redis", cfg.Redis.Host),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Migrations run through database/sql; the application itself uses pgx
	// pools directly.
	migrationDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		logger.Fatal("Failed to open migration connection", zap.Error(err))
	}
	if err := database.RunMigrations(migrationDB, cfg.Database.MigrationsPath, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}
	_ = migrationDB.Close()

	db, err := database.NewConnection(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := database.NewRedisClient(&cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	var l2 cache.Store
	if redisClient != nil {
		l2 = cache.NewRedisStore(redisClient)
		defer func() { _ = redisClient.Close() }()
	} else {
		logger.Info("Redis not configured, cache runs L1-only")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	tiered, err := cache.New(cache.Config{
		L1Capacity: cfg.Cache.L1Capacity,
		StaticTTL:  cfg.Cache.StaticTTL,
		DynamicTTL: cfg.Cache.DynamicTTL,
		HQLTTL:     cfg.Cache.HQLTTL,
	}, l2, logger, registry)
	if err != nil {
		logger.Fatal("Failed to create cache", zap.Error(err))
	}

	gameRepo := repositories.NewGameRepository(db)
	eventRepo := repositories.NewEventRepository(db)
	paramRepo := repositories.NewParamRepository(db)
	flowRepo := repositories.NewFlowRepository(db)

	var historyRepo repositories.HistoryRepository
	if cfg.HQL.HistoryEnabled {
		historyRepo = repositories.NewHistoryRepository(db)
	}

	invalidator := services.NewCacheInvalidator(tiered, logger)
	catalogService := services.NewCatalogService(
		gameRepo, eventRepo, paramRepo, flowRepo,
		tiered, []services.CatalogObserver{invalidator}, logger,
	)
	generationService := services.NewGenerationService(catalogService, tiered, historyRepo, logger)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewCatalogHandler(catalogService, logger).RegisterRoutes(mux)
	handlers.NewHQLHandler(generationService, historyRepo, logger).RegisterRoutes(mux)
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              cfg.BindAddr + ":" + cfg.Port,
		Handler:           middleware.RequestLogger(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting event2table", zap.String("addr", server.Addr), zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
