// Command api runs the fraud scoring HTTP service.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/sentinelpay/fraud-scoring-backend/internal/api/rest"
	"github.com/sentinelpay/fraud-scoring-backend/internal/infrastructure/cache"
	"github.com/sentinelpay/fraud-scoring-backend/internal/infrastructure/config"
	"github.com/sentinelpay/fraud-scoring-backend/internal/infrastructure/repository"
	"github.com/sentinelpay/fraud-scoring-backend/internal/infrastructure/telemetry"
	"github.com/sentinelpay/fraud-scoring-backend/internal/service/scoring"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the configuration file")
	geoDBPath := flag.String("geodb", "", "path to the GeoLite2 country database (optional)")
	flag.Parse()

	if err := run(*configPath, *geoDBPath); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, geoDBPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := telemetry.NewLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracerProvider, err := telemetry.Initialize(ctx, &telemetry.Config{
		ServiceName:    "fraud-scoring-backend",
		ServiceVersion: cfg.Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()

	// The model is a startup requirement. No model, no traffic.
	invoker, err := scoring.NewModelInvoker(cfg.Model.ArtifactPath, logger)
	if err != nil {
		return fmt.Errorf("loading risk model: %w", err)
	}

	pool, err := repository.NewPool(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()
	store := repository.NewTransactionRepository(pool, logger)

	redisStore, err := cache.NewRedisStore(&cfg.Redis, logger)
	if err != nil {
		// The cache is an optimization; the pipeline runs L1-only without it.
		logger.Warn("redis unavailable, running with in-process cache only", zap.Error(err))
		redisStore = nil
	}
	defer func() {
		if redisStore != nil {
			_ = redisStore.Close()
		}
	}()

	var l2 cache.L2Store
	if redisStore != nil {
		l2 = redisStore
	}
	tiered := cache.NewTieredCache(
		cache.NewLRUCache(cfg.Cache.L1Size),
		l2,
		logger,
		cfg.Cache.DistributedSingleFlight,
	)

	var resolver scoring.GeoResolver = scoring.NoopResolver{}
	if geoDBPath != "" {
		mm, err := scoring.NewMaxMindResolver(geoDBPath)
		if err != nil {
			return fmt.Errorf("opening geolocation database: %w", err)
		}
		defer func() { _ = mm.Close() }()
		resolver = scoring.NewCachingResolver(mm, tiered, cfg.Cache.GeoTTL, logger)
	}

	engine, err := scoring.NewDecisionEngine(cfg.Decision)
	if err != nil {
		return fmt.Errorf("building decision engine: %w", err)
	}

	persister := scoring.NewAsyncPersister(store, cfg.Scoring.PersistQueue, cfg.Scoring.PersistRetryMax, logger)
	persister.Start()
	defer persister.Stop()

	svc := scoring.NewService(
		tiered,
		scoring.NewAggregator(store, logger),
		scoring.NewAssembler(),
		invoker,
		engine,
		resolver,
		persister,
		logger,
		scoring.Config{
			Deadline:      cfg.Scoring.Deadline,
			ScoreTTL:      cfg.Cache.ScoreTTL,
			DegradedScore: cfg.Scoring.DegradedScore,
		},
	)

	checks := map[string]rest.Pinger{"postgres": store}
	if redisStore != nil {
		checks["redis"] = redisStore
	}
	handler := rest.NewHandler(svc, checks, cfg.Version, logger)
	server := rest.NewServer(cfg.Server, handler, logger)

	logger.Info("fraud scoring service starting",
		zap.String("version", cfg.Version),
		zap.String("environment", cfg.Environment),
		zap.String("model_version", invoker.Version()),
		zap.Int("port", cfg.Server.Port))

	return server.Run(ctx)
}
