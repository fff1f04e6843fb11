package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"confluence-engine/config"
	"confluence-engine/internal/api"
	"confluence-engine/internal/cache"
	"confluence-engine/internal/circuit"
	"confluence-engine/internal/confluence"
	"confluence-engine/internal/database"
	"confluence-engine/internal/engine"
	"confluence-engine/internal/events"
	"confluence-engine/internal/gate"
	"confluence-engine/internal/logging"
	"confluence-engine/internal/marketdata"
	"confluence-engine/internal/metrics"
	"confluence-engine/internal/notification"
	"confluence-engine/internal/risk"
	"confluence-engine/internal/scheduler"
	"confluence-engine/internal/stream"
	"confluence-engine/internal/vault"
	"confluence-engine/internal/warehouse"
)

func main() {
	configFile := os.Getenv("CONFIG_FILE")
	if configFile == "" {
		configFile = "config.json"
	}

	// Load configuration
	cfg, err := config.Load(configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(cfg.Logging)
	logging.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	checks := make(map[string]api.HealthCheck)

	// Vault overrides credentials before any backing service is dialled
	vc, err := vault.NewClient(cfg.Vault, logger)
	switch {
	case err == nil:
		resolveCtx, resolveCancel := context.WithTimeout(ctx, 10*time.Second)
		err = vc.ResolveSecrets(resolveCtx, cfg)
		resolveCancel()
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to resolve secrets from vault")
		}
		if err := cfg.Validate(); err != nil {
			logger.Fatal().Err(err).Msg("Configuration invalid after resolving secrets")
		}
		checks["vault"] = vc.Health
	case !errors.Is(err, vault.ErrDisabled):
		logger.Fatal().Err(err).Msg("Failed to create vault client")
	}

	tuning, err := config.LoadTuning(cfg.TuningFile)
	if err != nil {
		logger.Fatal().Err(err).Str("file", cfg.TuningFile).Msg("Failed to load tuning")
	}

	// Gate state and candles go to Redis when it is configured
	var stateStore gate.StateStore = gate.NewMemoryStore()
	var candleCache marketdata.CandleCache
	redisCache, err := cache.NewCacheService(cfg.Redis, logger)
	switch {
	case err == nil:
		defer redisCache.Close()
		stateStore = cache.NewStateStore(redisCache)
		candleCache = cache.NewCandleCache(redisCache, logger)
		checks["redis"] = redisCache.Ping
	case errors.Is(err, cache.ErrDisabled):
		memCache := marketdata.NewMemoryCandleCache()
		go sweepCandles(ctx, memCache)
		candleCache = memCache
		logger.Info().Msg("Redis disabled, keeping gate state and candles in memory")
	default:
		logger.Fatal().Err(err).Msg("Failed to create redis cache")
	}

	eventBus := events.NewEventBus()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.New(registry)
	recorder.Follow(eventBus)

	// Analysis and gating
	weights := confluence.NewOnlineWeights(tuning.DomainWeights, tuning.Online)
	analyzer := engine.NewAnalyzer(tuning.Analysis, weights, logger)
	riskController := risk.NewController(tuning.Risk, logger)
	filter := circuit.NewEmotionalFilter(tuning.Filter, logger)
	gatekeeper := gate.New(riskController, filter, weights, stateStore, eventBus, logger)
	if err := gatekeeper.Restore(ctx); err != nil {
		logger.Warn().Err(err).Msg("Starting with fresh gate state")
	}
	trailing := risk.NewTrailingStopManager(logger)

	provider := marketdata.NewCachedProvider(marketdata.NewSimulated(cfg.Scheduler.SimulatedSeed), candleCache)
	sched := scheduler.New(scheduler.Config{
		Symbols:      cfg.Scheduler.Symbols,
		Interval:     cfg.Scheduler.Interval(),
		Workers:      cfg.Scheduler.Workers,
		FetchRate:    cfg.Scheduler.FetchRate,
		FetchBurst:   cfg.Scheduler.FetchBurst,
		FetchTimeout: time.Duration(cfg.Scheduler.FetchTimeout) * time.Second,
		BookDepth:    cfg.Scheduler.BookDepth,
		TradeLimit:   cfg.Scheduler.TradeLimit,
		CandleLimit:  cfg.Scheduler.CandleLimit,
	}, provider, analyzer, eventBus, logger)
	sched.SetMetrics(recorder)

	// Sinks
	var journal api.Journal
	if cfg.Database.Enabled {
		db, err := database.NewDB(cfg.Database, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer db.Close()
		if err := db.RunMigrations(ctx); err != nil {
			logger.Fatal().Err(err).Msg("Failed to run migrations")
		}
		repo := database.NewRepository(db)
		sched.AddSignalSink(repo)
		journal = repo
		checks["postgres"] = db.HealthCheck
	}

	if cfg.Kafka.Enabled {
		publisher, err := stream.NewSignalPublisher(cfg.Kafka, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to create kafka publisher")
		}
		defer publisher.Close()
		sched.AddSignalSink(publisher)
	}

	if cfg.Telegram.Enabled {
		notifier, err := notification.NewTelegramNotifier(cfg.Telegram)
		if err != nil {
			logger.Error().Err(err).Msg("Telegram notifications disabled")
		} else {
			notifyManager := notification.NewManager(cfg.Telegram.MinConfidence, logger)
			notifyManager.AddNotifier(notifier)
			notifyManager.Follow(eventBus)
			sched.AddSignalSink(notifyManager)
		}
	}

	if cfg.ClickHouse.Enabled {
		store, err := warehouse.Open(cfg.ClickHouse, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to clickhouse")
		}
		defer store.Close()
		if err := store.InitSchema(ctx); err != nil {
			logger.Fatal().Err(err).Msg("Failed to create clickhouse schema")
		}
		sched.AddBreakdownSink(store)
	}

	var server *api.Server
	if cfg.Server.Enabled {
		server = api.NewServer(cfg.Server, api.Deps{
			Analysis: sched,
			Gate:     gatekeeper,
			Trailing: trailing,
			Journal:  journal,
			Bus:      eventBus,
			Gatherer: registry,
			Checks:   checks,
		}, logger)
		go func() {
			if err := server.Start(); err != nil {
				logger.Error().Err(err).Msg("API server stopped")
				cancel()
			}
		}()
	}

	go logTicks(ctx, sched, logger)
	sched.Start(ctx)

	logger.Info().
		Strs("symbols", cfg.Scheduler.Symbols).
		Dur("interval", cfg.Scheduler.Interval()).
		Bool("api", cfg.Server.Enabled).
		Msg("Confluence engine running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down")
	case <-ctx.Done():
	}

	sched.Stop()
	cancel()

	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("API server shutdown failed")
		}
		shutdownCancel()
	}

	logger.Info().Msg("Shutdown complete")
}

// logTicks drains the scheduler's results and reports degraded symbols
func logTicks(ctx context.Context, sched *scheduler.Scheduler, logger zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case tick := <-sched.Results():
			for _, r := range tick.Results {
				if !r.Degraded() {
					continue
				}
				logger.Warn().
					Int64("tick", tick.TickID).
					Str("symbol", r.Symbol).
					Interface("fetch_errors", r.FetchErrors).
					Interface("sink_errors", r.SinkErrors).
					Msg("Symbol degraded")
			}
		}
	}
}

// sweepCandles evicts expired in-memory candle windows
func sweepCandles(ctx context.Context, c *marketdata.MemoryCandleCache) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Cleanup()
		}
	}
}
