package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/grpc"

	"cloneguard-lab/internal/api"
	"cloneguard-lab/internal/api/handlers"
	"cloneguard-lab/internal/config"
	"cloneguard-lab/internal/domain/scoring"
	"cloneguard-lab/internal/domain/services"
	"cloneguard-lab/internal/evidence"
	grpchealth "cloneguard-lab/internal/grpc/health"
	"cloneguard-lab/internal/imaging"
	"cloneguard-lab/internal/infrastructure/cache"
	"cloneguard-lab/internal/infrastructure/database"
	"cloneguard-lab/internal/infrastructure/database/repository"
	"cloneguard-lab/internal/inspector"
	"cloneguard-lab/internal/metrics"
	"cloneguard-lab/internal/sources"
	"cloneguard-lab/internal/sources/playstore"
	"cloneguard-lab/internal/streaming"
	"cloneguard-lab/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.LoadDefault()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	var log *logger.Logger
	if cfg.App.Environment == "production" {
		log = logger.NewProduction()
	} else {
		log = logger.New(logger.Config{
			Level:      cfg.Logger.Level,
			Format:     cfg.Logger.Format,
			TimeFormat: cfg.Logger.TimeFormat,
		})
	}
	logger.SetGlobal(log)

	if err := cfg.Validate(); err != nil {
		var cfgErr *scoring.ConfigurationError
		if errors.As(err, &cfgErr) {
			log.Fatal().Err(err).Str("signal", string(cfgErr.Signal)).Msg("invalid scoring configuration")
		}
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	log.Info().
		Str("app", cfg.App.Name).
		Str("env", cfg.App.Environment).
		Str("version", cfg.App.Version).
		Msg("starting CloneGuard Lab")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Scoring engine
	weights, err := cfg.ScoringWeights()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid scoring weights")
	}
	engine, err := scoring.NewEngine(scoring.Options{
		Weights:              weights,
		Brands:               cfg.Scoring.Brands,
		SensitivePermissions: cfg.Scoring.SensitivePermissions,
		Hasher:               imaging.NewPHasher(),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build scoring engine")
	}

	// Store connectors
	registry := sources.NewRegistry(log)
	registerConnectors(registry, cfg, log)

	scanDeps := services.ScanDependencies{
		Engine:    engine,
		Fetcher:   registry,
		Inspector: inspector.NewAPKInspector(log),
		Metrics:   metrics.New(),
	}
	handlerDeps := handlers.Dependencies{
		Evidence:       evidence.NewWriter(cfg.Evidence.Dir, log),
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		Version:        cfg.App.Version,
		Logger:         log,
	}
	healthBackends := map[string]grpchealth.Pinger{}

	// Optional backends. Each one is only assigned to an interface when it exists.
	if cfg.Redis.Enabled {
		redisCache, err := cache.NewRedis(ctx, cfg.Redis, log)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to Redis, continuing without report cache")
		} else {
			defer redisCache.Close()
			scanDeps.Cache = redisCache
			handlerDeps.Cache = redisCache
			healthBackends["redis"] = redisCache
		}
	}

	if cfg.Database.Enabled {
		db, err := initDatabase(ctx, cfg, log)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize PostgreSQL, continuing without reference registry")
		} else {
			defer db.Close()
			refs := repository.NewReferenceRepository(db)
			scanDeps.References = refs
			handlerDeps.References = refs
			handlerDeps.Database = db
			healthBackends["postgres"] = db
		}
	}

	var natsPublisher *streaming.NATSPublisher
	if cfg.NATS.Enabled {
		natsPublisher, err = streaming.NewNATSPublisher(ctx, cfg.NATS, log)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to NATS, continuing without scan events")
			natsPublisher = nil
		} else {
			defer natsPublisher.Close()
		}
	}
	eventBus := streaming.NewEventBus(natsPublisher, log)
	defer eventBus.Close()
	scanDeps.Events = eventBus
	log.Info().Bool("nats_enabled", natsPublisher.IsConnected()).Msg("event bus initialized")

	// Services and handlers
	scans := services.NewScanService(scanDeps, log)
	handlerDeps.Scans = scans
	h := handlers.NewHandlers(handlerDeps)

	// Create router
	router := api.NewRouter(*cfg, h, scanDeps.Metrics.Handler(), log)

	// Start HTTP server
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().
			Str("addr", httpServer.Addr).
			Msg("starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Start gRPC health server
	grpcListener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.GRPCPort))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create gRPC listener")
	}

	grpcServer := grpc.NewServer()
	checker := grpchealth.NewChecker(healthBackends, log)
	checker.Register(grpcServer)
	go checker.Run(ctx)

	go func() {
		log.Info().
			Str("addr", grpcListener.Addr().String()).
			Msg("starting gRPC server")
		if err := grpcServer.Serve(grpcListener); err != nil {
			log.Fatal().Err(err).Msg("gRPC server failed")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down...")

	// Cancel context to stop background checks
	cancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	grpcServer.GracefulStop()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	log.Info().Msg("shutdown complete")
}

// initDatabase connects to PostgreSQL and applies migrations when enabled
func initDatabase(ctx context.Context, cfg *config.Config, log *logger.Logger) (*database.PostgresDB, error) {
	db, err := database.NewPostgres(ctx, cfg.Database, log)
	if err != nil {
		return nil, err
	}
	if cfg.Database.AutoMigrate {
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to migrate: %w", err)
		}
	}
	return db, nil
}

// registerConnectors registers the store metadata connectors
func registerConnectors(registry *sources.Registry, cfg *config.Config, log *logger.Logger) {
	connCfg := sources.DefaultConfig()
	connCfg.Enabled = cfg.Store.Enabled
	connCfg.APIURL = cfg.Store.ScraperURL
	if cfg.Store.Lang != "" {
		connCfg.Lang = cfg.Store.Lang
	}
	if cfg.Store.Country != "" {
		connCfg.Country = cfg.Store.Country
	}
	if cfg.Store.Timeout > 0 {
		connCfg.Timeout = cfg.Store.Timeout
	}

	if err := registry.Register(playstore.NewConnector(connCfg, log)); err != nil {
		log.Warn().Err(err).Msg("failed to register Play Store connector")
	}

	log.Info().
		Int("total", registry.Count()).
		Int("enabled", len(registry.ListEnabled())).
		Bool("scraper_configured", connCfg.APIURL != "").
		Msg("registered store connectors")
}
