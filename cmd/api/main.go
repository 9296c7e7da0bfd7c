package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"shotpack/internal/http/handlers"
	httpapi "shotpack/internal/http"
	"shotpack/internal/identity"
	"shotpack/internal/infra"
	"shotpack/internal/infra/geoip"
	"shotpack/internal/jobs"
	"shotpack/internal/kv"
	"shotpack/internal/providers/genai"
	"shotpack/internal/providers/image"
	"shotpack/internal/quota"
	"shotpack/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := infra.InitTracing("shotpack-api")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init tracing")
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	// Object storage.
	blobs, files, err := buildStorage(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init object storage")
	}
	logger.Info().Str("driver", cfg.StorageDriver).Msg("object storage ready")

	// Record store for job metadata and the usage ledger.
	records, err := buildRecordStore(ctx, cfg, blobs)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init record store")
	}
	logger.Info().Str("driver", cfg.StoreDriver).Msg("record store ready")

	// Identity resolution; GeoIP is optional.
	var geo geoip.CountryResolver
	if cfg.GeoIPDBPath != "" {
		geo, err = geoip.NewResolver(cfg.GeoIPDBPath)
		if err != nil {
			logger.Warn().Err(err).Msg("geoip database unavailable; country signal disabled")
			geo = nil
		}
	}
	resolver := identity.NewResolver(cfg.IPHashSalt, geo)

	ledger := quota.NewLedger(records, quota.Policy{
		FreePackLimit:     cfg.FreePackLimit,
		ChargeOnAdmission: true,
	}, logger)

	provider, err := buildProvider(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init image provider")
	}
	logger.Info().Str("provider", cfg.Provider).Msg("image provider ready")

	jobStore := jobs.NewStore(records)
	runner := jobs.NewRunner(cfg.WorkerCount, cfg.QueueSize, logger)
	runner.Start(ctx)
	defer runner.Stop()

	orchestrator := jobs.NewOrchestrator(jobs.Options{
		Store:        jobStore,
		Blobs:        blobs,
		Provider:     provider,
		Runner:       runner,
		Logger:       logger,
		BatchSize:    cfg.BatchSize,
		Budget:       cfg.PipelineBudget,
		StuckTimeout: cfg.StuckTimeout,
	})

	sweeper := jobs.NewSweeper(orchestrator, cfg.SweepInterval, logger)
	go sweeper.Run(ctx)

	app := handlers.NewApp(cfg, logger)
	app.Jobs = jobStore
	app.Orchestrator = orchestrator
	app.Ledger = ledger
	app.Resolver = resolver
	app.Blobs = blobs
	app.Files = files

	router := httpapi.NewRouter(app)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && err != os.ErrClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}

func buildStorage(cfg *infra.Config) (storage.Store, *storage.FileStore, error) {
	switch cfg.StorageDriver {
	case "oss":
		store, err := storage.NewOSSStore(storage.OSSOptions{
			Endpoint:        cfg.OSSEndpoint,
			Bucket:          cfg.OSSBucket,
			AccessKeyID:     cfg.OSSAccessKeyID,
			AccessKeySecret: cfg.OSSAccessKeySecret,
		})
		return store, nil, err
	case "fs":
		store, err := storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL, cfg.StorageSignSecret)
		return store, store, err
	default:
		return nil, nil, fmt.Errorf("unknown storage driver: %s", cfg.StorageDriver)
	}
}

func buildRecordStore(ctx context.Context, cfg *infra.Config, blobs storage.Store) (kv.Store, error) {
	switch cfg.StoreDriver {
	case "object":
		return kv.NewObjectStore(blobs), nil
	case "redis":
		return kv.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisDB)
	case "postgres":
		return kv.NewPostgresStore(ctx, cfg.DatabaseURL)
	case "memory":
		return kv.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver: %s", cfg.StoreDriver)
	}
}

func buildProvider(cfg *infra.Config, logger infra.Logger) (image.Provider, error) {
	switch cfg.Provider {
	case "gemini":
		client, err := genai.NewClient(genai.Options{
			APIKey:  cfg.GeminiAPIKey,
			BaseURL: cfg.GeminiBaseURL,
			Model:   cfg.GeminiModel,
			Logger:  &logger,
		})
		if err != nil {
			return nil, err
		}
		return image.NewGeminiProvider(client)
	case "mock":
		return &image.MockProvider{}, nil
	default:
		return nil, fmt.Errorf("unknown image provider: %s", cfg.Provider)
	}
}
