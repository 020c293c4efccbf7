// Package app wires configured components into a runnable service.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"scenestudio/internal/adapter/memstore"
	"scenestudio/internal/adapter/mongostore"
	"scenestudio/internal/adapter/repo"
	"scenestudio/internal/credits"
	"scenestudio/internal/domain"
	"scenestudio/internal/http/handlers"
	"scenestudio/internal/http/httpapi"
	"scenestudio/internal/imagegen"
	"scenestudio/internal/infra"
	"scenestudio/internal/infra/credentials"
	"scenestudio/internal/infra/geoip"
	"scenestudio/internal/metrics"
	"scenestudio/internal/middleware"
	"scenestudio/internal/payments"
	"scenestudio/internal/pipeline"
	"scenestudio/internal/providers/render"
	"scenestudio/internal/providers/video"
	"scenestudio/internal/quota"
	"scenestudio/internal/registry"
	"scenestudio/internal/settlement"
	"scenestudio/internal/storage"
)

// Service is the assembled process: the HTTP surface and the reconciliation
// loop share one set of stores.
type Service struct {
	Router    http.Handler
	Scheduler *pipeline.Scheduler
	closers   []func()
}

// Close releases connections in reverse order of acquisition.
func (s *Service) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// Build wires every component selected by cfg. On error, resources opened
// so far are released.
func Build(ctx context.Context, cfg *infra.Config, logger zerolog.Logger) (_ *Service, err error) {
	svc := &Service{}
	defer func() {
		if err != nil {
			svc.Close()
		}
	}()
	checks := map[string]handlers.HealthCheck{}

	tiers, err := infra.LoadTierCatalog(cfg.TiersFile)
	if err != nil {
		return nil, err
	}

	users, tokens, err := buildUserStore(ctx, cfg, tiers, logger, svc, checks)
	if err != nil {
		return nil, err
	}

	reg, err := buildRegistry(ctx, cfg, svc, checks)
	if err != nil {
		return nil, err
	}
	batches := reg.batches

	fetcher := storage.NewFetcher(&http.Client{Timeout: cfg.ProviderTimeout})
	var artifacts storage.ArtifactStore
	staticDir := ""
	switch cfg.StorageDriver {
	case infra.StorageDriverGCS:
		gcsStore, err := storage.NewGCSStore(ctx, storage.GCSOptions{
			Bucket:          cfg.GCSBucket,
			CredentialsFile: cfg.GCSCredentialsFile,
			PublicBaseURL:   cfg.GCSPublicBaseURL,
		}, fetcher)
		if err != nil {
			return nil, err
		}
		svc.closers = append(svc.closers, func() { _ = gcsStore.Close() })
		artifacts = gcsStore
	default:
		fileStore, err := storage.NewFileStore(cfg.StorageBasePath, cfg.StorageBaseURL, fetcher)
		if err != nil {
			return nil, err
		}
		artifacts = fileStore
		staticDir = fileStore.BasePath()
	}

	generator, err := buildGenerator(ctx, cfg, tokens)
	if err != nil {
		return nil, err
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewPipeline(promReg)

	ledger := quota.NewLedger(users, tiers, logger)
	settler := settlement.NewSettler(ledger, reg.settled, m, cfg.SettlementTimeout, logger)
	submitter := pipeline.NewSubmitter(generator, batches, pipeline.SubmitterConfig{
		Bounds:        domain.DurationBounds{Min: cfg.MinDurationSeconds, Max: cfg.MaxDurationSeconds},
		CostPerSecond: cfg.CostPerSecond,
	}, m, logger)
	reconciler := pipeline.NewReconciler(batches, generator, artifacts, settler, m, pipeline.ReconcilerConfig{
		MaxTicks:        cfg.MaxTicks,
		PollConcurrency: cfg.PollConcurrency,
		WriteTimeout:    cfg.SettlementTimeout,
		LeaseTTL:        cfg.BatchLeaseTTL,
		SettleRetries:   cfg.SettleRetries,
	}, logger)
	svc.Scheduler = pipeline.NewScheduler(batches, reconciler, pipeline.SchedulerConfig{
		Interval:    cfg.PollInterval,
		Concurrency: cfg.BatchConcurrency,
	}, m, logger)

	deps := handlers.Deps{
		Logger:   logger,
		Pipeline: pipeline.NewService(ledger, submitter, batches, cfg.StatusCacheTTL, m, logger),
		Users:    users,
		Tiers:    tiers,
		Storage:  artifacts,
		Checks:   checks,

		RenderOwners: reg.owners,
	}

	qwenKey, err := tokens.Resolve(ctx, credentials.ProviderQwen, cfg.QwenAPIKey)
	if err != nil {
		return nil, fmt.Errorf("resolve qwen key: %w", err)
	}
	if qwenKey != "" {
		editor := imagegen.NewQwenClient(imagegen.QwenOptions{
			BaseURL: cfg.QwenBaseURL,
			APIKey:  qwenKey,
			Model:   cfg.QwenModel,
			Timeout: cfg.ProviderTimeout,
		})
		deps.Credits = credits.NewService(users, editor, artifacts, m, logger)
	} else {
		logger.Warn().Msg("qwen key not configured, image generation disabled")
	}

	renderKey, err := tokens.Resolve(ctx, credentials.ProviderRender, cfg.RenderAPIKey)
	if err != nil {
		return nil, fmt.Errorf("resolve render key: %w", err)
	}
	if renderKey != "" {
		deps.Renders = render.NewClient(render.Options{
			BaseURL: cfg.RenderBaseURL,
			APIKey:  renderKey,
			Timeout: cfg.ProviderTimeout,
		})
	} else {
		logger.Warn().Msg("render key not configured, template renders disabled")
	}

	if cfg.PaymentWebhookSecret != "" {
		verifier := payments.NewVerifier(cfg.PaymentWebhookSecret, cfg.PaymentWebhookTolerance)
		deps.Payments = payments.NewProcessor(users, verifier, m, logger)
	} else {
		logger.Warn().Msg("payment webhook secret not configured, webhooks disabled")
	}

	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	}
	var country middleware.CountryLookup
	if resolver != nil {
		country = resolver.CountryCode
		if closer, ok := resolver.(interface{ Close() error }); ok {
			svc.closers = append(svc.closers, func() { _ = closer.Close() })
		}
	}

	svc.Router = httpapi.NewRouter(handlers.NewApp(deps), httpapi.Options{
		Logger:          logger,
		JWTSecret:       cfg.JWTSecret,
		CORSOrigins:     cfg.CORSOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		Country:         country,
		Metrics:         promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}),
		StaticDir:       staticDir,
	})
	return svc, nil
}

func buildUserStore(ctx context.Context, cfg *infra.Config, tiers domain.TierCatalog, logger zerolog.Logger, svc *Service, checks map[string]handlers.HealthCheck) (domain.UserStore, *credentials.Store, error) {
	switch cfg.StoreDriver {
	case infra.StoreDriverPostgres:
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("connect database: %w", err)
		}
		svc.closers = append(svc.closers, pool.Close)
		checks["postgres"] = pool.Ping

		runner := infra.NewSQLRunner(pool, logger)
		users := repo.NewUserRepository(runner)
		if err := users.EnsureSchema(ctx); err != nil {
			return nil, nil, fmt.Errorf("ensure schema: %w", err)
		}
		return users, credentials.NewStore(runner), nil

	case infra.StoreDriverMongo:
		client, db, err := infra.NewMongoDatabase(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		svc.closers = append(svc.closers, func() { _ = client.Disconnect(context.Background()) })
		checks["mongo"] = func(ctx context.Context) error { return client.Ping(ctx, readpref.Primary()) }

		users := mongostore.NewUserStore(db, tiers)
		if err := users.EnsureIndexes(ctx); err != nil {
			return nil, nil, fmt.Errorf("ensure indexes: %w", err)
		}
		return users, nil, nil

	default:
		logger.Warn().Msg("using in-memory user store, data is lost on restart")
		return memstore.NewUserStore(), nil, nil
	}
}

// registryParts are the shared-state stores backed by the registry driver.
type registryParts struct {
	batches domain.BatchStore
	settled domain.SettledLog
	owners  domain.OwnerIndex
}

func buildRegistry(ctx context.Context, cfg *infra.Config, svc *Service, checks map[string]handlers.HealthCheck) (registryParts, error) {
	if cfg.RegistryDriver != infra.RegistryDriverRedis {
		return registryParts{
			batches: registry.NewMemoryStore(cfg.BatchRetention),
			settled: settlement.NewMemoryLog(),
			owners:  registry.NewMemoryOwners(),
		}, nil
	}
	client, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		return registryParts{}, err
	}
	svc.closers = append(svc.closers, func() { _ = client.Close() })
	checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }

	var cmd goredis.Cmdable = client
	batches := registry.NewRedisStore(cmd,
		registry.WithKeyPrefix(cfg.RedisKeyPrefix),
		registry.WithRetention(cfg.BatchRetention),
	)
	return registryParts{
		batches: batches,
		settled: settlement.NewRedisLog(cmd, cfg.RedisKeyPrefix, cfg.BatchRetention),
		owners:  registry.NewRedisOwners(cmd, cfg.RedisKeyPrefix, "render"),
	}, nil
}

func buildGenerator(ctx context.Context, cfg *infra.Config, tokens *credentials.Store) (video.Generator, error) {
	if cfg.VideoProvider == infra.VideoProviderSynthetic {
		return video.NewSynthetic(cfg.SyntheticPolls), nil
	}
	key, err := tokens.Resolve(ctx, credentials.ProviderVeo, cfg.VeoAPIKey)
	if err != nil {
		return nil, fmt.Errorf("resolve veo key: %w", err)
	}
	if key == "" {
		return nil, fmt.Errorf("veo API key is not configured")
	}
	return video.NewVeoClient(video.VeoOptions{
		BaseURL: cfg.VeoBaseURL,
		APIKey:  key,
		Model:   cfg.VeoModel,
		Timeout: cfg.ProviderTimeout,
	}), nil
}
