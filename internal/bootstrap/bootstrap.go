package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/shipment-tariff-agent/internal/config"
	"github.com/kirillkom/shipment-tariff-agent/internal/core/domain"
	"github.com/kirillkom/shipment-tariff-agent/internal/core/ports"
	"github.com/kirillkom/shipment-tariff-agent/internal/core/usecase"
	"github.com/kirillkom/shipment-tariff-agent/internal/infrastructure/cache/rediscache"
	"github.com/kirillkom/shipment-tariff-agent/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/shipment-tariff-agent/internal/infrastructure/queue/nats"
	"github.com/kirillkom/shipment-tariff-agent/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/shipment-tariff-agent/internal/infrastructure/resilience"
	"github.com/kirillkom/shipment-tariff-agent/internal/infrastructure/tariff/gaia"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Cache    ports.ClassificationCache
	GroupUC  *usecase.GroupShipmentsUseCase
	EnrichUC *usecase.EnrichShipmentUseCase

	executor *resilience.Executor
	closeFns []func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger, observer ports.EnrichmentObserver) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{Config: cfg, Logger: logger}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	app.onClose(func() { _ = db.Close() })

	repo := postgres.NewClassificationCacheRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		app.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	var cache ports.ClassificationCache = repo
	if cfg.RedisURL != "" {
		client, err := rediscache.NewClient(cfg.RedisURL)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("init redis: %w", err)
		}
		app.onClose(func() { _ = client.Close() })
		cache = rediscache.NewLayeredCache(client, repo, cfg.RedisTTL, logger)
	}
	app.Cache = cache

	app.executor = resilience.NewExecutor(resilienceConfig(cfg, logger, observer))

	gaiaClient := gaia.New(gaia.Options{
		BaseURL:      cfg.GaiaBaseURL,
		APIKey:       cfg.GaiaAPIKey,
		ClientID:     cfg.GaiaClientID,
		ClientSecret: cfg.GaiaClientSecret,
		Timeout:      cfg.GaiaTimeout,
		Executor:     app.executor,
	})
	app.onClose(gaiaClient.Close)

	var refiner ports.DescriptionRefiner
	if cfg.RefinerEnabled {
		refiner = ollama.NewDescriptionRefiner(ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, app.executor))
	}

	app.GroupUC = usecase.NewGroupShipmentsUseCase(logger)
	app.EnrichUC = usecase.NewEnrichShipmentUseCase(
		cache,
		gaia.NewClassifier(gaiaClient),
		gaia.NewTariffDetails(gaiaClient),
		refiner,
		observer,
		domain.EnrichmentLimits{
			MaxConcurrency:    cfg.EnrichMaxConcurrency,
			CacheWriteTimeout: cfg.EnrichCacheWriteTimeout,
		},
		logger,
	)
	return app, nil
}

// NewQueue connects the enrichment request subject. The queue shares the
// application's resilience executor and is closed with the app.
func (a *App) NewQueue() (*nats.Queue, error) {
	queue, err := nats.NewWithOptions(a.Config.NATSURL, a.Config.NATSSubject, nats.Options{
		ResilienceExecutor: a.executor,
		Logger:             a.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}
	a.onClose(queue.Close)
	return queue, nil
}

func (a *App) Close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		a.closeFns[i]()
	}
	a.closeFns = nil
}

func (a *App) onClose(fn func()) {
	a.closeFns = append(a.closeFns, fn)
}

// resilienceConfig shares one executor across upstreams; only the tariff API
// is token-bucket limited.
func resilienceConfig(cfg config.Config, logger *slog.Logger, observer ports.EnrichmentObserver) resilience.Config {
	out := resilience.DefaultConfig()
	out.Logger = logger
	if o, ok := observer.(resilience.Observer); ok {
		out.Observer = o
	}
	out.RetryMaxAttempts = cfg.RetryMaxAttempts
	out.RetryInitialBackoff = cfg.RetryInitialBackoff
	out.RetryMaxBackoff = cfg.RetryMaxBackoff
	out.BreakerEnabled = cfg.BreakerEnabled
	out.BreakerOpenTimeout = cfg.BreakerOpenTimeout
	out.RateLimitRPS = cfg.GaiaRateLimitRPS
	out.RateLimitBurst = cfg.GaiaRateBurst
	out.RateLimitScope = "gaia."
	return out
}
