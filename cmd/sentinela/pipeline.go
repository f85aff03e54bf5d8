package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sentinela-br/sentinela/internal/adapters"
	"github.com/sentinela-br/sentinela/internal/cache"
	"github.com/sentinela-br/sentinela/internal/config"
	"github.com/sentinela-br/sentinela/internal/detect"
	"github.com/sentinela-br/sentinela/internal/federation"
	"github.com/sentinela-br/sentinela/internal/graph"
	"github.com/sentinela-br/sentinela/internal/intent"
	"github.com/sentinela-br/sentinela/internal/investigation"
	"github.com/sentinela-br/sentinela/internal/llm"
	"github.com/sentinela-br/sentinela/internal/storage"
)

// pipeline bundles everything investigate/status need, with a teardown
type pipeline struct {
	aggregator *investigation.Aggregator
	closers    []func()
}

func (p *pipeline) close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		p.closers[i]()
	}
}

// buildPipeline wires the full investigation stack from config. Optional
// collaborators (redis, neo4j, LLM, postgres) degrade to nil when not
// configured; the pipeline runs without them.
func buildPipeline(ctx context.Context) (*pipeline, error) {
	p := &pipeline{}

	registry := adapters.NewRegistry()
	for _, src := range sourceConfigs(cfg) {
		if err := registry.Register(adapters.NewHTTPAdapter(src, adapters.ContractMapper)); err != nil {
			return nil, fmt.Errorf("register adapter %s: %w", src.Name, err)
		}
	}

	var responseCache federation.ResponseCache
	var limiter *llm.RateLimiter
	var baselines detect.BaselineProvider
	if cfg.Cache.RedisURL != "" {
		redisClient, err := cache.NewClient(ctx, cfg.Cache.RedisURL, "")
		if err != nil {
			logger.WithError(err).Warn("redis unavailable, response caching disabled")
		} else {
			responseCache = redisClient
			baselines = cache.NewBaselines(redisClient)
			p.closers = append(p.closers, func() { redisClient.Close() })
			if rl, err := llm.NewRateLimiter(cfg.Cache.RedisURL, cfg.LLM.RPM, cfg.LLM.TPM, cfg.LLM.RPD); err == nil {
				limiter = rl
				p.closers = append(p.closers, func() { rl.Close() })
			}
		}
	}

	var llmClient llm.Client
	if cfg.LLM.APIKey != "" {
		var err error
		switch cfg.LLM.Provider {
		case llm.ProviderGemini:
			llmClient, err = llm.NewGeminiClient(ctx, cfg.LLM.APIKey, cfg.LLM.Model)
		default:
			llmClient, err = llm.NewOpenAIClient(cfg.LLM.APIKey, cfg.LLM.Model)
		}
		if err != nil {
			logger.WithError(err).Warn("llm fallback unavailable, classification is deterministic only")
			llmClient = nil
		} else {
			p.closers = append(p.closers, func() { llmClient.Close() })
		}
	}

	executor := federation.NewExecutor(
		registry,
		federation.NewBreakerStore(federation.BreakerConfig{
			FailureThreshold: cfg.Federation.BreakerThreshold,
			Window:           cfg.Federation.BreakerWindow,
			Cooldown:         cfg.Federation.BreakerCooldown,
		}),
		responseCache,
		federation.Config{
			AdapterTimeout: cfg.Federation.AdapterTimeout,
			StageTimeout:   cfg.Federation.StageTimeout,
			Retry: federation.RetryConfig{
				MaxAttempts: cfg.Federation.RetryMaxAttempts,
				BaseDelay:   cfg.Federation.RetryBaseDelay,
				MaxDelay:    cfg.Federation.RetryMaxDelay,
			},
		},
		logger,
	)

	var store investigation.Persister
	switch cfg.Storage.Type {
	case "postgres":
		pg, err := storage.NewPostgresStore(cfg.Storage.PostgresDSN, logger)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		store = pg
		p.closers = append(p.closers, func() { pg.Close() })
	default:
		lite, err := storage.NewSQLiteStore(cfg.Storage.LocalPath, logger)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		store = lite
		p.closers = append(p.closers, func() { lite.Close() })
	}

	checkpoints, err := investigation.OpenCheckpointStore(cfg.Storage.CheckpointPath)
	if err != nil {
		logger.WithError(err).Warn("checkpoint store unavailable")
	} else {
		p.closers = append(p.closers, func() { checkpoints.Close() })
	}

	var exporter investigation.GraphExporter
	if cfg.Graph.Enabled {
		neo, err := graph.NewExporter(ctx, cfg.Graph.URI, cfg.Graph.User, cfg.Graph.Password, cfg.Graph.Database)
		if err != nil {
			logger.WithError(err).Warn("neo4j unavailable, graph export disabled")
		} else {
			exporter = neo
			p.closers = append(p.closers, func() { neo.Close(context.Background()) })
		}
	}

	detectors := detect.DefaultDetectors()
	if baselines != nil {
		detectors = []detect.Detector{
			detect.NewPriceDeviationDetectorWithBaselines(baselines),
			detect.NewVendorConcentrationDetector(),
			detect.NewTemporalPatternDetector(),
			detect.NewNearDuplicateDetector(),
			detect.NewEnsembleDetector(),
		}
	}

	p.aggregator = investigation.New(
		intent.New(llmClient, limiter),
		executor,
		detect.NewEngine(detectors...),
		store,
		checkpoints,
		exporter,
		investigation.Config{OverallTimeout: cfg.Pipeline.OverallTimeout},
		logger,
	)
	return p, nil
}

func sourceConfigs(cfg *config.Config) []adapters.HTTPAdapterConfig {
	timeout := cfg.Federation.AdapterTimeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return []adapters.HTTPAdapterConfig{
		{
			Name:              adapters.SourcePortalTransparencia,
			BaseURL:           cfg.Sources.PortalTransparencia.BaseURL,
			APIKeyName:        "chave-api-dados",
			APIKey:            cfg.Sources.PortalTransparencia.APIKey,
			Required:          cfg.Sources.PortalTransparencia.DefaultFilters,
			RequestsPerSecond: cfg.Sources.PortalTransparencia.RateLimit,
			Timeout:           timeout,
		},
		{
			Name:              adapters.SourceComprasGov,
			BaseURL:           cfg.Sources.ComprasGov.BaseURL,
			Required:          cfg.Sources.ComprasGov.DefaultFilters,
			RequestsPerSecond: cfg.Sources.ComprasGov.RateLimit,
			Timeout:           timeout,
		},
		{
			Name:              adapters.SourceTCU,
			BaseURL:           cfg.Sources.TCU.BaseURL,
			Required:          cfg.Sources.TCU.DefaultFilters,
			RequestsPerSecond: cfg.Sources.TCU.RateLimit,
			Timeout:           timeout,
		},
		{
			Name:              adapters.SourceIBGE,
			BaseURL:           cfg.Sources.IBGE.BaseURL,
			Required:          cfg.Sources.IBGE.DefaultFilters,
			RequestsPerSecond: cfg.Sources.IBGE.RateLimit,
			Timeout:           timeout,
		},
		{
			Name:              adapters.SourceCNPJRegistry,
			BaseURL:           cfg.Sources.CNPJRegistry.BaseURL,
			Required:          cfg.Sources.CNPJRegistry.DefaultFilters,
			RequestsPerSecond: cfg.Sources.CNPJRegistry.RateLimit,
			Timeout:           timeout,
		},
	}
}
