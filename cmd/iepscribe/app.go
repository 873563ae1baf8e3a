package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MikeSquared-Agency/iepscribe/internal/anthropic"
	"github.com/MikeSquared-Agency/iepscribe/internal/config"
	"github.com/MikeSquared-Agency/iepscribe/internal/embedding"
	"github.com/MikeSquared-Agency/iepscribe/internal/extractor"
	"github.com/MikeSquared-Agency/iepscribe/internal/iep"
	"github.com/MikeSquared-Agency/iepscribe/internal/llm"
	"github.com/MikeSquared-Agency/iepscribe/internal/llm/openai"
	"github.com/MikeSquared-Agency/iepscribe/internal/metrics"
	"github.com/MikeSquared-Agency/iepscribe/internal/narrative"
	"github.com/MikeSquared-Agency/iepscribe/internal/pipeline"
	"github.com/MikeSquared-Agency/iepscribe/internal/progress"
	"github.com/MikeSquared-Agency/iepscribe/internal/resolver"
	"github.com/MikeSquared-Agency/iepscribe/internal/store"
	"github.com/MikeSquared-Agency/iepscribe/internal/weekly"
)

const (
	embeddingCacheTTL  = 30 * 24 * time.Hour
	narrativeMaxTokens = 600
	iepMaxTokens       = 4096
)

// app holds the wired services shared by every command.
type app struct {
	cfg       config.Config
	db        *store.Store
	metrics   *metrics.Recorder
	pipeline  *pipeline.Service
	narrative *narrative.Summarizer
	weekly    *weekly.Summarizer
	iep       *iep.Parser
	closers   []func()
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	a := &app{cfg: cfg, metrics: metrics.New()}

	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	a.db = db
	a.closers = append(a.closers, db.Close)
	logger.Info("database connected")

	embedder, err := a.embedder(ctx, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	gw := a.gateway(cfg.LLMMaxTokens)
	logger.Info("llm gateway ready", "provider", cfg.LLMProvider, "model", cfg.LLMModel)

	res := resolver.New(db, embedding.NewEngine(embedder, cfg.MatchThreshold), logger)
	res.StudentTopK = cfg.StudentTopK
	res.ObjectiveTopK = cfg.ObjectiveTopK

	a.pipeline = pipeline.New(db,
		extractor.New(gw, logger, a.metrics),
		res,
		progress.New(gw, logger, a.metrics),
		logger, a.metrics,
	)
	a.pipeline.Concurrency = cfg.PipelineConcurrency

	a.narrative = narrative.New(db, a.gateway(narrativeMaxTokens), logger, a.metrics)
	a.weekly = weekly.New(db)
	a.iep = iep.New(a.gateway(iepMaxTokens), logger)

	return a, nil
}

// newIEPParser builds the document parser alone. It needs no database.
func newIEPParser(cfg config.Config, logger *slog.Logger) (*iep.Parser, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	a := &app{cfg: cfg, metrics: metrics.New()}
	return iep.New(a.gateway(iepMaxTokens), logger), nil
}

// gateway builds the configured chat provider, instrumented.
func (a *app) gateway(maxTokens int) llm.Gateway {
	cfg := a.cfg
	var gw llm.Gateway
	switch cfg.LLMProvider {
	case config.ProviderAnthropic:
		gw = anthropic.NewClient(cfg.AnthropicAPIKey, cfg.LLMModel).WithMaxTokens(maxTokens)
	default:
		gw = openai.NewClient(cfg.LLMAPIKey(), cfg.LLMBaseURL(), cfg.LLMModel).WithMaxTokens(maxTokens)
	}
	return a.metrics.Gateway(cfg.LLMProvider, gw)
}

// embedder builds the embedding provider behind the configured cache.
func (a *app) embedder(ctx context.Context, logger *slog.Logger) (embedding.Provider, error) {
	cfg := a.cfg
	base := embedding.NewOpenAIProvider(cfg.EmbeddingAPIKey, cfg.EmbeddingBaseURL, cfg.EmbeddingModel)

	var cache embedding.Cache
	switch cfg.EmbeddingCache {
	case config.CacheRedis:
		rc, err := embedding.NewRedisCache(ctx, cfg.RedisURL, "", embeddingCacheTTL)
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.closers = append(a.closers, func() { _ = rc.Close() })
		cache = rc
	case config.CachePostgres:
		pc, err := a.db.EmbeddingCache(ctx)
		if err != nil {
			return nil, fmt.Errorf("prepare embedding cache: %w", err)
		}
		cache = pc
	default:
		logger.Info("embedding cache disabled")
		return base, nil
	}

	logger.Info("embedding cache ready", "backend", cfg.EmbeddingCache, "model", cfg.EmbeddingModel)
	return embedding.NewCachedProvider(base, cache, logger, a.metrics), nil
}

// Close releases connections in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
