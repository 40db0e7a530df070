package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/program-extract/internal/antipattern"
	"github.com/sells-group/program-extract/internal/confidence"
	"github.com/sells-group/program-extract/internal/enhance"
	"github.com/sells-group/program-extract/internal/extract"
	"github.com/sells-group/program-extract/internal/learning"
	"github.com/sells-group/program-extract/internal/metrics"
	"github.com/sells-group/program-extract/internal/model"
	"github.com/sells-group/program-extract/internal/pattern"
	"github.com/sells-group/program-extract/internal/pipeline"
	"github.com/sells-group/program-extract/internal/registry"
	"github.com/sells-group/program-extract/internal/resilience"
	"github.com/sells-group/program-extract/internal/scrape"
	"github.com/sells-group/program-extract/internal/store"
	anthropicpkg "github.com/sells-group/program-extract/pkg/anthropic"
	"github.com/sells-group/program-extract/pkg/jina"
)

// appEnv holds the store, learning engine and, for extracting commands,
// the pipeline and page fetcher.
type appEnv struct {
	Store    learning.Store
	Fields   *model.FieldRegistry
	Learning *learning.Engine
	Patterns *pattern.Engine
	Pipeline *pipeline.Pipeline
	Fetcher  *scrape.Chain
	Metrics  *metrics.Metrics
}

// Close releases the store.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// needsPipeline reports whether mode runs extractions.
func needsPipeline(mode string) bool {
	return mode == "extract" || mode == "batch" || mode == "serve"
}

// initEnv validates the config for mode, opens the store and loads the
// learning state. Extracting modes also get the pipeline and fetcher.
// Callers should defer env.Close().
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	fields, err := registry.Load(cfg.Extract.FieldsFile)
	if err != nil {
		return nil, eris.Wrap(err, "load field registry")
	}

	st, err := store.Open(ctx, store.Config{
		Driver:      cfg.Store.Driver,
		Path:        cfg.Store.Path,
		DatabaseURL: cfg.Store.DatabaseURL,
		Pool:        &store.PoolConfig{MaxConns: cfg.Store.MaxConns, MinConns: cfg.Store.MinConns},
	})
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}

	scorer := confidence.NewScorer(fields)
	ext := extract.New(fields, scorer, cfg.Extract.Strategies...)
	patterns := pattern.NewEngine()
	m := metrics.New()

	learn := learning.New(st, learning.Config{
		HistoryLimit:        cfg.Learning.HistoryLimit,
		SimilarityThreshold: cfg.Learning.SimilarityThreshold,
		LocationConfidence:  cfg.Learning.LocationConfidence,
		SuccessConfidence:   cfg.Learning.SuccessConfidence,
		SaveAttempts:        cfg.Learning.SaveAttempts,
	},
		learning.WithPatternEngine(patterns),
		learning.WithPriority(ext.Priority),
		learning.WithRetry(resilience.StoreRetryConfig(cfg.Learning.SaveAttempts)),
		learning.WithMetrics(m),
	)
	if err := learn.Load(ctx); err != nil {
		// The engine continues on an empty state.
		zap.L().Warn("learning state not loaded", zap.Error(err))
	}

	env := &appEnv{
		Store:    st,
		Fields:   fields,
		Learning: learn,
		Patterns: patterns,
		Metrics:  m,
	}

	zap.L().Info("learning state ready",
		zap.String("driver", cfg.Store.Driver),
		zap.Int("fields", fields.Len()),
		zap.Int64("revision", learn.Revision()),
	)

	if !needsPipeline(mode) {
		return env, nil
	}

	filter := antipattern.New(antipattern.Policy{
		FailClosed:     cfg.Filter.FailClosed,
		RequiredFields: cfg.Filter.RequiredFields,
	})

	opts := []pipeline.Option{
		pipeline.WithPatternEngine(patterns),
		pipeline.WithMetrics(env.Metrics),
	}
	if cfg.Extract.AIEnhance {
		client := anthropicpkg.NewClient(cfg.Anthropic.Key)
		opts = append(opts, pipeline.WithEnhancer(enhance.New(client, enhance.Config{
			Model:     cfg.Anthropic.Model,
			MaxTokens: cfg.Anthropic.MaxTokens,
		})))
		zap.L().Info("ai enhancement enabled", zap.String("model", cfg.Anthropic.Model))
	}

	env.Pipeline = pipeline.New(pipeline.Config{
		FastMode:            cfg.Extract.FastMode,
		FastModeThreshold:   cfg.Extract.FastModeThreshold,
		MaxConcurrentFields: cfg.Extract.MaxConcurrentFields,
		AIEnhance:           cfg.Extract.AIEnhance,
	}, fields, ext, scorer, filter, learn, opts...)
	env.Fetcher = buildFetcher()

	return env, nil
}

// buildFetcher chains the local HTTP scraper with Jina Reader as a fallback
// for blocked or script-rendered pages when a Jina key is configured.
func buildFetcher() *scrape.Chain {
	limiter := scrape.NewDomainLimiter(cfg.Fetch.RequestsPerSecond, 1)
	scrapers := []scrape.Scraper{
		scrape.NewLocalScraper(scrape.LocalOptions{
			Timeout:   time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
			UserAgent: cfg.Fetch.UserAgent,
			Limiter:   limiter,
		}),
	}
	if cfg.Fetch.JinaKey != "" {
		client := jina.NewClient(cfg.Fetch.JinaKey, jina.WithBaseURL(cfg.Fetch.JinaBaseURL))
		scrapers = append(scrapers, scrape.NewJinaAdapter(client))
		zap.L().Debug("jina reader fallback enabled")
	}
	return scrape.NewChain(scrape.NewPathMatcher(cfg.Fetch.ExcludePaths), scrapers...)
}
