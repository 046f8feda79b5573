package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/jonathan/daily-brief/internal/config"
	"github.com/jonathan/daily-brief/internal/db"
	"github.com/jonathan/daily-brief/internal/expansion"
	"github.com/jonathan/daily-brief/internal/fetch"
	"github.com/jonathan/daily-brief/internal/llm"
	"github.com/jonathan/daily-brief/internal/pipeline"
	"github.com/jonathan/daily-brief/internal/preferences"
	"github.com/jonathan/daily-brief/internal/publish"
	"github.com/jonathan/daily-brief/internal/ratelimit"
	"github.com/jonathan/daily-brief/internal/store"
	"github.com/jonathan/daily-brief/internal/synthesis"
	"github.com/jonathan/daily-brief/internal/trace"
	"github.com/jonathan/daily-brief/internal/types"
)

// runLister is implemented by the database backends.
type runLister interface {
	RecentRuns(ctx context.Context, userID string, limit int) ([]string, error)
}

// backend is the profile store and trace store of the configured driver.
type backend struct {
	profiles preferences.Store
	traces   trace.Store
	runs     runLister
	close    func()
}

func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.SQLitePath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		d, err := store.Open(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &backend{profiles: d.Profiles(), traces: d.Traces(), runs: d, close: func() { _ = d.Close() }}, nil

	case config.DriverPostgres:
		d, err := db.Connect(ctx, cfg.Storage.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := d.Migrate(ctx); err != nil {
			d.Close()
			return nil, err
		}
		return &backend{profiles: d.Profiles(), traces: d.Traces(), runs: d, close: d.Close}, nil

	default:
		profiles, err := preferences.NewFileStore(filepath.Join(cfg.Storage.Dir, "profiles"))
		if err != nil {
			return nil, err
		}
		sink, err := trace.NewFileSink(cfg.Trace.Path)
		if err != nil {
			return nil, err
		}
		return &backend{profiles: profiles, traces: sink, close: func() {}}, nil
	}
}

// newCapability returns the Gemini-backed capability, or Unavailable when
// no key is configured.
func newCapability(ctx context.Context, cfg *config.Config, logger *zap.Logger) (llm.Capability, func(), error) {
	if !cfg.LLM.Enabled() {
		logger.Info("reasoning capability disabled, using deterministic fallbacks")
		return llm.Unavailable{}, func() {}, nil
	}
	llmCfg := llm.DefaultConfig()
	client, err := llm.NewGeminiClient(ctx, llmCfg, cfg.LLM.APIKey)
	if err != nil {
		return nil, nil, err
	}
	return llm.NewCapability(client, llmCfg), func() { _ = client.Close() }, nil
}

// newAdapters registers an adapter for every source type the configuration
// can serve. Web search is left out without credentials, so its requests
// fail as unsupported.
func newAdapters(ctx context.Context, cfg *config.Config, logger *zap.Logger) (fetch.Registry, error) {
	opts := &fetch.Options{Timeout: cfg.Fetch.Timeout, UserAgent: cfg.Fetch.UserAgent}
	if opts.UserAgent == "" {
		opts.UserAgent = fetch.DefaultUserAgent
	}

	feeds := fetch.NewFeedAdapter(opts)
	var render fetch.RenderFunc
	if cfg.Sources.UseBrowser {
		render = fetch.BrowserRenderer(cfg.Fetch.Timeout, logger)
	}

	registry := fetch.Registry{
		types.SourceNews:   feeds,
		types.SourceFeed:   feeds,
		types.SourceReddit: feeds,
		types.SourceSocial: fetch.NewSocialAdapter(cfg.Social.Endpoint, cfg.Social.BearerToken, opts),
		types.SourceSite:   fetch.NewSiteAdapter(opts, render),
	}

	if cfg.Search.APIKey != "" && cfg.Search.CX != "" {
		search, err := fetch.NewSearchAdapter(ctx, cfg.Search.APIKey, cfg.Search.CX)
		if err != nil {
			return nil, err
		}
		registry[types.SourceWebSearch] = search
	} else if cfg.Sources.WebSearch {
		logger.Warn("web search enabled without GOOGLE_SEARCH_API_KEY and GOOGLE_SEARCH_CX")
	}
	return registry, nil
}

// newOrchestrator wires the pipeline for the configured backend.
func newOrchestrator(ctx context.Context, cfg *config.Config, b *backend, logger *zap.Logger) (*pipeline.Orchestrator, func(), error) {
	capability, closeCapability, err := newCapability(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	adapters, err := newAdapters(ctx, cfg, logger)
	if err != nil {
		closeCapability()
		return nil, nil, err
	}

	gateway := fetch.NewGateway(adapters, fetch.GatewayConfig{
		Concurrency:        cfg.Fetch.Concurrency,
		Timeout:            cfg.Fetch.Timeout,
		MaxItemsPerRequest: cfg.Fetch.MaxItemsPerRequest,
		Limiter:            ratelimit.NewLimiter(cfg.Fetch.RatePerSecond, int(math.Ceil(cfg.Fetch.RatePerSecond))),
		Logger:             logger,
	})

	var publisher publish.Publisher = publish.Discard{}
	if cfg.Publish.Enabled {
		publisher = publish.NewFilePublisher(cfg.Publish.Dir)
	}

	orch, err := pipeline.New(cfg, pipeline.Dependencies{
		Store:    b.profiles,
		Fetcher:  gateway,
		Expander: expansion.NewExpander(capability, cfg.Expansion.MaxSubtopics, logger),
		Synthesizer: synthesis.NewSynthesizer(capability,
			synthesis.WithTier(llm.ParseTier(cfg.LLM.Tier)),
			synthesis.WithConcurrency(cfg.Fetch.Concurrency),
			synthesis.WithLogger(logger)),
		Updater:   preferences.NewUpdater(b.profiles, capability, cfg.Preferences, preferences.WithLogger(logger)),
		Publisher: publisher,
		Traces:    b.traces,
		Logger:    logger,
	})
	if err != nil {
		closeCapability()
		return nil, nil, err
	}
	return orch, closeCapability, nil
}
