package cli

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ppiankov/siteintent/internal/cache"
	"github.com/ppiankov/siteintent/internal/config"
	"github.com/ppiankov/siteintent/internal/intent"
	"github.com/ppiankov/siteintent/internal/llm"
	"github.com/ppiankov/siteintent/internal/logging"
	"github.com/ppiankov/siteintent/internal/metrics"
	"github.com/ppiankov/siteintent/internal/misslog"
	"github.com/ppiankov/siteintent/internal/pipeline"
	"github.com/ppiankov/siteintent/internal/publish"
	"github.com/ppiankov/siteintent/internal/registry"
	"github.com/ppiankov/siteintent/internal/resolve"
	"github.com/ppiankov/siteintent/internal/score"
	"github.com/ppiankov/siteintent/internal/worker"
)

// app is everything a command needs, built once from config
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	pipeline *pipeline.Pipeline
	pusher   publish.Pusher
	closers  []func() error
}

func newApp(ctx context.Context, cfg *config.Config, proxy config.Proxy) (*app, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	metrics.Init()
	a := &app{cfg: cfg, logger: logger}

	intents, err := loadIntentMap(cfg.Resolve.IntentMap)
	if err != nil {
		return nil, err
	}

	limiter := worker.NewLimiter(cfg.RateLimit.RequestsPerSecond, 1)

	provider, err := llm.NewProvider(cfg.ProviderConfig(proxy), limiter)
	if err != nil {
		return nil, fmt.Errorf("llm provider: %w", err)
	}
	popts := llm.ProposerOptions{
		TokenBudget: cfg.LLM.TokenBudget,
		Timeout:     cfg.LLM.Timeout,
		Logger:      logger,
	}
	opts := pipeline.Options{
		Proposer:    llm.NewProposer(provider, popts),
		Scorer:      score.NewScorer(cfg.Gate.Threshold, cfg.Gate.MinPayload),
		CountryCode: cfg.Resolve.CountryCode,
		Prefetch:    cfg.LLM.Prefetch,
		Logger:      logger,
	}
	if cfg.Profile.Enabled {
		opts.Profiles = llm.NewProfileBuilder(provider, popts)
	}

	det := resolve.NewDeterministic(cfg.Resolve.CountryCode)
	if cfg.Resolve.FuzzyThreshold > 0 {
		det.Threshold = cfg.Resolve.FuzzyThreshold
	}
	opts.Resolver = det
	opts.Deriver = resolve.NewDeriver(resolve.DeriveConfig{
		MapsSearchURL:  cfg.Resolve.MapsSearchURL,
		ProfileBaseURL: cfg.Resolve.ProfileBaseURL,
		VCardTemplate:  cfg.Resolve.VCardTemplate,
		TrustedSources: cfg.Resolve.TrustedSources,
	})

	if opts.Registry, err = newRegistry(cfg, proxy, limiter, logger); err != nil {
		return nil, err
	}
	if opts.MissLog, err = a.newMissLog(ctx); err != nil {
		return nil, err
	}
	if a.pusher, err = newPusher(cfg, proxy, limiter); err != nil {
		return nil, err
	}

	a.pipeline, err = pipeline.NewPipeline(intents, opts)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func loadIntentMap(path string) (*intent.Map, error) {
	if path == "" {
		return intent.Default()
	}
	return intent.Load(path)
}

func newRegistry(cfg *config.Config, proxy config.Proxy, limiter *worker.Limiter, logger *zap.Logger) (registry.Lookup, error) {
	if cfg.Registry.Endpoint == "" {
		return nil, nil
	}
	lookup, err := registry.NewHTTPLookup(registry.Config{
		Endpoint:   cfg.Registry.Endpoint,
		APIKey:     cfg.Registry.APIKey,
		Source:     cfg.Registry.Source,
		Timeout:    cfg.Registry.Timeout,
		HTTPProxy:  proxy.HTTP,
		HTTPSProxy: proxy.HTTPS,
		NoProxy:    proxy.NoProxy,
	}, limiter, logger)
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}

	c, err := cache.New(cache.Options{Kind: cfg.Cache.Kind, Dir: cfg.Cache.Dir, TTL: cfg.Cache.TTL})
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	return registry.NewCached(lookup, c, cfg.Registry.CacheTTL), nil
}

func (a *app) newMissLog(ctx context.Context) (misslog.Sink, error) {
	c := a.cfg.MissLog
	switch c.Sink {
	case "file":
		sink, err := misslog.NewFileSink(c.Path)
		if err != nil {
			return nil, fmt.Errorf("misslog: %w", err)
		}
		return sink, nil
	case "redis":
		sink, err := misslog.NewRedisSinkFromURL(ctx, c.RedisURL, c.RedisKey, c.MaxLen)
		if err != nil {
			return nil, fmt.Errorf("misslog: %w", err)
		}
		a.closers = append(a.closers, sink.Close)
		return sink, nil
	default:
		return misslog.Nop{}, nil
	}
}

func newPusher(cfg *config.Config, proxy config.Proxy, limiter *worker.Limiter) (publish.Pusher, error) {
	switch {
	case cfg.Publish.Endpoint != "":
		p, err := publish.NewHTTPPusher(publish.HTTPConfig{
			Endpoint:   cfg.Publish.Endpoint,
			Token:      cfg.Publish.Token,
			Timeout:    cfg.Publish.Timeout,
			HTTPProxy:  proxy.HTTP,
			HTTPSProxy: proxy.HTTPS,
			NoProxy:    proxy.NoProxy,
		}, limiter)
		if err != nil {
			return nil, fmt.Errorf("publish: %w", err)
		}
		return p, nil
	case cfg.Publish.Dir != "":
		return publish.NewFilePusher(cfg.Publish.Dir), nil
	default:
		return nil, nil
	}
}

// Close releases sinks and flushes the logger
func (a *app) Close() error {
	var first error
	for _, c := range a.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	_ = a.logger.Sync()
	return first
}
