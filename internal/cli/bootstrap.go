package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/ppiankov/iocscore/internal/cache"
	"github.com/ppiankov/iocscore/internal/engine"
	"github.com/ppiankov/iocscore/internal/enrich"
	"github.com/ppiankov/iocscore/internal/features"
	"github.com/ppiankov/iocscore/internal/llm"
	"github.com/ppiankov/iocscore/internal/logger"
	"github.com/ppiankov/iocscore/internal/ml"
	"github.com/ppiankov/iocscore/internal/model"
	"github.com/ppiankov/iocscore/internal/rules"
	"github.com/ppiankov/iocscore/internal/store"
	"github.com/ppiankov/iocscore/internal/telemetry"
)

// app holds everything a command needs, built once from config
type app struct {
	cfg      *model.Config
	log      zerolog.Logger
	rules    *rules.Source
	engine   *engine.Engine
	store    store.Store
	narrator *llm.Narrator
	metrics  *telemetry.Metrics

	closers []func() error
}

type bootOptions struct {
	withStore    bool
	withNarrator bool
	withMetrics  bool
}

func bootstrap(ctx context.Context, cfg *model.Config, opts bootOptions) (a *app, err error) {
	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Debug:  cfg.Logging.Debug,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, err
	}

	a = &app{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if opts.withMetrics {
		mp, err := telemetry.Setup(ctx, cfg.Telemetry, Version)
		switch {
		case err == nil:
			a.closers = append(a.closers, func() error { return shutdownMeter(mp) })
			a.metrics = telemetry.New(mp)
		case errors.Is(err, telemetry.ErrMetricsDisabled):
		default:
			return nil, err
		}
	}

	rulesCfg := model.DefaultRules()
	if cfg.RulesFile != "" {
		if rulesCfg, err = rules.Load(cfg.RulesFile); err != nil {
			return nil, err
		}
	}
	a.rules = rules.NewSource(rulesCfg)

	var clf ml.Classifier
	if cfg.ModelFile != "" {
		if clf, err = ml.Load(cfg.ModelFile); err != nil {
			return nil, fmt.Errorf("load model: %w", err)
		}
	}

	c, err := a.openCache()
	if err != nil {
		return nil, err
	}

	enricher, err := a.openEnricher()
	if err != nil {
		return nil, err
	}

	a.engine, err = engine.New(engine.Options{
		Rules:    a.rules,
		Model:    clf,
		Cache:    c,
		CacheTTL: cfg.Cache.MemoryTTL,
		Enricher: enricher,
		Metrics:  a.metrics,
		Logger:   log,
	})
	if err != nil {
		return nil, err
	}

	if opts.withStore {
		if a.store, err = store.Open(cfg.Store); err != nil {
			return nil, err
		}
		a.closers = append(a.closers, a.store.Close)
	}

	if opts.withNarrator {
		if a.narrator, err = llm.NewNarrator(llm.ConfigFromModel(cfg.LLM), knownFeeds(rulesCfg)); err != nil {
			return nil, err
		}
	}

	return a, nil
}

func (a *app) openCache() (cache.Cache, error) {
	cfg := a.cfg.Cache
	if !cfg.Enabled {
		return nil, nil
	}

	mem := cache.NewMemoryCache(cfg.MemoryTTL, 2*cfg.MemoryTTL)
	if cfg.BoltPath == "" {
		return mem, nil
	}

	bolt, err := cache.NewBoltCache(cfg.BoltPath, cfg.BoltTTL)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	a.closers = append(a.closers, bolt.Close)
	return cache.NewLayeredCache(mem, bolt), nil
}

func (a *app) openEnricher() (*enrich.Chain, error) {
	var providers []enrich.Provider

	if dbs := a.cfg.Enrichment.GeoIPDatabases; len(dbs) > 0 {
		geo, err := enrich.OpenGeoIP(dbs...)
		if err != nil {
			return nil, err
		}
		providers = append(providers, geo)
	}

	for _, path := range a.cfg.Enrichment.StaticTables {
		st, err := enrich.LoadStatic(path)
		if err != nil {
			_ = enrich.NewChain(a.log, providers...).Close()
			return nil, err
		}
		providers = append(providers, st)
	}

	chain := enrich.NewChain(a.log, providers...)
	a.closers = append(a.closers, chain.Close)
	return chain, nil
}

// Close releases resources in reverse order of acquisition
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func shutdownMeter(mp *sdkmetric.MeterProvider) error {
	return mp.Shutdown(context.Background())
}

// knownFeeds lists every feed the narrator should recognize in prose
func knownFeeds(cfg *model.RulesConfig) []string {
	seen := make(map[string]struct{})
	for _, f := range features.KnownFeeds() {
		seen[f] = struct{}{}
	}
	for f := range cfg.FeedPoints {
		seen[f] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}
