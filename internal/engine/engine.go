// Package engine composes normalization, feature extraction, rule and ML
// scoring, fusion, explanation and caching into single-indicator calls.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/ppiankov/iocscore/internal/cache"
	"github.com/ppiankov/iocscore/internal/enrich"
	"github.com/ppiankov/iocscore/internal/explain"
	"github.com/ppiankov/iocscore/internal/features"
	"github.com/ppiankov/iocscore/internal/ml"
	"github.com/ppiankov/iocscore/internal/model"
	"github.com/ppiankov/iocscore/internal/normalize"
	"github.com/ppiankov/iocscore/internal/rules"
	"github.com/ppiankov/iocscore/internal/score"
	"github.com/ppiankov/iocscore/internal/telemetry"
)

// Request is one indicator to assess. Enrichment fields the caller supplies
// always win over what configured providers find.
type Request struct {
	Type       string           `json:"type"`
	Value      string           `json:"value"`
	Feeds      []string         `json:"feeds"`
	Enrichment model.Enrichment `json:"enrichment"`
}

// Assessment is the full result for one indicator
type Assessment struct {
	Type        model.IndicatorType `json:"type"`
	Value       string              `json:"value"` // canonical
	Fingerprint string              `json:"fingerprint"`
	Feeds       []string            `json:"feeds"`
	Enrichment  model.Enrichment    `json:"enrichment"`

	Score       model.ScoreRecord   `json:"score"`
	Rule        model.RuleRationale `json:"rule"`
	Prediction  ml.Prediction       `json:"prediction"`
	Explanation model.Explanation   `json:"explanation"`

	Cached bool `json:"cached"`
}

// Options wires an Engine. Only Rules is required.
type Options struct {
	Rules    *rules.Source
	Model    ml.Classifier // nil runs rule-only
	Cache    cache.Cache   // nil disables caching
	CacheTTL time.Duration
	Enricher *enrich.Chain
	Metrics  *telemetry.Metrics
	Logger   zerolog.Logger
}

// Engine is safe for concurrent use. The model is shared read-only; the
// rules document is read once per call from an atomic source.
type Engine struct {
	rules     *rules.Source
	scorer    *ml.Scorer
	explainer *explain.Explainer
	memo      *cache.Memo[Assessment]
	enricher  *enrich.Chain
	metrics   *telemetry.Metrics
	log       zerolog.Logger
}

// New creates an engine
func New(opts Options) (*Engine, error) {
	if opts.Rules == nil || opts.Rules.Current() == nil {
		return nil, errors.New("engine requires a rules source")
	}

	e := &Engine{
		rules:     opts.Rules,
		scorer:    ml.NewScorer(opts.Model),
		explainer: explain.NewExplainer(attributorFor(opts.Model)),
		enricher:  opts.Enricher,
		metrics:   opts.Metrics,
		log:       opts.Logger.With().Str("component", "engine").Logger(),
	}

	if opts.Cache != nil {
		e.memo = cache.NewMemo[Assessment](opts.Cache, opts.CacheTTL)
		e.memo.OnWriteError = func(key string, err error) {
			e.log.Warn().Err(err).Str("key", key).Msg("failed to write assessment cache")
		}
	}

	if e.scorer.Available() {
		e.log.Info().Str("model_version", e.scorer.Version()).Msg("model loaded")
	} else {
		e.log.Warn().Msg("no trained model loaded; scoring in rule-only mode")
	}

	return e, nil
}

func attributorFor(clf ml.Classifier) explain.Attributor {
	if clf == nil {
		return nil
	}
	return ml.NewShapAttributor(clf)
}

// ModelVersion returns the loaded model version or ""
func (e *Engine) ModelVersion() string {
	return e.scorer.Version()
}

// ModelAvailable reports whether ML scoring is active
func (e *Engine) ModelAvailable() bool {
	return e.scorer.Available()
}

// Rules returns the active rules document
func (e *Engine) Rules() *model.RulesConfig {
	return e.rules.Current()
}

// ScoreIndicator returns the fused score, rule rationale, prediction and
// explanation for one indicator
func (e *Engine) ScoreIndicator(ctx context.Context, req Request) (Assessment, error) {
	return e.assess(ctx, req)
}

// ExplainIndicator returns only the explanation
func (e *Engine) ExplainIndicator(ctx context.Context, req Request) (model.Explanation, error) {
	a, err := e.assess(ctx, req)
	if err != nil {
		return model.Explanation{}, err
	}
	return a.Explanation, nil
}

// AssessIndicator scores a stored indicator with its provenance and enrichment
func (e *Engine) AssessIndicator(ctx context.Context, ind *model.Indicator) (Assessment, error) {
	return e.assess(ctx, Request{
		Type:       string(ind.Type),
		Value:      ind.Value,
		Feeds:      ind.Feeds(),
		Enrichment: ind.Enrichment,
	})
}

func (e *Engine) assess(ctx context.Context, req Request) (Assessment, error) {
	t, value, err := normalize.Normalize(req.Type, req.Value)
	if err != nil {
		return Assessment{}, err
	}
	feeds := normalize.NormalizeFeeds(req.Feeds)
	sort.Strings(feeds)
	enr := e.enricher.Enrich(ctx, t, value, req.Enrichment)

	// one snapshot per call: a concurrent reload never mixes documents
	cfg := e.rules.Current()

	compute := func() (Assessment, error) {
		return e.compute(ctx, t, value, feeds, enr, cfg)
	}
	if e.memo == nil {
		return compute()
	}

	key := cache.Key(cache.KeyParts{
		Type:             string(t),
		Value:            value,
		Feeds:            feeds,
		EnrichmentDigest: enr.Digest(),
		ModelVersion:     e.scorer.Version(),
		RulesVersion:     cfg.Label(),
	})
	a, hit, err := e.memo.GetOrCompute(key, compute)
	e.metrics.CacheLookup(ctx, hit)
	if err != nil {
		return Assessment{}, err
	}
	a.Cached = hit
	return a, nil
}

func (e *Engine) compute(ctx context.Context, t model.IndicatorType, value string, feeds []string, enr model.Enrichment, cfg *model.RulesConfig) (Assessment, error) {
	start := time.Now()
	v := features.Extract(t, value, feeds, enr)

	pred, err := e.scorer.Score(v)
	switch {
	case err == nil, errors.Is(err, model.ErrModelUnavailable):
	default:
		var mismatch *model.FeatureSchemaMismatchError
		if errors.As(err, &mismatch) {
			e.metrics.SchemaMismatch(ctx, mismatch.ModelVersion)
			e.log.Error().
				Str("model_version", mismatch.ModelVersion).
				Str("model_schema", mismatch.ModelSchema).
				Str("vector_schema", mismatch.VectorSchema).
				Strs("missing", mismatch.Missing).
				Strs("unexpected", mismatch.Unexpected).
				Int("first_mismatch", mismatch.FirstMismatch).
				Msg("feature schema mismatch")
		}
		return Assessment{}, fmt.Errorf("ml scoring: %w", err)
	}

	rec, rule := score.NewScorer(cfg).Score(feeds, score.MLResult{
		Available:    pred.Available,
		Probability:  pred.Probability,
		ModelVersion: pred.ModelVersion,
	})

	expl, warn := e.explainer.Explain(explain.Input{
		Indicator:  value,
		Type:       t,
		Vector:     v,
		Prediction: pred,
		Rule:       rule,
		Score:      rec,
	}, cfg.Explanation)
	if warn != nil {
		e.metrics.ExplanationDegraded(ctx)
		e.log.Warn().Err(warn).Str("type", string(t)).Str("value", value).Msg("explanation degraded")
	}

	e.metrics.Scored(ctx, string(rec.Status), string(rec.Tier), time.Since(start))
	e.log.Debug().
		Str("type", string(t)).
		Str("value", value).
		Int("rule_score", rec.RuleScore).
		Int("ml_score", rec.MLScoreScaled).
		Int("final_score", rec.FinalScore).
		Str("tier", string(rec.Tier)).
		Msg("indicator scored")

	return Assessment{
		Type:        t,
		Value:       value,
		Fingerprint: normalize.Fingerprint(t, value),
		Feeds:       feeds,
		Enrichment:  enr,
		Score:       rec,
		Rule:        rule,
		Prediction:  pred,
		Explanation: expl,
	}, nil
}
