// Package explain turns model attributions and the rule rationale into an
// auditable explanation.
package explain

import (
	"math"
	"sort"

	"github.com/ppiankov/iocscore/internal/features"
	"github.com/ppiankov/iocscore/internal/ml"
	"github.com/ppiankov/iocscore/internal/model"
)

// Attributor decomposes the model margin for one vector into per-feature
// contributions
type Attributor interface {
	Attribute(v features.Vector) (ml.Attribution, error)
}

// Input is everything one explanation is derived from
type Input struct {
	Indicator  string
	Type       model.IndicatorType
	Vector     features.Vector
	Prediction ml.Prediction
	Rule       model.RuleRationale
	Score      model.ScoreRecord
}

// Explainer builds explanations; it holds no per-call state
type Explainer struct {
	attributor Attributor
}

// NewExplainer creates an explainer. attributor may be nil when no model is
// loaded.
func NewExplainer(attributor Attributor) *Explainer {
	return &Explainer{attributor: attributor}
}

// Explain always returns an explanation. When attribution fails the
// explanation is partial and the returned error is an
// *model.ExplanationDegradedWarning describing why; it is not fatal.
func (e *Explainer) Explain(in Input, cfg model.ExplanationConfig) (model.Explanation, error) {
	out := model.Explanation{
		Indicator:     in.Indicator,
		Type:          in.Type,
		Status:        in.Score.Status,
		Factors:       []model.Factor{},
		RuleRationale: in.Rule,
		RuleNotes:     RuleNotes(in.Rule),
	}

	if !in.Prediction.Available {
		out.MLUnavailable = true
		out.Status = model.StatusRuleOnly
		out.BaseValue = ml.NeutralProbability
		out.Warnings = append(out.Warnings, "no trained model loaded; score is rule-only")
		out.Summary = summarize(out, in)
		return out, nil
	}
	out.ModelVersion = in.Prediction.ModelVersion

	var warn error
	if e.attributor == nil {
		warn = &model.ExplanationDegradedWarning{Cause: ml.ErrUnsupportedModel}
	} else if attr, err := e.attributor.Attribute(in.Vector); err != nil {
		warn = &model.ExplanationDegradedWarning{Cause: err}
	} else {
		out.Factors = Factors(attr, in.Vector, cfg)
		out.BaseValue = round6(ml.Sigmoid(attr.BaseMargin))
	}

	if warn != nil {
		out.Partial = true
		out.Warnings = append(out.Warnings, warn.Error())
	}
	out.Summary = summarize(out, in)
	return out, warn
}

// Factors converts log-odds attributions into probability-space impacts,
// orders them by |impact| (ties by feature name) and buckets magnitudes
// against the strongest factor. Zero impacts are dropped.
func Factors(attr ml.Attribution, v features.Vector, cfg model.ExplanationConfig) []model.Factor {
	p0 := ml.Sigmoid(attr.BaseMargin)
	p := ml.Sigmoid(attr.Margin)

	sumPhi := 0.0
	for _, phi := range attr.Phi {
		sumPhi += phi
	}

	values := v.Map()
	factors := make([]model.Factor, 0, len(attr.Phi))
	for i, phi := range attr.Phi {
		var impact float64
		if math.Abs(sumPhi) > 1e-12 {
			// share of the probability shift, proportional to the log-odds share
			impact = phi * (p - p0) / sumPhi
		} else {
			// local slope of the sigmoid
			impact = phi * p * (1 - p)
		}
		impact = round6(impact)
		if impact == 0 {
			continue
		}

		name := attr.Names[i]
		dir := model.DirectionIncreasing
		if impact < 0 {
			dir = model.DirectionDecreasing
		}
		factors = append(factors, model.Factor{
			Feature:   name,
			Label:     features.Label(name),
			Value:     values[name],
			Impact:    impact,
			Direction: dir,
		})
	}

	sort.Slice(factors, func(i, j int) bool {
		ai, aj := math.Abs(factors[i].Impact), math.Abs(factors[j].Impact)
		if ai != aj {
			return ai > aj
		}
		return factors[i].Feature < factors[j].Feature
	})

	if len(factors) > 0 {
		strongest := math.Abs(factors[0].Impact)
		for i := range factors {
			factors[i].Magnitude = bucket(math.Abs(factors[i].Impact)/strongest, cfg)
		}
	}

	if cfg.MaxFactors > 0 && len(factors) > cfg.MaxFactors {
		factors = factors[:cfg.MaxFactors]
	}
	return factors
}

func bucket(ratio float64, cfg model.ExplanationConfig) model.Magnitude {
	switch {
	case ratio > cfg.StrongRatio:
		return model.MagnitudeStrong
	case ratio > cfg.ModerateRatio:
		return model.MagnitudeModerate
	default:
		return model.MagnitudeSlight
	}
}

func round6(x float64) float64 {
	return math.Round(x*1e6) / 1e6
}
