package explain

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/iocscore/internal/features"
	"github.com/ppiankov/iocscore/internal/ml"
	"github.com/ppiankov/iocscore/internal/model"
	"github.com/ppiankov/iocscore/internal/score"
)

type fixedAttributor struct {
	attr ml.Attribution
	err  error
}

func (f fixedAttributor) Attribute(features.Vector) (ml.Attribution, error) {
	return f.attr, f.err
}

func attribution(phis map[string]float64, base float64) ml.Attribution {
	a := ml.Attribution{
		ModelVersion: "gbt-1",
		Names:        features.ExpectedFeatures,
		Phi:          make([]float64, len(features.ExpectedFeatures)),
		BaseMargin:   base,
		Margin:       base,
	}
	for i, n := range a.Names {
		a.Phi[i] = phis[n]
		a.Margin += phis[n]
	}
	return a
}

func testInput(available bool) Input {
	feeds := []string{"abuseipdb", "threatfox"}
	rules := model.DefaultRules()
	rule := score.ScoreRules(feeds, rules)
	pred := ml.Prediction{Available: available, Probability: 0.8, Scaled: 80, ModelVersion: "gbt-1"}
	if !available {
		pred = ml.Prediction{Probability: 0.5, Scaled: 50}
	}
	rec := score.NewScorer(rules).Calculate(rule, score.MLResult{
		Available: available, Probability: pred.Probability, ModelVersion: pred.ModelVersion,
	})
	return Input{
		Indicator:  "1.2.3.4",
		Type:       model.TypeIP,
		Vector:     features.Extract(model.TypeIP, "1.2.3.4", feeds, model.Enrichment{Country: "RU"}),
		Prediction: pred,
		Rule:       rule,
		Score:      rec,
	}
}

func TestFactorsOrderingAndBuckets(t *testing.T) {
	attr := attribution(map[string]float64{
		"feed_count":        1.0,
		"country_high_risk": -0.5,
		"from_threat_feed":  0.2,
		"feed_abuseipdb":    0.05,
		"feed_threatfox":    0.05,
	}, -1)

	cfg := model.DefaultRules().Explanation
	v := features.Extract(model.TypeIP, "1.2.3.4", []string{"abuseipdb", "threatfox"}, model.Enrichment{Country: "RU"})
	factors := Factors(attr, v, cfg)

	require.Len(t, factors, 5)
	names := []string{}
	for _, f := range factors {
		names = append(names, f.Feature)
	}
	assert.Equal(t, []string{"feed_count", "country_high_risk", "from_threat_feed", "feed_abuseipdb", "feed_threatfox"}, names,
		"descending |impact|, ties by name")

	assert.Equal(t, model.MagnitudeStrong, factors[0].Magnitude)
	assert.Equal(t, model.MagnitudeStrong, factors[1].Magnitude) // 0.5 of max
	assert.Equal(t, model.MagnitudeModerate, factors[2].Magnitude)
	assert.Equal(t, model.MagnitudeSlight, factors[3].Magnitude)

	assert.Equal(t, model.DirectionIncreasing, factors[0].Direction)
	assert.Equal(t, model.DirectionDecreasing, factors[1].Direction)
	assert.Equal(t, 2.0, factors[0].Value)
	assert.Equal(t, "Number of reporting feeds", factors[0].Label)
}

func TestFactorsSumToProbabilityShift(t *testing.T) {
	attr := attribution(map[string]float64{"feed_count": 1.3, "country_high_risk": 0.4, "has_asn": -0.2}, -0.7)
	factors := Factors(attr, features.Vector{}, model.ExplanationConfig{StrongRatio: 0.3, ModerateRatio: 0.1})

	sum := 0.0
	for _, f := range factors {
		sum += f.Impact
	}
	want := ml.Sigmoid(attr.Margin) - ml.Sigmoid(attr.BaseMargin)
	assert.InDelta(t, want, sum, 1e-5)
}

func TestFactorsZeroNetShift(t *testing.T) {
	attr := attribution(map[string]float64{"feed_count": 0.5, "has_asn": -0.5}, 0)
	factors := Factors(attr, features.Vector{}, model.ExplanationConfig{StrongRatio: 0.3, ModerateRatio: 0.1})

	require.Len(t, factors, 2)
	assert.InDelta(t, 0.125, math.Abs(factors[0].Impact), 1e-9)
	assert.Equal(t, "feed_count", factors[0].Feature, "equal magnitude ties by name")
}

func TestFactorsMaxFactorsAndZeroDropped(t *testing.T) {
	attr := attribution(map[string]float64{"a_unknown": 0, "feed_count": 1, "has_asn": 0.5, "ip_is_v6": 0.25}, 0)
	cfg := model.ExplanationConfig{StrongRatio: 0.3, ModerateRatio: 0.1, MaxFactors: 2}

	factors := Factors(attr, features.Vector{}, cfg)
	require.Len(t, factors, 2)
	assert.Equal(t, "feed_count", factors[0].Feature)
	assert.Equal(t, "has_asn", factors[1].Feature)
}

func TestExplainFull(t *testing.T) {
	in := testInput(true)
	attr := attribution(map[string]float64{"feed_count": 1.0, "country_high_risk": 0.6}, -0.2)

	e := NewExplainer(fixedAttributor{attr: attr})
	exp, err := e.Explain(in, model.DefaultRules().Explanation)
	require.NoError(t, err)

	assert.False(t, exp.Partial)
	assert.False(t, exp.MLUnavailable)
	assert.Equal(t, model.StatusOK, exp.Status)
	assert.Equal(t, "gbt-1", exp.ModelVersion)
	assert.Len(t, exp.Factors, 2)
	assert.InDelta(t, ml.Sigmoid(-0.2), exp.BaseValue, 1e-6)
	assert.Contains(t, exp.Summary, "Main drivers")
	assert.Equal(t, []string{
		"abuseipdb: +30 points",
		"threatfox: +35 points",
		"multi-feed bonus: +15 points (2 feeds >= threshold 2)",
	}, exp.RuleNotes)
}

func TestExplainDegradedOnAttributionFailure(t *testing.T) {
	in := testInput(true)
	e := NewExplainer(fixedAttributor{err: ml.ErrUnsupportedModel})

	exp, err := e.Explain(in, model.DefaultRules().Explanation)

	var warn *model.ExplanationDegradedWarning
	require.True(t, errors.As(err, &warn))
	assert.True(t, errors.Is(err, ml.ErrUnsupportedModel))

	assert.True(t, exp.Partial)
	assert.Empty(t, exp.Factors)
	assert.NotEmpty(t, exp.RuleNotes, "rule rationale is never omitted")
	assert.Equal(t, in.Rule, exp.RuleRationale)
	require.Len(t, exp.Warnings, 1)
	assert.True(t, strings.HasPrefix(exp.Warnings[0], "explanation degraded"))
	assert.Contains(t, exp.Summary, "rule rationale only")
}

func TestExplainNilAttributorIsDegraded(t *testing.T) {
	exp, err := NewExplainer(nil).Explain(testInput(true), model.DefaultRules().Explanation)
	assert.Error(t, err)
	assert.True(t, exp.Partial)
}

func TestExplainMLUnavailable(t *testing.T) {
	in := testInput(false)
	e := NewExplainer(fixedAttributor{err: errors.New("must not be called")})

	exp, err := e.Explain(in, model.DefaultRules().Explanation)
	require.NoError(t, err)

	assert.True(t, exp.MLUnavailable)
	assert.False(t, exp.Partial)
	assert.Equal(t, model.StatusRuleOnly, exp.Status)
	assert.Empty(t, exp.Factors)
	assert.Contains(t, exp.Summary, "equals the rule score")
}

func TestExplainDeterministic(t *testing.T) {
	in := testInput(true)
	attr := attribution(map[string]float64{"feed_count": 1.0, "country_high_risk": 0.6, "has_asn": 0.6}, -0.2)
	e := NewExplainer(fixedAttributor{attr: attr})

	a, _ := e.Explain(in, model.DefaultRules().Explanation)
	b, _ := e.Explain(in, model.DefaultRules().Explanation)
	assert.Equal(t, a, b)
}

func TestRuleNotes(t *testing.T) {
	assert.Equal(t, []string{"no reporting feeds: rule score 0"}, RuleNotes(model.RuleRationale{}))

	rules := model.DefaultRules()
	r := score.ScoreRules([]string{"feodotracker", "spamhaus_drop", "threatfox", "mystery"}, rules)
	notes := RuleNotes(r)
	assert.Contains(t, notes, "mystery: +10 points (unknown feed, default)")
	assert.Contains(t, notes, "raw sum 140 clamped to 100")
}
