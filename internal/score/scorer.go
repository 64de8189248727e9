// Package score implements rule scoring, rule/ML fusion and tiering
package score

import "github.com/ppiankov/iocscore/internal/model"

// MLResult is the part of an ML prediction fusion needs
type MLResult struct {
	Available    bool
	Probability  float64 // 0.5 when unavailable
	ModelVersion string
}

// Scorer turns a rule rationale and an ML result into a score record
type Scorer struct {
	rules *model.RulesConfig
}

// NewScorer creates a new scorer bound to one rules document
func NewScorer(rules *model.RulesConfig) *Scorer {
	return &Scorer{rules: rules}
}

// Calculate fuses both terms and assigns the tier
func (s *Scorer) Calculate(rule model.RuleRationale, ml MLResult) model.ScoreRecord {
	rec := model.ScoreRecord{
		RuleScore:     rule.Score,
		MLScoreRaw:    ml.Probability,
		MLScoreScaled: ScaleProbability(ml.Probability),
		MLAvailable:   ml.Available,
		Status:        model.StatusOK,
		RulesVersion:  s.rules.Label(),
	}

	if ml.Available {
		rec.ModelVersion = ml.ModelVersion
	} else {
		rec.Status = model.StatusRuleOnly
		rec.MLScoreRaw = 0.5
		rec.MLScoreScaled = 50
	}

	rec.FinalScore = Fuse(rec.RuleScore, rec.MLScoreScaled, s.rules.Fusion, ml.Available)
	rec.Tier = TierFor(rec.FinalScore, s.rules.Tiers)

	return rec
}

// Score runs the rule scorer and fusion in one step
func (s *Scorer) Score(feeds []string, ml MLResult) (model.ScoreRecord, model.RuleRationale) {
	rule := ScoreRules(feeds, s.rules)
	return s.Calculate(rule, ml), rule
}
