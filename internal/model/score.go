package model

// Tier is the coarse severity bucket derived from the final score
type Tier string

const (
	TierLow      Tier = "low"
	TierMedium   Tier = "medium"
	TierHigh     Tier = "high"
	TierCritical Tier = "critical"
)

// Status tells analysts how the score was produced
type Status string

const (
	StatusOK       Status = "ok"        // rule and ML terms fused
	StatusRuleOnly Status = "rule_only" // no model loaded, ML term skipped
)

// ScoreRecord is the outcome of scoring one indicator.
// FinalScore depends only on RuleScore, MLScoreScaled and the fusion weights.
type ScoreRecord struct {
	RuleScore     int     `json:"rule_score"`      // 0-100
	MLScoreRaw    float64 `json:"ml_score_raw"`    // 0-1, neutral 0.5 when unavailable
	MLScoreScaled int     `json:"ml_score_scaled"` // round(MLScoreRaw*100)
	FinalScore    int     `json:"final_score"`     // 0-100
	Tier          Tier    `json:"tier"`

	MLAvailable  bool   `json:"ml_available"`
	Status       Status `json:"status"`
	ModelVersion string `json:"model_version,omitempty"`
	RulesVersion string `json:"rules_version"`
}

// RuleContribution is the share of the rule score one feed accounts for
type RuleContribution struct {
	Feed   string `json:"feed"`
	Points int    `json:"points"`
	Known  bool   `json:"known"` // false when default_points was applied
}

// RuleRationale documents how the rule score was derived
type RuleRationale struct {
	Contributions []RuleContribution `json:"contributions"`
	FeedCount     int                `json:"feed_count"`
	BonusApplied  bool               `json:"bonus_applied"`
	Bonus         int                `json:"bonus"`
	Threshold     int                `json:"threshold"`
	RawSum        int                `json:"raw_sum"`
	Clamped       bool               `json:"clamped"`
	Score         int                `json:"score"`
	Formula       string             `json:"formula"`
}
