package model

// Direction of a factor's effect on the ML probability
type Direction string

const (
	DirectionIncreasing Direction = "increasing"
	DirectionDecreasing Direction = "decreasing"
)

// Magnitude buckets a factor's impact relative to the strongest factor
type Magnitude string

const (
	MagnitudeSlight   Magnitude = "slight"
	MagnitudeModerate Magnitude = "moderate"
	MagnitudeStrong   Magnitude = "strong"
)

// Factor is one feature's contribution to the ML probability
type Factor struct {
	Feature   string    `json:"feature"`
	Label     string    `json:"label"`
	Value     float64   `json:"value"`  // feature value fed to the model
	Impact    float64   `json:"impact"` // signed, probability units
	Direction Direction `json:"direction"`
	Magnitude Magnitude `json:"magnitude"`
}

// Explanation is the auditable account of a score.
// The same inputs and model version always yield an identical Explanation.
type Explanation struct {
	Indicator     string        `json:"indicator"`
	Type          IndicatorType `json:"type"`
	Status        Status        `json:"status"`
	Partial       bool          `json:"partial"`        // attribution missing, rule rationale only
	MLUnavailable bool          `json:"ml_unavailable"` // no model loaded
	ModelVersion  string        `json:"model_version,omitempty"`

	Factors       []Factor      `json:"factors"`
	BaseValue     float64       `json:"base_value"` // expected model probability with no evidence
	RuleRationale RuleRationale `json:"rule_rationale"`
	RuleNotes     []string      `json:"rule_notes"`
	Summary       string        `json:"summary"`
	Warnings      []string      `json:"warnings,omitempty"`
}

// Narrative is an optional LLM prose rendering of an explanation.
// It never feeds back into scores or explanations.
type Narrative struct {
	Enabled  bool     `json:"enabled"`
	Provider string   `json:"provider,omitempty"`
	Model    string   `json:"model,omitempty"`
	Strict   bool     `json:"strict"`
	Text     string   `json:"text,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}
