package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// RulesConfig is the operator-owned scoring rules document.
// It is data, not code: the engine receives it injected and may have it
// swapped at runtime.
type RulesConfig struct {
	Version            string            `yaml:"version" json:"version"`
	FeedPoints         map[string]int    `yaml:"feed_points" json:"feed_points"`
	DefaultPoints      int               `yaml:"default_points" json:"default_points"`
	MultiFeedThreshold int               `yaml:"multi_feed_threshold" json:"multi_feed_threshold"`
	MultiFeedBonus     int               `yaml:"multi_feed_bonus" json:"multi_feed_bonus"`
	Tiers              TierCuts          `yaml:"tiers" json:"tiers"`
	Fusion             FusionWeights     `yaml:"fusion" json:"fusion"`
	Explanation        ExplanationConfig `yaml:"explanation" json:"explanation"`
}

// TierCuts are inclusive upper bounds: a score equal to a cut point belongs
// to the lower tier (score <= Low is low, <= Medium is medium, <= High is
// high, anything above is critical).
type TierCuts struct {
	Low    int `yaml:"low" json:"low"`
	Medium int `yaml:"medium" json:"medium"`
	High   int `yaml:"high" json:"high"`
}

// FusionWeights weight the rule and ML terms of the final score
type FusionWeights struct {
	Rule float64 `yaml:"rule" json:"rule"`
	ML   float64 `yaml:"ml" json:"ml"`
}

// ExplanationConfig tunes magnitude bucketing and factor count
type ExplanationConfig struct {
	StrongRatio   float64 `yaml:"strong_ratio" json:"strong_ratio"`     // |impact|/max above this is strong
	ModerateRatio float64 `yaml:"moderate_ratio" json:"moderate_ratio"` // above this is moderate
	MaxFactors    int     `yaml:"max_factors" json:"max_factors"`       // 0 keeps every non-zero factor
}

// DefaultRules returns the stock rules document
func DefaultRules() *RulesConfig {
	return &RulesConfig{
		Version: "default-v1",
		FeedPoints: map[string]int{
			"abuseipdb":        30,
			"alienvault_otx":   25,
			"threatfox":        35,
			"feodotracker":     40,
			"spamhaus_drop":    40,
			"emerging_threats": 25,
			"blocklist_de":     20,
			"cins_army":        20,
			"malwarebazaar":    35,
			"urlhaus":          35,
			"openphish":        30,
			"phishtank":        30,
		},
		DefaultPoints:      10,
		MultiFeedThreshold: 2,
		MultiFeedBonus:     15,
		Tiers:              TierCuts{Low: 30, Medium: 70, High: 90},
		Fusion:             FusionWeights{Rule: 0.7, ML: 0.3},
		Explanation: ExplanationConfig{
			StrongRatio:   0.3,
			ModerateRatio: 0.1,
			MaxFactors:    10,
		},
	}
}

// Validate rejects documents that would break scoring invariants.
// Non-negative points keep the rule score monotonic in the feed set.
func (c *RulesConfig) Validate() error {
	for feed, pts := range c.FeedPoints {
		if feed == "" {
			return &ConfigError{Field: "feed_points", Reason: "empty feed name"}
		}
		if pts < 0 {
			return &ConfigError{Field: "feed_points." + feed, Reason: fmt.Sprintf("negative points %d", pts)}
		}
	}
	if c.DefaultPoints < 0 {
		return &ConfigError{Field: "default_points", Reason: "must be >= 0"}
	}
	if c.MultiFeedBonus < 0 {
		return &ConfigError{Field: "multi_feed_bonus", Reason: "must be >= 0"}
	}
	if c.MultiFeedThreshold < 1 {
		return &ConfigError{Field: "multi_feed_threshold", Reason: "must be >= 1"}
	}
	t := c.Tiers
	if t.Low < 0 || t.Low >= t.Medium || t.Medium >= t.High || t.High > 100 {
		return &ConfigError{Field: "tiers", Reason: fmt.Sprintf("cut points must satisfy 0 <= low < medium < high <= 100, got %d/%d/%d", t.Low, t.Medium, t.High)}
	}
	if c.Fusion.Rule < 0 || c.Fusion.ML < 0 || c.Fusion.Rule+c.Fusion.ML <= 0 {
		return &ConfigError{Field: "fusion", Reason: "weights must be >= 0 with a positive sum"}
	}
	if c.Fusion.Rule == 0 {
		return &ConfigError{Field: "fusion.rule", Reason: "rule weight must be positive for rule-only fallback"}
	}
	e := c.Explanation
	if e.ModerateRatio < 0 || e.StrongRatio > 1 || e.ModerateRatio > e.StrongRatio {
		return &ConfigError{Field: "explanation", Reason: "ratios must satisfy 0 <= moderate <= strong <= 1"}
	}
	if e.MaxFactors < 0 {
		return &ConfigError{Field: "explanation.max_factors", Reason: "must be >= 0"}
	}
	return nil
}

// Digest identifies the document's content. It is part of every cache key
// so a swapped rules document never serves stale scores.
func (c *RulesConfig) Digest() string {
	feeds := make([]string, 0, len(c.FeedPoints))
	for f := range c.FeedPoints {
		feeds = append(feeds, f)
	}
	sort.Strings(feeds)

	// encoding/json sorts map keys, the explicit list keeps intent visible
	data, _ := json.Marshal(struct {
		Feeds []string
		C     *RulesConfig
	}{feeds, c})
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}

// Label is the human-readable rules identity stored on score records
func (c *RulesConfig) Label() string {
	if c.Version == "" {
		return c.Digest()
	}
	return c.Version + "+" + c.Digest()
}
