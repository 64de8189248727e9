package score

import (
	"testing"

	"github.com/ppiankov/iocscore/internal/model"
)

func TestScoreRules_KnownAndUnknownFeeds(t *testing.T) {
	cfg := model.DefaultRules()

	r := ScoreRules([]string{"abuseipdb"}, cfg)
	if r.Score != 30 {
		t.Errorf("expected score 30, got %d", r.Score)
	}
	if r.BonusApplied {
		t.Error("expected no bonus for a single feed")
	}

	r = ScoreRules([]string{"brand_new_feed"}, cfg)
	if r.Score != cfg.DefaultPoints {
		t.Errorf("expected default points %d, got %d", cfg.DefaultPoints, r.Score)
	}
	if len(r.Contributions) != 1 || r.Contributions[0].Known {
		t.Errorf("expected one unknown contribution, got %+v", r.Contributions)
	}
}

func TestScoreRules_MultiFeedBonus(t *testing.T) {
	cfg := model.DefaultRules()

	r := ScoreRules([]string{"abuseipdb", "threatfox"}, cfg)
	want := 30 + 35 + cfg.MultiFeedBonus
	if r.Score != want {
		t.Errorf("expected score %d, got %d", want, r.Score)
	}
	if !r.BonusApplied || r.Bonus != cfg.MultiFeedBonus {
		t.Errorf("expected bonus %d applied, got %+v", cfg.MultiFeedBonus, r)
	}
	if r.Contributions[0].Feed != "abuseipdb" || r.Contributions[1].Feed != "threatfox" {
		t.Errorf("expected contributions sorted by feed, got %+v", r.Contributions)
	}
}

func TestScoreRules_ClampsAt100(t *testing.T) {
	cfg := model.DefaultRules()

	r := ScoreRules([]string{"feodotracker", "spamhaus_drop", "threatfox", "urlhaus"}, cfg)
	if r.Score != 100 {
		t.Errorf("expected clamp to 100, got %d", r.Score)
	}
	if !r.Clamped {
		t.Error("expected clamped flag")
	}
	if r.RawSum <= 100 {
		t.Errorf("expected raw sum above 100, got %d", r.RawSum)
	}
}

func TestScoreRules_DuplicateFeedsCountOnce(t *testing.T) {
	cfg := model.DefaultRules()

	r := ScoreRules([]string{"abuseipdb", "AbuseIPDB", "abuse-ipdb"}, cfg)
	// "abuse-ipdb" folds to abuse_ipdb, a different (unknown) feed
	if r.FeedCount != 2 {
		t.Errorf("expected 2 distinct feeds, got %d", r.FeedCount)
	}
}

func TestScoreRules_Monotonic(t *testing.T) {
	cfg := model.DefaultRules()
	cfg.DefaultPoints = 0

	all := []string{"cins_army", "mystery", "abuseipdb", "urlhaus", "phishtank", "feodotracker"}
	prev := -1
	for i := 0; i <= len(all); i++ {
		s := ScoreRules(all[:i], cfg).Score
		if s < prev {
			t.Fatalf("score decreased from %d to %d after adding %s", prev, s, all[i-1])
		}
		prev = s
	}
}

func TestScoreRules_EmptyFeeds(t *testing.T) {
	cfg := model.DefaultRules()
	cfg.MultiFeedThreshold = 1

	r := ScoreRules(nil, cfg)
	if r.Score != 0 || r.BonusApplied {
		t.Errorf("expected 0 with no bonus, got %+v", r)
	}
}

func TestFuse_Formula(t *testing.T) {
	w := model.FusionWeights{Rule: 0.7, ML: 0.3}

	if got := Fuse(80, 60, w, true); got != 74 {
		t.Errorf("expected 74, got %d", got)
	}
	if got := TierFor(74, model.DefaultRules().Tiers); got != model.TierHigh {
		t.Errorf("expected high, got %s", got)
	}
}

func TestFuse_RuleOnlyWhenMLUnavailable(t *testing.T) {
	w := model.FusionWeights{Rule: 0.7, ML: 0.3}

	for _, rule := range []int{0, 13, 50, 99, 100} {
		if got := Fuse(rule, 50, w, false); got != rule {
			t.Errorf("expected final == rule (%d), got %d", rule, got)
		}
	}
}

func TestFuse_HalfRoundsAwayFromZero(t *testing.T) {
	w := model.FusionWeights{Rule: 0.7, ML: 0.3}

	// 0.7*75 + 0.3*50 = 67.5
	if got := Fuse(75, 50, w, true); got != 68 {
		t.Errorf("expected 68, got %d", got)
	}
}

func TestFuse_NormalizesWeights(t *testing.T) {
	w := model.FusionWeights{Rule: 7, ML: 3}

	if got := Fuse(80, 60, w, true); got != 74 {
		t.Errorf("expected weights to be normalized, got %d", got)
	}
}

func TestFuse_Bounded(t *testing.T) {
	w := model.FusionWeights{Rule: 0.5, ML: 0.5}

	for rule := 0; rule <= 100; rule += 5 {
		for ml := 0; ml <= 100; ml += 5 {
			got := Fuse(rule, ml, w, true)
			if got < 0 || got > 100 {
				t.Fatalf("fuse(%d,%d) out of bounds: %d", rule, ml, got)
			}
		}
	}
}

func TestTierFor_BoundariesBelongToLowerTier(t *testing.T) {
	cuts := model.TierCuts{Low: 30, Medium: 70, High: 90}

	tests := []struct {
		score int
		want  model.Tier
	}{
		{0, model.TierLow},
		{30, model.TierLow},
		{31, model.TierMedium},
		{70, model.TierMedium},
		{71, model.TierHigh},
		{90, model.TierHigh},
		{91, model.TierCritical},
		{100, model.TierCritical},
	}

	for _, tt := range tests {
		if got := TierFor(tt.score, cuts); got != tt.want {
			t.Errorf("TierFor(%d): expected %s, got %s", tt.score, tt.want, got)
		}
	}
}

func TestScaleProbability(t *testing.T) {
	tests := []struct {
		p    float64
		want int
	}{
		{0, 0},
		{0.004, 0},
		{0.005, 1},
		{0.6, 60},
		{0.995, 100},
		{1, 100},
		{1.2, 100},
		{-0.1, 0},
	}

	for _, tt := range tests {
		if got := ScaleProbability(tt.p); got != tt.want {
			t.Errorf("ScaleProbability(%v): expected %d, got %d", tt.p, tt.want, got)
		}
	}
}

func TestScorer_Calculate(t *testing.T) {
	cfg := model.DefaultRules()
	scorer := NewScorer(cfg)

	rule := model.RuleRationale{Score: 80}
	rec := scorer.Calculate(rule, MLResult{Available: true, Probability: 0.6, ModelVersion: "gbt-1"})

	if rec.FinalScore != 74 || rec.Tier != model.TierHigh {
		t.Errorf("expected 74/high, got %d/%s", rec.FinalScore, rec.Tier)
	}
	if rec.Status != model.StatusOK || !rec.MLAvailable {
		t.Errorf("expected ok status with ML, got %+v", rec)
	}
	if rec.ModelVersion != "gbt-1" || rec.RulesVersion != cfg.Label() {
		t.Errorf("expected versions recorded, got %q/%q", rec.ModelVersion, rec.RulesVersion)
	}
}

func TestScorer_CalculateRuleOnly(t *testing.T) {
	scorer := NewScorer(model.DefaultRules())

	rec := scorer.Calculate(model.RuleRationale{Score: 65}, MLResult{Available: false, Probability: 0.97})

	if rec.FinalScore != 65 {
		t.Errorf("expected final == rule score, got %d", rec.FinalScore)
	}
	if rec.Status != model.StatusRuleOnly || rec.MLAvailable {
		t.Errorf("expected rule_only status, got %+v", rec)
	}
	if rec.MLScoreRaw != 0.5 || rec.MLScoreScaled != 50 {
		t.Errorf("expected neutral ML value, got %v/%d", rec.MLScoreRaw, rec.MLScoreScaled)
	}
	if rec.ModelVersion != "" {
		t.Errorf("expected no model version, got %q", rec.ModelVersion)
	}
}
