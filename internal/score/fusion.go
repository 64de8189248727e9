package score

import (
	"math"

	"github.com/ppiankov/iocscore/internal/model"
)

// Fuse combines the rule score and the scaled ML score:
// round((w_rule*rule + w_ml*ml) / (w_rule + w_ml)) clamped to [0,100].
// When the ML term is unavailable its weight is zero, so the result equals
// the rule score.
func Fuse(rule, mlScaled int, w model.FusionWeights, mlAvailable bool) int {
	wr, wm := w.Rule, w.ML
	if !mlAvailable {
		wm = 0
	}
	if wr+wm <= 0 {
		return clamp(rule)
	}
	raw := (wr*float64(rule) + wm*float64(mlScaled)) / (wr + wm)
	return clamp(int(roundHalfAway(raw)))
}

// ScaleProbability maps a probability to the integer [0,100] scale
func ScaleProbability(p float64) int {
	if math.IsNaN(p) {
		return 50
	}
	return clamp(int(roundHalfAway(p * 100)))
}

// TierFor maps a final score to its tier. Cut points are inclusive upper
// bounds: a score equal to a cut point stays in the lower tier.
func TierFor(score int, cuts model.TierCuts) model.Tier {
	switch {
	case score <= cuts.Low:
		return model.TierLow
	case score <= cuts.Medium:
		return model.TierMedium
	case score <= cuts.High:
		return model.TierHigh
	default:
		return model.TierCritical
	}
}

// roundHalfAway strips float noise below 1e-6 before rounding half away
// from zero, so 0.7*80+0.3*60 lands on 74 rather than 73.99999999999999
func roundHalfAway(x float64) float64 {
	return math.Round(math.Round(x*1e6) / 1e6)
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
