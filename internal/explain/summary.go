package explain

import (
	"fmt"
	"strings"

	"github.com/ppiankov/iocscore/internal/model"
)

// RuleNotes renders the rule rationale as one line per decision
func RuleNotes(r model.RuleRationale) []string {
	if r.FeedCount == 0 {
		return []string{"no reporting feeds: rule score 0"}
	}

	notes := make([]string, 0, len(r.Contributions)+2)
	for _, c := range r.Contributions {
		if c.Known {
			notes = append(notes, fmt.Sprintf("%s: +%d points", c.Feed, c.Points))
		} else {
			notes = append(notes, fmt.Sprintf("%s: +%d points (unknown feed, default)", c.Feed, c.Points))
		}
	}
	if r.BonusApplied {
		notes = append(notes, fmt.Sprintf("multi-feed bonus: +%d points (%d feeds >= threshold %d)", r.Bonus, r.FeedCount, r.Threshold))
	}
	if r.Clamped {
		notes = append(notes, fmt.Sprintf("raw sum %d clamped to %d", r.RawSum, r.Score))
	}
	return notes
}

func summarize(e model.Explanation, in Input) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Final score %d (%s).", in.Score.FinalScore, in.Score.Tier)
	fmt.Fprintf(&b, " Rule score %d from %d feed(s)", e.RuleRationale.Score, e.RuleRationale.FeedCount)
	if e.RuleRationale.BonusApplied {
		fmt.Fprintf(&b, " including a +%d corroboration bonus", e.RuleRationale.Bonus)
	}
	b.WriteString(".")

	switch {
	case e.MLUnavailable:
		b.WriteString(" No trained model is loaded; the final score equals the rule score.")
	case e.Partial:
		fmt.Fprintf(&b, " Model %s probability %.2f; feature attribution unavailable, rule rationale only.",
			e.ModelVersion, in.Prediction.Probability)
	default:
		fmt.Fprintf(&b, " Model %s probability %.2f (baseline %.2f).",
			e.ModelVersion, in.Prediction.Probability, e.BaseValue)
		if top := topFactors(e.Factors, 3); top != "" {
			b.WriteString(" Main drivers: " + top + ".")
		}
	}
	return b.String()
}

func topFactors(factors []model.Factor, n int) string {
	if len(factors) < n {
		n = len(factors)
	}
	parts := make([]string, 0, n)
	for _, f := range factors[:n] {
		sign := "+"
		if f.Impact < 0 {
			sign = "-"
		}
		parts = append(parts, fmt.Sprintf("%s (%s, %s)", f.Label, sign, f.Magnitude))
	}
	return strings.Join(parts, "; ")
}
