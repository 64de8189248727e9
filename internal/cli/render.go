package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/ppiankov/iocscore/internal/engine"
	"github.com/ppiankov/iocscore/internal/model"
)

const rule = "═══════════════════════════════════════════════════════════"

func renderAssessment(w io.Writer, a engine.Assessment) {
	s := a.Score

	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "  %s (%s)\n", a.Value, a.Type)
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "  Final score:  %d/100  [%s]\n", s.FinalScore, strings.ToUpper(string(s.Tier)))
	fmt.Fprintf(w, "  Rule score:   %d/100\n", s.RuleScore)
	if s.MLAvailable {
		fmt.Fprintf(w, "  ML score:     %d/100  (p=%.3f, model %s)\n", s.MLScoreScaled, s.MLScoreRaw, s.ModelVersion)
	} else {
		fmt.Fprintf(w, "  ML score:     n/a (rule-only)\n")
	}
	fmt.Fprintf(w, "  Status:       %s\n", s.Status)
	fmt.Fprintf(w, "  Rules:        %s\n", s.RulesVersion)
	if len(a.Feeds) > 0 {
		fmt.Fprintf(w, "  Feeds:        %s\n", strings.Join(a.Feeds, ", "))
	}
	if a.Cached {
		fmt.Fprintf(w, "  (cached)\n")
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Rule rationale: %s\n", a.Rule.Formula)
	for _, c := range a.Rule.Contributions {
		note := ""
		if !c.Known {
			note = " (default)"
		}
		fmt.Fprintf(w, "    + %-18s %3d%s\n", c.Feed, c.Points, note)
	}
	if a.Rule.BonusApplied {
		fmt.Fprintf(w, "    + %-18s %3d\n", "multi-feed bonus", a.Rule.Bonus)
	}
	fmt.Fprintln(w)
}

func renderExplanation(w io.Writer, e model.Explanation) {
	fmt.Fprintln(w, "  Explanation")
	fmt.Fprintf(w, "  %s\n", e.Summary)
	if e.Partial {
		fmt.Fprintln(w, "  (partial: feature attribution unavailable)")
	}
	if len(e.Factors) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "  Base probability: %.3f\n", e.BaseValue)
		for _, f := range e.Factors {
			arrow := "↑"
			if f.Direction == model.DirectionDecreasing {
				arrow = "↓"
			}
			fmt.Fprintf(w, "    %s %-34s %+.4f  %s\n", arrow, f.Label, f.Impact, f.Magnitude)
		}
	}
	for _, warn := range e.Warnings {
		fmt.Fprintf(w, "  ! %s\n", warn)
	}
	fmt.Fprintln(w)
}

func renderNarrative(w io.Writer, n *model.Narrative) {
	fmt.Fprintf(w, "  Narrative (%s", n.Provider)
	if n.Model != "" {
		fmt.Fprintf(w, "/%s", n.Model)
	}
	fmt.Fprintln(w, ")")
	if n.Enabled {
		fmt.Fprintf(w, "  %s\n", n.Text)
	}
	for _, warn := range n.Warnings {
		fmt.Fprintf(w, "  - %s\n", warn)
	}
	fmt.Fprintln(w)
}
