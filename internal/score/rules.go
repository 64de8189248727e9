package score

import (
	"sort"

	"github.com/ppiankov/iocscore/internal/model"
	"github.com/ppiankov/iocscore/internal/normalize"
)

const ruleFormula = "min(sum(feed_points) + bonus_if(feed_count >= threshold), 100)"

// ScoreRules sums per-feed points, adds the corroboration bonus and clamps
// the result to [0,100]. With non-negative points the score never decreases
// when a feed is added.
func ScoreRules(feeds []string, cfg *model.RulesConfig) model.RuleRationale {
	feeds = normalize.NormalizeFeeds(feeds)
	sort.Strings(feeds)

	r := model.RuleRationale{
		Contributions: make([]model.RuleContribution, 0, len(feeds)),
		FeedCount:     len(feeds),
		Threshold:     cfg.MultiFeedThreshold,
		Formula:       ruleFormula,
	}

	// 1. Per-feed points (unknown feeds get the default floor)
	for _, f := range feeds {
		pts, known := cfg.FeedPoints[f]
		if !known {
			pts = cfg.DefaultPoints
		}
		r.RawSum += pts
		r.Contributions = append(r.Contributions, model.RuleContribution{Feed: f, Points: pts, Known: known})
	}

	// 2. Multi-feed corroboration bonus
	if len(feeds) > 0 && len(feeds) >= cfg.MultiFeedThreshold {
		r.BonusApplied = true
		r.Bonus = cfg.MultiFeedBonus
		r.RawSum += cfg.MultiFeedBonus
	}

	// 3. Clamp, never wrap
	r.Score = r.RawSum
	if r.Score > 100 {
		r.Score = 100
		r.Clamped = true
	}
	if r.Score < 0 {
		r.Score = 0
		r.Clamped = true
	}

	return r
}
