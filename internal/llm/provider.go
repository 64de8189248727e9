package llm

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/ppiankov/iocscore/internal/model"
)

// Provider defines the interface for LLM providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// Narrate renders an explanation as analyst prose
	Narrate(ctx context.Context, req NarrateRequest) (*NarrateResponse, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// NarrateRequest contains the input for one narrative
type NarrateRequest struct {
	Score       model.ScoreRecord
	Explanation model.Explanation

	// AllowedFeeds is the indicator's provenance. In strict mode the
	// narrative may not name any other feed.
	AllowedFeeds []string

	// KnownFeeds are the feed names checked for in the output
	KnownFeeds []string

	// Prompt is an optional custom prompt (if empty, use default)
	Prompt string

	// Model is the specific model to use (provider-specific)
	Model string

	// MaxTokens limits the response length
	MaxTokens int
}

// NarrateResponse contains the LLM's output
type NarrateResponse struct {
	Text string

	// NamedFeeds are the known feeds the text mentions
	NamedFeeds []string

	Model      string
	TokensUsed int
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "anthropic", "ollama", ""
	Provider string

	Model   string
	APIKey  string
	BaseURL string

	// Timeout for API requests
	Timeout int // seconds

	// Strict rejects narratives naming feeds outside the provenance
	Strict bool

	MaxTokens int

	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:  "", // disabled
		Timeout:   30,
		Strict:    true,
		MaxTokens: 600,
	}
}

const systemPrompt = "You are a threat-intelligence analyst assistant. You restate scoring explanations for indicators of compromise in plain language and never add facts that are not in the input."

// BuildPrompt constructs the default narrative prompt
func BuildPrompt(req NarrateRequest) string {
	e := req.Explanation
	s := req.Score

	var b strings.Builder
	fmt.Fprintf(&b, `Explain why this indicator received its score.

CRITICAL RULES:
1. The indicator was reported ONLY by these feeds:
%s
2. Never name any other feed, vendor or source.
3. Use only the facts below. Do not speculate about attribution or campaigns.
4. Describe factors as raising or lowering the model probability, not as proof.

Indicator: %s (%s)
Final score: %d/100 (tier %s)
Rule score: %d/100, ML score: %d/100, status %s
`, joinFeeds(req.AllowedFeeds), e.Indicator, e.Type, s.FinalScore, s.Tier, s.RuleScore, s.MLScoreScaled, s.Status)

	if e.MLUnavailable {
		b.WriteString("No trained model was loaded; the score is rule-only.\n")
	}
	if e.Partial {
		b.WriteString("Feature attribution was unavailable; only the rule rationale is known.\n")
	}

	if len(e.RuleNotes) > 0 {
		b.WriteString("\nRule rationale:\n")
		for _, note := range e.RuleNotes {
			fmt.Fprintf(&b, "- %s\n", note)
		}
	}

	if len(e.Factors) > 0 {
		b.WriteString("\nModel factors (strongest first):\n")
		for i, f := range e.Factors {
			if i >= 5 {
				break
			}
			fmt.Fprintf(&b, "- %s: %s, %s (%+.3f)\n", f.Label, f.Direction, f.Magnitude, f.Impact)
		}
	}

	b.WriteString("\nWrite 3-4 sentences for a SOC analyst.")
	return b.String()
}

func joinFeeds(feeds []string) string {
	if len(feeds) == 0 {
		return "(no feeds)"
	}
	var b strings.Builder
	for _, f := range feeds {
		fmt.Fprintf(&b, "- %s\n", f)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// feedPattern matches a feed name written with underscores, spaces or
// hyphens, e.g. emerging_threats, "Emerging Threats", emerging-threats
func feedPattern(feed string) *regexp.Regexp {
	parts := strings.Split(feed, "_")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return regexp.MustCompile(`(?i)\b` + strings.Join(parts, `[ _-]?`) + `\b`)
}

// namedFeeds returns the known feeds text mentions, sorted
func namedFeeds(text string, known []string) []string {
	var out []string
	for _, feed := range known {
		if feed == "" {
			continue
		}
		if feedPattern(feed).MatchString(text) {
			out = append(out, feed)
		}
	}
	sort.Strings(out)
	return out
}

// verifyFeeds enforces strict mode on a generated narrative
func verifyFeeds(strict bool, text string, req NarrateRequest) ([]string, error) {
	named := namedFeeds(text, req.KnownFeeds)
	if !strict {
		return named, nil
	}
	for _, feed := range named {
		if !contains(req.AllowedFeeds, feed) {
			return nil, fmt.Errorf("FEED LEAK: narrative names feed outside provenance: %s", feed)
		}
	}
	return named, nil
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

func resolveModel(reqModel, cfgModel, fallback string) string {
	if reqModel != "" {
		return reqModel
	}
	if cfgModel != "" {
		return cfgModel
	}
	return fallback
}

func resolveMaxTokens(reqMax, cfgMax int) int {
	if reqMax > 0 {
		return reqMax
	}
	if cfgMax > 0 {
		return cfgMax
	}
	return 600
}
