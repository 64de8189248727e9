package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/ppiankov/iocscore/internal/model"
)

// Narrator turns explanations into analyst prose. A failing provider never
// fails the caller: problems surface as narrative warnings.
type Narrator struct {
	provider   Provider
	config     Config
	knownFeeds []string
}

// NewNarrator creates a narrator; an empty provider yields a disabled one
func NewNarrator(config Config, knownFeeds []string) (*Narrator, error) {
	provider, err := NewProvider(config)
	if err != nil {
		return nil, fmt.Errorf("create LLM provider: %w", err)
	}

	return &Narrator{
		provider:   provider,
		config:     config,
		knownFeeds: knownFeeds,
	}, nil
}

// IsEnabled reports whether a provider is configured
func (n *Narrator) IsEnabled() bool {
	return n != nil && n.provider != nil
}

// ProviderName returns the configured provider name, or ""
func (n *Narrator) ProviderName() string {
	if !n.IsEnabled() {
		return ""
	}
	return n.provider.Name()
}

// Narrate renders one explanation. feeds is the indicator's provenance.
// Returns nil when no provider is configured.
func (n *Narrator) Narrate(ctx context.Context, expl model.Explanation, score model.ScoreRecord, feeds []string) (*model.Narrative, error) {
	if !n.IsEnabled() {
		return nil, nil
	}

	narrative := &model.Narrative{
		Provider: n.provider.Name(),
		Model:    n.config.Model,
		Strict:   n.config.Strict,
	}

	if !n.provider.IsAvailable(ctx) {
		narrative.Warnings = append(narrative.Warnings,
			fmt.Sprintf("LLM provider %s is not available (check API key or connectivity)", narrative.Provider))
		return narrative, nil
	}

	resp, err := n.provider.Narrate(ctx, NarrateRequest{
		Score:        score,
		Explanation:  expl,
		AllowedFeeds: feeds,
		KnownFeeds:   n.knownFeeds,
		Model:        n.config.Model,
		MaxTokens:    n.config.MaxTokens,
	})
	if err != nil {
		narrative.Warnings = append(narrative.Warnings, fmt.Sprintf("narrative generation failed: %v", err))
		return narrative, nil
	}

	narrative.Enabled = true
	narrative.Text = resp.Text
	if resp.Model != "" {
		narrative.Model = resp.Model
	}
	narrative.Warnings = append(narrative.Warnings, fmt.Sprintf("Tokens used: %d", resp.TokensUsed))
	if n.config.Strict {
		narrative.Warnings = append(narrative.Warnings,
			fmt.Sprintf("Verified %d feed mentions against provenance", len(resp.NamedFeeds)))
	}

	return narrative, nil
}

// RenderMarkdown renders a narrative as a standalone markdown section
func RenderMarkdown(n *model.Narrative) string {
	if n == nil {
		return ""
	}

	var b strings.Builder
	b.WriteString("# Analyst Narrative\n\n")
	b.WriteString("> GENERATED CONTENT. Scores and explanations were determined independently of this text.\n\n")
	fmt.Fprintf(&b, "- **Provider**: %s\n", n.Provider)
	if n.Model != "" {
		fmt.Fprintf(&b, "- **Model**: %s\n", n.Model)
	}
	fmt.Fprintf(&b, "- **Strict Feed Mode**: %t\n\n", n.Strict)

	if n.Enabled && n.Text != "" {
		b.WriteString(n.Text)
		b.WriteString("\n")
	} else {
		b.WriteString("_No narrative generated._\n")
	}

	if len(n.Warnings) > 0 {
		b.WriteString("\n## Notes\n\n")
		for _, w := range n.Warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
	}

	return b.String()
}
