package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/iocscore/internal/engine"
	"github.com/ppiankov/iocscore/internal/llm"
	"github.com/ppiankov/iocscore/internal/model"
)

var (
	feeds        []string
	country      string
	asn          uint32
	registrar    string
	createdOn    string
	summary      string
	jsonOut      bool
	narrate      bool
	narrativeOut string
	scoreTimeout time.Duration
)

// scoreCmd represents the score command
var scoreCmd = &cobra.Command{
	Use:   "score <type> <value>",
	Short: "Score a single indicator",
	Long: `Score normalizes an indicator, combines the feed-based rule score with the
model probability and prints the fused score, tier and rule rationale.

Supported types: ip, domain, url, hash, email (and common aliases such as
ipv4, fqdn, md5, sha256).

Example:
  iocscore score ip 203.0.113.7 --feed abuseipdb --feed urlhaus
  iocscore score domain login-example.top --feed openphish --created 2025-05-20
  iocscore score ip 203.0.113.7 --feed abuseipdb --model model.json --json`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAssess(cmd, args, false)
	},
}

// explainCmd represents the explain command
var explainCmd = &cobra.Command{
	Use:   "explain <type> <value>",
	Short: "Explain why an indicator received its score",
	Long: `Explain prints the per-feature attributions behind the model probability
together with the rule rationale. With --narrate, a configured LLM provider
restates the explanation in prose; the narrative never changes the score.

Example:
  iocscore explain ip 203.0.113.7 --feed abuseipdb --country RU --model model.json
  iocscore explain url http://bad.example/login --feed urlhaus --narrate`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAssess(cmd, args, true)
	},
}

func init() {
	rootCmd.AddCommand(scoreCmd)
	rootCmd.AddCommand(explainCmd)

	for _, c := range []*cobra.Command{scoreCmd, explainCmd} {
		c.Flags().StringSliceVarP(&feeds, "feed", "f", nil, "reporting feed (repeatable)")
		c.Flags().StringVar(&country, "country", "", "ISO country code (overrides GeoIP)")
		c.Flags().Uint32Var(&asn, "asn", 0, "autonomous system number (overrides GeoIP)")
		c.Flags().StringVar(&registrar, "registrar", "", "domain registrar")
		c.Flags().StringVar(&createdOn, "created", "", "domain creation date (YYYY-MM-DD or RFC3339)")
		c.Flags().StringVar(&summary, "summary", "", "feed-supplied description")
		c.Flags().BoolVar(&jsonOut, "json", false, "print JSON instead of text")
		c.Flags().DurationVar(&scoreTimeout, "timeout", 30*time.Second, "overall timeout")
	}

	explainCmd.Flags().BoolVar(&narrate, "narrate", false, "add an LLM narrative (requires llm.provider)")
	explainCmd.Flags().StringVar(&narrativeOut, "md", "", "write the narrative as Markdown to this path")
}

func runAssess(cmd *cobra.Command, args []string, explain bool) error {
	w := cmd.OutOrStdout()
	ctx, cancel := context.WithTimeout(context.Background(), scoreTimeout)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	enr, err := enrichmentFromFlags(cmd.Flags().Changed("asn"))
	if err != nil {
		return err
	}

	a, err := bootstrap(ctx, cfg, bootOptions{withNarrator: explain && narrate})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	res, err := a.engine.ScoreIndicator(ctx, engine.Request{
		Type:       args[0],
		Value:      args[1],
		Feeds:      feeds,
		Enrichment: enr,
	})
	if err != nil {
		return err
	}

	var narrative *model.Narrative
	if explain && narrate {
		if !a.narrator.IsEnabled() {
			return fmt.Errorf("--narrate requires llm.provider to be configured")
		}
		if narrative, err = a.narrator.Narrate(ctx, res.Explanation, res.Score, res.Feeds); err != nil {
			return err
		}
		if narrativeOut != "" {
			if err := os.WriteFile(narrativeOut, []byte(llm.RenderMarkdown(narrative)), 0o644); err != nil {
				return fmt.Errorf("write narrative: %w", err)
			}
		}
	}

	if jsonOut {
		out := any(res)
		if explain {
			out = struct {
				Explanation model.Explanation `json:"explanation"`
				Score       model.ScoreRecord `json:"score"`
				Narrative   *model.Narrative  `json:"narrative,omitempty"`
			}{res.Explanation, res.Score, narrative}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	renderAssessment(w, res)
	if explain {
		renderExplanation(w, res.Explanation)
		if narrative != nil {
			renderNarrative(w, narrative)
		}
	}
	return nil
}

// enrichmentFromFlags builds the caller-supplied enrichment. AS0 is a real
// value, so presence is taken from the flag set rather than from asn != 0.
func enrichmentFromFlags(asnSet bool) (model.Enrichment, error) {
	enr := model.Enrichment{
		Country:   strings.ToUpper(country),
		Registrar: registrar,
		Summary:   summary,
	}
	if asnSet {
		v := asn
		enr.ASN = &v
	}
	if createdOn != "" {
		t, err := parseDate(createdOn)
		if err != nil {
			return enr, fmt.Errorf("invalid --created: %w", err)
		}
		enr.CreationDate = &t
	}
	return enr, nil
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.Parse(time.DateOnly, s)
}
