// Package rules loads, validates and hot-reloads the scoring rules document
package rules

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/iocscore/internal/model"
	"github.com/ppiankov/iocscore/internal/normalize"
)

// Load reads a rules document; an empty path yields the defaults
func Load(path string) (*model.RulesConfig, error) {
	if path == "" {
		return model.DefaultRules(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("rules file %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a YAML rules document over the defaults and validates it.
// feed_points, when present, replaces the default table instead of merging.
// Unknown keys are rejected so a typo cannot silently fall back to a default.
func Parse(data []byte) (*model.RulesConfig, error) {
	cfg := model.DefaultRules()
	defaults := cfg.FeedPoints
	cfg.FeedPoints = nil

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}

	if cfg.FeedPoints == nil {
		cfg.FeedPoints = defaults
	}

	// feed names are matched after the same folding sightings get
	folded := make(map[string]int, len(cfg.FeedPoints))
	for feed, pts := range cfg.FeedPoints {
		name := normalize.NormalizeFeedName(feed)
		if _, dup := folded[name]; dup {
			return nil, &model.ConfigError{Field: "feed_points." + feed, Reason: "duplicates " + name + " after normalization"}
		}
		folded[name] = pts
	}
	cfg.FeedPoints = folded

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Marshal renders cfg as YAML
func Marshal(cfg *model.RulesConfig) ([]byte, error) {
	return yaml.Marshal(cfg)
}
