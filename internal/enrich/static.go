package enrich

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/iocscore/internal/model"
	"github.com/ppiankov/iocscore/internal/normalize"
)

// Static serves enrichment from a YAML table, typically a WHOIS or asset
// inventory export:
//
//	domain:
//	  evil.example:
//	    registrar: NameSilo
//	    creation_date: 2025-01-02T00:00:00Z
//	ip:
//	  203.0.113.7:
//	    country: NL
type Static struct {
	entries map[string]model.Enrichment // fingerprint -> enrichment
}

// LoadStatic reads a static enrichment table
func LoadStatic(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read enrichment table: %w", err)
	}
	return ParseStatic(data)
}

// ParseStatic decodes a static enrichment table, normalizing every key
func ParseStatic(data []byte) (*Static, error) {
	var raw map[string]map[string]model.Enrichment
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse enrichment table: %w", err)
	}

	s := &Static{entries: make(map[string]model.Enrichment)}
	for rawType, values := range raw {
		for rawValue, enr := range values {
			t, canonical, err := normalize.Normalize(rawType, rawValue)
			if err != nil {
				return nil, fmt.Errorf("enrichment table: %w", err)
			}
			s.entries[normalize.Fingerprint(t, canonical)] = enr
		}
	}
	return s, nil
}

func (s *Static) Name() string { return "static" }

// Enrich returns the table entry for the indicator, if any
func (s *Static) Enrich(_ context.Context, t model.IndicatorType, value string) (model.Enrichment, error) {
	if e, ok := s.entries[normalize.Fingerprint(t, value)]; ok {
		return e.Clone(), nil
	}
	return model.Enrichment{}, nil
}

// Len returns the number of entries
func (s *Static) Len() int {
	return len(s.entries)
}
