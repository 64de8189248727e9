package model

import (
	"sort"
	"time"
)

// IndicatorType categorizes an indicator of compromise
type IndicatorType string

const (
	TypeIP     IndicatorType = "ip"
	TypeDomain IndicatorType = "domain"
	TypeURL    IndicatorType = "url"
	TypeHash   IndicatorType = "hash"
	TypeEmail  IndicatorType = "email"
)

// IndicatorTypes lists the supported types in one-hot order
var IndicatorTypes = []IndicatorType{TypeIP, TypeDomain, TypeURL, TypeHash, TypeEmail}

// Valid reports whether t is one of the supported indicator types
func (t IndicatorType) Valid() bool {
	switch t {
	case TypeIP, TypeDomain, TypeURL, TypeHash, TypeEmail:
		return true
	default:
		return false
	}
}

// Sighting records when a single feed reported an indicator
type Sighting struct {
	Feed      string    `json:"feed"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// Indicator is a normalized IOC with its provenance and mutable attributes.
// Type and Value are its identity and never change after creation.
type Indicator struct {
	Type        IndicatorType `json:"type"`
	Value       string        `json:"value"`
	Fingerprint string        `json:"fingerprint"`
	HashKind    string        `json:"hash_kind,omitempty"` // md5, sha1, sha256, sha512, unknown

	Provenance map[string]Sighting `json:"provenance"` // keyed by feed name
	FirstSeen  time.Time           `json:"first_seen"`
	LastSeen   time.Time           `json:"last_seen"`

	Enrichment Enrichment   `json:"enrichment"`
	Score      *ScoreRecord `json:"score,omitempty"`
}

// Feeds returns the feed names that reported the indicator, sorted
func (i *Indicator) Feeds() []string {
	feeds := make([]string, 0, len(i.Provenance))
	for feed := range i.Provenance {
		feeds = append(feeds, feed)
	}
	sort.Strings(feeds)
	return feeds
}

// Sightings returns the provenance entries sorted by feed name
func (i *Indicator) Sightings() []Sighting {
	out := make([]Sighting, 0, len(i.Provenance))
	for _, feed := range i.Feeds() {
		out = append(out, i.Provenance[feed])
	}
	return out
}

// Clone returns a deep copy safe to hand to other goroutines
func (i *Indicator) Clone() *Indicator {
	c := *i
	c.Provenance = make(map[string]Sighting, len(i.Provenance))
	for k, v := range i.Provenance {
		c.Provenance[k] = v
	}
	c.Enrichment = i.Enrichment.Clone()
	if i.Score != nil {
		s := *i.Score
		c.Score = &s
	}
	return &c
}
