package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// GeoPoint is a latitude/longitude pair. (0,0) is a valid location.
type GeoPoint struct {
	Latitude  float64 `json:"lat" yaml:"lat"`
	Longitude float64 `json:"lon" yaml:"lon"`
}

// Enrichment holds optional, type-dependent attributes populated by external
// enrichment services. Every field can be absent on its own: string fields
// are absent when empty (an empty country code or registrar is never a real
// value), numeric and temporal fields use pointers.
type Enrichment struct {
	// IP attributes
	Country     string    `json:"country,omitempty" yaml:"country,omitempty"` // ISO 3166-1 alpha-2
	ASN         *uint32   `json:"asn,omitempty" yaml:"asn,omitempty"`
	Coordinates *GeoPoint `json:"coordinates,omitempty" yaml:"coordinates,omitempty"`

	// Domain attributes (WHOIS)
	Registrar    string     `json:"registrar,omitempty" yaml:"registrar,omitempty"`
	CreationDate *time.Time `json:"creation_date,omitempty" yaml:"creation_date,omitempty"`

	// Free-text description supplied by the reporting feed
	Summary string `json:"summary,omitempty" yaml:"summary,omitempty"`
}

func (e Enrichment) HasCountry() bool      { return e.Country != "" }
func (e Enrichment) HasASN() bool          { return e.ASN != nil }
func (e Enrichment) HasCoordinates() bool  { return e.Coordinates != nil }
func (e Enrichment) HasRegistrar() bool    { return e.Registrar != "" }
func (e Enrichment) HasCreationDate() bool { return e.CreationDate != nil }
func (e Enrichment) HasSummary() bool      { return e.Summary != "" }

// IsEmpty reports whether no field is present
func (e Enrichment) IsEmpty() bool {
	return !e.HasCountry() && !e.HasASN() && !e.HasCoordinates() &&
		!e.HasRegistrar() && !e.HasCreationDate() && !e.HasSummary()
}

// Clone returns a copy that shares no pointers with e
func (e Enrichment) Clone() Enrichment {
	c := e
	if e.ASN != nil {
		asn := *e.ASN
		c.ASN = &asn
	}
	if e.Coordinates != nil {
		p := *e.Coordinates
		c.Coordinates = &p
	}
	if e.CreationDate != nil {
		d := *e.CreationDate
		c.CreationDate = &d
	}
	return c
}

// FillMissing returns e with absent fields taken from other.
// Fields already present in e are never overridden.
func (e Enrichment) FillMissing(other Enrichment) Enrichment {
	out := e.Clone()
	o := other.Clone()
	if !out.HasCountry() {
		out.Country = o.Country
	}
	if !out.HasASN() {
		out.ASN = o.ASN
	}
	if !out.HasCoordinates() {
		out.Coordinates = o.Coordinates
	}
	if !out.HasRegistrar() {
		out.Registrar = o.Registrar
	}
	if !out.HasCreationDate() {
		out.CreationDate = o.CreationDate
	}
	if !out.HasSummary() {
		out.Summary = o.Summary
	}
	return out
}

// Digest returns a stable hash of the bundle used in cache keys.
// Struct field order makes the JSON encoding canonical; times are normalized to UTC.
func (e Enrichment) Digest() string {
	c := e.Clone()
	if c.CreationDate != nil {
		utc := c.CreationDate.UTC()
		c.CreationDate = &utc
	}
	data, err := json.Marshal(c)
	if err != nil {
		// Only floats that JSON cannot represent end up here
		data = []byte(err.Error())
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
