// Package store persists indicators with their feed provenance, enrichment
// and last score.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/ppiankov/iocscore/internal/model"
	"github.com/ppiankov/iocscore/internal/normalize"
)

// Store is the indicator repository shared by the importer and the API.
// Implementations return copies; mutating a returned indicator has no effect.
type Store interface {
	// RecordSighting normalizes the raw pair, merges the feed sighting and
	// returns the updated indicator
	RecordSighting(ctx context.Context, rawType, rawValue, feed string, ts time.Time) (*model.Indicator, error)
	Get(ctx context.Context, fingerprint string) (*model.Indicator, error)
	// FindByValue returns every stored indicator whose canonical value
	// matches raw under any type it parses as, ordered by type
	FindByValue(ctx context.Context, raw string) ([]*model.Indicator, error)
	// SetEnrichment fills absent enrichment fields; present ones are kept
	SetEnrichment(ctx context.Context, fingerprint string, enr model.Enrichment) error
	SaveScore(ctx context.Context, fingerprint string, rec model.ScoreRecord) error
	List(ctx context.Context) ([]*model.Indicator, error)
	Close() error
}

// Open builds the store selected by cfg
func Open(cfg model.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = "iocscore.db"
		}
		return OpenSQLStore(dsn)
	default:
		return nil, fmt.Errorf("unknown store driver %q (expected memory or sqlite)", cfg.Driver)
	}
}

// candidates lists the fingerprints raw could have across all types
func candidates(raw string) []string {
	var out []string
	for _, t := range model.IndicatorTypes {
		it, canonical, err := normalize.Normalize(string(t), raw)
		if err != nil {
			continue
		}
		out = append(out, normalize.Fingerprint(it, canonical))
	}
	return out
}

// MemoryStore keeps indicators in a normalize.Registry
type MemoryStore struct {
	reg *normalize.Registry
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{reg: normalize.NewRegistry()}
}

func (s *MemoryStore) RecordSighting(_ context.Context, rawType, rawValue, feed string, ts time.Time) (*model.Indicator, error) {
	return s.reg.Observe(rawType, rawValue, feed, ts)
}

func (s *MemoryStore) Get(_ context.Context, fingerprint string) (*model.Indicator, error) {
	ind, ok := s.reg.Get(fingerprint)
	if !ok {
		return nil, model.ErrNotFound
	}
	return ind, nil
}

func (s *MemoryStore) FindByValue(_ context.Context, raw string) ([]*model.Indicator, error) {
	var out []*model.Indicator
	for _, fp := range candidates(raw) {
		if ind, ok := s.reg.Get(fp); ok {
			out = append(out, ind)
		}
	}
	if len(out) == 0 {
		return nil, model.ErrNotFound
	}
	return out, nil
}

func (s *MemoryStore) SetEnrichment(_ context.Context, fingerprint string, enr model.Enrichment) error {
	_, ok := s.reg.Update(fingerprint, func(ind *model.Indicator) {
		ind.Enrichment = ind.Enrichment.FillMissing(enr)
	})
	if !ok {
		return model.ErrNotFound
	}
	return nil
}

func (s *MemoryStore) SaveScore(_ context.Context, fingerprint string, rec model.ScoreRecord) error {
	_, ok := s.reg.Update(fingerprint, func(ind *model.Indicator) {
		ind.Score = &rec
	})
	if !ok {
		return model.ErrNotFound
	}
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]*model.Indicator, error) {
	return s.reg.All(), nil
}

func (s *MemoryStore) Close() error { return nil }
