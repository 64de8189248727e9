package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/iocscore/internal/model"
	"github.com/ppiankov/iocscore/internal/normalize"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()
	sqlStore, err := OpenSQLStore(filepath.Join(t.TempDir(), "indicators.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlStore.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlStore,
	}
}

func TestRecordSightingMergesFeeds(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.RecordSighting(ctx, "ip", "203.0.113.7", "abuseipdb", t0)
			require.NoError(t, err)
			_, err = s.RecordSighting(ctx, "ipv4", " 203.0.113.7 ", "Emerging Threats", t0.Add(time.Hour))
			require.NoError(t, err)
			ind, err := s.RecordSighting(ctx, "ip", "203.0.113.7", "abuseipdb", t0.Add(2*time.Hour))
			require.NoError(t, err)

			assert.Equal(t, []string{"abuseipdb", "emerging_threats"}, ind.Feeds())
			assert.True(t, ind.FirstSeen.Equal(t0))
			assert.True(t, ind.LastSeen.Equal(t0.Add(2*time.Hour)))

			got, err := s.Get(ctx, ind.Fingerprint)
			require.NoError(t, err)
			assert.Equal(t, ind.Feeds(), got.Feeds())
			assert.True(t, got.Provenance["abuseipdb"].LastSeen.Equal(t0.Add(2*time.Hour)))
			assert.True(t, got.Provenance["abuseipdb"].FirstSeen.Equal(t0))

			all, err := s.List(ctx)
			require.NoError(t, err)
			assert.Len(t, all, 1)
		})
	}
}

func TestRecordSightingRejectsInvalid(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.RecordSighting(context.Background(), "ip", "999.1.1.1", "feed", time.Now())
			var invalid *model.InvalidIndicatorError
			assert.ErrorAs(t, err, &invalid)
		})
	}
}

func TestGetUnknown(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(context.Background(), normalize.Fingerprint(model.TypeIP, "192.0.2.1"))
			assert.ErrorIs(t, err, model.ErrNotFound)

			_, err = s.FindByValue(context.Background(), "192.0.2.1")
			assert.ErrorIs(t, err, model.ErrNotFound)

			assert.ErrorIs(t, s.SaveScore(context.Background(), "nope", model.ScoreRecord{}), model.ErrNotFound)
			assert.ErrorIs(t, s.SetEnrichment(context.Background(), "nope", model.Enrichment{}), model.ErrNotFound)
		})
	}
}

func TestFindByValueAcrossTypes(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.RecordSighting(ctx, "domain", "Evil.Example", "urlhaus", time.Now())
			require.NoError(t, err)
			_, err = s.RecordSighting(ctx, "url", "evil.example", "openphish", time.Now())
			require.NoError(t, err)

			found, err := s.FindByValue(ctx, "evil.example")
			require.NoError(t, err)
			require.Len(t, found, 2)
			assert.Equal(t, model.TypeDomain, found[0].Type)
			assert.Equal(t, model.TypeURL, found[1].Type)
		})
	}
}

func TestSetEnrichmentKeepsPresentFields(t *testing.T) {
	ctx := context.Background()
	asn := uint32(64500)
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ind, err := s.RecordSighting(ctx, "ip", "198.51.100.9", "spamhaus", time.Now())
			require.NoError(t, err)

			require.NoError(t, s.SetEnrichment(ctx, ind.Fingerprint, model.Enrichment{Country: "NL"}))
			require.NoError(t, s.SetEnrichment(ctx, ind.Fingerprint, model.Enrichment{Country: "RU", ASN: &asn}))

			got, err := s.Get(ctx, ind.Fingerprint)
			require.NoError(t, err)
			assert.Equal(t, "NL", got.Enrichment.Country)
			require.NotNil(t, got.Enrichment.ASN)
			assert.Equal(t, asn, *got.Enrichment.ASN)
		})
	}
}

func TestSaveScore(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ind, err := s.RecordSighting(ctx, "hash", "D41D8CD98F00B204E9800998ECF8427E", "malwarebazaar", time.Now())
			require.NoError(t, err)
			assert.Nil(t, ind.Score)

			rec := model.ScoreRecord{RuleScore: 80, MLScoreRaw: 0.6, MLScoreScaled: 60, FinalScore: 74, Tier: model.TierHigh, MLAvailable: true, Status: model.StatusOK, RulesVersion: "v1"}
			require.NoError(t, s.SaveScore(ctx, ind.Fingerprint, rec))

			got, err := s.Get(ctx, ind.Fingerprint)
			require.NoError(t, err)
			require.NotNil(t, got.Score)
			assert.Equal(t, rec, *got.Score)
			assert.Equal(t, normalize.HashMD5, got.HashKind)

			// a later sighting must not wipe the stored score
			got, err = s.RecordSighting(ctx, "md5", "d41d8cd98f00b204e9800998ecf8427e", "virustotal", time.Now())
			require.NoError(t, err)
			require.NotNil(t, got.Score)
			assert.Equal(t, 74, got.Score.FinalScore)
		})
	}
}

func TestConcurrentSightings(t *testing.T) {
	ctx := context.Background()
	feeds := []string{"abuseipdb", "spamhaus", "otx", "threatfox", "urlhaus", "feodotracker"}
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			var wg sync.WaitGroup
			for _, feed := range feeds {
				wg.Add(1)
				go func(feed string) {
					defer wg.Done()
					_, err := s.RecordSighting(ctx, "ip", "192.0.2.44", feed, time.Now())
					assert.NoError(t, err)
				}(feed)
			}
			wg.Wait()

			found, err := s.FindByValue(ctx, "192.0.2.44")
			require.NoError(t, err)
			require.Len(t, found, 1)
			assert.Len(t, found[0].Provenance, len(feeds))
		})
	}
}

func TestOpen(t *testing.T) {
	s, err := Open(model.StoreConfig{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = Open(model.StoreConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "x.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open(model.StoreConfig{Driver: "postgres"})
	assert.Error(t, err)
}
