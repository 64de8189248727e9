package normalize

import (
	"time"

	"github.com/ppiankov/iocscore/internal/model"
)

// NewIndicator normalizes a raw pair into an Indicator with empty provenance
func NewIndicator(rawType, rawValue string) (*model.Indicator, error) {
	t, canonical, err := Normalize(rawType, rawValue)
	if err != nil {
		return nil, err
	}
	ind := &model.Indicator{
		Type:        t,
		Value:       canonical,
		Fingerprint: Fingerprint(t, canonical),
		Provenance:  make(map[string]model.Sighting),
	}
	if t == model.TypeHash {
		ind.HashKind = HashKind(canonical)
	}
	return ind, nil
}

// RecordSighting notes that feed reported ind at ts.
// A repeated feed updates last_seen and never adds a second entry; first_seen
// only moves backwards when an older sighting arrives late. It reports whether
// the feed was new to the indicator.
func RecordSighting(ind *model.Indicator, feed string, ts time.Time) bool {
	feed = NormalizeFeedName(feed)
	if feed == "" {
		return false
	}
	if ind.Provenance == nil {
		ind.Provenance = make(map[string]model.Sighting)
	}
	ts = ts.UTC()

	s, known := ind.Provenance[feed]
	if !known {
		s = model.Sighting{Feed: feed, FirstSeen: ts, LastSeen: ts}
	} else {
		if ts.Before(s.FirstSeen) {
			s.FirstSeen = ts
		}
		if ts.After(s.LastSeen) {
			s.LastSeen = ts
		}
	}
	ind.Provenance[feed] = s

	if ind.FirstSeen.IsZero() || ts.Before(ind.FirstSeen) {
		ind.FirstSeen = ts
	}
	if ts.After(ind.LastSeen) {
		ind.LastSeen = ts
	}
	return !known
}
