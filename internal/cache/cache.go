// Package cache stores computed assessments keyed by everything that can
// change them.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"time"
)

// Cache defines the interface for caching
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// KeyParts are the inputs an assessment depends on. Leaving any of them out
// of the key would serve stale results after new enrichment, a new feed,
// a model upgrade or a rules reload.
type KeyParts struct {
	Type             string
	Value            string // canonical
	Feeds            []string
	EnrichmentDigest string
	ModelVersion     string // "" when no model is loaded
	RulesVersion     string
}

// Key generates the cache key for an assessment
func Key(p KeyParts) string {
	feeds := append([]string(nil), p.Feeds...)
	sort.Strings(feeds)

	h := sha256.New()
	write := func(s string) {
		// length prefix keeps field boundaries unambiguous
		h.Write([]byte(strconv.Itoa(len(s))))
		h.Write([]byte{':'})
		h.Write([]byte(s))
	}
	write(p.Type)
	write(p.Value)
	write(strconv.Itoa(len(feeds)))
	for _, f := range feeds {
		write(f)
	}
	write(p.EnrichmentDigest)
	write(p.ModelVersion)
	write(p.RulesVersion)

	return "iocscore:v1:" + hex.EncodeToString(h.Sum(nil))
}
