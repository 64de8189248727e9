// Package normalize canonicalizes indicator type/value pairs and merges
// sightings of the same indicator reported by different feeds.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"net/netip"
	"strings"

	"golang.org/x/net/idna"

	"github.com/ppiankov/iocscore/internal/model"
)

// Hash sub-types by hex digest length
const (
	HashMD5     = "md5"
	HashSHA1    = "sha1"
	HashSHA256  = "sha256"
	HashSHA512  = "sha512"
	HashUnknown = "unknown"
)

var typeAliases = map[string]model.IndicatorType{
	"ip":       model.TypeIP,
	"ipv4":     model.TypeIP,
	"ipv6":     model.TypeIP,
	"ip-src":   model.TypeIP,
	"ip-dst":   model.TypeIP,
	"domain":   model.TypeDomain,
	"hostname": model.TypeDomain,
	"fqdn":     model.TypeDomain,
	"url":      model.TypeURL,
	"uri":      model.TypeURL,
	"hash":     model.TypeHash,
	"md5":      model.TypeHash,
	"sha1":     model.TypeHash,
	"sha256":   model.TypeHash,
	"sha512":   model.TypeHash,
	"email":    model.TypeEmail,
	"e-mail":   model.TypeEmail,
}

// Feed-sourced domains carry underscores and other non-STD3 labels, so the
// lookup profile is relaxed on that point only.
var domainProfile = idna.New(
	idna.MapForLookup(),
	idna.StrictDomainName(false),
	idna.Transitional(false),
)

// ParseType resolves a raw feed type string, including common aliases
func ParseType(raw string) (model.IndicatorType, error) {
	t := strings.ToLower(strings.TrimSpace(raw))
	if it, ok := typeAliases[t]; ok {
		return it, nil
	}
	if strings.HasPrefix(t, "filehash") {
		return model.TypeHash, nil
	}
	return "", &model.InvalidIndicatorError{Type: raw, Reason: "unsupported indicator type"}
}

// Normalize returns the indicator type and canonical value for a raw pair
func Normalize(rawType, rawValue string) (model.IndicatorType, string, error) {
	t, err := ParseType(rawType)
	if err != nil {
		return "", "", &model.InvalidIndicatorError{Type: rawType, Value: rawValue, Reason: "unsupported indicator type"}
	}

	value := strings.TrimSpace(rawValue)
	invalid := func(reason string) error {
		return &model.InvalidIndicatorError{Type: string(t), Value: rawValue, Reason: reason}
	}
	if value == "" {
		return "", "", invalid("empty value")
	}

	switch t {
	case model.TypeIP:
		addr, err := netip.ParseAddr(value)
		if err != nil {
			return "", "", invalid("not an IPv4 or IPv6 literal")
		}
		if addr.Zone() != "" {
			return "", "", invalid("zoned addresses are not indicators")
		}
		return t, addr.Unmap().String(), nil

	case model.TypeDomain:
		d := strings.TrimSuffix(strings.ToLower(value), ".")
		if d == "" {
			return "", "", invalid("empty domain")
		}
		if strings.ContainsAny(d, " \t/@:") {
			return "", "", invalid("domain contains illegal characters")
		}
		ascii, err := domainProfile.ToASCII(d)
		if err != nil {
			return "", "", invalid("idna: " + err.Error())
		}
		return t, ascii, nil

	case model.TypeURL:
		return t, value, nil

	case model.TypeHash:
		h := strings.ToLower(value)
		if !isHex(h) {
			return "", "", invalid("hash is not hexadecimal")
		}
		return t, h, nil

	case model.TypeEmail:
		e := strings.ToLower(value)
		local, domain, ok := strings.Cut(e, "@")
		if !ok || local == "" || domain == "" || strings.Contains(domain, "@") {
			return "", "", invalid("email must be local@domain")
		}
		return t, e, nil
	}

	return "", "", invalid("unsupported indicator type")
}

// HashKind guesses the digest algorithm from a canonical hash value
func HashKind(canonical string) string {
	switch len(canonical) {
	case 32:
		return HashMD5
	case 40:
		return HashSHA1
	case 64:
		return HashSHA256
	case 128:
		return HashSHA512
	default:
		return HashUnknown
	}
}

// Fingerprint is the stable identity key of a canonical indicator
func Fingerprint(t model.IndicatorType, canonical string) string {
	sum := sha256.Sum256([]byte(string(t) + "\x00" + canonical))
	return hex.EncodeToString(sum[:])
}

// NormalizeFeedName folds feed names so "Abuse IPDB"-style variants from
// different connectors share provenance entries and rule points
func NormalizeFeedName(feed string) string {
	f := strings.ToLower(strings.TrimSpace(feed))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(f)
}

// NormalizeFeeds folds, deduplicates and drops empty feed names
func NormalizeFeeds(feeds []string) []string {
	seen := make(map[string]struct{}, len(feeds))
	out := make([]string, 0, len(feeds))
	for _, f := range feeds {
		n := NormalizeFeedName(f)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
