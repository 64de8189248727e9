package features

import (
	"math"
	"net/netip"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/publicsuffix"

	"github.com/ppiankov/iocscore/internal/model"
	"github.com/ppiankov/iocscore/internal/normalize"
)

var dottedQuad = regexp.MustCompile(`(?:^|[^0-9])(?:[0-9]{1,3}\.){3}[0-9]{1,3}(?:[^0-9]|$)`)

// Extract builds the feature vector for an indicator.
// Missing enrichment yields zero features; an unrecognized type populates
// only the feed and general blocks. It never fails.
func Extract(t model.IndicatorType, value string, feeds []string, enr model.Enrichment) Vector {
	v := newVector()
	feeds = normalize.NormalizeFeeds(feeds)

	if t.Valid() {
		v.set("type_"+string(t), 1)
	}

	extractFeeds(v, feeds)

	switch t {
	case model.TypeIP:
		extractIP(v, value, enr)
	case model.TypeDomain:
		extractDomain(v, value, enr)
	case model.TypeURL:
		extractURL(v, value)
	case model.TypeHash:
		v.set("hash_length", float64(len(value)))
	}

	if enr.HasSummary() {
		v.set("has_summary", 1)
		v.set("summary_length", float64(utf8.RuneCountInString(enr.Summary)))
	}

	return v
}

func extractFeeds(v Vector, feeds []string) {
	v.set("feed_count", float64(len(feeds)))
	for _, f := range feeds {
		if _, known := featureIndex[FeedFeature(f)]; known {
			v.set(FeedFeature(f), 1)
		}
		if IsThreatFeed(f) {
			v.set("from_threat_feed", 1)
		}
		if IsURLFeed(f) {
			v.set("from_url_feed", 1)
		}
	}
}

func extractIP(v Vector, value string, enr model.Enrichment) {
	if enr.HasCountry() {
		v.set("has_country", 1)
		cc := strings.ToUpper(enr.Country)
		if _, ok := highRiskCountries[cc]; ok {
			v.set("country_high_risk", 1)
		}
		if _, ok := mediumRiskCountries[cc]; ok {
			v.set("country_medium_risk", 1)
		}
	}
	if enr.HasCoordinates() {
		v.set("has_geo_coords", 1)
	}
	if enr.HasASN() {
		v.set("has_asn", 1)
	}

	addr, err := netip.ParseAddr(value)
	if err != nil {
		return
	}
	if IsNonPublic(addr) {
		v.set("ip_is_private", 1)
	}
	if addr.Unmap().Is6() {
		v.set("ip_is_v6", 1)
	}
}

func extractDomain(v Vector, value string, enr model.Enrichment) {
	if enr.HasRegistrar() {
		v.set("has_registrar", 1)
	}
	if enr.HasCreationDate() {
		v.set("has_creation_date", 1)
	}

	d := strings.TrimSuffix(strings.ToLower(value), ".")
	if d == "" {
		return
	}
	v.set("domain_length", float64(len(d)))
	v.set("domain_label_count", float64(strings.Count(d, ".")+1))
	v.set("domain_entropy", roundTo(shannonEntropy(d), 6))
	if _, icann := publicsuffix.PublicSuffix(d); icann {
		v.set("domain_known_suffix", 1)
	}
}

func extractURL(v Vector, value string) {
	v.set("url_length", float64(len(value)))
	v.set("dot_count", float64(strings.Count(value, ".")))
	if dottedQuad.MatchString(value) {
		v.set("has_ip_in_url", 1)
	}
	for _, c := range urlChars {
		if strings.Contains(value, c.char) {
			v.set(c.name, 1)
		}
	}
	if strings.HasPrefix(strings.ToLower(value), "https://") {
		v.set("url_is_https", 1)
	}
}

func shannonEntropy(s string) float64 {
	if len(s) == 0 {
		return 0
	}

	var counts [256]int
	for i := 0; i < len(s); i++ {
		counts[s[i]]++
	}

	var entropy float64
	total := float64(len(s))
	for _, count := range counts {
		if count > 0 {
			p := float64(count) / total
			entropy -= p * math.Log2(p)
		}
	}
	return entropy
}

func roundTo(x float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(x*p) / p
}
