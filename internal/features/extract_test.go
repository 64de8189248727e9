package features

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/iocscore/internal/model"
)

func feature(t *testing.T, v Vector, name string) float64 {
	t.Helper()
	val, ok := v.Get(name)
	require.True(t, ok, "feature %s missing from vector", name)
	return val
}

func TestExpectedFeaturesUnique(t *testing.T) {
	seen := map[string]bool{}
	for _, n := range ExpectedFeatures {
		assert.False(t, seen[n], "duplicate feature %s", n)
		seen[n] = true
	}
	assert.Equal(t, len(ExpectedFeatures), len(featureIndex))
}

func TestSchemaCompleteness(t *testing.T) {
	inputs := []struct {
		typ   model.IndicatorType
		value string
	}{
		{model.TypeIP, "1.2.3.4"},
		{model.TypeDomain, "example.com"},
		{model.TypeURL, "http://example.com"},
		{model.TypeHash, "d41d8cd98f00b204e9800998ecf8427e"},
		{model.TypeEmail, "a@example.com"},
		{"unknown", "xyz"},
	}

	for _, in := range inputs {
		v := Extract(in.typ, in.value, nil, model.Enrichment{})
		assert.Equal(t, SchemaVersion, v.Schema)
		assert.Equal(t, ExpectedFeatures, v.Names, "type %s", in.typ)
		assert.Len(t, v.Values, len(ExpectedFeatures))
	}
}

func TestTypeOneHot(t *testing.T) {
	v := Extract(model.TypeDomain, "example.com", nil, model.Enrichment{})

	sum := 0.0
	for _, typ := range model.IndicatorTypes {
		sum += feature(t, v, "type_"+string(typ))
	}
	assert.Equal(t, 1.0, sum)
	assert.Equal(t, 1.0, feature(t, v, "type_domain"))
}

func TestFeedFlags(t *testing.T) {
	v := Extract(model.TypeIP, "1.2.3.4", []string{"AbuseIPDB", "urlhaus", "brand_new_feed", "abuseipdb"}, model.Enrichment{})

	assert.Equal(t, 3.0, feature(t, v, "feed_count"), "unknown feeds count, duplicates do not")
	assert.Equal(t, 1.0, feature(t, v, "feed_abuseipdb"))
	assert.Equal(t, 1.0, feature(t, v, "feed_urlhaus"))
	assert.Equal(t, 0.0, feature(t, v, "feed_threatfox"))
	assert.Equal(t, 1.0, feature(t, v, "from_threat_feed"))
	assert.Equal(t, 1.0, feature(t, v, "from_url_feed"))

	_, ok := v.Get("feed_brand_new_feed")
	assert.False(t, ok)
}

func TestIPFeatures(t *testing.T) {
	asn := uint32(0)
	enr := model.Enrichment{
		Country:     "ru",
		ASN:         &asn,
		Coordinates: &model.GeoPoint{},
	}
	v := Extract(model.TypeIP, "1.2.3.4", nil, enr)

	assert.Equal(t, 1.0, feature(t, v, "has_country"))
	assert.Equal(t, 1.0, feature(t, v, "country_high_risk"))
	assert.Equal(t, 0.0, feature(t, v, "country_medium_risk"))
	assert.Equal(t, 1.0, feature(t, v, "has_geo_coords"), "(0,0) is a real location")
	assert.Equal(t, 1.0, feature(t, v, "has_asn"), "ASN 0 is present, not absent")
	assert.Equal(t, 0.0, feature(t, v, "ip_is_private"))

	v = Extract(model.TypeIP, "10.1.2.3", nil, model.Enrichment{})
	assert.Equal(t, 0.0, feature(t, v, "has_country"))
	assert.Equal(t, 0.0, feature(t, v, "has_geo_coords"))
	assert.Equal(t, 1.0, feature(t, v, "ip_is_private"))

	v = Extract(model.TypeIP, "2606:4700::1111", nil, model.Enrichment{})
	assert.Equal(t, 1.0, feature(t, v, "ip_is_v6"))
}

func TestDomainFeatures(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	v := Extract(model.TypeDomain, "login.example.com", nil, model.Enrichment{
		Registrar:    "NameCheap",
		CreationDate: &created,
	})

	assert.Equal(t, 1.0, feature(t, v, "has_registrar"))
	assert.Equal(t, 1.0, feature(t, v, "has_creation_date"))
	assert.Equal(t, 17.0, feature(t, v, "domain_length"))
	assert.Equal(t, 3.0, feature(t, v, "domain_label_count"))
	assert.Equal(t, 1.0, feature(t, v, "domain_known_suffix"))
	assert.Greater(t, feature(t, v, "domain_entropy"), 0.0)

	v = Extract(model.TypeDomain, "c2.notarealtld", nil, model.Enrichment{})
	assert.Equal(t, 0.0, feature(t, v, "domain_known_suffix"))
	assert.Equal(t, 0.0, feature(t, v, "has_registrar"))
}

func TestURLFeatures(t *testing.T) {
	v := Extract(model.TypeURL, "https://192.168.1.10/a-b_c~d?x=1&y=%20", nil, model.Enrichment{})

	assert.Equal(t, 1.0, feature(t, v, "has_ip_in_url"))
	assert.Equal(t, 3.0, feature(t, v, "dot_count"))
	assert.Equal(t, 1.0, feature(t, v, "url_is_https"))
	for _, c := range urlChars {
		if c.name == "contains_at" {
			assert.Equal(t, 0.0, feature(t, v, c.name))
			continue
		}
		assert.Equal(t, 1.0, feature(t, v, c.name), c.name)
	}

	v = Extract(model.TypeURL, "http://example.com/v1.2.3", nil, model.Enrichment{})
	assert.Equal(t, 0.0, feature(t, v, "has_ip_in_url"), "three dots are not a dotted quad")
	assert.Equal(t, 0.0, feature(t, v, "url_is_https"))
}

func TestHashFeatures(t *testing.T) {
	v := Extract(model.TypeHash, "d41d8cd98f00b204e9800998ecf8427e", nil, model.Enrichment{})
	assert.Equal(t, 32.0, feature(t, v, "hash_length"))
	assert.Equal(t, 0.0, feature(t, v, "url_length"))
}

func TestUnknownTypeOnlyFeedAndGeneral(t *testing.T) {
	enr := model.Enrichment{Country: "KP", Registrar: "x", Summary: "botnet c2"}

	var v Vector
	require.NotPanics(t, func() {
		v = Extract("unknown", "xyz", []string{"threatfox", "mystery"}, enr)
	})

	allowed := map[string]bool{
		"feed_count": true, "feed_threatfox": true,
		"has_summary": true, "summary_length": true, "from_threat_feed": true,
	}
	for i, name := range v.Names {
		if allowed[name] {
			continue
		}
		assert.Zero(t, v.Values[i], "type-specific feature %s must stay zero", name)
	}
	assert.Equal(t, 2.0, feature(t, v, "feed_count"))
	assert.Equal(t, 9.0, feature(t, v, "summary_length"))
	assert.Equal(t, 1.0, feature(t, v, "from_threat_feed"))
}

func TestExtractDeterministic(t *testing.T) {
	enr := model.Enrichment{Country: "BR", Summary: "scanner"}
	a := Extract(model.TypeIP, "1.2.3.4", []string{"cins_army", "abuseipdb"}, enr)
	b := Extract(model.TypeIP, "1.2.3.4", []string{"abuseipdb", "cins_army"}, enr)
	assert.Equal(t, a, b)
}

func TestIsNonPublic(t *testing.T) {
	assert.True(t, IsNonPublic(netip.MustParseAddr("192.168.0.1")))
	assert.True(t, IsNonPublic(netip.MustParseAddr("::1")))
	assert.True(t, IsNonPublic(netip.MustParseAddr("::ffff:127.0.0.1")))
	assert.False(t, IsNonPublic(netip.MustParseAddr("8.8.8.8")))
	assert.False(t, IsNonPublic(netip.Addr{}))
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "Hosted in a high-risk country", Label("country_high_risk"))
	assert.Equal(t, "Reported by urlhaus", Label("feed_urlhaus"))
	assert.Equal(t, "Number of reporting feeds", Label("feed_count"))
	assert.Equal(t, "mystery", Label("mystery"))
}
