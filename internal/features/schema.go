// Package features turns a normalized indicator into the fixed, versioned
// numeric vector the classifier was trained on.
package features

import "github.com/ppiankov/iocscore/internal/model"

// SchemaVersion identifies the ExpectedFeatures ordering
const SchemaVersion = "v1"

// Tracked URL special characters, in schema order
var urlChars = []struct {
	char string
	name string
}{
	{"?", "contains_question"},
	{"&", "contains_ampersand"},
	{"=", "contains_equals"},
	{"@", "contains_at"},
	{"%", "contains_percent"},
	{"-", "contains_hyphen"},
	{"_", "contains_underscore"},
	{"~", "contains_tilde"},
}

var (
	ipFeatures = []string{
		"has_country",
		"country_high_risk",
		"country_medium_risk",
		"has_geo_coords",
		"has_asn",
		"ip_is_private",
		"ip_is_v6",
	}
	domainFeatures = []string{
		"has_registrar",
		"has_creation_date",
		"domain_length",
		"domain_label_count",
		"domain_entropy",
		"domain_known_suffix",
	}
	hashFeatures    = []string{"hash_length"}
	generalFeatures = []string{
		"has_summary",
		"summary_length",
		"from_threat_feed",
		"from_url_feed",
	}
)

// ExpectedFeatures is the ordered feature list of SchemaVersion.
// Models are trained and served against exactly this ordering.
var ExpectedFeatures = buildExpected()

var featureIndex = func() map[string]int {
	idx := make(map[string]int, len(ExpectedFeatures))
	for i, n := range ExpectedFeatures {
		idx[n] = i
	}
	return idx
}()

func buildExpected() []string {
	var names []string
	for _, t := range model.IndicatorTypes {
		names = append(names, "type_"+string(t))
	}
	for _, f := range KnownFeeds() {
		names = append(names, FeedFeature(f))
	}
	names = append(names, "feed_count")
	names = append(names, ipFeatures...)
	names = append(names, domainFeatures...)
	names = append(names, "url_length", "dot_count", "has_ip_in_url")
	for _, c := range urlChars {
		names = append(names, c.name)
	}
	names = append(names, "url_is_https")
	names = append(names, hashFeatures...)
	names = append(names, generalFeatures...)
	return names
}

// FeedFeature returns the flag name for a catalog feed
func FeedFeature(feed string) string {
	return "feed_" + feed
}

// Vector is a complete feature vector in ExpectedFeatures order
type Vector struct {
	Schema string    `json:"schema"`
	Names  []string  `json:"names"`
	Values []float64 `json:"values"`
}

func newVector() Vector {
	names := make([]string, len(ExpectedFeatures))
	copy(names, ExpectedFeatures)
	return Vector{
		Schema: SchemaVersion,
		Names:  names,
		Values: make([]float64, len(ExpectedFeatures)),
	}
}

func (v Vector) set(name string, value float64) {
	v.Values[featureIndex[name]] = value
}

// Get returns the value of a named feature
func (v Vector) Get(name string) (float64, bool) {
	for i, n := range v.Names {
		if n == name {
			return v.Values[i], true
		}
	}
	return 0, false
}

// Map returns the vector as name -> value
func (v Vector) Map() map[string]float64 {
	m := make(map[string]float64, len(v.Names))
	for i, n := range v.Names {
		m[n] = v.Values[i]
	}
	return m
}

// Len returns the number of features
func (v Vector) Len() int {
	return len(v.Values)
}
