package features

import "strings"

var labels = map[string]string{
	"type_ip":             "Indicator is an IP address",
	"type_domain":         "Indicator is a domain",
	"type_url":            "Indicator is a URL",
	"type_hash":           "Indicator is a file hash",
	"type_email":          "Indicator is an email address",
	"feed_count":          "Number of reporting feeds",
	"has_country":         "Country known",
	"country_high_risk":   "Hosted in a high-risk country",
	"country_medium_risk": "Hosted in a medium-risk country",
	"has_geo_coords":      "Geolocation known",
	"has_asn":             "Autonomous system known",
	"ip_is_private":       "Private or reserved address",
	"ip_is_v6":            "IPv6 address",
	"has_registrar":       "WHOIS registrar known",
	"has_creation_date":   "Domain creation date known",
	"domain_length":       "Domain length",
	"domain_label_count":  "Number of domain labels",
	"domain_entropy":      "Domain character entropy",
	"domain_known_suffix": "Domain uses a known public suffix",
	"url_length":          "URL length",
	"dot_count":           "Dots in URL",
	"has_ip_in_url":       "URL contains an IP address",
	"contains_question":   "URL contains '?'",
	"contains_ampersand":  "URL contains '&'",
	"contains_equals":     "URL contains '='",
	"contains_at":         "URL contains '@'",
	"contains_percent":    "URL contains '%'",
	"contains_hyphen":     "URL contains '-'",
	"contains_underscore": "URL contains '_'",
	"contains_tilde":      "URL contains '~'",
	"url_is_https":        "URL uses HTTPS",
	"hash_length":         "Hash length",
	"has_summary":         "Feed supplied a description",
	"summary_length":      "Description length",
	"from_threat_feed":    "Reported by a threat feed",
	"from_url_feed":       "Reported by a URL feed",
}

// Label returns the analyst-facing description of a feature
func Label(name string) string {
	if l, ok := labels[name]; ok {
		return l
	}
	if feed, ok := strings.CutPrefix(name, "feed_"); ok {
		return "Reported by " + feed
	}
	return name
}
