package features

// Feed catalog baked into the v1 feature schema. Adding a feed here changes
// ExpectedFeatures and therefore requires a SchemaVersion bump and a retrained
// model. Feeds missing from the catalog still count toward feed_count.
var (
	ThreatFeeds = []string{
		"abuseipdb",
		"alienvault_otx",
		"threatfox",
		"feodotracker",
		"spamhaus_drop",
		"emerging_threats",
		"blocklist_de",
		"cins_army",
		"malwarebazaar",
	}

	URLFeeds = []string{
		"urlhaus",
		"openphish",
		"phishtank",
	}
)

// Static country risk lists (ISO 3166-1 alpha-2)
var (
	highRiskCountries = map[string]struct{}{
		"KP": {}, "IR": {}, "RU": {}, "CN": {}, "SY": {}, "BY": {},
	}
	mediumRiskCountries = map[string]struct{}{
		"BR": {}, "IN": {}, "VN": {}, "UA": {}, "RO": {}, "NG": {},
		"TR": {}, "PK": {}, "ID": {}, "TH": {},
	}
)

var (
	threatFeedSet = toSet(ThreatFeeds)
	urlFeedSet    = toSet(URLFeeds)
)

// KnownFeeds returns every catalog feed in schema order
func KnownFeeds() []string {
	out := make([]string, 0, len(ThreatFeeds)+len(URLFeeds))
	out = append(out, ThreatFeeds...)
	return append(out, URLFeeds...)
}

// IsThreatFeed reports whether feed is a catalog threat feed
func IsThreatFeed(feed string) bool {
	_, ok := threatFeedSet[feed]
	return ok
}

// IsURLFeed reports whether feed is a catalog URL feed
func IsURLFeed(feed string) bool {
	_, ok := urlFeedSet[feed]
	return ok
}

func toSet(items []string) map[string]struct{} {
	s := make(map[string]struct{}, len(items))
	for _, it := range items {
		s[it] = struct{}{}
	}
	return s
}
