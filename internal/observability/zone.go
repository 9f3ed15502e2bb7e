package observability

import (
	"strings"

	"golang.org/x/net/publicsuffix"
)

// ZoneLabel reduces a query name to its registrable domain (eTLD+1) for use
// as a metric/log label, so that per-host cardinality (www.a.example.com,
// api.a.example.com, ...) collapses to one series per registered domain
// instead of one per name ever queried.
func ZoneLabel(name string) string {
	name = strings.TrimSuffix(strings.ToLower(name), ".")
	if name == "" {
		return "."
	}

	zone, err := publicsuffix.EffectiveTLDPlusOne(name)
	if err != nil {
		// Single-label names, bare TLDs, and other names publicsuffix
		// can't reduce are logged as-is rather than dropped.
		return name
	}
	return zone
}
