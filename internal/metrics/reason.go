package metrics

import "strings"

// reasonClasses maps substrings of transport failure reasons to bucket
// labels. Order matters: the first match wins.
var reasonClasses = []struct {
	needle string
	class  string
}{
	{"timeout", "timeout"},
	{"deadline exceeded", "timeout"},
	{"connection refused", "connection refused"},
	{"connection reset", "connection reset"},
	{"broken pipe", "connection reset"},
	{"no such host", "dns"},
	{"tls", "tls"},
	{"x509", "tls"},
	{"certificate", "tls"},
	{"eof", "eof"},
	{"malformed", "malformed response"},
	{"panic", "panic"},
}

// ReasonClass reduces a free-form transport failure reason to a short, low
// cardinality label suitable for status buckets and metric labels.
func ReasonClass(reason string) string {
	lower := strings.ToLower(strings.TrimSpace(reason))
	if lower == "" {
		return "unknown"
	}
	for _, rc := range reasonClasses {
		if strings.Contains(lower, rc.needle) {
			return rc.class
		}
	}
	return "other"
}
