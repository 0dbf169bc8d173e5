package tui

import (
	"regexp"
	"strings"

	"github.com/epalmerini/camelhole/internal/trace"
)

// parseSearchQuery splits a query into an optional field prefix and the
// remaining query text. Supported prefixes: step:, status:, id:, hdr:,
// body:, ep:, re:. No prefix means match across all fields.
func parseSearchQuery(query string) (field, rest string) {
	for _, f := range []string{"step", "status", "id", "hdr", "body", "ep", "re"} {
		prefix := f + ":"
		if strings.HasPrefix(query, prefix) {
			return f, query[len(prefix):]
		}
	}
	return "", query
}

// compileSearchRegex compiles a case-insensitive regex for re: queries.
func compileSearchRegex(query string) (*regexp.Regexp, error) {
	return regexp.Compile("(?i)" + query)
}

// matchesSearch reports whether evt matches the query. For field "re",
// re must be the compiled regex; for all other fields query must
// already be lowercased.
func matchesSearch(evt Event, field, query string, re *regexp.Regexp) bool {
	switch field {
	case "step":
		return strings.Contains(strings.ToLower(evt.Step), query)
	case "status":
		return strings.Contains(strings.ToLower(evt.Status), query)
	case "id":
		return strings.Contains(strings.ToLower(evt.ExchangeID), query)
	case "ep":
		return strings.Contains(strings.ToLower(evt.Headers[trace.HeaderEndpoint]), query)
	case "hdr":
		for k, v := range evt.Headers {
			if strings.Contains(strings.ToLower(k), query) ||
				strings.Contains(strings.ToLower(v), query) {
				return true
			}
		}
		return false
	case "body":
		return strings.Contains(strings.ToLower(evt.Body), query)
	case "re":
		if re == nil {
			return false
		}
		if re.MatchString(evt.Step) || re.MatchString(evt.Status) ||
			re.MatchString(evt.ExchangeID) || re.MatchString(evt.Body) {
			return true
		}
		for k, v := range evt.Headers {
			if re.MatchString(k) || re.MatchString(v) {
				return true
			}
		}
		return false
	default:
		// Match across all fields
		if strings.Contains(strings.ToLower(evt.Step), query) ||
			strings.Contains(strings.ToLower(evt.Status), query) ||
			strings.Contains(strings.ToLower(evt.ExchangeID), query) ||
			strings.Contains(strings.ToLower(evt.Body), query) {
			return true
		}
		for k, v := range evt.Headers {
			if strings.Contains(strings.ToLower(k), query) ||
				strings.Contains(strings.ToLower(v), query) {
				return true
			}
		}
		return false
	}
}
