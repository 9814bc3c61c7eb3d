package query_rewrite

import (
	"regexp"
	"strings"
)

// Keys recognized in the rewrite model's answer.
const (
	KeyQuery      = "QUERY"
	KeyCategories = "CATEGORIES"
	KeyTimeRange  = "TIME_RANGE"
)

// Filter names carried in RewriteResult.Params.
const (
	ParamCategories = "categories"
	ParamTimeRange  = "time_range"
)

// An identifier, optionally wrapped in markdown emphasis, then ':' or '='
// and a value. Matches anywhere in the line so bullets and numbering pass.
var fieldPattern = regexp.MustCompile(`(?i)\**\b([A-Z][A-Z0-9_]*)\b\**\s*[:=]\s*(.+)$`)

// leadingFieldPattern is fieldPattern anchored at the start of a value.
var leadingFieldPattern = regexp.MustCompile(`(?i)^\**\b([A-Z][A-Z0-9_]*)\b\**\s*[:=]\s*(.+)$`)

const valueCutset = " \t\"'`*"

func isKnownKey(key string) bool {
	switch strings.ToUpper(key) {
	case KeyQuery, KeyCategories, KeyTimeRange:
		return true
	}
	return false
}

// ParseFields extracts KEY = value pairs from free-form model output. Keys
// are upper-cased; a later line overrides an earlier one. Lines that do not
// look like a field are ignored. When a value itself starts with a known
// key, as in "here is the query: QUERY = x", the innermost known key wins.
func ParseFields(text string) map[string]string {
	fields := make(map[string]string)
	for _, line := range strings.Split(text, "\n") {
		m := fieldPattern.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		key, raw := m[1], m[2]
		for {
			inner := leadingFieldPattern.FindStringSubmatch(raw)
			if inner == nil || !isKnownKey(inner[1]) {
				break
			}
			key, raw = inner[1], inner[2]
		}
		value := strings.Trim(raw, valueCutset)
		if value == "" {
			continue
		}
		fields[strings.ToUpper(key)] = value
	}
	return fields
}

// ParseRewrite turns the model's answer into a RewriteResult. A missing
// QUERY falls back to message while keeping any filters that were found.
func ParseRewrite(text, message string) RewriteResult {
	fields := ParseFields(text)
	result := RewriteResult{Query: message, Params: map[string]string{}}

	if q, ok := fields[KeyQuery]; ok {
		result.Query = q
	}
	if c, ok := fields[KeyCategories]; ok {
		result.Params[ParamCategories] = c
	}
	if tr, ok := fields[KeyTimeRange]; ok && !strings.EqualFold(tr, "null") {
		result.Params[ParamTimeRange] = tr
	}
	return result
}
