package domain

import "strings"

// MatchesFilter reports whether a key or label matches a filter expression.
// An empty filter or "*" matches everything. A trailing "*" matches by
// prefix. Anything else is an exact match.
func MatchesFilter(value, filter string) bool {
	if filter == "" || filter == "*" {
		return true
	}
	if strings.HasSuffix(filter, "*") {
		return strings.HasPrefix(value, strings.TrimSuffix(filter, "*"))
	}
	return value == filter
}

// FilterToLike converts a filter expression to a SQL LIKE pattern. The
// second return value is false when the filter needs no LIKE at all
// (matches everything). Literal % and _ in the filter are escaped with
// backslash, so queries using the pattern must specify ESCAPE '\'.
func FilterToLike(filter string) (string, bool) {
	if filter == "" || filter == "*" {
		return "", false
	}
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(filter)
	if strings.HasSuffix(escaped, "*") {
		return strings.TrimSuffix(escaped, "*") + "%", true
	}
	return escaped, true
}
