// Package strings provides string-set utilities used by scope and claim handling.
package strings

import (
	"strings"
)

// DedupeAndTrim removes duplicates and empty strings from a slice, trimming
// whitespace from each element. Order is preserved.
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; !ok {
			seen[trimmed] = struct{}{}
			result = append(result, trimmed)
		}
	}

	return result
}

// SplitSpaceDelimited parses an OAuth space-delimited value (scope,
// response_type, prompt) into a deduplicated slice.
func SplitSpaceDelimited(value string) []string {
	return DedupeAndTrim(strings.Fields(value))
}

// SetEqual reports whether a and b contain exactly the same elements,
// ignoring order and duplicates. Consent matching relies on this being
// exact set equality, not a subset check.
func SetEqual(a, b []string) bool {
	as := toSet(a)
	bs := toSet(b)
	if len(as) != len(bs) {
		return false
	}
	for v := range as {
		if _, ok := bs[v]; !ok {
			return false
		}
	}
	return true
}

// Subset reports whether every element of sub is present in super.
// An empty sub is a subset of anything.
func Subset(sub, super []string) bool {
	ss := toSet(super)
	for _, v := range sub {
		if _, ok := ss[v]; !ok {
			return false
		}
	}
	return true
}

// Contains reports whether values contains v.
func Contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

func toSet(values []string) map[string]struct{} {
	s := make(map[string]struct{}, len(values))
	for _, v := range values {
		s[v] = struct{}{}
	}
	return s
}
