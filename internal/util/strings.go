package util

import "strings"

// DefaultString returns the fallback value if v is empty or consists entirely
// of whitespace; otherwise it returns v unchanged.
//
// Examples:
//
//	DefaultString("Paris", "Unknown") → "Paris"
//	DefaultString("",      "Unknown") → "Unknown"
//	DefaultString("  ",    "Unknown") → "Unknown"
func DefaultString(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

// EmptyDash returns "-" if s is empty or consists entirely of whitespace;
// otherwise it returns s unchanged. Used by table output for optional columns.
func EmptyDash(s string) string {
	return DefaultString(s, "-")
}

// UnknownIfEmpty is the display form of an optional geolocation field.
func UnknownIfEmpty(s string) string {
	return DefaultString(s, Unknown)
}

// ContainsFold reports whether needle occurs in haystack, ignoring case. An
// empty needle never matches.
func ContainsFold(haystack, needle string) bool {
	needle = strings.TrimSpace(needle)
	if needle == "" {
		return false
	}
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
