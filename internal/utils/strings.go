package utils

import (
	"strings"
	"unicode"
)

// NormalizeString trims whitespace from free-text form input
func NormalizeString(s string) string {
	return strings.TrimSpace(s)
}

// NormalizeEmail normalizes email addresses (lowercase and trim)
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeMobile strips everything but digits from a mobile number so the
// ten-digit pattern check sees a clean value.
func NormalizeMobile(mobile string) string {
	cleaned := strings.TrimSpace(mobile)
	if cleaned == "" {
		return ""
	}

	var result strings.Builder
	for _, r := range cleaned {
		if unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}

	// Drop a leading country code for Indian numbers
	digits := result.String()
	if len(digits) == 12 && strings.HasPrefix(digits, "91") {
		digits = digits[2:]
	}
	return digits
}
