// Package internal contains small helpers shared across the service.
package internal

import (
	"math"
	"regexp"
	"strings"
)

const EmailRegexTemplate = `^[\w.\+\.\-]+@([\w\-]+\.)+[\w]{2,}$`

var emailRegex = regexp.MustCompile(EmailRegexTemplate)

// ValidEmail helper function allows to validate an email address.
func ValidEmail(email string) bool {
	return emailRegex.MatchString(email)
}

// NormalizeEmail lowercases and trims an email address so lookups against
// the stored value are exact matches.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// MinorUnits converts a decimal monetary amount into the minor units of its
// currency (eur -> cents), rounding halves to even.
func MinorUnits(amount float64) int64 {
	return int64(math.RoundToEven(amount * 100))
}

// DecimalAmount converts minor units back to the decimal amount.
func DecimalAmount(minorUnits int64) float64 {
	return float64(minorUnits) / 100
}
