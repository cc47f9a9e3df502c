// Package phone normalizes caller numbers arriving from call-platform
// webhooks. Providers are inconsistent about formatting, so everything is
// funneled through E.164 before it touches storage or outbound SMS.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const defaultRegion = "US"

// NormalizeE164 formats a caller number to E.164. Numbers that cannot be
// parsed are returned trimmed but otherwise untouched; the caller record
// keeps whatever the provider sent rather than dropping the call.
func NormalizeE164(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return trimmed
	}

	number, err := phonenumbers.Parse(trimmed, defaultRegion)
	if err != nil || !phonenumbers.IsValidNumber(number) {
		return trimmed
	}

	return phonenumbers.Format(number, phonenumbers.E164)
}

// Valid reports whether the input parses as a possible number. The request
// validator uses this on caller IDs; possible rather than assigned, since
// providers forward numbers from ranges libphonenumber lags behind on.
func Valid(input string) bool {
	number, err := phonenumbers.Parse(strings.TrimSpace(input), defaultRegion)
	if err != nil {
		return false
	}
	return phonenumbers.IsPossibleNumber(number)
}
