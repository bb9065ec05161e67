// Package dedup detects groups of profiles that represent the same
// real-world contact and computes how to merge them.
package dedup

import (
	"strings"
)

// NormalizeEmail lowercases an address and canonicalizes the local part
// by stripping dots and plus-tags, so "Jane.Doe+crm@Co.com" and
// "janedoe@co.com" compare equal.
func NormalizeEmail(email string) (local, domainPart string) {
	email = strings.ToLower(strings.TrimSpace(email))
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return "", ""
	}
	local, domainPart = email[:at], email[at+1:]
	if plus := strings.Index(local, "+"); plus >= 0 {
		local = local[:plus]
	}
	local = strings.ReplaceAll(local, ".", "")
	return local, domainPart
}

// NormalizePhone reduces a phone number to its last ten digits. Numbers
// with fewer than seven digits normalize to "" (too short to match on).
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) < 7 {
		return ""
	}
	if len(digits) > 10 {
		digits = digits[len(digits)-10:]
	}
	return digits
}

// NameTokens splits a display name into a normalized token set.
func NameTokens(name string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, tok := range strings.Fields(strings.ToLower(name)) {
		tok = strings.Trim(tok, ".,")
		if tok != "" {
			tokens[tok] = struct{}{}
		}
	}
	return tokens
}

// NameOverlap computes the token-set overlap ratio of two names:
// |intersection| / |smaller set|. Empty names overlap with nothing.
func NameOverlap(a, b string) float64 {
	ta, tb := NameTokens(a), NameTokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	if len(tb) < len(ta) {
		ta, tb = tb, ta
	}
	shared := 0
	for tok := range ta {
		if _, ok := tb[tok]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(ta))
}
