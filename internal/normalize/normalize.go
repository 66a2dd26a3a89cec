// Package normalize canonicalizes phone numbers, URLs, social handles and
// state names so equal facts compare equal.
package normalize

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/nyaruka/phonenumbers"
)

// DefaultCountryCode is used when a national number has a trunk prefix
const DefaultCountryCode = "61"

var (
	nonDigit = regexp.MustCompile(`\D`)
	spaceRun = regexp.MustCompile(`\s+`)
)

// Phone converts a phone number into E.164 form, reading national numbers
// in the region of countryCode. Returns "" when the number is not valid for
// its region.
//
//	"02 1234 5678" (cc 61) -> "+61212345678"
//	"+61 2 1234 5678"      -> "+61212345678"
//	"0061 2 1234 5678"     -> "+61212345678"
func Phone(raw, countryCode string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimSpace(strings.TrimPrefix(strings.ToLower(raw), "tel:"))
	if raw == "" {
		return ""
	}

	// 00 is not the international prefix in every region
	if digits := nonDigit.ReplaceAllString(raw, ""); !strings.HasPrefix(raw, "+") && strings.HasPrefix(digits, "00") {
		raw = "+" + digits[2:]
	}

	num, err := phonenumbers.Parse(raw, Region(countryCode))
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return ""
	}
	return phonenumbers.Format(num, phonenumbers.E164)
}

// PlausiblePhone reports whether s is a valid number already in E.164 form
func PlausiblePhone(s string) bool {
	if !strings.HasPrefix(s, "+") {
		return false
	}
	num, err := phonenumbers.Parse(s, "")
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return false
	}
	return phonenumbers.Format(num, phonenumbers.E164) == s
}

// Region maps a calling code such as "61" to its main region ("AU").
// An empty code means DefaultCountryCode.
func Region(countryCode string) string {
	if countryCode = nonDigit.ReplaceAllString(countryCode, ""); countryCode == "" {
		countryCode = DefaultCountryCode
	}
	cc, err := strconv.Atoi(countryCode)
	if err != nil {
		return "ZZ"
	}
	return phonenumbers.GetRegionCodeForCountryCode(cc)
}

// URL returns an absolute http(s) URL without fragment, or "" if unusable.
// Scheme-less hosts ("example.com.au/about") get https.
func URL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.ContainsAny(raw, " \t\n") {
		return ""
	}
	lower := strings.ToLower(raw)
	if strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "tel:") || strings.HasPrefix(lower, "javascript:") {
		return ""
	}
	if strings.HasPrefix(raw, "//") {
		raw = "https:" + raw
	} else if !strings.Contains(lower, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || !strings.Contains(u.Host, ".") {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	return u.String()
}

// Host returns the lowercased hostname without a leading "www."
func Host(raw string) string {
	normalized := URL(raw)
	if normalized == "" {
		return ""
	}
	u, err := url.Parse(normalized)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}

// Handle extracts the account handle from a social profile URL
// ("https://instagram.com/acme_plumbing/" -> "acme_plumbing").
func Handle(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "@") {
		return strings.TrimPrefix(raw, "@")
	}
	normalized := URL(raw)
	if normalized == "" {
		return strings.Trim(raw, "/")
	}
	u, err := url.Parse(normalized)
	if err != nil {
		return ""
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for _, p := range parts {
		switch strings.ToLower(p) {
		case "", "company", "in", "pages", "channel", "c", "user", "pg":
			continue
		}
		return strings.TrimPrefix(p, "@")
	}
	return ""
}

// SocialURL canonicalizes a social profile URL: https, no query, no trailing slash
func SocialURL(raw string) string {
	normalized := URL(raw)
	if normalized == "" {
		return ""
	}
	u, err := url.Parse(normalized)
	if err != nil {
		return ""
	}
	u.Scheme = "https"
	u.RawQuery = ""
	u.Path = strings.TrimRight(u.Path, "/")
	return u.String()
}

// Spaces collapses whitespace runs and trims
func Spaces(s string) string {
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}

// Digits strips everything that is not a digit
func Digits(s string) string {
	return nonDigit.ReplaceAllString(s, "")
}

// Title upper-cases the first letter of each word, leaving the rest intact
func Title(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
