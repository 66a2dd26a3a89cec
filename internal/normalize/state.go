package normalize

import "strings"

// stateNames maps every accepted spelling to the canonical abbreviation
var stateNames = map[string]string{
	"nsw":                          "NSW",
	"new south wales":              "NSW",
	"vic":                          "VIC",
	"victoria":                     "VIC",
	"qld":                          "QLD",
	"queensland":                   "QLD",
	"sa":                           "SA",
	"south australia":              "SA",
	"wa":                           "WA",
	"western australia":            "WA",
	"tas":                          "TAS",
	"tasmania":                     "TAS",
	"nt":                           "NT",
	"northern territory":           "NT",
	"act":                          "ACT",
	"australian capital territory": "ACT",
}

// StateAbbreviations is the closed set of canonical state codes
var StateAbbreviations = []string{"ACT", "NSW", "NT", "QLD", "SA", "TAS", "VIC", "WA"}

// State returns the canonical abbreviation, or "" if s is not a known state
func State(s string) string {
	key := strings.ToLower(Spaces(strings.Trim(s, " .,")))
	return stateNames[key]
}

// IsState reports whether s is already a canonical abbreviation
func IsState(s string) bool {
	for _, abbr := range StateAbbreviations {
		if s == abbr {
			return true
		}
	}
	return false
}
