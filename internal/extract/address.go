package extract

import (
	"regexp"
	"strings"

	"github.com/ppiankov/siteintent/internal/model"
	"github.com/ppiankov/siteintent/internal/normalize"
)

var (
	statePattern    = regexp.MustCompile(`\b(NSW|VIC|QLD|SA|WA|TAS|NT|ACT)\b`)
	postcodePattern = regexp.MustCompile(`\b(\d{4})\b`)
	// "12 Smith St, Newtown NSW 2042"
	addressPattern = regexp.MustCompile(`\d+[A-Za-z]?(?:/\d+)?\s+[A-Za-z][A-Za-z .'\-]+,\s*[A-Za-z][A-Za-z .'\-]+,?\s+(?:NSW|VIC|QLD|SA|WA|TAS|NT|ACT)\s+\d{4}`)
)

// PostalAddress is a decomposed street address
type PostalAddress struct {
	Street   string
	Suburb   string
	State    string
	Postcode string
}

// Full renders the address as one line
func (a PostalAddress) Full() string {
	var parts []string
	if a.Street != "" {
		parts = append(parts, a.Street)
	}
	tail := strings.TrimSpace(strings.Join(nonEmpty(a.Suburb, a.State, a.Postcode), " "))
	if tail != "" {
		parts = append(parts, tail)
	}
	return strings.Join(parts, ", ")
}

// Address returns full address candidates: JSON-LD PostalAddress first,
// then a free-text scan of text blocks.
func Address(facts model.RawFacts) []Candidate {
	c := newCollector()
	for _, pa := range jsonldAddresses(facts) {
		c.add(pa.Full(), SourceJSONLD)
	}
	for _, text := range facts.TextBlocks {
		for _, m := range addressPattern.FindAllString(text, -1) {
			c.add(normalize.Spaces(m), SourceRegex)
		}
	}
	return c.result()
}

// Suburb returns suburb candidates from JSON-LD, then derived from the
// address candidates.
func Suburb(facts model.RawFacts) []Candidate {
	c := newCollector()
	for _, pa := range jsonldAddresses(facts) {
		c.add(pa.Suburb, SourceJSONLD)
	}
	for _, a := range Address(facts) {
		c.add(SplitAddress(a.Value).Suburb, a.Source)
	}
	return c.result()
}

// State returns canonical state abbreviations: JSON-LD, address
// derivation, then a free-text scan against the closed abbreviation set.
func State(facts model.RawFacts) []Candidate {
	c := newCollector()
	for _, pa := range jsonldAddresses(facts) {
		c.add(pa.State, SourceJSONLD)
	}
	for _, a := range Address(facts) {
		c.add(SplitAddress(a.Value).State, a.Source)
	}
	for _, text := range facts.TextBlocks {
		for _, m := range statePattern.FindAllString(text, -1) {
			c.add(m, SourceRegex)
		}
	}
	return c.result()
}

// Postcode returns four-digit postcodes from JSON-LD and addresses
func Postcode(facts model.RawFacts) []Candidate {
	c := newCollector()
	for _, pa := range jsonldAddresses(facts) {
		c.add(pa.Postcode, SourceJSONLD)
	}
	for _, a := range Address(facts) {
		c.add(SplitAddress(a.Value).Postcode, a.Source)
	}
	return c.result()
}

// SplitAddress derives suburb, state and postcode from the last two
// comma-separated components of an address line.
//
//	"12 Smith St, Newtown NSW 2042"   -> Newtown / NSW / 2042
//	"12 Smith St, Newtown, NSW 2042"  -> Newtown / NSW / 2042
func SplitAddress(address string) PostalAddress {
	var parts []string
	for _, p := range strings.Split(address, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return PostalAddress{}
	}

	var pa PostalAddress
	last := parts[len(parts)-1]
	rest := parts[:len(parts)-1]

	if m := postcodePattern.FindStringSubmatch(last); m != nil {
		pa.Postcode = m[1]
		last = strings.TrimSpace(strings.Replace(last, m[1], "", 1))
	}
	if loc := statePattern.FindStringIndex(strings.ToUpper(last)); loc != nil {
		pa.State = strings.ToUpper(last[loc[0]:loc[1]])
		last = strings.TrimSpace(last[:loc[0]] + last[loc[1]:])
	} else if s := normalize.State(last); s != "" {
		pa.State = s
		last = ""
	}

	switch {
	case last != "" && (pa.State != "" || pa.Postcode != ""):
		pa.Suburb = last
	case len(rest) > 0 && (pa.State != "" || pa.Postcode != ""):
		pa.Suburb = rest[len(rest)-1]
		rest = rest[:len(rest)-1]
	default:
		rest = parts
	}
	pa.Street = strings.Join(rest, ", ")
	return pa
}

func jsonldAddresses(facts model.RawFacts) []PostalAddress {
	var out []PostalAddress
	for _, obj := range entities(facts) {
		switch addr := obj["address"].(type) {
		case string:
			out = append(out, SplitAddress(addr))
		case map[string]any:
			out = append(out, postalFromMap(addr))
		case []any:
			for _, item := range addr {
				if m, ok := item.(map[string]any); ok {
					out = append(out, postalFromMap(m))
				}
			}
		}
	}
	return out
}

func postalFromMap(m map[string]any) PostalAddress {
	state := stringField(m, "addressRegion")
	if s := normalize.State(state); s != "" {
		state = s
	}
	return PostalAddress{
		Street:   stringField(m, "streetAddress"),
		Suburb:   stringField(m, "addressLocality"),
		State:    state,
		Postcode: stringField(m, "postalCode"),
	}
}

func nonEmpty(values ...string) []string {
	var out []string
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, strings.TrimSpace(v))
		}
	}
	return out
}
