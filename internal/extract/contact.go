package extract

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ppiankov/siteintent/internal/model"
	"github.com/ppiankov/siteintent/internal/normalize"
)

var (
	validate     = validator.New()
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	phonePattern = regexp.MustCompile(`(?:\+|\b)\d[\d\s().\-]{6,16}\d\b`)
	abnPattern   = regexp.MustCompile(`(?i)\bA\.?B\.?N\b\.?[\s:#.\-]*((?:\d[\s]?){10}\d)`)
)

// Email returns email candidates: mailto anchors, then JSON-LD email,
// then a free-text scan of headings, anchor text and meta values.
func Email(facts model.RawFacts) []Candidate {
	c := newCollector()

	for _, a := range facts.Anchors {
		href := strings.TrimSpace(a.Href)
		if !strings.HasPrefix(strings.ToLower(href), "mailto:") {
			continue
		}
		addr := href[len("mailto:"):]
		if i := strings.IndexByte(addr, '?'); i >= 0 {
			addr = addr[:i]
		}
		if v := validEmail(addr); v != "" {
			c.add(v, SourceAnchors)
		}
	}

	for _, obj := range entities(facts) {
		v := strings.TrimPrefix(stringField(obj, "email"), "mailto:")
		if v = validEmail(v); v != "" {
			c.add(v, SourceJSONLD)
		}
	}

	for _, text := range freeText(facts) {
		for _, m := range emailPattern.FindAllString(text, -1) {
			if v := validEmail(m); v != "" {
				c.add(v, SourceRegex)
			}
		}
	}

	return c.result()
}

func validEmail(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	if validate.Var(s, "email") != nil {
		return ""
	}
	return s
}

// Phone returns canonical phone candidates: tel anchors, then JSON-LD
// telephone, then a free-text scan. Implausible numbers are dropped.
func Phone(facts model.RawFacts, countryCode string) []Candidate {
	c := newCollector()

	for _, a := range facts.Anchors {
		href := strings.TrimSpace(a.Href)
		if !strings.HasPrefix(strings.ToLower(href), "tel:") {
			continue
		}
		c.add(normalize.Phone(href, countryCode), SourceAnchors)
	}

	for _, obj := range entities(facts) {
		if v := stringField(obj, "telephone"); v != "" {
			c.add(normalize.Phone(v, countryCode), SourceJSONLD)
		}
	}

	for _, text := range freeText(facts) {
		text = abnPattern.ReplaceAllString(text, " ")
		for _, m := range phonePattern.FindAllString(text, -1) {
			if len(normalize.Digits(m)) < 8 {
				continue
			}
			c.add(normalize.Phone(m, countryCode), SourceRegex)
		}
	}

	return c.result()
}

// ABN returns 11-digit identifiers labelled "ABN" in the page text.
// The checksum is not validated here.
func ABN(facts model.RawFacts) []Candidate {
	c := newCollector()
	for _, obj := range entities(facts) {
		for _, key := range []string{"taxID", "vatID", "identifier"} {
			if d := normalize.Digits(stringField(obj, key)); len(d) == 11 {
				c.add(d, SourceJSONLD)
			}
		}
	}
	for _, text := range freeText(facts) {
		for _, m := range abnPattern.FindAllStringSubmatch(text, -1) {
			c.add(normalize.Digits(m[1]), SourceRegex)
		}
	}
	return c.result()
}

// freeText lists the strings a free-text scan looks at, in priority order
func freeText(facts model.RawFacts) []string {
	var out []string
	out = append(out, facts.Headings.Texts(0)...)
	for _, a := range facts.Anchors {
		if a.Text != "" {
			out = append(out, a.Text)
		}
	}
	for _, key := range sortedKeys(facts.Meta) {
		out = append(out, facts.Meta[key])
	}
	out = append(out, facts.TextBlocks...)
	return out
}
