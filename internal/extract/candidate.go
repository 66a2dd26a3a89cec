// Package extract derives candidate field values from a RawFacts bundle.
// Every extractor is pure: a missing signal yields no candidates, never an error.
package extract

import "strings"

// Provenance tags carried by every candidate
const (
	SourceAnchors  = "anchors"
	SourceJSONLD   = "jsonld"
	SourceMeta     = "meta"
	SourceRegex    = "regex"
	SourceHeadings = "headings"
	SourceURL      = "url"
	SourceFacts    = "facts" // pre-extracted parser conveniences
)

// Candidate is one extracted value and where it came from
type Candidate struct {
	Value  string `json:"value"`
	Source string `json:"source"`
}

// First returns the first candidate, or a zero Candidate when there is none
func First(cs []Candidate) Candidate {
	if len(cs) == 0 {
		return Candidate{}
	}
	return cs[0]
}

// collector appends candidates in priority order, dropping empties and repeats
type collector struct {
	seen map[string]struct{}
	out  []Candidate
}

func newCollector() *collector {
	return &collector{seen: make(map[string]struct{})}
}

func (c *collector) add(value, source string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	key := strings.ToLower(value)
	if _, ok := c.seen[key]; ok {
		return
	}
	c.seen[key] = struct{}{}
	c.out = append(c.out, Candidate{Value: value, Source: source})
}

func (c *collector) result() []Candidate {
	return c.out
}
