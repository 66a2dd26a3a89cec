package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"unicode/utf8"

	"github.com/ppiankov/siteintent/internal/model"
)

// DefaultTokenBudget is the context size above which facts are compacted
const DefaultTokenBudget = 6000

// minItemChars is the floor ItemChars is never shrunk below
const minItemChars = 40

// ErrContextTooLarge is returned when even the smallest projection of the
// facts exceeds the token budget
var ErrContextTooLarge = errors.New("facts exceed token budget")

// Limits bounds the compact projection of RawFacts
type Limits struct {
	Anchors      int
	Headings     int
	Images       int
	TextBlocks   int
	Testimonials int
	Panels       int
	Meta         int
	JSONLD       int
	Pages        int
	Fields       int
	ItemChars    int
}

// DefaultLimits returns the standard compaction bounds
func DefaultLimits() Limits {
	return Limits{
		Anchors:      40,
		Headings:     30,
		Images:       20,
		TextBlocks:   20,
		Testimonials: 10,
		Panels:       10,
		Meta:         30,
		JSONLD:       5,
		Pages:        5,
		Fields:       60,
		ItemChars:    300,
	}
}

// EstimateTokens approximates a token count from a byte length
func EstimateTokens(bytes int) int {
	return bytes / 4
}

// Compact returns a size-capped copy of facts. The input is not modified.
func Compact(facts model.RawFacts, limits Limits) model.RawFacts {
	n := limits.ItemChars
	out := model.RawFacts{
		SourceURL:        facts.SourceURL,
		ContactFormLinks: truncateAll(headOf(facts.ContactFormLinks, limits.Anchors), n),
		Awards:           truncateAll(headOf(facts.Awards, limits.TextBlocks), n),
		TextBlocks:       truncateAll(headOf(facts.TextBlocks, limits.TextBlocks), n),
	}

	for _, a := range headOf(facts.Anchors, limits.Anchors) {
		out.Anchors = append(out.Anchors, model.Anchor{Href: truncate(a.Href, n), Text: truncate(a.Text, n)})
	}
	for _, h := range headOf(facts.Headings, limits.Headings) {
		out.Headings = append(out.Headings, model.Heading{Level: h.Level, Text: truncate(h.Text, n)})
	}
	for _, img := range headOf(facts.Images, limits.Images) {
		out.Images = append(out.Images, model.Image{Src: truncate(img.Src, n), Alt: truncate(img.Alt, n)})
	}
	for _, t := range headOf(facts.Testimonials, limits.Testimonials) {
		out.Testimonials = append(out.Testimonials, model.Testimonial{Quote: truncate(t.Quote, n), Author: truncate(t.Author, n), Rating: t.Rating})
	}
	out.ServicePanels = compactPanels(facts.ServicePanels, limits.Panels, n)
	out.Projects = compactPanels(facts.Projects, limits.Panels, n)
	for _, p := range headOf(facts.Pages, limits.Pages) {
		out.Pages = append(out.Pages, model.PageText{URL: p.URL, Text: truncate(p.Text, n)})
	}
	for _, obj := range headOf(facts.JSONLD, limits.JSONLD) {
		out.JSONLD = append(out.JSONLD, compactValue(obj, limits.Anchors, n).(map[string]any))
	}

	out.Meta = truncateMap(facts.Meta, limits.Meta, n)
	out.SocialLinks = truncateMap(facts.SocialLinks, limits.Fields, n)
	out.Fields = truncateMap(facts.Fields, limits.Fields, n)

	return out
}

// SelectContext serialises the full facts, falling back to the compact
// projection when the estimate exceeds budget. The projection is shrunk
// until it fits; ErrContextTooLarge means it never did. It reports whether
// the projection was used.
func SelectContext(facts model.RawFacts, budget int, limits Limits) ([]byte, bool, error) {
	if budget <= 0 {
		budget = DefaultTokenBudget
	}
	full, err := json.Marshal(facts)
	if err != nil {
		return nil, false, fmt.Errorf("marshal facts: %w", err)
	}
	if EstimateTokens(len(full)) <= budget {
		return full, false, nil
	}

	for l := limits; ; l = l.halve() {
		compact, err := json.Marshal(Compact(facts, l))
		if err != nil {
			return nil, false, fmt.Errorf("marshal compact facts: %w", err)
		}
		tokens := EstimateTokens(len(compact))
		if tokens <= budget {
			return compact, true, nil
		}
		if l.minimal() {
			return nil, true, fmt.Errorf("%w: %d tokens over %d", ErrContextTooLarge, tokens, budget)
		}
	}
}

// halve returns limits with every bound halved
func (l Limits) halve() Limits {
	half := func(n int) int { return max(1, n/2) }
	return Limits{
		Anchors:      half(l.Anchors),
		Headings:     half(l.Headings),
		Images:       half(l.Images),
		TextBlocks:   half(l.TextBlocks),
		Testimonials: half(l.Testimonials),
		Panels:       half(l.Panels),
		Meta:         half(l.Meta),
		JSONLD:       half(l.JSONLD),
		Pages:        half(l.Pages),
		Fields:       half(l.Fields),
		ItemChars:    max(minItemChars, l.ItemChars/2),
	}
}

func (l Limits) minimal() bool {
	for _, n := range []int{l.Anchors, l.Headings, l.Images, l.TextBlocks, l.Testimonials, l.Panels, l.Meta, l.JSONLD, l.Pages, l.Fields} {
		if n != 1 {
			return false
		}
	}
	return l.ItemChars == minItemChars
}

// compactValue truncates string leaves and caps arrays inside decoded JSON
func compactValue(v any, items, chars int) any {
	switch t := v.(type) {
	case string:
		return truncate(t, chars)
	case []any:
		head := headOf(t, items)
		out := make([]any, len(head))
		for i, item := range head {
			out[i] = compactValue(item, items, chars)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = compactValue(item, items, chars)
		}
		return out
	default:
		return v
	}
}

func headOf[T any](items []T, limit int) []T {
	if limit <= 0 || len(items) <= limit {
		return items
	}
	return items[:limit]
}

func truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}

func truncateAll(items []string, max int) []string {
	if items == nil {
		return nil
	}
	out := make([]string, len(items))
	for i, s := range items {
		out[i] = truncate(s, max)
	}
	return out
}

func truncateMap(m map[string]string, limit, max int) map[string]string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]string)
	for _, k := range headOf(keys, limit) {
		out[k] = truncate(m[k], max)
	}
	return out
}

func compactPanels(panels []model.Panel, limit, max int) []model.Panel {
	var out []model.Panel
	for _, p := range headOf(panels, limit) {
		out = append(out, model.Panel{Title: truncate(p.Title, max), Description: truncate(p.Description, max), Image: truncate(p.Image, max)})
	}
	return out
}
