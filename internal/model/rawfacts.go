package model

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// RawFacts is the bag of signals the page parser hands to the resolver.
// Resolvers read it and never write to it.
type RawFacts struct {
	SourceURL        string            `json:"source_url,omitempty"`
	Anchors          []Anchor          `json:"anchors,omitempty"`
	Headings         Headings          `json:"headings,omitempty"`
	TextBlocks       []string          `json:"text_blocks,omitempty"`
	Images           []Image           `json:"images,omitempty"`
	Meta             map[string]string `json:"meta,omitempty"`
	JSONLD           []map[string]any  `json:"jsonld,omitempty"`
	SocialLinks      map[string]string `json:"social_links,omitempty"`
	ServicePanels    []Panel           `json:"service_panels,omitempty"`
	Projects         []Panel           `json:"projects,omitempty"`
	Testimonials     []Testimonial     `json:"testimonials,omitempty"`
	ContactFormLinks []string          `json:"contact_form_links,omitempty"`
	Awards           []string          `json:"awards,omitempty"`
	Fields           map[string]string `json:"fields,omitempty"` // loosely keyed, pre-extracted values
	Pages            []PageText        `json:"pages,omitempty"`
}

// Anchor is an href with its visible text
type Anchor struct {
	Href string `json:"href"`
	Text string `json:"text,omitempty"`
}

// Image is an img src with its alt text
type Image struct {
	Src string `json:"src"`
	Alt string `json:"alt,omitempty"`
}

// Panel is a titled content block (a service card, a project tile)
type Panel struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
}

// Testimonial is a customer quote
type Testimonial struct {
	Quote  string `json:"quote,omitempty"`
	Author string `json:"author,omitempty"`
	Rating string `json:"rating,omitempty"`
}

// PageText is the visible text of one crawled page, used for evidence counting
type PageText struct {
	URL  string `json:"url"`
	Text string `json:"text"`
}

// Heading is a single heading with its level (1-6, 0 when unknown)
type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
}

// Headings accepts either a flat array of strings or an object keyed by level
// ("h1": [...], "h2": [...]).
type Headings []Heading

// UnmarshalJSON implements json.Unmarshaler for both heading shapes
func (h *Headings) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		*h = nil
		return nil
	}

	if strings.HasPrefix(trimmed, "[") {
		var flat []json.RawMessage
		if err := json.Unmarshal(data, &flat); err != nil {
			return fmt.Errorf("headings array: %w", err)
		}
		out := make(Headings, 0, len(flat))
		for _, raw := range flat {
			var text string
			if err := json.Unmarshal(raw, &text); err == nil {
				out = append(out, Heading{Text: text})
				continue
			}
			var hd Heading
			if err := json.Unmarshal(raw, &hd); err != nil {
				return fmt.Errorf("heading entry: %w", err)
			}
			out = append(out, hd)
		}
		*h = out
		return nil
	}

	var byLevel map[string][]string
	if err := json.Unmarshal(data, &byLevel); err != nil {
		return fmt.Errorf("headings object: %w", err)
	}
	levels := make([]string, 0, len(byLevel))
	for k := range byLevel {
		levels = append(levels, k)
	}
	sort.Strings(levels)

	var out Headings
	for _, k := range levels {
		level := 0
		if len(k) == 2 && (k[0] == 'h' || k[0] == 'H') && k[1] >= '1' && k[1] <= '6' {
			level = int(k[1] - '0')
		}
		for _, text := range byLevel[k] {
			out = append(out, Heading{Level: level, Text: text})
		}
	}
	*h = out
	return nil
}

// Texts returns heading texts, optionally restricted to one level (0 = all)
func (h Headings) Texts(level int) []string {
	var out []string
	for _, hd := range h {
		if level == 0 || hd.Level == level {
			out = append(out, hd.Text)
		}
	}
	return out
}

// ParseRawFacts decodes a parser output document
func ParseRawFacts(data []byte) (RawFacts, error) {
	var facts RawFacts
	if err := json.Unmarshal(data, &facts); err != nil {
		return RawFacts{}, fmt.Errorf("decode raw facts: %w", err)
	}
	return facts, nil
}
