package extract

import (
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/ppiankov/siteintent/internal/model"
	"github.com/ppiankov/siteintent/internal/normalize"
)

var titleSeparator = regexp.MustCompile(`\s+[|\-–—:·]\s+`)

// BusinessName prefers JSON-LD name, then og:site_name, then the page
// title, then the first h1.
func BusinessName(facts model.RawFacts) []Candidate {
	c := newCollector()

	for _, obj := range entities(facts) {
		if !isBusiness(obj) {
			continue
		}
		c.add(stringField(obj, "name"), SourceJSONLD)
		c.add(stringField(obj, "legalName"), SourceJSONLD)
	}

	c.add(metaValue(facts, "og:site_name"), SourceMeta)
	if title := metaValue(facts, "title", "og:title"); title != "" {
		c.add(titleSeparator.Split(title, 2)[0], SourceMeta)
	}

	if h1 := facts.Headings.Texts(1); len(h1) > 0 {
		c.add(normalize.Spaces(h1[0]), SourceHeadings)
	}

	return c.result()
}

// Domain returns the site hostname without "www.": JSON-LD url, og:url,
// then the source URL.
func Domain(facts model.RawFacts) []Candidate {
	c := newCollector()
	for _, obj := range entities(facts) {
		if isBusiness(obj) {
			c.add(normalize.Host(stringField(obj, "url")), SourceJSONLD)
		}
	}
	c.add(normalize.Host(metaValue(facts, "og:url")), SourceMeta)
	c.add(normalize.Host(facts.SourceURL), SourceURL)
	return c.result()
}

// Logo returns logo image URLs: JSON-LD logo, og:image, then images whose
// src or alt mentions a logo.
func Logo(facts model.RawFacts) []Candidate {
	c := newCollector()
	base := baseURL(facts)

	for _, obj := range entities(facts) {
		if v := stringField(obj, "logo"); v != "" {
			c.add(resolveURL(base, v), SourceJSONLD)
		}
	}
	if v := metaValue(facts, "og:logo", "og:image"); v != "" {
		c.add(resolveURL(base, v), SourceMeta)
	}
	for _, img := range facts.Images {
		if strings.Contains(strings.ToLower(img.Src+" "+img.Alt), "logo") {
			c.add(resolveURL(base, img.Src), SourceURL)
		}
	}
	return c.result()
}

// Images returns every image as an absolute URL, in document order
func Images(facts model.RawFacts) []Candidate {
	c := newCollector()
	base := baseURL(facts)
	for _, img := range facts.Images {
		c.add(resolveURL(base, img.Src), SourceURL)
	}
	return c.result()
}

// metaValue returns the first non-empty meta value among keys (case-insensitive)
func metaValue(facts model.RawFacts, keys ...string) string {
	for _, key := range keys {
		if v, ok := facts.Meta[key]; ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		for k, v := range facts.Meta {
			if strings.EqualFold(k, key) && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		}
	}
	return ""
}

func baseURL(facts model.RawFacts) *url.URL {
	u, err := url.Parse(normalize.URL(facts.SourceURL))
	if err != nil || u.Host == "" {
		return nil
	}
	return u
}

// resolveURL resolves href against base and keeps only http(s) URLs
func resolveURL(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "data:") {
		return ""
	}
	lower := strings.ToLower(href)
	if strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "tel:") {
		return ""
	}

	parsed, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base != nil {
		parsed = base.ResolveReference(parsed)
	}
	if parsed.Scheme == "" && parsed.Host == "" {
		return ""
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return ""
	}
	parsed.Fragment = ""
	return parsed.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
