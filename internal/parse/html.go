// Package parse turns saved HTML pages into RawFacts. Fetching and
// rendering are done elsewhere; this only reads markup.
package parse

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/ppiankov/siteintent/internal/extract"
	"github.com/ppiankov/siteintent/internal/model"
)

// MaxTextBlocks caps paragraph-level blocks kept per page
const MaxTextBlocks = 200

// HTML parses one page. pageURL resolves relative links and may be empty.
func HTML(pageURL string, content string) (model.RawFacts, error) {
	root, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return model.RawFacts{}, fmt.Errorf("parse html: %w", err)
	}
	var base *url.URL
	if pageURL != "" {
		base, err = url.Parse(pageURL)
		if err != nil {
			return model.RawFacts{}, fmt.Errorf("parse page url: %w", err)
		}
	}

	doc := goquery.NewDocumentFromNode(root)
	facts := model.RawFacts{
		SourceURL: pageURL,
		Meta:      make(map[string]string),
	}

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = resolveURL(base, href)
		if href == "" {
			return
		}
		facts.Anchors = append(facts.Anchors, model.Anchor{Href: href, Text: squash(s.Text())})
		if platform := extract.PlatformOf(href); platform != "" {
			if facts.SocialLinks == nil {
				facts.SocialLinks = make(map[string]string)
			}
			if _, ok := facts.SocialLinks[platform]; !ok {
				facts.SocialLinks[platform] = href
			}
		}
	})

	doc.Find("h1, h2, h3, h4, h5, h6").Each(func(_ int, s *goquery.Selection) {
		if text := squash(s.Text()); text != "" {
			level := int(goquery.NodeName(s)[1] - '0')
			facts.Headings = append(facts.Headings, model.Heading{Level: level, Text: text})
		}
	})

	doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		if src = resolveURL(base, src); src != "" {
			alt, _ := s.Attr("alt")
			facts.Images = append(facts.Images, model.Image{Src: src, Alt: squash(alt)})
		}
	})

	doc.Find("title").First().Each(func(_ int, s *goquery.Selection) {
		if t := squash(s.Text()); t != "" {
			facts.Meta["title"] = t
		}
	})
	doc.Find("meta[content]").Each(func(_ int, s *goquery.Selection) {
		name := s.AttrOr("property", s.AttrOr("name", ""))
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			return
		}
		if _, seen := facts.Meta[name]; !seen {
			facts.Meta[name] = strings.TrimSpace(s.AttrOr("content", ""))
		}
	})
	doc.Find("meta[name=theme-color]").Each(func(_ int, s *goquery.Selection) {
		if c := strings.TrimSpace(s.AttrOr("content", "")); c != "" {
			if facts.Fields == nil {
				facts.Fields = make(map[string]string)
			}
			facts.Fields["theme_color"] = c
		}
	})

	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		facts.JSONLD = append(facts.JSONLD, decodeJSONLD(s.Text())...)
	})

	doc.Find("p, li, address").Each(func(_ int, s *goquery.Selection) {
		if len(facts.TextBlocks) >= MaxTextBlocks {
			return
		}
		// list items wrapping paragraphs are read through the paragraph
		if goquery.NodeName(s) == "li" && s.Find("p").Length() > 0 {
			return
		}
		if text := squash(s.Text()); len(text) >= 3 {
			facts.TextBlocks = append(facts.TextBlocks, text)
		}
	})

	facts.ServicePanels = panels(doc, base, `[class*="service"]`)
	facts.Projects = panels(doc, base, `[class*="project"], [class*="portfolio"]`)
	facts.Testimonials = testimonials(doc)

	doc.Find("form[action]").Each(func(_ int, s *goquery.Selection) {
		if action := resolveURL(base, s.AttrOr("action", "")); action != "" {
			facts.ContactFormLinks = appendUnique(facts.ContactFormLinks, action)
		}
	})
	for _, a := range facts.Anchors {
		if strings.Contains(strings.ToLower(a.Href), "contact") || strings.EqualFold(a.Text, "contact us") {
			facts.ContactFormLinks = appendUnique(facts.ContactFormLinks, a.Href)
		}
	}

	doc.Find(`[class*="award"]`).Each(func(_ int, s *goquery.Selection) {
		if text := squash(s.Text()); text != "" {
			facts.Awards = appendUnique(facts.Awards, text)
		}
	})

	facts.Pages = []model.PageText{{URL: pageURL, Text: VisibleText(root)}}
	if len(facts.Meta) == 0 {
		facts.Meta = nil
	}
	return facts, nil
}

func panels(doc *goquery.Document, base *url.URL, selector string) []model.Panel {
	var out []model.Panel
	seen := make(map[string]bool)
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		title := squash(s.Find("h2, h3, h4").First().Text())
		if title == "" || seen[strings.ToLower(title)] {
			return
		}
		// skip wrappers whose children are panels themselves
		if s.Find(selector).Length() > 0 {
			return
		}
		seen[strings.ToLower(title)] = true
		p := model.Panel{
			Title:       title,
			Description: squash(s.Find("p").First().Text()),
		}
		if src, ok := s.Find("img[src]").First().Attr("src"); ok {
			p.Image = resolveURL(base, src)
		}
		out = append(out, p)
	})
	return out
}

func testimonials(doc *goquery.Document) []model.Testimonial {
	var out []model.Testimonial
	doc.Find(`blockquote, [class*="testimonial"], [class*="review"]`).Each(func(_ int, s *goquery.Selection) {
		if s.Find(`blockquote, [class*="testimonial"], [class*="review"]`).Length() > 0 {
			return
		}
		quote := squash(s.Find("p").First().Text())
		if quote == "" {
			quote = squash(s.Text())
		}
		if quote == "" {
			return
		}
		t := model.Testimonial{
			Quote:  quote,
			Author: squash(s.Find(`cite, [class*="author"], [class*="name"]`).First().Text()),
			Rating: strings.TrimSpace(s.Find(`[class*="rating"]`).First().AttrOr("data-rating", "")),
		}
		if t.Author != "" {
			t.Quote = strings.TrimSpace(strings.TrimSuffix(t.Quote, t.Author))
		}
		out = append(out, t)
	})
	return out
}

// decodeJSONLD accepts a single object or an array of objects
func decodeJSONLD(raw string) []map[string]any {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var one map[string]any
	if err := json.Unmarshal([]byte(raw), &one); err == nil {
		return []map[string]any{one}
	}
	var many []map[string]any
	if err := json.Unmarshal([]byte(raw), &many); err == nil {
		return many
	}
	return nil
}

// VisibleText returns the page's text content without script, style or
// template nodes
func VisibleText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "template", "svg":
				return
			}
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return squash(b.String())
}

// resolveURL resolves href against base, keeping http(s), mailto and tel
// links and dropping fragments and javascript
func resolveURL(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	lower := strings.ToLower(href)
	if strings.HasPrefix(lower, "javascript:") {
		return ""
	}
	if strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "tel:") {
		return href
	}

	parsed, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base != nil {
		parsed = base.ResolveReference(parsed)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return ""
	}
	parsed.Fragment = ""
	return parsed.String()
}

func squash(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}
