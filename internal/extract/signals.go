package extract

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/ppiankov/siteintent/internal/model"
	"github.com/ppiankov/siteintent/internal/normalize"
)

// Bag is every extractor output keyed by a loose, human-style name
// ("email", "facebook_url", "service_1_title"). The deterministic resolver
// matches intent keys against it exactly or fuzzily.
type Bag map[string]Candidate

// Keys returns the bag keys in lexical order
func (b Bag) Keys() []string {
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (b Bag) put(key string, c Candidate) {
	c.Value = strings.TrimSpace(c.Value)
	if c.Value == "" {
		return
	}
	if _, ok := b[key]; ok {
		return
	}
	b[key] = c
}

// Signals runs every extractor over facts and materialises the results
func Signals(facts model.RawFacts, countryCode string) Bag {
	b := make(Bag)

	b.put("email", First(Email(facts)))
	b.put("phone", First(Phone(facts, countryCode)))
	b.put("business_name", First(BusinessName(facts)))
	b.put("domain", First(Domain(facts)))
	b.put("logo_url", First(Logo(facts)))
	b.put("abn", First(ABN(facts)))
	b.put("address", First(Address(facts)))
	b.put("suburb", First(Suburb(facts)))
	b.put("state", First(State(facts)))
	b.put("postcode", First(Postcode(facts)))

	if d := b["domain"]; d.Value != "" {
		b.put("website_url", Candidate{Value: "https://" + d.Value, Source: d.Source})
	}

	for platform, c := range Socials(facts) {
		b.put(platform+"_url", c)
	}

	for _, obj := range entities(facts) {
		if !isBusiness(obj) {
			continue
		}
		b.put("tagline", Candidate{Value: stringField(obj, "slogan"), Source: SourceJSONLD})
		b.put("owner_name", Candidate{Value: stringField(obj, "founder"), Source: SourceJSONLD})
	}
	b.put("description", Candidate{Value: metaValue(facts, "description", "og:description"), Source: SourceMeta})
	b.put("primary_color", Candidate{Value: metaValue(facts, "theme-color", "msapplication-TileColor"), Source: SourceMeta})

	base := baseURL(facts)
	for _, link := range facts.ContactFormLinks {
		b.put("contact_form_url", Candidate{Value: resolveURL(base, link), Source: SourceFacts})
	}
	if len(facts.Awards) > 0 {
		b.put("awards", Candidate{Value: strings.Join(nonEmpty(facts.Awards...), "; "), Source: SourceFacts})
	}

	putPanels(b, "service", facts.ServicePanels, base)
	putPanels(b, "project", facts.Projects, base)

	for i, t := range facts.Testimonials {
		n := i + 1
		b.put(fmt.Sprintf("testimonial_%d_quote", n), Candidate{Value: normalize.Spaces(t.Quote), Source: SourceFacts})
		b.put(fmt.Sprintf("testimonial_%d_author", n), Candidate{Value: normalize.Spaces(t.Author), Source: SourceFacts})
		b.put(fmt.Sprintf("testimonial_%d_rating", n), Candidate{Value: t.Rating, Source: SourceFacts})
	}

	return b
}

func putPanels(b Bag, prefix string, panels []model.Panel, base *url.URL) {
	for i, p := range panels {
		n := i + 1
		b.put(fmt.Sprintf("%s_%d_title", prefix, n), Candidate{Value: normalize.Spaces(p.Title), Source: SourceFacts})
		b.put(fmt.Sprintf("%s_%d_description", prefix, n), Candidate{Value: normalize.Spaces(p.Description), Source: SourceFacts})
		b.put(fmt.Sprintf("%s_%d_image", prefix, n), Candidate{Value: resolveURL(base, p.Image), Source: SourceFacts})
	}
}
