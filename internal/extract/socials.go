package extract

import (
	"net/url"
	"strings"

	"github.com/ppiankov/siteintent/internal/model"
	"github.com/ppiankov/siteintent/internal/normalize"
)

// Platform is a social network the extractor recognises
type Platform struct {
	Name    string
	Domains []string
}

// Platforms is the fixed platform to domain table, in output order
var Platforms = []Platform{
	{Name: "facebook", Domains: []string{"facebook.com", "fb.com", "fb.me"}},
	{Name: "instagram", Domains: []string{"instagram.com", "instagr.am"}},
	{Name: "twitter", Domains: []string{"twitter.com", "x.com"}},
	{Name: "linkedin", Domains: []string{"linkedin.com"}},
	{Name: "youtube", Domains: []string{"youtube.com", "youtu.be"}},
	{Name: "tiktok", Domains: []string{"tiktok.com"}},
	{Name: "pinterest", Domains: []string{"pinterest.com", "pinterest.com.au", "pin.it"}},
}

// share and intent endpoints are not profiles
var socialNoise = []string{"/sharer", "/share", "/intent/", "/dialog/", "/plugins/", "/embed/"}

// PlatformOf classifies a URL by hostname; "" when it is not a known platform
func PlatformOf(raw string) string {
	host := normalize.Host(raw)
	if host == "" {
		return ""
	}
	for _, p := range Platforms {
		for _, d := range p.Domains {
			if host == d || strings.HasSuffix(host, "."+d) {
				return p.Name
			}
		}
	}
	return ""
}

// Socials returns at most one profile URL per platform. Parser-supplied
// social links come first, then anchors, then JSON-LD sameAs; the first
// match per platform wins.
func Socials(facts model.RawFacts) map[string]Candidate {
	out := make(map[string]Candidate)
	add := func(raw, source string) {
		platform := PlatformOf(raw)
		if platform == "" {
			return
		}
		if _, ok := out[platform]; ok {
			return
		}
		v := normalize.SocialURL(raw)
		if v == "" || !isProfileURL(v) {
			return
		}
		out[platform] = Candidate{Value: v, Source: source}
	}

	for _, key := range sortedKeys(facts.SocialLinks) {
		add(facts.SocialLinks[key], SourceFacts)
	}
	for _, a := range facts.Anchors {
		add(a.Href, SourceAnchors)
	}
	for _, obj := range entities(facts) {
		for _, s := range stringList(obj, "sameAs") {
			add(s, SourceJSONLD)
		}
	}
	return out
}

func isProfileURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	path := strings.ToLower(u.Path)
	if strings.Trim(path, "/") == "" {
		return false
	}
	for _, n := range socialNoise {
		if strings.HasPrefix(path, n) {
			return false
		}
	}
	return true
}
