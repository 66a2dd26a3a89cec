package parse

import (
	"github.com/ppiankov/siteintent/internal/model"
)

// Merge combines the facts of several pages of one site. Lists are
// concatenated in page order with exact duplicates removed; for maps and
// the source URL the first page wins.
func Merge(pages ...model.RawFacts) model.RawFacts {
	var out model.RawFacts
	seenAnchor := make(map[model.Anchor]bool)
	seenImage := make(map[string]bool)
	seenHeading := make(map[model.Heading]bool)
	seenBlock := make(map[string]bool)

	for _, p := range pages {
		if out.SourceURL == "" {
			out.SourceURL = p.SourceURL
		}
		for _, a := range p.Anchors {
			if !seenAnchor[a] {
				seenAnchor[a] = true
				out.Anchors = append(out.Anchors, a)
			}
		}
		for _, h := range p.Headings {
			if !seenHeading[h] {
				seenHeading[h] = true
				out.Headings = append(out.Headings, h)
			}
		}
		for _, img := range p.Images {
			if !seenImage[img.Src] {
				seenImage[img.Src] = true
				out.Images = append(out.Images, img)
			}
		}
		for _, tb := range p.TextBlocks {
			if !seenBlock[tb] {
				seenBlock[tb] = true
				out.TextBlocks = append(out.TextBlocks, tb)
			}
		}
		out.Meta = mergeMap(out.Meta, p.Meta)
		out.SocialLinks = mergeMap(out.SocialLinks, p.SocialLinks)
		out.Fields = mergeMap(out.Fields, p.Fields)
		out.JSONLD = append(out.JSONLD, p.JSONLD...)
		out.ServicePanels = mergePanels(out.ServicePanels, p.ServicePanels)
		out.Projects = mergePanels(out.Projects, p.Projects)
		out.Testimonials = append(out.Testimonials, p.Testimonials...)
		for _, l := range p.ContactFormLinks {
			out.ContactFormLinks = appendUnique(out.ContactFormLinks, l)
		}
		for _, a := range p.Awards {
			out.Awards = appendUnique(out.Awards, a)
		}
		out.Pages = append(out.Pages, p.Pages...)
	}
	return out
}

func mergeMap(dst, src map[string]string) map[string]string {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]string, len(src))
	}
	for k, v := range src {
		if _, ok := dst[k]; !ok {
			dst[k] = v
		}
	}
	return dst
}

func mergePanels(dst, src []model.Panel) []model.Panel {
	for _, p := range src {
		dup := false
		for _, d := range dst {
			if d.Title == p.Title {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, p)
		}
	}
	return dst
}
