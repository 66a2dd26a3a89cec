package intent

import "strings"

// Field categories in dispatch precedence order
const (
	CategoryIdentity     = "identity"
	CategorySocials      = "socials"
	CategoryServices     = "services"
	CategoryContent      = "content"
	CategoryTestimonials = "testimonials"
	CategoryTrustTheme   = "trust_theme"
	CategoryOther        = "other"
)

var categoryRank = map[string]int{
	CategoryIdentity:     0,
	CategorySocials:      1,
	CategoryServices:     2,
	CategoryContent:      3,
	CategoryTestimonials: 4,
	CategoryTrustTheme:   5,
	CategoryOther:        6,
}

var categoryPrefixes = []struct {
	prefix   string
	category string
}{
	{"identity_", CategoryIdentity},
	{"social_", CategorySocials},
	{"socials_", CategorySocials},
	{"service_", CategoryServices},
	{"services_", CategoryServices},
	{"content_", CategoryContent},
	{"about_", CategoryContent},
	{"testimonial_", CategoryTestimonials},
	{"testimonials_", CategoryTestimonials},
	{"trust_", CategoryTrustTheme},
	{"theme_", CategoryTrustTheme},
}

// CategoryOf infers a category from the key prefix
func CategoryOf(key string) string {
	for _, p := range categoryPrefixes {
		if strings.HasPrefix(key, p.prefix) {
			return p.category
		}
	}
	return CategoryOther
}

// CategoryRank returns the dispatch precedence of a category
func CategoryRank(category string) int {
	if r, ok := categoryRank[category]; ok {
		return r
	}
	return categoryRank[CategoryOther]
}

// Categories lists every category in precedence order
func Categories() []string {
	return []string{
		CategoryIdentity, CategorySocials, CategoryServices, CategoryContent,
		CategoryTestimonials, CategoryTrustTheme, CategoryOther,
	}
}
