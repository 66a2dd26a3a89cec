package resolve

import (
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/ppiankov/siteintent/internal/model"
)

// Derive formulas
const (
	FormulaDisplayName = "display_name"
	FormulaVerified    = "verified"
	FormulaAddressURI  = "address_uri"
	FormulaQRText      = "qr_text"
	FormulaVCardURL    = "vcard_url"
	FormulaThemeAccent = "theme_accent"
)

// Keys the formulas read
const (
	KeyBusinessName = "identity_business_name"
	KeyOwnerName    = "identity_owner_name"
	KeyAddress      = "identity_address"
	KeyABN          = "trust_abn"
	KeyPrimaryColor = "theme_primary_color"
)

// AccentDarken is the fraction each RGB channel is darkened by
const AccentDarken = 0.10

// Defaults for DeriveConfig
const (
	DefaultMapsSearchURL = "https://www.google.com/maps/search/?api=1&query="
	DefaultProfileBase   = "https://profiles.siteintent.io"
	DefaultVCardTemplate = "https://profiles.siteintent.io/{slug}.vcf"
)

// DefaultTrustedSources are provenance tags that make a registry id authoritative
var DefaultTrustedSources = []string{"registry", "abr"}

var (
	slugNoise = regexp.MustCompile(`[^a-z0-9]+`)
	hexColor  = regexp.MustCompile(`^#?([0-9a-fA-F]{6}|[0-9a-fA-F]{3})$`)
)

// DeriveConfig holds the templates the formulas render with
type DeriveConfig struct {
	MapsSearchURL  string
	ProfileBaseURL string
	VCardTemplate  string // "{slug}" is replaced
	TrustedSources []string
}

// DeriveInput is the resolved state a formula may read. Formulas never
// read raw facts.
type DeriveInput struct {
	Fields     model.Fields
	Provenance map[string]string
}

// Deriver computes fields from already-resolved fields
type Deriver struct {
	cfg DeriveConfig
}

// NewDeriver fills unset templates with defaults
func NewDeriver(cfg DeriveConfig) *Deriver {
	if cfg.MapsSearchURL == "" {
		cfg.MapsSearchURL = DefaultMapsSearchURL
	}
	if cfg.ProfileBaseURL == "" {
		cfg.ProfileBaseURL = DefaultProfileBase
	}
	if cfg.VCardTemplate == "" {
		cfg.VCardTemplate = DefaultVCardTemplate
	}
	if len(cfg.TrustedSources) == 0 {
		cfg.TrustedSources = DefaultTrustedSources
	}
	return &Deriver{cfg: cfg}
}

// Derive evaluates formula. A missing dependency yields an empty Outcome
// with a reason, never an error.
func (d *Deriver) Derive(formula string, in DeriveInput) Outcome {
	var value string
	switch formula {
	case FormulaDisplayName:
		value = firstNonEmpty(in.Fields[KeyOwnerName], in.Fields[KeyBusinessName])
	case FormulaVerified:
		value = d.verified(in)
	case FormulaAddressURI:
		if addr := strings.TrimSpace(in.Fields[KeyAddress]); addr != "" {
			value = d.cfg.MapsSearchURL + url.QueryEscape(addr)
		}
	case FormulaQRText:
		value = d.ProfileURL(in.Fields)
	case FormulaVCardURL:
		if slug := Slug(in.Fields[KeyBusinessName]); slug != "" {
			value = strings.ReplaceAll(d.cfg.VCardTemplate, "{slug}", slug)
		}
	case FormulaThemeAccent:
		value = Darken(in.Fields[KeyPrimaryColor], AccentDarken)
	default:
		return Outcome{Reason: ReasonUnknownFormula}
	}

	if value == "" {
		return Outcome{Reason: ReasonMissingInput}
	}
	return Outcome{Value: value, Source: "derive:" + formula, Confidence: 1}
}

// ProfileURL is the canonical public profile URL for the business
func (d *Deriver) ProfileURL(fields model.Fields) string {
	slug := Slug(fields[KeyBusinessName])
	if slug == "" {
		return ""
	}
	return strings.TrimRight(d.cfg.ProfileBaseURL, "/") + "/" + slug
}

func (d *Deriver) verified(in DeriveInput) string {
	if strings.TrimSpace(in.Fields[KeyABN]) == "" {
		return ""
	}
	source := in.Provenance[KeyABN]
	for _, trusted := range d.cfg.TrustedSources {
		if strings.EqualFold(source, trusted) {
			return "true"
		}
	}
	return ""
}

// Slug lowercases name and joins its alphanumeric runs with hyphens
func Slug(name string) string {
	return strings.Trim(slugNoise.ReplaceAllString(strings.ToLower(name), "-"), "-")
}

// Darken scales each RGB channel of a hex colour by (1 - fraction) and
// re-encodes it as lowercase #rrggbb. Invalid input yields "".
func Darken(hex string, fraction float64) string {
	m := hexColor.FindStringSubmatch(strings.TrimSpace(hex))
	if m == nil || fraction < 0 || fraction > 1 {
		return ""
	}
	digits := m[1]
	if len(digits) == 3 {
		digits = string([]byte{digits[0], digits[0], digits[1], digits[1], digits[2], digits[2]})
	}

	var rgb [3]int
	for i := range rgb {
		v, err := strconv.ParseUint(digits[i*2:i*2+2], 16, 8)
		if err != nil {
			return ""
		}
		rgb[i] = int(math.Round(float64(v) * (1 - fraction)))
	}
	return fmt.Sprintf("#%02x%02x%02x", rgb[0], rgb[1], rgb[2])
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
