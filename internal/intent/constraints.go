package intent

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/ppiankov/siteintent/internal/normalize"
)

// Value formats a constraint can require
const (
	FormatEmail    = "email"
	FormatPhone    = "phone"
	FormatURL      = "url"
	FormatImageURL = "image_url"
	FormatHexColor = "hex_color"
	FormatABN      = "abn"
	FormatState    = "state"
	FormatBool     = "bool"
)

// Violation reasons. Minimum violations are soft; everything else is hard.
const (
	ReasonNotAllowed        = "not_allowed_value"
	ReasonRegexMismatch     = "regex_mismatch"
	ReasonTooLong           = "too_long"
	ReasonTooManyWords      = "too_many_words"
	ReasonTooShort          = "too_short"
	ReasonTooFewWords       = "too_few_words"
	ReasonInvalidFormat     = "invalid_format"
	ReasonBadImageExtension = "bad_image_extension"
)

var defaultImageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".svg", ".avif"}

// Validator tags for the formats the validator package covers
const (
	tagEmail    = "email"
	tagHTTPURL  = "http_url"
	tagHexColor = "hexcolor,len=7"
)

var (
	formats    = validator.New()
	abnPattern = regexp.MustCompile(`^\d{11}$`)

	// oneof parameters are space separated; commas and pipes are tag syntax
	oneofEscaper = strings.NewReplacer(",", "0x2C", "|", "0x7C")
)

// Constraints are the value rules a field must satisfy
type Constraints struct {
	Format          string   `yaml:"format,omitempty" json:"format,omitempty" validate:"omitempty,oneof=email phone url image_url hex_color abn state bool"`
	MinLength       int      `yaml:"min_length,omitempty" json:"min_length,omitempty" validate:"gte=0"`
	MaxLength       int      `yaml:"max_length,omitempty" json:"max_length,omitempty" validate:"gte=0"`
	MinWords        int      `yaml:"min_words,omitempty" json:"min_words,omitempty" validate:"gte=0"`
	MaxWords        int      `yaml:"max_words,omitempty" json:"max_words,omitempty" validate:"gte=0"`
	Allowed         []string `yaml:"allowed,omitempty" json:"allowed,omitempty"`
	Regex           string   `yaml:"regex,omitempty" json:"regex,omitempty"`
	ImageExtensions []string `yaml:"image_extensions,omitempty" json:"image_extensions,omitempty"`

	re *regexp.Regexp
}

// Violation is one failed constraint
type Violation struct {
	Reason string
	Hard   bool
	Detail string
}

// compile prepares the regex; called once at load
func (c *Constraints) compile() error {
	if c.Regex == "" {
		return nil
	}
	re, err := regexp.Compile(c.Regex)
	if err != nil {
		return fmt.Errorf("compile regex %q: %w", c.Regex, err)
	}
	c.re = re
	return nil
}

// IsZero reports whether no constraint is declared
func (c Constraints) IsZero() bool {
	return c.Format == "" && c.MinLength == 0 && c.MaxLength == 0 && c.MinWords == 0 &&
		c.MaxWords == 0 && len(c.Allowed) == 0 && c.Regex == "" && len(c.ImageExtensions) == 0
}

// Check evaluates every constraint against value.
// Resolution and policy enforcement both call it, so they agree.
func (c Constraints) Check(value string) []Violation {
	var out []Violation
	value = strings.TrimSpace(value)

	if len(c.Allowed) > 0 && !c.allows(value) {
		out = append(out, Violation{Reason: ReasonNotAllowed, Hard: true, Detail: value})
	}

	if c.Regex != "" {
		re := c.re
		if re == nil {
			re = regexp.MustCompile(c.Regex)
		}
		if !re.MatchString(value) {
			out = append(out, Violation{Reason: ReasonRegexMismatch, Hard: true, Detail: c.Regex})
		}
	}

	length := utf8.RuneCountInString(value)
	if c.MaxLength > 0 && length > c.MaxLength {
		out = append(out, Violation{Reason: ReasonTooLong, Hard: true, Detail: fmt.Sprintf("%d > %d", length, c.MaxLength)})
	}
	if c.MinLength > 0 && length < c.MinLength {
		out = append(out, Violation{Reason: ReasonTooShort, Detail: fmt.Sprintf("%d < %d", length, c.MinLength)})
	}

	words := len(strings.Fields(value))
	if c.MaxWords > 0 && words > c.MaxWords {
		out = append(out, Violation{Reason: ReasonTooManyWords, Hard: true, Detail: fmt.Sprintf("%d > %d", words, c.MaxWords)})
	}
	if c.MinWords > 0 && words < c.MinWords {
		out = append(out, Violation{Reason: ReasonTooFewWords, Detail: fmt.Sprintf("%d < %d", words, c.MinWords)})
	}

	if c.Format != "" {
		out = append(out, c.checkFormat(value)...)
	}
	if c.Format != FormatImageURL && len(c.ImageExtensions) > 0 && !hasImageExtension(value, c.ImageExtensions) {
		out = append(out, Violation{Reason: ReasonBadImageExtension, Hard: true, Detail: value})
	}

	return out
}

// Satisfies reports whether value has no hard violations
func (c Constraints) Satisfies(value string) bool {
	return len(Hard(c.Check(value))) == 0
}

// Hard filters hard violations
func Hard(vs []Violation) []Violation {
	var out []Violation
	for _, v := range vs {
		if v.Hard {
			out = append(out, v)
		}
	}
	return out
}

func (c Constraints) checkFormat(value string) []Violation {
	bad := []Violation{{Reason: ReasonInvalidFormat, Hard: true, Detail: c.Format}}

	switch c.Format {
	case FormatEmail:
		if !validFormat(value, tagEmail) {
			return bad
		}
	case FormatPhone:
		if !normalize.PlausiblePhone(value) {
			return bad
		}
	case FormatURL:
		if !validFormat(value, tagHTTPURL) {
			return bad
		}
	case FormatImageURL:
		if !validFormat(value, tagHTTPURL) {
			return bad
		}
		exts := c.ImageExtensions
		if len(exts) == 0 {
			exts = defaultImageExtensions
		}
		if !hasImageExtension(value, exts) {
			return []Violation{{Reason: ReasonBadImageExtension, Hard: true, Detail: value}}
		}
	case FormatHexColor:
		if !validFormat(value, tagHexColor) {
			return bad
		}
	case FormatABN:
		if !abnPattern.MatchString(value) {
			return bad
		}
	case FormatState:
		if !normalize.IsState(value) {
			return bad
		}
	case FormatBool:
		if value != "true" && value != "false" {
			return bad
		}
	}
	return nil
}

func validFormat(value, tag string) bool {
	return formats.Var(value, tag) == nil
}

// allows matches value against the allowed list ignoring case
func (c Constraints) allows(value string) bool {
	params := make([]string, 0, len(c.Allowed))
	for _, a := range c.Allowed {
		if strings.Contains(a, "'") {
			return containsFold(c.Allowed, value)
		}
		params = append(params, "'"+oneofEscaper.Replace(strings.ToLower(strings.TrimSpace(a)))+"'")
	}
	return validFormat(strings.ToLower(value), "oneof="+strings.Join(params, " "))
}

func hasImageExtension(value string, exts []string) bool {
	p := value
	if u, err := url.Parse(value); err == nil {
		p = u.Path
	}
	ext := strings.ToLower(path.Ext(p))
	for _, e := range exts {
		e = strings.ToLower(e)
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		if ext == e {
			return true
		}
	}
	return false
}

func containsFold(list []string, value string) bool {
	for _, item := range list {
		if strings.EqualFold(item, value) {
			return true
		}
	}
	return false
}
