package intent

import (
	"strings"

	"github.com/ppiankov/siteintent/internal/normalize"
)

// Transform names accepted in the intent map
const (
	TransformTrim           = "trim"
	TransformLower          = "lower"
	TransformUpper          = "upper"
	TransformTitle          = "title"
	TransformCollapseSpaces = "collapse_spaces"
	TransformDigitsOnly     = "digits_only"
	TransformPhone          = "phone"
	TransformURL            = "url"
	TransformSocialURL      = "social_url"
	TransformState          = "state"
	TransformHandle         = "handle"
)

// ApplyTransforms runs the named transforms in order.
// A transform that cannot produce a value yields "".
func ApplyTransforms(value string, transforms []string, countryCode string) string {
	for _, t := range transforms {
		if value == "" {
			return ""
		}
		switch t {
		case TransformTrim:
			value = strings.TrimSpace(value)
		case TransformLower:
			value = strings.ToLower(value)
		case TransformUpper:
			value = strings.ToUpper(value)
		case TransformTitle:
			value = normalize.Title(value)
		case TransformCollapseSpaces:
			value = normalize.Spaces(value)
		case TransformDigitsOnly:
			value = normalize.Digits(value)
		case TransformPhone:
			value = normalize.Phone(value, countryCode)
		case TransformURL:
			value = normalize.URL(value)
		case TransformSocialURL:
			value = normalize.SocialURL(value)
		case TransformState:
			value = normalize.State(value)
		case TransformHandle:
			value = normalize.Handle(value)
		}
	}
	return strings.TrimSpace(value)
}

// implicitTransforms are applied for a format even when the map omits them
func implicitTransforms(format string) []string {
	switch format {
	case FormatPhone:
		return []string{TransformPhone}
	case FormatState:
		return []string{TransformState}
	case FormatURL, FormatImageURL:
		return []string{TransformURL}
	case FormatABN:
		return []string{TransformDigitsOnly}
	case FormatEmail:
		return []string{TransformTrim, TransformLower}
	}
	return nil
}

// Normalize applies the rule's transforms plus the ones its format implies
func Normalize(spec Spec, value string, countryCode string) string {
	value = normalize.Spaces(value)
	value = ApplyTransforms(value, implicitTransforms(spec.Constraints.Format), countryCode)
	return ApplyTransforms(value, spec.Transforms, countryCode)
}
