package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ppiankov/siteintent/internal/extract"
	"github.com/ppiankov/siteintent/internal/intent"
	"github.com/ppiankov/siteintent/internal/model"
)

func detRule(key string, c intent.Constraints, transforms ...string) intent.Rule {
	return intent.Deterministic{Spec: intent.Spec{Key: key, Constraints: c, Transforms: transforms}}
}

func TestDeterministic_ExactKey(t *testing.T) {
	d := NewDeterministic("61")
	facts := model.RawFacts{Fields: map[string]string{"identity_owner_name": "  Jo Citizen "}}

	out := d.Resolve(detRule("identity_owner_name", intent.Constraints{}), facts, nil)
	assert.Equal(t, "Jo Citizen", out.Value)
	assert.Equal(t, 1.0, out.Confidence)
	assert.Equal(t, SourceFields, out.Source)
}

func TestDeterministic_FuzzyNearMissKey(t *testing.T) {
	d := NewDeterministic("61")
	facts := model.RawFacts{Fields: map[string]string{"identity_ownername": "Jo Citizen"}}

	out := d.Resolve(detRule("identity_owner_name", intent.Constraints{}), facts, nil)
	assert.Equal(t, "Jo Citizen", out.Value)
	assert.Equal(t, "identity_ownername", out.MatchedKey)
	assert.InDelta(t, 0.95, out.Confidence, 1e-9)
}

func TestDeterministic_NoCrossMatch(t *testing.T) {
	d := NewDeterministic("61")
	facts := model.RawFacts{Fields: map[string]string{"identity_email_address": "jo@example.com"}}

	out := d.Resolve(detRule("identity_phone", intent.Constraints{Format: intent.FormatPhone}), facts, nil)
	assert.False(t, out.OK())
	assert.Equal(t, ReasonNoSignal, out.Reason)
}

func TestDeterministic_BarePrefixes(t *testing.T) {
	d := NewDeterministic("61")
	bag := extract.Bag{
		"phone":        {Value: "02 1234 5678", Source: extract.SourceRegex},
		"facebook_url": {Value: "https://www.facebook.com/acme/", Source: extract.SourceAnchors},
	}

	out := d.Resolve(detRule("identity_phone", intent.Constraints{Format: intent.FormatPhone}), model.RawFacts{}, bag)
	assert.Equal(t, "+61212345678", out.Value)
	assert.Equal(t, extract.SourceRegex, out.Source)

	out = d.Resolve(detRule("social_links_facebook", intent.Constraints{Format: intent.FormatURL}, intent.TransformSocialURL), model.RawFacts{}, bag)
	assert.Equal(t, "https://www.facebook.com/acme", out.Value)
}

func TestDeterministic_ConstraintAwareFallthrough(t *testing.T) {
	d := NewDeterministic("61")
	facts := model.RawFacts{Fields: map[string]string{
		"identity_postcode": "NSW",
		"postcode":          "2042",
	}}
	rule := detRule("identity_postcode", intent.Constraints{Regex: `^\d{4}$`})

	out := d.Resolve(rule, facts, nil)
	assert.Equal(t, "2042", out.Value)
	assert.Equal(t, "postcode", out.MatchedKey)
}

func TestDeterministic_ConstraintFailed(t *testing.T) {
	d := NewDeterministic("61")
	facts := model.RawFacts{Fields: map[string]string{"identity_tagline": "one two three four five"}}

	out := d.Resolve(detRule("identity_tagline", intent.Constraints{MaxWords: 3}), facts, nil)
	assert.False(t, out.OK())
	assert.Equal(t, ReasonConstraintFailed, out.Reason)
}

func TestDeterministic_StateTable(t *testing.T) {
	d := NewDeterministic("61")
	facts := model.RawFacts{Fields: map[string]string{"state": "Victoria"}}

	out := d.Resolve(detRule("identity_state", intent.Constraints{Format: intent.FormatState}), facts, nil)
	assert.Equal(t, "VIC", out.Value)
}

func TestDeterministic_ExternalFieldsDeferred(t *testing.T) {
	d := NewDeterministic("61")
	rule := intent.Deterministic{Spec: intent.Spec{Key: "trust_abn", External: intent.ExternalRegistry}}
	facts := model.RawFacts{Fields: map[string]string{"trust_abn": "51824753556"}}

	out := d.Resolve(rule, facts, nil)
	assert.False(t, out.OK())
	assert.Equal(t, ReasonExternalLookup, out.Reason)
}

func TestDeterministic_FieldsBeatBag(t *testing.T) {
	d := NewDeterministic("61")
	facts := model.RawFacts{Fields: map[string]string{"email": "owner@acme.com"}}
	bag := extract.Bag{"email": {Value: "info@acme.com", Source: extract.SourceAnchors}}

	out := d.Resolve(detRule("identity_email", intent.Constraints{Format: intent.FormatEmail}), facts, bag)
	assert.Equal(t, "owner@acme.com", out.Value)
}
