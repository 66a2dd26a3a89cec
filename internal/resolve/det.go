// Package resolve holds the non-generative field resolvers: deterministic
// resolution from extracted signals and derivation from resolved fields.
package resolve

import (
	"github.com/ppiankov/siteintent/internal/extract"
	"github.com/ppiankov/siteintent/internal/intent"
	"github.com/ppiankov/siteintent/internal/model"
	"github.com/ppiankov/siteintent/internal/normalize"
)

// Outcome reasons for a failed resolution
const (
	ReasonExternalLookup   = "external_lookup"
	ReasonNoSignal         = "no_signal"
	ReasonConstraintFailed = "constraint_failed"
	ReasonMissingInput     = "missing_dependency"
	ReasonUnknownFormula   = "unknown_formula"
)

// SourceFields tags values taken from the parser's pre-keyed fields
const SourceFields = "fields"

// Outcome is the result of one resolution attempt. Value is empty on failure.
type Outcome struct {
	Value      string
	Source     string
	MatchedKey string
	Confidence float64
	Reason     string
}

// OK reports whether the attempt produced a value
func (o Outcome) OK() bool {
	return o.Value != ""
}

// Deterministic resolves intent keys from extracted signals
type Deterministic struct {
	CountryCode string
	Threshold   float64
}

// NewDeterministic returns a resolver with the default threshold
func NewDeterministic(countryCode string) *Deterministic {
	if countryCode == "" {
		countryCode = normalize.DefaultCountryCode
	}
	return &Deterministic{CountryCode: countryCode, Threshold: DefaultThreshold}
}

type signal struct {
	key    string
	value  string
	source string
}

// Resolve returns the best value for the rule's key. The exact key wins;
// otherwise fuzzy-matched keys are tried best first and the first value
// that satisfies the rule's constraints is taken.
func (d *Deterministic) Resolve(rule intent.Rule, facts model.RawFacts, bag extract.Bag) Outcome {
	spec := rule.RuleSpec()
	if spec.External != "" {
		return Outcome{Reason: ReasonExternalLookup}
	}

	signals := collectSignals(facts, bag)
	byKey := make(map[string][]signal)
	keys := make([]string, 0, len(signals))
	for _, s := range signals {
		if _, ok := byKey[s.key]; !ok {
			keys = append(keys, s.key)
		}
		byKey[s.key] = append(byKey[s.key], s)
	}

	sawCandidate := false
	try := func(s signal, confidence float64) (Outcome, bool) {
		v := intent.Normalize(spec, s.value, d.CountryCode)
		if v == "" {
			return Outcome{}, false
		}
		sawCandidate = true
		if !spec.Constraints.Satisfies(v) {
			return Outcome{}, false
		}
		return Outcome{Value: v, Source: s.source, MatchedKey: s.key, Confidence: confidence}, true
	}

	for _, s := range byKey[spec.Key] {
		if out, ok := try(s, 1); ok {
			return out
		}
	}

	threshold := d.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	for _, m := range Rank(spec.Key, keys, threshold) {
		if m.Key == spec.Key {
			continue
		}
		for _, s := range byKey[m.Key] {
			if out, ok := try(s, m.Score); ok {
				return out
			}
		}
	}

	if sawCandidate {
		return Outcome{Reason: ReasonConstraintFailed}
	}
	return Outcome{Reason: ReasonNoSignal}
}

// collectSignals lists parser fields before extractor output so a
// pre-keyed value wins over an extracted one with the same key.
func collectSignals(facts model.RawFacts, bag extract.Bag) []signal {
	var out []signal
	for _, k := range sortedKeys(facts.Fields) {
		out = append(out, signal{key: k, value: facts.Fields[k], source: SourceFields})
	}
	for _, k := range bag.Keys() {
		c := bag[k]
		out = append(out, signal{key: k, value: c.Value, source: c.Source})
	}
	return out
}
