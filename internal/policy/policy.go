// Package policy enforces the intent map's constraints on a resolved field set.
package policy

import (
	"github.com/ppiankov/siteintent/internal/intent"
	"github.com/ppiankov/siteintent/internal/model"
)

// ReasonNotAllowedKey rejects a key the destination schema does not accept
const ReasonNotAllowedKey = "not_allowed_key"

// Result is the cleaned field set plus what was removed or flagged
type Result struct {
	Clean      model.Fields
	Rejections []model.Rejection
	Warnings   []model.Warning
}

// Enforce checks every field against its rule's constraints.
//
// Hard violations (allowed values, regex, maximums, format) null the field
// and add a rejection carrying the first hard reason. Soft violations
// (minimum length or words) keep the value and add a warning. Nullable
// externally-sourced identifiers pass through unchecked. Keys outside the
// allow set are rejected. fields is not modified.
func Enforce(fields model.Fields, m *intent.Map) Result {
	res := Result{Clean: make(model.Fields, len(fields))}

	for _, key := range fields.Keys() {
		value := fields[key]
		canonical := m.Canonical(key)

		if !m.Allowed(canonical) {
			res.Rejections = append(res.Rejections, model.Rejection{Key: key, Value: value, Reason: ReasonNotAllowedKey})
			continue
		}

		rule, ok := m.Rule(canonical)
		if !ok {
			res.Clean.Set(canonical, value)
			continue
		}
		spec := rule.RuleSpec()
		if spec.Nullable && spec.External != "" {
			res.Clean.Set(canonical, value)
			continue
		}

		violations := spec.Constraints.Check(value)
		if hard := intent.Hard(violations); len(hard) > 0 {
			res.Rejections = append(res.Rejections, model.Rejection{Key: canonical, Value: value, Reason: hard[0].Reason})
			continue
		}
		for _, v := range violations {
			res.Warnings = append(res.Warnings, model.Warning{Key: canonical, Reason: v.Reason})
		}
		res.Clean.Set(canonical, value)
	}

	return res
}

// Signals describes each rejection as a diagnostic signal
func (r Result) Signals() []model.Signal {
	out := make([]model.Signal, 0, len(r.Rejections))
	for _, rej := range r.Rejections {
		out = append(out, model.Signal{
			Type:        model.SignalPolicyReject,
			Severity:    model.SeverityWarning,
			Description: rej.Key + ": " + rej.Reason,
			Data: map[string]any{
				"key":    rej.Key,
				"reason": rej.Reason,
				"value":  rej.Value,
			},
		})
	}
	return out
}
