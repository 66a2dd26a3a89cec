package score

import (
	"fmt"
	"math"

	"github.com/ppiankov/siteintent/internal/intent"
	"github.com/ppiankov/siteintent/internal/model"
)

const (
	// MinThreshold is the floor applied to any coverage threshold override
	MinThreshold = 0.5
	// DefaultThreshold is the resolve gate's coverage threshold
	DefaultThreshold = 0.6
	// DefaultMinPayload is the fewest sendable keys a push may carry
	DefaultMinPayload = 5
)

// Schema is the part of the intent map coverage and gating read
type Schema interface {
	AllowSet() []string
	Required() []string
	CategoryOf(key string) string
}

// Scorer computes coverage and gate decisions
type Scorer struct {
	threshold  float64
	minPayload int
}

// NewScorer creates a scorer; the threshold is clamped and minPayload <= 0
// uses DefaultMinPayload.
func NewScorer(threshold float64, minPayload int) *Scorer {
	if minPayload <= 0 {
		minPayload = DefaultMinPayload
	}
	return &Scorer{threshold: ClampThreshold(threshold), minPayload: minPayload}
}

// Threshold returns the effective coverage threshold
func (s *Scorer) Threshold() float64 {
	return s.threshold
}

// ClampThreshold floors an invalid or too-low threshold at MinThreshold and
// caps it at 1
func ClampThreshold(t float64) float64 {
	if math.IsNaN(t) || t < MinThreshold {
		return MinThreshold
	}
	if t > 1 {
		return 1
	}
	return t
}

// Coverage is the fraction of allow-listed keys holding a value, overall
// and per category. An empty allow set has zero coverage.
func Coverage(fields model.Fields, schema Schema) model.CoverageReport {
	allow := schema.AllowSet()
	totals := make(map[string]int)
	present := make(map[string]int)

	report := model.CoverageReport{Total: len(allow)}
	for _, key := range allow {
		cat := schema.CategoryOf(key)
		totals[cat]++
		if fields.Has(key) {
			report.Present++
			present[cat]++
		}
	}
	report.Pct = ratio(report.Present, report.Total)

	for _, cat := range intent.Categories() {
		if totals[cat] == 0 {
			continue
		}
		report.Categories = append(report.Categories, model.CategoryCoverage{
			Category: cat,
			Total:    totals[cat],
			Present:  present[cat],
			Pct:      ratio(present[cat], totals[cat]),
		})
	}
	return report
}

// MissingRequired lists required keys without a value, in lexical order
func MissingRequired(fields model.Fields, schema Schema) []string {
	var missing []string
	for _, key := range schema.Required() {
		if !fields.Has(key) {
			missing = append(missing, key)
		}
	}
	return missing
}

// ResolveGate passes when nothing required is missing and coverage meets
// the threshold. Missing required fields are checked first.
func ResolveGate(coverage float64, missing []string, threshold float64) model.GateDecision {
	threshold = ClampThreshold(threshold)
	data := map[string]any{
		"coverage":  coverage,
		"threshold": threshold,
		"missing":   len(missing),
		"formula":   "len(missing_required) == 0 && coverage >= threshold",
	}

	switch {
	case len(missing) > 0:
		return model.GateDecision{
			Reason:  model.ReasonMissingRequired,
			Missing: missing,
			Signal: model.Signal{
				Type:        model.SignalResolveGate,
				Severity:    model.SeverityCritical,
				Description: fmt.Sprintf("Missing %d required field(s)", len(missing)),
				Data:        data,
			},
		}
	case coverage < threshold:
		return model.GateDecision{
			Reason: model.ReasonInsufficientCoverage,
			Signal: model.Signal{
				Type:        model.SignalResolveGate,
				Severity:    model.SeverityWarning,
				Description: fmt.Sprintf("Coverage %.2f below threshold %.2f", coverage, threshold),
				Data:        data,
			},
		}
	}

	return model.GateDecision{
		Pass: true,
		Signal: model.Signal{
			Type:        model.SignalResolveGate,
			Severity:    model.SeverityInfo,
			Description: fmt.Sprintf("Coverage %.2f meets threshold %.2f", coverage, threshold),
			Data:        data,
		},
	}
}

// PublishGate re-checks required fields at publish time, after any step
// that may have changed the field set since the resolve gate ran.
func PublishGate(resolvePass bool, missing []string) model.GateDecision {
	data := map[string]any{
		"resolve_pass": resolvePass,
		"missing":      len(missing),
		"formula":      "resolve_pass && len(missing_required) == 0",
	}

	switch {
	case !resolvePass:
		return model.GateDecision{
			Reason: model.ReasonResolveFailed,
			Signal: model.Signal{
				Type:        model.SignalPublishGate,
				Severity:    model.SeverityCritical,
				Description: "Resolve gate did not pass",
				Data:        data,
			},
		}
	case len(missing) > 0:
		return model.GateDecision{
			Reason:  model.ReasonMissingRequired,
			Missing: missing,
			Signal: model.Signal{
				Type:        model.SignalPublishGate,
				Severity:    model.SeverityCritical,
				Description: fmt.Sprintf("Missing %d required field(s) at publish", len(missing)),
				Data:        data,
			},
		}
	}

	return model.GateDecision{
		Pass: true,
		Signal: model.Signal{
			Type:        model.SignalPublishGate,
			Severity:    model.SeverityInfo,
			Description: "Ready to publish",
			Data:        data,
		},
	}
}

// ThinPayload rejects a push carrying fewer than min sendable keys,
// whatever the coverage
func ThinPayload(sendable, min int) model.GateDecision {
	data := map[string]any{
		"sendable": sendable,
		"min":      min,
		"formula":  "sendable >= min",
	}
	if sendable < min {
		return model.GateDecision{
			Reason: model.ReasonThinPayload,
			Signal: model.Signal{
				Type:        model.SignalThinPayload,
				Severity:    model.SeverityCritical,
				Description: fmt.Sprintf("Payload has %d key(s), need %d", sendable, min),
				Data:        data,
			},
		}
	}
	return model.GateDecision{
		Pass: true,
		Signal: model.Signal{
			Type:        model.SignalThinPayload,
			Severity:    model.SeverityInfo,
			Description: fmt.Sprintf("Payload has %d key(s)", sendable),
			Data:        data,
		},
	}
}

// Resolve computes coverage and the resolve gate for a cleaned field set
func (s *Scorer) Resolve(fields model.Fields, schema Schema) (model.CoverageReport, model.GateDecision) {
	cov := Coverage(fields, schema)
	gate := ResolveGate(cov.Pct, MissingRequired(fields, schema), s.threshold)
	gate.Signal.Data["present"] = cov.Present
	gate.Signal.Data["total"] = cov.Total
	return cov, gate
}

// Publish runs the publish gate and then the thin-payload guard; the first
// failure is returned
func (s *Scorer) Publish(resolve model.GateDecision, fields model.Fields, schema Schema, sendable int) model.GateDecision {
	gate := PublishGate(resolve.Pass, MissingRequired(fields, schema))
	if !gate.Pass {
		return gate
	}
	return ThinPayload(sendable, s.minPayload)
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}
