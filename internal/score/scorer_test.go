package score

import (
	"math"
	"testing"

	"github.com/ppiankov/siteintent/internal/intent"
	"github.com/ppiankov/siteintent/internal/model"
)

type fakeSchema struct {
	allow    []string
	required []string
}

func (f fakeSchema) AllowSet() []string           { return f.allow }
func (f fakeSchema) Required() []string           { return f.required }
func (f fakeSchema) CategoryOf(key string) string { return intent.CategoryOf(key) }

var schema = fakeSchema{
	allow:    []string{"identity_business_name", "identity_phone", "social_links_facebook", "service_1_title"},
	required: []string{"identity_business_name"},
}

func TestResolveGate_Cases(t *testing.T) {
	tests := []struct {
		name     string
		coverage float64
		missing  []string
		pass     bool
		reason   model.GateReason
	}{
		{"below threshold", 0.49, nil, false, model.ReasonInsufficientCoverage},
		{"above threshold", 0.51, nil, true, model.ReasonNone},
		{"exactly threshold", 0.5, nil, true, model.ReasonNone},
		{"missing required checked first", 0.1, []string{"identity_business_name"}, false, model.ReasonMissingRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveGate(tt.coverage, tt.missing, 0.5)
			if got.Pass != tt.pass {
				t.Errorf("pass = %v, want %v", got.Pass, tt.pass)
			}
			if got.Reason != tt.reason {
				t.Errorf("reason = %q, want %q", got.Reason, tt.reason)
			}
			if got.Signal.Type != model.SignalResolveGate {
				t.Errorf("signal type = %s", got.Signal.Type)
			}
			if _, ok := got.Signal.Data["formula"]; !ok {
				t.Error("expected formula in signal data")
			}
		})
	}
}

func TestPublishGate_Cases(t *testing.T) {
	got := PublishGate(false, nil)
	if got.Pass || got.Reason != model.ReasonResolveFailed {
		t.Errorf("expected resolve_failed, got %+v", got)
	}

	got = PublishGate(true, []string{"identity_business_name"})
	if got.Pass || got.Reason != model.ReasonMissingRequired {
		t.Errorf("expected missing_required, got %+v", got)
	}
	if len(got.Missing) != 1 {
		t.Errorf("expected missing list, got %v", got.Missing)
	}

	if got := PublishGate(true, nil); !got.Pass {
		t.Errorf("expected pass, got %+v", got)
	}
}

func TestThinPayload(t *testing.T) {
	if got := ThinPayload(4, 5); got.Pass || got.Reason != model.ReasonThinPayload {
		t.Errorf("expected thin_payload, got %+v", got)
	}
	if got := ThinPayload(5, 5); !got.Pass {
		t.Errorf("expected pass at the minimum, got %+v", got)
	}
}

func TestClampThreshold(t *testing.T) {
	tests := map[float64]float64{
		0.2:  0.5,
		-1:   0.5,
		0.5:  0.5,
		0.75: 0.75,
		1.5:  1,
	}
	for in, want := range tests {
		if got := ClampThreshold(in); got != want {
			t.Errorf("ClampThreshold(%v) = %v, want %v", in, got, want)
		}
	}
	if got := ClampThreshold(math.NaN()); got != 0.5 {
		t.Errorf("ClampThreshold(NaN) = %v, want 0.5", got)
	}
}

func TestCoverage_Bounds(t *testing.T) {
	empty := Coverage(model.Fields{}, schema)
	if empty.Pct != 0 || empty.Present != 0 || empty.Total != 4 {
		t.Errorf("empty coverage = %+v", empty)
	}

	full := model.Fields{}
	for _, k := range schema.allow {
		full[k] = "x"
	}
	full["not_allowed"] = "x"
	if got := Coverage(full, schema); got.Pct != 1 {
		t.Errorf("full coverage = %v, want 1", got.Pct)
	}

	if got := Coverage(full, fakeSchema{}); got.Pct != 0 {
		t.Errorf("empty allow set coverage = %v, want 0", got.Pct)
	}
}

func TestCoverage_Categories(t *testing.T) {
	got := Coverage(model.Fields{"identity_phone": "+61212345678", "service_1_title": "Drains"}, schema)

	if got.Pct != 0.5 {
		t.Errorf("pct = %v, want 0.5", got.Pct)
	}
	want := []model.CategoryCoverage{
		{Category: intent.CategoryIdentity, Total: 2, Present: 1, Pct: 0.5},
		{Category: intent.CategorySocials, Total: 1, Present: 0, Pct: 0},
		{Category: intent.CategoryServices, Total: 1, Present: 1, Pct: 1},
	}
	if len(got.Categories) != len(want) {
		t.Fatalf("categories = %+v", got.Categories)
	}
	for i := range want {
		if got.Categories[i] != want[i] {
			t.Errorf("category %d = %+v, want %+v", i, got.Categories[i], want[i])
		}
	}
}

func TestScorer_ResolveAndPublish(t *testing.T) {
	s := NewScorer(0.1, 0)
	if s.Threshold() != MinThreshold {
		t.Errorf("threshold = %v, want clamped %v", s.Threshold(), MinThreshold)
	}

	fields := model.Fields{"identity_business_name": "Plumb Co", "identity_phone": "+61212345678"}
	cov, gate := s.Resolve(fields, schema)
	if cov.Pct != 0.5 || !gate.Pass {
		t.Fatalf("expected pass at 0.5 coverage, got %+v %+v", cov, gate)
	}

	pub := s.Publish(gate, fields, schema, 2)
	if pub.Pass || pub.Reason != model.ReasonThinPayload {
		t.Errorf("expected thin payload, got %+v", pub)
	}

	delete(fields, "identity_business_name")
	pub = s.Publish(gate, fields, schema, 10)
	if pub.Pass || pub.Reason != model.ReasonMissingRequired {
		t.Errorf("expected missing_required at publish, got %+v", pub)
	}

	pub = s.Publish(model.GateDecision{}, fields, schema, 10)
	if pub.Reason != model.ReasonResolveFailed {
		t.Errorf("expected resolve_failed, got %+v", pub)
	}
}
