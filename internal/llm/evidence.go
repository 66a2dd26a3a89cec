package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"go.uber.org/zap"

	"github.com/ppiankov/siteintent/internal/logging"
	"github.com/ppiankov/siteintent/internal/metrics"
	"github.com/ppiankov/siteintent/internal/model"
)

// Profile stage names and failure reasons
const (
	StageEvidence = "evidence"
	StageProfile  = "profile"

	ReasonNoAPIKey              = "no_api_key"
	ReasonEvidenceRequestFailed = "evidence_request_failed"
	ReasonInvalidEvidence       = "invalid_evidence"
	ReasonInvalidProfile        = "invalid_profile"
	ReasonProfileRequestFailed  = "profile_request_failed"
)

// MinEvidenceSignals is how many independent signals a composed claim needs
const MinEvidenceSignals = 2

const evidenceSystem = `You extract an evidence bundle from a small-business website.
Copy phrases verbatim from the SOURCE DATA. Do not paraphrase, infer or invent.
List each service and service area with the exact phrases that mention it.`

const profileSystem = `You compose a small-business profile strictly from the EVIDENCE bundle and KNOWN FACTS.
Do not add services, areas, awards, years or claims that are not in the evidence.
Write plainly in the third person.`

// EvidenceItem is a service or area claim and the source phrases backing it
type EvidenceItem struct {
	Name        string   `json:"name" validate:"required,max=120"`
	Phrases     []string `json:"phrases" validate:"max=20,dive,max=300"`
	Occurrences int      `json:"occurrences" validate:"gte=0"`
	Pages       int      `json:"pages" validate:"gte=0"`
}

// EvidenceBundle is the source-grounded intermediate the profile is composed from
type EvidenceBundle struct {
	Services     []EvidenceItem `json:"services" validate:"max=20,dive"`
	ServiceAreas []EvidenceItem `json:"service_areas" validate:"max=30,dive"`
	About        []string       `json:"about" validate:"max=10,dive,max=600"`
	Geo          []string       `json:"geo" validate:"max=10,dive,max=300"`
	Contact      []string       `json:"contact" validate:"max=10,dive,max=300"`
}

// ProfileService is one composed service
type ProfileService struct {
	Name        string `json:"name" validate:"required,max=80"`
	Description string `json:"description" validate:"max=600"`
}

// Profile is the composed narrative
type Profile struct {
	BusinessDescription string           `json:"business_description" validate:"max=2000"`
	Services            []ProfileService `json:"services" validate:"max=10,dive"`
	ServiceAreas        []string         `json:"service_areas" validate:"max=30,dive,max=80"`
}

// ProfileResult is the outcome of both stages. Profile is nil when either
// stage failed; Stages always has one entry per stage.
type ProfileResult struct {
	Evidence *EvidenceBundle
	Profile  *Profile
	Stages   []model.StageStatus
	Dropped  []string
}

// ProfileBuilder runs the evidence then compose stages
type ProfileBuilder struct {
	provider Provider
	budget   int
	limits   Limits
	timeout  time.Duration
	validate *validator.Validate
	logger   *zap.Logger
}

// NewProfileBuilder creates a builder; provider may be nil
func NewProfileBuilder(provider Provider, opts ProposerOptions) *ProfileBuilder {
	p := NewProposer(provider, opts)
	return &ProfileBuilder{
		provider: provider,
		budget:   p.budget,
		limits:   p.limits,
		timeout:  p.timeout,
		validate: validator.New(),
		logger:   logging.OrNop(opts.Logger),
	}
}

// Build extracts evidence from facts, composes a profile from the evidence
// and the identity fields, then drops claims the evidence does not back.
// Failures are reported in Stages, never returned.
func (b *ProfileBuilder) Build(ctx context.Context, facts model.RawFacts, identity model.Fields) ProfileResult {
	if b == nil || b.provider == nil {
		return ProfileResult{Stages: []model.StageStatus{
			{Stage: StageEvidence, Skipped: true, Reason: ReasonNoAPIKey},
			{Stage: StageProfile, Skipped: true, Reason: ReasonNoAPIKey},
		}}
	}

	bundle, reason := b.extractEvidence(ctx, facts)
	if reason != "" {
		return ProfileResult{Stages: []model.StageStatus{
			{Stage: StageEvidence, Reason: reason},
			{Stage: StageProfile, Skipped: true, Reason: reason},
		}}
	}
	Recount(bundle, facts)

	profile, reason := b.compose(ctx, bundle, identity)
	if reason != "" {
		return ProfileResult{Evidence: bundle, Stages: []model.StageStatus{
			{Stage: StageEvidence, OK: true},
			{Stage: StageProfile, Reason: reason},
		}}
	}

	filtered, dropped := FilterProfile(*profile, *bundle)
	if len(dropped) > 0 {
		b.logger.Info("dropped unbacked profile claims", zap.Strings("claims", dropped))
	}
	return ProfileResult{
		Evidence: bundle,
		Profile:  &filtered,
		Dropped:  dropped,
		Stages: []model.StageStatus{
			{Stage: StageEvidence, OK: true},
			{Stage: StageProfile, OK: true},
		},
	}
}

func (b *ProfileBuilder) extractEvidence(ctx context.Context, facts model.RawFacts) (*EvidenceBundle, string) {
	source, _, err := SelectContext(facts, b.budget, b.limits)
	if err != nil {
		return nil, ReasonEvidenceRequestFailed
	}

	content, err := b.complete(ctx, StageEvidence, evidenceSystem, "SOURCE DATA:\n"+string(source), GenerateSchema[EvidenceBundle]())
	if err != nil {
		b.logger.Warn("evidence request failed", zap.Error(err))
		return nil, ReasonEvidenceRequestFailed
	}

	var bundle EvidenceBundle
	if err := DecodeJSON(content, &bundle, true); err != nil {
		b.logger.Warn("invalid evidence bundle", zap.Error(err))
		metrics.ObserveLLMCall(StageEvidence, "invalid")
		return nil, ReasonInvalidEvidence
	}
	if err := b.validate.Struct(bundle); err != nil {
		b.logger.Warn("invalid evidence bundle", zap.Error(err))
		metrics.ObserveLLMCall(StageEvidence, "invalid")
		return nil, ReasonInvalidEvidence
	}
	return &bundle, ""
}

func (b *ProfileBuilder) compose(ctx context.Context, bundle *EvidenceBundle, identity model.Fields) (*Profile, string) {
	evidence, err := json.Marshal(bundle)
	if err != nil {
		return nil, ReasonProfileRequestFailed
	}
	known, err := json.Marshal(identity)
	if err != nil {
		return nil, ReasonProfileRequestFailed
	}
	prompt := fmt.Sprintf("KNOWN FACTS:\n%s\n\nEVIDENCE:\n%s\n", known, evidence)

	content, err := b.complete(ctx, StageProfile, profileSystem, prompt, GenerateSchema[Profile]())
	if err != nil {
		b.logger.Warn("profile request failed", zap.Error(err))
		return nil, ReasonProfileRequestFailed
	}

	var profile Profile
	if err := DecodeJSON(content, &profile, true); err != nil {
		b.logger.Warn("invalid profile", zap.Error(err))
		metrics.ObserveLLMCall(StageProfile, "invalid")
		return nil, ReasonInvalidProfile
	}
	if err := b.validate.Struct(profile); err != nil {
		b.logger.Warn("invalid profile", zap.Error(err))
		metrics.ObserveLLMCall(StageProfile, "invalid")
		return nil, ReasonInvalidProfile
	}
	return &profile, ""
}

func (b *ProfileBuilder) complete(ctx context.Context, stage, system, prompt string, schema *jsonschema.Schema) (string, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return "", fmt.Errorf("marshal schema: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	resp, err := b.provider.Complete(callCtx, CompletionRequest{
		System:     system,
		Prompt:     prompt,
		SchemaName: stage,
		Schema:     raw,
	})
	if err != nil {
		metrics.ObserveLLMCall(stage, "error")
		return "", err
	}
	metrics.ObserveLLMCall(stage, "ok")
	return resp.Content, nil
}

// GenerateSchema reflects T into an inline schema with no additional properties
func GenerateSchema[T any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

// Recount replaces the model's occurrence and page counts with counts
// taken from the source, and drops phrases that do not occur in it.
// Occurrences counts the item name; Pages counts pages mentioning the
// name or any kept phrase. Counting runs over page text when pages were
// captured, so content repeated in the structured lists is not counted
// twice.
func Recount(bundle *EvidenceBundle, facts model.RawFacts) {
	texts := sourceTexts(facts)
	corpus := strings.Join(texts, "\n")
	var pages []string
	if len(facts.Pages) > 0 {
		pages = texts
	}

	recount := func(items []EvidenceItem) {
		for i := range items {
			item := &items[i]
			var kept []string
			for _, ph := range item.Phrases {
				if n := normalizeClaim(ph); n != "" && strings.Contains(corpus, n) {
					kept = append(kept, strings.TrimSpace(ph))
				}
			}
			item.Phrases = kept

			item.Occurrences = 0
			if name := normalizeClaim(item.Name); name != "" {
				item.Occurrences = strings.Count(corpus, name)
			}

			needles := []string{normalizeClaim(item.Name)}
			for _, ph := range kept {
				needles = append(needles, normalizeClaim(ph))
			}
			item.Pages = 0
			for _, page := range pages {
				for _, n := range needles {
					if n != "" && strings.Contains(page, n) {
						item.Pages++
						break
					}
				}
			}
		}
	}
	recount(bundle.Services)
	recount(bundle.ServiceAreas)
}

// Backed reports whether an evidence item has at least two independent signals
func (e EvidenceItem) Backed() bool {
	return e.Occurrences >= MinEvidenceSignals || e.Pages >= MinEvidenceSignals || len(e.Phrases) >= MinEvidenceSignals
}

// FilterProfile removes services and service areas that are not backed by
// a multi-signal evidence item. It returns the dropped claim names.
func FilterProfile(profile Profile, bundle EvidenceBundle) (Profile, []string) {
	services := backedNames(bundle.Services)
	areas := backedNames(bundle.ServiceAreas)

	out := Profile{BusinessDescription: profile.BusinessDescription}
	var dropped []string
	for _, s := range profile.Services {
		if services[normalizeClaim(s.Name)] {
			out.Services = append(out.Services, s)
		} else {
			dropped = append(dropped, s.Name)
		}
	}
	for _, a := range profile.ServiceAreas {
		if areas[normalizeClaim(a)] {
			out.ServiceAreas = append(out.ServiceAreas, a)
		} else {
			dropped = append(dropped, a)
		}
	}
	return out, dropped
}

// Fields maps the profile onto intent keys
func (p Profile) Fields() map[string]string {
	out := make(map[string]string)
	if v := strings.TrimSpace(p.BusinessDescription); v != "" {
		out["content_business_description"] = v
	}
	if len(p.ServiceAreas) > 0 {
		out["content_service_areas"] = strings.Join(p.ServiceAreas, ", ")
	}
	for i, s := range p.Services {
		n := i + 1
		if v := strings.TrimSpace(s.Name); v != "" {
			out[fmt.Sprintf("service_%d_title", n)] = v
		}
		if v := strings.TrimSpace(s.Description); v != "" {
			out[fmt.Sprintf("service_%d_description", n)] = v
		}
	}
	return out
}

func backedNames(items []EvidenceItem) map[string]bool {
	out := make(map[string]bool)
	for _, item := range items {
		if item.Backed() {
			out[normalizeClaim(item.Name)] = true
		}
	}
	return out
}

func normalizeClaim(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// sourceTexts returns the normalized, de-duplicated texts evidence is
// counted over: page text when present, otherwise the structured lists
func sourceTexts(facts model.RawFacts) []string {
	var raw []string
	if len(facts.Pages) > 0 {
		for _, p := range facts.Pages {
			raw = append(raw, p.Text)
		}
	} else {
		raw = append(raw, facts.Headings.Texts(0)...)
		raw = append(raw, facts.TextBlocks...)
		for _, a := range facts.Anchors {
			raw = append(raw, a.Text)
		}
		for _, p := range append(append([]model.Panel{}, facts.ServicePanels...), facts.Projects...) {
			raw = append(raw, p.Title, p.Description)
		}
		for _, t := range facts.Testimonials {
			raw = append(raw, t.Quote)
		}
		for _, k := range sortedMetaKeys(facts.Meta) {
			raw = append(raw, facts.Meta[k])
		}
	}

	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		s = normalizeClaim(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func sortedMetaKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
