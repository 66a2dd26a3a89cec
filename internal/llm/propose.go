package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"go.uber.org/zap"

	"github.com/ppiankov/siteintent/internal/intent"
	"github.com/ppiankov/siteintent/internal/logging"
	"github.com/ppiankov/siteintent/internal/metrics"
	"github.com/ppiankov/siteintent/internal/model"
)

// DefaultStageTimeout bounds each propose/verify call
const DefaultStageTimeout = 15 * time.Second

// Stage failure reasons for field proposals
const (
	ReasonNoProvider    = "no_provider"
	ReasonProposeFailed = "propose_failed"
	ReasonVerifyFailed  = "verify_failed"
	ReasonNotProposed   = "not_proposed"
)

const proposeSystem = `You fill named fields for a small-business profile using ONLY the SOURCE DATA.
Rules:
- Return one JSON object whose keys are exactly the requested keys.
- Never invent a value. Use "" when the source data does not contain it.
- Respect each field's constraints.`

const verifySystem = `You check draft field values for a small-business profile against the SOURCE DATA.
Rules:
- Return one JSON object with exactly the same keys as the draft.
- Keep a draft value only if the source data supports it; otherwise correct it or use "".
- Never add keys.`

// KeySpec is one requested key with the rule excerpt the model needs
type KeySpec struct {
	Key         string
	Prompt      string
	Transforms  []string
	Constraints intent.Constraints
}

// ProposeRequest asks for draft values for keys
type ProposeRequest struct {
	Keys  []KeySpec
	Facts model.RawFacts
}

// ProposeResult holds the filtered draft values
type ProposeResult struct {
	Values    map[string]string
	Compacted bool
	Reason    string
	Err       error
}

// VerifyRequest asks the model to correct a draft against the same context
type VerifyRequest struct {
	Keys  []KeySpec
	Facts model.RawFacts
	Draft map[string]string
}

// VerifyResult holds the verified values
type VerifyResult struct {
	Values map[string]string
	Reason string
	Err    error
}

// Resolution is the outcome of propose followed by verify
type Resolution struct {
	Values        map[string]string
	Discrepancies []model.Discrepancy
	Compacted     bool
	Reason        string
}

// ProposerOptions configures a Proposer
type ProposerOptions struct {
	TokenBudget int
	Limits      Limits
	Timeout     time.Duration
	Logger      *zap.Logger
}

// Proposer resolves fields with a generative model under a strict key discipline
type Proposer struct {
	provider Provider
	budget   int
	limits   Limits
	timeout  time.Duration
	logger   *zap.Logger
}

// NewProposer creates a proposer; provider may be nil, in which case every
// call returns ReasonNoProvider.
func NewProposer(provider Provider, opts ProposerOptions) *Proposer {
	if opts.TokenBudget <= 0 {
		opts.TokenBudget = DefaultTokenBudget
	}
	if opts.Limits == (Limits{}) {
		opts.Limits = DefaultLimits()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultStageTimeout
	}
	return &Proposer{
		provider: provider,
		budget:   opts.TokenBudget,
		limits:   opts.Limits,
		timeout:  opts.Timeout,
		logger:   logging.OrNop(opts.Logger),
	}
}

// Enabled reports whether a provider is configured
func (p *Proposer) Enabled() bool {
	return p != nil && p.provider != nil
}

// Propose requests draft values for req.Keys
func (p *Proposer) Propose(ctx context.Context, req ProposeRequest) ProposeResult {
	if !p.Enabled() {
		return ProposeResult{Reason: ReasonNoProvider, Err: ErrNoProvider}
	}
	keys := keyNames(req.Keys)

	facts, compacted, err := SelectContext(req.Facts, p.budget, p.limits)
	if err != nil {
		return ProposeResult{Reason: ReasonProposeFailed, Err: err}
	}

	prompt := buildFieldPrompt(req.Keys, facts, nil)
	raw, err := p.call(ctx, "propose", proposeSystem, prompt, keys)
	if err != nil {
		return ProposeResult{Compacted: compacted, Reason: ReasonProposeFailed, Err: err}
	}

	return ProposeResult{Values: FilterProposals(raw, keys), Compacted: compacted}
}

// Verify asks the model to correct req.Draft; the returned values replace the draft
func (p *Proposer) Verify(ctx context.Context, req VerifyRequest) VerifyResult {
	if !p.Enabled() {
		return VerifyResult{Reason: ReasonNoProvider, Err: ErrNoProvider}
	}
	keys := keyNames(req.Keys)

	facts, _, err := SelectContext(req.Facts, p.budget, p.limits)
	if err != nil {
		return VerifyResult{Reason: ReasonVerifyFailed, Err: err}
	}

	prompt := buildFieldPrompt(req.Keys, facts, req.Draft)
	raw, err := p.call(ctx, "verify", verifySystem, prompt, keys)
	if err != nil {
		return VerifyResult{Reason: ReasonVerifyFailed, Err: err}
	}

	return VerifyResult{Values: FilterProposals(raw, keys)}
}

// Resolve runs propose then verify. The verified value always wins; a
// failed verify drops the draft.
func (p *Proposer) Resolve(ctx context.Context, keys []KeySpec, facts model.RawFacts) Resolution {
	proposed := p.Propose(ctx, ProposeRequest{Keys: keys, Facts: facts})
	if proposed.Err != nil {
		p.logger.Warn("llm propose failed", zap.String("reason", proposed.Reason), zap.Error(proposed.Err))
		return Resolution{Reason: proposed.Reason, Compacted: proposed.Compacted}
	}

	verified := p.Verify(ctx, VerifyRequest{Keys: keys, Facts: facts, Draft: proposed.Values})
	if verified.Err != nil {
		p.logger.Warn("llm verify failed", zap.String("reason", verified.Reason), zap.Error(verified.Err))
		return Resolution{Reason: verified.Reason, Compacted: proposed.Compacted}
	}

	return Resolution{
		Values:        verified.Values,
		Discrepancies: Diff(proposed.Values, verified.Values),
		Compacted:     proposed.Compacted,
	}
}

func (p *Proposer) call(ctx context.Context, stage, system, prompt string, keys []string) (map[string]any, error) {
	schema, err := keysSchema(keys)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.provider.Complete(callCtx, CompletionRequest{
		System:     system,
		Prompt:     prompt,
		SchemaName: "fields",
		Schema:     schema,
		Strict:     true,
	})
	if err != nil {
		metrics.ObserveLLMCall(stage, "error")
		return nil, fmt.Errorf("%s: %w", stage, err)
	}

	var raw map[string]any
	if err := DecodeJSON(resp.Content, &raw, false); err != nil {
		metrics.ObserveLLMCall(stage, "invalid")
		return nil, fmt.Errorf("%s: %w", stage, err)
	}
	metrics.ObserveLLMCall(stage, "ok")
	return raw, nil
}

// FilterProposals keeps only allowed keys, maps null to "" and coerces
// every value to a trimmed string.
func FilterProposals(raw map[string]any, allow []string) map[string]string {
	out := make(map[string]string)
	for _, key := range allow {
		v, ok := raw[key]
		if !ok {
			continue
		}
		out[key] = strings.TrimSpace(coerce(v))
	}
	return out
}

func coerce(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s := strings.TrimSpace(coerce(item)); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// Diff lists keys whose verified value differs from the draft
func Diff(draft, verified map[string]string) []model.Discrepancy {
	keys := make(map[string]struct{})
	for k := range draft {
		keys[k] = struct{}{}
	}
	for k := range verified {
		keys[k] = struct{}{}
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	var out []model.Discrepancy
	for _, k := range sorted {
		if draft[k] != verified[k] {
			out = append(out, model.Discrepancy{Key: k, Draft: draft[k], Verified: verified[k]})
		}
	}
	return out
}

// keysSchema is an object schema with one required string property per key
func keysSchema(keys []string) (json.RawMessage, error) {
	props := jsonschema.NewProperties()
	for _, k := range keys {
		props.Set(k, &jsonschema.Schema{Type: "string"})
	}
	schema := &jsonschema.Schema{
		Type:                 "object",
		Properties:           props,
		Required:             keys,
		AdditionalProperties: jsonschema.FalseSchema,
	}
	b, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	return b, nil
}

func buildFieldPrompt(keys []KeySpec, facts []byte, draft map[string]string) string {
	var b strings.Builder
	b.WriteString("FIELDS:\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "- %s", k.Key)
		if k.Prompt != "" {
			fmt.Fprintf(&b, ": %s", k.Prompt)
		}
		if c := describeConstraints(k.Constraints, k.Transforms); c != "" {
			fmt.Fprintf(&b, " (%s)", c)
		}
		b.WriteString("\n")
	}

	allow, _ := json.Marshal(keyNames(keys))
	fmt.Fprintf(&b, "\nALLOW_KEYS=%s\n", allow)

	if draft != nil {
		d, _ := json.Marshal(draft)
		fmt.Fprintf(&b, "\nDRAFT:\n%s\n", d)
	}

	fmt.Fprintf(&b, "\nSOURCE DATA:\n%s\n", facts)
	return b.String()
}

func describeConstraints(c intent.Constraints, transforms []string) string {
	var parts []string
	if c.Format != "" {
		parts = append(parts, "format="+c.Format)
	}
	if c.MinLength > 0 {
		parts = append(parts, fmt.Sprintf("min_length=%d", c.MinLength))
	}
	if c.MaxLength > 0 {
		parts = append(parts, fmt.Sprintf("max_length=%d", c.MaxLength))
	}
	if c.MinWords > 0 {
		parts = append(parts, fmt.Sprintf("min_words=%d", c.MinWords))
	}
	if c.MaxWords > 0 {
		parts = append(parts, fmt.Sprintf("max_words=%d", c.MaxWords))
	}
	if len(c.Allowed) > 0 {
		parts = append(parts, "one of "+strings.Join(c.Allowed, "|"))
	}
	if c.Regex != "" {
		parts = append(parts, "matches "+c.Regex)
	}
	if len(transforms) > 0 {
		parts = append(parts, "transforms="+strings.Join(transforms, ","))
	}
	return strings.Join(parts, "; ")
}

func keyNames(keys []KeySpec) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.Key
	}
	return out
}

// IsNoProvider reports whether err means generation is disabled
func IsNoProvider(err error) bool {
	return errors.Is(err, ErrNoProvider)
}
