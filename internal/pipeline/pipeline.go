// Package pipeline drives one build request: seeding, ordered per-field
// dispatch, policy enforcement, coverage and gating.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ppiankov/siteintent/internal/extract"
	"github.com/ppiankov/siteintent/internal/intent"
	"github.com/ppiankov/siteintent/internal/llm"
	"github.com/ppiankov/siteintent/internal/logging"
	"github.com/ppiankov/siteintent/internal/metrics"
	"github.com/ppiankov/siteintent/internal/misslog"
	"github.com/ppiankov/siteintent/internal/model"
	"github.com/ppiankov/siteintent/internal/normalize"
	"github.com/ppiankov/siteintent/internal/policy"
	"github.com/ppiankov/siteintent/internal/registry"
	"github.com/ppiankov/siteintent/internal/resolve"
	"github.com/ppiankov/siteintent/internal/score"
)

// PromoteConfidence is the confidence above which a failed attempt is
// reported as ok in the audit. The value is still not written.
const PromoteConfidence = 0.7

// Audit reasons produced here rather than by a resolver
const (
	ReasonNotAllowed      = "not_allowed"
	ReasonLookupDisabled  = "lookup_disabled"
	ReasonLookupNotFound  = "not_found"
	ReasonLookupFailed    = "lookup_failed"
	ReasonUnsupportedRule = "unsupported_rule"
	ReasonUnbackedClaim   = "unbacked_claim"
)

// Provenance tags for values not produced by a resolver
const (
	SourceSeed  = "seed"
	SourceFrame = "llm:frame"
	SourceLLM   = "llm"
)

const (
	suggestionThreshold = 0.3
	snippetLength       = 160

	keyTradingName = "identity_trading_name"
	keyState       = "identity_state"
	identityPrefix = "identity_"
)

// Options wires the collaborators. Every field is optional; nil
// collaborators disable their stage.
type Options struct {
	Proposer    *llm.Proposer
	Profiles    *llm.ProfileBuilder
	Registry    registry.Lookup
	MissLog     misslog.Sink
	Scorer      *score.Scorer
	Resolver    *resolve.Deterministic
	Deriver     *resolve.Deriver
	CountryCode string
	// Prefetch asks the model for every LLM-reachable key in one call
	// before dispatch
	Prefetch bool
	Logger   *zap.Logger
	Now      func() time.Time
	NewID    func() string
}

// Pipeline is safe for concurrent builds; it holds no per-request state
type Pipeline struct {
	intents     *intent.Map
	proposer    *llm.Proposer
	profiles    *llm.ProfileBuilder
	registry    registry.Lookup
	misses      misslog.Sink
	scorer      *score.Scorer
	resolver    *resolve.Deterministic
	deriver     *resolve.Deriver
	countryCode string
	prefetch    bool
	logger      *zap.Logger
	now         func() time.Time
	newID       func() string
}

// NewPipeline creates a pipeline over an immutable intent map
func NewPipeline(m *intent.Map, opts Options) (*Pipeline, error) {
	if m == nil {
		return nil, intent.ErrNoIntentMap
	}
	logger := logging.OrNop(opts.Logger)

	if opts.CountryCode == "" {
		opts.CountryCode = normalize.DefaultCountryCode
	}
	if opts.Scorer == nil {
		opts.Scorer = score.NewScorer(score.DefaultThreshold, score.DefaultMinPayload)
	}
	if opts.Resolver == nil {
		opts.Resolver = resolve.NewDeterministic(opts.CountryCode)
	}
	if opts.Deriver == nil {
		opts.Deriver = resolve.NewDeriver(resolve.DeriveConfig{})
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}

	return &Pipeline{
		intents:     m,
		proposer:    opts.Proposer,
		profiles:    opts.Profiles,
		registry:    opts.Registry,
		misses:      misslog.NewLogged(opts.MissLog, logger),
		scorer:      opts.Scorer,
		resolver:    opts.Resolver,
		deriver:     opts.Deriver,
		countryCode: opts.CountryCode,
		prefetch:    opts.Prefetch,
		logger:      logger,
		now:         opts.Now,
		newID:       opts.NewID,
	}, nil
}

// build holds the state of one request
type build struct {
	id         string
	facts      model.RawFacts
	bag        extract.Bag
	fields     model.Fields
	provenance map[string]string
	resolved   map[string]bool
	composed   map[string]string
	frame      map[string]string
	frameDone  bool
	frameErr   string
	entity     *registry.Entity
	lookupErr  string
	lookupDone bool
	result     *model.BuildResult
	logger     *zap.Logger
}

// attempt is the outcome of one strategy dispatch
type attempt struct {
	strategy model.Strategy
	out      resolve.Outcome
}

// Build resolves facts into a policy-clean field set with audit, coverage
// and the resolve gate. Per-field and per-stage failures are recorded in
// the result; an error means the build did not start.
func (p *Pipeline) Build(ctx context.Context, facts model.RawFacts) (*model.BuildResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}
	start := p.now()

	b := &build{
		id:         p.newID(),
		facts:      facts,
		bag:        extract.Signals(facts, p.countryCode),
		fields:     make(model.Fields),
		provenance: make(map[string]string),
		resolved:   make(map[string]bool),
	}
	b.logger = p.logger.With(zap.String("request_id", b.id), zap.String("source_url", facts.SourceURL))
	b.result = &model.BuildResult{
		RequestID: b.id,
		SourceURL: facts.SourceURL,
		BuiltAt:   start.UTC(),
	}

	p.seed(b)
	p.profile(ctx, b)
	p.prefetchFrame(ctx, b)
	p.dispatch(ctx, b)
	p.enforce(ctx, b)

	res := b.result
	res.Fields = b.fields
	if len(b.provenance) > 0 {
		res.Provenance = b.provenance
	}
	res.Coverage, res.ResolveGate = p.scorer.Resolve(b.fields, p.intents)

	metrics.ObserveCoverage(res.Coverage.Pct)
	metrics.ObserveGate(string(res.ResolveGate.Signal.Type), res.ResolveGate.Pass, string(res.ResolveGate.Reason))
	metrics.ObserveBuild(p.now().Sub(start).Seconds())

	b.logger.Info("build complete",
		zap.Int("fields", len(res.Fields)),
		zap.Float64("coverage", res.Coverage.Pct),
		zap.Bool("resolve_pass", res.ResolveGate.Pass),
		zap.String("reason", string(res.ResolveGate.Reason)),
	)
	return res, nil
}

// seed writes parser fields whose key, or alias, is an allow-listed intent
// key. Seeded keys skip dispatch. Externally sourced keys are never seeded.
func (p *Pipeline) seed(b *build) {
	for _, raw := range sortedKeys(b.facts.Fields) {
		key := p.intents.Canonical(raw)
		if b.resolved[key] || !p.intents.Allowed(key) {
			continue
		}
		rule, ok := p.intents.Rule(key)
		if !ok || rule.RuleSpec().External != "" {
			continue
		}
		value := intent.Normalize(rule.RuleSpec(), b.facts.Fields[raw], p.countryCode)
		if !b.fields.Set(key, value) {
			continue
		}
		b.resolved[key] = true
		b.provenance[key] = SourceSeed
		b.result.Audit = append(b.result.Audit, model.AuditEntry{
			Key:          key,
			StrategyUsed: model.StrategySeed,
			OK:           true,
			Confidence:   1,
			Source:       raw,
		})
		metrics.ObserveField(string(model.StrategySeed), true)
	}
	if n := len(b.resolved); n > 0 {
		b.logger.Debug("seeded fields", zap.Int("count", n))
	}
}

// profile runs the evidence and profile stages. Composed values are
// normalized and checked like any generated value. LLM keys take them
// directly; det_then_llm keys keep them as the fallback used when the
// deterministic attempt misses.
func (p *Pipeline) profile(ctx context.Context, b *build) {
	if p.profiles == nil {
		return
	}
	identity := make(model.Fields)
	for k, v := range b.fields {
		if strings.HasPrefix(k, identityPrefix) {
			identity[k] = v
		}
	}

	pr := p.profiles.Build(ctx, b.facts, identity)
	b.result.Stages = append(b.result.Stages, pr.Stages...)
	for _, claim := range pr.Dropped {
		p.recordMiss(ctx, b, misslog.Entry{
			Kind:    misslog.KindDrop,
			Key:     llm.StageProfile,
			Snippet: claim,
			Rule:    llm.StageProfile,
			Reason:  ReasonUnbackedClaim,
		})
	}
	if pr.Profile == nil {
		return
	}

	composed := pr.Profile.Fields()
	b.composed = make(map[string]string)
	for _, key := range sortedKeys(composed) {
		if b.resolved[key] || !p.intents.Allowed(key) {
			continue
		}
		rule, ok := p.intents.Rule(key)
		if !ok {
			continue
		}
		switch rule.(type) {
		case intent.LLM, intent.DetThenLLM:
		default:
			continue
		}

		value, reason := p.accept(rule, composed[key])
		if reason != "" {
			p.recordMiss(ctx, b, misslog.Entry{
				Kind:    misslog.KindDrop,
				Key:     key,
				Snippet: truncate(composed[key], snippetLength),
				Rule:    llm.StageProfile,
				Reason:  reason,
			})
			continue
		}
		if _, ok := rule.(intent.DetThenLLM); ok {
			b.composed[key] = value
			continue
		}

		if !b.fields.Set(key, value) {
			continue
		}
		b.resolved[key] = true
		b.provenance[key] = llm.StageProfile
		b.result.Audit = append(b.result.Audit, model.AuditEntry{
			Key:          key,
			StrategyUsed: model.StrategyProfile,
			OK:           true,
			Source:       llm.StageProfile,
		})
		metrics.ObserveField(string(model.StrategyProfile), true)
	}
}

// prefetchFrame asks the model for every unresolved key it could be asked
// about, in one propose/verify round
func (p *Pipeline) prefetchFrame(ctx context.Context, b *build) {
	if !p.prefetch || !p.proposer.Enabled() {
		return
	}
	keys := p.llmKeys(b)
	if len(keys) == 0 {
		return
	}
	res := p.proposer.Resolve(ctx, keys, b.facts)
	b.frameDone = true
	b.frame = res.Values
	b.frameErr = res.Reason
	b.result.Discrepancies = append(b.result.Discrepancies, res.Discrepancies...)
	if res.Reason != "" {
		b.logger.Warn("frame prefetch failed", zap.String("reason", res.Reason))
	}
}

func (p *Pipeline) llmKeys(b *build) []llm.KeySpec {
	var out []llm.KeySpec
	for _, key := range p.intents.Keys() {
		if _, ok := b.composed[key]; ok || b.resolved[key] {
			continue
		}
		rule, _ := p.intents.Rule(key)
		if prompt, ok := intent.PromptOf(rule); ok {
			out = append(out, keySpec(key, prompt, rule))
		}
	}
	return out
}

// dispatch resolves every unresolved key in category order. Derived keys run
// after the others so their dependencies are in place.
func (p *Pipeline) dispatch(ctx context.Context, b *build) {
	var derived []string
	for _, key := range p.intents.Keys() {
		if b.resolved[key] {
			continue
		}
		rule, _ := p.intents.Rule(key)
		if _, ok := rule.(intent.Derive); ok {
			derived = append(derived, key)
			continue
		}
		p.record(ctx, b, key, rule, p.resolveKey(ctx, b, key, rule))
	}
	for _, key := range derived {
		rule, _ := p.intents.Rule(key)
		p.record(ctx, b, key, rule, p.resolveKey(ctx, b, key, rule))
	}
}

func (p *Pipeline) resolveKey(ctx context.Context, b *build, key string, rule intent.Rule) attempt {
	spec := rule.RuleSpec()
	if spec.External != "" {
		return p.external(ctx, b, spec)
	}

	switch r := rule.(type) {
	case intent.Deterministic:
		return attempt{strategy: model.StrategyDet, out: p.resolver.Resolve(r, b.facts, b.bag)}
	case intent.LLM:
		return attempt{strategy: model.StrategyLLM, out: p.llmOutcome(ctx, b, key, r.Prompt, r)}
	case intent.DetThenLLM:
		if out := p.resolver.Resolve(r, b.facts, b.bag); out.OK() {
			return attempt{strategy: model.StrategyDet, out: out}
		}
		if v, ok := b.composed[key]; ok {
			return attempt{strategy: model.StrategyProfile, out: resolve.Outcome{Value: v, Source: llm.StageProfile}}
		}
		out := p.llmOutcome(ctx, b, key, r.Prompt, r)
		if out.OK() {
			return attempt{strategy: model.StrategyLLM, out: out}
		}
		return attempt{strategy: model.StrategyDetThenLLM, out: out}
	case intent.Derive:
		out := p.deriver.Derive(r.Formula, resolve.DeriveInput{Fields: b.fields, Provenance: b.provenance})
		return attempt{strategy: model.StrategyDerive, out: out}
	default:
		return attempt{out: resolve.Outcome{Reason: ReasonUnsupportedRule}}
	}
}

// llmOutcome takes the prefetched frame value when a frame was requested,
// otherwise runs a per-key propose/verify round
func (p *Pipeline) llmOutcome(ctx context.Context, b *build, key, prompt string, rule intent.Rule) resolve.Outcome {
	var value, source string
	switch {
	case b.frameDone:
		if b.frameErr != "" {
			return resolve.Outcome{Reason: b.frameErr}
		}
		value, source = b.frame[key], SourceFrame
	case !p.proposer.Enabled():
		return resolve.Outcome{Reason: llm.ReasonNoProvider}
	default:
		res := p.proposer.Resolve(ctx, []llm.KeySpec{keySpec(key, prompt, rule)}, b.facts)
		b.result.Discrepancies = append(b.result.Discrepancies, res.Discrepancies...)
		if res.Reason != "" {
			return resolve.Outcome{Reason: res.Reason}
		}
		value, source = res.Values[key], SourceLLM
	}

	value, reason := p.accept(rule, value)
	if reason != "" {
		return resolve.Outcome{Reason: reason}
	}
	return resolve.Outcome{Value: value, Source: source}
}

// accept normalizes a generated value and checks it against the rule's
// constraints. A non-empty reason means the value is unusable.
func (p *Pipeline) accept(rule intent.Rule, value string) (string, string) {
	spec := rule.RuleSpec()
	value = intent.Normalize(spec, value, p.countryCode)
	if value == "" {
		return "", llm.ReasonNotProposed
	}
	if !spec.Constraints.Satisfies(value) {
		return "", resolve.ReasonConstraintFailed
	}
	return value, ""
}

// external resolves registry-backed keys. The lookup runs at most once per
// build and never retries.
func (p *Pipeline) external(ctx context.Context, b *build, spec intent.Spec) attempt {
	a := attempt{strategy: model.StrategyExternal}
	if spec.External != intent.ExternalRegistry || p.registry == nil {
		a.out.Reason = ReasonLookupDisabled
		return a
	}

	if !b.lookupDone {
		b.lookupDone = true
		q := registry.Query{
			BusinessName: b.fields[resolve.KeyBusinessName],
			TradingName:  b.fields[keyTradingName],
			State:        b.fields[keyState],
		}
		entity, err := p.registry.Lookup(ctx, q)
		switch {
		case errors.Is(err, registry.ErrNotFound):
			b.lookupErr = ReasonLookupNotFound
		case err != nil:
			b.lookupErr = ReasonLookupFailed
			b.logger.Warn("registry lookup failed", zap.Error(err))
		default:
			b.entity = entity
		}
	}

	if b.entity == nil {
		a.out.Reason = b.lookupErr
		return a
	}
	value := intent.Normalize(spec, b.entity.ID, p.countryCode)
	if !spec.Constraints.Satisfies(value) {
		a.out.Reason = resolve.ReasonConstraintFailed
		return a
	}
	a.out = resolve.Outcome{Value: value, Source: b.entity.Source, Confidence: 1}
	return a
}

// record applies accept/reject, appends the audit entry and reports misses
func (p *Pipeline) record(ctx context.Context, b *build, key string, rule intent.Rule, a attempt) {
	entry := model.AuditEntry{
		Key:          key,
		StrategyUsed: a.strategy,
		Confidence:   a.out.Confidence,
		Reason:       a.out.Reason,
		Source:       a.out.Source,
	}
	if a.out.MatchedKey != "" && a.out.MatchedKey != key {
		entry.Source = a.out.Source + ":" + a.out.MatchedKey
	}

	value := strings.TrimSpace(a.out.Value)
	switch {
	case value != "" && !p.intents.Allowed(key):
		entry.Reason = ReasonNotAllowed
	case b.fields.Set(key, value):
		entry.OK = true
		b.resolved[key] = true
		if a.out.Source != "" {
			b.provenance[key] = a.out.Source
		}
	}
	metrics.ObserveField(string(a.strategy), entry.OK)

	if !entry.OK {
		p.recordMiss(ctx, b, p.missEntry(b, key, rule, entry.Reason))
		if entry.Confidence > PromoteConfidence {
			entry.OK = true
		}
	}
	b.result.Audit = append(b.result.Audit, entry)
}

// missEntry suggests the nearest raw key below the fuzzy threshold so the
// intent map can be tuned offline
func (p *Pipeline) missEntry(b *build, key string, rule intent.Rule, reason string) misslog.Entry {
	e := misslog.Entry{
		Kind:   misslog.KindMiss,
		Key:    key,
		Rule:   intent.StrategyName(rule),
		Reason: reason,
	}
	candidates := append(sortedKeys(b.facts.Fields), b.bag.Keys()...)
	if m, ok := resolve.BestMatch(key, candidates, suggestionThreshold); ok {
		e.Suggestion = m.Key
		snippet := b.facts.Fields[m.Key]
		if snippet == "" {
			snippet = b.bag[m.Key].Value
		}
		e.Snippet = truncate(snippet, snippetLength)
	}
	return e
}

// enforce runs policy and reports every hard rejection to the drop log
func (p *Pipeline) enforce(ctx context.Context, b *build) {
	res := policy.Enforce(b.fields, p.intents)
	b.fields = res.Clean
	b.result.Rejections = res.Rejections
	b.result.Warnings = res.Warnings

	for _, r := range res.Rejections {
		delete(b.provenance, r.Key)
		metrics.ObserveRejection(r.Reason)
		b.logger.Info("policy rejected field",
			zap.String("key", r.Key),
			zap.String("reason", r.Reason),
		)
		rule := ""
		if rr, ok := p.intents.Rule(r.Key); ok {
			rule = intent.StrategyName(rr)
		}
		p.recordMiss(ctx, b, misslog.Entry{
			Kind:    misslog.KindDrop,
			Key:     r.Key,
			Snippet: truncate(r.Value, snippetLength),
			Rule:    rule,
			Reason:  r.Reason,
		})
	}
}

func (p *Pipeline) recordMiss(ctx context.Context, b *build, e misslog.Entry) {
	e.RequestID = b.id
	e.SourceURL = b.facts.SourceURL
	if e.Kind == misslog.KindMiss {
		b.logger.Debug("field unresolved", zap.String("key", e.Key), zap.String("reason", e.Reason))
	}
	_ = p.misses.Append(ctx, e)
}

func keySpec(key, prompt string, rule intent.Rule) llm.KeySpec {
	spec := rule.RuleSpec()
	return llm.KeySpec{
		Key:         key,
		Prompt:      prompt,
		Transforms:  spec.Transforms,
		Constraints: spec.Constraints,
	}
}

func truncate(s string, max int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= max {
		return string(r)
	}
	return strings.TrimSpace(string(r[:max])) + "..."
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
