package model

import (
	"sort"
	"strings"
	"time"
)

// Fields maps a canonical field key to its resolved value.
// A present key always carries a non-empty trimmed value.
type Fields map[string]string

// Set stores a trimmed value and reports whether it was written.
// Empty values are never stored.
func (f Fields) Set(key, value string) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return false
	}
	f[key] = value
	return true
}

// Has reports whether key holds a value
func (f Fields) Has(key string) bool {
	v, ok := f[key]
	return ok && strings.TrimSpace(v) != ""
}

// Keys returns the populated keys in lexical order
func (f Fields) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a shallow copy
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Strategy names the resolution path that produced (or failed to produce) a value
type Strategy string

const (
	StrategySeed       Strategy = "seed"
	StrategyDet        Strategy = "det"
	StrategyLLM        Strategy = "llm"
	StrategyDetThenLLM Strategy = "det_then_llm"
	StrategyDerive     Strategy = "derive"
	StrategyExternal   Strategy = "external"
	StrategyProfile    Strategy = "profile"
)

// AuditEntry records one field attempt in resolution order
type AuditEntry struct {
	Key          string   `json:"key"`
	StrategyUsed Strategy `json:"strategy_used"`
	OK           bool     `json:"ok"`
	Confidence   float64  `json:"confidence,omitempty"`
	Reason       string   `json:"reason,omitempty"`
	Source       string   `json:"source,omitempty"` // provenance tag or matched raw key
}

// CategoryCoverage is coverage restricted to one field category
type CategoryCoverage struct {
	Category string  `json:"category"`
	Total    int     `json:"total"`
	Present  int     `json:"present"`
	Pct      float64 `json:"pct"`
}

// CoverageReport is recomputed for every build; never cached
type CoverageReport struct {
	Total      int                `json:"total"`
	Present    int                `json:"present"`
	Pct        float64            `json:"pct"`
	Categories []CategoryCoverage `json:"categories,omitempty"`
}

// GateReason is the machine-readable cause of a failed gate
type GateReason string

const (
	ReasonNone                 GateReason = ""
	ReasonMissingRequired      GateReason = "missing_required"
	ReasonInsufficientCoverage GateReason = "insufficient_coverage"
	ReasonResolveFailed        GateReason = "resolve_failed"
	ReasonThinPayload          GateReason = "thin_payload"
)

// GateDecision is a pure function of coverage and required-field presence
type GateDecision struct {
	Pass    bool       `json:"pass"`
	Reason  GateReason `json:"reason,omitempty"`
	Missing []string   `json:"missing,omitempty"`
	Signal  Signal     `json:"signal"`
}

// Signal is a transparent diagnostic with the data that produced it
type Signal struct {
	Type        SignalType     `json:"type"`
	Severity    SignalSeverity `json:"severity"`
	Description string         `json:"description"`
	Data        map[string]any `json:"data,omitempty"`
}

// SignalType classifies a diagnostic signal
type SignalType string

const (
	SignalCoverage     SignalType = "coverage"
	SignalResolveGate  SignalType = "resolve_gate"
	SignalPublishGate  SignalType = "publish_gate"
	SignalThinPayload  SignalType = "thin_payload"
	SignalPolicyReject SignalType = "policy_reject"
)

// SignalSeverity indicates the importance of the signal
type SignalSeverity string

const (
	SeverityInfo     SignalSeverity = "info"
	SeverityWarning  SignalSeverity = "warning"
	SeverityCritical SignalSeverity = "critical"
)

// Rejection is a value nulled by policy enforcement
type Rejection struct {
	Key    string `json:"key"`
	Value  string `json:"value"`
	Reason string `json:"reason"`
}

// Warning is a soft constraint violation; the value was kept
type Warning struct {
	Key    string `json:"key"`
	Reason string `json:"reason"`
}

// Discrepancy is a field the verify pass changed
type Discrepancy struct {
	Key      string `json:"key"`
	Draft    string `json:"draft"`
	Verified string `json:"verified"`
}

// StageStatus reports the outcome of an optional LLM stage
type StageStatus struct {
	Stage   string `json:"stage"`
	OK      bool   `json:"ok"`
	Skipped bool   `json:"skipped,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// BuildResult is everything one build request produces
type BuildResult struct {
	RequestID     string            `json:"request_id"`
	SourceURL     string            `json:"source_url,omitempty"`
	BuiltAt       time.Time         `json:"built_at"`
	Fields        Fields            `json:"fields"`
	Audit         []AuditEntry      `json:"audit"`
	Rejections    []Rejection       `json:"rejections,omitempty"`
	Warnings      []Warning         `json:"warnings,omitempty"`
	Discrepancies []Discrepancy     `json:"discrepancies,omitempty"`
	Stages        []StageStatus     `json:"stages,omitempty"`
	Coverage      CoverageReport    `json:"coverage"`
	ResolveGate   GateDecision      `json:"resolve_gate"`
	PublishGate   *GateDecision     `json:"publish_gate,omitempty"`
	Provenance    map[string]string `json:"provenance,omitempty"`
}
