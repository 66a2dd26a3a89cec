// Package intent holds the declarative field intent map: which fields the
// destination schema accepts and how each one is resolved.
package intent

// Priority marks whether a field must be present for a record to publish
type Priority string

const (
	PriorityRequired Priority = "required"
	PriorityOptional Priority = "optional"
)

// External names the collaborator that owns an externally-sourced field
const ExternalRegistry = "registry"

// Spec is the part of a rule shared by every strategy
type Spec struct {
	Key         string
	Category    string
	Priority    Priority
	Transforms  []string
	Constraints Constraints
	Nullable    bool
	External    string // non-empty: never resolved deterministically
}

// Rule is one of Deterministic, LLM, DetThenLLM or Derive.
// Callers dispatch on the concrete type with a type switch.
type Rule interface {
	RuleSpec() Spec
	sealed()
}

// Deterministic resolves from extracted signals only
type Deterministic struct {
	Spec
}

// LLM resolves with the generative model only
type LLM struct {
	Spec
	Prompt string
}

// DetThenLLM tries deterministic resolution and falls through to the model
type DetThenLLM struct {
	Spec
	Prompt string
}

// Derive computes the value from already-resolved fields
type Derive struct {
	Spec
	Formula string
}

func (r Deterministic) RuleSpec() Spec { return r.Spec }
func (r LLM) RuleSpec() Spec           { return r.Spec }
func (r DetThenLLM) RuleSpec() Spec    { return r.Spec }
func (r Derive) RuleSpec() Spec        { return r.Spec }

func (Deterministic) sealed() {}
func (LLM) sealed()           {}
func (DetThenLLM) sealed()    {}
func (Derive) sealed()        {}

// StrategyName returns the config spelling of a rule's strategy
func StrategyName(r Rule) string {
	switch r.(type) {
	case Deterministic:
		return "det"
	case LLM:
		return "llm"
	case DetThenLLM:
		return "det_then_llm"
	case Derive:
		return "derive"
	default:
		return ""
	}
}

// PromptOf returns the LLM prompt of rules that can reach the model
func PromptOf(r Rule) (string, bool) {
	switch v := r.(type) {
	case LLM:
		return v.Prompt, true
	case DetThenLLM:
		return v.Prompt, true
	default:
		return "", false
	}
}

// Required reports whether the rule is a required field
func Required(r Rule) bool {
	return r.RuleSpec().Priority == PriorityRequired
}
