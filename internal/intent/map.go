package intent

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrNoIntentMap is returned when the intent map file does not exist
var ErrNoIntentMap = errors.New("intent map not found")

// IndexPlaceholder marks a repeatable group key ("service_{i}_title")
const IndexPlaceholder = "{i}"

// DefaultServiceIndex is used when the document has no service_index
var DefaultServiceIndex = []int{1, 2, 3}

// document is the YAML shape of the intent map file
type document struct {
	ServiceIndex []int              `yaml:"service_index" validate:"dive,gte=1"`
	Allow        []string           `yaml:"allow"`
	Aliases      map[string]string  `yaml:"aliases"`
	Fields       map[string]ruleDoc `yaml:"fields" validate:"required,min=1,dive"`
}

type ruleDoc struct {
	Strategy    string      `yaml:"strategy" validate:"required,oneof=det llm det_then_llm derive"`
	Category    string      `yaml:"category" validate:"omitempty,oneof=identity socials services content testimonials trust_theme other"`
	Priority    string      `yaml:"priority" validate:"omitempty,oneof=required optional"`
	Transforms  []string    `yaml:"transforms" validate:"dive,oneof=trim lower upper title collapse_spaces digits_only phone url social_url state handle"`
	Constraints Constraints `yaml:"constraints"`
	Nullable    bool        `yaml:"nullable"`
	External    string      `yaml:"external" validate:"omitempty,oneof=registry"`
	LLM         *struct {
		Prompt string `yaml:"prompt"`
	} `yaml:"llm"`
	Derive *struct {
		Formula string `yaml:"formula" validate:"required"`
	} `yaml:"derive"`
}

// Map is the loaded, expanded intent map. It is immutable after Load and
// safe to share across concurrent builds.
type Map struct {
	rules        map[string]Rule
	order        []string
	allow        map[string]struct{}
	allowList    []string
	aliases      map[string]string
	serviceIndex []int
}

// Load reads and compiles the intent map at path
func Load(path string) (*Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoIntentMap, path)
		}
		return nil, fmt.Errorf("read intent map: %w", err)
	}
	return Parse(data)
}

// Parse compiles an intent map document
func Parse(data []byte) (*Map, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode intent map: %w", err)
	}
	if err := validator.New().Struct(doc); err != nil {
		return nil, fmt.Errorf("invalid intent map: %w", err)
	}

	index := doc.ServiceIndex
	if len(index) == 0 {
		index = DefaultServiceIndex
	}

	m := &Map{
		rules:        make(map[string]Rule),
		allow:        make(map[string]struct{}),
		aliases:      make(map[string]string),
		serviceIndex: append([]int(nil), index...),
	}

	for key, rd := range doc.Fields {
		for _, i := range expandIndex(key, index) {
			expanded := expandKey(key, i)
			rule, err := buildRule(expanded, rd, i)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", expanded, err)
			}
			if _, dup := m.rules[expanded]; dup {
				return nil, fmt.Errorf("field %s: declared twice", expanded)
			}
			m.rules[expanded] = rule
		}
	}

	if len(doc.Allow) == 0 {
		for key := range m.rules {
			m.allow[key] = struct{}{}
		}
	} else {
		for _, key := range doc.Allow {
			for _, i := range expandIndex(key, index) {
				m.allow[expandKey(key, i)] = struct{}{}
			}
		}
	}
	for key := range m.allow {
		m.allowList = append(m.allowList, key)
	}
	sort.Strings(m.allowList)

	for from, to := range doc.Aliases {
		for _, i := range expandIndex(from, index) {
			m.aliases[expandKey(from, i)] = expandKey(to, i)
		}
	}

	for key := range m.rules {
		m.order = append(m.order, key)
	}
	sort.Slice(m.order, func(a, b int) bool {
		ra := CategoryRank(m.rules[m.order[a]].RuleSpec().Category)
		rb := CategoryRank(m.rules[m.order[b]].RuleSpec().Category)
		if ra != rb {
			return ra < rb
		}
		return m.order[a] < m.order[b]
	})

	return m, nil
}

func buildRule(key string, rd ruleDoc, index int) (Rule, error) {
	c := rd.Constraints
	if err := c.compile(); err != nil {
		return nil, err
	}

	spec := Spec{
		Key:         key,
		Category:    rd.Category,
		Priority:    Priority(rd.Priority),
		Transforms:  rd.Transforms,
		Constraints: c,
		Nullable:    rd.Nullable,
		External:    rd.External,
	}
	if spec.Category == "" {
		spec.Category = CategoryOf(key)
	}
	if spec.Priority == "" {
		spec.Priority = PriorityOptional
	}

	prompt := ""
	if rd.LLM != nil {
		prompt = expandKey(rd.LLM.Prompt, index)
	}

	switch rd.Strategy {
	case "det":
		return Deterministic{Spec: spec}, nil
	case "llm":
		return LLM{Spec: spec, Prompt: prompt}, nil
	case "det_then_llm":
		return DetThenLLM{Spec: spec, Prompt: prompt}, nil
	case "derive":
		if rd.Derive == nil || rd.Derive.Formula == "" {
			return nil, fmt.Errorf("derive strategy requires derive.formula")
		}
		return Derive{Spec: spec, Formula: rd.Derive.Formula}, nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", rd.Strategy)
	}
}

// expandIndex returns the indexes a key expands over (a single 0 when the key has no placeholder)
func expandIndex(key string, index []int) []int {
	if !strings.Contains(key, IndexPlaceholder) {
		return []int{0}
	}
	return index
}

func expandKey(key string, i int) string {
	if i == 0 {
		return key
	}
	return strings.ReplaceAll(key, IndexPlaceholder, strconv.Itoa(i))
}

// Rule returns the rule for an expanded key
func (m *Map) Rule(key string) (Rule, bool) {
	r, ok := m.rules[key]
	return r, ok
}

// Keys returns every expanded key in dispatch order: category precedence,
// then alphabetical within a category.
func (m *Map) Keys() []string {
	return append([]string(nil), m.order...)
}

// Allowed reports whether the destination schema accepts key
func (m *Map) Allowed(key string) bool {
	_, ok := m.allow[key]
	return ok
}

// AllowSet returns the accepted keys in lexical order
func (m *Map) AllowSet() []string {
	return append([]string(nil), m.allowList...)
}

// Canonical maps an alias onto its canonical key
func (m *Map) Canonical(key string) string {
	if to, ok := m.aliases[key]; ok {
		return to
	}
	return key
}

// Required returns allow-listed required keys in lexical order
func (m *Map) Required() []string {
	var out []string
	for _, key := range m.allowList {
		if r, ok := m.rules[key]; ok && Required(r) {
			out = append(out, key)
		}
	}
	return out
}

// CategoryOf returns the category of key, honouring rule overrides
func (m *Map) CategoryOf(key string) string {
	if r, ok := m.rules[key]; ok {
		return r.RuleSpec().Category
	}
	return CategoryOf(key)
}

// ServiceIndex returns the indexes {i} keys were expanded over
func (m *Map) ServiceIndex() []int {
	return append([]int(nil), m.serviceIndex...)
}

// Nullable reports whether key may be pushed as an explicit null
func (m *Map) Nullable(key string) bool {
	r, ok := m.rules[key]
	return ok && r.RuleSpec().Nullable
}
