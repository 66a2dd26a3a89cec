package intent

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const smallMap = `
service_index: [1, 2]
allow: [identity_business_name, identity_phone, "service_{i}_title", theme_accent_color]
aliases:
  phone: identity_phone
  "svc_{i}": "service_{i}_title"
fields:
  theme_accent_color:
    strategy: derive
    derive: { formula: theme_accent }
  identity_phone:
    strategy: det
    priority: required
    constraints: { format: phone }
  identity_business_name:
    strategy: det_then_llm
    priority: required
    llm: { prompt: "name" }
  service_{i}_title:
    strategy: llm
    llm: { prompt: "service {i}" }
  social_links_facebook:
    strategy: det
`

func TestParse_ExpandsAndOrders(t *testing.T) {
	m, err := Parse([]byte(smallMap))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"identity_business_name",
		"identity_phone",
		"social_links_facebook",
		"service_1_title",
		"service_2_title",
		"theme_accent_color",
	}, m.Keys())

	r, ok := m.Rule("service_2_title")
	require.True(t, ok)
	prompt, ok := PromptOf(r)
	require.True(t, ok)
	assert.Equal(t, "service 2", prompt)
	assert.Equal(t, CategoryServices, r.RuleSpec().Category)
}

func TestParse_AllowSetAndAliases(t *testing.T) {
	m, err := Parse([]byte(smallMap))
	require.NoError(t, err)

	assert.True(t, m.Allowed("service_1_title"))
	assert.False(t, m.Allowed("social_links_facebook"))
	assert.Equal(t, "identity_phone", m.Canonical("phone"))
	assert.Equal(t, "service_2_title", m.Canonical("svc_2"))
	assert.Equal(t, "unknown", m.Canonical("unknown"))
	assert.Equal(t, []string{"identity_business_name", "identity_phone"}, m.Required())
}

func TestParse_RuleVariants(t *testing.T) {
	m, err := Parse([]byte(smallMap))
	require.NoError(t, err)

	for _, key := range m.Keys() {
		r, _ := m.Rule(key)
		switch v := r.(type) {
		case Deterministic:
			assert.Contains(t, []string{"identity_phone", "social_links_facebook"}, key)
		case LLM:
			assert.NotEmpty(t, v.Prompt)
		case DetThenLLM:
			assert.Equal(t, "identity_business_name", key)
		case Derive:
			assert.Equal(t, "theme_accent", v.Formula)
		default:
			t.Fatalf("unexpected rule type %T", r)
		}
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "unknown strategy", doc: "fields:\n  a:\n    strategy: magic\n"},
		{name: "derive without formula", doc: "fields:\n  a:\n    strategy: derive\n"},
		{name: "bad regex", doc: "fields:\n  a:\n    strategy: det\n    constraints: { regex: '(' }\n"},
		{name: "bad format", doc: "fields:\n  a:\n    strategy: det\n    constraints: { format: colour }\n"},
		{name: "no fields", doc: "service_index: [1]\n"},
		{name: "not yaml", doc: "fields: [unclosed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFileIsFatal(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoIntentMap)
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "intent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(smallMap), 0o644))

	m, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, m.Keys(), 6)
	assert.Equal(t, []int{1, 2}, m.ServiceIndex())
}

func TestDefault(t *testing.T) {
	m, err := Default()
	require.NoError(t, err)

	assert.True(t, m.Allowed("service_3_description"))
	assert.True(t, m.Nullable("trust_abn"))
	assert.Equal(t, "identity_owner_name", m.Canonical("identity_ownername"))
	assert.Contains(t, m.Required(), "identity_email")

	keys := m.Keys()
	assert.Equal(t, CategoryIdentity, m.CategoryOf(keys[0]))
	assert.Equal(t, CategoryOther, m.CategoryOf(keys[len(keys)-1]))
}
