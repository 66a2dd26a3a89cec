package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/siteintent/internal/intent"
	"github.com/ppiankov/siteintent/internal/model"
)

// scriptedProvider answers each Complete with the next scripted reply
type scriptedProvider struct {
	mu       sync.Mutex
	replies  []scriptedReply
	requests []CompletionRequest
}

type scriptedReply struct {
	content string
	err     error
}

func (s *scriptedProvider) Name() string                         { return "scripted" }
func (s *scriptedProvider) IsAvailable(ctx context.Context) bool { return true }

func (s *scriptedProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if len(s.replies) == 0 {
		return nil, errors.New("no scripted reply")
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	if r.err != nil {
		return nil, r.err
	}
	return &CompletionResponse{Content: r.content}, nil
}

func reply(content string) scriptedReply { return scriptedReply{content: content} }

func TestFilterProposals(t *testing.T) {
	raw := map[string]any{"foo": " a ", "x": "b", "baz": nil}
	got := FilterProposals(raw, []string{"foo", "baz"})

	assert.Equal(t, map[string]string{"foo": "a", "baz": ""}, got)
}

func TestFilterProposals_Coerces(t *testing.T) {
	raw := map[string]any{
		"n":    float64(4.5),
		"b":    true,
		"list": []any{"Sydney", " ", "Parramatta"},
		"obj":  map[string]any{"a": "b"},
	}
	got := FilterProposals(raw, []string{"n", "b", "list", "obj", "missing"})

	assert.Equal(t, "4.5", got["n"])
	assert.Equal(t, "true", got["b"])
	assert.Equal(t, "Sydney, Parramatta", got["list"])
	assert.Equal(t, `{"a":"b"}`, got["obj"])
	_, ok := got["missing"]
	assert.False(t, ok)
}

func TestDiff(t *testing.T) {
	got := Diff(
		map[string]string{"a": "1", "b": "2"},
		map[string]string{"a": "1", "b": "3", "c": "4"},
	)
	assert.Equal(t, []model.Discrepancy{
		{Key: "b", Draft: "2", Verified: "3"},
		{Key: "c", Draft: "", Verified: "4"},
	}, got)
}

func TestProposer_NoProvider(t *testing.T) {
	p := NewProposer(nil, ProposerOptions{})
	assert.False(t, p.Enabled())

	res := p.Resolve(context.Background(), []KeySpec{{Key: "foo"}}, model.RawFacts{})
	assert.Equal(t, ReasonNoProvider, res.Reason)
	assert.Empty(t, res.Values)

	prop := p.Propose(context.Background(), ProposeRequest{Keys: []KeySpec{{Key: "foo"}}})
	assert.True(t, IsNoProvider(prop.Err))
}

func TestProposer_AllowKeysDiscipline(t *testing.T) {
	provider := &scriptedProvider{replies: []scriptedReply{
		reply(`{"foo":"a","x":"b"}`),
		reply(`{"foo":"a","baz":"","x":"c"}`),
	}}
	p := NewProposer(provider, ProposerOptions{})

	keys := []KeySpec{{Key: "foo"}, {Key: "baz"}}
	res := p.Resolve(context.Background(), keys, model.RawFacts{SourceURL: "https://a.example"})

	require.Empty(t, res.Reason)
	assert.Equal(t, map[string]string{"foo": "a", "baz": ""}, res.Values)

	require.Len(t, provider.requests, 2)
	assert.Contains(t, provider.requests[0].Prompt, `ALLOW_KEYS=["foo","baz"]`)
	assert.Contains(t, provider.requests[1].Prompt, "DRAFT:")
	assert.True(t, provider.requests[0].Strict)

	var schema map[string]any
	require.NoError(t, json.Unmarshal(provider.requests[0].Schema, &schema))
	assert.Equal(t, false, schema["additionalProperties"])
	assert.ElementsMatch(t, []any{"foo", "baz"}, schema["required"])
}

func TestProposer_VerifiedValueWins(t *testing.T) {
	provider := &scriptedProvider{replies: []scriptedReply{
		reply(`{"identity_tagline":"Best plumber in Sydney"}`),
		reply("```json\n{\"identity_tagline\":\"Reliable plumbing since 1998\"}\n```"),
	}}
	p := NewProposer(provider, ProposerOptions{})

	res := p.Resolve(context.Background(), []KeySpec{{Key: "identity_tagline"}}, model.RawFacts{})

	assert.Equal(t, "Reliable plumbing since 1998", res.Values["identity_tagline"])
	assert.Equal(t, []model.Discrepancy{{
		Key:      "identity_tagline",
		Draft:    "Best plumber in Sydney",
		Verified: "Reliable plumbing since 1998",
	}}, res.Discrepancies)
}

func TestProposer_VerifyFailureDropsDraft(t *testing.T) {
	provider := &scriptedProvider{replies: []scriptedReply{
		reply(`{"foo":"draft"}`),
		{err: errors.New("timeout")},
	}}
	p := NewProposer(provider, ProposerOptions{})

	res := p.Resolve(context.Background(), []KeySpec{{Key: "foo"}}, model.RawFacts{})
	assert.Equal(t, ReasonVerifyFailed, res.Reason)
	assert.Empty(t, res.Values)
}

func TestProposer_ProposeFailure(t *testing.T) {
	provider := &scriptedProvider{replies: []scriptedReply{reply("not json at all")}}
	p := NewProposer(provider, ProposerOptions{})

	res := p.Resolve(context.Background(), []KeySpec{{Key: "foo"}}, model.RawFacts{})
	assert.Equal(t, ReasonProposeFailed, res.Reason)
	assert.Len(t, provider.requests, 1)
}

func TestProposer_CompactsLargeFacts(t *testing.T) {
	facts := model.RawFacts{TextBlocks: []string{strings.Repeat("word ", 2000)}}
	provider := &scriptedProvider{replies: []scriptedReply{reply(`{"foo":"a"}`), reply(`{"foo":"a"}`)}}
	p := NewProposer(provider, ProposerOptions{TokenBudget: 100})

	res := p.Resolve(context.Background(), []KeySpec{{Key: "foo"}}, facts)
	assert.True(t, res.Compacted)
	assert.Empty(t, res.Discrepancies)
}

func TestBuildFieldPrompt(t *testing.T) {
	keys := []KeySpec{{
		Key:         "content_business_description",
		Prompt:      "two sentences about the business",
		Transforms:  []string{"trim"},
		Constraints: intent.Constraints{MinWords: 25, MaxWords: 200},
	}}
	prompt := buildFieldPrompt(keys, []byte(`{"source_url":"x"}`), nil)

	assert.Contains(t, prompt, "- content_business_description: two sentences about the business (min_words=25; max_words=200; transforms=trim)")
	assert.Contains(t, prompt, `ALLOW_KEYS=["content_business_description"]`)
	assert.Contains(t, prompt, "SOURCE DATA:\n{\"source_url\":\"x\"}")
	assert.NotContains(t, prompt, "DRAFT")
}
