package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoProvider is returned when a generative stage runs without a configured provider
var ErrNoProvider = errors.New("no llm provider configured")

// Provider defines the interface for LLM providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// Complete sends one prompt and returns the raw model text
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// CompletionRequest is one structured-output request
type CompletionRequest struct {
	// System is the instruction block
	System string

	// Prompt is the user message
	Prompt string

	// SchemaName labels Schema for providers that need a name
	SchemaName string

	// Schema is the JSON schema the response must follow; nil means "any JSON object"
	Schema json.RawMessage

	// Strict asks the provider to enforce Schema exactly where supported
	Strict bool

	// Model is the specific model to use (provider-specific)
	Model string

	// MaxTokens limits the response length
	MaxTokens int
}

// CompletionResponse is the model's raw answer
type CompletionResponse struct {
	Content    string
	Model      string
	TokensUsed int
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "anthropic", "ollama", ""
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI/Anthropic
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama)
	BaseURL string

	// Timeout for API requests
	Timeout int // seconds

	// MaxTokens for response generation
	MaxTokens int

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:  "", // Disabled by default
		Timeout:   15,
		MaxTokens: 2000,
	}
}

// DecodeJSON extracts the first JSON object from model text (tolerating
// code fences and prose around it) and decodes it into v.
func DecodeJSON(content string, v any, disallowUnknown bool) error {
	raw := extractJSONObject(content)
	if raw == "" {
		return fmt.Errorf("no JSON object in response")
	}
	dec := json.NewDecoder(strings.NewReader(raw))
	if disallowUnknown {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func extractJSONObject(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	start := strings.IndexByte(content, '{')
	end := strings.LastIndexByte(content, '}')
	if start < 0 || end < start {
		return ""
	}
	return content[start : end+1]
}

func schemaInstruction(req CompletionRequest) string {
	if len(req.Schema) == 0 {
		return "Respond with a single JSON object and nothing else."
	}
	return "Respond with a single JSON object that validates against this JSON schema and nothing else:\n" + string(req.Schema)
}
