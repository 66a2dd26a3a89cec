package llm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ppiankov/siteintent/internal/worker"
)

// Provider names accepted in configuration
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
)

// backend describes how one provider is built and where its credentials
// come from when the config leaves them unset
type backend struct {
	build  func(Config) (Provider, error)
	keyEnv string
	urlEnv string
}

var backends = map[string]backend{
	ProviderOpenAI: {
		build: func(c Config) (Provider, error) {
			p, err := NewOpenAIProvider(c)
			if err != nil {
				return nil, err
			}
			return p, nil
		},
		keyEnv: "OPENAI_API_KEY",
	},
	ProviderAnthropic: {
		build: func(c Config) (Provider, error) {
			p, err := NewAnthropicProvider(c)
			if err != nil {
				return nil, err
			}
			return p, nil
		},
		keyEnv: "ANTHROPIC_API_KEY",
	},
	ProviderOllama: {
		build: func(c Config) (Provider, error) {
			p, err := NewOllamaProvider(c)
			if err != nil {
				return nil, err
			}
			return p, nil
		},
		urlEnv: "OLLAMA_BASE_URL",
	},
}

var providerAliases = map[string]string{"claude": ProviderAnthropic}

// CanonicalProvider lowercases name and resolves aliases ("claude")
func CanonicalProvider(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if alias, ok := providerAliases[name]; ok {
		return alias
	}
	return name
}

// ProviderEnv names the environment variables that supply the API key and
// base URL of provider. Either may be empty.
func ProviderEnv(provider string) (keyEnv, urlEnv string) {
	b := backends[CanonicalProvider(provider)]
	return b.keyEnv, b.urlEnv
}

// RequiresAPIKey reports whether provider cannot run without an API key
func RequiresAPIKey(provider string) bool {
	keyEnv, _ := ProviderEnv(provider)
	return keyEnv != ""
}

// NewProvider builds the configured provider behind limiter. An empty
// provider name disables generation and returns nil: proposals and profile
// stages then record no_provider or no_api_key.
func NewProvider(config Config, limiter *worker.Limiter) (Provider, error) {
	name := CanonicalProvider(config.Provider)
	if name == "" {
		return nil, nil
	}
	b, ok := backends[name]
	if !ok {
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: %s)", config.Provider, strings.Join(providerNames(), ", "))
	}
	p, err := b.build(config)
	if err != nil {
		return nil, fmt.Errorf("%s provider: %w", name, err)
	}
	return NewThrottled(p, limiter), nil
}

func providerNames() []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
