package llm

import (
	"fmt"
	"strings"
	"time"

	"github.com/SaiNageswarS/medicode-agent/retry"
	"github.com/SaiNageswarS/medicode-agent/schema"
)

const (
	ProviderGroq       = "groq"
	ProviderOpenRouter = "openrouter"
	ProviderGemini     = "gemini"
	ProviderAnthropic  = "anthropic"
	ProviderOllama     = "ollama"
)

var constructors = map[string]func(model string, timeout time.Duration) (LLMClient, error){
	ProviderGroq:       NewGroqClient,
	ProviderOpenRouter: NewOpenRouterClient,
	ProviderGemini:     NewGeminiClient,
	ProviderAnthropic:  NewAnthropicClient,
	ProviderOllama:     NewOllamaClient,
}

var credentialEnv = map[string]string{
	ProviderGroq:       "GROQ_API_KEY",
	ProviderOpenRouter: "OPENROUTER_API_KEY",
	ProviderGemini:     "GOOGLE_API_KEY",
	ProviderAnthropic:  "ANTHROPIC_API_KEY",
}

// CredentialEnv names the environment variable holding the provider's API
// key, or "" when the provider needs none.
func CredentialEnv(provider string) string {
	return credentialEnv[normalizeProvider(provider)]
}

// NewClient builds the client for provider with every HTTP call bounded by
// timeout, wrapped in the default retry policy.
func NewClient(provider, model string, timeout time.Duration) (LLMClient, error) {
	ctor, ok := constructors[normalizeProvider(provider)]
	if !ok {
		return nil, fmt.Errorf("%w: unknown LLM provider %q", schema.ErrConfiguration, provider)
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("%w: empty model for provider %q", schema.ErrConfiguration, provider)
	}

	client, err := ctor(model, timeout)
	if err != nil {
		return nil, err
	}
	return WithRetry(client, retry.DefaultPolicy()), nil
}

func normalizeProvider(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}
