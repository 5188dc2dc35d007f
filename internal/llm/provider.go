package llm

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Harshitk-cp/chainwatch/internal/domain"
)

// Provider constants
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderMock      = "mock"
)

// RateLimiter gates calls to a named external service.
type RateLimiter interface {
	Acquire(ctx context.Context, service string) error
}

type completer interface {
	complete(ctx context.Context, prompt string) (string, error)
}

// Compiler turns mission text into a plan using a hosted model.
type Compiler struct {
	provider string
	backend  completer
	limiter  RateLimiter
}

// NewClient creates a plan compiler for the provider name.
// Returns an error if the provider is unknown or the API key is empty (except for mock).
func NewClient(provider, apiKey string, limiter RateLimiter) (domain.PlanCompiler, error) {
	switch provider {
	case ProviderOpenAI:
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for OpenAI provider")
		}
		return newCompiler(provider, NewOpenAIClient(apiKey), limiter), nil

	case ProviderAnthropic:
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is required for Anthropic provider")
		}
		return newCompiler(provider, NewAnthropicClient(apiKey), limiter), nil

	case ProviderGemini:
		if apiKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is required for Gemini provider")
		}
		return newCompiler(provider, NewGeminiClient(apiKey), limiter), nil

	case ProviderMock:
		return NewMockClient(), nil

	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (valid options: openai, anthropic, gemini, mock)", provider)
	}
}

func newCompiler(provider string, backend completer, limiter RateLimiter) *Compiler {
	return &Compiler{provider: provider, backend: backend, limiter: limiter}
}

func (c *Compiler) CompilePlan(ctx context.Context, mission string) (*domain.Plan, error) {
	if c.limiter != nil {
		if err := c.limiter.Acquire(ctx, c.provider); err != nil {
			return nil, fmt.Errorf("wait for %s rate limit: %w", c.provider, err)
		}
	}

	result, err := c.backend.complete(ctx, fmt.Sprintf(missionPrompt, supportedChainList(), mission))
	if err != nil {
		return nil, fmt.Errorf("compile plan: %w", err)
	}
	return parsePlan(result)
}

func supportedChainList() string {
	chains := make([]string, 0, len(domain.SupportedChains))
	for c := range domain.SupportedChains {
		chains = append(chains, string(c))
	}
	sort.Strings(chains)
	return strings.Join(chains, ", ")
}
