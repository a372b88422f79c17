package ai

import (
	"context"
	"fmt"
	"strings"
)

// TextGenerator generates text from a system prompt and user prompt.
// All LLM providers (Gemini, Ollama, OpenAI-compatible) implement this interface.
type TextGenerator interface {
	GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// GeneratorConfig selects and configures an LLM provider.
type GeneratorConfig struct {
	Provider    string // gemini | ollama | openai-compat
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
}

// NewTextGenerator builds the TextGenerator named by cfg.Provider.
func NewTextGenerator(cfg GeneratorConfig) (TextGenerator, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	switch provider {
	case "gemini":
		return NewGeminiGenerator(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Temperature)
	case "", "ollama":
		return NewOllamaGenerator(cfg.BaseURL, cfg.Model, cfg.Temperature)
	case "openai-compat", "openai":
		return NewOpenAICompatGenerator(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.Temperature)
	default:
		return nil, fmt.Errorf("unknown generation provider: %s", provider)
	}
}
