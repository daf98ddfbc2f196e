package llm

import (
	"fmt"
	"net/http"

	"github.com/tmc/langchaingo/chains"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// ChatConfig represents the configuration for a chat model.
type ChatConfig struct {
	Provider    string
	Model       string
	Temperature float64
	MaxTokens   int
	BaseURL     string // OpenAI-compatible API or Ollama server URL
	APIKey      string
	HTTPClient  *http.Client
}

// NewModel creates the chat model for the configured provider.
func NewModel(config ChatConfig) (llms.Model, error) {
	if config.Provider == "" {
		config.Provider = ProviderOpenAI
	}
	if config.Temperature < 0 || config.Temperature > 2 {
		return nil, fmt.Errorf("temperature must be between 0 and 2")
	}
	if config.MaxTokens < 0 {
		return nil, fmt.Errorf("max tokens cannot be negative")
	}

	switch config.Provider {
	case ProviderOpenAI:
		if config.Model == "" {
			config.Model = "gpt-3.5-turbo"
		}
		opts := []openai.Option{
			openai.WithModel(config.Model),
			openai.WithToken(config.APIKey),
		}
		if config.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(config.BaseURL))
		}
		if config.HTTPClient != nil {
			opts = append(opts, openai.WithHTTPClient(config.HTTPClient))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize LLM: %w", err)
		}
		return llm, nil

	case ProviderOllama:
		if config.Model == "" {
			config.Model = "mistral"
		}
		if config.BaseURL == "" {
			config.BaseURL = "http://localhost:11434"
		}
		opts := []ollama.Option{
			ollama.WithModel(config.Model),
			ollama.WithServerURL(config.BaseURL),
		}
		if config.HTTPClient != nil {
			opts = append(opts, ollama.WithHTTPClient(config.HTTPClient))
		}
		llm, err := ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize LLM: %w", err)
		}
		return llm, nil
	}

	return nil, fmt.Errorf("unknown chat provider %q", config.Provider)
}

// CallOptions returns the per-call sampling options for a chain call.
func (c ChatConfig) CallOptions() []chains.ChainCallOption {
	opts := []chains.ChainCallOption{chains.WithTemperature(c.Temperature)}
	if c.MaxTokens > 0 {
		opts = append(opts, chains.WithMaxTokens(c.MaxTokens))
	}
	return opts
}
