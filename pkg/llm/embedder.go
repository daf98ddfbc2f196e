package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
)

type EmbedderConfig struct {
	Provider   string
	Model      string
	BaseURL    string
	APIKey     string
	BatchSize  int
	HTTPClient *http.Client
}

// NewEmbedder returns a batching embedder backed by the configured provider.
func NewEmbedder(config EmbedderConfig) (embeddings.Embedder, error) {
	if config.Provider == "" {
		config.Provider = ProviderOpenAI
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 512
	}

	var client embeddings.EmbedderClient
	switch config.Provider {
	case ProviderOpenAI:
		c, err := NewOpenAIClient(config)
		if err != nil {
			return nil, err
		}
		client = c

	case ProviderOllama:
		if config.Model == "" {
			config.Model = "nomic-embed-text:latest"
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
		c, err := ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embedder: %w", err)
		}
		client = c

	default:
		return nil, fmt.Errorf("unknown embeddings provider %q", config.Provider)
	}

	return embeddings.NewEmbedder(client,
		embeddings.WithBatchSize(config.BatchSize),
		embeddings.WithStripNewLines(true),
	)
}

// OpenAIClient calls an OpenAI-compatible embeddings endpoint.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

func NewOpenAIClient(config EmbedderConfig) (*OpenAIClient, error) {
	if config.APIKey == "" {
		return nil, errors.New("OPENAI_API_KEY is not set")
	}
	if config.Model == "" {
		config.Model = string(openai.AdaEmbeddingV2)
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	if config.HTTPClient != nil {
		clientConfig.HTTPClient = config.HTTPClient
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientConfig),
		model:  config.Model,
	}, nil
}

// CreateEmbedding embeds texts in one request. Vectors are returned in input
// order.
func (c *OpenAIClient) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(c.model),
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("embeddings request: %w", err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embeddings request: got %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("embeddings request: index %d out of range", d.Index)
		}
		v := make([]float32, len(d.Embedding))
		for i := range d.Embedding {
			v[i] = float32(d.Embedding[i])
		}
		vectors[d.Index] = v
	}

	for i, v := range vectors {
		if v == nil {
			return nil, fmt.Errorf("embeddings request: missing vector for input %d", i)
		}
	}

	return vectors, nil
}
