package config

import (
	"fmt"
	"net/url"
	"strings"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var (
	providers     = []string{"openai", "ollama"}
	loaderModes   = []string{"selector", "main", "readability"}
	storeBackends = []string{"memory", "pgvector"}
)

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate LLM config
	if !oneOf(c.LLM.Provider, providers) {
		errors = append(errors, ValidationError{
			Field:   "llm.provider",
			Message: fmt.Sprintf("unknown provider %q", c.LLM.Provider),
		})
	}

	if c.LLM.Provider == "openai" && c.LLM.APIKey == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.api_key",
			Message: "OPENAI_API_KEY is required for the openai provider",
		})
	}

	if c.LLM.MaxTokens < 0 || c.LLM.MaxTokens > 4096 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tokens",
			Message: "max_tokens must be between 0 and 4096",
		})
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}

	if c.LLM.BaseURL != "" && !isHTTPURL(c.LLM.BaseURL) {
		errors = append(errors, ValidationError{
			Field:   "llm.base_url",
			Message: "invalid base URL",
		})
	}

	// Validate Embeddings config
	if !oneOf(c.Embeddings.Provider, providers) {
		errors = append(errors, ValidationError{
			Field:   "embeddings.provider",
			Message: fmt.Sprintf("unknown provider %q", c.Embeddings.Provider),
		})
	}

	if c.Embeddings.BatchSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "embeddings.batch_size",
			Message: "batch_size must be positive",
		})
	}

	// Validate Loader config
	if !isHTTPURL(c.Loader.URL) {
		errors = append(errors, ValidationError{
			Field:   "loader.url",
			Message: "url must be an absolute http(s) URL",
		})
	}

	if !oneOf(c.Loader.Mode, loaderModes) {
		errors = append(errors, ValidationError{
			Field:   "loader.mode",
			Message: fmt.Sprintf("unknown mode %q", c.Loader.Mode),
		})
	}

	if c.Loader.MaxDepth < 0 {
		errors = append(errors, ValidationError{
			Field:   "loader.max_depth",
			Message: "max_depth must not be negative",
		})
	}

	if c.Loader.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "loader.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	for _, ext := range c.Loader.AllowedExtensions {
		if !strings.HasPrefix(ext, ".") && ext != "" && ext != "/" {
			errors = append(errors, ValidationError{
				Field:   "loader.allowed_extensions",
				Message: fmt.Sprintf("invalid extension format: %s", ext),
			})
		}
	}

	// Validate Splitter config
	if c.Splitter.ChunkSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "splitter.chunk_size",
			Message: "chunk_size must be positive",
		})
	}

	if c.Splitter.ChunkOverlap < 0 || c.Splitter.ChunkOverlap >= c.Splitter.ChunkSize {
		errors = append(errors, ValidationError{
			Field:   "splitter.chunk_overlap",
			Message: "chunk_overlap must be non-negative and less than chunk_size",
		})
	}

	// Validate Store config
	if !oneOf(c.Store.Backend, storeBackends) {
		errors = append(errors, ValidationError{
			Field:   "store.backend",
			Message: fmt.Sprintf("unknown backend %q", c.Store.Backend),
		})
	}

	if c.Store.Backend == "pgvector" {
		if u, err := url.Parse(c.Store.URL); err != nil || c.Store.URL == "" || u.Scheme == "" {
			errors = append(errors, ValidationError{
				Field:   "store.url",
				Message: "invalid database URL",
			})
		}
		if c.Store.VectorDim < 1 {
			errors = append(errors, ValidationError{
				Field:   "store.vector_dim",
				Message: "vector_dim must be positive",
			})
		}
	}

	// Validate RAG config
	if c.RAG.TopK < 1 {
		errors = append(errors, ValidationError{
			Field:   "rag.top_k",
			Message: "top_k must be positive",
		})
	}

	if c.RAG.ScoreThreshold < 0 || c.RAG.ScoreThreshold > 1 {
		errors = append(errors, ValidationError{
			Field:   "rag.score_threshold",
			Message: "score_threshold must be between 0 and 1",
		})
	}

	if !strings.Contains(c.RAG.Prompt, "{{.context}}") || !strings.Contains(c.RAG.Prompt, "{{.input}}") {
		errors = append(errors, ValidationError{
			Field:   "rag.prompt",
			Message: "prompt must reference {{.context}} and {{.input}}",
		})
	}

	return errors
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

func isHTTPURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
