package rag

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/vectorstores"
	"github.com/xhad/ragpage/pkg/config"
	"github.com/xhad/ragpage/pkg/llm"
	"github.com/xhad/ragpage/pkg/loader"
	"github.com/xhad/ragpage/pkg/splitter"
	"github.com/xhad/ragpage/pkg/store"
)

// FromConfig builds every component named in cfg. The caller must Close the
// returned store.
func FromConfig(ctx context.Context, cfg *config.Config, onProgress Progress) (*Pipeline, store.Store, error) {
	model, err := llm.NewModel(ChatConfig(cfg))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize chat model: %w", err)
	}

	embedder, err := llm.NewEmbedder(llm.EmbedderConfig{
		Provider:  cfg.Embeddings.Provider,
		Model:     cfg.Embeddings.Model,
		BaseURL:   cfg.Embeddings.BaseURL,
		APIKey:    cfg.Embeddings.APIKey,
		BatchSize: cfg.Embeddings.BatchSize,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	pageLoader, err := loader.NewWithConfig(loader.LoaderConfig{
		URL:               cfg.Loader.URL,
		Mode:              cfg.Loader.Mode,
		Selector:          cfg.Loader.Selector,
		MaxDepth:          cfg.Loader.MaxDepth,
		RateLimit:         cfg.Loader.RateLimit,
		IgnorePatterns:    cfg.Loader.IgnorePatterns,
		AllowedExtensions: cfg.Loader.AllowedExtensions,
		Timeout:           cfg.Loader.Timeout,
		UserAgent:         cfg.Loader.UserAgent,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize loader: %w", err)
	}

	textSplitter, err := splitter.NewWithConfig(splitter.SplitterConfig{
		ChunkSize:    cfg.Splitter.ChunkSize,
		ChunkOverlap: cfg.Splitter.ChunkOverlap,
		Separators:   cfg.Splitter.Separators,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize splitter: %w", err)
	}

	vectorStore, err := store.Open(ctx, store.StoreConfig{
		Backend:   cfg.Store.Backend,
		URL:       cfg.Store.URL,
		TableName: cfg.Store.TableName,
		VectorDim: cfg.Store.VectorDim,
		BatchSize: cfg.Store.BatchSize,
	}, embedder)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize vector store: %w", err)
	}

	var retrieverOpts []vectorstores.Option
	if cfg.RAG.ScoreThreshold > 0 {
		retrieverOpts = append(retrieverOpts, vectorstores.WithScoreThreshold(cfg.RAG.ScoreThreshold))
	}
	retriever := vectorstores.ToRetriever(vectorStore, cfg.RAG.TopK, retrieverOpts...)

	chain, err := NewRetrievalChain(model, retriever, cfg.RAG.Prompt)
	if err != nil {
		vectorStore.Close()
		return nil, nil, err
	}

	pipeline, err := NewPipeline(PipelineConfig{
		Loader:     pageLoader,
		Splitter:   textSplitter,
		Store:      vectorStore,
		Chain:      chain,
		OnProgress: onProgress,
		BatchSize:  cfg.Store.BatchSize,
	})
	if err != nil {
		vectorStore.Close()
		return nil, nil, err
	}

	return pipeline, vectorStore, nil
}

// ChatConfig maps the llm section of cfg onto the model settings.
func ChatConfig(cfg *config.Config) llm.ChatConfig {
	return llm.ChatConfig{
		Provider:    cfg.LLM.Provider,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
	}
}
