package store

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/vectorstores"
)

const (
	BackendMemory   = "memory"
	BackendPGVector = "pgvector"
)

// Store is a vector store whose contents can be replaced and which owns
// resources to release.
type Store interface {
	vectorstores.VectorStore
	// Reset removes every stored document.
	Reset(ctx context.Context) error
	Close()
}

type StoreConfig struct {
	Backend   string
	URL       string
	TableName string
	VectorDim int
	BatchSize int
}

// Open creates the configured backend.
func Open(ctx context.Context, config StoreConfig, embedder embeddings.Embedder) (Store, error) {
	switch config.Backend {
	case "", BackendMemory:
		return NewMemory(embedder), nil
	case BackendPGVector:
		pg, err := NewPGVector(ctx, PGVectorConfig{
			ConnString: config.URL,
			TableName:  config.TableName,
			VectorDim:  config.VectorDim,
			BatchSize:  config.BatchSize,
		}, embedder)
		if err != nil {
			return nil, err
		}
		return pg, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", config.Backend)
}
