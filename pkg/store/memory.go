package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
)

var (
	ErrNoEmbedder            = errors.New("vector store has no embedder")
	ErrInvalidScoreThreshold = errors.New("score threshold must be between 0 and 1")
	ErrDimensionMismatch     = errors.New("embedding dimension mismatch")
)

type memoryEntry struct {
	id     string
	doc    schema.Document
	vector []float32
}

// Memory is an in-process vector store ranked by cosine similarity. It is
// safe for concurrent use.
type Memory struct {
	embedder embeddings.Embedder

	mu      sync.RWMutex
	entries []memoryEntry
	dim     int
}

var _ vectorstores.VectorStore = (*Memory)(nil)

func NewMemory(embedder embeddings.Embedder) *Memory {
	return &Memory{embedder: embedder}
}

// FromDocuments creates a Memory store holding docs.
func FromDocuments(ctx context.Context, docs []schema.Document, embedder embeddings.Embedder) (*Memory, error) {
	m := NewMemory(embedder)
	if _, err := m.AddDocuments(ctx, docs); err != nil {
		return nil, err
	}
	return m, nil
}

// AddDocuments embeds docs and stores them, returning their new ids.
func (m *Memory) AddDocuments(ctx context.Context, docs []schema.Document, options ...vectorstores.Option) ([]string, error) {
	opts := m.getOptions(options...)
	if opts.Embedder == nil {
		return nil, ErrNoEmbedder
	}
	if len(docs) == 0 {
		return nil, nil
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.PageContent
	}

	vectors, err := opts.Embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}
	if len(vectors) != len(docs) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d documents", len(vectors), len(docs))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	dim := m.dim
	for _, v := range vectors {
		if dim == 0 {
			dim = len(v)
		}
		if len(v) != dim || dim == 0 {
			return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(v), dim)
		}
	}
	m.dim = dim

	ids := make([]string, len(docs))
	for i, doc := range docs {
		ids[i] = uuid.NewString()
		m.entries = append(m.entries, memoryEntry{
			id:     ids[i],
			doc:    doc,
			vector: vectors[i],
		})
	}

	return ids, nil
}

// SimilaritySearch returns up to numDocuments documents most similar to
// query, best first. Each result has Score set to its cosine similarity.
func (m *Memory) SimilaritySearch(ctx context.Context, query string, numDocuments int, options ...vectorstores.Option) ([]schema.Document, error) {
	opts := m.getOptions(options...)
	if opts.Embedder == nil {
		return nil, ErrNoEmbedder
	}
	if opts.ScoreThreshold < 0 || opts.ScoreThreshold > 1 {
		return nil, ErrInvalidScoreThreshold
	}
	if numDocuments <= 0 {
		return nil, nil
	}

	queryVector, err := opts.Embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.entries) == 0 {
		return nil, nil
	}
	if len(queryVector) != m.dim {
		return nil, fmt.Errorf("%w: query has %d, store has %d", ErrDimensionMismatch, len(queryVector), m.dim)
	}

	type scored struct {
		entry *memoryEntry
		score float32
	}

	results := make([]scored, 0, len(m.entries))
	for i := range m.entries {
		score := cosineSimilarity(queryVector, m.entries[i].vector)
		if score < opts.ScoreThreshold {
			continue
		}
		results = append(results, scored{entry: &m.entries[i], score: score})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].score > results[j].score
	})

	if numDocuments < len(results) {
		results = results[:numDocuments]
	}

	docs := make([]schema.Document, len(results))
	for i, r := range results {
		metadata := make(map[string]any, len(r.entry.doc.Metadata))
		for k, v := range r.entry.doc.Metadata {
			metadata[k] = v
		}
		docs[i] = schema.Document{
			PageContent: r.entry.doc.PageContent,
			Metadata:    metadata,
			Score:       r.score,
		}
	}

	return docs, nil
}

// Len returns the number of stored documents.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Reset removes every document, so the next add may use a new dimension.
func (m *Memory) Reset(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = nil
	m.dim = 0
	return nil
}

func (m *Memory) Close() {}

func (m *Memory) getOptions(options ...vectorstores.Option) vectorstores.Options {
	opts := vectorstores.Options{}
	for _, opt := range options {
		opt(&opts)
	}
	if opts.Embedder == nil {
		opts.Embedder = m.embedder
	}
	return opts
}

// cosineSimilarity returns a value in [-1, 1]; 0 when either vector is zero.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
