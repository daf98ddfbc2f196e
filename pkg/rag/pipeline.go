package rag

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tmc/langchaingo/chains"
	"github.com/xhad/ragpage/internal/models"
	"github.com/xhad/ragpage/internal/types"
	"github.com/xhad/ragpage/pkg/store"
)

var ErrNoChunks = errors.New("page produced no text chunks")

// Progress receives a stage name ("load", "split", "store") and the number
// of items it produced. "store" is reported after every batch with the
// running total.
type Progress func(stage string, n int)

type PipelineConfig struct {
	Loader     types.Loader
	Splitter   types.Splitter
	Store      store.Store
	Chain      *RetrievalChain
	OnProgress Progress
	BatchSize  int // chunks embedded and stored per call
}

// Pipeline wires page loading, splitting and storage to a retrieval chain.
type Pipeline struct {
	config PipelineConfig

	// ingestMu serialises Ingest so concurrent runs cannot interleave
	// their reset and adds.
	ingestMu sync.Mutex
}

var _ types.Asker = (*Pipeline)(nil)

func NewPipeline(config PipelineConfig) (*Pipeline, error) {
	if config.Loader == nil || config.Splitter == nil || config.Store == nil || config.Chain == nil {
		return nil, errors.New("pipeline needs a loader, splitter, store and chain")
	}
	if config.OnProgress == nil {
		config.OnProgress = func(string, int) {}
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 32
	}
	return &Pipeline{config: config}, nil
}

// Ingest loads the page, splits it and replaces the store's contents with
// the chunks. It returns the number of chunks stored. The store is left
// untouched when loading or splitting fails.
func (p *Pipeline) Ingest(ctx context.Context) (int, error) {
	p.ingestMu.Lock()
	defer p.ingestMu.Unlock()

	docs, err := p.config.Loader.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load page: %w", err)
	}
	p.config.OnProgress("load", len(docs))

	chunks, err := p.config.Splitter.SplitDocuments(docs)
	if err != nil {
		return 0, fmt.Errorf("failed to split documents: %w", err)
	}
	if len(chunks) == 0 {
		return 0, ErrNoChunks
	}
	p.config.OnProgress("split", len(chunks))

	if err := p.config.Store.Reset(ctx); err != nil {
		return 0, fmt.Errorf("failed to reset store: %w", err)
	}

	for start := 0; start < len(chunks); start += p.config.BatchSize {
		end := start + p.config.BatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		if _, err := p.config.Store.AddDocuments(ctx, chunks[start:end]); err != nil {
			return 0, fmt.Errorf("failed to store chunks: %w", err)
		}
		p.config.OnProgress("store", end)
	}

	return len(chunks), nil
}

func (p *Pipeline) Ask(ctx context.Context, question string, opts ...chains.ChainCallOption) (*models.Response, error) {
	return p.config.Chain.Invoke(ctx, question, opts...)
}

// AskAll asks the questions in order and stops at the first failure.
func (p *Pipeline) AskAll(ctx context.Context, questions []string, opts ...chains.ChainCallOption) ([]*models.Response, error) {
	responses := make([]*models.Response, 0, len(questions))
	for _, q := range questions {
		resp, err := p.Ask(ctx, q, opts...)
		if err != nil {
			return responses, fmt.Errorf("question %q: %w", q, err)
		}
		responses = append(responses, resp)
	}
	return responses, nil
}
