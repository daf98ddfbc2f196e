package types

import (
	"context"

	"github.com/tmc/langchaingo/chains"
	"github.com/tmc/langchaingo/schema"
	"github.com/xhad/ragpage/internal/models"
)

// Core interfaces
type Loader interface {
	Load(ctx context.Context) ([]schema.Document, error)
}

type Splitter interface {
	SplitDocuments(docs []schema.Document) ([]schema.Document, error)
}

// Asker is the surface the CLI and the websocket server drive.
type Asker interface {
	Ingest(ctx context.Context) (int, error)
	Ask(ctx context.Context, question string, opts ...chains.ChainCallOption) (*models.Response, error)
}
