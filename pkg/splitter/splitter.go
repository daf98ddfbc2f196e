package splitter

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"
)

type SplitterConfig struct {
	ChunkSize    int
	ChunkOverlap int
	Separators   []string
}

// Splitter breaks documents into overlapping chunks small enough to embed.
type Splitter struct {
	config   SplitterConfig
	splitter textsplitter.RecursiveCharacter
}

func NewWithConfig(config SplitterConfig) (*Splitter, error) {
	if config.ChunkSize == 0 {
		config.ChunkSize = 100
	}
	if config.ChunkOverlap == 0 && config.ChunkSize > 20 {
		config.ChunkOverlap = 20
	}
	if len(config.Separators) == 0 {
		config.Separators = []string{"\n\n", "\n", " ", ""}
	}

	if config.ChunkSize < 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", config.ChunkSize)
	}
	if config.ChunkOverlap < 0 || config.ChunkOverlap >= config.ChunkSize {
		return nil, fmt.Errorf("chunk overlap %d must be non-negative and less than chunk size %d",
			config.ChunkOverlap, config.ChunkSize)
	}

	return &Splitter{
		config: config,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(config.ChunkSize),
			textsplitter.WithChunkOverlap(config.ChunkOverlap),
			textsplitter.WithSeparators(config.Separators),
		),
	}, nil
}

// SplitDocuments splits every document and returns the chunks in order. Each
// chunk carries a copy of its parent's metadata plus its "chunk" index.
func (s *Splitter) SplitDocuments(docs []schema.Document) ([]schema.Document, error) {
	var chunks []schema.Document

	for _, doc := range docs {
		if strings.TrimSpace(doc.PageContent) == "" {
			continue
		}

		texts, err := s.splitter.SplitText(doc.PageContent)
		if err != nil {
			return nil, fmt.Errorf("splitting %v: %w", doc.Metadata["source"], err)
		}

		for i, text := range texts {
			metadata := make(map[string]any, len(doc.Metadata)+1)
			for k, v := range doc.Metadata {
				metadata[k] = v
			}
			metadata["chunk"] = i

			chunks = append(chunks, schema.Document{
				PageContent: text,
				Metadata:    metadata,
			})
		}
	}

	return chunks, nil
}
