package store

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
)

type PGVectorConfig struct {
	ConnString string
	TableName  string
	VectorDim  int
	BatchSize  int
}

// PGVector keeps chunks and their embeddings in a Postgres table using the
// pgvector extension.
type PGVector struct {
	config   PGVectorConfig
	pool     *pgxpool.Pool
	embedder embeddings.Embedder
	table    string
}

var _ vectorstores.VectorStore = (*PGVector)(nil)

func NewPGVector(ctx context.Context, config PGVectorConfig, embedder embeddings.Embedder) (*PGVector, error) {
	if config.TableName == "" {
		config.TableName = "documents"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 1536 // Default for OpenAI embeddings
	}
	if config.BatchSize == 0 {
		config.BatchSize = 100
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	vs := &PGVector{
		config:   config,
		pool:     pool,
		embedder: embedder,
		table:    pgx.Identifier{config.TableName}.Sanitize(),
	}

	if err := vs.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return vs, nil
}

func (vs *PGVector) initialize(ctx context.Context) error {
	_, err := vs.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			url TEXT NOT NULL,
			title TEXT,
			content TEXT,
			chunk_index INTEGER,
			embedding vector(%d),
			metadata JSONB
		)`, vs.table, vs.config.VectorDim)

	_, err = vs.pool.Exec(ctx, createTable)
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s
		ON %s
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)`,
		pgx.Identifier{vs.config.TableName + "_embedding_idx"}.Sanitize(), vs.table)

	_, err = vs.pool.Exec(ctx, createIndex)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

// AddDocuments embeds and upserts docs, one transaction per batch.
func (vs *PGVector) AddDocuments(ctx context.Context, docs []schema.Document, options ...vectorstores.Option) ([]string, error) {
	opts := vs.getOptions(options...)
	if opts.Embedder == nil {
		return nil, ErrNoEmbedder
	}

	ids := make([]string, 0, len(docs))
	for start := 0; start < len(docs); start += vs.config.BatchSize {
		end := start + vs.config.BatchSize
		if end > len(docs) {
			end = len(docs)
		}

		batchIDs, err := vs.storeBatch(ctx, opts.Embedder, docs[start:end])
		if err != nil {
			return ids, err
		}
		ids = append(ids, batchIDs...)
	}

	return ids, nil
}

func (vs *PGVector) storeBatch(ctx context.Context, embedder embeddings.Embedder, docs []schema.Document) ([]string, error) {
	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = sanitizeUTF8(doc.PageContent)
	}

	vectors, err := embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}
	if len(vectors) != len(docs) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d documents", len(vectors), len(docs))
	}

	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, url, title, content, chunk_index, embedding, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata`,
		vs.table)

	ids := make([]string, len(docs))
	for i, doc := range docs {
		if len(vectors[i]) != vs.config.VectorDim {
			return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vectors[i]), vs.config.VectorDim)
		}

		source, _ := doc.Metadata["source"].(string)
		title, _ := doc.Metadata["title"].(string)
		chunk, _ := doc.Metadata["chunk"].(int)

		ids[i] = uuid.NewString()
		_, err = tx.Exec(ctx, stmt,
			ids[i],
			source,
			sanitizeUTF8(title),
			texts[i],
			chunk,
			pgvector.NewVector(vectors[i]),
			doc.Metadata,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert document: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return ids, nil
}

// SimilaritySearch orders rows by cosine distance to the embedded query.
func (vs *PGVector) SimilaritySearch(ctx context.Context, query string, numDocuments int, options ...vectorstores.Option) ([]schema.Document, error) {
	opts := vs.getOptions(options...)
	if opts.Embedder == nil {
		return nil, ErrNoEmbedder
	}
	if opts.ScoreThreshold < 0 || opts.ScoreThreshold > 1 {
		return nil, ErrInvalidScoreThreshold
	}

	queryVector, err := opts.Embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	sql := fmt.Sprintf(`
		SELECT content, metadata, 1 - (embedding <=> $1) AS score
		FROM %s
		WHERE 1 - (embedding <=> $1) >= $2
		ORDER BY embedding <=> $1
		LIMIT $3`,
		vs.table)

	rows, err := vs.pool.Query(ctx, sql, pgvector.NewVector(queryVector), opts.ScoreThreshold, numDocuments)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []schema.Document
	for rows.Next() {
		var doc schema.Document
		var score float64
		if err := rows.Scan(&doc.PageContent, &doc.Metadata, &score); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		doc.Score = float32(score)
		docs = append(docs, doc)
	}

	return docs, rows.Err()
}

// Reset removes every stored row.
func (vs *PGVector) Reset(ctx context.Context) error {
	if _, err := vs.pool.Exec(ctx, "TRUNCATE "+vs.table); err != nil {
		return fmt.Errorf("failed to truncate %s: %w", vs.table, err)
	}
	return nil
}

func (vs *PGVector) Close() {
	if vs.pool != nil {
		vs.pool.Close()
	}
}

func (vs *PGVector) getOptions(options ...vectorstores.Option) vectorstores.Options {
	opts := vectorstores.Options{}
	for _, opt := range options {
		opt(&opts)
	}
	if opts.Embedder == nil {
		opts.Embedder = vs.embedder
	}
	return opts
}

func sanitizeUTF8(s string) string {
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for i, r := range s {
			if r == utf8.RuneError {
				_, size := utf8.DecodeRuneInString(s[i:])
				if size == 1 {
					continue
				}
			}
			v = append(v, r)
		}
		return string(v)
	}
	return s
}
