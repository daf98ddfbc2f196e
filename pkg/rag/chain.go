package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/chains"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/prompts"
	"github.com/tmc/langchaingo/schema"
	"github.com/xhad/ragpage/internal/models"
)

var ErrEmptyInput = errors.New("question is empty")

// RetrievalChain answers a question by retrieving context documents and
// stuffing them into a single prompt.
type RetrievalChain struct {
	retriever schema.Retriever
	combine   chains.StuffDocuments
}

// NewRetrievalChain builds the chain. template is a Go template that must
// reference {{.context}} and {{.input}}.
func NewRetrievalChain(model llms.Model, retriever schema.Retriever, template string) (*RetrievalChain, error) {
	if model == nil || retriever == nil {
		return nil, errors.New("retrieval chain needs a model and a retriever")
	}

	prompt := prompts.NewPromptTemplate(template, []string{"context", "input"})
	if _, err := prompt.Format(map[string]any{"context": "", "input": ""}); err != nil {
		return nil, fmt.Errorf("invalid prompt template: %w", err)
	}

	return &RetrievalChain{
		retriever: retriever,
		combine:   chains.NewStuffDocuments(chains.NewLLMChain(model, prompt)),
	}, nil
}

// Invoke runs one question through retrieval and generation.
func (c *RetrievalChain) Invoke(ctx context.Context, input string, opts ...chains.ChainCallOption) (*models.Response, error) {
	if strings.TrimSpace(input) == "" {
		return nil, ErrEmptyInput
	}

	docs, err := c.retriever.GetRelevantDocuments(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("retrieving context: %w", err)
	}

	out, err := chains.Call(ctx, c.combine, map[string]any{
		c.combine.InputKey: docs,
		"input":            input,
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("chat error: %w", err)
	}

	answer, ok := out[c.combine.LLMChain.OutputKey].(string)
	if !ok {
		return nil, fmt.Errorf("chat error: unexpected output %T", out[c.combine.LLMChain.OutputKey])
	}

	return &models.Response{
		Input:   input,
		Context: docs,
		Answer:  answer,
	}, nil
}

// FormatSources formats the distinct document sources for citation.
func FormatSources(docs []schema.Document) string {
	resp := models.Response{Context: docs}
	sources := resp.Sources()
	if len(sources) == 0 {
		return ""
	}
	return fmt.Sprintf("\nSources:\n%s", strings.Join(sources, "\n"))
}
