// Package fakes holds deterministic stand-ins for hosted models, for tests.
package fakes

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/llms"
)

// KeywordEmbedder embeds text as keyword counts over a fixed vocabulary,
// plus one small constant dimension so no vector is zero.
type KeywordEmbedder struct {
	Vocabulary []string
	Err        error

	mu    sync.Mutex
	calls int
}

func (e *KeywordEmbedder) embed(text string) []float32 {
	text = strings.ToLower(text)
	v := make([]float32, len(e.Vocabulary)+1)
	for i, word := range e.Vocabulary {
		v[i] = float32(strings.Count(text, word))
	}
	v[len(e.Vocabulary)] = 0.01
	return v
}

func (e *KeywordEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	if e.Err != nil {
		return nil, e.Err
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = e.embed(text)
	}
	return vectors, nil
}

func (e *KeywordEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// Calls returns how many embedding requests were made.
func (e *KeywordEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// LLM answers every prompt with Answer and records the prompts it saw.
type LLM struct {
	Answer string
	Err    error

	mu      sync.Mutex
	prompts []string
}

var _ llms.Model = (*LLM)(nil)

func (l *LLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	var prompt strings.Builder
	for _, m := range messages {
		for _, part := range m.Parts {
			if text, ok := part.(llms.TextContent); ok {
				prompt.WriteString(text.Text)
			}
		}
	}

	l.mu.Lock()
	l.prompts = append(l.prompts, prompt.String())
	l.mu.Unlock()

	if l.Err != nil {
		return nil, l.Err
	}

	opts := llms.CallOptions{}
	for _, opt := range options {
		opt(&opts)
	}
	if opts.StreamingFunc != nil {
		for _, word := range strings.SplitAfter(l.Answer, " ") {
			if err := opts.StreamingFunc(ctx, []byte(word)); err != nil {
				return nil, err
			}
		}
	}

	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: l.Answer, StopReason: "stop"}},
	}, nil
}

func (l *LLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, l, prompt, options...)
}

// Prompts returns every prompt received, in order.
func (l *LLM) Prompts() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.prompts...)
}

// ErrUnavailable is a canned model failure.
var ErrUnavailable = errors.New("model unavailable")
