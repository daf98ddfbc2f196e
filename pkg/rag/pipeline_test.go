package rag_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/vectorstores"
	"github.com/xhad/ragpage/internal/fakes"
	"github.com/xhad/ragpage/pkg/config"
	"github.com/xhad/ragpage/pkg/loader"
	"github.com/xhad/ragpage/pkg/rag"
	"github.com/xhad/ragpage/pkg/splitter"
	"github.com/xhad/ragpage/pkg/store"
)

const climbingPage = `<html><head><title>Hive Climbing</title></head><body>
<h1>Welcome to the Hive</h1>
<p>Our mural shows a turquoise sea under a pink sky.</p>
<p>The bouldering wall has red, green and yellow holds for every level.</p>
</body></html>`

func newPageServer(t *testing.T, page string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(page))
	}))
	t.Cleanup(server.Close)
	return server
}

func newPipeline(t *testing.T, pageURL string, model *fakes.LLM) (*rag.Pipeline, *store.Memory, map[string]int) {
	t.Helper()

	l, err := loader.New(pageURL)
	require.NoError(t, err)
	s, err := splitter.NewWithConfig(splitter.SplitterConfig{ChunkSize: 100, ChunkOverlap: 20})
	require.NoError(t, err)

	m := store.NewMemory(&fakes.KeywordEmbedder{
		Vocabulary: []string{"sea", "sky", "pink", "turquoise", "red", "green", "yellow", "wall"},
	})
	chain, err := rag.NewRetrievalChain(model, vectorstores.ToRetriever(m, 2), config.DefaultPrompt)
	require.NoError(t, err)

	progress := map[string]int{}
	p, err := rag.NewPipeline(rag.PipelineConfig{
		Loader:     l,
		Splitter:   s,
		Store:      m,
		Chain:      chain,
		OnProgress: func(stage string, n int) { progress[stage] = n },
	})
	require.NoError(t, err)
	return p, m, progress
}

func TestPipelineIngestAndAsk(t *testing.T) {
	server := newPageServer(t, climbingPage)
	model := &fakes.LLM{Answer: "The sea is turquoise."}
	p, m, progress := newPipeline(t, server.URL+"/", model)

	ctx := context.Background()
	n, err := p.Ingest(ctx)
	require.NoError(t, err)
	assert.Greater(t, n, 1)
	assert.Equal(t, n, m.Len())
	assert.Equal(t, 1, progress["load"])
	assert.Equal(t, n, progress["split"])
	assert.Equal(t, n, progress["store"])

	responses, err := p.AskAll(ctx, config.DefaultQuestions)
	require.NoError(t, err)
	require.Len(t, responses, 2)

	first := responses[0]
	assert.Equal(t, "what is the color of the sea?", first.Input)
	require.Len(t, first.Context, 2)
	assert.Contains(t, first.Context[0].PageContent, "sea")
	assert.Equal(t, server.URL+"/", first.Context[0].Metadata["source"])
	assert.Equal(t, []string{server.URL + "/"}, first.Sources())

	last := responses[1]
	assert.Equal(t, "what other colors are in there?", last.Input)
	assert.Equal(t, "The sea is turquoise.", last.Answer)

	prompts := model.Prompts()
	require.Len(t, prompts, 2)
	assert.True(t, strings.HasSuffix(prompts[1], "Question: what other colors are in there?"))
}

func TestPipelineReingestReplacesChunks(t *testing.T) {
	server := newPageServer(t, climbingPage)
	p, m, _ := newPipeline(t, server.URL+"/", &fakes.LLM{Answer: "Turquoise."})

	ctx := context.Background()
	first, err := p.Ingest(ctx)
	require.NoError(t, err)
	second, err := p.Ingest(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, second, m.Len())

	resp, err := p.Ask(ctx, config.DefaultQuestions[0])
	require.NoError(t, err)
	require.Len(t, resp.Context, 2)
	assert.NotEqual(t, resp.Context[0].PageContent, resp.Context[1].PageContent)
}

func TestPipelineConcurrentIngest(t *testing.T) {
	server := newPageServer(t, climbingPage)
	p, m, _ := newPipeline(t, server.URL+"/", &fakes.LLM{Answer: "ok"})

	var wg sync.WaitGroup
	counts := make([]int, 8)
	for i := range counts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			n, err := p.Ingest(context.Background())
			assert.NoError(t, err)
			counts[i] = n
		}(i)
	}
	wg.Wait()

	for _, n := range counts {
		assert.Equal(t, counts[0], n)
	}
	assert.Equal(t, counts[0], m.Len())
}

func TestPipelineStoreProgressPerBatch(t *testing.T) {
	server := newPageServer(t, climbingPage)

	l, err := loader.New(server.URL + "/")
	require.NoError(t, err)
	s, err := splitter.NewWithConfig(splitter.SplitterConfig{ChunkSize: 40, ChunkOverlap: 0})
	require.NoError(t, err)
	m := store.NewMemory(&fakes.KeywordEmbedder{Vocabulary: []string{"sea"}})
	chain, err := rag.NewRetrievalChain(&fakes.LLM{}, vectorstores.ToRetriever(m, 2), config.DefaultPrompt)
	require.NoError(t, err)

	var stored []int
	p, err := rag.NewPipeline(rag.PipelineConfig{
		Loader:    l,
		Splitter:  s,
		Store:     m,
		Chain:     chain,
		BatchSize: 1,
		OnProgress: func(stage string, n int) {
			if stage == "store" {
				stored = append(stored, n)
			}
		},
	})
	require.NoError(t, err)

	n, err := p.Ingest(context.Background())
	require.NoError(t, err)
	require.Greater(t, n, 1)
	require.Len(t, stored, n)
	for i, total := range stored {
		assert.Equal(t, i+1, total)
	}
}

func TestPipelineIngestEmptyPage(t *testing.T) {
	server := newPageServer(t, `<html><body>   </body></html>`)
	p, _, _ := newPipeline(t, server.URL+"/", &fakes.LLM{})

	_, err := p.Ingest(context.Background())
	assert.ErrorIs(t, err, rag.ErrNoChunks)
}

func TestPipelineAskAllStopsOnError(t *testing.T) {
	server := newPageServer(t, climbingPage)
	p, _, _ := newPipeline(t, server.URL+"/", &fakes.LLM{Answer: "ok"})

	_, err := p.Ingest(context.Background())
	require.NoError(t, err)

	responses, err := p.AskAll(context.Background(), []string{"sea?", "", "sky?"})
	require.Error(t, err)
	assert.ErrorIs(t, err, rag.ErrEmptyInput)
	assert.Len(t, responses, 1)
}

func TestNewPipelineRequiresComponents(t *testing.T) {
	_, err := rag.NewPipeline(rag.PipelineConfig{})
	assert.Error(t, err)
}

// newOpenAIServer fakes the embeddings and chat completion endpoints of an
// OpenAI-compatible API, plus the page to load.
func newOpenAIServer(t *testing.T, chatCalls *int32) *httptest.Server {
	t.Helper()
	vocabulary := []string{"sea", "sky", "pink", "turquoise", "red", "green", "yellow", "wall"}
	embedder := &fakes.KeywordEmbedder{Vocabulary: vocabulary}

	mux := http.NewServeMux()
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(climbingPage))
	})
	mux.HandleFunc("/v1/embeddings", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		vectors, _ := embedder.EmbedDocuments(r.Context(), req.Input)
		data := make([]map[string]any, len(vectors))
		for i, v := range vectors {
			data[i] = map[string]any{"object": "embedding", "embedding": v, "index": i}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data, "model": "text-embedding-ada-002"})
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(chatCalls, 1)

		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Content any `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-3.5-turbo", req.Model)

		answer := "The sea is turquoise."
		if strings.Contains(strings.ToLower(jsonString(req.Messages)), "other colors") {
			answer = "Pink, red, green and yellow."
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1700000000,
			"model":   req.Model,
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": answer},
				"finish_reason": "stop",
			}},
			"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func jsonString(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func TestFromConfigEndToEnd(t *testing.T) {
	for _, key := range []string{"OPENAI_API_KEY", "OPENAI_BASE_URL", "OLLAMA_BASE_URL", "DATABASE_URL", "RAGPAGE_URL"} {
		t.Setenv(key, "")
	}

	var chatCalls int32
	server := newOpenAIServer(t, &chatCalls)

	cfg, err := config.LoadConfig("")
	require.NoError(t, err)
	cfg.LLM.APIKey = "sk-test"
	cfg.LLM.BaseURL = server.URL + "/v1"
	cfg.Embeddings.APIKey = "sk-test"
	cfg.Embeddings.BaseURL = server.URL + "/v1"
	cfg.Loader.URL = server.URL + "/page"
	require.Empty(t, cfg.Validate())

	ctx := context.Background()
	pipeline, vectorStore, err := rag.FromConfig(ctx, cfg, nil)
	require.NoError(t, err)
	defer vectorStore.Close()

	n, err := pipeline.Ingest(ctx)
	require.NoError(t, err)
	assert.Greater(t, n, 0)

	responses, err := pipeline.AskAll(ctx, cfg.RAG.Questions, rag.ChatConfig(cfg).CallOptions()...)
	require.NoError(t, err)
	require.Len(t, responses, 2)

	assert.Equal(t, "The sea is turquoise.", responses[0].Answer)
	assert.Equal(t, "Pink, red, green and yellow.", responses[1].Answer)
	assert.Len(t, responses[1].Context, 2)
	assert.Equal(t, int32(2), atomic.LoadInt32(&chatCalls))
}
