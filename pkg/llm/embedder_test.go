package llm_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/ragpage/pkg/llm"
)

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embeddingData struct {
	Object    string    `json:"object"`
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

// newEmbeddingsServer fakes the embeddings endpoint. Each input gets the
// vector [len(text), index, 1]; data is returned in reverse order.
func newEmbeddingsServer(t *testing.T, calls *int32, drop int) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-ada-002", req.Model)

		var data []embeddingData
		for i := len(req.Input) - 1; i >= drop; i-- {
			data = append(data, embeddingData{
				Object:    "embedding",
				Embedding: []float32{float32(len(req.Input[i])), float32(i), 1},
				Index:     i,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  req.Model,
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func TestOpenAIClientCreateEmbedding(t *testing.T) {
	var calls int32
	server := newEmbeddingsServer(t, &calls, 0)

	client, err := llm.NewOpenAIClient(llm.EmbedderConfig{
		APIKey:  "sk-test",
		BaseURL: server.URL + "/v1",
	})
	require.NoError(t, err)

	vectors, err := client.CreateEmbedding(context.Background(), []string{"a", "bbb", "cc"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)

	// Reordered by index, not by response order
	assert.Equal(t, []float32{1, 0, 1}, vectors[0])
	assert.Equal(t, []float32{3, 1, 1}, vectors[1])
	assert.Equal(t, []float32{2, 2, 1}, vectors[2])
	assert.Equal(t, int32(1), calls)
}

func TestOpenAIClientMissingVectors(t *testing.T) {
	var calls int32
	server := newEmbeddingsServer(t, &calls, 1)

	client, err := llm.NewOpenAIClient(llm.EmbedderConfig{
		APIKey:  "sk-test",
		BaseURL: server.URL + "/v1",
	})
	require.NoError(t, err)

	_, err = client.CreateEmbedding(context.Background(), []string{"a", "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "got 1 vectors for 2 inputs")
}

func TestOpenAIClientRequiresKey(t *testing.T) {
	_, err := llm.NewOpenAIClient(llm.EmbedderConfig{})
	assert.Error(t, err)
}

func TestNewEmbedderBatches(t *testing.T) {
	var calls int32
	server := newEmbeddingsServer(t, &calls, 0)

	emb, err := llm.NewEmbedder(llm.EmbedderConfig{
		Provider:  llm.ProviderOpenAI,
		APIKey:    "sk-test",
		BaseURL:   server.URL + "/v1",
		BatchSize: 2,
	})
	require.NoError(t, err)

	vectors, err := emb.EmbedDocuments(context.Background(), []string{"one", "two", "three"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, float32(5), vectors[2][0])
	assert.Equal(t, int32(2), calls)

	query, err := emb.EmbedQuery(context.Background(), "four")
	require.NoError(t, err)
	assert.Equal(t, []float32{4, 0, 1}, query)
}

func TestNewEmbedderProviders(t *testing.T) {
	_, err := llm.NewEmbedder(llm.EmbedderConfig{Provider: "ollama"})
	assert.NoError(t, err)

	_, err = llm.NewEmbedder(llm.EmbedderConfig{Provider: "cohere", APIKey: "x"})
	assert.Error(t, err)
}
