package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/iepscribe/internal/llm"
)

func embeddingsServer(t *testing.T, data []map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-embed", req["model"])

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data, "model": "test-embed"})
	}))
}

func TestOpenAIProvider_OrdersByIndex(t *testing.T) {
	server := embeddingsServer(t, []map[string]any{
		{"object": "embedding", "index": 1, "embedding": []float32{0, 1}},
		{"object": "embedding", "index": 0, "embedding": []float32{1, 0}},
	})
	defer server.Close()

	p := NewOpenAIProvider("test-key", server.URL, "test-embed")
	vecs, err := p.Embed(context.Background(), []string{"John Smith", "Jane Doe"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vecs)
	assert.Equal(t, "test-embed", p.Model())
}

func TestOpenAIProvider_CountMismatchIsUpstream(t *testing.T) {
	server := embeddingsServer(t, []map[string]any{
		{"object": "embedding", "index": 0, "embedding": []float32{1}},
	})
	defer server.Close()

	_, err := NewOpenAIProvider("test-key", server.URL, "test-embed").Embed(context.Background(), []string{"a", "b"})
	assert.ErrorIs(t, err, llm.ErrUpstream)
}

func TestOpenAIProvider_EmptyInputSkipsCall(t *testing.T) {
	p := NewOpenAIProvider("test-key", "http://127.0.0.1:1", "test-embed")
	vecs, err := p.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vecs)
}
