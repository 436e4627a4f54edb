package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"pdf-faq-go/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbeddingServer 返回 [len(input), position] 形式的二维向量，并打乱 data 的顺序。
func fakeEmbeddingServer(t *testing.T, calls *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req embeddingRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		type item struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		}
		data := make([]item, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, item{Index: i, Embedding: []float32{float32(len(req.Input[i])), float32(i)}})
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": data})
	}))
}

func TestLoad_OpenAIProbesDimension(t *testing.T) {
	var calls int32
	srv := fakeEmbeddingServer(t, &calls)
	defer srv.Close()

	c, err := Load(context.Background(), config.EmbeddingConfig{
		Provider: "openai", APIKey: "sk-test", BaseURL: srv.URL, Model: "mini", Dimensions: 2, BatchSize: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, c.Dimension())
	assert.Equal(t, "mini", c.ModelName())
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestLoad_DimensionMismatchIsFatal(t *testing.T) {
	var calls int32
	srv := fakeEmbeddingServer(t, &calls)
	defer srv.Close()

	_, err := Load(context.Background(), config.EmbeddingConfig{
		APIKey: "sk-test", BaseURL: srv.URL, Model: "mini", Dimensions: 384,
	})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestLoad_UnreachableModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := Load(context.Background(), config.EmbeddingConfig{BaseURL: srv.URL, Model: "mini"})
	assert.Error(t, err)
}

func TestOpenAIClient_EmbedBatchPreservesOrderAcrossBatches(t *testing.T) {
	var calls int32
	srv := fakeEmbeddingServer(t, &calls)
	defer srv.Close()

	c := newOpenAICompatibleClient(config.EmbeddingConfig{
		APIKey: "sk-test", BaseURL: srv.URL + "/", Model: "mini", BatchSize: 2,
	})
	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vectors, err := c.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, len(texts))
	for i, text := range texts {
		assert.Equal(t, float32(len(text)), vectors[i][0], "vector %d out of order", i)
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestHashingClient_DeterministicAndNormalized(t *testing.T) {
	c := NewHashingClient("", 64)
	ctx := context.Background()

	a, err := c.Embed(ctx, "Hans Müller wohnt in der Musterstraße 5")
	require.NoError(t, err)
	b, err := c.Embed(ctx, "Hans Müller wohnt in der Musterstraße 5")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, norm, 1e-5)

	batch, err := c.EmbedBatch(ctx, []string{"eins", "Hans Müller wohnt in der Musterstraße 5"})
	require.NoError(t, err)
	assert.Equal(t, a, batch[1])

	empty, err := c.Embed(ctx, "   ")
	require.NoError(t, err)
	assert.Len(t, empty, 64)
}
