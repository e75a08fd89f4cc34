package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studymate-go/internal/config"
	"studymate-go/internal/model"
)

func newTestClient(serverURL string) Client {
	return NewClient(config.EmbeddingConfig{
		APIKey:     "test-key",
		BaseURL:    serverURL,
		Model:      "test-embedding",
		Dimensions: 2,
	})
}

func TestCreateEmbeddingsRestoresInputOrder(t *testing.T) {
	var gotRequest embeddingRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embeddings", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotRequest))

		// 故意按倒序返回，客户端应按 index 还原输入顺序
		resp := map[string]interface{}{
			"data": []map[string]interface{}{
				{"index": 1, "embedding": []float32{0, 1}},
				{"index": 0, "embedding": []float32{1, 0}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	vectors, err := client.CreateEmbeddings(context.Background(), []string{"第一段", "第二段"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)

	assert.Equal(t, []float32{1, 0}, vectors[0])
	assert.Equal(t, []float32{0, 1}, vectors[1])
	assert.Equal(t, []string{"第一段", "第二段"}, gotRequest.Input)
	assert.Equal(t, "test-embedding", gotRequest.Model)
}

func TestCreateEmbeddingRejectsEmptyInputBeforeHTTP(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	_, err := client.CreateEmbedding(context.Background(), "   ")
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrEmptyInput)

	_, err = client.CreateEmbeddings(context.Background(), []string{"有效文本", "\t\n"})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrEmptyInput)

	assert.Zero(t, requests, "空输入不应发起任何 HTTP 调用")
}

func TestCreateEmbeddingsAPIFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.CreateEmbeddings(context.Background(), []string{"文本"})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrEmbeddingFailure)
}

func TestCreateEmbeddingsCountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]interface{}{
			"data": []map[string]interface{}{
				{"index": 0, "embedding": []float32{1, 0}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.CreateEmbeddings(context.Background(), []string{"一", "二"})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrEmbeddingFailure)
}

func TestCreateEmbeddingsEmptySlice(t *testing.T) {
	client := newTestClient("http://unused")
	vectors, err := client.CreateEmbeddings(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
}
