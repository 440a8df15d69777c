package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuslink/portal-api/pkg/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(config.EmbeddingConfig{
		Endpoint: server.URL,
		APIKey:   "test-key",
		Model:    "text-embedding-3-small",
	})
	require.NoError(t, err)
	return client, server
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(config.EmbeddingConfig{Model: "m"})
	assert.Error(t, err)

	_, err = NewClient(config.EmbeddingConfig{Endpoint: "http://x"})
	assert.Error(t, err)
}

func TestEmbed(t *testing.T) {
	var gotAuth string
	var gotBody embeddingRequest

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.Equal(t, "/embeddings", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		json.NewEncoder(w).Encode(map[string]interface{}{ //nolint:errcheck
			"data": []map[string]interface{}{
				{"embedding": []float32{0.1, 0.2, 0.3}},
			},
		})
	})

	vector, err := client.Embed(context.Background(), "when are final exams")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vector)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "text-embedding-3-small", gotBody.Model)
	assert.Equal(t, []string{"when are final exams"}, gotBody.Input)
}

func TestEmbedProviderError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})

	_, err := client.Embed(context.Background(), "query")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestEmbedEmptyVector(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[]}`)) //nolint:errcheck
	})

	_, err := client.Embed(context.Background(), "query")
	assert.Error(t, err)
}

func TestEmbedEmptyText(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	_, err := client.Embed(context.Background(), "   ")
	assert.Error(t, err)
}
