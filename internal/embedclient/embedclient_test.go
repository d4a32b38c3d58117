package embedclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JDHayesBC/Awareness-sub005/internal/ppserr"
)

func TestEmbedReturnsVectorsInOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp := embeddingResponse{}
		for i := range req.Input {
			resp.Data = append(resp.Data, embeddingDatum{Embedding: []float32{float32(i), float32(i) + 0.5}, Index: i})
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	c := New(srv.URL, "key", "test-model", 2)
	vecs, err := c.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Equal(t, [][]float32{{0, 0.5}, {1, 1.5}}, vecs)
}

func TestEmbedDependencyDownOnBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(srv.URL, "key", "test-model", 2)
	_, err := c.Embed(context.Background(), []string{"a"})
	require.Error(t, err)
	require.Equal(t, ppserr.DependencyDown, ppserr.KindOf(err))
}
