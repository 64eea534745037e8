package embedding

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyrec/internal/domain"
)

func newServer(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		Endpoint:    srv.URL,
		Project:     "proj",
		Location:    "us-central1",
		AccessToken: "tok",
		Dimensions:  3,
		BatchSize:   2,
	}, slog.New(slog.DiscardHandler))
}

func echoLengths(t *testing.T, calls *atomic.Int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/projects/proj/locations/us-central1/publishers/google/models/text-embedding-004:predict", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var req predictRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 3, req.Parameters.OutputDimensionality)

		type pred struct {
			Embeddings struct {
				Values []float64 `json:"values"`
			} `json:"embeddings"`
		}
		resp := struct {
			Predictions []pred `json:"predictions"`
		}{}
		for _, in := range req.Instances {
			assert.Equal(t, "RETRIEVAL_DOCUMENT", in.TaskType)
			var p pred
			p.Embeddings.Values = []float64{float64(len(in.Content)), 0, 1}
			resp.Predictions = append(resp.Predictions, p)
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func TestClient_EmbedBatchChunks(t *testing.T) {
	var calls atomic.Int32
	c := newServer(t, echoLengths(t, &calls))

	out, err := c.EmbedBatch(context.Background(), []string{"a", "bb", "ccc", "dddd", "eeeee"})
	require.NoError(t, err)
	require.Len(t, out, 5)
	for i, v := range out {
		assert.Equal(t, []float64{float64(i + 1), 0, 1}, v)
	}
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_Embed(t *testing.T) {
	var calls atomic.Int32
	c := newServer(t, echoLengths(t, &calls))

	v, err := c.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 0, 1}, v)
}

func TestClient_RetriesOnce(t *testing.T) {
	var calls atomic.Int32
	ok := echoLengths(t, &atomic.Int32{})
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		ok(w, r)
	})

	v, err := c.Embed(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 0, 1}, v)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		is      error
	}{
		{
			name:    "server error after retry",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusServiceUnavailable) },
			is:      domain.ErrUpstreamUnavailable,
		},
		{
			name:    "rate limited",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTooManyRequests) },
			is:      domain.ErrRateLimited,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newServer(t, tt.handler)
			_, err := c.EmbedBatch(context.Background(), []string{"x"})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.is)
		})
	}

	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"predictions":[]}`))
	})
	_, err := c.EmbedBatch(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "0 predictions for 1 texts")
}

func TestClient_BreakerOpens(t *testing.T) {
	var calls atomic.Int32
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	for i := 0; i < 3; i++ {
		_, _ = c.EmbedBatch(context.Background(), []string{"x"})
	}
	before := calls.Load()
	assert.Equal(t, int32(5), before)

	_, err := c.EmbedBatch(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
	assert.Equal(t, before, calls.Load())
}
