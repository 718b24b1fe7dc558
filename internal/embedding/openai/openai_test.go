package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	t.Setenv("TEST_OPENAI_KEY", "sk-test")
	c, err := NewClient(Config{BaseURL: url, APIKeyEnv: "TEST_OPENAI_KEY", Model: "m"})
	require.NoError(t, err)
	return c
}

func TestEmbedOrdersByIndexAndRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var req embedRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"a", "b"}, req.Input)
		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[0,1]},{"index":0,"embedding":[1,0]}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	assert.Equal(t, 0, c.Dimension())
	vecs, err := c.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vecs)
	assert.Equal(t, 2, c.Dimension())
	assert.Equal(t, int32(2), calls.Load())
}

func TestEmbedDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Embed(context.Background(), []string{"a"})
	assert.ErrorContains(t, err, "400")
	assert.Equal(t, int32(1), calls.Load())
}

func TestNewClientRequiresKey(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "")
	_, err := NewClient(Config{APIKeyEnv: "TEST_OPENAI_KEY"})
	assert.Error(t, err)
}

func TestRetryDelayGrows(t *testing.T) {
	assert.Less(t, retryDelay(0), retryDelay(2))
}
