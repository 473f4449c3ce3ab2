package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/example/cotflow/internal/core/recovery"
	"github.com/example/cotflow/internal/ports/secondary"
)

func newTestClient(t *testing.T, url string) *Client {
	cfg := DefaultConfig("test-key")
	cfg.BaseURL = url
	cfg.BaseBackoff = time.Millisecond
	return NewClient(cfg, zaptest.NewLogger(t))
}

func TestSearch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, DefaultModel, req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "go generics", req.Messages[1].Content)
		assert.Contains(t, req.Messages[0].Content, "background")

		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"<p>Generics <b>landed</b> in 1.18</p>"}}],"citations":["https://go.dev/blog"]}`))
	}))
	defer srv.Close()

	resp, err := newTestClient(t, srv.URL).Search(context.Background(),
		secondary.SearchRequest{Query: "go generics", Intent: "background"})
	require.NoError(t, err)
	assert.Equal(t, "Generics landed in 1.18", resp.Content)
	assert.Equal(t, []string{"https://go.dev/blog"}, resp.Citations)
}

func TestSearch_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "upstream busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	resp, err := newTestClient(t, srv.URL).Search(context.Background(), secondary.SearchRequest{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.EqualValues(t, 3, calls.Load())
}

func TestSearch_GivesUpAndIsClassifiedAsSearchError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Search(context.Background(), secondary.SearchRequest{Query: "q"})
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "search provider:"), err.Error())
	assert.EqualValues(t, DefaultMaxRetries+1, calls.Load())
	assert.Equal(t, recovery.TypeSearchProvider, recovery.ClassifyError(err).Type)
}

func TestSearch_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Search(context.Background(), secondary.SearchRequest{Query: "q"})
	require.Error(t, err)
	assert.EqualValues(t, 1, calls.Load())
}

func TestSearch_RequiresAPIKey(t *testing.T) {
	c := NewClient(Config{}, nil)
	_, err := c.Search(context.Background(), secondary.SearchRequest{Query: "q"})
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestStripHTML(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "just text", "just text"},
		{"inline tags", "a <i>b</i> c", "a b c"},
		{"blocks", "<p>one</p><p>two</p>", "one\ntwo"},
		{"script dropped", "<div>x<script>alert(1)</script></div>", "x"},
		{"entities", "fish &amp; chips", "fish & chips"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripHTML(tt.in))
		})
	}
}
