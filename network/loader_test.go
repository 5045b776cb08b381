package network

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoaderLoad(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/app.js":
			w.Header().Set("Cache-Control", "max-age=60")
			w.Write([]byte("var app = 1"))
		case "/fresh.js":
			w.Header().Set("Cache-Control", "no-store")
			w.Write([]byte("var fresh = 1"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client, err := NewClient()
	require.NoError(t, err)
	loader := NewLoader(client)
	ctx := context.Background()

	body, err := loader.Load(ctx, server.URL+"/app.js")
	require.NoError(t, err)
	assert.Equal(t, "var app = 1", body)
	_, err = loader.Load(ctx, server.URL+"/app.js")
	require.NoError(t, err)
	assert.EqualValues(t, 1, hits.Load(), "second load should be served from cache")

	_, err = loader.Load(ctx, server.URL+"/fresh.js")
	require.NoError(t, err)
	_, err = loader.Load(ctx, server.URL+"/fresh.js")
	require.NoError(t, err)
	assert.EqualValues(t, 3, hits.Load())

	_, err = loader.Load(ctx, server.URL+"/missing.js")
	assert.ErrorContains(t, err, "404")
}

func TestLoaderWithoutCache(t *testing.T) {
	var hits atomic.Int32
	client, err := NewClient(WithTransport(RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
		hits.Add(1)
		return Routes{"https://a.test/x.js": {Body: "x", Header: http.Header{"Cache-Control": {"max-age=60"}}}}.RoundTrip(r)
	})))
	require.NoError(t, err)
	loader := NewLoader(client, WithCache(nil))

	for range 2 {
		body, err := loader.Load(context.Background(), "https://a.test/x.js")
		require.NoError(t, err)
		assert.Equal(t, "x", body)
	}
	assert.EqualValues(t, 2, hits.Load())
}

func TestLoaderRejectsRelativeURL(t *testing.T) {
	client, err := NewClient()
	require.NoError(t, err)
	_, err = NewLoader(client).Load(context.Background(), "/relative.js")
	assert.Error(t, err)
}
