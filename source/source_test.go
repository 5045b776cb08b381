package source

import (
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrisuehlinger/ersatz/lifecycle"
	"github.com/chrisuehlinger/ersatz/network"
)

func TestInline(t *testing.T) {
	tests := []struct {
		name   string
		src    Source
		want   Normalized
		inline bool
	}{
		{"nil", nil, Normalized{}, true},
		{"html", HTML{HTML: "<p>"}, Normalized{HTML: "<p>"}, true},
		{"html with base", HTML{HTML: "<p>", BaseURL: "https://foo.bar"}, Normalized{HTML: "<p>", URL: "https://foo.bar"}, true},
		{"empty uri", URI{}, Normalized{}, true},
		{"uri", URI{URI: "https://foo.bar"}, Normalized{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Inline(tt.src)
			assert.Equal(t, tt.inline, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEqual(t *testing.T) {
	a := URI{URI: "https://foo.bar", Headers: map[string]string{"X": "1"}}
	assert.True(t, Equal(a, URI{URI: "https://foo.bar", Headers: map[string]string{"X": "1"}}))
	assert.False(t, Equal(a, URI{URI: "https://foo.bar"}))
	assert.False(t, Equal(a, HTML{HTML: "https://foo.bar"}))
	assert.True(t, Equal(HTML{HTML: "x"}, HTML{HTML: "x"}))
	assert.True(t, Equal(nil, nil))
	assert.False(t, Equal(nil, HTML{}))
}

func newTestLoader(t *testing.T, rt http.RoundTripper) *Loader {
	t.Helper()
	client, err := network.NewClient(network.WithTransport(rt))
	require.NoError(t, err)
	return NewLoader(client)
}

func await(t *testing.T, results <-chan Result) Result {
	t.Helper()
	select {
	case r := <-results:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the source to resolve")
		return Result{}
	}
}

func TestLoaderInlineResolvesImmediately(t *testing.T) {
	l := newTestLoader(t, network.Routes{})
	var got []Result
	gen := l.Load(HTML{HTML: "<div></div>", BaseURL: "https://foo.bar"}, false, nil, func(r Result) { got = append(got, r) })

	want := Result{Generation: gen, State: Resolved, Source: Normalized{HTML: "<div></div>", URL: "https://foo.bar"}}
	assert.Equal(t, []Result{want}, got)
	assert.Equal(t, want, l.Result())
}

func TestLoaderRemote(t *testing.T) {
	routes := network.Routes{
		"https://foo.bar/200":  {Body: "<title>Hello world</title>"},
		"https://foo.bar/500":  {Status: 500, Body: "Internal failure"},
		"https://foo.bar/down": {Err: errors.New("connection refused")},
	}

	t.Run("success", func(t *testing.T) {
		l := newTestLoader(t, routes)
		results := make(chan Result, 1)
		l.Load(URI{URI: "https://foo.bar/200"}, false, nil, func(r Result) { results <- r })
		assert.Equal(t, Loading, l.Result().State)

		r := await(t, results)
		assert.Equal(t, Resolved, r.State)
		assert.Equal(t, Normalized{HTML: "<title>Hello world</title>", URL: "https://foo.bar/200"}, r.Source)
	})

	t.Run("http error", func(t *testing.T) {
		l := newTestLoader(t, routes)
		results := make(chan Result, 1)
		var httpErrors []lifecycle.SyntheticEvent[lifecycle.HTTPError]
		l.Load(URI{URI: "https://foo.bar/500"}, false,
			func(e lifecycle.SyntheticEvent[lifecycle.HTTPError]) { httpErrors = append(httpErrors, e) },
			func(r Result) { results <- r })

		r := await(t, results)
		assert.Equal(t, Failed, r.State)
		assert.Equal(t, "Internal failure", r.Reason)
		require.Len(t, httpErrors, 1)
		assert.Equal(t, lifecycle.NewHTTPErrorEvent("Internal failure", 500, "https://foo.bar/500"), httpErrors[0])
	})

	t.Run("transport error", func(t *testing.T) {
		l := newTestLoader(t, routes)
		results := make(chan Result, 1)
		called := false
		l.Load(URI{URI: "https://foo.bar/down"}, false,
			func(lifecycle.SyntheticEvent[lifecycle.HTTPError]) { called = true },
			func(r Result) { results <- r })

		r := await(t, results)
		assert.Equal(t, Failed, r.State)
		assert.Contains(t, r.Reason, "connection refused")
		assert.False(t, called)
	})
}

func TestLoaderForwardsRequest(t *testing.T) {
	var seen *http.Request
	var body string
	l := newTestLoader(t, network.RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
		seen = r
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		return network.Routes{"POST https://foo.bar/form": {Body: "ok"}}.RoundTrip(r)
	}))
	results := make(chan Result, 1)
	l.Load(URI{
		URI:     "https://foo.bar/form",
		Method:  "POST",
		Headers: map[string]string{"X-Token": "secret"},
		Body:    "a=1",
	}, false, nil, func(r Result) { results <- r })

	r := await(t, results)
	assert.Equal(t, Resolved, r.State)
	assert.Equal(t, "POST", seen.Method)
	assert.Equal(t, "secret", seen.Header.Get("X-Token"))
	assert.Equal(t, "a=1", body)
}

func TestLoaderDropsStaleResults(t *testing.T) {
	release := make(chan struct{})
	fetched := make(chan struct{})
	l := newTestLoader(t, network.RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
		close(fetched)
		<-release
		return network.Routes{"https://foo.bar/slow": {Status: 500, Body: "late"}}.RoundTrip(r)
	}))

	var updates []Result
	httpErrors := 0
	done := make(chan struct{})
	l.schedule = func(fn func()) bool {
		fn()
		close(done)
		return true
	}
	l.Load(URI{URI: "https://foo.bar/slow"}, false,
		func(lifecycle.SyntheticEvent[lifecycle.HTTPError]) { httpErrors++ },
		func(r Result) { updates = append(updates, r) })
	<-fetched

	gen := l.Load(HTML{HTML: "new"}, false, nil, func(r Result) { updates = append(updates, r) })
	close(release)
	<-done

	require.Len(t, updates, 1)
	assert.Equal(t, "new", updates[0].Source.HTML)
	assert.Equal(t, gen, l.Result().Generation)
	assert.Zero(t, httpErrors)
}

func TestLoaderCancelled(t *testing.T) {
	l := newTestLoader(t, network.Routes{})
	called := false
	gen := l.Load(HTML{HTML: "x"}, true, nil, func(Result) { called = true })

	assert.False(t, called)
	assert.Equal(t, Result{Generation: gen, State: Loading}, l.Result())

	l.Cancel()
	assert.Equal(t, gen+1, l.Result().Generation)
}
