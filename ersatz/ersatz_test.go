package ersatz_test

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrisuehlinger/ersatz/backend"
	"github.com/chrisuehlinger/ersatz/ersatz"
	"github.com/chrisuehlinger/ersatz/ersatztest"
	"github.com/chrisuehlinger/ersatz/lifecycle"
	"github.com/chrisuehlinger/ersatz/network"
	"github.com/chrisuehlinger/ersatz/source"
)

var wait = ersatztest.Options{Timeout: 2 * time.Second}

func render(t *testing.T, props backend.Props, routes network.Routes) *ersatz.WebView {
	t.Helper()
	if routes == nil {
		routes = network.Routes{}
	}
	wv, err := ersatz.New(props, ersatz.WithTransport(routes))
	require.NoError(t, err)
	t.Cleanup(wv.Close)
	return wv
}

func TestScenarioEmptyDocument(t *testing.T) {
	wv := render(t, backend.Props{Source: source.HTML{HTML: "<div></div>"}}, nil)

	doc, err := ersatztest.WaitForDocument(context.Background(), wv, wait)
	require.NoError(t, err)
	assert.Nil(t, doc.GetElementByID("hi"))
	assert.NotNil(t, wv.Window())
}

func TestScenarioBaseURL(t *testing.T) {
	wv := render(t, backend.Props{Source: source.HTML{HTML: `<a id="hi" href="/blog">`, BaseURL: "https://foo.bar"}}, nil)

	doc, err := ersatztest.WaitForDocument(context.Background(), wv, wait)
	require.NoError(t, err)
	el := doc.GetElementByID("hi")
	require.NotNil(t, el)
	assert.Equal(t, "https://foo.bar/blog", el.Href())
}

func TestScenarioRemoteSource(t *testing.T) {
	var mu sync.Mutex
	var loads []lifecycle.SyntheticEvent[lifecycle.Navigation]
	wv := render(t, backend.Props{
		Source: source.URI{URI: "https://foo.bar/200"},
		Handlers: lifecycle.Handlers{
			OnLoad: func(ev lifecycle.SyntheticEvent[lifecycle.Navigation]) {
				mu.Lock()
				defer mu.Unlock()
				loads = append(loads, ev)
			},
		},
	}, network.Routes{
		"GET https://foo.bar/200": {Body: "<title>Hello world</title><header></header>"},
	})

	doc, err := ersatztest.WaitForDocument(context.Background(), wv, wait)
	require.NoError(t, err)
	assert.Len(t, doc.GetElementsByTagName("header"), 1)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, loads, 1)
	assert.Equal(t, "https://foo.bar/200", loads[0].NativeEvent.URL)
	assert.Equal(t, "Hello world", loads[0].NativeEvent.Title)
	assert.False(t, loads[0].NativeEvent.Loading)
}

func TestScenarioHTTPError(t *testing.T) {
	var mu sync.Mutex
	var httpErrors []lifecycle.HTTPError
	wv := render(t, backend.Props{
		Source: source.URI{URI: "https://foo.bar/500"},
		OnHTTPError: func(ev lifecycle.SyntheticEvent[lifecycle.HTTPError]) {
			mu.Lock()
			defer mu.Unlock()
			httpErrors = append(httpErrors, ev.NativeEvent)
		},
		RenderError: func(domain string, code int, description string) *backend.View {
			v := backend.NewView("Text", "custom-error")
			v.Text = description
			return v
		},
	}, network.Routes{
		"https://foo.bar/500": {Status: http.StatusInternalServerError, Body: "boom"},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	v, err := backend.WaitForMarker(ctx, wv.Render, "custom-error")
	require.NoError(t, err)
	assert.Equal(t, "boom", v.Text)
	assert.NotNil(t, wv.Render().Find(backend.ErrorTestID))
	require.NoError(t, wv.Sync(ctx))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, httpErrors, 1)
	assert.Equal(t, "boom", httpErrors[0].Description)
	assert.Equal(t, http.StatusInternalServerError, httpErrors[0].StatusCode)
	assert.Equal(t, "https://foo.bar/500", httpErrors[0].URL)

	// Nothing was mounted, so the window cannot be reached.
	assert.Panics(t, func() { wv.Window() })
}

func TestScenarioInjectedMessage(t *testing.T) {
	var mu sync.Mutex
	var messages []string
	wv := render(t, backend.Props{
		Source:             source.HTML{HTML: "<p></p>"},
		InjectedJavaScript: "window.ReactNativeWebView.postMessage('Hello world!');",
		Handlers: lifecycle.Handlers{
			OnMessage: func(ev lifecycle.SyntheticEvent[lifecycle.Message]) {
				mu.Lock()
				defer mu.Unlock()
				messages = append(messages, ev.NativeEvent.Data)
			},
		},
	}, nil)

	_, err := ersatztest.WaitForErsatz(context.Background(), wv, wait)
	require.NoError(t, err)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"Hello world!"}, messages)
}

func TestInjectedGlobals(t *testing.T) {
	wv := render(t, backend.Props{
		Source:                                source.HTML{HTML: "<p></p>"},
		InjectedJavaScriptBeforeContentLoaded: "window.before = 'yes';",
		InjectedJavaScript:                    "window.after = 'yes';",
	}, nil)

	w, err := ersatztest.WaitForWindow(context.Background(), wv, wait)
	require.NoError(t, err)
	assert.Equal(t, "yes", w.Get("before"))
	assert.Equal(t, "yes", w.Get("after"))
}

func TestJavaScriptDisabled(t *testing.T) {
	wv := render(t, backend.Props{
		Source:             source.HTML{HTML: "<p></p>"},
		JavaScriptEnabled:  backend.Bool(false),
		InjectedJavaScript: "window.awesomeProp = 1;",
	}, nil)

	w, err := ersatztest.WaitForWindow(context.Background(), wv, wait)
	require.NoError(t, err)
	assert.Nil(t, w.Get("awesomeProp"))
}

func TestReloadCreatesANewWindow(t *testing.T) {
	wv := render(t, backend.Props{Source: source.HTML{HTML: "<p></p>"}}, nil)

	first, err := ersatztest.WaitForWindow(context.Background(), wv, wait)
	require.NoError(t, err)
	wv.Reload()
	next := wait
	next.LoadCycleID = 1
	second, err := ersatztest.WaitForWindow(context.Background(), wv, next)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
}

func TestUpdateResolvesTheNewSource(t *testing.T) {
	wv := render(t, backend.Props{Source: source.HTML{HTML: "<p id='one'></p>"}}, nil)
	_, err := ersatztest.WaitForErsatz(context.Background(), wv, wait)
	require.NoError(t, err)

	wv.Update(backend.Props{Source: source.HTML{HTML: "<p id='two'></p>"}})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.Eventually(t, func() bool {
		if err := wv.Sync(ctx); err != nil {
			return false
		}
		defer func() { _ = recover() }()
		return wv.Document().GetElementByID("two") != nil
	}, 2*time.Second, 5*time.Millisecond)
}
