package iframe

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrisuehlinger/ersatz/dom"
	"github.com/chrisuehlinger/ersatz/js"
)

func TestJSStringCannotCloseTheScript(t *testing.T) {
	s := jsString(`</script><script>alert("x")</script>`)
	assert.NotContains(t, s, "</script>")
	assert.True(t, strings.HasPrefix(s, `"\u003c/script\u003e`), s)
}

func TestSpliceBootstrap(t *testing.T) {
	doc := SpliceBootstrap(`<html><head><title>t</title></head><body class="x"><p>hi</p></body></html>`, BootstrapParams{FrameID: 1})
	i := strings.Index(doc, `<body class="x"><script>`)
	require.GreaterOrEqual(t, i, 0, doc)
	assert.Less(t, i, strings.Index(doc, "<p>hi</p>"))

	// Without a body tag the script is prepended.
	assert.True(t, strings.HasPrefix(SpliceBootstrap("<p>hi</p>", BootstrapParams{}), "<script>"))
}

type posted struct {
	data         any
	targetOrigin string
}

// runBootstrapped loads doc with the bootstrap of p into a window and
// returns what the window posted to its parent.
func runBootstrapped(t *testing.T, doc string, p BootstrapParams) (*js.Window, []posted) {
	t.Helper()
	var messages []posted
	w := js.NewWindow(js.Options{
		URL:            "about:srcdoc",
		ScriptsEnabled: true,
		Parent: func(data any, targetOrigin string) {
			messages = append(messages, posted{data, targetOrigin})
		},
	})
	t.Cleanup(w.Close)
	require.NoError(t, w.Parse(SpliceBootstrap(doc, p)))
	w.ContentLoaded()
	w.FinishLoad()
	return w, messages
}

func TestBootstrapLifecycle(t *testing.T) {
	p := BootstrapParams{
		FrameID:                               3,
		InstanceID:                            2,
		TargetOrigin:                          "http://localhost",
		InjectedJavaScriptBeforeContentLoaded: "window.order = ['before'];",
		InjectedJavaScript:                    "order.push('injected'); window.ReactNativeWebView.postMessage('</script>');",
	}
	w, messages := runBootstrapped(t, `<body><script>order.push('page')</script></body>`, p)

	// The page script runs before DOMContentLoaded, so window.order does
	// not exist yet and the push throws.
	assert.Len(t, w.Errors(), 1)
	assert.Equal(t, []any{"before", "injected"}, w.Get("order"))

	require.Len(t, messages, 3)
	for _, m := range messages {
		assert.Equal(t, "http://localhost", m.targetOrigin)
	}
	first, ok := ParseEnvelope(messages[0].data)
	require.True(t, ok)
	assert.Equal(t, Envelope{Type: DOMEventType, Name: EventDOMContentLoaded, FrameID: 3, InstanceID: 2}, first)

	msg, ok := ParseEnvelope(messages[1].data)
	require.True(t, ok)
	assert.False(t, msg.IsDOMEvent())
	assert.Equal(t, "</script>", msg.Message)

	last, ok := ParseEnvelope(messages[2].data)
	require.True(t, ok)
	assert.Equal(t, EventLoad, last.Name)
}

func TestMessagingShim(t *testing.T) {
	var got []posted
	w := js.NewWindow(js.Options{
		ScriptsEnabled: true,
		Parent: func(data any, targetOrigin string) {
			got = append(got, posted{data, targetOrigin})
		},
	})
	t.Cleanup(w.Close)
	_, err := w.Eval(MessagingShim(BootstrapParams{FrameID: 7, InstanceID: 1, TargetOrigin: "*"}))
	require.NoError(t, err)
	_, err = w.Eval(`window.ReactNativeWebView.postMessage({ a: 1 })`)
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, "*", got[0].targetOrigin)
	env, ok := ParseEnvelope(got[0].data)
	require.True(t, ok)
	assert.Equal(t, 7, env.FrameID)
	assert.Equal(t, 1, env.InstanceID)
	assert.Equal(t, map[string]any{"a": int64(1)}, env.Message)
}

func TestParseBootstrapMode(t *testing.T) {
	for _, m := range []BootstrapMode{BootstrapLive, BootstrapSrcDoc} {
		parsed, ok := ParseBootstrapMode(m.String())
		assert.True(t, ok)
		assert.Equal(t, m, parsed)
	}
	_, ok := ParseBootstrapMode("inline")
	assert.False(t, ok)
}

func TestIframeMarkup(t *testing.T) {
	f := Iframe{
		Key:             4,
		ID:              "ersatz-frame-1",
		SrcDoc:          `<p class="x">a & b</p>`,
		Allow:           "fullscreen",
		Sandboxed:       true,
		AllowFullscreen: true,
		Lazy:            true,
		Height:          "100%",
	}
	markup := f.Markup()
	assert.True(t, strings.HasPrefix(markup, "<iframe "), markup)
	assert.Contains(t, markup, `sandbox=""`)
	assert.Contains(t, markup, `loading="lazy"`)
	assert.NotContains(t, markup, "allowpaymentrequest")

	doc, err := dom.Parse("<body>"+markup+"</body>", "http://localhost/")
	require.NoError(t, err)
	el := doc.GetElementByID("ersatz-frame-1")
	require.NotNil(t, el)
	assert.Equal(t, f.SrcDoc, el.GetAttribute("srcdoc"))
	assert.Equal(t, "4", el.GetAttribute("data-key"))
	assert.Equal(t, "100%", el.GetAttribute("height"))
	assert.True(t, el.HasAttribute("allowfullscreen"))
}

func TestIframeCapabilities(t *testing.T) {
	open := Iframe{}
	assert.True(t, open.ScriptsAllowed())
	assert.True(t, open.SameOrigin())
	assert.True(t, open.PopupsAllowed())

	locked := Iframe{Sandboxed: true}
	assert.False(t, locked.ScriptsAllowed())
	assert.False(t, locked.SameOrigin())
	assert.False(t, locked.PopupsAllowed())

	scripts := Iframe{Sandboxed: true, Sandbox: "allow-same-origin allow-scripts"}
	assert.True(t, scripts.ScriptsAllowed())
	assert.True(t, scripts.SameOrigin())
	assert.False(t, scripts.PopupsAllowed())
}
