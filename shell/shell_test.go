package shell

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrisuehlinger/ersatz/backend"
	"github.com/chrisuehlinger/ersatz/dom"
	"github.com/chrisuehlinger/ersatz/js"
	"github.com/chrisuehlinger/ersatz/loop"
	"github.com/chrisuehlinger/ersatz/source"
)

type fakeEngine struct {
	ctx     backend.Context
	props   []backend.Props
	calls   []string
	closed  bool
	window  *js.Window
	scripts []string
}

func (f *fakeEngine) Render() *backend.View {
	return backend.NewView("View", backend.Marker("loaded", 0))
}

func (f *fakeEngine) Update(props backend.Props) { f.props = append(f.props, props) }
func (f *fakeEngine) Close()                     { f.closed = true }

func (f *fakeEngine) GoBack()       { f.calls = append(f.calls, "goBack") }
func (f *fakeEngine) GoForward()    { f.calls = append(f.calls, "goForward") }
func (f *fakeEngine) Reload()       { f.calls = append(f.calls, "reload") }
func (f *fakeEngine) StopLoading()  { f.calls = append(f.calls, "stopLoading") }
func (f *fakeEngine) RequestFocus() { f.calls = append(f.calls, "requestFocus") }

func (f *fakeEngine) InjectJavaScript(script string) { f.scripts = append(f.scripts, script) }

func (f *fakeEngine) Document() *dom.Document { return f.window.Document() }
func (f *fakeEngine) Window() *js.Window      { return f.window }

// factory returns a factory mounting engine, publishing it right away
// when publish is set.
func factory(engine *fakeEngine, publish bool) backend.Factory {
	return func(ctx backend.Context, props backend.Props) backend.Component {
		engine.ctx = ctx
		engine.props = append(engine.props, props)
		if publish {
			ctx.Ref.Set(engine)
		}
		return engine
	}
}

func TestShellAppliesDefaults(t *testing.T) {
	engine := &fakeEngine{}
	s := New(factory(engine, false), backend.Props{Source: source.HTML{HTML: "<p></p>"}})
	t.Cleanup(s.Close)

	require.Len(t, engine.props, 1)
	require.NotNil(t, engine.props[0].JavaScriptEnabled)
	assert.True(t, *engine.props[0].JavaScriptEnabled)
	assert.Equal(t, source.HTML{HTML: "<p></p>"}, engine.props[0].Source)
	assert.NotNil(t, engine.ctx.Loop)
	assert.NotNil(t, engine.ctx.Logger)
	assert.Same(t, s.Loop(), engine.ctx.Loop)

	// An explicit false is kept.
	s.Update(backend.Props{JavaScriptEnabled: backend.Bool(false)})
	require.Len(t, engine.props, 2)
	assert.False(t, *engine.props[1].JavaScriptEnabled)
	assert.False(t, s.Props().ScriptsEnabled())
}

func TestShellRender(t *testing.T) {
	engine := &fakeEngine{}
	s := New(factory(engine, false), backend.Props{
		Style:          backend.Style{"flex": 1},
		ContainerStyle: backend.Style{"padding": 4},
	})
	t.Cleanup(s.Close)

	v := s.Render()
	assert.Equal(t, ScrollViewKind, v.Kind)
	assert.Equal(t, backend.Style{"flex": 1}, v.Style)
	require.Len(t, v.Children, 1)
	container := v.Children[0]
	assert.Equal(t, backend.Style{"padding": 4}, container.Style)
	assert.NotNil(t, container.Find("backend-loaded-0"))
}

func TestShellBeforeMount(t *testing.T) {
	engine := &fakeEngine{}
	s := New(factory(engine, false), backend.Props{})
	t.Cleanup(s.Close)

	assert.NotPanics(t, func() {
		s.GoBack()
		s.GoForward()
		s.Reload()
		s.StopLoading()
		s.RequestFocus()
	})
	assert.Empty(t, engine.calls)

	tests := map[string]func(){
		"getWindow":        func() { s.Window() },
		"getDocument":      func() { s.Document() },
		"injectJavaScript": func() { s.InjectJavaScript("1") },
	}
	for method, call := range tests {
		assert.PanicsWithValue(t, "Shell#"+method+": "+notLoaded, call, method)
	}
	assert.PanicsWithValue(t,
		"Shell#getWindow: The DOM backend is not loaded. Make sure you call this method after it has loaded. "+
			"Wait for it with ersatztest.WaitForErsatz.",
		func() { s.Window() })
}

func TestShellForwardsToTheMountedEngine(t *testing.T) {
	engine := &fakeEngine{window: js.NewWindow(js.Options{})}
	t.Cleanup(engine.window.Close)
	s := New(factory(engine, true), backend.Props{})
	t.Cleanup(s.Close)

	s.GoBack()
	s.GoForward()
	s.Reload()
	s.StopLoading()
	s.RequestFocus()
	s.InjectJavaScript("window.x = 1")
	assert.Equal(t, []string{"goBack", "goForward", "reload", "stopLoading", "requestFocus"}, engine.calls)
	assert.Equal(t, []string{"window.x = 1"}, engine.scripts)
	assert.Same(t, engine.window, s.Window())
	assert.Same(t, engine.window.Document(), s.Document())

	// Once the engine releases the ref the shell reports it again.
	engine.ctx.Ref.Release(engine)
	assert.Panics(t, func() { s.Window() })
}

func TestShellClose(t *testing.T) {
	engine := &fakeEngine{}
	s := New(factory(engine, false), backend.Props{})
	s.Close()
	assert.True(t, engine.closed)
	assert.False(t, s.Loop().Post(func() {}))

	// Updates after Close are dropped.
	s.Update(backend.Props{})
	assert.Len(t, engine.props, 1)
	s.Close()
}

func TestShellWithLoop(t *testing.T) {
	l := loop.New()
	t.Cleanup(l.Close)
	engine := &fakeEngine{}
	s := New(factory(engine, false), backend.Props{}, WithLoop(l))
	s.Close()
	assert.Same(t, l, engine.ctx.Loop)
	assert.True(t, l.Post(func() {}), "a borrowed loop stays open")
}
