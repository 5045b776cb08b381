package headless

import (
	"context"
	"log/slog"
	"sync"

	"github.com/chrisuehlinger/ersatz/backend"
	"github.com/chrisuehlinger/ersatz/js"
	"github.com/chrisuehlinger/ersatz/network"
	"github.com/chrisuehlinger/ersatz/source"
)

// Backend resolves the source prop, then mounts an Engine on the result.
// It is the component the shell mounts for the headless WebView.
type Backend struct {
	ctx     backend.Context
	loader  *source.Loader
	scripts *network.Loader
	storage *js.Storage
	logger  *slog.Logger

	mu     sync.Mutex
	props  backend.Props
	result source.Result
	engine *Engine
	closed bool
}

// Factory returns the backend.Factory of the headless WebView. Remote
// sources and external scripts are fetched through client.
func Factory(client *network.Client) backend.Factory {
	return func(ctx backend.Context, props backend.Props) backend.Component {
		return New(ctx, client, props)
	}
}

// New mounts a Backend and starts resolving props.Source on the loop.
func New(ctx backend.Context, client *network.Client, props backend.Props) *Backend {
	logger := ctx.Logger
	if logger == nil {
		logger = slog.Default()
	}
	b := &Backend{
		ctx:     ctx,
		loader:  source.NewLoader(client, source.WithSchedule(ctx.Loop.Post), source.WithLogger(logger)),
		scripts: network.NewLoader(client, network.WithCache(network.NewCache(0))),
		storage: js.NewStorage(),
		logger:  logger,
		props:   props,
	}
	ctx.Loop.Post(func() { b.resolve(props) })
	return b
}

// resolve starts a new generation for props.Source. Runs on the loop.
func (b *Backend) resolve(props backend.Props) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	engine := b.engine
	b.engine = nil
	b.result = source.Result{State: source.Loading}
	b.mu.Unlock()
	b.unmount(engine)

	b.loader.Load(props.Source, false, props.OnHTTPError, b.settle)
}

// settle records the outcome of the current generation and mounts the
// engine when the source resolved. Runs on the loop.
func (b *Backend) settle(result source.Result) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.result = result
	props := b.props
	b.mu.Unlock()
	if result.State != source.Resolved {
		return
	}

	engine := NewEngine(result.Source, props, Options{
		Loop:       b.ctx.Loop,
		Logger:     b.logger,
		Storage:    b.storage,
		LoadScript: b.loadScript,
	})
	b.mu.Lock()
	if b.closed || b.loader.Result().Generation != result.Generation {
		b.mu.Unlock()
		engine.Close()
		return
	}
	b.engine = engine
	b.mu.Unlock()
	b.ctx.Ref.Set(engine)
}

func (b *Backend) unmount(engine *Engine) {
	if engine == nil {
		return
	}
	b.ctx.Ref.Release(engine)
	engine.Close()
}

func (b *Backend) loadScript(url string) (string, error) {
	return b.scripts.Load(context.Background(), url)
}

// Render returns the source loader view around the engine's markers.
func (b *Backend) Render() *backend.View {
	b.mu.Lock()
	result, props, engine := b.result, b.props, b.engine
	b.mu.Unlock()
	return backend.SourceLoaderView(result, props, func(source.Normalized) *backend.View {
		if engine == nil {
			return nil
		}
		return engine.Render()
	})
}

// Update applies new props. A different source is resolved again and gets
// a new engine; other changes go to the mounted engine.
func (b *Backend) Update(props backend.Props) {
	b.mu.Lock()
	old := b.props
	b.props = props
	engine := b.engine
	b.mu.Unlock()

	if !source.Equal(old.Source, props.Source) {
		b.ctx.Loop.Post(func() { b.resolve(props) })
		return
	}
	if engine != nil {
		engine.Update(props)
	}
}

// Close cancels the pending resolution and closes the engine.
func (b *Backend) Close() {
	b.mu.Lock()
	b.closed = true
	engine := b.engine
	b.engine = nil
	b.mu.Unlock()
	b.loader.Cancel()
	b.unmount(engine)
}
