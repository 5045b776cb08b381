// Package iframe implements the DOM engine rendering the WebView source in
// an iframe of a host document. The engine keeps a navigation history,
// enforces the origin whitelist on navigations, compiles the permission
// and sandbox attributes, bridges the frame's messages and reports the
// load lifecycle of every frame generation.
package iframe

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/chrisuehlinger/ersatz/backend"
	"github.com/chrisuehlinger/ersatz/dom"
	"github.com/chrisuehlinger/ersatz/js"
	"github.com/chrisuehlinger/ersatz/lifecycle"
	"github.com/chrisuehlinger/ersatz/network"
	"github.com/chrisuehlinger/ersatz/source"
)

const limitedContext = "This iframe renders a cross origin resource, and thus the execution context is limited. JavaScript injection is not available in such context."

// frameIDs numbers the engines created without a FrameIDs sequence.
var frameIDs backend.Sequence

// Options configures an Engine.
type Options struct {
	// Host mounts the frames. Nil gives the engine its own EmulatedHost
	// running on the WebView loop.
	Host Host
	// Client fetches frame documents for the default host and sends the
	// HEAD probe.
	Client *network.Client
	// FrameIDs allocates the engine's frame id. Nil uses a process-wide
	// sequence.
	FrameIDs *backend.Sequence
	Logger   *slog.Logger

	// FullscreenEnabled and PaymentEnabled default to true.
	FullscreenEnabled               *bool
	PaymentEnabled                  *bool
	GeolocationEnabled              bool
	MediaPlaybackRequiresUserAction bool
	// WebPolicies override the compiled permission and sandbox policies.
	WebPolicies Policies
	// SandboxEnabled defaults to true.
	SandboxEnabled *bool
	LazyLoading    bool
	ReferrerPolicy string
	CSP            string
	Width          string
	// Height defaults to 100%.
	Height string

	// WhitelistPolicy handles navigations rejected by the origin
	// whitelist.
	WhitelistPolicy Policy
	// OpenURL opens URLs outside the WebView. Nil uses Host.Open.
	OpenURL   func(url string)
	Bootstrap BootstrapMode
}

func enabled(b *bool) bool {
	return b == nil || *b
}

// Engine is the iframe DOM engine. It implements backend.Handle and
// backend.Component.
type Engine struct {
	ctx      backend.Context
	opts     Options
	host     Host
	ownsHost bool
	client   *network.Client
	logger   *slog.Logger
	frameID  int
	bridge   Bridge

	mu        sync.Mutex
	props     backend.Props
	nav       *Navigator
	whitelist Whitelist
	spec      Iframe
	spliced   bool
	frame     Frame
	guard     func()
	failure   string
	probeStop context.CancelFunc
	closed    bool
}

// Factory returns the backend.Factory of the iframe WebView.
func Factory(opts Options) backend.Factory {
	return func(ctx backend.Context, props backend.Props) backend.Component {
		return New(ctx, props, opts)
	}
}

// New creates an engine, publishes it to ctx.Ref and mounts the first
// frame on the loop.
func New(ctx backend.Context, props backend.Props, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = ctx.Logger
	}
	if logger == nil {
		logger = slog.Default()
	}
	client := opts.Client
	if client == nil {
		c, err := network.NewClient(network.WithLogger(logger))
		if err != nil {
			logger.Error("iframe: create http client", "error", err)
		}
		client = c
	}
	host, owns := opts.Host, false
	if host == nil {
		host = NewEmulatedHost(WithClient(client), WithSchedule(ctx.Loop.Post), WithHostLogger(logger))
		owns = true
	}
	ids := opts.FrameIDs
	if ids == nil {
		ids = &frameIDs
	}
	if opts.Height == "" {
		opts.Height = "100%"
	}
	frameID := ids.Next()
	e := &Engine{
		ctx:       ctx,
		opts:      opts,
		host:      host,
		ownsHost:  owns,
		client:    client,
		logger:    logger,
		frameID:   frameID,
		bridge:    Bridge{FrameID: frameID, Origin: host.Origin()},
		props:     props,
		nav:       NewNavigator(props.Source),
		whitelist: Compile(props.OriginWhitelist),
	}
	ctx.Ref.Set(e)
	e.post(e.mount)
	return e
}

func (e *Engine) post(fn func()) {
	if !e.ctx.Loop.Post(fn) {
		e.logger.Debug("iframe: loop is closed, task dropped")
	}
}

// current reports whether instance is still the mounted generation. Called
// with e.mu held.
func (e *Engine) current(instance int) bool {
	return !e.closed && e.nav.InstanceID() == instance
}

// FrameID returns the id frames of this engine stamp their messages with.
func (e *Engine) FrameID() int {
	return e.frameID
}

// SyncState returns the sync state and the instance id of the mounted
// generation.
func (e *Engine) SyncState() (SyncState, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.nav.SyncState(), e.nav.InstanceID()
}

// History returns the number of history entries and the current index.
func (e *Engine) History() (entries, index int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.nav.Len(), e.nav.Index()
}

// Spec returns the iframe of the mounted generation.
func (e *Engine) Spec() Iframe {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.spec
}

// params returns the values baked into the bootstrap scripts.
func (e *Engine) params(props backend.Props, instance int) BootstrapParams {
	return BootstrapParams{
		FrameID:                               e.frameID,
		InstanceID:                            instance,
		TargetOrigin:                          e.host.Origin(),
		InjectedJavaScript:                    props.InjectedJavaScript,
		InjectedJavaScriptBeforeContentLoaded: props.InjectedJavaScriptBeforeContentLoaded,
	}
}

// iframeSpec builds the iframe of a generation and reports whether the
// bootstrap was spliced into its srcdoc.
func (e *Engine) iframeSpec(props backend.Props, src source.Source, instance int) (Iframe, bool) {
	features := Policies{
		"geolocation": e.opts.GeolocationEnabled,
		"autoplay":    !e.opts.MediaPlaybackRequiresUserAction,
	}
	if e.opts.FullscreenEnabled != nil {
		features["fullscreen"] = *e.opts.FullscreenEnabled
	}
	if e.opts.PaymentEnabled != nil {
		features["payment"] = *e.opts.PaymentEnabled
	}
	compiled := CompilePolicies(props.ScriptsEnabled(), DefaultPolicies, features, e.opts.WebPolicies)
	spec := Iframe{
		Key:                 instance,
		ID:                  fmt.Sprintf("ersatz-frame-%d", e.frameID),
		Allow:               compiled.Allow,
		Sandbox:             compiled.Sandbox,
		Sandboxed:           enabled(e.opts.SandboxEnabled),
		AllowFullscreen:     enabled(e.opts.FullscreenEnabled),
		AllowPaymentRequest: enabled(e.opts.PaymentEnabled),
		Lazy:                e.opts.LazyLoading,
		ReferrerPolicy:      e.opts.ReferrerPolicy,
		CSP:                 e.opts.CSP,
		Width:               e.opts.Width,
		Height:              e.opts.Height,
	}
	spliced := false
	switch s := src.(type) {
	case source.URI:
		spec.Src = s.URI
	case source.HTML:
		spec.SrcDoc = s.HTML
		if e.opts.Bootstrap == BootstrapSrcDoc && props.ScriptsEnabled() {
			spec.SrcDoc = SpliceBootstrap(s.HTML, e.params(props, instance))
			spliced = true
		}
	}
	return spec, spliced
}

// mount replaces the frame with one for the current history entry. Runs
// on the loop.
func (e *Engine) mount() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	old, oldGuard := e.frame, e.guard
	e.frame, e.guard = nil, nil
	props := e.props
	instance := e.nav.InstanceID()
	src := e.nav.Current()
	spec, spliced := e.iframeSpec(props, src, instance)
	e.spec, e.spliced = spec, spliced
	e.failure = ""
	e.mu.Unlock()

	if oldGuard != nil {
		oldGuard()
	}
	if old != nil {
		_ = old.Close()
	}
	e.probe(props, src, instance)

	frame, err := e.host.Mount(context.Background(), spec, FrameEvents{
		OnContentWindow: func(f Frame) { e.domInit(instance, f) },
		OnLoad:          func() { e.post(func() { e.onLoad(instance) }) },
		OnMessage: func(data any, origin string) {
			e.post(func() { e.onMessage(instance, data, origin) })
		},
		OnNavigate: func(url string, active *dom.Element) {
			e.post(func() { e.onNavigate(instance, url, active) })
		},
	})
	if err != nil {
		e.logger.Error("iframe: mount frame", "instance", instance, "error", err)
		return
	}
	e.mu.Lock()
	if !e.current(instance) {
		e.mu.Unlock()
		_ = frame.Close()
		return
	}
	e.frame = frame
	e.mu.Unlock()
}

// eventBase reads the location and title of the mounted generation. The
// title falls back to the location when the document is not accessible.
func (e *Engine) eventBase(f Frame) lifecycle.EventBase {
	e.mu.Lock()
	src := e.nav.Current()
	e.mu.Unlock()
	url := srcdocURL
	if uri, ok := src.(source.URI); ok && uri.URI != "" {
		url = uri.URI
	}
	base := lifecycle.EventBase{URL: url, Title: url}
	if f == nil || f.Document() == nil {
		return base
	}
	title := ""
	if w := f.Window(); w != nil {
		title = w.Title()
	} else {
		title = f.Document().Title()
	}
	if title != "" {
		base.Title = title
	}
	return base
}

// liveBootstrap reports whether scripts are injected into the live content
// window of the mounted generation. Called with e.mu held.
func (e *Engine) liveBootstrap() bool {
	return !e.spliced && e.props.ScriptsEnabled()
}

// domInit runs once the content window of instance exists, before its
// document is parsed.
func (e *Engine) domInit(instance int, f Frame) {
	e.mu.Lock()
	if !e.current(instance) {
		e.mu.Unlock()
		return
	}
	e.nav.SetSyncState(StateLoading)
	props, live := e.props, e.liveBootstrap()
	e.mu.Unlock()

	lifecycle.HandleLoadStart(props.Handlers, e.eventBase(f))
	if !live {
		return
	}
	e.inject(f, MessagingShim(e.params(props, instance)))
	if props.InjectedJavaScriptBeforeContentLoaded != "" {
		e.inject(f, props.InjectedJavaScriptBeforeContentLoaded)
	}
}

// inject appends a script holding code to the frame document.
func (e *Engine) inject(f Frame, code string) {
	if f == nil || f.Document() == nil {
		e.logger.Warn("WebBackend#injectJavaScript: " + limitedContext)
		return
	}
	if err := f.InjectScript(code); err != nil {
		e.logger.Debug("iframe: inject script", "error", err)
	}
}

func (e *Engine) onLoad(instance int) {
	e.mu.Lock()
	spliced := e.spliced
	e.mu.Unlock()
	if spliced {
		// The bootstrap reports the end of the load with a dom-event.
		return
	}
	e.finishLoad(instance)
}

// finishLoad runs the injected script, dispatches the End transition,
// injects the base element and guards the anchors of instance.
func (e *Engine) finishLoad(instance int) {
	e.mu.Lock()
	if !e.current(instance) || e.frame == nil {
		e.mu.Unlock()
		return
	}
	f := e.frame
	startMissed := e.nav.SyncState() == StateInit
	props, live := e.props, e.liveBootstrap()
	html, _ := e.nav.Current().(source.HTML)
	e.mu.Unlock()

	if startMissed {
		e.domInit(instance, f)
	}
	if live && props.InjectedJavaScript != "" {
		e.inject(f, props.InjectedJavaScript)
	}

	e.mu.Lock()
	if !e.current(instance) {
		e.mu.Unlock()
		return
	}
	e.nav.SetSyncState(StateLoaded)
	e.mu.Unlock()
	lifecycle.HandleLoadEnd(props.Handlers, e.eventBase(f))

	if html.BaseURL != "" {
		if err := f.InjectBase(html.BaseURL); err != nil {
			e.logger.Debug("iframe: inject base element", "error", err)
		}
	}
	e.guardAnchors(instance, f)
}

// guardAnchors retargets the anchors of f failing the whitelist.
func (e *Engine) guardAnchors(instance int, f Frame) {
	e.mu.Lock()
	wl := e.whitelist
	e.mu.Unlock()
	cancel, err := f.GuardAnchors(wl)
	if err != nil {
		e.logger.Debug("iframe: guard anchors", "error", err)
		return
	}
	e.mu.Lock()
	if !e.current(instance) {
		e.mu.Unlock()
		cancel()
		return
	}
	previous := e.guard
	e.guard = cancel
	e.mu.Unlock()
	if previous != nil {
		previous()
	}
}

func (e *Engine) onMessage(instance int, data any, origin string) {
	e.mu.Lock()
	if !e.current(instance) {
		e.mu.Unlock()
		return
	}
	props, spliced, f := e.props, e.spliced, e.frame
	e.mu.Unlock()

	env, ok := e.bridge.Accept(data, origin, instance)
	if !ok {
		return
	}
	if env.IsDOMEvent() {
		if spliced && env.Name == EventLoad {
			e.finishLoad(instance)
		}
		return
	}
	lifecycle.HandlePostMessage(props.Handlers, e.eventBase(f), env.Message)
}

// onNavigate applies the whitelist and onShouldStartLoadWithRequest to a
// navigation started by the frame.
func (e *Engine) onNavigate(instance int, url string, active *dom.Element) {
	e.mu.Lock()
	if !e.current(instance) {
		e.mu.Unlock()
		return
	}
	props, wl := e.props, e.whitelist
	e.mu.Unlock()

	d := Decide(wl, active, props.Handlers.OnShouldStartLoadWithRequest, url)
	switch {
	case d.NewContext:
		e.logger.Debug("iframe: navigation left to the browser", "url", url)
	case d.ShouldStart:
		e.change(func(n *Navigator) { n.Navigate(source.URI{URI: url}) })
	case d.ShouldOpenURL:
		switch e.opts.WhitelistPolicy {
		case Rollback:
			e.change(func(n *Navigator) { n.Reset(props.Source) })
		case AllowInPlace:
			e.change(func(n *Navigator) { n.Navigate(source.URI{URI: url}) })
		default:
			e.openURL(url)
			e.change(func(n *Navigator) { n.Reset(props.Source) })
		}
	default:
		e.change(func(n *Navigator) { n.Reload() })
	}
}

func (e *Engine) openURL(url string) {
	if e.opts.OpenURL != nil {
		e.opts.OpenURL(url)
		return
	}
	e.host.Open(url)
}

// change applies fn to the history and remounts when the generation
// changed. Runs on the loop.
func (e *Engine) change(fn func(n *Navigator)) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	before := e.nav.InstanceID()
	fn(e.nav)
	changed := e.nav.InstanceID() != before
	e.mu.Unlock()
	if changed {
		e.mount()
	}
}

// probe checks that a remote source is reachable when renderError is set.
func (e *Engine) probe(props backend.Props, src source.Source, instance int) {
	uri, ok := src.(source.URI)
	if !ok || uri.URI == "" || props.RenderError == nil || e.client == nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	stop := e.probeStop
	e.probeStop = cancel
	e.mu.Unlock()
	if stop != nil {
		stop()
	}
	go func() {
		err := Probe(ctx, e.client, uri.URI)
		if err == nil || ctx.Err() != nil {
			return
		}
		e.post(func() { e.fail(instance, err) })
	}()
}

// fail flags instance as failed.
func (e *Engine) fail(instance int, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.current(instance) {
		return
	}
	e.logger.Warn("iframe: source is unreachable", "error", err)
	if e.nav.SyncState() == StateInit {
		e.nav.SetSyncState(StateLoading)
	}
	e.nav.SetSyncState(StateError)
	e.failure = err.Error()
}

// Render returns the marker view of the mounted generation around the
// iframe, the loading view or the error view.
func (e *Engine) Render() *backend.View {
	e.mu.Lock()
	state, instance := e.nav.SyncState(), e.nav.InstanceID()
	spec, failure, props := e.spec, e.failure, e.props
	e.mu.Unlock()

	var overlay *backend.View
	switch {
	case state == StateError:
		var rendered *backend.View
		if props.RenderError != nil {
			rendered = props.RenderError("", 0, failure)
		}
		overlay = backend.NewView("View", backend.ErrorTestID, rendered)
	case state != StateLoaded && props.RenderLoading != nil:
		overlay = props.RenderLoading()
	}
	frame := &backend.View{Kind: "iframe", Attrs: spec.Attrs()}
	return backend.NewView("View", backend.Marker(string(state), instance), frame, overlay)
}

// Update applies new props. A new source resets the history; a new
// javaScriptEnabled value or new scripts remount the frame.
func (e *Engine) Update(props backend.Props) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	old := e.props
	e.props = props
	e.whitelist = Compile(props.OriginWhitelist)
	instance, f := e.nav.InstanceID(), e.frame
	e.mu.Unlock()

	switch {
	case !source.Equal(old.Source, props.Source):
		e.post(func() { e.change(func(n *Navigator) { n.Reset(props.Source) }) })
	case old.ScriptsEnabled() != props.ScriptsEnabled() ||
		old.InjectedJavaScript != props.InjectedJavaScript ||
		old.InjectedJavaScriptBeforeContentLoaded != props.InjectedJavaScriptBeforeContentLoaded:
		e.post(func() { e.change(func(n *Navigator) { n.Reload() }) })
	case f != nil && !slices.Equal(old.OriginWhitelist, props.OriginWhitelist):
		e.post(func() {
			e.mu.Lock()
			loaded := e.current(instance) && e.nav.SyncState() == StateLoaded
			e.mu.Unlock()
			if loaded {
				e.guardAnchors(instance, f)
			}
		})
	}
}

func (e *Engine) GoBack() {
	e.post(func() { e.change(func(n *Navigator) { n.GoBack() }) })
}

func (e *Engine) GoForward() {
	e.post(func() { e.change(func(n *Navigator) { n.GoForward() }) })
}

func (e *Engine) Reload() {
	e.post(func() { e.change(func(n *Navigator) { n.Reload() }) })
}

func (e *Engine) StopLoading() {
	e.logger.Warn("WebBackend#stopLoading: not Implemented.")
}

func (e *Engine) mounted() Frame {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frame
}

// RequestFocus focuses the frame document.
func (e *Engine) RequestFocus() {
	f := e.mounted()
	if f == nil {
		return
	}
	if err := f.Focus(); err != nil {
		e.logger.Debug("iframe: focus frame", "error", err)
	}
}

// InjectJavaScript appends a script holding script to the frame document.
func (e *Engine) InjectJavaScript(script string) {
	if script == "" {
		return
	}
	e.inject(e.mounted(), script)
}

// Document returns the frame document, or nil when it is not accessible.
func (e *Engine) Document() *dom.Document {
	if f := e.mounted(); f != nil {
		return f.Document()
	}
	return nil
}

// Window returns the content window of the frame, or nil.
func (e *Engine) Window() *js.Window {
	if f := e.mounted(); f != nil {
		return f.Window()
	}
	return nil
}

// Close unmounts the frame and, when the engine created it, the host.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	f, guard, stop := e.frame, e.guard, e.probeStop
	e.frame, e.guard = nil, nil
	e.mu.Unlock()

	e.ctx.Ref.Release(e)
	if stop != nil {
		stop()
	}
	if guard != nil {
		guard()
	}
	if f != nil {
		_ = f.Close()
	}
	if e.ownsHost {
		_ = e.host.Close()
	}
}
