// Package web provides the iframe WebView: the source is rendered in an
// iframe mounted by an iframe.Host, either the in-process emulated host or
// a real browser.
package web

import (
	"log/slog"

	"github.com/chrisuehlinger/ersatz/backend"
	"github.com/chrisuehlinger/ersatz/iframe"
	"github.com/chrisuehlinger/ersatz/loop"
	"github.com/chrisuehlinger/ersatz/network"
	"github.com/chrisuehlinger/ersatz/shell"
)

// WebView is a mounted iframe WebView.
type WebView struct {
	*shell.Shell
}

type config struct {
	engine iframe.Options
	logger *slog.Logger
	loop   *loop.Loop
}

// Option configures New.
type Option func(*config)

// WithEngineOptions sets every engine option at once. Options given after
// it override single fields.
func WithEngineOptions(opts iframe.Options) Option {
	return func(c *config) {
		c.engine = opts
	}
}

// WithHost mounts frames on h. The caller keeps ownership of h.
func WithHost(h iframe.Host) Option {
	return func(c *config) {
		c.engine.Host = h
	}
}

// WithClient sends the error probe, and the emulated host's fetches, with
// client.
func WithClient(client *network.Client) Option {
	return func(c *config) {
		c.engine.Client = client
	}
}

// WithFrameIDs allocates frame ids from ids instead of the process-wide
// sequence.
func WithFrameIDs(ids *backend.Sequence) Option {
	return func(c *config) {
		c.engine.FrameIDs = ids
	}
}

// WithLogger sets the logger of the WebView.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithLoop runs the WebView on l. The caller keeps ownership of l.
func WithLoop(l *loop.Loop) Option {
	return func(c *config) {
		c.loop = l
	}
}

// New mounts an iframe WebView rendering props.Source.
func New(props backend.Props, opts ...Option) *WebView {
	c := &config{logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	if c.engine.Logger == nil {
		c.engine.Logger = c.logger
	}
	shellOpts := []shell.Option{shell.WithLogger(c.logger)}
	if c.loop != nil {
		shellOpts = append(shellOpts, shell.WithLoop(c.loop))
	}
	return &WebView{Shell: shell.New(iframe.Factory(c.engine), props, shellOpts...)}
}
