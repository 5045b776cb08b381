// Package ersatz provides the headless WebView: the source is resolved
// through an HTTP client, parsed into an in-process DOM and its scripts run
// in goja. It is meant for tests of code that drives a WebView.
package ersatz

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/chrisuehlinger/ersatz/backend"
	"github.com/chrisuehlinger/ersatz/headless"
	"github.com/chrisuehlinger/ersatz/loop"
	"github.com/chrisuehlinger/ersatz/network"
	"github.com/chrisuehlinger/ersatz/shell"
)

// WebView is a mounted headless WebView.
type WebView struct {
	*shell.Shell
}

type config struct {
	client    *network.Client
	transport http.RoundTripper
	logger    *slog.Logger
	loop      *loop.Loop
}

// Option configures New.
type Option func(*config)

// WithClient fetches remote sources and external scripts with client.
func WithClient(client *network.Client) Option {
	return func(c *config) {
		c.client = client
	}
}

// WithTransport builds the HTTP client around rt, typically network.Routes
// in tests. It is ignored when WithClient is given.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *config) {
		c.transport = rt
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

// New mounts a headless WebView rendering props.Source.
func New(props backend.Props, opts ...Option) (*WebView, error) {
	c := &config{logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	if c.client == nil {
		clientOpts := []network.ClientOption{network.WithLogger(c.logger)}
		if c.transport != nil {
			clientOpts = append(clientOpts, network.WithTransport(c.transport))
		}
		if props.UserAgent != "" {
			clientOpts = append(clientOpts, network.WithUserAgent(props.UserAgent))
		}
		client, err := network.NewClient(clientOpts...)
		if err != nil {
			return nil, fmt.Errorf("ersatz: create http client: %w", err)
		}
		c.client = client
	}

	shellOpts := []shell.Option{shell.WithLogger(c.logger)}
	if c.loop != nil {
		shellOpts = append(shellOpts, shell.WithLoop(c.loop))
	}
	return &WebView{Shell: shell.New(headless.Factory(c.client), props, shellOpts...)}, nil
}
