package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"

	"github.com/chrisuehlinger/ersatz/backend"
	"github.com/chrisuehlinger/ersatz/config"
	"github.com/chrisuehlinger/ersatz/ersatz"
	"github.com/chrisuehlinger/ersatz/ersatztest"
	"github.com/chrisuehlinger/ersatz/iframe"
	"github.com/chrisuehlinger/ersatz/lifecycle"
	"github.com/chrisuehlinger/ersatz/loop"
	"github.com/chrisuehlinger/ersatz/network"
	"github.com/chrisuehlinger/ersatz/rodhost"
	"github.com/chrisuehlinger/ersatz/web"
)

// webView is the surface shared by both WebViews.
type webView interface {
	ersatztest.WebView
	Close()
}

// printer writes one JSON object per line.
type printer struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func (p *printer) print(event string, payload any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.enc.Encode(struct {
		Event   string `json:"event"`
		Payload any    `json:"payload,omitempty"`
	}{event, payload})
}

func (p *printer) handlers() lifecycle.Handlers {
	return lifecycle.Handlers{
		OnLoadStart: func(ev lifecycle.SyntheticEvent[lifecycle.Navigation]) { p.print("loadStart", ev.NativeEvent) },
		OnLoad:      func(ev lifecycle.SyntheticEvent[lifecycle.Navigation]) { p.print("load", ev.NativeEvent) },
		OnLoadEnd:   func(ev lifecycle.SyntheticEvent[lifecycle.Navigation]) { p.print("loadEnd", ev.NativeEvent) },
		OnLoadProgress: func(ev lifecycle.SyntheticEvent[lifecycle.Progress]) {
			p.print("loadProgress", ev.NativeEvent)
		},
		OnError:                 func(ev lifecycle.SyntheticEvent[lifecycle.WebViewError]) { p.print("error", ev.NativeEvent) },
		OnMessage:               func(ev lifecycle.SyntheticEvent[lifecycle.Message]) { p.print("message", ev.NativeEvent) },
		OnNavigationStateChange: func(nav lifecycle.Navigation) { p.print("navigationStateChange", nav) },
		OnShouldStartLoadWithRequest: func(req lifecycle.ShouldStartLoadRequest) bool {
			p.print("shouldStartLoadWithRequest", req)
			return true
		},
	}
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "ersatz:", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("ersatz", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "YAML configuration file")
	uri := fs.String("url", "", "URL to load, overriding the configured source")
	inline := fs.String("html", "", "inline HTML to load, overriding the configured source")
	backendName := fs.String("backend", "", "headless or web, overriding the configuration")
	inject := fs.String("inject", "", "injectedJavaScript, overriding the configuration")
	chrome := fs.Bool("chrome", false, "mount web frames in a local headless Chrome")
	verbose := fs.Bool("v", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	switch {
	case *uri != "":
		cfg.Source = config.SourceConfig{URI: *uri}
	case *inline != "":
		cfg.Source = config.SourceConfig{HTML: *inline}
	}
	if *backendName != "" {
		cfg.Backend = *backendName
	}
	if *inject != "" {
		cfg.InjectedJavaScript = *inject
	}
	if *chrome {
		cfg.Browser.Launch = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	out := &printer{enc: json.NewEncoder(stdout)}
	props := cfg.Props()
	props.Handlers = out.handlers()
	props.OnHTTPError = func(ev lifecycle.SyntheticEvent[lifecycle.HTTPError]) { out.print("httpError", ev.NativeEvent) }
	props.RenderError = func(domain string, code int, description string) *backend.View {
		v := backend.NewView("Text", "error-text")
		v.Text = description
		return v
	}

	client, err := network.NewClient(
		network.WithLogger(logger),
		network.WithUserAgent(props.UserAgent),
		network.WithTimeout(cfg.Timeout))
	if err != nil {
		return err
	}
	l := loop.New(loop.WithLogger(logger))
	defer l.Close()

	var wv webView
	switch cfg.Backend {
	case config.BackendWeb:
		opts := cfg.IframeOptions()
		opts.Client = client
		opts.OpenURL = func(url string) { out.print("openURL", url) }
		webOpts := []web.Option{web.WithEngineOptions(opts), web.WithLoop(l), web.WithLogger(logger)}
		if cfg.Browser.Launch || cfg.Browser.Remote != "" {
			host, closeBrowser, err := openChrome(ctx, cfg, l, logger)
			if err != nil {
				return err
			}
			defer closeBrowser()
			webOpts = append(webOpts, web.WithHost(host))
		} else {
			host := iframe.NewEmulatedHost(
				iframe.WithOrigin(cfg.Iframe.HostOrigin),
				iframe.WithClient(client),
				iframe.WithSchedule(l.Post),
				iframe.WithHostLogger(logger))
			defer func() { _ = host.Close() }()
			webOpts = append(webOpts, web.WithHost(host))
		}
		wv = web.New(props, webOpts...)
	default:
		hv, err := ersatz.New(props, ersatz.WithClient(client), ersatz.WithLoop(l), ersatz.WithLogger(logger))
		if err != nil {
			return err
		}
		wv = hv
	}
	defer wv.Close()

	_, err = ersatztest.WaitForErsatz(ctx, wv, ersatztest.Options{Timeout: cfg.Timeout})
	if err != nil {
		if failed := wv.Render().Find(backend.ErrorTestID); failed != nil {
			return errors.New("the source could not be loaded")
		}
		return err
	}
	if cfg.Settle > 0 {
		select {
		case <-time.After(cfg.Settle):
		case <-ctx.Done():
		}
	}
	if doc := wv.Document(); doc != nil {
		out.print("document", struct {
			URL   string `json:"url"`
			Title string `json:"title"`
		}{doc.URL(), doc.Title()})
	}
	logger.Debug("ersatz: done", "backend", cfg.Backend)
	return nil
}

// openChrome connects to the configured Chrome, or launches one, and
// opens a host page in it.
func openChrome(ctx context.Context, cfg *config.Config, l *loop.Loop, logger *slog.Logger) (*rodhost.Host, func(), error) {
	wsURL := cfg.Browser.Remote
	var lnch *launcher.Launcher
	if wsURL == "" {
		lnch = launcher.New().Headless(true)
		u, err := lnch.Launch()
		if err != nil {
			return nil, nil, fmt.Errorf("launch chrome: %w", err)
		}
		wsURL = u
	}
	browser := rod.New().ControlURL(wsURL)
	if err := browser.Connect(); err != nil {
		return nil, nil, fmt.Errorf("connect chrome: %w", err)
	}
	closeBrowser := func() {
		if err := browser.Close(); err != nil {
			logger.Warn("ersatz: close chrome", "error", err)
		}
		if lnch != nil {
			lnch.Cleanup()
		}
	}

	host, err := rodhost.New(ctx, browser,
		rodhost.WithOrigin(cfg.Iframe.HostOrigin),
		rodhost.WithSchedule(l.Post),
		rodhost.WithLogger(logger))
	if err != nil {
		closeBrowser()
		return nil, nil, err
	}
	return host, func() {
		_ = host.Close()
		closeBrowser()
	}, nil
}
