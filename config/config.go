// Package config loads WebView configurations from YAML files.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chrisuehlinger/ersatz/backend"
	"github.com/chrisuehlinger/ersatz/iframe"
	"github.com/chrisuehlinger/ersatz/source"
)

// Backends a configuration can select.
const (
	BackendHeadless = "headless"
	BackendWeb      = "web"
)

// Config is a WebView configuration.
type Config struct {
	Backend string       `yaml:"backend"` // headless | web
	Source  SourceConfig `yaml:"source"`

	JavaScriptEnabled                     *bool    `yaml:"javascript_enabled"`
	InjectedJavaScript                    string   `yaml:"injected_javascript"`
	InjectedJavaScriptBeforeContentLoaded string   `yaml:"injected_javascript_before_content_loaded"`
	UserAgent                             string   `yaml:"user_agent"`
	OriginWhitelist                       []string `yaml:"origin_whitelist"`

	// Timeout bounds how long the CLI waits for the page to load.
	Timeout time.Duration `yaml:"timeout"`
	// Settle is how long the CLI keeps collecting events after the load,
	// for timers and late messages.
	Settle time.Duration `yaml:"settle"`

	Iframe  IframeConfig  `yaml:"iframe"`
	Browser BrowserConfig `yaml:"browser"`
}

// SourceConfig is either inline HTML or a URI.
type SourceConfig struct {
	HTML    string            `yaml:"html"`
	BaseURL string            `yaml:"base_url"`
	URI     string            `yaml:"uri"`
	Method  string            `yaml:"method"`
	Headers map[string]string `yaml:"headers"`
	Body    string            `yaml:"body"`
}

// IframeConfig holds the options of the iframe backend.
type IframeConfig struct {
	Bootstrap       string `yaml:"bootstrap"`        // live | srcdoc
	WhitelistPolicy string `yaml:"whitelist_policy"` // open-externally | rollback | allow-in-place
	HostOrigin      string `yaml:"host_origin"`

	Sandbox             *bool `yaml:"sandbox"`
	AllowFullscreen     *bool `yaml:"allow_fullscreen"`
	AllowPaymentRequest *bool `yaml:"allow_payment_request"`
	Geolocation         bool  `yaml:"geolocation"`
	// MediaPlaybackRequiresUserAction defaults to true.
	MediaPlaybackRequiresUserAction *bool `yaml:"media_playback_requires_user_action"`
	LazyLoading                     bool  `yaml:"lazy_loading"`

	ReferrerPolicy string `yaml:"referrer_policy"`
	CSP            string `yaml:"csp"`
	Width          string `yaml:"width"`
	Height         string `yaml:"height"`

	// WebPolicies override the default feature and sandbox policies. Values
	// are booleans or allowlist strings.
	WebPolicies map[string]any `yaml:"web_policies"`
}

// BrowserConfig selects the browser hosting iframes. Empty fields use the
// in-process emulated host.
type BrowserConfig struct {
	// Remote is the DevTools websocket URL of a running Chrome.
	Remote string `yaml:"remote"`
	// Launch starts a local headless Chrome.
	Launch bool `yaml:"launch"`
}

// Default returns a configuration rendering about:blank headlessly.
func Default() *Config {
	return &Config{
		Backend: BackendHeadless,
		Timeout: 5 * time.Second,
		Iframe: IframeConfig{
			HostOrigin: iframe.DefaultHostOrigin,
		},
	}
}

// Load reads a YAML configuration file over Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a YAML configuration over Default and validates it.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate checks that the configuration can be turned into props and
// engine options.
func (c *Config) Validate() error {
	var errs []error
	switch c.Backend {
	case BackendHeadless, BackendWeb:
	default:
		errs = append(errs, fmt.Errorf("backend must be %q or %q, got %q", BackendHeadless, BackendWeb, c.Backend))
	}
	if c.Source.HTML != "" && c.Source.URI != "" {
		errs = append(errs, errors.New("source: html and uri are exclusive"))
	}
	if c.Timeout < 0 || c.Settle < 0 {
		errs = append(errs, errors.New("timeout and settle must not be negative"))
	}
	if _, ok := iframe.ParseBootstrapMode(c.Iframe.Bootstrap); !ok {
		errs = append(errs, fmt.Errorf("iframe.bootstrap: unknown mode %q", c.Iframe.Bootstrap))
	}
	if c.Iframe.WhitelistPolicy != "" {
		if _, ok := iframe.ParsePolicy(c.Iframe.WhitelistPolicy); !ok {
			errs = append(errs, fmt.Errorf("iframe.whitelist_policy: unknown policy %q", c.Iframe.WhitelistPolicy))
		}
	}
	for name, v := range c.Iframe.WebPolicies {
		switch v.(type) {
		case bool, string:
		default:
			errs = append(errs, fmt.Errorf("iframe.web_policies.%s: want a boolean or a string, got %T", name, v))
		}
	}
	if c.Browser.Remote != "" && c.Browser.Launch {
		errs = append(errs, errors.New("browser: remote and launch are exclusive"))
	}
	return errors.Join(errs...)
}

// SourceValue returns the configured source, nil when none is set.
func (c *Config) SourceValue() source.Source {
	s := c.Source
	switch {
	case s.URI != "":
		return source.URI{URI: s.URI, Method: s.Method, Headers: s.Headers, Body: s.Body}
	case s.HTML != "" || s.BaseURL != "":
		return source.HTML{HTML: s.HTML, BaseURL: s.BaseURL}
	}
	return nil
}

// Props returns the WebView props of the configuration. Handlers and
// render callbacks are left for the caller to set.
func (c *Config) Props() backend.Props {
	return backend.Props{
		Source:                                c.SourceValue(),
		JavaScriptEnabled:                     c.JavaScriptEnabled,
		InjectedJavaScript:                    c.InjectedJavaScript,
		InjectedJavaScriptBeforeContentLoaded: c.InjectedJavaScriptBeforeContentLoaded,
		UserAgent:                             c.UserAgent,
		OriginWhitelist:                       c.OriginWhitelist,
	}
}

// IframeOptions returns the iframe engine options of the configuration.
// Host, client and logger are left for the caller to set.
func (c *Config) IframeOptions() iframe.Options {
	ic := c.Iframe
	mode, _ := iframe.ParseBootstrapMode(ic.Bootstrap)
	policy, _ := iframe.ParsePolicy(ic.WhitelistPolicy)
	opts := iframe.Options{
		Bootstrap:                       mode,
		WhitelistPolicy:                 policy,
		SandboxEnabled:                  ic.Sandbox,
		FullscreenEnabled:               ic.AllowFullscreen,
		PaymentEnabled:                  ic.AllowPaymentRequest,
		GeolocationEnabled:              ic.Geolocation,
		MediaPlaybackRequiresUserAction: ic.MediaPlaybackRequiresUserAction == nil || *ic.MediaPlaybackRequiresUserAction,
		LazyLoading:                     ic.LazyLoading,
		ReferrerPolicy:                  ic.ReferrerPolicy,
		CSP:                             ic.CSP,
		Width:                           ic.Width,
		Height:                          ic.Height,
	}
	if len(ic.WebPolicies) > 0 {
		opts.WebPolicies = iframe.Policies(ic.WebPolicies)
	}
	return opts
}
