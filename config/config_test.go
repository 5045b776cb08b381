package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrisuehlinger/ersatz/iframe"
	"github.com/chrisuehlinger/ersatz/source"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte("{}"))
	require.NoError(t, err)
	assert.Equal(t, BackendHeadless, cfg.Backend)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, iframe.DefaultHostOrigin, cfg.Iframe.HostOrigin)
	assert.Nil(t, cfg.SourceValue())

	props := cfg.Props()
	assert.Nil(t, props.Source)
	assert.True(t, props.ScriptsEnabled())

	opts := cfg.IframeOptions()
	assert.Equal(t, iframe.BootstrapLive, opts.Bootstrap)
	assert.Equal(t, iframe.OpenExternally, opts.WhitelistPolicy)
	assert.True(t, opts.MediaPlaybackRequiresUserAction)
	assert.Nil(t, opts.WebPolicies)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "webview.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
backend: web
source:
  uri: https://foo.bar/200
  method: POST
  headers:
    X-Token: abc
  body: q=1
javascript_enabled: false
injected_javascript: window.x = 1;
origin_whitelist: ["https://*.foo.bar"]
timeout: 2s
settle: 50ms
iframe:
  bootstrap: srcdoc
  whitelist_policy: rollback
  sandbox: false
  allow_fullscreen: false
  media_playback_requires_user_action: false
  lazy_loading: true
  height: 300px
  web_policies:
    popups: true
    camera: "'self'"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, BackendWeb, cfg.Backend)
	assert.Equal(t, 2*time.Second, cfg.Timeout)
	assert.Equal(t, 50*time.Millisecond, cfg.Settle)

	props := cfg.Props()
	assert.Equal(t, source.URI{
		URI:     "https://foo.bar/200",
		Method:  "POST",
		Headers: map[string]string{"X-Token": "abc"},
		Body:    "q=1",
	}, props.Source)
	assert.False(t, props.ScriptsEnabled())
	assert.Equal(t, "window.x = 1;", props.InjectedJavaScript)
	assert.Equal(t, []string{"https://*.foo.bar"}, props.OriginWhitelist)

	opts := cfg.IframeOptions()
	assert.Equal(t, iframe.BootstrapSrcDoc, opts.Bootstrap)
	assert.Equal(t, iframe.Rollback, opts.WhitelistPolicy)
	require.NotNil(t, opts.SandboxEnabled)
	assert.False(t, *opts.SandboxEnabled)
	require.NotNil(t, opts.FullscreenEnabled)
	assert.False(t, *opts.FullscreenEnabled)
	assert.Nil(t, opts.PaymentEnabled)
	assert.False(t, opts.MediaPlaybackRequiresUserAction)
	assert.True(t, opts.LazyLoading)
	assert.Equal(t, "300px", opts.Height)
	assert.Equal(t, iframe.Policies{"popups": true, "camera": "'self'"}, opts.WebPolicies)
}

func TestInlineSource(t *testing.T) {
	cfg, err := Parse([]byte(`
source:
  html: <a id="hi" href="/blog">
  base_url: https://foo.bar
`))
	require.NoError(t, err)
	assert.Equal(t, source.HTML{HTML: `<a id="hi" href="/blog">`, BaseURL: "https://foo.bar"}, cfg.SourceValue())
}

func TestValidate(t *testing.T) {
	tests := map[string]string{
		"backend":        "backend: native",
		"source":         "source: {html: '<p>', uri: 'https://foo.bar'}",
		"timeout":        "timeout: -1s",
		"bootstrap":      "iframe: {bootstrap: inline}",
		"policy":         "iframe: {whitelist_policy: ignore}",
		"web policy":     "iframe: {web_policies: {camera: 1}}",
		"browser":        "browser: {remote: 'ws://127.0.0.1:9222', launch: true}",
		"malformed yaml": "backend: [",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
