package iframe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrisuehlinger/ersatz/dom"
	"github.com/chrisuehlinger/ersatz/lifecycle"
)

func TestExtractOrigin(t *testing.T) {
	tests := map[string]string{
		"https://foo.bar/baz?q=1": "https://foo.bar",
		"http://foo.bar:8080":     "http://foo.bar:8080",
		"about:blank":             "about:blank",
		"mailto:me@foo.bar":       "mailto:me@foo.bar",
		"file:///tmp/index.html":  "file://",
		"/relative/path":          "",
		"":                        "",
	}
	for url, want := range tests {
		assert.Equal(t, want, ExtractOrigin(url), url)
	}
}

func TestWhitelistPasses(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		url      string
		want     bool
	}{
		{"default https", nil, "https://foo.bar/x", true},
		{"default http", nil, "http://foo.bar", true},
		{"default srcdoc", nil, "about:srcdoc", true},
		{"default blank", nil, "about:blank", true},
		{"default file", nil, "file:///tmp/x", false},
		{"default intent", nil, "intent://scan/#Intent;end", false},
		{"wildcard subdomain", []string{"https://*.foo.bar"}, "https://a.foo.bar/x", true},
		{"wildcard needs a subdomain", []string{"https://*.foo.bar"}, "https://foo.bar", false},
		{"custom replaces default", []string{"https://*.foo.bar"}, "http://a.foo.bar", false},
		{"dots are literal", []string{"https://foo.bar"}, "https://fooxbar", false},
		{"implicit origins stay", []string{"https://foo.bar"}, "about:blank", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compile(tt.patterns).Passes(tt.url))
		})
	}
}

func TestWhitelistSources(t *testing.T) {
	assert.Equal(t, []string{
		`^about:blank`,
		`^about:srcdoc`,
		`^http://.*`,
		`^https://.*`,
	}, Compile(nil).Sources())
}

func anchor(t *testing.T, attrs string) *dom.Element {
	t.Helper()
	doc, err := dom.Parse(`<a id="a" href="intent://x" `+attrs+`>x</a><p id="p"></p>`, "https://foo.bar/")
	require.NoError(t, err)
	return doc.GetElementByID("a")
}

func TestWillOpenInNewTab(t *testing.T) {
	tests := map[string]bool{
		``:                         false,
		`download`:                 true,
		`target="_blank"`:          true,
		`rel="noopener"`:           true,
		`rel="nofollow noopener"`:  true,
		`target="_blank" opener`:   false,
		`target="_self"`:           false,
		`download target="_blank"`: true,
	}
	for attrs, want := range tests {
		assert.Equal(t, want, WillOpenInNewTab(anchor(t, attrs)), attrs)
	}
	assert.False(t, WillOpenInNewTab(nil))
}

func TestDecide(t *testing.T) {
	deny := func(lifecycle.ShouldStartLoadRequest) bool { return false }
	wl := Compile(nil)
	paragraph := anchor(t, "").OwnerDocument().GetElementByID("p")

	tests := []struct {
		name      string
		active    *dom.Element
		predicate func(lifecycle.ShouldStartLoadRequest) bool
		url       string
		want      Decision
	}{
		{"whitelisted", nil, nil, "https://foo.bar/next", Decision{URL: "https://foo.bar/next", ShouldStart: true}},
		{"predicate refuses", nil, deny, "https://foo.bar/next", Decision{URL: "https://foo.bar/next"}},
		{"outside, no active element", nil, nil, "intent://x", Decision{URL: "intent://x", ShouldOpenURL: true}},
		{"outside, plain anchor", anchor(t, ""), nil, "intent://x", Decision{URL: "intent://x", ShouldOpenURL: true}},
		{"outside, new tab anchor", anchor(t, `target="_blank"`), deny, "intent://x", Decision{URL: "intent://x", ShouldStart: true, NewContext: true}},
		{"outside, opener anchor", anchor(t, `target="_blank" opener`), nil, "intent://x", Decision{URL: "intent://x", ShouldOpenURL: true}},
		{"outside, focused paragraph", paragraph, nil, "intent://x", Decision{URL: "intent://x", ShouldOpenURL: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(wl, tt.active, tt.predicate, tt.url))
		})
	}
}

func TestDecidePassesTheRequestToThePredicate(t *testing.T) {
	var got lifecycle.ShouldStartLoadRequest
	Decide(Compile(nil), nil, func(r lifecycle.ShouldStartLoadRequest) bool {
		got = r
		return true
	}, "https://foo.bar/next")
	assert.Equal(t, lifecycle.NewShouldStartLoadRequest("https://foo.bar/next"), got)
}

func TestParsePolicy(t *testing.T) {
	for _, p := range []Policy{OpenExternally, Rollback, AllowInPlace} {
		parsed, ok := ParsePolicy(p.String())
		assert.True(t, ok)
		assert.Equal(t, p, parsed)
	}
	_, ok := ParsePolicy("ignore")
	assert.False(t, ok)
}
