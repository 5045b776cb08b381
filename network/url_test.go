package network

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveURL(t *testing.T) {
	tests := []struct {
		name, base, ref, want string
	}{
		{"absolute", "https://foo.bar/blog/", "https://baz.qux/x.js", "https://baz.qux/x.js"},
		{"relative", "https://foo.bar/blog/", "post.html", "https://foo.bar/blog/post.html"},
		{"parent", "https://foo.bar/blog/2020/", "../about", "https://foo.bar/blog/about"},
		{"rooted", "https://foo.bar/blog/", "/200", "https://foo.bar/200"},
		{"fragment", "https://foo.bar/", "#top", "https://foo.bar/#top"},
		{"empty", "https://foo.bar/blog", "", "https://foo.bar/blog"},
		{"data", "https://foo.bar/", "data:text/html,<p>", "data:text/html,<p>"},
		{"javascript", "https://foo.bar/", "javascript:void(0)", "javascript:void(0)"},
		{"about", "https://foo.bar/", "about:srcdoc", "about:srcdoc"},
		{"mailto", "about:blank", "mailto:a@foo.bar", "mailto:a@foo.bar"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveURL(tt.base, tt.ref)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveURLAgainstOpaqueBase(t *testing.T) {
	_, err := ResolveURL("about:blank", "/blog")
	assert.Error(t, err)

	_, err = ResolveURL("", "blog")
	assert.Error(t, err)
}

func TestIsAbsoluteURL(t *testing.T) {
	assert.True(t, IsAbsoluteURL("https://foo.bar/app.js"))
	assert.True(t, IsAbsoluteURL("about:blank"))
	assert.False(t, IsAbsoluteURL("/app.js"))
	assert.False(t, IsAbsoluteURL("//foo.bar/app.js"))
	assert.False(t, IsAbsoluteURL("%zz"))
}

func TestGetOrigin(t *testing.T) {
	tests := map[string]string{
		"https://foo.bar/blog?x=1":   "https://foo.bar",
		"HTTPS://Foo.Bar:443/":       "https://foo.bar",
		"http://localhost:80/x":      "http://localhost",
		"http://localhost:8080/x":    "http://localhost:8080",
		"https://foo.bar:8443/x":     "https://foo.bar:8443",
		"about:blank":                "null",
		"about:srcdoc":               "null",
		"data:text/html,<p>hi</p>":   "null",
		"http://ersatz.localhost/#a": "http://ersatz.localhost",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			got, err := GetOrigin(in)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}

	_, err := GetOrigin("/relative")
	assert.Error(t, err)
}
