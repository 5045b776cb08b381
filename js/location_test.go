package js

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocationProperties(t *testing.T) {
	w := NewWindow(Options{
		URL:            "https://example.com:8080/path/to/page?query=value#section",
		ScriptsEnabled: true,
	})
	defer w.Close()

	tests := []struct {
		code string
		want string
	}{
		{"location.href", "https://example.com:8080/path/to/page?query=value#section"},
		{"location.protocol", "https:"},
		{"location.host", "example.com:8080"},
		{"location.hostname", "example.com"},
		{"location.port", "8080"},
		{"location.pathname", "/path/to/page"},
		{"location.search", "?query=value"},
		{"location.hash", "#section"},
		{"location.origin", "https://example.com:8080"},
		{"String(location)", "https://example.com:8080/path/to/page?query=value#section"},
		{"document.location === location ? 'same' : 'different'", "same"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			got, err := w.Eval(tt.code)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLocationBlank(t *testing.T) {
	w := NewWindow(Options{ScriptsEnabled: true})
	defer w.Close()

	got, err := w.Eval("location.href + ' ' + location.origin")
	require.NoError(t, err)
	assert.Equal(t, "about:blank null", got)
}

func TestLocationHashChangeStaysInDocument(t *testing.T) {
	var navigated []string
	w := NewWindow(Options{
		URL:            "https://example.com/page",
		ScriptsEnabled: true,
		Navigate:       func(url string) { navigated = append(navigated, url) },
	})
	defer w.Close()

	_, err := w.Eval("location.hash = 'top'")
	require.NoError(t, err)

	assert.Empty(t, navigated)
	assert.Equal(t, "https://example.com/page#top", w.URL())
	assert.Equal(t, "https://example.com/page#top", w.Document().URL())
}

func TestLocationAssignNavigates(t *testing.T) {
	tests := []struct {
		name string
		code string
		want string
	}{
		{"href relative", "location.href = 'other.html'", "https://example.com/dir/other.html"},
		{"assign absolute", "location.assign('https://example.org/')", "https://example.org/"},
		{"replace", "location.replace('/root')", "https://example.com/root"},
		{"reload", "location.reload()", "https://example.com/dir/page.html"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var navigated []string
			w := NewWindow(Options{
				URL:            "https://example.com/dir/page.html",
				ScriptsEnabled: true,
				Navigate:       func(url string) { navigated = append(navigated, url) },
			})
			defer w.Close()

			_, err := w.Eval(tt.code)
			require.NoError(t, err)
			assert.Equal(t, []string{tt.want}, navigated)
			// The page itself is not replaced; the owner decides.
			assert.Equal(t, "https://example.com/dir/page.html", w.URL())
		})
	}
}

func TestLocationBeforeUnload(t *testing.T) {
	w := NewWindow(Options{
		URL:            "https://example.com/",
		ScriptsEnabled: true,
		Navigate:       func(string) {},
	})
	defer w.Close()

	_, err := w.Eval(`
		var unloading = 0;
		window.addEventListener('beforeunload', function () { unloading++ });
		location.href = '/next';
	`)
	require.NoError(t, err)
	assert.EqualValues(t, 1, w.Get("unloading"))
}

func TestSameDocument(t *testing.T) {
	assert.True(t, sameDocument("https://a.test/x", "https://a.test/x#y"))
	assert.True(t, sameDocument("https://a.test/x#a", "https://a.test/x#b"))
	assert.False(t, sameDocument("https://a.test/x", "https://a.test/y#y"))
	assert.False(t, sameDocument("https://a.test/x", "https://a.test/x"))
}
