package iframe

import (
	"regexp"
	"strings"

	"github.com/chrisuehlinger/ersatz/dom"
	"github.com/chrisuehlinger/ersatz/lifecycle"
)

// DefaultOriginWhitelist is used when the originWhitelist prop is empty.
var DefaultOriginWhitelist = []string{"http://*", "https://*"}

// implicitOrigins always pass: they are the documents an iframe starts
// with.
var implicitOrigins = []string{"about:blank", "about:srcdoc"}

var originPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+\-.]+:(//)?[^/]*`)

// ExtractOrigin returns the scheme and authority prefix of url, or "" when
// url has no scheme.
func ExtractOrigin(url string) string {
	return originPattern.FindString(url)
}

// Whitelist is a compiled list of origin patterns.
type Whitelist struct {
	patterns []*regexp.Regexp
}

// Compile compiles origin patterns, where * matches anything and every
// other character is literal. An empty list compiles the default
// whitelist.
func Compile(patterns []string) Whitelist {
	if len(patterns) == 0 {
		patterns = DefaultOriginWhitelist
	}
	all := append(append([]string(nil), implicitOrigins...), patterns...)
	wl := Whitelist{patterns: make([]*regexp.Regexp, 0, len(all))}
	for _, p := range all {
		wl.patterns = append(wl.patterns, regexp.MustCompile(patternSource(p)))
	}
	return wl
}

func patternSource(pattern string) string {
	return "^" + strings.ReplaceAll(regexp.QuoteMeta(pattern), `\*`, ".*")
}

// Passes reports whether the origin of url matches a pattern.
func (wl Whitelist) Passes(url string) bool {
	origin := ExtractOrigin(url)
	for _, re := range wl.patterns {
		if re.MatchString(origin) {
			return true
		}
	}
	return false
}

// Sources returns the regular expressions of the whitelist. They are valid
// JavaScript regular expressions as well.
func (wl Whitelist) Sources() []string {
	out := make([]string, len(wl.patterns))
	for i, re := range wl.patterns {
		out[i] = re.String()
	}
	return out
}

// WillOpenInNewTab reports whether the browser opens the target of anchor
// in a new browsing context rather than in the frame.
func WillOpenInNewTab(anchor *dom.Element) bool {
	return anchor != nil && anchor.OpensInNewContext()
}

// Decision is the outcome of a navigation request.
type Decision struct {
	URL string
	// ShouldStart allows the navigation.
	ShouldStart bool
	// ShouldOpenURL asks for the URL to be opened outside the WebView.
	ShouldOpenURL bool
	// NewContext is set when the browser itself opens the URL in a new
	// browsing context, leaving the frame untouched.
	NewContext bool
}

// Decide applies the whitelist to a navigation towards url. active is the
// focused element of the frame document when the navigation started, or
// nil. URLs outside the whitelist are only let through when a focused
// anchor opens them in a new context; everything inside is submitted to
// predicate.
func Decide(wl Whitelist, active *dom.Element, predicate func(lifecycle.ShouldStartLoadRequest) bool, url string) Decision {
	d := Decision{URL: url, ShouldStart: true}
	switch {
	case !wl.Passes(url):
		if active != nil && active.IsAnchor() && WillOpenInNewTab(active) {
			d.NewContext = true
			return d
		}
		d.ShouldStart = false
		d.ShouldOpenURL = true
	default:
		d.ShouldStart = lifecycle.ShouldStartLoad(predicate, url)
	}
	return d
}

// Policy tells what happens to a navigation rejected by the whitelist.
type Policy int

const (
	// OpenExternally opens the URL outside the WebView and resets the
	// history.
	OpenExternally Policy = iota
	// Rollback resets the history without opening the URL.
	Rollback
	// AllowInPlace navigates the frame anyway.
	AllowInPlace
)

func (p Policy) String() string {
	switch p {
	case Rollback:
		return "rollback"
	case AllowInPlace:
		return "allow-in-place"
	default:
		return "open-externally"
	}
}

// ParsePolicy parses the String form of a policy.
func ParsePolicy(s string) (Policy, bool) {
	for _, p := range []Policy{OpenExternally, Rollback, AllowInPlace} {
		if p.String() == s {
			return p, true
		}
	}
	return OpenExternally, false
}
