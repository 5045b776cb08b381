package iframe

import (
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"
)

// Policies maps camelCase feature names to a policy: true allows the
// feature, false disables it and a string is a custom allowlist such as
// "'self' https://foo.bar".
type Policies map[string]any

// sandboxFeatures are the features expressed through the sandbox attribute
// rather than the allow attribute.
var sandboxFeatures = map[string]bool{
	"downloads":                      true,
	"forms":                          true,
	"modals":                         true,
	"orientationLock":                true,
	"pointerLock":                    true,
	"popups":                         true,
	"popupsToEscapeSandbox":          true,
	"presentation":                   true,
	"sameOrigin":                     true,
	"scripts":                        true,
	"storageAccessByUserActivation":  true,
	"topNavigation":                  true,
	"topNavigationByUserActivation":  true,
	"topNavigationToCustomProtocols": true,
}

// DefaultPolicies enables fullscreen, payment and document.domain, and
// keeps every sandbox feature but same-origin access disabled.
var DefaultPolicies = Policies{
	"fullscreen":     true,
	"payment":        true,
	"documentDomain": true,
	"sameOrigin":     true,
	"forms":          false,
	"modals":         false,
	"pointerLock":    false,
	"popups":         false,
	"presentation":   false,
	"topNavigation":  false,
	"downloads":      false,
}

var camelBoundary = regexp.MustCompile(`([a-z])([A-Z])`)

// dashCase turns documentDomain into document-domain.
func dashCase(name string) string {
	return strings.ToLower(camelBoundary.ReplaceAllString(name, "$1-$2"))
}

// Compiled holds the iframe attributes compiled from policies.
type Compiled struct {
	Allow   string
	Sandbox string
}

// CompilePolicies shallow-merges maps from left to right and compiles the
// result. Permission features go to the allow attribute, sandbox features
// that are not disabled to the sandbox attribute; allow-scripts is added
// when JavaScript is enabled. Entries are sorted by feature name.
func CompilePolicies(javaScriptEnabled bool, policies ...Policies) Compiled {
	merged := Policies{}
	for _, m := range policies {
		maps.Copy(merged, m)
	}
	delete(merged, "scripts")

	var allow, sandbox []string
	for _, name := range slices.Sorted(maps.Keys(merged)) {
		value := merged[name]
		if sandboxFeatures[name] {
			if value != false {
				sandbox = append(sandbox, "allow-"+dashCase(name))
			}
			continue
		}
		allow = append(allow, dashCase(name)+allowlist(value))
	}
	if javaScriptEnabled {
		sandbox = append(sandbox, "allow-scripts")
	}
	return Compiled{
		Allow:   strings.Join(allow, "; "),
		Sandbox: strings.Join(sandbox, " "),
	}
}

func allowlist(value any) string {
	switch v := value.(type) {
	case bool:
		if v {
			return ""
		}
		return " 'none'"
	case string:
		if v == "" {
			return ""
		}
		return " " + v
	default:
		return " " + fmt.Sprint(v)
	}
}

// SandboxTokens splits a sandbox attribute into its tokens.
func SandboxTokens(sandbox string) map[string]bool {
	tokens := map[string]bool{}
	for _, t := range strings.Fields(sandbox) {
		tokens[strings.ToLower(t)] = true
	}
	return tokens
}
