package network

import (
	"fmt"
	"net/url"
	"strings"
)

// opaqueSchemes are never resolved against a base.
var opaqueSchemes = []string{"data:", "javascript:", "mailto:", "about:", "blob:"}

// ResolveURL resolves ref against base. Absolute and opaque references are
// returned unchanged; an empty ref yields base.
func ResolveURL(base, ref string) (string, error) {
	if ref == "" {
		return base, nil
	}

	lower := strings.ToLower(ref)
	for _, scheme := range opaqueSchemes {
		if strings.HasPrefix(lower, scheme) {
			return ref, nil
		}
	}

	refURL, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid reference URL: %w", err)
	}
	if refURL.IsAbs() {
		return refURL.String(), nil
	}

	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	if !baseURL.IsAbs() || baseURL.Opaque != "" {
		return "", fmt.Errorf("cannot resolve %q against %q", ref, base)
	}

	return baseURL.ResolveReference(refURL).String(), nil
}

// IsAbsoluteURL reports whether urlStr carries a scheme.
func IsAbsoluteURL(urlStr string) bool {
	u, err := url.Parse(urlStr)
	if err != nil {
		return false
	}
	return u.IsAbs()
}

// GetOrigin returns the serialized origin of an absolute URL, without
// its default port. URLs without a host, about:blank among them, have the
// opaque origin "null".
func GetOrigin(urlStr string) (string, error) {
	u, err := url.Parse(urlStr)
	if err != nil {
		return "", err
	}

	if !u.IsAbs() {
		return "", fmt.Errorf("URL is not absolute")
	}

	if u.Host == "" {
		return "null", nil
	}

	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	switch {
	case scheme == "http" && strings.HasSuffix(host, ":80"):
		host = strings.TrimSuffix(host, ":80")
	case scheme == "https" && strings.HasSuffix(host, ":443"):
		host = strings.TrimSuffix(host, ":443")
	}
	return scheme + "://" + host, nil
}
