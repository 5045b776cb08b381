package network

import (
	"context"
	"fmt"
)

// Loader fetches subresources (page scripts, frame documents) through a
// Client, caching successful responses.
type Loader struct {
	client *Client
	cache  *Cache
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithCache replaces the loader's cache. A nil cache disables caching.
func WithCache(cache *Cache) LoaderOption {
	return func(l *Loader) {
		l.cache = cache
	}
}

// NewLoader creates a loader on top of client.
func NewLoader(client *Client, opts ...LoaderOption) *Loader {
	l := &Loader{
		client: client,
		cache:  NewCache(0),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load returns the body of the resource at url. Non-2xx responses are
// errors.
func (l *Loader) Load(ctx context.Context, url string) (string, error) {
	if !IsAbsoluteURL(url) {
		return "", fmt.Errorf("network: cannot load relative URL %q", url)
	}
	if l.cache != nil {
		if entry, ok := l.cache.Get(url); ok {
			return string(entry.Response.Body), nil
		}
	}
	resp, err := l.client.Get(ctx, url)
	if err != nil {
		return "", err
	}
	if !resp.OK() {
		return "", fmt.Errorf("network: %s returned %s", url, resp.Status)
	}
	if l.cache != nil {
		l.cache.Set(url, resp)
	}
	return string(resp.Body), nil
}
