package source

import (
	"context"
	"log/slog"
	"sync"

	"github.com/chrisuehlinger/ersatz/lifecycle"
	"github.com/chrisuehlinger/ersatz/network"
)

// State is the resolution state of one generation.
type State int

const (
	Loading State = iota
	Resolved
	Failed
)

func (s State) String() string {
	switch s {
	case Resolved:
		return "resolved"
	case Failed:
		return "failed"
	default:
		return "loading"
	}
}

// Result is the outcome of a generation. Reason is set when State is
// Failed; Source when it is Resolved.
type Result struct {
	Generation int
	State      State
	Source     Normalized
	Reason     string
}

// Loader resolves sources. Every Load starts a new generation; results of
// older generations are dropped when they arrive, the transport itself is
// never aborted.
type Loader struct {
	client   *network.Client
	schedule func(func()) bool
	logger   *slog.Logger

	mu     sync.Mutex
	gen    int
	result Result
}

// Option configures a Loader.
type Option func(*Loader)

// WithSchedule sets the function delivering fetch results, typically the
// owner's loop Post. By default results are delivered on the fetching
// goroutine.
func WithSchedule(schedule func(func()) bool) Option {
	return func(l *Loader) {
		if schedule != nil {
			l.schedule = schedule
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLoader creates a loader fetching remote sources through client.
func NewLoader(client *network.Client, opts ...Option) *Loader {
	l := &Loader{
		client: client,
		logger: slog.Default(),
		schedule: func(fn func()) bool {
			fn()
			return true
		},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Result returns the state of the current generation.
func (l *Loader) Result() Result {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.result
}

// Load starts resolving src and returns the new generation. Inline sources
// resolve before Load returns; remote ones are fetched in the background.
// onUpdate receives the terminal Result of the generation unless a later
// Load or Cancel superseded it. A cancelled load only invalidates the
// previous generation.
func (l *Loader) Load(src Source, cancelled bool, onHTTPError func(lifecycle.SyntheticEvent[lifecycle.HTTPError]), onUpdate func(Result)) int {
	l.mu.Lock()
	l.gen++
	gen := l.gen
	l.result = Result{Generation: gen, State: Loading}
	l.mu.Unlock()

	if cancelled {
		return gen
	}
	if normalized, ok := Inline(src); ok {
		l.settle(gen, Result{State: Resolved, Source: normalized}, onUpdate)
		return gen
	}

	uri := src.(URI)
	go func() {
		resp, err := l.client.Do(context.Background(), &network.Request{
			Method:  uri.Method,
			URL:     uri.URI,
			Headers: uri.Headers,
			Body:    uri.Body,
		})
		l.schedule(func() {
			if !l.current(gen) {
				l.logger.Debug("source: discarding stale result", "uri", uri.URI, "generation", gen)
				return
			}
			switch {
			case err != nil:
				l.logger.Warn("source: fetch failed", "uri", uri.URI, "error", err)
				l.settle(gen, Result{State: Failed, Reason: err.Error()}, onUpdate)
			case !resp.OK():
				description := string(resp.Body)
				lifecycle.HandleHTTPError(onHTTPError, description, resp.StatusCode, uri.URI)
				l.settle(gen, Result{State: Failed, Reason: description}, onUpdate)
			default:
				l.settle(gen, Result{State: Resolved, Source: Normalized{HTML: string(resp.Body), URL: uri.URI}}, onUpdate)
			}
		})
	}()
	return gen
}

// Cancel invalidates the current generation.
func (l *Loader) Cancel() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.gen++
	l.result = Result{Generation: l.gen, State: Loading}
}

func (l *Loader) current(gen int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.gen == gen
}

func (l *Loader) settle(gen int, result Result, onUpdate func(Result)) {
	result.Generation = gen
	l.mu.Lock()
	if l.gen != gen {
		l.mu.Unlock()
		return
	}
	l.result = result
	l.mu.Unlock()
	if onUpdate != nil {
		onUpdate(result)
	}
}
