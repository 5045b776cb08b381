package iframe

import "github.com/chrisuehlinger/ersatz/source"

// SyncState is the load state of the mounted iframe generation.
type SyncState string

const (
	StateInit    SyncState = "init"
	StateLoading SyncState = "loading"
	StateLoaded  SyncState = "loaded"
	StateError   SyncState = "error"
)

var transitions = map[SyncState][]SyncState{
	StateInit:    {StateLoading},
	StateLoading: {StateLoaded, StateError},
	// loaded -> error: Chrome reports some failures after the load event.
	StateLoaded: {StateInit, StateError},
	StateError:  {StateInit},
}

// next returns the state reached by requesting to from st. Transitions
// missing from the table leave the state unchanged.
func next(st, to SyncState) SyncState {
	for _, allowed := range transitions[st] {
		if allowed == to {
			return to
		}
	}
	return st
}

// Navigator is the history of an iframe WebView. Every change that needs a
// fresh browsing context bumps InstanceID, which keys the iframe element.
// It is not safe for concurrent use.
type Navigator struct {
	history    []source.Source
	current    int
	instanceID int
	syncState  SyncState
}

// NewNavigator starts a history holding src.
func NewNavigator(src source.Source) *Navigator {
	return &Navigator{history: []source.Source{orEmpty(src)}, syncState: StateInit}
}

func orEmpty(src source.Source) source.Source {
	if src == nil {
		return source.HTML{}
	}
	return src
}

// Current returns the source of the current history entry.
func (n *Navigator) Current() source.Source {
	return n.history[n.current]
}

// InstanceID returns the id of the mounted iframe generation.
func (n *Navigator) InstanceID() int {
	return n.instanceID
}

// SyncState returns the load state of the mounted generation.
func (n *Navigator) SyncState() SyncState {
	return n.syncState
}

// Len returns the number of history entries.
func (n *Navigator) Len() int {
	return len(n.history)
}

// Index returns the position of the current entry.
func (n *Navigator) Index() int {
	return n.current
}

func (n *Navigator) CanGoBack() bool {
	return n.current > 0
}

func (n *Navigator) CanGoForward() bool {
	return n.current < len(n.history)-1
}

// SetSyncState requests a sync state change and reports whether it
// happened.
func (n *Navigator) SetSyncState(to SyncState) bool {
	st := next(n.syncState, to)
	if st == n.syncState {
		return false
	}
	n.syncState = st
	return true
}

// Navigate appends src to the history, makes it the current entry and
// remounts. Forward entries are kept.
func (n *Navigator) Navigate(src source.Source) {
	n.history = append(n.history, orEmpty(src))
	n.current = len(n.history) - 1
	n.remount()
}

// GoBack moves to the previous entry. It reports false at the start of the
// history.
func (n *Navigator) GoBack() bool {
	if !n.CanGoBack() {
		return false
	}
	n.current--
	n.remount()
	return true
}

// GoForward moves to the next entry. It reports false at the end of the
// history.
func (n *Navigator) GoForward() bool {
	if !n.CanGoForward() {
		return false
	}
	n.current++
	n.remount()
	return true
}

// Reload remounts the current entry.
func (n *Navigator) Reload() {
	n.remount()
}

// Reset collapses the history to src.
func (n *Navigator) Reset(src source.Source) {
	n.history = []source.Source{orEmpty(src)}
	n.current = 0
	n.remount()
}

func (n *Navigator) remount() {
	n.instanceID++
	n.syncState = StateInit
}
