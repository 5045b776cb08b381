package ersatztest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrisuehlinger/ersatz/backend"
	"github.com/chrisuehlinger/ersatz/dom"
	"github.com/chrisuehlinger/ersatz/js"
)

// fakeView renders the marker it is told to and counts Sync calls.
type fakeView struct {
	mu     sync.Mutex
	marker string
	doc    *dom.Document
	syncs  int
}

func (*fakeView) GoBack()                 {}
func (*fakeView) GoForward()              {}
func (*fakeView) Reload()                 {}
func (*fakeView) StopLoading()            {}
func (*fakeView) RequestFocus()           {}
func (*fakeView) InjectJavaScript(string) {}
func (*fakeView) Window() *js.Window      { return nil }

func (v *fakeView) Document() *dom.Document {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.doc
}

func (v *fakeView) Render() *backend.View {
	v.mu.Lock()
	defer v.mu.Unlock()
	return backend.NewView("ScrollView", "", backend.NewView("View", v.marker))
}

func (v *fakeView) Sync(context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.syncs++
	return nil
}

func (v *fakeView) set(marker string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.marker = marker
}

func TestWaitForErsatz(t *testing.T) {
	v := &fakeView{marker: backend.Marker("loading", 0)}
	go func() {
		time.Sleep(10 * time.Millisecond)
		v.set(backend.Marker("loaded", 0))
	}()

	got, err := WaitForErsatz(context.Background(), v, Options{})
	require.NoError(t, err)
	assert.Same(t, v, got)
	assert.Equal(t, 1, v.syncs)
}

func TestWaitForErsatzCycle(t *testing.T) {
	v := &fakeView{marker: backend.Marker("loaded", 0)}

	_, err := WaitForErsatz(context.Background(), v, Options{LoadCycleID: 1, Timeout: 20 * time.Millisecond})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, v.syncs)

	_, err = WaitForErsatz(context.Background(), v, Options{State: "loaded"})
	assert.NoError(t, err)
}

func TestWaitForDocument(t *testing.T) {
	v := &fakeView{marker: backend.Marker("loaded", 0)}
	_, err := WaitForDocument(context.Background(), v, Options{})
	assert.Error(t, err)

	doc, err := dom.Parse("<title>Hi</title>", "")
	require.NoError(t, err)
	v.doc = doc
	got, err := WaitForDocument(context.Background(), v, Options{})
	require.NoError(t, err)
	assert.Same(t, doc, got)
}

func TestWaitForWindow(t *testing.T) {
	v := &fakeView{marker: backend.Marker("loaded", 0)}
	_, err := WaitForWindow(context.Background(), v, Options{})
	assert.ErrorContains(t, err, "no window")
}
