package iframe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrisuehlinger/ersatz/source"
)

func TestSyncStateTransitions(t *testing.T) {
	tests := []struct {
		from, to, want SyncState
	}{
		{StateInit, StateLoading, StateLoading},
		{StateInit, StateLoaded, StateInit},
		{StateInit, StateError, StateInit},
		{StateLoading, StateLoaded, StateLoaded},
		{StateLoading, StateError, StateError},
		{StateLoading, StateInit, StateLoading},
		{StateLoaded, StateInit, StateInit},
		{StateLoaded, StateError, StateError},
		{StateLoaded, StateLoading, StateLoaded},
		{StateError, StateInit, StateInit},
		{StateError, StateLoaded, StateError},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, next(tt.from, tt.to))
		})
	}
}

func TestNavigatorSetSyncState(t *testing.T) {
	n := NewNavigator(nil)
	assert.Equal(t, StateInit, n.SyncState())
	assert.False(t, n.SetSyncState(StateLoaded))
	assert.True(t, n.SetSyncState(StateLoading))
	assert.True(t, n.SetSyncState(StateLoaded))
	assert.Equal(t, StateLoaded, n.SyncState())
	assert.Equal(t, source.HTML{}, n.Current())
}

func TestNavigatorHistory(t *testing.T) {
	a := source.URI{URI: "https://a.test/"}
	b := source.URI{URI: "https://b.test/"}
	c := source.URI{URI: "https://c.test/"}

	n := NewNavigator(a)
	assert.False(t, n.CanGoBack())
	assert.False(t, n.CanGoForward())
	assert.False(t, n.GoBack())
	assert.Equal(t, 0, n.InstanceID())

	n.Navigate(b)
	n.Navigate(c)
	assert.Equal(t, 3, n.Len())
	assert.Equal(t, 2, n.Index())
	assert.Equal(t, c, n.Current())
	assert.Equal(t, 2, n.InstanceID())
	assert.False(t, n.GoForward())

	assert.True(t, n.GoBack())
	assert.True(t, n.GoBack())
	assert.Equal(t, a, n.Current())
	assert.True(t, n.CanGoForward())
	assert.Equal(t, 4, n.InstanceID())

	// Navigating keeps the forward entries.
	n.Navigate(c)
	assert.Equal(t, 4, n.Len())
	assert.Equal(t, 3, n.Index())
	assert.Equal(t, []source.Source{a, b, c, c}, n.history)
	assert.False(t, n.CanGoForward())
	assert.True(t, n.CanGoBack())
}

func TestNavigatorNavigateAfterGoBack(t *testing.T) {
	a := source.URI{URI: "https://a.test/"}
	b := source.URI{URI: "https://b.test/"}
	c := source.URI{URI: "https://c.test/"}
	n := NewNavigator(a)
	n.Navigate(b)
	require.True(t, n.GoBack())

	n.Navigate(c)
	assert.Equal(t, 3, n.Len())
	assert.Equal(t, 2, n.Index())
	assert.Equal(t, c, n.Current())
	assert.Equal(t, []source.Source{a, b, c}, n.history)

	require.True(t, n.GoBack())
	assert.Equal(t, b, n.Current())
}

func TestNavigatorRemountResetsSyncState(t *testing.T) {
	n := NewNavigator(source.HTML{HTML: "<p>hi</p>"})
	n.SetSyncState(StateLoading)
	n.SetSyncState(StateLoaded)

	n.Reload()
	assert.Equal(t, StateInit, n.SyncState())
	assert.Equal(t, 1, n.InstanceID())

	n.Navigate(source.URI{URI: "https://a.test/"})
	n.Reset(source.HTML{HTML: "<p>reset</p>"})
	assert.Equal(t, 1, n.Len())
	assert.Equal(t, 0, n.Index())
	assert.Equal(t, source.HTML{HTML: "<p>reset</p>"}, n.Current())
	assert.Equal(t, 3, n.InstanceID())
}
