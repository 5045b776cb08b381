package loop

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopRunsTasksInOrder(t *testing.T) {
	l := New()
	defer l.Close()

	var mu sync.Mutex
	var got []int
	for i := 0; i < 50; i++ {
		i := i
		l.Post(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, l.Sync(ctx))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 50)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestLoopTaskMayPostFromInsideTask(t *testing.T) {
	l := New()
	defer l.Close()

	order := make(chan string, 2)
	l.Post(func() {
		l.Post(func() { order <- "second" })
		order <- "first"
	})
	assert.Equal(t, "first", <-order)
	assert.Equal(t, "second", <-order)
}

func TestLoopSurvivesPanickingTask(t *testing.T) {
	l := New()
	defer l.Close()

	l.Post(func() { panic("boom") })
	ran := make(chan struct{})
	l.Post(func() { close(ran) })

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("task after panic never ran")
	}
}

func TestLoopPostAfterClose(t *testing.T) {
	l := New()
	l.Close()
	assert.False(t, l.Post(func() {}))
	assert.Error(t, l.Sync(context.Background()))
}
