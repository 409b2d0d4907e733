package uithread

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startLoop(t *testing.T) *Loop {
	t.Helper()
	l, err := New(nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, l.Start(ctx))
	t.Cleanup(func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
		defer stopCancel()
		_ = l.Stop(stopCtx)
		cancel()
	})
	return l
}

func TestPostRunsOnUIThread(t *testing.T) {
	l := startLoop(t)
	assert.False(t, l.IsOnUIThread())

	onUI := make(chan bool, 1)
	require.NoError(t, l.Post(func() { onUI <- l.IsOnUIThread() }))

	select {
	case got := <-onUI:
		assert.True(t, got)
	case <-time.After(time.Second):
		t.Fatal("posted task never ran")
	}
}

func TestPostBeforeStart(t *testing.T) {
	l, err := New(nil)
	require.NoError(t, err)
	assert.ErrorIs(t, l.Post(func() {}), ErrNotStarted)
}

func TestRunImmediatelyInlineOnUIThread(t *testing.T) {
	l := startLoop(t)

	var order []string
	require.NoError(t, l.Call(context.Background(), func() {
		order = append(order, "outer")
		require.NoError(t, l.RunImmediately(func() { order = append(order, "inner") }))
		order = append(order, "after")
	}))
	assert.Equal(t, []string{"outer", "inner", "after"}, order)
}

func TestPostPreservesOrder(t *testing.T) {
	l := startLoop(t)

	var got []int
	for i := range 50 {
		require.NoError(t, l.Post(func() { got = append(got, i) }))
	}
	require.NoError(t, l.Call(context.Background(), func() {}))

	want := make([]int, 50)
	for i := range want {
		want[i] = i
	}
	assert.Equal(t, want, got)
}

func TestPostDelayed(t *testing.T) {
	l := startLoop(t)

	var ran atomic.Bool
	start := time.Now()
	require.NoError(t, l.PostDelayed(20*time.Millisecond, func() {
		assert.True(t, l.IsOnUIThread())
		ran.Store(true)
	}))
	require.Eventually(t, ran.Load, time.Second, time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestStopCancelsDelayed(t *testing.T) {
	l, err := New(nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, l.Start(ctx))

	var ran atomic.Bool
	require.NoError(t, l.PostDelayed(50*time.Millisecond, func() { ran.Store(true) }))
	require.NoError(t, l.Stop(context.Background()))

	time.Sleep(100 * time.Millisecond)
	assert.False(t, ran.Load())
	assert.Error(t, l.PostDelayed(time.Millisecond, func() {}))
}

func TestIsOnUIThreadFalseFromOtherGoroutines(t *testing.T) {
	l := startLoop(t)
	other := make(chan bool)
	require.NoError(t, l.Post(func() {
		go func() { other <- l.IsOnUIThread() }()
	}))
	select {
	case got := <-other:
		assert.False(t, got)
	case <-time.After(time.Second):
		t.Fatal("posted task never ran")
	}
}
