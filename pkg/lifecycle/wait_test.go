package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ===========================================================================
// WaitFor Tests
// ===========================================================================

func TestWaitFor_AlreadyReached(t *testing.T) {
	t.Parallel()
	c := mustBuild(t, NewComponentBuilder("svc"))
	assert.True(t, c.WaitFor(context.Background(), StatusCreated, time.Millisecond, true))
}

func TestWaitFor_ReachedFromAnotherGoroutine(t *testing.T) {
	t.Parallel()
	c := mustBuild(t, NewComponentBuilder("svc"))

	go func() {
		time.Sleep(10 * time.Millisecond)
		c.Engage(context.Background())
	}()

	assert.True(t, c.WaitForEnabled(context.Background(), eventually))
}

func TestWaitFor_MaxWaitElapses(t *testing.T) {
	t.Parallel()
	c := mustBuild(t, NewComponentBuilder("svc"))

	start := time.Now()
	assert.False(t, c.WaitFor(context.Background(), StatusEnabled, 20*time.Millisecond, false))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestWaitFor_ContextCanceled(t *testing.T) {
	t.Parallel()
	c := mustBuild(t, NewComponentBuilder("svc"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.False(t, c.WaitFor(ctx, StatusEnabled, 0, false))
}

func TestWaitFor_BreakOnFailure(t *testing.T) {
	t.Parallel()
	c := mustBuild(t, NewComponentBuilder("svc").
		WithOnInitialize(func(context.Context) error {
			return errors.New("refused")
		}))

	go func() {
		time.Sleep(10 * time.Millisecond)
		c.Engage(context.Background())
	}()

	start := time.Now()
	assert.False(t, c.WaitForEnabled(context.Background(), eventually))
	assert.Less(t, time.Since(start), eventually)
	assert.Equal(t, StatusError, c.Status())
}

func TestWaitFor_IgnoresFailureWithoutBreak(t *testing.T) {
	t.Parallel()
	c := mustBuild(t, NewComponentBuilder("svc"))
	ctx := context.Background()
	require.True(t, c.Engage(ctx))

	go func() {
		time.Sleep(10 * time.Millisecond)
		c.Error(ctx, "transient")
		c.ShutDown(ctx)
	}()

	assert.True(t, c.WaitFor(ctx, StatusDown, eventually, false))
}

// TestWaitFor_SeesShortLivedStatus verifies that a status replaced before
// the waiter wakes is still observed.
func TestWaitFor_SeesShortLivedStatus(t *testing.T) {
	t.Parallel()
	c := mustBuild(t, NewComponentBuilder("svc"))

	reached := make(chan bool)
	go func() {
		reached <- c.WaitFor(context.Background(), StatusInitializing, eventually, false)
	}()
	time.Sleep(20 * time.Millisecond)
	require.True(t, c.Engage(context.Background()))

	assert.True(t, <-reached)
}

func TestWaitFor_DestroyedEndsWait(t *testing.T) {
	t.Parallel()
	c := mustBuild(t, NewComponentBuilder("svc"))

	go func() {
		time.Sleep(10 * time.Millisecond)
		c.Destroy(context.Background())
	}()

	assert.False(t, c.WaitFor(context.Background(), StatusEnabled, eventually, false))
}

// TestWaitFor_FromOwnHookReturnsImmediately verifies that a hook waiting for
// its own component does not deadlock.
func TestWaitFor_FromOwnHookReturnsImmediately(t *testing.T) {
	t.Parallel()
	var (
		waited  bool
		elapsed time.Duration
	)
	var c *Component
	c = mustBuild(t, NewComponentBuilder("svc").
		WithOnInitialize(func(ctx context.Context) error {
			start := time.Now()
			waited = c.WaitForEnabled(ctx, time.Minute)
			elapsed = time.Since(start)
			return nil
		}))

	require.True(t, c.Engage(context.Background()))

	assert.False(t, waited)
	assert.Less(t, elapsed, time.Second)
}

func TestChanged_ClosedOnStatusChange(t *testing.T) {
	t.Parallel()
	c := mustBuild(t, NewComponentBuilder("svc"))
	ch := c.Changed()

	require.True(t, c.Engage(context.Background()))

	select {
	case <-ch:
	default:
		t.Fatal("Changed channel was not closed")
	}
}
