package controller

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCycleControllerDefaultsInterval(t *testing.T) {
	c := newCycleController(0)
	require.Equal(t, 5*time.Second, c.Interval())
}

func TestCycleControllerSetIntervalWakesWaiter(t *testing.T) {
	c := newCycleController(time.Hour)
	done := make(chan error, 1)
	go func() {
		_, err := c.Wait(context.Background())
		done <- err
	}()

	// Give the waiter a chance to arm its timer before shortening it.
	time.Sleep(10 * time.Millisecond)
	c.SetInterval(5 * time.Millisecond)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("wait did not pick up the new interval")
	}
}

func TestCycleControllerWaitHonoursContext(t *testing.T) {
	c := newCycleController(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Wait(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestCycleControllerRejectsNonPositive(t *testing.T) {
	c := newCycleController(time.Second)
	c.SetInterval(-time.Second)
	require.Equal(t, time.Millisecond, c.Interval())
}
