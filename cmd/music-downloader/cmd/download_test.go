package cmd

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterruptOnSignal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal)
	interrupted := make(chan struct{}, 2)
	var cancels atomic.Int32
	stopped := make(chan struct{})

	go func() {
		defer close(stopped)
		interruptOnSignal(ctx, sigs, func() { interrupted <- struct{}{} }, func() {
			cancels.Add(1)
			cancel()
		})
	}()

	sigs <- os.Interrupt
	select {
	case <-interrupted:
	case <-time.After(time.Second):
		t.Fatal("first signal did not interrupt the queue")
	}
	assert.Zero(t, cancels.Load(), "the download in flight keeps running after the first signal")

	sigs <- os.Interrupt
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("second signal did not stop the watcher")
	}
	assert.Equal(t, int32(1), cancels.Load())
	assert.Len(t, interrupted, 0)
	require.Error(t, ctx.Err())
}

func TestInterruptOnSignalReturnsWhenDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		interruptOnSignal(ctx, make(chan os.Signal), func() { t.Error("unexpected interrupt") }, cancel)
	}()

	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("watcher kept running after the context ended")
	}
}
