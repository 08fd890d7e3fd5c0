package google

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDrainPool_RunsJobs(t *testing.T) {
	p := newDrainPool(3)

	var ran atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		err := p.submit(context.Background(), func() error {
			defer wg.Done()
			ran.Add(1)
			return nil
		})
		require.NoError(t, err)
	}
	wg.Wait()
	assert.Equal(t, int32(20), ran.Load())
}

func TestDrainPool_BoundedConcurrency(t *testing.T) {
	const workers = 2
	p := newDrainPool(workers)

	var active, peak atomic.Int32
	release := make(chan struct{})
	var wg sync.WaitGroup

	job := func() error {
		defer wg.Done()
		n := active.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		<-release
		active.Add(-1)
		return nil
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		require.NoError(t, p.submit(context.Background(), job))
	}

	// every worker is now parked on release; a further submit must block
	// until the caller's context gives up
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := p.submit(ctx, func() error { return nil })
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	wg.Wait()
	assert.LessOrEqual(t, peak.Load(), int32(workers))
}

func TestDrainPool_SurvivesPanic(t *testing.T) {
	p := newDrainPool(1)

	require.NoError(t, p.submit(context.Background(), func() error {
		panic("drain blew up")
	}))

	// the sole worker must still be alive to pick this one up
	done := make(chan struct{})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.submit(ctx, func() error {
		close(done)
		return nil
	}))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not survive a panicking job")
	}
}

func TestSafely(t *testing.T) {
	assert.NoError(t, safely(func() error { return nil }))

	sentinel := errors.New("plain failure")
	assert.ErrorIs(t, safely(func() error { return sentinel }), sentinel)

	err := safely(func() error { panic("boom") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}
