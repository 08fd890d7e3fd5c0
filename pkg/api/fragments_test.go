package api

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feed(fragments ...Fragment) <-chan Fragment {
	ch := make(chan Fragment, len(fragments))
	for _, f := range fragments {
		ch <- f
	}
	close(ch)
	return ch
}

func TestFragmentSequence_Exhaustion(t *testing.T) {
	seq := NewFragmentSequence(feed(Fragment{Text: "a"}, Fragment{Text: "b"}), nil)

	text, ok := seq.Next()
	require.True(t, ok)
	assert.Equal(t, "a", text)

	text, ok = seq.Next()
	require.True(t, ok)
	assert.Equal(t, "b", text)

	_, ok = seq.Next()
	assert.False(t, ok)
	assert.NoError(t, seq.Err(), "natural exhaustion carries no error")

	// reading past termination stays terminated
	_, ok = seq.Next()
	assert.False(t, ok)
}

func TestFragmentSequence_ErrorTermination(t *testing.T) {
	boom := errors.New("upstream died")
	seq := NewFragmentSequence(feed(Fragment{Text: "partial"}, Fragment{Err: boom}), nil)

	text, ok := seq.Next()
	require.True(t, ok)
	assert.Equal(t, "partial", text)

	_, ok = seq.Next()
	assert.False(t, ok)
	assert.ErrorIs(t, seq.Err(), boom)
}

func TestFragmentSequence_CloseStopsOnce(t *testing.T) {
	stops := 0
	seq := NewFragmentSequence(feed(Fragment{Text: "a"}), func() { stops++ })

	seq.Close()
	seq.Close()
	assert.Equal(t, 1, stops, "stop runs exactly once")

	_, ok := seq.Next()
	assert.False(t, ok, "a closed sequence yields nothing")
	assert.NoError(t, seq.Err())
}

func TestFragmentSequence_StopRunsOnTermination(t *testing.T) {
	stopped := make(chan struct{})
	seq := NewFragmentSequence(feed(), func() { close(stopped) })

	_, ok := seq.Next()
	assert.False(t, ok)

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("stop did not run when the sequence drained")
	}
}
