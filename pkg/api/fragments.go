package api

import "sync"

// Fragment is one incremental piece of generated text, or the terminal error
// of the stream that produced it. Exactly one of the two fields is set.
type Fragment struct {
	Text string
	Err  error
}

// FragmentSequence is a single-consumption, forward-only view over one
// upstream stream. Fragments arrive in upstream order and are never empty.
// Exhaustion and error termination are distinguishable: Next returns false
// for both, and Err reports the error, if any, afterwards.
//
// A sequence is bound to exactly one upstream stream. Once Next has returned
// false, or Close has been called, the sequence must not be read again.
type FragmentSequence struct {
	ch       <-chan Fragment
	stop     func()
	stopOnce sync.Once

	mu   sync.Mutex
	done bool
	err  error
}

// NewFragmentSequence wraps a fragment channel. stop is invoked once, on
// Close or on termination, to release the upstream stream and any worker
// draining it.
func NewFragmentSequence(ch <-chan Fragment, stop func()) *FragmentSequence {
	return &FragmentSequence{ch: ch, stop: stop}
}

// Next blocks for the next fragment. It returns false when the sequence has
// terminated, by natural exhaustion or by error.
func (s *FragmentSequence) Next() (string, bool) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return "", false
	}
	s.mu.Unlock()

	frag, ok := <-s.ch
	if !ok {
		s.finish(nil)
		return "", false
	}
	if frag.Err != nil {
		s.finish(frag.Err)
		return "", false
	}
	return frag.Text, true
}

// Err returns the terminal error of the sequence, or nil if it ended by
// natural exhaustion (or has not terminated yet).
func (s *FragmentSequence) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close abandons the sequence mid-consumption, cancelling the upstream
// stream. Safe to call more than once and after termination.
func (s *FragmentSequence) Close() {
	s.finish(nil)
}

func (s *FragmentSequence) finish(err error) {
	s.mu.Lock()
	if !s.done {
		s.done = true
		s.err = err
	}
	s.mu.Unlock()
	s.stopOnce.Do(func() {
		if s.stop != nil {
			s.stop()
		}
	})
}
