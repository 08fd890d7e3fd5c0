package google

import (
	"context"
	"fmt"
)

// drainPool runs stream-drain jobs on a fixed set of workers. The Gemini
// read loop is a synchronous iterator, so without a bound every concurrent
// stream would pin its own worker for its whole lifetime; the pool caps
// that. Submission blocks when all workers are busy.
type drainPool struct {
	jobs chan func() error
}

func newDrainPool(size int) *drainPool {
	if size <= 0 {
		size = 10
	}
	p := &drainPool{jobs: make(chan func() error)}
	for i := 0; i < size; i++ {
		go p.worker()
	}
	return p
}

func (p *drainPool) worker() {
	for job := range p.jobs {
		// The job's own recovery turns panics into stream errors; this is
		// the backstop that keeps a worker alive no matter what.
		_ = safely(job)
	}
}

// submit hands a job to a worker, waiting for a free one. It fails only when
// ctx is cancelled before a worker picks the job up.
func (p *drainPool) submit(ctx context.Context, job func() error) error {
	select {
	case p.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// safely runs fn, converting a panic into an error instead of letting it
// take the worker down.
func safely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stream drain panic: %v", r)
		}
	}()
	return fn()
}
