package pagination

import (
	"context"
	"errors"
	"sync"
)

// ErrFuserClosed is returned by Feed once no more sources are accepted.
var ErrFuserClosed = errors.New("fuser closed")

// Fuser presents a sequence of streams, fed one at a time, as a single
// Stream. Records of a source are emitted in order; the next source becomes
// active only once the previous one ended. The fused stream ends after Finish
// has been called and every fed source has ended.
//
// Feed, Finish and Fail may be called from any goroutine. Next and Stop belong
// to the consumer and must not be called concurrently with each other.
type Fuser[R any] struct {
	mu       sync.Mutex
	current  Stream[R]
	pending  []Stream[R]
	finished bool
	stopped  bool
	ended    bool
	err      error
	wake     chan struct{}
	drained  chan struct{}
	onStop   func()
}

var _ Stream[any] = (*Fuser[any])(nil)

// NewFuser returns an empty Fuser.
func NewFuser[R any]() *Fuser[R] {
	return &Fuser[R]{
		wake:    make(chan struct{}, 1),
		drained: make(chan struct{}, 1),
	}
}

// Feed appends s to the sources. If the fuser no longer accepts sources, s is
// stopped and ErrFuserClosed is returned.
func (f *Fuser[R]) Feed(s Stream[R]) error {
	f.mu.Lock()
	if f.finished || f.stopped || f.err != nil {
		f.mu.Unlock()
		s.Stop()
		return ErrFuserClosed
	}
	f.pending = append(f.pending, s)
	f.mu.Unlock()

	f.signal()
	return nil
}

// Finish declares that no more sources will be fed.
func (f *Fuser[R]) Finish() {
	f.mu.Lock()
	f.finished = true
	f.mu.Unlock()

	f.signal()
}

// Fail queues err behind every source fed so far and declares that no more
// sources will be fed. The consumer observes err once the already fed sources
// have been drained. A nil err is equivalent to Finish.
func (f *Fuser[R]) Fail(err error) {
	if err == nil {
		f.Finish()
		return
	}

	f.mu.Lock()
	if !f.finished && !f.stopped {
		f.pending = append(f.pending, Failed[R](err))
	}
	f.finished = true
	f.mu.Unlock()

	f.signal()
}

// Next returns the next record of the active source, switching to the next
// fed source when the active one ends. The first source error is returned and
// then latched: every later call returns it again and no other source is
// consumed.
func (f *Fuser[R]) Next(ctx context.Context) (R, error) {
	var zero R

	for {
		f.mu.Lock()
		switch {
		case f.err != nil:
			err := f.err
			f.mu.Unlock()
			return zero, err
		case f.stopped, f.ended:
			f.mu.Unlock()
			return zero, ErrStreamDone
		}

		if f.current == nil {
			if len(f.pending) == 0 {
				if f.finished {
					f.ended = true
					f.mu.Unlock()
					f.release()
					return zero, ErrStreamDone
				}
				f.mu.Unlock()

				select {
				case <-f.wake:
					continue
				case <-ctx.Done():
					return zero, ctx.Err()
				}
			}

			f.current = f.pending[0]
			f.pending[0] = nil
			f.pending = f.pending[1:]
			notify(f.drained)
		}
		src := f.current
		f.mu.Unlock()

		r, err := src.Next(ctx)
		if err == nil {
			return r, nil
		}

		if IsDone(err) {
			src.Stop()
			f.mu.Lock()
			if f.current == src {
				f.current = nil
			}
			f.mu.Unlock()
			continue
		}

		// The consumer's own cancellation is not a source failure.
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return zero, err
		}

		return zero, f.latch(err)
	}
}

// latch records err as the terminal error and stops every source.
func (f *Fuser[R]) latch(err error) error {
	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		return ErrStreamDone
	}
	if f.err == nil {
		f.err = err
	}
	err = f.err
	sources := f.detach()
	f.mu.Unlock()

	for _, s := range sources {
		s.Stop()
	}
	f.release()
	return err
}

// Stop stops the active source and every pending one. Subsequent Next calls
// return ErrStreamDone and subsequent Feed calls are rejected.
func (f *Fuser[R]) Stop() {
	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		return
	}
	f.stopped = true
	sources := f.detach()
	f.mu.Unlock()

	for _, s := range sources {
		s.Stop()
	}
	f.signal()
	notify(f.drained)
	f.release()
}

// release fires the stop hook, at most once, when the fused stream can make
// no more progress: on Stop, at its end, or once it failed.
func (f *Fuser[R]) release() {
	f.mu.Lock()
	hook := f.onStop
	f.onStop = nil
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
}

// Err returns the latched source error, if any.
func (f *Fuser[R]) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// detach removes and returns every source held by the fuser. f.mu must be held.
func (f *Fuser[R]) detach() []Stream[R] {
	sources := make([]Stream[R], 0, len(f.pending)+1)
	if f.current != nil {
		sources = append(sources, f.current)
		f.current = nil
	}
	sources = append(sources, f.pending...)
	f.pending = nil
	return sources
}

// Pending returns the number of fed sources that are not active yet.
func (f *Fuser[R]) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// WaitPending blocks until fewer than limit sources are pending. It returns
// ErrFuserClosed once the fuser was stopped or failed, and ctx.Err() if ctx
// is done first. Only one goroutine may wait at a time.
func (f *Fuser[R]) WaitPending(ctx context.Context, limit int) error {
	for {
		f.mu.Lock()
		closed := f.stopped || f.err != nil
		n := len(f.pending)
		f.mu.Unlock()

		if closed {
			return ErrFuserClosed
		}
		if limit <= 0 || n < limit {
			return nil
		}

		select {
		case <-f.drained:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (f *Fuser[R]) signal() {
	notify(f.wake)
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
