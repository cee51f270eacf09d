package pagination

import (
	"context"
	"errors"
)

// ErrStreamDone is returned by Stream.Next once a stream has ended normally.
var ErrStreamDone = errors.New("stream done")

// Stream is a lazily produced sequence of records.
type Stream[R any] interface {
	// Next returns the next record. It returns ErrStreamDone after the last
	// record and any other error if the stream failed. If the context is
	// cancelled, ctx.Err() is returned.
	Next(ctx context.Context) (R, error)
	// Stop releases the resources held by the stream. It is safe to call
	// more than once.
	Stop()
}

// IsDone reports whether err marks the normal end of a stream.
func IsDone(err error) bool {
	return errors.Is(err, ErrStreamDone)
}

// FromSlice returns a Stream yielding the given records in order.
func FromSlice[R any](records []R) Stream[R] {
	return &sliceStream[R]{records: records}
}

type sliceStream[R any] struct {
	records []R
	stopped bool
}

func (s *sliceStream[R]) Next(ctx context.Context) (R, error) {
	var zero R
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	if s.stopped || len(s.records) == 0 {
		return zero, ErrStreamDone
	}
	r := s.records[0]
	s.records = s.records[1:]
	return r, nil
}

func (s *sliceStream[R]) Stop() {
	s.stopped = true
	s.records = nil
}

// Failed returns a Stream whose every Next call returns err.
func Failed[R any](err error) Stream[R] {
	return &errorStream[R]{err: err}
}

type errorStream[R any] struct {
	err error
}

func (e *errorStream[R]) Next(context.Context) (R, error) {
	var zero R
	return zero, e.err
}

func (e *errorStream[R]) Stop() {}

// Collect drains s and returns every record it produced. The stream is
// stopped before returning. A non-nil error is returned for any failure other
// than the normal end of the stream; the records read so far are returned
// alongside it.
func Collect[R any](ctx context.Context, s Stream[R]) ([]R, error) {
	defer s.Stop()

	var out []R
	for {
		r, err := s.Next(ctx)
		if err != nil {
			if IsDone(err) {
				return out, nil
			}
			return out, err
		}
		out = append(out, r)
	}
}
