package pagination

import (
	"context"
	"errors"
	"sync"
)

const (
	page0URL = "http://example.org/"
	page1URL = "http://example.org/1"
	page2URL = "http://example.org/2"
)

var errUnknownPage = errors.New("unknown page")

// testStream yields records and then either ends or fails with err.
type testStream struct {
	mu      sync.Mutex
	records []string
	err     error
	stopped bool
	stops   int
}

func newTestStream(records ...string) *testStream {
	return &testStream{records: records}
}

// failing makes the stream fail with err once its records are exhausted.
func (s *testStream) failing(err error) *testStream {
	s.err = err
	return s
}

func (s *testStream) Next(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.stopped {
		return "", ErrStreamDone
	}
	if len(s.records) == 0 {
		if s.err != nil {
			return "", s.err
		}
		return "", ErrStreamDone
	}
	r := s.records[0]
	s.records = s.records[1:]
	return r, nil
}

func (s *testStream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	s.stops++
}

func (s *testStream) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// testChain serves the three-page chain 0 -> 1 -> 2.
type testChain struct {
	streams [3]*testStream
}

func newTestChain() *testChain {
	return &testChain{streams: [3]*testStream{
		newTestStream("0a", "0b", "0c"),
		newTestStream("1a", "1b", "1c"),
		newTestStream("2a", "2b", "2c"),
	}}
}

func (c *testChain) Fetch(_ context.Context, url string) (*Page[string], error) {
	switch url {
	case page0URL:
		return c.page("0", 0, page1URL), nil
	case page1URL:
		return c.page("1", 1, page2URL), nil
	case page2URL:
		return c.page("2", 2, ""), nil
	default:
		return nil, errUnknownPage
	}
}

func (c *testChain) page(id string, i int, next string) *Page[string] {
	var nextValue any
	if next != "" {
		nextValue = next
	}
	return &Page[string]{
		URL:         id,
		Triples:     true,
		RawMetadata: Metadata{"next": nextValue},
		Records:     c.streams[i],
	}
}

// nextExtractor reads the "next" key of the metadata.
var nextExtractor = ExtractorFunc(func(_ context.Context, in ExtractInput) (*ParsedMetadata, error) {
	next, _ := in.Metadata["next"].(string)
	return &ParsedMetadata{Next: next, Fields: map[string]any(in.Metadata)}, nil
})

// callCounter counts calls made to a collaborator.
type callCounter struct {
	mu    sync.Mutex
	calls int
}

func (c *callCounter) inc() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.calls
}

// fetcherFailingAfter lets the first n calls through and fails every later
// one with err. The combiner and extractor variants behave the same.
func fetcherFailingAfter[R any](inner Fetcher[R], n int, err error) Fetcher[R] {
	counter := &callCounter{}
	return FetcherFunc[R](func(ctx context.Context, url string) (*Page[R], error) {
		if counter.inc() > n {
			return nil, err
		}
		return inner.Fetch(ctx, url)
	})
}

func combinerFailingAfter[R any](inner Combiner[R], n int, err error) Combiner[R] {
	counter := &callCounter{}
	return CombinerFunc[R](func(ctx context.Context, in CombineInput[R]) (*CombineOutput[R], error) {
		if counter.inc() > n {
			return nil, err
		}
		return inner.Combine(ctx, in)
	})
}

func extractorFailingAfter(inner Extractor, n int, err error) Extractor {
	counter := &callCounter{}
	return ExtractorFunc(func(ctx context.Context, in ExtractInput) (*ParsedMetadata, error) {
		if counter.inc() > n {
			return nil, err
		}
		return inner.Extract(ctx, in)
	})
}

// drain reads s until it ends or fails.
func drain(ctx context.Context, s Stream[string]) ([]string, error) {
	var out []string
	for {
		r, err := s.Next(ctx)
		if err != nil {
			return out, err
		}
		out = append(out, r)
	}
}
