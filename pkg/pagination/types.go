package pagination

import (
	"context"
)

// Metadata is the loosely typed metadata attached to a page. Its contents are
// defined by the collaborators that produce and consume it.
type Metadata map[string]any

// Page is the result of fetching a single page.
type Page[R any] struct {
	// URL identifies the page that was actually fetched (after redirects).
	URL string

	// Triples is true when the records are triples rather than quads.
	Triples bool

	// RawMetadata is the metadata as delivered by the fetcher.
	RawMetadata Metadata

	// Records is the page's record stream.
	Records Stream[R]
}

// ParsedMetadata is the extracted metadata of a page.
type ParsedMetadata struct {
	// Next is the identifier of the following page. Empty means this was the
	// last page.
	Next string

	// Fields holds any additional extracted values.
	Fields map[string]any
}

// HasNext reports whether another page follows.
func (m *ParsedMetadata) HasNext() bool {
	return m != nil && m.Next != ""
}

// CombineInput is passed to a Combiner.
type CombineInput[R any] struct {
	URL         string
	Records     Stream[R]
	RawMetadata Metadata
}

// CombineOutput is returned by a Combiner. Records replaces the input stream
// and may wrap it; a nil Records passes the input stream through.
type CombineOutput[R any] struct {
	Records  Stream[R]
	Metadata Metadata
}

// ExtractInput is passed to an Extractor.
type ExtractInput struct {
	URL      string
	Metadata Metadata
}

// Fetcher fetches a single page. Implementations must be safe for concurrent
// use.
type Fetcher[R any] interface {
	Fetch(ctx context.Context, url string) (*Page[R], error)
}

// Combiner merges a page's raw metadata with anything it can learn from the
// page's records. Implementations must be safe for concurrent use.
type Combiner[R any] interface {
	Combine(ctx context.Context, in CombineInput[R]) (*CombineOutput[R], error)
}

// Extractor turns combined metadata into ParsedMetadata. Implementations must
// be safe for concurrent use.
type Extractor interface {
	Extract(ctx context.Context, in ExtractInput) (*ParsedMetadata, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc[R any] func(ctx context.Context, url string) (*Page[R], error)

// Fetch calls f(ctx, url).
func (f FetcherFunc[R]) Fetch(ctx context.Context, url string) (*Page[R], error) {
	return f(ctx, url)
}

// CombinerFunc adapts a function to the Combiner interface.
type CombinerFunc[R any] func(ctx context.Context, in CombineInput[R]) (*CombineOutput[R], error)

// Combine calls f(ctx, in).
func (f CombinerFunc[R]) Combine(ctx context.Context, in CombineInput[R]) (*CombineOutput[R], error) {
	return f(ctx, in)
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(ctx context.Context, in ExtractInput) (*ParsedMetadata, error)

// Extract calls f(ctx, in).
func (f ExtractorFunc) Extract(ctx context.Context, in ExtractInput) (*ParsedMetadata, error) {
	return f(ctx, in)
}

// PassThroughCombiner returns a Combiner that keeps the record stream and
// uses the raw metadata unchanged.
func PassThroughCombiner[R any]() Combiner[R] {
	return CombinerFunc[R](func(_ context.Context, in CombineInput[R]) (*CombineOutput[R], error) {
		return &CombineOutput[R]{Records: in.Records, Metadata: in.RawMetadata}, nil
	})
}

// Result is returned by Walker.Dereference once the first page has been
// fetched and combined.
type Result[R any] struct {
	// FirstPageURL identifies the first page as reported by the fetcher.
	FirstPageURL string

	// Triples mirrors the first page's Triples flag.
	Triples bool

	// FirstPageMetadata settles with the first page's parsed metadata, or
	// with the error that prevented its extraction.
	FirstPageMetadata *Future[*ParsedMetadata]

	// Data yields the records of every page in order. Consumers that give up
	// before it ended or failed must call Stop.
	Data Stream[R]
}
