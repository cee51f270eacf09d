package pagination

import (
	"context"
	"errors"
)

var (
	// ErrNilMetadata is returned when a Combiner or Extractor returns neither a
	// result nor an error.
	ErrNilMetadata = errors.New("metadata stage returned no result")
)

// metadataPipeline runs the two metadata stages for a page. Stage one
// (combine) decides which stream is handed to the fuser, so it runs before the
// page is fed; stage two (extract) runs afterwards, concurrently with record
// delivery. Collaborator errors are returned as is.
type metadataPipeline[R any] struct {
	combiner  Combiner[R]
	extractor Extractor
}

func (p metadataPipeline[R]) combine(ctx context.Context, page *Page[R]) (*CombineOutput[R], error) {
	out, err := p.combiner.Combine(ctx, CombineInput[R]{
		URL:         page.URL,
		Records:     page.Records,
		RawMetadata: page.RawMetadata,
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, ErrNilMetadata
	}
	if out.Records == nil {
		out.Records = page.Records
	}
	return out, nil
}

func (p metadataPipeline[R]) extract(ctx context.Context, url string, md Metadata) (*ParsedMetadata, error) {
	parsed, err := p.extractor.Extract(ctx, ExtractInput{URL: url, Metadata: md})
	if err != nil {
		return nil, err
	}
	if parsed == nil {
		return nil, ErrNilMetadata
	}
	return parsed, nil
}
