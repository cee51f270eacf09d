// Package fetch implements the page fetcher on top of the HTTP client.
//
// HTTPFetcher issues one GET per page through pkg/client, so every page
// benefits from the shared keep-alive transport, the Redis cache and the rate
// limit gate. The response body is handed to a record.Decoder and the
// response itself is described in the page's raw metadata:
//
//	url      string       final URL of the page
//	status   int          HTTP status code
//	headers  http.Header  response headers
//	body     []byte       the page envelope, JSON pages only
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/Sternrassler/paged-client/pkg/client"
	"github.com/Sternrassler/paged-client/pkg/logging"
	"github.com/Sternrassler/paged-client/pkg/metadata"
	"github.com/Sternrassler/paged-client/pkg/pagination"
	"github.com/Sternrassler/paged-client/pkg/record"
	"github.com/rs/zerolog"
)

// Getter performs GET requests. *client.Client implements it.
type Getter interface {
	Get(ctx context.Context, url string) (*http.Response, error)
}

// HTTPFetcher fetches pages over HTTP and decodes their records.
type HTTPFetcher[R any] struct {
	getter      Getter
	decoder     record.Decoder[R]
	maxJSONBody int64
	logger      zerolog.Logger
}

// Option configures an HTTPFetcher.
type Option func(*options)

type options struct {
	maxJSONBody int64
}

// WithMaxJSONBody bounds the size of JSON envelopes kept in the metadata.
func WithMaxJSONBody(n int64) Option {
	return func(o *options) {
		o.maxJSONBody = n
	}
}

// New creates an HTTPFetcher.
func New[R any](getter Getter, decoder record.Decoder[R], opts ...Option) (*HTTPFetcher[R], error) {
	if getter == nil {
		return nil, fmt.Errorf("getter is required")
	}
	if decoder == nil {
		return nil, fmt.Errorf("decoder is required")
	}

	o := options{maxJSONBody: record.DefaultMaxJSONBody}
	for _, opt := range opts {
		opt(&o)
	}

	return &HTTPFetcher[R]{
		getter:      getter,
		decoder:     decoder,
		maxJSONBody: o.maxJSONBody,
		logger:      logging.NewLogger("fetch"),
	}, nil
}

// Fetch implements pagination.Fetcher. A non-2xx response is returned as a
// *client.HTTPError.
func (f *HTTPFetcher[R]) Fetch(ctx context.Context, url string) (*pagination.Page[R], error) {
	resp, err := f.getter.Get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		httpErr := client.NewHTTPError(resp)
		if httpErr.URL == "" {
			httpErr.URL = url
		}
		return nil, httpErr
	}

	pageURL := url
	if resp.Request != nil && resp.Request.URL != nil {
		pageURL = resp.Request.URL.String()
	}

	contentType := resp.Header.Get("Content-Type")
	raw := pagination.Metadata{
		metadata.KeyURL:     pageURL,
		metadata.KeyStatus:  resp.StatusCode,
		metadata.KeyHeaders: resp.Header.Clone(),
	}

	body := resp.Body
	if record.IsJSON(contentType) {
		data, err := readLimited(resp.Body, f.maxJSONBody)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", pageURL, err)
		}
		raw[metadata.KeyBody] = data
		body = io.NopCloser(bytes.NewReader(data))
	}

	records, triples, err := f.decoder.Decode(body, contentType)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", pageURL, err)
	}

	f.logger.Debug().
		Str("url", pageURL).
		Int("status", resp.StatusCode).
		Str("content_type", contentType).
		Bool("triples", triples).
		Msg("Fetched page")

	return &pagination.Page[R]{
		URL:         pageURL,
		Triples:     triples,
		RawMetadata: raw,
		Records:     records,
	}, nil
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", record.ErrBodyTooLarge, limit)
	}
	return data, nil
}
