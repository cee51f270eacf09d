package metadata

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/Sternrassler/paged-client/pkg/logging"
	"github.com/Sternrassler/paged-client/pkg/pagination"
	"github.com/rs/zerolog"
)

// Metadata keys filled by the fetcher.
const (
	KeyURL     = "url"
	KeyStatus  = "status"
	KeyHeaders = "headers"
	KeyBody    = "body"
)

// Metadata keys added by HeaderCombiner.
const (
	KeyLinks      = "links"
	KeyTotalPages = "total_pages"
	KeyTotalCount = "total_count"
)

// Count headers read by HeaderCombiner, in order of preference.
var (
	TotalPagesHeaders = []string{"X-Pages", "X-Total-Pages"}
	TotalCountHeaders = []string{"X-Total-Count"}
)

// HeaderCombiner enriches the raw metadata with values parsed from the
// response headers and passes the record stream through unchanged.
type HeaderCombiner[R any] struct {
	logger zerolog.Logger
}

// NewHeaderCombiner creates a HeaderCombiner.
func NewHeaderCombiner[R any]() *HeaderCombiner[R] {
	return &HeaderCombiner[R]{logger: logging.NewLogger("metadata")}
}

// Combine implements pagination.Combiner. The raw metadata is copied, never
// modified.
func (c *HeaderCombiner[R]) Combine(_ context.Context, in pagination.CombineInput[R]) (*pagination.CombineOutput[R], error) {
	md := make(pagination.Metadata, len(in.RawMetadata)+3)
	for k, v := range in.RawMetadata {
		md[k] = v
	}

	headers := Headers(in.RawMetadata)
	if headers != nil {
		if values := headers.Values("Link"); len(values) > 0 {
			md[KeyLinks] = LinksByRel(ParseLinkHeader(values...))
		}
		if n, ok := c.count(in.URL, headers, TotalPagesHeaders); ok {
			md[KeyTotalPages] = n
		}
		if n, ok := c.count(in.URL, headers, TotalCountHeaders); ok {
			md[KeyTotalCount] = n
		}
	}

	return &pagination.CombineOutput[R]{Records: in.Records, Metadata: md}, nil
}

// count returns the first well-formed non-negative count among names.
func (c *HeaderCombiner[R]) count(url string, headers http.Header, names []string) (int, bool) {
	for _, name := range names {
		raw := strings.TrimSpace(headers.Get(name))
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.logger.Warn().
				Str("url", url).
				Str("header", name).
				Str("value", raw).
				Msg("Ignoring malformed count header")
			continue
		}
		return n, true
	}
	return 0, false
}

// Headers returns the response headers stored in md, or nil.
func Headers(md pagination.Metadata) http.Header {
	switch h := md[KeyHeaders].(type) {
	case http.Header:
		return h
	case map[string][]string:
		return http.Header(h)
	default:
		return nil
	}
}

// Links returns the Link relations stored in md by HeaderCombiner.
func Links(md pagination.Metadata) map[string]string {
	links, _ := md[KeyLinks].(map[string]string)
	return links
}

// Int returns the integer stored under key.
func Int(md pagination.Metadata, key string) (int, bool) {
	switch v := md[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

// Body returns the page body stored in md, if any.
func Body(md pagination.Metadata) []byte {
	body, _ := md[KeyBody].([]byte)
	return body
}
