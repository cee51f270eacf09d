package metadata

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/Sternrassler/paged-client/pkg/pagination"
	"github.com/tidwall/gjson"
)

// ErrInvalidNextLink is returned when a next pointer is not a valid URL.
var ErrInvalidNextLink = errors.New("invalid next link")

// DefaultNextPaths are the JSON paths JSONPathExtractor tries by default.
var DefaultNextPaths = []string{
	"next",
	"links.next",
	"_links.next",
	"hydra:view.hydra:next",
	"pagination.next",
}

// LinkExtractor takes the next page from the Link relation Rel.
type LinkExtractor struct {
	// Rel is the relation type to follow. Empty means "next".
	Rel string
}

// Extract implements pagination.Extractor.
func (e LinkExtractor) Extract(_ context.Context, in pagination.ExtractInput) (*pagination.ParsedMetadata, error) {
	rel := e.Rel
	if rel == "" {
		rel = "next"
	}

	next, err := Resolve(in.URL, Links(in.Metadata)[rel])
	if err != nil {
		return nil, err
	}
	return parsed(next, in.Metadata), nil
}

// JSONPathExtractor takes the next page from the JSON body. The value at a
// path may be a URL string or an object carrying it as "href" or "@id".
type JSONPathExtractor struct {
	// Paths are gjson paths tried in order. Empty means DefaultNextPaths.
	Paths []string
}

// Extract implements pagination.Extractor. Pages without a JSON body have no
// next page.
func (e JSONPathExtractor) Extract(_ context.Context, in pagination.ExtractInput) (*pagination.ParsedMetadata, error) {
	body := Body(in.Metadata)
	if len(body) == 0 {
		return parsed("", in.Metadata), nil
	}

	paths := e.Paths
	if len(paths) == 0 {
		paths = DefaultNextPaths
	}

	for _, path := range paths {
		ref := linkValue(gjson.GetBytes(body, path))
		if ref == "" {
			continue
		}
		next, err := Resolve(in.URL, ref)
		if err != nil {
			return nil, err
		}
		return parsed(next, in.Metadata), nil
	}
	return parsed("", in.Metadata), nil
}

func linkValue(v gjson.Result) string {
	switch {
	case v.Type == gjson.String:
		return v.String()
	case v.IsObject():
		fields := v.Map()
		if href := fields["href"]; href.Type == gjson.String {
			return href.String()
		}
		if id := fields["@id"]; id.Type == gjson.String {
			return id.String()
		}
	}
	return ""
}

// PageCountExtractor numbers pages through a query parameter and stops at the
// total page count reported by the server (X-Pages). Page numbering starts at
// one; a URL without the parameter is page one.
type PageCountExtractor struct {
	// Param is the page query parameter. Empty means "page".
	Param string
}

// Extract implements pagination.Extractor. Without a total page count there
// is no next page.
func (e PageCountExtractor) Extract(_ context.Context, in pagination.ExtractInput) (*pagination.ParsedMetadata, error) {
	param := e.Param
	if param == "" {
		param = "page"
	}

	total, ok := Int(in.Metadata, KeyTotalPages)
	if !ok {
		return parsed("", in.Metadata), nil
	}

	u, err := url.Parse(in.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidNextLink, err)
	}

	query := u.Query()
	current := 1
	if raw := query.Get(param); raw != "" {
		current, err = strconv.Atoi(raw)
		if err != nil || current < 1 {
			return nil, fmt.Errorf("%w: %s=%q", ErrInvalidNextLink, param, raw)
		}
	}
	if current >= total {
		return parsed("", in.Metadata), nil
	}

	query.Set(param, strconv.Itoa(current+1))
	u.RawQuery = query.Encode()
	return parsed(u.String(), in.Metadata), nil
}

// FirstOf returns an Extractor that runs extractors in order and returns the
// first result with a next page. If none finds one, the last result is
// returned. The first error aborts the chain.
func FirstOf(extractors ...pagination.Extractor) pagination.Extractor {
	return pagination.ExtractorFunc(func(ctx context.Context, in pagination.ExtractInput) (*pagination.ParsedMetadata, error) {
		result := parsed("", in.Metadata)
		for _, e := range extractors {
			md, err := e.Extract(ctx, in)
			if err != nil {
				return nil, err
			}
			if md.HasNext() {
				return md, nil
			}
			if md != nil {
				result = md
			}
		}
		return result, nil
	})
}

// Resolve resolves ref against base. An empty ref resolves to "".
func Resolve(base, ref string) (string, error) {
	if ref == "" {
		return "", nil
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("%w %q: %w", ErrInvalidNextLink, ref, err)
	}
	if base == "" {
		return r.String(), nil
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("%w: base %q: %w", ErrInvalidNextLink, base, err)
	}
	return b.ResolveReference(r).String(), nil
}

// parsed builds ParsedMetadata carrying the count fields of md.
func parsed(next string, md pagination.Metadata) *pagination.ParsedMetadata {
	fields := make(map[string]any)
	for _, key := range []string{KeyTotalPages, KeyTotalCount, KeyStatus} {
		if v, ok := md[key]; ok {
			fields[key] = v
		}
	}
	return &pagination.ParsedMetadata{Next: next, Fields: fields}
}
