package record

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/Sternrassler/paged-client/pkg/pagination"
)

// Media types understood by the decoders.
const (
	MediaTypeNQuads   = "application/n-quads"
	MediaTypeNTriples = "application/n-triples"
	MediaTypeJSON     = "application/json"
)

// ErrUnsupportedContentType is returned when a decoder cannot handle a body's
// media type.
var ErrUnsupportedContentType = errors.New("unsupported content type")

// Decoder turns a page body into a record stream. The returned bool reports
// whether the records are triples rather than quads.
//
// Decode takes ownership of body: the stream closes it when it ends or is
// stopped, and Decode closes it itself when it returns an error.
type Decoder[R any] interface {
	Decode(body io.ReadCloser, contentType string) (pagination.Stream[R], bool, error)
}

// MediaType returns the lowercased media type of a Content-Type value without
// its parameters. An unparseable value yields "".
func MediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return strings.ToLower(mt)
}

// IsJSON reports whether contentType names a JSON document, including
// structured suffixes such as application/ld+json.
func IsJSON(contentType string) bool {
	mt := MediaType(contentType)
	return mt == MediaTypeJSON || strings.HasSuffix(mt, "+json")
}

// NQuadsDecoder decodes N-Triples and N-Quads bodies lazily.
type NQuadsDecoder struct{}

// Decode implements Decoder. application/n-triples (and the legacy text/plain)
// is decoded in triples mode; application/n-quads and a missing content type
// are decoded as quads.
func (NQuadsDecoder) Decode(body io.ReadCloser, contentType string) (pagination.Stream[Quad], bool, error) {
	var triples bool
	switch mt := MediaType(contentType); mt {
	case MediaTypeNTriples, "text/plain":
		triples = true
	case MediaTypeNQuads, "":
	default:
		body.Close()
		return nil, false, fmt.Errorf("%w: %s", ErrUnsupportedContentType, mt)
	}
	return newQuadStream(body, triples), triples, nil
}
