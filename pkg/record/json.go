package record

import (
	"errors"
	"fmt"
	"io"

	"github.com/Sternrassler/paged-client/pkg/pagination"
	"github.com/tidwall/gjson"
)

// DefaultMaxJSONBody bounds the size of a JSON page envelope.
const DefaultMaxJSONBody = 32 << 20

var (
	// ErrBodyTooLarge is returned when a JSON page exceeds MaxBodySize.
	ErrBodyTooLarge = errors.New("page body too large")

	// ErrInvalidJSON is returned for a body that is not valid JSON.
	ErrInvalidJSON = errors.New("invalid JSON")
)

// JSONDecoder decodes JSON page envelopes such as {"items": [...], "next": ...}.
// Every element of the array at ItemsPath becomes one record. JSON pages are
// read whole before their records are produced.
type JSONDecoder struct {
	// ItemsPath is the gjson path of the records array. Empty means the
	// document itself is the array.
	ItemsPath string

	// MaxBodySize caps the envelope size. Zero means DefaultMaxJSONBody.
	MaxBodySize int64
}

// Decode implements Decoder. A missing items array yields an empty stream.
func (d JSONDecoder) Decode(body io.ReadCloser, contentType string) (pagination.Stream[gjson.Result], bool, error) {
	defer body.Close()

	if contentType != "" && !IsJSON(contentType) {
		return nil, false, fmt.Errorf("%w: %s", ErrUnsupportedContentType, MediaType(contentType))
	}

	data, err := d.read(body)
	if err != nil {
		return nil, false, err
	}

	items, err := d.Items(data)
	if err != nil {
		return nil, false, err
	}
	return pagination.FromSlice(items), false, nil
}

// Items returns the records held by an envelope.
func (d JSONDecoder) Items(data []byte) ([]gjson.Result, error) {
	if !gjson.ValidBytes(data) {
		return nil, ErrInvalidJSON
	}

	var items gjson.Result
	if d.ItemsPath == "" {
		items = gjson.ParseBytes(data)
	} else {
		items = gjson.GetBytes(data, d.ItemsPath)
	}
	if !items.Exists() || items.Type == gjson.Null {
		return nil, nil
	}
	if !items.IsArray() {
		return nil, fmt.Errorf("%w: %q is not an array", ErrInvalidJSON, d.ItemsPath)
	}
	return items.Array(), nil
}

func (d JSONDecoder) read(body io.Reader) ([]byte, error) {
	limit := d.MaxBodySize
	if limit <= 0 {
		limit = DefaultMaxJSONBody
	}
	data, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrBodyTooLarge, limit)
	}
	return data, nil
}
