package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Sternrassler/paged-client/pkg/fetch"
	"github.com/Sternrassler/paged-client/pkg/pagination"
	"github.com/Sternrassler/paged-client/pkg/record"
	"github.com/tidwall/gjson"
)

const (
	formatRDF  = "rdf"
	formatJSON = "json"
)

// quadJSON is the NDJSON form of a quad. Terms are in N-Triples syntax.
type quadJSON struct {
	Subject   string `json:"subject"`
	Predicate string `json:"predicate"`
	Object    string `json:"object"`
	Graph     string `json:"graph,omitempty"`
}

func encodeQuad(q record.Quad) ([]byte, error) {
	return json.Marshal(quadJSON{
		Subject:   q.Subject.String(),
		Predicate: q.Predicate.String(),
		Object:    q.Object.String(),
		Graph:     q.Graph.String(),
	})
}

func encodeItem(item gjson.Result) ([]byte, error) {
	return []byte(item.Raw), nil
}

// dereference starts a walk over the chain at url and returns its records
// encoded as NDJSON lines.
func dereference(ctx context.Context, getter fetch.Getter, cfg Config, format, itemsPath, url string) (*pagination.Result[[]byte], error) {
	switch format {
	case formatJSON:
		walker, err := fetch.NewJSONWalker(getter, itemsPath, cfg.Walk)
		if err != nil {
			return nil, err
		}
		res, err := walker.Dereference(ctx, url)
		if err != nil {
			return nil, err
		}
		return encoded(res, encodeItem), nil
	case formatRDF, "":
		walker, err := fetch.NewQuadWalker(getter, cfg.Walk)
		if err != nil {
			return nil, err
		}
		res, err := walker.Dereference(ctx, url)
		if err != nil {
			return nil, err
		}
		return encoded(res, encodeQuad), nil
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}

func encoded[R any](res *pagination.Result[R], encode func(R) ([]byte, error)) *pagination.Result[[]byte] {
	return &pagination.Result[[]byte]{
		FirstPageURL:      res.FirstPageURL,
		Triples:           res.Triples,
		FirstPageMetadata: res.FirstPageMetadata,
		Data:              &encodedStream[R]{src: res.Data, encode: encode},
	}
}

type encodedStream[R any] struct {
	src    pagination.Stream[R]
	encode func(R) ([]byte, error)
}

func (s *encodedStream[R]) Next(ctx context.Context) ([]byte, error) {
	r, err := s.src.Next(ctx)
	if err != nil {
		return nil, err
	}
	return s.encode(r)
}

func (s *encodedStream[R]) Stop() {
	s.src.Stop()
}
