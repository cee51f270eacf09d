package fetch

import (
	"github.com/Sternrassler/paged-client/pkg/metadata"
	"github.com/Sternrassler/paged-client/pkg/pagination"
	"github.com/Sternrassler/paged-client/pkg/record"
	"github.com/tidwall/gjson"
)

// DefaultExtractor follows Link headers, then JSON next pointers, then
// ?page=N numbering bounded by X-Pages.
func DefaultExtractor() pagination.Extractor {
	return metadata.FirstOf(
		metadata.LinkExtractor{},
		metadata.JSONPathExtractor{},
		metadata.PageCountExtractor{},
	)
}

// NewQuadWalker returns a Walker over N-Triples/N-Quads pages fetched with
// getter.
func NewQuadWalker(getter Getter, cfg pagination.Config, opts ...Option) (*pagination.Walker[record.Quad], error) {
	fetcher, err := New[record.Quad](getter, record.NQuadsDecoder{}, opts...)
	if err != nil {
		return nil, err
	}
	return pagination.NewWalker[record.Quad](fetcher, metadata.NewHeaderCombiner[record.Quad](), DefaultExtractor(), cfg)
}

// NewJSONWalker returns a Walker over JSON envelope pages whose records are
// the elements of the array at itemsPath.
func NewJSONWalker(getter Getter, itemsPath string, cfg pagination.Config, opts ...Option) (*pagination.Walker[gjson.Result], error) {
	fetcher, err := New[gjson.Result](getter, record.JSONDecoder{ItemsPath: itemsPath}, opts...)
	if err != nil {
		return nil, err
	}
	return pagination.NewWalker[gjson.Result](fetcher, metadata.NewHeaderCombiner[gjson.Result](), DefaultExtractor(), cfg)
}
