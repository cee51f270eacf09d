// Package pagination dereferences chains of linked pages and presents their
// records as one continuous stream.
//
// Each page carries a record stream and metadata pointing at the next page.
// The Walker fetches the first page, hands its records to a Fuser and returns
// a Result right away; the rest of the chain is walked in the background,
// following the next link of every page until one has none.
//
// Example usage:
//
//	walker, err := pagination.NewWalker[record.Quad](fetcher, combiner, extractor, pagination.DefaultConfig())
//	result, err := walker.Dereference(ctx, "https://example.org/dataset?page=1")
//	if err != nil {
//		// first page could not be fetched or combined
//	}
//	defer result.Data.Stop()
//
//	for {
//		quad, err := result.Data.Next(ctx)
//		if pagination.IsDone(err) {
//			break
//		}
//		if err != nil {
//			// any later page failed, or a page stream broke mid-way
//		}
//		_ = quad
//	}
//
// Failures are reported on one of three channels:
//   - the error returned by Dereference: first page fetch or combine
//   - Result.FirstPageMetadata: first page metadata extraction
//   - Result.Data: first page extraction, and every failure of a later page
//
// A data stream that failed never reports ErrStreamDone.
package pagination
