package pagination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/paged-client/pkg/logging"
	"github.com/rs/zerolog"
)

var (
	// ErrNilPage is returned when a Fetcher returns neither a page nor an error.
	ErrNilPage = errors.New("fetcher returned no page")

	// ErrPageCycle is reported on the data stream when a next link points at a
	// page that was already visited. Only used with Config.DetectCycles.
	ErrPageCycle = errors.New("page cycle detected")

	// ErrMaxPagesExceeded is reported on the data stream when a walk would
	// exceed Config.MaxPages.
	ErrMaxPagesExceeded = errors.New("max pages exceeded")
)

// Walker dereferences chains of pages linked by their metadata's next
// pointer and fuses the pages' records into one stream.
type Walker[R any] struct {
	fetcher  Fetcher[R]
	pipeline metadataPipeline[R]
	config   Config
	logger   zerolog.Logger
}

// NewWalker creates a Walker from its collaborators.
func NewWalker[R any](fetcher Fetcher[R], combiner Combiner[R], extractor Extractor, cfg Config) (*Walker[R], error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if combiner == nil {
		return nil, fmt.Errorf("combiner is required")
	}
	if extractor == nil {
		return nil, fmt.Errorf("extractor is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Walker[R]{
		fetcher:  fetcher,
		pipeline: metadataPipeline[R]{combiner: combiner, extractor: extractor},
		config:   cfg,
		logger:   logging.NewLogger("pagination"),
	}, nil
}

// Dereference fetches and combines the page at url and returns as soon as
// that succeeded; it does not wait for the first page's metadata extraction
// nor for any later page. A fetch or combine failure of the first page is
// returned as is and no Result is produced. Every later failure is delivered
// through Result.FirstPageMetadata and/or Result.Data.
//
// The remaining pages are walked under a context derived from ctx, so
// cancelling ctx aborts the walk. Stopping Result.Data cancels it as well.
func (w *Walker[R]) Dereference(ctx context.Context, url string) (*Result[R], error) {
	start := time.Now()
	logger := w.logger.With().Str("url", url).Logger()

	page, err := w.fetch(ctx, url)
	if err != nil {
		walkFailuresTotal.WithLabelValues(StageFetch).Inc()
		logger.Debug().Err(err).Int("page", 0).Msg("First page fetch failed")
		return nil, err
	}

	combined, err := w.pipeline.combine(ctx, page)
	if err != nil {
		page.Records.Stop()
		walkFailuresTotal.WithLabelValues(StageCombine).Inc()
		logger.Debug().Err(err).Int("page", 0).Msg("First page metadata combine failed")
		return nil, err
	}

	walkCtx, cancel := context.WithCancel(ctx)
	fuser := NewFuser[R]()
	fuser.onStop = cancel
	_ = fuser.Feed(combined.Records)

	first := NewFuture[*ParsedMetadata]()

	go w.walk(walkCtx, walkState[R]{
		fuser:   fuser,
		first:   first,
		logger:  logger,
		start:   start,
		visited: w.newVisited(url, page.URL),
	}, page.URL, combined.Metadata)

	return &Result[R]{
		FirstPageURL:      page.URL,
		Triples:           page.Triples,
		FirstPageMetadata: first,
		Data:              fuser,
	}, nil
}

// walkState is the per-invocation state of a page-chain walk.
type walkState[R any] struct {
	fuser   *Fuser[R]
	first   *Future[*ParsedMetadata]
	logger  zerolog.Logger
	start   time.Time
	visited map[string]struct{}
	pages   int
}

// walk drives the chain from the first page's extraction onwards. It runs in
// its own goroutine and owns every page until it is fed to the fuser.
func (w *Walker[R]) walk(ctx context.Context, st walkState[R], pageURL string, md Metadata) {
	st.pages = 1

	for n := 0; ; n++ {
		parsed, err := w.pipeline.extract(ctx, pageURL, md)
		if n == 0 {
			if err != nil {
				st.first.Reject(err)
			} else {
				st.first.Resolve(parsed)
			}
		}
		if err != nil {
			w.fail(ctx, &st, n, StageExtract, err)
			return
		}

		if !parsed.HasNext() {
			st.fuser.Finish()
			walkPages.Observe(float64(st.pages))
			walkDuration.Observe(time.Since(st.start).Seconds())
			st.logger.Info().
				Int("pages", st.pages).
				Dur("duration", time.Since(st.start)).
				Msg("Page chain walked")
			return
		}

		next := parsed.Next
		if err := w.checkLimits(&st, next); err != nil {
			w.fail(ctx, &st, n+1, StageLimit, err)
			return
		}

		if err := st.fuser.WaitPending(ctx, w.config.MaxPendingPages); err != nil {
			st.logger.Debug().Err(err).Msg("Walk stopped while waiting for consumer")
			if !errors.Is(err, ErrFuserClosed) {
				st.fuser.Fail(err)
			}
			return
		}

		page, err := w.fetch(ctx, next)
		if err != nil {
			w.fail(ctx, &st, n+1, StageFetch, err)
			return
		}
		if st.visited != nil {
			st.visited[page.URL] = struct{}{}
		}

		combined, err := w.pipeline.combine(ctx, page)
		if err != nil {
			page.Records.Stop()
			w.fail(ctx, &st, n+1, StageCombine, err)
			return
		}

		if err := st.fuser.Feed(combined.Records); err != nil {
			st.logger.Debug().Int("page", n+1).Msg("Walk stopped by consumer")
			return
		}
		st.pages++

		st.logger.Debug().
			Int("page", n+1).
			Str("page_url", page.URL).
			Msg("Page fed")

		pageURL, md = page.URL, combined.Metadata
	}
}

// fail routes a failure of page n into the fused stream.
func (w *Walker[R]) fail(ctx context.Context, st *walkState[R], n int, stage string, err error) {
	if ctx.Err() != nil {
		st.logger.Debug().Err(err).Int("page", n).Msg("Walk cancelled")
		st.fuser.Fail(err)
		return
	}

	walkFailuresTotal.WithLabelValues(stage).Inc()
	st.logger.Error().
		Err(err).
		Int("page", n).
		Str("stage", stage).
		Msg("Page chain walk failed")
	st.fuser.Fail(err)
}

// fetch fetches a single page and records the outcome.
func (w *Walker[R]) fetch(ctx context.Context, url string) (*Page[R], error) {
	page, err := w.fetcher.Fetch(ctx, url)
	if err == nil && (page == nil || page.Records == nil) {
		err = ErrNilPage
	}
	if err != nil {
		pagesFetchedTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	pagesFetchedTotal.WithLabelValues("ok").Inc()

	if page.URL == "" {
		page.URL = url
	}
	return page, nil
}

// checkLimits applies the optional walk bounds before next is fetched.
func (w *Walker[R]) checkLimits(st *walkState[R], next string) error {
	if w.config.MaxPages > 0 && st.pages >= w.config.MaxPages {
		return fmt.Errorf("%w: %d pages reached before %s", ErrMaxPagesExceeded, w.config.MaxPages, next)
	}
	if st.visited != nil {
		if _, seen := st.visited[next]; seen {
			return fmt.Errorf("%w: %s", ErrPageCycle, next)
		}
		st.visited[next] = struct{}{}
	}
	return nil
}

func (w *Walker[R]) newVisited(urls ...string) map[string]struct{} {
	if !w.config.DetectCycles {
		return nil
	}
	visited := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		visited[u] = struct{}{}
	}
	return visited
}
