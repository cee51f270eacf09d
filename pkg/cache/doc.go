// Package cache stores page responses in Redis, optionally fronted by an
// in-process memory tier, and supports revalidation through ETag and
// Last-Modified conditional requests.
//
// Freshness comes from Cache-Control max-age or Expires, falling back to
// DefaultTTL. Responses marked no-store are never cached. An expired entry
// that carries validators is kept for RevalidateWindow so the next request
// can be sent conditionally.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	manager, err := cache.NewManager(redisClient, cache.WithMemoryTier(10_000))
//	if err != nil {
//		return err
//	}
//	defer manager.Close()
//
//	key := cache.KeyFromURL(req.URL, "application/n-quads")
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch the page
//	}
//
// # HTTP Response Caching
//
// TeeBody caches a body as the caller streams it. The entry is stored only
// once the body was read to a clean EOF.
//
//	if cache.IsCacheable(resp) {
//		cache.TeeBody(resp, cache.DefaultMaxEntrySize, func(entry *cache.CacheEntry) {
//			manager.Set(ctx, key, entry)
//		})
//	}
//
// ResponseToEntry reads the whole body up front instead.
//
// # Conditional Requests
//
//	if entry.IsExpired() && cache.ShouldMakeConditionalRequest(entry) {
//		cache.AddConditionalHeaders(req, entry)
//		// a 304 answer means the cached body is still valid
//	}
//
// # Metrics
//
//   - paged_cache_hits_total{layer} - Cache hits (memory, redis)
//   - paged_cache_misses_total - Cache misses
//   - paged_cache_size_bytes{layer} - Bytes written
//   - paged_conditional_requests_total - Revalidation requests sent
//   - paged_304_responses_total - Revalidation successes
//   - paged_cache_errors_total{operation} - Cache operation errors
package cache
