// Package metrics is the reference for every Prometheus metric the module
// exports. The metrics themselves are defined with promauto in the packages
// that record them (pagination, client, cache, ratelimit) so that no package
// depends on this one.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the registerer all metrics are added to.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the matching gatherer, served by paged-proxy on /metrics.
var Gatherer = prometheus.DefaultGatherer

// Names lists every metric family, by package.
var Names = map[string][]string{
	"pagination": {
		"paged_pages_fetched_total",
		"paged_walk_failures_total",
		"paged_walk_pages",
		"paged_walk_duration_seconds",
	},
	"client": {
		"paged_http_requests_total",
		"paged_http_request_duration_seconds",
		"paged_http_errors_total",
		"paged_http_retries_total",
		"paged_http_retry_backoff_seconds",
		"paged_http_retry_exhausted_total",
	},
	"cache": {
		"paged_cache_hits_total",
		"paged_cache_misses_total",
		"paged_cache_size_bytes",
		"paged_conditional_requests_total",
		"paged_304_responses_total",
		"paged_cache_errors_total",
	},
	"ratelimit": {
		"paged_rate_limit_remaining",
		"paged_rate_limit_blocks_total",
		"paged_rate_limit_throttles_total",
	},
}

// Metrics Documentation
//
// Walk Metrics (pkg/pagination):
//   - paged_pages_fetched_total{outcome} (Counter): Page fetches by outcome (ok, error)
//   - paged_walk_failures_total{stage} (Counter): Failed walks by stage (fetch, combine, extract, limit)
//   - paged_walk_pages (Histogram): Pages per completed walk
//   - paged_walk_duration_seconds (Histogram): Duration of completed walks
//
// Request Metrics (pkg/client):
//   - paged_http_requests_total{host, status} (Counter): Requests by host and status
//   - paged_http_request_duration_seconds{host} (Histogram): Time to response headers
//   - paged_http_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//   - paged_http_retries_total{error_class} (Counter): Retry attempts
//   - paged_http_retry_backoff_seconds{error_class} (Histogram): Backoff durations
//   - paged_http_retry_exhausted_total{error_class} (Counter): Requests that ran out of attempts
//
// Cache Metrics (pkg/cache):
//   - paged_cache_hits_total{layer} (Counter): Hits by layer (memory, redis)
//   - paged_cache_misses_total (Counter): Misses
//   - paged_cache_size_bytes{layer} (Gauge): Bytes written
//   - paged_conditional_requests_total (Counter): Revalidations sent
//   - paged_304_responses_total (Counter): Revalidations answered with 304
//   - paged_cache_errors_total{operation} (Counter): Cache operation errors
//
// Rate Limit Metrics (pkg/ratelimit):
//   - paged_rate_limit_remaining{host} (Gauge): Budget left in the current window
//   - paged_rate_limit_blocks_total{host} (Counter): Requests blocked
//   - paged_rate_limit_throttles_total{host} (Counter): Requests throttled
//
// Example Prometheus Queries:
//
//	# Cache Hit Rate
//	sum(rate(paged_cache_hits_total[5m])) /
//	(sum(rate(paged_cache_hits_total[5m])) + sum(rate(paged_cache_misses_total[5m])))
//
//	# Failed walks by stage
//	sum by (stage) (rate(paged_walk_failures_total[5m]))
//
//	# P95 pages per walk
//	histogram_quantile(0.95, rate(paged_walk_pages_bucket[5m]))
