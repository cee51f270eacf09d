package cache

import (
	"net/url"
	"sort"
	"strings"
)

// KeyPrefix namespaces every key this package writes to Redis.
const KeyPrefix = "paged"

// CacheKey represents a unique identifier for a cached page response.
type CacheKey struct {
	// Host is the authority of the page URL (e.g., "example.org:8080")
	Host string

	// Path is the URL path (e.g., "/dataset/people")
	Path string

	// QueryParams are the query parameters (e.g., {"page": "2"})
	QueryParams url.Values

	// Accept is the negotiated media type. Different representations of the
	// same URL are cached separately.
	Accept string
}

// KeyFromURL builds a cache key for a page URL fetched with the given Accept header.
func KeyFromURL(u *url.URL, accept string) CacheKey {
	return CacheKey{
		Host:        strings.ToLower(u.Host),
		Path:        u.Path,
		QueryParams: u.Query(),
		Accept:      accept,
	}
}

// String generates a deterministic cache key string.
// Format: paged:host:path:query1=val1:query2=val2a,val2b:accept=type
//
// Example:
//
//	paged:example.org:dataset/people:page=2:accept=application/n-quads
func (k CacheKey) String() string {
	parts := []string{KeyPrefix, k.Host}

	path := strings.Trim(k.Path, "/")
	if path != "" {
		parts = append(parts, path)
	}

	// Query params sorted for determinism; repeated values keep their order.
	if len(k.QueryParams) > 0 {
		queryKeys := make([]string, 0, len(k.QueryParams))
		for key := range k.QueryParams {
			queryKeys = append(queryKeys, key)
		}
		sort.Strings(queryKeys)

		for _, key := range queryKeys {
			parts = append(parts, key+"="+strings.Join(k.QueryParams[key], ","))
		}
	}

	if k.Accept != "" {
		parts = append(parts, "accept="+k.Accept)
	}

	return strings.Join(parts, ":")
}
