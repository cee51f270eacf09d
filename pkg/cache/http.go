package cache

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultTTL is the fallback TTL when no freshness header is present
	DefaultTTL = 5 * time.Minute

	// DefaultMaxEntrySize bounds the body bytes buffered for one cache entry.
	DefaultMaxEntrySize = 8 << 20
)

// IsCacheable reports whether a response may be stored at all.
// Only complete 200 responses without a no-store directive qualify.
func IsCacheable(resp *http.Response) bool {
	if resp == nil || resp.StatusCode != http.StatusOK {
		return false
	}
	for _, directive := range cacheControl(resp.Header) {
		if directive == "no-store" {
			return false
		}
	}
	return true
}

// ResponseToEntry converts an HTTP response to a CacheEntry.
// It parses freshness and last-modified headers and reads the response body.
// The response body is restored after reading.
func ResponseToEntry(resp *http.Response) (*CacheEntry, error) {
	if resp == nil {
		return nil, fmt.Errorf("response cannot be nil")
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	// Restore body for caller
	resp.Body = io.NopCloser(bytes.NewReader(body))

	return newEntry(resp.StatusCode, resp.Header, body), nil
}

func newEntry(status int, header http.Header, body []byte) *CacheEntry {
	entry := &CacheEntry{
		Data:       body,
		ETag:       header.Get("ETag"),
		StatusCode: status,
		Headers:    header.Clone(),
		CachedAt:   time.Now(),
	}

	entry.Expires = parseExpires(header)

	if lastModStr := header.Get("Last-Modified"); lastModStr != "" {
		if lastMod, err := http.ParseTime(lastModStr); err == nil {
			entry.LastModified = lastMod
		}
	}

	return entry
}

// TeeBody replaces resp.Body with a reader that keeps a copy of everything
// the caller reads. Once the caller has read the body to a clean EOF, store
// is called with the complete entry. A read error, a body larger than
// maxSize or a Close before EOF discards the copy.
//
// TeeBody reports false and leaves resp untouched when the declared
// Content-Length already exceeds maxSize.
func TeeBody(resp *http.Response, maxSize int64, store func(*CacheEntry)) bool {
	if resp.ContentLength > maxSize {
		return false
	}
	resp.Body = &teeBody{
		body:    resp.Body,
		status:  resp.StatusCode,
		header:  resp.Header.Clone(),
		maxSize: maxSize,
		store:   store,
	}
	return true
}

type teeBody struct {
	body    io.ReadCloser
	status  int
	header  http.Header
	maxSize int64
	store   func(*CacheEntry)

	// mu guards buf and done. Close may race with Read.
	mu   sync.Mutex
	buf  bytes.Buffer
	done bool
}

func (t *teeBody) Read(p []byte) (int, error) {
	n, err := t.body.Read(p)

	var entry *CacheEntry
	t.mu.Lock()
	if !t.done {
		switch {
		case int64(t.buf.Len()+n) > t.maxSize:
			t.discard()
		case n > 0:
			t.buf.Write(p[:n])
		}
	}
	if !t.done && err != nil {
		if errors.Is(err, io.EOF) {
			entry = newEntry(t.status, t.header, t.buf.Bytes())
		}
		t.discard()
	}
	t.mu.Unlock()

	if entry != nil {
		t.store(entry)
	}
	return n, err
}

func (t *teeBody) Close() error {
	t.mu.Lock()
	t.discard()
	t.mu.Unlock()
	return t.body.Close()
}

// discard drops the copy. t.mu must be held.
func (t *teeBody) discard() {
	t.done = true
	t.buf = bytes.Buffer{}
}

// EntryToResponse rebuilds an HTTP response from a cache entry.
// The returned response carries an X-Cache: HIT header.
func EntryToResponse(entry *CacheEntry, req *http.Request) *http.Response {
	header := entry.Headers.Clone()
	if header == nil {
		header = http.Header{}
	}
	header.Set("X-Cache", "HIT")

	status := entry.StatusCode
	if status == 0 {
		status = http.StatusOK
	}

	return &http.Response{
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(entry.Data)),
		ContentLength: int64(len(entry.Data)),
		Request:       req,
	}
}

// ParseFreshness returns the expiry carried by headers, if any.
// Cache-Control max-age takes precedence over Expires.
func ParseFreshness(headers http.Header) (time.Time, bool) {
	now := time.Now()

	for _, directive := range cacheControl(headers) {
		name, value, found := strings.Cut(directive, "=")
		if !found || name != "max-age" {
			continue
		}
		seconds, err := strconv.Atoi(strings.Trim(value, `"`))
		if err != nil || seconds < 0 {
			continue
		}
		return now.Add(time.Duration(seconds) * time.Second), true
	}

	if expiresStr := headers.Get("Expires"); expiresStr != "" {
		if expires, err := http.ParseTime(expiresStr); err == nil {
			if expires.Before(now) {
				return now, true
			}
			return expires, true
		}
	}

	return time.Time{}, false
}

// parseExpires returns the freshness expiry from headers, or current time +
// DefaultTTL if none could be parsed.
func parseExpires(headers http.Header) time.Time {
	if expires, ok := ParseFreshness(headers); ok {
		return expires
	}
	return time.Now().Add(DefaultTTL)
}

func cacheControl(headers http.Header) []string {
	var directives []string
	for _, line := range headers.Values("Cache-Control") {
		for _, d := range strings.Split(line, ",") {
			if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
				directives = append(directives, d)
			}
		}
	}
	return directives
}

// ShouldMakeConditionalRequest determines if we should add conditional
// request headers (If-None-Match or If-Modified-Since) based on the cache entry.
func ShouldMakeConditionalRequest(entry *CacheEntry) bool {
	if entry == nil {
		return false
	}
	return entry.ETag != "" || !entry.LastModified.IsZero()
}

// AddConditionalHeaders adds If-None-Match (ETag) or If-Modified-Since headers
// to the request if the cache entry supports conditional requests.
func AddConditionalHeaders(req *http.Request, entry *CacheEntry) {
	if entry == nil || req == nil {
		return
	}

	// ETag wins over Last-Modified
	if entry.ETag != "" {
		req.Header.Set("If-None-Match", entry.ETag)
	} else if !entry.LastModified.IsZero() {
		req.Header.Set("If-Modified-Since", entry.LastModified.UTC().Format(http.TimeFormat))
	}
}
