// Package testutil provides a mock paged server for tests.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Format is the body format of mock pages.
type Format int

const (
	FormatNQuads Format = iota
	FormatNTriples
	FormatJSON
)

// ContentType returns the media type served for f.
func (f Format) ContentType() string {
	switch f {
	case FormatNTriples:
		return "application/n-triples"
	case FormatJSON:
		return "application/json; charset=utf-8"
	default:
		return "application/n-quads"
	}
}

// Linking selects how chain pages point at their successor.
type Linking int

const (
	// LinkHeader sends Link: <next>; rel="next".
	LinkHeader Linking = iota
	// LinkBody puts "next" into the JSON envelope. JSON chains only.
	LinkBody
	// LinkPageCount serves ?page=N URLs with an X-Pages header.
	LinkPageCount
)

// PageResponse defines the behavior of a mock page.
type PageResponse struct {
	StatusCode int
	Format     Format
	Records    []string
	Headers    map[string]string
	Delay      time.Duration

	// Body replaces the rendered records when set.
	Body string

	// Next is the URL of the following page, rendered in the JSON envelope
	// when the page uses LinkBody.
	Next string

	// Truncate aborts the connection after TruncateAfter records.
	Truncate      bool
	TruncateAfter int
}

// MockPages is a configurable mock server serving chains of pages.
type MockPages struct {
	server   *httptest.Server
	mu       sync.RWMutex
	pages    map[string]PageResponse
	handlers map[string]http.HandlerFunc

	// Tracking
	RequestCount      int
	ConditionalCount  int
	LastRequestHeader http.Header
	requests          map[string]int
}

// NewMockPages starts a new mock server.
func NewMockPages() *MockPages {
	mock := &MockPages{
		pages:    make(map[string]PageResponse),
		handlers: make(map[string]http.HandlerFunc),
		requests: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.RequestURI()

		mock.mu.Lock()
		mock.RequestCount++
		mock.requests[key]++
		mock.LastRequestHeader = r.Header.Clone()
		if r.Header.Get("If-None-Match") != "" || r.Header.Get("If-Modified-Since") != "" {
			mock.ConditionalCount++
		}
		handler, hasHandler := mock.handlers[key]
		if !hasHandler {
			handler, hasHandler = mock.handlers[r.URL.Path]
		}
		page, hasPage := mock.pages[key]
		if !hasPage {
			page, hasPage = mock.pages[r.URL.Path]
		}
		mock.mu.Unlock()

		switch {
		case hasHandler:
			handler(w, r)
		case hasPage:
			mock.serve(w, r, page)
		default:
			http.NotFound(w, r)
		}
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockPages) URL() string {
	return m.server.URL
}

// Client returns an HTTP client for the mock server.
func (m *MockPages) Client() *http.Client {
	return m.server.Client()
}

// Close shuts down the mock server.
func (m *MockPages) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockPages) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.ConditionalCount = 0
	m.LastRequestHeader = nil
	m.requests = make(map[string]int)
}

// SetHandler sets a custom handler for a path or request URI.
func (m *MockPages) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetPage configures a page for a path or request URI such as "/p?page=2".
func (m *MockPages) SetPage(path string, page PageResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[path] = page
}

// AddChain serves a chain of pages under /name and returns the URL of each
// page. pages[i] holds the records of page i.
func (m *MockPages) AddChain(name string, format Format, linking Linking, pages [][]string) []string {
	urls := make([]string, len(pages))
	paths := make([]string, len(pages))
	for i := range pages {
		switch linking {
		case LinkPageCount:
			paths[i] = fmt.Sprintf("/%s?page=%d", name, i+1)
		default:
			paths[i] = fmt.Sprintf("/%s/%d", name, i)
		}
		urls[i] = m.URL() + paths[i]
	}

	for i, records := range pages {
		page := PageResponse{
			StatusCode: http.StatusOK,
			Format:     format,
			Records:    records,
			Headers:    map[string]string{},
		}
		last := i == len(pages)-1

		switch linking {
		case LinkHeader:
			if !last {
				page.Headers["Link"] = fmt.Sprintf(`<%s>; rel="next"`, paths[i+1])
			}
		case LinkBody:
			if !last {
				page.Next = urls[i+1]
			}
		case LinkPageCount:
			page.Headers["X-Pages"] = strconv.Itoa(len(pages))
		}

		// the first page of a page-count chain is also served without ?page
		if linking == LinkPageCount && i == 0 {
			m.SetPage("/"+name, page)
		}
		m.SetPage(paths[i], page)
	}
	return urls
}

// UpdatePage modifies the page configured for path.
func (m *MockPages) UpdatePage(path string, update func(*PageResponse)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	page := m.pages[path]
	update(&page)
	m.pages[path] = page
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockPages) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetConditionalCount returns the number of conditional requests.
func (m *MockPages) GetConditionalCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ConditionalCount
}

// GetLastRequestHeader returns the headers of the most recent request.
func (m *MockPages) GetLastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastRequestHeader
}

// Requests returns how often a request URI was requested.
func (m *MockPages) Requests(uri string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requests[uri]
}

func (m *MockPages) serve(w http.ResponseWriter, r *http.Request, page PageResponse) {
	if page.Delay > 0 {
		select {
		case <-time.After(page.Delay):
		case <-r.Context().Done():
			return
		}
	}

	w.Header().Set("Content-Type", page.Format.ContentType())
	for key, value := range page.Headers {
		w.Header().Set(key, value)
	}

	status := page.StatusCode
	if status == 0 {
		status = http.StatusOK
	}

	if page.Truncate {
		records := page.Records
		if page.TruncateAfter < len(records) {
			records = records[:page.TruncateAfter]
		}
		partial := render(page.Format, records, "", true)
		// promise more than is sent so the client sees an unexpected EOF
		w.Header().Set("Content-Length", strconv.Itoa(len(partial)+1024))
		w.WriteHeader(status)
		w.Write([]byte(partial))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		panic(http.ErrAbortHandler)
	}

	body := page.Body
	if body == "" {
		body = render(page.Format, page.Records, page.Next, false)
	}
	w.WriteHeader(status)
	w.Write([]byte(body))
}

func render(format Format, records []string, next string, partial bool) string {
	if format != FormatJSON {
		var sb strings.Builder
		for _, r := range records {
			sb.WriteString(r)
			sb.WriteByte('\n')
		}
		return sb.String()
	}

	nextJSON := "null"
	if next != "" {
		nextJSON = strconv.Quote(next)
	}
	body := `{"items":[` + strings.Join(records, ",")
	if partial {
		return body
	}
	return body + `],"next":` + nextJSON + `}`
}

// Quads returns n N-Quads statements whose subjects are numbered within
// chain and page, e.g. <http://example.org/books/1/0>.
func Quads(chain string, page, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf(`<http://example.org/%s/%d/%d> <http://example.org/value> "%d-%d" .`, chain, page, i, page, i)
	}
	return out
}

// JSONItems returns n JSON objects numbered within chain and page.
func JSONItems(chain string, page, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf(`{"id":"%s/%d/%d"}`, chain, page, i)
	}
	return out
}

// NewHealthyPage creates a cacheable 200 page with an ETag.
func NewHealthyPage(format Format, records ...string) PageResponse {
	return PageResponse{
		StatusCode: http.StatusOK,
		Format:     format,
		Records:    records,
		Headers: map[string]string{
			"X-RateLimit-Remaining": "100",
			"X-RateLimit-Reset":     "60",
			"ETag":                  `"test-etag-123"`,
			"Cache-Control":         "max-age=300",
		},
	}
}

// NewServerErrorPage creates a 500 Internal Server Error page.
func NewServerErrorPage() PageResponse {
	return PageResponse{
		StatusCode: http.StatusInternalServerError,
		Format:     FormatJSON,
		Body:       `{"error": "Internal server error"}`,
	}
}

// NewRateLimitPage creates a 429 Too Many Requests page.
func NewRateLimitPage(retryAfter int) PageResponse {
	return PageResponse{
		StatusCode: http.StatusTooManyRequests,
		Format:     FormatJSON,
		Body:       `{"error": "Rate limit exceeded"}`,
		Headers: map[string]string{
			"Retry-After":           strconv.Itoa(retryAfter),
			"X-RateLimit-Remaining": "0",
			"X-RateLimit-Reset":     strconv.Itoa(retryAfter),
		},
	}
}

// NewConditionalHandler creates a handler that responds with 304 when the
// request carries etag.
func NewConditionalHandler(etag string, format Format, records ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", format.ContentType())
		w.Header().Set("Cache-Control", "max-age=0")

		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}

		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(render(format, records, "", false)))
	}
}
