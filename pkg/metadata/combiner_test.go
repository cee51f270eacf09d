package metadata

import (
	"context"
	"net/http"
	"testing"

	"github.com/Sternrassler/paged-client/pkg/pagination"
	"github.com/stretchr/testify/require"
)

func TestHeaderCombiner_Combine(t *testing.T) {
	headers := http.Header{}
	headers.Set("Link", `<https://example.org/items?page=2>; rel="next"`)
	headers.Set("X-Pages", "4")
	headers.Set("X-Total-Count", "37")

	raw := pagination.Metadata{
		KeyURL:     "https://example.org/items",
		KeyStatus:  200,
		KeyHeaders: headers,
	}
	records := pagination.FromSlice([]string{"a"})

	out, err := NewHeaderCombiner[string]().Combine(context.Background(), pagination.CombineInput[string]{
		URL:         "https://example.org/items",
		Records:     records,
		RawMetadata: raw,
	})
	require.NoError(t, err)

	require.Same(t, records, out.Records)
	require.Equal(t, map[string]string{"next": "https://example.org/items?page=2"}, Links(out.Metadata))

	pages, ok := Int(out.Metadata, KeyTotalPages)
	require.True(t, ok)
	require.Equal(t, 4, pages)

	count, ok := Int(out.Metadata, KeyTotalCount)
	require.True(t, ok)
	require.Equal(t, 37, count)

	require.Equal(t, 200, out.Metadata[KeyStatus])
	require.NotContains(t, raw, KeyLinks, "raw metadata must not be modified")
}

func TestHeaderCombiner_Fallbacks(t *testing.T) {
	tests := []struct {
		name      string
		headers   http.Header
		wantPages int
		wantOK    bool
	}{
		{name: "X-Total-Pages", headers: http.Header{"X-Total-Pages": {"3"}}, wantPages: 3, wantOK: true},
		{name: "X-Pages preferred", headers: http.Header{"X-Pages": {"2"}, "X-Total-Pages": {"3"}}, wantPages: 2, wantOK: true},
		{name: "malformed ignored", headers: http.Header{"X-Pages": {"many"}, "X-Total-Pages": {"5"}}, wantPages: 5, wantOK: true},
		{name: "negative ignored", headers: http.Header{"X-Pages": {"-1"}}},
		{name: "absent", headers: http.Header{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := NewHeaderCombiner[string]().Combine(context.Background(), pagination.CombineInput[string]{
				RawMetadata: pagination.Metadata{KeyHeaders: tt.headers},
			})
			require.NoError(t, err)

			pages, ok := Int(out.Metadata, KeyTotalPages)
			require.Equal(t, tt.wantOK, ok)
			require.Equal(t, tt.wantPages, pages)
		})
	}
}

func TestHeaderCombiner_NoHeaders(t *testing.T) {
	out, err := NewHeaderCombiner[string]().Combine(context.Background(), pagination.CombineInput[string]{
		RawMetadata: pagination.Metadata{"custom": true},
	})
	require.NoError(t, err)
	require.Equal(t, pagination.Metadata{"custom": true}, out.Metadata)
}
