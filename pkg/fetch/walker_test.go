package fetch

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/Sternrassler/paged-client/internal/testutil"
	"github.com/Sternrassler/paged-client/pkg/client"
	"github.com/Sternrassler/paged-client/pkg/pagination"
	"github.com/Sternrassler/paged-client/pkg/record"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func subjects(quads []record.Quad) []string {
	out := make([]string, len(quads))
	for i, q := range quads {
		out[i] = q.Subject.Value
	}
	return out
}

func expectedSubjects(chain string, pages, perPage int) []string {
	var out []string
	for p := 0; p < pages; p++ {
		for _, line := range testutil.Quads(chain, p, perPage) {
			q, _, _ := record.ParseLine(line, false)
			out = append(out, q.Subject.Value)
		}
	}
	return out
}

func TestQuadWalker_LinkHeaderChain(t *testing.T) {
	mock := testutil.NewMockPages()
	defer mock.Close()

	urls := mock.AddChain("books", testutil.FormatNQuads, testutil.LinkHeader, [][]string{
		testutil.Quads("books", 0, 2),
		testutil.Quads("books", 1, 2),
		testutil.Quads("books", 2, 2),
	})

	walker, err := NewQuadWalker(newTestClient(t), pagination.DefaultConfig())
	require.NoError(t, err)

	ctx := context.Background()
	result, err := walker.Dereference(ctx, urls[0])
	require.NoError(t, err)
	require.Equal(t, urls[0], result.FirstPageURL)

	md, err := result.FirstPageMetadata.Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, urls[1], md.Next)

	quads, err := pagination.Collect(ctx, result.Data)
	require.NoError(t, err)
	if diff := cmp.Diff(expectedSubjects("books", 3, 2), subjects(quads)); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, 3, mock.GetRequestCount())
}

func TestQuadWalker_PageCountChain(t *testing.T) {
	mock := testutil.NewMockPages()
	defer mock.Close()

	mock.AddChain("orders", testutil.FormatNTriples, testutil.LinkPageCount, [][]string{
		testutil.Quads("orders", 0, 1),
		testutil.Quads("orders", 1, 1),
		testutil.Quads("orders", 2, 1),
		testutil.Quads("orders", 3, 1),
	})

	walker, err := NewQuadWalker(newTestClient(t), pagination.DefaultConfig())
	require.NoError(t, err)

	ctx := context.Background()
	result, err := walker.Dereference(ctx, mock.URL()+"/orders")
	require.NoError(t, err)
	require.True(t, result.Triples)

	quads, err := pagination.Collect(ctx, result.Data)
	require.NoError(t, err)
	require.Equal(t, expectedSubjects("orders", 4, 1), subjects(quads))
	require.Equal(t, 1, mock.Requests("/orders?page=4"))
}

func TestJSONWalker_BodyNextChain(t *testing.T) {
	mock := testutil.NewMockPages()
	defer mock.Close()

	urls := mock.AddChain("items", testutil.FormatJSON, testutil.LinkBody, [][]string{
		testutil.JSONItems("items", 0, 2),
		testutil.JSONItems("items", 1, 1),
	})

	walker, err := NewJSONWalker(newTestClient(t), "items", pagination.DefaultConfig())
	require.NoError(t, err)

	ctx := context.Background()
	result, err := walker.Dereference(ctx, urls[0])
	require.NoError(t, err)

	items, err := pagination.Collect(ctx, result.Data)
	require.NoError(t, err)

	var ids []string
	for _, item := range items {
		ids = append(ids, item.Get("id").String())
	}
	require.Equal(t, []string{"items/0/0", "items/0/1", "items/1/0"}, ids)
}

func TestQuadWalker_FirstPageFailure(t *testing.T) {
	mock := testutil.NewMockPages()
	defer mock.Close()

	walker, err := NewQuadWalker(newTestClient(t), pagination.DefaultConfig())
	require.NoError(t, err)

	result, err := walker.Dereference(context.Background(), mock.URL()+"/missing")
	require.Nil(t, result)

	var httpErr *client.HTTPError
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, 404, httpErr.StatusCode)
}

func TestQuadWalker_LaterPageFailure(t *testing.T) {
	mock := testutil.NewMockPages()
	defer mock.Close()

	urls := mock.AddChain("broken", testutil.FormatNQuads, testutil.LinkHeader, [][]string{
		testutil.Quads("broken", 0, 2),
		testutil.Quads("broken", 1, 2),
	})
	mock.UpdatePage("/broken/1", func(p *testutil.PageResponse) {
		p.StatusCode = 410
	})

	walker, err := NewQuadWalker(newTestClient(t), pagination.DefaultConfig())
	require.NoError(t, err)

	ctx := context.Background()
	result, err := walker.Dereference(ctx, urls[0])
	require.NoError(t, err)

	_, err = result.FirstPageMetadata.Wait(ctx)
	require.NoError(t, err)

	quads, err := pagination.Collect(ctx, result.Data)
	require.Len(t, quads, 2, "first page records are delivered before the failure")

	var httpErr *client.HTTPError
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, 410, httpErr.StatusCode)
}

func TestQuadWalker_TruncatedPage(t *testing.T) {
	mock := testutil.NewMockPages()
	defer mock.Close()

	urls := mock.AddChain("cut", testutil.FormatNQuads, testutil.LinkHeader, [][]string{
		testutil.Quads("cut", 0, 2),
		testutil.Quads("cut", 1, 4),
		testutil.Quads("cut", 2, 2),
	})
	mock.UpdatePage("/cut/1", func(p *testutil.PageResponse) {
		p.Truncate = true
		p.TruncateAfter = 2
	})

	walker, err := NewQuadWalker(newTestClient(t), pagination.DefaultConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := walker.Dereference(ctx, urls[0])
	require.NoError(t, err)

	quads, err := pagination.Collect(ctx, result.Data)
	require.Len(t, quads, 4)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestQuadWalker_MaxPages(t *testing.T) {
	mock := testutil.NewMockPages()
	defer mock.Close()

	urls := mock.AddChain("long", testutil.FormatNQuads, testutil.LinkHeader, [][]string{
		testutil.Quads("long", 0, 1),
		testutil.Quads("long", 1, 1),
		testutil.Quads("long", 2, 1),
	})

	walker, err := NewQuadWalker(newTestClient(t), pagination.Config{MaxPages: 2})
	require.NoError(t, err)

	ctx := context.Background()
	result, err := walker.Dereference(ctx, urls[0])
	require.NoError(t, err)

	quads, err := pagination.Collect(ctx, result.Data)
	require.Len(t, quads, 2)
	require.ErrorIs(t, err, pagination.ErrMaxPagesExceeded)
	require.Equal(t, 0, mock.Requests("/long/2"))
}
