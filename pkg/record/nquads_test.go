package record

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/paged-client/pkg/pagination"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		triples bool
		want    Quad
		skip    bool
		wantErr bool
	}{
		{
			name: "triple",
			line: "<http://ex.org/s> <http://ex.org/p> <http://ex.org/o> .\n",
			want: NewTriple(IRI("http://ex.org/s"), IRI("http://ex.org/p"), IRI("http://ex.org/o")),
		},
		{
			name: "quad with graph",
			line: `<http://ex.org/s> <http://ex.org/p> "o" <http://ex.org/g> .`,
			want: Quad{
				Subject:   IRI("http://ex.org/s"),
				Predicate: IRI("http://ex.org/p"),
				Object:    Literal("o", "", ""),
				Graph:     IRI("http://ex.org/g"),
			},
		},
		{
			name: "blank nodes",
			line: "_:b0 <http://ex.org/p> _:b1.",
			want: NewTriple(Blank("b0"), IRI("http://ex.org/p"), Blank("b1")),
		},
		{
			name: "language tagged literal",
			line: `<http://ex.org/s> <http://ex.org/p> "chat"@fr-BE .`,
			want: NewTriple(IRI("http://ex.org/s"), IRI("http://ex.org/p"), Literal("chat", "fr-BE", "")),
		},
		{
			name: "typed literal",
			line: `<http://ex.org/s> <http://ex.org/p> "42"^^<http://www.w3.org/2001/XMLSchema#integer> .`,
			want: NewTriple(IRI("http://ex.org/s"), IRI("http://ex.org/p"),
				Literal("42", "", "http://www.w3.org/2001/XMLSchema#integer")),
		},
		{
			name: "escapes",
			line: `<http://ex.org/s> <http://ex.org/p> "a\"b\\c\né\U0001F600" .`,
			want: NewTriple(IRI("http://ex.org/s"), IRI("http://ex.org/p"), Literal("a\"b\\c\né😀", "", "")),
		},
		{
			name: "trailing comment",
			line: "<http://ex.org/s> <http://ex.org/p> <http://ex.org/o> . # note",
			want: NewTriple(IRI("http://ex.org/s"), IRI("http://ex.org/p"), IRI("http://ex.org/o")),
		},
		{name: "blank line", line: "   \n", skip: true},
		{name: "comment", line: "# generated", skip: true},
		{name: "missing dot", line: "<http://ex.org/s> <http://ex.org/p> <http://ex.org/o>", wantErr: true},
		{name: "literal subject", line: `"s" <http://ex.org/p> <http://ex.org/o> .`, wantErr: true},
		{name: "blank predicate", line: "<http://ex.org/s> _:p <http://ex.org/o> .", wantErr: true},
		{name: "unterminated IRI", line: "<http://ex.org/s <http://ex.org/p> <http://ex.org/o> .", wantErr: true},
		{name: "unterminated literal", line: `<http://ex.org/s> <http://ex.org/p> "o .`, wantErr: true},
		{name: "bad escape", line: `<http://ex.org/s> <http://ex.org/p> "\q" .`, wantErr: true},
		{name: "trailing garbage", line: "<http://ex.org/s> <http://ex.org/p> <http://ex.org/o> . x", wantErr: true},
		{
			name:    "graph in triples mode",
			line:    "<http://ex.org/s> <http://ex.org/p> <http://ex.org/o> <http://ex.org/g> .",
			triples: true,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := ParseLine(tt.line, tt.triples)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, !tt.skip, ok)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseLine() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestQuad_StringRoundTrip(t *testing.T) {
	q := Quad{
		Subject:   Blank("x"),
		Predicate: IRI("http://ex.org/p"),
		Object:    Literal("line\n\"quoted\"", "en", ""),
		Graph:     IRI("http://ex.org/g"),
	}

	got, ok, err := ParseLine(q.String(), false)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, q, got)
}

// trackingBody records whether it was closed.
type trackingBody struct {
	io.Reader
	closed bool
}

func (b *trackingBody) Close() error {
	b.closed = true
	return nil
}

func TestNQuadsDecoder_Stream(t *testing.T) {
	doc := strings.Join([]string{
		"# page 1",
		"<http://ex.org/a> <http://ex.org/p> \"1\" .",
		"",
		"<http://ex.org/b> <http://ex.org/p> \"2\" <http://ex.org/g> .",
		"<http://ex.org/c> <http://ex.org/p> \"3\" .", // no trailing newline
	}, "\n")
	body := &trackingBody{Reader: strings.NewReader(doc)}

	stream, triples, err := NQuadsDecoder{}.Decode(body, "application/n-quads; charset=utf-8")
	require.NoError(t, err)
	require.False(t, triples)

	quads, err := pagination.Collect(context.Background(), stream)
	require.NoError(t, err)
	require.Len(t, quads, 3)
	require.Equal(t, "http://ex.org/g", quads[1].Graph.Value)
	require.Equal(t, "3", quads[2].Object.Value)
	require.True(t, body.closed)
}

func TestNQuadsDecoder_ParseErrorCarriesLine(t *testing.T) {
	doc := "<http://ex.org/a> <http://ex.org/p> \"1\" .\n\n<http://ex.org/b> oops .\n<http://ex.org/c> <http://ex.org/p> \"3\" .\n"
	body := &trackingBody{Reader: strings.NewReader(doc)}

	stream, triples, err := NQuadsDecoder{}.Decode(body, "application/n-triples")
	require.NoError(t, err)
	require.True(t, triples)

	defer stream.Stop()
	ctx := context.Background()

	_, err = stream.Next(ctx)
	require.NoError(t, err)

	_, err = stream.Next(ctx)
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	require.Equal(t, 3, parseErr.Line)
	require.True(t, body.closed)

	// the failure is latched
	_, err = stream.Next(ctx)
	require.ErrorAs(t, err, &parseErr)
}

func TestNQuadsDecoder_Lazy(t *testing.T) {
	pr, pw := io.Pipe()
	stream, _, err := NQuadsDecoder{}.Decode(pr, MediaTypeNQuads)
	require.NoError(t, err)
	defer stream.Stop()

	go func() {
		pw.Write([]byte("<http://ex.org/a> <http://ex.org/p> \"1\" .\n"))
		// the rest of the body never arrives until the test reads the first record
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	q, err := stream.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, "http://ex.org/a", q.Subject.Value)

	pw.Close()
	_, err = stream.Next(ctx)
	require.ErrorIs(t, err, pagination.ErrStreamDone)
}

func TestNQuadsDecoder_TruncatedBody(t *testing.T) {
	pr, pw := io.Pipe()
	stream, _, err := NQuadsDecoder{}.Decode(pr, MediaTypeNQuads)
	require.NoError(t, err)
	defer stream.Stop()

	truncated := errors.New("connection reset")
	go func() {
		pw.Write([]byte("<http://ex.org/a> <http://ex.org/p> \"1\" .\n"))
		pw.CloseWithError(truncated)
	}()

	quads, err := pagination.Collect(context.Background(), stream)
	require.Len(t, quads, 1)
	require.ErrorIs(t, err, truncated)
}

func TestNQuadsDecoder_BodyBrokenMidStatement(t *testing.T) {
	pr, pw := io.Pipe()
	stream, _, err := NQuadsDecoder{}.Decode(pr, MediaTypeNQuads)
	require.NoError(t, err)
	defer stream.Stop()

	reset := errors.New("connection reset")
	go func() {
		pw.Write([]byte("<http://ex.org/a> <http://ex.org/p> \"1\" .\n<http://ex.org/b> <http://ex.org/p"))
		pw.CloseWithError(reset)
	}()

	quads, err := pagination.Collect(context.Background(), stream)
	require.Len(t, quads, 1)
	require.ErrorIs(t, err, reset)

	var parseErr *ParseError
	require.False(t, errors.As(err, &parseErr), "broken body reported as syntax error: %v", err)
	require.Contains(t, err.Error(), "after line 1")
}

func TestNQuadsDecoder_Stop(t *testing.T) {
	body := &trackingBody{Reader: strings.NewReader("<http://ex.org/a> <http://ex.org/p> \"1\" .\n")}
	stream, _, err := NQuadsDecoder{}.Decode(body, "")
	require.NoError(t, err)

	stream.Stop()
	stream.Stop()
	require.True(t, body.closed)

	_, err = stream.Next(context.Background())
	require.ErrorIs(t, err, pagination.ErrStreamDone)
}

func TestNQuadsDecoder_UnsupportedContentType(t *testing.T) {
	body := &trackingBody{Reader: strings.NewReader("<html></html>")}

	_, _, err := NQuadsDecoder{}.Decode(body, "text/html")
	require.ErrorIs(t, err, ErrUnsupportedContentType)
	require.True(t, body.closed)
}

func TestIsJSON(t *testing.T) {
	require.True(t, IsJSON("application/json; charset=utf-8"))
	require.True(t, IsJSON("application/ld+json"))
	require.False(t, IsJSON("application/n-quads"))
	require.False(t, IsJSON(""))
	require.False(t, IsJSON(";;"))
}
