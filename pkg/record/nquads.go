package record

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"github.com/Sternrassler/paged-client/pkg/pagination"
)

// ParseError reports a malformed statement.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

// ParseLine parses a single N-Quads statement. Blank and comment-only lines
// return ok == false. In triples mode a graph term is rejected.
func ParseLine(line string, triples bool) (q Quad, ok bool, err error) {
	p := lineParser{s: line}
	p.skipSpace()
	if p.done() || p.peek() == '#' {
		return Quad{}, false, nil
	}

	if q.Subject, err = p.term(); err != nil {
		return Quad{}, false, err
	}
	if q.Subject.Kind == TermLiteral {
		return Quad{}, false, errors.New("literal in subject position")
	}

	if q.Predicate, err = p.term(); err != nil {
		return Quad{}, false, err
	}
	if q.Predicate.Kind != TermIRI {
		return Quad{}, false, errors.New("predicate must be an IRI")
	}

	if q.Object, err = p.term(); err != nil {
		return Quad{}, false, err
	}

	p.skipSpace()
	if !p.done() && p.peek() != '.' {
		if triples {
			return Quad{}, false, errors.New("graph term in N-Triples statement")
		}
		if q.Graph, err = p.term(); err != nil {
			return Quad{}, false, err
		}
		if q.Graph.Kind == TermLiteral {
			return Quad{}, false, errors.New("literal in graph position")
		}
		p.skipSpace()
	}

	if p.done() || p.peek() != '.' {
		return Quad{}, false, errors.New("missing terminating '.'")
	}
	p.pos++
	p.skipSpace()
	if !p.done() && p.peek() != '#' {
		return Quad{}, false, fmt.Errorf("unexpected %q after '.'", p.s[p.pos:])
	}
	return q, true, nil
}

type lineParser struct {
	s   string
	pos int
}

func (p *lineParser) done() bool { return p.pos >= len(p.s) }

func (p *lineParser) peek() byte { return p.s[p.pos] }

func (p *lineParser) skipSpace() {
	for !p.done() && (p.peek() == ' ' || p.peek() == '\t' || p.peek() == '\r' || p.peek() == '\n') {
		p.pos++
	}
}

func (p *lineParser) term() (Term, error) {
	p.skipSpace()
	if p.done() {
		return Term{}, errors.New("unexpected end of statement")
	}
	switch p.peek() {
	case '<':
		v, err := p.iri()
		if err != nil {
			return Term{}, err
		}
		return IRI(v), nil
	case '_':
		return p.blank()
	case '"':
		return p.literal()
	default:
		return Term{}, fmt.Errorf("unexpected character %q at column %d", p.peek(), p.pos+1)
	}
}

func (p *lineParser) iri() (string, error) {
	p.pos++ // <
	var sb strings.Builder
	for !p.done() {
		c := p.peek()
		switch {
		case c == '>':
			p.pos++
			return sb.String(), nil
		case c == '\\':
			r, err := p.unicodeEscape()
			if err != nil {
				return "", err
			}
			sb.WriteRune(r)
		case c == ' ' || c == '<' || c == '"':
			return "", fmt.Errorf("invalid character %q in IRI", c)
		default:
			sb.WriteByte(c)
			p.pos++
		}
	}
	return "", errors.New("unterminated IRI")
}

func (p *lineParser) blank() (Term, error) {
	if !strings.HasPrefix(p.s[p.pos:], "_:") {
		return Term{}, errors.New("invalid blank node")
	}
	p.pos += 2
	start := p.pos
	for !p.done() {
		c := p.peek()
		if c == ' ' || c == '\t' || c == '<' || c == '"' {
			break
		}
		p.pos++
	}
	label := strings.TrimRight(p.s[start:p.pos], ".")
	p.pos = start + len(label)
	if label == "" {
		return Term{}, errors.New("empty blank node label")
	}
	return Blank(label), nil
}

func (p *lineParser) literal() (Term, error) {
	p.pos++ // "
	var sb strings.Builder
	closed := false
	for !p.done() && !closed {
		c := p.peek()
		switch c {
		case '"':
			p.pos++
			closed = true
		case '\\':
			if p.pos+1 >= len(p.s) {
				return Term{}, errors.New("unterminated escape")
			}
			switch e := p.s[p.pos+1]; e {
			case 't':
				sb.WriteByte('\t')
			case 'b':
				sb.WriteByte('\b')
			case 'n':
				sb.WriteByte('\n')
			case 'r':
				sb.WriteByte('\r')
			case 'f':
				sb.WriteByte('\f')
			case '"', '\'', '\\':
				sb.WriteByte(e)
			case 'u', 'U':
				r, err := p.unicodeEscape()
				if err != nil {
					return Term{}, err
				}
				sb.WriteRune(r)
				continue
			default:
				return Term{}, fmt.Errorf("invalid escape \\%c", e)
			}
			p.pos += 2
		default:
			sb.WriteByte(c)
			p.pos++
		}
	}
	if !closed {
		return Term{}, errors.New("unterminated literal")
	}

	t := Literal(sb.String(), "", "")
	if p.done() {
		return t, nil
	}
	switch p.peek() {
	case '@':
		p.pos++
		start := p.pos
		for !p.done() && (isAlnum(p.peek()) || p.peek() == '-') {
			p.pos++
		}
		if p.pos == start {
			return Term{}, errors.New("empty language tag")
		}
		t.Language = p.s[start:p.pos]
	case '^':
		if !strings.HasPrefix(p.s[p.pos:], "^^<") {
			return Term{}, errors.New("invalid datatype")
		}
		p.pos += 2
		dt, err := p.iri()
		if err != nil {
			return Term{}, err
		}
		t.Datatype = dt
	}
	return t, nil
}

// unicodeEscape decodes \uXXXX or \UXXXXXXXX at the current position.
func (p *lineParser) unicodeEscape() (rune, error) {
	if p.pos+1 >= len(p.s) {
		return 0, errors.New("unterminated escape")
	}
	var n int
	switch p.s[p.pos+1] {
	case 'u':
		n = 4
	case 'U':
		n = 8
	default:
		return 0, fmt.Errorf("invalid escape \\%c", p.s[p.pos+1])
	}
	start := p.pos + 2
	if start+n > len(p.s) {
		return 0, errors.New("truncated unicode escape")
	}
	v, err := strconv.ParseUint(p.s[start:start+n], 16, 32)
	if err != nil || !utf8.ValidRune(rune(v)) {
		return 0, fmt.Errorf("invalid unicode escape %q", p.s[p.pos:start+n])
	}
	p.pos = start + n
	return rune(v), nil
}

func isAlnum(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

// quadStream reads one statement per Next call from body.
type quadStream struct {
	body    io.ReadCloser
	reader  *bufio.Reader
	triples bool
	line    int
	err     error

	stopped   atomic.Bool
	closeOnce sync.Once
}

func newQuadStream(body io.ReadCloser, triples bool) *quadStream {
	return &quadStream{
		body:    body,
		reader:  bufio.NewReaderSize(body, 64*1024),
		triples: triples,
	}
}

func (s *quadStream) Next(ctx context.Context) (Quad, error) {
	if err := ctx.Err(); err != nil {
		return Quad{}, err
	}
	if s.stopped.Load() {
		return Quad{}, pagination.ErrStreamDone
	}
	if s.err != nil {
		return Quad{}, s.err
	}

	for {
		text, readErr := s.reader.ReadString('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			// ReadString only fails before the delimiter, so text is a fragment
			// of a statement cut off by the broken body.
			if s.stopped.Load() {
				return Quad{}, s.fail(pagination.ErrStreamDone)
			}
			return Quad{}, s.fail(fmt.Errorf("read body after line %d: %w", s.line, readErr))
		}
		if text != "" {
			s.line++
			q, ok, err := ParseLine(text, s.triples)
			if err != nil {
				return Quad{}, s.fail(&ParseError{Line: s.line, Msg: err.Error()})
			}
			if ok {
				return q, nil
			}
		}
		if readErr != nil {
			return Quad{}, s.fail(pagination.ErrStreamDone)
		}
		if err := ctx.Err(); err != nil {
			return Quad{}, err
		}
	}
}

// fail latches err and releases the body.
func (s *quadStream) fail(err error) error {
	s.err = err
	s.close()
	return err
}

func (s *quadStream) Stop() {
	s.stopped.Store(true)
	s.close()
}

func (s *quadStream) close() {
	s.closeOnce.Do(func() {
		s.body.Close()
	})
}
