// Package record decodes page bodies into record streams.
//
// Line based RDF (N-Triples and N-Quads) is decoded lazily, one line per
// Next call, so a page's records become available while its body is still
// being received. JSON envelopes are decoded with gjson into raw item values.
package record

import (
	"strings"
)

// TermKind identifies the kind of an RDF term.
type TermKind uint8

const (
	// TermIRI is an IRI reference written as <...>.
	TermIRI TermKind = iota + 1
	// TermBlank is a blank node label written as _:label.
	TermBlank
	// TermLiteral is a literal, optionally with a language tag or datatype.
	TermLiteral
)

// String returns the kind's name.
func (k TermKind) String() string {
	switch k {
	case TermIRI:
		return "iri"
	case TermBlank:
		return "blank"
	case TermLiteral:
		return "literal"
	default:
		return "none"
	}
}

// Term is a single RDF term. The zero Term is the absent term and is used as
// the Graph of triples.
type Term struct {
	Kind     TermKind
	Value    string
	Language string
	Datatype string
}

// IRI returns an IRI term.
func IRI(value string) Term {
	return Term{Kind: TermIRI, Value: value}
}

// Blank returns a blank node term.
func Blank(label string) Term {
	return Term{Kind: TermBlank, Value: label}
}

// Literal returns a literal term. At most one of language and datatype should
// be set.
func Literal(value, language, datatype string) Term {
	return Term{Kind: TermLiteral, Value: value, Language: language, Datatype: datatype}
}

// IsZero reports whether t is the absent term.
func (t Term) IsZero() bool {
	return t.Kind == 0
}

// String returns t in N-Triples syntax.
func (t Term) String() string {
	switch t.Kind {
	case TermIRI:
		return "<" + t.Value + ">"
	case TermBlank:
		return "_:" + t.Value
	case TermLiteral:
		var sb strings.Builder
		sb.WriteByte('"')
		writeEscaped(&sb, t.Value)
		sb.WriteByte('"')
		if t.Language != "" {
			sb.WriteByte('@')
			sb.WriteString(t.Language)
		} else if t.Datatype != "" {
			sb.WriteString("^^<")
			sb.WriteString(t.Datatype)
			sb.WriteByte('>')
		}
		return sb.String()
	default:
		return ""
	}
}

func writeEscaped(sb *strings.Builder, s string) {
	for _, r := range s {
		switch r {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\t':
			sb.WriteString(`\t`)
		default:
			sb.WriteRune(r)
		}
	}
}

// Quad is an RDF statement. Graph is the zero Term for triples and for
// statements in the default graph.
type Quad struct {
	Subject   Term
	Predicate Term
	Object    Term
	Graph     Term
}

// NewTriple returns a quad in the default graph.
func NewTriple(subject, predicate, object Term) Quad {
	return Quad{Subject: subject, Predicate: predicate, Object: object}
}

// InDefaultGraph reports whether q has no graph term.
func (q Quad) InDefaultGraph() bool {
	return q.Graph.IsZero()
}

// String returns q as an N-Quads statement without the trailing newline.
func (q Quad) String() string {
	parts := []string{q.Subject.String(), q.Predicate.String(), q.Object.String()}
	if !q.Graph.IsZero() {
		parts = append(parts, q.Graph.String())
	}
	return strings.Join(parts, " ") + " ."
}
