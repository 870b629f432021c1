package pdfobj

import (
	"bytes"
	"fmt"
	"io"
)

// ContentItem is one element of a content stream: either an operand
// (a plain PDF object) or an operator keyword.
type ContentItem struct {
	Obj        Object
	IsOperator bool
	Op         string
	Pos        int
}

// ContentLexer walks a decoded content stream, yielding operands and
// operators in source order. It is single-pass and non-restartable.
type ContentLexer struct {
	tr tokenReader
}

func NewContentLexer(data []byte) *ContentLexer {
	return &ContentLexer{tr: tokenReader{l: newLexer(data)}}
}

// Next returns the next operand or operator, io.EOF at the end.
func (c *ContentLexer) Next() (ContentItem, error) {
	tok, err := c.tr.next()
	if err != nil {
		return ContentItem{}, err
	}
	if tok.typ == tokKeyword {
		switch tok.kw {
		case "true":
			return ContentItem{Obj: Bool(true), Pos: tok.pos}, nil
		case "false":
			return ContentItem{Obj: Bool(false), Pos: tok.pos}, nil
		case "null":
			return ContentItem{Obj: Null{}, Pos: tok.pos}, nil
		}
		return ContentItem{IsOperator: true, Op: tok.kw, Pos: tok.pos}, nil
	}
	c.tr.unread(tok)
	obj, err := parseObject(&c.tr)
	if err != nil {
		return ContentItem{}, err
	}
	return ContentItem{Obj: obj, Pos: tok.pos}, nil
}

// InlineImageData consumes the raw bytes between an ID operator and the
// closing EI, returning the payload. Must be called immediately after
// Next returned the ID operator.
func (c *ContentLexer) InlineImageData() ([]byte, error) {
	if len(c.tr.buf) != 0 {
		return nil, fmt.Errorf("%w: inline image read out of sequence", ErrMalformed)
	}
	l := c.tr.l
	// a single whitespace byte separates ID from the data
	if l.pos < len(l.data) && isWhitespace(l.data[l.pos]) {
		l.pos++
	}
	start := l.pos
	for {
		idx := bytes.Index(l.data[l.pos:], []byte("EI"))
		if idx < 0 {
			return nil, io.ErrUnexpectedEOF
		}
		at := l.pos + idx
		beforeOK := at == start || isWhitespace(l.data[at-1])
		afterOK := at+2 >= len(l.data) || isWhitespace(l.data[at+2]) || isDelimiter(l.data[at+2])
		if beforeOK && afterOK {
			data := l.data[start:at]
			for len(data) > 0 && isWhitespace(data[len(data)-1]) {
				data = data[:len(data)-1]
			}
			l.pos = at + 2
			return data, nil
		}
		l.pos = at + 2
	}
}
