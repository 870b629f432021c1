package pdfobj

import (
	"bytes"
	"errors"
	"io"
	"strconv"
)

type tokenType int

// Token kinds cover the structural delimiters, names, literal and hex
// strings, and numbers of the object syntax. tokKeyword carries bare
// words such as obj, endobj, stream, R, true, false and null.
const (
	tokDictOpen tokenType = iota
	tokDictClose
	tokArrayOpen
	tokArrayClose
	tokName
	tokString
	tokInt
	tokReal
	tokKeyword
)

type token struct {
	typ tokenType
	i   int64
	f   float64
	str []byte // string payload
	hex bool
	kw  string // keyword or name text
	pos int
}

// lexer tokenizes PDF syntax over an in-memory buffer. The same lexer
// serves file-level objects and decoded content streams.
type lexer struct {
	data []byte
	pos  int
}

func newLexer(data []byte) *lexer { return &lexer{data: data} }

func isWhitespace(c byte) bool {
	return c == 0x00 || c == 0x09 || c == 0x0A || c == 0x0C || c == 0x0D || c == 0x20
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func (l *lexer) skipWhitespace() {
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		if isWhitespace(c) {
			l.pos++
			continue
		}
		if c == '%' {
			for l.pos < len(l.data) && l.data[l.pos] != '\n' && l.data[l.pos] != '\r' {
				l.pos++
			}
			continue
		}
		return
	}
}

func (l *lexer) next() (token, error) {
	l.skipWhitespace()
	if l.pos >= len(l.data) {
		return token{}, io.EOF
	}
	start := l.pos
	c := l.data[l.pos]
	switch {
	case c == '<':
		if l.pos+1 < len(l.data) && l.data[l.pos+1] == '<' {
			l.pos += 2
			return token{typ: tokDictOpen, pos: start}, nil
		}
		return l.scanHexString()
	case c == '>':
		if l.pos+1 < len(l.data) && l.data[l.pos+1] == '>' {
			l.pos += 2
			return token{typ: tokDictClose, pos: start}, nil
		}
		l.pos++
		return token{typ: tokKeyword, kw: ">", pos: start}, nil
	case c == '[':
		l.pos++
		return token{typ: tokArrayOpen, pos: start}, nil
	case c == ']':
		l.pos++
		return token{typ: tokArrayClose, pos: start}, nil
	case c == '(':
		return l.scanLiteralString()
	case c == '/':
		return l.scanName()
	case c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9'):
		return l.scanNumber()
	case c == '{' || c == '}':
		l.pos++
		return token{typ: tokKeyword, kw: string(c), pos: start}, nil
	default:
		return l.scanKeyword()
	}
}

func (l *lexer) scanName() (token, error) {
	start := l.pos
	l.pos++ // '/'
	var out bytes.Buffer
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		if isWhitespace(c) || isDelimiter(c) {
			break
		}
		if c == '#' && l.pos+2 < len(l.data) {
			hi, ok1 := hexNibble(l.data[l.pos+1])
			lo, ok2 := hexNibble(l.data[l.pos+2])
			if ok1 && ok2 {
				out.WriteByte(hi<<4 | lo)
				l.pos += 3
				continue
			}
		}
		out.WriteByte(c)
		l.pos++
	}
	return token{typ: tokName, kw: out.String(), pos: start}, nil
}

func hexNibble(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	}
	return 0, false
}

func (l *lexer) scanLiteralString() (token, error) {
	start := l.pos
	l.pos++ // '('
	var out bytes.Buffer
	depth := 1
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		switch c {
		case '\\':
			l.pos++
			if l.pos >= len(l.data) {
				return token{}, errors.New("unterminated string escape")
			}
			esc := l.data[l.pos]
			switch esc {
			case 'n':
				out.WriteByte('\n')
			case 'r':
				out.WriteByte('\r')
			case 't':
				out.WriteByte('\t')
			case 'b':
				out.WriteByte('\b')
			case 'f':
				out.WriteByte('\f')
			case '\r':
				// line continuation, swallow optional LF
				if l.pos+1 < len(l.data) && l.data[l.pos+1] == '\n' {
					l.pos++
				}
			case '\n':
				// line continuation
			default:
				if esc >= '0' && esc <= '7' {
					val := int(esc - '0')
					for k := 0; k < 2 && l.pos+1 < len(l.data); k++ {
						n := l.data[l.pos+1]
						if n < '0' || n > '7' {
							break
						}
						val = val*8 + int(n-'0')
						l.pos++
					}
					out.WriteByte(byte(val))
				} else {
					out.WriteByte(esc)
				}
			}
			l.pos++
		case '(':
			depth++
			out.WriteByte(c)
			l.pos++
		case ')':
			depth--
			l.pos++
			if depth == 0 {
				return token{typ: tokString, str: out.Bytes(), pos: start}, nil
			}
			out.WriteByte(c)
		default:
			out.WriteByte(c)
			l.pos++
		}
	}
	return token{}, errors.New("unterminated literal string")
}

func (l *lexer) scanHexString() (token, error) {
	start := l.pos
	l.pos++ // '<'
	var out bytes.Buffer
	var hi byte
	have := false
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		if c == '>' {
			l.pos++
			if have { // odd digit count: pad with zero
				out.WriteByte(hi << 4)
			}
			return token{typ: tokString, str: out.Bytes(), hex: true, pos: start}, nil
		}
		if n, ok := hexNibble(c); ok {
			if have {
				out.WriteByte(hi<<4 | n)
				have = false
			} else {
				hi = n
				have = true
			}
		}
		l.pos++
	}
	return token{}, errors.New("unterminated hex string")
}

func (l *lexer) scanNumber() (token, error) {
	start := l.pos
	real := false
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		if c == '.' {
			real = true
			l.pos++
			continue
		}
		if c == '+' || c == '-' || (c >= '0' && c <= '9') {
			l.pos++
			continue
		}
		break
	}
	text := string(l.data[start:l.pos])
	if real {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return token{}, err
		}
		return token{typ: tokReal, f: f, pos: start}, nil
	}
	i, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		// values like "--5" appear in damaged files; retry as float
		f, ferr := strconv.ParseFloat(text, 64)
		if ferr != nil {
			return token{}, err
		}
		return token{typ: tokReal, f: f, pos: start}, nil
	}
	return token{typ: tokInt, i: i, pos: start}, nil
}

func (l *lexer) scanKeyword() (token, error) {
	start := l.pos
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		if isWhitespace(c) || isDelimiter(c) {
			break
		}
		l.pos++
	}
	if l.pos == start {
		l.pos++
		return token{typ: tokKeyword, kw: string(l.data[start]), pos: start}, nil
	}
	return token{typ: tokKeyword, kw: string(l.data[start:l.pos]), pos: start}, nil
}
