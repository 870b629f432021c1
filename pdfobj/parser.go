package pdfobj

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrMalformed marks input that cannot be parsed as a PDF document.
	ErrMalformed = errors.New("pdfobj: malformed document")
	// ErrEncrypted marks documents carrying an /Encrypt dictionary.
	// Decryption is out of scope; the condition is only surfaced.
	ErrEncrypted = errors.New("pdfobj: encrypted document")
)

// tokenReader adds single-token pushback on top of the lexer, which the
// recursive object parser needs for the "N G R" lookahead.
type tokenReader struct {
	l   *lexer
	buf []token
}

func (r *tokenReader) next() (token, error) {
	if n := len(r.buf); n > 0 {
		t := r.buf[n-1]
		r.buf = r.buf[:n-1]
		return t, nil
	}
	return r.l.next()
}

func (r *tokenReader) unread(t token) { r.buf = append(r.buf, t) }

func parseObject(tr *tokenReader) (Object, error) {
	tok, err := tr.next()
	if err != nil {
		return nil, err
	}
	switch tok.typ {
	case tokName:
		return Name(tok.kw), nil
	case tokString:
		return String{Bytes: tok.str, Hex: tok.hex}, nil
	case tokReal:
		return Real(tok.f), nil
	case tokInt:
		return parseNumberOrRef(tr, tok)
	case tokDictOpen:
		return parseDict(tr)
	case tokArrayOpen:
		return parseArray(tr)
	case tokKeyword:
		switch tok.kw {
		case "true":
			return Bool(true), nil
		case "false":
			return Bool(false), nil
		case "null":
			return Null{}, nil
		}
		return nil, fmt.Errorf("%w: unexpected keyword %q", ErrMalformed, tok.kw)
	}
	return nil, fmt.Errorf("%w: unexpected token at %d", ErrMalformed, tok.pos)
}

// parseNumberOrRef disambiguates "7" from "7 0 R".
func parseNumberOrRef(tr *tokenReader, first token) (Object, error) {
	second, err := tr.next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Integer(first.i), nil
		}
		return nil, err
	}
	if second.typ == tokInt && second.i >= 0 {
		third, err := tr.next()
		if err == nil && third.typ == tokKeyword && third.kw == "R" {
			return Ref{Num: int(first.i), Gen: int(second.i)}, nil
		}
		if err == nil {
			tr.unread(third)
		}
	}
	tr.unread(second)
	return Integer(first.i), nil
}

func parseDict(tr *tokenReader) (Object, error) {
	d := make(Dict)
	for {
		tok, err := tr.next()
		if err != nil {
			return nil, err
		}
		if tok.typ == tokDictClose {
			return d, nil
		}
		if tok.typ != tokName {
			return nil, fmt.Errorf("%w: dict key at %d is not a name", ErrMalformed, tok.pos)
		}
		val, err := parseObject(tr)
		if err != nil {
			return nil, err
		}
		d[Name(tok.kw)] = val
	}
}

func parseArray(tr *tokenReader) (Object, error) {
	arr := Array{}
	for {
		tok, err := tr.next()
		if err != nil {
			return nil, err
		}
		if tok.typ == tokArrayClose {
			return arr, nil
		}
		tr.unread(tok)
		item, err := parseObject(tr)
		if err != nil {
			return nil, err
		}
		arr = append(arr, item)
	}
}

// parseIndirectAt parses "num gen obj ... endobj" at a byte offset,
// including a trailing stream body when present.
func parseIndirectAt(data []byte, off int64) (ObjectRef, Object, error) {
	if off < 0 || off >= int64(len(data)) {
		return ObjectRef{}, nil, fmt.Errorf("%w: object offset %d out of range", ErrMalformed, off)
	}
	l := newLexer(data)
	l.pos = int(off)
	tr := &tokenReader{l: l}

	numTok, err := tr.next()
	if err != nil || numTok.typ != tokInt {
		return ObjectRef{}, nil, fmt.Errorf("%w: expected object number at %d", ErrMalformed, off)
	}
	genTok, err := tr.next()
	if err != nil || genTok.typ != tokInt {
		return ObjectRef{}, nil, fmt.Errorf("%w: expected generation at %d", ErrMalformed, off)
	}
	kwTok, err := tr.next()
	if err != nil || kwTok.typ != tokKeyword || kwTok.kw != "obj" {
		return ObjectRef{}, nil, fmt.Errorf("%w: expected obj keyword at %d", ErrMalformed, off)
	}
	ref := ObjectRef{Num: int(numTok.i), Gen: int(genTok.i)}

	obj, err := parseObject(tr)
	if err != nil {
		return ObjectRef{}, nil, err
	}

	next, err := tr.next()
	if err == nil && next.typ == tokKeyword && next.kw == "stream" {
		dict, ok := obj.(Dict)
		if !ok {
			return ObjectRef{}, nil, fmt.Errorf("%w: stream without dictionary in object %d", ErrMalformed, ref.Num)
		}
		raw, err := sliceStreamData(data, next.pos, dict)
		if err != nil {
			return ObjectRef{}, nil, fmt.Errorf("object %d: %w", ref.Num, err)
		}
		return ref, &Stream{Dict: dict, Raw: raw}, nil
	}
	return ref, obj, nil
}

// sliceStreamData cuts the bytes between the stream keyword and
// endstream. The declared /Length is trusted only when endstream
// actually follows it; otherwise the keyword is searched for.
func sliceStreamData(data []byte, streamKwPos int, dict Dict) ([]byte, error) {
	p := streamKwPos + len("stream")
	if p < len(data) && data[p] == '\r' {
		p++
	}
	if p < len(data) && data[p] == '\n' {
		p++
	}
	if length, ok := dict.Int("Length"); ok && length >= 0 {
		end := p + int(length)
		if end <= len(data) && endstreamFollows(data, end) {
			return data[p:end], nil
		}
	}
	// /Length missing, indirect, or wrong: locate endstream directly.
	idx := bytes.Index(data[p:], []byte("endstream"))
	if idx < 0 {
		return nil, fmt.Errorf("%w: endstream not found", ErrMalformed)
	}
	end := p + idx
	for end > p && (data[end-1] == '\n' || data[end-1] == '\r') {
		end--
	}
	return data[p:end], nil
}

func endstreamFollows(data []byte, pos int) bool {
	for pos < len(data) && isWhitespace(data[pos]) {
		pos++
	}
	return bytes.HasPrefix(data[pos:], []byte("endstream"))
}

// Load parses raw bytes into a Document. It resolves the xref chain
// (repair-scanning the file when that fails), loads every reachable
// object, inflates object streams, and rejects encrypted input.
func Load(data []byte) (*Document, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrMalformed)
	}
	version, ok := headerVersion(data)
	if !ok {
		return nil, fmt.Errorf("%w: missing %%PDF header", ErrMalformed)
	}

	res, err := resolveXRef(data)
	if err != nil {
		return nil, err
	}

	doc := &Document{
		Objects:   make(map[ObjectRef]Object, len(res.entries)),
		Trailer:   res.trailer,
		Version:   version,
		StartXRef: res.startXRef,
		Repaired:  res.repaired,
	}
	for num, ent := range res.entries {
		if ent.inStream {
			continue // picked up by object stream inflation below
		}
		ref, obj, err := parseIndirectAt(data, ent.offset)
		if err != nil || ref.Num != num {
			continue // a single bad object must not sink the document
		}
		doc.Objects[ref] = obj
	}
	if doc.Trailer == nil {
		doc.Trailer = synthesizeTrailer(doc)
	}
	if doc.Trailer == nil {
		return nil, fmt.Errorf("%w: no trailer and no catalog", ErrMalformed)
	}
	if _, ok := doc.Trailer["Encrypt"]; ok {
		return nil, ErrEncrypted
	}
	doc.inflateObjectStreams()
	if _, ok := doc.Dict(doc.Trailer["Root"]); !ok {
		return nil, fmt.Errorf("%w: catalog unreachable", ErrMalformed)
	}
	return doc, nil
}

func headerVersion(data []byte) (string, bool) {
	limit := len(data)
	if limit > 1024 {
		limit = 1024
	}
	idx := bytes.Index(data[:limit], []byte("%PDF-"))
	if idx < 0 {
		return "", false
	}
	start := idx + len("%PDF-")
	end := start
	for end < len(data) && end < start+8 && data[end] != '\r' && data[end] != '\n' {
		end++
	}
	return string(data[start:end]), true
}

// synthesizeTrailer builds a minimal trailer from a scanned catalog when
// the file carries none that parses (repair path).
func synthesizeTrailer(doc *Document) Dict {
	for ref, obj := range doc.Objects {
		dict, ok := obj.(Dict)
		if !ok {
			continue
		}
		if typ, _ := dict.Name("Type"); typ == "Catalog" {
			return Dict{"Root": Ref(ref), "Size": Integer(len(doc.Objects) + 1)}
		}
	}
	return nil
}

// inflateObjectStreams parses the objects packed inside ObjStm streams
// and registers any that the xref did not already map to a direct copy.
func (doc *Document) inflateObjectStreams() {
	found := make(map[ObjectRef]Object)
	for _, obj := range doc.Objects {
		stream, ok := obj.(*Stream)
		if !ok {
			continue
		}
		if typ, _ := stream.Dict.Name("Type"); typ != "ObjStm" {
			continue
		}
		embedded, err := doc.decodeObjectStream(stream)
		if err != nil {
			continue
		}
		for num, o := range embedded {
			key := ObjectRef{Num: num}
			if _, exists := doc.Objects[key]; !exists {
				found[key] = o
			}
		}
	}
	for ref, obj := range found {
		doc.Objects[ref] = obj
	}
}

func (doc *Document) decodeObjectStream(stream *Stream) (map[int]Object, error) {
	data, rest, err := DecodeStream(doc, stream)
	if err != nil {
		return nil, err
	}
	if len(rest) > 0 {
		return nil, fmt.Errorf("%w: object stream with unsupported filter %s", ErrMalformed, rest[0])
	}
	count, ok := stream.Dict.Int("N")
	if !ok || count <= 0 {
		return nil, fmt.Errorf("%w: object stream without N", ErrMalformed)
	}
	first, ok := stream.Dict.Int("First")
	if !ok || first < 0 || first > int64(len(data)) {
		return nil, fmt.Errorf("%w: object stream with bad First", ErrMalformed)
	}

	header := &tokenReader{l: newLexer(data[:first])}
	type entry struct{ num, off int }
	entries := make([]entry, 0, count)
	for i := int64(0); i < count; i++ {
		numTok, err := header.next()
		if err != nil || numTok.typ != tokInt {
			return nil, fmt.Errorf("%w: object stream header", ErrMalformed)
		}
		offTok, err := header.next()
		if err != nil || offTok.typ != tokInt {
			return nil, fmt.Errorf("%w: object stream header", ErrMalformed)
		}
		entries = append(entries, entry{num: int(numTok.i), off: int(offTok.i)})
	}

	body := data[first:]
	objects := make(map[int]Object, len(entries))
	for _, ent := range entries {
		if ent.off < 0 || ent.off >= len(body) {
			continue
		}
		tr := &tokenReader{l: &lexer{data: body, pos: ent.off}}
		obj, err := parseObject(tr)
		if err != nil {
			continue
		}
		objects[ent.num] = obj
	}
	return objects, nil
}
