package pdfobj

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
)

type xrefEntry struct {
	offset    int64
	gen       int
	inStream  bool
	streamNum int
	streamIdx int
}

type xrefResult struct {
	entries   map[int]xrefEntry
	trailer   Dict
	startXRef int64
	repaired  bool
}

// resolveXRef locates object offsets. It follows the startxref chain
// through classic tables, xref streams, and hybrid /XRefStm links; when
// the chain is broken it falls back to scanning the whole file for
// object headers.
func resolveXRef(data []byte) (xrefResult, error) {
	start, ok := findStartXRef(data)
	if ok {
		res, err := walkXRefChain(data, start)
		if err == nil && len(res.entries) > 0 {
			return res, nil
		}
	}
	return repairScan(data)
}

func findStartXRef(data []byte) (int64, bool) {
	idx := bytes.LastIndex(data, []byte("startxref"))
	if idx < 0 {
		return 0, false
	}
	tr := &tokenReader{l: &lexer{data: data, pos: idx + len("startxref")}}
	tok, err := tr.next()
	if err != nil || tok.typ != tokInt {
		return 0, false
	}
	if tok.i <= 0 || tok.i >= int64(len(data)) {
		return 0, false
	}
	return tok.i, true
}

func walkXRefChain(data []byte, start int64) (xrefResult, error) {
	res := xrefResult{entries: make(map[int]xrefEntry), startXRef: start}
	visited := make(map[int64]bool)
	offset := start
	for offset > 0 {
		if visited[offset] {
			break
		}
		visited[offset] = true

		section, err := parseXRefSection(data, offset)
		if err != nil {
			return res, err
		}
		for num, ent := range section.entries {
			if _, exists := res.entries[num]; !exists {
				res.entries[num] = ent
			}
		}
		if res.trailer == nil {
			res.trailer = section.trailer
		}
		// Hybrid files point at an xref stream that maps the objects
		// the classic section hides.
		if section.trailer != nil {
			if xs, ok := section.trailer.Int("XRefStm"); ok && !visited[xs] {
				visited[xs] = true
				if sub, err := parseXRefSection(data, xs); err == nil {
					for num, ent := range sub.entries {
						if _, exists := res.entries[num]; !exists {
							res.entries[num] = ent
						}
					}
				}
			}
		}

		offset = 0
		if section.trailer != nil {
			if prev, ok := section.trailer.Int("Prev"); ok {
				offset = prev
			}
		}
	}
	if len(res.entries) == 0 {
		return res, fmt.Errorf("%w: empty xref", ErrMalformed)
	}
	return res, nil
}

type xrefSection struct {
	entries map[int]xrefEntry
	trailer Dict
}

func parseXRefSection(data []byte, offset int64) (xrefSection, error) {
	if offset <= 0 || offset >= int64(len(data)) {
		return xrefSection{}, fmt.Errorf("%w: xref offset %d out of range", ErrMalformed, offset)
	}
	if bytes.HasPrefix(bytes.TrimLeft(data[offset:], " \r\n\t"), []byte("xref")) {
		return parseClassicXRef(data, offset)
	}
	return parseXRefStream(data, offset)
}

func parseClassicXRef(data []byte, offset int64) (xrefSection, error) {
	tr := &tokenReader{l: &lexer{data: data, pos: int(offset)}}
	tok, err := tr.next()
	if err != nil || tok.typ != tokKeyword || tok.kw != "xref" {
		return xrefSection{}, fmt.Errorf("%w: expected xref keyword", ErrMalformed)
	}
	sec := xrefSection{entries: make(map[int]xrefEntry)}
	for {
		tok, err := tr.next()
		if err != nil {
			return xrefSection{}, err
		}
		if tok.typ == tokKeyword && tok.kw == "trailer" {
			obj, err := parseObject(tr)
			if err != nil {
				return xrefSection{}, err
			}
			dict, ok := obj.(Dict)
			if !ok {
				return xrefSection{}, fmt.Errorf("%w: trailer is not a dictionary", ErrMalformed)
			}
			sec.trailer = dict
			return sec, nil
		}
		if tok.typ != tokInt {
			return xrefSection{}, fmt.Errorf("%w: bad xref subsection header", ErrMalformed)
		}
		first := tok.i
		countTok, err := tr.next()
		if err != nil || countTok.typ != tokInt {
			return xrefSection{}, fmt.Errorf("%w: bad xref subsection count", ErrMalformed)
		}
		for i := int64(0); i < countTok.i; i++ {
			offTok, err := tr.next()
			if err != nil || offTok.typ != tokInt {
				return xrefSection{}, fmt.Errorf("%w: bad xref entry", ErrMalformed)
			}
			genTok, err := tr.next()
			if err != nil || genTok.typ != tokInt {
				return xrefSection{}, fmt.Errorf("%w: bad xref entry", ErrMalformed)
			}
			kindTok, err := tr.next()
			if err != nil || kindTok.typ != tokKeyword {
				return xrefSection{}, fmt.Errorf("%w: bad xref entry kind", ErrMalformed)
			}
			num := int(first + i)
			if kindTok.kw == "n" && num > 0 {
				if _, exists := sec.entries[num]; !exists {
					sec.entries[num] = xrefEntry{offset: offTok.i, gen: int(genTok.i)}
				}
			}
		}
	}
}

func parseXRefStream(data []byte, offset int64) (xrefSection, error) {
	_, obj, err := parseIndirectAt(data, offset)
	if err != nil {
		return xrefSection{}, err
	}
	stream, ok := obj.(*Stream)
	if !ok {
		return xrefSection{}, fmt.Errorf("%w: no xref stream at %d", ErrMalformed, offset)
	}
	if typ, _ := stream.Dict.Name("Type"); typ != "XRef" {
		return xrefSection{}, fmt.Errorf("%w: stream at %d is not an xref stream", ErrMalformed, offset)
	}
	decoded, rest, err := DecodeStream(nil, stream)
	if err != nil {
		return xrefSection{}, err
	}
	if len(rest) > 0 {
		return xrefSection{}, fmt.Errorf("%w: xref stream filter %s unsupported", ErrMalformed, rest[0])
	}

	wObj, ok := stream.Dict["W"].(Array)
	if !ok || len(wObj) < 3 {
		return xrefSection{}, fmt.Errorf("%w: xref stream without W", ErrMalformed)
	}
	var w [3]int
	for i := 0; i < 3; i++ {
		n, ok := wObj[i].(Integer)
		if !ok || n < 0 {
			return xrefSection{}, fmt.Errorf("%w: bad W entry", ErrMalformed)
		}
		w[i] = int(n)
	}
	rowLen := w[0] + w[1] + w[2]
	if rowLen == 0 {
		return xrefSection{}, fmt.Errorf("%w: zero-width xref rows", ErrMalformed)
	}

	size, _ := stream.Dict.Int("Size")
	var index []int64
	if arr, ok := stream.Dict["Index"].(Array); ok {
		for _, v := range arr {
			n, ok := v.(Integer)
			if !ok {
				return xrefSection{}, fmt.Errorf("%w: bad Index entry", ErrMalformed)
			}
			index = append(index, int64(n))
		}
	} else {
		index = []int64{0, size}
	}

	sec := xrefSection{entries: make(map[int]xrefEntry), trailer: stream.Dict}
	pos := 0
	for i := 0; i+1 < len(index); i += 2 {
		first, count := index[i], index[i+1]
		for j := int64(0); j < count; j++ {
			if pos+rowLen > len(decoded) {
				return sec, nil // truncated table: keep what parsed
			}
			row := decoded[pos : pos+rowLen]
			pos += rowLen
			typ := int64(1)
			if w[0] > 0 {
				typ = beInt(row[:w[0]])
			}
			f2 := beInt(row[w[0] : w[0]+w[1]])
			f3 := beInt(row[w[0]+w[1]:])
			num := int(first + j)
			if num == 0 {
				continue
			}
			if _, exists := sec.entries[num]; exists {
				continue
			}
			switch typ {
			case 1:
				sec.entries[num] = xrefEntry{offset: f2, gen: int(f3)}
			case 2:
				sec.entries[num] = xrefEntry{inStream: true, streamNum: int(f2), streamIdx: int(f3)}
			}
		}
	}
	return sec, nil
}

func beInt(b []byte) int64 {
	var v int64
	for _, c := range b {
		v = v<<8 | int64(c)
	}
	return v
}

var objHeaderRe = regexp.MustCompile(`(\d{1,10})\s+(\d{1,5})\s+obj\b`)

// repairScan reconstructs offsets by scanning for "N G obj" headers.
// The last definition of each object number wins, matching the
// newest-revision-last layout of incrementally updated files.
func repairScan(data []byte) (xrefResult, error) {
	res := xrefResult{entries: make(map[int]xrefEntry), repaired: true}
	for _, m := range objHeaderRe.FindAllSubmatchIndex(data, -1) {
		if m[2] > 0 && !headerBoundary(data[m[2]-1]) {
			continue
		}
		num, err := strconv.Atoi(string(data[m[2]:m[3]]))
		if err != nil || num <= 0 {
			continue
		}
		gen, err := strconv.Atoi(string(data[m[4]:m[5]]))
		if err != nil {
			continue
		}
		res.entries[num] = xrefEntry{offset: int64(m[2]), gen: gen}
	}
	if len(res.entries) == 0 {
		return res, fmt.Errorf("%w: no objects found", ErrMalformed)
	}
	if idx := bytes.LastIndex(data, []byte("trailer")); idx >= 0 {
		tr := &tokenReader{l: &lexer{data: data, pos: idx + len("trailer")}}
		if obj, err := parseObject(tr); err == nil {
			if dict, ok := obj.(Dict); ok {
				res.trailer = dict
			}
		}
	}
	if start, ok := findStartXRef(data); ok {
		res.startXRef = start
	}
	return res, nil
}

// headerBoundary reports whether c may legally precede an object header
// start during a repair scan.
func headerBoundary(c byte) bool {
	return isWhitespace(c) || c == '>' || c == ']'
}
