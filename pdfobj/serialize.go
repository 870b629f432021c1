package pdfobj

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"

	"github.com/klauspost/compress/zlib"
)

// AppendObject serializes obj in PDF syntax. Used by the incremental
// rewriter; output favors robustness over byte-compactness.
func AppendObject(buf *bytes.Buffer, obj Object) {
	switch v := obj.(type) {
	case nil, Null:
		buf.WriteString("null")
	case Bool:
		if v {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case Integer:
		buf.WriteString(strconv.FormatInt(int64(v), 10))
	case Real:
		// PDF numbers must not use exponent notation.
		buf.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 64))
	case Name:
		appendName(buf, v)
	case String:
		appendString(buf, v)
	case Ref:
		fmt.Fprintf(buf, "%d %d R", v.Num, v.Gen)
	case Array:
		buf.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				buf.WriteByte(' ')
			}
			AppendObject(buf, item)
		}
		buf.WriteByte(']')
	case Dict:
		appendDict(buf, v)
	case *Stream:
		appendDict(buf, v.Dict)
		buf.WriteString("\nstream\n")
		buf.Write(v.Raw)
		buf.WriteString("\nendstream")
	}
}

func appendDict(buf *bytes.Buffer, d Dict) {
	keys := make([]Name, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	buf.WriteString("<<")
	for _, k := range keys {
		buf.WriteByte(' ')
		appendName(buf, k)
		buf.WriteByte(' ')
		AppendObject(buf, d[k])
	}
	buf.WriteString(" >>")
}

func appendName(buf *bytes.Buffer, n Name) {
	buf.WriteByte('/')
	for i := 0; i < len(n); i++ {
		c := n[i]
		if c <= 0x20 || c > 0x7e || isDelimiter(c) || c == '#' {
			fmt.Fprintf(buf, "#%02X", c)
			continue
		}
		buf.WriteByte(c)
	}
}

func appendString(buf *bytes.Buffer, s String) {
	if s.Hex {
		buf.WriteByte('<')
		for _, c := range s.Bytes {
			fmt.Fprintf(buf, "%02X", c)
		}
		buf.WriteByte('>')
		return
	}
	buf.WriteByte('(')
	for _, c := range s.Bytes {
		switch {
		case c == '(' || c == ')' || c == '\\':
			buf.WriteByte('\\')
			buf.WriteByte(c)
		case c < 0x20:
			fmt.Fprintf(buf, "\\%03o", c)
		default:
			buf.WriteByte(c)
		}
	}
	buf.WriteByte(')')
}

// FlateStream builds a FlateDecode stream around content, reusing extra
// as the base dictionary.
func FlateStream(extra Dict, content []byte) *Stream {
	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	zw.Write(content)
	zw.Close()

	dict := Dict{}
	if extra != nil {
		dict = extra.Clone()
	}
	dict["Filter"] = Name("FlateDecode")
	dict["Length"] = Integer(compressed.Len())
	delete(dict, "DecodeParms")
	delete(dict, "DP")
	return &Stream{Dict: dict, Raw: compressed.Bytes()}
}
