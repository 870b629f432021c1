package pdfobj

import (
	"bytes"
	"compress/lzw"
	"encoding/ascii85"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zlib"
)

// pixelFilters produce pixels rather than bytes and are left to the
// imaging layer (DCT via image/jpeg there; the rest are skipped as
// unsupported candidates).
var pixelFilters = map[Name]bool{
	"DCTDecode":      true,
	"JPXDecode":      true,
	"CCITTFaxDecode": true,
	"JBIG2Decode":    true,
}

// DecodeStream applies the byte-level filter chain of a stream and
// returns the decoded data together with any remaining pixel-level
// filter names. doc may be nil when no indirect values can occur (xref
// streams).
func DecodeStream(doc *Document, s *Stream) ([]byte, []Name, error) {
	names, parms, err := filterChain(doc, s.Dict)
	if err != nil {
		return nil, nil, err
	}
	data := s.Raw
	for i, name := range names {
		if pixelFilters[name] {
			return data, names[i:], nil
		}
		var parm Dict
		if i < len(parms) {
			parm = parms[i]
		}
		out, err := decodeOne(name, data, parm)
		if err != nil {
			return nil, nil, fmt.Errorf("filter %s: %w", name, err)
		}
		data = out
	}
	return data, nil, nil
}

func filterChain(doc *Document, dict Dict) ([]Name, []Dict, error) {
	var names []Name
	switch v := resolveIn(doc, dict["Filter"]).(type) {
	case nil:
	case Null:
	case Name:
		names = []Name{v}
	case Array:
		for _, item := range v {
			name, ok := resolveIn(doc, item).(Name)
			if !ok {
				return nil, nil, fmt.Errorf("%w: non-name filter entry", ErrMalformed)
			}
			names = append(names, name)
		}
	default:
		return nil, nil, fmt.Errorf("%w: bad /Filter value", ErrMalformed)
	}

	var parms []Dict
	parmObj := dict["DecodeParms"]
	if parmObj == nil {
		parmObj = dict["DP"]
	}
	switch v := resolveIn(doc, parmObj).(type) {
	case Dict:
		parms = []Dict{v}
	case Array:
		for _, item := range v {
			if d, ok := resolveIn(doc, item).(Dict); ok {
				parms = append(parms, d)
			} else {
				parms = append(parms, nil)
			}
		}
	}
	return names, parms, nil
}

func resolveIn(doc *Document, obj Object) Object {
	if doc == nil {
		if _, ok := obj.(Ref); ok {
			return Null{}
		}
		return obj
	}
	return doc.Resolve(obj)
}

func decodeOne(name Name, data []byte, parm Dict) ([]byte, error) {
	switch name {
	case "FlateDecode", "Fl":
		out, err := inflate(data)
		if err != nil {
			return nil, err
		}
		return applyPredictor(out, parm)
	case "LZWDecode", "LZW":
		r := lzw.NewReader(bytes.NewReader(data), lzw.MSB, 8)
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil && len(out) == 0 {
			return nil, err
		}
		return applyPredictor(out, parm)
	case "ASCIIHexDecode", "AHx":
		return decodeASCIIHex(data)
	case "ASCII85Decode", "A85":
		return decodeASCII85(data)
	case "RunLengthDecode", "RL":
		return decodeRunLength(data)
	default:
		return nil, fmt.Errorf("unknown filter %s", name)
	}
}

// inflate accepts both zlib-wrapped and bare deflate payloads; damaged
// files regularly carry the latter.
func inflate(data []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err == nil {
		defer zr.Close()
		out, err := io.ReadAll(zr)
		if err != nil && len(out) == 0 {
			return nil, err
		}
		return out, nil
	}
	fr := flate.NewReader(bytes.NewReader(data))
	defer fr.Close()
	out, rerr := io.ReadAll(fr)
	if rerr != nil && len(out) == 0 {
		return nil, err
	}
	return out, nil
}

func decodeASCIIHex(data []byte) ([]byte, error) {
	var out bytes.Buffer
	var hi byte
	have := false
	for _, c := range data {
		if c == '>' {
			break
		}
		n, ok := hexNibble(c)
		if !ok {
			continue
		}
		if have {
			out.WriteByte(hi<<4 | n)
			have = false
		} else {
			hi = n
			have = true
		}
	}
	if have {
		out.WriteByte(hi << 4)
	}
	return out.Bytes(), nil
}

func decodeASCII85(data []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(data)
	trimmed = bytes.TrimPrefix(trimmed, []byte("<~"))
	trimmed = bytes.TrimSuffix(trimmed, []byte("~>"))
	out := make([]byte, len(trimmed)*2)
	n, _, err := ascii85.Decode(out, trimmed, true)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}

func decodeRunLength(data []byte) ([]byte, error) {
	var out bytes.Buffer
	for i := 0; i < len(data); {
		l := int(data[i])
		i++
		switch {
		case l == 128:
			return out.Bytes(), nil
		case l < 128:
			end := i + l + 1
			if end > len(data) {
				return nil, fmt.Errorf("%w: truncated run", ErrMalformed)
			}
			out.Write(data[i:end])
			i = end
		default:
			if i >= len(data) {
				return nil, fmt.Errorf("%w: truncated run", ErrMalformed)
			}
			for k := 0; k < 257-l; k++ {
				out.WriteByte(data[i])
			}
			i++
		}
	}
	return out.Bytes(), nil
}

// applyPredictor undoes TIFF/PNG predictors (xref streams almost always
// use PNG Up).
func applyPredictor(data []byte, parm Dict) ([]byte, error) {
	if parm == nil {
		return data, nil
	}
	predictor, ok := parm.Int("Predictor")
	if !ok || predictor < 2 {
		return data, nil
	}
	colors := int64(1)
	if v, ok := parm.Int("Colors"); ok {
		colors = v
	}
	bpc := int64(8)
	if v, ok := parm.Int("BitsPerComponent"); ok {
		bpc = v
	}
	columns := int64(1)
	if v, ok := parm.Int("Columns"); ok {
		columns = v
	}
	sampleBytes := int((colors*bpc + 7) / 8)
	if sampleBytes < 1 {
		sampleBytes = 1
	}
	rowLen := int((columns*colors*bpc + 7) / 8)
	if rowLen < 1 {
		return nil, fmt.Errorf("%w: bad predictor row length", ErrMalformed)
	}

	if predictor == 2 { // TIFF horizontal differencing, 8-bit samples
		if bpc != 8 {
			return nil, fmt.Errorf("TIFF predictor with %d bits unsupported", bpc)
		}
		out := make([]byte, len(data))
		copy(out, data)
		for row := 0; row+rowLen <= len(out); row += rowLen {
			for i := sampleBytes; i < rowLen; i++ {
				out[row+i] += out[row+i-sampleBytes]
			}
		}
		return out, nil
	}

	// PNG predictors: each row prefixed with a per-row filter byte.
	stride := rowLen + 1
	rows := len(data) / stride
	out := make([]byte, 0, rows*rowLen)
	prev := make([]byte, rowLen)
	for r := 0; r < rows; r++ {
		rowIn := data[r*stride : (r+1)*stride]
		ft := rowIn[0]
		row := make([]byte, rowLen)
		copy(row, rowIn[1:])
		switch ft {
		case 0: // None
		case 1: // Sub
			for i := sampleBytes; i < rowLen; i++ {
				row[i] += row[i-sampleBytes]
			}
		case 2: // Up
			for i := 0; i < rowLen; i++ {
				row[i] += prev[i]
			}
		case 3: // Average
			for i := 0; i < rowLen; i++ {
				var left byte
				if i >= sampleBytes {
					left = row[i-sampleBytes]
				}
				row[i] += byte((int(left) + int(prev[i])) / 2)
			}
		case 4: // Paeth
			for i := 0; i < rowLen; i++ {
				var left, upLeft byte
				if i >= sampleBytes {
					left = row[i-sampleBytes]
					upLeft = prev[i-sampleBytes]
				}
				row[i] += paeth(left, prev[i], upLeft)
			}
		default:
			return nil, fmt.Errorf("%w: png filter %d", ErrMalformed, ft)
		}
		out = append(out, row...)
		prev = row
	}
	return out, nil
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := abs(p-int(a)), abs(p-int(b)), abs(p-int(c))
	if pa <= pb && pa <= pc {
		return a
	}
	if pb <= pc {
		return b
	}
	return c
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
