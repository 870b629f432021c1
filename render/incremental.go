package render

import (
	"bytes"
	"fmt"
	"sort"

	"pagelift/pdfobj"
)

// writeIncremental appends an update section to the original file:
// the replacement objects, a classic xref section covering them, and a
// trailer chaining to the previous revision via /Prev. The rewritten
// objects shadow their originals by object number.
func writeIncremental(orig []byte, prevStartXRef int64, trailer pdfobj.Dict, updates map[pdfobj.ObjectRef]pdfobj.Object) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, len(orig)+4096))
	buf.Write(orig)
	if len(orig) > 0 && orig[len(orig)-1] != '\n' {
		buf.WriteByte('\n')
	}

	refs := make([]pdfobj.ObjectRef, 0, len(updates))
	for ref := range updates {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Num < refs[j].Num })

	offsets := make(map[pdfobj.ObjectRef]int, len(refs))
	for _, ref := range refs {
		offsets[ref] = buf.Len()
		fmt.Fprintf(buf, "%d %d obj\n", ref.Num, ref.Gen)
		pdfobj.AppendObject(buf, updates[ref])
		buf.WriteString("\nendobj\n")
	}

	xrefOffset := buf.Len()
	buf.WriteString("xref\n0 1\n0000000000 65535 f \n")
	for _, ref := range refs {
		fmt.Fprintf(buf, "%d 1\n%010d %05d n \n", ref.Num, offsets[ref], ref.Gen)
	}

	size := int64(0)
	var root pdfobj.Object = pdfobj.Null{}
	if trailer != nil {
		if s, ok := trailer.Int("Size"); ok {
			size = s
		}
		if r, ok := trailer["Root"]; ok {
			root = r
		}
	}
	for _, ref := range refs {
		if int64(ref.Num)+1 > size {
			size = int64(ref.Num) + 1
		}
	}
	newTrailer := pdfobj.Dict{
		"Size": pdfobj.Integer(size),
		"Root": root,
		"Prev": pdfobj.Integer(prevStartXRef),
	}
	buf.WriteString("trailer\n")
	pdfobj.AppendObject(buf, newTrailer)
	fmt.Fprintf(buf, "\nstartxref\n%d\n%%%%EOF\n", xrefOffset)
	return buf.Bytes()
}
