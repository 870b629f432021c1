package contentstream

import (
	"bytes"

	"pagelift/pdfobj"
)

// Serialize writes an operation list back into content stream bytes,
// one operation per line. Inline images are emitted verbatim around
// their preserved payload.
func Serialize(ops []Operation) []byte {
	var buf bytes.Buffer
	for _, op := range ops {
		if op.Code == OpInlineImage {
			serializeInlineImage(&buf, op)
			continue
		}
		for _, operand := range op.Operands {
			pdfobj.AppendObject(&buf, operand)
			buf.WriteByte(' ')
		}
		buf.WriteString(op.Name)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

func serializeInlineImage(buf *bytes.Buffer, op Operation) {
	buf.WriteString("BI")
	if len(op.Operands) == 1 {
		if params, ok := op.Operands[0].(pdfobj.Dict); ok {
			for key, val := range params {
				buf.WriteString(" /")
				buf.WriteString(string(key))
				buf.WriteByte(' ')
				pdfobj.AppendObject(buf, val)
			}
		}
	}
	buf.WriteString(" ID\n")
	buf.Write(op.Raw)
	buf.WriteString("\nEI\n")
}
