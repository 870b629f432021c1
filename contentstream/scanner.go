package contentstream

import (
	"errors"
	"fmt"
	"io"

	"pagelift/pdfobj"
)

// Operation is one entry of a page's drawing program: an operator with
// the operands that preceded it. Operations are never mutated in place;
// transforms produce new lists.
type Operation struct {
	Code     OpCode
	Name     string
	Operands []pdfobj.Object
	Raw      []byte // inline image payload (OpInlineImage only)
}

// Scanner walks one decoded content stream. It is lazy, finite,
// single-pass, and non-restartable; call NewScanner again to re-scan.
type Scanner struct {
	lex   *pdfobj.ContentLexer
	table Table
	done  bool
}

// NewScanner scans content using the injected operator table.
func NewScanner(content []byte, table Table) *Scanner {
	return &Scanner{lex: pdfobj.NewContentLexer(content), table: table}
}

// Next returns the next operation in source order, io.EOF at the end.
// Operands that fail to parse terminate the scan; a content stream is
// interpreted strictly up to the first syntax error.
func (s *Scanner) Next() (Operation, error) {
	if s.done {
		return Operation{}, io.EOF
	}
	var operands []pdfobj.Object
	for {
		item, err := s.lex.Next()
		if err != nil {
			s.done = true
			if errors.Is(err, io.EOF) && len(operands) == 0 {
				return Operation{}, io.EOF
			}
			if errors.Is(err, io.EOF) {
				return Operation{}, fmt.Errorf("content stream: %d dangling operands", len(operands))
			}
			return Operation{}, err
		}
		if !item.IsOperator {
			operands = append(operands, item.Obj)
			continue
		}
		code := s.table.Code(item.Op)
		if code == OpInlineImage {
			return s.scanInlineImage(operands)
		}
		return Operation{Code: code, Name: item.Op, Operands: operands}, nil
	}
}

// scanInlineImage folds BI ... ID <data> EI into a single operation so
// downstream passes treat it opaquely.
func (s *Scanner) scanInlineImage(leading []pdfobj.Object) (Operation, error) {
	if len(leading) != 0 {
		s.done = true
		return Operation{}, fmt.Errorf("content stream: operands before BI")
	}
	params := make(pdfobj.Dict)
	for {
		item, err := s.lex.Next()
		if err != nil {
			s.done = true
			return Operation{}, fmt.Errorf("inline image: %w", err)
		}
		if item.IsOperator {
			if item.Op != "ID" {
				s.done = true
				return Operation{}, fmt.Errorf("inline image: unexpected operator %s", item.Op)
			}
			break
		}
		key, ok := item.Obj.(pdfobj.Name)
		if !ok {
			s.done = true
			return Operation{}, fmt.Errorf("inline image: parameter key is not a name")
		}
		val, err := s.lex.Next()
		if err != nil || val.IsOperator {
			s.done = true
			return Operation{}, fmt.Errorf("inline image: missing value for /%s", key)
		}
		params[key] = val.Obj
	}
	data, err := s.lex.InlineImageData()
	if err != nil {
		s.done = true
		return Operation{}, fmt.Errorf("inline image: %w", err)
	}
	return Operation{
		Code:     OpInlineImage,
		Name:     "BI",
		Operands: []pdfobj.Object{params},
		Raw:      data,
	}, nil
}

// ScanAll collects the full operation list of one content stream.
func ScanAll(content []byte, table Table) ([]Operation, error) {
	s := NewScanner(content, table)
	var ops []Operation
	for {
		op, err := s.Next()
		if errors.Is(err, io.EOF) {
			return ops, nil
		}
		if err != nil {
			return ops, err
		}
		ops = append(ops, op)
	}
}
