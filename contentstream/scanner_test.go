package contentstream

import (
	"bytes"
	"io"
	"testing"

	"pagelift/pdfobj"
)

func scanAll(t *testing.T, content string) []Operation {
	t.Helper()
	ops, err := ScanAll([]byte(content), NewTable())
	if err != nil {
		t.Fatalf("ScanAll(%q): %v", content, err)
	}
	return ops
}

func opNames(ops []Operation) []string {
	names := make([]string, len(ops))
	for i, op := range ops {
		names[i] = op.Name
	}
	return names
}

func TestScannerOrderAndOperands(t *testing.T) {
	ops := scanAll(t, "q 1 0 0 1 5 5 cm BT /F1 12 Tf (Hi) Tj ET /Im1 Do Q")

	want := []string{"q", "cm", "BT", "Tf", "Tj", "ET", "Do", "Q"}
	got := opNames(ops)
	if len(got) != len(want) {
		t.Fatalf("ops = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("op %d = %q, want %q", i, got[i], want[i])
		}
	}

	if len(ops[1].Operands) != 6 {
		t.Fatalf("cm operands = %v", ops[1].Operands)
	}
	if ops[2].Code != OpBeginText || len(ops[2].Operands) != 0 {
		t.Fatalf("BT = %+v", ops[2])
	}
	if ops[3].Code != OpOther {
		t.Fatalf("Tf classified as %d", ops[3].Code)
	}
	if ops[4].Code != OpShowText {
		t.Fatalf("Tj classified as %d", ops[4].Code)
	}
	s, ok := ops[4].Operands[0].(pdfobj.String)
	if !ok || string(s.Bytes) != "Hi" {
		t.Fatalf("Tj operand = %#v", ops[4].Operands)
	}
	if ops[6].Code != OpPaintXObject || ops[6].Operands[0] != pdfobj.Name("Im1") {
		t.Fatalf("Do = %+v", ops[6])
	}
}

func TestScannerLazy(t *testing.T) {
	s := NewScanner([]byte("q Q"), NewTable())
	op, err := s.Next()
	if err != nil || op.Name != "q" {
		t.Fatalf("first = %+v err = %v", op, err)
	}
	op, err = s.Next()
	if err != nil || op.Name != "Q" {
		t.Fatalf("second = %+v err = %v", op, err)
	}
	if _, err := s.Next(); err != io.EOF {
		t.Fatalf("end = %v, want io.EOF", err)
	}
	// The scanner is single-pass: once done it stays done.
	if _, err := s.Next(); err != io.EOF {
		t.Fatalf("after end = %v", err)
	}
}

func TestScannerDanglingOperands(t *testing.T) {
	s := NewScanner([]byte("1 2 3"), NewTable())
	if _, err := s.Next(); err == nil || err == io.EOF {
		t.Fatalf("dangling operands: err = %v", err)
	}
}

func TestScannerInlineImage(t *testing.T) {
	content := "BI /W 2 /H 2 ID ABCD EI\nQ\n"
	ops := scanAll(t, content)
	if len(ops) != 2 {
		t.Fatalf("ops = %v", opNames(ops))
	}
	img := ops[0]
	if img.Code != OpInlineImage {
		t.Fatalf("code = %d", img.Code)
	}
	if !bytes.Equal(img.Raw, []byte("ABCD")) {
		t.Fatalf("raw = %q", img.Raw)
	}
	params := img.Operands[0].(pdfobj.Dict)
	if w, _ := params.Int("W"); w != 2 {
		t.Fatalf("params = %v", params)
	}
	if ops[1].Name != "Q" {
		t.Fatalf("trailing op = %q", ops[1].Name)
	}
}

func TestSerializeRescans(t *testing.T) {
	in := "q 0.5 0 0 0.5 10 20 cm BT (x) Tj ET /Im1 Do Q"
	ops := scanAll(t, in)
	out := Serialize(ops)
	back, err := ScanAll(out, NewTable())
	if err != nil {
		t.Fatalf("rescan: %v", err)
	}
	if len(back) != len(ops) {
		t.Fatalf("len %d != %d", len(back), len(ops))
	}
	for i := range ops {
		if back[i].Name != ops[i].Name {
			t.Fatalf("op %d: %q != %q", i, back[i].Name, ops[i].Name)
		}
		if len(back[i].Operands) != len(ops[i].Operands) {
			t.Fatalf("op %d operand count %d != %d", i, len(back[i].Operands), len(ops[i].Operands))
		}
	}
}

func TestSerializeInlineImage(t *testing.T) {
	ops := scanAll(t, "BI /W 1 ID Z EI\n")
	out := Serialize(ops)
	back, err := ScanAll(out, NewTable())
	if err != nil {
		t.Fatalf("rescan: %v", err)
	}
	if len(back) != 1 || !bytes.Equal(back[0].Raw, []byte("Z")) {
		t.Fatalf("back = %+v", back)
	}
}
