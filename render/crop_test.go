package render

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"pagelift/contentstream"
	"pagelift/document"
	"pagelift/imaging"
	"pagelift/pdfobj"
)

func testPDF(objs ...string) []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n")
	offsets := make([]int, len(objs))
	for i, body := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n",
		len(objs)+1, xref)
	return buf.Bytes()
}

func loadSinglePage(t *testing.T, content string) *document.Handle {
	t.Helper()
	data := testPDF(
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 500 1000] /Contents 4 0 R >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
	)
	h, err := document.Load(data, "crop.pdf", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return h
}

func TestCapScale(t *testing.T) {
	cases := []struct {
		name              string
		w, h, scale, want float64
	}{
		{"fits untouched", 100, 100, 4, 4},
		{"width binds", 2048, 100, 4, 2},
		{"height binds", 100, 2048, 4, 2},
		{"both bind, tighter wins", 2048, 4096, 4, 1},
		{"exactly at the cap", 4096, 4096, 1, 1},
		{"cap lowers a unit scale", 8192, 100, 1, 0.5},
		{"boundary", maxCropPixels, 10, 2, 1},
		{"past boundary", maxCropPixels * 2, 10, 2, 0.5},
	}
	for _, c := range cases {
		if got := capScale(c.w, c.h, c.scale); got != c.want {
			t.Fatalf("%s: capScale(%g, %g, %g) = %g, want %g", c.name, c.w, c.h, c.scale, got, c.want)
		}
	}
}

func TestCropRenderRejectsInvalidBox(t *testing.T) {
	h := loadSinglePage(t, "q Q")
	defer h.Release()
	page, _ := h.Page(1)
	c := NewCropRenderer(nil, nil)

	bad := []imaging.BoundingBox{
		{YMin: 100, XMin: 100, YMax: 100, XMax: 500},     // zero height
		{YMin: 500, XMin: 500, YMax: 100, XMax: 100},     // inverted
		{YMin: 1100, XMin: 1100, YMax: 1300, XMax: 1300}, // collapses under clamping
	}
	for _, box := range bad {
		if _, err := c.CropRender(page, box, 4); !errors.Is(err, imaging.ErrInvalidBox) {
			t.Fatalf("box %+v: err = %v, want ErrInvalidBox", box, err)
		}
	}
}

func TestCropRenderRejectsNonPositiveScale(t *testing.T) {
	h := loadSinglePage(t, "q Q")
	defer h.Release()
	page, _ := h.Page(1)
	c := NewCropRenderer(nil, nil)

	box := imaging.BoundingBox{YMin: 0, XMin: 0, YMax: 500, XMax: 500}
	if _, err := c.CropRender(page, box, 0); err == nil {
		t.Fatal("scale 0 accepted")
	}
	if _, err := c.CropRender(page, box, -1); err == nil {
		t.Fatal("negative scale accepted")
	}
}

func TestCropRenderRejectsSubpixelOutput(t *testing.T) {
	h := loadSinglePage(t, "q Q")
	defer h.Release()
	page, _ := h.Page(1)
	c := NewCropRenderer(nil, nil)

	// 0.1/1000 of a 500pt page at scale 0.01 floors to zero pixels.
	box := imaging.BoundingBox{YMin: 0, XMin: 0, YMax: 0.1, XMax: 0.1}
	if _, err := c.CropRender(page, box, 0.01); !errors.Is(err, imaging.ErrInvalidBox) {
		t.Fatalf("err = %v, want ErrInvalidBox", err)
	}
}

func TestRewriteForCropSuppressesTextAndShrinksPage(t *testing.T) {
	h := loadSinglePage(t, "q BT /F1 12 Tf (secret) Tj ET /Im1 Do Q")
	defer h.Release()
	page, _ := h.Page(1)
	c := NewCropRenderer(nil, nil)

	// Top-left quadrant: upper half of the page, left half of the width.
	box := imaging.BoundingBox{YMin: 0, XMin: 0, YMax: 500, XMax: 500}
	rewritten, err := c.rewriteForCrop(page, box)
	if err != nil {
		t.Fatalf("rewriteForCrop: %v", err)
	}

	doc, err := pdfobj.Load(rewritten)
	if err != nil {
		t.Fatalf("rewritten file does not load: %v", err)
	}
	pages := doc.Pages()
	if len(pages) != 1 {
		t.Fatalf("pages = %d", len(pages))
	}

	// Page 500x1000, normalized Y grows downward: ymax 500 maps to
	// user-space y 500, so the crop rect is [0 500 250 1000].
	nums, ok := doc.Numbers(pages[0].Dict["MediaBox"])
	if !ok {
		t.Fatal("no media box")
	}
	want := []float64{0, 500, 250, 1000}
	for i := range want {
		if nums[i] != want[i] {
			t.Fatalf("media box = %v, want %v", nums, want)
		}
	}
	crop, _ := doc.Numbers(pages[0].Dict["CropBox"])
	for i := range want {
		if crop[i] != want[i] {
			t.Fatalf("crop box = %v, want %v", crop, want)
		}
	}

	stream, ok := doc.Stream(pages[0].Dict["Contents"])
	if !ok {
		t.Fatal("contents not a stream")
	}
	data, rest, err := pdfobj.DecodeStream(doc, stream)
	if err != nil || len(rest) != 0 {
		t.Fatalf("decode contents: %v rest=%v", err, rest)
	}
	ops, err := contentstream.ScanAll(data, contentstream.NewTable())
	if err != nil {
		t.Fatalf("scan rewritten contents: %v", err)
	}
	var sawTj, sawDo bool
	for _, op := range ops {
		switch op.Name {
		case "Tj":
			sawTj = true
			if len(op.Operands) != 0 {
				t.Fatalf("Tj kept operands %v", op.Operands)
			}
		case "Do":
			sawDo = true
			if len(op.Operands) != 1 {
				t.Fatalf("Do = %+v", op)
			}
		}
	}
	if !sawTj || !sawDo {
		t.Fatalf("ops missing: Tj=%v Do=%v", sawTj, sawDo)
	}
}

func TestRewriteKeepsOriginalBytesIntact(t *testing.T) {
	h := loadSinglePage(t, "q (x) Tj Q")
	defer h.Release()
	page, _ := h.Page(1)
	c := NewCropRenderer(nil, nil)

	box := imaging.BoundingBox{YMin: 0, XMin: 0, YMax: 1000, XMax: 1000}
	rewritten, err := c.rewriteForCrop(page, box)
	if err != nil {
		t.Fatalf("rewriteForCrop: %v", err)
	}
	orig := h.Bytes()
	if !bytes.Equal(rewritten[:len(orig)], orig) {
		t.Fatal("incremental update modified the original bytes")
	}
	if len(rewritten) <= len(orig) {
		t.Fatal("no update section appended")
	}
}
