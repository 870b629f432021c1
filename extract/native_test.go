package extract

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"testing"

	"pagelift/document"
	"pagelift/imaging"
	"pagelift/pdfobj"
)

func buildFile(objs ...string) []byte {
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

func serializeStream(s *pdfobj.Stream) string {
	var buf bytes.Buffer
	pdfobj.AppendObject(&buf, s)
	return buf.String()
}

// imagePage builds a one-page document whose content paints /Im1.
func imagePage(t *testing.T, imageObj string) *document.Handle {
	t.Helper()
	content := "q 500 0 0 500 0 0 cm /Im1 Do Q"
	data := buildFile(
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 500 500] /Contents 4 0 R "+
			"/Resources << /XObject << /Im1 5 0 R >> >> >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		imageObj,
	)
	h, err := document.Load(data, "img.pdf", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return h
}

func rgbImage(w, h int, val byte) string {
	pix := bytes.Repeat([]byte{val}, w*h*3)
	return serializeStream(pdfobj.FlateStream(pdfobj.Dict{
		"Subtype":          pdfobj.Name("Image"),
		"Width":            pdfobj.Integer(w),
		"Height":           pdfobj.Integer(h),
		"BitsPerComponent": pdfobj.Integer(8),
		"ColorSpace":       pdfobj.Name("DeviceRGB"),
	}, pix))
}

var squareBox = imaging.BoundingBox{YMin: 0, XMin: 0, YMax: 500, XMax: 500}

func TestScoreCandidate(t *testing.T) {
	cases := []struct {
		w, h int
		want float64
		ok   bool
	}{
		{200, 200, 100, true},   // exact aspect
		{300, 200, 50, true},    // delta 0.5 is the inclusive edge
		{320, 200, 0, false},    // delta 0.6 discards
		{1100, 1100, 150, true}, // megapixel bonus
		{0, 100, 0, false},
	}
	for _, c := range cases {
		got, ok := scoreCandidate(c.w, c.h, squareBox)
		if ok != c.ok {
			t.Fatalf("%dx%d: ok = %v, want %v", c.w, c.h, ok, c.ok)
		}
		if ok && got != c.want {
			t.Fatalf("%dx%d: score = %g, want %g", c.w, c.h, got, c.want)
		}
	}
}

func TestScoreCandidateUsesNormalizedBoxAspect(t *testing.T) {
	// X span 400, Y span 200 on the 0-1000 scale: aspect 2.0 no matter
	// what shape the page is.
	wide := imaging.BoundingBox{YMin: 400, XMin: 100, YMax: 600, XMax: 500}
	if got, ok := scoreCandidate(400, 200, wide); !ok || got != 100 {
		t.Fatalf("score = %g %v, want 100 true", got, ok)
	}
	if _, ok := scoreCandidate(200, 200, wide); ok {
		t.Fatal("square raster matched a 2:1 box")
	}
}

func TestExtractBestNativeRGB(t *testing.T) {
	h := imagePage(t, rgbImage(120, 120, 200))
	defer h.Release()
	page, _ := h.Page(1)

	e := NewNativeExtractor(nil, nil)
	res := e.ExtractBest(page, squareBox)
	if res.Kind != ResultExtracted {
		t.Fatalf("kind = %d err = %v score = %g", res.Kind, res.Err, res.Score)
	}
	if res.Score != 100 {
		t.Fatalf("score = %g", res.Score)
	}
	if res.Image.MIME != "image/png" || res.Image.Page != 1 || res.Image.Filename != "img.pdf" {
		t.Fatalf("image = %+v", res.Image)
	}

	img, err := png.Decode(bytes.NewReader(res.Image.Data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if img.Bounds().Dx() != 120 || img.Bounds().Dy() != 120 {
		t.Fatalf("bounds = %v", img.Bounds())
	}
	r, g, b, _ := img.At(60, 60).RGBA()
	if r>>8 != 200 || g>>8 != 200 || b>>8 != 200 {
		t.Fatalf("pixel = %d %d %d", r>>8, g>>8, b>>8)
	}
}

func TestExtractBestCMYK(t *testing.T) {
	// All-zero CMYK samples are paper white.
	pix := make([]byte, 150*150*4)
	imageObj := serializeStream(pdfobj.FlateStream(pdfobj.Dict{
		"Subtype":          pdfobj.Name("Image"),
		"Width":            pdfobj.Integer(150),
		"Height":           pdfobj.Integer(150),
		"BitsPerComponent": pdfobj.Integer(8),
		"ColorSpace":       pdfobj.Name("DeviceCMYK"),
	}, pix))
	h := imagePage(t, imageObj)
	defer h.Release()
	page, _ := h.Page(1)

	res := NewNativeExtractor(nil, nil).ExtractBest(page, squareBox)
	if res.Kind != ResultExtracted {
		t.Fatalf("kind = %d err = %v", res.Kind, res.Err)
	}
	img, err := png.Decode(bytes.NewReader(res.Image.Data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	r, g, b, a := img.At(10, 10).RGBA()
	if r>>8 != 255 || g>>8 != 255 || b>>8 != 255 || a>>8 != 255 {
		t.Fatalf("pixel = %d %d %d %d", r>>8, g>>8, b>>8, a>>8)
	}
}

func TestExtractBestDCT(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 150, 150))
	for i := range src.Pix {
		src.Pix[i] = 255
	}
	var jp bytes.Buffer
	if err := jpeg.Encode(&jp, src, &jpeg.Options{Quality: 95}); err != nil {
		t.Fatalf("jpeg: %v", err)
	}
	imageObj := serializeStream(&pdfobj.Stream{
		Dict: pdfobj.Dict{
			"Subtype":          pdfobj.Name("Image"),
			"Width":            pdfobj.Integer(150),
			"Height":           pdfobj.Integer(150),
			"BitsPerComponent": pdfobj.Integer(8),
			"ColorSpace":       pdfobj.Name("DeviceRGB"),
			"Filter":           pdfobj.Name("DCTDecode"),
			"Length":           pdfobj.Integer(jp.Len()),
		},
		Raw: jp.Bytes(),
	})
	h := imagePage(t, imageObj)
	defer h.Release()
	page, _ := h.Page(1)

	res := NewNativeExtractor(nil, nil).ExtractBest(page, squareBox)
	if res.Kind != ResultExtracted {
		t.Fatalf("kind = %d err = %v", res.Kind, res.Err)
	}
	img, err := png.Decode(bytes.NewReader(res.Image.Data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if img.Bounds().Dx() != 150 {
		t.Fatalf("bounds = %v", img.Bounds())
	}
}

func TestExtractBestLowConfidence(t *testing.T) {
	h := imagePage(t, rgbImage(120, 120, 10))
	defer h.Release()
	page, _ := h.Page(1)

	// Box aspect 1.45 against a square image: delta 0.45 scores 55,
	// which is below the threshold but not a discard.
	box := imaging.BoundingBox{YMin: 0, XMin: 0, YMax: 400, XMax: 580}
	res := NewNativeExtractor(nil, nil).ExtractBest(page, box)
	if res.Kind != ResultLowConfidence {
		t.Fatalf("kind = %d err = %v", res.Kind, res.Err)
	}
	if res.Score < 54.9 || res.Score > 55.1 {
		t.Fatalf("score = %g", res.Score)
	}
	if res.Image != nil {
		t.Fatal("low confidence carried an image")
	}
}

func TestExtractBestSkipsSmallCandidates(t *testing.T) {
	h := imagePage(t, rgbImage(50, 50, 10))
	defer h.Release()
	page, _ := h.Page(1)

	res := NewNativeExtractor(nil, nil).ExtractBest(page, squareBox)
	if res.Kind != ResultLowConfidence || res.Score != 0 {
		t.Fatalf("res = %+v", res)
	}
}

func TestExtractBestInvalidBox(t *testing.T) {
	h := imagePage(t, rgbImage(120, 120, 10))
	defer h.Release()
	page, _ := h.Page(1)

	box := imaging.BoundingBox{YMin: 300, XMin: 300, YMax: 100, XMax: 100}
	res := NewNativeExtractor(nil, nil).ExtractBest(page, box)
	if res.Kind != ResultFailed || !errors.Is(res.Err, imaging.ErrInvalidBox) {
		t.Fatalf("res = %+v", res)
	}
}

func TestExtractBestIdempotent(t *testing.T) {
	h := imagePage(t, rgbImage(120, 120, 77))
	defer h.Release()
	page, _ := h.Page(1)

	e := NewNativeExtractor(nil, nil)
	first := e.ExtractBest(page, squareBox)
	second := e.ExtractBest(page, squareBox)
	if first.Kind != ResultExtracted || second.Kind != ResultExtracted {
		t.Fatalf("kinds = %d %d", first.Kind, second.Kind)
	}
	if first.Image.Hash != second.Image.Hash {
		t.Fatal("repeated extraction differs")
	}
}

func TestIsCMYK(t *testing.T) {
	doc := &pdfobj.Document{Objects: map[pdfobj.ObjectRef]pdfobj.Object{
		{Num: 8}: &pdfobj.Stream{Dict: pdfobj.Dict{"N": pdfobj.Integer(4)}},
		{Num: 9}: &pdfobj.Stream{Dict: pdfobj.Dict{"N": pdfobj.Integer(3)}},
	}}
	if !isCMYK(doc, pdfobj.Name("DeviceCMYK")) {
		t.Fatal("DeviceCMYK not detected")
	}
	if isCMYK(doc, pdfobj.Name("DeviceRGB")) {
		t.Fatal("DeviceRGB detected as CMYK")
	}
	icc4 := pdfobj.Array{pdfobj.Name("ICCBased"), pdfobj.Ref{Num: 8}}
	if !isCMYK(doc, icc4) {
		t.Fatal("4-channel ICC profile not detected")
	}
	icc3 := pdfobj.Array{pdfobj.Name("ICCBased"), pdfobj.Ref{Num: 9}}
	if isCMYK(doc, icc3) {
		t.Fatal("3-channel ICC profile detected as CMYK")
	}
}
