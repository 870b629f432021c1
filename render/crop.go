package render

import (
	"fmt"
	"image"
	"math"

	fitz "github.com/gen2brain/go-fitz"
	xdraw "golang.org/x/image/draw"

	"pagelift/contentstream"
	"pagelift/document"
	"pagelift/imaging"
	"pagelift/observability"
	"pagelift/pdfobj"
)

// maxCropPixels caps either crop dimension in device pixels, bounding
// canvas allocation at high scales.
const maxCropPixels = 4096

// CropRenderer re-renders a page region at high resolution with text
// painting suppressed, so the crop shows only the original artwork.
//
// The replay works by rewriting the document: the page's content
// streams are re-serialized with text operations neutralized and the
// page box is shrunk to the crop rectangle, all appended as an
// incremental update. MuPDF then renders just that rectangle, which
// keeps the canvas at the minimum needed size rather than the whole
// page.
type CropRenderer struct {
	table contentstream.Table
	log   observability.Logger
}

func NewCropRenderer(table contentstream.Table, log observability.Logger) *CropRenderer {
	if table == nil {
		table = contentstream.NewTable()
	}
	if log == nil {
		log = observability.NopLogger{}
	}
	return &CropRenderer{table: table, log: log}
}

// capScale lowers the requested scale until both crop dimensions fit
// the pixel cap.
func capScale(cropW, cropH, scale float64) float64 {
	if cropW*scale > maxCropPixels {
		scale = maxCropPixels / cropW
	}
	if cropH*scale > maxCropPixels {
		scale = maxCropPixels / cropH
	}
	return scale
}

// CropRender produces a lossless crop of the normalized box. Output
// dimensions are floor(cropW*finalScale) x floor(cropH*finalScale)
// with finalScale <= targetScale.
func (c *CropRenderer) CropRender(page *document.Page, box imaging.BoundingBox, targetScale float64) (*imaging.EncodedImage, error) {
	box = box.Clamp()
	if !box.Valid() {
		return nil, imaging.ErrInvalidBox
	}
	if targetScale <= 0 {
		return nil, fmt.Errorf("render: non-positive scale %g", targetScale)
	}

	pageW, pageH := page.Size()
	cropW := (box.XMax - box.XMin) / 1000 * pageW
	cropH := (box.YMax - box.YMin) / 1000 * pageH
	finalScale := capScale(cropW, cropH, targetScale)
	outW := int(math.Floor(cropW * finalScale))
	outH := int(math.Floor(cropH * finalScale))
	if outW < 1 || outH < 1 {
		return nil, imaging.ErrInvalidBox
	}

	rewritten, err := c.rewriteForCrop(page, box)
	if err != nil {
		return nil, err
	}

	fz, err := fitz.NewFromMemory(rewritten)
	if err != nil {
		return nil, fmt.Errorf("%w: reopen rewritten document: %v", ErrRenderFailure, err)
	}
	defer fz.Close()
	img, err := fz.ImageDPI(page.Number-1, 72*finalScale)
	if err != nil {
		return nil, fmt.Errorf("%w: crop render page %d: %v", ErrRenderFailure, page.Number, err)
	}

	out := exactSize(img, outW, outH)
	encoded, err := imaging.EncodePNG(out)
	if err != nil {
		return nil, err
	}
	encoded.Page = page.Number
	encoded.Filename = page.Document().Name()
	c.log.Debug("region cropped",
		observability.Int("page", page.Number),
		observability.Int("width", outW),
		observability.Int("height", outH),
		observability.Float64("scale", finalScale))
	return encoded, nil
}

// rewriteForCrop builds the incrementally updated document: suppressed
// content streams plus a page box equal to the crop rectangle.
func (c *CropRenderer) rewriteForCrop(page *document.Page, box imaging.BoundingBox) ([]byte, error) {
	contents, err := page.ContentStreams()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRenderFailure, err)
	}
	updates := make(map[pdfobj.ObjectRef]pdfobj.Object, len(contents)+1)
	for _, content := range contents {
		ops, err := contentstream.ScanAll(content.Data, c.table)
		if err != nil {
			return nil, fmt.Errorf("%w: scan page %d: %v", ErrRenderFailure, page.Number, err)
		}
		suppressed := contentstream.Suppress(ops)
		updates[content.Ref] = pdfobj.FlateStream(nil, contentstream.Serialize(suppressed))
	}

	// Crop box in PDF user space; the normalized Y axis grows downward
	// while PDF's grows upward.
	mb := page.MediaBox()
	pageW, pageH := page.Size()
	x0 := mb[0] + box.XMin/1000*pageW
	x1 := mb[0] + box.XMax/1000*pageW
	yTop := mb[3] - box.YMin/1000*pageH
	yBot := mb[3] - box.YMax/1000*pageH
	rect := pdfobj.Array{pdfobj.Real(x0), pdfobj.Real(yBot), pdfobj.Real(x1), pdfobj.Real(yTop)}

	pageDict := page.Dict().Clone()
	pageDict["MediaBox"] = rect
	pageDict["CropBox"] = rect
	updates[page.Ref()] = pageDict

	raw := page.Raw()
	return writeIncremental(page.Document().Bytes(), raw.StartXRef, raw.Trailer, updates), nil
}

// exactSize resamples img when the DPI-based render is off the exact
// target dimensions (rounding inside MuPDF can differ by a pixel).
func exactSize(img image.Image, w, h int) image.Image {
	b := img.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}
