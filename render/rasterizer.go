// Package render produces page and region images: full-page JPEG
// rasters for recognition and text-suppressed high-resolution PNG crops
// for final product imagery.
package render

import (
	"errors"
	"fmt"

	"pagelift/document"
	"pagelift/imaging"
	"pagelift/observability"
)

// ErrRenderFailure marks a failed rasterization step; it fails the
// current page or region only.
var ErrRenderFailure = errors.New("render: rasterization failed")

// DefaultJPEGQuality is the whole-page encode quality.
const DefaultJPEGQuality = 88

// PageRasterizer renders full pages and encodes them for transmission.
type PageRasterizer struct {
	log observability.Logger
}

func NewPageRasterizer(log observability.Logger) *PageRasterizer {
	if log == nil {
		log = observability.NopLogger{}
	}
	return &PageRasterizer{log: log}
}

// Render rasterizes the whole page at the given scale into a pixel
// buffer of roughly pageWidth*scale by pageHeight*scale.
func (r *PageRasterizer) Render(page *document.Page, scale float64) (*imaging.RasterBuffer, error) {
	if scale <= 0 {
		return nil, fmt.Errorf("render: non-positive scale %g", scale)
	}
	img, err := page.Render(scale)
	if err != nil {
		if errors.Is(err, document.ErrDocumentReleased) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: page %d: %v", ErrRenderFailure, page.Number, err)
	}
	buf := imaging.FromImage(img)
	r.log.Debug("page rendered",
		observability.Int("page", page.Number),
		observability.Int("width", buf.Width),
		observability.Int("height", buf.Height))
	return buf, nil
}

// Encode compresses the buffer to JPEG and releases it; the raw pixels
// are not retained once the artifact exists.
func (r *PageRasterizer) Encode(buf *imaging.RasterBuffer, quality int) (*imaging.EncodedImage, error) {
	img, err := buf.Image()
	if err != nil {
		return nil, err
	}
	encoded, err := imaging.EncodeJPEG(img, quality)
	if err != nil {
		return nil, err
	}
	buf.Release()
	return encoded, nil
}
