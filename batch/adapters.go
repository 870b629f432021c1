package batch

import (
	"pagelift/document"
	"pagelift/imaging"
	"pagelift/render"
)

// pageImager adapts the two-step rasterizer to the single-call
// interface the runner wants.
type pageImager struct {
	r *render.PageRasterizer
}

// NewPageImager wraps a PageRasterizer as a PageImager.
func NewPageImager(r *render.PageRasterizer) PageImager {
	return pageImager{r: r}
}

func (p pageImager) PageImage(page *document.Page, scale float64, quality int) (*imaging.EncodedImage, error) {
	buf, err := p.r.Render(page, scale)
	if err != nil {
		return nil, err
	}
	img, err := p.r.Encode(buf, quality)
	if err != nil {
		return nil, err
	}
	img.Page = page.Number
	img.Filename = page.Document().Name()
	return img, nil
}
