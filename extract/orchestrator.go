package extract

import (
	"errors"

	"pagelift/document"
	"pagelift/imaging"
	"pagelift/observability"
	"pagelift/render"
)

// DefaultCropScale is the fallback re-render scale.
const DefaultCropScale = 4.0

// Orchestrator applies the two-tier strategy: native extraction first
// (cheap, pixel-perfect when it matches), region re-render as the
// robust fallback. The decision is a pure function of the native
// result's kind.
type Orchestrator struct {
	native    *NativeExtractor
	crop      *render.CropRenderer
	cropScale float64
	log       observability.Logger
}

func NewOrchestrator(native *NativeExtractor, crop *render.CropRenderer, cropScale float64, log observability.Logger) *Orchestrator {
	if cropScale <= 0 {
		cropScale = DefaultCropScale
	}
	if log == nil {
		log = observability.NopLogger{}
	}
	return &Orchestrator{native: native, crop: crop, cropScale: cropScale, log: log}
}

// ExtractRegionImage returns the best image of the region. An invalid
// box yields (nil, nil): the region simply carries no image rather
// than aborting its page.
func (o *Orchestrator) ExtractRegionImage(page *document.Page, box imaging.BoundingBox) (*imaging.EncodedImage, error) {
	res := o.native.ExtractBest(page, box)
	switch res.Kind {
	case ResultExtracted:
		return res.Image, nil
	case ResultLowConfidence:
		o.log.Debug("no confident native match, re-rendering",
			observability.Int("page", page.Number),
			observability.Float64("bestScore", res.Score))
	case ResultFailed:
		if errors.Is(res.Err, document.ErrDocumentReleased) {
			return nil, res.Err
		}
		o.log.Warn("native extraction failed, re-rendering",
			observability.Int("page", page.Number),
			observability.Error("err", res.Err))
	}

	img, err := o.crop.CropRender(page, box, o.cropScale)
	if errors.Is(err, imaging.ErrInvalidBox) {
		return nil, nil
	}
	return img, err
}
