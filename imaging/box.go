package imaging

import "errors"

// ErrInvalidBox marks a bounding box with no positive area after
// clamping. The affected region yields no image; its page continues.
var ErrInvalidBox = errors.New("imaging: invalid bounding box")

// BoundingBox is a region of interest on a page, each edge on a 0-1000
// scale relative to the page dimensions. The Y axis grows downward,
// matching the recognition service's image coordinates.
type BoundingBox struct {
	YMin float64 `json:"ymin"`
	XMin float64 `json:"xmin"`
	YMax float64 `json:"ymax"`
	XMax float64 `json:"xmax"`
}

// Clamp limits every edge to [0, 1000].
func (b BoundingBox) Clamp() BoundingBox {
	clamp := func(v float64) float64 {
		if v < 0 {
			return 0
		}
		if v > 1000 {
			return 1000
		}
		return v
	}
	return BoundingBox{
		YMin: clamp(b.YMin),
		XMin: clamp(b.XMin),
		YMax: clamp(b.YMax),
		XMax: clamp(b.XMax),
	}
}

// Valid reports whether the box spans a positive area.
func (b BoundingBox) Valid() bool {
	return b.XMax > b.XMin && b.YMax > b.YMin
}

// Aspect is width over height on the normalized scale.
func (b BoundingBox) Aspect() float64 {
	h := b.YMax - b.YMin
	if h == 0 {
		return 0
	}
	return (b.XMax - b.XMin) / h
}
