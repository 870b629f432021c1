// Package extract recovers the best image of a detected page region:
// directly lifting an embedded raster when one matches the region with
// enough confidence, re-rendering the region otherwise.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"image/jpeg"
	"math"

	"pagelift/contentstream"
	"pagelift/document"
	"pagelift/imaging"
	"pagelift/observability"
	"pagelift/pdfobj"
)

const (
	// minCandidateDim rejects rasters too small for a usable product photo.
	minCandidateDim = 100
	// maxAspectDelta discards near-certain mismatches (background art,
	// sprite sheets).
	maxAspectDelta = 0.5
	// largeImagePixels earns the resolution bonus.
	largeImagePixels = 1_000_000
	largeImageBonus  = 50.0
	// confidenceThreshold is the minimum score to trust a native lift
	// over a re-rendered crop.
	confidenceThreshold = 70.0
)

// ResultKind drives the orchestrator's fallback decision.
type ResultKind int

const (
	// ResultExtracted carries a confident native lift.
	ResultExtracted ResultKind = iota
	// ResultLowConfidence is a designed signal, not a failure: no
	// candidate scored at or above the threshold.
	ResultLowConfidence
	// ResultFailed is an internal failure during the scan.
	ResultFailed
)

// Result is the outcome of one extraction strategy.
type Result struct {
	Kind  ResultKind
	Image *imaging.EncodedImage
	Score float64
	Err   error
}

// NativeExtractor scans a page's drawing program for embedded rasters
// and scores them against the target box.
//
// Scoring uses only aspect ratio and resolution; the image's placement
// matrix on the page is deliberately not consulted, so a page holding
// several same-aspect images can misselect. Known limitation.
type NativeExtractor struct {
	table contentstream.Table
	log   observability.Logger
}

func NewNativeExtractor(table contentstream.Table, log observability.Logger) *NativeExtractor {
	if table == nil {
		table = contentstream.NewTable()
	}
	if log == nil {
		log = observability.NopLogger{}
	}
	return &NativeExtractor{table: table, log: log}
}

// ExtractBest returns the highest-scoring embedded raster matching box,
// or ResultLowConfidence when nothing reaches the threshold.
func (e *NativeExtractor) ExtractBest(page *document.Page, box imaging.BoundingBox) Result {
	box = box.Clamp()
	if !box.Valid() {
		return Result{Kind: ResultFailed, Err: imaging.ErrInvalidBox}
	}
	contents, err := page.ContentStreams()
	if err != nil {
		return Result{Kind: ResultFailed, Err: err}
	}

	var (
		best      *imaging.RasterBuffer
		bestScore float64
	)
	for _, content := range contents {
		scanner := contentstream.NewScanner(content.Data, e.table)
		for {
			op, err := scanner.Next()
			if err != nil {
				break // end of stream or syntax error: stop this part
			}
			if op.Code != contentstream.OpPaintXObject || len(op.Operands) != 1 {
				continue
			}
			name, ok := op.Operands[0].(pdfobj.Name)
			if !ok {
				continue
			}
			stream, ok := page.XObject(name)
			if !ok {
				continue
			}
			candidate, err := decodeCandidate(page.Raw(), stream)
			if err != nil {
				// A single unusable candidate never fails the scan.
				e.log.Debug("candidate skipped",
					observability.Int("page", page.Number),
					observability.String("xobject", string(name)),
					observability.Error("reason", err))
				continue
			}
			score, ok := scoreCandidate(candidate.Width, candidate.Height, box)
			if !ok {
				continue
			}
			if best == nil || score > bestScore {
				best = candidate
				bestScore = score
			}
		}
	}

	if best == nil || bestScore < confidenceThreshold {
		return Result{Kind: ResultLowConfidence, Score: bestScore}
	}
	img, err := best.Image()
	if err != nil {
		return Result{Kind: ResultFailed, Err: err}
	}
	encoded, err := imaging.EncodePNG(img)
	if err != nil {
		return Result{Kind: ResultFailed, Err: err}
	}
	encoded.Page = page.Number
	encoded.Filename = page.Document().Name()
	e.log.Debug("native image extracted",
		observability.Int("page", page.Number),
		observability.Float64("score", bestScore))
	return Result{Kind: ResultExtracted, Image: encoded, Score: bestScore}
}

var errNotImage = errors.New("extract: xobject is not an image")

// decodeCandidate turns an image XObject into a normalized RGBA buffer.
func decodeCandidate(doc *pdfobj.Document, stream *pdfobj.Stream) (*imaging.RasterBuffer, error) {
	if subtype, _ := stream.Dict.Name("Subtype"); subtype != "Image" {
		return nil, errNotImage
	}
	width, okW := stream.Dict.Int("Width")
	height, okH := stream.Dict.Int("Height")
	if !okW || !okH || width < minCandidateDim || height < minCandidateDim {
		return nil, fmt.Errorf("extract: candidate %dx%d below minimum", width, height)
	}
	data, rest, err := pdfobj.DecodeStream(doc, stream)
	if err != nil {
		return nil, err
	}
	if len(rest) > 0 {
		if len(rest) == 1 && rest[0] == "DCTDecode" {
			img, err := jpeg.Decode(bytes.NewReader(data))
			if err != nil {
				return nil, fmt.Errorf("extract: dct decode: %w", err)
			}
			return imaging.FromImage(img), nil
		}
		return nil, fmt.Errorf("%w: filter %s", imaging.ErrUnsupportedPixelFormat, rest[0])
	}
	if bpc, ok := stream.Dict.Int("BitsPerComponent"); ok && bpc != 8 {
		return nil, fmt.Errorf("%w: %d bits per component", imaging.ErrUnsupportedPixelFormat, bpc)
	}
	return imaging.NormalizeRGBA(data, int(width), int(height), isCMYK(doc, stream.Dict["ColorSpace"]))
}

// isCMYK reports whether the color space resolves to a 4-channel
// subtractive space (DeviceCMYK directly, or an ICC profile with N=4).
func isCMYK(doc *pdfobj.Document, obj pdfobj.Object) bool {
	switch v := doc.Resolve(obj).(type) {
	case pdfobj.Name:
		return v == "DeviceCMYK"
	case pdfobj.Array:
		if len(v) >= 2 {
			if name, ok := v[0].(pdfobj.Name); ok && name == "ICCBased" {
				if profile, ok := doc.Stream(v[1]); ok {
					if n, ok := profile.Dict.Int("N"); ok {
						return n == 4
					}
				}
			}
		}
	}
	return false
}

// scoreCandidate rates a candidate's fit: (1 - |aspect delta|) * 100
// with a flat bonus for megapixel-class rasters. Candidates past the
// aspect cutoff are discarded outright.
//
// The box aspect is measured in normalized units, where both axes run
// 0-1000 regardless of the page shape. On a non-square page it differs
// from the region's pixel aspect by the page's own width/height ratio,
// so scores skew on tall or wide pages.
func scoreCandidate(width, height int, box imaging.BoundingBox) (float64, bool) {
	if width <= 0 || height <= 0 {
		return 0, false
	}
	delta := math.Abs(float64(width)/float64(height) - box.Aspect())
	if delta > maxAspectDelta {
		return 0, false
	}
	score := (1 - delta) * 100
	if width*height > largeImagePixels {
		score += largeImageBonus
	}
	return score, true
}
