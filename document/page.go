package document

import (
	"fmt"
	"image"

	"pagelift/pdfobj"
)

// Page is one page of a loaded document, identified by its 1-based
// number. Pages are derived on demand and are not independently owned.
type Page struct {
	handle *Handle
	Number int
	node   pdfobj.PageNode
}

// Ref is the page dictionary's object reference.
func (p *Page) Ref() pdfobj.ObjectRef { return p.node.Ref }

// Document returns the owning handle.
func (p *Page) Document() *Handle { return p.handle }

// Dict is the page dictionary itself.
func (p *Page) Dict() pdfobj.Dict { return p.node.Dict }

// Raw exposes the owning document's object structure.
func (p *Page) Raw() *pdfobj.Document { return p.handle.raw }

// MediaBox returns the page rectangle [x0 y0 x1 y1] in points,
// defaulting to US Letter when absent.
func (p *Page) MediaBox() [4]float64 {
	if obj, ok := p.node.Attr("MediaBox"); ok {
		if nums, ok := p.handle.raw.Numbers(obj); ok && len(nums) == 4 {
			box := [4]float64{nums[0], nums[1], nums[2], nums[3]}
			if box[2] < box[0] {
				box[0], box[2] = box[2], box[0]
			}
			if box[3] < box[1] {
				box[1], box[3] = box[3], box[1]
			}
			return box
		}
	}
	return [4]float64{0, 0, 612, 792}
}

// Size returns the unscaled page dimensions in points.
func (p *Page) Size() (width, height float64) {
	box := p.MediaBox()
	return box[2] - box[0], box[3] - box[1]
}

// ContentRef is one decoded content stream and the object it came from.
type ContentRef struct {
	Ref  pdfobj.ObjectRef
	Data []byte
}

// ContentStreams returns the page's decoded drawing program parts in
// order. Streams with pixel-level filters on /Contents do not occur;
// any undecodable part fails the call.
func (p *Page) ContentStreams() ([]ContentRef, error) {
	if p.handle.released {
		return nil, ErrDocumentReleased
	}
	doc := p.handle.raw
	contents, ok := p.node.Dict["Contents"]
	if !ok {
		return nil, nil
	}
	var refs []pdfobj.Ref
	switch v := contents.(type) {
	case pdfobj.Ref:
		if arr, ok := doc.Array(pdfobj.Object(v)); ok {
			for _, item := range arr {
				if r, ok := item.(pdfobj.Ref); ok {
					refs = append(refs, r)
				}
			}
		} else {
			refs = []pdfobj.Ref{v}
		}
	case pdfobj.Array:
		for _, item := range v {
			if r, ok := item.(pdfobj.Ref); ok {
				refs = append(refs, r)
			}
		}
	default:
		return nil, fmt.Errorf("page %d: unsupported /Contents form", p.Number)
	}

	out := make([]ContentRef, 0, len(refs))
	for _, ref := range refs {
		stream, ok := doc.Stream(ref)
		if !ok {
			continue
		}
		data, rest, err := pdfobj.DecodeStream(doc, stream)
		if err != nil {
			return nil, fmt.Errorf("page %d content %s: %w", p.Number, pdfobj.ObjectRef(ref), err)
		}
		if len(rest) > 0 {
			return nil, fmt.Errorf("page %d content %s: filter %s unsupported", p.Number, pdfobj.ObjectRef(ref), rest[0])
		}
		out = append(out, ContentRef{Ref: pdfobj.ObjectRef(ref), Data: data})
	}
	return out, nil
}

// XObject resolves a named raster object, trying the page's own
// resource table first and the inherited (shared) one second.
func (p *Page) XObject(name pdfobj.Name) (*pdfobj.Stream, bool) {
	if p.handle.released {
		return nil, false
	}
	doc := p.handle.raw
	for _, resObj := range []pdfobj.Object{p.node.Dict["Resources"], p.node.Inherited["Resources"]} {
		res, ok := doc.Dict(resObj)
		if !ok {
			continue
		}
		xobjects, ok := doc.Dict(res["XObject"])
		if !ok {
			continue
		}
		if stream, ok := doc.Stream(xobjects[name]); ok {
			return stream, true
		}
	}
	return nil, false
}

// Render rasterizes the full page at the given scale (1.0 = 72 dpi).
func (p *Page) Render(scale float64) (image.Image, error) {
	if scale <= 0 {
		return nil, fmt.Errorf("page %d: non-positive scale %g", p.Number, scale)
	}
	return p.handle.renderDPI(p.Number-1, 72*scale)
}
