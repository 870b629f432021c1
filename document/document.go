// Package document owns loaded PDF documents: raw structure for object
// access and a MuPDF handle for rasterization, with explicit release
// semantics so one document's native resources are held only while its
// batch of pages is processed.
package document

import (
	"errors"
	"fmt"
	"image"

	fitz "github.com/gen2brain/go-fitz"

	"pagelift/observability"
	"pagelift/pdfobj"
)

var (
	// ErrCorruptDocument marks bytes that cannot be used as a document.
	ErrCorruptDocument = errors.New("document: corrupt document")
	// ErrPageOutOfRange marks a page number outside [1, PageCount].
	ErrPageOutOfRange = errors.New("document: page out of range")
	// ErrDocumentReleased marks use after Release.
	ErrDocumentReleased = errors.New("document: document released")
)

// Handle is a loaded PDF. It is exclusively owned by the caller and
// must be released exactly once, after all selected pages are done.
type Handle struct {
	data     []byte
	name     string
	raw      *pdfobj.Document
	pages    []pdfobj.PageNode
	fz       *fitz.Document
	released bool
	log      observability.Logger
}

// Load parses raw file bytes. Structurally invalid or encrypted input
// fails with ErrCorruptDocument; no low-level panic escapes.
func Load(data []byte, name string, log observability.Logger) (*Handle, error) {
	if log == nil {
		log = observability.NopLogger{}
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrCorruptDocument)
	}
	raw, err := pdfobj.Load(data)
	if err != nil {
		if errors.Is(err, pdfobj.ErrEncrypted) {
			return nil, fmt.Errorf("%w: encrypted", ErrCorruptDocument)
		}
		return nil, fmt.Errorf("%w: %v", ErrCorruptDocument, err)
	}
	pages := raw.Pages()
	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: no pages", ErrCorruptDocument)
	}
	log.Debug("document loaded",
		observability.String("file", name),
		observability.Int("pages", len(pages)),
		observability.String("version", raw.Version))
	return &Handle{data: data, name: name, raw: raw, pages: pages, log: log}, nil
}

// Name returns the source filename the handle was loaded under.
func (h *Handle) Name() string { return h.name }

// Bytes exposes the original file bytes for incremental rewriting.
func (h *Handle) Bytes() []byte { return h.data }

// Raw exposes the parsed object structure.
func (h *Handle) Raw() *pdfobj.Document { return h.raw }

// PageCount returns the number of pages.
func (h *Handle) PageCount() (int, error) {
	if h.released {
		return 0, ErrDocumentReleased
	}
	return len(h.pages), nil
}

// Page returns the 1-based page handle. Its lifetime is bounded by the
// document's.
func (h *Handle) Page(number int) (*Page, error) {
	if h.released {
		return nil, ErrDocumentReleased
	}
	if number < 1 || number > len(h.pages) {
		return nil, fmt.Errorf("%w: %d of %d", ErrPageOutOfRange, number, len(h.pages))
	}
	return &Page{handle: h, Number: number, node: h.pages[number-1]}, nil
}

// Release frees all underlying resources. Further calls on the handle
// or its pages fail with ErrDocumentReleased.
func (h *Handle) Release() error {
	if h.released {
		return ErrDocumentReleased
	}
	h.released = true
	if h.fz != nil {
		h.fz.Close()
		h.fz = nil
	}
	h.data = nil
	h.raw = nil
	h.pages = nil
	return nil
}

// renderDPI rasterizes a 0-based page through MuPDF, opening the native
// document on first use. Render paths are the only ones touching MuPDF,
// so object-level work never pays for the native parse.
func (h *Handle) renderDPI(index int, dpi float64) (image.Image, error) {
	if h.released {
		return nil, ErrDocumentReleased
	}
	if h.fz == nil {
		fz, err := fitz.NewFromMemory(h.data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptDocument, err)
		}
		h.fz = fz
	}
	return h.fz.ImageDPI(index, dpi)
}
