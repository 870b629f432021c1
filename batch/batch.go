// Package batch drives the end-to-end pipeline over a set of files:
// load, rasterize, recognize, extract region images, release. Pages
// run strictly sequentially in ascending order so memory stays bounded
// by a single page's working set.
package batch

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"pagelift/document"
	"pagelift/imaging"
	"pagelift/observability"
	"pagelift/recognize"
	"pagelift/render"
)

// Recognizer turns a page image into structured records.
type Recognizer interface {
	RecognizePage(ctx context.Context, img *imaging.EncodedImage, prompt string) ([]recognize.Record, error)
}

// PageImager produces the whole-page artifact sent for recognition.
type PageImager interface {
	PageImage(page *document.Page, scale float64, quality int) (*imaging.EncodedImage, error)
}

// RegionExtractor produces the image for one recognized region.
type RegionExtractor interface {
	ExtractRegionImage(page *document.Page, box imaging.BoundingBox) (*imaging.EncodedImage, error)
}

// File is one input document with its page selection. An empty Pages
// slice selects every page.
type File struct {
	Name  string
	Data  []byte
	Pages []int
}

// PageResult is the outcome of one page.
type PageResult struct {
	File    string
	Page    int
	Raster  *imaging.EncodedImage // the whole-page artifact sent upstream
	Records []recognize.Record
	Err     error
}

// Summary counts page outcomes across the run.
type Summary struct {
	PagesWithData int
	PagesEmpty    int
	PagesFailed   int
}

// Config tunes the run.
type Config struct {
	Prompt      string
	PageScale   float64       // full-page raster scale, default 2.0
	JPEGQuality int           // default render.DefaultJPEGQuality
	MaxAttempts int           // recognition attempts per page, default 4
	BaseDelay   time.Duration // first retry delay, default 500ms
}

const (
	defaultPageScale   = 2.0
	defaultMaxAttempts = 4
	defaultBaseDelay   = 500 * time.Millisecond
)

// Runner executes the pipeline. All collaborators are interfaces so
// rendering and recognition can be substituted independently.
type Runner struct {
	cfg        Config
	recognizer Recognizer
	imager     PageImager
	regions    RegionExtractor
	log        observability.Logger
	progress   func(file string, page int, err error)
	rng        *rand.Rand
}

func NewRunner(cfg Config, recognizer Recognizer, imager PageImager, regions RegionExtractor, log observability.Logger) *Runner {
	if cfg.PageScale <= 0 {
		cfg.PageScale = defaultPageScale
	}
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = render.DefaultJPEGQuality
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}
	if log == nil {
		log = observability.NopLogger{}
	}
	return &Runner{
		cfg:        cfg,
		recognizer: recognizer,
		imager:     imager,
		regions:    regions,
		log:        log,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// OnProgress installs a callback invoked after each completed page.
func (r *Runner) OnProgress(fn func(file string, page int, err error)) {
	r.progress = fn
}

// Run processes files in order and each file's pages in ascending
// order. Cancellation is honored between pages; already-produced
// results are always returned. An authentication failure aborts the
// whole run since every later call would fail the same way.
func (r *Runner) Run(ctx context.Context, files []File) ([]PageResult, Summary, error) {
	var (
		results []PageResult
		summary Summary
	)
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return results, summary, err
		}
		handle, err := document.Load(file.Data, file.Name, r.log)
		if err != nil {
			// Corrupt input fails its own file only.
			r.log.Error("file skipped",
				observability.String("file", file.Name),
				observability.Error("err", err))
			selected := normalizePages(file.Pages, 1)
			for _, page := range selected {
				results = append(results, PageResult{File: file.Name, Page: page, Err: err})
				summary.PagesFailed++
			}
			continue
		}

		count, _ := handle.PageCount()
		pages := normalizePages(file.Pages, count)
		var authErr error
		for _, pageNum := range pages {
			if err := ctx.Err(); err != nil {
				handle.Release()
				return results, summary, err
			}
			res := r.processPage(ctx, handle, pageNum)
			if errors.Is(res.Err, recognize.ErrAuthentication) {
				authErr = res.Err
				break
			}
			results = append(results, res)
			switch {
			case res.Err != nil:
				summary.PagesFailed++
			case len(res.Records) > 0:
				summary.PagesWithData++
			default:
				summary.PagesEmpty++
			}
			if r.progress != nil {
				r.progress(file.Name, pageNum, res.Err)
			}
		}
		handle.Release()
		if authErr != nil {
			return results, summary, fmt.Errorf("batch: aborted at %s page: %w", file.Name, authErr)
		}
	}
	return results, summary, nil
}

func (r *Runner) processPage(ctx context.Context, handle *document.Handle, pageNum int) PageResult {
	res := PageResult{File: handle.Name(), Page: pageNum}

	page, err := handle.Page(pageNum)
	if err != nil {
		res.Err = err
		return res
	}
	whole, err := r.imager.PageImage(page, r.cfg.PageScale, r.cfg.JPEGQuality)
	if err != nil {
		res.Err = err
		return res
	}
	res.Raster = whole
	records, err := r.recognizeWithRetry(ctx, whole, r.cfg.Prompt)
	if err != nil {
		res.Err = err
		return res
	}

	// Region extraction runs only after the page raster has been
	// submitted and answered; a failed region never fails its page.
	for i := range records {
		if records[i].Box == nil {
			continue
		}
		img, err := r.regions.ExtractRegionImage(page, *records[i].Box)
		if err != nil {
			r.log.Warn("region extraction failed",
				observability.String("file", handle.Name()),
				observability.Int("page", pageNum),
				observability.Error("err", err))
			continue
		}
		if img != nil {
			records[i].Images = append(records[i].Images, img)
		}
	}
	res.Records = records
	return res
}

// recognizeWithRetry retries rate-limited calls with exponential
// backoff and jitter, up to the attempt bound. Every other error is
// terminal for the page.
func (r *Runner) recognizeWithRetry(ctx context.Context, img *imaging.EncodedImage, prompt string) ([]recognize.Record, error) {
	var lastErr error
	for attempt := 0; attempt < r.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := r.cfg.BaseDelay << (attempt - 1)
			delay += time.Duration(r.rng.Int63n(int64(delay)/2 + 1))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
		records, err := r.recognizer.RecognizePage(ctx, img, prompt)
		if err == nil {
			return records, nil
		}
		if !errors.Is(err, recognize.ErrRateLimited) {
			return nil, err
		}
		lastErr = err
		r.log.Warn("recognition rate limited, backing off",
			observability.Int("attempt", attempt+1))
	}
	return nil, fmt.Errorf("batch: retries exhausted: %w", lastErr)
}

// normalizePages sorts and deduplicates the selection; an empty
// selection expands to every page when the count is known.
func normalizePages(pages []int, count int) []int {
	if len(pages) == 0 {
		out := make([]int, count)
		for i := range out {
			out[i] = i + 1
		}
		return out
	}
	out := make([]int, len(pages))
	copy(out, pages)
	sort.Ints(out)
	dedup := out[:0]
	for i, p := range out {
		if i == 0 || p != out[i-1] {
			dedup = append(dedup, p)
		}
	}
	return dedup
}
