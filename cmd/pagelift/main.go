// Command pagelift extracts structured product records and their
// images from PDF catalog pages.
//
// Usage:
//
//	pagelift [flags] catalog.pdf [more.pdf ...]
//
// The recognition API key is read from PAGELIFT_API_KEY, optionally
// via a .env file in the working directory.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"pagelift/batch"
	"pagelift/contentstream"
	"pagelift/extract"
	"pagelift/observability"
	"pagelift/recognize"
	"pagelift/render"
)

const defaultPrompt = `Identify every distinct product shown on this catalog page. For each one return a JSON object with "name", "description", "price" and "box" (the product photo's bounding box as {"ymin","xmin","ymax","xmax"} on a 0-1000 scale). Answer with a JSON array only.`

func main() {
	var (
		outDir    = flag.String("out", "out", "output directory")
		pagesSpec = flag.String("pages", "", "page selection, e.g. 1,3-5 (default all)")
		prompt    = flag.String("prompt", defaultPrompt, "recognition prompt")
		quality   = flag.Int("quality", render.DefaultJPEGQuality, "page JPEG quality")
		scale     = flag.Float64("scale", 2.0, "page raster scale")
		cropScale = flag.Float64("crop-scale", extract.DefaultCropScale, "region re-render scale")
		model     = flag.String("model", "", "recognition model override")
		endpoint  = flag.String("endpoint", "", "recognition endpoint override")
		verbose   = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()
	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: pagelift [flags] file.pdf [more.pdf ...]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	level := observability.LevelInfo
	if *verbose {
		level = observability.LevelDebug
	}
	log := observability.NewStdLogger(level)

	// A missing .env is fine; the key may come from the environment.
	_ = godotenv.Load()
	apiKey := os.Getenv("PAGELIFT_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "pagelift: PAGELIFT_API_KEY is not set")
		os.Exit(2)
	}

	pages, err := parsePages(*pagesSpec)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pagelift: %v\n", err)
		os.Exit(2)
	}

	var files []batch.File
	for _, path := range flag.Args() {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "pagelift: %v\n", err)
			os.Exit(1)
		}
		files = append(files, batch.File{Name: filepath.Base(path), Data: data, Pages: pages})
	}
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "pagelift: %v\n", err)
		os.Exit(1)
	}

	table := contentstream.NewTable()
	rasterizer := render.NewPageRasterizer(log)
	orchestrator := extract.NewOrchestrator(
		extract.NewNativeExtractor(table, log),
		render.NewCropRenderer(table, log),
		*cropScale,
		log,
	)
	client := recognize.NewClient(recognize.Config{
		Endpoint: *endpoint,
		APIKey:   apiKey,
		Model:    *model,
	})
	runner := batch.NewRunner(batch.Config{
		Prompt:      *prompt,
		PageScale:   *scale,
		JPEGQuality: *quality,
	}, client, batch.NewPageImager(rasterizer), orchestrator, log)
	runner.OnProgress(func(file string, page int, err error) {
		if err != nil {
			log.Warn("page failed",
				observability.String("file", file),
				observability.Int("page", page),
				observability.Error("err", err))
			return
		}
		log.Info("page done",
			observability.String("file", file),
			observability.Int("page", page))
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results, summary, runErr := runner.Run(ctx, files)
	if err := writeResults(*outDir, results); err != nil {
		fmt.Fprintf(os.Stderr, "pagelift: %v\n", err)
		os.Exit(1)
	}
	log.Info("run finished",
		observability.Int("pagesWithData", summary.PagesWithData),
		observability.Int("pagesEmpty", summary.PagesEmpty),
		observability.Int("pagesFailed", summary.PagesFailed))
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "pagelift: %v\n", runErr)
		os.Exit(1)
	}
}

// manifestRecord is the on-disk form of one recognized product.
type manifestRecord struct {
	File        string   `json:"file"`
	Page        int      `json:"page"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Price       string   `json:"price,omitempty"`
	Images      []string `json:"images,omitempty"`
}

// writeResults saves the whole-page JPEGs, every region image as PNG,
// and a manifest.json describing all records.
func writeResults(dir string, results []batch.PageResult) error {
	var manifest []manifestRecord
	for _, res := range results {
		if res.Err != nil {
			continue
		}
		base := strings.TrimSuffix(res.File, filepath.Ext(res.File))
		if res.Raster != nil {
			name := fmt.Sprintf("%s_p%d.jpg", base, res.Page)
			if err := os.WriteFile(filepath.Join(dir, name), res.Raster.Data, 0o644); err != nil {
				return err
			}
		}
		for ri, rec := range res.Records {
			entry := manifestRecord{
				File:        res.File,
				Page:        res.Page,
				Name:        rec.Name,
				Description: rec.Description,
				Price:       rec.Price,
			}
			for ii, img := range rec.Images {
				name := fmt.Sprintf("%s_p%d_r%d_%d.png", base, res.Page, ri+1, ii+1)
				if err := os.WriteFile(filepath.Join(dir, name), img.Data, 0o644); err != nil {
					return err
				}
				entry.Images = append(entry.Images, name)
			}
			manifest = append(manifest, entry)
		}
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "manifest.json"), data, 0o644)
}

// parsePages parses a selection like "1,3-5" into sorted page numbers.
// An empty spec selects all pages.
func parsePages(spec string) ([]int, error) {
	if strings.TrimSpace(spec) == "" {
		return nil, nil
	}
	var pages []int
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if lo, hi, ok := strings.Cut(part, "-"); ok {
			start, err1 := strconv.Atoi(strings.TrimSpace(lo))
			end, err2 := strconv.Atoi(strings.TrimSpace(hi))
			if err1 != nil || err2 != nil || start < 1 || end < start {
				return nil, fmt.Errorf("bad page range %q", part)
			}
			for p := start; p <= end; p++ {
				pages = append(pages, p)
			}
			continue
		}
		p, err := strconv.Atoi(part)
		if err != nil || p < 1 {
			return nil, fmt.Errorf("bad page number %q", part)
		}
		pages = append(pages, p)
	}
	return pages, nil
}
