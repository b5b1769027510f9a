package image

import (
	"bytes"
	"context"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/document-monitor/internal/agent/document"
	"github.com/feichai0017/document-monitor/internal/models"
	"github.com/feichai0017/document-monitor/pkg/errors"
	"github.com/feichai0017/document-monitor/pkg/logger"
)

// ErrUnavailable means the OCR tooling is missing or cannot start.
// Callers treat it as "no text" rather than a failure.
var ErrUnavailable = errors.New("ocr engine unavailable")

// Engine recognises text in a single encoded image.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, img []byte) (string, error)
	Close() error
}

// PageImage is an image embedded in a PDF page.
type PageImage struct {
	Page     int
	Data     []byte
	FileType string
}

// PageImageSource yields the images to OCR for a PDF.
type PageImageSource func(pdf []byte) ([]PageImage, error)

// ExtractPageImages pulls the raster images out of every page. Scanned
// documents carry one full-page image per page, which is what OCR needs.
func ExtractPageImages(data []byte) (images []PageImage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("pdfcpu panic: %v", r)
		}
	}()

	conf := model.NewDefaultConfiguration()
	pages, err := api.ExtractImagesRaw(bytes.NewReader(data), nil, conf)
	if err != nil {
		return nil, errors.Wrap(err, "extract page images")
	}

	return pageImages(pages)
}

// pageImages flattens pdfcpu's per-page maps into page order, and object
// number order within a page.
func pageImages(pages []map[int]model.Image) ([]PageImage, error) {
	var images []PageImage
	for _, byObj := range pages {
		objNrs := make([]int, 0, len(byObj))
		for nr := range byObj {
			objNrs = append(objNrs, nr)
		}
		sort.Ints(objNrs)

		for _, nr := range objNrs {
			img := byObj[nr]
			var buf bytes.Buffer
			if img.Reader != nil {
				if _, err := buf.ReadFrom(img); err != nil {
					return nil, errors.Wrapf(err, "read image %s on page %d", img.Name, img.PageNr)
				}
			}
			images = append(images, PageImage{Page: img.PageNr, Data: buf.Bytes(), FileType: img.FileType})
		}
	}
	sort.SliceStable(images, func(i, j int) bool { return images[i].Page < images[j].Page })
	return images, nil
}

// OCRProcessor renders PDF pages to images and runs an Engine over them.
type OCRProcessor struct {
	engine  Engine
	source  PageImageSource
	workers int
	logger  logger.Logger
}

func NewOCRProcessor(engine Engine, workers int, log logger.Logger) *OCRProcessor {
	if workers <= 0 {
		workers = 1
	}
	return &OCRProcessor{
		engine:  engine,
		source:  ExtractPageImages,
		workers: workers,
		logger:  log.Named("ocr"),
	}
}

// WithImageSource swaps the page image source.
func (p *OCRProcessor) WithImageSource(src PageImageSource) *OCRProcessor {
	p.source = src
	return p
}

func (p *OCRProcessor) CanProcess(mimeType string) bool {
	return mimeType == "application/pdf"
}

// Process returns ocr_paragraph segments in page order. Pages whose images
// fail to recognise are skipped; an unavailable engine yields ErrUnavailable.
func (p *OCRProcessor) Process(ctx context.Context, data []byte, progress document.ProgressFunc) ([]models.Segment, error) {
	if p.engine == nil {
		return nil, ErrUnavailable
	}

	images, err := p.source(data)
	if err != nil {
		return nil, errors.Mark(err, errors.ErrExtractionFailed)
	}
	if len(images) == 0 {
		return nil, nil
	}

	texts := make([]string, len(images))
	var done atomic.Int32
	var unavailable atomic.Bool

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i := range images {
		i := i
		g.Go(func() error {
			text, err := p.engine.Recognize(gctx, images[i].Data)
			switch {
			case errors.Is(err, ErrUnavailable):
				unavailable.Store(true)
				return err
			case err != nil:
				p.logger.Warn("OCR failed for page image",
					logger.String("engine", p.engine.Name()),
					logger.Int("page", images[i].Page),
					logger.Error(err),
				)
			default:
				texts[i] = text
			}
			n := int(done.Add(1))
			if progress != nil && document.ShouldReport(n, len(images)) {
				progress(n, len(images))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if unavailable.Load() {
			return nil, ErrUnavailable
		}
		return nil, err
	}

	// images are sorted by page; join multiple images on one page
	var segments []models.Segment
	for i := 0; i < len(images); {
		page := images[i].Page
		var parts []string
		for ; i < len(images) && images[i].Page == page; i++ {
			if t := strings.TrimSpace(texts[i]); t != "" {
				parts = append(parts, t)
			}
		}
		segments = append(segments, document.PageSegments(page, strings.Join(parts, "\n\n"), models.SegmentOCRParagraph)...)
	}

	p.logger.Info("OCR fallback finished",
		logger.String("engine", p.engine.Name()),
		logger.Int("images", len(images)),
		logger.Int("segments", len(segments)),
	)
	return segments, nil
}

func (p *OCRProcessor) Close() error {
	if p.engine == nil {
		return nil
	}
	return p.engine.Close()
}
