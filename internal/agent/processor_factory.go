package agent

import (
	"context"
	"fmt"
	"strings"

	cfg "github.com/feichai0017/document-monitor/config"
	"github.com/feichai0017/document-monitor/internal/agent/document"
	"github.com/feichai0017/document-monitor/internal/agent/document/html"
	"github.com/feichai0017/document-monitor/internal/agent/document/image"
	"github.com/feichai0017/document-monitor/internal/agent/document/pdf"
	"github.com/feichai0017/document-monitor/internal/models"
	"github.com/feichai0017/document-monitor/pkg/errors"
	"github.com/feichai0017/document-monitor/pkg/logger"
)

// Extractor turns fetched bytes into ordered segments, falling back to OCR
// when a PDF carries no native text.
type Extractor struct {
	processors map[string]document.Processor
	ocr        document.Processor
	logger     logger.Logger
}

// NewExtractor wires the PDF and HTML processors plus the configured OCR engine.
// An OCR engine that cannot be created is logged and left out.
func NewExtractor(ctx context.Context, c cfg.ExtractConfig, log logger.Logger) *Extractor {
	log = log.Named("extractor")

	var engine image.Engine
	switch strings.ToLower(c.OCREngine) {
	case "tesseract":
		opts := image.DefaultTesseractOptions()
		opts.Language = c.OCRLanguages
		e, err := image.NewTesseractEngine(opts, log)
		if err != nil {
			log.Warn("Tesseract unavailable, OCR fallback disabled", logger.Error(err))
		} else {
			engine = e
		}
	case "textract":
		e, err := image.NewTextractEngine(ctx, c.Textract, log)
		if err != nil {
			log.Warn("Textract unavailable, OCR fallback disabled", logger.Error(err))
		} else {
			engine = e
		}
	}

	var ocr document.Processor
	if engine != nil {
		ocr = image.NewOCRProcessor(engine, c.Workers, log)
	}
	return NewExtractorWith(log, ocr, pdf.NewProcessor(log), html.NewProcessor(log))
}

// NewExtractorWith builds an Extractor from explicit processors. ocr may be nil.
func NewExtractorWith(log logger.Logger, ocr document.Processor, processors ...document.Processor) *Extractor {
	e := &Extractor{
		processors: make(map[string]document.Processor),
		ocr:        ocr,
		logger:     log,
	}
	for _, mt := range []string{pdf.MimeType, html.MimeType} {
		for _, p := range processors {
			if p.CanProcess(mt) {
				e.processors[mt] = p
				break
			}
		}
	}
	return e
}

// canonicalType folds content type variants onto the processor keys:
// anything naming pdf is a PDF, anything naming html is HTML.
func canonicalType(contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	switch {
	case strings.Contains(ct, "pdf"):
		return pdf.MimeType
	case strings.Contains(ct, "html"):
		return html.MimeType
	}
	return ct
}

func (e *Extractor) GetProcessor(mimeType string) (document.Processor, error) {
	p, ok := e.processors[canonicalType(mimeType)]
	if !ok {
		return nil, fmt.Errorf("no processor found for mime type: %s", mimeType)
	}
	return p, nil
}

// Extract returns the segments for data. Content types without a processor
// and PDFs with neither native text nor usable OCR yield an empty list.
func (e *Extractor) Extract(ctx context.Context, data []byte, contentType string, progress document.ProgressFunc) ([]models.Segment, error) {
	processor, err := e.GetProcessor(contentType)
	if err != nil {
		e.logger.Warn("Unsupported content type, no segments extracted", logger.String("content_type", contentType))
		return []models.Segment{}, nil
	}

	segments, err := processor.Process(ctx, data, progress)
	if err != nil {
		return nil, errors.Classify(err, errors.ErrExtractionFailed)
	}
	if len(segments) > 0 || canonicalType(contentType) != pdf.MimeType {
		return segments, nil
	}

	if e.ocr == nil {
		e.logger.Info("No native text and OCR is not configured")
		return []models.Segment{}, nil
	}

	e.logger.Info("No native text found, falling back to OCR")
	segments, err = e.ocr.Process(ctx, data, progress)
	switch {
	case errors.Is(err, image.ErrUnavailable):
		e.logger.Warn("OCR tooling unavailable, returning no segments")
		return []models.Segment{}, nil
	case err != nil:
		if ctx.Err() != nil {
			return nil, err
		}
		e.logger.Warn("OCR fallback failed, returning no segments", logger.Error(err))
		return []models.Segment{}, nil
	}
	if segments == nil {
		segments = []models.Segment{}
	}
	return segments, nil
}

func (e *Extractor) Close() error {
	var firstErr error
	for _, p := range e.processors {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if e.ocr != nil {
		if err := e.ocr.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
