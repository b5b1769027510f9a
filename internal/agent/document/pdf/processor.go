package pdf

import (
	"bytes"
	"context"
	"fmt"

	"github.com/ledongthuc/pdf"

	"github.com/feichai0017/document-monitor/internal/agent/document"
	"github.com/feichai0017/document-monitor/internal/models"
	"github.com/feichai0017/document-monitor/pkg/errors"
	"github.com/feichai0017/document-monitor/pkg/logger"
)

const MimeType = "application/pdf"

type Processor struct {
	logger logger.Logger
}

func NewProcessor(log logger.Logger) *Processor {
	return &Processor{
		logger: log.Named("pdf"),
	}
}

func (p *Processor) CanProcess(mimeType string) bool {
	return mimeType == MimeType
}

// Process extracts native text page by page. Pages are read sequentially
// because the reader shares one underlying ReaderAt and object cache.
func (p *Processor) Process(ctx context.Context, content []byte, progress document.ProgressFunc) (segments []models.Segment, err error) {
	// 解析器遇到损坏的文件可能 panic
	defer func() {
		if r := recover(); r != nil {
			segments = nil
			err = errors.Mark(errors.Newf("pdf parser panic: %v", r), errors.ErrExtractionFailed)
		}
	}()

	reader := bytes.NewReader(content)
	pdfReader, err := pdf.NewReader(reader, reader.Size())
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "open pdf"), errors.ErrExtractionFailed)
	}

	numPages := pdfReader.NumPage()
	segments = make([]models.Segment, 0, numPages)

	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := pdfReader.Page(i)
		if !page.V.IsNull() {
			text, err := page.GetPlainText(nil)
			if err != nil {
				return nil, errors.Mark(fmt.Errorf("failed to get text from page %d: %w", i, err), errors.ErrExtractionFailed)
			}
			segments = append(segments, document.PageSegments(i, text, models.SegmentParagraph)...)
		}

		if progress != nil && document.ShouldReport(i, numPages) {
			progress(i, numPages)
		}
	}

	p.logger.Debug("Extracted pdf text",
		logger.Int("pages", numPages),
		logger.Int("segments", len(segments)),
	)
	return segments, nil
}

// PageCount returns the number of pages, used to size OCR fallback work.
func PageCount(content []byte) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf parser panic: %v", r)
		}
	}()
	reader := bytes.NewReader(content)
	pdfReader, err := pdf.NewReader(reader, reader.Size())
	if err != nil {
		return 0, err
	}
	return pdfReader.NumPage(), nil
}

// Close 实现 document.Processor 接口的 Close 方法
func (p *Processor) Close() error {
	return nil
}
