package html

import (
	"context"

	"github.com/feichai0017/document-monitor/internal/agent/document"
	"github.com/feichai0017/document-monitor/internal/models"
	"github.com/feichai0017/document-monitor/pkg/logger"
)

const MimeType = "text/html"

// Processor accepts HTML sources but does not extract text from them yet;
// callers receive an empty segment list.
type Processor struct {
	logger logger.Logger
}

func NewProcessor(log logger.Logger) *Processor {
	return &Processor{logger: log.Named("html")}
}

func (p *Processor) CanProcess(mimeType string) bool {
	return mimeType == MimeType
}

// TODO: extract visible text per block element once a DOM parser is wired in.
func (p *Processor) Process(ctx context.Context, data []byte, progress document.ProgressFunc) ([]models.Segment, error) {
	p.logger.Debug("HTML extraction not implemented, returning no segments", logger.Int("bytes", len(data)))
	return []models.Segment{}, nil
}

func (p *Processor) Close() error { return nil }
