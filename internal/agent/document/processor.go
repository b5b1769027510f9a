package document

import (
	"context"
	"regexp"
	"strings"

	"github.com/feichai0017/document-monitor/internal/models"
)

// ProgressFunc receives (processed pages, total pages). It may be called from
// a worker goroutine.
type ProgressFunc func(page, total int)

// Processor 文档处理器接口
type Processor interface {
	// CanProcess 检查是否可以处理指定MIME类型的文件
	CanProcess(mimeType string) bool

	// Process 提取按页编号的文本片段，顺序与文档一致
	Process(ctx context.Context, data []byte, progress ProgressFunc) ([]models.Segment, error)

	// Close 清理资源
	Close() error
}

// ShouldReport throttles progress: every page for short documents, otherwise
// every 10th page and the last one.
func ShouldReport(page, total int) bool {
	if total < 20 {
		return true
	}
	return page%10 == 0 || page == total
}

var blankLine = regexp.MustCompile(`\n[ \t\r\f\v]*\n`)

// SplitParagraphs splits page text on blank lines and drops empty paragraphs.
func SplitParagraphs(text string) []string {
	parts := blankLine.Split(strings.ReplaceAll(text, "\r\n", "\n"), -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// PageSegments turns one page of text into segments of the given type.
func PageSegments(page int, text string, typ models.SegmentType) []models.Segment {
	paras := SplitParagraphs(text)
	segs := make([]models.Segment, 0, len(paras))
	for _, p := range paras {
		segs = append(segs, models.Segment{Page: page, Text: p, Type: typ})
	}
	return segs
}
