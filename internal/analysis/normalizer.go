package analysis

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/feichai0017/document-monitor/internal/models"
)

// DateToken replaces ISO dates in normalized text.
const DateToken = "[DATE]"

var isoDate = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)

// Normalize returns a copy of segments with NormalizedText filled in and
// page-number-only segments marked ignored. Text is never modified.
func Normalize(segments []models.Segment) []models.Segment {
	out := make([]models.Segment, len(segments))
	for i, seg := range segments {
		seg.NormalizedText = isoDate.ReplaceAllString(seg.Text, DateToken)
		if isPageNumber(seg.Text) {
			seg.Ignored = true
			seg.Reason = models.IgnoreReasonPageNumber
		}
		out[i] = seg
	}
	return out
}

// isPageNumber 去空白后少于 5 个字符且全部为数字
func isPageNumber(text string) bool {
	t := strings.TrimSpace(text)
	if t == "" || len([]rune(t)) >= 5 {
		return false
	}
	for _, r := range t {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
