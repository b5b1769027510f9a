package analysis

import (
	"strings"

	"github.com/feichai0017/document-monitor/internal/models"
)

// MatchExcerptRunes bounds the text returned with each keyword match.
const MatchExcerptRunes = 300

// KeywordMatches rescans stored segments for the document's keywords. Each
// (segment, keyword) hit yields one match; ignored segments are skipped.
func KeywordMatches(segments []models.Segment, keywords []string) models.KeywordReport {
	report := models.KeywordReport{
		Matches:  []models.KeywordMatch{},
		Keywords: keywords,
	}
	if report.Keywords == nil {
		report.Keywords = []string{}
	}
	for _, seg := range segments {
		if seg.Ignored {
			continue
		}
		text := strings.ToLower(seg.Text)
		for _, kw := range keywords {
			needle := strings.ToLower(strings.TrimSpace(kw))
			if needle == "" || !strings.Contains(text, needle) {
				continue
			}
			report.Matches = append(report.Matches, models.KeywordMatch{
				Page:    seg.Page,
				Keyword: kw,
				Text:    truncateRunes(seg.Text, MatchExcerptRunes),
			})
		}
	}
	return report
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
