package document

import (
	"testing"

	"github.com/feichai0017/document-monitor/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestSplitParagraphs(t *testing.T) {
	text := "Terms of service\n\n  Section 1 applies.\nContinued line.\n \n\n\nFinal clause\r\n\r\n"
	assert.Equal(t, []string{
		"Terms of service",
		"Section 1 applies.\nContinued line.",
		"Final clause",
	}, SplitParagraphs(text))

	assert.Empty(t, SplitParagraphs(" \n\n \t "))
}

func TestShouldReport(t *testing.T) {
	for p := 1; p <= 19; p++ {
		assert.True(t, ShouldReport(p, 19), "page %d of 19", p)
	}

	var reported []int
	for p := 1; p <= 25; p++ {
		if ShouldReport(p, 25) {
			reported = append(reported, p)
		}
	}
	assert.Equal(t, []int{10, 20, 25}, reported)
}

func TestPageSegments(t *testing.T) {
	segs := PageSegments(4, "a\n\nb", models.SegmentOCRParagraph)
	assert.Equal(t, []models.Segment{
		{Page: 4, Text: "a", Type: models.SegmentOCRParagraph},
		{Page: 4, Text: "b", Type: models.SegmentOCRParagraph},
	}, segs)
}
