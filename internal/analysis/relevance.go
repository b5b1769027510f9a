package analysis

import (
	"sort"
	"strings"

	"github.com/feichai0017/document-monitor/internal/models"
)

// ContextWindow is how many pages on either side of a keyword hit are kept.
const ContextWindow = 2

// PageSet is a set of page numbers. A nil PageSet returned by RelevantPages
// means every page is relevant.
type PageSet map[int]struct{}

func (s PageSet) Contains(page int) bool {
	_, ok := s[page]
	return ok
}

// Sorted returns the pages in ascending order.
func (s PageSet) Sorted() []int {
	pages := make([]int, 0, len(s))
	for p := range s {
		pages = append(pages, p)
	}
	sort.Ints(pages)
	return pages
}

// MatchedPages returns the pages of non-ignored segments whose normalized
// text contains any keyword, compared case-insensitively.
func MatchedPages(segments []models.Segment, keywords []string) PageSet {
	lowered := lowerKeywords(keywords)
	matched := make(PageSet)
	for _, seg := range segments {
		if seg.Ignored || matched.Contains(seg.Page) {
			continue
		}
		text := strings.ToLower(seg.NormalizedText)
		for _, kw := range lowered {
			if strings.Contains(text, kw) {
				matched[seg.Page] = struct{}{}
				break
			}
		}
	}
	return matched
}

// ExpandWindow widens every matched page by window pages on each side.
func ExpandWindow(matched PageSet, window int) PageSet {
	relevant := make(PageSet, len(matched)*(2*window+1))
	for p := range matched {
		for d := -window; d <= window; d++ {
			relevant[p+d] = struct{}{}
		}
	}
	return relevant
}

// RelevantPages returns nil when keywords is empty, meaning all pages.
func RelevantPages(segments []models.Segment, keywords []string) (matched, relevant PageSet) {
	if len(lowerKeywords(keywords)) == 0 {
		return nil, nil
	}
	matched = MatchedPages(segments, keywords)
	return matched, ExpandWindow(matched, ContextWindow)
}

// SelectForEmbedding returns the normalized texts of the non-ignored
// segments on relevant pages, in document order.
func SelectForEmbedding(segments []models.Segment, relevant PageSet) []string {
	texts := make([]string, 0, len(segments))
	for _, seg := range segments {
		if seg.Ignored {
			continue
		}
		if relevant != nil && !relevant.Contains(seg.Page) {
			continue
		}
		texts = append(texts, seg.NormalizedText)
	}
	return texts
}

func lowerKeywords(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			out = append(out, kw)
		}
	}
	return out
}
