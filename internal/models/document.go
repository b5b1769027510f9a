package models

import (
	"time"
)

// Document 被监控的文档配置
type Document struct {
	ID              string    `json:"id"`
	ApplicationName string    `json:"application_name"`
	Name            string    `json:"name"`
	URL             string    `json:"url"`
	Keywords        []string  `json:"keywords"`
	Schedule        string    `json:"schedule,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// DocumentConfig is the user-supplied shape of a Document.
type DocumentConfig struct {
	ApplicationName string   `json:"application_name" yaml:"application_name"`
	DocumentName    string   `json:"document_name" yaml:"document_name"`
	URL             string   `json:"url" yaml:"url"`
	Keywords        []string `json:"keywords" yaml:"keywords"`
	Schedule        *string  `json:"schedule" yaml:"schedule"`
}

// DefaultSchedule applies when a DocumentConfig omits the schedule field.
const DefaultSchedule = "weekly"

// ScheduleOrDefault returns the configured schedule; nil means DefaultSchedule
// and an explicit empty string means unscheduled.
func (c DocumentConfig) ScheduleOrDefault() string {
	if c.Schedule == nil {
		return DefaultSchedule
	}
	return *c.Schedule
}

// SegmentType 文本片段类型
type SegmentType string

const (
	SegmentParagraph    SegmentType = "paragraph"
	SegmentOCRParagraph SegmentType = "ocr_paragraph"
)

// IgnoreReasonPageNumber marks segments that only carry a page number.
const IgnoreReasonPageNumber = "page_number"

// Segment 文档中按页编号的文本片段
type Segment struct {
	Page           int         `json:"page"`
	Text           string      `json:"text"`
	Type           SegmentType `json:"type"`
	NormalizedText string      `json:"normalized_text"`
	Ignored        bool        `json:"ignored,omitempty"`
	Reason         string      `json:"reason,omitempty"`
}

// Version is one successful processing of a Document within an Execution.
type Version struct {
	ID                string    `json:"id"`
	DocumentID        string    `json:"document_id"`
	ExecutionID       string    `json:"execution_id"`
	Timestamp         time.Time `json:"timestamp"`
	ContentHash       string    `json:"content_hash"`
	GCSPath           string    `json:"gcs_path"`
	ExtractedTextPath string    `json:"extracted_text_path"`
	EmbeddingsPath    string    `json:"embeddings_path"`
	SemanticScore     float64   `json:"semantic_score"`
}

// KeywordMatch is one keyword hit inside a stored Version.
type KeywordMatch struct {
	Page    int    `json:"page"`
	Keyword string `json:"keyword"`
	Text    string `json:"text"`
}

// KeywordReport answers the keyword-match query for a Version.
type KeywordReport struct {
	Matches  []KeywordMatch `json:"matches"`
	Keywords []string       `json:"keywords"`
}

// Stats 汇总计数
type Stats struct {
	DocumentsCount  int `json:"documents_count"`
	ExecutionsCount int `json:"executions_count"`
	VersionsCount   int `json:"versions_count"`
}
