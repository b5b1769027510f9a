// internal/utils/validator/document.go
package validator

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/feichai0017/document-monitor/internal/fetcher"
	"github.com/feichai0017/document-monitor/internal/models"
	"github.com/feichai0017/document-monitor/internal/service/scheduler"
	"github.com/feichai0017/document-monitor/pkg/errors"
	"github.com/feichai0017/document-monitor/pkg/logger"
)

// DocumentValidator 文档验证器
type DocumentValidator struct {
	logger logger.Logger
	config *ValidatorConfig
}

// ValidatorConfig 验证器配置
type ValidatorConfig struct {
	MaxFileSize  int64               // 上传文件最大字节数
	AllowedTypes map[string][]string // 允许的文件类型 {扩展名: []MIME类型}
}

// ValidationResult 验证结果
type ValidationResult struct {
	IsValid  bool              `json:"isValid"`
	Errors   []ValidationError `json:"errors,omitempty"`
	FileInfo *FileInfo         `json:"fileInfo,omitempty"`
}

// ValidationError 验证错误
type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// FileInfo 文件信息
type FileInfo struct {
	Filename  string `json:"filename"`
	Size      int64  `json:"size"`
	MimeType  string `json:"mimeType"`
	Extension string `json:"extension"`
	Hash      string `json:"hash"`
}

// NewDocumentValidator 创建新的文档验证器
func NewDocumentValidator(log logger.Logger, config *ValidatorConfig) *DocumentValidator {
	if config == nil {
		config = &ValidatorConfig{
			MaxFileSize: 50 * 1024 * 1024, // 50MB
			AllowedTypes: map[string][]string{
				".pdf":  {"application/pdf"},
				".html": {"text/html; charset=utf-8", "text/html"},
				".htm":  {"text/html; charset=utf-8", "text/html"},
				".json": {"text/plain; charset=utf-8", "application/json"},
			},
		}
	}
	return &DocumentValidator{logger: log, config: config}
}

func (r *ValidationResult) add(code, field, format string, args ...interface{}) {
	r.IsValid = false
	r.Errors = append(r.Errors, ValidationError{Code: code, Field: field, Message: fmt.Sprintf(format, args...)})
}

// Err folds the result into an ErrInvalidRequest error, nil when valid.
func (r *ValidationResult) Err() error {
	if r.IsValid {
		return nil
	}
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Message)
	}
	return errors.Invalidf("%s", strings.Join(msgs, "; "))
}

// ValidateConfig checks a DocumentConfig and normalizes it in place:
// strings are trimmed, empty keywords dropped and the schedule resolved
// against its default.
func (v *DocumentValidator) ValidateConfig(cfg *models.DocumentConfig) *ValidationResult {
	result := &ValidationResult{IsValid: true}

	cfg.ApplicationName = strings.TrimSpace(cfg.ApplicationName)
	cfg.DocumentName = strings.TrimSpace(cfg.DocumentName)
	cfg.URL = strings.TrimSpace(cfg.URL)

	if cfg.ApplicationName == "" {
		result.add("REQUIRED", "application_name", "application_name is required")
	}
	if cfg.DocumentName == "" {
		result.add("REQUIRED", "document_name", "document_name is required")
	}

	if cfg.URL == "" {
		result.add("REQUIRED", "url", "url is required")
	} else if u, err := url.Parse(cfg.URL); err != nil {
		result.add("INVALID_URL", "url", "url %q is not valid: %v", cfg.URL, err)
	} else {
		switch strings.ToLower(u.Scheme) {
		case "http", "https":
			if u.Host == "" {
				result.add("INVALID_URL", "url", "url %q has no host", cfg.URL)
			}
		case fetcher.InternalScheme:
		default:
			result.add("INVALID_URL", "url", "url scheme %q is not supported", u.Scheme)
		}
	}

	keywords := make([]string, 0, len(cfg.Keywords))
	for _, k := range cfg.Keywords {
		if k = strings.TrimSpace(k); k != "" {
			keywords = append(keywords, k)
		}
	}
	cfg.Keywords = keywords

	schedule := strings.TrimSpace(cfg.ScheduleOrDefault())
	cfg.Schedule = &schedule
	if schedule != "" {
		if _, err := scheduler.ResolveSchedule(schedule); err != nil {
			result.add("INVALID_SCHEDULE", "schedule", "%v", err)
		}
	}

	if !result.IsValid {
		v.logger.Debug("Document config rejected", logger.Any("errors", result.Errors))
	}
	return result
}

// ValidateUpload checks an uploaded file's size, extension and sniffed
// content type and fills in its sha256.
func (v *DocumentValidator) ValidateUpload(file *multipart.FileHeader) (*ValidationResult, error) {
	info := &FileInfo{
		Filename:  filepath.Base(file.Filename),
		Size:      file.Size,
		Extension: strings.ToLower(filepath.Ext(file.Filename)),
	}
	result := &ValidationResult{IsValid: true, FileInfo: info}

	if info.Size > v.config.MaxFileSize {
		result.add("FILE_TOO_LARGE", "size", "File size exceeds maximum limit of %d bytes", v.config.MaxFileSize)
	}
	allowed, ok := v.config.AllowedTypes[info.Extension]
	if !ok {
		result.add("INVALID_FILE_TYPE", "extension", "File type %s is not allowed", info.Extension)
		return result, nil
	}

	f, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	// 读取文件头部
	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	info.MimeType = http.DetectContentType(head[:n])

	// 计算文件哈希
	hash := sha256.New()
	hash.Write(head[:n])
	if _, err := io.Copy(hash, f); err != nil {
		return nil, fmt.Errorf("failed to calculate hash: %w", err)
	}
	info.Hash = hex.EncodeToString(hash.Sum(nil))

	if !containsString(allowed, info.MimeType) {
		result.add("INVALID_MIME_TYPE", "mimeType", "Invalid MIME type %s for extension %s", info.MimeType, info.Extension)
	}
	return result, nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
