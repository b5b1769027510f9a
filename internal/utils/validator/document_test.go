package validator

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/document-monitor/internal/models"
	"github.com/feichai0017/document-monitor/pkg/errors"
	"github.com/feichai0017/document-monitor/pkg/logger"
)

func strPtr(s string) *string { return &s }

func validConfig() models.DocumentConfig {
	return models.DocumentConfig{
		ApplicationName: " Acme ",
		DocumentName:    "Terms",
		URL:             "https://example.com/terms.pdf",
		Keywords:        []string{" penalty ", "", "  ", "fee"},
	}
}

func TestValidateConfigNormalizes(t *testing.T) {
	v := NewDocumentValidator(logger.NewTestLogger(), nil)
	cfg := validConfig()

	res := v.ValidateConfig(&cfg)
	require.NoError(t, res.Err())
	assert.Equal(t, "Acme", cfg.ApplicationName)
	assert.Equal(t, []string{"penalty", "fee"}, cfg.Keywords)
	require.NotNil(t, cfg.Schedule)
	assert.Equal(t, models.DefaultSchedule, *cfg.Schedule)
}

func TestValidateConfigSchedules(t *testing.T) {
	v := NewDocumentValidator(logger.NewTestLogger(), nil)
	for _, s := range []string{"", "daily", "WEEKLY", "*/5 * * * *"} {
		cfg := validConfig()
		cfg.Schedule = strPtr(s)
		assert.True(t, v.ValidateConfig(&cfg).IsValid, s)
	}
	for _, s := range []string{"hourly", "* * * *", "0 0 * * * *", "61 * * * *"} {
		cfg := validConfig()
		cfg.Schedule = strPtr(s)
		res := v.ValidateConfig(&cfg)
		assert.False(t, res.IsValid, s)
		assert.Equal(t, "schedule", res.Errors[0].Field)
	}
}

func TestValidateConfigRejects(t *testing.T) {
	v := NewDocumentValidator(logger.NewTestLogger(), nil)
	cases := map[string]func(*models.DocumentConfig){
		"application_name": func(c *models.DocumentConfig) { c.ApplicationName = "  " },
		"document_name":    func(c *models.DocumentConfig) { c.DocumentName = "" },
		"url":              func(c *models.DocumentConfig) { c.URL = "ftp://example.com/x" },
	}
	for field, mutate := range cases {
		cfg := validConfig()
		mutate(&cfg)
		res := v.ValidateConfig(&cfg)
		require.False(t, res.IsValid, field)
		assert.Equal(t, field, res.Errors[0].Field)
		assert.True(t, errors.IsInvalid(res.Err()))
	}

	cfg := validConfig()
	cfg.URL = "internal://uploads/20260101_000000_terms.pdf"
	assert.True(t, v.ValidateConfig(&cfg).IsValid)

	cfg = validConfig()
	cfg.URL = "https://"
	assert.False(t, v.ValidateConfig(&cfg).IsValid)
}

func uploadHeader(t *testing.T, filename string, body []byte) *multipart.FileHeader {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(body)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(1<<20))
	return req.MultipartForm.File["file"][0]
}

func TestValidateUpload(t *testing.T) {
	v := NewDocumentValidator(logger.NewTestLogger(), nil)

	res, err := v.ValidateUpload(uploadHeader(t, "terms.pdf", []byte("%PDF-1.7\n...")))
	require.NoError(t, err)
	assert.True(t, res.IsValid)
	assert.Equal(t, "application/pdf", res.FileInfo.MimeType)
	assert.Len(t, res.FileInfo.Hash, 64)

	res, err = v.ValidateUpload(uploadHeader(t, "terms.pdf", []byte("plain text")))
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	assert.Equal(t, "INVALID_MIME_TYPE", res.Errors[0].Code)

	res, err = v.ValidateUpload(uploadHeader(t, "virus.exe", []byte("MZ")))
	require.NoError(t, err)
	assert.Equal(t, "INVALID_FILE_TYPE", res.Errors[0].Code)
}

func TestValidateUploadSizeLimit(t *testing.T) {
	v := NewDocumentValidator(logger.NewTestLogger(), &ValidatorConfig{
		MaxFileSize:  4,
		AllowedTypes: map[string][]string{".pdf": {"application/pdf"}},
	})
	res, err := v.ValidateUpload(uploadHeader(t, "a.pdf", []byte("%PDF-1.7")))
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	assert.Equal(t, "FILE_TOO_LARGE", res.Errors[0].Code)
}
