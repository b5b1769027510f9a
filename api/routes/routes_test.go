package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/document-monitor/api/handlers"
	"github.com/feichai0017/document-monitor/internal/models"
	"github.com/feichai0017/document-monitor/internal/service/document"
	"github.com/feichai0017/document-monitor/pkg/errors"
	"github.com/feichai0017/document-monitor/pkg/logger"
)

type fakeDocs struct {
	document.DocumentService
	docs     map[string]*models.Document
	uploaded string
}

func (f *fakeDocs) Create(ctx context.Context, cfg models.DocumentConfig) (*document.DocumentResult, error) {
	if cfg.URL == "" {
		return nil, errors.Invalidf("url is required")
	}
	doc := &models.Document{ID: "d1", ApplicationName: cfg.ApplicationName, Name: cfg.DocumentName, URL: cfg.URL}
	f.docs[doc.ID] = doc
	return &document.DocumentResult{Document: doc, LatestExecutionID: "e1"}, nil
}

func (f *fakeDocs) Get(ctx context.Context, id string) (*models.Document, error) {
	if d, ok := f.docs[id]; ok {
		return d, nil
	}
	return nil, errors.NotFoundf("document %s not found", id)
}

func (f *fakeDocs) List(ctx context.Context, skip, limit int) ([]*models.Document, error) {
	out := []*models.Document{}
	for _, d := range f.docs {
		out = append(out, d)
	}
	return out, nil
}

func (f *fakeDocs) KeywordMatches(ctx context.Context, id string) (*models.KeywordReport, error) {
	return nil, errors.New("disk on fire")
}

func (f *fakeDocs) Upload(ctx context.Context, filename string, data []byte, ct string) (*document.UploadResult, error) {
	f.uploaded = ct
	return &document.UploadResult{URL: "internal://uploads/x_" + filename, Filename: filename}, nil
}

type fakeExecs struct {
	triggered [][]string
}

func (f *fakeExecs) Trigger(ctx context.Context, ids []string) (string, error) {
	f.triggered = append(f.triggered, ids)
	return "exec-42", nil
}

func (f *fakeExecs) Get(ctx context.Context, id string) (*models.Execution, error) {
	if id != "exec-42" {
		return nil, errors.NotFoundf("execution %s not found", id)
	}
	return &models.Execution{ID: id, Status: models.StatusCompleted, Steps: []models.Step{}}, nil
}

func (f *fakeExecs) List(ctx context.Context, skip, limit int) ([]*models.Execution, error) {
	return []*models.Execution{}, nil
}

func (f *fakeExecs) Targets(ctx context.Context, id string) ([]*models.Document, error) {
	return []*models.Document{{ID: "d1"}}, nil
}

type fakeStats struct{}

func (fakeStats) Stats(ctx context.Context) (*models.Stats, error) {
	return &models.Stats{DocumentsCount: 3, ExecutionsCount: 2, VersionsCount: 1}, nil
}

type fakeJobs struct{}

func (fakeJobs) JobCount() int { return 7 }

func newRouter(t *testing.T) (*gin.Engine, *fakeDocs, *fakeExecs) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	docs := &fakeDocs{docs: map[string]*models.Document{}}
	execs := &fakeExecs{}
	log := logger.NewTestLogger()
	r := gin.New()
	SetupRoutes(r, handlers.NewHandlers(docs, execs, fakeStats{}, fakeJobs{}, log), []string{"*"}, log)
	return r, docs, execs
}

func do(r http.Handler, method, target string, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateAndGetDocument(t *testing.T) {
	r, _, _ := newRouter(t)

	w := do(r, http.MethodPost, "/api/v1/documents", `{"application_name":"billing","document_name":"Terms","url":"https://x/t.pdf"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var created map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "d1", created["id"])
	assert.Equal(t, "e1", created["latest_execution_id"])

	w = do(r, http.MethodGet, "/api/v1/documents/d1", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodGet, "/api/v1/documents/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestErrorMapping(t *testing.T) {
	r, _, _ := newRouter(t)

	w := do(r, http.MethodPost, "/api/v1/documents", `{"application_name":"billing"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	var invalid handlers.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &invalid))
	assert.Contains(t, invalid.Error, "url is required")

	w = do(r, http.MethodPost, "/api/v1/documents", `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodGet, "/api/v1/versions/v1/matches", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var body handlers.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Empty(t, body.Error)
	assert.NotEmpty(t, body.Message)
	assert.NotContains(t, w.Body.String(), "disk on fire")

	w = do(r, http.MethodGet, "/api/v1/documents?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRunExecution(t *testing.T) {
	r, _, execs := newRouter(t)

	w := do(r, http.MethodPost, "/api/v1/executions/run", `{"document_ids":["d1"]}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"execution_id":"exec-42","status":"pending"}`, w.Body.String())

	w = do(r, http.MethodPost, "/api/v1/executions/run", "")
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, [][]string{{"d1"}, nil}, execs.triggered)

	w = do(r, http.MethodGet, "/api/v1/executions/exec-42", "")
	require.Equal(t, http.StatusOK, w.Code)
	var detail map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &detail))
	assert.Equal(t, "completed", detail["status"])
	assert.Len(t, detail["documents"], 1)

	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/api/v1/executions/other", "").Code)
}

func TestSystemRoutes(t *testing.T) {
	r, _, _ := newRouter(t)

	w := do(r, http.MethodGet, "/api/v1/health", "")
	assert.JSONEq(t, `{"status":"ok","scheduled_jobs":7}`, w.Body.String())

	w = do(r, http.MethodGet, "/api/v1/stats", "")
	assert.JSONEq(t, `{"documents_count":3,"executions_count":2,"versions_count":1}`, w.Body.String())

	w = do(r, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "monitor_http_request_duration_seconds")
}

func TestUpload(t *testing.T) {
	r, docs, _ := newRouter(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "terms.pdf")
	require.NoError(t, err)
	_, err = fw.Write([]byte("%PDF-1.7 body"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"url":"internal://uploads/x_terms.pdf","filename":"terms.pdf"}`, w.Body.String())
	assert.Equal(t, "application/pdf", docs.uploaded)

	w = do(r, http.MethodPost, "/api/v1/upload", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
