package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/document-monitor/internal/agent/document"
	"github.com/feichai0017/document-monitor/internal/embedding"
	"github.com/feichai0017/document-monitor/internal/fetcher"
	"github.com/feichai0017/document-monitor/internal/ledger"
	"github.com/feichai0017/document-monitor/internal/models"
	"github.com/feichai0017/document-monitor/internal/store"
	"github.com/feichai0017/document-monitor/pkg/converters"
	"github.com/feichai0017/document-monitor/pkg/errors"
	"github.com/feichai0017/document-monitor/pkg/logger"
	"github.com/feichai0017/document-monitor/pkg/storage"
	"github.com/feichai0017/document-monitor/pkg/storage/local"
)

type fakeFetcher struct {
	bodies map[string]string
	errs   map[string]error
}

func (f *fakeFetcher) Fetch(ctx context.Context, rawURL string) (*fetcher.Result, error) {
	if err, ok := f.errs[rawURL]; ok {
		return nil, err
	}
	return &fetcher.Result{Data: []byte(f.bodies[rawURL]), ContentType: fetcher.ContentTypePDF}, nil
}

// pageExtractor treats the body as pages separated by form feeds.
type pageExtractor struct{}

func (pageExtractor) Extract(ctx context.Context, data []byte, ct string, progress document.ProgressFunc) ([]models.Segment, error) {
	pages := strings.Split(string(data), "\f")
	var segs []models.Segment
	for i, text := range pages {
		segs = append(segs, document.PageSegments(i+1, text, models.SegmentParagraph)...)
		if progress != nil && document.ShouldReport(i+1, len(pages)) {
			progress(i+1, len(pages))
		}
	}
	return segs, nil
}

type failingEmbedder struct{}

func (failingEmbedder) Name() string { return "broken" }
func (failingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.Mark(errors.New("quota exceeded"), errors.ErrEmbeddingFailed)
}

// flakyDownloads fails every embeddings.json download.
type flakyDownloads struct {
	storage.Storage
}

func (f flakyDownloads) Download(ctx context.Context, path string) ([]byte, error) {
	if strings.HasSuffix(path, "embeddings.json") {
		return nil, errors.Mark(errors.New("connection reset by peer"), errors.ErrStorageFailed)
	}
	return f.Storage.Download(ctx, path)
}

type harness struct {
	store   *store.Store
	ledger  *ledger.Ledger
	blobs   *local.LocalStorage
	fetcher *fakeFetcher
	log     *logger.TestLogger
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := logger.NewTestLogger()
	db, err := store.OpenWithMigrations(filepath.Join(t.TempDir(), "pipeline.db"), log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	blobs, err := local.NewLocalStorage(t.TempDir(), log)
	require.NoError(t, err)

	s := store.New(db, log)
	return &harness{
		store:   s,
		ledger:  ledger.New(s, log),
		blobs:   blobs,
		fetcher: &fakeFetcher{bodies: map[string]string{}, errs: map[string]error{}},
		log:     log,
	}
}

func (h *harness) orchestrator(p embedding.Provider) *Orchestrator {
	return NewOrchestrator(h.store, h.ledger, h.fetcher, pageExtractor{}, h.blobs, p, NewPool(2), h.log)
}

func (h *harness) addDocument(t *testing.T, id, url string, keywords []string, body string) {
	t.Helper()
	require.NoError(t, h.store.CreateDocument(context.Background(), &models.Document{
		ID: id, ApplicationName: "legal", Name: "doc-" + id, URL: url,
		Keywords: keywords, CreatedAt: time.Now().UTC(),
	}))
	h.fetcher.bodies[url] = body
}

func (h *harness) newExecution(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, h.store.CreateExecution(context.Background(), &models.Execution{
		ID: id, Status: models.StatusPending, StartTime: time.Now().UTC(),
	}))
}

func tenPages() string {
	pages := make([]string, 10)
	for i := range pages {
		pages[i] = fmt.Sprintf("Clause %d describes ordinary terms for section %d", i+1, i+1)
	}
	pages[5] = "A penalty of 5% applies from 2024-01-05 onwards"
	return strings.Join(pages, "\f")
}

func TestEndToEndFirstAndSecondRun(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.addDocument(t, "doc-1", "https://example.com/terms.pdf", []string{"penalty"}, tenPages())
	o := h.orchestrator(embedding.NewLocalEncoder(64))

	h.newExecution(t, "exec-0001-first")
	require.NoError(t, o.Run(ctx, "exec-0001-first", []string{"doc-1"}))

	exec, err := h.store.GetExecution(ctx, "exec-0001-first")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, exec.Status)
	assert.NotNil(t, exec.EndTime)
	require.Len(t, exec.Steps, len(models.PipelineSteps))
	for i, st := range exec.Steps {
		assert.Equal(t, models.PipelineSteps[i], st.Name)
		assert.Equal(t, models.StepCompleted, st.Status, st.Name)
	}
	filtering, _ := exec.FindStep(models.StepFiltering)
	assert.Contains(t, filtering.Details, "Matched pages [6], relevant pages [4 5 6 7 8]")

	first, err := h.store.LatestVersion(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 0.0, first.SemanticScore)
	assert.True(t, strings.HasPrefix(first.GCSPath, "legal/doc-doc-1/"))
	assert.True(t, strings.HasSuffix(first.GCSPath, "_exec-000/original.pdf"))

	raw, err := h.blobs.Download(ctx, first.EmbeddingsPath)
	require.NoError(t, err)
	vectors, err := converters.NewJSONConverter().DecodeEmbeddings(raw)
	require.NoError(t, err)
	assert.Len(t, vectors, 5, "only the five relevant pages are embedded")

	extracted, err := h.blobs.Download(ctx, first.ExtractedTextPath)
	require.NoError(t, err)
	assert.Equal(t, converters.ContentHash(extracted), first.ContentHash)
	assert.Contains(t, string(extracted), "[DATE]")

	h.newExecution(t, "exec-0002-second")
	require.NoError(t, o.Run(ctx, "exec-0002-second", []string{"doc-1"}))

	second, err := h.store.LatestVersion(ctx, "doc-1")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.NotEqual(t, first.GCSPath, second.GCSPath)
	assert.InDelta(t, 1.0, second.SemanticScore, 1e-6)
	assert.Equal(t, first.ContentHash, second.ContentHash)

	targets, err := h.store.ExecutionTargets(ctx, "exec-0002-second")
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, "doc-1", targets[0].ID)
}

func TestFailureContainment(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.addDocument(t, "a", "https://slow.example.com/a.pdf", nil, "")
	h.addDocument(t, "b", "https://example.com/b.pdf", nil, "hello world")
	h.fetcher.errs["https://slow.example.com/a.pdf"] = errors.Mark(errors.New("deadline exceeded"), errors.ErrTimeout)

	h.newExecution(t, "e1")
	require.NoError(t, h.orchestrator(embedding.NewLocalEncoder(16)).Run(ctx, "e1", []string{"a", "b"}))

	exec, err := h.store.GetExecution(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, exec.Status)
	assert.Contains(t, exec.Logs, "Download failed: deadline exceeded")
	assert.Contains(t, exec.Logs, "1/2 documents processed")

	_, err = h.store.LatestVersion(ctx, "a")
	assert.True(t, errors.IsNotFound(err))
	_, err = h.store.LatestVersion(ctx, "b")
	assert.NoError(t, err)
}

func TestAllDocumentsFailingFailsExecution(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	h.newExecution(t, "e1")
	require.NoError(t, h.orchestrator(embedding.NewLocalEncoder(16)).Run(ctx, "e1", []string{"missing"}))

	exec, err := h.store.GetExecution(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, exec.Status)
	require.Len(t, exec.Steps, 1)
	assert.Equal(t, models.StepInitialization, exec.Steps[0].Name)
	assert.Equal(t, models.StepFailed, exec.Steps[0].Status)
}

func TestEmbeddingFailureWritesNoVersion(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.addDocument(t, "d", "https://example.com/d.pdf", nil, "some text")

	h.newExecution(t, "e1")
	require.NoError(t, h.orchestrator(failingEmbedder{}).Run(ctx, "e1", nil))

	exec, err := h.store.GetExecution(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, exec.Status)
	step, ok := exec.FindStep(models.StepEmbedding)
	require.True(t, ok)
	assert.Equal(t, models.StepFailed, step.Status)
	_, ok = exec.FindStep(models.StepScoring)
	assert.False(t, ok)

	_, err = h.store.LatestVersion(ctx, "d")
	assert.True(t, errors.IsNotFound(err))
}

func TestEmptyTextScoresZero(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.addDocument(t, "d", "https://example.com/scan.pdf", nil, "")

	o := h.orchestrator(failingEmbedder{})
	for _, id := range []string{"e1", "e2"} {
		h.newExecution(t, id)
		require.NoError(t, o.Run(ctx, id, nil))
	}

	v, err := h.store.LatestVersion(ctx, "d")
	require.NoError(t, err)
	assert.Equal(t, 0.0, v.SemanticScore)
}

func TestUnreadablePreviousEmbeddingsScoreZero(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.addDocument(t, "d", "https://example.com/terms.pdf", []string{"penalty"}, tenPages())
	o := NewOrchestrator(h.store, h.ledger, h.fetcher, pageExtractor{}, flakyDownloads{h.blobs},
		embedding.NewLocalEncoder(64), NewPool(2), h.log)

	for _, id := range []string{"e1", "e2"} {
		h.newExecution(t, id)
		require.NoError(t, o.Run(ctx, id, nil))
	}

	exec, err := h.store.GetExecution(ctx, "e2")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, exec.Status)
	scoring, ok := exec.FindStep(models.StepScoring)
	require.True(t, ok)
	assert.Equal(t, models.StepCompleted, scoring.Status)
	assert.Contains(t, scoring.Details, "unavailable, score 0.0")

	versions, err := h.store.ListVersions(ctx, "d")
	require.NoError(t, err)
	require.Len(t, versions, 2)
	for _, v := range versions {
		assert.Equal(t, 0.0, v.SemanticScore)
	}
	assert.True(t, h.log.HasMessage("WARN", "Previous embeddings unavailable, scoring 0.0"))
}

func TestRunWithoutDocumentsCompletes(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.newExecution(t, "e1")
	require.NoError(t, h.orchestrator(embedding.NewLocalEncoder(16)).Run(ctx, "e1", nil))

	exec, err := h.store.GetExecution(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, exec.Status)
	assert.Contains(t, exec.Logs, "No documents to process")
}

func TestFinishedExecutionIsNotRerun(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.newExecution(t, "e1")
	o := h.orchestrator(embedding.NewLocalEncoder(16))
	require.NoError(t, o.Run(ctx, "e1", nil))
	require.NoError(t, o.Run(ctx, "e1", nil))

	exec, err := h.store.GetExecution(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, exec.Status)
}

func TestLedgerOutageIsCritical(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.Close())

	err := h.orchestrator(embedding.NewLocalEncoder(16)).Run(context.Background(), "e1", nil)
	require.Error(t, err)
	assert.True(t, h.log.HasMessage("ERROR", "Critical pipeline failure"))
	assert.True(t, h.log.HasMessage("ERROR", "Could not record critical failure"))
}

func TestStoragePrefix(t *testing.T) {
	doc := &models.Document{ApplicationName: "a/b", Name: " terms "}
	now := time.Date(2024, 5, 6, 7, 8, 9, 123456000, time.UTC)
	assert.Equal(t, "a_b/terms/2024-05-06_070809.123456_abcdef12", storagePrefix(doc, now, "abcdef1234567890"))
	assert.Equal(t, "a_b/terms/2024-05-06_070809.123456_x", storagePrefix(doc, now, "x"))
}

func TestPoolBoundsConcurrency(t *testing.T) {
	p := NewPool(1)
	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = p.Do(context.Background(), func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	cancel()
	assert.ErrorIs(t, p.Do(ctx, func() error { return nil }), context.Canceled)
	close(release)
	assert.NoError(t, p.Do(context.Background(), func() error { return nil }))
}
