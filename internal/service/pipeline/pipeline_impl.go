package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/feichai0017/document-monitor/internal/embedding"
	"github.com/feichai0017/document-monitor/internal/fetcher"
	"github.com/feichai0017/document-monitor/internal/ledger"
	"github.com/feichai0017/document-monitor/internal/metrics"
	"github.com/feichai0017/document-monitor/internal/models"
	"github.com/feichai0017/document-monitor/pkg/converters"
	"github.com/feichai0017/document-monitor/pkg/errors"
	"github.com/feichai0017/document-monitor/pkg/logger"
	"github.com/feichai0017/document-monitor/pkg/storage"
)

const pathTimeLayout = "2006-01-02_150405.000000"

// errLedger marks failures to write the ledger itself; they abort the run.
var errLedger = errors.New("ledger unavailable")

var _ Runner = (*Orchestrator)(nil)

// Orchestrator runs the stage state machine for each target document.
type Orchestrator struct {
	store     Store
	ledger    *ledger.Ledger
	fetcher   Fetcher
	extractor Extractor
	blobs     storage.Storage
	embedder  embedding.Provider
	pool      *Pool
	converter *converters.JSONConverter
	now       func() time.Time
	logger    logger.ContextLogger
}

func NewOrchestrator(
	store Store,
	ldg *ledger.Ledger,
	f Fetcher,
	extractor Extractor,
	blobs storage.Storage,
	embedder embedding.Provider,
	pool *Pool,
	log logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		store:     store,
		ledger:    ldg,
		fetcher:   f,
		extractor: extractor,
		blobs:     blobs,
		embedder:  embedder,
		pool:      pool,
		converter: converters.NewJSONConverter(),
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger.NewContextLogger(log.Named("pipeline")),
	}
}

func (o *Orchestrator) Run(ctx context.Context, executionID string, documentIDs []string) (err error) {
	ctx = logger.WithExecutionID(ctx, executionID)
	log := o.logger.FromContext(ctx)

	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("pipeline panic: %v", r)
		}
		if err != nil {
			o.critical(ctx, executionID, err)
		}
	}()

	if err := o.ledger.MarkRunning(ctx, executionID, "Execution started"); err != nil {
		if errors.Is(err, ledger.ErrAlreadyFinished) {
			log.Warn("Execution already finished, skipping run")
			return nil
		}
		return errors.Mark(err, errLedger)
	}

	targets, err := o.resolveTargets(ctx, documentIDs)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		log.Info("No documents to process")
		return o.ledger.Finish(ctx, executionID, models.StatusCompleted, "No documents to process")
	}

	succeeded := 0
	for _, id := range targets {
		ok, err := o.processDocument(ctx, executionID, id)
		if err != nil {
			return err
		}
		if ok {
			succeeded++
		}
	}

	status := models.StatusCompleted
	if succeeded == 0 {
		status = models.StatusFailed
	}
	log.Info("Execution finished",
		logger.String("status", string(status)),
		logger.Int("succeeded", succeeded),
		logger.Int("attempted", len(targets)),
	)
	return o.ledger.Finish(ctx, executionID, status,
		fmt.Sprintf("Execution %s: %d/%d documents processed", status, succeeded, len(targets)))
}

// critical records a run-level failure. Errors from that write are logged
// and dropped.
func (o *Orchestrator) critical(ctx context.Context, executionID string, cause error) {
	log := o.logger.FromContext(ctx)
	log.Error("Critical pipeline failure", logger.Error(cause))

	// 即使原 ctx 已取消也尽量写入失败状态
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := o.ledger.Finish(writeCtx, executionID, models.StatusFailed, "Critical failure: "+cause.Error()); err != nil {
		log.Error("Could not record critical failure", logger.Error(err))
	}
}

func (o *Orchestrator) resolveTargets(ctx context.Context, documentIDs []string) ([]string, error) {
	if len(documentIDs) > 0 {
		return documentIDs, nil
	}
	docs, err := o.store.ListDocuments(ctx, 0, -1)
	if err != nil {
		return nil, errors.Wrap(err, "list documents")
	}
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	return ids, nil
}

// docRun carries one document through the stages.
type docRun struct {
	executionID string
	doc         *models.Document
	prefix      string
	fetched     *fetcher.Result
	segments    []models.Segment
	contentHash string
	rawPath     string
	textPath    string
	texts       []string
	vectors     [][]float32
	embedPath   string
	score       float64
}

// processDocument returns false when a stage failed for this document. A
// non-nil error means the ledger could not be written.
func (o *Orchestrator) processDocument(ctx context.Context, executionID, documentID string) (bool, error) {
	ctx = logger.WithDocumentID(ctx, documentID)
	log := o.logger.FromContext(ctx)
	run := &docRun{executionID: executionID}

	stages := []struct {
		name string
		fn   func(context.Context, *docRun) (string, error)
	}{
		{models.StepInitialization, func(ctx context.Context, r *docRun) (string, error) { return o.initialize(ctx, r, documentID) }},
		{models.StepDownload, o.download},
		{models.StepExtraction, o.extract},
		{models.StepStorage, o.storeArtifacts},
		{models.StepFiltering, o.filter},
		{models.StepEmbedding, o.embed},
		{models.StepScoring, o.score},
	}

	for _, st := range stages {
		if err := o.step(ctx, executionID, st.name, func() (string, error) { return st.fn(ctx, run) }); err != nil {
			if errors.Is(err, errLedger) {
				return false, err
			}
			log.Warn("Document processing aborted", logger.String("step", st.name), logger.Error(err))
			return false, nil
		}
	}

	version := &models.Version{
		ID:                uuid.New().String(),
		DocumentID:        run.doc.ID,
		ExecutionID:       executionID,
		Timestamp:         o.now(),
		ContentHash:       run.contentHash,
		GCSPath:           run.rawPath,
		ExtractedTextPath: run.textPath,
		EmbeddingsPath:    run.embedPath,
		SemanticScore:     run.score,
	}
	if err := o.store.CreateVersion(ctx, version); err != nil {
		log.Error("Failed to write version", logger.Error(err))
		if lerr := o.ledger.AppendLog(ctx, executionID, fmt.Sprintf("Version write failed for %s: %v", run.doc.Name, err)); lerr != nil {
			return false, errors.Mark(lerr, errLedger)
		}
		return false, nil
	}
	metrics.VersionCreated()

	log.Info("Version created",
		logger.String("version_id", version.ID),
		logger.Float64("semantic_score", version.SemanticScore),
	)
	if err := o.ledger.AppendLog(ctx, executionID,
		fmt.Sprintf("Version %s created for %s (score %.4f)", version.ID, run.doc.Name, version.SemanticScore)); err != nil {
		return true, errors.Mark(err, errLedger)
	}
	return true, nil
}

// step wraps one stage with running and completed/failed ledger entries.
func (o *Orchestrator) step(ctx context.Context, executionID, name string, fn func() (string, error)) error {
	if err := o.ledger.UpsertStep(ctx, executionID, name, models.StepRunning, "", ""); err != nil {
		return errors.Mark(err, errLedger)
	}

	details, err := fn()
	if err != nil {
		logLine := fmt.Sprintf("%s failed: %v", name, err)
		if lerr := o.ledger.UpsertStep(ctx, executionID, name, models.StepFailed, err.Error(), logLine); lerr != nil {
			return errors.Mark(lerr, errLedger)
		}
		return err
	}

	if err := o.ledger.UpsertStep(ctx, executionID, name, models.StepCompleted, details, ""); err != nil {
		return errors.Mark(err, errLedger)
	}
	return nil
}

// storagePrefix is unique per run: microsecond time plus the execution id.
func storagePrefix(doc *models.Document, now time.Time, executionID string) string {
	suffix := executionID
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	return strings.Join([]string{
		pathSegment(doc.ApplicationName),
		pathSegment(doc.Name),
		now.UTC().Format(pathTimeLayout) + "_" + suffix,
	}, "/")
}

func pathSegment(s string) string {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(s)
	if s == "" {
		return "_"
	}
	return s
}
