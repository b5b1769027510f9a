package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/feichai0017/document-monitor/internal/metrics"
	"github.com/feichai0017/document-monitor/internal/models"
	"github.com/feichai0017/document-monitor/pkg/errors"
	"github.com/feichai0017/document-monitor/pkg/logger"
)

// Schedule aliases accepted in Document.Schedule.
var aliases = map[string]string{
	"daily":  "0 0 * * *",
	"weekly": "0 0 * * 0",
}

// TriggerFunc starts a new execution for the given documents and returns its id.
type TriggerFunc func(ctx context.Context, documentIDs []string) (string, error)

// DocumentLister supplies the documents whose schedules are restored at startup.
type DocumentLister interface {
	ListScheduledDocuments(ctx context.Context) ([]*models.Document, error)
}

// Service keeps at most one cron job per document, keyed by document id.
// Job state lives only in memory; LoadAll rebuilds it from the store.
type Service struct {
	mu        sync.Mutex
	cron      *cron.Cron
	jobs      map[string]cron.EntryID
	specs     map[string]string
	docs      DocumentLister
	trigger   TriggerFunc
	heartbeat time.Duration
	logger    logger.Logger
}

func New(docs DocumentLister, trigger TriggerFunc, heartbeat time.Duration, log logger.Logger) *Service {
	if heartbeat <= 0 {
		heartbeat = time.Minute
	}
	return &Service{
		cron:      cron.New(cron.WithLocation(time.UTC)),
		jobs:      make(map[string]cron.EntryID),
		specs:     make(map[string]string),
		docs:      docs,
		trigger:   trigger,
		heartbeat: heartbeat,
		logger:    log.Named("scheduler"),
	}
}

// ResolveSchedule expands aliases and checks the result is a valid 5-field
// cron expression (minute hour day-of-month month day-of-week).
func ResolveSchedule(schedule string) (string, error) {
	s := strings.TrimSpace(schedule)
	if expr, ok := aliases[strings.ToLower(s)]; ok {
		return expr, nil
	}

	fields := strings.Fields(s)
	if len(fields) != 5 {
		return "", errors.Mark(
			errors.Newf("cron expression %q must have 5 fields, got %d", schedule, len(fields)),
			errors.ErrSchedulingInvalid,
		)
	}
	expr := strings.Join(fields, " ")
	if _, err := cron.ParseStandard(expr); err != nil {
		return "", errors.Mark(errors.Wrapf(err, "invalid cron expression %q", schedule), errors.ErrSchedulingInvalid)
	}
	return expr, nil
}

// Start runs the cron loop and the heartbeat job.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	spec := fmt.Sprintf("@every %s", s.heartbeat)
	if _, err := s.cron.AddFunc(spec, func() {
		s.logger.Debug("Scheduler heartbeat", logger.Int("jobs", s.JobCount()))
	}); err != nil {
		s.logger.Error("Failed to add heartbeat job", logger.Error(err))
	}
	s.cron.Start()
	s.logger.Info("Scheduler started", logger.Duration("heartbeat", s.heartbeat))
}

// Stop halts the cron loop. The returned context is done once running jobs finish.
func (s *Service) Stop() context.Context {
	return s.cron.Stop()
}

// LoadAll schedules every document that has a schedule. Invalid schedules
// are logged and skipped.
func (s *Service) LoadAll(ctx context.Context) error {
	docs, err := s.docs.ListScheduledDocuments(ctx)
	if err != nil {
		return errors.Wrap(err, "list scheduled documents")
	}

	loaded := 0
	for _, doc := range docs {
		if err := s.Schedule(doc); err != nil {
			continue
		}
		loaded++
	}
	s.logger.Info("Loaded document schedules", logger.Int("loaded", loaded), logger.Int("total", len(docs)))
	return nil
}

// Schedule installs or replaces the job for doc. An empty schedule removes
// any existing job. An invalid schedule leaves existing jobs untouched.
func (s *Service) Schedule(doc *models.Document) error {
	if strings.TrimSpace(doc.Schedule) == "" {
		s.Unschedule(doc.ID)
		return nil
	}

	expr, err := ResolveSchedule(doc.Schedule)
	if err != nil {
		s.logger.Error("Rejected document schedule",
			logger.String("document_id", doc.ID),
			logger.String("schedule", doc.Schedule),
			logger.Error(err),
		)
		return err
	}

	documentID := doc.ID
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.jobs[documentID]; ok {
		s.cron.Remove(old)
	}
	id, err := s.cron.AddFunc(expr, func() { s.fire(documentID) })
	if err != nil {
		delete(s.jobs, documentID)
		delete(s.specs, documentID)
		return errors.Mark(errors.Wrapf(err, "add job for document %s", documentID), errors.ErrSchedulingInvalid)
	}
	s.jobs[documentID] = id
	s.specs[documentID] = expr
	metrics.SetScheduledJobs(len(s.jobs))

	s.logger.Info("Document scheduled",
		logger.String("document_id", documentID),
		logger.String("cron", expr),
	)
	return nil
}

// Unschedule removes the document's job; unknown ids are ignored.
func (s *Service) Unschedule(documentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.jobs[documentID]
	if !ok {
		return
	}
	s.cron.Remove(id)
	delete(s.jobs, documentID)
	delete(s.specs, documentID)
	metrics.SetScheduledJobs(len(s.jobs))
	s.logger.Info("Document unscheduled", logger.String("document_id", documentID))
}

// Jobs returns document id -> cron expression for the installed jobs.
func (s *Service) Jobs() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.specs))
	for k, v := range s.specs {
		out[k] = v
	}
	return out
}

func (s *Service) JobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// NextRun reports when the document's job fires next.
func (s *Service) NextRun(documentID string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.jobs[documentID]
	if !ok {
		return time.Time{}, false
	}
	e := s.cron.Entry(id)
	if !e.Next.IsZero() {
		return e.Next, true
	}
	// 调度器未启动时 Next 为零值
	return e.Schedule.Next(time.Now().UTC()), true
}

func (s *Service) fire(documentID string) {
	ctx := logger.WithDocumentID(context.Background(), documentID)
	execID, err := s.trigger(ctx, []string{documentID})
	if err != nil {
		metrics.SchedulerTrigger("failure")
		s.logger.Error("Scheduled trigger failed", logger.String("document_id", documentID), logger.Error(err))
		return
	}
	metrics.SchedulerTrigger("success")
	s.logger.Info("Scheduled execution triggered",
		logger.String("document_id", documentID),
		logger.String("execution_id", execID),
	)
}
