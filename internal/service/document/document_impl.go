package document

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/feichai0017/document-monitor/internal/analysis"
	"github.com/feichai0017/document-monitor/internal/fetcher"
	"github.com/feichai0017/document-monitor/internal/models"
	"github.com/feichai0017/document-monitor/internal/utils/validator"
	"github.com/feichai0017/document-monitor/pkg/converters"
	"github.com/feichai0017/document-monitor/pkg/errors"
	"github.com/feichai0017/document-monitor/pkg/logger"
	"github.com/feichai0017/document-monitor/pkg/storage"
)

// UploadPrefix is the storage folder for user-uploaded sources.
const UploadPrefix = "uploads"

type Store interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	UpdateDocument(ctx context.Context, doc *models.Document) error
	DeleteDocument(ctx context.Context, id string) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	FindDocumentBySource(ctx context.Context, url, applicationName string) (*models.Document, error)
	ListDocuments(ctx context.Context, skip, limit int) ([]*models.Document, error)
	GetVersion(ctx context.Context, id string) (*models.Version, error)
	ListVersions(ctx context.Context, documentID string) ([]*models.Version, error)
}

// Scheduler keeps the cron registry in step with stored schedules.
type Scheduler interface {
	Schedule(doc *models.Document) error
	Unschedule(documentID string)
}

// Trigger starts an execution for the given documents.
type Trigger interface {
	Trigger(ctx context.Context, documentIDs []string) (string, error)
}

type Service struct {
	store     Store
	scheduler Scheduler
	trigger   Trigger
	storage   storage.Storage
	validator *validator.DocumentValidator
	converter converters.SegmentConverter
	logger    logger.Logger
	now       func() time.Time
}

var _ DocumentService = (*Service)(nil)

func NewService(
	store Store,
	scheduler Scheduler,
	trigger Trigger,
	blobs storage.Storage,
	log logger.Logger,
) *Service {
	log = log.Named("documents")
	return &Service{
		store:     store,
		scheduler: scheduler,
		trigger:   trigger,
		storage:   blobs,
		validator: validator.NewDocumentValidator(log, nil),
		converter: converters.NewJSONConverter(),
		logger:    log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create upserts by (url, application_name), schedules the document and
// starts a first execution for it.
func (s *Service) Create(ctx context.Context, cfg models.DocumentConfig) (*DocumentResult, error) {
	if err := s.validator.ValidateConfig(&cfg).Err(); err != nil {
		return nil, err
	}

	doc, _, err := s.upsert(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s.schedule(doc)

	result := &DocumentResult{Document: doc}
	execID, err := s.trigger.Trigger(ctx, []string{doc.ID})
	if err != nil {
		s.logger.Error("Failed to trigger initial execution",
			logger.String("document_id", doc.ID),
			logger.Error(err))
		return result, nil
	}
	result.LatestExecutionID = execID
	return result, nil
}

func (s *Service) Update(ctx context.Context, id string, cfg models.DocumentConfig) (*models.Document, error) {
	if err := s.validator.ValidateConfig(&cfg).Err(); err != nil {
		return nil, err
	}
	doc, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}

	applyConfig(doc, cfg)
	if err := s.store.UpdateDocument(ctx, doc); err != nil {
		return nil, err
	}
	s.schedule(doc)

	s.logger.Info("Document updated", logger.String("document_id", id))
	return doc, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteDocument(ctx, id); err != nil {
		return err
	}
	s.scheduler.Unschedule(id)
	s.logger.Info("Document deleted", logger.String("document_id", id))
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.Document, error) {
	return s.store.GetDocument(ctx, id)
}

func (s *Service) List(ctx context.Context, skip, limit int) ([]*models.Document, error) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	return s.store.ListDocuments(ctx, skip, limit)
}

// Import validates every config before writing any, then upserts each.
func (s *Service) Import(ctx context.Context, configs []models.DocumentConfig) (*ImportResult, error) {
	for i := range configs {
		if err := s.validator.ValidateConfig(&configs[i]).Err(); err != nil {
			return nil, errors.WithMessagef(err, "config %d", i)
		}
	}

	result := &ImportResult{}
	for _, cfg := range configs {
		doc, created, err := s.upsert(ctx, cfg)
		if err != nil {
			return result, err
		}
		if created {
			result.Imported++
		} else {
			result.Updated++
		}
		s.schedule(doc)
	}

	s.logger.Info("Document configs imported",
		logger.Int("imported", result.Imported),
		logger.Int("updated", result.Updated))
	return result, nil
}

func (s *Service) Versions(ctx context.Context, documentID string) ([]*models.Version, error) {
	if _, err := s.store.GetDocument(ctx, documentID); err != nil {
		return nil, err
	}
	return s.store.ListVersions(ctx, documentID)
}

// Content returns the extracted segments stored for a version.
func (s *Service) Content(ctx context.Context, versionID string) ([]models.Segment, error) {
	v, err := s.store.GetVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	return s.loadSegments(ctx, v)
}

func (s *Service) KeywordMatches(ctx context.Context, versionID string) (*models.KeywordReport, error) {
	v, err := s.store.GetVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	doc, err := s.store.GetDocument(ctx, v.DocumentID)
	if err != nil {
		return nil, err
	}
	segments, err := s.loadSegments(ctx, v)
	if err != nil {
		return nil, err
	}
	report := analysis.KeywordMatches(segments, doc.Keywords)
	return &report, nil
}

// Upload stores a source file under uploads/ and returns the internal URL
// a DocumentConfig can point at.
func (s *Service) Upload(ctx context.Context, filename string, data []byte, contentType string) (*UploadResult, error) {
	name := filepath.Base(strings.TrimSpace(filename))
	if name == "" || name == "." || name == "/" {
		return nil, errors.Invalidf("filename is required")
	}

	key := path.Join(UploadPrefix, fmt.Sprintf("%s_%s", s.now().Format("20060102_150405"), name))
	if _, err := s.storage.Upload(ctx, key, data, contentType); err != nil {
		return nil, errors.Wrap(err, "store upload")
	}

	s.logger.Info("Source uploaded", logger.String("key", key), logger.Int("bytes", len(data)))
	return &UploadResult{
		URL:      fetcher.InternalScheme + "://" + key,
		Filename: name,
	}, nil
}

func (s *Service) loadSegments(ctx context.Context, v *models.Version) ([]models.Segment, error) {
	if v.ExtractedTextPath == "" {
		return nil, errors.NotFoundf("version %s has no extracted content", v.ID)
	}
	data, err := s.storage.Download(ctx, v.ExtractedTextPath)
	if err != nil {
		return nil, err
	}
	segments, err := s.converter.DecodeSegments(data)
	if err != nil {
		return nil, errors.Wrapf(err, "decode extracted content of version %s", v.ID)
	}
	return segments, nil
}

// upsert reports whether a new document was created.
func (s *Service) upsert(ctx context.Context, cfg models.DocumentConfig) (*models.Document, bool, error) {
	existing, err := s.store.FindDocumentBySource(ctx, cfg.URL, cfg.ApplicationName)
	switch {
	case err == nil:
		applyConfig(existing, cfg)
		if err := s.store.UpdateDocument(ctx, existing); err != nil {
			return nil, false, err
		}
		s.logger.Info("Document updated from config", logger.String("document_id", existing.ID))
		return existing, false, nil
	case !errors.IsNotFound(err):
		return nil, false, err
	}

	doc := &models.Document{
		ID:        uuid.NewString(),
		CreatedAt: s.now(),
	}
	applyConfig(doc, cfg)
	if err := s.store.CreateDocument(ctx, doc); err != nil {
		return nil, false, err
	}
	s.logger.Info("Document created",
		logger.String("document_id", doc.ID),
		logger.String("url", doc.URL))
	return doc, true, nil
}

// schedule 失败只记录日志，不影响保存结果
func (s *Service) schedule(doc *models.Document) {
	if err := s.scheduler.Schedule(doc); err != nil {
		s.logger.Warn("Failed to schedule document",
			logger.String("document_id", doc.ID),
			logger.Error(err))
	}
}

func applyConfig(doc *models.Document, cfg models.DocumentConfig) {
	doc.ApplicationName = cfg.ApplicationName
	doc.Name = cfg.DocumentName
	doc.URL = cfg.URL
	doc.Keywords = cfg.Keywords
	doc.Schedule = cfg.ScheduleOrDefault()
}
