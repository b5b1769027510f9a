package store

import (
	"context"
	"database/sql"

	"github.com/feichai0017/document-monitor/internal/models"
	"github.com/feichai0017/document-monitor/pkg/errors"
	"github.com/feichai0017/document-monitor/pkg/logger"
)

// Store persists Documents, Executions and Versions. Each method runs in its
// own short transaction or statement.
type Store struct {
	db     *sql.DB
	logger logger.Logger
}

func New(db *sql.DB, log logger.Logger) *Store {
	return &Store{db: db, logger: log.Named("store")}
}

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

// Stats 返回三类实体的数量
func (s *Store) Stats(ctx context.Context) (*models.Stats, error) {
	var st models.Stats
	err := s.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM documents),
		(SELECT COUNT(*) FROM executions),
		(SELECT COUNT(*) FROM versions)`).Scan(&st.DocumentsCount, &st.ExecutionsCount, &st.VersionsCount)
	if err != nil {
		return nil, errors.Wrap(err, "count entities")
	}
	return &st, nil
}

func notFoundIfNoRows(err error, what, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return errors.NotFoundf("%s %s not found", what, id)
	}
	return errors.Wrapf(err, "load %s %s", what, id)
}

type scanner interface {
	Scan(dest ...any) error
}
