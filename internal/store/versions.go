package store

import (
	"context"
	"strings"

	"github.com/feichai0017/document-monitor/internal/models"
	"github.com/feichai0017/document-monitor/pkg/errors"
)

const versionColumns = `id, document_id, execution_id, timestamp, content_hash, gcs_path, extracted_text_path, embeddings_path, semantic_score`

func (s *Store) CreateVersion(ctx context.Context, v *models.Version) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO versions (`+versionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.DocumentID, v.ExecutionID, formatTime(v.Timestamp), v.ContentHash,
		v.GCSPath, v.ExtractedTextPath, v.EmbeddingsPath, v.SemanticScore,
	)
	if err != nil {
		return errors.Wrapf(err, "insert version %s", v.ID)
	}
	return nil
}

func (s *Store) GetVersion(ctx context.Context, id string) (*models.Version, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+versionColumns+` FROM versions WHERE id = ?`, id)
	v, err := scanVersion(row)
	if err != nil {
		return nil, notFoundIfNoRows(err, "version", id)
	}
	return v, nil
}

// LatestVersion returns the most recent version of a document, or an
// ErrNotFound error when it has none.
func (s *Store) LatestVersion(ctx context.Context, documentID string) (*models.Version, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+versionColumns+` FROM versions WHERE document_id = ? ORDER BY timestamp DESC, id DESC LIMIT 1`, documentID)
	v, err := scanVersion(row)
	if err != nil {
		return nil, notFoundIfNoRows(err, "latest version of document", documentID)
	}
	return v, nil
}

// ListVersions returns a document's versions newest first.
func (s *Store) ListVersions(ctx context.Context, documentID string) ([]*models.Version, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+versionColumns+` FROM versions WHERE document_id = ? ORDER BY timestamp DESC, id DESC`, documentID)
	if err != nil {
		return nil, errors.Wrap(err, "query versions")
	}
	defer rows.Close()

	out := []*models.Version{}
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, errors.Wrap(rows.Err(), "iterate versions")
}

func scanVersion(row scanner) (*models.Version, error) {
	var (
		v  models.Version
		ts string
	)
	err := row.Scan(&v.ID, &v.DocumentID, &v.ExecutionID, &ts, &v.ContentHash,
		&v.GCSPath, &v.ExtractedTextPath, &v.EmbeddingsPath, &v.SemanticScore)
	if err != nil {
		return nil, err
	}
	if v.Timestamp, err = parseTime(ts); err != nil {
		return nil, err
	}
	return &v, nil
}

func prefixed(prefix, columns string) string {
	parts := strings.Split(columns, ", ")
	for i, p := range parts {
		parts[i] = prefix + p
	}
	return strings.Join(parts, ", ")
}
