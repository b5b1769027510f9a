package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/feichai0017/document-monitor/internal/models"
	"github.com/feichai0017/document-monitor/pkg/errors"
)

const documentColumns = `id, application_name, name, url, keywords, schedule, created_at`

func (s *Store) CreateDocument(ctx context.Context, doc *models.Document) error {
	keywords, err := encodeStrings(doc.Keywords)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (`+documentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.ApplicationName, doc.Name, doc.URL, keywords, doc.Schedule, formatTime(doc.CreatedAt),
	)
	if err != nil {
		return errors.Wrapf(err, "insert document %s", doc.ID)
	}
	return nil
}

func (s *Store) UpdateDocument(ctx context.Context, doc *models.Document) error {
	keywords, err := encodeStrings(doc.Keywords)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET application_name = ?, name = ?, url = ?, keywords = ?, schedule = ? WHERE id = ?`,
		doc.ApplicationName, doc.Name, doc.URL, keywords, doc.Schedule, doc.ID,
	)
	if err != nil {
		return errors.Wrapf(err, "update document %s", doc.ID)
	}
	return requireAffected(res, "document", doc.ID)
}

func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return errors.Wrapf(err, "delete document %s", id)
	}
	return requireAffected(res, "document", id)
}

func (s *Store) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if err != nil {
		return nil, notFoundIfNoRows(err, "document", id)
	}
	return doc, nil
}

// FindDocumentBySource looks a document up by its (url, application_name) key.
func (s *Store) FindDocumentBySource(ctx context.Context, url, applicationName string) (*models.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE url = ? AND application_name = ?`, url, applicationName)
	doc, err := scanDocument(row)
	if err != nil {
		return nil, notFoundIfNoRows(err, "document", url)
	}
	return doc, nil
}

// ListDocuments returns documents by creation time. A negative limit returns all.
func (s *Store) ListDocuments(ctx context.Context, skip, limit int) ([]*models.Document, error) {
	return s.queryDocuments(ctx,
		`SELECT `+documentColumns+` FROM documents ORDER BY created_at, id LIMIT ? OFFSET ?`, limit, skip)
}

// ListScheduledDocuments returns every document with a non-empty schedule.
func (s *Store) ListScheduledDocuments(ctx context.Context) ([]*models.Document, error) {
	return s.queryDocuments(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE schedule <> '' ORDER BY created_at, id`)
}

func (s *Store) queryDocuments(ctx context.Context, query string, args ...any) ([]*models.Document, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query documents")
	}
	defer rows.Close()

	docs := []*models.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, errors.Wrap(rows.Err(), "iterate documents")
}

func scanDocument(row scanner) (*models.Document, error) {
	var (
		doc       models.Document
		keywords  string
		createdAt string
	)
	if err := row.Scan(&doc.ID, &doc.ApplicationName, &doc.Name, &doc.URL, &keywords, &doc.Schedule, &createdAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(keywords), &doc.Keywords); err != nil {
		return nil, errors.Wrapf(err, "decode keywords of document %s", doc.ID)
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	doc.CreatedAt = t
	return &doc, nil
}

func encodeStrings(v []string) (string, error) {
	if v == nil {
		v = []string{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", errors.Wrap(err, "encode string list")
	}
	return string(b), nil
}

func requireAffected(res sql.Result, what, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrapf(err, "rows affected for %s %s", what, id)
	}
	if n == 0 {
		return errors.NotFoundf("%s %s not found", what, id)
	}
	return nil
}
