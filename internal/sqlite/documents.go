package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/jdholdren/mirror/internal/mirror"
)

var documentColumns = []string{"id", "name", "slug", "path", "sha", "summary", "body"}

// Documents returns every cached document ordered by slug.
func (r Repo) Documents(ctx context.Context) ([]mirror.Document, error) {
	query, args, err := sq.Select(documentColumns...).From("documents").OrderBy("slug").ToSql()
	if err != nil {
		return nil, fmt.Errorf("error constructing sql: %s", err)
	}

	docs := []mirror.Document{}
	if err := r.db.SelectContext(ctx, &docs, query, args...); err != nil {
		return nil, fmt.Errorf("error selecting documents: %w", err)
	}

	return docs, nil
}

func (r Repo) DocumentBySlug(ctx context.Context, slug string) (mirror.Document, error) {
	query, args, err := sq.Select(documentColumns...).
		From("documents").
		Where(sq.Eq{"slug": slug}).
		ToSql()
	if err != nil {
		return mirror.Document{}, fmt.Errorf("error constructing sql: %s", err)
	}

	var doc mirror.Document
	err = r.db.GetContext(ctx, &doc, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return mirror.Document{}, mirror.ErrNotFound
	}
	if err != nil {
		return mirror.Document{}, fmt.Errorf("error fetching document: %w", err)
	}

	return doc, nil
}

// UpsertDocument writes a document keyed by its slug. The generated ID of an
// existing row is kept.
func (r Repo) UpsertDocument(ctx context.Context, doc mirror.Document) error {
	const q = `INSERT INTO documents (name, slug, path, sha, summary, body)
	VALUES (:name, :slug, :path, :sha, :summary, :body)
	ON CONFLICT(slug) DO UPDATE SET
		name = excluded.name,
		path = excluded.path,
		sha = excluded.sha,
		summary = excluded.summary,
		body = excluded.body;`

	if _, err := r.db.NamedExecContext(ctx, q, doc); err != nil {
		return fmt.Errorf("error upserting document: %w", err)
	}

	return nil
}

func (r Repo) DeleteDocument(ctx context.Context, id int64) error {
	const q = `DELETE FROM documents WHERE id = ?;`

	if _, err := r.db.ExecContext(ctx, q, id); err != nil {
		return fmt.Errorf("error deleting document: %w", err)
	}

	return nil
}
