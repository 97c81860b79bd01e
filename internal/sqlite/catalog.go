package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/jdholdren/mirror/internal/mirror"
)

var repoColumns = []string{"id", "name", "slug", "url", "html_url", "description", "pushed_at", "readme"}

// Repos returns every cached repo ordered by ID.
func (r Repo) Repos(ctx context.Context) ([]mirror.Repo, error) {
	query, args, err := sq.Select(repoColumns...).From("repos").OrderBy("id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("error constructing sql: %s", err)
	}

	repos := []mirror.Repo{}
	if err := r.db.SelectContext(ctx, &repos, query, args...); err != nil {
		return nil, fmt.Errorf("error selecting repos: %w", err)
	}

	return repos, nil
}

// RepoBySlug finds a repo by its slug. Names can collide once slugified, in
// which case the oldest repo wins.
func (r Repo) RepoBySlug(ctx context.Context, slug string) (mirror.Repo, error) {
	query, args, err := sq.Select(repoColumns...).
		From("repos").
		Where(sq.Eq{"slug": slug}).
		OrderBy("id").
		Limit(1).
		ToSql()
	if err != nil {
		return mirror.Repo{}, fmt.Errorf("error constructing sql: %s", err)
	}

	var repo mirror.Repo
	err = r.db.GetContext(ctx, &repo, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return mirror.Repo{}, mirror.ErrNotFound
	}
	if err != nil {
		return mirror.Repo{}, fmt.Errorf("error fetching repo: %w", err)
	}

	return repo, nil
}

func (r Repo) UpsertRepo(ctx context.Context, repo mirror.Repo) error {
	const q = `INSERT INTO repos (id, name, slug, url, html_url, description, pushed_at, readme)
	VALUES (:id, :name, :slug, :url, :html_url, :description, :pushed_at, :readme)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		slug = excluded.slug,
		url = excluded.url,
		html_url = excluded.html_url,
		description = excluded.description,
		pushed_at = excluded.pushed_at,
		readme = excluded.readme;`

	if _, err := r.db.NamedExecContext(ctx, q, repo); err != nil {
		return fmt.Errorf("error upserting repo: %w", err)
	}

	return nil
}

func (r Repo) DeleteRepo(ctx context.Context, id int64) error {
	const q = `DELETE FROM repos WHERE id = ?;`

	if _, err := r.db.ExecContext(ctx, q, id); err != nil {
		return fmt.Errorf("error deleting repo: %w", err)
	}

	return nil
}
