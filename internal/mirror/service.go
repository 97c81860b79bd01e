package mirror

import (
	"cmp"
	"context"
	"slices"
)

// HomeSlug is the slug of the document served as the landing page.
const HomeSlug = "Home"

type (
	// Searcher finds documents by their text.
	Searcher interface {
		Search(ctx context.Context, query string, limit int) ([]SearchHit, error)
	}

	// SearchHit is a document matching a search.
	SearchHit struct {
		Slug      string
		Name      string
		Score     float64
		Fragments map[string][]string
	}
)

// Service is what the serving layer reads through.
//
// Every read nudges the engine to refresh in the background and then answers
// from the cache, whatever the refresh does.
type Service struct {
	repo     Repository
	engine   *Engine
	searcher Searcher
	docsRepo string
}

func NewService(repo Repository, engine *Engine, searcher Searcher) Service {
	return Service{
		repo:     repo,
		engine:   engine,
		searcher: searcher,
		docsRepo: engine.cfg.DocsRepo,
	}
}

// Catalog lists the cached repos ordered by slug, leaving out the
// documentation holder.
func (s Service) Catalog(ctx context.Context) ([]Repo, error) {
	s.engine.Trigger(ctx)

	repos, err := s.repo.Repos(ctx)
	if err != nil {
		return nil, &StoreError{Op: "list repos", Err: err}
	}

	repos = slices.DeleteFunc(repos, func(r Repo) bool { return r.Name == s.docsRepo })
	slices.SortFunc(repos, func(a, b Repo) int { return cmp.Compare(a.Slug, b.Slug) })

	return repos, nil
}

// CatalogItem finds a repo by name; the name is slugified first.
func (s Service) CatalogItem(ctx context.Context, name string) (Repo, error) {
	s.engine.Trigger(ctx)

	return s.repo.RepoBySlug(ctx, Slug(name))
}

// Documents lists the cached documents ordered by slug, leaving out the
// home document.
func (s Service) Documents(ctx context.Context) ([]Document, error) {
	s.engine.Trigger(ctx)

	docs, err := s.repo.Documents(ctx)
	if err != nil {
		return nil, &StoreError{Op: "list documents", Err: err}
	}

	return slices.DeleteFunc(docs, func(d Document) bool { return d.Slug == HomeSlug }), nil
}

// Document finds a document by name; the name is slugified first.
func (s Service) Document(ctx context.Context, name string) (Document, error) {
	s.engine.Trigger(ctx)

	return s.repo.DocumentBySlug(ctx, Slug(name))
}

// Home returns the landing page document.
func (s Service) Home(ctx context.Context) (Document, error) {
	s.engine.Trigger(ctx)

	return s.repo.DocumentBySlug(ctx, HomeSlug)
}

// Search looks for documents matching query. Without a searcher nothing
// matches.
func (s Service) Search(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	s.engine.Trigger(ctx)

	if s.searcher == nil {
		return []SearchHit{}, nil
	}
	return s.searcher.Search(ctx, query, limit)
}
