package mirror

import (
	"context"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Persister applies a change set to the cache.
//
// Every write is independent: they run concurrently, in no particular order
// and outside of any transaction. A failed write is logged and skipped; the
// next cycle diffs again and repairs whatever was left behind.
type Persister struct {
	repo  Repository
	index Indexer
	width int
}

func NewPersister(repo Repository, index Indexer, width int) Persister {
	if width <= 0 {
		width = DefaultWidth
	}

	return Persister{repo: repo, index: index, width: width}
}

// Apply writes every change and waits for all of them to finish.
func (p Persister) Apply(ctx context.Context, set ChangeSet) Report {
	var (
		g errgroup.Group

		repoUps, repoDels, repoFails atomic.Int64
		docUps, docDels, docFails    atomic.Int64
	)
	g.SetLimit(max(p.width, 1))

	for _, c := range set.Repos {
		g.Go(func() error {
			switch c.Kind {
			case Upsert:
				c.Item.Slug = Slug(c.Item.Name)
				if err := p.repo.UpsertRepo(ctx, c.Item); err != nil {
					slog.ErrorContext(ctx, "error upserting repo", "repo", c.Item.Name, "error", &StoreError{Op: "upsert repo", Err: err})
					repoFails.Add(1)
					return nil
				}
				repoUps.Add(1)
			case Delete:
				if err := p.repo.DeleteRepo(ctx, c.Item.ID); err != nil {
					slog.ErrorContext(ctx, "error deleting repo", "repo", c.Item.Name, "error", &StoreError{Op: "delete repo", Err: err})
					repoFails.Add(1)
					return nil
				}
				repoDels.Add(1)
			}
			return nil
		})
	}

	for _, c := range set.Documents {
		g.Go(func() error {
			switch c.Kind {
			case Upsert:
				c.Item.Slug = Slug(c.Item.Name)
				if err := p.repo.UpsertDocument(ctx, c.Item); err != nil {
					slog.ErrorContext(ctx, "error upserting document", "document", c.Item.Name, "error", &StoreError{Op: "upsert document", Err: err})
					docFails.Add(1)
					return nil
				}
				docUps.Add(1)
				if p.index != nil {
					if err := p.index.IndexDocument(ctx, c.Item); err != nil {
						slog.ErrorContext(ctx, "error indexing document", "document", c.Item.Name, "error", err)
					}
				}
			case Delete:
				if err := p.repo.DeleteDocument(ctx, c.Item.ID); err != nil {
					slog.ErrorContext(ctx, "error deleting document", "document", c.Item.Name, "error", &StoreError{Op: "delete document", Err: err})
					docFails.Add(1)
					return nil
				}
				docDels.Add(1)
				if p.index != nil {
					if err := p.index.RemoveDocument(ctx, c.Item.Slug); err != nil {
						slog.ErrorContext(ctx, "error unindexing document", "document", c.Item.Name, "error", err)
					}
				}
			}
			return nil
		})
	}

	g.Wait()

	return Report{
		Repos: Tally{
			Upserted: int(repoUps.Load()),
			Deleted:  int(repoDels.Load()),
			Failed:   int(repoFails.Load()),
		},
		Documents: Tally{
			Upserted: int(docUps.Load()),
			Deleted:  int(docDels.Load()),
			Failed:   int(docFails.Load()),
		},
	}
}
