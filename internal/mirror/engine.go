package mirror

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jdholdren/mirror/internal/logger"
)

// State is where the engine is within a refresh cycle.
type State int32

const (
	StateIdle State = iota
	StateChecking
	StateFetching
	StateDiffing
	StateResolving
	StatePersisting
	StateAborted
)

func (s State) String() string {
	return [...]string{"idle", "checking", "fetching", "diffing", "resolving", "persisting", "aborted"}[s]
}

const (
	DefaultDocsRepo   = "blog-posts"
	DefaultReadmePath = "README.md"
	DefaultWidth      = 8
)

type (
	// EngineConfig tunes an [Engine]. Zero values fall back to the defaults.
	EngineConfig struct {
		// Name of the repo whose markdown files are mirrored as documents.
		DocsRepo string
		// File resolved as the body of every other repo.
		ReadmePath string
		// How many remote calls or store writes run at once.
		Width int

		Indexer  Indexer
		Observer Observer
	}

	// Indexer receives every document written to or removed from the cache.
	Indexer interface {
		IndexDocument(ctx context.Context, d Document) error
		RemoveDocument(ctx context.Context, slug string) error
	}

	// Observer is told about every finished cycle.
	Observer interface {
		CycleFinished(r Report, err error)
	}

	// Report summarizes one refresh cycle.
	Report struct {
		CycleID   string
		Repos     Tally
		Documents Tally
		Duration  time.Duration
	}

	// Tally counts the outcome of a diff once it has been applied.
	Tally struct {
		Upserted  int
		Deleted   int
		Unchanged int
		Failed    int
	}

	// ChangeSet is the effective outcome of one cycle's diffs, with content
	// already resolved.
	ChangeSet struct {
		Repos     []Change[Repo]
		Documents []Change[Document]
	}
)

// ErrAborted marks a cycle that could not snapshot both sides.
var ErrAborted = errors.New("refresh aborted")

// Engine runs refresh cycles: snapshot both sides, diff, resolve content
// and persist.
type Engine struct {
	repo      Repository
	source    Source
	gate      *Gate
	persister Persister
	cfg       EngineConfig

	state    atomic.Int32
	triggers sync.WaitGroup
}

func NewEngine(repo Repository, source Source, gate *Gate, cfg EngineConfig) *Engine {
	if cfg.DocsRepo == "" {
		cfg.DocsRepo = DefaultDocsRepo
	}
	if cfg.ReadmePath == "" {
		cfg.ReadmePath = DefaultReadmePath
	}
	if cfg.Width <= 0 {
		cfg.Width = DefaultWidth
	}

	return &Engine{
		repo:      repo,
		source:    source,
		gate:      gate,
		cfg:       cfg,
		persister: NewPersister(repo, cfg.Indexer, cfg.Width),
	}
}

func (e *Engine) State() State {
	return State(e.state.Load())
}

func (e *Engine) setState(ctx context.Context, s State) {
	e.state.Store(int32(s))
	slog.DebugContext(ctx, "refresh state", "state", s.String())
}

// Trigger starts a gated refresh in the background and returns immediately.
// The refresh outlives ctx's cancellation.
func (e *Engine) Trigger(ctx context.Context) {
	if e.gate.InFlight() {
		return
	}

	e.triggers.Add(1)
	go func() {
		defer e.triggers.Done()

		if _, _, err := e.RefreshIfStale(context.WithoutCancel(ctx)); err != nil {
			slog.ErrorContext(ctx, "background refresh failed", "error", err)
		}
	}()
}

// Wait blocks until every refresh started by Trigger has returned.
func (e *Engine) Wait() {
	e.triggers.Wait()
}

// RefreshIfStale runs a cycle when the gate allows it. ran is false when the
// data was fresh or another cycle is in flight.
func (e *Engine) RefreshIfStale(ctx context.Context) (r Report, ran bool, err error) {
	// Only the holder of the gate writes the state
	if !e.gate.TryAcquire(ctx) {
		return Report{}, false, nil
	}
	defer e.gate.Release()
	e.setState(ctx, StateChecking)

	r, err = e.Refresh(ctx)
	return r, true, err
}

// ForceRefresh runs a cycle even when the data is fresh. ran is false only
// when another cycle is in flight.
func (e *Engine) ForceRefresh(ctx context.Context) (r Report, ran bool, err error) {
	if !e.gate.Claim(ctx) {
		return Report{}, false, nil
	}
	defer e.gate.Release()
	e.setState(ctx, StateChecking)

	r, err = e.Refresh(ctx)
	return r, true, err
}

// Refresh runs one cycle regardless of staleness.
//
// Only a failure to list either side's catalog is returned; every per-item
// failure is logged and counted in the report.
func (e *Engine) Refresh(ctx context.Context) (Report, error) {
	var (
		start = time.Now()
		r     = Report{CycleID: uuid.NewString()}
	)
	ctx = logger.Ctx(ctx, slog.String("cycle_id", r.CycleID))

	finish := func(err error) (Report, error) {
		r.Duration = time.Since(start)
		if err != nil {
			e.setState(ctx, StateAborted)
		} else {
			e.setState(ctx, StateIdle)
		}
		if e.cfg.Observer != nil {
			e.cfg.Observer.CycleFinished(r, err)
		}
		return r, err
	}

	slog.InfoContext(ctx, "refresh started")

	e.setState(ctx, StateFetching)
	cached, remote, err := e.snapshot(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "refresh aborted", "error", err)
		return finish(fmt.Errorf("%w: %w", ErrAborted, err))
	}

	e.setState(ctx, StateDiffing)
	// The holder's documents are re-diffed every cycle, so it is always upserted
	var holders []int64
	for _, repo := range remote {
		if repo.Name == e.cfg.DocsRepo {
			holders = append(holders, repo.ID)
		}
	}
	changes := RepoDiffer(holders...).Diff(cached, remote)
	for _, c := range changes {
		if c.Kind == NoChange {
			r.Repos.Unchanged++
		}
		slog.DebugContext(ctx, "classified repo", "repo", c.Item.Name, "change", c.Kind.String())
	}

	e.setState(ctx, StateResolving)
	set := ChangeSet{Repos: Effective(changes)}
	e.resolveReadmes(ctx, set.Repos)
	for _, c := range set.Repos {
		if c.Kind == Upsert && c.Item.Name == e.cfg.DocsRepo {
			docs, unchanged := e.resolveDocuments(ctx, c.Item)
			set.Documents = docs
			r.Documents.Unchanged = unchanged
		}
	}

	e.setState(ctx, StatePersisting)
	applied := e.persister.Apply(ctx, set)
	r.Repos.Upserted, r.Repos.Deleted, r.Repos.Failed = applied.Repos.Upserted, applied.Repos.Deleted, applied.Repos.Failed
	r.Documents.Upserted, r.Documents.Deleted, r.Documents.Failed = applied.Documents.Upserted, applied.Documents.Deleted, applied.Documents.Failed

	r, _ = finish(nil)
	slog.InfoContext(ctx, "refresh finished",
		"repos_upserted", r.Repos.Upserted,
		"repos_deleted", r.Repos.Deleted,
		"repos_unchanged", r.Repos.Unchanged,
		"documents_upserted", r.Documents.Upserted,
		"documents_deleted", r.Documents.Deleted,
		"documents_unchanged", r.Documents.Unchanged,
		"failed", r.Repos.Failed+r.Documents.Failed,
		"duration", r.Duration,
	)

	return r, nil
}

// Reads the cached and remote catalogs at the same time.
func (e *Engine) snapshot(ctx context.Context) (cached, remote []Repo, err error) {
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		repos, err := e.repo.Repos(gCtx)
		if err != nil {
			return &StoreError{Op: "list repos", Err: err}
		}
		cached = repos
		return nil
	})
	g.Go(func() error {
		repos, err := e.source.Repos(gCtx)
		if err != nil {
			return err
		}
		remote = repos
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return cached, remote, nil
}

// Attaches the readme of every upserted repo in place. Repos whose readme
// can't be fetched go ahead without one.
func (e *Engine) resolveReadmes(ctx context.Context, changes []Change[Repo]) {
	var g errgroup.Group
	g.SetLimit(e.cfg.Width)

	for i := range changes {
		c := &changes[i]
		if c.Kind != Upsert || c.Item.Name == e.cfg.DocsRepo {
			continue
		}

		g.Go(func() error {
			content, err := e.source.File(ctx, c.Item, e.cfg.ReadmePath)
			if err != nil {
				slog.ErrorContext(ctx, "error resolving readme", "repo", c.Item.Name, "error", err)
				return nil
			}
			c.Item.Readme = &content
			return nil
		})
	}

	g.Wait()
}

// Diffs the documents held by holder against the cache and resolves the
// content of every upsert. Returns the effective changes and the number of
// unchanged documents.
func (e *Engine) resolveDocuments(ctx context.Context, holder Repo) ([]Change[Document], int) {
	files, err := e.source.Documents(ctx, holder)
	if err != nil {
		slog.ErrorContext(ctx, "error listing documents", "repo", holder.Name, "error", err)
		return nil, 0
	}
	cached, err := e.repo.Documents(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "error listing cached documents", "error", &StoreError{Op: "list documents", Err: err})
		return nil, 0
	}

	// Rows are keyed by slug, so only one file per slug can be mirrored. The
	// first path wins to keep the choice stable between cycles.
	slices.SortFunc(files, func(a, b FileMeta) int { return cmp.Compare(a.Path, b.Path) })
	var (
		remote = make([]Document, 0, len(files))
		owners = make(map[string]string, len(files))
	)
	for _, f := range files {
		name := DocumentName(f.Name)
		slug := Slug(name)
		if kept, ok := owners[slug]; ok {
			slog.WarnContext(ctx, "skipping document with a duplicate slug", "document", name, "path", f.Path, "slug", slug, "kept", kept)
			continue
		}
		owners[slug] = f.Path

		remote = append(remote, Document{
			Name: name,
			Slug: slug,
			Path: f.Path,
			SHA:  f.SHA,
		})
	}

	var (
		all       = DocumentDiffer().Diff(cached, remote)
		changes   = Effective(all)
		unchanged = len(all) - len(changes)
		g         errgroup.Group
	)
	// A cached row whose slug moved to another path is overwritten by that
	// path's upsert; deleting it too would race the upsert for the same row.
	changes = slices.DeleteFunc(changes, func(c Change[Document]) bool {
		return c.Kind == Delete && owners[c.Item.Slug] != ""
	})
	g.SetLimit(e.cfg.Width)

	for i := range changes {
		c := &changes[i]
		slog.DebugContext(ctx, "classified document", "document", c.Item.Name, "change", c.Kind.String())
		if c.Kind != Upsert {
			continue
		}

		g.Go(func() error {
			content, err := e.source.File(ctx, holder, c.Item.Path)
			if err != nil {
				slog.ErrorContext(ctx, "error resolving document", "document", c.Item.Name, "error", err)
				// Forget the hash so the next cycle tries again.
				c.Item.SHA = ""
				return nil
			}
			c.Item.Summary, c.Item.Body = SplitSummaryAndBody(content)
			return nil
		})
	}
	g.Wait()

	return changes, unchanged
}
