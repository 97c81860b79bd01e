package mirror

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"
	"time"
)

// memStore is a Repository held in maps.
type memStore struct {
	MemoryState

	mu     sync.Mutex
	repos  map[int64]Repo
	docs   map[string]Document
	nextID int64

	reposErr      error
	upsertErr     map[string]error
	repoDeleteErr map[int64]error
	docDeleteErr  map[int64]error
}

func newMemStore() *memStore {
	return &memStore{
		repos: map[int64]Repo{},
		docs:  map[string]Document{},
	}
}

func (m *memStore) Repos(context.Context) ([]Repo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.reposErr != nil {
		return nil, m.reposErr
	}
	out := make([]Repo, 0, len(m.repos))
	for _, r := range m.repos {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b Repo) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (m *memStore) RepoBySlug(_ context.Context, slug string) (Repo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.repos {
		if r.Slug == slug {
			return r, nil
		}
	}
	return Repo{}, ErrNotFound
}

func (m *memStore) UpsertRepo(_ context.Context, r Repo) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.upsertErr[r.Name]; err != nil {
		return err
	}
	m.repos[r.ID] = r
	return nil
}

func (m *memStore) DeleteRepo(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.repoDeleteErr[id]; err != nil {
		return err
	}
	delete(m.repos, id)
	return nil
}

func (m *memStore) Documents(context.Context) ([]Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Document, 0, len(m.docs))
	for _, d := range m.docs {
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b Document) int { return cmp.Compare(a.Slug, b.Slug) })
	return out, nil
}

func (m *memStore) DocumentBySlug(_ context.Context, slug string) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.docs[slug]
	if !ok {
		return Document{}, ErrNotFound
	}
	return d, nil
}

func (m *memStore) UpsertDocument(_ context.Context, d Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.upsertErr[d.Name]; err != nil {
		return err
	}
	if existing, ok := m.docs[d.Slug]; ok {
		d.ID = existing.ID
	} else {
		m.nextID++
		d.ID = m.nextID
	}
	m.docs[d.Slug] = d
	return nil
}

func (m *memStore) DeleteDocument(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.docDeleteErr[id]; err != nil {
		return err
	}
	for slug, d := range m.docs {
		if d.ID == id {
			delete(m.docs, slug)
		}
	}
	return nil
}

// memSource is a Source backed by fixed data.
type memSource struct {
	mu       sync.Mutex
	repos    []Repo
	files    map[string]string // path -> content, for the docs holder
	readmes  map[string]string // repo name -> readme
	shas     map[string]string // path -> sha
	reposErr error
	fileErr  map[string]error
	calls    int
	block    chan struct{}
}

func (s *memSource) Repos(ctx context.Context) ([]Repo, error) {
	s.mu.Lock()
	s.calls++
	block := s.block
	s.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.reposErr != nil {
		return nil, s.reposErr
	}
	return slices.Clone(s.repos), nil
}

func (s *memSource) Documents(_ context.Context, _ Repo) ([]FileMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []FileMeta
	for path := range s.files {
		out = append(out, FileMeta{SHA: s.shas[path], Name: path, Path: path})
	}
	return out, nil
}

func (s *memSource) File(_ context.Context, r Repo, path string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fileErr[path]; err != nil {
		return "", err
	}
	if r.Name == DefaultDocsRepo {
		return s.files[path], nil
	}
	readme, ok := s.readmes[r.Name]
	if !ok {
		return "", &FetchError{Op: "file", URL: path, Status: 404, Err: errors.New("not found")}
	}
	return readme, nil
}

func (s *memSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
