// Package mirror keeps a local cache of a remotely-owned catalog of
// repositories and their documentation files.
//
// Reads are always served from the cache. A read also nudges the [Engine],
// which refreshes the cache from the remote source in the background once
// the data is older than the configured TTL.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrNotFound = errors.New("resource not found")

type (
	// Repo is a catalog item: a repository owned by the remote API.
	//
	// ID is the identity. Name may collide or change, so it is never used to
	// join the cache against the remote source.
	Repo struct {
		ID          int64     `db:"id" json:"id"`
		Name        string    `db:"name" json:"name"`
		Slug        string    `db:"slug" json:"-"`
		URL         string    `db:"url" json:"url"`
		HTMLURL     string    `db:"html_url" json:"html_url"`
		Description string    `db:"description" json:"description"`
		PushedAt    time.Time `db:"pushed_at" json:"pushed_at"`
		Readme      *string   `db:"readme" json:"-"`
	}

	// Document is a markdown file inside the documentation holder.
	//
	// ID is generated by the cache on first insert and does not exist
	// remotely; Path is what the cache is reconciled on.
	Document struct {
		ID      int64  `db:"id"`
		Name    string `db:"name"`
		Slug    string `db:"slug"`
		Path    string `db:"path"`
		SHA     string `db:"sha"`
		Summary string `db:"summary"`
		Body    string `db:"body"`
	}

	// FileMeta is one entry of a remote directory listing.
	FileMeta struct {
		SHA  string `json:"sha"`
		Name string `json:"name"`
		Path string `json:"path"`
	}
)

type (
	// CatalogStore holds the cached catalog.
	CatalogStore interface {
		// Repos returns every cached repo ordered by ID.
		Repos(ctx context.Context) ([]Repo, error)
		RepoBySlug(ctx context.Context, slug string) (Repo, error)
		UpsertRepo(ctx context.Context, r Repo) error
		DeleteRepo(ctx context.Context, id int64) error
	}

	// DocumentStore holds the cached documents.
	DocumentStore interface {
		// Documents returns every cached document ordered by slug.
		Documents(ctx context.Context) ([]Document, error)
		DocumentBySlug(ctx context.Context, slug string) (Document, error)
		// UpsertDocument inserts or updates keyed by the document's slug.
		UpsertDocument(ctx context.Context, d Document) error
		DeleteDocument(ctx context.Context, id int64) error
	}

	// StateStore persists the time of the last refresh attempt.
	StateStore interface {
		LastRefreshed(ctx context.Context) (time.Time, error)
		// AdvanceLastRefreshed moves the timestamp from prev to next. It
		// reports false without error when another caller got there first or
		// when next would move the timestamp backwards.
		AdvanceLastRefreshed(ctx context.Context, prev, next time.Time) (bool, error)
	}

	// Repository is everything the cache provides.
	Repository interface {
		CatalogStore
		DocumentStore
		StateStore
	}

	// Source is the remote, authoritative side of the mirror.
	Source interface {
		Repos(ctx context.Context) ([]Repo, error)
		// Documents lists the markdown files at the root of the repo.
		Documents(ctx context.Context, repo Repo) ([]FileMeta, error)
		// File returns the decoded text of a single file.
		File(ctx context.Context, repo Repo, path string) (string, error)
	}
)

// Slug projects a display name onto its ASCII letters and digits.
//
// "My Repo! 2.0" becomes "MyRepo20". Case is preserved.
func Slug(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || ('0' <= r && r <= '9') {
			b.WriteRune(r)
		}
	}

	return b.String()
}

// FetchError is a failure talking to the remote source: transport, timeout,
// an unexpected status or an undecodable payload.
type FetchError struct {
	Op     string
	URL    string
	Status int // Zero when no response was received
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("error fetching %s (%s): status %d: %s", e.Op, e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("error fetching %s (%s): %s", e.Op, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// StoreError is a failure reading or writing the cache.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("error in store %s: %s", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// DecodeError is malformed transport encoding of a file's content.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("error decoding %s: %s", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
