// Package sqlite is the cache store, kept in a sqlite database.
package sqlite

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/jdholdren/mirror/internal/mirror"
)

var _ mirror.Repository = (*Repo)(nil)

type Repo struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) Repo {
	return Repo{db: db}
}

// Open connects to the database file at path. Writers wait on each other for
// up to five seconds instead of failing with SQLITE_BUSY.
//
// An in-memory database only lives as long as its connection, so ":memory:"
// is limited to a single one.
func Open(path string) (*sqlx.DB, error) {
	dsn := fmt.Sprintf("%s?_txlock=immediate&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	if path == ":memory:" {
		dsn = "file::memory:?_pragma=busy_timeout(5000)"
	}

	dbx, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %s", err)
	}
	if path == ":memory:" {
		dbx.SetMaxOpenConns(1)
	}

	return dbx, nil
}
