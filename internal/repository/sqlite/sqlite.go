// Package sqlite implements the repository interfaces on SQLite using the
// pure-Go modernc.org/sqlite driver (no cgo).
//
// CONNECTION SETTINGS:
// Pragmas are passed in the DSN so that every pooled connection gets them,
// and the pool is capped at one connection. SQLite allows a single writer
// anyway, and with one connection an in-memory database is shared by every
// query instead of each connection seeing its own empty database.
//
// All timestamps are stored in UTC so that text ordering matches time
// ordering.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// DB wraps a database connection pool and implements every repository interface.
type DB struct {
	conn *sql.DB
}

// querier is satisfied by both *sql.DB and *sql.Tx, so helpers can run
// inside or outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New opens (or creates) the SQLite database at dbPath and runs migrations.
// Use ":memory:" for a throwaway database in tests.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

func dsn(dbPath string) string {
	pragmas := []string{
		"_pragma=foreign_keys(1)",
		"_pragma=busy_timeout(5000)",
		"_time_format=sqlite",
	}
	if dbPath == ":memory:" {
		return "file::memory:?" + strings.Join(pragmas, "&")
	}
	pragmas = append(pragmas, "_pragma=journal_mode(WAL)")
	return "file:" + dbPath + "?" + strings.Join(pragmas, "&")
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping reports whether the database is reachable. Used by the health check.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// withTx runs fn in a transaction, committing if it returns nil.
// fn must use tx for every statement: the pool holds a single connection.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// migrate creates the schema. Every statement is idempotent.
func (db *DB) migrate() error {
	steps := []struct {
		name string
		sql  string
	}{
		{"users", `
			CREATE TABLE IF NOT EXISTS users (
				id            TEXT PRIMARY KEY,
				email         TEXT NOT NULL UNIQUE COLLATE NOCASE,
				password_hash TEXT NOT NULL DEFAULT '',
				github_id     INTEGER UNIQUE,
				created_at    DATETIME NOT NULL,
				updated_at    DATETIME NOT NULL
			);`},
		{"movies", `
			CREATE TABLE IF NOT EXISTS movies (
				id                     TEXT PRIMARY KEY,
				tmdb_id                INTEGER NOT NULL UNIQUE,
				title                  TEXT NOT NULL DEFAULT '',
				overview               TEXT NOT NULL DEFAULT '',
				poster_path            TEXT NOT NULL DEFAULT '',
				backdrop_path          TEXT NOT NULL DEFAULT '',
				release_date           TEXT,
				vote_average           REAL,
				imdb_rating            REAL,
				rotten_tomatoes_rating INTEGER CHECK (rotten_tomatoes_rating BETWEEN 0 AND 100),
				created_at             DATETIME NOT NULL,
				refreshed_at           DATETIME
			);`},
		{"genres", `
			CREATE TABLE IF NOT EXISTS genres (
				id      TEXT PRIMARY KEY,
				tmdb_id INTEGER NOT NULL UNIQUE,
				name    TEXT NOT NULL DEFAULT ''
			);`},
		{"movie_genres", `
			CREATE TABLE IF NOT EXISTS movie_genres (
				movie_id TEXT NOT NULL REFERENCES movies(id) ON DELETE CASCADE,
				genre_id TEXT NOT NULL REFERENCES genres(id) ON DELETE CASCADE,
				PRIMARY KEY (movie_id, genre_id)
			);`},
		{"people", `
			CREATE TABLE IF NOT EXISTS people (
				id           TEXT PRIMARY KEY,
				tmdb_id      INTEGER NOT NULL UNIQUE,
				name         TEXT NOT NULL DEFAULT '',
				profile_path TEXT
			);`},
		{"cast_credits", `
			CREATE TABLE IF NOT EXISTS cast_credits (
				id            TEXT PRIMARY KEY,
				movie_id      TEXT NOT NULL REFERENCES movies(id) ON DELETE CASCADE,
				person_id     TEXT NOT NULL REFERENCES people(id) ON DELETE CASCADE,
				character     TEXT NOT NULL DEFAULT '',
				billing_order INTEGER NOT NULL DEFAULT 0,
				UNIQUE (movie_id, person_id, character)
			);
			CREATE INDEX IF NOT EXISTS idx_cast_credits_movie ON cast_credits(movie_id);`},
		{"crew_credits", `
			CREATE TABLE IF NOT EXISTS crew_credits (
				id         TEXT PRIMARY KEY,
				movie_id   TEXT NOT NULL REFERENCES movies(id) ON DELETE CASCADE,
				person_id  TEXT NOT NULL REFERENCES people(id) ON DELETE CASCADE,
				department TEXT NOT NULL DEFAULT '',
				job        TEXT NOT NULL,
				UNIQUE (movie_id, person_id, job)
			);
			CREATE INDEX IF NOT EXISTS idx_crew_credits_movie ON crew_credits(movie_id);`},
		{"collection_entries", `
			CREATE TABLE IF NOT EXISTS collection_entries (
				id         TEXT PRIMARY KEY,
				user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				movie_id   TEXT NOT NULL REFERENCES movies(id),
				rating     INTEGER CHECK (rating BETWEEN 1 AND 5),
				notes      TEXT NOT NULL DEFAULT '',
				watched_at DATETIME NOT NULL,
				UNIQUE (user_id, movie_id)
			);
			CREATE INDEX IF NOT EXISTS idx_collection_user_watched ON collection_entries(user_id, watched_at);`},
	}

	for _, s := range steps {
		if _, err := db.conn.Exec(s.sql); err != nil {
			return fmt.Errorf("creating %s table: %w", s.name, err)
		}
	}
	return nil
}

// === NULLABLE COLUMN HELPERS ===

func now() time.Time {
	return time.Now().UTC()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

func nullDate(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.DateOnly), Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func datePtr(n sql.NullString) *time.Time {
	if !n.Valid {
		return nil
	}
	t, err := time.Parse(time.DateOnly, n.String)
	if err != nil {
		return nil
	}
	return &t
}

func timePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time.UTC()
	return &t
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
