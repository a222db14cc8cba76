package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sakif/movie-tracker/internal/model"
)

// newTestDB opens a fresh in-memory database that is closed when the test ends.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestUser(t *testing.T, db *DB, email string) *model.User {
	t.Helper()
	u := &model.User{Email: email, PasswordHash: "hash"}
	require.NoError(t, db.CreateUser(context.Background(), u))
	return u
}

func createTestMovie(t *testing.T, db *DB, tmdbID int64, title string) *model.Movie {
	t.Helper()
	m, err := db.UpsertMovieSummary(context.Background(), model.MovieFields{TMDBID: tmdbID, Title: title})
	require.NoError(t, err)
	return m
}

func ptr[T any](v T) *T { return &v }

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestNew_MigrationsAreIdempotent(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.migrate())
	require.NoError(t, db.Ping(context.Background()))
}

func TestNew_FileDatabase(t *testing.T) {
	path := t.TempDir() + "/movies.db"

	db, err := New(path)
	require.NoError(t, err)
	createTestMovie(t, db, 1, "Persisted")
	require.NoError(t, db.Close())

	reopened, err := New(path)
	require.NoError(t, err)
	t.Cleanup(func() { reopened.Close() })

	_, ok, err := reopened.FindMovieByTMDBID(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, ok)
}
