// Package repository defines the persistence contracts used by the service
// layer. The sqlite subpackage is the only implementation; services depend
// on these interfaces so they can be tested with in-memory fakes.
//
// FETCH-OR-CREATE:
// Catalog rows are keyed by the provider's id (TMDBID), which is UNIQUE in
// the store. Every write keyed on it is a single conditional insert
// (INSERT ... ON CONFLICT), never a lookup followed by an insert, so
// concurrent first-time requests for the same movie converge on one row.
package repository

import (
	"context"

	"github.com/sakif/movie-tracker/internal/model"
)

// ListOptions paginates list queries. A zero Limit means no limit.
type ListOptions struct {
	Limit  int
	Offset int
}

// CatalogRepository persists movies, genres, people and credits.
type CatalogRepository interface {
	// FindMovieByTMDBID returns the movie's scalar fields, or ok=false.
	FindMovieByTMDBID(ctx context.Context, tmdbID int64) (movie *model.Movie, ok bool, err error)

	// UpsertMovieSummary creates the movie from summary fields if it does not
	// exist yet and returns the stored row. An existing row is left untouched.
	UpsertMovieSummary(ctx context.Context, fields model.MovieFields) (*model.Movie, error)

	// SaveMovieDetail writes a full detail fetch in one transaction:
	// scalar fields are overwritten, genre links and all credits replaced.
	SaveMovieDetail(ctx context.Context, detail model.MovieDetail) (*model.Movie, error)

	// GetMovieDetail returns the movie with genres, cast and crew loaded.
	// Unknown ids yield apperror.ErrNotFound.
	GetMovieDetail(ctx context.Context, tmdbID int64) (*model.Movie, error)

	UpsertPerson(ctx context.Context, person model.Person) (*model.Person, error)
	FindPersonByTMDBID(ctx context.Context, tmdbID int64) (person *model.Person, ok bool, err error)

	// UpsertGenres creates missing genres and backfills empty names.
	UpsertGenres(ctx context.Context, genres []model.Genre) error
	ListGenres(ctx context.Context) ([]model.Genre, error)
	FindGenreByTMDBID(ctx context.Context, tmdbID int64) (genre *model.Genre, ok bool, err error)
}

// EntryUpdate carries the optional fields of an add or rate. A nil field
// leaves the stored value unchanged.
type EntryUpdate struct {
	Rating *int
	Notes  *string
}

// CollectionRepository persists per-user watched entries.
type CollectionRepository interface {
	// UpsertEntry creates the (user, movie) entry or applies update to the
	// existing one. WatchedAt is set on creation only.
	UpsertEntry(ctx context.Context, userID, movieID string, update EntryUpdate) (*model.CollectionEntry, error)

	// DeleteEntry removes the entry, or returns apperror.ErrNotFound.
	DeleteEntry(ctx context.Context, userID, movieID string) error

	// ListEntries returns the user's entries, most recently watched first,
	// with each movie's genres and credits loaded.
	ListEntries(ctx context.Context, userID string, opts ListOptions) ([]model.CollectionEntry, error)
	CountEntries(ctx context.Context, userID string) (int, error)

	// EntriesForMovies returns the user's entries for the given local movie
	// ids, keyed by movie id. Movie fields on the entries are not loaded.
	EntriesForMovies(ctx context.Context, userID string, movieIDs []string) (map[string]model.CollectionEntry, error)
}

// UserRepository persists users.
type UserRepository interface {
	// CreateUser inserts a new user, filling ID and timestamps.
	// A taken email yields apperror.ErrConflict.
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)

	// UpsertGitHubUser returns the user linked to githubID. An unlinked
	// account with the same email is linked; otherwise a new user is created.
	UpsertGitHubUser(ctx context.Context, githubID int64, email string) (*model.User, error)
}
