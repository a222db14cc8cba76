package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/movie-tracker/internal/apperror"
	"github.com/sakif/movie-tracker/internal/model"
	"github.com/sakif/movie-tracker/internal/normalize"
	"github.com/sakif/movie-tracker/internal/repository"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// MovieResolver returns a locally stored movie with full detail, fetching
// it from the provider when needed. CatalogService implements it.
type MovieResolver interface {
	EnsureMovie(ctx context.Context, tmdbID int64) (*model.Movie, error)
}

// AddInput is the body of a collection add. Rating is decoded loosely from
// JSON and validated by normalize.Rating; nil fields are left unchanged.
type AddInput struct {
	TMDBID int64   `json:"tmdb_id"`
	Rating any     `json:"rating"`
	Notes  *string `json:"notes"`
}

// Annotation is how one movie relates to the caller's collection.
type Annotation struct {
	InCollection bool
	UserRating   *int
}

// CollectionService manages each user's watched movies.
type CollectionService struct {
	entries repository.CollectionRepository
	catalog repository.CatalogRepository
	movies  MovieResolver
	logger  *slog.Logger
}

func NewCollectionService(
	entries repository.CollectionRepository,
	catalog repository.CatalogRepository,
	movies MovieResolver,
	logger *slog.Logger,
) *CollectionService {
	return &CollectionService{entries: entries, catalog: catalog, movies: movies, logger: logger}
}

// Add puts a movie in the user's collection, or updates the existing entry.
// The rating is validated before any provider call.
func (s *CollectionService) Add(ctx context.Context, userID string, in AddInput) (*model.CollectionEntry, error) {
	if in.TMDBID <= 0 {
		return nil, apperror.ValidationFailed("tmdb_id", "tmdb_id must be a positive integer")
	}

	update := repository.EntryUpdate{Notes: in.Notes}
	if in.Rating != nil {
		r, err := normalize.Rating(in.Rating)
		if err != nil {
			return nil, err
		}
		update.Rating = &r
	}

	m, err := s.movies.EnsureMovie(ctx, in.TMDBID)
	if err != nil {
		return nil, fmt.Errorf("service/collection: resolving movie %d: %w", in.TMDBID, err)
	}

	entry, err := s.entries.UpsertEntry(ctx, userID, m.ID, update)
	if err != nil {
		return nil, fmt.Errorf("service/collection: saving entry for movie %d: %w", in.TMDBID, err)
	}

	s.logger.Info("collection entry saved",
		slog.String("userID", userID),
		slog.Int64("tmdbID", in.TMDBID),
	)
	return entry, nil
}

// Rate sets the rating on the user's entry, creating the entry if needed.
// Repeated ratings overwrite; the last write wins.
func (s *CollectionService) Rate(ctx context.Context, userID string, tmdbID int64, rating any) (*model.CollectionEntry, error) {
	if rating == nil {
		return nil, apperror.ValidationFailed("rating", "rating is required")
	}
	return s.Add(ctx, userID, AddInput{TMDBID: tmdbID, Rating: rating})
}

// Remove deletes the user's entry for a movie. Movies the catalog has never
// seen cannot be in any collection.
func (s *CollectionService) Remove(ctx context.Context, userID string, tmdbID int64) error {
	m, ok, err := s.catalog.FindMovieByTMDBID(ctx, tmdbID)
	if err != nil {
		return fmt.Errorf("service/collection: looking up movie %d: %w", tmdbID, err)
	}
	if !ok {
		return apperror.NotFound("collection entry", idString(tmdbID))
	}

	if err := s.entries.DeleteEntry(ctx, userID, m.ID); err != nil {
		return fmt.Errorf("service/collection: removing movie %d: %w", tmdbID, err)
	}

	s.logger.Info("collection entry removed",
		slog.String("userID", userID),
		slog.Int64("tmdbID", tmdbID),
	)
	return nil
}

// List returns one page of the user's collection, most recent first, and
// the total number of entries.
func (s *CollectionService) List(ctx context.Context, userID string, opts repository.ListOptions) ([]model.CollectionEntry, int, error) {
	if opts.Limit <= 0 {
		opts.Limit = DefaultListLimit
	}
	if opts.Limit > MaxListLimit {
		opts.Limit = MaxListLimit
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}

	entries, err := s.entries.ListEntries(ctx, userID, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("service/collection: listing entries: %w", err)
	}
	total, err := s.entries.CountEntries(ctx, userID)
	if err != nil {
		return nil, 0, fmt.Errorf("service/collection: counting entries: %w", err)
	}
	return entries, total, nil
}

// History returns every entry of the user's collection.
func (s *CollectionService) History(ctx context.Context, userID string) ([]model.CollectionEntry, error) {
	entries, err := s.entries.ListEntries(ctx, userID, repository.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("service/collection: loading history: %w", err)
	}
	return entries, nil
}

// Annotate reports, for each movie, whether the user has it and their
// rating. Anonymous callers get an empty map.
func (s *CollectionService) Annotate(ctx context.Context, userID string, movies []model.Movie) (map[string]Annotation, error) {
	out := make(map[string]Annotation, len(movies))
	if userID == "" || len(movies) == 0 {
		return out, nil
	}

	ids := make([]string, len(movies))
	for i, m := range movies {
		ids[i] = m.ID
	}
	entries, err := s.entries.EntriesForMovies(ctx, userID, ids)
	if err != nil {
		return nil, fmt.Errorf("service/collection: annotating movies: %w", err)
	}
	for id, e := range entries {
		out[id] = Annotation{InCollection: true, UserRating: e.Rating}
	}
	return out, nil
}
