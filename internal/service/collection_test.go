package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/movie-tracker/internal/apperror"
	"github.com/sakif/movie-tracker/internal/model"
	"github.com/sakif/movie-tracker/internal/repository"
	"github.com/sakif/movie-tracker/internal/repository/sqlite"
)

func newTestCollection(t *testing.T, provider *fakeProvider) (*CollectionService, *CatalogService, *sqlite.DB) {
	t.Helper()
	catalog, db := newTestCatalog(t, provider)
	return NewCollectionService(db, db, catalog, testLogger()), catalog, db
}

// =========================================================================
// ADD / RATE TESTS
// =========================================================================

func TestAdd_FetchesMovieAndCreatesEntry(t *testing.T) {
	provider := newFakeProvider(detailRecord(27205, "Inception", "Leonardo DiCaprio"))
	svc, _, db := newTestCollection(t, provider)
	u := createUser(t, db, "a@example.com")

	e, err := svc.Add(context.Background(), u.ID, AddInput{TMDBID: 27205, Notes: ptr("great")})
	require.NoError(t, err)
	assert.Nil(t, e.Rating)
	assert.Equal(t, "great", e.Notes)
	assert.Equal(t, "Inception", e.Movie.Title)
	assert.Equal(t, 1, provider.calls(27205))
}

func TestAdd_ExistingEntryIsUpdatedInPlace(t *testing.T) {
	provider := newFakeProvider(detailRecord(27205, "Inception", "Leonardo DiCaprio"))
	svc, _, db := newTestCollection(t, provider)
	u := createUser(t, db, "a@example.com")
	ctx := context.Background()

	first, err := svc.Add(ctx, u.ID, AddInput{TMDBID: 27205, Rating: 3})
	require.NoError(t, err)
	second, err := svc.Add(ctx, u.ID, AddInput{TMDBID: 27205, Rating: float64(5)})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 5, *second.Rating)

	_, total, err := svc.List(ctx, u.ID, repository.ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestAdd_InvalidRatingMakesNoProviderCall(t *testing.T) {
	provider := newFakeProvider(detailRecord(27205, "Inception", "Leonardo DiCaprio"))
	svc, _, db := newTestCollection(t, provider)
	u := createUser(t, db, "a@example.com")

	for _, bad := range []any{0, 6, 3.5, "4", true} {
		_, err := svc.Add(context.Background(), u.ID, AddInput{TMDBID: 27205, Rating: bad})
		assert.True(t, errors.Is(err, apperror.ErrValidation), "rating %v", bad)
	}
	assert.Zero(t, provider.calls(27205))
}

func TestAdd_UnknownMovie(t *testing.T) {
	svc, _, db := newTestCollection(t, newFakeProvider())
	u := createUser(t, db, "a@example.com")

	_, err := svc.Add(context.Background(), u.ID, AddInput{TMDBID: 404})
	assert.True(t, errors.Is(err, apperror.ErrNotFound))

	_, err = svc.Add(context.Background(), u.ID, AddInput{TMDBID: 0})
	assert.True(t, errors.Is(err, apperror.ErrValidation))
}

func TestRate_LastWriteWins(t *testing.T) {
	provider := newFakeProvider(detailRecord(27205, "Inception", "Leonardo DiCaprio"))
	svc, _, db := newTestCollection(t, provider)
	u := createUser(t, db, "a@example.com")
	ctx := context.Background()

	_, err := svc.Add(ctx, u.ID, AddInput{TMDBID: 27205, Notes: ptr("keep me")})
	require.NoError(t, err)

	_, err = svc.Rate(ctx, u.ID, 27205, 2)
	require.NoError(t, err)
	e, err := svc.Rate(ctx, u.ID, 27205, 4)
	require.NoError(t, err)

	assert.Equal(t, 4, *e.Rating)
	assert.Equal(t, "keep me", e.Notes, "rate only touches the rating")

	_, err = svc.Rate(ctx, u.ID, 27205, nil)
	assert.True(t, errors.Is(err, apperror.ErrValidation))
}

// =========================================================================
// REMOVE / LIST TESTS
// =========================================================================

func TestRemove(t *testing.T) {
	provider := newFakeProvider(detailRecord(27205, "Inception", "Leonardo DiCaprio"))
	svc, _, db := newTestCollection(t, provider)
	u := createUser(t, db, "a@example.com")
	ctx := context.Background()

	_, err := svc.Add(ctx, u.ID, AddInput{TMDBID: 27205})
	require.NoError(t, err)

	require.NoError(t, svc.Remove(ctx, u.ID, 27205))

	err = svc.Remove(ctx, u.ID, 27205)
	assert.True(t, errors.Is(err, apperror.ErrNotFound), "second remove")

	err = svc.Remove(ctx, u.ID, 123456)
	assert.True(t, errors.Is(err, apperror.ErrNotFound), "movie never seen")
}

func TestList_ClampsLimit(t *testing.T) {
	provider := newFakeProvider(
		detailRecord(1, "One", "A"),
		detailRecord(2, "Two", "B"),
		detailRecord(3, "Three", "C"),
	)
	svc, _, db := newTestCollection(t, provider)
	u := createUser(t, db, "a@example.com")
	ctx := context.Background()

	for _, id := range []int64{1, 2, 3} {
		_, err := svc.Add(ctx, u.ID, AddInput{TMDBID: id})
		require.NoError(t, err)
	}

	entries, total, err := svc.List(ctx, u.ID, repository.ListOptions{Limit: 1000, Offset: -5})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, entries, 3)
	assert.Equal(t, "Three", entries[0].Movie.Title)

	history, err := svc.History(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, history, 3)
}

func TestAnnotate(t *testing.T) {
	provider := newFakeProvider(detailRecord(27205, "Inception", "Leonardo DiCaprio"))
	svc, catalog, db := newTestCollection(t, provider)
	u := createUser(t, db, "a@example.com")
	ctx := context.Background()

	_, err := svc.Add(ctx, u.ID, AddInput{TMDBID: 27205, Rating: 5})
	require.NoError(t, err)
	watched, _, err := catalog.GetOrFetchMovie(ctx, 27205)
	require.NoError(t, err)
	other, err := catalog.UpsertFromSearchResult(ctx, movieRecord(1, "Other"))
	require.NoError(t, err)

	movies := []model.Movie{*watched, *other}

	got, err := svc.Annotate(ctx, u.ID, movies)
	require.NoError(t, err)
	assert.True(t, got[watched.ID].InCollection)
	assert.Equal(t, 5, *got[watched.ID].UserRating)
	assert.False(t, got[other.ID].InCollection)

	anon, err := svc.Annotate(ctx, "", movies)
	require.NoError(t, err)
	assert.Empty(t, anon)
}
