package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/movie-tracker/internal/apperror"
	"github.com/sakif/movie-tracker/internal/metadata"
)

// =========================================================================
// FETCH-OR-CREATE TESTS
// =========================================================================

func TestGetOrFetchMovie_FetchesOnceThenServesStore(t *testing.T) {
	provider := newFakeProvider(detailRecord(27205, "Inception", "Leonardo DiCaprio"))
	svc, _ := newTestCatalog(t, provider)
	ctx := context.Background()

	m, existed, err := svc.GetOrFetchMovie(ctx, 27205)
	require.NoError(t, err)
	assert.False(t, existed)
	assert.Equal(t, "Inception", m.Title)
	assert.Equal(t, 87, *m.RottenTomatoesRating)
	require.Len(t, m.Cast, 1)

	again, existed, err := svc.GetOrFetchMovie(ctx, 27205)
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, m.ID, again.ID)
	assert.Equal(t, 1, provider.calls(27205))
}

func TestGetOrFetchMovie_ProviderNotFound(t *testing.T) {
	svc, db := newTestCatalog(t, newFakeProvider())

	_, _, err := svc.GetOrFetchMovie(context.Background(), 999)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))

	_, ok, err := db.FindMovieByTMDBID(context.Background(), 999)
	require.NoError(t, err)
	assert.False(t, ok, "nothing is persisted for an unknown id")
}

func TestGetOrFetchMovie_ErrorEnvelopeIsNotFound(t *testing.T) {
	provider := newFakeProvider()
	provider.details[34] = metadata.MovieRecord{
		Envelope: metadata.Envelope{Success: ptr(false), StatusCode: 34, StatusMessage: "The resource you requested could not be found."},
	}
	svc, _ := newTestCatalog(t, provider)

	_, _, err := svc.GetOrFetchMovie(context.Background(), 34)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestGetOrFetchMovie_UpstreamFailurePropagates(t *testing.T) {
	provider := newFakeProvider()
	provider.detailErr = upstreamDown()
	svc, _ := newTestCatalog(t, provider)

	_, _, err := svc.GetOrFetchMovie(context.Background(), 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrUpstream))
	assert.False(t, errors.Is(err, apperror.ErrNotFound))
}

// =========================================================================
// DETAIL VIEW / REFRESH TESTS
// =========================================================================

func TestMovieDetail_UpgradesSummaryRow(t *testing.T) {
	provider := newFakeProvider(detailRecord(27205, "Inception", "Leonardo DiCaprio"))
	svc, _ := newTestCatalog(t, provider)
	ctx := context.Background()

	summary, err := svc.UpsertFromSearchResult(ctx, movieRecord(27205, "Inception"))
	require.NoError(t, err)
	assert.Nil(t, summary.RefreshedAt)

	m, err := svc.MovieDetail(ctx, 27205)
	require.NoError(t, err)
	assert.Equal(t, summary.ID, m.ID)
	assert.NotNil(t, m.RefreshedAt)
	assert.Len(t, m.Cast, 1)
	assert.Equal(t, 1, provider.calls(27205))
}

func TestMovieDetail_FreshRowIsNotRefetched(t *testing.T) {
	provider := newFakeProvider(detailRecord(27205, "Inception", "Leonardo DiCaprio"))
	svc, _ := newTestCatalog(t, provider)
	ctx := context.Background()

	_, err := svc.MovieDetail(ctx, 27205)
	require.NoError(t, err)
	m, err := svc.MovieDetail(ctx, 27205)
	require.NoError(t, err)

	assert.Len(t, m.Genres, 1, "relations are loaded from the store")
	assert.Equal(t, 1, provider.calls(27205))
}

func TestMovieDetail_StaleRowIsRefreshed(t *testing.T) {
	provider := newFakeProvider(detailRecord(27205, "Inception", "Leonardo DiCaprio"))
	svc, _ := newTestCatalog(t, provider)
	ctx := context.Background()

	_, err := svc.MovieDetail(ctx, 27205)
	require.NoError(t, err)

	provider.details[27205] = detailRecord(27205, "Inception", "Tom Hardy")
	svc.now = func() time.Time { return time.Now().Add(48 * time.Hour) }

	m, err := svc.MovieDetail(ctx, 27205)
	require.NoError(t, err)
	require.Len(t, m.Cast, 1)
	assert.Equal(t, "Tom Hardy", m.Cast[0].Person.Name)
	assert.Equal(t, 2, provider.calls(27205))
}

func TestMovieDetail_StaleRefreshFailureServesCache(t *testing.T) {
	provider := newFakeProvider(detailRecord(27205, "Inception", "Leonardo DiCaprio"))
	svc, _ := newTestCatalog(t, provider)
	ctx := context.Background()

	_, err := svc.MovieDetail(ctx, 27205)
	require.NoError(t, err)

	provider.detailErr = upstreamDown()
	svc.now = func() time.Time { return time.Now().Add(48 * time.Hour) }

	m, err := svc.MovieDetail(ctx, 27205)
	require.NoError(t, err)
	assert.Equal(t, "Leonardo DiCaprio", m.Cast[0].Person.Name)
}

func TestMovieDetail_SummaryRowRefreshFailurePropagates(t *testing.T) {
	provider := newFakeProvider()
	provider.detailErr = upstreamDown()
	svc, _ := newTestCatalog(t, provider)
	ctx := context.Background()

	_, err := svc.UpsertFromSearchResult(ctx, movieRecord(27205, "Inception"))
	require.NoError(t, err)

	_, err = svc.MovieDetail(ctx, 27205)
	assert.True(t, errors.Is(err, apperror.ErrUpstream))
}

func TestEnsureMovie_DegradesToSummaryRow(t *testing.T) {
	provider := newFakeProvider()
	provider.detailErr = upstreamDown()
	svc, _ := newTestCatalog(t, provider)
	ctx := context.Background()

	summary, err := svc.UpsertFromSearchResult(ctx, movieRecord(27205, "Inception"))
	require.NoError(t, err)

	m, err := svc.EnsureMovie(ctx, 27205)
	require.NoError(t, err)
	assert.Equal(t, summary.ID, m.ID)
}

// =========================================================================
// LISTING TESTS
// =========================================================================

func TestSearchMovies_StoresResultsSkippingBadRecords(t *testing.T) {
	provider := newFakeProvider()
	provider.search = func(q string, p int) (*metadata.Page[metadata.MovieRecord], error) {
		assert.Equal(t, "inception", q)
		assert.Equal(t, 1, p)
		res := pageOf(movieRecord(1, "Inception"), movieRecord(0, "No id"), movieRecord(1, "Inception"), movieRecord(2, "Inception 2"))
		res.TotalPages = 3
		return res, nil
	}
	svc, db := newTestCatalog(t, provider)

	res, err := svc.SearchMovies(context.Background(), "  inception ", 0)
	require.NoError(t, err)
	require.Len(t, res.Movies, 2)
	assert.Equal(t, 3, res.TotalPages)
	assert.NotEmpty(t, res.Movies[0].ID)

	_, ok, err := db.FindMovieByTMDBID(context.Background(), 2)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSearchMovies_Validation(t *testing.T) {
	svc, _ := newTestCatalog(t, newFakeProvider())

	_, err := svc.SearchMovies(context.Background(), "   ", 1)
	assert.True(t, errors.Is(err, apperror.ErrValidation))

	_, err = svc.SearchMovies(context.Background(), "x", MaxProviderPage+1)
	assert.True(t, errors.Is(err, apperror.ErrValidation))
}

func TestDiscover_PassesFiltersAndValidates(t *testing.T) {
	provider := newFakeProvider()
	provider.discover = func(metadata.DiscoverParams) (*metadata.Page[metadata.MovieRecord], error) {
		return pageOf(movieRecord(1, "Heat")), nil
	}
	svc, _ := newTestCatalog(t, provider)
	ctx := context.Background()

	res, err := svc.Discover(ctx, DiscoverInput{Genres: []int64{80}, Year: 1995, MinVoteAverage: ptr(7.0), SortBy: "vote_average.desc"})
	require.NoError(t, err)
	require.Len(t, res.Movies, 1)
	assert.Equal(t, []int64{80}, provider.discovered.Genres)
	assert.Equal(t, 1, provider.discovered.Page)

	_, err = svc.Discover(ctx, DiscoverInput{SortBy: "chaos"})
	require.Error(t, err)
	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "sort_by", appErr.Field)

	_, err = svc.Discover(ctx, DiscoverInput{MinVoteAverage: ptr(11.0)})
	assert.True(t, errors.Is(err, apperror.ErrValidation))
}

func TestMovieRecommendations_UnknownMovie(t *testing.T) {
	provider := newFakeProvider()
	provider.related = func(int64, int) (*metadata.Page[metadata.MovieRecord], error) {
		return nil, upstreamNotFound()
	}
	svc, _ := newTestCatalog(t, provider)

	_, err := svc.MovieRecommendations(context.Background(), 5, 1)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestVideos_EmptyIsNotNil(t *testing.T) {
	provider := newFakeProvider()
	provider.videos = func(int64) (*metadata.VideoList, error) { return &metadata.VideoList{ID: 1}, nil }
	svc, _ := newTestCatalog(t, provider)

	videos, err := svc.Videos(context.Background(), 1)
	require.NoError(t, err)
	assert.NotNil(t, videos)
	assert.Empty(t, videos)
}

// =========================================================================
// PEOPLE / GENRE / COMPANY TESTS
// =========================================================================

func TestPersonMovies_FetchesPersonAndDeduplicatesCredits(t *testing.T) {
	provider := newFakeProvider()
	personCalls := 0
	provider.person = func(id int64) (*metadata.PersonRecord, error) {
		personCalls++
		return &metadata.PersonRecord{ID: id, Name: ptr("Christopher Nolan")}, nil
	}
	provider.credits = func(int64) (*metadata.PersonMovieCredits, error) {
		return &metadata.PersonMovieCredits{
			Cast: []metadata.MovieRecord{movieRecord(1, "Following")},
			Crew: []metadata.MovieRecord{movieRecord(1, "Following"), movieRecord(2, "Memento")},
		}, nil
	}
	svc, _ := newTestCatalog(t, provider)
	ctx := context.Background()

	res, err := svc.PersonMovies(ctx, 525)
	require.NoError(t, err)
	assert.Equal(t, "Christopher Nolan", res.Person.Name)
	assert.Len(t, res.Movies, 2)

	_, err = svc.PersonMovies(ctx, 525)
	require.NoError(t, err)
	assert.Equal(t, 1, personCalls, "the stored person is reused")
}

func TestPersonMovies_UnknownPerson(t *testing.T) {
	provider := newFakeProvider()
	provider.person = func(int64) (*metadata.PersonRecord, error) {
		return &metadata.PersonRecord{Envelope: metadata.Envelope{StatusCode: 34}}, nil
	}
	svc, _ := newTestCatalog(t, provider)

	_, err := svc.PersonMovies(context.Background(), 1)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestListGenres_FallsBackToStore(t *testing.T) {
	provider := newFakeProvider()
	up := true
	provider.genres = func() (*metadata.GenreList, error) {
		if !up {
			return nil, upstreamDown()
		}
		return &metadata.GenreList{Genres: []metadata.GenreRecord{{ID: 18, Name: "Drama"}, {ID: 28, Name: "Action"}}}, nil
	}
	svc, _ := newTestCatalog(t, provider)
	ctx := context.Background()

	genres, err := svc.ListGenres(ctx)
	require.NoError(t, err)
	require.Len(t, genres, 2)
	assert.Equal(t, "Action", genres[0].Name)

	up = false
	genres, err = svc.ListGenres(ctx)
	require.NoError(t, err)
	assert.Len(t, genres, 2)
}

func TestGenreMovies(t *testing.T) {
	provider := newFakeProvider()
	syncs := 0
	provider.genres = func() (*metadata.GenreList, error) {
		syncs++
		return &metadata.GenreList{Genres: []metadata.GenreRecord{{ID: 28, Name: "Action"}}}, nil
	}
	provider.discover = func(metadata.DiscoverParams) (*metadata.Page[metadata.MovieRecord], error) {
		return pageOf(movieRecord(1, "Heat")), nil
	}
	svc, _ := newTestCatalog(t, provider)
	ctx := context.Background()

	g, movies, err := svc.GenreMovies(ctx, 28, 1)
	require.NoError(t, err)
	assert.Equal(t, "Action", g.Name)
	assert.Len(t, movies.Movies, 1)
	assert.Equal(t, "popularity.desc", provider.discovered.SortBy)

	_, _, err = svc.GenreMovies(ctx, 28, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, syncs, "known genres do not trigger a sync")

	_, _, err = svc.GenreMovies(ctx, 99, 1)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestCompanyMovies(t *testing.T) {
	provider := newFakeProvider()
	provider.company = func(id int64) (*metadata.CompanyRecord, error) {
		if id != 420 {
			return &metadata.CompanyRecord{Envelope: metadata.Envelope{Success: ptr(false), StatusCode: 34}}, nil
		}
		return &metadata.CompanyRecord{ID: 420, Name: "Marvel Studios"}, nil
	}
	provider.discover = func(metadata.DiscoverParams) (*metadata.Page[metadata.MovieRecord], error) {
		return pageOf(movieRecord(1, "Iron Man")), nil
	}
	svc, _ := newTestCatalog(t, provider)
	ctx := context.Background()

	c, movies, err := svc.CompanyMovies(ctx, 420, 1)
	require.NoError(t, err)
	assert.Equal(t, "Marvel Studios", c.Name)
	assert.Equal(t, []int64{420}, provider.discovered.Companies)
	require.Len(t, movies.Movies, 1)
	assert.Equal(t, "Iron Man", movies.Movies[0].Title)

	_, _, err = svc.CompanyMovies(ctx, 1, 1)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestSearchCompanies_RequiresQuery(t *testing.T) {
	svc, _ := newTestCatalog(t, newFakeProvider())

	_, err := svc.SearchCompanies(context.Background(), "", 1)
	assert.True(t, errors.Is(err, apperror.ErrValidation))
}
