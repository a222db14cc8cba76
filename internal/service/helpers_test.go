package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sakif/movie-tracker/internal/apperror"
	"github.com/sakif/movie-tracker/internal/metadata"
	"github.com/sakif/movie-tracker/internal/model"
	"github.com/sakif/movie-tracker/internal/repository/sqlite"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestStore opens a real in-memory database. Services are tested against
// the actual SQL so fetch-or-create and credit replacement are exercised
// end to end.
func newTestStore(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func createUser(t *testing.T, db *sqlite.DB, email string) *model.User {
	t.Helper()
	u := &model.User{Email: email, PasswordHash: "hash"}
	require.NoError(t, db.CreateUser(context.Background(), u))
	return u
}

func ptr[T any](v T) *T { return &v }

// upstreamNotFound is what the metadata client returns for a provider 404.
func upstreamNotFound() error {
	return apperror.Upstream("tmdb", &metadata.StatusError{Service: "tmdb", StatusCode: 404})
}

func upstreamDown() error {
	return apperror.Upstream("tmdb", &metadata.StatusError{Service: "tmdb", StatusCode: 503})
}

func movieRecord(id int64, title string) metadata.MovieRecord {
	return metadata.MovieRecord{
		ID:          id,
		Title:       ptr(title),
		Overview:    ptr(title + " overview"),
		ReleaseDate: ptr("2010-07-16"),
		VoteAverage: ptr(7.5),
	}
}

func detailRecord(id int64, title, actor string) metadata.MovieRecord {
	rec := movieRecord(id, title)
	rec.Genres = []metadata.GenreRecord{{ID: 28, Name: "Action"}}
	rec.ExternalIDs = &metadata.ExternalIDs{IMDbID: ptr("tt1375666")}
	rec.Credits = &metadata.CreditsRecord{
		Cast: []metadata.CastRecord{{ID: 6193, Name: ptr(actor), Character: ptr("Cobb"), Order: ptr(0)}},
		Crew: []metadata.CrewRecord{{ID: 525, Name: ptr("Christopher Nolan"), Department: ptr("Directing"), Job: ptr("Director")}},
	}
	return rec
}

func pageOf(recs ...metadata.MovieRecord) *metadata.Page[metadata.MovieRecord] {
	return &metadata.Page[metadata.MovieRecord]{Page: 1, Results: recs, TotalPages: 1, TotalResults: len(recs)}
}

// fakeProvider is an in-memory MovieProvider. Detail records come from the
// details map; every other call goes to the matching func field.
type fakeProvider struct {
	mu          sync.Mutex
	details     map[int64]metadata.MovieRecord
	detailErr   error
	detailCalls map[int64]int

	search      func(query string, page int) (*metadata.Page[metadata.MovieRecord], error)
	popular     func(page int) (*metadata.Page[metadata.MovieRecord], error)
	nowPlaying  func(page int) (*metadata.Page[metadata.MovieRecord], error)
	related     func(id int64, page int) (*metadata.Page[metadata.MovieRecord], error)
	videos      func(id int64) (*metadata.VideoList, error)
	discover    func(params metadata.DiscoverParams) (*metadata.Page[metadata.MovieRecord], error)
	people      func(query string, page int) (*metadata.Page[metadata.PersonRecord], error)
	person      func(id int64) (*metadata.PersonRecord, error)
	credits     func(id int64) (*metadata.PersonMovieCredits, error)
	genres      func() (*metadata.GenreList, error)
	companies   func(query string, page int) (*metadata.Page[metadata.CompanyRecord], error)
	company     func(id int64) (*metadata.CompanyRecord, error)
	discovered  metadata.DiscoverParams
}

var _ MovieProvider = (*fakeProvider)(nil)

func newFakeProvider(details ...metadata.MovieRecord) *fakeProvider {
	f := &fakeProvider{
		details:     make(map[int64]metadata.MovieRecord),
		detailCalls: make(map[int64]int),
	}
	for _, d := range details {
		f.details[d.ID] = d
	}
	return f
}

func (f *fakeProvider) calls(id int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.detailCalls[id]
}

func (f *fakeProvider) MovieDetail(_ context.Context, id int64) (*metadata.MovieRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detailCalls[id]++
	if f.detailErr != nil {
		return nil, f.detailErr
	}
	rec, ok := f.details[id]
	if !ok {
		return nil, upstreamNotFound()
	}
	return &rec, nil
}

func (f *fakeProvider) SearchMovies(_ context.Context, q string, p int) (*metadata.Page[metadata.MovieRecord], error) {
	return f.search(q, p)
}

func (f *fakeProvider) PopularMovies(_ context.Context, p int) (*metadata.Page[metadata.MovieRecord], error) {
	return f.popular(p)
}

func (f *fakeProvider) NowPlaying(_ context.Context, p int) (*metadata.Page[metadata.MovieRecord], error) {
	return f.nowPlaying(p)
}

func (f *fakeProvider) MovieRecommendations(_ context.Context, id int64, p int) (*metadata.Page[metadata.MovieRecord], error) {
	return f.related(id, p)
}

func (f *fakeProvider) MovieVideos(_ context.Context, id int64) (*metadata.VideoList, error) {
	return f.videos(id)
}

func (f *fakeProvider) Discover(_ context.Context, params metadata.DiscoverParams) (*metadata.Page[metadata.MovieRecord], error) {
	f.mu.Lock()
	f.discovered = params
	f.mu.Unlock()
	return f.discover(params)
}

func (f *fakeProvider) SearchPeople(_ context.Context, q string, p int) (*metadata.Page[metadata.PersonRecord], error) {
	return f.people(q, p)
}

func (f *fakeProvider) Person(_ context.Context, id int64) (*metadata.PersonRecord, error) {
	return f.person(id)
}

func (f *fakeProvider) PersonMovieCredits(_ context.Context, id int64) (*metadata.PersonMovieCredits, error) {
	return f.credits(id)
}

func (f *fakeProvider) Genres(_ context.Context) (*metadata.GenreList, error) {
	return f.genres()
}

func (f *fakeProvider) SearchCompanies(_ context.Context, q string, p int) (*metadata.Page[metadata.CompanyRecord], error) {
	return f.companies(q, p)
}

func (f *fakeProvider) Company(_ context.Context, id int64) (*metadata.CompanyRecord, error) {
	return f.company(id)
}

// fixedRatings always returns the same scores.
type fixedRatings struct {
	ratings metadata.Ratings
	asked   []string
	mu      sync.Mutex
}

func (r *fixedRatings) FetchRatings(_ context.Context, imdbID string) metadata.Ratings {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.asked = append(r.asked, imdbID)
	return r.ratings
}

func newTestCatalog(t *testing.T, provider *fakeProvider) (*CatalogService, *sqlite.DB) {
	t.Helper()
	db := newTestStore(t)
	ratings := &fixedRatings{ratings: metadata.Ratings{IMDb: ptr(8.8), RottenTomatoes: ptr(87)}}
	return NewCatalogService(db, provider, ratings, 0, testLogger()), db
}
