// Package service contains the business logic layer of the application.
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (business layer) → validates, enforces rules, orchestrates
//	Repository (data layer)  → reads/writes the database
//
// Services depend on repository interfaces and on small provider interfaces
// declared here, never on concrete clients, so tests can swap in fakes.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/sakif/movie-tracker/internal/apperror"
	"github.com/sakif/movie-tracker/internal/metadata"
	"github.com/sakif/movie-tracker/internal/model"
	"github.com/sakif/movie-tracker/internal/normalize"
	"github.com/sakif/movie-tracker/internal/repository"
)

// Paging limits. The provider serves at most 500 pages of any listing.
const (
	MaxProviderPage     = 500
	DefaultRefreshAfter = 24 * time.Hour
)

// MovieProvider is the subset of the metadata client the services use.
type MovieProvider interface {
	SearchMovies(ctx context.Context, query string, page int) (*metadata.Page[metadata.MovieRecord], error)
	MovieDetail(ctx context.Context, tmdbID int64) (*metadata.MovieRecord, error)
	PopularMovies(ctx context.Context, page int) (*metadata.Page[metadata.MovieRecord], error)
	NowPlaying(ctx context.Context, page int) (*metadata.Page[metadata.MovieRecord], error)
	MovieRecommendations(ctx context.Context, tmdbID int64, page int) (*metadata.Page[metadata.MovieRecord], error)
	MovieVideos(ctx context.Context, tmdbID int64) (*metadata.VideoList, error)
	Discover(ctx context.Context, params metadata.DiscoverParams) (*metadata.Page[metadata.MovieRecord], error)
	SearchPeople(ctx context.Context, query string, page int) (*metadata.Page[metadata.PersonRecord], error)
	Person(ctx context.Context, tmdbID int64) (*metadata.PersonRecord, error)
	PersonMovieCredits(ctx context.Context, tmdbID int64) (*metadata.PersonMovieCredits, error)
	Genres(ctx context.Context) (*metadata.GenreList, error)
	SearchCompanies(ctx context.Context, query string, page int) (*metadata.Page[metadata.CompanyRecord], error)
	Company(ctx context.Context, companyID int64) (*metadata.CompanyRecord, error)
}

// RatingsProvider enriches a movie with third-party scores. It never fails.
type RatingsProvider interface {
	FetchRatings(ctx context.Context, imdbID string) metadata.Ratings
}

// MoviePage is one page of a movie listing, with every movie stored locally.
type MoviePage struct {
	Movies     []model.Movie
	Page       int
	TotalPages int
	Total      int
}

// PersonPage is one page of a person search.
type PersonPage struct {
	People     []model.Person
	Page       int
	TotalPages int
	Total      int
}

// PersonMovies is a person together with the movies they are credited on.
type PersonMovies struct {
	Person model.Person
	Movies []model.Movie
}

// CatalogService implements fetch-or-create over the local catalog, backed
// by the metadata provider.
type CatalogService struct {
	catalog      repository.CatalogRepository
	provider     MovieProvider
	ratings      RatingsProvider
	refreshAfter time.Duration
	logger       *slog.Logger
	now          func() time.Time
}

// NewCatalogService creates a CatalogService. A non-positive refreshAfter
// uses DefaultRefreshAfter.
func NewCatalogService(
	catalog repository.CatalogRepository,
	provider MovieProvider,
	ratings RatingsProvider,
	refreshAfter time.Duration,
	logger *slog.Logger,
) *CatalogService {
	if refreshAfter <= 0 {
		refreshAfter = DefaultRefreshAfter
	}
	return &CatalogService{
		catalog:      catalog,
		provider:     provider,
		ratings:      ratings,
		refreshAfter: refreshAfter,
		logger:       logger,
		now:          time.Now,
	}
}

func clampPage(page int) (int, error) {
	if page <= 0 {
		return 1, nil
	}
	if page > MaxProviderPage {
		return 0, apperror.ValidationFailed("page", fmt.Sprintf("page must be between 1 and %d", MaxProviderPage))
	}
	return page, nil
}

func requireQuery(q string) (string, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return "", apperror.ValidationFailed("query", "query parameter is required")
	}
	return q, nil
}

func idString(id int64) string {
	return strconv.FormatInt(id, 10)
}

// notFoundIfMissing turns a provider 404 into apperror.ErrNotFound.
func notFoundIfMissing(err error, resource string, id int64) error {
	if metadata.IsNotFound(err) {
		return apperror.NotFound(resource, idString(id))
	}
	return err
}

// isStale reports whether a stored movie should be re-fetched on view.
func (s *CatalogService) isStale(m *model.Movie) bool {
	return m.RefreshedAt == nil || s.now().Sub(*m.RefreshedAt) > s.refreshAfter
}

// === MOVIES ===

// fetchDetail fetches and normalizes a full detail record. An error envelope
// or a provider 404 is apperror.ErrNotFound, and nothing is persisted.
func (s *CatalogService) fetchDetail(ctx context.Context, tmdbID int64) (model.MovieDetail, error) {
	rec, err := s.provider.MovieDetail(ctx, tmdbID)
	if err != nil {
		return model.MovieDetail{}, notFoundIfMissing(err, "movie", tmdbID)
	}
	if rec.IsError() || rec.ID == 0 {
		s.logger.Info("provider has no such movie",
			slog.Int64("tmdbID", tmdbID),
			slog.String("message", rec.Message()),
		)
		return model.MovieDetail{}, apperror.NotFound("movie", idString(tmdbID))
	}

	ratings := s.ratings.FetchRatings(ctx, normalize.IMDbID(*rec))
	return normalize.MovieDetail(*rec, ratings), nil
}

// GetOrFetchMovie returns the stored movie if there is one (existed=true,
// the caller may treat it as a refresh candidate). Otherwise the full detail
// is fetched, persisted and returned.
func (s *CatalogService) GetOrFetchMovie(ctx context.Context, tmdbID int64) (movie *model.Movie, existed bool, err error) {
	m, ok, err := s.catalog.FindMovieByTMDBID(ctx, tmdbID)
	if err != nil {
		return nil, false, fmt.Errorf("service/catalog: looking up movie %d: %w", tmdbID, err)
	}
	if ok {
		return m, true, nil
	}

	detail, err := s.fetchDetail(ctx, tmdbID)
	if err != nil {
		return nil, false, fmt.Errorf("service/catalog: fetching movie %d: %w", tmdbID, err)
	}
	m, err = s.catalog.SaveMovieDetail(ctx, detail)
	if err != nil {
		return nil, false, fmt.Errorf("service/catalog: saving movie %d: %w", tmdbID, err)
	}

	s.logger.Info("movie cached", slog.Int64("tmdbID", tmdbID), slog.String("title", m.Title))
	return m, false, nil
}

// RefreshMovie re-fetches detail and credits, overwriting the stored scalar
// fields and replacing genre links and credits.
func (s *CatalogService) RefreshMovie(ctx context.Context, tmdbID int64) (*model.Movie, error) {
	detail, err := s.fetchDetail(ctx, tmdbID)
	if err != nil {
		return nil, fmt.Errorf("service/catalog: refreshing movie %d: %w", tmdbID, err)
	}
	m, err := s.catalog.SaveMovieDetail(ctx, detail)
	if err != nil {
		return nil, fmt.Errorf("service/catalog: saving movie %d: %w", tmdbID, err)
	}
	return m, nil
}

// MovieDetail serves the detail view. Summary-only or stale rows are
// refreshed first; if that refresh fails for a row that already has a full
// detail, the cached copy is served instead.
func (s *CatalogService) MovieDetail(ctx context.Context, tmdbID int64) (*model.Movie, error) {
	m, existed, err := s.GetOrFetchMovie(ctx, tmdbID)
	if err != nil {
		return nil, err
	}
	if !existed {
		return m, nil
	}
	if !s.isStale(m) {
		return s.detailFromStore(ctx, tmdbID)
	}

	refreshed, err := s.RefreshMovie(ctx, tmdbID)
	if err == nil {
		return refreshed, nil
	}
	if m.RefreshedAt == nil || errors.Is(err, apperror.ErrNotFound) {
		return nil, err
	}

	s.logger.Warn("refresh failed, serving cached movie",
		slog.Int64("tmdbID", tmdbID),
		slog.String("error", err.Error()),
	)
	return s.detailFromStore(ctx, tmdbID)
}

// EnsureMovie returns a movie with full detail for collection writes.
// A row that was fully fetched once is used as is. A summary-only row is
// upgraded, falling back to the summary if the provider is unavailable.
func (s *CatalogService) EnsureMovie(ctx context.Context, tmdbID int64) (*model.Movie, error) {
	m, existed, err := s.GetOrFetchMovie(ctx, tmdbID)
	if err != nil {
		return nil, err
	}
	if !existed || m.RefreshedAt != nil {
		return m, nil
	}

	refreshed, err := s.RefreshMovie(ctx, tmdbID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		s.logger.Warn("detail fetch failed, using summary row",
			slog.Int64("tmdbID", tmdbID),
			slog.String("error", err.Error()),
		)
		return m, nil
	}
	return refreshed, nil
}

func (s *CatalogService) detailFromStore(ctx context.Context, tmdbID int64) (*model.Movie, error) {
	m, err := s.catalog.GetMovieDetail(ctx, tmdbID)
	if err != nil {
		return nil, fmt.Errorf("service/catalog: loading movie %d: %w", tmdbID, err)
	}
	return m, nil
}

// UpsertFromSearchResult stores a listing record's summary fields only.
// Credits are fetched lazily by the detail view or a collection add.
func (s *CatalogService) UpsertFromSearchResult(ctx context.Context, rec metadata.MovieRecord) (*model.Movie, error) {
	if rec.ID == 0 {
		return nil, apperror.ValidationFailed("id", "provider record has no id")
	}
	m, err := s.catalog.UpsertMovieSummary(ctx, normalize.MovieSummary(rec))
	if err != nil {
		return nil, fmt.Errorf("service/catalog: storing search result %d: %w", rec.ID, err)
	}
	return m, nil
}

// storePage upserts every record on a listing page, skipping records
// without an id and repeated ids.
func (s *CatalogService) storePage(ctx context.Context, page *metadata.Page[metadata.MovieRecord]) (*MoviePage, error) {
	movies, err := s.storeRecords(ctx, page.Results)
	if err != nil {
		return nil, err
	}
	return &MoviePage{
		Movies:     movies,
		Page:       max(page.Page, 1),
		TotalPages: page.TotalPages,
		Total:      page.TotalResults,
	}, nil
}

func (s *CatalogService) storeRecords(ctx context.Context, recs []metadata.MovieRecord) ([]model.Movie, error) {
	movies := make([]model.Movie, 0, len(recs))
	seen := make(map[int64]bool, len(recs))
	for _, rec := range recs {
		if rec.ID == 0 || seen[rec.ID] {
			continue
		}
		seen[rec.ID] = true

		m, err := s.UpsertFromSearchResult(ctx, rec)
		if err != nil {
			return nil, err
		}
		movies = append(movies, *m)
	}
	return movies, nil
}

// SearchMovies runs a title search and caches every result.
func (s *CatalogService) SearchMovies(ctx context.Context, query string, page int) (*MoviePage, error) {
	query, err := requireQuery(query)
	if err != nil {
		return nil, err
	}
	if page, err = clampPage(page); err != nil {
		return nil, err
	}

	res, err := s.provider.SearchMovies(ctx, query, page)
	if err != nil {
		return nil, fmt.Errorf("service/catalog: searching %q: %w", query, err)
	}
	return s.storePage(ctx, res)
}

func (s *CatalogService) PopularMovies(ctx context.Context, page int) (*MoviePage, error) {
	page, err := clampPage(page)
	if err != nil {
		return nil, err
	}
	res, err := s.provider.PopularMovies(ctx, page)
	if err != nil {
		return nil, fmt.Errorf("service/catalog: listing popular movies: %w", err)
	}
	return s.storePage(ctx, res)
}

func (s *CatalogService) NowShowing(ctx context.Context, page int) (*MoviePage, error) {
	page, err := clampPage(page)
	if err != nil {
		return nil, err
	}
	res, err := s.provider.NowPlaying(ctx, page)
	if err != nil {
		return nil, fmt.Errorf("service/catalog: listing now showing: %w", err)
	}
	return s.storePage(ctx, res)
}

// DiscoverInput is the advanced multi-criteria search.
type DiscoverInput struct {
	Genres         []int64  `json:"with_genres" validate:"dive,gt=0"`
	Year           int      `json:"year" validate:"omitempty,gte=1870,lte=2100"`
	MinVoteAverage *float64 `json:"vote_average_gte" validate:"omitempty,gte=0,lte=10"`
	People         []int64  `json:"with_people" validate:"dive,gt=0"`
	Companies      []int64  `json:"with_companies" validate:"dive,gt=0"`
	SortBy         string   `json:"sort_by" validate:"omitempty,oneof=popularity.asc popularity.desc vote_average.asc vote_average.desc primary_release_date.asc primary_release_date.desc revenue.asc revenue.desc title.asc title.desc"`
	Page           int      `json:"page" validate:"gte=0,lte=500"`
}

// Discover runs an advanced search over the provider catalog.
func (s *CatalogService) Discover(ctx context.Context, in DiscoverInput) (*MoviePage, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	page, _ := clampPage(in.Page)

	res, err := s.provider.Discover(ctx, metadata.DiscoverParams{
		Genres:         in.Genres,
		Year:           in.Year,
		MinVoteAverage: in.MinVoteAverage,
		People:         in.People,
		Companies:      in.Companies,
		SortBy:         in.SortBy,
		Page:           page,
	})
	if err != nil {
		return nil, fmt.Errorf("service/catalog: discovering movies: %w", err)
	}
	return s.storePage(ctx, res)
}

// MovieRecommendations lists the provider's related picks for one movie.
func (s *CatalogService) MovieRecommendations(ctx context.Context, tmdbID int64, page int) (*MoviePage, error) {
	page, err := clampPage(page)
	if err != nil {
		return nil, err
	}
	res, err := s.provider.MovieRecommendations(ctx, tmdbID, page)
	if err != nil {
		return nil, fmt.Errorf("service/catalog: recommendations for movie %d: %w", tmdbID, notFoundIfMissing(err, "movie", tmdbID))
	}
	return s.storePage(ctx, res)
}

// Videos returns the provider's trailers and clips for a movie.
func (s *CatalogService) Videos(ctx context.Context, tmdbID int64) ([]metadata.VideoRecord, error) {
	res, err := s.provider.MovieVideos(ctx, tmdbID)
	if err != nil {
		return nil, fmt.Errorf("service/catalog: videos for movie %d: %w", tmdbID, notFoundIfMissing(err, "movie", tmdbID))
	}
	if res.Results == nil {
		return []metadata.VideoRecord{}, nil
	}
	return res.Results, nil
}

// === PEOPLE ===

// SearchPeople runs a person search and caches every result.
func (s *CatalogService) SearchPeople(ctx context.Context, query string, page int) (*PersonPage, error) {
	query, err := requireQuery(query)
	if err != nil {
		return nil, err
	}
	if page, err = clampPage(page); err != nil {
		return nil, err
	}

	res, err := s.provider.SearchPeople(ctx, query, page)
	if err != nil {
		return nil, fmt.Errorf("service/catalog: searching people %q: %w", query, err)
	}

	out := &PersonPage{
		People:     make([]model.Person, 0, len(res.Results)),
		Page:       max(res.Page, 1),
		TotalPages: res.TotalPages,
		Total:      res.TotalResults,
	}
	seen := make(map[int64]bool)
	for _, rec := range res.Results {
		if rec.ID == 0 || seen[rec.ID] {
			continue
		}
		seen[rec.ID] = true
		p, err := s.catalog.UpsertPerson(ctx, normalize.Person(rec))
		if err != nil {
			return nil, fmt.Errorf("service/catalog: storing person %d: %w", rec.ID, err)
		}
		out.People = append(out.People, *p)
	}
	return out, nil
}

// getOrFetchPerson is fetch-or-create for people.
func (s *CatalogService) getOrFetchPerson(ctx context.Context, tmdbID int64) (*model.Person, error) {
	p, ok, err := s.catalog.FindPersonByTMDBID(ctx, tmdbID)
	if err != nil {
		return nil, fmt.Errorf("service/catalog: looking up person %d: %w", tmdbID, err)
	}
	if ok {
		return p, nil
	}

	rec, err := s.provider.Person(ctx, tmdbID)
	if err != nil {
		return nil, fmt.Errorf("service/catalog: fetching person %d: %w", tmdbID, notFoundIfMissing(err, "person", tmdbID))
	}
	if rec.IsError() || rec.ID == 0 {
		return nil, apperror.NotFound("person", idString(tmdbID))
	}

	p, err = s.catalog.UpsertPerson(ctx, normalize.Person(*rec))
	if err != nil {
		return nil, fmt.Errorf("service/catalog: storing person %d: %w", tmdbID, err)
	}
	return p, nil
}

// PersonMovies returns a person and every movie they acted in or worked on,
// each movie listed once.
func (s *CatalogService) PersonMovies(ctx context.Context, personTMDBID int64) (*PersonMovies, error) {
	p, err := s.getOrFetchPerson(ctx, personTMDBID)
	if err != nil {
		return nil, err
	}

	credits, err := s.provider.PersonMovieCredits(ctx, personTMDBID)
	if err != nil {
		return nil, fmt.Errorf("service/catalog: credits for person %d: %w", personTMDBID, notFoundIfMissing(err, "person", personTMDBID))
	}

	recs := make([]metadata.MovieRecord, 0, len(credits.Cast)+len(credits.Crew))
	recs = append(recs, credits.Cast...)
	recs = append(recs, credits.Crew...)

	movies, err := s.storeRecords(ctx, recs)
	if err != nil {
		return nil, err
	}
	return &PersonMovies{Person: *p, Movies: movies}, nil
}

// === GENRES ===

func (s *CatalogService) syncGenres(ctx context.Context) error {
	list, err := s.provider.Genres(ctx)
	if err != nil {
		return err
	}
	return s.catalog.UpsertGenres(ctx, normalize.Genres(list.Genres))
}

// ListGenres backfills genres from the provider and returns every stored
// genre by name. If the provider is unavailable the local list is served.
func (s *CatalogService) ListGenres(ctx context.Context) ([]model.Genre, error) {
	if err := s.syncGenres(ctx); err != nil {
		s.logger.Warn("genre sync failed, serving stored genres", slog.String("error", err.Error()))
	}
	genres, err := s.catalog.ListGenres(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/catalog: listing genres: %w", err)
	}
	return genres, nil
}

// GenreMovies resolves the genre locally, backfilling the genre list once
// if it is unknown, and lists movies in it by popularity.
func (s *CatalogService) GenreMovies(ctx context.Context, genreTMDBID int64, page int) (*model.Genre, *MoviePage, error) {
	page, err := clampPage(page)
	if err != nil {
		return nil, nil, err
	}

	g, ok, err := s.catalog.FindGenreByTMDBID(ctx, genreTMDBID)
	if err != nil {
		return nil, nil, fmt.Errorf("service/catalog: looking up genre %d: %w", genreTMDBID, err)
	}
	if !ok {
		if err := s.syncGenres(ctx); err != nil {
			return nil, nil, fmt.Errorf("service/catalog: syncing genres: %w", err)
		}
		if g, ok, err = s.catalog.FindGenreByTMDBID(ctx, genreTMDBID); err != nil {
			return nil, nil, fmt.Errorf("service/catalog: looking up genre %d: %w", genreTMDBID, err)
		}
		if !ok {
			return nil, nil, apperror.NotFound("genre", idString(genreTMDBID))
		}
	}

	res, err := s.provider.Discover(ctx, metadata.DiscoverParams{
		Genres: []int64{genreTMDBID},
		SortBy: "popularity.desc",
		Page:   page,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("service/catalog: movies for genre %d: %w", genreTMDBID, err)
	}
	movies, err := s.storePage(ctx, res)
	if err != nil {
		return nil, nil, err
	}
	return g, movies, nil
}

// === COMPANIES ===

// SearchCompanies passes a company search through. Companies are not stored.
func (s *CatalogService) SearchCompanies(ctx context.Context, query string, page int) (*metadata.Page[metadata.CompanyRecord], error) {
	query, err := requireQuery(query)
	if err != nil {
		return nil, err
	}
	if page, err = clampPage(page); err != nil {
		return nil, err
	}
	res, err := s.provider.SearchCompanies(ctx, query, page)
	if err != nil {
		return nil, fmt.Errorf("service/catalog: searching companies %q: %w", query, err)
	}
	if res.Results == nil {
		res.Results = []metadata.CompanyRecord{}
	}
	return res, nil
}

// CompanyDetail fetches one company from the provider.
func (s *CatalogService) CompanyDetail(ctx context.Context, companyID int64) (*metadata.CompanyRecord, error) {
	company, err := s.provider.Company(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("service/catalog: fetching company %d: %w", companyID, notFoundIfMissing(err, "company", companyID))
	}
	if company.IsError() || company.ID == 0 {
		return nil, apperror.NotFound("company", idString(companyID))
	}
	return company, nil
}

// CompanyMovies returns the company and its movies by popularity.
func (s *CatalogService) CompanyMovies(ctx context.Context, companyID int64, page int) (*metadata.CompanyRecord, *MoviePage, error) {
	page, err := clampPage(page)
	if err != nil {
		return nil, nil, err
	}

	company, err := s.CompanyDetail(ctx, companyID)
	if err != nil {
		return nil, nil, err
	}

	res, err := s.provider.Discover(ctx, metadata.DiscoverParams{
		Companies: []int64{companyID},
		SortBy:    "popularity.desc",
		Page:      page,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("service/catalog: movies for company %d: %w", companyID, err)
	}
	movies, err := s.storePage(ctx, res)
	if err != nil {
		return nil, nil, err
	}
	return company, movies, nil
}
