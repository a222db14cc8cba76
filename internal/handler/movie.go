package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/sakif/movie-tracker/internal/apperror"
	"github.com/sakif/movie-tracker/internal/auth"
	"github.com/sakif/movie-tracker/internal/metadata"
	"github.com/sakif/movie-tracker/internal/model"
	"github.com/sakif/movie-tracker/internal/service"
)

// Catalog is the browse side of the API. *service.CatalogService
// implements it.
type Catalog interface {
	SearchMovies(ctx context.Context, query string, page int) (*service.MoviePage, error)
	PopularMovies(ctx context.Context, page int) (*service.MoviePage, error)
	NowShowing(ctx context.Context, page int) (*service.MoviePage, error)
	Discover(ctx context.Context, in service.DiscoverInput) (*service.MoviePage, error)
	MovieDetail(ctx context.Context, tmdbID int64) (*model.Movie, error)
	MovieRecommendations(ctx context.Context, tmdbID int64, page int) (*service.MoviePage, error)
	Videos(ctx context.Context, tmdbID int64) ([]metadata.VideoRecord, error)

	SearchPeople(ctx context.Context, query string, page int) (*service.PersonPage, error)
	PersonMovies(ctx context.Context, personTMDBID int64) (*service.PersonMovies, error)
	ListGenres(ctx context.Context) ([]model.Genre, error)
	GenreMovies(ctx context.Context, genreTMDBID int64, page int) (*model.Genre, *service.MoviePage, error)
	SearchCompanies(ctx context.Context, query string, page int) (*metadata.Page[metadata.CompanyRecord], error)
	CompanyDetail(ctx context.Context, companyID int64) (*metadata.CompanyRecord, error)
	CompanyMovies(ctx context.Context, companyID int64, page int) (*metadata.CompanyRecord, *service.MoviePage, error)
}

// Annotator reports the caller's collection state for listed movies.
type Annotator interface {
	Annotate(ctx context.Context, userID string, movies []model.Movie) (map[string]service.Annotation, error)
}

// MovieHandler serves movie search, listings and detail.
type MovieHandler struct {
	catalog   Catalog
	annotator Annotator
	logger    *slog.Logger
}

func NewMovieHandler(catalog Catalog, annotator Annotator, logger *slog.Logger) *MovieHandler {
	return &MovieHandler{catalog: catalog, annotator: annotator, logger: logger}
}

// annotate looks up collection state for signed-in callers. A failure only
// costs the annotation, so it is logged and the listing still served.
func (h *MovieHandler) annotate(r *http.Request, movies []model.Movie) map[string]service.Annotation {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		return nil
	}
	notes, err := h.annotator.Annotate(r.Context(), userID, movies)
	if err != nil {
		h.logger.Warn("annotating movies failed", slog.String("error", err.Error()))
		return nil
	}
	return notes
}

func (h *MovieHandler) writePage(w http.ResponseWriter, r *http.Request, page *service.MoviePage) {
	writeJSON(w, http.StatusOK, listView[movieView]{
		Results:    toMovies(page.Movies, h.annotate(r, page.Movies)),
		Page:       page.Page,
		TotalPages: page.TotalPages,
		Total:      page.Total,
	})
}

// listing adapts a paginated catalog call to a handler.
func (h *MovieHandler) listing(fetch func(r *http.Request, page int) (*service.MoviePage, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := queryInt(r, "page")
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		res, err := fetch(r, page)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		h.writePage(w, r, res)
	}
}

// HandleSearch serves GET /api/movies/search?query=...&page=N.
func (h *MovieHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	h.listing(func(r *http.Request, page int) (*service.MoviePage, error) {
		return h.catalog.SearchMovies(r.Context(), r.URL.Query().Get("query"), page)
	})(w, r)
}

func (h *MovieHandler) HandlePopular(w http.ResponseWriter, r *http.Request) {
	h.listing(func(r *http.Request, page int) (*service.MoviePage, error) {
		return h.catalog.PopularMovies(r.Context(), page)
	})(w, r)
}

func (h *MovieHandler) HandleNowShowing(w http.ResponseWriter, r *http.Request) {
	h.listing(func(r *http.Request, page int) (*service.MoviePage, error) {
		return h.catalog.NowShowing(r.Context(), page)
	})(w, r)
}

// HandleDiscover serves GET /api/movies/discover with any of
// with_genres, year, vote_average_gte, with_people, with_companies
// (comma-separated ids), sort_by and page.
func (h *MovieHandler) HandleDiscover(w http.ResponseWriter, r *http.Request) {
	in, err := parseDiscover(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	res, err := h.catalog.Discover(r.Context(), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.writePage(w, r, res)
}

func parseDiscover(r *http.Request) (service.DiscoverInput, error) {
	q := r.URL.Query()
	var in service.DiscoverInput
	var err error

	if in.Genres, err = idList(q.Get("with_genres"), "with_genres"); err != nil {
		return in, err
	}
	if in.People, err = idList(q.Get("with_people"), "with_people"); err != nil {
		return in, err
	}
	if in.Companies, err = idList(q.Get("with_companies"), "with_companies"); err != nil {
		return in, err
	}
	if in.Year, err = queryInt(r, "year"); err != nil {
		return in, err
	}
	if in.Page, err = queryInt(r, "page"); err != nil {
		return in, err
	}
	if raw := q.Get("vote_average_gte"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return in, apperror.ValidationFailed("vote_average_gte", "vote_average_gte must be a number")
		}
		in.MinVoteAverage = &v
	}
	in.SortBy = q.Get("sort_by")
	return in, nil
}

func idList(raw, field string) ([]int64, error) {
	if raw == "" {
		return nil, nil
	}
	var out []int64
	for _, part := range strings.Split(raw, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, apperror.ValidationFailed(field, field+" must be a comma-separated list of ids")
		}
		out = append(out, id)
	}
	return out, nil
}

// HandleDetail serves GET /api/movies/{tmdbID} with genres and credits.
func (h *MovieHandler) HandleDetail(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "tmdbID")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	m, err := h.catalog.MovieDetail(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	notes := h.annotate(r, []model.Movie{*m})
	writeJSON(w, http.StatusOK, toMovie(*m, notes[m.ID]))
}

func (h *MovieHandler) HandleVideos(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "tmdbID")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	videos, err := h.catalog.Videos(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": videos})
}

// HandleRelated serves GET /api/movies/{tmdbID}/recommendations, the
// provider's picks for one movie.
func (h *MovieHandler) HandleRelated(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "tmdbID")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.listing(func(r *http.Request, page int) (*service.MoviePage, error) {
		return h.catalog.MovieRecommendations(r.Context(), id, page)
	})(w, r)
}
