package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/movie-tracker/internal/apperror"
	"github.com/sakif/movie-tracker/internal/auth"
	"github.com/sakif/movie-tracker/internal/model"
	"github.com/sakif/movie-tracker/internal/repository"
	"github.com/sakif/movie-tracker/internal/service"
)

// Collection is the per-user watched list. *service.CollectionService
// implements it.
type Collection interface {
	Annotator
	Add(ctx context.Context, userID string, in service.AddInput) (*model.CollectionEntry, error)
	Rate(ctx context.Context, userID string, tmdbID int64, rating any) (*model.CollectionEntry, error)
	Remove(ctx context.Context, userID string, tmdbID int64) error
	List(ctx context.Context, userID string, opts repository.ListOptions) ([]model.CollectionEntry, int, error)
}

// Recommender produces recommendations from a user's collection.
type Recommender interface {
	Recommend(ctx context.Context, userID string) ([]service.Recommendation, error)
}

var (
	_ Collection  = (*service.CollectionService)(nil)
	_ Recommender = (*service.RecommendationService)(nil)
)

// CollectionHandler serves the authenticated collection, rating and
// recommendation endpoints. Every route it handles sits behind
// auth.RequireAuth, so a missing user id is a wiring bug, not a client error.
type CollectionHandler struct {
	collection  Collection
	recommender Recommender
	logger      *slog.Logger
}

func NewCollectionHandler(collection Collection, recommender Recommender, logger *slog.Logger) *CollectionHandler {
	return &CollectionHandler{collection: collection, recommender: recommender, logger: logger}
}

type collectionPage struct {
	Results []entryView `json:"results"`
	Total   int         `json:"total"`
}

func (h *CollectionHandler) userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, r, h.logger, apperror.Unauthorized("valid authentication required"))
	}
	return id, ok
}

// HandleList serves GET /api/collection?limit=N&offset=M, newest first.
func (h *CollectionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	entries, total, err := h.collection.List(r.Context(), userID, repository.ListOptions{Limit: limit, Offset: offset})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	out := collectionPage{Results: make([]entryView, len(entries)), Total: total}
	for i, e := range entries {
		out.Results[i] = toEntry(e)
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleAdd serves POST /api/collection with {tmdb_id, rating?, notes?}.
// Adding a movie already in the collection updates it in place.
func (h *CollectionHandler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var in service.AddInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	entry, err := h.collection.Add(r.Context(), userID, in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntry(*entry))
}

// HandleRemove serves DELETE /api/collection/{tmdbID}.
func (h *CollectionHandler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "tmdbID")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.collection.Remove(r.Context(), userID, id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRate serves PUT /api/movies/{tmdbID}/rating with {rating}.
// Rating a movie not yet collected adds it.
func (h *CollectionHandler) HandleRate(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "tmdbID")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var body struct {
		Rating any `json:"rating"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	entry, err := h.collection.Rate(r.Context(), userID, id, body.Rating)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntry(*entry))
}

// HandleRecommendations serves GET /api/recommendations. A completion
// outage still answers 200 with popular movies; only bad completion
// credentials surface as an error.
func (h *CollectionHandler) HandleRecommendations(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	recs, err := h.recommender.Recommend(r.Context(), userID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	movies := make([]model.Movie, len(recs))
	for i, rec := range recs {
		movies[i] = rec.Movie
	}
	notes, err := h.collection.Annotate(r.Context(), userID, movies)
	if err != nil {
		h.logger.Warn("annotating recommendations failed", slog.String("error", err.Error()))
	}

	out := make([]movieView, len(recs))
	for i, rec := range recs {
		out[i] = toMovie(rec.Movie, notes[rec.Movie.ID])
		out[i].Source = rec.Source
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": out})
}
