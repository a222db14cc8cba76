package handler

import (
	"net/http"

	"github.com/sakif/movie-tracker/internal/metadata"
	"github.com/sakif/movie-tracker/internal/service"
)

// People, genres and companies share the movie handler's dependencies.

func (h *MovieHandler) HandleSearchPeople(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	res, err := h.catalog.SearchPeople(r.Context(), r.URL.Query().Get("query"), page)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	people := make([]personView, len(res.People))
	for i, p := range res.People {
		people[i] = toPerson(p)
	}
	writeJSON(w, http.StatusOK, listView[personView]{
		Results:    people,
		Page:       res.Page,
		TotalPages: res.TotalPages,
		Total:      res.Total,
	})
}

func (h *MovieHandler) HandlePersonMovies(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "personID")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	res, err := h.catalog.PersonMovies(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"person":  toPerson(res.Person),
		"results": toMovies(res.Movies, h.annotate(r, res.Movies)),
	})
}

func (h *MovieHandler) HandleGenres(w http.ResponseWriter, r *http.Request) {
	genres, err := h.catalog.ListGenres(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": toGenres(genres)})
}

func (h *MovieHandler) HandleGenreMovies(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "genreID")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	page, err := queryInt(r, "page")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	g, res, err := h.catalog.GenreMovies(r.Context(), id, page)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"genre":         genreView{ID: g.TMDBID, Name: g.Name},
		"results":       toMovies(res.Movies, h.annotate(r, res.Movies)),
		"page":          res.Page,
		"total_pages":   res.TotalPages,
		"total_results": res.Total,
	})
}

func (h *MovieHandler) HandleSearchCompanies(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	res, err := h.catalog.SearchCompanies(r.Context(), r.URL.Query().Get("query"), page)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, listView[metadata.CompanyRecord]{
		Results:    res.Results,
		Page:       res.Page,
		TotalPages: res.TotalPages,
		Total:      res.TotalResults,
	})
}

func (h *MovieHandler) HandleCompany(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "companyID")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	c, err := h.catalog.CompanyDetail(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *MovieHandler) HandleCompanyMovies(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "companyID")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	page, err := queryInt(r, "page")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	c, res, err := h.catalog.CompanyMovies(r.Context(), id, page)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"company":       c,
		"results":       toMovies(res.Movies, h.annotate(r, res.Movies)),
		"page":          res.Page,
		"total_pages":   res.TotalPages,
		"total_results": res.Total,
	})
}

var _ Catalog = (*service.CatalogService)(nil)
