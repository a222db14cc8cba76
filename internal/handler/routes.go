package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/movie-tracker/internal/auth"
)

// Handlers groups everything Register mounts.
type Handlers struct {
	Movies     *MovieHandler
	Collection *CollectionHandler
	Auth       *AuthHandler
	Tokens     *auth.TokenService
}

// Register mounts the API under /api.
//
// ROUTE STRUCTURE:
//
//	POST   /api/auth/register                   → create account, token pair
//	POST   /api/auth/token                      → email + password → token pair
//	POST   /api/auth/token/refresh              → refresh token → new pair
//	GET    /api/auth/github/login               → redirect to GitHub
//	GET    /api/auth/github/callback            → GitHub sign-in → token pair
//
//	GET    /api/movies/search                   → ?query=&page=
//	GET    /api/movies/popular                  → ?page=
//	GET    /api/movies/now_showing              → ?page=
//	GET    /api/movies/discover                 → multi-criteria search
//	GET    /api/movies/{tmdbID}                 → detail with credits
//	GET    /api/movies/{tmdbID}/videos
//	GET    /api/movies/{tmdbID}/recommendations → provider's related movies
//	PUT    /api/movies/{tmdbID}/rating          → [auth] rate
//
//	GET    /api/people/search
//	GET    /api/people/{personID}/movies
//	GET    /api/genres
//	GET    /api/genres/{genreID}/movies
//	GET    /api/companies/search
//	GET    /api/companies/{companyID}
//	GET    /api/companies/{companyID}/movies
//
//	GET    /api/collection                      → [auth] ?limit=&offset=
//	POST   /api/collection                      → [auth] add or update
//	DELETE /api/collection/{tmdbID}             → [auth]
//	GET    /api/recommendations                 → [auth]
//
// Browse routes run under OptionalAuth so a signed-in caller's listings
// carry in_collection and user_rating.
func Register(r chi.Router, h Handlers) {
	requireAuth := auth.RequireAuth(h.Tokens, func(w http.ResponseWriter, r *http.Request, err error) {
		w.Header().Set("WWW-Authenticate", `Bearer realm="movie-tracker"`)
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "valid authentication required", Code: "unauthorized"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.Auth.HandleRegister)
			r.Post("/token", h.Auth.HandleToken)
			r.Post("/token/refresh", h.Auth.HandleRefresh)
			r.Get("/github/login", h.Auth.HandleGitHubLogin)
			r.Get("/github/callback", h.Auth.HandleGitHubCallback)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.OptionalAuth(h.Tokens))

			r.Get("/movies/search", h.Movies.HandleSearch)
			r.Get("/movies/popular", h.Movies.HandlePopular)
			r.Get("/movies/now_showing", h.Movies.HandleNowShowing)
			r.Get("/movies/discover", h.Movies.HandleDiscover)
			r.Get("/movies/{tmdbID}", h.Movies.HandleDetail)
			r.Get("/movies/{tmdbID}/videos", h.Movies.HandleVideos)
			r.Get("/movies/{tmdbID}/recommendations", h.Movies.HandleRelated)

			r.Get("/people/search", h.Movies.HandleSearchPeople)
			r.Get("/people/{personID}/movies", h.Movies.HandlePersonMovies)
			r.Get("/genres", h.Movies.HandleGenres)
			r.Get("/genres/{genreID}/movies", h.Movies.HandleGenreMovies)
			r.Get("/companies/search", h.Movies.HandleSearchCompanies)
			r.Get("/companies/{companyID}", h.Movies.HandleCompany)
			r.Get("/companies/{companyID}/movies", h.Movies.HandleCompanyMovies)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)

			r.Put("/movies/{tmdbID}/rating", h.Collection.HandleRate)
			r.Get("/collection", h.Collection.HandleList)
			r.Post("/collection", h.Collection.HandleAdd)
			r.Delete("/collection/{tmdbID}", h.Collection.HandleRemove)
			r.Get("/recommendations", h.Collection.HandleRecommendations)
		})
	})
}
