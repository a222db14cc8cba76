package handler

import (
	"time"

	"github.com/sakif/movie-tracker/internal/model"
	"github.com/sakif/movie-tracker/internal/normalize"
	"github.com/sakif/movie-tracker/internal/service"
)

// API representations. The id clients see is always the provider id;
// local surrogate ids stay internal.

type genreView struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type personView struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	ProfilePath string `json:"profile_path"`
}

type castView struct {
	personView
	Character string `json:"character"`
	Order     int    `json:"order"`
}

type crewView struct {
	personView
	Department string `json:"department"`
	Job        string `json:"job"`
}

type movieView struct {
	ID                   int64       `json:"id"`
	Title                string      `json:"title"`
	Overview             string      `json:"overview"`
	PosterPath           string      `json:"poster_path"`
	BackdropPath         string      `json:"backdrop_path"`
	ReleaseDate          *string     `json:"release_date"`
	VoteAverage          *float64    `json:"vote_average"`
	IMDbRating           *float64    `json:"imdb_rating"`
	RottenTomatoesRating *int        `json:"rotten_tomatoes_rating"`
	Genres               []genreView `json:"genres,omitempty"`
	Cast                 []castView  `json:"cast,omitempty"`
	Crew                 []crewView  `json:"crew,omitempty"`
	InCollection         bool        `json:"in_collection"`
	UserRating           *int        `json:"user_rating"`
	Source               string      `json:"source,omitempty"`
}

type entryView struct {
	Movie     movieView `json:"movie"`
	Rating    *int      `json:"rating"`
	Notes     string    `json:"notes"`
	WatchedAt time.Time `json:"watched_at"`
}

// listView is the envelope of every paginated listing.
type listView[T any] struct {
	Results    []T `json:"results"`
	Page       int `json:"page"`
	TotalPages int `json:"total_pages"`
	Total      int `json:"total_results"`
}

func toPerson(p model.Person) personView {
	return personView{ID: p.TMDBID, Name: p.Name, ProfilePath: p.ProfilePath}
}

func toGenres(gs []model.Genre) []genreView {
	out := make([]genreView, len(gs))
	for i, g := range gs {
		out[i] = genreView{ID: g.TMDBID, Name: g.Name}
	}
	return out
}

func toMovie(m model.Movie, a service.Annotation) movieView {
	v := movieView{
		ID:                   m.TMDBID,
		Title:                m.Title,
		Overview:             m.Overview,
		PosterPath:           m.PosterPath,
		BackdropPath:         m.BackdropPath,
		VoteAverage:          m.VoteAverage,
		IMDbRating:           m.IMDbRating,
		RottenTomatoesRating: m.RottenTomatoesRating,
		InCollection:         a.InCollection,
		UserRating:           a.UserRating,
	}
	if d := normalize.FormatDate(m.ReleaseDate); d != "" {
		v.ReleaseDate = &d
	}
	if len(m.Genres) > 0 {
		v.Genres = toGenres(m.Genres)
	}
	for _, c := range m.Cast {
		v.Cast = append(v.Cast, castView{personView: toPerson(c.Person), Character: c.Character, Order: c.Order})
	}
	for _, c := range m.Crew {
		v.Crew = append(v.Crew, crewView{personView: toPerson(c.Person), Department: c.Department, Job: c.Job})
	}
	return v
}

func toMovies(movies []model.Movie, notes map[string]service.Annotation) []movieView {
	out := make([]movieView, len(movies))
	for i, m := range movies {
		out[i] = toMovie(m, notes[m.ID])
	}
	return out
}

func toEntry(e model.CollectionEntry) entryView {
	return entryView{
		Movie:     toMovie(e.Movie, service.Annotation{InCollection: true, UserRating: e.Rating}),
		Rating:    e.Rating,
		Notes:     e.Notes,
		WatchedAt: e.WatchedAt,
	}
}
