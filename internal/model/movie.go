// Package model defines the data structures used throughout the application.
//
// Catalog entities (Movie, Genre, Person and the two credit kinds) carry two
// identities: a local surrogate ID generated with xid, and the metadata
// provider's numeric ID (TMDBID), which is unique and used as the
// idempotency key for every fetch-or-create.
package model

import "time"

// Movie is a locally cached movie record.
//
// Nullable provider values are pointers: a nil VoteAverage means the
// provider did not report one, which is different from a 0.0 rating.
type Movie struct {
	ID                   string     `json:"id"`
	TMDBID               int64      `json:"tmdbId"`
	Title                string     `json:"title"`
	Overview             string     `json:"overview"`
	PosterPath           string     `json:"posterPath"`
	BackdropPath         string     `json:"backdropPath"`
	ReleaseDate          *time.Time `json:"releaseDate"`
	VoteAverage          *float64   `json:"voteAverage"`
	IMDbRating           *float64   `json:"imdbRating"`
	RottenTomatoesRating *int       `json:"rottenTomatoesRating"`
	CreatedAt            time.Time  `json:"createdAt"`

	// RefreshedAt is when the full detail record (credits included) was last
	// fetched. Nil for rows created from search results only.
	RefreshedAt *time.Time `json:"refreshedAt"`

	Genres []Genre      `json:"genres,omitempty"`
	Cast   []CastCredit `json:"cast,omitempty"`
	Crew   []CrewCredit `json:"crew,omitempty"`
}

// Genre is provider reference data.
type Genre struct {
	ID     string `json:"id"`
	TMDBID int64  `json:"tmdbId"`
	Name   string `json:"name"`
}

// Person is an actor or crew member.
type Person struct {
	ID          string `json:"id"`
	TMDBID      int64  `json:"tmdbId"`
	Name        string `json:"name"`
	ProfilePath string `json:"profilePath"`
}

// CastCredit links a Person to a Movie as a character.
// Unique per (movie, person, character).
type CastCredit struct {
	Person    Person `json:"person"`
	Character string `json:"character"`
	Order     int    `json:"order"`
}

// CrewCredit links a Person to a Movie by job.
// Unique per (movie, person, job).
type CrewCredit struct {
	Person     Person `json:"person"`
	Department string `json:"department"`
	Job        string `json:"job"`
}

// MovieFields are the scalar values of a Movie as produced by normalization,
// before the row has a local identity.
type MovieFields struct {
	TMDBID               int64
	Title                string
	Overview             string
	PosterPath           string
	BackdropPath         string
	ReleaseDate          *time.Time
	VoteAverage          *float64
	IMDbRating           *float64
	RottenTomatoesRating *int
}

// MovieDetail is the complete, normalized result of a provider detail fetch.
// It is written to the store as a single unit.
type MovieDetail struct {
	Fields MovieFields
	Genres []Genre
	Cast   []CastCredit
	Crew   []CrewCredit
}
