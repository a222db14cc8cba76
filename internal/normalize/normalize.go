// Package normalize turns provider payloads into the canonical catalog shape.
//
// Provider records are loose: text fields may be missing or null, dates come
// in several formats and some lists contain duplicates. Every function here
// is total. Missing text becomes "", missing numbers and dates become nil,
// and nothing panics or errors on odd input. The one exception is Rating,
// which validates user input and does reject.
package normalize

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/sakif/movie-tracker/internal/apperror"
	"github.com/sakif/movie-tracker/internal/metadata"
	"github.com/sakif/movie-tracker/internal/model"
)

// CastLimit is the number of top-billed cast members kept per movie.
const CastLimit = 10

// crewJobs are the crew jobs kept per movie.
var crewJobs = map[string]bool{
	"Director":   true,
	"Screenplay": true,
	"Writer":     true,
}

// dateLayouts are tried in order; the first successful parse wins.
// Month-first beats day-first for slash dates, so "01/02/2020" is January 2.
var dateLayouts = []string{
	"2006-1-2",       // YYYY-MM-DD
	"2-1-2006",       // DD-MM-YYYY
	"1/2/2006",       // MM/DD/YYYY
	"2006/1/2",       // YYYY/MM/DD
	"2 Jan 2006",     // DD Mon YYYY
	"2 January 2006", // DD Month YYYY
}

// Date parses a provider date string as a calendar date in UTC.
// Empty or unrecognized input yields nil.
func Date(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}

// DateFrom is Date for a nullable provider field.
func DateFrom(raw *string) *time.Time {
	if raw == nil {
		return nil
	}
	return Date(*raw)
}

// FormatDate renders a calendar date as YYYY-MM-DD, or "" for nil.
func FormatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.DateOnly)
}

func text(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

// MovieSummary maps the scalar fields of a movie record.
func MovieSummary(rec metadata.MovieRecord) model.MovieFields {
	f := model.MovieFields{
		TMDBID:       rec.ID,
		Title:        text(rec.Title),
		Overview:     text(rec.Overview),
		PosterPath:   text(rec.PosterPath),
		BackdropPath: text(rec.BackdropPath),
		ReleaseDate:  DateFrom(rec.ReleaseDate),
	}
	if rec.VoteAverage != nil && !math.IsNaN(*rec.VoteAverage) {
		v := *rec.VoteAverage
		f.VoteAverage = &v
	}
	return f
}

// MovieDetail normalizes a full detail record (genres and credits included)
// and folds in the ratings enrichment.
func MovieDetail(rec metadata.MovieRecord, ratings metadata.Ratings) model.MovieDetail {
	fields := MovieSummary(rec)
	fields.IMDbRating = ratings.IMDb
	fields.RottenTomatoesRating = ratings.RottenTomatoes

	d := model.MovieDetail{
		Fields: fields,
		Genres: Genres(rec.Genres),
	}
	if rec.Credits != nil {
		d.Cast = Cast(rec.Credits.Cast)
		d.Crew = Crew(rec.Credits.Crew)
	}
	return d
}

// IMDbID returns the record's IMDb id, or "".
func IMDbID(rec metadata.MovieRecord) string {
	if rec.ExternalIDs == nil {
		return ""
	}
	return text(rec.ExternalIDs.IMDbID)
}

// Genres drops zero ids and duplicates, keeping provider order.
func Genres(recs []metadata.GenreRecord) []model.Genre {
	out := make([]model.Genre, 0, len(recs))
	seen := make(map[int64]bool, len(recs))
	for _, g := range recs {
		if g.ID == 0 || seen[g.ID] {
			continue
		}
		seen[g.ID] = true
		out = append(out, model.Genre{TMDBID: g.ID, Name: strings.TrimSpace(g.Name)})
	}
	return out
}

func person(id int64, name, profile *string) model.Person {
	return model.Person{TMDBID: id, Name: text(name), ProfilePath: text(profile)}
}

// Person maps a provider person record.
func Person(rec metadata.PersonRecord) model.Person {
	return person(rec.ID, rec.Name, rec.ProfilePath)
}

// Cast keeps the CastLimit top-billed credits, ordered by billing.
// Credits without a billing order sort last. A (person, character) pair
// appears at most once.
func Cast(recs []metadata.CastRecord) []model.CastCredit {
	sorted := slices.Clone(recs)
	slices.SortStableFunc(sorted, func(a, b metadata.CastRecord) int {
		switch {
		case a.Order == nil && b.Order == nil:
			return 0
		case a.Order == nil:
			return 1
		case b.Order == nil:
			return -1
		}
		return cmp.Compare(*a.Order, *b.Order)
	})

	out := make([]model.CastCredit, 0, min(len(sorted), CastLimit))
	seen := make(map[string]bool)
	for _, c := range sorted {
		if len(out) == CastLimit {
			break
		}
		if c.ID == 0 {
			continue
		}
		character := text(c.Character)
		key := fmt.Sprintf("%d|%s", c.ID, character)
		if seen[key] {
			continue
		}
		seen[key] = true

		order := len(out)
		if c.Order != nil {
			order = *c.Order
		}
		out = append(out, model.CastCredit{
			Person:    person(c.ID, c.Name, c.ProfilePath),
			Character: character,
			Order:     order,
		})
	}
	return out
}

// Crew keeps Director, Screenplay and Writer credits, one per (person, job).
func Crew(recs []metadata.CrewRecord) []model.CrewCredit {
	out := make([]model.CrewCredit, 0)
	seen := make(map[string]bool)
	for _, c := range recs {
		job := text(c.Job)
		if c.ID == 0 || !crewJobs[job] {
			continue
		}
		key := fmt.Sprintf("%d|%s", c.ID, job)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, model.CrewCredit{
			Person:     person(c.ID, c.Name, c.ProfilePath),
			Department: text(c.Department),
			Job:        job,
		})
	}
	return out
}

type int64er interface {
	Int64() (int64, error)
}

// Rating validates a user-supplied rating. Integers in [1,5] are accepted,
// including integral floats as produced by JSON decoding.
func Rating(v any) (int, error) {
	var n int64
	switch x := v.(type) {
	case int:
		n = int64(x)
	case int32:
		n = int64(x)
	case int64:
		n = x
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) || x != math.Trunc(x) {
			return 0, apperror.ValidationFailed("rating", "rating must be a whole number between 1 and 5")
		}
		n = int64(x)
	case int64er:
		i, err := x.Int64()
		if err != nil {
			return 0, apperror.ValidationFailed("rating", "rating must be a whole number between 1 and 5")
		}
		n = i
	default:
		return 0, apperror.ValidationFailed("rating", "rating must be a number between 1 and 5")
	}

	if n < 1 || n > 5 {
		return 0, apperror.ValidationFailed("rating", "rating must be between 1 and 5")
	}
	return int(n), nil
}
