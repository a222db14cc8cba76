package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/xid"

	"github.com/sakif/movie-tracker/internal/apperror"
	"github.com/sakif/movie-tracker/internal/model"
	"github.com/sakif/movie-tracker/internal/repository"
)

var _ repository.CatalogRepository = (*DB)(nil)

const movieColumns = `m.id, m.tmdb_id, m.title, m.overview, m.poster_path, m.backdrop_path,
	m.release_date, m.vote_average, m.imdb_rating, m.rotten_tomatoes_rating,
	m.created_at, m.refreshed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMovie(row rowScanner) (*model.Movie, error) {
	var (
		m           model.Movie
		releaseDate sql.NullString
		vote, imdb  sql.NullFloat64
		rt          sql.NullInt64
		refreshedAt sql.NullTime
	)
	err := row.Scan(
		&m.ID, &m.TMDBID, &m.Title, &m.Overview, &m.PosterPath, &m.BackdropPath,
		&releaseDate, &vote, &imdb, &rt,
		&m.CreatedAt, &refreshedAt,
	)
	if err != nil {
		return nil, err
	}
	m.ReleaseDate = datePtr(releaseDate)
	m.VoteAverage = floatPtr(vote)
	m.IMDbRating = floatPtr(imdb)
	m.RottenTomatoesRating = intPtr(rt)
	m.CreatedAt = m.CreatedAt.UTC()
	m.RefreshedAt = timePtr(refreshedAt)
	return &m, nil
}

func findMovie(ctx context.Context, q querier, tmdbID int64) (*model.Movie, bool, error) {
	m, err := scanMovie(q.QueryRowContext(ctx,
		`SELECT `+movieColumns+` FROM movies m WHERE m.tmdb_id = ?`, tmdbID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return m, true, nil
}

// FindMovieByTMDBID returns the movie's scalar fields without relations.
func (db *DB) FindMovieByTMDBID(ctx context.Context, tmdbID int64) (*model.Movie, bool, error) {
	m, ok, err := findMovie(ctx, db.conn, tmdbID)
	if err != nil {
		return nil, false, fmt.Errorf("sqlite: finding movie %d: %w", tmdbID, err)
	}
	return m, ok, nil
}

// UpsertMovieSummary inserts the movie unless a row with the same tmdb_id
// exists, then reads back whichever row won.
func (db *DB) UpsertMovieSummary(ctx context.Context, f model.MovieFields) (*model.Movie, error) {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO movies (id, tmdb_id, title, overview, poster_path, backdrop_path,
			release_date, vote_average, imdb_rating, rotten_tomatoes_rating, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(tmdb_id) DO NOTHING`,
		xid.New().String(), f.TMDBID, f.Title, f.Overview, f.PosterPath, f.BackdropPath,
		nullDate(f.ReleaseDate), nullFloat(f.VoteAverage), nullFloat(f.IMDbRating), nullInt(f.RottenTomatoesRating),
		now(),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: inserting movie %d: %w", f.TMDBID, err)
	}

	m, ok, err := findMovie(ctx, db.conn, f.TMDBID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: reading movie %d: %w", f.TMDBID, err)
	}
	if !ok {
		return nil, fmt.Errorf("sqlite: movie %d vanished after upsert", f.TMDBID)
	}
	return m, nil
}

// SaveMovieDetail writes the movie, its genre links and its credits in one
// transaction. Readers see either the previous credits or the new ones.
func (db *DB) SaveMovieDetail(ctx context.Context, d model.MovieDetail) (*model.Movie, error) {
	f := d.Fields
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		ts := now()
		_, err := tx.ExecContext(ctx,
			`INSERT INTO movies (id, tmdb_id, title, overview, poster_path, backdrop_path,
				release_date, vote_average, imdb_rating, rotten_tomatoes_rating, created_at, refreshed_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(tmdb_id) DO UPDATE SET
				title                  = excluded.title,
				overview               = excluded.overview,
				poster_path            = excluded.poster_path,
				backdrop_path          = excluded.backdrop_path,
				release_date           = excluded.release_date,
				vote_average           = excluded.vote_average,
				imdb_rating            = excluded.imdb_rating,
				rotten_tomatoes_rating = excluded.rotten_tomatoes_rating,
				refreshed_at           = excluded.refreshed_at`,
			xid.New().String(), f.TMDBID, f.Title, f.Overview, f.PosterPath, f.BackdropPath,
			nullDate(f.ReleaseDate), nullFloat(f.VoteAverage), nullFloat(f.IMDbRating), nullInt(f.RottenTomatoesRating),
			ts, ts,
		)
		if err != nil {
			return fmt.Errorf("upserting movie: %w", err)
		}

		var movieID string
		if err := tx.QueryRowContext(ctx, `SELECT id FROM movies WHERE tmdb_id = ?`, f.TMDBID).Scan(&movieID); err != nil {
			return fmt.Errorf("reading movie id: %w", err)
		}

		// --- genres ---
		if _, err := tx.ExecContext(ctx, `DELETE FROM movie_genres WHERE movie_id = ?`, movieID); err != nil {
			return fmt.Errorf("clearing genres: %w", err)
		}
		for _, g := range d.Genres {
			genreID, err := upsertGenre(ctx, tx, g)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO movie_genres (movie_id, genre_id) VALUES (?, ?) ON CONFLICT DO NOTHING`,
				movieID, genreID,
			); err != nil {
				return fmt.Errorf("linking genre %d: %w", g.TMDBID, err)
			}
		}

		// --- cast ---
		if _, err := tx.ExecContext(ctx, `DELETE FROM cast_credits WHERE movie_id = ?`, movieID); err != nil {
			return fmt.Errorf("clearing cast: %w", err)
		}
		for _, c := range d.Cast {
			p, err := upsertPerson(ctx, tx, c.Person)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO cast_credits (id, movie_id, person_id, character, billing_order)
				 VALUES (?, ?, ?, ?, ?)
				 ON CONFLICT(movie_id, person_id, character) DO NOTHING`,
				xid.New().String(), movieID, p.ID, c.Character, c.Order,
			); err != nil {
				return fmt.Errorf("inserting cast credit for person %d: %w", c.Person.TMDBID, err)
			}
		}

		// --- crew ---
		if _, err := tx.ExecContext(ctx, `DELETE FROM crew_credits WHERE movie_id = ?`, movieID); err != nil {
			return fmt.Errorf("clearing crew: %w", err)
		}
		for _, c := range d.Crew {
			p, err := upsertPerson(ctx, tx, c.Person)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO crew_credits (id, movie_id, person_id, department, job)
				 VALUES (?, ?, ?, ?, ?)
				 ON CONFLICT(movie_id, person_id, job) DO NOTHING`,
				xid.New().String(), movieID, p.ID, c.Department, c.Job,
			); err != nil {
				return fmt.Errorf("inserting crew credit for person %d: %w", c.Person.TMDBID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite: saving movie detail %d: %w", f.TMDBID, err)
	}

	return db.GetMovieDetail(ctx, f.TMDBID)
}

// GetMovieDetail returns the movie with genres, cast and crew. The reads
// share one transaction so a concurrent SaveMovieDetail is seen whole or
// not at all.
func (db *DB) GetMovieDetail(ctx context.Context, tmdbID int64) (*model.Movie, error) {
	var movie *model.Movie
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		m, ok, err := findMovie(ctx, tx, tmdbID)
		if err != nil {
			return fmt.Errorf("getting movie %d: %w", tmdbID, err)
		}
		if !ok {
			return apperror.NotFound("movie", strconv.FormatInt(tmdbID, 10))
		}
		if err := loadRelations(ctx, tx, []*model.Movie{m}); err != nil {
			return fmt.Errorf("loading relations for movie %d: %w", tmdbID, err)
		}
		movie = m
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	return movie, nil
}

// loadRelations fills Genres, Cast and Crew for every movie in one query each.
func loadRelations(ctx context.Context, q querier, movies []*model.Movie) error {
	if len(movies) == 0 {
		return nil
	}
	byID := make(map[string]*model.Movie, len(movies))
	args := make([]any, 0, len(movies))
	for _, m := range movies {
		if _, dup := byID[m.ID]; dup {
			continue
		}
		byID[m.ID] = m
		m.Genres = []model.Genre{}
		m.Cast = []model.CastCredit{}
		m.Crew = []model.CrewCredit{}
		args = append(args, m.ID)
	}
	in := placeholders(len(args))

	rows, err := q.QueryContext(ctx,
		`SELECT mg.movie_id, g.id, g.tmdb_id, g.name
		 FROM movie_genres mg JOIN genres g ON g.id = mg.genre_id
		 WHERE mg.movie_id IN (`+in+`)
		 ORDER BY g.name`, args...)
	if err != nil {
		return fmt.Errorf("querying genres: %w", err)
	}
	for rows.Next() {
		var movieID string
		var g model.Genre
		if err := rows.Scan(&movieID, &g.ID, &g.TMDBID, &g.Name); err != nil {
			rows.Close()
			return fmt.Errorf("scanning genre: %w", err)
		}
		byID[movieID].Genres = append(byID[movieID].Genres, g)
	}
	if err := closeRows(rows); err != nil {
		return fmt.Errorf("iterating genres: %w", err)
	}

	rows, err = q.QueryContext(ctx,
		`SELECT c.movie_id, p.id, p.tmdb_id, p.name, p.profile_path, c.character, c.billing_order
		 FROM cast_credits c JOIN people p ON p.id = c.person_id
		 WHERE c.movie_id IN (`+in+`)
		 ORDER BY c.billing_order, c.rowid`, args...)
	if err != nil {
		return fmt.Errorf("querying cast: %w", err)
	}
	for rows.Next() {
		var movieID string
		var c model.CastCredit
		var profile sql.NullString
		if err := rows.Scan(&movieID, &c.Person.ID, &c.Person.TMDBID, &c.Person.Name, &profile, &c.Character, &c.Order); err != nil {
			rows.Close()
			return fmt.Errorf("scanning cast credit: %w", err)
		}
		c.Person.ProfilePath = profile.String
		byID[movieID].Cast = append(byID[movieID].Cast, c)
	}
	if err := closeRows(rows); err != nil {
		return fmt.Errorf("iterating cast: %w", err)
	}

	rows, err = q.QueryContext(ctx,
		`SELECT c.movie_id, p.id, p.tmdb_id, p.name, p.profile_path, c.department, c.job
		 FROM crew_credits c JOIN people p ON p.id = c.person_id
		 WHERE c.movie_id IN (`+in+`)
		 ORDER BY c.rowid`, args...)
	if err != nil {
		return fmt.Errorf("querying crew: %w", err)
	}
	for rows.Next() {
		var movieID string
		var c model.CrewCredit
		var profile sql.NullString
		if err := rows.Scan(&movieID, &c.Person.ID, &c.Person.TMDBID, &c.Person.Name, &profile, &c.Department, &c.Job); err != nil {
			rows.Close()
			return fmt.Errorf("scanning crew credit: %w", err)
		}
		c.Person.ProfilePath = profile.String
		byID[movieID].Crew = append(byID[movieID].Crew, c)
	}
	if err := closeRows(rows); err != nil {
		return fmt.Errorf("iterating crew: %w", err)
	}
	return nil
}

// closeRows closes rows and reports any iteration error.
func closeRows(rows *sql.Rows) error {
	err := rows.Err()
	if cerr := rows.Close(); err == nil {
		err = cerr
	}
	return err
}

// === PEOPLE ===

// upsertPerson creates the person or refreshes a non-empty name and profile path.
func upsertPerson(ctx context.Context, q querier, p model.Person) (*model.Person, error) {
	_, err := q.ExecContext(ctx,
		`INSERT INTO people (id, tmdb_id, name, profile_path) VALUES (?, ?, ?, ?)
		 ON CONFLICT(tmdb_id) DO UPDATE SET
			name         = CASE WHEN excluded.name <> '' THEN excluded.name ELSE people.name END,
			profile_path = COALESCE(excluded.profile_path, people.profile_path)`,
		xid.New().String(), p.TMDBID, p.Name, nullString(p.ProfilePath),
	)
	if err != nil {
		return nil, fmt.Errorf("upserting person %d: %w", p.TMDBID, err)
	}

	out, ok, err := findPerson(ctx, q, p.TMDBID)
	if err != nil {
		return nil, fmt.Errorf("reading person %d: %w", p.TMDBID, err)
	}
	if !ok {
		return nil, fmt.Errorf("person %d vanished after upsert", p.TMDBID)
	}
	return out, nil
}

func findPerson(ctx context.Context, q querier, tmdbID int64) (*model.Person, bool, error) {
	var p model.Person
	var profile sql.NullString
	err := q.QueryRowContext(ctx,
		`SELECT id, tmdb_id, name, profile_path FROM people WHERE tmdb_id = ?`, tmdbID,
	).Scan(&p.ID, &p.TMDBID, &p.Name, &profile)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	p.ProfilePath = profile.String
	return &p, true, nil
}

func (db *DB) UpsertPerson(ctx context.Context, p model.Person) (*model.Person, error) {
	out, err := upsertPerson(ctx, db.conn, p)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	return out, nil
}

func (db *DB) FindPersonByTMDBID(ctx context.Context, tmdbID int64) (*model.Person, bool, error) {
	p, ok, err := findPerson(ctx, db.conn, tmdbID)
	if err != nil {
		return nil, false, fmt.Errorf("sqlite: finding person %d: %w", tmdbID, err)
	}
	return p, ok, nil
}

// === GENRES ===

// upsertGenre creates the genre, or fills in its name if it was stored empty.
// Genres are otherwise never updated.
func upsertGenre(ctx context.Context, q querier, g model.Genre) (string, error) {
	_, err := q.ExecContext(ctx,
		`INSERT INTO genres (id, tmdb_id, name) VALUES (?, ?, ?)
		 ON CONFLICT(tmdb_id) DO UPDATE SET
			name = CASE WHEN genres.name = '' THEN excluded.name ELSE genres.name END`,
		xid.New().String(), g.TMDBID, g.Name,
	)
	if err != nil {
		return "", fmt.Errorf("upserting genre %d: %w", g.TMDBID, err)
	}
	var id string
	if err := q.QueryRowContext(ctx, `SELECT id FROM genres WHERE tmdb_id = ?`, g.TMDBID).Scan(&id); err != nil {
		return "", fmt.Errorf("reading genre %d: %w", g.TMDBID, err)
	}
	return id, nil
}

func (db *DB) UpsertGenres(ctx context.Context, genres []model.Genre) error {
	if len(genres) == 0 {
		return nil
	}
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		for _, g := range genres {
			if _, err := upsertGenre(ctx, tx, g); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("sqlite: upserting genres: %w", err)
	}
	return nil
}

// ListGenres returns every stored genre sorted by name.
func (db *DB) ListGenres(ctx context.Context) ([]model.Genre, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id, tmdb_id, name FROM genres ORDER BY name, tmdb_id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing genres: %w", err)
	}

	genres := []model.Genre{}
	for rows.Next() {
		var g model.Genre
		if err := rows.Scan(&g.ID, &g.TMDBID, &g.Name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite: scanning genre: %w", err)
		}
		genres = append(genres, g)
	}
	if err := closeRows(rows); err != nil {
		return nil, fmt.Errorf("sqlite: iterating genres: %w", err)
	}
	return genres, nil
}

func (db *DB) FindGenreByTMDBID(ctx context.Context, tmdbID int64) (*model.Genre, bool, error) {
	var g model.Genre
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, tmdb_id, name FROM genres WHERE tmdb_id = ?`, tmdbID,
	).Scan(&g.ID, &g.TMDBID, &g.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlite: finding genre %d: %w", tmdbID, err)
	}
	return &g, true, nil
}
