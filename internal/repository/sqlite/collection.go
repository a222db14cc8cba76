package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/xid"

	"github.com/sakif/movie-tracker/internal/apperror"
	"github.com/sakif/movie-tracker/internal/model"
	"github.com/sakif/movie-tracker/internal/repository"
)

var _ repository.CollectionRepository = (*DB)(nil)

// UpsertEntry is a single conditional insert keyed on (user_id, movie_id).
// On conflict only the fields present in update are written; watched_at
// keeps its original value.
func (db *DB) UpsertEntry(ctx context.Context, userID, movieID string, update repository.EntryUpdate) (*model.CollectionEntry, error) {
	notes := ""
	if update.Notes != nil {
		notes = *update.Notes
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO collection_entries (id, user_id, movie_id, rating, notes, watched_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, movie_id) DO UPDATE SET
			rating = CASE WHEN ? THEN excluded.rating ELSE collection_entries.rating END,
			notes  = CASE WHEN ? THEN excluded.notes  ELSE collection_entries.notes  END`,
		xid.New().String(), userID, movieID, nullInt(update.Rating), notes, now(),
		update.Rating != nil, update.Notes != nil,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: upserting collection entry (user=%s, movie=%s): %w", userID, movieID, err)
	}

	e, err := db.getEntry(ctx, userID, movieID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: reading collection entry (user=%s, movie=%s): %w", userID, movieID, err)
	}
	return e, nil
}

func (db *DB) getEntry(ctx context.Context, userID, movieID string) (*model.CollectionEntry, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT e.id, e.user_id, e.rating, e.notes, e.watched_at, `+movieColumns+`
		 FROM collection_entries e JOIN movies m ON m.id = e.movie_id
		 WHERE e.user_id = ? AND e.movie_id = ?`,
		userID, movieID,
	)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("collection entry", movieID)
	}
	if err != nil {
		return nil, err
	}
	if err := loadRelations(ctx, db.conn, []*model.Movie{&e.Movie}); err != nil {
		return nil, err
	}
	return e, nil
}

func scanEntry(row rowScanner) (*model.CollectionEntry, error) {
	var (
		e           model.CollectionEntry
		rating      sql.NullInt64
		m           model.Movie
		releaseDate sql.NullString
		vote, imdb  sql.NullFloat64
		rt          sql.NullInt64
		refreshedAt sql.NullTime
	)
	err := row.Scan(
		&e.ID, &e.UserID, &rating, &e.Notes, &e.WatchedAt,
		&m.ID, &m.TMDBID, &m.Title, &m.Overview, &m.PosterPath, &m.BackdropPath,
		&releaseDate, &vote, &imdb, &rt,
		&m.CreatedAt, &refreshedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Rating = intPtr(rating)
	e.WatchedAt = e.WatchedAt.UTC()

	m.ReleaseDate = datePtr(releaseDate)
	m.VoteAverage = floatPtr(vote)
	m.IMDbRating = floatPtr(imdb)
	m.RottenTomatoesRating = intPtr(rt)
	m.CreatedAt = m.CreatedAt.UTC()
	m.RefreshedAt = timePtr(refreshedAt)
	e.Movie = m
	return &e, nil
}

// DeleteEntry removes the (user, movie) entry.
func (db *DB) DeleteEntry(ctx context.Context, userID, movieID string) error {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM collection_entries WHERE user_id = ? AND movie_id = ?`, userID, movieID)
	if err != nil {
		return fmt.Errorf("sqlite: deleting collection entry (user=%s, movie=%s): %w", userID, movieID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking delete result: %w", err)
	}
	if rows == 0 {
		return apperror.NotFound("collection entry", movieID)
	}
	return nil
}

// ListEntries orders by watched_at descending; rowid breaks ties so that
// pages are stable.
func (db *DB) ListEntries(ctx context.Context, userID string, opts repository.ListOptions) ([]model.CollectionEntry, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	offset := max(opts.Offset, 0)

	rows, err := db.conn.QueryContext(ctx,
		`SELECT e.id, e.user_id, e.rating, e.notes, e.watched_at, `+movieColumns+`
		 FROM collection_entries e JOIN movies m ON m.id = e.movie_id
		 WHERE e.user_id = ?
		 ORDER BY e.watched_at DESC, e.rowid DESC
		 LIMIT ? OFFSET ?`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing collection for user %s: %w", userID, err)
	}

	entries := []model.CollectionEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite: scanning collection entry: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := closeRows(rows); err != nil {
		return nil, fmt.Errorf("sqlite: iterating collection: %w", err)
	}

	movies := make([]*model.Movie, len(entries))
	for i := range entries {
		movies[i] = &entries[i].Movie
	}
	if err := loadRelations(ctx, db.conn, movies); err != nil {
		return nil, fmt.Errorf("sqlite: loading collection movies: %w", err)
	}
	return entries, nil
}

func (db *DB) CountEntries(ctx context.Context, userID string) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM collection_entries WHERE user_id = ?`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting collection for user %s: %w", userID, err)
	}
	return n, nil
}

// EntriesForMovies is used to annotate listings with the caller's rating.
func (db *DB) EntriesForMovies(ctx context.Context, userID string, movieIDs []string) (map[string]model.CollectionEntry, error) {
	out := make(map[string]model.CollectionEntry, len(movieIDs))
	if len(movieIDs) == 0 {
		return out, nil
	}

	args := make([]any, 0, len(movieIDs)+1)
	args = append(args, userID)
	for _, id := range movieIDs {
		args = append(args, id)
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, user_id, movie_id, rating, notes, watched_at
		 FROM collection_entries
		 WHERE user_id = ? AND movie_id IN (`+placeholders(len(movieIDs))+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading entries for user %s: %w", userID, err)
	}
	for rows.Next() {
		var e model.CollectionEntry
		var rating sql.NullInt64
		if err := rows.Scan(&e.ID, &e.UserID, &e.Movie.ID, &rating, &e.Notes, &e.WatchedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite: scanning entry: %w", err)
		}
		e.Rating = intPtr(rating)
		e.WatchedAt = e.WatchedAt.UTC()
		out[e.Movie.ID] = e
	}
	if err := closeRows(rows); err != nil {
		return nil, fmt.Errorf("sqlite: iterating entries: %w", err)
	}
	return out, nil
}
