package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/xid"

	"github.com/sakif/movie-tracker/internal/apperror"
	"github.com/sakif/movie-tracker/internal/model"
	"github.com/sakif/movie-tracker/internal/repository"
)

var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, email, password_hash, github_id, created_at, updated_at`

func scanUser(row rowScanner) (*model.User, error) {
	var u model.User
	var githubID sql.NullInt64
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &githubID, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	if githubID.Valid {
		id := githubID.Int64
		u.GitHubID = &id
	}
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return &u, nil
}

// CreateUser inserts the user. Emails compare case-insensitively; a taken
// email is reported as a conflict rather than a constraint error.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	ts := now()
	user.ID = xid.New().String()
	user.Email = strings.TrimSpace(user.Email)
	user.CreatedAt = ts
	user.UpdatedAt = ts

	var githubID sql.NullInt64
	if user.GitHubID != nil {
		githubID = sql.NullInt64{Int64: *user.GitHubID, Valid: true}
	}

	result, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT DO NOTHING`,
		user.ID, user.Email, user.PasswordHash, githubID, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting user %s: %w", user.Email, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking insert result: %w", err)
	}
	if rows == 0 {
		return apperror.Conflict("user", user.Email)
	}
	return nil
}

func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("user", id)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return u, nil
}

func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	email = strings.TrimSpace(email)
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("user", email)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting user by email: %w", err)
	}
	return u, nil
}

// UpsertGitHubUser resolves a GitHub login to a local user:
//  1. already linked by github_id → that user
//  2. an unlinked account with the same email → link it
//  3. otherwise → create a password-less user
//
// GitHub accounts with a hidden email get a placeholder noreply address.
func (db *DB) UpsertGitHubUser(ctx context.Context, githubID int64, email string) (*model.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		email = fmt.Sprintf("%d+github@users.noreply.github.com", githubID)
	}

	var user *model.User
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		u, err := scanUser(tx.QueryRowContext(ctx,
			`SELECT `+userColumns+` FROM users WHERE github_id = ?`, githubID))
		if err == nil {
			user = u
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("looking up github_id %d: %w", githubID, err)
		}

		ts := now()
		result, err := tx.ExecContext(ctx,
			`UPDATE users SET github_id = ?, updated_at = ? WHERE email = ? AND github_id IS NULL`,
			githubID, ts, email)
		if err != nil {
			return fmt.Errorf("linking github_id %d: %w", githubID, err)
		}
		linked, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("checking link result: %w", err)
		}

		if linked == 0 {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO users (`+userColumns+`) VALUES (?, ?, '', ?, ?, ?)
				 ON CONFLICT DO NOTHING`,
				xid.New().String(), email, githubID, ts, ts)
			if err != nil {
				return fmt.Errorf("inserting github user %d: %w", githubID, err)
			}
		}

		u, err = scanUser(tx.QueryRowContext(ctx,
			`SELECT `+userColumns+` FROM users WHERE github_id = ?`, githubID))
		if errors.Is(err, sql.ErrNoRows) {
			// email belongs to an account linked to a different GitHub login
			return apperror.Conflict("user", email)
		}
		if err != nil {
			return fmt.Errorf("reading github user %d: %w", githubID, err)
		}
		user = u
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite: upserting github user: %w", err)
	}
	return user, nil
}
