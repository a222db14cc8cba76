package model

import "time"

// User is an authenticated principal, identified by email.
//
// PasswordHash is empty for accounts created through GitHub sign-in.
// GitHubID is nil until the account is linked to a GitHub login.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	GitHubID     *int64    `json:"githubId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
