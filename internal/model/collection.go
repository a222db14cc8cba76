package model

import "time"

// CollectionEntry is one user's watched record for one movie.
// Exactly one exists per (user, movie).
type CollectionEntry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Movie     Movie     `json:"movie"`
	Rating    *int      `json:"rating"`
	Notes     string    `json:"notes"`
	WatchedAt time.Time `json:"watchedAt"`
}
