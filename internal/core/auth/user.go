package auth

import "time"

// User is the identity record mirrored from the remote session.
// Held exclusively by the auth store: set on login/signup, refreshed by
// the startup session check, cleared on logout.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}
