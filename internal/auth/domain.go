package auth

import "time"

// User is the credential view of an account.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	IsActive     bool
}

// LoginSession records one issued auth token. Deleting it revokes the token
// before it expires.
type LoginSession struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
}
