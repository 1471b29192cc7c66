package domain

import (
	"time"

	"github.com/google/uuid"
)

// Credential is a stored OAuth grant for one user's mailbox.
// AccessToken and RefreshToken are plaintext in memory only; the
// persistence layer encrypts them at rest.
type Credential struct {
	ID           int64     `json:"id"`
	UserID       uuid.UUID `json:"user_id"`
	Provider     Provider  `json:"provider"`
	Email        string    `json:"email"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	ExpiresAt    time.Time `json:"expires_at"`
	IsConnected  bool      `json:"is_connected"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ExpiredAt reports whether the access token is unusable at the given
// instant. A token whose expiry equals now is already expired.
func (c *Credential) ExpiredAt(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
