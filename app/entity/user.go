package entity

import (
	"database/sql"
	"time"
)

// User owns the stored credential. PasswordHash is a bcrypt string and never
// leaves the service layer.
type User struct {
	ID             uint64
	Email          string
	CanonicalEmail string
	PasswordHash   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ResetToken is a persisted password-reset record. Only the SHA-256 digest of
// the secret is stored.
type ResetToken struct {
	ID         uint64
	UserID     uint64
	TokenHash  string
	ExpiresAt  time.Time
	ConsumedAt sql.NullTime
	CreatedAt  time.Time
}

// Actionable reports whether the record can still authorize a reset at now.
func (t *ResetToken) Actionable(now time.Time) bool {
	return !t.ConsumedAt.Valid && now.Before(t.ExpiresAt)
}
