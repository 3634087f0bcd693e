package models

import "time"

// VerificationToken holds the single live login verification code for a user.
// The unique index on UserID enforces at most one live token per account;
// issuing a new code replaces the previous row.
type VerificationToken struct {
	BaseModel

	UserID    string    `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`
	CodeHash  string    `gorm:"not null" json:"-"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `gorm:"index" json:"expires_at"`
}
