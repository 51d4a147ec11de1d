package models

import (
	"time"

	"github.com/google/uuid"
)

// UserType represents the type of user
type UserType string

const (
	UserTypeMember UserType = "member"
	UserTypeGuest  UserType = "guest"
	UserTypeAdmin  UserType = "admin"
)

// User represents a user in the system
type User struct {
	ID            uuid.UUID  `json:"id" db:"id"`
	Email         string     `json:"email" db:"email"`
	PasswordHash  string     `json:"-" db:"password_hash"`
	UserType      UserType   `json:"user_type" db:"user_type"`
	ReferralCode  string     `json:"referral_code" db:"referral_code"`
	ReferredBy    *uuid.UUID `json:"referred_by,omitempty" db:"referred_by"`
	EmailVerified bool       `json:"email_verified" db:"email_verified"`
	Active        bool       `json:"active" db:"active"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

// Caller is the authenticated identity every ledger operation receives.
// Guests can read public content but never hold VIP access or mutate wallets.
type Caller struct {
	UserID  uuid.UUID `json:"user_id"`
	IsGuest bool      `json:"is_guest"`
}
