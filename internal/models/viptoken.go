package models

import (
	"time"

	"github.com/google/uuid"
)

// VIPTokenType represents the kind of VIP token
type VIPTokenType string

const (
	VIPTokenTypeGeneral VIPTokenType = "general"
	VIPTokenTypeSingle  VIPTokenType = "single"
	VIPTokenTypeBundle  VIPTokenType = "bundle"
)

// VIPToken is a redeemable grant of VIP access. Tokens may be pre-issued
// unassigned; the first successful redemption binds the token to a user
// permanently. A single-type token may be scoped to one tip.
type VIPToken struct {
	ID        uuid.UUID    `json:"id" db:"id"`
	Token     string       `json:"token" db:"token"`
	Type      VIPTokenType `json:"type" db:"type"`
	Quantity  int          `json:"quantity" db:"quantity"`
	Used      int          `json:"used" db:"used"`
	ExpiresAt time.Time    `json:"expires_at" db:"expires_at"`
	UserID    *uuid.UUID   `json:"user_id,omitempty" db:"user_id"`
	TipID     *uuid.UUID   `json:"tip_id,omitempty" db:"tip_id"`
	UsedAt    *time.Time   `json:"used_at,omitempty" db:"used_at"`
	CreatedAt time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt time.Time    `json:"updated_at" db:"updated_at"`
}

// Available reports whether the token still has uses left and has not expired.
func (t *VIPToken) Available(now time.Time) bool {
	return t.Used < t.Quantity && t.ExpiresAt.After(now)
}
