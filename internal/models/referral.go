package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReferralStatus represents the status of a referral
type ReferralStatus string

const (
	ReferralStatusPending   ReferralStatus = "pending"
	ReferralStatusConfirmed ReferralStatus = "confirmed"
	ReferralStatusFailed    ReferralStatus = "failed"
)

// Referral links a referrer to a referred user. A user can be referred at
// most once; referred_by on the user row is set exactly once and is
// immutable thereafter.
type Referral struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	ReferrerID   uuid.UUID       `json:"referrer_id" db:"referrer_id"`
	ReferredID   uuid.UUID       `json:"referred_id" db:"referred_id"`
	Code         string          `json:"code" db:"code"`
	Status       ReferralStatus  `json:"status" db:"status"`
	RewardAmount decimal.Decimal `json:"reward_amount" db:"reward_amount"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}

// ReferralStats summarizes a referrer's activity
type ReferralStats struct {
	TotalInvited int64           `json:"total_invited"`
	TotalEarned  decimal.Decimal `json:"total_earned"`
	TotalTokens  int64           `json:"total_tokens"`
}
