package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Wallet holds a user's cash balance and token pools. There is at most one
// wallet per user; it is created lazily on the first qualifying event and
// mutated only through the ledger.
type Wallet struct {
	UserID         uuid.UUID       `json:"user_id" db:"user_id"`
	Balance        decimal.Decimal `json:"balance" db:"balance"`
	Tokens         int64           `json:"tokens" db:"tokens"`
	BonusTokens    int64           `json:"bonus_tokens" db:"bonus_tokens"`
	TotalEarned    decimal.Decimal `json:"total_earned" db:"total_earned"`
	TotalWithdrawn decimal.Decimal `json:"total_withdrawn" db:"total_withdrawn"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// EarningType represents the origin of an earning entry
type EarningType string

const (
	EarningTypeReferralReward  EarningType = "referral_reward"
	EarningTypeWelcomeBonus    EarningType = "welcome_bonus"
	EarningTypeTokenConversion EarningType = "token_conversion"
	EarningTypeTokenGrant      EarningType = "token_grant"
	EarningTypeAdjustment      EarningType = "adjustment"
)

// EarningStatus represents the status of an earning entry
type EarningStatus string

const (
	EarningStatusPending   EarningStatus = "pending"
	EarningStatusConfirmed EarningStatus = "confirmed"
	EarningStatusFailed    EarningStatus = "failed"
)

// Earning is an append-only ledger entry recording a wallet mutation.
// The sum of confirmed entries for a wallet reconciles with total_earned.
type Earning struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	UserID      uuid.UUID       `json:"user_id" db:"user_id"`
	Type        EarningType     `json:"type" db:"type"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	Currency    string          `json:"currency" db:"currency"`
	Tokens      int64           `json:"tokens" db:"tokens"`
	Status      EarningStatus   `json:"status" db:"status"`
	Description string          `json:"description" db:"description"`
	Reference   *uuid.UUID      `json:"reference,omitempty" db:"reference"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// ReferralEarning mirrors the referrer's Earning row in the referral ledger.
// Both projections are written in the same transaction, never reconciled later.
type ReferralEarning struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	ReferralID uuid.UUID       `json:"referral_id" db:"referral_id"`
	ReferrerID uuid.UUID       `json:"referrer_id" db:"referrer_id"`
	ReferredID uuid.UUID       `json:"referred_id" db:"referred_id"`
	Amount     decimal.Decimal `json:"amount" db:"amount"`
	Tokens     int64           `json:"tokens" db:"tokens"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}
