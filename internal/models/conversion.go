package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ConversionStatus represents the status of a token conversion
type ConversionStatus string

const (
	ConversionStatusCompleted ConversionStatus = "completed"
	ConversionStatusFailed    ConversionStatus = "failed"
)

// TokenConversion is an append-only record of a tokens-to-cash exchange.
type TokenConversion struct {
	ID              uuid.UUID        `json:"id" db:"id"`
	UserID          uuid.UUID        `json:"user_id" db:"user_id"`
	TokensConverted int64            `json:"tokens_converted" db:"tokens_converted"`
	TokenRate       decimal.Decimal  `json:"token_rate" db:"token_rate"`
	AmountEarned    decimal.Decimal  `json:"amount_earned" db:"amount_earned"`
	Status          ConversionStatus `json:"status" db:"status"`
	ProcessedAt     *time.Time       `json:"processed_at,omitempty" db:"processed_at"`
	CreatedAt       time.Time        `json:"created_at" db:"created_at"`
}
