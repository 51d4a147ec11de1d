package models

import (
	"time"

	"github.com/google/uuid"
)

// TipStatus represents the publication status of a tip
type TipStatus string

const (
	TipStatusDraft     TipStatus = "draft"
	TipStatusPublished TipStatus = "published"
	TipStatusSettled   TipStatus = "settled"
)

// Tip is a VIP content item (a prediction). The ledger core only needs its
// existence to validate tip-scoped token redemptions; authoring lives with
// the CMS collaborator.
type Tip struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	Title       string     `json:"title" db:"title"`
	Status      TipStatus  `json:"status" db:"status"`
	VIPOnly     bool       `json:"vip_only" db:"vip_only"`
	PublishedAt *time.Time `json:"published_at,omitempty" db:"published_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}
