package models

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionPlan represents the billing plan of a subscription
type SubscriptionPlan string

const (
	SubscriptionPlanMonthly SubscriptionPlan = "monthly"
	SubscriptionPlanYearly  SubscriptionPlan = "yearly"
	SubscriptionPlanTrial   SubscriptionPlan = "trial"
)

// SubscriptionStatus represents the status of a subscription
type SubscriptionStatus string

const (
	SubscriptionStatusActive     SubscriptionStatus = "active"
	SubscriptionStatusCanceled   SubscriptionStatus = "canceled"
	SubscriptionStatusPastDue    SubscriptionStatus = "past_due"
	SubscriptionStatusIncomplete SubscriptionStatus = "incomplete"
)

// Subscription is owned by the payment collaborator; the ledger core only
// reads it, except for administrative overrides that follow the same
// status transitions.
type Subscription struct {
	ID                uuid.UUID          `json:"id" db:"id"`
	UserID            uuid.UUID          `json:"user_id" db:"user_id"`
	Plan              SubscriptionPlan   `json:"plan" db:"plan"`
	Status            SubscriptionStatus `json:"status" db:"status"`
	CurrentPeriodEnd  time.Time          `json:"current_period_end" db:"current_period_end"`
	TrialEnd          *time.Time         `json:"trial_end,omitempty" db:"trial_end"`
	CancelAtPeriodEnd bool               `json:"cancel_at_period_end" db:"cancel_at_period_end"`
	CreatedAt         time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at" db:"updated_at"`
}
