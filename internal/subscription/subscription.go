package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/winfeed/backend/internal/cache"
	"github.com/winfeed/backend/internal/logging"
	"github.com/winfeed/backend/internal/models"
)

// Service errors
var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrInvalidPlan          = errors.New("invalid subscription plan")
	ErrInvalidStatus        = errors.New("invalid subscription status")
)

// OverrideRequest is an administrative change to a subscription. The payment
// provider is normally the sole writer of status and period fields; this
// path exists for support interventions.
type OverrideRequest struct {
	Status           *models.SubscriptionStatus `json:"status,omitempty"`
	CurrentPeriodEnd *time.Time                 `json:"current_period_end,omitempty"`
	CancelAtEnd      *bool                      `json:"cancel_at_period_end,omitempty"`
}

// Service reads subscription state for entitlement decisions
type Service struct {
	db    *pgxpool.Pool
	cache *cache.Redis
}

// NewService creates a new subscription service
func NewService(db *pgxpool.Pool, redis *cache.Redis) *Service {
	return &Service{db: db, cache: redis}
}

// GetActive retrieves the user's current active subscription, if any
func (s *Service) GetActive(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.db.QueryRow(ctx, `
		SELECT id, user_id, plan, status, current_period_end, trial_end, cancel_at_period_end, created_at, updated_at
		FROM subscriptions
		WHERE user_id = $1 AND status = $2 AND current_period_end >= NOW()
		ORDER BY current_period_end DESC
		LIMIT 1
	`, userID, models.SubscriptionStatusActive).Scan(
		&sub.ID, &sub.UserID, &sub.Plan, &sub.Status,
		&sub.CurrentPeriodEnd, &sub.TrialEnd, &sub.CancelAtPeriodEnd,
		&sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("failed to get active subscription: %w", err)
	}
	return &sub, nil
}

// ListByUser retrieves all of a user's subscriptions, newest first
func (s *Service) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Subscription, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, plan, status, current_period_end, trial_end, cancel_at_period_end, created_at, updated_at
		FROM subscriptions
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []models.Subscription
	for rows.Next() {
		var sub models.Subscription
		err := rows.Scan(
			&sub.ID, &sub.UserID, &sub.Plan, &sub.Status,
			&sub.CurrentPeriodEnd, &sub.TrialEnd, &sub.CancelAtPeriodEnd,
			&sub.CreatedAt, &sub.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate subscriptions: %w", err)
	}

	return subs, nil
}

// Upsert records the state reported by the payment provider. One active
// subscription row per user and plan; repeated provider events update in
// place.
func (s *Service) Upsert(ctx context.Context, userID uuid.UUID, plan models.SubscriptionPlan, status models.SubscriptionStatus, periodEnd time.Time, trialEnd *time.Time) (*models.Subscription, error) {
	switch plan {
	case models.SubscriptionPlanMonthly, models.SubscriptionPlanYearly, models.SubscriptionPlanTrial:
	default:
		return nil, ErrInvalidPlan
	}
	if !validStatus(status) {
		return nil, ErrInvalidStatus
	}

	var sub models.Subscription
	err := s.db.QueryRow(ctx, `
		INSERT INTO subscriptions (id, user_id, plan, status, current_period_end, trial_end)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, plan)
		DO UPDATE SET
			status = EXCLUDED.status,
			current_period_end = EXCLUDED.current_period_end,
			trial_end = EXCLUDED.trial_end,
			updated_at = NOW()
		RETURNING id, user_id, plan, status, current_period_end, trial_end, cancel_at_period_end, created_at, updated_at
	`, uuid.New(), userID, plan, status, periodEnd, trialEnd).Scan(
		&sub.ID, &sub.UserID, &sub.Plan, &sub.Status,
		&sub.CurrentPeriodEnd, &sub.TrialEnd, &sub.CancelAtPeriodEnd,
		&sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert subscription: %w", err)
	}

	s.invalidate(ctx, userID)

	return &sub, nil
}

// AdminOverride force-adjusts a subscription's status or period
func (s *Service) AdminOverride(ctx context.Context, subID uuid.UUID, req *OverrideRequest) (*models.Subscription, error) {
	if req.Status == nil && req.CurrentPeriodEnd == nil && req.CancelAtEnd == nil {
		return nil, ErrInvalidStatus
	}
	if req.Status != nil && !validStatus(*req.Status) {
		return nil, ErrInvalidStatus
	}

	var sub models.Subscription
	err := s.db.QueryRow(ctx, `
		UPDATE subscriptions
		SET status = COALESCE($2, status),
		    current_period_end = COALESCE($3, current_period_end),
		    cancel_at_period_end = COALESCE($4, cancel_at_period_end),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING id, user_id, plan, status, current_period_end, trial_end, cancel_at_period_end, created_at, updated_at
	`, subID, req.Status, req.CurrentPeriodEnd, req.CancelAtEnd).Scan(
		&sub.ID, &sub.UserID, &sub.Plan, &sub.Status,
		&sub.CurrentPeriodEnd, &sub.TrialEnd, &sub.CancelAtPeriodEnd,
		&sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("failed to override subscription: %w", err)
	}

	logger := logging.NewLogger("subscription")
	logger.Info().
		Str("subscription_id", subID.String()).
		Str("user_id", sub.UserID.String()).
		Str("status", string(sub.Status)).
		Msg("Subscription overridden by admin")
	s.invalidate(ctx, sub.UserID)

	return &sub, nil
}

func (s *Service) invalidate(ctx context.Context, userID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateEntitlement(ctx, userID); err != nil {
		logger := logging.NewLogger("subscription")
		logger.Warn().Err(err).
			Str("user_id", userID.String()).
			Msg("Failed to invalidate entitlement cache after subscription change")
	}
}

func validStatus(status models.SubscriptionStatus) bool {
	switch status {
	case models.SubscriptionStatusActive, models.SubscriptionStatusCanceled,
		models.SubscriptionStatusPastDue, models.SubscriptionStatusIncomplete:
		return true
	}
	return false
}
