package entitlement

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

// Via identifies which record granted access
type Via string

const (
	ViaSubscription Via = "subscription"
	ViaToken        Via = "token"
	ViaNone         Via = "none"
)

// Entitlement is the resolved VIP-access decision for a user
type Entitlement struct {
	UserID          uuid.UUID  `json:"user_id"`
	HasAccess       bool       `json:"has_access"`
	Via             Via        `json:"via"`
	SubscriptionID  *uuid.UUID `json:"subscription_id,omitempty"`
	PeriodEnd       *time.Time `json:"period_end,omitempty"`
	AvailableTokens int        `json:"available_tokens"`
	ResolvedAt      time.Time  `json:"resolved_at"`
}

// Service resolves VIP entitlements. The cache is an optimization, never a
// source of truth; every write path that affects a decision invalidates the
// user's entry before reporting success.
type Service struct {
	db    *pgxpool.Pool
	cache *cache.Redis
	ttl   time.Duration
}

// NewService creates a new entitlement service
func NewService(db *pgxpool.Pool, redis *cache.Redis, ttlSeconds int) *Service {
	return &Service{
		db:    db,
		cache: redis,
		ttl:   time.Duration(ttlSeconds) * time.Second,
	}
}

// Resolve decides whether the caller currently has VIP access. Guests are
// refused before any record is consulted, so leftover token rows from a
// pre-guest account can never grant access.
func (s *Service) Resolve(ctx context.Context, caller models.Caller) (*Entitlement, error) {
	now := time.Now()

	if caller.IsGuest {
		return &Entitlement{
			UserID:     caller.UserID,
			HasAccess:  false,
			Via:        ViaNone,
			ResolvedAt: now,
		}, nil
	}

	if s.cache != nil {
		var cached Entitlement
		hit, err := s.cache.GetEntitlement(ctx, caller.UserID, &cached)
		if err != nil {
			logger := logging.NewLogger("entitlement")
			logger.Warn().Err(err).
				Str("user_id", caller.UserID.String()).
				Msg("Entitlement cache read failed")
		} else if hit {
			return &cached, nil
		}
	}

	ent, err := s.resolveFromStore(ctx, caller.UserID, now)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetEntitlement(ctx, caller.UserID, ent, s.ttl); err != nil {
			logger := logging.NewLogger("entitlement")
			logger.Warn().Err(err).
				Str("user_id", caller.UserID.String()).
				Msg("Entitlement cache write failed")
		}
	}

	return ent, nil
}

func (s *Service) resolveFromStore(ctx context.Context, userID uuid.UUID, now time.Time) (*Entitlement, error) {
	ent := &Entitlement{
		UserID:     userID,
		Via:        ViaNone,
		ResolvedAt: now,
	}

	var subID uuid.UUID
	var periodEnd time.Time
	err := s.db.QueryRow(ctx, `
		SELECT id, current_period_end
		FROM subscriptions
		WHERE user_id = $1 AND status = $2 AND current_period_end >= $3
		ORDER BY current_period_end DESC
		LIMIT 1
	`, userID, models.SubscriptionStatusActive, now).Scan(&subID, &periodEnd)
	switch {
	case err == nil:
		ent.SubscriptionID = &subID
		ent.PeriodEnd = &periodEnd
	case errors.Is(err, pgx.ErrNoRows):
	default:
		return nil, fmt.Errorf("failed to query subscriptions: %w", err)
	}

	// Expiry is filtered in SQL; the remaining-uses predicate runs in
	// application code on the fetched rows.
	rows, err := s.db.Query(ctx, `
		SELECT id, quantity, used, expires_at
		FROM vip_tokens
		WHERE user_id = $1 AND expires_at >= $2
	`, userID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query tokens: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t models.VIPToken
		if err := rows.Scan(&t.ID, &t.Quantity, &t.Used, &t.ExpiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan token: %w", err)
		}
		if t.Used < t.Quantity {
			ent.AvailableTokens++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tokens: %w", err)
	}

	// Subscription wins the via report when both grant access
	switch {
	case ent.SubscriptionID != nil:
		ent.HasAccess = true
		ent.Via = ViaSubscription
	case ent.AvailableTokens > 0:
		ent.HasAccess = true
		ent.Via = ViaToken
	}

	return ent, nil
}

// Invalidate drops the cached decision for a user
func (s *Service) Invalidate(ctx context.Context, userID uuid.UUID) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.InvalidateEntitlement(ctx, userID)
}
