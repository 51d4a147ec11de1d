package token

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/winfeed/backend/internal/analytics"
	"github.com/winfeed/backend/internal/cache"
	"github.com/winfeed/backend/internal/logging"
	"github.com/winfeed/backend/internal/models"
	"github.com/winfeed/backend/internal/monitoring"
)

// Service errors
var (
	ErrInvalidCode       = errors.New("token code not found")
	ErrExpired           = errors.New("token has expired")
	ErrExhausted         = errors.New("token has no remaining uses")
	ErrOwnedByOther      = errors.New("token belongs to another user")
	ErrDanglingReference = errors.New("token references content that no longer exists")
	ErrInvalidGrant      = errors.New("invalid token grant request")
	ErrTokenNotFound     = errors.New("token not found")
	ErrInvalidAdjustment = errors.New("invalid token adjustment")
)

// RedeemResult is returned on a successful redemption
type RedeemResult struct {
	TokenID       uuid.UUID `json:"token_id"`
	RemainingUses int       `json:"remaining_uses"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// GrantRequest describes a batch of VIP tokens to issue
type GrantRequest struct {
	Type           models.VIPTokenType `json:"type" binding:"required"`
	Count          int                 `json:"count" binding:"required,min=1,max=500"`
	Quantity       int                 `json:"quantity" binding:"required,min=1"`
	ExpirationDays int                 `json:"expiration_days" binding:"required,min=1"`
	UserID         *uuid.UUID          `json:"user_id,omitempty"`
	TipID          *uuid.UUID          `json:"tip_id,omitempty"`
}

// Service handles VIP token issuance and redemption
type Service struct {
	db      *pgxpool.Pool
	cache   *cache.Redis
	emitter *analytics.Emitter
}

// NewService creates a new token service
func NewService(db *pgxpool.Pool, redis *cache.Redis, emitter *analytics.Emitter) *Service {
	return &Service{
		db:      db,
		cache:   redis,
		emitter: emitter,
	}
}

// Redeem consumes one use of the token identified by code for the requesting
// user. The transition rules run in a fixed order inside one transaction
// holding a row lock on the token, so two concurrent attempts against a
// token with one remaining use cannot both succeed.
func (s *Service) Redeem(ctx context.Context, code string, userID uuid.UUID) (*RedeemResult, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var t models.VIPToken
	err = tx.QueryRow(ctx, `
		SELECT id, token, type, quantity, used, expires_at, user_id, tip_id, used_at, created_at, updated_at
		FROM vip_tokens
		WHERE token = $1
		FOR UPDATE
	`, code).Scan(
		&t.ID, &t.Token, &t.Type, &t.Quantity, &t.Used,
		&t.ExpiresAt, &t.UserID, &t.TipID, &t.UsedAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			monitoring.RecordRedemption("invalid_code")
			return nil, ErrInvalidCode
		}
		return nil, fmt.Errorf("failed to lookup token: %w", err)
	}

	now := time.Now()
	if t.ExpiresAt.Before(now) {
		monitoring.RecordRedemption("expired")
		return nil, ErrExpired
	}
	if t.Used >= t.Quantity {
		monitoring.RecordRedemption("exhausted")
		return nil, ErrExhausted
	}
	if t.UserID != nil && *t.UserID != userID {
		monitoring.RecordRedemption("owned_by_other")
		return nil, ErrOwnedByOther
	}
	if t.TipID != nil {
		var exists bool
		err = tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tips WHERE id = $1)`, *t.TipID).Scan(&exists)
		if err != nil {
			return nil, fmt.Errorf("failed to check tip reference: %w", err)
		}
		if !exists {
			monitoring.RecordRedemption("dangling_reference")
			return nil, ErrDanglingReference
		}
	}

	// The used < quantity predicate repeats the exhaustion check in the
	// UPDATE itself so the increment can never overshoot.
	var used, quantity int
	err = tx.QueryRow(ctx, `
		UPDATE vip_tokens
		SET user_id = $2, used = used + 1, used_at = $3, updated_at = NOW()
		WHERE id = $1 AND used < quantity
		RETURNING used, quantity
	`, t.ID, userID, now).Scan(&used, &quantity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			monitoring.RecordRedemption("exhausted")
			return nil, ErrExhausted
		}
		return nil, fmt.Errorf("failed to redeem token: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit redemption: %w", err)
	}

	remaining := quantity - used

	if s.cache != nil {
		if err := s.cache.InvalidateEntitlement(ctx, userID); err != nil {
			logger := logging.NewLogger("token")
			logger.Warn().Err(err).
				Str("user_id", userID.String()).
				Msg("Failed to invalidate entitlement cache after redemption")
		}
	}

	s.emitter.Emit("token_redeemed", userID.String(), map[string]any{
		"token_id":       t.ID.String(),
		"token_type":     string(t.Type),
		"remaining_uses": remaining,
	})

	logging.LogRedemption(userID.String(), t.ID.String(), remaining, "success")
	monitoring.RecordRedemption("success")

	return &RedeemResult{
		TokenID:       t.ID,
		RemainingUses: remaining,
		ExpiresAt:     t.ExpiresAt,
	}, nil
}

// Grant issues a batch of VIP tokens. Tokens may be pre-assigned to a user
// or left unassigned for later redemption. Single-type tokens may be scoped
// to a tip.
func (s *Service) Grant(ctx context.Context, req *GrantRequest) ([]models.VIPToken, error) {
	if req.Count < 1 || req.Quantity < 1 || req.ExpirationDays < 1 {
		return nil, ErrInvalidGrant
	}
	switch req.Type {
	case models.VIPTokenTypeGeneral, models.VIPTokenTypeSingle, models.VIPTokenTypeBundle:
	default:
		return nil, ErrInvalidGrant
	}
	if req.TipID != nil && req.Type != models.VIPTokenTypeSingle {
		return nil, ErrInvalidGrant
	}

	expiresAt := time.Now().AddDate(0, 0, req.ExpirationDays)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// A tip-scoped grant must point at content that exists right now.
	// Tips deleted later still leave dangling references, caught at
	// redemption time instead.
	if req.TipID != nil {
		var exists bool
		err = tx.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM tips WHERE id = $1)
		`, *req.TipID).Scan(&exists)
		if err != nil {
			return nil, fmt.Errorf("failed to check tip existence: %w", err)
		}
		if !exists {
			return nil, ErrDanglingReference
		}
	}

	tokens := make([]models.VIPToken, 0, req.Count)
	for i := 0; i < req.Count; i++ {
		code, err := generateCode()
		if err != nil {
			return nil, fmt.Errorf("failed to generate token code: %w", err)
		}

		var t models.VIPToken
		err = tx.QueryRow(ctx, `
			INSERT INTO vip_tokens (id, token, type, quantity, used, expires_at, user_id, tip_id)
			VALUES ($1, $2, $3, $4, 0, $5, $6, $7)
			RETURNING id, token, type, quantity, used, expires_at, user_id, tip_id, used_at, created_at, updated_at
		`, uuid.New(), code, req.Type, req.Quantity, expiresAt, req.UserID, req.TipID).Scan(
			&t.ID, &t.Token, &t.Type, &t.Quantity, &t.Used,
			&t.ExpiresAt, &t.UserID, &t.TipID, &t.UsedAt, &t.CreatedAt, &t.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert token: %w", err)
		}
		tokens = append(tokens, t)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit grant: %w", err)
	}

	monitoring.RecordTokensGranted(len(tokens))

	if req.UserID != nil && s.cache != nil {
		if err := s.cache.InvalidateEntitlement(ctx, *req.UserID); err != nil {
			logger := logging.NewLogger("token")
			logger.Warn().Err(err).
				Str("user_id", req.UserID.String()).
				Msg("Failed to invalidate entitlement cache after grant")
		}
	}

	return tokens, nil
}

// ListUserTokens retrieves the tokens bound to a user, newest first
func (s *Service) ListUserTokens(ctx context.Context, userID uuid.UUID) ([]models.VIPToken, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, token, type, quantity, used, expires_at, user_id, tip_id, used_at, created_at, updated_at
		FROM vip_tokens
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tokens: %w", err)
	}
	defer rows.Close()

	var tokens []models.VIPToken
	for rows.Next() {
		var t models.VIPToken
		err := rows.Scan(
			&t.ID, &t.Token, &t.Type, &t.Quantity, &t.Used,
			&t.ExpiresAt, &t.UserID, &t.TipID, &t.UsedAt, &t.CreatedAt, &t.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan token: %w", err)
		}
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tokens: %w", err)
	}

	return tokens, nil
}

// ActiveTokens retrieves the user's tokens that still have uses left and
// have not expired. The remaining-uses check runs in application code on
// purpose; only the expiry filter is pushed into SQL.
func (s *Service) ActiveTokens(ctx context.Context, userID uuid.UUID, now time.Time) ([]models.VIPToken, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, token, type, quantity, used, expires_at, user_id, tip_id, used_at, created_at, updated_at
		FROM vip_tokens
		WHERE user_id = $1 AND expires_at >= $2
		ORDER BY expires_at ASC
	`, userID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query active tokens: %w", err)
	}
	defer rows.Close()

	var tokens []models.VIPToken
	for rows.Next() {
		var t models.VIPToken
		err := rows.Scan(
			&t.ID, &t.Token, &t.Type, &t.Quantity, &t.Used,
			&t.ExpiresAt, &t.UserID, &t.TipID, &t.UsedAt, &t.CreatedAt, &t.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan token: %w", err)
		}
		if t.Used < t.Quantity {
			tokens = append(tokens, t)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate active tokens: %w", err)
	}

	return tokens, nil
}

// AdminAdjust changes a token's remaining uses or expiry. The used counter
// can never exceed the quantity.
func (s *Service) AdminAdjust(ctx context.Context, tokenID uuid.UUID, quantity *int, expiresAt *time.Time) (*models.VIPToken, error) {
	if quantity == nil && expiresAt == nil {
		return nil, ErrInvalidAdjustment
	}
	if quantity != nil && *quantity < 1 {
		return nil, ErrInvalidAdjustment
	}

	var t models.VIPToken
	err := s.db.QueryRow(ctx, `
		UPDATE vip_tokens
		SET quantity = COALESCE($2, quantity),
		    expires_at = COALESCE($3, expires_at),
		    updated_at = NOW()
		WHERE id = $1 AND used <= COALESCE($2, quantity)
		RETURNING id, token, type, quantity, used, expires_at, user_id, tip_id, used_at, created_at, updated_at
	`, tokenID, quantity, expiresAt).Scan(
		&t.ID, &t.Token, &t.Type, &t.Quantity, &t.Used,
		&t.ExpiresAt, &t.UserID, &t.TipID, &t.UsedAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Either the token does not exist or the new quantity would
			// fall below the used counter.
			var exists bool
			checkErr := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM vip_tokens WHERE id = $1)`, tokenID).Scan(&exists)
			if checkErr == nil && exists {
				return nil, ErrInvalidAdjustment
			}
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to adjust token: %w", err)
	}

	if t.UserID != nil && s.cache != nil {
		if err := s.cache.InvalidateEntitlement(ctx, *t.UserID); err != nil {
			logger := logging.NewLogger("token")
			logger.Warn().Err(err).
				Str("user_id", t.UserID.String()).
				Msg("Failed to invalidate entitlement cache after adjustment")
		}
	}

	return &t, nil
}

// generateCode produces a VIP-prefixed redemption code from 20 random bytes
func generateCode() (string, error) {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	encoded := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf)
	return "VIP-" + strings.ToUpper(encoded), nil
}
