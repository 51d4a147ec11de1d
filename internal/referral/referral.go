package referral

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/winfeed/backend/internal/analytics"
	"github.com/winfeed/backend/internal/cache"
	"github.com/winfeed/backend/internal/config"
	"github.com/winfeed/backend/internal/ledger"
	"github.com/winfeed/backend/internal/logging"
	"github.com/winfeed/backend/internal/models"
	"github.com/winfeed/backend/internal/monitoring"
)

// Service errors
var (
	ErrInvalidCode     = errors.New("referral code not found")
	ErrSelfReferral    = errors.New("users cannot refer themselves")
	ErrAlreadyReferred = errors.New("user already has a referrer")
	ErrUserNotFound    = errors.New("user not found")
)

// Rewards describes what a completed referral paid out
type Rewards struct {
	ReferrerCash   decimal.Decimal `json:"referrer_cash"`
	ReferrerTokens int64           `json:"referrer_tokens"`
	ReferredBonus  int64           `json:"referred_bonus_tokens"`
}

// ApplyResult is returned on a successful referral
type ApplyResult struct {
	ReferralID uuid.UUID `json:"referral_id"`
	ReferrerID uuid.UUID `json:"referrer_id"`
	Rewards    Rewards   `json:"rewards"`
}

// Service handles referral attribution and reward payout
type Service struct {
	db      *pgxpool.Pool
	ledger  *ledger.Service
	cache   *cache.Redis
	emitter *analytics.Emitter
	rewards config.RewardsConfig
}

// NewService creates a new referral service
func NewService(db *pgxpool.Pool, ledgerSvc *ledger.Service, redis *cache.Redis, emitter *analytics.Emitter, rewards config.RewardsConfig) *Service {
	return &Service{
		db:      db,
		ledger:  ledgerSvc,
		cache:   redis,
		emitter: emitter,
		rewards: rewards,
	}
}

// ApplyReferral attributes a new user to the owner of code and pays both
// sides in one transaction. A user's referrer is set at most once; the
// conditional UPDATE on referred_by IS NULL closes the race between two
// concurrent attempts.
func (s *Service) ApplyReferral(ctx context.Context, newUserID uuid.UUID, code string) (*ApplyResult, error) {
	var referrerID uuid.UUID
	err := s.db.QueryRow(ctx, `
		SELECT id FROM users WHERE referral_code = $1
	`, code).Scan(&referrerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			monitoring.RecordReferral("invalid_code")
			return nil, ErrInvalidCode
		}
		return nil, fmt.Errorf("failed to resolve referral code: %w", err)
	}

	if referrerID == newUserID {
		monitoring.RecordReferral("self_referral")
		return nil, ErrSelfReferral
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// First writer wins; a second attempt sees zero rows.
	tag, err := tx.Exec(ctx, `
		UPDATE users SET referred_by = $1, updated_at = NOW()
		WHERE id = $2 AND referred_by IS NULL
	`, referrerID, newUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to set referrer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		checkErr := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, newUserID).Scan(&exists)
		if checkErr == nil && !exists {
			monitoring.RecordReferral("user_not_found")
			return nil, ErrUserNotFound
		}
		monitoring.RecordReferral("already_referred")
		return nil, ErrAlreadyReferred
	}

	now := time.Now()
	referralID := uuid.New()
	_, err = tx.Exec(ctx, `
		INSERT INTO referrals (id, referrer_id, referred_id, code, status, reward_amount, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, referralID, referrerID, newUserID, code, models.ReferralStatusConfirmed, s.rewards.ReferrerCash, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert referral: %w", err)
	}

	// Welcome bonus for the referred user
	_, err = s.ledger.ApplyDelta(ctx, tx, newUserID, ledger.Delta{
		BonusTokens: s.rewards.WelcomeBonusTokens,
		Reason:      models.EarningTypeWelcomeBonus,
		Reference:   &referralID,
		Description: "Welcome bonus for joining via referral",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to credit welcome bonus: %w", err)
	}

	// Cash and token reward for the referrer
	_, err = s.ledger.ApplyDelta(ctx, tx, referrerID, ledger.Delta{
		Balance:     s.rewards.ReferrerCash,
		Tokens:      s.rewards.ReferrerTokens,
		TotalEarned: s.rewards.ReferrerCash,
		Reason:      models.EarningTypeReferralReward,
		Reference:   &referralID,
		Description: "Referral reward",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to credit referrer: %w", err)
	}

	// Referrer-side projection, kept consistent with the earnings row by
	// living in the same transaction.
	_, err = tx.Exec(ctx, `
		INSERT INTO referral_earnings (id, referral_id, referrer_id, referred_id, amount, tokens)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.New(), referralID, referrerID, newUserID, s.rewards.ReferrerCash, s.rewards.ReferrerTokens)
	if err != nil {
		return nil, fmt.Errorf("failed to insert referral earning: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit referral: %w", err)
	}

	if s.cache != nil {
		for _, id := range []uuid.UUID{newUserID, referrerID} {
			if err := s.cache.InvalidateEntitlement(ctx, id); err != nil {
				logger := logging.NewLogger("referral")
				logger.Warn().Err(err).
					Str("user_id", id.String()).
					Msg("Failed to invalidate entitlement cache after referral")
			}
		}
	}

	s.emitter.Emit("referral_completed", newUserID.String(), map[string]any{
		"referral_id": referralID.String(),
		"referrer_id": referrerID.String(),
		"reward":      s.rewards.ReferrerCash.String(),
	})

	logging.LogReferral(referrerID.String(), newUserID.String(), referralID.String(), s.rewards.ReferrerCash.String())
	monitoring.RecordReferral("success")

	return &ApplyResult{
		ReferralID: referralID,
		ReferrerID: referrerID,
		Rewards: Rewards{
			ReferrerCash:   s.rewards.ReferrerCash,
			ReferrerTokens: s.rewards.ReferrerTokens,
			ReferredBonus:  s.rewards.WelcomeBonusTokens,
		},
	}, nil
}

// GetStats summarizes a user's referral activity
func (s *Service) GetStats(ctx context.Context, referrerID uuid.UUID) (*models.ReferralStats, error) {
	var stats models.ReferralStats
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(reward_amount) FILTER (WHERE status = $2), 0)
		FROM referrals
		WHERE referrer_id = $1
	`, referrerID, models.ReferralStatusConfirmed).Scan(
		&stats.TotalInvited, &stats.TotalEarned,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query referral stats: %w", err)
	}

	err = s.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(tokens), 0) FROM referral_earnings WHERE referrer_id = $1
	`, referrerID).Scan(&stats.TotalTokens)
	if err != nil {
		return nil, fmt.Errorf("failed to query referral token total: %w", err)
	}

	return &stats, nil
}

// ListEarnings retrieves the referral-ledger rows credited to a referrer,
// newest first
func (s *Service) ListEarnings(ctx context.Context, referrerID uuid.UUID, limit, offset int) ([]models.ReferralEarning, error) {
	if limit < 1 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, referral_id, referrer_id, referred_id, amount, tokens, created_at
		FROM referral_earnings
		WHERE referrer_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, referrerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query referral earnings: %w", err)
	}
	defer rows.Close()

	var earnings []models.ReferralEarning
	for rows.Next() {
		var e models.ReferralEarning
		err := rows.Scan(
			&e.ID, &e.ReferralID, &e.ReferrerID, &e.ReferredID,
			&e.Amount, &e.Tokens, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan referral earning: %w", err)
		}
		earnings = append(earnings, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate referral earnings: %w", err)
	}

	return earnings, nil
}

// ListReferrals retrieves a user's referrals, newest first
func (s *Service) ListReferrals(ctx context.Context, referrerID uuid.UUID, limit, offset int) ([]models.Referral, error) {
	if limit < 1 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, referrer_id, referred_id, code, status, reward_amount, completed_at, created_at
		FROM referrals
		WHERE referrer_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, referrerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query referrals: %w", err)
	}
	defer rows.Close()

	var referrals []models.Referral
	for rows.Next() {
		var r models.Referral
		err := rows.Scan(
			&r.ID, &r.ReferrerID, &r.ReferredID, &r.Code,
			&r.Status, &r.RewardAmount, &r.CompletedAt, &r.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan referral: %w", err)
		}
		referrals = append(referrals, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate referrals: %w", err)
	}

	return referrals, nil
}
