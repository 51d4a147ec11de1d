package conversion

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
	ErrOutOfBounds        = errors.New("token count outside conversion bounds")
	ErrInsufficientTokens = errors.New("not enough tokens to convert")
	ErrWalletNotFound     = errors.New("wallet not found")
)

// Result is returned on a successful conversion
type Result struct {
	ConversionID uuid.UUID       `json:"conversion_id"`
	Tokens       int64           `json:"tokens_converted"`
	FromBonus    int64           `json:"from_bonus"`
	FromEarned   int64           `json:"from_earned"`
	Rate         decimal.Decimal `json:"rate"`
	Amount       decimal.Decimal `json:"amount_earned"`
	Wallet       *models.Wallet  `json:"wallet"`
}

// Service converts earned and bonus tokens into cash balance
type Service struct {
	db      *pgxpool.Pool
	ledger  *ledger.Service
	cache   *cache.Redis
	emitter *analytics.Emitter
	cfg     config.ConversionConfig
}

// NewService creates a new conversion service
func NewService(db *pgxpool.Pool, ledgerSvc *ledger.Service, redis *cache.Redis, emitter *analytics.Emitter, cfg config.ConversionConfig) *Service {
	return &Service{
		db:      db,
		ledger:  ledgerSvc,
		cache:   redis,
		emitter: emitter,
		cfg:     cfg,
	}
}

// Convert exchanges count tokens for cash at the configured rate. Bonus
// tokens are consumed before earned tokens. The wallet row is locked for
// the duration so concurrent conversions serialize.
func (s *Service) Convert(ctx context.Context, userID uuid.UUID, count int64) (*Result, error) {
	if count < s.cfg.Min || count > s.cfg.Max {
		monitoring.RecordConversion("out_of_bounds", 0)
		return nil, ErrOutOfBounds
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var tokens, bonusTokens int64
	err = tx.QueryRow(ctx, `
		SELECT tokens, bonus_tokens FROM wallets WHERE user_id = $1 FOR UPDATE
	`, userID).Scan(&tokens, &bonusTokens)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to lock wallet: %w", err)
	}

	if tokens+bonusTokens < count {
		monitoring.RecordConversion("insufficient_tokens", 0)
		return nil, ErrInsufficientTokens
	}

	// Bonus pool drains first
	fromBonus := count
	if bonusTokens < count {
		fromBonus = bonusTokens
	}
	fromEarned := count - fromBonus

	amount := s.cfg.Rate.Mul(decimal.NewFromInt(count)).Round(2)

	conversionID := uuid.New()
	_, err = tx.Exec(ctx, `
		INSERT INTO token_conversions (id, user_id, tokens_converted, token_rate, amount_earned, status, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, conversionID, userID, count, s.cfg.Rate, amount, models.ConversionStatusCompleted, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to insert conversion: %w", err)
	}

	wallet, err := s.ledger.ApplyDelta(ctx, tx, userID, ledger.Delta{
		Balance:     amount,
		Tokens:      -fromEarned,
		BonusTokens: -fromBonus,
		TotalEarned: amount,
		Reason:      models.EarningTypeTokenConversion,
		Reference:   &conversionID,
		Description: fmt.Sprintf("Converted %d tokens", count),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to apply conversion delta: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit conversion: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.InvalidateEntitlement(ctx, userID); err != nil {
			logger := logging.NewLogger("conversion")
			logger.Warn().Err(err).
				Str("user_id", userID.String()).
				Msg("Failed to invalidate entitlement cache after conversion")
		}
	}

	s.emitter.Emit("tokens_converted", userID.String(), map[string]any{
		"conversion_id": conversionID.String(),
		"tokens":        count,
		"amount":        amount.String(),
	})

	logging.LogConversion(userID.String(), conversionID.String(), count, amount.String())
	monitoring.RecordConversion("success", count)

	return &Result{
		ConversionID: conversionID,
		Tokens:       count,
		FromBonus:    fromBonus,
		FromEarned:   fromEarned,
		Rate:         s.cfg.Rate,
		Amount:       amount,
		Wallet:       wallet,
	}, nil
}

// ListConversions retrieves a user's conversion history, newest first
func (s *Service) ListConversions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.TokenConversion, error) {
	if limit < 1 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, tokens_converted, token_rate, amount_earned, status, processed_at, created_at
		FROM token_conversions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversions: %w", err)
	}
	defer rows.Close()

	var conversions []models.TokenConversion
	for rows.Next() {
		var c models.TokenConversion
		err := rows.Scan(
			&c.ID, &c.UserID, &c.TokensConverted, &c.TokenRate,
			&c.AmountEarned, &c.Status, &c.ProcessedAt, &c.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversion: %w", err)
		}
		conversions = append(conversions, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversions: %w", err)
	}

	return conversions, nil
}

// Bounds returns the configured conversion limits and rate
func (s *Service) Bounds() (min, max int64, rate decimal.Decimal) {
	return s.cfg.Min, s.cfg.Max, s.cfg.Rate
}
