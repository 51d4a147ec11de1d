package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/winfeed/backend/internal/logging"
	"github.com/winfeed/backend/internal/models"
	"github.com/winfeed/backend/internal/monitoring"
)

// Service errors
var (
	ErrWalletNotFound     = errors.New("wallet not found")
	ErrInsufficientFunds  = errors.New("insufficient balance")
	ErrInsufficientTokens = errors.New("insufficient tokens")
	ErrInvalidDelta       = errors.New("invalid wallet delta")
)

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx so engines can run
// ApplyDelta inside their own atomic unit of work.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Delta describes a single wallet mutation. Every credit and debit anywhere
// in the engine goes through ApplyDelta with one of these.
type Delta struct {
	Balance        decimal.Decimal
	Tokens         int64
	BonusTokens    int64
	TotalEarned    decimal.Decimal
	TotalWithdrawn decimal.Decimal
	Reason         models.EarningType
	Reference      *uuid.UUID
	Description    string
}

// IsZero reports whether the delta mutates nothing
func (d Delta) IsZero() bool {
	return d.Balance.IsZero() && d.Tokens == 0 && d.BonusTokens == 0 &&
		d.TotalEarned.IsZero() && d.TotalWithdrawn.IsZero()
}

// Service is the sole writer of wallet rows
type Service struct {
	db *pgxpool.Pool
}

// NewService creates a new ledger service
func NewService(db *pgxpool.Pool) *Service {
	return &Service{db: db}
}

// GetWallet retrieves a user's wallet
func (s *Service) GetWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	return getWallet(ctx, s.db, userID)
}

func getWallet(ctx context.Context, q Querier, userID uuid.UUID) (*models.Wallet, error) {
	var w models.Wallet
	err := q.QueryRow(ctx, `
		SELECT user_id, balance, tokens, bonus_tokens, total_earned, total_withdrawn, created_at, updated_at
		FROM wallets WHERE user_id = $1
	`, userID).Scan(
		&w.UserID, &w.Balance, &w.Tokens, &w.BonusTokens,
		&w.TotalEarned, &w.TotalWithdrawn, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return &w, nil
}

// ApplyDelta applies a wallet mutation against the given querier, which may
// be the pool or an open transaction. The wallet is created lazily on the
// first qualifying event. All three pools are guarded against going
// negative in the UPDATE itself, and an audit earning row is written in the
// same unit of work.
func (s *Service) ApplyDelta(ctx context.Context, q Querier, userID uuid.UUID, d Delta) (*models.Wallet, error) {
	if q == nil {
		q = s.db
	}
	if d.IsZero() {
		return nil, ErrInvalidDelta
	}
	if d.Reason == "" {
		return nil, ErrInvalidDelta
	}

	// Lazy wallet creation. DO NOTHING keeps an existing row untouched.
	_, err := q.Exec(ctx, `
		INSERT INTO wallets (user_id, balance, tokens, bonus_tokens, total_earned, total_withdrawn)
		VALUES ($1, 0, 0, 0, 0, 0)
		ON CONFLICT (user_id) DO NOTHING
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure wallet: %w", err)
	}

	var w models.Wallet
	err = q.QueryRow(ctx, `
		UPDATE wallets
		SET balance = balance + $2,
		    tokens = tokens + $3,
		    bonus_tokens = bonus_tokens + $4,
		    total_earned = total_earned + $5,
		    total_withdrawn = total_withdrawn + $6,
		    updated_at = NOW()
		WHERE user_id = $1
		  AND balance + $2 >= 0
		  AND tokens + $3 >= 0
		  AND bonus_tokens + $4 >= 0
		RETURNING user_id, balance, tokens, bonus_tokens, total_earned, total_withdrawn, created_at, updated_at
	`, userID, d.Balance, d.Tokens, d.BonusTokens, d.TotalEarned, d.TotalWithdrawn).Scan(
		&w.UserID, &w.Balance, &w.Tokens, &w.BonusTokens,
		&w.TotalEarned, &w.TotalWithdrawn, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// The guard rejected the mutation. Classify without trusting
			// the stale read for anything else.
			monitoring.RecordLedgerRejection(string(d.Reason))
			return nil, s.classifyRejection(ctx, q, userID, d)
		}
		return nil, fmt.Errorf("failed to apply wallet delta: %w", err)
	}

	// Audit trail in the same unit of work.
	_, err = q.Exec(ctx, `
		INSERT INTO earnings (id, user_id, type, amount, currency, tokens, status, description, reference)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, uuid.New(), userID, d.Reason, d.Balance, "USD", d.Tokens+d.BonusTokens,
		models.EarningStatusConfirmed, d.Description, d.Reference)
	if err != nil {
		return nil, fmt.Errorf("failed to record earning: %w", err)
	}

	logging.LogWalletDelta(userID.String(), string(d.Reason), d.Balance.String(), d.Tokens, d.BonusTokens)
	monitoring.RecordWalletDelta(string(d.Reason))

	return &w, nil
}

// classifyRejection decides which non-negativity guard fired
func (s *Service) classifyRejection(ctx context.Context, q Querier, userID uuid.UUID, d Delta) error {
	w, err := getWallet(ctx, q, userID)
	if err != nil {
		return err
	}
	if d.Balance.IsNegative() && w.Balance.Add(d.Balance).IsNegative() {
		return ErrInsufficientFunds
	}
	if d.Tokens < 0 && w.Tokens+d.Tokens < 0 {
		return ErrInsufficientTokens
	}
	if d.BonusTokens < 0 && w.BonusTokens+d.BonusTokens < 0 {
		return ErrInsufficientTokens
	}
	// Concurrent writer consumed the headroom between our UPDATE and this
	// read; report the debited pool.
	if d.Balance.IsNegative() {
		return ErrInsufficientFunds
	}
	return ErrInsufficientTokens
}

// ListEarnings retrieves a user's earning history, newest first
func (s *Service) ListEarnings(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Earning, error) {
	if limit < 1 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, type, amount, currency, tokens, status, description, reference, created_at
		FROM earnings
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query earnings: %w", err)
	}
	defer rows.Close()

	var earnings []models.Earning
	for rows.Next() {
		var e models.Earning
		err := rows.Scan(
			&e.ID, &e.UserID, &e.Type, &e.Amount, &e.Currency,
			&e.Tokens, &e.Status, &e.Description, &e.Reference, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan earning: %w", err)
		}
		earnings = append(earnings, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate earnings: %w", err)
	}

	return earnings, nil
}

// ReconciliationReport compares a wallet's total_earned against the sum of
// its confirmed earning entries. Disagreement is reported, never corrected.
type ReconciliationReport struct {
	UserID       uuid.UUID       `json:"user_id"`
	WalletEarned decimal.Decimal `json:"wallet_total_earned"`
	LedgerEarned decimal.Decimal `json:"ledger_total_earned"`
	Reconciled   bool            `json:"reconciled"`
}

// Reconcile checks the cross-entity earned-total invariant for one wallet
func (s *Service) Reconcile(ctx context.Context, userID uuid.UUID) (*ReconciliationReport, error) {
	w, err := s.GetWallet(ctx, userID)
	if err != nil {
		return nil, err
	}

	var ledgerEarned decimal.Decimal
	err = s.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM earnings
		WHERE user_id = $1 AND status = $2 AND amount > 0
	`, userID, models.EarningStatusConfirmed).Scan(&ledgerEarned)
	if err != nil {
		return nil, fmt.Errorf("failed to sum earnings: %w", err)
	}

	return &ReconciliationReport{
		UserID:       userID,
		WalletEarned: w.TotalEarned,
		LedgerEarned: ledgerEarned,
		Reconciled:   w.TotalEarned.Equal(ledgerEarned),
	}, nil
}
