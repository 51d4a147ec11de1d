package tips

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/winfeed/backend/internal/models"
)

// Service errors
var (
	ErrTipNotFound = errors.New("tip not found")
	ErrInvalidTip  = errors.New("invalid tip")
)

// CreateRequest describes a new tip
type CreateRequest struct {
	Title   string `json:"title" binding:"required,min=1,max=200"`
	VIPOnly bool   `json:"vip_only"`
}

// Service manages the tips VIP content is scoped to
type Service struct {
	db *pgxpool.Pool
}

// NewService creates a new tips service
func NewService(db *pgxpool.Pool) *Service {
	return &Service{db: db}
}

// Create inserts a draft tip
func (s *Service) Create(ctx context.Context, req *CreateRequest) (*models.Tip, error) {
	if req.Title == "" {
		return nil, ErrInvalidTip
	}

	var tip models.Tip
	err := s.db.QueryRow(ctx, `
		INSERT INTO tips (id, title, status, vip_only)
		VALUES ($1, $2, $3, $4)
		RETURNING id, title, status, vip_only, published_at, created_at, updated_at
	`, uuid.New(), req.Title, models.TipStatusDraft, req.VIPOnly).Scan(
		&tip.ID, &tip.Title, &tip.Status, &tip.VIPOnly,
		&tip.PublishedAt, &tip.CreatedAt, &tip.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert tip: %w", err)
	}
	return &tip, nil
}

// GetByID retrieves a tip
func (s *Service) GetByID(ctx context.Context, tipID uuid.UUID) (*models.Tip, error) {
	var tip models.Tip
	err := s.db.QueryRow(ctx, `
		SELECT id, title, status, vip_only, published_at, created_at, updated_at
		FROM tips WHERE id = $1
	`, tipID).Scan(
		&tip.ID, &tip.Title, &tip.Status, &tip.VIPOnly,
		&tip.PublishedAt, &tip.CreatedAt, &tip.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTipNotFound
		}
		return nil, fmt.Errorf("failed to get tip: %w", err)
	}
	return &tip, nil
}

// Exists reports whether a tip is still present
func (s *Service) Exists(ctx context.Context, tipID uuid.UUID) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tips WHERE id = $1)`, tipID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check tip existence: %w", err)
	}
	return exists, nil
}

// Publish moves a draft tip to published
func (s *Service) Publish(ctx context.Context, tipID uuid.UUID) (*models.Tip, error) {
	var tip models.Tip
	err := s.db.QueryRow(ctx, `
		UPDATE tips
		SET status = $2, published_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = $3
		RETURNING id, title, status, vip_only, published_at, created_at, updated_at
	`, tipID, models.TipStatusPublished, models.TipStatusDraft).Scan(
		&tip.ID, &tip.Title, &tip.Status, &tip.VIPOnly,
		&tip.PublishedAt, &tip.CreatedAt, &tip.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTipNotFound
		}
		return nil, fmt.Errorf("failed to publish tip: %w", err)
	}
	return &tip, nil
}

// ListPublished retrieves published tips, newest first
func (s *Service) ListPublished(ctx context.Context, limit, offset int) ([]models.Tip, error) {
	if limit < 1 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, title, status, vip_only, published_at, created_at, updated_at
		FROM tips
		WHERE status = $1
		ORDER BY published_at DESC
		LIMIT $2 OFFSET $3
	`, models.TipStatusPublished, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query tips: %w", err)
	}
	defer rows.Close()

	var tips []models.Tip
	for rows.Next() {
		var tip models.Tip
		err := rows.Scan(
			&tip.ID, &tip.Title, &tip.Status, &tip.VIPOnly,
			&tip.PublishedAt, &tip.CreatedAt, &tip.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tip: %w", err)
		}
		tips = append(tips, tip)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tips: %w", err)
	}

	return tips, nil
}

// Delete removes a tip. Tokens scoped to it become dangling and refuse to
// redeem from that point on.
func (s *Service) Delete(ctx context.Context, tipID uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM tips WHERE id = $1`, tipID)
	if err != nil {
		return fmt.Errorf("failed to delete tip: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTipNotFound
	}
	return nil
}
