package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apierrors "github.com/winfeed/backend/internal/errors"
	"github.com/winfeed/backend/internal/ledger"
	"github.com/winfeed/backend/internal/subscription"
	"github.com/winfeed/backend/internal/tips"
	"github.com/winfeed/backend/internal/token"
)

// handleAdminGrantTokens issues a batch of VIP tokens
func (s *APIServer) handleAdminGrantTokens(c *gin.Context) {
	var req token.GrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierrors.NewValidationError(err.Error()))
		return
	}

	granted, err := s.tokenService.Grant(c.Request.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, token.ErrInvalidGrant):
			respondError(c, apierrors.NewInvalidRequestError(err.Error()))
		case errors.Is(err, token.ErrDanglingReference):
			respondError(c, apierrors.ErrDanglingReferenceError)
		default:
			respondError(c, apierrors.ErrInternalServerError)
		}
		return
	}

	// Grants targeted at a known user trigger a courtesy email
	if req.UserID != nil {
		if user, err := s.authService.GetUserByID(c.Request.Context(), *req.UserID); err == nil {
			s.notifier.NotifyTokenGrant(user.Email, len(granted))
		}
	}

	c.JSON(http.StatusCreated, gin.H{"tokens": granted})
}

// AdjustTokenRequest carries the fields an admin may change on a token
type AdjustTokenRequest struct {
	Quantity  *int       `json:"quantity,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// handleAdminAdjustToken changes a token's quantity or expiry
func (s *APIServer) handleAdminAdjustToken(c *gin.Context) {
	tokenID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, apierrors.NewInvalidRequestError("Invalid token ID"))
		return
	}

	var req AdjustTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierrors.NewValidationError(err.Error()))
		return
	}

	updated, err := s.tokenService.AdminAdjust(c.Request.Context(), tokenID, req.Quantity, req.ExpiresAt)
	if err != nil {
		switch {
		case errors.Is(err, token.ErrTokenNotFound):
			respondError(c, apierrors.ErrNotFoundError)
		case errors.Is(err, token.ErrInvalidAdjustment):
			respondError(c, apierrors.NewInvalidRequestError("Quantity cannot drop below recorded uses"))
		default:
			respondError(c, apierrors.ErrInternalServerError)
		}
		return
	}

	c.JSON(http.StatusOK, updated)
}

// handleAdminOverrideSubscription force-updates subscription state
func (s *APIServer) handleAdminOverrideSubscription(c *gin.Context) {
	subID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, apierrors.NewInvalidRequestError("Invalid subscription ID"))
		return
	}

	var req subscription.OverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierrors.NewValidationError(err.Error()))
		return
	}

	updated, err := s.subscriptionService.AdminOverride(c.Request.Context(), subID, &req)
	if err != nil {
		switch {
		case errors.Is(err, subscription.ErrSubscriptionNotFound):
			respondError(c, apierrors.ErrNotFoundError)
		case errors.Is(err, subscription.ErrInvalidStatus):
			respondError(c, apierrors.NewInvalidRequestError("Unknown subscription status"))
		default:
			respondError(c, apierrors.ErrInternalServerError)
		}
		return
	}

	c.JSON(http.StatusOK, updated)
}

// handleAdminReconcileWallet compares a wallet's running totals against
// its audit trail. Drift is reported, never corrected.
func (s *APIServer) handleAdminReconcileWallet(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		respondError(c, apierrors.NewInvalidRequestError("Invalid user ID"))
		return
	}

	report, err := s.ledgerService.Reconcile(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, ledger.ErrWalletNotFound) {
			respondError(c, apierrors.ErrNotFoundError)
			return
		}
		respondError(c, apierrors.ErrInternalServerError)
		return
	}

	c.JSON(http.StatusOK, report)
}

// handleAdminCreateTip creates a draft tip
func (s *APIServer) handleAdminCreateTip(c *gin.Context) {
	var req tips.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierrors.NewValidationError(err.Error()))
		return
	}

	tip, err := s.tipService.Create(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, tips.ErrInvalidTip) {
			respondError(c, apierrors.NewInvalidRequestError(err.Error()))
			return
		}
		respondError(c, apierrors.ErrInternalServerError)
		return
	}

	c.JSON(http.StatusCreated, tip)
}

// handleAdminPublishTip moves a draft tip to published
func (s *APIServer) handleAdminPublishTip(c *gin.Context) {
	tipID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, apierrors.NewInvalidRequestError("Invalid tip ID"))
		return
	}

	tip, err := s.tipService.Publish(c.Request.Context(), tipID)
	if err != nil {
		if errors.Is(err, tips.ErrTipNotFound) {
			// Covers unknown IDs and tips that already left the draft state
			respondError(c, apierrors.ErrNotFoundError)
			return
		}
		respondError(c, apierrors.ErrInternalServerError)
		return
	}

	c.JSON(http.StatusOK, tip)
}

// handleAdminDeleteTip deletes a tip. Tokens scoped to it become dangling
// and fail redemption with a dangling-reference error.
func (s *APIServer) handleAdminDeleteTip(c *gin.Context) {
	tipID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, apierrors.NewInvalidRequestError("Invalid tip ID"))
		return
	}

	if err := s.tipService.Delete(c.Request.Context(), tipID); err != nil {
		if errors.Is(err, tips.ErrTipNotFound) {
			respondError(c, apierrors.ErrNotFoundError)
			return
		}
		respondError(c, apierrors.ErrInternalServerError)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Tip deleted"})
}
