package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/winfeed/backend/internal/conversion"
	apierrors "github.com/winfeed/backend/internal/errors"
	"github.com/winfeed/backend/internal/ledger"
	"github.com/winfeed/backend/internal/middleware"
	"github.com/winfeed/backend/internal/models"
	"github.com/winfeed/backend/internal/referral"
	"github.com/winfeed/backend/internal/subscription"
	"github.com/winfeed/backend/internal/token"
)

// callerID extracts the authenticated user ID or sends an error response.
// Handlers behind JWTAuth always have one; a parse failure means a forged
// or corrupt token slipped through.
func callerID(c *gin.Context) (uuid.UUID, bool) {
	userIDStr := middleware.GetUserIDFromContext(c)
	if userIDStr == "" {
		respondError(c, apierrors.ErrUnauthenticatedError)
		return uuid.Nil, false
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		respondError(c, apierrors.ErrInvalidCredentialsError)
		return uuid.Nil, false
	}
	return userID, true
}

// pagination reads limit/offset query params with sane defaults
func pagination(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// handleGetWallet returns the caller's wallet, creating nothing
func (s *APIServer) handleGetWallet(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	wallet, err := s.ledgerService.GetWallet(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, ledger.ErrWalletNotFound) {
			// A member who never earned or redeemed anything has no wallet
			// row yet. Present the canonical empty wallet instead of a 404.
			c.JSON(http.StatusOK, gin.H{
				"user_id":      userID,
				"balance":      "0",
				"tokens":       0,
				"bonus_tokens": 0,
			})
			return
		}
		respondError(c, apierrors.ErrInternalServerError)
		return
	}

	c.JSON(http.StatusOK, wallet)
}

// handleListEarnings returns the caller's earnings history
func (s *APIServer) handleListEarnings(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	limit, offset := pagination(c)
	earnings, err := s.ledgerService.ListEarnings(c.Request.Context(), userID, limit, offset)
	if err != nil {
		respondError(c, apierrors.ErrInternalServerError)
		return
	}

	c.JSON(http.StatusOK, gin.H{"earnings": earnings})
}

// handleResolveEntitlement answers "can this caller see VIP content".
// Works for guests too: they get has_access=false without a store hit.
func (s *APIServer) handleResolveEntitlement(c *gin.Context) {
	caller := middleware.GetCallerFromContext(c)

	ent, err := s.entitlementService.Resolve(c.Request.Context(), caller)
	if err != nil {
		respondError(c, apierrors.ErrInternalServerError)
		return
	}

	c.JSON(http.StatusOK, ent)
}

// handleListTips lists published tips
func (s *APIServer) handleListTips(c *gin.Context) {
	limit, offset := pagination(c)
	items, err := s.tipService.ListPublished(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, apierrors.ErrInternalServerError)
		return
	}

	c.JSON(http.StatusOK, gin.H{"tips": items})
}

// handleListTokens lists the caller's VIP tokens. With ?active=true only
// unexpired tokens with remaining uses are returned.
func (s *APIServer) handleListTokens(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	var items []models.VIPToken
	var err error
	if c.Query("active") == "true" {
		items, err = s.tokenService.ActiveTokens(c.Request.Context(), userID, time.Now())
	} else {
		items, err = s.tokenService.ListUserTokens(c.Request.Context(), userID)
	}
	if err != nil {
		respondError(c, apierrors.ErrInternalServerError)
		return
	}

	c.JSON(http.StatusOK, gin.H{"tokens": items})
}

// RedeemRequest carries the code a member is redeeming
type RedeemRequest struct {
	Code string `json:"code" binding:"required"`
}

// handleRedeemToken redeems a VIP token code for the caller
func (s *APIServer) handleRedeemToken(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	var req RedeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierrors.NewValidationError(err.Error()))
		return
	}

	result, err := s.tokenService.Redeem(c.Request.Context(), req.Code, userID)
	if err != nil {
		switch {
		case errors.Is(err, token.ErrInvalidCode):
			respondError(c, apierrors.ErrInvalidCodeError)
		case errors.Is(err, token.ErrExpired):
			respondError(c, apierrors.ErrExpiredError)
		case errors.Is(err, token.ErrExhausted):
			respondError(c, apierrors.ErrExhaustedError)
		case errors.Is(err, token.ErrOwnedByOther):
			respondError(c, apierrors.ErrOwnedByOtherError)
		case errors.Is(err, token.ErrDanglingReference):
			respondError(c, apierrors.ErrDanglingReferenceError)
		default:
			respondError(c, apierrors.ErrInternalServerError)
		}
		return
	}

	c.JSON(http.StatusOK, result)
}

// ApplyReferralRequest carries the invite code being claimed
type ApplyReferralRequest struct {
	Code string `json:"code" binding:"required"`
}

// handleApplyReferral attributes the caller to a referrer and pays rewards
func (s *APIServer) handleApplyReferral(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	var req ApplyReferralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierrors.NewValidationError(err.Error()))
		return
	}

	result, err := s.referralService.ApplyReferral(c.Request.Context(), userID, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, referral.ErrInvalidCode):
			respondError(c, apierrors.ErrInvalidCodeError)
		case errors.Is(err, referral.ErrSelfReferral):
			respondError(c, apierrors.ErrSelfReferralError)
		case errors.Is(err, referral.ErrAlreadyReferred):
			respondError(c, apierrors.ErrAlreadyReferredError)
		case errors.Is(err, referral.ErrUserNotFound):
			respondError(c, apierrors.ErrUserNotFoundError)
		default:
			respondError(c, apierrors.ErrInternalServerError)
		}
		return
	}

	// Reward email is best-effort and never blocks the response
	if referrer, err := s.authService.GetUserByID(c.Request.Context(), result.ReferrerID); err == nil {
		s.notifier.NotifyReferralReward(referrer.Email, result.Rewards.ReferrerCash.StringFixed(2))
	}

	c.JSON(http.StatusOK, result)
}

// handleReferralStats returns aggregate referral numbers for the caller
func (s *APIServer) handleReferralStats(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	stats, err := s.referralService.GetStats(c.Request.Context(), userID)
	if err != nil {
		respondError(c, apierrors.ErrInternalServerError)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// handleListReferralEarnings lists the referral-ledger rows credited to the caller
func (s *APIServer) handleListReferralEarnings(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	limit, offset := pagination(c)
	items, err := s.referralService.ListEarnings(c.Request.Context(), userID, limit, offset)
	if err != nil {
		respondError(c, apierrors.ErrInternalServerError)
		return
	}

	c.JSON(http.StatusOK, gin.H{"earnings": items})
}

// handleListReferrals lists referrals where the caller is the referrer
func (s *APIServer) handleListReferrals(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	limit, offset := pagination(c)
	items, err := s.referralService.ListReferrals(c.Request.Context(), userID, limit, offset)
	if err != nil {
		respondError(c, apierrors.ErrInternalServerError)
		return
	}

	c.JSON(http.StatusOK, gin.H{"referrals": items})
}

// ConvertRequest carries the token count to convert to cash
type ConvertRequest struct {
	Tokens int64 `json:"tokens" binding:"required,min=1"`
}

// handleConvertTokens converts earned and bonus tokens into cash balance
func (s *APIServer) handleConvertTokens(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	var req ConvertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierrors.NewValidationError(err.Error()))
		return
	}

	result, err := s.conversionService.Convert(c.Request.Context(), userID, req.Tokens)
	if err != nil {
		switch {
		case errors.Is(err, conversion.ErrOutOfBounds):
			respondError(c, apierrors.ErrOutOfBoundsError)
		case errors.Is(err, conversion.ErrInsufficientTokens):
			respondError(c, apierrors.ErrInsufficientTokensError)
		case errors.Is(err, conversion.ErrWalletNotFound):
			respondError(c, apierrors.ErrInsufficientTokensError)
		default:
			respondError(c, apierrors.ErrInternalServerError)
		}
		return
	}

	c.JSON(http.StatusOK, result)
}

// handleListConversions returns the caller's conversion history
func (s *APIServer) handleListConversions(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	limit, offset := pagination(c)
	items, err := s.conversionService.ListConversions(c.Request.Context(), userID, limit, offset)
	if err != nil {
		respondError(c, apierrors.ErrInternalServerError)
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversions": items})
}

// handleConversionBounds exposes the configured exchange terms
func (s *APIServer) handleConversionBounds(c *gin.Context) {
	min, max, rate := s.conversionService.Bounds()
	c.JSON(http.StatusOK, gin.H{
		"min_tokens": min,
		"max_tokens": max,
		"rate":       rate,
	})
}

// handleListSubscriptions lists all of the caller's subscriptions
func (s *APIServer) handleListSubscriptions(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	items, err := s.subscriptionService.ListByUser(c.Request.Context(), userID)
	if err != nil {
		respondError(c, apierrors.ErrInternalServerError)
		return
	}

	c.JSON(http.StatusOK, gin.H{"subscriptions": items})
}

// handleActiveSubscription returns the caller's active subscription, if any
func (s *APIServer) handleActiveSubscription(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	sub, err := s.subscriptionService.GetActive(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, subscription.ErrSubscriptionNotFound) {
			respondError(c, apierrors.ErrNotFoundError)
			return
		}
		respondError(c, apierrors.ErrInternalServerError)
		return
	}

	c.JSON(http.StatusOK, sub)
}
