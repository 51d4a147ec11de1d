package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/winfeed/backend/internal/analytics"
	"github.com/winfeed/backend/internal/auth"
	"github.com/winfeed/backend/internal/cache"
	"github.com/winfeed/backend/internal/config"
	"github.com/winfeed/backend/internal/conversion"
	"github.com/winfeed/backend/internal/entitlement"
	apierrors "github.com/winfeed/backend/internal/errors"
	"github.com/winfeed/backend/internal/ledger"
	"github.com/winfeed/backend/internal/logging"
	"github.com/winfeed/backend/internal/middleware"
	"github.com/winfeed/backend/internal/monitoring"
	"github.com/winfeed/backend/internal/notification"
	"github.com/winfeed/backend/internal/referral"
	"github.com/winfeed/backend/internal/subscription"
	"github.com/winfeed/backend/internal/tips"
	"github.com/winfeed/backend/internal/token"
)

// APIServer represents the main API server
type APIServer struct {
	config           *config.Config
	router           *gin.Engine
	db               *pgxpool.Pool
	jwtAuthenticator *middleware.JWTAuthenticator

	authService         *auth.Service
	ledgerService       *ledger.Service
	tokenService        *token.Service
	referralService     *referral.Service
	conversionService   *conversion.Service
	entitlementService  *entitlement.Service
	subscriptionService *subscription.Service
	tipService          *tips.Service
	notifier            *notification.Service
}

// NewAPIServer creates a new API server instance
func NewAPIServer(cfg *config.Config, db *pgxpool.Pool, redis *cache.Redis) *APIServer {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Add middleware in order
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.CORS(cfg.CORS.AllowedOrigins))
	router.Use(monitoring.MetricsMiddleware())
	router.Use(logging.RequestLogger())

	emitter := analytics.NewEmitter(&cfg.Analytics)

	ledgerService := ledger.NewService(db)

	srv := &APIServer{
		config:           cfg,
		router:           router,
		db:               db,
		jwtAuthenticator: middleware.NewJWTAuthenticator(&cfg.JWT),

		authService:         auth.NewService(db, &cfg.JWT),
		ledgerService:       ledgerService,
		tokenService:        token.NewService(db, redis, emitter),
		referralService:     referral.NewService(db, ledgerService, redis, emitter, cfg.Rewards),
		conversionService:   conversion.NewService(db, ledgerService, redis, emitter, cfg.Conversion),
		entitlementService:  entitlement.NewService(db, redis, cfg.Entitlement.CacheTTLSeconds),
		subscriptionService: subscription.NewService(db, redis),
		tipService:          tips.NewService(db),
		notifier:            notification.NewService(cfg.SMTP),
	}

	srv.setupRoutes()
	return srv
}

// Router returns the gin router
func (s *APIServer) Router() http.Handler {
	return s.router
}

// setupRoutes configures all API routes
func (s *APIServer) setupRoutes() {
	// Health check
	s.router.GET("/health", s.healthCheck)

	// API v1 routes
	v1 := s.router.Group("/api/v1")
	{
		// Auth routes (public)
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", s.handleRegister)
			authGroup.POST("/login", s.handleLogin)
			authGroup.POST("/logout", s.handleLogout)
			authGroup.POST("/refresh", s.handleRefresh)
		}

		// Entitlement resolution (guests get a well-formed locked-out answer)
		v1.GET("/entitlement", s.jwtAuthenticator.OptionalAuth(), s.handleResolveEntitlement)

		// Published tips are public; VIP content access is gated by entitlement
		v1.GET("/tips", s.handleListTips)

		// Wallet routes (members only)
		wallet := v1.Group("/wallet")
		wallet.Use(s.jwtAuthenticator.JWTAuth())
		wallet.Use(middleware.RequireMember())
		{
			wallet.GET("", s.handleGetWallet)
			wallet.GET("/earnings", s.handleListEarnings)
		}

		// VIP token routes (members only)
		tokens := v1.Group("/tokens")
		tokens.Use(s.jwtAuthenticator.JWTAuth())
		tokens.Use(middleware.RequireMember())
		{
			tokens.GET("", s.handleListTokens)
			tokens.POST("/redeem", s.handleRedeemToken)
		}

		// Referral routes (members only)
		referrals := v1.Group("/referrals")
		referrals.Use(s.jwtAuthenticator.JWTAuth())
		referrals.Use(middleware.RequireMember())
		{
			referrals.POST("/apply", s.handleApplyReferral)
			referrals.GET("/stats", s.handleReferralStats)
			referrals.GET("/earnings", s.handleListReferralEarnings)
			referrals.GET("", s.handleListReferrals)
		}

		// Conversion routes (members only)
		conversions := v1.Group("/conversions")
		conversions.Use(s.jwtAuthenticator.JWTAuth())
		conversions.Use(middleware.RequireMember())
		{
			conversions.POST("", s.handleConvertTokens)
			conversions.GET("", s.handleListConversions)
			conversions.GET("/bounds", s.handleConversionBounds)
		}

		// Subscription routes (members only)
		subscriptions := v1.Group("/subscriptions")
		subscriptions.Use(s.jwtAuthenticator.JWTAuth())
		subscriptions.Use(middleware.RequireMember())
		{
			subscriptions.GET("", s.handleListSubscriptions)
			subscriptions.GET("/active", s.handleActiveSubscription)
		}

		// Admin routes (protected - requires admin role)
		admin := v1.Group("/admin")
		admin.Use(s.jwtAuthenticator.JWTAuth())
		admin.Use(middleware.RequireAdmin())
		{
			admin.POST("/tokens/grant", s.handleAdminGrantTokens)
			admin.PUT("/tokens/:id", s.handleAdminAdjustToken)
			admin.PUT("/subscriptions/:id", s.handleAdminOverrideSubscription)
			admin.GET("/wallets/:user_id/reconciliation", s.handleAdminReconcileWallet)
			admin.POST("/tips", s.handleAdminCreateTip)
			admin.POST("/tips/:id/publish", s.handleAdminPublishTip)
			admin.DELETE("/tips/:id", s.handleAdminDeleteTip)
		}
	}
}

// Health check handler
func (s *APIServer) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "api",
	})
}

// handleRegister handles user registration. A referral code supplied at
// signup is applied after the account exists; a bad code never blocks
// registration.
func (s *APIServer) handleRegister(c *gin.Context) {
	var req auth.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierrors.NewValidationError(err.Error()))
		return
	}

	resp, err := s.authService.Register(c.Request.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrEmailAlreadyExists):
			respondError(c, apierrors.NewInvalidRequestError("Email already registered"))
		default:
			respondError(c, apierrors.ErrInternalServerError)
		}
		return
	}

	if req.ReferralCode != "" {
		if _, err := s.referralService.ApplyReferral(c.Request.Context(), resp.User.ID, req.ReferralCode); err != nil {
			logger := logging.NewLogger("server")
			logger.Warn().
				Err(err).
				Str("user_id", resp.User.ID.String()).
				Msg("Referral code at signup could not be applied")
		}
	}

	c.JSON(http.StatusCreated, resp)
}

// handleLogin handles user login
func (s *APIServer) handleLogin(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierrors.NewValidationError(err.Error()))
		return
	}

	resp, err := s.authService.Login(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			respondError(c, apierrors.ErrInvalidCredentialsError)
		} else {
			respondError(c, apierrors.ErrInternalServerError)
		}
		return
	}

	c.JSON(http.StatusOK, resp)
}

// handleLogout handles user logout
func (s *APIServer) handleLogout(c *gin.Context) {
	// For stateless JWT, logout is handled client-side by removing the token
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

// handleRefresh handles token refresh
func (s *APIServer) handleRefresh(c *gin.Context) {
	var req auth.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierrors.NewValidationError(err.Error()))
		return
	}

	tokens, err := s.authService.RefreshTokens(c.Request.Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidToken):
			respondError(c, apierrors.ErrInvalidCredentialsError)
		case errors.Is(err, auth.ErrTokenExpired):
			respondError(c, apierrors.ErrTokenExpiredError)
		case errors.Is(err, auth.ErrUserNotFound):
			respondError(c, apierrors.ErrUserNotFoundError)
		default:
			respondError(c, apierrors.ErrInternalServerError)
		}
		return
	}

	c.JSON(http.StatusOK, tokens)
}

// respondError sends a standardized error response
func respondError(c *gin.Context, err *apierrors.APIError) {
	reqID := middleware.GetRequestIDFromContext(c)
	corrID := middleware.GetCorrelationIDFromContext(c)
	if corrID == "" {
		corrID = reqID
	}

	response := apierrors.NewErrorResponse(
		err,
		reqID,
		corrID,
		c.Request.URL.Path,
		c.Request.Method,
	)

	c.JSON(err.HTTPStatus, response)
}
