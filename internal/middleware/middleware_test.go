package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/winfeed/backend/internal/config"
	"github.com/winfeed/backend/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig(secret string) *config.JWTConfig {
	return &config.JWTConfig{
		Secret:             secret,
		Issuer:             "winfeed",
		AccessTokenExpiry:  15,
		RefreshTokenExpiry: 168,
	}
}

// Helper function to create a test JWT token
func createTestToken(secret string, userID, userType, email string, subject string, expiry time.Duration) string {
	now := time.Now()
	claims := &Claims{
		UserID:   userID,
		UserType: userType,
		Email:    email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    "winfeed",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, _ := token.SignedString([]byte(secret))
	return tokenString
}

func TestJWTAuth_ValidToken(t *testing.T) {
	secret := "test-secret-key-for-jwt-testing"
	authenticator := NewJWTAuthenticator(testConfig(secret))

	userID := uuid.New().String()
	token := createTestToken(secret, userID, "member", "test@example.com", "access", 15*time.Minute)

	router := gin.New()
	router.Use(authenticator.JWTAuth())
	router.GET("/protected", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id":   GetUserIDFromContext(c),
			"user_type": GetUserTypeFromContext(c),
			"email":     GetEmailFromContext(c),
		})
	})

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
}

func TestJWTAuth_MissingToken(t *testing.T) {
	authenticator := NewJWTAuthenticator(testConfig("test-secret"))

	router := gin.New()
	router.Use(authenticator.JWTAuth())
	router.GET("/protected", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})

	req := httptest.NewRequest("GET", "/protected", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
}

func TestJWTAuth_InvalidToken(t *testing.T) {
	authenticator := NewJWTAuthenticator(testConfig("test-secret"))

	router := gin.New()
	router.Use(authenticator.JWTAuth())
	router.GET("/protected", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer invalid-token")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
}

func TestJWTAuth_ExpiredToken(t *testing.T) {
	secret := "test-secret"
	authenticator := NewJWTAuthenticator(testConfig(secret))

	token := createTestToken(secret, uuid.New().String(), "member", "test@example.com", "access", -1*time.Hour)

	router := gin.New()
	router.Use(authenticator.JWTAuth())
	router.GET("/protected", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
}

func TestJWTAuth_RefreshTokenRejected(t *testing.T) {
	secret := "test-secret"
	authenticator := NewJWTAuthenticator(testConfig(secret))

	// A refresh token must not pass the access-token gate
	token := createTestToken(secret, uuid.New().String(), "member", "test@example.com", "refresh", 7*24*time.Hour)

	router := gin.New()
	router.Use(authenticator.JWTAuth())
	router.GET("/protected", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
}

func TestOptionalAuth_NoTokenIsGuest(t *testing.T) {
	authenticator := NewJWTAuthenticator(testConfig("test-secret"))

	var caller models.Caller
	router := gin.New()
	router.Use(authenticator.OptionalAuth())
	router.GET("/feed", func(c *gin.Context) {
		caller = GetCallerFromContext(c)
		c.JSON(http.StatusOK, gin.H{"is_guest": caller.IsGuest})
	})

	req := httptest.NewRequest("GET", "/feed", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if !caller.IsGuest {
		t.Error("Request without credentials should resolve to a guest caller")
	}
	if caller.UserID != uuid.Nil {
		t.Errorf("Guest caller should carry the zero UUID, got %s", caller.UserID)
	}
}

func TestOptionalAuth_ValidTokenIsMember(t *testing.T) {
	secret := "test-secret"
	authenticator := NewJWTAuthenticator(testConfig(secret))

	userID := uuid.New().String()
	token := createTestToken(secret, userID, "member", "test@example.com", "access", 15*time.Minute)

	var caller models.Caller
	router := gin.New()
	router.Use(authenticator.OptionalAuth())
	router.GET("/feed", func(c *gin.Context) {
		caller = GetCallerFromContext(c)
		c.JSON(http.StatusOK, gin.H{})
	})

	req := httptest.NewRequest("GET", "/feed", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if caller.IsGuest {
		t.Error("Authenticated member should not resolve as guest")
	}
	if caller.UserID.String() != userID {
		t.Errorf("Expected caller %s, got %s", userID, caller.UserID)
	}
}

func TestOptionalAuth_GarbageTokenStillRejected(t *testing.T) {
	authenticator := NewJWTAuthenticator(testConfig("test-secret"))

	router := gin.New()
	router.Use(authenticator.OptionalAuth())
	router.GET("/feed", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{})
	})

	req := httptest.NewRequest("GET", "/feed", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
}

func TestRequireMember_GuestDenied(t *testing.T) {
	authenticator := NewJWTAuthenticator(testConfig("test-secret"))

	router := gin.New()
	router.Use(authenticator.OptionalAuth())
	router.Use(RequireMember())
	router.POST("/tokens/redeem", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})

	// Guest request with no token
	req := httptest.NewRequest("POST", "/tokens/redeem", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", w.Code)
	}
}

func TestRequireMember_MemberAndAdminAllowed(t *testing.T) {
	secret := "test-secret"
	authenticator := NewJWTAuthenticator(testConfig(secret))

	router := gin.New()
	router.Use(authenticator.JWTAuth())
	router.Use(RequireMember())
	router.POST("/tokens/redeem", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})

	for _, role := range []string{"member", "admin"} {
		token := createTestToken(secret, uuid.New().String(), role, "test@example.com", "access", 15*time.Minute)
		req := httptest.NewRequest("POST", "/tokens/redeem", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("Expected status 200 for %s, got %d", role, w.Code)
		}
	}
}

func TestRequireAdmin(t *testing.T) {
	secret := "test-secret"
	authenticator := NewJWTAuthenticator(testConfig(secret))

	adminToken := createTestToken(secret, uuid.New().String(), "admin", "admin@example.com", "access", 15*time.Minute)

	router := gin.New()
	router.Use(authenticator.JWTAuth())
	router.Use(RequireAdmin())
	router.GET("/admin-only", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})

	req := httptest.NewRequest("GET", "/admin-only", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	// A member must not reach admin surfaces
	memberToken := createTestToken(secret, uuid.New().String(), "member", "test@example.com", "access", 15*time.Minute)

	req2 := httptest.NewRequest("GET", "/admin-only", nil)
	req2.Header.Set("Authorization", "Bearer "+memberToken)
	w2 := httptest.NewRecorder()

	router.ServeHTTP(w2, req2)

	if w2.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", w2.Code)
	}
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		name       string
		authHeader string
		wantToken  string
		wantErr    bool
	}{
		{
			name:       "valid bearer token",
			authHeader: "Bearer abc123",
			wantToken:  "abc123",
			wantErr:    false,
		},
		{
			name:       "missing bearer prefix",
			authHeader: "abc123",
			wantToken:  "",
			wantErr:    true,
		},
		{
			name:       "empty header",
			authHeader: "",
			wantToken:  "",
			wantErr:    true,
		},
		{
			name:       "only bearer prefix",
			authHeader: "Bearer ",
			wantToken:  "",
			wantErr:    false,
		},
		{
			name:       "wrong prefix",
			authHeader: "Basic abc123",
			wantToken:  "",
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := extractBearerToken(tt.authHeader)
			if (err != nil) != tt.wantErr {
				t.Errorf("extractBearerToken() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if token != tt.wantToken {
				t.Errorf("extractBearerToken() = %v, want %v", token, tt.wantToken)
			}
		})
	}
}

func TestContextHelpers(t *testing.T) {
	secret := "test-secret"
	authenticator := NewJWTAuthenticator(testConfig(secret))

	userID := uuid.New().String()
	token := createTestToken(secret, userID, "member", "member@example.com", "access", 15*time.Minute)

	router := gin.New()
	router.Use(authenticator.JWTAuth())
	router.GET("/test", func(c *gin.Context) {
		if got := GetUserIDFromContext(c); got != userID {
			t.Errorf("Expected userID '%s', got '%s'", userID, got)
		}
		if got := GetUserTypeFromContext(c); got != models.UserTypeMember {
			t.Errorf("Expected userType 'member', got '%s'", got)
		}
		if got := GetEmailFromContext(c); got != "member@example.com" {
			t.Errorf("Expected email 'member@example.com', got '%s'", got)
		}
		if GetClaimsFromContext(c) == nil {
			t.Error("Expected claims to be set")
		}

		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
}

func TestProperty_CorrelationID_GeneratedWhenMissing(t *testing.T) {
	router := gin.New()
	router.Use(RequestID())
	router.Use(CorrelationID())
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"correlation_id": GetCorrelationIDFromContext(c)})
	})

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	// Property: Correlation ID should be generated
	correlationID := w.Header().Get("X-Correlation-ID")
	if correlationID == "" {
		t.Fatal("PROPERTY VIOLATION: Correlation ID should be generated when not provided")
	}

	// Property: Correlation ID should be a valid UUID format
	if len(correlationID) != 36 {
		t.Fatalf("PROPERTY VIOLATION: Correlation ID should be UUID format, got length %d", len(correlationID))
	}
}

func TestProperty_CorrelationID_PropagatedFromHeader(t *testing.T) {
	router := gin.New()
	router.Use(RequestID())
	router.Use(CorrelationID())
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"correlation_id": GetCorrelationIDFromContext(c)})
	})

	expectedCorrelationID := "test-correlation-id-12345"
	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-Correlation-ID", expectedCorrelationID)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	// Property: Correlation ID should be propagated from header
	correlationID := w.Header().Get("X-Correlation-ID")
	if correlationID != expectedCorrelationID {
		t.Fatalf("PROPERTY VIOLATION: Correlation ID should be propagated, expected %s, got %s",
			expectedCorrelationID, correlationID)
	}
}

func TestProperty_CorrelationID_FallsBackToRequestID(t *testing.T) {
	router := gin.New()
	router.Use(RequestID())
	router.Use(CorrelationID())

	var capturedRequestID string
	var capturedCorrelationID string

	router.GET("/test", func(c *gin.Context) {
		capturedRequestID = GetRequestIDFromContext(c)
		capturedCorrelationID = GetCorrelationIDFromContext(c)
		c.JSON(http.StatusOK, gin.H{})
	})

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	// Property: When no correlation ID is provided, it should fall back to request ID
	if capturedCorrelationID != capturedRequestID {
		t.Fatalf("PROPERTY VIOLATION: Correlation ID should fall back to request ID, got correlation=%s, request=%s",
			capturedCorrelationID, capturedRequestID)
	}
}

func TestProperty_RequestID_GeneratedWhenMissing(t *testing.T) {
	router := gin.New()
	router.Use(RequestID())
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"request_id": GetRequestIDFromContext(c)})
	})

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	// Property: Request ID should be generated
	requestID := w.Header().Get("X-Request-ID")
	if requestID == "" {
		t.Fatal("PROPERTY VIOLATION: Request ID should be generated when not provided")
	}

	// Property: Request ID should be a valid UUID format
	if len(requestID) != 36 {
		t.Fatalf("PROPERTY VIOLATION: Request ID should be UUID format, got length %d", len(requestID))
	}
}

func TestProperty_RequestID_PropagatedFromHeader(t *testing.T) {
	router := gin.New()
	router.Use(RequestID())
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"request_id": GetRequestIDFromContext(c)})
	})

	expectedRequestID := "test-request-id-12345"
	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-Request-ID", expectedRequestID)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	// Property: Request ID should be propagated from header
	requestID := w.Header().Get("X-Request-ID")
	if requestID != expectedRequestID {
		t.Fatalf("PROPERTY VIOLATION: Request ID should be propagated, expected %s, got %s",
			expectedRequestID, requestID)
	}
}
