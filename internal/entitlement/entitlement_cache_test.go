package entitlement

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/winfeed/backend/internal/cache"
	"github.com/winfeed/backend/internal/models"
	"github.com/winfeed/backend/internal/subscription"
	"github.com/winfeed/backend/internal/token"
)

// newTestCache connects to the test Redis instance, skipping the caller
// when none is reachable. Tests share the database guard from TestMain.
func newTestCache(t *testing.T) *cache.Redis {
	t.Helper()

	redisURL := os.Getenv("TEST_REDIS_URL")
	if redisURL == "" {
		t.Skip("TEST_REDIS_URL not set")
	}

	c, err := cache.New(redisURL)
	if err != nil {
		t.Skipf("Test Redis not available: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	return c
}

// ============================================
// Property Tests for Cache Invalidation
// ============================================

// TestProperty_Entitlement_CacheInvalidatedOnRedemption tests that a cached
// access decision never outlives the token state it was derived from:
// redeeming the last use of a token must be visible on the very next Resolve.
func TestProperty_Entitlement_CacheInvalidatedOnRedemption(t *testing.T) {
	if testDB == nil {
		t.Skip("Test database not available")
	}

	ctx := context.Background()
	redisCache := newTestCache(t)

	// A long TTL so a stale entry would survive the whole test if the
	// redemption path forgot to drop it.
	svc := NewService(testDB, redisCache, 300)
	tokenSvc := token.NewService(testDB, redisCache, nil)

	userID := createTestUser(t, ctx, models.UserTypeMember)
	defer cleanupTestUser(t, ctx, userID)
	defer func() { _ = redisCache.InvalidateEntitlement(ctx, userID) }()
	caller := models.Caller{UserID: userID}

	code := fmt.Sprintf("VIP-CACHE%s", uuid.New().String()[:12])
	if _, err := testDB.Exec(ctx, `
		INSERT INTO vip_tokens (id, token, type, quantity, used, expires_at, user_id)
		VALUES ($1, $2, 'general', 1, 0, $3, $4)
	`, uuid.New(), code, time.Now().Add(24*time.Hour), userID); err != nil {
		t.Fatalf("Failed to create test token: %v", err)
	}

	ent, err := svc.Resolve(ctx, caller)
	if err != nil {
		t.Fatalf("Failed to resolve: %v", err)
	}
	if !ent.HasAccess || ent.Via != ViaToken {
		t.Fatalf("Live token should grant access via token, got %+v", ent)
	}

	// The decision is now cached; a second Resolve must serve it.
	var cached Entitlement
	hit, err := redisCache.GetEntitlement(ctx, userID, &cached)
	if err != nil || !hit {
		t.Fatalf("Resolve should have cached the decision, hit=%v err=%v", hit, err)
	}

	// Consuming the last use exhausts the token.
	if _, err := tokenSvc.Redeem(ctx, code, userID); err != nil {
		t.Fatalf("Failed to redeem token: %v", err)
	}

	ent, err = svc.Resolve(ctx, caller)
	if err != nil {
		t.Fatalf("Failed to resolve after redemption: %v", err)
	}
	if ent.HasAccess {
		t.Fatalf("PROPERTY VIOLATION: Resolve after exhausting redemption should report no access immediately, got %+v", ent)
	}
}

// TestProperty_Entitlement_CacheInvalidatedOnSubscriptionOverride tests that
// an administrative subscription change is visible on the very next Resolve.
func TestProperty_Entitlement_CacheInvalidatedOnSubscriptionOverride(t *testing.T) {
	if testDB == nil {
		t.Skip("Test database not available")
	}

	ctx := context.Background()
	redisCache := newTestCache(t)

	svc := NewService(testDB, redisCache, 300)
	subSvc := subscription.NewService(testDB, redisCache)

	userID := createTestUser(t, ctx, models.UserTypeMember)
	defer cleanupTestUser(t, ctx, userID)
	defer func() { _ = redisCache.InvalidateEntitlement(ctx, userID) }()
	caller := models.Caller{UserID: userID}

	subID := createTestSubscription(t, ctx, userID, models.SubscriptionStatusActive, time.Now().Add(30*24*time.Hour))

	ent, err := svc.Resolve(ctx, caller)
	if err != nil {
		t.Fatalf("Failed to resolve: %v", err)
	}
	if !ent.HasAccess || ent.Via != ViaSubscription {
		t.Fatalf("Active subscription should grant access, got %+v", ent)
	}

	canceled := models.SubscriptionStatusCanceled
	if _, err := subSvc.AdminOverride(ctx, subID, &subscription.OverrideRequest{Status: &canceled}); err != nil {
		t.Fatalf("Failed to override subscription: %v", err)
	}

	ent, err = svc.Resolve(ctx, caller)
	if err != nil {
		t.Fatalf("Failed to resolve after override: %v", err)
	}
	if ent.HasAccess {
		t.Fatalf("PROPERTY VIOLATION: Resolve after cancellation override should report no access immediately, got %+v", ent)
	}
}
