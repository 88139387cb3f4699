package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	types "github.com/thesisdesk/thesisdesk-backend/internal/domain"
	"github.com/thesisdesk/thesisdesk-backend/internal/platform/logger"
)

func mintToken(t *testing.T, secret string, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func identityRig(t *testing.T) (*gin.Engine, *types.Owner) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}

	var captured types.Owner
	router := gin.New()
	router.Use(Identity(log))
	router.GET("/whoami", func(c *gin.Context) {
		captured = OwnerFrom(c)
		c.Status(http.StatusOK)
	})
	return router, &captured
}

func TestIdentityBearerToken(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "test-secret")
	router, captured := identityRig(t)

	userID := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, "test-secret", userID.String()))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	got, ok := captured.UserID()
	if !ok || got != userID {
		t.Fatalf("expected authenticated owner %s, got %+v", userID, *captured)
	}
}

func TestIdentityRejectsBadToken(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "test-secret")
	router, _ := identityRig(t)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, "other-secret", uuid.NewString()))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("a forged token must not downgrade to anonymous, got %d", rec.Code)
	}
}

func TestIdentityAnonymousHeader(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "test-secret")
	router, captured := identityRig(t)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("X-Anonymous-Id", "sess-abc")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	anonID, ok := captured.AnonymousID()
	if !ok || anonID != "sess-abc" {
		t.Fatalf("expected anonymous owner sess-abc, got %+v", *captured)
	}
}

func TestIdentityNoIdentity(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "test-secret")
	router, captured := identityRig(t)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("identity middleware itself must not gate, got %d", rec.Code)
	}
	if !captured.IsZero() {
		t.Fatalf("expected zero owner, got %+v", *captured)
	}
}
