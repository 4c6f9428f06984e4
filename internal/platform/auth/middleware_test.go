package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const testSecret = "unit-test-secret"

func signToken(t *testing.T, subject string, expiresAt time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		Email: "user@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func newTestAuthenticator(t *testing.T) *Authenticator {
	t.Helper()
	a, err := NewAuthenticator(testSecret)
	if err != nil {
		t.Fatalf("NewAuthenticator: %v", err)
	}
	return a
}

func TestVerifyValidToken(t *testing.T) {
	a := newTestAuthenticator(t)

	identity, err := a.Verify(signToken(t, "user-42", time.Now().Add(time.Hour)))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if identity.UID != "user-42" {
		t.Errorf("expected uid user-42, got %q", identity.UID)
	}
	if identity.Email != "user@example.com" {
		t.Errorf("expected email claim, got %q", identity.Email)
	}
}

func TestVerifyExpiredToken(t *testing.T) {
	a := newTestAuthenticator(t)

	if _, err := a.Verify(signToken(t, "user-42", time.Now().Add(-time.Hour))); err != ErrTokenExpired {
		t.Errorf("expected ErrTokenExpired, got %v", err)
	}
}

func TestVerifyMissingSubject(t *testing.T) {
	a := newTestAuthenticator(t)

	if _, err := a.Verify(signToken(t, "", time.Now().Add(time.Hour))); err != ErrTokenInvalid {
		t.Errorf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestRequireAuthInjectsIdentity(t *testing.T) {
	a := newTestAuthenticator(t)

	var seen *Identity
	handler := a.RequireAuth()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "user-42", time.Now().Add(time.Hour)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if seen == nil || seen.UID != "user-42" {
		t.Errorf("expected identity on context, got %+v", seen)
	}
}

func TestRequireAuthRejectsMissingHeader(t *testing.T) {
	a := newTestAuthenticator(t)

	handler := a.RequireAuth()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
