package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestConfigValidateOIDCRequiresIssuer(t *testing.T) {
	cfg := Config{Mode: ModeOIDC, OIDCClientID: "orchestrator"}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for missing issuer url")
	}
	cfg.OIDCIssuerURL = "https://idp.example.org"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDevAuthenticator(t *testing.T) {
	cfg := Config{Mode: ModeDev, DevSubject: "dev-operator", DevEmail: "dev@localhost", DevRoles: []string{"operator"}}
	identity, err := NewDevAuthenticator(cfg).Authenticate(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if identity.Actor() != "dev@localhost" {
		t.Fatalf("unexpected actor: %q", identity.Actor())
	}
}

func TestTokenFromHeader(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/v1/runs", nil)
	if tokenFromHeader(r) != "" {
		t.Fatalf("expected empty token without header")
	}
	r.Header.Set("Authorization", "Bearer abc123")
	if tokenFromHeader(r) != "abc123" {
		t.Fatalf("expected bearer token")
	}
	r.Header.Set("Authorization", "Basic abc123")
	if tokenFromHeader(r) != "" {
		t.Fatalf("expected empty token for non-bearer scheme")
	}
}

func TestMiddlewareDisabledModePassesThrough(t *testing.T) {
	var got Identity
	handler := Middleware(nil, ModeDisabled, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/runs", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if got.Subject != "anonymous" {
		t.Fatalf("expected anonymous identity, got %+v", got)
	}
}

func TestMiddlewareRejectsUnauthenticated(t *testing.T) {
	handler := Middleware(failingAuthenticator{}, ModeOIDC, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler must not be reached")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/runs", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

type failingAuthenticator struct{}

func (failingAuthenticator) Authenticate(context.Context, *http.Request) (Identity, error) {
	return Identity{}, ErrUnauthenticated
}
