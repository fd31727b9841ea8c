package auth

import (
	"testing"
	"time"
)

func TestCSRFTokenManager_GenerateAndValidate(t *testing.T) {
	manager := NewCSRFTokenManager(time.Minute)

	token, err := manager.GenerateToken("sess-1")
	if err != nil {
		t.Fatalf("failed to generate CSRF token: %v", err)
	}
	if token == "" {
		t.Fatalf("expected non-empty token")
	}

	if !manager.ValidateToken(token, "sess-1") {
		t.Errorf("expected freshly issued token to validate")
	}
}

func TestCSRFTokenManager_TokenBoundToSession(t *testing.T) {
	manager := NewCSRFTokenManager(time.Minute)

	token, err := manager.GenerateToken("sess-1")
	if err != nil {
		t.Fatalf("failed to generate CSRF token: %v", err)
	}

	if manager.ValidateToken(token, "sess-other") {
		t.Errorf("expected token issued to sess-1 to fail for sess-other")
	}
}

func TestCSRFTokenManager_UnknownTokenInvalid(t *testing.T) {
	manager := NewCSRFTokenManager(time.Minute)

	if manager.ValidateToken("never-issued", "sess-1") {
		t.Errorf("expected unknown token to be invalid")
	}
}

func TestCSRFTokenManager_ExpiredTokenInvalid(t *testing.T) {
	manager := NewCSRFTokenManager(time.Nanosecond)

	token, err := manager.GenerateToken("sess-1")
	if err != nil {
		t.Fatalf("failed to generate CSRF token: %v", err)
	}

	time.Sleep(time.Millisecond)

	if manager.ValidateToken(token, "sess-1") {
		t.Errorf("expected expired token to be invalid")
	}
}

func TestCSRFTokenManager_RevokeToken(t *testing.T) {
	manager := NewCSRFTokenManager(time.Minute)

	token, err := manager.GenerateToken("sess-1")
	if err != nil {
		t.Fatalf("failed to generate CSRF token: %v", err)
	}

	manager.RevokeToken(token)

	if manager.ValidateToken(token, "sess-1") {
		t.Errorf("expected revoked token to be invalid")
	}
}

func TestCSRFTokenManager_RevokeSessionDropsAllTokens(t *testing.T) {
	manager := NewCSRFTokenManager(time.Minute)

	first, err := manager.GenerateToken("sess-1")
	if err != nil {
		t.Fatalf("failed to generate CSRF token: %v", err)
	}
	second, err := manager.GenerateToken("sess-1")
	if err != nil {
		t.Fatalf("failed to generate CSRF token: %v", err)
	}
	other, err := manager.GenerateToken("sess-2")
	if err != nil {
		t.Fatalf("failed to generate CSRF token: %v", err)
	}

	manager.RevokeSession("sess-1")

	if manager.ValidateToken(first, "sess-1") || manager.ValidateToken(second, "sess-1") {
		t.Errorf("expected every token for sess-1 to be invalid after revocation")
	}
	if !manager.ValidateToken(other, "sess-2") {
		t.Errorf("expected sess-2 tokens to survive sess-1 revocation")
	}
}
