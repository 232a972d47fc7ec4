package auth

import (
	"testing"
	"time"
)

func testManager() *Manager {
	return NewManager("test-secret", 15*time.Minute, 24*time.Hour)
}

func TestAccessTokenRoundTrip(t *testing.T) {
	m := testManager()

	raw, err := m.GenerateAccessToken("user-1", "u@example.com", "admin")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	claims, err := m.VerifyAccessToken(raw)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}

	if claims.UserID != "user-1" || claims.Email != "u@example.com" || claims.Role != "admin" {
		t.Fatalf("claims mismatch: %+v", claims)
	}
}

func TestRefreshTokenRejectedAsAccess(t *testing.T) {
	m := testManager()

	raw, _, _, err := m.GenerateRefreshToken("user-1", "u@example.com", "user")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if _, err := m.VerifyAccessToken(raw); err == nil {
		t.Fatal("refresh token accepted as access token")
	}

	claims, err := m.VerifyRefreshToken(raw)
	if err != nil {
		t.Fatalf("verify refresh: %v", err)
	}
	if claims.JTI == "" {
		t.Fatal("refresh claims missing jti")
	}
}

func TestTokenFromOtherSecretRejected(t *testing.T) {
	other := NewManager("different-secret", time.Minute, time.Hour)

	raw, err := other.GenerateAccessToken("user-1", "u@example.com", "user")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if _, err := testManager().VerifyAccessToken(raw); err == nil {
		t.Fatal("token signed with another secret accepted")
	}
}

func TestHashRefreshTokenDeterministic(t *testing.T) {
	m := testManager()

	a := m.HashRefreshToken("token-a")

	if a != m.HashRefreshToken("token-a") {
		t.Fatal("hash not deterministic")
	}
	if a == m.HashRefreshToken("token-b") {
		t.Fatal("different tokens hash equal")
	}
}
