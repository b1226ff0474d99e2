package auth

import (
	"errors"
	"testing"
	"time"
)

func TestJWTManager(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour)

	token, err := m.Generate("alice", "9000000001")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	claims, err := m.Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if claims.UserID != "alice" || claims.Phone != "9000000001" {
		t.Errorf("Unexpected claims: %+v", claims)
	}

	tests := []struct {
		name  string
		token string
		mgr   *JWTManager
	}{
		{name: "garbage", token: "not-a-token", mgr: m},
		{name: "wrong secret", token: token, mgr: NewJWTManager("other-secret", time.Hour)},
		{name: "expired", token: mustGenerate(t, NewJWTManager("test-secret", -time.Minute)), mgr: m},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.mgr.Verify(tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Expected ErrInvalidToken, got %v", err)
			}
		})
	}

	if _, err := m.Generate("", ""); err == nil {
		t.Error("Expected an error for an empty user id")
	}
}

func mustGenerate(t *testing.T, m *JWTManager) string {
	t.Helper()
	token, err := m.Generate("alice", "")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	return token
}
