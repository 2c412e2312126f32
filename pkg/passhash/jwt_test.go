package passhash

import (
	"testing"
	"time"
)

func TestJWTManager_GenerateValidatorToken(t *testing.T) {
	manager := NewJWTManager(&JWTConfig{
		SecretKey:   "test-secret-key",
		TokenExpiry: 15 * time.Minute,
		Issuer:      "test-issuer",
	})

	token, err := manager.GenerateValidatorToken("shuttle-1", "cmd-123", "hash-abc")
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	if token == "" {
		t.Error("expected non-empty token")
	}

	parts := 0
	for _, c := range token {
		if c == '.' {
			parts++
		}
	}
	if parts != 2 {
		t.Errorf("expected 2 dots in JWT, got %d", parts)
	}
}

func TestJWTManager_ValidateToken(t *testing.T) {
	manager := NewJWTManager(&JWTConfig{
		SecretKey:   "test-secret-key",
		TokenExpiry: 15 * time.Minute,
		Issuer:      "test-issuer",
	})

	token, _ := manager.GenerateValidatorToken("shuttle-1", "cmd-123", "hash-abc")

	claims, err := manager.ValidateToken(token)
	if err != nil {
		t.Fatalf("failed to validate token: %v", err)
	}

	if claims.DeviceID != "shuttle-1" {
		t.Errorf("expected DeviceID 'shuttle-1', got %s", claims.DeviceID)
	}
	if claims.CommandID != "cmd-123" {
		t.Errorf("expected CommandID 'cmd-123', got %s", claims.CommandID)
	}
	if claims.BarcodeHash != "hash-abc" {
		t.Errorf("expected BarcodeHash 'hash-abc', got %s", claims.BarcodeHash)
	}
	if claims.Issuer != "test-issuer" {
		t.Errorf("expected issuer 'test-issuer', got %s", claims.Issuer)
	}
}

func TestJWTManager_ValidateToken_Invalid(t *testing.T) {
	manager := NewJWTManager(nil)

	_, err := manager.ValidateToken("invalid-token")
	if err == nil {
		t.Error("expected error for invalid token")
	}
}

func TestJWTManager_ValidateToken_Expired(t *testing.T) {
	manager := NewJWTManager(&JWTConfig{
		SecretKey:   "test-secret",
		TokenExpiry: 1 * time.Millisecond,
		Issuer:      "test",
	})

	token, _ := manager.GenerateValidatorToken("shuttle-1", "cmd-1", "hash")

	time.Sleep(10 * time.Millisecond)

	_, err := manager.ValidateToken(token)
	if err == nil {
		t.Error("expected error for expired token")
	}
}

func TestJWTManager_ValidateToken_WrongSecret(t *testing.T) {
	manager1 := NewJWTManager(&JWTConfig{
		SecretKey:   "secret-1",
		TokenExpiry: 15 * time.Minute,
	})
	manager2 := NewJWTManager(&JWTConfig{
		SecretKey:   "secret-2",
		TokenExpiry: 15 * time.Minute,
	})

	token, _ := manager1.GenerateValidatorToken("shuttle-1", "cmd-1", "hash")

	_, err := manager2.ValidateToken(token)
	if err == nil {
		t.Error("expected error for wrong secret")
	}
}

func TestJWTManager_TokenExpirySeconds(t *testing.T) {
	manager := NewJWTManager(&JWTConfig{
		TokenExpiry: 15 * time.Minute,
	})

	expiry := manager.TokenExpirySeconds()
	expected := int64(15 * 60)

	if expiry != expected {
		t.Errorf("expected %d seconds, got %d", expected, expiry)
	}
}

func TestDefaultJWTConfig(t *testing.T) {
	cfg := DefaultJWTConfig()

	if cfg.SecretKey == "" {
		t.Error("expected default secret key")
	}
	if cfg.TokenExpiry != time.Minute {
		t.Errorf("expected 1m, got %v", cfg.TokenExpiry)
	}
	if cfg.Issuer != "shuttlegate" {
		t.Errorf("expected 'shuttlegate', got %s", cfg.Issuer)
	}
}

func TestNewJWTManager_NilConfig(t *testing.T) {
	manager := NewJWTManager(nil)

	token, err := manager.GenerateValidatorToken("shuttle-1", "cmd-1", "hash")
	if err != nil {
		t.Fatalf("should work with nil config: %v", err)
	}

	if token == "" {
		t.Error("expected token to be generated")
	}
}
