package passhash

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTConfig configures signing of outbound barcode-validator bearer tokens.
type JWTConfig struct {
	SecretKey   string
	TokenExpiry time.Duration
	Issuer      string
}

// DefaultJWTConfig returns a reasonable default configuration.
func DefaultJWTConfig() *JWTConfig {
	return &JWTConfig{
		SecretKey:   "change-me-in-production",
		TokenExpiry: time.Minute,
		Issuer:      "shuttlegate",
	}
}

// Claims identifies the device and command on whose behalf the gateway is
// calling the external barcode-validation collaborator.
type Claims struct {
	DeviceID    string `json:"device_id"`
	CommandID   string `json:"command_id"`
	BarcodeHash string `json:"barcode_hash"`
	jwt.RegisteredClaims
}

// JWTManager signs and validates bearer tokens for the barcode validator.
type JWTManager struct {
	config *JWTConfig
}

// NewJWTManager creates a new JWTManager.
func NewJWTManager(config *JWTConfig) *JWTManager {
	if config == nil {
		config = DefaultJWTConfig()
	}
	return &JWTManager{config: config}
}

// GenerateValidatorToken signs a short-lived bearer token scoped to one
// outbound barcode-validation call.
func (m *JWTManager) GenerateValidatorToken(deviceID, commandID, barcodeHash string) (string, error) {
	now := time.Now()

	claims := &Claims{
		DeviceID:    deviceID,
		CommandID:   commandID,
		BarcodeHash: barcodeHash,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.config.Issuer,
			Subject:   deviceID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.TokenExpiry)),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(m.config.SecretKey))
}

// ValidateToken parses and validates a bearer token, returning its claims.
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(m.config.SecretKey), nil
	})

	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	return claims, nil
}

// TokenExpirySeconds returns the token lifetime in seconds.
func (m *JWTManager) TokenExpirySeconds() int64 {
	return int64(m.config.TokenExpiry.Seconds())
}
