package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// BuildValidationKey builds the cache key for a barcode-validation
// response, keyed by device and barcode so a shuttle re-presenting the
// same pallet within the cache window skips the external collaborator.
func BuildValidationKey(deviceID, barcode string) string {
	return fmt.Sprintf("validate:%s:%s", deviceID, barcode)
}

// QuickHash computes a full SHA-256 hex digest of data.
func QuickHash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// ShortHash computes a truncated (16 hex char) SHA-256 digest of data,
// useful for log-friendly cache key suffixes.
func ShortHash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:8])
}
