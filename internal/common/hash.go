package common

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sha256Hex hex-encodes the SHA-256 digest of data. Used to derive
// fixed-length cache and replay keys from request bodies.
func Sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
