package crypto

import (
	"crypto/sha256"
	"encoding/base64"
)

// HashToken derives the storage key for a bearer token. Only the hash
// ever reaches the revocation store.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
