package util

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// HashIP is an HMAC-SHA256 of ip keyed by salt. An empty salt falls back
// to plain SHA-256.
func HashIP(ip string, salt []byte) string {
	if len(salt) == 0 {
		sum := sha256.Sum256([]byte(ip))
		return hex.EncodeToString(sum[:])
	}
	mac := hmac.New(sha256.New, salt)
	mac.Write([]byte(ip))
	return hex.EncodeToString(mac.Sum(nil))
}
