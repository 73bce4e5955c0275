package util

import (
	"crypto/rand"
	"math/big"

	"github.com/pkg/errors"
)

const (
	base62Chars   = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	PasteIDLength = 8
	maxIDRetries  = 5
)

// GenID draws PasteIDLength random base62 characters, retrying while
// exists reports a collision.
func GenID(exists func(string) (bool, error)) (string, error) {
	max := big.NewInt(int64(len(base62Chars)))
	for retry := 0; retry < maxIDRetries; retry++ {
		buf := make([]byte, PasteIDLength)
		for i := range buf {
			n, err := rand.Int(rand.Reader, max)
			if err != nil {
				return "", errors.Wrap(err, "rand fail")
			}
			buf[i] = base62Chars[n.Int64()]
		}
		id := string(buf)
		exist, err := exists(id)
		if err != nil {
			return "", err
		}
		if !exist {
			return id, nil
		}
	}
	return "", errors.Errorf("id collision after %d retries", maxIDRetries)
}

// ValidID reports whether s could have been produced by GenID.
func ValidID(s string) bool {
	if len(s) != PasteIDLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z') {
			return false
		}
	}
	return true
}
