// Package fingerprint turns client identifiers into salted one-way hashes so
// raw IPs and user agents never reach storage or logs.
package fingerprint

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// hex characters kept from the digest
const length = 32

type Hasher struct {
	key []byte
}

// Keyed with salt; blake2b accepts keys up to 64 bytes, longer salts are
// hashed down first.
func New(salt string) (*Hasher, error) {
	if salt == "" {
		return nil, fmt.Errorf("fingerprint salt must not be empty")
	}

	key := []byte(salt)
	if len(key) > blake2b.Size {
		sum := blake2b.Sum512(key)
		key = sum[:]
	}

	return &Hasher{key: key}, nil
}

// Uses a random per-process salt. Fingerprints are then only comparable
// within a single process lifetime.
func NewRandom() (*Hasher, error) {
	salt := make([]byte, 32)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return &Hasher{key: salt}, nil
}

// Empty input stays empty
func (h *Hasher) Sum(value string) string {
	if value == "" {
		return ""
	}

	mac, err := blake2b.New256(h.key)
	if err != nil {
		// only reachable with an oversized key, which New prevents
		return ""
	}
	mac.Write([]byte(value))

	return hex.EncodeToString(mac.Sum(nil))[:length]
}
