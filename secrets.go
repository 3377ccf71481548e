package accounts

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// secretEntropy is the number of random bytes behind every session and
// invitation secret.
const secretEntropy = 32

// NewSecret returns a hex encoded secret with n bytes of entropy.
func NewSecret(n int) string {
	if n <= 0 {
		n = secretEntropy
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms; treat it as fatal
		panic(fmt.Errorf("secret generation: %w", err))
	}
	return hex.EncodeToString(buf)
}

// NewStorageLocator returns a fresh opaque locator for an account's isolated
// storage unit. The fan out prefix keeps per tenant units from piling up in
// a single directory when the locator is mapped to a file path.
func NewStorageLocator() string {
	s := NewSecret(16)
	return fmt.Sprintf("accounts/%s/%s/%s.db", s[0:2], s[2:4], s)
}
