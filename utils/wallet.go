// utils/wallet.go
package utils

import (
	"errors"
	"strings"

	"golang.org/x/text/cases"
)

var ErrInvalidWalletAddress = errors.New("invalid wallet address")

// NormalizeWallet returns the canonical form of a user-supplied wallet address:
// surrounding whitespace removed and letters case-folded. Every lookup and write
// keyed by wallet goes through here so "0xABC" and " 0xabc " are the same learner.
func NormalizeWallet(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ErrInvalidWalletAddress
	}
	return cases.Fold().String(trimmed), nil
}
