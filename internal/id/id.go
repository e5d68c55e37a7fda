// Package id generates the identifiers used across the system: transaction
// and OTP challenge IDs, and deterministic account numbers derived from
// customer details.
package id

import (
	"crypto/sha256"
	"encoding/hex"
	"math/big"
	"strings"

	"github.com/google/uuid"

	"github.com/rencie-dev/rencie/internal/model"
)

// NewTransactionID returns a unique 128-bit ledger entry identifier as a
// 32-character hex string.
func NewTransactionID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}

// NewOTPID returns a distinct opaque challenge identifier. Each issuance gets
// its own ID so a stale code cannot validate against a newer challenge.
func NewOTPID() string {
	return uuid.NewString()
}

// DeriveAccountNumber produces a 10-digit account number from the customer's
// details and a server-side secret: the decimal expansion of the SHA-256
// digest, last 10 digits. Deterministic so duplicate registrations collide on
// the account number rather than creating a second account.
func DeriveAccountNumber(firstName, lastName, dob, password, secret string) string {
	sum := sha256.Sum256([]byte(firstName + lastName + dob + password + secret))

	n := new(big.Int).SetBytes(sum[:])
	digits := n.String()
	if len(digits) < model.AccountNumberLength {
		digits = strings.Repeat("0", model.AccountNumberLength-len(digits)) + digits
	}
	return digits[len(digits)-model.AccountNumberLength:]
}
