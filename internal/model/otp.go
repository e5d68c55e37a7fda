package model

import "time"

// OTPCodeLength is the number of ASCII digits in a one-time passcode.
const OTPCodeLength = 5

// OTPTTL is the absolute validity window of a passcode from issuance.
const OTPTTL = 30 * time.Minute

// OTPRecord is one issued challenge. The (AccountNumber, Code, OTPID) triple
// identifies a single challenge instance; a code from an older challenge must
// not validate against a newer OTPID.
type OTPRecord struct {
	AccountNumber string    `json:"accountNumber"`
	Code          string    `json:"code"`
	OTPID         string    `json:"otpID"`
	CreatedAt     time.Time `json:"createdAt"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

// OTPResult is the outcome of one validation call.
type OTPResult string

const (
	OTPValid   OTPResult = "valid"
	OTPInvalid OTPResult = "invalid"
	OTPExpired OTPResult = "expired"
)
