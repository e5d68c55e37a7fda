// Package otp issues and validates the one-time passcodes that gate secure
// intents. A challenge is bound to the (account number, code, challenge ID)
// triple: codes from older challenges never validate against a newer ID, and
// a consumed code cannot replay.
package otp

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/rencie-dev/rencie/internal/id"
	"github.com/rencie-dev/rencie/internal/model"
)

// Store persists OTP records. Records are single-writer, single-reader-then-
// delete; no broader locking is required of implementations.
type Store interface {
	Put(ctx context.Context, rec model.OTPRecord) error
	// Get looks up the exact (accountNumber, code, otpID) triple.
	Get(ctx context.Context, accountNumber, code, otpID string) (model.OTPRecord, bool, error)
	Delete(ctx context.Context, accountNumber, code, otpID string) error
}

// Notifier dispatches the passcode out-of-band. Enqueue must not block.
type Notifier interface {
	Enqueue(subject, body, to string)
}

// Service implements challenge issuance and validation.
type Service struct {
	store    Store
	notifier Notifier
	now      func() time.Time
}

// NewService creates an OTP Service.
func NewService(store Store, notifier Notifier) *Service {
	return &Service{store: store, notifier: notifier, now: time.Now}
}

// Issue generates a 5-digit code with a fresh challenge ID and a 30-minute
// expiry, persists the record, and emails the code. It fails only when
// persistence fails; the mail dispatch is fire-and-forget. Returns the
// challenge ID.
func (s *Service) Issue(ctx context.Context, accountNumber, name, email string) (string, error) {
	code, err := generateCode()
	if err != nil {
		return "", fmt.Errorf("generating code: %w", err)
	}

	now := s.now().UTC()
	rec := model.OTPRecord{
		AccountNumber: accountNumber,
		Code:          code,
		OTPID:         id.NewOTPID(),
		CreatedAt:     now,
		ExpiresAt:     now.Add(model.OTPTTL),
	}

	if err := s.store.Put(ctx, rec); err != nil {
		return "", fmt.Errorf("persisting otp record: %w", err)
	}

	s.notifier.Enqueue(
		fmt.Sprintf("Hello, %s!", name),
		fmt.Sprintf("<p>Your OTP is <strong>%s</strong>. It expires in 30 minutes.</p>", code),
		email,
	)

	return rec.OTPID, nil
}

// Validate checks a submitted code against the identified challenge.
// No matching triple: Invalid. Matching but past expiry: Expired, with the
// record left in place to age out. Matching and current: the record is
// deleted (single use) and the result is Valid.
func (s *Service) Validate(ctx context.Context, accountNumber, code, otpID string) (model.OTPResult, error) {
	rec, found, err := s.store.Get(ctx, accountNumber, code, otpID)
	if err != nil {
		return model.OTPInvalid, fmt.Errorf("looking up otp record: %w", err)
	}
	if !found {
		return model.OTPInvalid, nil
	}

	if s.now().UTC().After(rec.ExpiresAt) {
		return model.OTPExpired, nil
	}

	if err := s.store.Delete(ctx, accountNumber, code, otpID); err != nil {
		return model.OTPInvalid, fmt.Errorf("consuming otp record: %w", err)
	}
	return model.OTPValid, nil
}

// generateCode returns 5 uniformly random ASCII digits.
func generateCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < model.OTPCodeLength; i++ {
		max.Mul(max, big.NewInt(10))
	}

	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", model.OTPCodeLength, n), nil
}
