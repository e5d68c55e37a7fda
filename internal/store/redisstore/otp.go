package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/rencie-dev/rencie/internal/model"
)

const otpKeyPrefix = "rencie:otp:"

// OTPStore persists issued challenges keyed by (account number, challenge
// ID). The submitted code is matched against the stored record, completing
// the triple lookup. A key TTL of twice the validity window is a cleanup
// backstop only; expiry semantics are decided by the OTP service against the
// record's ExpiresAt.
type OTPStore struct {
	client *redis.Client
}

// NewOTPStore creates an OTPStore.
func NewOTPStore(client *redis.Client) *OTPStore {
	return &OTPStore{client: client}
}

func otpKey(accountNumber, otpID string) string {
	return otpKeyPrefix + accountNumber + ":" + otpID
}

// Put stores a freshly issued challenge record.
func (s *OTPStore) Put(ctx context.Context, rec model.OTPRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding otp record: %w", err)
	}
	if err := s.client.Set(ctx, otpKey(rec.AccountNumber, rec.OTPID), raw, 2*model.OTPTTL).Err(); err != nil {
		return fmt.Errorf("saving otp record: %w", err)
	}
	return nil
}

// Get looks up the exact (accountNumber, code, otpID) triple. A stored
// record with a different code is not a match.
func (s *OTPStore) Get(ctx context.Context, accountNumber, code, otpID string) (model.OTPRecord, bool, error) {
	raw, err := s.client.Get(ctx, otpKey(accountNumber, otpID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.OTPRecord{}, false, nil
	}
	if err != nil {
		return model.OTPRecord{}, false, fmt.Errorf("loading otp record: %w", err)
	}

	var rec model.OTPRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return model.OTPRecord{}, false, fmt.Errorf("decoding otp record: %w", err)
	}
	if rec.Code != code {
		return model.OTPRecord{}, false, nil
	}
	return rec, true, nil
}

// Delete removes a consumed challenge. Deleting a missing record is not an
// error.
func (s *OTPStore) Delete(ctx context.Context, accountNumber, code, otpID string) error {
	_, found, err := s.Get(ctx, accountNumber, code, otpID)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	if err := s.client.Del(ctx, otpKey(accountNumber, otpID)).Err(); err != nil {
		return fmt.Errorf("deleting otp record: %w", err)
	}
	return nil
}
