// Package auth provisions accounts and issues the identity tokens the chat
// surface requires. Login deliberately reports one credential error for both
// an unknown account and a wrong password, so the transport boundary never
// reveals whether an account number exists.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/rencie-dev/rencie/internal/bank"
	"github.com/rencie-dev/rencie/internal/id"
	"github.com/rencie-dev/rencie/internal/model"
)

var (
	// ErrInvalidCredentials covers both unknown account and wrong password.
	ErrInvalidCredentials = errors.New("invalid account number or password")

	// ErrAccountExists reports a duplicate registration.
	ErrAccountExists = errors.New("an account already exists for these details")
)

// AccountStore is the persistence surface auth needs.
type AccountStore interface {
	FindByAccountNumber(ctx context.Context, accountNumber string) (model.Account, error)
	CreateAccount(ctx context.Context, a model.Account) error
}

// Notifier queues out-of-band email without blocking.
type Notifier interface {
	Enqueue(subject, body, to string)
}

// Config carries the auth service's secrets and account defaults.
type Config struct {
	JWTSecret      string
	AccountSecret  string
	TokenTTL       time.Duration
	OpeningBalance int64
	Currency       string
}

// Service implements registration, login, and token verification.
type Service struct {
	store    AccountStore
	notifier Notifier
	cfg      Config
	now      func() time.Time
}

// NewService creates an auth Service.
func NewService(store AccountStore, notifier Notifier, cfg Config) *Service {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	return &Service{store: store, notifier: notifier, cfg: cfg, now: time.Now}
}

// RegisterParams are the details of a new customer.
type RegisterParams struct {
	FirstName string
	LastName  string
	DOB       string
	Password  string
	Email     string
}

// Register derives the account number from the customer details, hashes the
// password, creates the account with the opening balance, and sends a
// welcome email. Duplicate details collide on the derived number and return
// ErrAccountExists.
func (s *Service) Register(ctx context.Context, p RegisterParams) (model.Account, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(p.Password), bcrypt.DefaultCost)
	if err != nil {
		return model.Account{}, fmt.Errorf("hashing password: %w", err)
	}

	acct := model.Account{
		AccountNumber:  id.DeriveAccountNumber(p.FirstName, p.LastName, p.DOB, p.Password, s.cfg.AccountSecret),
		FirstName:      p.FirstName,
		LastName:       p.LastName,
		Balance:        s.cfg.OpeningBalance,
		Currency:       s.cfg.Currency,
		Email:          p.Email,
		HashedPassword: hashed,
		CreatedAt:      s.now().UTC(),
	}

	if err := s.store.CreateAccount(ctx, acct); err != nil {
		if errors.Is(err, bank.ErrAccountExists) {
			return model.Account{}, ErrAccountExists
		}
		return model.Account{}, fmt.Errorf("creating account: %w", err)
	}

	s.notifier.Enqueue(
		"Welcome to Rencie!",
		fmt.Sprintf("<p>Hi %s,<br/>Your account has been created successfully. Your account number is <strong>%s</strong>.</p>",
			p.FirstName, acct.AccountNumber),
		p.Email,
	)
	return acct, nil
}

// Login checks the credentials and returns a signed identity token. Both
// failure modes collapse into ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, accountNumber, password string) (string, error) {
	acct, err := s.store.FindByAccountNumber(ctx, accountNumber)
	if err != nil {
		if errors.Is(err, bank.ErrAccountNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("fetching account: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword(acct.HashedPassword, []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	return s.signToken(acct)
}
