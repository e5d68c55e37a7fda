// Package bank implements the fund transfer engine and the read-only account
// operations behind the secure conversation path.
//
// A transfer's monetary effects — debit, credit, and the ledger append — are
// one atomic unit supplied by the AccountStore; the engine validates, invokes
// the unit, and dispatches alerts afterwards. Alert failures never roll back
// or mask a committed transfer.
package bank

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rencie-dev/rencie/internal/id"
	"github.com/rencie-dev/rencie/internal/model"
	"github.com/rencie-dev/rencie/internal/money"
)

// AccountStore is the persistence collaborator for accounts and the ledger.
type AccountStore interface {
	// FindByAccountNumber returns ErrAccountNotFound for a missing account.
	FindByAccountNumber(ctx context.Context, accountNumber string) (model.Account, error)

	// ApplyTransfer debits the sender, credits the receiver, and appends the
	// ledger entry as one atomic unit, returning the sender's post-transfer
	// balance from inside that unit. Implementations must serialize
	// concurrent debits of the same account: the balance check and the
	// decrement are a single indivisible step, and an insufficient balance at
	// apply time returns ErrInsufficientFunds.
	ApplyTransfer(ctx context.Context, entry model.Transaction) (newSenderBalance int64, err error)

	// StatementSummary aggregates the account's ledger activity.
	StatementSummary(ctx context.Context, accountNumber string) (model.StatementSummary, error)
}

// Notifier queues out-of-band email without blocking.
type Notifier interface {
	Enqueue(subject, body, to string)
}

// Service is the transfer engine plus the balance and statement reads.
type Service struct {
	store    AccountStore
	notifier Notifier
	log      *zap.Logger

	jobs sync.WaitGroup
	now  func() time.Time
}

// NewService creates a bank Service.
func NewService(store AccountStore, notifier Notifier, log *zap.Logger) *Service {
	return &Service{store: store, notifier: notifier, log: log, now: time.Now}
}

// Close waits for in-flight background jobs to finish.
func (s *Service) Close() {
	s.jobs.Wait()
}

// TransferResult reports a committed transfer.
type TransferResult struct {
	TransactionID string
	NewBalance    int64
	Currency      string
}

// Transfer validates and applies a balance mutation between two accounts.
// Validation is fail-fast in a fixed order, each failure a distinct sentinel;
// nothing is mutated unless every check passes and the atomic unit commits.
func (s *Service) Transfer(ctx context.Context, senderAccountNumber, receiverAccountNumber string, amount int64, senderName string) (TransferResult, error) {
	if senderAccountNumber == receiverAccountNumber {
		return TransferResult{}, ErrSelfTransfer
	}
	if amount <= 0 {
		return TransferResult{}, ErrInvalidAmount
	}
	if !model.ValidAccountNumber(senderAccountNumber) {
		return TransferResult{}, ErrInvalidSenderAccount
	}
	if !model.ValidAccountNumber(receiverAccountNumber) {
		return TransferResult{}, ErrInvalidReceiverAccount
	}

	sender, receiver, err := s.fetchPair(ctx, senderAccountNumber, receiverAccountNumber)
	if err != nil {
		return TransferResult{}, err
	}

	if sender.Balance < amount {
		return TransferResult{}, ErrInsufficientFunds
	}

	entry := model.Transaction{
		TransactionID:         id.NewTransactionID(),
		SenderAccountNumber:   senderAccountNumber,
		SenderName:            senderName,
		ReceiverAccountNumber: receiverAccountNumber,
		ReceiverName:          receiver.FullName(),
		Amount:                amount,
		Status:                model.TransactionSuccessful,
		CreatedAt:             s.now().UTC(),
	}

	newBalance, err := s.store.ApplyTransfer(ctx, entry)
	if err != nil {
		if errors.Is(err, ErrInsufficientFunds) {
			// A concurrent transfer drained the balance between the read and
			// the atomic apply.
			return TransferResult{}, ErrInsufficientFunds
		}
		return TransferResult{}, fmt.Errorf("applying transfer: %w", err)
	}

	display := money.FormatWithCurrency(sender.Currency, amount)
	s.notifier.Enqueue(
		"Debit Alert",
		fmt.Sprintf("<p>Hi %s,<br/>You have sent %s to account number %s.</p>",
			senderName, display, receiverAccountNumber),
		sender.Email,
	)
	s.notifier.Enqueue(
		"Credit Alert",
		fmt.Sprintf("<p>Hi %s,<br/>You have received %s from account number %s.</p>",
			receiver.FullName(), display, senderAccountNumber),
		receiver.Email,
	)

	s.log.Info("transfer committed",
		zap.String("transactionID", entry.TransactionID),
		zap.String("sender", senderAccountNumber),
		zap.String("receiver", receiverAccountNumber),
		zap.Int64("amount", amount))

	return TransferResult{
		TransactionID: entry.TransactionID,
		NewBalance:    newBalance,
		Currency:      sender.Currency,
	}, nil
}

// fetchPair reads both accounts concurrently; the two lookups have no
// ordering dependency.
func (s *Service) fetchPair(ctx context.Context, senderAccountNumber, receiverAccountNumber string) (sender, receiver model.Account, err error) {
	var senderErr, receiverErr error
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		sender, senderErr = s.store.FindByAccountNumber(ctx, senderAccountNumber)
	}()
	go func() {
		defer wg.Done()
		receiver, receiverErr = s.store.FindByAccountNumber(ctx, receiverAccountNumber)
	}()
	wg.Wait()

	switch {
	case errors.Is(senderErr, ErrAccountNotFound):
		return sender, receiver, ErrSenderNotFound
	case senderErr != nil:
		return sender, receiver, fmt.Errorf("fetching sender: %w", senderErr)
	case errors.Is(receiverErr, ErrAccountNotFound):
		return sender, receiver, ErrReceiverNotFound
	case receiverErr != nil:
		return sender, receiver, fmt.Errorf("fetching recipient: %w", receiverErr)
	}
	return sender, receiver, nil
}

// CheckBalance returns the account's current snapshot.
func (s *Service) CheckBalance(ctx context.Context, accountNumber string) (model.Account, error) {
	acct, err := s.store.FindByAccountNumber(ctx, accountNumber)
	if err != nil {
		return model.Account{}, err
	}
	return acct, nil
}

const statementTimeout = 30 * time.Second

// RequestStatement generates the bank statement summary off the request path
// and emails it. The turn's reply does not wait for the job; generation
// failures are logged only.
func (s *Service) RequestStatement(accountNumber, name, email string) {
	s.jobs.Add(1)
	go func() {
		defer s.jobs.Done()

		ctx, cancel := context.WithTimeout(context.Background(), statementTimeout)
		defer cancel()

		if err := s.sendStatement(ctx, accountNumber, name, email); err != nil {
			s.log.Warn("statement job failed",
				zap.String("accountNumber", accountNumber),
				zap.Error(err))
		}
	}()
}

func (s *Service) sendStatement(ctx context.Context, accountNumber, name, email string) error {
	sum, err := s.store.StatementSummary(ctx, accountNumber)
	if err != nil {
		return fmt.Errorf("building statement: %w", err)
	}

	body := fmt.Sprintf(
		"<p>Hi %s!<br/>Here is your bank statement summary:<br/>"+
			"Total Transactions: <strong>%d</strong><br/>"+
			"Total Money Sent: <strong>%s</strong><br/>"+
			"Total Money Received: <strong>%s</strong><br/>"+
			"Unique Transactors: <strong>%s</strong></p>",
		name,
		sum.TotalTransactions,
		money.Format(sum.TotalMoneyOut),
		money.Format(sum.TotalMoneyIn),
		joinOrNone(sum.UniqueCounterparts),
	)

	s.notifier.Enqueue(fmt.Sprintf("Your Bank Statement is here, %s", name), body, email)
	return nil
}

func joinOrNone(names []string) string {
	if len(names) == 0 {
		return "none yet"
	}
	out := names[0]
	for _, n := range names[1:] {
		out += ", " + n
	}
	return out
}
