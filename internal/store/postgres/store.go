// Package postgres implements the account store and the append-only
// transactions ledger on PostgreSQL. The transfer's debit, credit, and
// ledger insert run in one database transaction; the sender's balance
// sufficiency check and decrement are a single guarded UPDATE, which is what
// serializes concurrent debits of the same account.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/rencie-dev/rencie/internal/bank"
	"github.com/rencie-dev/rencie/internal/model"
)

// Store wraps the database handle.
type Store struct {
	db *sql.DB
}

// Open connects with the pgx stdlib driver and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &Store{db: db}, nil
}

// NewStore wraps an existing handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Initialize creates the schema if it does not exist.
func (s *Store) Initialize(ctx context.Context) error {
	const accountsDDL = `
	CREATE TABLE IF NOT EXISTS accounts (
		account_number  VARCHAR(10) PRIMARY KEY,
		first_name      TEXT NOT NULL,
		last_name       TEXT NOT NULL,
		balance         BIGINT NOT NULL CHECK (balance >= 0),
		currency        VARCHAR(3) NOT NULL,
		email           TEXT NOT NULL,
		hashed_password BYTEA NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	)`

	const transactionsDDL = `
	CREATE TABLE IF NOT EXISTS transactions (
		transaction_id          VARCHAR(32) PRIMARY KEY,
		sender_account_number   VARCHAR(10) NOT NULL,
		sender_name             TEXT NOT NULL,
		receiver_account_number VARCHAR(10) NOT NULL,
		receiver_name           TEXT NOT NULL,
		amount                  BIGINT NOT NULL,
		status                  TEXT NOT NULL,
		created_at              TIMESTAMPTZ NOT NULL
	)`

	if _, err := s.db.ExecContext(ctx, accountsDDL); err != nil {
		return fmt.Errorf("creating accounts table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, transactionsDDL); err != nil {
		return fmt.Errorf("creating transactions table: %w", err)
	}
	return nil
}

// FindByAccountNumber returns bank.ErrAccountNotFound for a missing account.
func (s *Store) FindByAccountNumber(ctx context.Context, accountNumber string) (model.Account, error) {
	const q = `
	SELECT account_number, first_name, last_name, balance, currency, email, hashed_password, created_at
	FROM accounts WHERE account_number = $1`

	var a model.Account
	err := s.db.QueryRowContext(ctx, q, accountNumber).Scan(
		&a.AccountNumber, &a.FirstName, &a.LastName, &a.Balance,
		&a.Currency, &a.Email, &a.HashedPassword, &a.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Account{}, bank.ErrAccountNotFound
	}
	if err != nil {
		return model.Account{}, fmt.Errorf("fetching account %s: %w", accountNumber, err)
	}
	return a, nil
}

// CreateAccount inserts a new account, rejecting a duplicate number.
func (s *Store) CreateAccount(ctx context.Context, a model.Account) error {
	const q = `
	INSERT INTO accounts (account_number, first_name, last_name, balance, currency, email, hashed_password, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (account_number) DO NOTHING`

	res, err := s.db.ExecContext(ctx, q,
		a.AccountNumber, a.FirstName, a.LastName, a.Balance,
		a.Currency, a.Email, a.HashedPassword, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting account: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("inserting account: %w", err)
	}
	if rows == 0 {
		return bank.ErrAccountExists
	}
	return nil
}

// creditBeforeDebit orders the two row locks by account number; both
// directions between a pair of accounts then lock rows in the same order,
// so opposing concurrent transfers cannot deadlock.
func creditBeforeDebit(senderAccountNumber, receiverAccountNumber string) bool {
	return receiverAccountNumber < senderAccountNumber
}

// ApplyTransfer performs the atomic unit: debit with balance guard, credit,
// ledger append. The debit's RETURNING clause yields the post-transfer
// sender balance from inside the transaction, so the reported balance can
// never race a concurrent transfer.
func (s *Store) ApplyTransfer(ctx context.Context, e model.Transaction) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transfer tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	creditFirst := creditBeforeDebit(e.SenderAccountNumber, e.ReceiverAccountNumber)

	var newBalance int64
	if creditFirst {
		if err := creditReceiver(ctx, tx, e); err != nil {
			return 0, err
		}
	}
	newBalance, err = debitSender(ctx, tx, e)
	if err != nil {
		return 0, err
	}
	if !creditFirst {
		if err := creditReceiver(ctx, tx, e); err != nil {
			return 0, err
		}
	}

	const ledger = `
	INSERT INTO transactions (transaction_id, sender_account_number, sender_name,
		receiver_account_number, receiver_name, amount, status, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := tx.ExecContext(ctx, ledger,
		e.TransactionID, e.SenderAccountNumber, e.SenderName,
		e.ReceiverAccountNumber, e.ReceiverName, e.Amount, e.Status, e.CreatedAt,
	); err != nil {
		return 0, fmt.Errorf("recording transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transfer: %w", err)
	}
	return newBalance, nil
}

func debitSender(ctx context.Context, tx *sql.Tx, e model.Transaction) (int64, error) {
	const debit = `
	UPDATE accounts SET balance = balance - $1
	WHERE account_number = $2 AND balance >= $1
	RETURNING balance`

	var newBalance int64
	err := tx.QueryRowContext(ctx, debit, e.Amount, e.SenderAccountNumber).Scan(&newBalance)
	if errors.Is(err, sql.ErrNoRows) {
		// Guard failed: balance moved below the amount since validation.
		return 0, bank.ErrInsufficientFunds
	}
	if err != nil {
		return 0, fmt.Errorf("debiting sender: %w", err)
	}
	return newBalance, nil
}

func creditReceiver(ctx context.Context, tx *sql.Tx, e model.Transaction) error {
	const credit = `UPDATE accounts SET balance = balance + $1 WHERE account_number = $2`
	res, err := tx.ExecContext(ctx, credit, e.Amount, e.ReceiverAccountNumber)
	if err != nil {
		return fmt.Errorf("crediting recipient: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("crediting recipient: %w", err)
	}
	if rows == 0 {
		return bank.ErrReceiverNotFound
	}
	return nil
}

// StatementSummary aggregates the account's ledger activity.
func (s *Store) StatementSummary(ctx context.Context, accountNumber string) (model.StatementSummary, error) {
	sum := model.StatementSummary{AccountNumber: accountNumber}

	const outQ = `
	SELECT COUNT(*), COALESCE(SUM(amount), 0)
	FROM transactions WHERE sender_account_number = $1`
	var outCount int
	if err := s.db.QueryRowContext(ctx, outQ, accountNumber).Scan(&outCount, &sum.TotalMoneyOut); err != nil {
		return model.StatementSummary{}, fmt.Errorf("aggregating outgoing transactions: %w", err)
	}

	const inQ = `
	SELECT COUNT(*), COALESCE(SUM(amount), 0)
	FROM transactions WHERE receiver_account_number = $1`
	var inCount int
	if err := s.db.QueryRowContext(ctx, inQ, accountNumber).Scan(&inCount, &sum.TotalMoneyIn); err != nil {
		return model.StatementSummary{}, fmt.Errorf("aggregating incoming transactions: %w", err)
	}
	sum.TotalTransactions = outCount + inCount

	const namesQ = `
	SELECT DISTINCT receiver_name
	FROM transactions WHERE sender_account_number = $1
	ORDER BY receiver_name`
	rows, err := s.db.QueryContext(ctx, namesQ, accountNumber)
	if err != nil {
		return model.StatementSummary{}, fmt.Errorf("listing counterparties: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return model.StatementSummary{}, fmt.Errorf("scanning counterparty: %w", err)
		}
		sum.UniqueCounterparts = append(sum.UniqueCounterparts, name)
	}
	if err := rows.Err(); err != nil {
		return model.StatementSummary{}, fmt.Errorf("listing counterparties: %w", err)
	}
	return sum, nil
}
