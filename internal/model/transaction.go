package model

import "time"

// TransactionStatus is the recorded outcome of a ledger entry.
type TransactionStatus string

const (
	// TransactionSuccessful is the only status ever written: a ledger row is
	// inserted in the same transaction as the balance updates, so a failed
	// transfer leaves no row at all.
	TransactionSuccessful TransactionStatus = "successful"
)

// Transaction is one append-only ledger entry, written exactly once per
// committed transfer.
type Transaction struct {
	TransactionID         string            `json:"transactionID"`
	SenderAccountNumber   string            `json:"senderAccountNumber"`
	SenderName            string            `json:"senderName"`
	ReceiverAccountNumber string            `json:"receiverAccountNumber"`
	ReceiverName          string            `json:"receiverName"`
	Amount                int64             `json:"amount"`
	Status                TransactionStatus `json:"status"`
	CreatedAt             time.Time         `json:"createdAt"`
}

// StatementSummary aggregates a customer's ledger activity for the bank
// statement email.
type StatementSummary struct {
	AccountNumber      string
	TotalTransactions  int
	TotalMoneyOut      int64
	TotalMoneyIn       int64
	UniqueCounterparts []string
}
