package bank

import "errors"

// Domain errors returned by the transfer engine and the read paths. Each maps
// to a distinct user-facing rejection; none of them indicates a system fault.
var (
	// ErrAccountNotFound is the store's sentinel for a missing account.
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountExists is the store's sentinel for a duplicate account
	// number at provisioning time.
	ErrAccountExists = errors.New("account already exists")

	// ErrSelfTransfer rejects a transfer where sender and receiver are the
	// same account.
	ErrSelfTransfer = errors.New("cannot transfer to your own account")

	// ErrInvalidAmount rejects a zero or negative transfer amount.
	ErrInvalidAmount = errors.New("invalid transfer amount")

	// ErrInvalidSenderAccount rejects a sender account number that is not 10
	// digits.
	ErrInvalidSenderAccount = errors.New("sender account number is invalid")

	// ErrInvalidReceiverAccount rejects a malformed receiver account number.
	ErrInvalidReceiverAccount = errors.New("recipient account number is invalid")

	// ErrSenderNotFound means the sender account does not exist.
	ErrSenderNotFound = errors.New("sender account does not exist")

	// ErrReceiverNotFound means the recipient account does not exist.
	ErrReceiverNotFound = errors.New("recipient account does not exist")

	// ErrInsufficientFunds rejects a transfer exceeding the sender's balance.
	ErrInsufficientFunds = errors.New("insufficient funds")
)
