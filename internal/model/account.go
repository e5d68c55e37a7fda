package model

import "time"

// AccountNumberLength is the fixed length of a Rencie account number.
const AccountNumberLength = 10

// Account represents a customer account. Balance is an integer in minor
// currency units; it is mutated only by the transfer engine inside a single
// database transaction.
type Account struct {
	AccountNumber  string    `json:"accountNumber"`
	FirstName      string    `json:"firstName"`
	LastName       string    `json:"lastName"`
	Balance        int64     `json:"balance"`
	Currency       string    `json:"currency"`
	Email          string    `json:"email"`
	HashedPassword []byte    `json:"-"`
	CreatedAt      time.Time `json:"createdAt"`
}

// FullName returns "LastName FirstName", the display form used in
// confirmation messages and ledger entries.
func (a Account) FullName() string {
	switch {
	case a.LastName == "":
		return a.FirstName
	case a.FirstName == "":
		return a.LastName
	}
	return a.LastName + " " + a.FirstName
}

// ValidAccountNumber reports whether s has the 10-digit numeric shape.
func ValidAccountNumber(s string) bool {
	if len(s) != AccountNumberLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
