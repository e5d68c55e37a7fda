package model

import "time"

// Intent is the classified purpose of a user message.
type Intent string

const (
	IntentTransfer     Intent = "transfer"
	IntentCheckBalance Intent = "check_balance"
	IntentStatement    Intent = "bank_statement"
	IntentSmalltalk    Intent = "smalltalks"
	IntentNone         Intent = ""
)

// Secure reports whether the intent requires an OTP challenge before
// execution.
func (i Intent) Secure() bool {
	switch i {
	case IntentTransfer, IntentCheckBalance, IntentStatement:
		return true
	}
	return false
}

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn in a conversation thread. The sequence is append-only
// and doubles as the classifier/chat context.
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// PendingTransfer holds the extracted parameters of a transfer awaiting OTP
// approval.
type PendingTransfer struct {
	ReceiverAccountNumber string `json:"receiverAccountNumber"`
	Amount                int64  `json:"amount"`
}

// OTPChallenge tracks the in-flight challenge for a suspended secure
// operation. AttemptsUsed counts validation calls, successful or not.
type OTPChallenge struct {
	OTPID        string `json:"otpID"`
	AttemptsUsed int    `json:"attemptsUsed"`
}

// Checkpoint is the persisted state-machine snapshot for one session, keyed
// by the customer's account number. It is a plain serializable struct: a
// suspended conversation is resumed by loading the checkpoint on a later,
// independent request.
//
// Invariant: Challenge != nil only while Intent is secure, and AwaitingInput
// is true only while Challenge != nil.
type Checkpoint struct {
	Messages      []Message        `json:"messages"`
	Intent        Intent           `json:"intent"`
	Pending       *PendingTransfer `json:"pendingTransfer,omitempty"`
	Challenge     *OTPChallenge    `json:"otpChallenge,omitempty"`
	AwaitingInput bool             `json:"awaitingInput"`
	UpdatedAt     time.Time        `json:"updatedAt"`
}

// Suspended reports whether the session is parked at the OTP suspension
// point.
func (c *Checkpoint) Suspended() bool {
	return c.AwaitingInput && c.Challenge != nil
}

// ClearChallenge drops the pending secure operation, leaving the message
// history untouched.
func (c *Checkpoint) ClearChallenge() {
	c.Intent = IntentNone
	c.Pending = nil
	c.Challenge = nil
	c.AwaitingInput = false
}
