package conversation

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/rencie-dev/rencie/internal/bank"
	"github.com/rencie-dev/rencie/internal/model"
	"github.com/rencie-dev/rencie/internal/money"
	"github.com/rencie-dev/rencie/internal/parser"
)

// maxOTPAttempts is the validation-call ceiling per challenge. The ceiling is
// checked before another validation is allowed, so a 4th submission is
// refused outright.
const maxOTPAttempts = 3

// phase is the machine's position within one turn's traversal. Phases are
// transient; only the AwaitOTP suspension survives into the checkpoint.
type phase int

const (
	phaseStart phase = iota
	phaseClassify
	phaseChat
	phaseSecureEntry
	phaseConfirmRecipient
	phaseIssueOTP
	phaseAwaitOTP
	phaseValidateOTP
	phaseExecute
	phaseEnd
)

const (
	replyStopped    = "Your transaction has been stopped, but previous messages are retained."
	replyOTPPrompt  = "Your OTP has been sent to your email. Please enter the OTP to continue."
	replyNoCode     = "I couldn't find a passcode in that message. Please enter the 5-digit OTP, or say \"stop\" to cancel."
	replyMaxReached = "Maximum attempts reached. Please start a new transaction."
	replyFallback   = "I'm not sure I can help with that right now. Could you rephrase?"
)

// turn carries the mutable context of one traversal.
type turn struct {
	e     *Engine
	ctx   context.Context
	ident Identity
	cp    *model.Checkpoint
	input string

	replies []string
}

// run drives the machine from its entry phase until End or the AwaitOTP
// suspension, then returns the accumulated reply.
func (t *turn) run() string {
	p := phaseStart
	if t.cp.Suspended() {
		p = phaseValidateOTP
	}

	for p != phaseEnd && p != phaseAwaitOTP {
		p = t.step(p)
	}

	t.cp.AwaitingInput = p == phaseAwaitOTP
	return strings.Join(t.replies, "\n")
}

func (t *turn) step(p phase) phase {
	switch p {
	case phaseStart:
		t.cp.Messages = append(t.cp.Messages, model.Message{Role: model.RoleUser, Text: t.input})
		return phaseClassify
	case phaseClassify:
		return t.classify()
	case phaseChat:
		return t.chat()
	case phaseSecureEntry:
		if t.cp.Intent == model.IntentTransfer {
			return phaseConfirmRecipient
		}
		return phaseIssueOTP
	case phaseConfirmRecipient:
		return t.confirmRecipient()
	case phaseIssueOTP:
		return t.issueOTP()
	case phaseValidateOTP:
		return t.validateOTP()
	case phaseExecute:
		return t.execute()
	}
	return phaseEnd
}

// classify invokes the classifier, defends against unparseable output, and
// routes secure intents to the secure branch and everything else to chat.
func (t *turn) classify() phase {
	raw, err := t.e.classifier.Classify(t.ctx, t.cp.Messages)
	if err != nil {
		t.e.log.Warn("classifier call failed", zap.Error(err))
		return phaseChat
	}

	obj := parser.Extract(raw)
	if parser.Failed(obj) {
		t.e.log.Warn("classifier output unparseable")
		return phaseChat
	}

	intent := model.Intent(stringField(obj, "intent"))
	if !intent.Secure() {
		return phaseChat
	}

	t.cp.Intent = intent
	if intent == model.IntentTransfer {
		receiver, amount, ok := transferFields(obj)
		if !ok {
			t.cp.ClearChallenge()
			t.say("To make a transfer I need the recipient's 10-digit account number and the amount. Could you provide both?")
			return phaseEnd
		}
		t.cp.Pending = &model.PendingTransfer{ReceiverAccountNumber: receiver, Amount: amount}
	}
	return phaseSecureEntry
}

// chat is the open conversational branch; tool use loops inside the
// collaborator. A failure here degrades to a canned fallback, never an error.
func (t *turn) chat() phase {
	reply, err := t.e.chatter.Reply(t.ctx, t.cp.Messages)
	if err != nil || strings.TrimSpace(reply) == "" {
		if err != nil {
			t.e.log.Warn("chat collaborator failed", zap.Error(err))
		}
		reply = replyFallback
	}
	t.say(reply)
	return phaseEnd
}

// confirmRecipient resolves and names the recipient before any OTP is
// issued. A missing recipient rejects the transfer without a challenge.
func (t *turn) confirmRecipient() phase {
	pending := t.cp.Pending
	acct, err := t.e.bank.CheckBalance(t.ctx, pending.ReceiverAccountNumber)
	if err != nil {
		t.cp.ClearChallenge()
		if errors.Is(err, bank.ErrAccountNotFound) {
			t.say("The recipient account does not exist. Please check the account number and try again.")
			return phaseEnd
		}
		t.e.log.Error("recipient lookup failed", zap.Error(err))
		t.say("I couldn't verify the recipient right now. Please try again shortly.")
		return phaseEnd
	}

	t.say("You are about to transfer " + money.FormatWithCurrency(acct.Currency, pending.Amount) + " to " + acct.FullName() + ".")
	return phaseIssueOTP
}

// issueOTP starts the challenge and suspends. The machine must not suspend
// without a persisted OTP record, so an issuance failure abandons the secure
// operation instead.
func (t *turn) issueOTP() phase {
	otpID, err := t.e.otp.Issue(t.ctx, t.ident.AccountNumber, t.ident.Name, t.ident.Email)
	if err != nil {
		t.e.log.Error("otp issuance failed", zap.Error(err))
		t.cp.ClearChallenge()
		t.say("I couldn't start the secure verification. Please try again shortly.")
		return phaseEnd
	}

	t.cp.Challenge = &model.OTPChallenge{OTPID: otpID}
	t.say(replyOTPPrompt)
	return phaseAwaitOTP
}

// validateOTP is the resume path for a suspended session. The stop keyword is
// honored before any code extraction; the attempt ceiling is enforced before
// another validation call is made.
func (t *turn) validateOTP() phase {
	if containsStopKeyword(t.input) {
		t.cp.ClearChallenge()
		t.sayEphemeral(replyStopped)
		return phaseEnd
	}

	code, ok := extractCode(t.input)
	if !ok {
		t.sayEphemeral(replyNoCode)
		return phaseAwaitOTP
	}

	challenge := t.cp.Challenge
	if challenge.AttemptsUsed >= maxOTPAttempts {
		t.cp.ClearChallenge()
		t.say(replyMaxReached)
		return phaseEnd
	}

	res, err := t.e.otp.Validate(t.ctx, t.ident.AccountNumber, code, challenge.OTPID)
	challenge.AttemptsUsed++
	if err != nil {
		t.e.log.Error("otp validation failed", zap.Error(err))
	}

	if res == model.OTPValid {
		return phaseExecute
	}

	if challenge.AttemptsUsed >= maxOTPAttempts {
		t.cp.ClearChallenge()
		t.say("OTP validation failed: " + otpReason(res) + ". " + replyMaxReached)
		return phaseEnd
	}

	remaining := maxOTPAttempts - challenge.AttemptsUsed
	t.say("OTP validation failed: " + otpReason(res) + ". You have " + strconv.Itoa(remaining) + " attempts remaining. Please try again.")
	return phaseAwaitOTP
}

// execute dispatches the approved intent and closes out the secure flow.
func (t *turn) execute() phase {
	intent := t.cp.Intent
	pending := t.cp.Pending
	t.cp.ClearChallenge()

	switch intent {
	case model.IntentTransfer:
		res, err := t.e.bank.Transfer(t.ctx, t.ident.AccountNumber, pending.ReceiverAccountNumber, pending.Amount, t.ident.Name)
		if err != nil {
			t.say(transferRejection(err))
			return phaseEnd
		}
		t.say("Transfer successful. Your new balance is " + money.FormatWithCurrency(res.Currency, res.NewBalance) + ".")
	case model.IntentCheckBalance:
		acct, err := t.e.bank.CheckBalance(t.ctx, t.ident.AccountNumber)
		if err != nil {
			t.e.log.Error("balance read failed", zap.Error(err))
			t.say("I couldn't read your balance right now. Please try again shortly.")
			return phaseEnd
		}
		t.say("Your account balance is " + money.FormatWithCurrency(acct.Currency, acct.Balance) + ".")
	case model.IntentStatement:
		t.e.bank.RequestStatement(t.ident.AccountNumber, t.ident.Name, t.ident.Email)
		t.say("Your bank statement is on its way! Check your email.")
	}
	return phaseEnd
}

// transferRejection maps engine errors to user-visible text. Domain
// rejections carry specific reasons; anything else is a generic failure with
// no partial effects.
func transferRejection(err error) string {
	switch {
	case errors.Is(err, bank.ErrSelfTransfer):
		return "You cannot transfer money to your own account."
	case errors.Is(err, bank.ErrInvalidAmount):
		return "Invalid transfer amount."
	case errors.Is(err, bank.ErrInvalidSenderAccount):
		return "Your account number is invalid."
	case errors.Is(err, bank.ErrInvalidReceiverAccount):
		return "The recipient account number is invalid."
	case errors.Is(err, bank.ErrSenderNotFound):
		return "Your account could not be found."
	case errors.Is(err, bank.ErrReceiverNotFound):
		return "The recipient account does not exist."
	case errors.Is(err, bank.ErrInsufficientFunds):
		return "You don't have enough money in your account."
	}
	return "The transfer could not be completed. No money has left your account."
}

func otpReason(res model.OTPResult) string {
	if res == model.OTPExpired {
		return "OTP has expired"
	}
	return "Invalid OTP"
}

// say records an assistant reply in both the turn output and the persisted
// history.
func (t *turn) say(text string) {
	t.replies = append(t.replies, text)
	t.cp.Messages = append(t.cp.Messages, model.Message{Role: model.RoleAssistant, Text: text})
}

// sayEphemeral records a reply without touching the history; used for the
// stop acknowledgment and the missing-code re-prompt so suspension and
// cancellation leave the conversation length unchanged.
func (t *turn) sayEphemeral(text string) {
	t.replies = append(t.replies, text)
}
