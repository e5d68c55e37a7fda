// Package conversation implements the turn-based state machine that drives
// the banking assistant: intent classification, secure-path routing, the OTP
// challenge loop with human-in-the-loop suspension, and dispatch into the
// transfer engine and read paths.
//
// Each inbound turn is one finite traversal Start → ... → End with exactly
// one possible suspension point (AwaitOTP). The machine's only durable state
// is the model.Checkpoint persisted per session; resumption is a fresh turn
// that loads the checkpoint, no goroutine ever blocks across turns.
package conversation

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rencie-dev/rencie/internal/bank"
	"github.com/rencie-dev/rencie/internal/model"
)

// Identity is the pre-validated caller, supplied by the auth layer.
type Identity struct {
	AccountNumber string
	Name          string
	Email         string
}

// Classifier produces free-text intent classification for the latest user
// turn. Its output carries no JSON guarantee; the machine defends with the
// structured-output parser.
type Classifier interface {
	Classify(ctx context.Context, history []model.Message) (string, error)
}

// Chatter produces the open-conversation reply. Retrieval-tool invocation and
// looping happen inside the collaborator.
type Chatter interface {
	Reply(ctx context.Context, history []model.Message) (string, error)
}

// OTPService issues and validates passcode challenges.
type OTPService interface {
	Issue(ctx context.Context, accountNumber, name, email string) (otpID string, err error)
	Validate(ctx context.Context, accountNumber, code, otpID string) (model.OTPResult, error)
}

// Bank executes approved secure intents.
type Bank interface {
	Transfer(ctx context.Context, senderAccountNumber, receiverAccountNumber string, amount int64, senderName string) (bank.TransferResult, error)
	CheckBalance(ctx context.Context, accountNumber string) (model.Account, error)
	RequestStatement(accountNumber, name, email string)
}

// CheckpointStore persists state machine snapshots by session ID. Load
// returns (nil, nil) for an unknown session.
type CheckpointStore interface {
	Load(ctx context.Context, sessionID string) (*model.Checkpoint, error)
	Save(ctx context.Context, sessionID string, cp *model.Checkpoint) error
}

// SessionLocker serializes a session's checkpoint read-modify-write across
// concurrent turns. Turns for different sessions run fully in parallel.
type SessionLocker interface {
	Lock(ctx context.Context, sessionID string) (unlock func(), err error)
}

// Engine wires the collaborators together. It is stateless; all conversation
// state lives in the checkpoint store.
type Engine struct {
	classifier  Classifier
	chatter     Chatter
	otp         OTPService
	bank        Bank
	checkpoints CheckpointStore
	locks       SessionLocker
	log         *zap.Logger
	now         func() time.Time
}

// NewEngine creates a conversation Engine.
func NewEngine(classifier Classifier, chatter Chatter, otpSvc OTPService, bankSvc Bank, checkpoints CheckpointStore, locks SessionLocker, log *zap.Logger) *Engine {
	return &Engine{
		classifier:  classifier,
		chatter:     chatter,
		otp:         otpSvc,
		bank:        bankSvc,
		checkpoints: checkpoints,
		locks:       locks,
		log:         log,
		now:         time.Now,
	}
}

// HandleTurn processes one inbound message for the caller's session and
// returns the assistant's reply. The session is identified by the account
// number; under the session lock the checkpoint is loaded, the machine run to
// End or to the AwaitOTP suspension, and the checkpoint saved back.
func (e *Engine) HandleTurn(ctx context.Context, ident Identity, input string) (string, error) {
	unlock, err := e.locks.Lock(ctx, ident.AccountNumber)
	if err != nil {
		return "", fmt.Errorf("locking session: %w", err)
	}
	defer unlock()

	cp, err := e.checkpoints.Load(ctx, ident.AccountNumber)
	if err != nil {
		return "", fmt.Errorf("loading checkpoint: %w", err)
	}
	if cp == nil {
		cp = &model.Checkpoint{}
	}

	t := &turn{e: e, ctx: ctx, ident: ident, cp: cp, input: input}
	reply := t.run()

	cp.UpdatedAt = e.now().UTC()
	if err := e.checkpoints.Save(ctx, ident.AccountNumber, cp); err != nil {
		return "", fmt.Errorf("saving checkpoint: %w", err)
	}
	return reply, nil
}
