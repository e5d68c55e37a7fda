package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rencie-dev/rencie/internal/bank"
	"github.com/rencie-dev/rencie/internal/model"
)

// --- collaborator fakes ---

type fakeClassifier struct {
	output string
	err    error
	calls  int
}

func (f *fakeClassifier) Classify(context.Context, []model.Message) (string, error) {
	f.calls++
	return f.output, f.err
}

type fakeChatter struct {
	reply string
	err   error
}

func (f *fakeChatter) Reply(context.Context, []model.Message) (string, error) {
	return f.reply, f.err
}

type fakeOTP struct {
	otpID    string
	issueErr error
	result   model.OTPResult
	issues   int
	checks   int
	lastCode string
}

func (f *fakeOTP) Issue(context.Context, string, string, string) (string, error) {
	f.issues++
	if f.issueErr != nil {
		return "", f.issueErr
	}
	return f.otpID, nil
}

func (f *fakeOTP) Validate(_ context.Context, _, code, _ string) (model.OTPResult, error) {
	f.checks++
	f.lastCode = code
	return f.result, nil
}

type fakeBank struct {
	accounts    map[string]model.Account
	transferRes bank.TransferResult
	transferErr error
	transfers   int
	statements  int
}

func (f *fakeBank) Transfer(_ context.Context, _, _ string, _ int64, _ string) (bank.TransferResult, error) {
	f.transfers++
	return f.transferRes, f.transferErr
}

func (f *fakeBank) CheckBalance(_ context.Context, accountNumber string) (model.Account, error) {
	acct, ok := f.accounts[accountNumber]
	if !ok {
		return model.Account{}, bank.ErrAccountNotFound
	}
	return acct, nil
}

func (f *fakeBank) RequestStatement(string, string, string) {
	f.statements++
}

type memCheckpoints struct {
	mu   sync.Mutex
	cps  map[string]*model.Checkpoint
	errs int
}

func newMemCheckpoints() *memCheckpoints {
	return &memCheckpoints{cps: make(map[string]*model.Checkpoint)}
}

func (m *memCheckpoints) Load(_ context.Context, sessionID string) (*model.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp, ok := m.cps[sessionID]
	if !ok {
		return nil, nil
	}
	// Deep copy via JSON, matching a store that round-trips serialization.
	raw, err := json.Marshal(cp)
	if err != nil {
		return nil, err
	}
	var out model.Checkpoint
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (m *memCheckpoints) Save(_ context.Context, sessionID string, cp *model.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cpCopy := *cp
	m.cps[sessionID] = &cpCopy
	return nil
}

type memLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newMemLocker() *memLocker {
	return &memLocker{locks: make(map[string]*sync.Mutex)}
}

func (m *memLocker) Lock(_ context.Context, sessionID string) (func(), error) {
	m.mu.Lock()
	l, ok := m.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[sessionID] = l
	}
	m.mu.Unlock()

	l.Lock()
	return l.Unlock, nil
}

// --- fixtures ---

const testAcct = "0377052365"

var testIdent = Identity{AccountNumber: testAcct, Name: "Ray", Email: "ray@example.com"}

type harness struct {
	classifier  *fakeClassifier
	chatter     *fakeChatter
	otp         *fakeOTP
	bank        *fakeBank
	checkpoints *memCheckpoints
	engine      *Engine
}

func newHarness() *harness {
	h := &harness{
		classifier: &fakeClassifier{},
		chatter:    &fakeChatter{reply: "Hello! How can I help?"},
		otp:        &fakeOTP{otpID: "challenge-1", result: model.OTPValid},
		bank: &fakeBank{
			accounts: map[string]model.Account{
				testAcct:     {AccountNumber: testAcct, FirstName: "Ray", LastName: "Ayodeji", Balance: 100_000, Currency: "NGN", Email: "ray@example.com"},
				"1234567890": {AccountNumber: "1234567890", FirstName: "Ada", LastName: "Obi", Balance: 5_000, Currency: "NGN", Email: "ada@example.com"},
			},
			transferRes: bank.TransferResult{TransactionID: "tx-1", NewBalance: 95_000, Currency: "NGN"},
		},
		checkpoints: newMemCheckpoints(),
	}
	h.engine = NewEngine(h.classifier, h.chatter, h.otp, h.bank, h.checkpoints, newMemLocker(), zap.NewNop())
	return h
}

func (h *harness) checkpoint(t *testing.T) *model.Checkpoint {
	t.Helper()
	cp, err := h.checkpoints.Load(context.Background(), testAcct)
	require.NoError(t, err)
	require.NotNil(t, cp)
	return cp
}

func classifierJSON(intent string, data string) string {
	if data == "" {
		data = "{}"
	}
	return `{"confidence_level": 95, "intent": "` + intent + `", "data": ` + data + `}`
}

// startTransfer drives a session to the AwaitOTP suspension.
func startTransfer(t *testing.T, h *harness) {
	t.Helper()
	h.classifier.output = classifierJSON("transfer", `{"receiverAccountNumber": "1234567890", "amount": 5000}`)

	reply, err := h.engine.HandleTurn(context.Background(), testIdent, "send 50 naira to 1234567890")
	require.NoError(t, err)
	assert.Contains(t, reply, "Obi Ada")
	assert.Contains(t, reply, replyOTPPrompt)
	require.True(t, h.checkpoint(t).Suspended())
}

// --- tests ---

func TestHandleTurn_SmalltalkRoutesToChat(t *testing.T) {
	h := newHarness()
	h.classifier.output = classifierJSON("smalltalks", "")

	reply, err := h.engine.HandleTurn(context.Background(), testIdent, "hey rencie!")
	require.NoError(t, err)
	assert.Equal(t, "Hello! How can I help?", reply)

	cp := h.checkpoint(t)
	assert.False(t, cp.Suspended())
	require.Len(t, cp.Messages, 2)
	assert.Equal(t, model.RoleUser, cp.Messages[0].Role)
	assert.Equal(t, model.RoleAssistant, cp.Messages[1].Role)
}

func TestHandleTurn_UnparseableClassifierFallsBackToChat(t *testing.T) {
	h := newHarness()
	h.classifier.output = "I think the user wants... something?"

	reply, err := h.engine.HandleTurn(context.Background(), testIdent, "do the thing")
	require.NoError(t, err)
	assert.Equal(t, "Hello! How can I help?", reply)
	assert.Zero(t, h.otp.issues)
}

func TestHandleTurn_ClassifierErrorFallsBackToChat(t *testing.T) {
	h := newHarness()
	h.classifier.err = assert.AnError

	reply, err := h.engine.HandleTurn(context.Background(), testIdent, "hello")
	require.NoError(t, err)
	assert.Equal(t, "Hello! How can I help?", reply)
}

func TestHandleTurn_ChatterFailureYieldsFallbackReply(t *testing.T) {
	h := newHarness()
	h.classifier.output = classifierJSON("smalltalks", "")
	h.chatter.err = assert.AnError

	reply, err := h.engine.HandleTurn(context.Background(), testIdent, "hi")
	require.NoError(t, err)
	assert.Equal(t, replyFallback, reply)
}

func TestHandleTurn_TransferSuspendsAtOTP(t *testing.T) {
	h := newHarness()
	startTransfer(t, h)

	cp := h.checkpoint(t)
	assert.Equal(t, model.IntentTransfer, cp.Intent)
	require.NotNil(t, cp.Pending)
	assert.Equal(t, "1234567890", cp.Pending.ReceiverAccountNumber)
	assert.Equal(t, int64(5000), cp.Pending.Amount)
	require.NotNil(t, cp.Challenge)
	assert.Equal(t, "challenge-1", cp.Challenge.OTPID)
	assert.Zero(t, cp.Challenge.AttemptsUsed)
	assert.Equal(t, 1, h.otp.issues)
	assert.Zero(t, h.bank.transfers)
}

func TestHandleTurn_ResumeWithValidCodeExecutesTransfer(t *testing.T) {
	h := newHarness()
	startTransfer(t, h)

	reply, err := h.engine.HandleTurn(context.Background(), testIdent, "my code is 12345")
	require.NoError(t, err)
	assert.Contains(t, reply, "Transfer successful")
	assert.Contains(t, reply, "NGN 950.00")

	assert.Equal(t, 1, h.bank.transfers)
	assert.Equal(t, "12345", h.otp.lastCode)

	cp := h.checkpoint(t)
	assert.False(t, cp.Suspended())
	assert.Nil(t, cp.Challenge)
	assert.Nil(t, cp.Pending)
	assert.Equal(t, model.IntentNone, cp.Intent)
}

func TestHandleTurn_StopKeywordAbortsAndPreservesHistory(t *testing.T) {
	h := newHarness()
	startTransfer(t, h)

	before := len(h.checkpoint(t).Messages)

	reply, err := h.engine.HandleTurn(context.Background(), testIdent, "actually STOP that")
	require.NoError(t, err)
	assert.Equal(t, replyStopped, reply)

	cp := h.checkpoint(t)
	assert.Len(t, cp.Messages, before, "stop must not change history length")
	assert.Nil(t, cp.Challenge)
	assert.False(t, cp.Suspended())
	assert.Zero(t, h.otp.checks, "stop is honored before code extraction")
	assert.Zero(t, h.bank.transfers)
}

func TestHandleTurn_StopCheckedBeforeCodeExtraction(t *testing.T) {
	h := newHarness()
	startTransfer(t, h)

	// The message contains both a code and the stop keyword; stop wins.
	reply, err := h.engine.HandleTurn(context.Background(), testIdent, "stop 12345")
	require.NoError(t, err)
	assert.Equal(t, replyStopped, reply)
	assert.Zero(t, h.otp.checks)
}

func TestHandleTurn_NoCodeInResumeStaysSuspended(t *testing.T) {
	h := newHarness()
	startTransfer(t, h)

	reply, err := h.engine.HandleTurn(context.Background(), testIdent, "what code?")
	require.NoError(t, err)
	assert.Equal(t, replyNoCode, reply)

	cp := h.checkpoint(t)
	assert.True(t, cp.Suspended())
	assert.Zero(t, cp.Challenge.AttemptsUsed, "a missing code must not consume an attempt")
	assert.Zero(t, h.otp.checks)
}

func TestHandleTurn_InvalidCodeRetriesUpToCeiling(t *testing.T) {
	h := newHarness()
	h.otp.result = model.OTPInvalid
	startTransfer(t, h)

	// Attempts 1 and 2: retry prompts, still suspended.
	for want := 2; want >= 1; want-- {
		reply, err := h.engine.HandleTurn(context.Background(), testIdent, "00000")
		require.NoError(t, err)
		assert.Contains(t, reply, "Invalid OTP")
		assert.Contains(t, reply, fmt.Sprintf("You have %d attempts remaining", want))
		assert.True(t, h.checkpoint(t).Suspended())
	}

	// Attempt 3: terminal failure, challenge cleared.
	reply, err := h.engine.HandleTurn(context.Background(), testIdent, "00000")
	require.NoError(t, err)
	assert.Contains(t, reply, replyMaxReached)

	cp := h.checkpoint(t)
	assert.False(t, cp.Suspended())
	assert.Nil(t, cp.Challenge)
	assert.Equal(t, 3, h.otp.checks)
	assert.Zero(t, h.bank.transfers)
}

func TestHandleTurn_FourthAttemptRefusedEvenIfValid(t *testing.T) {
	h := newHarness()
	startTransfer(t, h)

	// Force a checkpoint that somehow retained an exhausted challenge.
	cp := h.checkpoint(t)
	cp.Challenge.AttemptsUsed = maxOTPAttempts
	require.NoError(t, h.checkpoints.Save(context.Background(), testAcct, cp))

	h.otp.result = model.OTPValid
	reply, err := h.engine.HandleTurn(context.Background(), testIdent, "12345")
	require.NoError(t, err)
	assert.Contains(t, reply, replyMaxReached)

	assert.Zero(t, h.otp.checks, "the ceiling is checked before validation")
	assert.Zero(t, h.bank.transfers)
	assert.False(t, h.checkpoint(t).Suspended())
}

func TestHandleTurn_ExpiredCodeReportsExpiry(t *testing.T) {
	h := newHarness()
	h.otp.result = model.OTPExpired
	startTransfer(t, h)

	reply, err := h.engine.HandleTurn(context.Background(), testIdent, "12345")
	require.NoError(t, err)
	assert.Contains(t, reply, "OTP has expired")
	assert.True(t, h.checkpoint(t).Suspended())
}

func TestHandleTurn_CheckBalanceSkipsRecipientConfirmation(t *testing.T) {
	h := newHarness()
	h.classifier.output = classifierJSON("check_balance", "")

	reply, err := h.engine.HandleTurn(context.Background(), testIdent, "how much do I have?")
	require.NoError(t, err)
	assert.Equal(t, replyOTPPrompt, reply)
	require.True(t, h.checkpoint(t).Suspended())

	reply, err = h.engine.HandleTurn(context.Background(), testIdent, "12345")
	require.NoError(t, err)
	assert.Contains(t, reply, "Your account balance is NGN 1000.00")
	assert.False(t, h.checkpoint(t).Suspended())
}

func TestHandleTurn_StatementDispatchesAsyncJob(t *testing.T) {
	h := newHarness()
	h.classifier.output = classifierJSON("bank_statement", "")

	_, err := h.engine.HandleTurn(context.Background(), testIdent, "send me my statement")
	require.NoError(t, err)

	reply, err := h.engine.HandleTurn(context.Background(), testIdent, "12345")
	require.NoError(t, err)
	assert.Contains(t, reply, "statement")
	assert.Equal(t, 1, h.bank.statements)
}

func TestHandleTurn_TransferMissingFieldsAsksForClarification(t *testing.T) {
	h := newHarness()
	h.classifier.output = classifierJSON("transfer", `{"receiverAccountNumber": null, "amount": null}`)

	reply, err := h.engine.HandleTurn(context.Background(), testIdent, "send money")
	require.NoError(t, err)
	assert.Contains(t, reply, "recipient's 10-digit account number")

	cp := h.checkpoint(t)
	assert.False(t, cp.Suspended())
	assert.Zero(t, h.otp.issues)
}

func TestHandleTurn_UnknownRecipientRejectsBeforeOTP(t *testing.T) {
	h := newHarness()
	h.classifier.output = classifierJSON("transfer", `{"receiverAccountNumber": "9999999999", "amount": 5000}`)

	reply, err := h.engine.HandleTurn(context.Background(), testIdent, "send 50 naira to 9999999999")
	require.NoError(t, err)
	assert.Contains(t, reply, "recipient account does not exist")
	assert.Zero(t, h.otp.issues)
	assert.False(t, h.checkpoint(t).Suspended())
}

func TestHandleTurn_OTPIssueFailureDoesNotSuspend(t *testing.T) {
	h := newHarness()
	h.otp.issueErr = assert.AnError
	h.classifier.output = classifierJSON("check_balance", "")

	reply, err := h.engine.HandleTurn(context.Background(), testIdent, "balance please")
	require.NoError(t, err)
	assert.Contains(t, reply, "couldn't start the secure verification")
	assert.False(t, h.checkpoint(t).Suspended())
}

func TestHandleTurn_InsufficientFundsAtExecute(t *testing.T) {
	h := newHarness()
	h.bank.transferErr = bank.ErrInsufficientFunds
	startTransfer(t, h)

	reply, err := h.engine.HandleTurn(context.Background(), testIdent, "12345")
	require.NoError(t, err)
	assert.Contains(t, reply, "enough money")
	assert.False(t, h.checkpoint(t).Suspended())
}

func TestHandleTurn_HistoryAccumulatesAcrossTurns(t *testing.T) {
	h := newHarness()
	h.classifier.output = classifierJSON("smalltalks", "")

	for i := 0; i < 3; i++ {
		_, err := h.engine.HandleTurn(context.Background(), testIdent, "hello again")
		require.NoError(t, err)
	}
	assert.Len(t, h.checkpoint(t).Messages, 6)
}
