package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []Mail
	err  error
}

func (r *recordingSender) Send(_ context.Context, m Mail) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, m)
	return nil
}

func TestDispatcher_DeliversQueuedMail(t *testing.T) {
	sender := &recordingSender{}
	d := NewDispatcher(sender, zap.NewNop(), 8, 2)

	d.Enqueue("Debit Alert", "<p>sent</p>", "a@example.com")
	d.Enqueue("Credit Alert", "<p>received</p>", "b@example.com")
	d.Close()

	require.Len(t, sender.sent, 2)
	subjects := []string{sender.sent[0].Subject, sender.sent[1].Subject}
	assert.ElementsMatch(t, []string{"Debit Alert", "Credit Alert"}, subjects)
}

func TestDispatcher_EnqueueNeverBlocksWhenFull(t *testing.T) {
	block := make(chan struct{})
	sender := senderFunc(func(context.Context, Mail) error {
		<-block
		return nil
	})
	d := NewDispatcher(sender, zap.NewNop(), 1, 1)

	// One in flight, one queued, the rest dropped; none of these may block.
	for i := 0; i < 10; i++ {
		d.Enqueue("s", "b", "x@example.com")
	}

	close(block)
	d.Close()
}

func TestDispatcher_SendFailureIsSwallowed(t *testing.T) {
	sender := &recordingSender{err: assert.AnError}
	d := NewDispatcher(sender, zap.NewNop(), 4, 1)

	d.Enqueue("s", "b", "x@example.com")
	d.Close() // must not panic or surface the error
}

type senderFunc func(ctx context.Context, m Mail) error

func (f senderFunc) Send(ctx context.Context, m Mail) error { return f(ctx, m) }

func TestMailSender_Send(t *testing.T) {
	var got mailRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		require.NoError(t, decodeJSON(r, &got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewMailSender(srv.URL, "test-key", "onboarding@rencie.dev")
	err := s.Send(context.Background(), Mail{Subject: "Hi", Body: "<p>hello</p>", To: "ray@example.com"})
	require.NoError(t, err)

	assert.Equal(t, "Bearer test-key", auth)
	assert.Equal(t, "onboarding@rencie.dev", got.From)
	assert.Equal(t, "ray@example.com", got.To)
	assert.Equal(t, "Hi", got.Subject)
	assert.Equal(t, "<p>hello</p>", got.HTML)
}

func TestMailSender_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := NewMailSender(srv.URL, "bad-key", "onboarding@rencie.dev")
	err := s.Send(context.Background(), Mail{To: "ray@example.com"})
	assert.Error(t, err)
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
