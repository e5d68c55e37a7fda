// Package notify delivers out-of-band email: OTP codes, debit/credit alerts,
// welcome messages, and bank statements. Delivery is fire-and-forget — a
// failed send is logged and never surfaces as a failure of the operation that
// triggered it.
package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Mail is one outbound message. Body is HTML.
type Mail struct {
	Subject string
	Body    string
	To      string
}

// Sender performs a single delivery attempt.
type Sender interface {
	Send(ctx context.Context, m Mail) error
}

const sendTimeout = 15 * time.Second

// Dispatcher fans mail out to worker goroutines over a bounded queue so
// delivery latency never holds up a conversational turn. When the queue is
// full the mail is dropped and logged.
type Dispatcher struct {
	sender Sender
	log    *zap.Logger
	queue  chan Mail

	once sync.Once
	wg   sync.WaitGroup
}

// NewDispatcher creates a Dispatcher with the given queue depth and worker
// count and starts the workers.
func NewDispatcher(sender Sender, log *zap.Logger, queueSize, workers int) *Dispatcher {
	if queueSize < 1 {
		queueSize = 1
	}
	if workers < 1 {
		workers = 1
	}

	d := &Dispatcher{
		sender: sender,
		log:    log,
		queue:  make(chan Mail, queueSize),
	}

	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.worker()
	}
	return d
}

// Enqueue submits a mail for asynchronous delivery. It never blocks.
func (d *Dispatcher) Enqueue(subject, body, to string) {
	m := Mail{Subject: subject, Body: body, To: to}
	select {
	case d.queue <- m:
	default:
		d.log.Warn("mail queue full, dropping message",
			zap.String("subject", subject),
			zap.String("to", to))
	}
}

// Close drains the queue and stops the workers. Safe to call more than once.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		close(d.queue)
	})
	d.wg.Wait()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for m := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		err := d.sender.Send(ctx, m)
		cancel()

		if err != nil {
			d.log.Warn("mail delivery failed",
				zap.String("subject", m.Subject),
				zap.String("to", m.To),
				zap.Error(err))
			continue
		}
		d.log.Debug("mail delivered",
			zap.String("subject", m.Subject),
			zap.String("to", m.To))
	}
}

// NopSender discards mail. Used in tests and when no mail API key is
// configured.
type NopSender struct{}

func (NopSender) Send(context.Context, Mail) error { return nil }
