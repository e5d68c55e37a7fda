package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

const (
	lockKeyPrefix = "rencie:session-lock:"
	lockExpiry    = 30 * time.Second
	lockTries     = 64
	lockRetry     = 100 * time.Millisecond
)

// SessionLocker serializes checkpoint read-modify-write per session with a
// redsync mutex, so out-of-order turns for the same session never interleave
// while turns for different sessions run in parallel.
type SessionLocker struct {
	rs *redsync.Redsync

	// extendEvery is the keep-alive interval for held locks.
	extendEvery time.Duration
}

// NewSessionLocker creates a SessionLocker over an existing client.
func NewSessionLocker(client *redis.Client) *SessionLocker {
	return &SessionLocker{
		rs:          redsync.New(goredis.NewPool(client)),
		extendEvery: lockExpiry / 3,
	}
}

// Lock acquires the session mutex, retrying until ctx is done or the retry
// budget runs out. A held lock is re-extended on a ticker: a turn can
// legitimately outlive the expiry (two model calls plus storage work), and
// losing the key mid-turn would let a concurrent turn interleave the same
// checkpoint. The returned func releases it; release uses a fresh context
// because the request's may already be canceled.
func (l *SessionLocker) Lock(ctx context.Context, sessionID string) (func(), error) {
	mu := l.rs.NewMutex(
		lockKeyPrefix+sessionID,
		redsync.WithExpiry(lockExpiry),
		redsync.WithTries(lockTries),
		redsync.WithRetryDelay(lockRetry),
	)
	if err := mu.LockContext(ctx); err != nil {
		return nil, fmt.Errorf("acquiring session lock %s: %w", sessionID, err)
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(l.extendEvery)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				extendCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				ok, err := mu.ExtendContext(extendCtx)
				cancel()
				if err != nil || !ok {
					// The key is already gone; nothing left to keep alive.
					return
				}
			}
		}
	}()

	return func() {
		close(stop)
		<-done
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = mu.UnlockContext(unlockCtx)
	}, nil
}
