package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/rencie-dev/rencie/internal/model"
)

const checkpointKeyPrefix = "rencie:session:"

// CheckpointStore persists state machine snapshots as JSON values keyed by
// session ID. Sessions are long-lived and resumable across process restarts,
// so no TTL is set.
type CheckpointStore struct {
	client *redis.Client
}

// NewCheckpointStore creates a CheckpointStore.
func NewCheckpointStore(client *redis.Client) *CheckpointStore {
	return &CheckpointStore{client: client}
}

// Load returns the checkpoint for a session, or (nil, nil) when the session
// has no checkpoint yet.
func (s *CheckpointStore) Load(ctx context.Context, sessionID string) (*model.Checkpoint, error) {
	raw, err := s.client.Get(ctx, checkpointKeyPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading checkpoint %s: %w", sessionID, err)
	}

	var cp model.Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil, fmt.Errorf("decoding checkpoint %s: %w", sessionID, err)
	}
	return &cp, nil
}

// Save overwrites the session's checkpoint.
func (s *CheckpointStore) Save(ctx context.Context, sessionID string, cp *model.Checkpoint) error {
	raw, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("encoding checkpoint %s: %w", sessionID, err)
	}
	if err := s.client.Set(ctx, checkpointKeyPrefix+sessionID, raw, 0).Err(); err != nil {
		return fmt.Errorf("saving checkpoint %s: %w", sessionID, err)
	}
	return nil
}
