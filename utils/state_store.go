package utils

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const defaultStateTTL = 10 * time.Minute

// StateStore holds single-use OAuth state tokens to mitigate CSRF.
type StateStore struct {
	store TTLStore
}

func NewStateStore(store TTLStore) *StateStore {
	return &StateStore{store: store}
}

// New creates and stores a fresh state token.
func (s *StateStore) New(ctx context.Context) (string, error) {
	state := uuid.NewString()
	if err := s.store.Set(ctx, "oauth:state:"+state, defaultStateTTL); err != nil {
		return "", err
	}
	return state, nil
}

// Consume validates and removes a state token.
func (s *StateStore) Consume(ctx context.Context, state string) (bool, error) {
	if state == "" {
		return false, nil
	}
	return s.store.Consume(ctx, "oauth:state:"+state)
}
