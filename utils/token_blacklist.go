package utils

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// TokenBlacklist records session tokens revoked at logout until they would have expired anyway.
type TokenBlacklist struct {
	store TTLStore
	now   func() time.Time
}

func NewTokenBlacklist(store TTLStore) *TokenBlacklist {
	return &TokenBlacklist{store: store, now: time.Now}
}

// WithClock sets the time source; it should match the one tokens are issued with.
func (b *TokenBlacklist) WithClock(now func() time.Time) *TokenBlacklist {
	b.now = now
	return b
}

// Revoke blacklists token until expiresAt.
func (b *TokenBlacklist) Revoke(ctx context.Context, token string, expiresAt time.Time) error {
	return b.store.Set(ctx, blacklistKey(token), expiresAt.Sub(b.now()))
}

// IsRevoked checks if a token was revoked before natural expiration.
func (b *TokenBlacklist) IsRevoked(ctx context.Context, token string) (bool, error) {
	return b.store.Exists(ctx, blacklistKey(token))
}

// keyed by digest so raw tokens never land in Redis
func blacklistKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "jwt:blacklist:" + hex.EncodeToString(sum[:])
}
