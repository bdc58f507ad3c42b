package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const noncePrefix = "settlement:proof-nonce:"

// ErrUnknownNonce means the nonce was never issued, already used or expired.
var ErrUnknownNonce = errors.New("unknown or expired proof nonce")

// NonceStore issues single-use proof payloads.
type NonceStore interface {
	Issue(ctx context.Context, ttl time.Duration) (string, error)
	Consume(ctx context.Context, nonce string) error
}

type RedisNonces struct {
	rdb *redis.Client
}

func NewRedisNonces(rdb *redis.Client) *RedisNonces {
	return &RedisNonces{rdb: rdb}
}

func (s *RedisNonces) Issue(ctx context.Context, ttl time.Duration) (string, error) {
	nonce := generateNonce(32)
	ok, err := s.rdb.SetNX(ctx, noncePrefix+nonce, 1, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("failed to store proof nonce: %w", err)
	}
	if !ok {
		return "", fmt.Errorf("proof nonce collision")
	}
	return nonce, nil
}

// Consume deletes the nonce; a second Consume of the same nonce fails.
func (s *RedisNonces) Consume(ctx context.Context, nonce string) error {
	if nonce == "" {
		return ErrUnknownNonce
	}
	n, err := s.rdb.Del(ctx, noncePrefix+nonce).Result()
	if err != nil {
		return fmt.Errorf("failed to consume proof nonce: %w", err)
	}
	if n == 0 {
		return ErrUnknownNonce
	}
	return nil
}

func generateNonce(bytes int) string {
	b := make([]byte, bytes)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
