package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"evrewards/backend/services/rewards-service/internal/address"
)

// ErrChallengeNotFound is returned when no live challenge exists for a signer.
var ErrChallengeNotFound = errors.New("redisstore: challenge not found")

// ChallengeStore keeps one pending login challenge per signer.
type ChallengeStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewChallengeStore returns redis-backed store.
func NewChallengeStore(client redis.Cmdable, ttl time.Duration) *ChallengeStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ChallengeStore{client: client, ttl: ttl}
}

func (s *ChallengeStore) key(signer address.Address) string {
	return fmt.Sprintf("rewards:challenge:%s", signer)
}

// Save stores nonce for signer, replacing any previous challenge.
func (s *ChallengeStore) Save(ctx context.Context, signer address.Address, nonce string) error {
	return s.client.Set(ctx, s.key(signer), nonce, s.ttl).Err()
}

// Take returns and deletes the challenge of signer, so a challenge is used at most once.
func (s *ChallengeStore) Take(ctx context.Context, signer address.Address) (string, error) {
	nonce, err := s.client.GetDel(ctx, s.key(signer)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrChallengeNotFound
	}
	if err != nil {
		return "", err
	}
	return nonce, nil
}
