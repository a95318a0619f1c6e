package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/initstack/identity/token"
)

var (
	// ErrNotFound reports that no live token exists for the pair. The
	// token was either never issued, already consumed, or expired out.
	ErrNotFound = errors.New("token cache entry not found")

	// ErrUnavailable wraps Redis transport failures.
	ErrUnavailable = errors.New("token cache unavailable")
)

// Store is the Redis-backed live-token index. Safe for concurrent use.
type Store struct {
	redis *redis.Client
}

// New returns a Store over client. The client is owned by the caller.
func New(client *redis.Client) *Store {
	return &Store{redis: client}
}

// Key returns the cache key for a (class, subject) pair.
func Key(class token.Class, subject string) string {
	return string(class) + "_token:" + subject
}

// Get returns the live token for the pair, or ErrNotFound.
func (s *Store) Get(ctx context.Context, class token.Class, subject string) (string, error) {
	val, err := s.redis.Get(ctx, Key(class, subject)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return val, nil
}

// Put installs tok as the live token for the pair, displacing any previous
// entry. The entry expires after ttl.
func (s *Store) Put(ctx context.Context, class token.Class, subject, tok string, ttl time.Duration) error {
	if err := s.redis.Set(ctx, Key(class, subject), tok, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Delete removes the live token for the pair. Deleting an absent entry is
// not an error.
func (s *Store) Delete(ctx context.Context, class token.Class, subject string) error {
	if err := s.redis.Del(ctx, Key(class, subject)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
