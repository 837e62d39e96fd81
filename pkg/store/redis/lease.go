// Package redis provides a redis-backed session ownership lease, letting
// several engine processes share one database without ever running the same
// session's tick loop twice.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gridroad/trafficd/pkg/store"
)

// LeaseStore implements store.LeaseStore on a redis client.
type LeaseStore struct {
	client *redis.Client
}

// NewLeaseStore wraps an existing redis client.
func NewLeaseStore(client *redis.Client) *LeaseStore {
	return &LeaseStore{client: client}
}

func (s *LeaseStore) makeKey(name string) string {
	return fmt.Sprintf("trafficd:lease:%s", name)
}

// Acquire takes the lease with SETNX. If the key exists but we already hold
// it, the lease is renewed instead.
func (s *LeaseStore) Acquire(ctx context.Context, name, holderID string, ttl time.Duration) (bool, error) {
	key := s.makeKey(name)

	success, err := s.client.SetNX(ctx, key, holderID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease: %w", err)
	}
	if success {
		return true, nil
	}

	val, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// Holder expired between SETNX and GET; retry on the next attempt.
			return false, nil
		}
		return false, fmt.Errorf("failed to check existing lease: %w", err)
	}
	if val == holderID {
		return true, s.Renew(ctx, name, holderID, ttl)
	}
	return false, nil
}

// Renew extends the lease expiry, but only while we still hold it. The
// check-and-extend runs as a Lua script so a stolen lease cannot be revived.
func (s *LeaseStore) Renew(ctx context.Context, name, holderID string, ttl time.Duration) error {
	key := s.makeKey(name)

	script := `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("PEXPIRE", KEYS[1], ARGV[2])
		else
			return 0
		end
	`
	ttlMs := int64(ttl / time.Millisecond)

	res, err := s.client.Eval(ctx, script, []string{key}, holderID, ttlMs).Result()
	if err != nil {
		return fmt.Errorf("failed to execute renew script: %w", err)
	}
	success, ok := res.(int64)
	if !ok {
		return fmt.Errorf("unexpected return type from renew script")
	}
	if success != 1 {
		return fmt.Errorf("lease %s lost or stolen", name)
	}
	return nil
}

// Release deletes the lease if we hold it; releasing someone else's lease is
// a no-op.
func (s *LeaseStore) Release(ctx context.Context, name, holderID string) error {
	key := s.makeKey(name)

	script := `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`
	if _, err := s.client.Eval(ctx, script, []string{key}, holderID).Result(); err != nil {
		return fmt.Errorf("failed to execute release script: %w", err)
	}
	return nil
}

var _ store.LeaseStore = (*LeaseStore)(nil)
