package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// LockStore handles distributed locking in Redis. Webhook and refund
// handlers for the same payment serialize on a per-payment lock so two
// concurrent handlers never both read the same stale status.
type LockStore struct {
	client *redis.Client
}

// NewLockStore creates a new LockStore.
func NewLockStore(client *redis.Client) *LockStore {
	return &LockStore{client: client}
}

// AcquirePaymentLock attempts to acquire a lock for the given payment.
// Returns true if the lock was acquired, false if already held.
func (s *LockStore) AcquirePaymentLock(ctx context.Context, paymentID string, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("lock:payment:%s", paymentID)

	ok, err := s.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

// ReleasePaymentLock releases the lock for the given payment.
func (s *LockStore) ReleasePaymentLock(ctx context.Context, paymentID string) error {
	key := fmt.Sprintf("lock:payment:%s", paymentID)

	return s.client.Del(ctx, key).Err()
}
