package redis

import (
	"context"
	"time"
)

// LockStoreInterface defines the interface for per-payment locking.
type LockStoreInterface interface {
	AcquirePaymentLock(ctx context.Context, paymentID string, ttl time.Duration) (bool, error)
	ReleasePaymentLock(ctx context.Context, paymentID string) error
}

// CacheStoreInterface defines the interface for entity caching.
type CacheStoreInterface interface {
	GetBook(ctx context.Context, bookID string) (*CachedBook, error)
	SetBook(ctx context.Context, book *CachedBook) error
	GetPayment(ctx context.Context, paymentID string) (*CachedPayment, error)
	SetPayment(ctx context.Context, payment *CachedPayment) error
	InvalidatePayment(ctx context.Context, paymentID string) error
}

// Ensure concrete types implement interfaces.
var (
	_ LockStoreInterface  = (*LockStore)(nil)
	_ CacheStoreInterface = (*CacheStore)(nil)
)
