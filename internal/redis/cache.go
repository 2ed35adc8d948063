package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CacheStore handles entity caching in Redis.
type CacheStore struct {
	client *redis.Client
}

// NewCacheStore creates a new CacheStore.
func NewCacheStore(client *redis.Client) *CacheStore {
	return &CacheStore{client: client}
}

// Cache TTL constants
const (
	// BookCacheTTL is generous: price schedules rarely change.
	BookCacheTTL = 5 * time.Minute

	// PaymentCacheTTL is short: payment status moves while webhooks land.
	PaymentCacheTTL = 10 * time.Second
)

// Key prefixes
const (
	bookCachePrefix    = "cache:book:"
	paymentCachePrefix = "cache:payment:"
)

// CachedBook represents a cached book price schedule.
type CachedBook struct {
	ID           string `json:"id"`
	AuthorID     string `json:"author_id"`
	Title        string `json:"title"`
	Currency     string `json:"currency"`
	PricePerPage string `json:"price_per_page,omitempty"`
	PricePerHour string `json:"price_per_hour,omitempty"`
}

// CachedPayment represents a cached payment read model.
type CachedPayment struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id"`
	BookID   string `json:"book_id"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

// GetBook retrieves a cached book. Returns nil on cache miss.
func (s *CacheStore) GetBook(ctx context.Context, bookID string) (*CachedBook, error) {
	return getCached[CachedBook](ctx, s.client, bookCachePrefix+bookID)
}

// SetBook caches a book price schedule.
func (s *CacheStore) SetBook(ctx context.Context, book *CachedBook) error {
	return setCached(ctx, s.client, bookCachePrefix+book.ID, book, BookCacheTTL)
}

// GetPayment retrieves a cached payment read model. Returns nil on cache miss.
func (s *CacheStore) GetPayment(ctx context.Context, paymentID string) (*CachedPayment, error) {
	return getCached[CachedPayment](ctx, s.client, paymentCachePrefix+paymentID)
}

// SetPayment caches a payment read model.
func (s *CacheStore) SetPayment(ctx context.Context, payment *CachedPayment) error {
	return setCached(ctx, s.client, paymentCachePrefix+payment.ID, payment, PaymentCacheTTL)
}

// InvalidatePayment drops a payment from the cache after a state change.
func (s *CacheStore) InvalidatePayment(ctx context.Context, paymentID string) error {
	return s.client.Del(ctx, paymentCachePrefix+paymentID).Err()
}

func getCached[T any](ctx context.Context, client *redis.Client, key string) (*T, error) {
	data, err := client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache get %s: %w", key, err)
	}

	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, fmt.Errorf("cache decode %s: %w", key, err)
	}
	return &value, nil
}

func setCached(ctx context.Context, client *redis.Client, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}
	return client.Set(ctx, key, data, ttl).Err()
}
