package tests

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"bookpay/internal/domain"
	"bookpay/internal/provider"
	"bookpay/internal/redis"
	"bookpay/internal/repository"
)

// ──────────────────────────────────────────────
// MOCK PAYMENT REPOSITORY
// ──────────────────────────────────────────────

// MockPaymentRepository is a mock implementation of PaymentRepository.
// Payments are stored as flat records so mutations on returned aggregates
// do not leak back into the store before Update.
type MockPaymentRepository struct {
	mu       sync.RWMutex
	payments map[string]domain.PaymentRecord

	// Counters for verification
	CreateCallCount int32
	UpdateCallCount int32

	// Error injection
	CreateError error
	GetError    error
	UpdateError error
}

// NewMockPaymentRepository creates a new mock payment repository.
func NewMockPaymentRepository() *MockPaymentRepository {
	return &MockPaymentRepository{
		payments: make(map[string]domain.PaymentRecord),
	}
}

// AddPayment adds a payment to the mock repository.
func (m *MockPaymentRepository) AddPayment(payment *domain.Payment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments[payment.ID()] = payment.Record()
}

func (m *MockPaymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	atomic.AddInt32(&m.CreateCallCount, 1)
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments[payment.ID()] = payment.Record()
	return nil
}

func (m *MockPaymentRepository) GetByID(ctx context.Context, id string) (*domain.Payment, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.payments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return domain.RehydratePayment(rec), nil
}

func (m *MockPaymentRepository) GetByExternalTransactionID(ctx context.Context, externalID string) (*domain.Payment, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, rec := range m.payments {
		if rec.ExternalTransactionID == externalID && externalID != "" {
			return domain.RehydratePayment(rec), nil
		}
	}
	return nil, nil
}

func (m *MockPaymentRepository) GetByUserID(ctx context.Context, userID string) ([]*domain.Payment, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*domain.Payment, 0)
	for _, rec := range m.payments {
		if rec.UserID == userID {
			result = append(result, domain.RehydratePayment(rec))
		}
	}
	return result, nil
}

func (m *MockPaymentRepository) GetCompletedByBookIDs(ctx context.Context, bookIDs []string) ([]*domain.Payment, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	wanted := make(map[string]bool, len(bookIDs))
	for _, id := range bookIDs {
		wanted[id] = true
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*domain.Payment, 0)
	for _, rec := range m.payments {
		if wanted[rec.BookID] && rec.Status == domain.PaymentStatusCompleted {
			result = append(result, domain.RehydratePayment(rec))
		}
	}
	return result, nil
}

func (m *MockPaymentRepository) Update(ctx context.Context, payment *domain.Payment) error {
	atomic.AddInt32(&m.UpdateCallCount, 1)
	if m.UpdateError != nil {
		return m.UpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.payments[payment.ID()]
	if !ok {
		return repository.ErrNotFound
	}
	if stored.Version != payment.Version() {
		return repository.ErrVersionConflict
	}
	payment.IncrementVersion()
	m.payments[payment.ID()] = payment.Record()
	return nil
}

// GetStored returns the stored record for test assertions.
func (m *MockPaymentRepository) GetStored(id string) *domain.Payment {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.payments[id]
	if !ok {
		return nil
	}
	return domain.RehydratePayment(rec)
}

// CountPayments returns the number of stored payments.
func (m *MockPaymentRepository) CountPayments() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.payments)
}

// ──────────────────────────────────────────────
// MOCK BOOK / USER / SESSION REPOSITORIES
// ──────────────────────────────────────────────

// MockBookRepository is a mock implementation of BookRepository.
type MockBookRepository struct {
	mu    sync.RWMutex
	books map[string]*domain.Book
}

// NewMockBookRepository creates a new mock book repository.
func NewMockBookRepository() *MockBookRepository {
	return &MockBookRepository{books: make(map[string]*domain.Book)}
}

// AddBook adds a book to the mock repository.
func (m *MockBookRepository) AddBook(book *domain.Book) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.books[book.ID] = book
}

func (m *MockBookRepository) GetByID(ctx context.Context, id string) (*domain.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	book, ok := m.books[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *book
	return &copy, nil
}

func (m *MockBookRepository) GetByAuthorID(ctx context.Context, authorID string) ([]*domain.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*domain.Book, 0)
	for _, b := range m.books {
		if b.AuthorID == authorID {
			copy := *b
			result = append(result, &copy)
		}
	}
	return result, nil
}

// MockUserRepository is a mock implementation of UserRepository.
type MockUserRepository struct {
	mu    sync.RWMutex
	users map[string]*domain.User
}

// NewMockUserRepository creates a new mock user repository.
func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{users: make(map[string]*domain.User)}
}

// AddUser adds a user to the mock repository.
func (m *MockUserRepository) AddUser(user *domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *user
	return &copy, nil
}

// MockSessionRepository is a mock implementation of ReadingSessionRepository.
type MockSessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]*domain.ReadingSession
}

// NewMockSessionRepository creates a new mock reading session repository.
func NewMockSessionRepository() *MockSessionRepository {
	return &MockSessionRepository{sessions: make(map[string]*domain.ReadingSession)}
}

// AddSession adds a reading session to the mock repository.
func (m *MockSessionRepository) AddSession(session *domain.ReadingSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.ID] = session
}

func (m *MockSessionRepository) GetByID(ctx context.Context, id string) (*domain.ReadingSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *session
	return &copy, nil
}

// ──────────────────────────────────────────────
// MOCK PAYMENT PROCESSOR
// ──────────────────────────────────────────────

// MockProcessor is a mock implementation of provider.Processor.
type MockProcessor struct {
	name domain.Provider

	// Counters for verification
	ProcessPaymentCallCount  int32
	ProcessRefundCallCount   int32
	ValidateWebhookCallCount int32

	// Canned results
	PaymentResult     *provider.PaymentResult
	RefundResult      *provider.RefundResult
	WebhookValidation *provider.WebhookValidation
	Status            provider.Status

	// Error injection
	PaymentError  error
	RefundError   error
	ValidateError error
	StatusError   error
}

// NewMockProcessor creates a mock processor for the given network.
func NewMockProcessor(name domain.Provider) *MockProcessor {
	return &MockProcessor{
		name:   name,
		Status: provider.StatusProcessing,
	}
}

func (m *MockProcessor) Name() domain.Provider { return m.name }

func (m *MockProcessor) ProcessPayment(ctx context.Context, req provider.PaymentRequest) (*provider.PaymentResult, error) {
	atomic.AddInt32(&m.ProcessPaymentCallCount, 1)
	if m.PaymentError != nil {
		return nil, m.PaymentError
	}
	if m.PaymentResult != nil {
		return m.PaymentResult, nil
	}
	return &provider.PaymentResult{
		Success:               true,
		PaymentID:             req.PaymentRequestID(),
		ExternalTransactionID: "ext-" + req.PaymentRequestID(),
		Status:                provider.StatusProcessing,
	}, nil
}

func (m *MockProcessor) ProcessRefund(ctx context.Context, req provider.RefundRequest) (*provider.RefundResult, error) {
	atomic.AddInt32(&m.ProcessRefundCallCount, 1)
	if m.RefundError != nil {
		return nil, m.RefundError
	}
	if m.RefundResult != nil {
		return m.RefundResult, nil
	}
	return &provider.RefundResult{
		Success:          true,
		ExternalRefundID: "re-" + req.ExternalTransactionID,
		Status:           provider.StatusCompleted,
	}, nil
}

func (m *MockProcessor) ValidateWebhook(ctx context.Context, payload []byte, headers http.Header) (*provider.WebhookValidation, error) {
	atomic.AddInt32(&m.ValidateWebhookCallCount, 1)
	if m.ValidateError != nil {
		return nil, m.ValidateError
	}
	if m.WebhookValidation != nil {
		return m.WebhookValidation, nil
	}
	return &provider.WebhookValidation{Valid: false}, nil
}

func (m *MockProcessor) GetPaymentStatus(ctx context.Context, externalTransactionID string) (provider.Status, error) {
	if m.StatusError != nil {
		return provider.StatusUnknown, m.StatusError
	}
	return m.Status, nil
}

// ──────────────────────────────────────────────
// MOCK LOCK AND CACHE STORES
// ──────────────────────────────────────────────

// MockLockStore is an in-memory implementation of LockStoreInterface.
type MockLockStore struct {
	mu    sync.Mutex
	locks map[string]bool

	// Counters for verification
	AcquireCallCount int32
	ReleaseCallCount int32

	// Error injection
	AcquireError error
}

// NewMockLockStore creates a new mock lock store.
func NewMockLockStore() *MockLockStore {
	return &MockLockStore{locks: make(map[string]bool)}
}

func (m *MockLockStore) AcquirePaymentLock(ctx context.Context, paymentID string, ttl time.Duration) (bool, error) {
	atomic.AddInt32(&m.AcquireCallCount, 1)
	if m.AcquireError != nil {
		return false, m.AcquireError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[paymentID] {
		return false, nil
	}
	m.locks[paymentID] = true
	return true, nil
}

func (m *MockLockStore) ReleasePaymentLock(ctx context.Context, paymentID string) error {
	atomic.AddInt32(&m.ReleaseCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, paymentID)
	return nil
}

// Hold marks a payment as locked, simulating another in-flight request.
func (m *MockLockStore) Hold(paymentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locks[paymentID] = true
}

// MockCacheStore is an in-memory implementation of CacheStoreInterface.
type MockCacheStore struct {
	mu       sync.RWMutex
	books    map[string]*redis.CachedBook
	payments map[string]*redis.CachedPayment

	// Counters for verification
	InvalidateCallCount int32
}

// NewMockCacheStore creates a new mock cache store.
func NewMockCacheStore() *MockCacheStore {
	return &MockCacheStore{
		books:    make(map[string]*redis.CachedBook),
		payments: make(map[string]*redis.CachedPayment),
	}
}

func (m *MockCacheStore) GetBook(ctx context.Context, bookID string) (*redis.CachedBook, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.books[bookID], nil
}

func (m *MockCacheStore) SetBook(ctx context.Context, book *redis.CachedBook) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.books[book.ID] = book
	return nil
}

func (m *MockCacheStore) GetPayment(ctx context.Context, paymentID string) (*redis.CachedPayment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.payments[paymentID], nil
}

func (m *MockCacheStore) SetPayment(ctx context.Context, payment *redis.CachedPayment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments[payment.ID] = payment
	return nil
}

func (m *MockCacheStore) InvalidatePayment(ctx context.Context, paymentID string) error {
	atomic.AddInt32(&m.InvalidateCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.payments, paymentID)
	return nil
}

// Compile-time interface checks.
var (
	_ repository.PaymentRepository        = (*MockPaymentRepository)(nil)
	_ repository.BookRepository           = (*MockBookRepository)(nil)
	_ repository.UserRepository           = (*MockUserRepository)(nil)
	_ repository.ReadingSessionRepository = (*MockSessionRepository)(nil)
	_ provider.Processor                  = (*MockProcessor)(nil)
	_ redis.LockStoreInterface            = (*MockLockStore)(nil)
	_ redis.CacheStoreInterface           = (*MockCacheStore)(nil)
)
