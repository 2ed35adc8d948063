package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"bookpay/internal/domain"
	"bookpay/internal/provider"
	"bookpay/internal/redis"
	"bookpay/internal/repository"
)

// paymentLockTTL bounds how long a settlement handler may hold the
// per-payment lock before it expires on its own.
const paymentLockTTL = 30 * time.Second

// PaymentService orchestrates charge calculation, provider calls, and the
// payment state machine for the synchronous flows.
type PaymentService struct {
	paymentRepo     repository.PaymentRepository
	bookRepo        repository.BookRepository
	userRepo        repository.UserRepository
	sessionRepo     repository.ReadingSessionRepository
	registry        *provider.Registry
	pricing         *PricingService
	receipts        *ReceiptService
	notifications   *NotificationService
	locks           redis.LockStoreInterface
	cache           redis.CacheStoreInterface
	commissionRate  decimal.Decimal
	providerTimeout time.Duration
}

// NewPaymentService creates a new PaymentService.
func NewPaymentService(
	paymentRepo repository.PaymentRepository,
	bookRepo repository.BookRepository,
	userRepo repository.UserRepository,
	sessionRepo repository.ReadingSessionRepository,
	registry *provider.Registry,
	pricing *PricingService,
	receipts *ReceiptService,
	notifications *NotificationService,
	locks redis.LockStoreInterface,
	cache redis.CacheStoreInterface,
	commissionRate decimal.Decimal,
	providerTimeout time.Duration,
) *PaymentService {
	return &PaymentService{
		paymentRepo:     paymentRepo,
		bookRepo:        bookRepo,
		userRepo:        userRepo,
		sessionRepo:     sessionRepo,
		registry:        registry,
		pricing:         pricing,
		receipts:        receipts,
		notifications:   notifications,
		locks:           locks,
		cache:           cache,
		commissionRate:  commissionRate,
		providerTimeout: providerTimeout,
	}
}

// ProcessPaymentRequest contains the parameters for processing a payment.
type ProcessPaymentRequest struct {
	UserID           string
	BookID           string
	Provider         domain.Provider
	PaymentMethod    string
	PaymentType      domain.PaymentType
	PagesRead        int
	Duration         time.Duration
	ReadingSessionID string
}

// ProcessPaymentResponse contains the created payment and the provider's
// initiation outcome.
type ProcessPaymentResponse struct {
	Payment     *domain.Payment
	RedirectURL string
	Status      provider.Status
}

// ProcessPayment computes the charge for a reading session, creates a
// payment, and initiates it on the selected network. A processor failure
// marks the payment FAILED so nothing is left dangling in PENDING.
func (s *PaymentService) ProcessPayment(ctx context.Context, req ProcessPaymentRequest) (*ProcessPaymentResponse, error) {
	if req.UserID == "" {
		return nil, ErrInvalidUserID
	}
	if req.BookID == "" {
		return nil, ErrInvalidBookID
	}
	if req.PaymentMethod == "" {
		return nil, ErrInvalidPaymentMethod
	}
	if req.PaymentType != domain.PaymentTypePerPage && req.PaymentType != domain.PaymentTypePerHour {
		return nil, ErrInvalidPaymentType
	}
	if req.PagesRead < 0 || req.Duration < 0 {
		return nil, ErrInvalidConsumption
	}

	// Validate collaborators exist before any money moves.
	if _, err := s.userRepo.GetByID(ctx, req.UserID); err != nil {
		return nil, err
	}
	book, err := s.getBook(ctx, req.BookID)
	if err != nil {
		return nil, err
	}

	if req.ReadingSessionID != "" {
		session, err := s.sessionRepo.GetByID(ctx, req.ReadingSessionID)
		if err != nil {
			return nil, err
		}
		if session.UserID != req.UserID || session.BookID != req.BookID {
			return nil, ErrSessionMismatch
		}
	}

	amount, err := s.pricing.ChargeFor(book, req.UserID, req.PaymentType, req.PagesRead, req.Duration)
	if err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, ErrNothingToCharge
	}

	payment, err := domain.NewPayment(req.UserID, req.BookID, amount, req.PaymentType, req.Provider)
	if err != nil {
		return nil, err
	}
	if req.ReadingSessionID != "" {
		payment.AttachReadingSession(req.ReadingSessionID)
	}

	if err := s.paymentRepo.Create(ctx, payment); err != nil {
		return nil, err
	}

	proc, err := s.registry.Get(req.Provider)
	if err != nil {
		// The payment must not stay PENDING behind an unroutable provider.
		s.failPayment(ctx, payment, err.Error())
		return nil, err
	}

	provCtx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()

	result, err := proc.ProcessPayment(provCtx, provider.PaymentRequest{
		Amount:        amount,
		PaymentMethod: req.PaymentMethod,
		Description:   fmt.Sprintf("bookpay: %s", book.Title),
		Metadata: map[string]string{
			"payment_id": payment.ID(),
			"user_id":    req.UserID,
			"book_id":    req.BookID,
		},
	})
	if err != nil {
		s.failPayment(ctx, payment, err.Error())
		return nil, fmt.Errorf("provider %s: %w", req.Provider, err)
	}

	if !result.Success {
		reason := result.ErrorMessage
		if reason == "" {
			reason = fmt.Sprintf("provider reported status %s", result.Status)
		}
		s.failPayment(ctx, payment, reason)
		return nil, fmt.Errorf("%w: %s", ErrPaymentDeclined, reason)
	}

	if err := payment.MarkAsProcessing(result.ExternalTransactionID); err != nil {
		return nil, err
	}
	// Card-style gateways may confirm synchronously.
	if result.Status == provider.StatusCompleted {
		if err := payment.MarkAsCompleted(); err != nil {
			return nil, err
		}
	}

	if err := s.paymentRepo.Update(ctx, payment); err != nil {
		return nil, err
	}
	s.publish(ctx, payment, book)

	return &ProcessPaymentResponse{
		Payment:     payment,
		RedirectURL: result.RedirectURL,
		Status:      result.Status,
	}, nil
}

// ProcessRefundRequest contains the parameters for refunding a payment.
type ProcessRefundRequest struct {
	PaymentID string
	// Amount is the optional refund amount as a decimal string; empty
	// means the full refundable amount.
	Amount           string
	Reason           string
	RequestingUserID string
}

// ProcessRefundResponse contains the refund outcome.
type ProcessRefundResponse struct {
	Payment          *domain.Payment
	RefundedAmount   domain.Money
	ExternalRefundID string
	Status           provider.Status
}

// ProcessRefund refunds part or all of a completed payment. Only the
// original payer or the book's author may request a refund. The payment
// is mutated only after the network accepted the refund.
func (s *PaymentService) ProcessRefund(ctx context.Context, req ProcessRefundRequest) (*ProcessRefundResponse, error) {
	if req.PaymentID == "" {
		return nil, ErrInvalidPaymentID
	}
	if req.RequestingUserID == "" {
		return nil, ErrInvalidUserID
	}

	// Serialize against webhook delivery for the same payment.
	acquired, err := s.locks.AcquirePaymentLock(ctx, req.PaymentID, paymentLockTTL)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, ErrPaymentLocked
	}
	defer func() {
		if err := s.locks.ReleasePaymentLock(ctx, req.PaymentID); err != nil {
			log.Printf("failed to release payment lock %s: %v", req.PaymentID, err)
		}
	}()

	payment, err := s.paymentRepo.GetByID(ctx, req.PaymentID)
	if err != nil {
		return nil, err
	}

	book, err := s.getBook(ctx, payment.BookID())
	if err != nil {
		return nil, err
	}
	if req.RequestingUserID != payment.UserID() && req.RequestingUserID != book.AuthorID {
		return nil, ErrRefundNotAllowed
	}

	if !payment.IsRefundable() {
		return nil, fmt.Errorf("%w: status %s", domain.ErrNotRefundable, payment.Status())
	}

	refundAmount := payment.RefundableAmount()
	if req.Amount != "" {
		refundAmount, err = domain.NewMoneyFromString(req.Amount, payment.Amount().Currency())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidRefundAmount, err)
		}
	}
	if !refundAmount.IsPositive() {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidRefundAmount, refundAmount)
	}
	if cmp, err := refundAmount.Cmp(payment.RefundableAmount()); err != nil || cmp > 0 {
		return nil, fmt.Errorf("%w: %s exceeds refundable %s",
			domain.ErrInvalidRefundAmount, refundAmount, payment.RefundableAmount())
	}

	proc, err := s.registry.Get(payment.Provider())
	if err != nil {
		return nil, err
	}

	provCtx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()

	result, err := proc.ProcessRefund(provCtx, provider.RefundRequest{
		ExternalTransactionID: payment.ExternalTransactionID(),
		Amount:                refundAmount,
		Reason:                req.Reason,
		Metadata:              map[string]string{"payment_id": payment.ID()},
	})
	if err != nil {
		// The payment stays untouched: manual-only networks, ambiguous
		// outcomes, and plain failures are all reported to the caller.
		return nil, fmt.Errorf("provider %s: %w", payment.Provider(), err)
	}
	if !result.Success {
		return nil, fmt.Errorf("provider %s: refund rejected with status %s", payment.Provider(), result.Status)
	}

	if err := payment.ProcessRefund(refundAmount); err != nil {
		return nil, err
	}
	if err := s.paymentRepo.Update(ctx, payment); err != nil {
		return nil, err
	}
	s.publish(ctx, payment, book)

	return &ProcessRefundResponse{
		Payment:          payment,
		RefundedAmount:   refundAmount,
		ExternalRefundID: result.ExternalRefundID,
		Status:           result.Status,
	}, nil
}

// CalculateCharges returns the charge breakdown a reader would owe for
// the given consumption, without creating a payment.
func (s *PaymentService) CalculateCharges(ctx context.Context, userID, bookID string, pagesRead int, duration time.Duration) (*ChargeBreakdown, error) {
	if userID == "" {
		return nil, ErrInvalidUserID
	}
	if bookID == "" {
		return nil, ErrInvalidBookID
	}

	book, err := s.getBook(ctx, bookID)
	if err != nil {
		return nil, err
	}

	return s.pricing.CalculateCharge(book, userID, pagesRead, duration)
}

// GetPayment retrieves a payment by ID.
func (s *PaymentService) GetPayment(ctx context.Context, paymentID string) (*domain.Payment, error) {
	if paymentID == "" {
		return nil, ErrInvalidPaymentID
	}

	payment, err := s.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	s.cachePayment(ctx, payment)
	return payment, nil
}

// GetPaymentReceipt generates the receipt for a settled payment.
func (s *PaymentService) GetPaymentReceipt(ctx context.Context, paymentID string) (*domain.Receipt, error) {
	payment, err := s.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	book, err := s.getBook(ctx, payment.BookID())
	if err != nil {
		return nil, err
	}
	return s.receipts.GenerateReceipt(ctx, payment, book)
}

// AttachReadingSession links an existing payment to the reading session it
// settles. The session must belong to the same reader and book.
func (s *PaymentService) AttachReadingSession(ctx context.Context, paymentID, sessionID string) (*domain.Payment, error) {
	if paymentID == "" {
		return nil, ErrInvalidPaymentID
	}
	if sessionID == "" {
		return nil, ErrInvalidSessionID
	}

	payment, err := s.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.UserID != payment.UserID() || session.BookID != payment.BookID() {
		return nil, ErrSessionMismatch
	}

	payment.AttachReadingSession(sessionID)
	if err := s.paymentRepo.Update(ctx, payment); err != nil {
		return nil, err
	}
	return payment, nil
}

// GetUserPayments retrieves all payments made by a user.
func (s *PaymentService) GetUserPayments(ctx context.Context, userID string) ([]*domain.Payment, error) {
	if userID == "" {
		return nil, ErrInvalidUserID
	}
	return s.paymentRepo.GetByUserID(ctx, userID)
}

// AuthorEarnings summarizes what an author has earned, per currency,
// across completed payments for their books.
type AuthorEarnings struct {
	AuthorID     string
	Totals       map[string]domain.Money
	PaymentCount int
}

// GetAuthorEarnings computes an author's cumulative earnings net of the
// platform commission.
func (s *PaymentService) GetAuthorEarnings(ctx context.Context, authorID string) (*AuthorEarnings, error) {
	if authorID == "" {
		return nil, ErrInvalidUserID
	}

	books, err := s.bookRepo.GetByAuthorID(ctx, authorID)
	if err != nil {
		return nil, err
	}

	bookIDs := make([]string, 0, len(books))
	for _, b := range books {
		bookIDs = append(bookIDs, b.ID)
	}

	payments, err := s.paymentRepo.GetCompletedByBookIDs(ctx, bookIDs)
	if err != nil {
		return nil, err
	}

	earnings := &AuthorEarnings{
		AuthorID: authorID,
		Totals:   make(map[string]domain.Money),
	}
	for _, p := range payments {
		share := p.CalculateAuthorEarnings(s.commissionRate)
		if share.IsZero() {
			continue
		}
		currency := share.Currency()
		total, ok := earnings.Totals[currency]
		if !ok {
			total = domain.Zero(currency)
		}
		total, err = total.Add(share)
		if err != nil {
			return nil, err
		}
		earnings.Totals[currency] = total
		earnings.PaymentCount++
	}

	return earnings, nil
}

// CommissionRate exposes the configured platform commission.
func (s *PaymentService) CommissionRate() decimal.Decimal { return s.commissionRate }

// failPayment marks the payment FAILED and persists it, logging rather
// than masking the original failure when the save also fails.
func (s *PaymentService) failPayment(ctx context.Context, payment *domain.Payment, reason string) {
	if err := payment.MarkAsFailed(reason); err != nil {
		log.Printf("payment %s: cannot mark failed: %v", payment.ID(), err)
		return
	}
	if err := s.paymentRepo.Update(ctx, payment); err != nil {
		log.Printf("payment %s: failed to persist FAILED status: %v", payment.ID(), err)
	}
	s.publish(ctx, payment, nil)
}

// publish dispatches raised events, refreshes caches, and notifies the
// author when a payment completed.
func (s *PaymentService) publish(ctx context.Context, payment *domain.Payment, book *domain.Book) {
	completed := false
	for _, e := range payment.Events() {
		if _, ok := e.(domain.PaymentCompleted); ok {
			completed = true
		}
	}

	s.notifications.PublishEvents(ctx, payment)

	if completed && book != nil {
		share := payment.CalculateAuthorEarnings(s.commissionRate)
		if share.IsPositive() {
			s.notifications.NotifyAuthorEarnings(ctx, book.AuthorID, share, payment.ID())
		}
	}

	if err := s.cache.InvalidatePayment(ctx, payment.ID()); err != nil {
		log.Printf("payment %s: cache invalidation failed: %v", payment.ID(), err)
	}
}

// getBook loads a book through the cache.
func (s *PaymentService) getBook(ctx context.Context, bookID string) (*domain.Book, error) {
	if cached, err := s.cache.GetBook(ctx, bookID); err == nil && cached != nil {
		if book, err := bookFromCache(cached); err == nil {
			return book, nil
		}
	}

	book, err := s.bookRepo.GetByID(ctx, bookID)
	if err != nil {
		return nil, err
	}

	if err := s.cache.SetBook(ctx, bookToCache(book)); err != nil {
		log.Printf("book %s: cache write failed: %v", bookID, err)
	}

	return book, nil
}

// cachePayment refreshes the payment read cache, best effort.
func (s *PaymentService) cachePayment(ctx context.Context, payment *domain.Payment) {
	cached := &redis.CachedPayment{
		ID:       payment.ID(),
		UserID:   payment.UserID(),
		BookID:   payment.BookID(),
		Amount:   payment.Amount().StringFixed(),
		Currency: payment.Amount().Currency(),
		Status:   string(payment.Status()),
	}
	if err := s.cache.SetPayment(ctx, cached); err != nil {
		log.Printf("payment %s: cache write failed: %v", payment.ID(), err)
	}
}

func bookToCache(book *domain.Book) *redis.CachedBook {
	cached := &redis.CachedBook{
		ID:       book.ID,
		AuthorID: book.AuthorID,
		Title:    book.Title,
		Currency: book.Currency,
	}
	if book.PricePerPage != nil {
		cached.PricePerPage = book.PricePerPage.StringFixed()
	}
	if book.PricePerHour != nil {
		cached.PricePerHour = book.PricePerHour.StringFixed()
	}
	return cached
}

func bookFromCache(cached *redis.CachedBook) (*domain.Book, error) {
	book := &domain.Book{
		ID:       cached.ID,
		AuthorID: cached.AuthorID,
		Title:    cached.Title,
		Currency: cached.Currency,
	}
	if cached.PricePerPage != "" {
		price, err := domain.NewMoneyFromString(cached.PricePerPage, cached.Currency)
		if err != nil {
			return nil, err
		}
		book.PricePerPage = &price
	}
	if cached.PricePerHour != "" {
		price, err := domain.NewMoneyFromString(cached.PricePerHour, cached.Currency)
		if err != nil {
			return nil, err
		}
		book.PricePerHour = &price
	}
	return book, nil
}
