package service

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"bookpay/internal/domain"
	"bookpay/internal/provider"
	"bookpay/internal/redis"
	"bookpay/internal/repository"
)

// WebhookService reconciles asynchronous provider notifications with the
// local payment state. Events that do not map to a known payment, or that
// arrive out of order, are acknowledged without effect so the provider
// stops retrying.
type WebhookService struct {
	paymentRepo   repository.PaymentRepository
	registry      *provider.Registry
	notifications *NotificationService
	locks         redis.LockStoreInterface
	cache         redis.CacheStoreInterface
}

// NewWebhookService creates a new WebhookService.
func NewWebhookService(
	paymentRepo repository.PaymentRepository,
	registry *provider.Registry,
	notifications *NotificationService,
	locks redis.LockStoreInterface,
	cache redis.CacheStoreInterface,
) *WebhookService {
	return &WebhookService{
		paymentRepo:   paymentRepo,
		registry:      registry,
		notifications: notifications,
		locks:         locks,
		cache:         cache,
	}
}

// HandleWebhook authenticates and applies a single provider notification.
// A nil return means the event was either applied or safely ignored; the
// caller should acknowledge it either way.
func (s *WebhookService) HandleWebhook(ctx context.Context, providerName domain.Provider, payload []byte, headers http.Header) error {
	proc, err := s.registry.Get(providerName)
	if err != nil {
		return err
	}

	validation, err := proc.ValidateWebhook(ctx, payload, headers)
	if err != nil {
		return err
	}
	if !validation.Valid {
		return provider.ErrInvalidSignature
	}

	if validation.ExternalTransactionID == "" {
		log.Printf("webhook %s: event %s carries no transaction reference, ignoring",
			providerName, validation.EventID)
		return nil
	}

	payment, err := s.paymentRepo.GetByExternalTransactionID(ctx, validation.ExternalTransactionID)
	if err != nil {
		return err
	}
	if payment == nil {
		// Providers replay events for transactions we never initiated
		// (or that were purged); acknowledging is the only safe answer.
		log.Printf("webhook %s: no payment for transaction %s, ignoring",
			providerName, validation.ExternalTransactionID)
		return nil
	}

	acquired, err := s.locks.AcquirePaymentLock(ctx, payment.ID(), paymentLockTTL)
	if err != nil {
		return err
	}
	if !acquired {
		return ErrPaymentLocked
	}
	defer func() {
		if err := s.locks.ReleasePaymentLock(ctx, payment.ID()); err != nil {
			log.Printf("failed to release payment lock %s: %v", payment.ID(), err)
		}
	}()

	// Reload under the lock: another delivery may have won the race.
	payment, err = s.paymentRepo.GetByID(ctx, payment.ID())
	if err != nil {
		return err
	}

	if validation.EventID != "" && payment.HasAppliedWebhookEvent(validation.EventID) {
		log.Printf("webhook %s: event %s already applied to payment %s",
			providerName, validation.EventID, payment.ID())
		return nil
	}

	applied, err := s.applyEvent(payment, validation)
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}

	payment.RecordWebhookEvent(validation.EventID)
	if err := s.paymentRepo.Update(ctx, payment); err != nil {
		return err
	}

	s.notifications.PublishEvents(ctx, payment)
	if err := s.cache.InvalidatePayment(ctx, payment.ID()); err != nil {
		log.Printf("payment %s: cache invalidation failed: %v", payment.ID(), err)
	}

	return nil
}

// applyEvent translates a normalized event into a state transition.
// Returns false when the event is valid but has no effect in the
// payment's current state.
func (s *WebhookService) applyEvent(payment *domain.Payment, validation *provider.WebhookValidation) (bool, error) {
	switch validation.EventType {
	case provider.EventPaymentSucceeded:
		if payment.Status() != domain.PaymentStatusProcessing {
			log.Printf("webhook: success event for payment %s in status %s, ignoring",
				payment.ID(), payment.Status())
			return false, nil
		}
		if err := payment.MarkAsCompleted(); err != nil {
			return false, err
		}
		return true, nil

	case provider.EventPaymentFailed:
		switch payment.Status() {
		case domain.PaymentStatusCompleted, domain.PaymentStatusRefunded, domain.PaymentStatusFailed:
			log.Printf("webhook: failure event for payment %s in status %s, ignoring",
				payment.ID(), payment.Status())
			return false, nil
		}
		reason := validation.Data["failure_reason"]
		if reason == "" {
			reason = fmt.Sprintf("provider reported %s", validation.EventType)
		}
		if err := payment.MarkAsFailed(reason); err != nil {
			return false, err
		}
		return true, nil

	case provider.EventRefund:
		if payment.Status() != domain.PaymentStatusCompleted {
			log.Printf("webhook: refund event for payment %s in status %s, ignoring",
				payment.ID(), payment.Status())
			return false, nil
		}
		amount, err := s.refundAmount(payment, validation)
		if err != nil {
			return false, err
		}
		if err := payment.ProcessRefund(amount); err != nil {
			return false, err
		}
		return true, nil

	default:
		log.Printf("webhook: unclassified event %s for payment %s, ignoring",
			validation.EventID, payment.ID())
		return false, nil
	}
}

// refundAmount extracts the refunded amount from the event payload. An
// absent amount means a full refund of what remains refundable.
func (s *WebhookService) refundAmount(payment *domain.Payment, validation *provider.WebhookValidation) (domain.Money, error) {
	raw := validation.Data["amount"]
	if raw == "" {
		return payment.RefundableAmount(), nil
	}

	currency := validation.Data["currency"]
	if currency == "" {
		currency = payment.Amount().Currency()
	}

	amount, err := domain.NewMoneyFromString(raw, currency)
	if err != nil {
		return domain.Money{}, fmt.Errorf("%w: refund amount %q: %v", ErrMalformedWebhook, raw, err)
	}
	return amount, nil
}
