package service

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"bookpay/internal/domain"
)

// NotificationType represents the type of notification.
type NotificationType string

const (
	NotificationPaymentProcessing NotificationType = "PAYMENT_PROCESSING"
	NotificationPaymentCompleted  NotificationType = "PAYMENT_COMPLETED"
	NotificationPaymentFailed     NotificationType = "PAYMENT_FAILED"
	NotificationPaymentRefunded   NotificationType = "PAYMENT_REFUNDED"
	NotificationAuthorEarned      NotificationType = "AUTHOR_EARNED"
)

// Notification represents a notification to be sent.
type Notification struct {
	ID          string
	Type        NotificationType
	RecipientID string
	Title       string
	Message     string
	Data        map[string]interface{}
	CreatedAt   time.Time
}

// NotificationService delivers payment facts to readers and authors.
type NotificationService struct {
	// In a real system, this would have:
	// - Push notification client (FCM, APNS)
	// - Email client (SendGrid)
	// - WebSocket connections for real-time
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService() *NotificationService {
	return &NotificationService{}
}

// PublishEvents delivers notifications for every domain fact the payment
// raised, then clears them. Each fact is dispatched at most once.
func (s *NotificationService) PublishEvents(ctx context.Context, payment *domain.Payment) {
	for _, event := range payment.Events() {
		switch e := event.(type) {
		case domain.PaymentProcessing:
			s.send(ctx, Notification{
				Type:        NotificationPaymentProcessing,
				RecipientID: payment.UserID(),
				Title:       "Payment in progress",
				Message:     "Your payment of " + payment.Amount().String() + " is being processed.",
				Data: map[string]interface{}{
					"payment_id":              e.PaymentID,
					"external_transaction_id": e.ExternalTransactionID,
				},
			})
		case domain.PaymentCompleted:
			s.send(ctx, Notification{
				Type:        NotificationPaymentCompleted,
				RecipientID: payment.UserID(),
				Title:       "Payment completed",
				Message:     "Your payment of " + payment.Amount().String() + " was completed.",
				Data:        map[string]interface{}{"payment_id": e.PaymentID},
			})
		case domain.PaymentFailed:
			s.send(ctx, Notification{
				Type:        NotificationPaymentFailed,
				RecipientID: payment.UserID(),
				Title:       "Payment failed",
				Message:     "Your payment of " + payment.Amount().String() + " failed: " + e.Reason,
				Data:        map[string]interface{}{"payment_id": e.PaymentID},
			})
		case domain.PaymentRefunded:
			s.send(ctx, Notification{
				Type:        NotificationPaymentRefunded,
				RecipientID: payment.UserID(),
				Title:       "Refund issued",
				Message:     "A refund of " + e.Amount.String() + " was issued for your payment.",
				Data: map[string]interface{}{
					"payment_id": e.PaymentID,
					"full":       e.Full,
				},
			})
		}
	}
	payment.ClearEvents()
}

// NotifyAuthorEarnings tells an author about earnings from a completed payment.
func (s *NotificationService) NotifyAuthorEarnings(ctx context.Context, authorID string, earnings domain.Money, paymentID string) {
	s.send(ctx, Notification{
		Type:        NotificationAuthorEarned,
		RecipientID: authorID,
		Title:       "You earned from a sale",
		Message:     "You earned " + earnings.String() + " from a reader payment.",
		Data:        map[string]interface{}{"payment_id": paymentID},
	})
}

// send delivers a single notification. Delivery is best-effort; failures
// are logged and never fail the payment flow.
func (s *NotificationService) send(_ context.Context, n Notification) {
	n.ID = uuid.New().String()
	n.CreatedAt = time.Now()

	log.Printf("[NOTIFICATION] type=%s recipient=%s title=%q message=%q",
		n.Type, n.RecipientID, n.Title, n.Message)
}
