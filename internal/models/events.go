package models

import "time"

// Event types
const (
	EventTypePaymentConfirmed = "PAYMENT_CONFIRMED"
	EventTypeOrderExpired     = "ORDER_EXPIRED"
)

// BaseEvent contains common fields for all published events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// PaymentConfirmedEvent is published once per confirmed payment, after the
// entitlement grant. The scholarship pool and the mailer consume it.
type PaymentConfirmedEvent struct {
	BaseEvent
	UserID            int64  `json:"user_id"`
	Target            string `json:"target"`
	Provider          string `json:"provider"`
	ProviderPaymentID string `json:"provider_payment_id"`
	Amount            string `json:"amount"`
	Currency          string `json:"currency"`
}

// OrderExpiredEvent is published when a crypto order is lazily flipped to
// expired.
type OrderExpiredEvent struct {
	BaseEvent
	OrderID string `json:"order_id"`
	UserID  int64  `json:"user_id"`
	Target  string `json:"target"`
}
