package broker

import (
	"context"

	"payment-service/internal/models"
)

// EventPublisher handles publishing domain events. The scholarship queue
// and the transactional mailer consume the topic; nothing in this service
// does.
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishPaymentConfirmed publishes a PaymentConfirmed event keyed by the
// provider payment id so redeliveries of the same payment land on one
// partition.
func (ep *EventPublisher) PublishPaymentConfirmed(ctx context.Context, event *models.PaymentConfirmedEvent) error {
	key := event.Provider + "-" + event.ProviderPaymentID
	return ep.producer.PublishEvent(ctx, key, models.EventTypePaymentConfirmed, event)
}

// PublishOrderExpired publishes an OrderExpired event
func (ep *EventPublisher) PublishOrderExpired(ctx context.Context, event *models.OrderExpiredEvent) error {
	return ep.producer.PublishEvent(ctx, "order-"+event.OrderID, models.EventTypeOrderExpired, event)
}
