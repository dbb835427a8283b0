package service

import (
	"context"
	"fmt"

	"payment-service/internal/models"
	"payment-service/internal/util"
	"payment-service/internal/webhook"

	"go.uber.org/zap"
)

// WebhookService runs the non-chain rails' path: a verified, normalized
// provider event goes through the dedup log and, if new, to fulfillment.
// Providers deliver at least once; the dedup insert is the only thing
// standing between a retried delivery and a second grant.
type WebhookService struct {
	events      EventStore
	fulfillment *FulfillmentService
	logger      *zap.Logger
}

func NewWebhookService(events EventStore, fulfillment *FulfillmentService) *WebhookService {
	return &WebhookService{
		events:      events,
		fulfillment: fulfillment,
		logger:      util.GetLogger(),
	}
}

// HandleConfirmed processes one "payment succeeded" event. Returns
// processed=false when the event was a duplicate; the caller still
// acknowledges the delivery with a success envelope.
//
// A grant that fails after the dedup insert is not retried by the
// provider: the redelivery reads as a duplicate. Recovery is an
// administrator re-dispatching the grant (the crypto rail's admin
// completion override does the same for its orders); the dispatcher's
// idempotent writes absorb the repeat.
func (s *WebhookService) HandleConfirmed(ctx context.Context, event *webhook.ConfirmedPayment) (bool, error) {
	ctx, span := util.StartSpan(ctx, "WebhookService.HandleConfirmed")
	defer span.End()

	isNew, err := s.events.RecordEventOnce(ctx, &models.ExternalEvent{
		EventID:   event.EventID,
		Provider:  event.Provider,
		EventType: event.EventType,
		Payload:   event.Raw,
	})
	if err != nil {
		return false, fmt.Errorf("failed to record event: %w", err)
	}

	if !isNew {
		util.WebhooksDuplicateTotal.WithLabelValues(event.Provider).Inc()
		s.logger.Info("Duplicate provider event, already handled",
			zap.String("event_id", event.EventID))
		return false, nil
	}

	if err := s.fulfillment.Grant(ctx, &GrantRequest{
		UserID:            event.UserID,
		Target:            event.Target,
		Provider:          event.Provider,
		ProviderPaymentID: event.ProviderPaymentID,
		Amount:            event.Amount,
		Currency:          event.Currency,
		Metadata:          event.Raw,
	}); err != nil {
		return false, fmt.Errorf("failed to fulfill event %s: %w", event.EventID, err)
	}

	return true, nil
}
