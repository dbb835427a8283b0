package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"payment-service/internal/models"
	"payment-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FulfillmentService grants purchased entitlements once a payment is
// confirmed, regardless of which rail confirmed it. Every write it makes
// is an idempotent upsert or a uniquely-keyed append, so racing or
// repeated invocations converge on the same end state.
type FulfillmentService struct {
	store     FulfillmentStore
	publisher EventPublisher
	topTier   string
	logger    *zap.Logger
}

func NewFulfillmentService(store FulfillmentStore, publisher EventPublisher, topTier string) *FulfillmentService {
	return &FulfillmentService{
		store:     store,
		publisher: publisher,
		topTier:   topTier,
		logger:    util.GetLogger(),
	}
}

// GrantRequest describes one confirmed payment to fulfill.
type GrantRequest struct {
	UserID            int64
	Target            string
	Provider          string
	ProviderPaymentID string
	Amount            string
	Currency          string
	Metadata          json.RawMessage
}

// PaymentByProviderID looks up one ledger row by its provider-side id,
// for manual review of a confirmed payment.
func (f *FulfillmentService) PaymentByProviderID(ctx context.Context, provider, providerPaymentID string) (*models.PaymentTransaction, error) {
	return f.store.GetPaymentTransaction(ctx, provider, providerPaymentID)
}

// Grant performs the entitlement grant and appends the ledger row. A
// top-tier purchase additionally seeds one scholarship; that side effect
// is fire-and-forget and never rolls back the grant.
func (f *FulfillmentService) Grant(ctx context.Context, req *GrantRequest) error {
	ctx, span := util.StartSpan(ctx, "FulfillmentService.Grant")
	defer span.End()

	target, err := ParseTarget(req.Target)
	if err != nil {
		return err
	}

	switch target.Kind {
	case TargetKindCourse:
		if err := f.store.UpsertEnrollment(ctx, req.UserID, target.CourseID, req.Provider); err != nil {
			return fmt.Errorf("failed to grant enrollment: %w", err)
		}
	case TargetKindTier:
		if err := f.store.UpsertTierPurchase(ctx, req.UserID, target.Tier, req.Provider); err != nil {
			return fmt.Errorf("failed to grant tier: %w", err)
		}
		if target.Tier == f.topTier {
			if err := f.store.CreateScholarship(ctx, req.UserID); err != nil {
				f.logger.Error("Failed to seed scholarship",
					zap.Int64("user_id", req.UserID),
					zap.Error(err))
			}
		}
	}

	util.FulfillmentGrantsTotal.WithLabelValues(target.Kind).Inc()

	inserted, err := f.store.CreatePaymentTransaction(ctx, &models.PaymentTransaction{
		Provider:          req.Provider,
		ProviderPaymentID: req.ProviderPaymentID,
		UserID:            req.UserID,
		Target:            req.Target,
		Amount:            req.Amount,
		Currency:          req.Currency,
		Status:            models.PaymentStatusSuccess,
		Metadata:          req.Metadata,
	})
	if err != nil {
		return fmt.Errorf("failed to append payment ledger: %w", err)
	}
	if !inserted {
		f.logger.Info("Ledger row already present, skipping append",
			zap.String("provider", req.Provider),
			zap.String("provider_payment_id", req.ProviderPaymentID))
	}

	event := &models.PaymentConfirmedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypePaymentConfirmed,
			Timestamp: time.Now(),
		},
		UserID:            req.UserID,
		Target:            req.Target,
		Provider:          req.Provider,
		ProviderPaymentID: req.ProviderPaymentID,
		Amount:            req.Amount,
		Currency:          req.Currency,
	}
	if err := f.publisher.PublishPaymentConfirmed(ctx, event); err != nil {
		f.logger.Error("Failed to publish PaymentConfirmed event", zap.Error(err))
	}

	f.logger.Info("Entitlement granted",
		zap.Int64("user_id", req.UserID),
		zap.String("target", req.Target),
		zap.String("provider", req.Provider))
	return nil
}
