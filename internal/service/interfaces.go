package service

import (
	"context"
	"time"

	"payment-service/internal/chain"
	"payment-service/internal/models"
)

// OrderStore is the slice of the store the order service needs.
// Implemented by *store.Store.
type OrderStore interface {
	CreateCryptoOrder(ctx context.Context, order *models.CryptoOrder) error
	GetCryptoOrder(ctx context.Context, id string) (*models.CryptoOrder, error)
	GetCryptoOrderForUser(ctx context.Context, id string, userID int64) (*models.CryptoOrder, error)
	CompleteCryptoOrder(ctx context.Context, id, txHash, chain string) error
	ExpireCryptoOrder(ctx context.Context, id string) (bool, error)
	AdminExpireCryptoOrder(ctx context.Context, id string) (bool, error)
	TxHashClaimed(ctx context.Context, txHash, excludeOrderID string) (bool, error)
	ListPendingAmounts(ctx context.Context, currency string) ([]string, error)
	GetCryptoOrdersByUserID(ctx context.Context, userID int64) ([]models.CryptoOrder, error)
}

// EventStore is the dedup log. Implemented by *store.Store.
type EventStore interface {
	RecordEventOnce(ctx context.Context, event *models.ExternalEvent) (bool, error)
}

// FulfillmentStore covers the entitlement and ledger writes. Implemented
// by *store.Store.
type FulfillmentStore interface {
	CreatePaymentTransaction(ctx context.Context, tx *models.PaymentTransaction) (bool, error)
	GetPaymentTransaction(ctx context.Context, provider, providerPaymentID string) (*models.PaymentTransaction, error)
	UpsertEnrollment(ctx context.Context, userID, courseID int64, source string) error
	UpsertTierPurchase(ctx context.Context, userID int64, tier, source string) error
	CreateScholarship(ctx context.Context, donorUserID int64) error
}

// TransferFinder races the chain matchers. Implemented by *chain.Arbiter.
type TransferFinder interface {
	FindMatchingTransfer(ctx context.Context, expectedAmount string, since time.Time) (*chain.Match, error)
}

// EventPublisher emits domain events for external consumers (scholarship
// queue, mailer). Implemented by *broker.EventPublisher.
type EventPublisher interface {
	PublishPaymentConfirmed(ctx context.Context, event *models.PaymentConfirmedEvent) error
	PublishOrderExpired(ctx context.Context, event *models.OrderExpiredEvent) error
}

// PriceCatalog resolves a purchase target to its base price. The course
// catalog is owned by another service; this is its interface point.
type PriceCatalog interface {
	PriceFor(ctx context.Context, target string) (cents int64, currency string, err error)
}

// InfoCache is a read-through cache for the static order-info view.
// Implemented by *redisclient.Client.
type InfoCache interface {
	CacheGet(ctx context.Context, key string, dest interface{}) (bool, error)
	CacheSet(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}
