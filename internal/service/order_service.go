package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"payment-service/internal/models"
	"payment-service/internal/store"
	"payment-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ChainAddresses are the receiving wallet addresses shown to the payer,
// one per supported chain.
type ChainAddresses struct {
	BSC    string `json:"bsc"`
	Solana string `json:"solana"`
}

// OrderService owns the crypto order lifecycle: checkout creation with a
// disambiguated amount, the poll-driven reconciliation pass, and the
// terminal transitions. All completion paths funnel through the store's
// conditional update so the database arbitrates every race.
type OrderService struct {
	store       OrderStore
	arbiter     TransferFinder
	fulfillment *FulfillmentService
	publisher   EventPublisher
	catalog     PriceCatalog
	cache       InfoCache
	addresses   ChainAddresses
	orderTTL    time.Duration
	redirectURL string
	logger      *zap.Logger
}

func NewOrderService(
	orderStore OrderStore,
	arbiter TransferFinder,
	fulfillment *FulfillmentService,
	publisher EventPublisher,
	catalog PriceCatalog,
	cache InfoCache,
	addresses ChainAddresses,
	orderTTL time.Duration,
	redirectURL string,
) *OrderService {
	return &OrderService{
		store:       orderStore,
		arbiter:     arbiter,
		fulfillment: fulfillment,
		publisher:   publisher,
		catalog:     catalog,
		cache:       cache,
		addresses:   addresses,
		orderTTL:    orderTTL,
		redirectURL: redirectURL,
		logger:      util.GetLogger(),
	}
}

// CheckoutResponse is returned after a crypto checkout is initiated.
type CheckoutResponse struct {
	OrderID   string         `json:"order_id"`
	Amount    string         `json:"amount"`
	Currency  string         `json:"currency"`
	Addresses ChainAddresses `json:"addresses"`
	ExpiresAt time.Time      `json:"expires_at"`
}

// CreateCheckout mints a disambiguated amount for the target's base price
// and opens a pending order with an expiry deadline.
func (s *OrderService) CreateCheckout(ctx context.Context, userID int64, rawTarget string) (*CheckoutResponse, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateCheckout")
	defer span.End()

	if _, err := ParseTarget(rawTarget); err != nil {
		return nil, err
	}

	baseCents, currency, err := s.catalog.PriceFor(ctx, rawTarget)
	if err != nil {
		return nil, fmt.Errorf("failed to price target: %w", err)
	}

	pending, err := s.store.ListPendingAmounts(ctx, currency)
	if err != nil {
		// Collision avoidance is best effort; the tx-hash check is the
		// real safety net.
		s.logger.Warn("Failed to list pending amounts", zap.Error(err))
		pending = nil
	}
	amount := disambiguateAvoiding(baseCents, pending)

	order := &models.CryptoOrder{
		ID:        uuid.New().String(),
		UserID:    userID,
		Target:    rawTarget,
		Amount:    amount,
		Currency:  currency,
		Status:    models.OrderStatusPending,
		ExpiresAt: time.Now().Add(s.orderTTL),
	}

	if err := s.store.CreateCryptoOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	util.CryptoOrdersCreatedTotal.Inc()
	s.logger.Info("Crypto order created",
		zap.String("order_id", order.ID),
		zap.Int64("user_id", userID),
		zap.String("amount", amount))

	return &CheckoutResponse{
		OrderID:   order.ID,
		Amount:    amount,
		Currency:  currency,
		Addresses: s.addresses,
		ExpiresAt: order.ExpiresAt,
	}, nil
}

// OrderInfo is the static view of an order shown on the payment page.
type OrderInfo struct {
	OrderID   string         `json:"order_id"`
	Amount    string         `json:"amount"`
	Currency  string         `json:"currency"`
	Addresses ChainAddresses `json:"addresses"`
	CreatedAt time.Time      `json:"created_at"`
	ExpiresAt time.Time      `json:"expires_at"`
}

// GetOrderInfo returns the payment details of an order owned by userID.
// Every field is immutable for the order's lifetime, so the view is
// cached; the ownership check still hits the store on a cache miss only.
func (s *OrderService) GetOrderInfo(ctx context.Context, userID int64, orderID string) (*OrderInfo, error) {
	cacheKey := fmt.Sprintf("orderinfo:%d:%s", userID, orderID)
	if s.cache != nil {
		var cached OrderInfo
		if hit, err := s.cache.CacheGet(ctx, cacheKey, &cached); err == nil && hit {
			return &cached, nil
		}
	}

	order, err := s.store.GetCryptoOrderForUser(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}

	info := &OrderInfo{
		OrderID:   order.ID,
		Amount:    order.Amount,
		Currency:  order.Currency,
		Addresses: s.addresses,
		CreatedAt: order.CreatedAt,
		ExpiresAt: order.ExpiresAt,
	}

	if s.cache != nil {
		if ttl := time.Until(order.ExpiresAt); ttl > 0 {
			if err := s.cache.CacheSet(ctx, cacheKey, info, ttl); err != nil {
				s.logger.Warn("Failed to cache order info", zap.Error(err))
			}
		}
	}
	return info, nil
}

// ListOrders returns the caller's orders, newest first.
func (s *OrderService) ListOrders(ctx context.Context, userID int64) ([]models.CryptoOrder, error) {
	return s.store.GetCryptoOrdersByUserID(ctx, userID)
}

// CheckPaymentResult reports the order state after one reconciliation
// pass. Failures are always a state label plus a next step, never an
// error crossing the HTTP boundary.
type CheckPaymentResult struct {
	Status      string `json:"status"`
	TxHash      string `json:"tx_hash,omitempty"`
	RedirectURL string `json:"redirect_url,omitempty"`
}

// CheckPayment drives one poll cycle: short-circuit terminal states,
// lazily flip a past-deadline order to expired before any chain work,
// then race the chain matchers and, on a match, attempt the guarded
// completion. Losing either guard never re-runs fulfillment.
func (s *OrderService) CheckPayment(ctx context.Context, userID int64, orderID string) (*CheckPaymentResult, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CheckPayment")
	defer span.End()

	order, err := s.store.GetCryptoOrderForUser(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}

	switch order.Status {
	case models.OrderStatusCompleted:
		return s.completedResult(order.TxHash.String), nil
	case models.OrderStatusExpired:
		return &CheckPaymentResult{Status: models.OrderStatusExpired}, nil
	}

	// Deadline re-check before touching the chain matchers.
	if order.Expired(time.Now()) {
		return s.expireLazily(ctx, order)
	}

	match, err := s.arbiter.FindMatchingTransfer(ctx, order.Amount, order.CreatedAt)
	if err != nil || match == nil {
		return &CheckPaymentResult{Status: models.OrderStatusPending}, nil
	}

	// Non-reuse check: a transfer already credited to another order must
	// never credit this one, no matter what amount it carried.
	claimed, err := s.store.TxHashClaimed(ctx, match.TxHash, order.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check transaction reuse: %w", err)
	}
	if claimed {
		s.reportTxConflict(order, match.TxHash)
		return &CheckPaymentResult{Status: models.OrderStatusPending}, nil
	}

	return s.complete(ctx, order, match.TxHash, match.Chain)
}

// complete runs the guarded transition and dispatches fulfillment exactly
// once: only the caller whose conditional update touched the row gets
// here with a nil error.
func (s *OrderService) complete(ctx context.Context, order *models.CryptoOrder, txHash, chainName string) (*CheckPaymentResult, error) {
	err := s.store.CompleteCryptoOrder(ctx, order.ID, txHash, chainName)
	switch {
	case errors.Is(err, store.ErrTxHashClaimed):
		s.reportTxConflict(order, txHash)
		return &CheckPaymentResult{Status: models.OrderStatusPending}, nil

	case errors.Is(err, store.ErrOrderNotPending):
		// Lost the race; report whatever terminal state won.
		current, gerr := s.store.GetCryptoOrder(ctx, order.ID)
		if gerr != nil {
			return nil, gerr
		}
		if current.Status == models.OrderStatusCompleted {
			return s.completedResult(current.TxHash.String), nil
		}
		return &CheckPaymentResult{Status: current.Status}, nil

	case err != nil:
		return nil, err
	}

	util.CryptoOrdersCompletedTotal.WithLabelValues(chainName).Inc()
	s.logger.Info("Crypto order completed",
		zap.String("order_id", order.ID),
		zap.String("tx_hash", txHash),
		zap.String("chain", chainName))

	if err := s.fulfillment.Grant(ctx, &GrantRequest{
		UserID:            order.UserID,
		Target:            order.Target,
		Provider:          models.ProviderCrypto,
		ProviderPaymentID: txHash,
		Amount:            order.Amount,
		Currency:          order.Currency,
	}); err != nil {
		// The order is already completed; fulfillment is idempotent and
		// an admin can re-drive it from the completed order.
		s.logger.Error("Fulfillment failed after completion",
			zap.String("order_id", order.ID),
			zap.Error(err))
	}

	return s.completedResult(txHash), nil
}

func (s *OrderService) expireLazily(ctx context.Context, order *models.CryptoOrder) (*CheckPaymentResult, error) {
	flipped, err := s.store.ExpireCryptoOrder(ctx, order.ID)
	if err != nil {
		return nil, err
	}

	if !flipped {
		// Someone else moved the order first; it may have completed in
		// the final moment.
		current, err := s.store.GetCryptoOrder(ctx, order.ID)
		if err != nil {
			return nil, err
		}
		if current.Status == models.OrderStatusCompleted {
			return s.completedResult(current.TxHash.String), nil
		}
		return &CheckPaymentResult{Status: models.OrderStatusExpired}, nil
	}

	util.CryptoOrdersExpiredTotal.Inc()
	event := &models.OrderExpiredEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderExpired,
			Timestamp: time.Now(),
		},
		OrderID: order.ID,
		UserID:  order.UserID,
		Target:  order.Target,
	}
	if err := s.publisher.PublishOrderExpired(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderExpired event", zap.Error(err))
	}

	return &CheckPaymentResult{Status: models.OrderStatusExpired}, nil
}

// AdminCompleteOrder is the manual override: an administrator confirms a
// payment with an explicit transaction reference. It walks the exact same
// non-reuse check and guarded transition as the poller. On an order that
// is already completed it re-drives fulfillment instead: every write in
// Grant is idempotent, so this is a no-op when the original dispatch
// landed and the recovery path when it failed after completion.
func (s *OrderService) AdminCompleteOrder(ctx context.Context, orderID, txHash, chainName string) (*CheckPaymentResult, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.AdminCompleteOrder")
	defer span.End()

	order, err := s.store.GetCryptoOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if order.Status != models.OrderStatusPending {
		if order.Status == models.OrderStatusCompleted {
			if err := s.fulfillment.Grant(ctx, &GrantRequest{
				UserID:            order.UserID,
				Target:            order.Target,
				Provider:          models.ProviderCrypto,
				ProviderPaymentID: order.TxHash.String,
				Amount:            order.Amount,
				Currency:          order.Currency,
			}); err != nil {
				return nil, fmt.Errorf("failed to re-drive fulfillment: %w", err)
			}
			return s.completedResult(order.TxHash.String), nil
		}
		return &CheckPaymentResult{Status: order.Status}, nil
	}

	claimed, err := s.store.TxHashClaimed(ctx, txHash, order.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check transaction reuse: %w", err)
	}
	if claimed {
		s.reportTxConflict(order, txHash)
		return nil, store.ErrTxHashClaimed
	}

	return s.complete(ctx, order, txHash, chainName)
}

// AdminExpireOrder is an explicit administrator rejection of a pending
// order, regardless of deadline.
func (s *OrderService) AdminExpireOrder(ctx context.Context, orderID string) (*CheckPaymentResult, error) {
	flipped, err := s.store.AdminExpireCryptoOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !flipped {
		current, err := s.store.GetCryptoOrder(ctx, orderID)
		if err != nil {
			return nil, err
		}
		return &CheckPaymentResult{Status: current.Status}, nil
	}

	util.CryptoOrdersExpiredTotal.Inc()
	return &CheckPaymentResult{Status: models.OrderStatusExpired}, nil
}

func (s *OrderService) completedResult(txHash string) *CheckPaymentResult {
	return &CheckPaymentResult{
		Status:      models.OrderStatusCompleted,
		TxHash:      txHash,
		RedirectURL: s.redirectURL,
	}
}

// reportTxConflict logs a cross-order transaction reuse for manual
// review. The order stays pending and expires normally; the wrong order
// is never credited silently.
func (s *OrderService) reportTxConflict(order *models.CryptoOrder, txHash string) {
	util.TxHashConflictsTotal.Inc()
	s.logger.Warn("Transaction hash already claimed by another order",
		zap.String("order_id", order.ID),
		zap.Int64("user_id", order.UserID),
		zap.String("tx_hash", txHash))
}
