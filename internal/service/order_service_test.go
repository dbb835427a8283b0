package service

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"payment-service/internal/chain"
	"payment-service/internal/models"
	"payment-service/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRedirectURL = "https://courses.example.com/dashboard"

type orderHarness struct {
	orders    *memOrderStore
	fulfill   *memFulfillStore
	finder    *fakeFinder
	publisher *fakePublisher
	svc       *OrderService
}

func newOrderHarness() *orderHarness {
	orders := newMemOrderStore()
	fulfill := newMemFulfillStore()
	finder := &fakeFinder{}
	publisher := &fakePublisher{}

	catalog := NewStaticCatalog(
		map[string]int64{"basic": 4900, "pro": 14900, "lifetime": 29900},
		2900, "USDT",
	)
	fulfillment := NewFulfillmentService(fulfill, publisher, "lifetime")

	svc := NewOrderService(
		orders, finder, fulfillment, publisher, catalog, nil,
		ChainAddresses{BSC: "0xwallet", Solana: "SolWallet"},
		time.Hour, testRedirectURL,
	)
	return &orderHarness{orders: orders, fulfill: fulfill, finder: finder, publisher: publisher, svc: svc}
}

func pendingOrder(id string, userID int64, amount string) *models.CryptoOrder {
	now := time.Now()
	return &models.CryptoOrder{
		ID:        id,
		UserID:    userID,
		Target:    "course:101",
		Amount:    amount,
		Currency:  "USDT",
		Status:    models.OrderStatusPending,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
}

func TestCreateCheckoutMintsDisambiguatedAmount(t *testing.T) {
	h := newOrderHarness()

	resp, err := h.svc.CreateCheckout(context.Background(), 42, "tier:pro")
	require.NoError(t, err)

	assert.NotEmpty(t, resp.OrderID)
	assert.Equal(t, "USDT", resp.Currency)
	assert.Equal(t, "0xwallet", resp.Addresses.BSC)
	assert.WithinDuration(t, time.Now().Add(time.Hour), resp.ExpiresAt, 5*time.Second)

	// The amount is the tier base plus a cent offset in [0.01, 0.97].
	parts := strings.SplitN(resp.Amount, ".", 2)
	require.Len(t, parts, 2)
	whole, _ := strconv.ParseInt(parts[0], 10, 64)
	frac, _ := strconv.ParseInt(parts[1], 10, 64)
	cents := whole*100 + frac
	assert.Greater(t, cents, int64(14900))
	assert.Less(t, cents, int64(14998))

	stored, err := h.orders.GetCryptoOrder(context.Background(), resp.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, stored.Status)
	assert.Equal(t, resp.Amount, stored.Amount)
}

func TestCreateCheckoutRejectsBadTargets(t *testing.T) {
	h := newOrderHarness()

	_, err := h.svc.CreateCheckout(context.Background(), 42, "course:abc")
	assert.Error(t, err)

	_, err = h.svc.CreateCheckout(context.Background(), 42, "tier:platinum")
	assert.Error(t, err)

	_, err = h.svc.CreateCheckout(context.Background(), 42, "bundle:3")
	assert.Error(t, err)
}

func TestCheckPaymentCompletesOnMatch(t *testing.T) {
	h := newOrderHarness()
	h.orders.put(pendingOrder("order-1", 42, "30.42"))
	h.finder.match = &chain.Match{TxHash: "0xabc", Sender: "0xpayer", Chain: models.ChainBSC}

	result, err := h.svc.CheckPayment(context.Background(), 42, "order-1")
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusCompleted, result.Status)
	assert.Equal(t, "0xabc", result.TxHash)
	assert.Equal(t, testRedirectURL, result.RedirectURL)

	stored, _ := h.orders.GetCryptoOrder(context.Background(), "order-1")
	assert.Equal(t, models.OrderStatusCompleted, stored.Status)
	assert.Equal(t, "0xabc", stored.TxHash.String)
	assert.Equal(t, models.ChainBSC, stored.Chain.String)

	assert.Equal(t, 1, h.fulfill.enrollments[[2]int64{42, 101}])
	assert.Equal(t, 1, h.fulfill.ledger["crypto|0xabc"])
	assert.Len(t, h.publisher.confirmed, 1)
}

func TestCheckPaymentStaysPendingWithoutMatch(t *testing.T) {
	h := newOrderHarness()
	h.orders.put(pendingOrder("order-1", 42, "30.42"))

	result, err := h.svc.CheckPayment(context.Background(), 42, "order-1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, result.Status)
	assert.Empty(t, result.TxHash)
	assert.Equal(t, 0, h.fulfill.grantCount())
}

func TestCheckPaymentShortCircuitsTerminalStates(t *testing.T) {
	h := newOrderHarness()

	completed := pendingOrder("order-done", 42, "30.42")
	completed.Status = models.OrderStatusCompleted
	completed.TxHash = sql.NullString{String: "0xdone", Valid: true}
	h.orders.put(completed)

	expired := pendingOrder("order-gone", 42, "30.43")
	expired.Status = models.OrderStatusExpired
	h.orders.put(expired)

	result, err := h.svc.CheckPayment(context.Background(), 42, "order-done")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, result.Status)
	assert.Equal(t, "0xdone", result.TxHash)

	result, err = h.svc.CheckPayment(context.Background(), 42, "order-gone")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusExpired, result.Status)

	// Terminal orders never reach the chain matchers.
	assert.Equal(t, 0, h.finder.callCount())
}

func TestCheckPaymentExpiresPastDeadline(t *testing.T) {
	h := newOrderHarness()
	order := pendingOrder("order-late", 42, "30.42")
	order.CreatedAt = time.Now().Add(-2 * time.Hour)
	order.ExpiresAt = time.Now().Add(-time.Hour)
	h.orders.put(order)
	h.finder.match = &chain.Match{TxHash: "0xabc", Chain: models.ChainBSC}

	result, err := h.svc.CheckPayment(context.Background(), 42, "order-late")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusExpired, result.Status)

	// The deadline check runs before any chain work, so even a transfer
	// that would have matched is never seen.
	assert.Equal(t, 0, h.finder.callCount())
	assert.Equal(t, 0, h.fulfill.grantCount())
	assert.Len(t, h.publisher.expired, 1)

	stored, _ := h.orders.GetCryptoOrder(context.Background(), "order-late")
	assert.Equal(t, models.OrderStatusExpired, stored.Status)
}

func TestCheckPaymentIgnoresClaimedTxHash(t *testing.T) {
	h := newOrderHarness()

	winner := pendingOrder("order-winner", 7, "30.42")
	winner.Status = models.OrderStatusCompleted
	winner.TxHash = sql.NullString{String: "0xclaimed", Valid: true}
	h.orders.put(winner)

	h.orders.put(pendingOrder("order-2", 42, "30.42"))
	h.finder.match = &chain.Match{TxHash: "0xclaimed", Chain: models.ChainBSC}

	result, err := h.svc.CheckPayment(context.Background(), 42, "order-2")
	require.NoError(t, err)

	// The reused transfer must not credit this order; it stays pending
	// and will expire normally.
	assert.Equal(t, models.OrderStatusPending, result.Status)
	assert.Equal(t, 0, h.fulfill.grantCount())

	stored, _ := h.orders.GetCryptoOrder(context.Background(), "order-2")
	assert.Equal(t, models.OrderStatusPending, stored.Status)
	assert.False(t, stored.TxHash.Valid)
}

func TestConcurrentChecksFulfillOnce(t *testing.T) {
	h := newOrderHarness()
	h.orders.put(pendingOrder("order-1", 42, "30.42"))
	h.finder.match = &chain.Match{TxHash: "0xabc", Chain: models.ChainBSC}

	const pollers = 16
	results := make([]*CheckPaymentResult, pollers)
	var wg sync.WaitGroup
	for i := 0; i < pollers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := h.svc.CheckPayment(context.Background(), 42, "order-1")
			assert.NoError(t, err)
			results[i] = result
		}(i)
	}
	wg.Wait()

	// Every poller converges on the completed state, but exactly one of
	// them drove fulfillment.
	for _, result := range results {
		assert.Equal(t, models.OrderStatusCompleted, result.Status)
		assert.Equal(t, "0xabc", result.TxHash)
	}
	assert.Equal(t, 1, h.fulfill.enrollments[[2]int64{42, 101}])
	assert.Equal(t, 1, h.fulfill.ledger["crypto|0xabc"])
	assert.Len(t, h.publisher.confirmed, 1)
}

func TestAdminCompleteOrder(t *testing.T) {
	h := newOrderHarness()
	h.orders.put(pendingOrder("order-1", 42, "30.42"))

	result, err := h.svc.AdminCompleteOrder(context.Background(), "order-1", "0xmanual", models.ChainSolana)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, result.Status)
	assert.Equal(t, "0xmanual", result.TxHash)
	assert.Equal(t, 1, h.fulfill.grantCount())

	// Re-running the override re-drives the idempotent dispatcher: the
	// upsert repeats but the ledger keeps a single row per payment.
	result, err = h.svc.AdminCompleteOrder(context.Background(), "order-1", "0xmanual", models.ChainSolana)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, result.Status)
	assert.Equal(t, "0xmanual", result.TxHash)
	assert.Len(t, h.fulfill.ledgerRows, 1)
}

func TestAdminCompleteRecoversFailedFulfillment(t *testing.T) {
	h := newOrderHarness()
	h.orders.put(pendingOrder("order-1", 42, "30.42"))
	h.finder.match = &chain.Match{TxHash: "0xabc", Chain: models.ChainBSC}
	h.fulfill.enrollErr = errors.New("enrollments table unavailable")

	// The guarded completion wins but the grant fails: the order lands in
	// completed with no entitlement.
	result, err := h.svc.CheckPayment(context.Background(), 42, "order-1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, result.Status)
	assert.Equal(t, 0, h.fulfill.enrollments[[2]int64{42, 101}])

	// Polling again short-circuits on the terminal state and cannot help.
	result, err = h.svc.CheckPayment(context.Background(), 42, "order-1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, result.Status)
	assert.Equal(t, 0, h.fulfill.enrollments[[2]int64{42, 101}])

	// The admin override on the completed order re-drives fulfillment.
	result, err = h.svc.AdminCompleteOrder(context.Background(), "order-1", "0xabc", models.ChainBSC)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, result.Status)
	assert.Equal(t, "0xabc", result.TxHash)
	assert.Equal(t, 1, h.fulfill.enrollments[[2]int64{42, 101}])
	assert.Equal(t, 1, h.fulfill.ledger["crypto|0xabc"])
	assert.Len(t, h.publisher.confirmed, 1)
}

func TestAdminCompleteOrderRejectsClaimedTxHash(t *testing.T) {
	h := newOrderHarness()

	winner := pendingOrder("order-winner", 7, "30.42")
	winner.Status = models.OrderStatusCompleted
	winner.TxHash = sql.NullString{String: "0xclaimed", Valid: true}
	h.orders.put(winner)
	h.orders.put(pendingOrder("order-2", 42, "30.42"))

	_, err := h.svc.AdminCompleteOrder(context.Background(), "order-2", "0xclaimed", models.ChainBSC)
	assert.ErrorIs(t, err, store.ErrTxHashClaimed)
	assert.Equal(t, 0, h.fulfill.grantCount())
}

func TestAdminCompleteOrderNeverRevivesExpired(t *testing.T) {
	h := newOrderHarness()
	expired := pendingOrder("order-gone", 42, "30.42")
	expired.Status = models.OrderStatusExpired
	h.orders.put(expired)

	result, err := h.svc.AdminCompleteOrder(context.Background(), "order-gone", "0xlate", models.ChainBSC)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusExpired, result.Status)
	assert.Equal(t, 0, h.fulfill.grantCount())
}

func TestAdminExpireOrder(t *testing.T) {
	h := newOrderHarness()
	h.orders.put(pendingOrder("order-1", 42, "30.42"))

	result, err := h.svc.AdminExpireOrder(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusExpired, result.Status)

	completed := pendingOrder("order-done", 42, "30.43")
	completed.Status = models.OrderStatusCompleted
	h.orders.put(completed)

	result, err = h.svc.AdminExpireOrder(context.Background(), "order-done")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, result.Status)
}

// memInfoCache is a map-backed InfoCache.
type memInfoCache struct {
	mu      sync.Mutex
	entries map[string]OrderInfo
}

func (c *memInfoCache) CacheGet(ctx context.Context, key string, dest interface{}) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	info, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	*dest.(*OrderInfo) = info
	return true, nil
}

func (c *memInfoCache) CacheSet(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = *value.(*OrderInfo)
	return nil
}

func TestGetOrderInfoServesFromCache(t *testing.T) {
	h := newOrderHarness()
	cache := &memInfoCache{entries: make(map[string]OrderInfo)}
	h.svc.cache = cache
	h.orders.put(pendingOrder("order-1", 42, "30.42"))

	info, err := h.svc.GetOrderInfo(context.Background(), 42, "order-1")
	require.NoError(t, err)
	assert.Equal(t, "30.42", info.Amount)
	assert.Equal(t, "0xwallet", info.Addresses.BSC)

	// Later store mutations are invisible: every cached field is
	// immutable for the order's lifetime.
	mutated := pendingOrder("order-1", 42, "99.99")
	h.orders.put(mutated)

	info, err = h.svc.GetOrderInfo(context.Background(), 42, "order-1")
	require.NoError(t, err)
	assert.Equal(t, "30.42", info.Amount)
}

func TestGetOrderInfoEnforcesOwnership(t *testing.T) {
	h := newOrderHarness()
	h.orders.put(pendingOrder("order-1", 42, "30.42"))

	_, err := h.svc.GetOrderInfo(context.Background(), 99, "order-1")
	assert.ErrorIs(t, err, store.ErrOrderNotFound)
}
