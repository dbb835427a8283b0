package service

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"payment-service/internal/chain"
	"payment-service/internal/models"
	"payment-service/internal/store"
)

// memOrderStore mirrors the store's guarded transition semantics in
// memory: completion only succeeds from pending, and a transaction hash
// can back at most one completed order.
type memOrderStore struct {
	mu     sync.Mutex
	orders map[string]*models.CryptoOrder

	completeCalls int
	expireCalls   int
}

func newMemOrderStore() *memOrderStore {
	return &memOrderStore{orders: make(map[string]*models.CryptoOrder)}
}

func (m *memOrderStore) put(order *models.CryptoOrder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *order
	m.orders[order.ID] = &cp
}

func (m *memOrderStore) CreateCryptoOrder(ctx context.Context, order *models.CryptoOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now()
	}
	cp := *order
	m.orders[order.ID] = &cp
	return nil
}

func (m *memOrderStore) GetCryptoOrder(ctx context.Context, id string) (*models.CryptoOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id]
	if !ok {
		return nil, store.ErrOrderNotFound
	}
	cp := *order
	return &cp, nil
}

func (m *memOrderStore) GetCryptoOrderForUser(ctx context.Context, id string, userID int64) (*models.CryptoOrder, error) {
	order, err := m.GetCryptoOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, store.ErrOrderNotFound
	}
	return order, nil
}

func (m *memOrderStore) CompleteCryptoOrder(ctx context.Context, id, txHash, chainName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completeCalls++

	for _, other := range m.orders {
		if other.ID != id && other.TxHash.Valid && other.TxHash.String == txHash {
			return store.ErrTxHashClaimed
		}
	}

	order, ok := m.orders[id]
	if !ok {
		return store.ErrOrderNotFound
	}
	if order.Status != models.OrderStatusPending {
		return store.ErrOrderNotPending
	}

	order.Status = models.OrderStatusCompleted
	order.TxHash = sql.NullString{String: txHash, Valid: true}
	order.Chain = sql.NullString{String: chainName, Valid: true}
	order.CompletedAt = sql.NullTime{Time: time.Now(), Valid: true}
	return nil
}

func (m *memOrderStore) ExpireCryptoOrder(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expireCalls++

	order, ok := m.orders[id]
	if !ok {
		return false, store.ErrOrderNotFound
	}
	if order.Status != models.OrderStatusPending || !order.Expired(time.Now()) {
		return false, nil
	}
	order.Status = models.OrderStatusExpired
	return true, nil
}

func (m *memOrderStore) AdminExpireCryptoOrder(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[id]
	if !ok {
		return false, store.ErrOrderNotFound
	}
	if order.Status != models.OrderStatusPending {
		return false, nil
	}
	order.Status = models.OrderStatusExpired
	return true, nil
}

func (m *memOrderStore) TxHashClaimed(ctx context.Context, txHash, excludeOrderID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, order := range m.orders {
		if order.ID != excludeOrderID && order.TxHash.Valid && order.TxHash.String == txHash {
			return true, nil
		}
	}
	return false, nil
}

func (m *memOrderStore) ListPendingAmounts(ctx context.Context, currency string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var amounts []string
	for _, order := range m.orders {
		if order.Status == models.OrderStatusPending && order.Currency == currency {
			amounts = append(amounts, order.Amount)
		}
	}
	return amounts, nil
}

func (m *memOrderStore) GetCryptoOrdersByUserID(ctx context.Context, userID int64) ([]models.CryptoOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var orders []models.CryptoOrder
	for _, order := range m.orders {
		if order.UserID == userID {
			orders = append(orders, *order)
		}
	}
	return orders, nil
}

// memEventStore is the dedup log keyed on event id.
type memEventStore struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func newMemEventStore() *memEventStore {
	return &memEventStore{seen: make(map[string]struct{})}
}

func (m *memEventStore) RecordEventOnce(ctx context.Context, event *models.ExternalEvent) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.seen[event.EventID]; dup {
		return false, nil
	}
	m.seen[event.EventID] = struct{}{}
	return true, nil
}

// memFulfillStore counts entitlement writes and keys the ledger the way
// the database does, on (provider, provider payment id).
type memFulfillStore struct {
	mu           sync.Mutex
	enrollments  map[[2]int64]int
	tiers        map[string]int
	scholarships int
	ledger       map[string]int
	ledgerRows   map[string]*models.PaymentTransaction

	scholarshipErr error
	enrollErr      error
}

func newMemFulfillStore() *memFulfillStore {
	return &memFulfillStore{
		enrollments: make(map[[2]int64]int),
		tiers:       make(map[string]int),
		ledger:      make(map[string]int),
		ledgerRows:  make(map[string]*models.PaymentTransaction),
	}
}

func (m *memFulfillStore) UpsertEnrollment(ctx context.Context, userID, courseID int64, source string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.enrollErr != nil {
		err := m.enrollErr
		m.enrollErr = nil
		return err
	}
	m.enrollments[[2]int64{userID, courseID}]++
	return nil
}

func (m *memFulfillStore) UpsertTierPurchase(ctx context.Context, userID int64, tier, source string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tiers[tier]++
	return nil
}

func (m *memFulfillStore) CreateScholarship(ctx context.Context, donorUserID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.scholarshipErr != nil {
		return m.scholarshipErr
	}
	m.scholarships++
	return nil
}

func (m *memFulfillStore) CreatePaymentTransaction(ctx context.Context, tx *models.PaymentTransaction) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := tx.Provider + "|" + tx.ProviderPaymentID
	m.ledger[key]++
	if m.ledger[key] == 1 {
		cp := *tx
		m.ledgerRows[key] = &cp
		return true, nil
	}
	return false, nil
}

func (m *memFulfillStore) GetPaymentTransaction(ctx context.Context, provider, providerPaymentID string) (*models.PaymentTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.ledgerRows[provider+"|"+providerPaymentID]
	if !ok {
		return nil, store.ErrPaymentNotFound
	}
	cp := *tx
	return &cp, nil
}

func (m *memFulfillStore) grantCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := m.scholarships
	for _, n := range m.enrollments {
		total += n
	}
	for _, n := range m.tiers {
		total += n
	}
	return total
}

// fakePublisher records published events.
type fakePublisher struct {
	mu        sync.Mutex
	confirmed []*models.PaymentConfirmedEvent
	expired   []*models.OrderExpiredEvent
}

func (p *fakePublisher) PublishPaymentConfirmed(ctx context.Context, event *models.PaymentConfirmedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.confirmed = append(p.confirmed, event)
	return nil
}

func (p *fakePublisher) PublishOrderExpired(ctx context.Context, event *models.OrderExpiredEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expired = append(p.expired, event)
	return nil
}

// fakeFinder returns a fixed match, or nothing.
type fakeFinder struct {
	mu    sync.Mutex
	match *chain.Match
	err   error
	calls int
}

func (f *fakeFinder) FindMatchingTransfer(ctx context.Context, expectedAmount string, since time.Time) (*chain.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.match, f.err
}

func (f *fakeFinder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
