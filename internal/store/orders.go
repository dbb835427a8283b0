package store

import (
	"context"
	"database/sql"
	"fmt"

	"payment-service/internal/models"
)

// CreateCryptoOrder inserts a new pending order.
func (s *Store) CreateCryptoOrder(ctx context.Context, order *models.CryptoOrder) error {
	query := `
		INSERT INTO crypto_orders (id, user_id, target, amount, currency, status, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`

	return s.db.GetContext(ctx, &order.CreatedAt, query,
		order.ID, order.UserID, order.Target, order.Amount, order.Currency, order.Status, order.ExpiresAt)
}

// GetCryptoOrder retrieves an order by ID.
func (s *Store) GetCryptoOrder(ctx context.Context, id string) (*models.CryptoOrder, error) {
	var order models.CryptoOrder
	err := s.db.GetContext(ctx, &order, "SELECT * FROM crypto_orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetCryptoOrderForUser retrieves an order owned by the given user.
func (s *Store) GetCryptoOrderForUser(ctx context.Context, id string, userID int64) (*models.CryptoOrder, error) {
	var order models.CryptoOrder
	err := s.db.GetContext(ctx, &order,
		"SELECT * FROM crypto_orders WHERE id = $1 AND user_id = $2", id, userID)
	if err == sql.ErrNoRows {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// CompleteCryptoOrder flips a pending order to completed and records the
// matched transaction. The WHERE clause on status is the guard: when two
// callers race, exactly one update touches a row and the loser gets
// ErrOrderNotPending. A unique index on tx_hash rejects a hash already
// claimed by a different order with ErrTxHashClaimed.
func (s *Store) CompleteCryptoOrder(ctx context.Context, id, txHash, chain string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE crypto_orders
		SET status = $1, tx_hash = $2, chain = $3, completed_at = NOW()
		WHERE id = $4 AND status = $5`,
		models.OrderStatusCompleted, txHash, chain, id, models.OrderStatusPending)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrTxHashClaimed
		}
		return fmt.Errorf("failed to complete order: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrOrderNotPending
	}
	return nil
}

// ExpireCryptoOrder flips a pending order past its deadline to expired.
// Returns true when this call performed the transition.
func (s *Store) ExpireCryptoOrder(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE crypto_orders
		SET status = $1
		WHERE id = $2 AND status = $3 AND expires_at < NOW()`,
		models.OrderStatusExpired, id, models.OrderStatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to expire order: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// AdminExpireCryptoOrder expires a pending order regardless of deadline
// (explicit administrator rejection).
func (s *Store) AdminExpireCryptoOrder(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE crypto_orders
		SET status = $1
		WHERE id = $2 AND status = $3`,
		models.OrderStatusExpired, id, models.OrderStatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to expire order: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// TxHashClaimed reports whether another order already recorded this
// transaction hash.
func (s *Store) TxHashClaimed(ctx context.Context, txHash, excludeOrderID string) (bool, error) {
	var claimed bool
	err := s.db.GetContext(ctx, &claimed,
		"SELECT EXISTS(SELECT 1 FROM crypto_orders WHERE tx_hash = $1 AND id <> $2)",
		txHash, excludeOrderID)
	return claimed, err
}

// ListPendingAmounts returns the amounts of currently pending orders for a
// target currency, for best-effort collision avoidance when minting a new
// disambiguated amount.
func (s *Store) ListPendingAmounts(ctx context.Context, currency string) ([]string, error) {
	var amounts []string
	err := s.db.SelectContext(ctx, &amounts, `
		SELECT amount FROM crypto_orders
		WHERE currency = $1 AND status = $2 AND expires_at > NOW()`,
		currency, models.OrderStatusPending)
	return amounts, err
}

// GetCryptoOrdersByUserID retrieves orders for a user, newest first.
func (s *Store) GetCryptoOrdersByUserID(ctx context.Context, userID int64) ([]models.CryptoOrder, error) {
	var orders []models.CryptoOrder
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM crypto_orders WHERE user_id = $1 ORDER BY created_at DESC", userID)
	return orders, err
}
