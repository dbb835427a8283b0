package store

import (
	"context"
	"database/sql"
	"fmt"

	"payment-service/internal/models"
)

// CreatePaymentTransaction appends one immutable ledger row. The unique
// key on (provider, provider_payment_id) makes double invocation produce
// no duplicate rows; returns true when this call inserted the row.
func (s *Store) CreatePaymentTransaction(ctx context.Context, tx *models.PaymentTransaction) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO payment_transactions
			(provider, provider_payment_id, user_id, target, amount, currency, status, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (provider, provider_payment_id) DO NOTHING`,
		tx.Provider, tx.ProviderPaymentID, tx.UserID, tx.Target, tx.Amount, tx.Currency, tx.Status, tx.Metadata)
	if err != nil {
		return false, fmt.Errorf("failed to create payment transaction: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// GetPaymentTransaction retrieves a ledger row by its provider-side id.
func (s *Store) GetPaymentTransaction(ctx context.Context, provider, providerPaymentID string) (*models.PaymentTransaction, error) {
	var tx models.PaymentTransaction
	err := s.db.GetContext(ctx, &tx, `
		SELECT * FROM payment_transactions
		WHERE provider = $1 AND provider_payment_id = $2`,
		provider, providerPaymentID)
	if err == sql.ErrNoRows {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}
