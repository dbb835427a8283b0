package models

import (
	"database/sql"
	"encoding/json"
	"time"
)

// CryptoOrder is a pending request to pay a disambiguated amount for a
// specific entitlement target. Rows are never deleted; status only moves
// pending -> completed or pending -> expired.
type CryptoOrder struct {
	ID          string         `db:"id" json:"id"`
	UserID      int64          `db:"user_id" json:"user_id"`
	Target      string         `db:"target" json:"target"`
	Amount      string         `db:"amount" json:"amount"`
	Currency    string         `db:"currency" json:"currency"`
	Status      string         `db:"status" json:"status"`
	TxHash      sql.NullString `db:"tx_hash" json:"tx_hash,omitempty"`
	Chain       sql.NullString `db:"chain" json:"chain,omitempty"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	ExpiresAt   time.Time      `db:"expires_at" json:"expires_at"`
	CompletedAt sql.NullTime   `db:"completed_at" json:"completed_at,omitempty"`
}

// Expired reports whether the order deadline has passed. Readers must
// re-check this before treating a pending row as still active.
func (o *CryptoOrder) Expired(now time.Time) bool {
	return now.After(o.ExpiresAt)
}

// ExternalEvent is one row of the webhook dedup log. The primary key on
// EventID is the dedup mechanism: an insert that conflicts means the
// event was already handled.
type ExternalEvent struct {
	EventID    string          `db:"event_id" json:"event_id"`
	Provider   string          `db:"provider" json:"provider"`
	EventType  string          `db:"event_type" json:"event_type"`
	Payload    json.RawMessage `db:"payload" json:"payload"`
	ReceivedAt time.Time       `db:"received_at" json:"received_at"`
}

// PaymentTransaction is an immutable ledger row, one per confirmed
// payment regardless of rail. Unique on (provider, provider_payment_id).
type PaymentTransaction struct {
	ID                int64           `db:"id" json:"id"`
	Provider          string          `db:"provider" json:"provider"`
	ProviderPaymentID string          `db:"provider_payment_id" json:"provider_payment_id"`
	UserID            int64           `db:"user_id" json:"user_id"`
	Target            string          `db:"target" json:"target"`
	Amount            string          `db:"amount" json:"amount"`
	Currency          string          `db:"currency" json:"currency"`
	Status            string          `db:"status" json:"status"`
	Metadata          json.RawMessage `db:"metadata" json:"metadata,omitempty"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
}

// Enrollment grants a user access to a single course. Unique on
// (user_id, course_id) so repeated grants are no-ops.
type Enrollment struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	CourseID  int64     `db:"course_id" json:"course_id"`
	Source    string    `db:"source" json:"source"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// TierPurchase grants a user a course tier. Unique on (user_id, tier).
type TierPurchase struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	Tier      string    `db:"tier" json:"tier"`
	Source    string    `db:"source" json:"source"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Scholarship is a donated seat waiting in the scholarship pool. The
// pool's FIFO matching lives in a separate service; this service only
// seeds rows.
type Scholarship struct {
	ID          int64     `db:"id" json:"id"`
	DonorUserID int64     `db:"donor_user_id" json:"donor_user_id"`
	Status      string    `db:"status" json:"status"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Order statuses
const (
	OrderStatusPending   = "pending"
	OrderStatusCompleted = "completed"
	OrderStatusExpired   = "expired"
)

// Payment providers
const (
	ProviderCrypto     = "crypto"
	ProviderBinancePay = "binancepay"
	ProviderWalletPay  = "walletpay"
	ProviderAdmin      = "admin"
)

// Chains
const (
	ChainBSC    = "bsc"
	ChainSolana = "solana"
)

// Payment transaction statuses
const (
	PaymentStatusSuccess = "success"
)

// Scholarship statuses
const (
	ScholarshipStatusAvailable = "available"
)
