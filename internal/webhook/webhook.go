package webhook

import (
	"encoding/json"
	"errors"
)

// ErrBadSignature is returned by both verifiers when the provider
// signature does not authenticate the request. Handlers respond 401 and
// never parse the payload.
var ErrBadSignature = errors.New("webhook signature verification failed")

// ConfirmedPayment is the normalized "payment succeeded" event both
// ingestors hand to the reconciliation core.
type ConfirmedPayment struct {
	// EventID is the provider-qualified external event id. It keys the
	// dedup log.
	EventID           string
	Provider          string
	EventType         string
	ProviderPaymentID string
	UserID            int64
	Target            string
	Amount            string
	Currency          string
	Raw               json.RawMessage
}
