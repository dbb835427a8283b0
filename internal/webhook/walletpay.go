package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// WalletPay delivers its signature in a composite Webhook-Signature
// header of the form "t=<unix>,v1=<hex>". The signed manifest is built
// from a fixed template over the id query parameter, the X-Request-ID
// header and the timestamp, and the MAC is HMAC-SHA256.
const (
	WalletPayEventChargeCompleted = "charge.completed"

	walletPayTimestampTolerance = 5 * time.Minute
)

type WalletPayVerifier struct {
	secret []byte
	now    func() time.Time
}

func NewWalletPayVerifier(secret string) *WalletPayVerifier {
	return &WalletPayVerifier{secret: []byte(secret), now: time.Now}
}

// Verify authenticates a delivery. The timestamp is part of the signed
// manifest, so a stale one is rejected to bound replay.
func (v *WalletPayVerifier) Verify(signatureHeader, id, requestID string) error {
	ts, sig, err := parseSignatureHeader(signatureHeader)
	if err != nil {
		return ErrBadSignature
	}

	tsUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ErrBadSignature
	}
	skew := v.now().Sub(time.Unix(tsUnix, 0))
	if skew > walletPayTimestampTolerance || skew < -walletPayTimestampTolerance {
		return ErrBadSignature
	}

	manifest := fmt.Sprintf("id:%s|rid:%s|ts:%s", id, requestID, ts)
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(manifest))
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(sig))) {
		return ErrBadSignature
	}
	return nil
}

// parseSignatureHeader splits "t=...,v1=..." into its parts.
func parseSignatureHeader(header string) (ts, sig string, err error) {
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			ts = value
		case "v1":
			sig = value
		}
	}
	if ts == "" || sig == "" {
		return "", "", fmt.Errorf("malformed signature header")
	}
	return ts, sig, nil
}

type walletPayEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference string      `json:"reference"`
		Amount    json.Number `json:"amount"`
		Currency  string      `json:"currency"`
		Customer  struct {
			ID int64 `json:"id"`
		} `json:"customer"`
		Meta struct {
			Target string `json:"target"`
		} `json:"meta"`
	} `json:"data"`
}

// ParseEvent decodes a verified delivery body. Only charge.completed is
// actionable; everything else is acknowledged and dropped.
func (v *WalletPayVerifier) ParseEvent(id string, body []byte) (*ConfirmedPayment, bool, error) {
	var e walletPayEvent
	if err := json.Unmarshal(body, &e); err != nil {
		return nil, false, fmt.Errorf("failed to parse event body: %w", err)
	}

	if e.Event != WalletPayEventChargeCompleted {
		return nil, false, nil
	}

	if e.Data.Customer.ID == 0 || e.Data.Meta.Target == "" {
		return nil, false, fmt.Errorf("event missing purchase context")
	}

	return &ConfirmedPayment{
		EventID:           "walletpay:" + id,
		Provider:          "walletpay",
		EventType:         e.Event,
		ProviderPaymentID: e.Data.Reference,
		UserID:            e.Data.Customer.ID,
		Target:            e.Data.Meta.Target,
		Amount:            e.Data.Amount.String(),
		Currency:          e.Data.Currency,
		Raw:               json.RawMessage(body),
	}, true, nil
}
