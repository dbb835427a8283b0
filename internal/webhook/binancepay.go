package webhook

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// Binance Pay delivers notifications with BinancePay-Timestamp,
// BinancePay-Nonce and BinancePay-Signature headers. The signed payload
// is "timestamp\nnonce\nbody\n" and the signature is uppercase hex
// HMAC-SHA512 with the merchant secret key.
const (
	BinancePayStatusSuccess = "PAY_SUCCESS"
	binancePayBizType       = "PAY"
)

type BinancePayVerifier struct {
	secret []byte
}

func NewBinancePayVerifier(secret string) *BinancePayVerifier {
	return &BinancePayVerifier{secret: []byte(secret)}
}

// Verify authenticates a notification. Comparison is constant time.
func (v *BinancePayVerifier) Verify(timestamp, nonce, signature string, body []byte) error {
	if timestamp == "" || nonce == "" || signature == "" {
		return ErrBadSignature
	}

	payload := timestamp + "\n" + nonce + "\n" + string(body) + "\n"
	mac := hmac.New(sha512.New, v.secret)
	mac.Write([]byte(payload))
	expected := strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))

	if !hmac.Equal([]byte(expected), []byte(strings.ToUpper(signature))) {
		return ErrBadSignature
	}
	return nil
}

type binancePayNotification struct {
	BizType   string      `json:"bizType"`
	BizID     json.Number `json:"bizId"`
	BizStatus string      `json:"bizStatus"`
	// Data is a JSON string, not an object; it needs a second parse.
	Data string `json:"data"`
}

type binancePayOrderData struct {
	MerchantTradeNo string      `json:"merchantTradeNo"`
	OrderAmount     json.Number `json:"orderAmount"`
	Currency        string      `json:"currency"`
	// PassThroughInfo carries the checkout context we attached when the
	// order was created, again as a JSON string.
	PassThroughInfo string `json:"passThroughInfo"`
}

type binancePayPassThrough struct {
	UserID int64  `json:"user_id"`
	Target string `json:"target"`
}

// ParseNotification decodes a verified notification body into the
// normalized event. A notification whose type is not an actionable
// payment success is returned with actionable=false; the caller still
// acknowledges it, because the provider retries on anything but success.
func (v *BinancePayVerifier) ParseNotification(body []byte) (*ConfirmedPayment, bool, error) {
	var n binancePayNotification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, false, fmt.Errorf("failed to parse notification envelope: %w", err)
	}

	if n.BizType != binancePayBizType || n.BizStatus != BinancePayStatusSuccess {
		return nil, false, nil
	}

	var data binancePayOrderData
	if err := json.Unmarshal([]byte(n.Data), &data); err != nil {
		return nil, false, fmt.Errorf("failed to parse notification data: %w", err)
	}

	var pt binancePayPassThrough
	if data.PassThroughInfo != "" {
		if err := json.Unmarshal([]byte(data.PassThroughInfo), &pt); err != nil {
			return nil, false, fmt.Errorf("failed to parse pass-through info: %w", err)
		}
	}
	if pt.UserID == 0 || pt.Target == "" {
		return nil, false, fmt.Errorf("notification missing purchase context")
	}

	return &ConfirmedPayment{
		EventID:           "binancepay:" + n.BizID.String(),
		Provider:          "binancepay",
		EventType:         n.BizStatus,
		ProviderPaymentID: data.MerchantTradeNo,
		UserID:            pt.UserID,
		Target:            pt.Target,
		Amount:            data.OrderAmount.String(),
		Currency:          data.Currency,
		Raw:               json.RawMessage(body),
	}, true, nil
}
