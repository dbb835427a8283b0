package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"payment-service/internal/util"

	"go.uber.org/zap"
)

const bscPageSize = 50

// BscMatcher finds BEP-20 token transfers into the platform wallet via a
// block-explorer style account API.
type BscMatcher struct {
	apiURL        string
	apiKey        string
	walletAddress string
	tokenContract string
	tokenDecimals int
	client        *http.Client
	logger        *zap.Logger
}

// NewBscMatcher creates a BSC matcher. The client timeout bounds each
// poll-cycle call so a slow explorer cannot stall the polling endpoint.
func NewBscMatcher(apiURL, apiKey, walletAddress, tokenContract string, tokenDecimals int, timeout time.Duration) *BscMatcher {
	return &BscMatcher{
		apiURL:        apiURL,
		apiKey:        apiKey,
		walletAddress: strings.ToLower(walletAddress),
		tokenContract: tokenContract,
		tokenDecimals: tokenDecimals,
		client:        &http.Client{Timeout: timeout},
		logger:        util.GetLogger(),
	}
}

type bscTokenTx struct {
	Hash      string `json:"hash"`
	From      string `json:"from"`
	To        string `json:"to"`
	Value     string `json:"value"`
	TimeStamp string `json:"timeStamp"`
}

type bscTokenTxResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// FindTransfer scans the most recent incoming token transfers for an
// exact raw-amount match. Errors are reported as "no match yet".
func (m *BscMatcher) FindTransfer(ctx context.Context, expectedAmount string, since time.Time) (*Match, error) {
	expectedRaw, err := ToRawAmount(expectedAmount, m.tokenDecimals)
	if err != nil {
		m.logger.Error("Invalid expected amount", zap.String("amount", expectedAmount), zap.Error(err))
		return nil, nil
	}

	txs, err := m.fetchRecentTransfers(ctx)
	if err != nil {
		util.ChainQueriesTotal.WithLabelValues("bsc", "error").Inc()
		m.logger.Warn("BSC transfer query failed", zap.Error(err))
		return nil, nil
	}

	for _, tx := range txs {
		if strings.ToLower(tx.To) != m.walletAddress {
			continue
		}

		ts, err := strconv.ParseInt(tx.TimeStamp, 10, 64)
		if err != nil || ts < since.Unix() {
			continue
		}

		raw, err := ToRawAmount(tx.Value, 0)
		if err != nil {
			continue
		}
		if raw.Cmp(expectedRaw) != 0 {
			continue
		}

		util.ChainQueriesTotal.WithLabelValues("bsc", "match").Inc()
		return &Match{TxHash: tx.Hash, Sender: tx.From, Chain: "bsc"}, nil
	}

	util.ChainQueriesTotal.WithLabelValues("bsc", "no_match").Inc()
	return nil, nil
}

func (m *BscMatcher) fetchRecentTransfers(ctx context.Context) ([]bscTokenTx, error) {
	params := url.Values{}
	params.Set("module", "account")
	params.Set("action", "tokentx")
	params.Set("contractaddress", m.tokenContract)
	params.Set("address", m.walletAddress)
	params.Set("page", "1")
	params.Set("offset", strconv.Itoa(bscPageSize))
	params.Set("sort", "desc")
	params.Set("apikey", m.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.apiURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("explorer returned status %d", resp.StatusCode)
	}

	var envelope bscTokenTxResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode explorer response: %w", err)
	}

	// The explorer reports "No transactions found" with status 0 and a
	// string result; that is an empty page, not an error.
	if envelope.Status != "1" {
		return nil, nil
	}

	var txs []bscTokenTx
	if err := json.Unmarshal(envelope.Result, &txs); err != nil {
		return nil, fmt.Errorf("unexpected explorer result: %w", err)
	}
	return txs, nil
}
