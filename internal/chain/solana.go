package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"payment-service/internal/util"

	"go.uber.org/zap"
)

const solanaSignatureLimit = 20

// SolanaMatcher finds SPL token transfers into the platform's token
// account via the ledger JSON-RPC API. Unlike the explorer-style BSC API,
// a ledger transaction can move several token balances at once, so the
// actually-received amount is computed by diffing the receiving account's
// pre/post token balances.
type SolanaMatcher struct {
	rpcURL        string
	walletAddress string
	tokenAccount  string
	tokenMint     string
	tokenDecimals int
	client        *http.Client
	logger        *zap.Logger
}

func NewSolanaMatcher(rpcURL, walletAddress, tokenAccount, tokenMint string, tokenDecimals int, timeout time.Duration) *SolanaMatcher {
	return &SolanaMatcher{
		rpcURL:        rpcURL,
		walletAddress: walletAddress,
		tokenAccount:  tokenAccount,
		tokenMint:     tokenMint,
		tokenDecimals: tokenDecimals,
		client:        &http.Client{Timeout: timeout},
		logger:        util.GetLogger(),
	}
}

type solanaSignature struct {
	Signature string          `json:"signature"`
	BlockTime *int64          `json:"blockTime"`
	Err       json.RawMessage `json:"err"`
}

type solanaTokenBalance struct {
	AccountIndex  int    `json:"accountIndex"`
	Mint          string `json:"mint"`
	Owner         string `json:"owner"`
	UITokenAmount struct {
		Amount string `json:"amount"`
	} `json:"uiTokenAmount"`
}

type solanaTransaction struct {
	Meta struct {
		Err               json.RawMessage      `json:"err"`
		PreTokenBalances  []solanaTokenBalance `json:"preTokenBalances"`
		PostTokenBalances []solanaTokenBalance `json:"postTokenBalances"`
	} `json:"meta"`
}

// FindTransfer scans recent signatures on the token account and matches
// the received raw amount exactly. Errors are reported as "no match yet".
func (m *SolanaMatcher) FindTransfer(ctx context.Context, expectedAmount string, since time.Time) (*Match, error) {
	expectedRaw, err := ToRawAmount(expectedAmount, m.tokenDecimals)
	if err != nil {
		m.logger.Error("Invalid expected amount", zap.String("amount", expectedAmount), zap.Error(err))
		return nil, nil
	}

	sigs, err := m.fetchSignatures(ctx)
	if err != nil {
		util.ChainQueriesTotal.WithLabelValues("solana", "error").Inc()
		m.logger.Warn("Solana signature query failed", zap.Error(err))
		return nil, nil
	}

	for _, sig := range sigs {
		if len(sig.Err) > 0 && string(sig.Err) != "null" {
			continue
		}
		if sig.BlockTime == nil || *sig.BlockTime < since.Unix() {
			continue
		}

		tx, err := m.fetchTransaction(ctx, sig.Signature)
		if err != nil {
			util.ChainQueriesTotal.WithLabelValues("solana", "error").Inc()
			m.logger.Warn("Solana transaction query failed",
				zap.String("signature", sig.Signature), zap.Error(err))
			continue
		}
		if tx == nil || (len(tx.Meta.Err) > 0 && string(tx.Meta.Err) != "null") {
			continue
		}

		received := m.receivedAmount(tx)
		if received == nil || received.Cmp(expectedRaw) != 0 {
			continue
		}

		util.ChainQueriesTotal.WithLabelValues("solana", "match").Inc()
		return &Match{
			TxHash: sig.Signature,
			Sender: m.senderOwner(tx),
			Chain:  "solana",
		}, nil
	}

	util.ChainQueriesTotal.WithLabelValues("solana", "no_match").Inc()
	return nil, nil
}

// receivedAmount diffs the receiving account's token balance across the
// transaction. A transaction can carry several token movements; only the
// wallet's balance of the expected mint counts.
func (m *SolanaMatcher) receivedAmount(tx *solanaTransaction) *big.Int {
	pre := m.balanceFor(tx.Meta.PreTokenBalances)
	post := m.balanceFor(tx.Meta.PostTokenBalances)
	if post == nil {
		return nil
	}
	if pre == nil {
		pre = big.NewInt(0)
	}

	diff := new(big.Int).Sub(post, pre)
	if diff.Sign() <= 0 {
		return nil
	}
	return diff
}

func (m *SolanaMatcher) balanceFor(balances []solanaTokenBalance) *big.Int {
	for _, b := range balances {
		if b.Owner != m.walletAddress || b.Mint != m.tokenMint {
			continue
		}
		raw, ok := new(big.Int).SetString(b.UITokenAmount.Amount, 10)
		if !ok {
			return nil
		}
		return raw
	}
	return nil
}

// senderOwner returns the owner whose balance of the token decreased, if
// the transaction exposes one.
func (m *SolanaMatcher) senderOwner(tx *solanaTransaction) string {
	post := make(map[string]*big.Int, len(tx.Meta.PostTokenBalances))
	for _, b := range tx.Meta.PostTokenBalances {
		if b.Mint != m.tokenMint {
			continue
		}
		if raw, ok := new(big.Int).SetString(b.UITokenAmount.Amount, 10); ok {
			post[b.Owner] = raw
		}
	}

	for _, b := range tx.Meta.PreTokenBalances {
		if b.Mint != m.tokenMint || b.Owner == m.walletAddress {
			continue
		}
		pre, ok := new(big.Int).SetString(b.UITokenAmount.Amount, 10)
		if !ok {
			continue
		}
		after, seen := post[b.Owner]
		if !seen {
			after = big.NewInt(0)
		}
		if after.Cmp(pre) < 0 {
			return b.Owner
		}
	}
	return ""
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (m *SolanaMatcher) fetchSignatures(ctx context.Context) ([]solanaSignature, error) {
	result, err := m.call(ctx, "getSignaturesForAddress", []interface{}{
		m.tokenAccount,
		map[string]interface{}{"limit": solanaSignatureLimit},
	})
	if err != nil {
		return nil, err
	}

	var sigs []solanaSignature
	if err := json.Unmarshal(result, &sigs); err != nil {
		return nil, fmt.Errorf("unexpected signatures result: %w", err)
	}
	return sigs, nil
}

func (m *SolanaMatcher) fetchTransaction(ctx context.Context, signature string) (*solanaTransaction, error) {
	result, err := m.call(ctx, "getTransaction", []interface{}{
		signature,
		map[string]interface{}{
			"encoding":                       "jsonParsed",
			"maxSupportedTransactionVersion": 0,
		},
	})
	if err != nil {
		return nil, err
	}
	if string(result) == "null" {
		return nil, nil
	}

	var tx solanaTransaction
	if err := json.Unmarshal(result, &tx); err != nil {
		return nil, fmt.Errorf("unexpected transaction result: %w", err)
	}
	return &tx, nil
}

func (m *SolanaMatcher) call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rpc returned status %d", resp.StatusCode)
	}

	var envelope rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode rpc response: %w", err)
	}
	if envelope.Error != nil {
		return nil, fmt.Errorf("rpc error %d: %s", envelope.Error.Code, envelope.Error.Message)
	}
	return envelope.Result, nil
}
