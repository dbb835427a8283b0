package chain

import (
	"context"
	"time"
)

// Match identifies one on-chain transfer that satisfied an expected
// amount.
type Match struct {
	TxHash string
	Sender string
	Chain  string
}

// Matcher queries one chain's read API for a transfer into the platform
// wallet matching the expected decimal amount since the given time.
//
// A (nil, nil) return means "no match yet". Implementations swallow
// transport and API errors into that result: a transient failure must
// never look like a terminal negative to the polling caller.
type Matcher interface {
	FindTransfer(ctx context.Context, expectedAmount string, since time.Time) (*Match, error)
}
