package chain

import (
	"context"
	"time"
)

// Arbiter fans one lookup out to every configured matcher concurrently
// and returns the first positive result. The matchers are independent
// reads with no shared state, so no locking is involved; losers are
// cancelled and their results drained through the buffered channel.
//
// The arbiter only finds a candidate transfer. Enforcement of tx-hash
// non-reuse happens at the conditional state transition in the store.
type Arbiter struct {
	matchers []Matcher
	timeout  time.Duration
}

func NewArbiter(timeout time.Duration, matchers ...Matcher) *Arbiter {
	return &Arbiter{matchers: matchers, timeout: timeout}
}

// FindMatchingTransfer returns the first match any chain reports, or nil
// when every chain reports no match. Matcher errors were already absorbed
// into "no match" by the matchers themselves.
func (a *Arbiter) FindMatchingTransfer(ctx context.Context, expectedAmount string, since time.Time) (*Match, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	results := make(chan *Match, len(a.matchers))
	for _, m := range a.matchers {
		go func(m Matcher) {
			match, _ := m.FindTransfer(ctx, expectedAmount, since)
			results <- match
		}(m)
	}

	for range a.matchers {
		select {
		case match := <-results:
			if match != nil {
				return match, nil
			}
		case <-ctx.Done():
			return nil, nil
		}
	}
	return nil, nil
}
