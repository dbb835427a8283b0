package service

import (
	"fmt"
	"math/rand"
)

const (
	minCentOffset = 1
	maxCentOffset = 97
)

// DisambiguateAmount turns a base price in minor units into a unique-ish
// decimal amount by adding a pseudo-random cent offset in [0.01, 0.97].
// Concurrent payers share one custodial wallet address, so the transfer
// amount is the only per-payment identifier available; uniqueness here is
// advisory, the tx-hash non-reuse check is the correctness backstop.
func DisambiguateAmount(baseCents int64) string {
	offset := int64(rand.Intn(maxCentOffset-minCentOffset+1) + minCentOffset)
	total := baseCents + offset
	return fmt.Sprintf("%d.%02d", total/100, total%100)
}

// disambiguateAvoiding re-rolls a few times when the minted amount
// collides with a currently pending order. Best effort only: two orders
// created in the same instant can still collide, which is accepted.
func disambiguateAvoiding(baseCents int64, pending []string) string {
	taken := make(map[string]struct{}, len(pending))
	for _, a := range pending {
		taken[a] = struct{}{}
	}

	amount := DisambiguateAmount(baseCents)
	for attempt := 0; attempt < 5; attempt++ {
		if _, clash := taken[amount]; !clash {
			break
		}
		amount = DisambiguateAmount(baseCents)
	}
	return amount
}
