package chain

import (
	"fmt"
	"math/big"
	"strings"
)

// ToRawAmount converts a decimal string amount ("30.42") into the token's
// raw integer representation at the given native precision. The match in
// each matcher is exact: the disambiguation scheme depends on exact cents,
// so no rounding and no tolerance.
func ToRawAmount(amount string, decimals int) (*big.Int, error) {
	whole := amount
	frac := ""
	if i := strings.IndexByte(amount, '.'); i >= 0 {
		whole, frac = amount[:i], amount[i+1:]
	}

	if whole == "" && frac == "" {
		return nil, fmt.Errorf("empty amount")
	}
	if len(frac) > decimals {
		return nil, fmt.Errorf("amount %q has more than %d fractional digits", amount, decimals)
	}

	digits := whole + frac + strings.Repeat("0", decimals-len(frac))
	raw, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", amount)
	}
	if raw.Sign() < 0 {
		return nil, fmt.Errorf("negative amount %q", amount)
	}
	return raw, nil
}
