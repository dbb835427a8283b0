package service

import (
	"context"
	"fmt"
)

// StaticCatalog is a fixed price list satisfying PriceCatalog: a price
// per tier and one flat price for individual courses. The real catalog
// lives in the course service; this stands in at its interface point and
// is swapped for an HTTP client where prices are dynamic.
type StaticCatalog struct {
	tierCents   map[string]int64
	courseCents int64
	currency    string
}

func NewStaticCatalog(tierCents map[string]int64, courseCents int64, currency string) *StaticCatalog {
	return &StaticCatalog{tierCents: tierCents, courseCents: courseCents, currency: currency}
}

func (c *StaticCatalog) PriceFor(ctx context.Context, rawTarget string) (int64, string, error) {
	target, err := ParseTarget(rawTarget)
	if err != nil {
		return 0, "", err
	}

	switch target.Kind {
	case TargetKindCourse:
		return c.courseCents, c.currency, nil
	case TargetKindTier:
		cents, ok := c.tierCents[target.Tier]
		if !ok {
			return 0, "", fmt.Errorf("tier %q is not purchasable", target.Tier)
		}
		return cents, c.currency, nil
	}
	return 0, "", fmt.Errorf("target %q is not purchasable", rawTarget)
}
