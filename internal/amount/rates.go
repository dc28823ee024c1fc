package amount

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FixedRates is a RateSource with one rate per currency that never
// changes. Keys are upper-case currency codes.
type FixedRates map[string]decimal.Decimal

// ParseRates builds FixedRates from decimal text, e.g. {"USD": "250.5"}.
func ParseRates(text map[string]string) (FixedRates, error) {
	rates := make(FixedRates, len(text))
	for currency, s := range text {
		d, err := decimal.NewFromString(strings.TrimSpace(s))
		if err != nil {
			return nil, err
		}
		rates[strings.ToUpper(currency)] = d
	}
	return rates, nil
}

// Rate implements RateSource.
func (r FixedRates) Rate(_ context.Context, currency string, _ time.Time) (decimal.Decimal, error) {
	rate, ok := r[strings.ToUpper(currency)]
	if !ok {
		return decimal.Zero, ErrNoRate
	}
	return rate, nil
}
