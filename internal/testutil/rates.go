package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/tipsync/internal/amount"
)

// StaticRates is a rate source with fixed prices of one base-currency unit.
type StaticRates struct {
	mu    sync.Mutex
	rates map[string]decimal.Decimal
	calls int
}

// NewStaticRates creates a rate source from currency -> rate strings.
// It panics on malformed decimals, as test fixtures should.
func NewStaticRates(rates map[string]string) *StaticRates {
	s := &StaticRates{rates: make(map[string]decimal.Decimal, len(rates))}
	for cur, r := range rates {
		s.rates[cur] = decimal.RequireFromString(r)
	}
	return s
}

// Rate implements amount.RateSource.
func (s *StaticRates) Rate(_ context.Context, currency string, _ time.Time) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	r, ok := s.rates[currency]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", amount.ErrNoRate, currency)
	}
	return r, nil
}

// Calls returns how many lookups were made.
func (s *StaticRates) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
