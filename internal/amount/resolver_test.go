package amount

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rateMap is a fixed rate source keyed by currency code.
type rateMap map[string]string

func (m rateMap) Rate(_ context.Context, currency string, _ time.Time) (decimal.Decimal, error) {
	r, ok := m[currency]
	if !ok {
		return decimal.Zero, errors.New("unknown currency")
	}
	return decimal.RequireFromString(r), nil
}

var usdDefault = Default{Amount: decimal.RequireFromString("0.1"), Currency: "USD"}

func newTestResolver(rates RateSource) *Resolver {
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	return NewResolver(DefaultTable(), rates, func() time.Time { return fixed })
}

func TestResolve_BaseCurrencyUnit(t *testing.T) {
	r := newTestResolver(nil)

	res, err := r.Resolve(context.Background(), "5", "bits", usdDefault, false)
	require.NoError(t, err)

	assert.Equal(t, "0.000005", res.Amount.String())
	assert.False(t, res.UsedDefault)
	assert.Equal(t, "bits", res.Unit)
	assert.Equal(t, "BCH", res.Currency)
}

func TestResolve_AliasAndForeignUnit(t *testing.T) {
	r := newTestResolver(rateMap{"EUR": "1000"})

	res, err := r.Resolve(context.Background(), "a", "coffee", usdDefault, false)
	require.NoError(t, err)

	assert.Equal(t, "0.003", res.Amount.String())
	assert.Equal(t, "1", res.Quantity.String())
	assert.Equal(t, "EUR", res.Currency)
	assert.False(t, res.UsedDefault)
}

func TestResolve_RoundsToEightPlaces(t *testing.T) {
	r := newTestResolver(rateMap{"USD": "300"})

	res, err := r.Resolve(context.Background(), "1", "dollar", usdDefault, false)
	require.NoError(t, err)

	// 1/300 = 0.00333333333...
	assert.Equal(t, "0.00333333", res.Amount.String())
}

func TestResolve_PrefixSymbol(t *testing.T) {
	r := newTestResolver(rateMap{"USD": "500"})

	res, err := r.Resolve(context.Background(), "$5", "", usdDefault, false)
	require.NoError(t, err)

	assert.Equal(t, "0.01", res.Amount.String())
	assert.Equal(t, "USD", res.Currency)
	assert.Equal(t, "$", res.Unit)
}

func TestResolve_LongestPrefixSymbolWins(t *testing.T) {
	table := DefaultTable()
	table.PrefixSymbols["R"] = "ZAR"
	table.PrefixSymbols["R$"] = "BRL"
	table.PrefixSymbols["US$"] = "USD"
	r := NewResolver(table, rateMap{"BRL": "2000", "ZAR": "8000", "USD": "500"}, nil)

	// repeat so a lucky iteration order cannot hide a miss
	for i := 0; i < 20; i++ {
		res, err := r.Resolve(context.Background(), "R$4", "", usdDefault, false)
		require.NoError(t, err)
		assert.Equal(t, "BRL", res.Currency)
		assert.Equal(t, "R$", res.Unit)
		assert.Equal(t, "0.002", res.Amount.String())
		assert.False(t, res.UsedDefault)

		res, err = r.Resolve(context.Background(), "US$5", "", usdDefault, false)
		require.NoError(t, err)
		assert.Equal(t, "US$", res.Unit)
		assert.Equal(t, "0.01", res.Amount.String())
	}

	res, err := r.Resolve(context.Background(), "R8", "", usdDefault, false)
	require.NoError(t, err)
	assert.Equal(t, "ZAR", res.Currency)
	assert.Equal(t, "0.001", res.Amount.String())
}

func TestTable_PrefixesLongestFirst(t *testing.T) {
	table := Table{PrefixSymbols: map[string]string{"$": "USD", "US$": "USD", "€": "EUR", "R$": "BRL"}}
	assert.Equal(t, []string{"US$", "R$", "$", "€"}, table.prefixes())
}

func TestResolve_BitTimesFiveHundred(t *testing.T) {
	r := newTestResolver(nil)

	res, err := r.Resolve(context.Background(), "500", "bit", usdDefault, false)
	require.NoError(t, err)
	assert.Equal(t, "0.0005", res.Amount.String())
}

func TestResolve_FallsBackToDefault(t *testing.T) {
	r := newTestResolver(rateMap{"USD": "200"})

	tests := []struct {
		name     string
		quantity string
		unit     string
	}{
		{"unknown unit", "5", "unicorns"},
		{"garbage quantity", "many", "bits"},
		{"negative quantity", "-5", "bits"},
		{"zero quantity", "0", "bits"},
		{"case sensitive unit", "5", "Bits"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := r.Resolve(context.Background(), tt.quantity, tt.unit, usdDefault, false)
			require.NoError(t, err)
			assert.True(t, res.UsedDefault)
			assert.Equal(t, "0.0005", res.Amount.String())
		})
	}
}

func TestResolve_MissingRateFallsBackToDefault(t *testing.T) {
	r := newTestResolver(rateMap{"USD": "100"})

	// beer is priced in EUR, which has no rate
	res, err := r.Resolve(context.Background(), "2", "beers", usdDefault, false)
	require.NoError(t, err)
	assert.True(t, res.UsedDefault)
	assert.Equal(t, "0.001", res.Amount.String())
}

func TestResolve_DefaultWithoutRateFails(t *testing.T) {
	r := newTestResolver(nil)

	_, err := r.Resolve(context.Background(), "2", "beers", usdDefault, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoRate)
}

func TestResolve_BaseCurrencyDefaultNeedsNoRate(t *testing.T) {
	r := newTestResolver(nil)
	def := Default{Amount: decimal.RequireFromString("0.00001337"), Currency: "BCH"}

	res, err := r.Resolve(context.Background(), "x", "y", def, false)
	require.NoError(t, err)
	assert.True(t, res.UsedDefault)
	assert.Equal(t, "0.00001337", res.Amount.String())
}

func TestResolve_NonPositiveRateIsNoRate(t *testing.T) {
	r := newTestResolver(rateMap{"EUR": "0"})
	def := Default{Amount: decimal.RequireFromString("1"), Currency: "EUR"}

	_, err := r.Resolve(context.Background(), "1", "beer", def, false)
	assert.ErrorIs(t, err, ErrNoRate)
}

func TestResolve_LinkedValue(t *testing.T) {
	r := newTestResolver(rateMap{"USD": "100"})

	res, err := r.Resolve(context.Background(), "a", "welcome", usdDefault, false)
	require.NoError(t, err)
	assert.Equal(t, "0.01", res.Amount.String())

	res, err = r.Resolve(context.Background(), "a", "welcome", usdDefault, true)
	require.NoError(t, err)
	assert.Equal(t, "0.0001", res.Amount.String())
	assert.Equal(t, "USD", res.Currency)
	assert.False(t, res.UsedDefault)

	// units without a linked value price the same either way
	res, err = r.Resolve(context.Background(), "2", "dollars", usdDefault, true)
	require.NoError(t, err)
	assert.Equal(t, "0.02", res.Amount.String())
}

func TestFixedRates(t *testing.T) {
	rates, err := ParseRates(map[string]string{"eur": "1000"})
	require.NoError(t, err)

	r := NewResolver(DefaultTable(), rates, nil)
	res, err := r.Resolve(context.Background(), "a", "coffee", Default{}, false)
	require.NoError(t, err)
	assert.Equal(t, "0.003", res.Amount.String())

	_, err = rates.Rate(context.Background(), "JPY", time.Time{})
	assert.ErrorIs(t, err, ErrNoRate)

	_, err = ParseRates(map[string]string{"USD": "lots"})
	assert.Error(t, err)
}
