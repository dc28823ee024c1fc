package amount

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNoRate is returned when no usable exchange rate exists for a currency.
var ErrNoRate = errors.New("no exchange rate available")

// RateSource looks up how many units of currency one unit of the base
// currency is worth at the given time.
type RateSource interface {
	Rate(ctx context.Context, currency string, at time.Time) (decimal.Decimal, error)
}

// Default is the amount used when an instruction cannot be interpreted.
type Default struct {
	Amount   decimal.Decimal
	Currency string
}

// Result is the outcome of resolving an instruction.
type Result struct {
	Amount      decimal.Decimal // in the base currency, 8 decimal places
	Quantity    decimal.Decimal
	Unit        string
	Currency    string // currency the quantity was priced in
	UsedDefault bool
}

// Resolver converts quantity/unit tokens into base-currency amounts.
type Resolver struct {
	table Table
	rates RateSource
	now   func() time.Time
}

// NewResolver creates a resolver. rates may be nil, in which case only
// base-currency units resolve. now defaults to time.Now.
func NewResolver(table Table, rates RateSource, now func() time.Time) *Resolver {
	if now == nil {
		now = time.Now
	}
	return &Resolver{table: table, rates: rates, now: now}
}

// Table returns the unit table in use.
func (r *Resolver) Table() Table {
	return r.table
}

// Resolve interprets quantityText/unitText, falling back to def when neither
// the prefix-symbol form nor the quantity+unit form yields an amount.
//
// linked reports that the recipient has already linked an address; units
// with a ValueLinked are then priced at that value instead.
//
// An error is returned only when the default itself cannot be converted.
func (r *Resolver) Resolve(ctx context.Context, quantityText, unitText string, def Default, linked bool) (Result, error) {
	quantityText = strings.TrimSpace(quantityText)
	unitText = strings.TrimSpace(unitText)

	if res, err := r.resolvePrefixed(ctx, quantityText); err == nil {
		return res, nil
	}
	if res, err := r.resolveQuantityUnit(ctx, quantityText, unitText, linked); err == nil {
		return res, nil
	}

	amount, err := r.convert(ctx, def.Amount, def.Currency)
	if err != nil {
		return Result{}, fmt.Errorf("resolve default amount %s %s: %w", def.Amount, def.Currency, err)
	}
	return Result{
		Amount:      amount,
		Quantity:    def.Amount,
		Currency:    def.Currency,
		UsedDefault: true,
	}, nil
}

func (r *Resolver) resolvePrefixed(ctx context.Context, text string) (Result, error) {
	for _, symbol := range r.table.prefixes() {
		currency := r.table.PrefixSymbols[symbol]
		rest, ok := strings.CutPrefix(text, symbol)
		if !ok {
			continue
		}
		q, err := parsePositive(rest)
		if err != nil {
			return Result{}, err
		}
		amount, err := r.convert(ctx, q, currency)
		if err != nil {
			return Result{}, err
		}
		return Result{Amount: amount, Quantity: q, Unit: symbol, Currency: currency}, nil
	}
	return Result{}, fmt.Errorf("no prefix symbol in %q", text)
}

func (r *Resolver) resolveQuantityUnit(ctx context.Context, quantityText, unitText string, linked bool) (Result, error) {
	q, ok := r.table.QuantityAliases[quantityText]
	if !ok {
		var err error
		q, err = parsePositive(quantityText)
		if err != nil {
			return Result{}, err
		}
	}

	u, ok := r.table.Lookup(unitText)
	if !ok {
		return Result{}, fmt.Errorf("unknown unit %q", unitText)
	}

	amount, err := r.convert(ctx, q.Mul(u.value(linked)), u.Currency)
	if err != nil {
		return Result{}, err
	}
	return Result{Amount: amount, Quantity: q, Unit: unitText, Currency: u.Currency}, nil
}

// convert prices value (in currency) in the base currency.
func (r *Resolver) convert(ctx context.Context, value decimal.Decimal, currency string) (decimal.Decimal, error) {
	if currency == "" || currency == r.table.base() {
		return value.Round(Precision), nil
	}
	if r.rates == nil {
		return decimal.Zero, fmt.Errorf("%s: %w", currency, ErrNoRate)
	}
	rate, err := r.rates.Rate(ctx, currency, r.now())
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w: %v", currency, ErrNoRate, err)
	}
	if !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("%s: %w: rate %s", currency, ErrNoRate, rate)
	}
	return value.DivRound(rate, Precision), nil
}

func parsePositive(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, errors.New("empty quantity")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse quantity %q: %w", s, err)
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("quantity %q is not positive", s)
	}
	return d, nil
}
