package amount

import (
	"cmp"
	"maps"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// BaseCurrency is the on-chain currency every amount is resolved into.
const BaseCurrency = "BCH"

// Precision is the number of decimal places kept after conversion
// (satoshi precision).
const Precision = 8

// Unit maps a set of aliases to a value in some currency. A non-zero
// ValueLinked replaces Value when the recipient has already linked an
// address.
type Unit struct {
	Names       []string        `json:"names"`
	Value       decimal.Decimal `json:"value"`
	ValueLinked decimal.Decimal `json:"value_linked"`
	Currency    string          `json:"currency"`
}

func (u Unit) value(linked bool) decimal.Decimal {
	if linked && u.ValueLinked.IsPositive() {
		return u.ValueLinked
	}
	return u.Value
}

// Table holds everything the resolver needs to interpret tokens.
type Table struct {
	BaseCurrency    string
	Units           []Unit
	QuantityAliases map[string]decimal.Decimal
	PrefixSymbols   map[string]string
}

// Lookup finds the unit that lists name among its aliases.
// Matching is case-sensitive.
func (t Table) Lookup(name string) (Unit, bool) {
	for _, u := range t.Units {
		for _, n := range u.Names {
			if n == name {
				return u, true
			}
		}
	}
	return Unit{}, false
}

// prefixes returns the prefix symbols longest first, so a symbol that
// begins with another ("R$" and "R") is tried before it.
func (t Table) prefixes() []string {
	syms := slices.Collect(maps.Keys(t.PrefixSymbols))
	slices.SortFunc(syms, func(a, b string) int {
		if n := cmp.Compare(utf8.RuneCountInString(b), utf8.RuneCountInString(a)); n != 0 {
			return n
		}
		return strings.Compare(a, b)
	})
	return syms
}

// base returns the configured base currency, defaulting to BaseCurrency.
func (t Table) base() string {
	if t.BaseCurrency == "" {
		return BaseCurrency
	}
	return t.BaseCurrency
}

func unit(value, currency string, names ...string) Unit {
	return Unit{Names: names, Value: decimal.RequireFromString(value), Currency: currency}
}

// DefaultTable returns the built-in unit table.
func DefaultTable() Table {
	return Table{
		BaseCurrency: BaseCurrency,
		Units: []Unit{
			unit("1", "BCH", "mbit", "mbits"),
			unit("0.001", "BCH", "kbit", "kbits"),
			unit("0.000001", "BCH", "bit", "bits", "cash"),
			unit("0.00000001", "BCH", "sat", "sats", "satoshi", "satoshis"),
			unit("0.00001155", "BCH", "dust", "dusts", "spam", "test", "chaintip_minimum"),
			unit("0.0717", "EUR", "bubblegum", "bubblegums"),
			unit("1", "EUR", "espresso", "espressi", "espressos", "cortado", "cortados", "cafe", "caffee", "caffe"),
			unit("3", "EUR", "beer", "beers", "coffee", "coffees"),
			unit("15", "USD", "pizza", "pizzas", "meal"),
			unit("0.0001337", "BCH", "smile", "smiles"),
			unit("0.01337", "BCH", "leet", "leets"),
			unit("1", "USD", "dollar", "dollars"),
			unit("0.25", "USD", "quarter", "quarters"),
			unit("0.1", "USD", "dime", "dimes"),
			unit("0.05", "USD", "nickel", "nickels"),
			unit("0.01", "USD", "cent", "cents"),
			unit("0.01", "GBP", "penny", "pennies"),
			{
				Names:       []string{"welcome", "welcomes"},
				Value:       decimal.NewFromInt(1),
				ValueLinked: decimal.RequireFromString("0.01"),
				Currency:    "USD",
			},
			unit("1.5", "USD", "cookie", "cookies"),
		},
		QuantityAliases: map[string]decimal.Decimal{
			"a":  decimal.NewFromInt(1),
			"an": decimal.NewFromInt(1),
		},
		PrefixSymbols: map[string]string{
			"$": "USD",
			"€": "EUR",
			"¥": "JPY",
			"£": "GBP",
			"₩": "KRW",
		},
	}
}
