package chain

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/shopspring/decimal"
)

// ToSatoshis converts a base-currency amount to satoshis, rounding to the
// nearest satoshi.
func ToSatoshis(d decimal.Decimal) btcutil.Amount {
	return btcutil.Amount(d.Shift(8).Round(0).IntPart())
}

// FromSatoshis converts satoshis to a base-currency decimal.
func FromSatoshis(a btcutil.Amount) decimal.Decimal {
	return decimal.New(int64(a), -8)
}
