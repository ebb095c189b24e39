package model

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Decimals is the number of fractional digits carried by every asset
// quantity and quote amount.
const Decimals = 18

// CentsPerUnit converts a price in cents into quote units per whole share.
const CentsPerUnit = 100

const (
	CASH_TICKER = "TGBP"
	CASH_LEDGER = 1
)

var (
	oneUnit  = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)
	centsDiv = big.NewInt(CentsPerUnit)
)

// Units returns n whole units in smallest-unit representation.
func Units(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), oneUnit)
}

// QuoteAmount is the quote cost of qty at price cents: qty * price / 100,
// rounded down.
func QuoteAmount(qty *big.Int, price Price) *big.Int {
	v := new(big.Int).Mul(qty, new(big.Int).SetUint64(uint64(price)))
	return v.Quo(v, centsDiv)
}

// MaxQuantityFor is the largest quantity whose unrounded cost at price does
// not exceed budget.
func MaxQuantityFor(budget *big.Int, price Price) *big.Int {
	if price == 0 {
		return new(big.Int)
	}
	v := new(big.Int).Mul(budget, centsDiv)
	return v.Quo(v, new(big.Int).SetUint64(uint64(price)))
}

// FormatUnits renders a fixed-point amount as a decimal string.
func FormatUnits(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -Decimals).String()
}

// ParseUnits parses a decimal string such as "1.5" into smallest units.
// More than Decimals fractional digits is an error.
func ParseUnits(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	scaled := d.Shift(Decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("amount %q has more than %d fractional digits", s, Decimals)
	}
	return scaled.BigInt(), nil
}
