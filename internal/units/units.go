// Package units converts raw on-chain integer amounts into decimal-scaled
// quantities.
//
// Results are float64. The scaling itself is exact (shopspring/decimal), but
// the final conversion rounds to the nearest float64, so amounts above 2^53
// base units lose precision. Values produced here are for display and
// ranking, never for settlement.
package units

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// DefaultDecimals is the precision assumed when a token's decimals cannot be
// read.
const DefaultDecimals uint8 = 18

// Normalize returns raw / 10^decimals. A nil raw amount is zero.
func Normalize(raw *big.Int, decimals uint8) float64 {
	if raw == nil {
		return 0
	}
	return decimal.NewFromBigInt(raw, -int32(decimals)).InexactFloat64()
}

// NormalizeString parses a base-10 integer string and normalizes it.
func NormalizeString(raw string, decimals uint8) (float64, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", raw, err)
	}
	return d.Shift(-int32(decimals)).InexactFloat64(), nil
}

// DecimalsOr returns v when ok, otherwise DefaultDecimals.
func DecimalsOr(v uint8, ok bool) uint8 {
	if !ok {
		return DefaultDecimals
	}
	return v
}
