package units

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// EtherDecimals is the base-unit exponent of ETH (1 ETH = 10^18 wei).
const EtherDecimals int32 = 18

// maxExponent bounds exponent notation so "1e999999999" cannot allocate
// an absurd integer.
const maxExponent = 60

// Converter converts between decimal text and fixed-point base units.
type Converter struct {
	decimals int32
}

// NewConverter creates a Converter for the given base-unit exponent.
func NewConverter(decimals int32) Converter {
	return Converter{decimals: decimals}
}

// Ether returns the converter for 18-decimal assets.
func Ether() Converter {
	return NewConverter(EtherDecimals)
}

// Decimals returns the base-unit exponent.
func (c Converter) Decimals() int32 {
	return c.decimals
}

// ToBaseUnits parses text as a decimal amount and returns it in base units.
// Digits beyond the exponent are truncated. Malformed, negative or
// out-of-range input yields zero.
func (c Converter) ToBaseUnits(text string) *big.Int {
	d, err := decimal.NewFromString(strings.TrimSpace(text))
	if err != nil {
		return new(big.Int)
	}
	if d.Sign() < 0 || d.Exponent() > maxExponent {
		return new(big.Int)
	}
	return d.Truncate(c.decimals).Shift(c.decimals).BigInt()
}

// ToDecimal shifts a base-unit amount back to its decimal value. Lossless.
func (c Converter) ToDecimal(amount *big.Int) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount, -c.decimals)
}

// FromDecimal converts an exact decimal amount to base units, truncating
// anything below one base unit. Negative values are kept.
func (c Converter) FromDecimal(d decimal.Decimal) *big.Int {
	return d.Truncate(c.decimals).Shift(c.decimals).BigInt()
}

// MustParse converts trusted decimal text (configuration defaults) to base
// units and panics on malformed input.
func (c Converter) MustParse(text string) *big.Int {
	return c.FromDecimal(decimal.RequireFromString(text))
}
