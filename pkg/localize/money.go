// Package localize renders amounts and timestamps for a user's locale.
package localize

import (
	"math/big"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"secure-withdrawal-gateway/pkg/units"
)

// Precision is the number of fraction digits a formatted amount shows.
type Precision struct {
	Min int32
	Max int32
}

var (
	// Standard is used for balances and inputs.
	Standard = Precision{Min: 4, Max: 4}
	// Detail is used for fees and quotations.
	Detail = Precision{Min: 8, Max: 8}
)

// numberSymbols are the separators a locale uses plus where it puts a
// currency code.
type numberSymbols struct {
	group        string
	decimal      string
	minus        string
	symbolSuffix bool
}

// MoneyFormatter renders base-unit amounts as localized strings. Every
// rendering truncates toward zero so a balance or fee is never overstated.
type MoneyFormatter struct {
	conv     units.Converter
	registry *Registry
}

// NewMoneyFormatter creates a formatter for amounts expressed in conv's base units.
func NewMoneyFormatter(conv units.Converter, registry *Registry) *MoneyFormatter {
	return &MoneyFormatter{conv: conv, registry: registry}
}

// Format renders amount (base units) with currencyCode placed per locale.
// A positive amount that would show as all zeros renders as
// "< <smallest unit>" instead.
func (f *MoneyFormatter) Format(amount *big.Int, currencyCode string, p Precision, locale string) string {
	sym := f.registry.symbols(locale)
	d := f.conv.ToDecimal(amount)

	if d.Sign() > 0 && d.Shift(p.Max).LessThan(decimal.New(1, 0)) {
		return "< " + placeCode(smallestUnit(p.Max, sym), currencyCode, sym)
	}
	return placeCode(renderNumber(d, p, sym), currencyCode, sym)
}

// FormatDecimal renders an amount already in whole currency units.
func (f *MoneyFormatter) FormatDecimal(d decimal.Decimal, currencyCode string, p Precision, locale string) string {
	return f.Format(f.conv.FromDecimal(d), currencyCode, p, locale)
}

func placeCode(number, code string, sym numberSymbols) string {
	if code == "" {
		return number
	}
	if sym.symbolSuffix {
		return number + " " + code
	}
	return code + " " + number
}

func smallestUnit(maxDigits int32, sym numberSymbols) string {
	if maxDigits <= 0 {
		return "1"
	}
	return "0" + sym.decimal + strings.Repeat("0", int(maxDigits)-1) + "1"
}

// renderNumber truncates d to p.Max digits, keeps at least p.Min and groups
// the integer part by thousands.
func renderNumber(d decimal.Decimal, p Precision, sym numberSymbols) string {
	t := d.Truncate(p.Max)
	neg := t.Sign() < 0

	fixed := t.Abs().StringFixed(p.Max)
	intPart, frac, _ := strings.Cut(fixed, ".")
	for int32(len(frac)) > p.Min && strings.HasSuffix(frac, "0") {
		frac = frac[:len(frac)-1]
	}

	var b strings.Builder
	if neg {
		b.WriteString(sym.minus)
	}
	b.WriteString(groupThousands(intPart, sym.group))
	if frac != "" {
		b.WriteString(sym.decimal)
		b.WriteString(frac)
	}
	return b.String()
}

func groupThousands(digits, sep string) string {
	if len(digits) <= 3 || sep == "" {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteString(sep)
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// probeSymbols reads a translator's separators from sample renderings.
// Code placement follows where the locale puts its own currency symbol.
func probeSymbols(e localeEntry) numberSymbols {
	tr := e.translator
	sample := tr.FmtNumber(1234567.5, 1)
	sym := numberSymbols{
		group:   between(sample, "1", "2"),
		decimal: between(sample, "7", "5"),
		minus:   strings.TrimSuffix(tr.FmtNumber(-1, 0), "1"),
	}
	if sym.decimal == "" {
		sym.decimal = "."
	}
	if sym.minus == "" {
		sym.minus = "-"
	}
	zero := tr.FmtCurrency(0, 2, e.native)
	if e.code != "" && e.symbol != "" {
		zero = strings.Replace(zero, e.code, e.symbol, 1)
	}
	sym.symbolSuffix = symbolAfterNumber(zero)
	return sym
}

// symbolAfterNumber inspects a locale's rendering of zero in its own
// currency. The symbol trails when the rendering ends in a letter, or when
// it neither starts nor ends with a digit.
func symbolAfterNumber(zero string) bool {
	zero = strings.TrimSpace(zero)
	if zero == "" {
		return false
	}
	first, _ := utf8.DecodeRuneInString(zero)
	last, _ := utf8.DecodeLastRuneInString(zero)
	if unicode.IsLetter(last) {
		return true
	}
	return !unicode.IsDigit(first) && !unicode.IsDigit(last)
}

func between(s, from, to string) string {
	i := strings.Index(s, from)
	if i < 0 {
		return ""
	}
	rest := s[i+len(from):]
	j := strings.Index(rest, to)
	if j < 0 {
		return ""
	}
	return rest[:j]
}
