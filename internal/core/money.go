// Package core provides money parsing and handling utilities.
//
// Amounts are carried as shopspring decimals so that normalization between
// billing cadences never goes through binary floating point.
package core

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

var (
	weeksPerYear     = decimal.NewFromInt(52)
	monthsPerYear    = decimal.NewFromInt(12)
	quartersPerYear  = decimal.NewFromInt(4)
	hundred          = decimal.NewFromInt(100)
)

// ParseAmount converts a user supplied decimal string to an amount in cents precision.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and performs
// half-up rounding on the third decimal place. Negative, zero and malformed
// values return ErrInvalidAmount.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34
//	ParseAmount("12,345") -> 12.35
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.Count(s, ".") > 1 {
		return decimal.Zero, ErrInvalidAmount
	}
	for _, r := range s {
		if r != '.' && !unicode.IsDigit(r) {
			return decimal.Zero, ErrInvalidAmount
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	d = d.Round(2)
	if !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// FromCents converts a stored cents value into a decimal amount.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// ToCents rounds d to the nearest cent, half away from zero.
func ToCents(d decimal.Decimal) int64 {
	return d.Mul(hundred).Round(0).IntPart()
}

// AnnualAmount converts an amount billed at frequency f into its yearly cost.
// Only multiplications are involved, so the result is exact.
func AnnualAmount(amount decimal.Decimal, f Frequency) (decimal.Decimal, error) {
	switch f {
	case Weekly:
		return amount.Mul(weeksPerYear), nil
	case Monthly:
		return amount.Mul(monthsPerYear), nil
	case Quarterly:
		return amount.Mul(quartersPerYear), nil
	case Annual:
		return amount, nil
	}
	return decimal.Zero, f.Validate()
}

// MonthlyNormalize converts an amount billed at frequency f into its monthly
// equivalent. The result is not rounded; totals over several amounts should
// go through MonthlyTotal instead of summing these quotients.
func MonthlyNormalize(amount decimal.Decimal, f Frequency) (decimal.Decimal, error) {
	if f == Monthly {
		return amount, nil
	}
	annual, err := AnnualAmount(amount, f)
	if err != nil {
		return decimal.Zero, err
	}
	return annual.Div(monthsPerYear), nil
}

// MonthlyTotal turns a sum of yearly costs into a monthly figure rounded to
// cents, half away from zero. The division is done once, on the exact sum.
func MonthlyTotal(annual decimal.Decimal) decimal.Decimal {
	return annual.DivRound(monthsPerYear, 2)
}

// FormatOptions controls how amounts are rendered for display.
type FormatOptions struct {
	Symbol string
	// Hidden masks the digits, used when the dashboard is in privacy mode.
	Hidden bool
}

// FormatMoney renders d with two decimals, a comma decimal separator and dot
// thousands grouping (e.g. "€1.234,50"). With Hidden set the digits are masked.
func FormatMoney(d decimal.Decimal, opts FormatOptions) string {
	if opts.Hidden {
		return opts.Symbol + "•••"
	}
	neg := d.IsNegative()
	s := d.Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	out := opts.Symbol + b.String() + "," + frac
	if neg {
		return "-" + out
	}
	return out
}
