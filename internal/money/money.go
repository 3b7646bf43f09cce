// Package money handles monetary amounts as integer minor units.
//
// Amounts cross the API boundary as decimal strings ("1012.50") and are
// stored and computed as int64 minor units (101250). Fee rates are basis
// points. Floats never leave this package.
package money

import (
	"fmt"
	"strings"
)

// Supported currencies and their minor-unit exponents.
// A currency missing from this map rounds to 2 decimals.
var minorUnits = map[string]int{
	"NGN": 2,
	"USD": 2,
	"EUR": 2,
	"GBP": 2,
}

const defaultMinorUnits = 2

// IsSupportedCurrency reports whether the currency is in the fixed set.
func IsSupportedCurrency(currency string) bool {
	_, ok := minorUnits[currency]
	return ok
}

// SupportedCurrencies returns the fixed currency set.
func SupportedCurrencies() []string {
	return []string{"NGN", "USD", "EUR", "GBP"}
}

// MinorUnits returns the number of decimal places for the currency.
func MinorUnits(currency string) int {
	if n, ok := minorUnits[currency]; ok {
		return n
	}
	return defaultMinorUnits
}

func pow10(n int) int64 {
	p := int64(1)
	for i := 0; i < n; i++ {
		p *= 10
	}
	return p
}

// Parse converts a decimal string into minor units for the currency.
// Extra fractional digits beyond the currency precision are rejected rather
// than silently rounded — the caller sent an amount we cannot represent.
func Parse(s, currency string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}
	neg := false
	if s[0] == '+' || s[0] == '-' {
		neg = s[0] == '-'
		s = s[1:]
	}

	intPart, fracPart := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, fracPart = s[:i], s[i+1:]
	}
	if intPart == "" && fracPart == "" {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	if intPart == "" {
		intPart = "0"
	}

	prec := MinorUnits(currency)
	if len(fracPart) > prec {
		return 0, fmt.Errorf("amount %q has more than %d decimal places", s, prec)
	}
	for len(fracPart) < prec {
		fracPart += "0"
	}

	var v int64
	for _, c := range intPart + fracPart {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("invalid amount %q", s)
		}
		d := int64(c - '0')
		if v > (1<<63-1-d)/10 {
			return 0, fmt.Errorf("amount %q out of range", s)
		}
		v = v*10 + d
	}
	if neg {
		v = -v
	}
	return v, nil
}

// Format renders minor units as a decimal string for the currency.
func Format(v int64, currency string) string {
	prec := MinorUnits(currency)
	if prec == 0 {
		return fmt.Sprintf("%d", v)
	}
	neg := v < 0
	if neg {
		v = -v
	}
	scale := pow10(prec)
	s := fmt.Sprintf("%d.%0*d", v/scale, prec, v%scale)
	if neg {
		return "-" + s
	}
	return s
}

// ApplyBPS multiplies an amount by a basis-point rate, rounding half-up.
func ApplyBPS(amount int64, bps int) int64 {
	if amount < 0 || bps < 0 {
		return 0
	}
	return (amount*int64(bps) + 5000) / 10000
}
