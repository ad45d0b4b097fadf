// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing signed monetary amounts from
// strings into decimal values.
package core

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a decimal string to a signed amount rounded to cents.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and an
// optional leading sign. Rounding is half away from zero on the third decimal
// place. Zero is allowed; a transaction of zero is unusual but valid.
//
// Examples:
//
//	ParseAmount("12.34")   -> 12.34, nil
//	ParseAmount("-12,34")  -> -12.34, nil
//	ParseAmount("12.345")  -> 12.35, nil
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")

	body := strings.TrimLeft(s, "+-")
	if len(s)-len(body) > 1 || body == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	dots := 0
	for _, r := range body {
		if r == '.' {
			dots++
			continue
		}
		if !unicode.IsDigit(r) {
			return decimal.Zero, ErrInvalidAmount
		}
	}
	if dots > 1 || body == "." {
		return decimal.Zero, ErrInvalidAmount
	}

	d, err := decimal.NewFromString(strings.TrimPrefix(s, "+"))
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d.Round(2), nil
}

// Float converts an amount to float64 for statistics and charting. Sums
// should stay in decimal.
func Float(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
