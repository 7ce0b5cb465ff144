// Package core provides money parsing and handling utilities.
//
// Amounts are exact decimals with at most two fractional digits. Floating
// point only appears at presentation boundaries.
package core

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrTooManyDigits  = errors.New("amount cannot have more than 2 decimal places")
	ErrAmountTooSmall = errors.New("amount must be at least 0.01")

	// MinItemAmount is the smallest amount a line item may carry.
	MinItemAmount = decimal.New(1, -2)
)

// ParseAmount converts a user supplied string into an exact decimal.
//
// Both dot (12.34) and comma (12,34) decimal separators are accepted. When both
// appear, the dot is read as a thousands separator (1.500,00). Signs are
// rejected: direction comes from the category kind, not the amount.
//
// Examples:
//
//	ParseAmount("12.34")    -> 12.34, nil
//	ParseAmount("12,34")    -> 12.34, nil
//	ParseAmount("1.500,00") -> 1500.00, nil
//	ParseAmount("12.345")   -> ErrTooManyDigits
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return decimal.Zero, ErrInvalidAmount
	}
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' {
			return decimal.Zero, ErrInvalidAmount
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if d.Exponent() < -2 && !d.Equal(d.Round(2)) {
		return decimal.Zero, ErrTooManyDigits
	}
	return d.Round(2), nil
}

// ValidateAmount enforces the line item minimum of 0.01.
func ValidateAmount(d decimal.Decimal) error {
	if d.LessThan(MinItemAmount) {
		return ErrAmountTooSmall
	}
	if !d.Equal(d.Round(2)) {
		return ErrTooManyDigits
	}
	return nil
}
