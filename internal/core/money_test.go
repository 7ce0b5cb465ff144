package core

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1", "1", true},
		{"1.0", "1", true},
		{"1.23", "1.23", true},
		{"1,23", "1.23", true},
		{"0.01", "0.01", true},
		{"0.00", "0", true}, // parses; the minimum is a separate check
		{" 2.50 ", "2.5", true},
		{"1.500,00", "1500", true},
		{"12.340", "12.34", true},
		{"12.345", "", false},
		{"-1", "", false},
		{"+1", "", false},
		{"abc", "", false},
		{"1.2.3", "", false},
		{"1e3", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || !got.Equal(decimal.RequireFromString(tc.out)) {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.out, got, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error, got %s", tc.in, got)
		}
	}
}

func TestParseAmount_TooManyDigits(t *testing.T) {
	if _, err := ParseAmount("0.001"); !errors.Is(err, ErrTooManyDigits) {
		t.Fatalf("expected ErrTooManyDigits, got %v", err)
	}
}

func TestValidateAmount(t *testing.T) {
	cases := []struct {
		in   string
		want error
	}{
		{"0.01", nil},
		{"500.99", nil},
		{"0", ErrAmountTooSmall},
		{"0.00", ErrAmountTooSmall},
		{"0.009", ErrAmountTooSmall},
		{"1.001", ErrTooManyDigits},
	}
	for _, tc := range cases {
		err := ValidateAmount(decimal.RequireFromString(tc.in))
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.in, tc.want, err)
		}
	}
}
