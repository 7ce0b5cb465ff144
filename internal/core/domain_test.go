package core

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func item(kind CategoryKind, amount string) TransactionItem {
	return TransactionItem{
		Category: Category{ID: 1, Name: string(kind), Kind: kind},
		Amount:   decimal.RequireFromString(amount),
	}
}

func TestParseCategoryKind(t *testing.T) {
	for in, want := range map[string]CategoryKind{"INCOME": Income, "expense": Expense, " Income ": Income} {
		got, err := ParseCategoryKind(in)
		if err != nil || got != want {
			t.Fatalf("%q: expected %s, got %s (err=%v)", in, want, got, err)
		}
	}
	if _, err := ParseCategoryKind("TRANSFER"); !errors.Is(err, ErrInvalidKind) {
		t.Fatalf("expected ErrInvalidKind, got %v", err)
	}
}

func TestSignedTotal(t *testing.T) {
	cases := []struct {
		name  string
		items []TransactionItem
		want  string
	}{
		{"empty", nil, "0"},
		{"mixed", []TransactionItem{item(Income, "100.00"), item(Expense, "30.00")}, "70.00"},
		{"expense only", []TransactionItem{item(Expense, "10"), item(Expense, "5")}, "-15"},
		{"exact cents", []TransactionItem{item(Income, "0.10"), item(Income, "0.20")}, "0.30"},
	}
	for _, tc := range cases {
		got := SignedTotal(tc.items)
		if !got.Equal(decimal.RequireFromString(tc.want)) {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.want, got)
		}
		if again := SignedTotal(tc.items); !again.Equal(got) {
			t.Fatalf("%s: recompute not idempotent: %s then %s", tc.name, got, again)
		}
	}
}

func TestCategoryValidate(t *testing.T) {
	if err := (Category{Name: "Luz", Kind: Expense}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := (Category{Name: "  ", Kind: "X"}).Validate()
	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected ValidationErrors, got %v", err)
	}
	if verrs.Field("name") == "" || verrs.Field("kind") == "" {
		t.Fatalf("expected name and kind errors, got %v", verrs)
	}
	long := Category{Name: strings.Repeat("a", MaxCategoryNameLength+1), Kind: Income}
	if err := long.Validate(); err == nil {
		t.Fatal("expected error for long name")
	}
}

func TestTransactionValidate(t *testing.T) {
	today := NewDate(2024, 3, 15)
	valid := Transaction{
		Description: "Mercado",
		Date:        today,
		Items:       []TransactionItem{item(Expense, "12.50")},
	}
	if err := valid.Validate(today); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cases := []struct {
		name  string
		tx    func() Transaction
		field string
	}{
		{"future date", func() Transaction {
			tx := valid
			tx.Date = NewDate(2024, 3, 16)
			return tx
		}, "date"},
		{"zero amount", func() Transaction {
			tx := valid
			tx.Items = []TransactionItem{item(Expense, "0.00")}
			return tx
		}, "items[0].amount"},
		{"missing category", func() Transaction {
			tx := valid
			tx.Items = []TransactionItem{{Amount: decimal.RequireFromString("1")}}
			return tx
		}, "items[0].category"},
		{"empty description", func() Transaction {
			tx := valid
			tx.Description = " "
			return tx
		}, "description"},
		{"zero date", func() Transaction {
			tx := valid
			tx.Date = Date{}
			return tx
		}, "date"},
	}
	for _, tc := range cases {
		err := tc.tx().Validate(today)
		var verrs ValidationErrors
		if !errors.As(err, &verrs) {
			t.Fatalf("%s: expected ValidationErrors, got %v", tc.name, err)
		}
		if verrs.Field(tc.field) == "" {
			t.Fatalf("%s: expected error on %s, got %v", tc.name, tc.field, verrs)
		}
	}

	empty := valid
	empty.Items = nil
	if err := empty.Validate(today); !errors.Is(err, ErrNoItems) {
		t.Fatalf("expected ErrNoItems, got %v", err)
	}
}

func TestMonthRange(t *testing.T) {
	cases := []struct {
		year, month int
		last        string
	}{
		{2024, 2, "2024-02-29"},
		{2023, 2, "2023-02-28"},
		{2024, 12, "2024-12-31"},
		{2024, 4, "2024-04-30"},
	}
	for _, tc := range cases {
		first, last, err := MonthRange(tc.year, tc.month)
		if err != nil {
			t.Fatalf("%d-%d: %v", tc.year, tc.month, err)
		}
		if first.Day() != 1 || last.String() != tc.last {
			t.Fatalf("%d-%d: got %s..%s", tc.year, tc.month, first, last)
		}
	}
	for _, m := range []int{0, 13, -1} {
		if _, _, err := MonthRange(2024, m); !errors.Is(err, ErrInvalidMonth) {
			t.Fatalf("month %d: expected ErrInvalidMonth, got %v", m, err)
		}
	}
}

func TestParseDateAndToday(t *testing.T) {
	d, err := ParseDate("2024-01-31")
	if err != nil || d.String() != "2024-01-31" {
		t.Fatalf("got %v (err=%v)", d, err)
	}
	if _, err := ParseDate("31/01/2024"); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
	loc := time.FixedZone("BRT", -3*3600)
	y, m, day := time.Now().In(loc).Date()
	if got := Today(loc); got != NewDate(y, int(m), day) {
		t.Fatalf("Today mismatch: %s", got)
	}
}
