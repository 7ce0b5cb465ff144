package report

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"fincontrol/internal/core"
)

var (
	salary = core.Category{ID: 1, Name: "Salário", Kind: core.Income}
	food   = core.Category{ID: 2, Name: "Alimentação", Kind: core.Expense}
	power  = core.Category{ID: 3, Name: "Luz", Kind: core.Expense}
)

type fakeSource struct {
	txs   []core.Transaction
	calls int
	err   error
}

func (f *fakeSource) TransactionsBetween(_ context.Context, ownerID int64, from, to core.Date) ([]core.Transaction, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []core.Transaction
	for _, tx := range f.txs {
		if tx.OwnerID != ownerID || tx.Date.BeforeDate(from) || tx.Date.AfterDate(to) {
			continue
		}
		out = append(out, tx)
	}
	return out, nil
}

func (f *fakeSource) ListCategories(context.Context, int64, string) ([]core.Category, error) {
	return []core.Category{salary, food, power}, nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func tx(id int64, date core.Date, desc string, items ...core.TransactionItem) core.Transaction {
	t := core.Transaction{ID: id, OwnerID: 1, Description: desc, Date: date, Items: items}
	t.TotalAmount = core.SignedTotal(items)
	return t
}

func it(c core.Category, amount string) core.TransactionItem {
	return core.TransactionItem{Category: c, Amount: dec(amount)}
}

func marchFixture() *fakeSource {
	return &fakeSource{txs: []core.Transaction{
		tx(1, core.NewDate(2024, 3, 1), "Salário mensal", it(salary, "100.00")),
		tx(2, core.NewDate(2024, 3, 1), "Mercado", it(food, "30.00")),
		tx(3, core.NewDate(2024, 3, 3), "Conta de luz", it(power, "50.00")),
		tx(4, core.NewDate(2024, 2, 28), "Fevereiro", it(food, "999.00")),
		{ID: 5, OwnerID: 2, Description: "outro dono", Date: core.NewDate(2024, 3, 2), Items: []core.TransactionItem{it(salary, "1.00")}},
	}}
}

func TestMonthSummary(t *testing.T) {
	e := NewEngine(marchFixture())
	s, err := e.MonthSummary(context.Background(), 1, 2024, 3)
	if err != nil {
		t.Fatal(err)
	}
	if !s.Income.Equal(dec("100")) || !s.Expense.Equal(dec("80")) || !s.Balance.Equal(dec("20")) {
		t.Fatalf("unexpected summary %+v", s)
	}
}

func TestMonthSummary_Empty(t *testing.T) {
	e := NewEngine(&fakeSource{})
	s, err := e.MonthSummary(context.Background(), 1, 2024, 3)
	if err != nil {
		t.Fatal(err)
	}
	if !s.Income.IsZero() || !s.Expense.IsZero() || !s.Balance.IsZero() {
		t.Fatalf("expected zeros, got %+v", s)
	}
}

func TestCategoryTotals(t *testing.T) {
	src := marchFixture()
	src.txs = append(src.txs, tx(6, core.NewDate(2024, 3, 10), "Feira", it(food, "5.50"), it(food, "4.50")))
	e := NewEngine(src)
	totals, err := e.CategoryTotals(context.Background(), 1, 2024, 3)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]float64{"Salário": 100, "Alimentação": 40, "Luz": 50}
	got := totals.Map()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("%s: expected %v, got %v", k, v, got[k])
		}
	}
	if totals[0].Name != "Salário" || totals[1].Name != "Alimentação" {
		t.Fatalf("expected first-seen order, got %+v", totals)
	}
}

func TestDailyBalanceSeries(t *testing.T) {
	e := NewEngine(marchFixture())
	points, err := e.DailyBalanceSeries(context.Background(), 1, 2024, 3)
	if err != nil {
		t.Fatal(err)
	}
	want := []struct {
		date    string
		balance string
	}{
		{"2024-03-01", "70"},
		{"2024-03-03", "20"},
	}
	if len(points) != len(want) {
		t.Fatalf("expected %d points, got %+v", len(want), points)
	}
	for i, w := range want {
		if points[i].Date.String() != w.date || !points[i].Balance.Equal(dec(w.balance)) {
			t.Fatalf("point %d: expected %s=%s, got %s=%s", i, w.date, w.balance, points[i].Date, points[i].Balance)
		}
	}

	raw, err := json.Marshal(points)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != `[{"date":"2024-03-01","balance":70},{"date":"2024-03-03","balance":20}]` {
		t.Fatalf("unexpected json %s", raw)
	}
}

func TestDailyBalanceSeries_UnsortedInput(t *testing.T) {
	txs := []core.Transaction{
		tx(1, core.NewDate(2024, 3, 20), "b", it(food, "10")),
		tx(2, core.NewDate(2024, 3, 5), "a", it(salary, "50")),
	}
	points := BalanceSeries(txs)
	if len(points) != 2 || points[0].Date.Day() != 5 || !points[1].Balance.Equal(dec("40")) {
		t.Fatalf("unexpected series %+v", points)
	}
}

func TestMonth_InvalidMonth(t *testing.T) {
	src := &fakeSource{}
	e := NewEngine(src)
	for _, m := range []int{0, 13} {
		if _, err := e.Month(context.Background(), 1, 2024, m); !errors.Is(err, ErrInvalidMonth) {
			t.Fatalf("month %d: expected ErrInvalidMonth, got %v", m, err)
		}
	}
	if src.calls != 0 {
		t.Fatalf("source must not be queried for invalid months")
	}
}

func TestMonth_SourceError(t *testing.T) {
	boom := errors.New("boom")
	e := NewEngine(&fakeSource{err: boom})
	if _, err := e.Month(context.Background(), 1, 2024, 3); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped source error, got %v", err)
	}
}

// The three views must agree with each other on the same data.
func TestMonth_Consistency(t *testing.T) {
	src := marchFixture()
	e := NewEngine(src)
	m, err := e.Month(context.Background(), 1, 2024, 3)
	if err != nil {
		t.Fatal(err)
	}
	if src.calls != 1 {
		t.Fatalf("expected a single load, got %d", src.calls)
	}
	if m.Name != "Março" {
		t.Fatalf("unexpected month name %q", m.Name)
	}
	if !m.Categories.Sum().Equal(m.Summary.Income.Add(m.Summary.Expense)) {
		t.Fatalf("category totals %s != income+expense %s", m.Categories.Sum(), m.Summary.Income.Add(m.Summary.Expense))
	}
	last := m.Balance[len(m.Balance)-1]
	if !last.Balance.Equal(m.Summary.Balance) {
		t.Fatalf("final balance %s != summary balance %s", last.Balance, m.Summary.Balance)
	}
	total := decimal.Zero
	for _, tx := range src.txs {
		if tx.OwnerID == 1 && tx.Date.Month() == 3 {
			total = total.Add(tx.TotalAmount)
		}
	}
	if !total.Equal(m.Summary.Balance) {
		t.Fatalf("sum of transaction totals %s != balance %s", total, m.Summary.Balance)
	}
}

func TestMonth_LeapFebruary(t *testing.T) {
	src := &fakeSource{txs: []core.Transaction{
		tx(1, core.NewDate(2024, 2, 29), "bissexto", it(salary, "1")),
		tx(2, core.NewDate(2024, 3, 1), "março", it(salary, "1")),
	}}
	m, err := NewEngine(src).Month(context.Background(), 1, 2024, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !m.Summary.Income.Equal(dec("1")) || len(m.Balance) != 1 {
		t.Fatalf("expected only Feb 29, got %+v", m)
	}
}
