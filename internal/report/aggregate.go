package report

import (
	"encoding/json"
	"sort"

	"github.com/shopspring/decimal"

	"fincontrol/internal/core"
)

type (
	// Summary holds exact month figures. Balance is Income minus Expense.
	Summary struct {
		Income  decimal.Decimal `json:"income"`
		Expense decimal.Decimal `json:"expense"`
		Balance decimal.Decimal `json:"balance"`
	}

	CategoryTotal struct {
		CategoryID int64
		Name       string
		Kind       core.CategoryKind
		Amount     decimal.Decimal
	}

	// CategoryTotals keeps categories in the order they were first seen.
	CategoryTotals []CategoryTotal

	BalancePoint struct {
		Date    core.Date
		Balance decimal.Decimal
	}
)

// Summarize folds every item of txs into income and expense totals.
func Summarize(txs []core.Transaction) Summary {
	s := Summary{Income: decimal.Zero, Expense: decimal.Zero}
	for _, tx := range txs {
		for _, it := range tx.Items {
			if it.Category.Kind == core.Income {
				s.Income = s.Income.Add(it.Amount)
			} else {
				s.Expense = s.Expense.Add(it.Amount)
			}
		}
	}
	s.Balance = s.Income.Sub(s.Expense)
	return s
}

// TotalsByCategory sums item amounts per category in a single pass. Both
// kinds contribute positively; categories without items are absent.
func TotalsByCategory(txs []core.Transaction) CategoryTotals {
	var out CategoryTotals
	index := make(map[int64]int)
	for _, tx := range txs {
		for _, it := range tx.Items {
			i, ok := index[it.Category.ID]
			if !ok {
				i = len(out)
				index[it.Category.ID] = i
				out = append(out, CategoryTotal{
					CategoryID: it.Category.ID,
					Name:       it.Category.Name,
					Kind:       it.Category.Kind,
					Amount:     decimal.Zero,
				})
			}
			out[i].Amount = out[i].Amount.Add(it.Amount)
		}
	}
	return out
}

// BalanceSeries returns one point per date that has items, ascending, where
// each point carries the running balance from the start of txs.
func BalanceSeries(txs []core.Transaction) []BalancePoint {
	var points []BalancePoint
	index := make(map[string]int)
	for _, tx := range txs {
		if len(tx.Items) == 0 {
			continue
		}
		key := tx.Date.String()
		i, ok := index[key]
		if !ok {
			i = len(points)
			index[key] = i
			points = append(points, BalancePoint{Date: tx.Date, Balance: decimal.Zero})
		}
		for _, it := range tx.Items {
			points[i].Balance = points[i].Balance.Add(it.Signed())
		}
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date.BeforeDate(points[j].Date) })

	// points hold per-day deltas until here
	running := decimal.Zero
	for i := range points {
		running = running.Add(points[i].Balance)
		points[i].Balance = running
	}
	if points == nil {
		points = []BalancePoint{}
	}
	return points
}

// Map returns name to total as floats for serialization.
func (c CategoryTotals) Map() map[string]float64 {
	out := make(map[string]float64, len(c))
	for _, ct := range c {
		f, _ := ct.Amount.Float64()
		out[ct.Name] += f
	}
	return out
}

// Sum adds every category total. It equals Income + Expense of the same set.
func (c CategoryTotals) Sum() decimal.Decimal {
	total := decimal.Zero
	for _, ct := range c {
		total = total.Add(ct.Amount)
	}
	return total
}

func (c CategoryTotals) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Map())
}

func (p BalancePoint) MarshalJSON() ([]byte, error) {
	f, _ := p.Balance.Float64()
	return json.Marshal(struct {
		Date    string  `json:"date"`
		Balance float64 `json:"balance"`
	}{p.Date.String(), f})
}

func (p BalancePoint) Float() float64 {
	f, _ := p.Balance.Float64()
	return f
}
