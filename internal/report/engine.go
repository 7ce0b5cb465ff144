// Package report turns an owner's transactions into month summaries, category
// breakdowns, daily balance series and filtered, exportable reports.
package report

import (
	"context"
	"fmt"

	"fincontrol/internal/core"
)

// ErrInvalidMonth is returned for months outside 1-12.
var ErrInvalidMonth = core.ErrInvalidMonth

// Source lists an owner's transactions dated within [from, to], inclusive,
// with every item's category name and kind loaded.
type Source interface {
	TransactionsBetween(ctx context.Context, ownerID int64, from, to core.Date) ([]core.Transaction, error)
}

// Month bundles the three dashboard views computed from a single load.
type Month struct {
	Year       int
	Month      int
	Name       string
	Summary    Summary
	Categories CategoryTotals
	Balance    []BalancePoint
}

type Engine struct {
	src Source
}

func NewEngine(src Source) *Engine {
	return &Engine{src: src}
}

func (e *Engine) load(ctx context.Context, ownerID int64, year, month int) ([]core.Transaction, error) {
	from, to, err := core.MonthRange(year, month)
	if err != nil {
		return nil, err
	}
	txs, err := e.src.TransactionsBetween(ctx, ownerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load transactions %04d-%02d: %w", year, month, err)
	}
	return txs, nil
}

// MonthSummary returns income, expense and balance for the month.
func (e *Engine) MonthSummary(ctx context.Context, ownerID int64, year, month int) (Summary, error) {
	txs, err := e.load(ctx, ownerID, year, month)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(txs), nil
}

// CategoryTotals returns per-category totals for the month.
func (e *Engine) CategoryTotals(ctx context.Context, ownerID int64, year, month int) (CategoryTotals, error) {
	txs, err := e.load(ctx, ownerID, year, month)
	if err != nil {
		return nil, err
	}
	return TotalsByCategory(txs), nil
}

// DailyBalanceSeries returns the running balance for each day of the month
// that has activity.
func (e *Engine) DailyBalanceSeries(ctx context.Context, ownerID int64, year, month int) ([]BalancePoint, error) {
	txs, err := e.load(ctx, ownerID, year, month)
	if err != nil {
		return nil, err
	}
	return BalanceSeries(txs), nil
}

// Month loads the month once and derives all dashboard views from it.
func (e *Engine) Month(ctx context.Context, ownerID int64, year, month int) (Month, error) {
	txs, err := e.load(ctx, ownerID, year, month)
	if err != nil {
		return Month{}, err
	}
	return Month{
		Year:       year,
		Month:      month,
		Name:       core.MonthName(month),
		Summary:    Summarize(txs),
		Categories: TotalsByCategory(txs),
		Balance:    BalanceSeries(txs),
	}, nil
}
