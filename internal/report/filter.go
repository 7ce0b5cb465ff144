package report

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"fincontrol/internal/core"
)

var ErrInvalidRange = errors.New("start date is after end date")

// CategoryLister resolves filter category ids.
type CategoryLister interface {
	ListCategories(ctx context.Context, ownerID int64, search string) ([]core.Category, error)
}

// Filter narrows a report. From and To are required; the rest are optional.
type Filter struct {
	From       core.Date
	To         core.Date
	CategoryID int64
	Kind       core.CategoryKind
	Search     string
}

// Row is one line item in the detail table.
type Row struct {
	TransactionID int64
	Date          core.Date
	Description   string
	Category      string
	Kind          core.CategoryKind
	Amount        decimal.Decimal
}

type Report struct {
	Title      string
	Period     string
	Filter     Filter
	Category   *core.Category
	Summary    Summary
	Categories CategoryTotals
	Rows       []Row
}

type Builder struct {
	src        Source
	categories CategoryLister
}

func NewBuilder(src Source, categories CategoryLister) *Builder {
	return &Builder{src: src, categories: categories}
}

// Build loads the period and applies the filter to individual items. A
// transaction with no surviving items drops out of the report. A category id
// that does not belong to the owner is ignored.
func (b *Builder) Build(ctx context.Context, ownerID int64, f Filter) (Report, error) {
	if f.From.IsZero() || f.To.IsZero() {
		return Report{}, fmt.Errorf("%w: missing period", core.ErrInvalidDate)
	}
	if f.From.AfterDate(f.To) {
		return Report{}, ErrInvalidRange
	}

	var category *core.Category
	if f.CategoryID > 0 {
		cats, err := b.categories.ListCategories(ctx, ownerID, "")
		if err != nil {
			return Report{}, fmt.Errorf("list categories: %w", err)
		}
		for i := range cats {
			if cats[i].ID == f.CategoryID {
				category = &cats[i]
				break
			}
		}
		if category == nil {
			f.CategoryID = 0
		}
	}

	txs, err := b.src.TransactionsBetween(ctx, ownerID, f.From, f.To)
	if err != nil {
		return Report{}, fmt.Errorf("load transactions: %w", err)
	}
	txs = apply(txs, f)

	r := Report{
		Title:      title(category, f.Kind),
		Period:     fmt.Sprintf("%s a %s", f.From.Format("02/01/2006"), f.To.Format("02/01/2006")),
		Filter:     f,
		Category:   category,
		Summary:    Summarize(txs),
		Categories: TotalsByCategory(txs),
	}
	for _, tx := range txs {
		for _, it := range tx.Items {
			r.Rows = append(r.Rows, Row{
				TransactionID: tx.ID,
				Date:          tx.Date,
				Description:   tx.Description,
				Category:      it.Category.Name,
				Kind:          it.Category.Kind,
				Amount:        it.Amount,
			})
		}
	}
	return r, nil
}

func apply(txs []core.Transaction, f Filter) []core.Transaction {
	search := strings.ToLower(strings.TrimSpace(f.Search))
	out := make([]core.Transaction, 0, len(txs))
	for _, tx := range txs {
		if search != "" && !strings.Contains(strings.ToLower(tx.Description), search) {
			continue
		}
		if f.CategoryID == 0 && f.Kind == "" {
			out = append(out, tx)
			continue
		}
		kept := make([]core.TransactionItem, 0, len(tx.Items))
		for _, it := range tx.Items {
			if f.CategoryID > 0 && it.Category.ID != f.CategoryID {
				continue
			}
			if f.Kind != "" && it.Category.Kind != f.Kind {
				continue
			}
			kept = append(kept, it)
		}
		if len(kept) == 0 {
			continue
		}
		tx.Items = kept
		out = append(out, tx)
	}
	return out
}

func title(c *core.Category, kind core.CategoryKind) string {
	switch {
	case c != nil:
		return "Relatório financeiro: " + c.Name
	case kind == core.Income:
		return "Relatório financeiro: receitas"
	case kind == core.Expense:
		return "Relatório financeiro: despesas"
	}
	return "Relatório financeiro"
}
