package sheets

import (
	"context"

	"fincontrol/internal/core"
)

// Ports for outbound adapters.
type (
	// TransactionMirror keeps an external copy of transactions, one row per item.
	TransactionMirror interface {
		// Upsert replaces every row of t.ID with the current items of t.
		Upsert(ctx context.Context, t core.Transaction) error
		// Delete removes every row of the transaction. Missing rows are not an error.
		Delete(ctx context.Context, id int64) error
	}
)

// Header is the first row of the mirror sheet.
var Header = []interface{}{"ID", "Dono", "Data", "Descrição", "Categoria", "Tipo", "Valor", "Versão"}

// Rows renders t in the mirror layout. Amounts are signed so a column sum
// gives the balance.
func Rows(t core.Transaction) [][]interface{} {
	rows := make([][]interface{}, 0, len(t.Items))
	for _, it := range t.Items {
		rows = append(rows, []interface{}{
			t.ID,
			t.OwnerID,
			t.Date.String(),
			t.Description,
			it.Category.Name,
			it.Category.Kind.Label(),
			it.Signed().StringFixed(2),
			t.Version,
		})
	}
	return rows
}
