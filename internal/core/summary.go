package core

import "github.com/shopspring/decimal"

// SignedTotal is the cached total of a transaction: income items add, expense
// items subtract. It depends only on the items, so recomputing is idempotent.
func SignedTotal(items []TransactionItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Signed())
	}
	return total
}
