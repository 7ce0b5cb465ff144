package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// WriteCSV renders the fixed export layout: title block, summary table,
// per-category table and the detail table, separated by blank records.
func WriteCSV(w io.Writer, r Report) error {
	cw := csv.NewWriter(w)
	records := [][]string{
		{textCell(r.Title)},
		{"Período", r.Period},
		{},
		{"Resumo"},
		{"Receitas", r.Summary.Income.StringFixed(2)},
		{"Despesas", r.Summary.Expense.StringFixed(2)},
		{"Saldo", r.Summary.Balance.StringFixed(2)},
		{},
		{"Categoria", "Tipo", "Total"},
	}
	for _, ct := range r.Categories {
		records = append(records, []string{textCell(ct.Name), ct.Kind.Label(), ct.Amount.StringFixed(2)})
	}
	records = append(records, []string{}, []string{"Data", "Descrição", "Categoria", "Tipo", "Valor"})
	for _, row := range r.Rows {
		records = append(records, []string{
			row.Date.String(),
			textCell(row.Description),
			textCell(row.Category),
			row.Kind.Label(),
			row.Kind.Sign(row.Amount).StringFixed(2),
		})
	}
	if err := cw.WriteAll(records); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

// textCell keeps user text from being read as a formula by spreadsheet apps.
func textCell(s string) string {
	if s != "" && strings.ContainsRune("=+-@\t\r", rune(s[0])) {
		return "'" + s
	}
	return s
}

// Filename is the suggested download name for the report.
func (r Report) Filename() string {
	return fmt.Sprintf("relatorio_%s_%s.csv", r.Filter.From.Format("20060102"), r.Filter.To.Format("20060102"))
}
