package http

import (
	"encoding/json"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"fincontrol/internal/core"
)

var hundred = decimal.NewFromInt(100)

// formatBRL formats an amount as Brazilian reais, e.g. "R$ 1.234,56".
func formatBRL(d decimal.Decimal) string {
	neg := d.IsNegative()
	s := d.Abs().StringFixed(2)
	whole, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	out := "R$ " + b.String() + "," + frac
	if neg {
		return "-" + out
	}
	return out
}

// formatInput renders an amount the way the form fields expect it back.
func formatInput(d decimal.Decimal) string {
	if d.IsZero() {
		return ""
	}
	return strings.Replace(d.StringFixed(2), ".", ",", 1)
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// wantsJSON reports whether the client asked for a JSON response.
func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json") ||
		strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// rowPlaceholder is replaced with the next row index by the add-item script.
const rowPlaceholder = "__prefix__"

// itemRowView is the data of one item row in the transaction form.
type itemRowView struct {
	Key        string
	Row        ItemRow
	Categories []core.Category
	Errors     map[string]string
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"brl":   formatBRL,
		"input": formatInput,
		"kind":  func(k core.CategoryKind) string { return k.Label() },
		"date":  func(d core.Date) string { return d.Format("02/01/2006") },
		"iso":   func(d core.Date) string { return d.String() },
		"pct": func(part, whole decimal.Decimal) string {
			if whole.IsZero() {
				return "0"
			}
			return part.Mul(hundred).Div(whole).StringFixed(0)
		},
		"itemRow": func(row ItemRow, cats []core.Category, errs map[string]string) itemRowView {
			return itemRowView{Key: strconv.Itoa(row.Index), Row: row, Categories: cats, Errors: errs}
		},
		"blankItemRow": func(cats []core.Category) itemRowView {
			return itemRowView{Key: rowPlaceholder, Categories: cats}
		},
		"add": func(a, b int) int { return a + b },
		"sub": func(a, b int) int { return a - b },
	}
}
