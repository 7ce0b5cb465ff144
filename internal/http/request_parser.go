// Package http serves the finance tracker's pages, HTMX partials and JSON
// endpoints.
//
// This file holds the request parsing helpers shared by the handlers.
package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"fincontrol/internal/core"
	"fincontrol/internal/report"
	"fincontrol/internal/storage"
)

const (
	pageSize    = 20
	maxFormRows = 50
)

// MonthParams holds parsed year/month values from request parameters.
type MonthParams struct {
	Year  int
	Month int
}

// ParseMonthParams reads year and month from the query, defaulting to
// today's. Non-numeric values are an error; range checks are left to the
// report engine.
func ParseMonthParams(query url.Values, today core.Date) (MonthParams, error) {
	params := MonthParams{Year: today.Year(), Month: int(today.Month())}

	if v := strings.TrimSpace(query.Get("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			return params, fmt.Errorf("invalid year %q", v)
		}
		params.Year = y
	}
	if v := strings.TrimSpace(query.Get("month")); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil {
			return params, fmt.Errorf("invalid month %q", v)
		}
		params.Month = m
	}
	return params, nil
}

// Prev returns the previous calendar month.
func (p MonthParams) Prev() MonthParams {
	if p.Month <= 1 {
		return MonthParams{Year: p.Year - 1, Month: 12}
	}
	return MonthParams{Year: p.Year, Month: p.Month - 1}
}

// Next returns the following calendar month.
func (p MonthParams) Next() MonthParams {
	if p.Month >= 12 {
		return MonthParams{Year: p.Year + 1, Month: 1}
	}
	return MonthParams{Year: p.Year, Month: p.Month + 1}
}

// ParseListFilter reads the transaction list filters. Invalid values are
// ignored, matching how the filter form behaves.
func ParseListFilter(query url.Values) (storage.ListFilter, int) {
	f := storage.ListFilter{
		Search: sanitizeInput(query.Get("q")),
		Limit:  pageSize,
	}
	if d, err := core.ParseDate(query.Get("start_date")); err == nil {
		f.From = d
	}
	if d, err := core.ParseDate(query.Get("end_date")); err == nil {
		f.To = d
	}
	if k, err := core.ParseCategoryKind(query.Get("type")); err == nil {
		f.Kind = k
	}
	page := 1
	if p, err := strconv.Atoi(query.Get("page")); err == nil && p > 1 {
		page = p
	}
	f.Offset = (page - 1) * pageSize
	return f, page
}

// ParseReportFilter reads the report filters. The period defaults to the
// first of the current month through today.
func ParseReportFilter(query url.Values, today core.Date) report.Filter {
	f := report.Filter{
		From:   core.NewDate(today.Year(), int(today.Month()), 1),
		To:     today,
		Search: sanitizeInput(query.Get("q")),
	}
	if d, err := core.ParseDate(query.Get("start_date")); err == nil {
		f.From = d
	}
	if d, err := core.ParseDate(query.Get("end_date")); err == nil {
		f.To = d
	}
	if id, err := strconv.ParseInt(query.Get("category"), 10, 64); err == nil && id > 0 {
		f.CategoryID = id
	}
	if k, err := core.ParseCategoryKind(query.Get("type")); err == nil {
		f.Kind = k
	}
	return f
}

// ItemRow is one line of the item formset, kept raw so the form can be
// re-rendered as submitted.
type ItemRow struct {
	Index      int
	ID         int64
	CategoryID int64
	Category   string
	Amount     string
	Deleted    bool
}

func (r ItemRow) blank() bool {
	return r.Category == "" && r.Amount == ""
}

// TransactionForm is a submitted transaction with its item formset.
type TransactionForm struct {
	Description string
	Date        string
	Items       []ItemRow
}

var itemKey = regexp.MustCompile(`^items-(\d+)-`)

// ParseTransactionForm reads description, date and the items-N-* formset
// fields. items-TOTAL_FORMS bounds the rows when present.
func ParseTransactionForm(form url.Values) TransactionForm {
	f := TransactionForm{
		Description: sanitizeInput(form.Get("description")),
		Date:        strings.TrimSpace(form.Get("date")),
	}

	total := -1
	if v, err := strconv.Atoi(form.Get("items-TOTAL_FORMS")); err == nil && v >= 0 {
		total = min(v, maxFormRows)
	}
	if total < 0 {
		for key := range form {
			if m := itemKey.FindStringSubmatch(key); m != nil {
				if i, err := strconv.Atoi(m[1]); err == nil && i < maxFormRows && i+1 > total {
					total = i + 1
				}
			}
		}
	}

	for i := 0; i < total; i++ {
		prefix := fmt.Sprintf("items-%d-", i)
		row := ItemRow{
			Index:    i,
			Category: strings.TrimSpace(form.Get(prefix + "category")),
			Amount:   strings.TrimSpace(form.Get(prefix + "amount")),
			Deleted:  isChecked(form.Get(prefix + "DELETE")),
		}
		row.ID, _ = strconv.ParseInt(form.Get(prefix+"id"), 10, 64)
		row.CategoryID, _ = strconv.ParseInt(row.Category, 10, 64)
		f.Items = append(f.Items, row)
	}
	return f
}

func isChecked(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "on", "true", "1", "yes":
		return true
	}
	return false
}

type transactionJSON struct {
	Description string `json:"description"`
	Date        string `json:"date"`
	Items       []struct {
		ID         int64       `json:"id"`
		CategoryID int64       `json:"category_id"`
		Amount     json.Number `json:"amount"`
		Delete     bool        `json:"delete"`
	} `json:"items"`
}

// DecodeTransactionJSON reads a JSON transaction body into the same shape as
// the HTML form.
func DecodeTransactionJSON(body io.Reader) (TransactionForm, error) {
	var in transactionJSON
	if err := json.NewDecoder(io.LimitReader(body, 1<<20)).Decode(&in); err != nil {
		return TransactionForm{}, fmt.Errorf("decode transaction: %w", err)
	}
	f := TransactionForm{
		Description: sanitizeInput(in.Description),
		Date:        strings.TrimSpace(in.Date),
	}
	for i, it := range in.Items {
		row := ItemRow{
			Index:      i,
			ID:         it.ID,
			CategoryID: it.CategoryID,
			Amount:     it.Amount.String(),
			Deleted:    it.Delete,
		}
		if it.CategoryID > 0 {
			row.Category = strconv.FormatInt(it.CategoryID, 10)
		}
		f.Items = append(f.Items, row)
	}
	return f, nil
}

// Transaction converts the form into a domain transaction. Deleted rows and
// blank extra rows are dropped. rows maps each retained item back to its form
// row. Parse problems come back as field errors keyed by form row.
func (f TransactionForm) Transaction() (t core.Transaction, rows []int, errs core.ValidationErrors) {
	t.Description = f.Description

	if f.Date == "" {
		errs = errs.Add("date", core.ErrInvalidDate.Error())
	} else if d, err := core.ParseDate(f.Date); err != nil {
		errs = errs.Add("date", core.ErrInvalidDate.Error())
	} else {
		t.Date = d
	}

	for _, row := range f.Items {
		if row.Deleted || (row.ID == 0 && row.blank()) {
			continue
		}
		item := core.TransactionItem{ID: row.ID, Category: core.Category{ID: row.CategoryID}}
		if row.CategoryID <= 0 {
			errs = errs.Add(rowField(row.Index, "category"), core.ErrMissingCategory.Error())
		}
		amount, err := core.ParseAmount(row.Amount)
		if err != nil {
			errs = errs.Add(rowField(row.Index, "amount"), err.Error())
		}
		item.Amount = amount
		t.Items = append(t.Items, item)
		rows = append(rows, row.Index)
	}
	return t, rows, errs
}

func rowField(i int, name string) string {
	return fmt.Sprintf("items[%d].%s", i, name)
}

var itemErrorField = regexp.MustCompile(`^items\[(\d+)\]\.(\w+)$`)

// remapItemErrors rewrites item indexes from retained-item positions to form
// rows so messages land next to the right inputs.
func remapItemErrors(errs core.ValidationErrors, rows []int) core.ValidationErrors {
	out := make(core.ValidationErrors, 0, len(errs))
	for _, fe := range errs {
		if m := itemErrorField.FindStringSubmatch(fe.Field); m != nil {
			if i, err := strconv.Atoi(m[1]); err == nil && i < len(rows) {
				fe.Field = rowField(rows[i], m[2])
			}
		}
		out = append(out, fe)
	}
	return out
}

// RequestBodyParser reads a body once and exposes it as JSON or form values.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]interface{}
	formData    url.Values
	parsed      bool
	err         error
}

func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	p.body, p.err = io.ReadAll(io.LimitReader(r.Body, 1<<20))
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	if len(p.body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if p.body[0] == '{' {
		p.jsonData = make(map[string]interface{})
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(string(p.body))
	return p.err
}

// Get returns a sanitized string value from the parsed data.
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

func stringValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// parseID reads the {id} path value.
func parseID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}
