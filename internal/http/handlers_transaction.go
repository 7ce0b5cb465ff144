package http

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"fincontrol/internal/core"
	"fincontrol/internal/log"
	"fincontrol/internal/storage"
)

const (
	msgNoItems         = "Informe ao menos um item."
	msgUnknownCategory = "Categoria inválida para este usuário."
	minFormRows        = 3
)

type itemResponse struct {
	ID         int64             `json:"id"`
	CategoryID int64             `json:"category_id"`
	Category   string            `json:"category"`
	Kind       core.CategoryKind `json:"kind"`
	Amount     decimal.Decimal   `json:"amount"`
}

type transactionResponse struct {
	ID          int64           `json:"id"`
	Description string          `json:"description"`
	Date        string          `json:"date"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Version     int64           `json:"version"`
	Items       []itemResponse  `json:"items"`
}

func toTransactionResponse(t core.Transaction) transactionResponse {
	out := transactionResponse{
		ID:          t.ID,
		Description: t.Description,
		Date:        t.Date.String(),
		TotalAmount: t.TotalAmount,
		Version:     t.Version,
		Items:       make([]itemResponse, 0, len(t.Items)),
	}
	for _, it := range t.Items {
		out.Items = append(out.Items, itemResponse{
			ID:         it.ID,
			CategoryID: it.Category.ID,
			Category:   it.Category.Name,
			Kind:       it.Category.Kind,
			Amount:     it.Amount,
		})
	}
	return out
}

type transactionsView struct {
	pageMeta
	Page       storage.Page
	Search     string
	StartDate  string
	EndDate    string
	Type       string
	PageNum    int
	TotalPages int
	PrevURL    string
	NextURL    string
}

type transactionFormView struct {
	pageMeta
	Action     string
	ID         int64
	Form       TransactionForm
	Categories []core.Category
	Errors     map[string]string
	FormError  string
	Today      string
}

func pageURL(query url.Values, page int) string {
	q := url.Values{}
	for k, v := range query {
		q[k] = v
	}
	q.Set("page", strconv.Itoa(page))
	return "/transactions?" + q.Encode()
}

// handleListTransactions lists the owner's transactions with search, date
// range, kind and paging filters.
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter, pageNum := ParseListFilter(query)

	page, err := s.transactions.List(r.Context(), ownerFrom(r.Context()), filter)
	if err != nil {
		s.serverError(w, r, "Failed to list transactions", err)
		return
	}

	if wantsJSON(r) {
		out := make([]transactionResponse, 0, len(page.Transactions))
		for _, t := range page.Transactions {
			out = append(out, toTransactionResponse(t))
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"transactions": out,
			"total":        page.Total,
			"page":         pageNum,
			"page_size":    pageSize,
		})
		return
	}

	totalPages := (page.Total + pageSize - 1) / pageSize
	view := transactionsView{
		pageMeta:   pageMeta{Title: "Transações", Nav: "transactions"},
		Page:       page,
		Search:     filter.Search,
		StartDate:  filter.From.String(),
		EndDate:    filter.To.String(),
		Type:       string(filter.Kind),
		PageNum:    pageNum,
		TotalPages: max(totalPages, 1),
	}
	if pageNum > 1 {
		view.PrevURL = pageURL(query, pageNum-1)
	}
	if pageNum < totalPages {
		view.NextURL = pageURL(query, pageNum+1)
	}

	if isHTMX(r) {
		s.render(w, r, http.StatusOK, "transaction_list", view)
		return
	}
	s.render(w, r, http.StatusOK, "transactions_page", view)
}

func (s *Server) handleNewTransaction(w http.ResponseWriter, r *http.Request) {
	form := TransactionForm{Date: s.transactions.Today().String()}
	view, err := s.transactionFormView(r, 0, form)
	if err != nil {
		s.serverError(w, r, "Failed to load categories", err)
		return
	}
	s.render(w, r, http.StatusOK, "transaction_form_page", view)
}

func (s *Server) handleEditTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		ErrorFor(r, http.StatusNotFound, "Transação não encontrada").Write(w)
		return
	}
	t, err := s.transactions.Get(r.Context(), ownerFrom(r.Context()), id)
	if errors.Is(err, storage.ErrNotFound) {
		ErrorFor(r, http.StatusNotFound, "Transação não encontrada").Write(w)
		return
	}
	if err != nil {
		s.serverError(w, r, "Failed to load transaction", err)
		return
	}
	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, toTransactionResponse(t))
		return
	}
	view, err := s.transactionFormView(r, id, formFromTransaction(t))
	if err != nil {
		s.serverError(w, r, "Failed to load categories", err)
		return
	}
	s.render(w, r, http.StatusOK, "transaction_form_page", view)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	s.saveTransaction(w, r, 0)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		ErrorFor(r, http.StatusNotFound, "Transação não encontrada").Write(w)
		return
	}
	s.saveTransaction(w, r, id)
}

func readTransactionForm(w http.ResponseWriter, r *http.Request) (TransactionForm, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		return DecodeTransactionJSON(r.Body)
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := r.ParseForm(); err != nil {
		return TransactionForm{}, err
	}
	return ParseTransactionForm(r.PostForm), nil
}

// saveTransaction creates (id == 0) or updates a transaction and its items.
func (s *Server) saveTransaction(w http.ResponseWriter, r *http.Request, id int64) {
	ctx := r.Context()
	ownerID := ownerFrom(ctx)

	form, err := readTransactionForm(w, r)
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			ErrorFor(r, http.StatusBadRequest, "Corpo da requisição vazio ou incompleto").Write(w)
			return
		}
		ErrorFor(r, http.StatusBadRequest, "Formato de requisição inválido").Write(w)
		return
	}

	tx, rows, parseErrs := form.Transaction()
	if len(parseErrs) > 0 {
		var verrs core.ValidationErrors
		if errors.As(tx.Validate(s.transactions.Today()), &verrs) {
			parseErrs = append(parseErrs, remapItemErrors(verrs, rows)...)
		}
		s.transactionFormError(w, r, id, form, parseErrs, "")
		return
	}

	var saved core.Transaction
	op := log.OpCreate
	if id == 0 {
		saved, err = s.transactions.Create(ctx, ownerID, tx)
	} else {
		op = log.OpUpdate
		saved, err = s.transactions.Update(ctx, ownerID, id, tx)
	}

	var verrs core.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		s.transactionFormError(w, r, id, form, remapItemErrors(verrs, rows), "")
		return
	case errors.Is(err, core.ErrNoItems):
		s.transactionFormError(w, r, id, form, nil, msgNoItems)
		return
	case errors.Is(err, storage.ErrUnknownCategory):
		s.transactionFormError(w, r, id, form, nil, msgUnknownCategory)
		return
	case errors.Is(err, storage.ErrNotFound):
		ErrorFor(r, http.StatusNotFound, "Transação não encontrada").Write(w)
		return
	case err != nil:
		s.serverError(w, r, "Failed to save transaction", err)
		return
	}

	s.metrics.TransactionWrite(op)
	s.events.LogTransactionSaved(ctx, op, ownerID, saved.ID, saved.Version, saved.TotalAmount.StringFixed(2), len(saved.Items))

	switch {
	case wantsJSON(r):
		status := http.StatusOK
		if id == 0 {
			status = http.StatusCreated
		}
		writeJSON(w, status, toTransactionResponse(saved))
	case isHTMX(r):
		NewHTMXResponse().
			Redirect("/transactions").
			TriggerTransactionsChanged(saved.Date.Year(), int(saved.Date.Month())).
			TriggerSuccessNotification("Transação salva: " + saved.Description).
			Write(w)
	default:
		http.Redirect(w, r, "/transactions", http.StatusSeeOther)
	}
}

func (s *Server) transactionFormError(w http.ResponseWriter, r *http.Request, id int64, form TransactionForm, errs core.ValidationErrors, formError string) {
	if wantsJSON(r) {
		if formError != "" {
			JSONError(http.StatusUnprocessableEntity, formError).Write(w)
			return
		}
		ValidationErrorResponse(r, errs).Write(w)
		return
	}

	view, err := s.transactionFormView(r, id, form)
	if err != nil {
		s.serverError(w, r, "Failed to load categories", err)
		return
	}
	view.Errors = errs.Map()
	view.FormError = formError

	name := "transaction_form_page"
	if isHTMX(r) {
		name = "transaction_form"
	}
	s.render(w, r, http.StatusUnprocessableEntity, name, view)
}

func (s *Server) transactionFormView(r *http.Request, id int64, form TransactionForm) (transactionFormView, error) {
	cats, err := s.categories.List(r.Context(), ownerFrom(r.Context()), "")
	if err != nil {
		return transactionFormView{}, err
	}
	view := transactionFormView{
		pageMeta:   pageMeta{Title: "Nova transação", Nav: "transactions"},
		Action:     "/transactions",
		ID:         id,
		Form:       padRows(form),
		Categories: cats,
		Errors:     map[string]string{},
		Today:      s.transactions.Today().String(),
	}
	if id > 0 {
		view.Title = "Editar transação"
		view.Action = "/transactions/" + strconv.FormatInt(id, 10)
	}
	return view, nil
}

// padRows appends blank rows so the form always offers an empty line.
func padRows(form TransactionForm) TransactionForm {
	items := append([]ItemRow(nil), form.Items...)
	for len(items) < minFormRows || !items[len(items)-1].blank() {
		items = append(items, ItemRow{Index: len(items)})
	}
	form.Items = items
	return form
}

func formFromTransaction(t core.Transaction) TransactionForm {
	form := TransactionForm{Description: t.Description, Date: t.Date.String()}
	for i, it := range t.Items {
		form.Items = append(form.Items, ItemRow{
			Index:      i,
			ID:         it.ID,
			CategoryID: it.Category.ID,
			Category:   strconv.FormatInt(it.Category.ID, 10),
			Amount:     formatInput(it.Amount),
		})
	}
	return form
}

// handleDeleteTransaction removes a transaction and its items.
func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		ErrorFor(r, http.StatusNotFound, "Transação não encontrada").Write(w)
		return
	}
	ctx := r.Context()
	ownerID := ownerFrom(ctx)

	t, err := s.transactions.Get(ctx, ownerID, id)
	if err == nil {
		err = s.transactions.Delete(ctx, ownerID, id)
	}
	switch {
	case errors.Is(err, storage.ErrNotFound):
		ErrorFor(r, http.StatusNotFound, "Transação não encontrada").Write(w)
		return
	case err != nil:
		s.serverError(w, r, "Failed to delete transaction", err)
		return
	}

	s.metrics.TransactionWrite(log.OpDelete)
	log.FromContext(ctx).WithComponent(log.ComponentTransaction).InfoContext(ctx, "Transaction deleted",
		log.FieldTransactionID, id)

	switch {
	case wantsJSON(r):
		w.WriteHeader(http.StatusNoContent)
	case isHTMX(r):
		NewHTMXResponse().
			TriggerTransactionsChanged(t.Date.Year(), int(t.Date.Month())).
			TriggerSuccessNotification("Transação excluída").
			Write(w)
	default:
		http.Redirect(w, r, "/transactions", http.StatusSeeOther)
	}
}
