package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fincontrol/internal/core"
	"fincontrol/internal/log"
	"fincontrol/internal/metrics"
	"fincontrol/internal/report"
	"fincontrol/internal/storage"
)

const testOwner = "alice"

type testEnv struct {
	srv   *Server
	repo  *storage.SQLiteRepository
	today core.Date
}

func newTestEnv(t *testing.T, mutate ...func(*Options)) *testEnv {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	opts := Options{
		Addr:        ":0",
		Repository:  repo,
		Metrics:     metrics.New(),
		Logger:      log.New(log.Config{Level: slog.LevelError, Output: io.Discard}),
		Location:    time.UTC,
		OwnerHeader: "X-Remote-User",
		RateLimit:   1000,
		CacheTTL:    time.Minute,
	}
	for _, m := range mutate {
		m(&opts)
	}
	srv := NewServer(opts)
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
		_ = repo.Close()
	})
	return &testEnv{srv: srv, repo: repo, today: srv.transactions.Today()}
}

type reqOpt func(*http.Request)

func asHTMX(r *http.Request) { r.Header.Set("HX-Request", "true") }

func acceptJSON(r *http.Request) { r.Header.Set("Accept", "application/json") }

func asOwner(name string) reqOpt {
	return func(r *http.Request) { r.Header.Set("X-Remote-User", name) }
}

func (e *testEnv) do(t *testing.T, method, path, body string, opts ...reqOpt) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("X-Remote-User", testOwner)
	switch {
	case strings.HasPrefix(body, "{"):
		req.Header.Set("Content-Type", "application/json")
	case body != "":
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for _, o := range opts {
		o(req)
	}
	rr := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func (e *testEnv) createCategory(t *testing.T, name string, kind core.CategoryKind) int64 {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/categories", fmt.Sprintf(`{"name":%q,"kind":%q}`, name, kind))
	if rr.Code != http.StatusCreated {
		t.Fatalf("create category %s: status %d body %s", name, rr.Code, rr.Body.String())
	}
	return decode[categoryJSON](t, rr).ID
}

func (e *testEnv) createTransaction(t *testing.T, desc string, date core.Date, items ...string) transactionResponse {
	t.Helper()
	body := fmt.Sprintf(`{"description":%q,"date":%q,"items":[%s]}`, desc, date.String(), strings.Join(items, ","))
	rr := e.do(t, http.MethodPost, "/transactions", body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create transaction: status %d body %s", rr.Code, rr.Body.String())
	}
	return decode[transactionResponse](t, rr)
}

func item(categoryID int64, amount string) string {
	return fmt.Sprintf(`{"category_id":%d,"amount":%s}`, categoryID, amount)
}

type validationBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields"`
}

func TestHealthAndReady(t *testing.T) {
	e := newTestEnv(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rr := httptest.NewRecorder()
		e.srv.Handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d body=%s", path, rr.Code, rr.Body.String())
		}
	}
}

func TestReadyFailsWhenDatabaseIsClosed(t *testing.T) {
	e := newTestEnv(t)
	_ = e.repo.Close()
	rr := e.do(t, http.MethodGet, "/readyz", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

type stubPublisher struct {
	healthy bool
	synced  []int64
}

func (p *stubPublisher) PublishTransactionSync(_ context.Context, id, _, _ int64) error {
	p.synced = append(p.synced, id)
	return nil
}

func (p *stubPublisher) PublishTransactionDelete(context.Context, int64, int64) error { return nil }

func (p *stubPublisher) Healthy() bool { return p.healthy }

func TestReadyReportsBrokerWithoutFailing(t *testing.T) {
	pub := &stubPublisher{}
	e := newTestEnv(t, func(o *Options) { o.Publisher = pub })

	rr := e.do(t, http.MethodGet, "/readyz", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with broker down, got %d", rr.Code)
	}
	if got := decode[healthResponse](t, rr).Checks["amqp"]; got != "disconnected" {
		t.Fatalf("amqp check = %q, want disconnected", got)
	}

	cat := e.createCategory(t, "Mercado", core.Expense)
	tx := e.createTransaction(t, "Feira", e.today, item(cat, "10.00"))
	if len(pub.synced) != 1 || pub.synced[0] != tx.ID {
		t.Fatalf("expected one sync event for %d, got %v", tx.ID, pub.synced)
	}
}

func TestOwnerIsRequired(t *testing.T) {
	e := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/categories", nil)
	req.Header.Set("Accept", "application/json")
	rr := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if decode[map[string]string](t, rr)["error"] == "" {
		t.Fatal("expected error message")
	}
}

func TestDefaultOwnerIsUsedWithoutHeader(t *testing.T) {
	e := newTestEnv(t, func(o *Options) { o.DefaultOwner = "household" })
	req := httptest.NewRequest(http.MethodGet, "/categories", nil)
	req.Header.Set("Accept", "application/json")
	rr := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestPagesRender(t *testing.T) {
	e := newTestEnv(t)
	food := e.createCategory(t, "Alimentação", core.Expense)
	tx := e.createTransaction(t, "Mercado", e.today, item(food, "25.90"))

	for _, tc := range []struct {
		path string
		want string
	}{
		{"/", "Por categoria"},
		{"/ui/dashboard", `id="dashboard"`},
		{"/categories", "Alimentação"},
		{fmt.Sprintf("/categories/%d", food), "Editar categoria"},
		{"/transactions", "Mercado"},
		{"/transactions/new", `name="items-TOTAL_FORMS"`},
		{fmt.Sprintf("/transactions/%d", tx.ID), "25,90"},
		{"/reports", "Exportar CSV"},
	} {
		t.Run(tc.path, func(t *testing.T) {
			rr := e.do(t, http.MethodGet, tc.path, "")
			if rr.Code != http.StatusOK {
				t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
			}
			if !strings.Contains(rr.Body.String(), tc.want) {
				t.Fatalf("body missing %q", tc.want)
			}
		})
	}
}

func TestCategoryLifecycle(t *testing.T) {
	e := newTestEnv(t)
	id := e.createCategory(t, "Salário", core.Income)

	rr := e.do(t, http.MethodPost, "/categories", `{"name":"Salário","kind":"INCOME"}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("duplicate: expected 422, got %d", rr.Code)
	}
	if decode[validationBody](t, rr).Fields["name"] == "" {
		t.Fatalf("duplicate: expected name error, got %s", rr.Body.String())
	}

	rr = e.do(t, http.MethodPost, "/categories", `{"name":"","kind":"OTHER"}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid: expected 422, got %d", rr.Code)
	}
	fields := decode[validationBody](t, rr).Fields
	if fields["name"] == "" || fields["kind"] == "" {
		t.Fatalf("invalid: expected name and kind errors, got %v", fields)
	}

	rr = e.do(t, http.MethodPost, fmt.Sprintf("/categories/%d", id), `{"name":"Salário CLT","kind":"INCOME"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("update: status %d", rr.Code)
	}
	if got := decode[categoryJSON](t, rr).Name; got != "Salário CLT" {
		t.Fatalf("update: name %q", got)
	}

	rr = e.do(t, http.MethodGet, "/categories?q=clt", "", acceptJSON)
	if list := decode[[]categoryJSON](t, rr); len(list) != 1 {
		t.Fatalf("search: expected 1 category, got %d", len(list))
	}

	rr = e.do(t, http.MethodDelete, fmt.Sprintf("/categories/%d", id), "", acceptJSON)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", rr.Code)
	}
	rr = e.do(t, http.MethodDelete, fmt.Sprintf("/categories/%d", id), "", acceptJSON)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("second delete: expected 404, got %d", rr.Code)
	}
}

func TestDeleteCategoryInUseIsConflict(t *testing.T) {
	e := newTestEnv(t)
	id := e.createCategory(t, "Transporte", core.Expense)
	tx := e.createTransaction(t, "Ônibus", e.today, item(id, "4.40"))

	rr := e.do(t, http.MethodDelete, fmt.Sprintf("/categories/%d", id), "", acceptJSON)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}

	rr = e.do(t, http.MethodPost, fmt.Sprintf("/categories/%d", id), `{"name":"Transporte","kind":"INCOME"}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("kind change in use: expected 422, got %d", rr.Code)
	}
	if decode[validationBody](t, rr).Fields["kind"] == "" {
		t.Fatalf("kind change in use: expected kind error, got %s", rr.Body.String())
	}

	rr = e.do(t, http.MethodPost, fmt.Sprintf("/categories/%d/delete", id), "", asHTMX)
	if rr.Code != http.StatusConflict {
		t.Fatalf("htmx: expected 409, got %d", rr.Code)
	}
	if !strings.Contains(rr.Header().Get("HX-Trigger"), "show-notification") {
		t.Fatalf("htmx: expected notification trigger, got %q", rr.Header().Get("HX-Trigger"))
	}

	rr = e.do(t, http.MethodDelete, fmt.Sprintf("/transactions/%d", tx.ID), "", acceptJSON)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete transaction: expected 204, got %d", rr.Code)
	}
	rr = e.do(t, http.MethodDelete, fmt.Sprintf("/categories/%d", id), "", acceptJSON)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete after references removed: expected 204, got %d", rr.Code)
	}
}

func TestCategoryFormFlow(t *testing.T) {
	e := newTestEnv(t)

	rr := e.do(t, http.MethodPost, "/categories", "name=Lazer&kind=EXPENSE")
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/categories" {
		t.Fatalf("expected redirect, got %d %q", rr.Code, rr.Header().Get("Location"))
	}

	rr = e.do(t, http.MethodPost, "/categories", "name=&kind=EXPENSE", asHTMX)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `data-field="name"`) {
		t.Fatalf("expected inline name error, got %s", rr.Body.String())
	}

	rr = e.do(t, http.MethodPost, "/categories", "name=Saúde&kind=EXPENSE", asHTMX)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if rr.Header().Get("HX-Retarget") != "#category-list" || !strings.Contains(rr.Body.String(), "Saúde") {
		t.Fatalf("expected refreshed list, got %q %s", rr.Header().Get("HX-Retarget"), rr.Body.String())
	}
}

func TestCreateTransactionValidation(t *testing.T) {
	e := newTestEnv(t)
	food := e.createCategory(t, "Alimentação", core.Expense)
	tomorrow := core.Date{Time: e.today.AddDate(0, 0, 1)}

	tests := []struct {
		name       string
		body       string
		wantFields []string
		wantError  string
	}{
		{
			name:       "missing category and bad amount",
			body:       fmt.Sprintf(`{"description":"Feira","date":%q,"items":[{"amount":10},{"category_id":%d,"amount":0}]}`, e.today, food),
			wantFields: []string{"items[0].category", "items[1].amount"},
		},
		{
			name:       "future date and empty description",
			body:       fmt.Sprintf(`{"description":"","date":%q,"items":[%s]}`, tomorrow, item(food, "1")),
			wantFields: []string{"description", "date"},
		},
		{
			name:      "no items",
			body:      fmt.Sprintf(`{"description":"Vazia","date":%q,"items":[]}`, e.today),
			wantError: msgNoItems,
		},
		{
			name:      "category of another owner",
			body:      fmt.Sprintf(`{"description":"Feira","date":%q,"items":[%s]}`, e.today, item(9999, "1")),
			wantError: msgUnknownCategory,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := e.do(t, http.MethodPost, "/transactions", tt.body)
			if rr.Code != http.StatusUnprocessableEntity {
				t.Fatalf("expected 422, got %d: %s", rr.Code, rr.Body.String())
			}
			got := decode[validationBody](t, rr)
			for _, f := range tt.wantFields {
				if got.Fields[f] == "" {
					t.Errorf("missing error for %s in %v", f, got.Fields)
				}
			}
			if tt.wantError != "" && got.Error != tt.wantError {
				t.Errorf("error = %q, want %q", got.Error, tt.wantError)
			}
		})
	}
}

func TestTransactionFormSkipsBlankAndDeletedRows(t *testing.T) {
	e := newTestEnv(t)
	food := e.createCategory(t, "Alimentação", core.Expense)

	form := url.Values{}
	form.Set("description", "Mercado")
	form.Set("date", e.today.String())
	form.Set("items-TOTAL_FORMS", "3")
	form.Set("items-0-category", fmt.Sprint(food))
	form.Set("items-0-amount", "1.234,50")
	form.Set("items-1-category", fmt.Sprint(food))
	form.Set("items-1-amount", "99")
	form.Set("items-1-DELETE", "on")

	rr := e.do(t, http.MethodPost, "/transactions", form.Encode())
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d: %s", rr.Code, rr.Body.String())
	}

	ownerID, _ := e.srv.owners.Get(testOwner)
	page, err := e.srv.transactions.List(context.Background(), ownerID, storage.ListFilter{Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 1 || len(page.Transactions[0].Items) != 1 {
		t.Fatalf("expected one transaction with one item, got %+v", page)
	}
	if !page.Transactions[0].Items[0].Amount.Equal(decimal.RequireFromString("1234.50")) {
		t.Fatalf("amount = %s", page.Transactions[0].Items[0].Amount)
	}
}

func TestTransactionFormErrorsLandOnFormRows(t *testing.T) {
	e := newTestEnv(t)
	food := e.createCategory(t, "Alimentação", core.Expense)

	form := url.Values{}
	form.Set("description", "Mercado")
	form.Set("date", e.today.String())
	form.Set("items-TOTAL_FORMS", "3")
	form.Set("items-0-category", fmt.Sprint(food))
	form.Set("items-0-amount", "10")
	form.Set("items-2-category", fmt.Sprint(food))
	form.Set("items-2-amount", "abc")

	rr := e.do(t, http.MethodPost, "/transactions", form.Encode(), asHTMX)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, `data-field="items[2].amount"`) {
		t.Fatalf("expected error on row 2, got %s", body)
	}
	if !strings.Contains(body, `value="abc"`) {
		t.Fatal("expected submitted value to be kept")
	}
}

func TestTransactionUpdateAndDelete(t *testing.T) {
	e := newTestEnv(t)
	food := e.createCategory(t, "Alimentação", core.Expense)
	fun := e.createCategory(t, "Lazer", core.Expense)
	created := e.createTransaction(t, "Mercado", e.today, item(food, "10"), item(fun, "5"))

	body := fmt.Sprintf(`{"description":"Mercado e cinema","date":%q,"items":[{"id":%d,"category_id":%d,"amount":12},{"id":%d,"delete":true},{"category_id":%d,"amount":3}]}`,
		e.today, created.Items[0].ID, food, created.Items[1].ID, fun)
	rr := e.do(t, http.MethodPost, fmt.Sprintf("/transactions/%d", created.ID), body)
	if rr.Code != http.StatusOK {
		t.Fatalf("update: status %d: %s", rr.Code, rr.Body.String())
	}
	updated := decode[transactionResponse](t, rr)
	if len(updated.Items) != 2 || updated.Version <= created.Version {
		t.Fatalf("update: got %+v", updated)
	}
	if !updated.TotalAmount.Abs().Equal(decimal.NewFromInt(15)) {
		t.Fatalf("update: total %s", updated.TotalAmount)
	}

	rr = e.do(t, http.MethodGet, fmt.Sprintf("/transactions/%d", created.ID), "", acceptJSON, asOwner("bob"))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("other owner: expected 404, got %d", rr.Code)
	}

	rr = e.do(t, http.MethodPost, fmt.Sprintf("/transactions/%d/delete", created.ID), "", asHTMX)
	if rr.Code != http.StatusOK {
		t.Fatalf("delete: status %d", rr.Code)
	}
	if !strings.Contains(rr.Header().Get("HX-Trigger"), "transactions:changed") {
		t.Fatalf("delete: missing trigger %q", rr.Header().Get("HX-Trigger"))
	}
	rr = e.do(t, http.MethodDelete, fmt.Sprintf("/transactions/%d", created.ID), "", acceptJSON)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("second delete: expected 404, got %d", rr.Code)
	}
}

func TestListTransactionsFiltersAndPaging(t *testing.T) {
	e := newTestEnv(t)
	food := e.createCategory(t, "Alimentação", core.Expense)
	pay := e.createCategory(t, "Salário", core.Income)
	for i := 0; i < pageSize+1; i++ {
		e.createTransaction(t, fmt.Sprintf("Padaria %d", i), e.today, item(food, "3"))
	}
	e.createTransaction(t, "Pagamento", e.today, item(pay, "1000"))

	type listBody struct {
		Transactions []transactionResponse `json:"transactions"`
		Total        int                   `json:"total"`
	}

	rr := e.do(t, http.MethodGet, "/transactions?page=2", "", acceptJSON)
	got := decode[listBody](t, rr)
	if got.Total != pageSize+2 || len(got.Transactions) != 2 {
		t.Fatalf("page 2: total %d rows %d", got.Total, len(got.Transactions))
	}

	rr = e.do(t, http.MethodGet, "/transactions?type=INCOME", "", acceptJSON)
	if got := decode[listBody](t, rr); got.Total != 1 || got.Transactions[0].Description != "Pagamento" {
		t.Fatalf("kind filter: %+v", got)
	}

	rr = e.do(t, http.MethodGet, "/transactions?q=padaria+1", "", acceptJSON)
	if got := decode[listBody](t, rr); got.Total == 0 {
		t.Fatal("search: expected matches")
	}

	rr = e.do(t, http.MethodGet, "/transactions", "")
	if !strings.Contains(rr.Body.String(), "page=2") {
		t.Fatal("expected link to the next page")
	}
}

func TestDashboardAPIAndCacheInvalidation(t *testing.T) {
	e := newTestEnv(t)
	pay := e.createCategory(t, "Salário", core.Income)
	food := e.createCategory(t, "Alimentação", core.Expense)
	e.createTransaction(t, "Pagamento", e.today, item(pay, "1000"))
	e.createTransaction(t, "Mercado", e.today, item(food, "250.50"))

	path := fmt.Sprintf("/api/dashboard?year=%d&month=%d", e.today.Year(), e.today.Month())
	type dash struct {
		Year           int                        `json:"year"`
		Month          int                        `json:"month"`
		Summary        map[string]decimal.Decimal `json:"summary"`
		CategoryTotals map[string]float64         `json:"category_totals"`
		DailyBalance   []struct {
			Date    string  `json:"date"`
			Balance float64 `json:"balance"`
		} `json:"daily_balance"`
	}

	rr := e.do(t, http.MethodGet, path, "")
	if rr.Code != http.StatusOK || !strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		t.Fatalf("status %d content-type %q", rr.Code, rr.Header().Get("Content-Type"))
	}
	got := decode[dash](t, rr)
	if !got.Summary["balance"].Equal(decimal.RequireFromString("749.50")) {
		t.Fatalf("balance = %s", got.Summary["balance"])
	}
	if got.CategoryTotals["Alimentação"] != 250.50 || len(got.DailyBalance) != 1 {
		t.Fatalf("unexpected dashboard %+v", got)
	}

	e.createTransaction(t, "Padaria", e.today, item(food, "9.50"))
	got = decode[dash](t, e.do(t, http.MethodGet, path, ""))
	if !got.Summary["expense"].Equal(decimal.NewFromInt(260)) {
		t.Fatalf("expected cache to be invalidated, expense = %s", got.Summary["expense"])
	}

	if rr := e.do(t, http.MethodGet, "/api/dashboard?month=13", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("invalid month: expected 400, got %d", rr.Code)
	}
	for _, q := range []string{"year=abc", "year=0&month=1", "year=10000&month=1"} {
		if rr := e.do(t, http.MethodGet, "/api/dashboard?"+q, ""); rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", q, rr.Code)
		}
	}
}

func TestLoadStartedBeforeWriteIsNotCached(t *testing.T) {
	e := newTestEnv(t)
	owner, err := e.repo.EnsureUser(context.Background(), testOwner)
	if err != nil {
		t.Fatal(err)
	}
	key := dashboardKey(owner, e.today.Year(), int(e.today.Month()))

	// a load reads the generation, then a write lands before it finishes
	gen := e.srv.generation(owner)
	e.srv.invalidateOwner(owner)
	if e.srv.storeMonth(owner, gen, key, report.Month{Year: 1999}) {
		t.Fatal("stale load must not be cached")
	}
	if _, ok := e.srv.dashboards.Get(key); ok {
		t.Fatal("cache holds a month loaded before the write")
	}

	if !e.srv.storeMonth(owner, e.srv.generation(owner), key, report.Month{Year: 2000}) {
		t.Fatal("current load should be cached")
	}
	if m, ok := e.srv.dashboards.Get(key); !ok || m.Year != 2000 {
		t.Fatalf("cached month = %+v, %v", m, ok)
	}

	// other owners keep their generation
	if e.srv.generation(owner+1) != 0 {
		t.Fatal("invalidation leaked to another owner")
	}
}

func TestReportsAndExport(t *testing.T) {
	e := newTestEnv(t)
	food := e.createCategory(t, "Alimentação", core.Expense)
	pay := e.createCategory(t, "Salário", core.Income)
	e.createTransaction(t, "Mercado", e.today, item(food, "30"), item(pay, "100"))

	from := core.NewDate(e.today.Year(), int(e.today.Month()), 1)
	query := fmt.Sprintf("start_date=%s&end_date=%s&type=EXPENSE", from, e.today)

	rr := e.do(t, http.MethodGet, "/reports?"+query, "", acceptJSON)
	if rr.Code != http.StatusOK {
		t.Fatalf("report: status %d", rr.Code)
	}
	rep := decode[struct {
		Rows []reportRowJSON `json:"rows"`
	}](t, rr)
	if len(rep.Rows) != 1 || rep.Rows[0].Category != "Alimentação" {
		t.Fatalf("report rows: %+v", rep.Rows)
	}

	rr = e.do(t, http.MethodGet, "/reports/export?format=csv&"+query, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("export: status %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("export: content-type %q", ct)
	}
	wantName := fmt.Sprintf("relatorio_%s_%s.csv", from.Format("20060102"), e.today.Format("20060102"))
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, wantName) {
		t.Fatalf("export: content-disposition %q, want %s", cd, wantName)
	}
	if body := rr.Body.String(); !strings.Contains(body, "Mercado") || strings.Contains(body, "Salário") {
		t.Fatalf("export body: %s", body)
	}

	if rr := e.do(t, http.MethodGet, "/reports/export?format=pdf", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("pdf: expected 400, got %d", rr.Code)
	}

	bad := fmt.Sprintf("/reports?start_date=%s&end_date=%s", e.today, from.AddDate(0, 0, -1).Format(core.DateLayout))
	if rr := e.do(t, http.MethodGet, bad, ""); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("inverted range: expected 422, got %d", rr.Code)
	}
}

func TestMetricsEndpointRecordsRoutes(t *testing.T) {
	e := newTestEnv(t)
	e.do(t, http.MethodGet, "/categories", "", acceptJSON)

	rr := e.do(t, http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics: status %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `route="/categories"`) {
		t.Fatal("expected request metric labelled by route")
	}
}

func TestWritesAreRateLimited(t *testing.T) {
	e := newTestEnv(t, func(o *Options) { o.RateLimit = 2 })
	for i := 0; i < 2; i++ {
		e.do(t, http.MethodPost, "/categories", fmt.Sprintf(`{"name":"C%d","kind":"EXPENSE"}`, i))
	}
	rr := e.do(t, http.MethodPost, "/categories", `{"name":"C3","kind":"EXPENSE"}`)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if rr := e.do(t, http.MethodGet, "/categories", "", acceptJSON); rr.Code != http.StatusOK {
		t.Fatalf("reads must not be limited, got %d", rr.Code)
	}
}
