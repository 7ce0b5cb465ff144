package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fincontrol/internal/core"

	_ "modernc.org/sqlite"
)

const timestampLayout = "2006-01-02T15:04:05.000000Z"

var (
	ErrNotFound          = errors.New("not found")
	ErrCategoryInUse     = errors.New("category is referenced by transaction items")
	ErrDuplicateCategory = errors.New("category with this name already exists")
	ErrUnknownCategory   = errors.New("category does not belong to owner")
	ErrCategoryKindInUse = errors.New("category kind cannot change while items reference it")
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

// NewSQLiteRepository opens dbPath with foreign keys enforced, applies
// pending migrations and returns a ready repository.
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func dsn(dbPath string) string {
	return dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database answers.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// EnsureUser returns the id for username, creating the user on first sight.
func (r *SQLiteRepository) EnsureUser(ctx context.Context, username string) (int64, error) {
	id, err := r.queries.UpsertUser(ctx, username, now())
	if err != nil {
		return 0, fmt.Errorf("upsert user %q: %w", username, err)
	}
	return id, nil
}

func (r *SQLiteRepository) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	row, err := r.queries.CreateCategory(ctx, CreateCategoryParams{
		OwnerID:   c.OwnerID,
		Name:      strings.TrimSpace(c.Name),
		Kind:      string(c.Kind),
		CreatedAt: now(),
	})
	if err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", mapConstraint(err))
	}

	slog.InfoContext(ctx, "Category created", "id", row.ID, "owner_id", row.OwnerID, "name", row.Name, "kind", row.Kind)
	return toCategory(row), nil
}

// UpdateCategory renames a category and may change its kind only while no
// item references it, so stored transaction totals stay consistent.
func (r *SQLiteRepository) UpdateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Category{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()
	q := r.queries.WithTx(tx)

	current, err := q.GetCategory(ctx, c.ID, c.OwnerID)
	if err != nil {
		return core.Category{}, fmt.Errorf("update category %d: %w", c.ID, mapNoRows(err))
	}
	if current.Kind != string(c.Kind) {
		refs, err := q.CountCategoryItems(ctx, c.ID)
		if err != nil {
			return core.Category{}, fmt.Errorf("count category references: %w", err)
		}
		if refs > 0 {
			return core.Category{}, fmt.Errorf("update category %d: %w", c.ID, ErrCategoryKindInUse)
		}
	}

	n, err := q.UpdateCategory(ctx, UpdateCategoryParams{
		Name:    strings.TrimSpace(c.Name),
		Kind:    string(c.Kind),
		ID:      c.ID,
		OwnerID: c.OwnerID,
	})
	if err != nil {
		return core.Category{}, fmt.Errorf("update category %d: %w", c.ID, mapConstraint(err))
	}
	if n == 0 {
		return core.Category{}, fmt.Errorf("update category %d: %w", c.ID, ErrNotFound)
	}
	if err := tx.Commit(); err != nil {
		return core.Category{}, fmt.Errorf("commit: %w", mapConstraint(err))
	}
	return r.GetCategory(ctx, c.OwnerID, c.ID)
}

func (r *SQLiteRepository) GetCategory(ctx context.Context, ownerID, id int64) (core.Category, error) {
	row, err := r.queries.GetCategory(ctx, id, ownerID)
	if err != nil {
		return core.Category{}, fmt.Errorf("get category %d: %w", id, mapNoRows(err))
	}
	return toCategory(row), nil
}

// ListCategories returns the owner's categories sorted by name, optionally
// restricted to names containing search.
func (r *SQLiteRepository) ListCategories(ctx context.Context, ownerID int64, search string) ([]core.Category, error) {
	rows, err := r.queries.ListCategories(ctx, ownerID, strings.TrimSpace(search))
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	out := make([]core.Category, len(rows))
	for i, row := range rows {
		out[i] = toCategory(row)
	}
	return out, nil
}

// DeleteCategory removes a category that no item references. The reference
// check and the delete share one transaction; the RESTRICT foreign key backs
// it up.
func (r *SQLiteRepository) DeleteCategory(ctx context.Context, ownerID, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()
	q := r.queries.WithTx(tx)

	if _, err := q.GetCategory(ctx, id, ownerID); err != nil {
		return fmt.Errorf("delete category %d: %w", id, mapNoRows(err))
	}
	refs, err := q.CountCategoryItems(ctx, id)
	if err != nil {
		return fmt.Errorf("count category references: %w", err)
	}
	if refs > 0 {
		return fmt.Errorf("delete category %d: %w", id, ErrCategoryInUse)
	}
	if _, err := q.DeleteCategory(ctx, id, ownerID); err != nil {
		return fmt.Errorf("delete category %d: %w", id, mapConstraint(err))
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", mapConstraint(err))
	}

	slog.InfoContext(ctx, "Category deleted", "id", id, "owner_id", ownerID)
	return nil
}

// SaveTransaction writes the header and the full item set of t as one unit of
// work and returns the stored transaction. Items with an ID are updated, items
// without one are inserted and stored items missing from t are deleted. The
// total is recomputed from the stored items before commit, the version is
// bumped and the mirror status reset to pending. Any failure rolls back
// everything.
func (r *SQLiteRepository) SaveTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()
	q := r.queries.WithTx(tx)
	ts := now()

	id := t.ID
	if id == 0 {
		id, err = q.InsertTransaction(ctx, InsertTransactionParams{
			OwnerID:     t.OwnerID,
			Description: strings.TrimSpace(t.Description),
			Date:        t.Date.String(),
			Now:         ts,
		})
		if err != nil {
			return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
		}
	} else {
		n, err := q.UpdateTransactionHeader(ctx, UpdateTransactionHeaderParams{
			Description: strings.TrimSpace(t.Description),
			Date:        t.Date.String(),
			Now:         ts,
			ID:          id,
			OwnerID:     t.OwnerID,
		})
		if err != nil {
			return core.Transaction{}, fmt.Errorf("update transaction %d: %w", id, err)
		}
		if n == 0 {
			return core.Transaction{}, fmt.Errorf("update transaction %d: %w", id, ErrNotFound)
		}
	}

	if err := syncItems(ctx, q, id, t); err != nil {
		return core.Transaction{}, err
	}

	rows, err := q.ListItems(ctx, id)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("reload items: %w", err)
	}
	items, err := toItems(rows)
	if err != nil {
		return core.Transaction{}, err
	}
	total := core.SignedTotal(items)
	if err := q.SetTransactionTotal(ctx, total.StringFixed(2), ts, id); err != nil {
		return core.Transaction{}, fmt.Errorf("set total: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return core.Transaction{}, fmt.Errorf("commit: %w", mapConstraint(err))
	}

	slog.InfoContext(ctx, "Transaction saved",
		"id", id,
		"owner_id", t.OwnerID,
		"items", len(items),
		"total", total.StringFixed(2))

	return r.GetTransaction(ctx, t.OwnerID, id)
}

func syncItems(ctx context.Context, q *Queries, txID int64, t core.Transaction) error {
	checked := make(map[int64]bool)
	for i, it := range t.Items {
		catID := it.Category.ID
		if checked[catID] {
			continue
		}
		owned, err := q.CategoryOwned(ctx, catID, t.OwnerID)
		if err != nil {
			return fmt.Errorf("check category %d: %w", catID, err)
		}
		if !owned {
			return fmt.Errorf("item %d category %d: %w", i, catID, ErrUnknownCategory)
		}
		checked[catID] = true
	}

	existing, err := q.ListItemIDs(ctx, txID)
	if err != nil {
		return fmt.Errorf("list items: %w", err)
	}
	stored := make(map[int64]bool, len(existing))
	for _, id := range existing {
		stored[id] = true
	}
	kept := make(map[int64]bool, len(t.Items))
	for _, it := range t.Items {
		if it.ID > 0 {
			kept[it.ID] = true
		}
	}

	for _, id := range existing {
		if kept[id] {
			continue
		}
		if err := q.DeleteItem(ctx, id, txID); err != nil {
			return fmt.Errorf("delete item %d: %w", id, err)
		}
	}
	for _, it := range t.Items {
		amount := it.Amount.StringFixed(2)
		if it.ID > 0 {
			if !stored[it.ID] {
				return fmt.Errorf("item %d: %w", it.ID, ErrNotFound)
			}
			err = q.UpdateItem(ctx, UpdateItemParams{CategoryID: it.Category.ID, Amount: amount, ID: it.ID, TransactionID: txID})
		} else {
			err = q.InsertItem(ctx, InsertItemParams{TransactionID: txID, CategoryID: it.Category.ID, Amount: amount})
		}
		if err != nil {
			return fmt.Errorf("write item: %w", mapConstraint(err))
		}
	}
	return nil
}

// GetTransaction loads one of the owner's transactions with its items.
func (r *SQLiteRepository) GetTransaction(ctx context.Context, ownerID, id int64) (core.Transaction, error) {
	row, err := r.queries.GetTransaction(ctx, id, ownerID)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction %d: %w", id, mapNoRows(err))
	}
	return r.withItems(ctx, row)
}

// FindTransaction loads a transaction by id regardless of owner. Used by the
// mirror worker.
func (r *SQLiteRepository) FindTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	row, err := r.queries.GetTransactionByID(ctx, id)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("find transaction %d: %w", id, mapNoRows(err))
	}
	return r.withItems(ctx, row)
}

func (r *SQLiteRepository) withItems(ctx context.Context, row Transaction) (core.Transaction, error) {
	itemRows, err := r.queries.ListItems(ctx, row.ID)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("list items of %d: %w", row.ID, err)
	}
	items, err := toItems(itemRows)
	if err != nil {
		return core.Transaction{}, err
	}
	return toTransaction(row, items)
}

// ListFilter narrows the transaction list. Zero values mean no restriction.
type ListFilter struct {
	Search string
	From   core.Date
	To     core.Date
	Kind   core.CategoryKind
	Limit  int
	Offset int
}

type Page struct {
	Transactions []core.Transaction
	Total        int
	Limit        int
	Offset       int
}

// ListTransactions returns one page of the owner's transactions, newest first.
// A kind filter keeps transactions having at least one item of that kind.
func (r *SQLiteRepository) ListTransactions(ctx context.Context, ownerID int64, f ListFilter) (Page, error) {
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	params := SearchTransactionsParams{
		OwnerID: ownerID,
		Search:  strings.TrimSpace(f.Search),
		From:    f.From.String(),
		To:      f.To.String(),
		Kind:    string(f.Kind),
		Limit:   int64(f.Limit),
		Offset:  int64(f.Offset),
	}
	total, err := r.queries.CountTransactions(ctx, params)
	if err != nil {
		return Page{}, fmt.Errorf("count transactions: %w", err)
	}
	rows, err := r.queries.SearchTransactions(ctx, params)
	if err != nil {
		return Page{}, fmt.Errorf("search transactions: %w", err)
	}

	ids := make([]int64, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	itemRows, err := r.queries.ListItemsForTransactions(ctx, ids)
	if err != nil {
		return Page{}, fmt.Errorf("list items: %w", err)
	}
	txs, err := assemble(rows, itemRows)
	if err != nil {
		return Page{}, err
	}
	return Page{Transactions: txs, Total: int(total), Limit: f.Limit, Offset: f.Offset}, nil
}

// TransactionsBetween returns the owner's transactions dated within
// [from, to] with items and categories loaded, ordered by date.
func (r *SQLiteRepository) TransactionsBetween(ctx context.Context, ownerID int64, from, to core.Date) ([]core.Transaction, error) {
	rows, err := r.queries.ListTransactionsBetween(ctx, ownerID, from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	itemRows, err := r.queries.ListItemsBetween(ctx, ownerID, from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return assemble(rows, itemRows)
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, ownerID, id int64) error {
	n, err := r.queries.DeleteTransaction(ctx, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete transaction %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("delete transaction %d: %w", id, ErrNotFound)
	}
	slog.InfoContext(ctx, "Transaction deleted", "id", id, "owner_id", ownerID)
	return nil
}

// DeleteTransactionsBetween removes the owner's transactions in [from, to]
// and their items.
func (r *SQLiteRepository) DeleteTransactionsBetween(ctx context.Context, ownerID int64, from, to core.Date) (int64, error) {
	n, err := r.queries.DeleteTransactionsBetween(ctx, ownerID, from.String(), to.String())
	if err != nil {
		return 0, fmt.Errorf("delete transactions: %w", err)
	}
	return n, nil
}

// GetPendingSync returns up to limit transactions waiting for the mirror.
func (r *SQLiteRepository) GetPendingSync(ctx context.Context, limit int) ([]PendingSync, error) {
	rows, err := r.queries.GetPendingSync(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("get pending sync: %w", err)
	}
	return rows, nil
}

// MarkSynced flags the transaction as mirrored, unless it changed since the
// given version.
func (r *SQLiteRepository) MarkSynced(ctx context.Context, id, version int64) error {
	n, err := r.queries.MarkSynced(ctx, id, version)
	if err != nil {
		return fmt.Errorf("mark transaction synced: %w", err)
	}
	if n == 0 {
		slog.DebugContext(ctx, "Transaction changed before sync completed", "id", id, "version", version)
		return nil
	}
	slog.InfoContext(ctx, "Transaction marked as synced", "id", id, "version", version)
	return nil
}

func (r *SQLiteRepository) MarkSyncError(ctx context.Context, id int64) error {
	if err := r.queries.MarkSyncError(ctx, id); err != nil {
		return fmt.Errorf("mark transaction sync error: %w", err)
	}
	slog.WarnContext(ctx, "Transaction marked with sync error", "id", id)
	return nil
}

// RetryFailedSyncs moves errored transactions back to pending.
func (r *SQLiteRepository) RetryFailedSyncs(ctx context.Context) (int64, error) {
	n, err := r.queries.ResetSyncErrors(ctx)
	if err != nil {
		return 0, fmt.Errorf("reset sync errors: %w", err)
	}
	return n, nil
}

func now() string {
	return time.Now().UTC().Format(timestampLayout)
}

func mapNoRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func mapConstraint(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return fmt.Errorf("%w: %v", ErrDuplicateCategory, err)
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return fmt.Errorf("%w: %v", ErrCategoryInUse, err)
	}
	return err
}

func toCategory(row Category) core.Category {
	return core.Category{
		ID:      row.ID,
		OwnerID: row.OwnerID,
		Name:    row.Name,
		Kind:    core.CategoryKind(row.Kind),
	}
}

func toItems(rows []ItemRow) ([]core.TransactionItem, error) {
	items := make([]core.TransactionItem, 0, len(rows))
	for _, row := range rows {
		amount, err := decimal.NewFromString(row.Amount)
		if err != nil {
			return nil, fmt.Errorf("item %d amount %q: %w", row.ID, row.Amount, err)
		}
		items = append(items, core.TransactionItem{
			ID:            row.ID,
			TransactionID: row.TransactionID,
			Category: core.Category{
				ID:   row.CategoryID,
				Name: row.CategoryName,
				Kind: core.CategoryKind(row.CategoryKind),
			},
			Amount: amount,
		})
	}
	return items, nil
}

func toTransaction(row Transaction, items []core.TransactionItem) (core.Transaction, error) {
	date, err := core.ParseDate(row.Date)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %d: %w", row.ID, err)
	}
	total, err := decimal.NewFromString(row.TotalAmount)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %d total %q: %w", row.ID, row.TotalAmount, err)
	}
	created, _ := time.Parse(timestampLayout, row.CreatedAt)
	updated, _ := time.Parse(timestampLayout, row.UpdatedAt)
	for i := range items {
		items[i].Category.OwnerID = row.OwnerID
	}
	return core.Transaction{
		ID:          row.ID,
		OwnerID:     row.OwnerID,
		Description: row.Description,
		Date:        date,
		TotalAmount: total,
		Version:     row.Version,
		Items:       items,
		CreatedAt:   created,
		UpdatedAt:   updated,
	}, nil
}

// assemble attaches item rows to their transaction headers, keeping header order.
func assemble(rows []Transaction, itemRows []ItemRow) ([]core.Transaction, error) {
	byTx := make(map[int64][]ItemRow, len(rows))
	for _, ir := range itemRows {
		byTx[ir.TransactionID] = append(byTx[ir.TransactionID], ir)
	}
	out := make([]core.Transaction, 0, len(rows))
	for _, row := range rows {
		items, err := toItems(byTx[row.ID])
		if err != nil {
			return nil, err
		}
		t, err := toTransaction(row, items)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}
