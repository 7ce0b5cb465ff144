package storage

import (
	"context"
	"database/sql"
	"strings"
)

const upsertUser = `-- name: UpsertUser :one
INSERT INTO users (username, created_at) VALUES (?, ?)
ON CONFLICT (username) DO UPDATE SET username = excluded.username
RETURNING id
`

func (q *Queries) UpsertUser(ctx context.Context, username, now string) (int64, error) {
	row := q.db.QueryRowContext(ctx, upsertUser, username, now)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const createCategory = `-- name: CreateCategory :one
INSERT INTO categories (owner_id, name, kind, created_at) VALUES (?, ?, ?, ?)
RETURNING id, owner_id, name, kind, created_at
`

type CreateCategoryParams struct {
	OwnerID   int64
	Name      string
	Kind      string
	CreatedAt string
}

func (q *Queries) CreateCategory(ctx context.Context, arg CreateCategoryParams) (Category, error) {
	row := q.db.QueryRowContext(ctx, createCategory, arg.OwnerID, arg.Name, arg.Kind, arg.CreatedAt)
	var c Category
	err := row.Scan(&c.ID, &c.OwnerID, &c.Name, &c.Kind, &c.CreatedAt)
	return c, err
}

const updateCategory = `-- name: UpdateCategory :execrows
UPDATE categories SET name = ?, kind = ? WHERE id = ? AND owner_id = ?
`

type UpdateCategoryParams struct {
	Name    string
	Kind    string
	ID      int64
	OwnerID int64
}

func (q *Queries) UpdateCategory(ctx context.Context, arg UpdateCategoryParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, updateCategory, arg.Name, arg.Kind, arg.ID, arg.OwnerID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const getCategory = `-- name: GetCategory :one
SELECT id, owner_id, name, kind, created_at FROM categories WHERE id = ? AND owner_id = ?
`

func (q *Queries) GetCategory(ctx context.Context, id, ownerID int64) (Category, error) {
	row := q.db.QueryRowContext(ctx, getCategory, id, ownerID)
	var c Category
	err := row.Scan(&c.ID, &c.OwnerID, &c.Name, &c.Kind, &c.CreatedAt)
	return c, err
}

const listCategories = `-- name: ListCategories :many
SELECT id, owner_id, name, kind, created_at FROM categories
WHERE owner_id = ? AND (? = '' OR name LIKE '%' || ? || '%')
ORDER BY name
`

func (q *Queries) ListCategories(ctx context.Context, ownerID int64, search string) ([]Category, error) {
	rows, err := q.db.QueryContext(ctx, listCategories, ownerID, search, search)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.Name, &c.Kind, &c.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const countCategoryItems = `-- name: CountCategoryItems :one
SELECT COUNT(*) FROM transaction_items WHERE category_id = ?
`

func (q *Queries) CountCategoryItems(ctx context.Context, categoryID int64) (int64, error) {
	row := q.db.QueryRowContext(ctx, countCategoryItems, categoryID)
	var n int64
	err := row.Scan(&n)
	return n, err
}

const deleteCategory = `-- name: DeleteCategory :execrows
DELETE FROM categories WHERE id = ? AND owner_id = ?
`

func (q *Queries) DeleteCategory(ctx context.Context, id, ownerID int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteCategory, id, ownerID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const insertTransaction = `-- name: InsertTransaction :one
INSERT INTO transactions (owner_id, description, date, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)
RETURNING id
`

type InsertTransactionParams struct {
	OwnerID     int64
	Description string
	Date        string
	Now         string
}

func (q *Queries) InsertTransaction(ctx context.Context, arg InsertTransactionParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, insertTransaction, arg.OwnerID, arg.Description, arg.Date, arg.Now, arg.Now)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const updateTransactionHeader = `-- name: UpdateTransactionHeader :execrows
UPDATE transactions SET description = ?, date = ?, updated_at = ? WHERE id = ? AND owner_id = ?
`

type UpdateTransactionHeaderParams struct {
	Description string
	Date        string
	Now         string
	ID          int64
	OwnerID     int64
}

func (q *Queries) UpdateTransactionHeader(ctx context.Context, arg UpdateTransactionHeaderParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, updateTransactionHeader, arg.Description, arg.Date, arg.Now, arg.ID, arg.OwnerID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const listItemIDs = `-- name: ListItemIDs :many
SELECT id FROM transaction_items WHERE transaction_id = ?
`

func (q *Queries) ListItemIDs(ctx context.Context, transactionID int64) ([]int64, error) {
	rows, err := q.db.QueryContext(ctx, listItemIDs, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const deleteItem = `-- name: DeleteItem :exec
DELETE FROM transaction_items WHERE id = ? AND transaction_id = ?
`

func (q *Queries) DeleteItem(ctx context.Context, id, transactionID int64) error {
	_, err := q.db.ExecContext(ctx, deleteItem, id, transactionID)
	return err
}

const updateItem = `-- name: UpdateItem :exec
UPDATE transaction_items SET category_id = ?, amount = ? WHERE id = ? AND transaction_id = ?
`

type UpdateItemParams struct {
	CategoryID    int64
	Amount        string
	ID            int64
	TransactionID int64
}

func (q *Queries) UpdateItem(ctx context.Context, arg UpdateItemParams) error {
	_, err := q.db.ExecContext(ctx, updateItem, arg.CategoryID, arg.Amount, arg.ID, arg.TransactionID)
	return err
}

const insertItem = `-- name: InsertItem :exec
INSERT INTO transaction_items (transaction_id, category_id, amount) VALUES (?, ?, ?)
`

type InsertItemParams struct {
	TransactionID int64
	CategoryID    int64
	Amount        string
}

func (q *Queries) InsertItem(ctx context.Context, arg InsertItemParams) error {
	_, err := q.db.ExecContext(ctx, insertItem, arg.TransactionID, arg.CategoryID, arg.Amount)
	return err
}

const categoryOwned = `-- name: CategoryOwned :one
SELECT COUNT(*) FROM categories WHERE id = ? AND owner_id = ?
`

func (q *Queries) CategoryOwned(ctx context.Context, id, ownerID int64) (bool, error) {
	row := q.db.QueryRowContext(ctx, categoryOwned, id, ownerID)
	var n int64
	err := row.Scan(&n)
	return n > 0, err
}

const listItems = `-- name: ListItems :many
SELECT i.id, i.transaction_id, i.category_id, c.name, c.kind, i.amount
FROM transaction_items i
JOIN categories c ON c.id = i.category_id
WHERE i.transaction_id = ?
ORDER BY i.id
`

func (q *Queries) ListItems(ctx context.Context, transactionID int64) ([]ItemRow, error) {
	rows, err := q.db.QueryContext(ctx, listItems, transactionID)
	if err != nil {
		return nil, err
	}
	return scanItemRows(rows)
}

const listItemsForTransactions = `-- name: ListItemsForTransactions :many
SELECT i.id, i.transaction_id, i.category_id, c.name, c.kind, i.amount
FROM transaction_items i
JOIN categories c ON c.id = i.category_id
WHERE i.transaction_id IN (/*SLICE:ids*/?)
ORDER BY i.transaction_id, i.id
`

func (q *Queries) ListItemsForTransactions(ctx context.Context, ids []int64) ([]ItemRow, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := strings.Replace(listItemsForTransactions, "/*SLICE:ids*/?", strings.Repeat(",?", len(ids))[1:], 1)
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanItemRows(rows)
}

const listItemsBetween = `-- name: ListItemsBetween :many
SELECT i.id, i.transaction_id, i.category_id, c.name, c.kind, i.amount
FROM transaction_items i
JOIN transactions t ON t.id = i.transaction_id
JOIN categories c ON c.id = i.category_id
WHERE t.owner_id = ? AND t.date BETWEEN ? AND ?
ORDER BY i.transaction_id, i.id
`

func (q *Queries) ListItemsBetween(ctx context.Context, ownerID int64, from, to string) ([]ItemRow, error) {
	rows, err := q.db.QueryContext(ctx, listItemsBetween, ownerID, from, to)
	if err != nil {
		return nil, err
	}
	return scanItemRows(rows)
}

func scanItemRows(rows *sql.Rows) ([]ItemRow, error) {
	defer rows.Close()
	var items []ItemRow
	for rows.Next() {
		var i ItemRow
		if err := rows.Scan(&i.ID, &i.TransactionID, &i.CategoryID, &i.CategoryName, &i.CategoryKind, &i.Amount); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const setTransactionTotal = `-- name: SetTransactionTotal :exec
UPDATE transactions
SET total_amount = ?, version = version + 1, sync_status = 'pending', updated_at = ?
WHERE id = ?
`

func (q *Queries) SetTransactionTotal(ctx context.Context, total, now string, id int64) error {
	_, err := q.db.ExecContext(ctx, setTransactionTotal, total, now, id)
	return err
}

const transactionColumns = `id, owner_id, description, date, total_amount, version, sync_status, created_at, updated_at`

const getTransaction = `-- name: GetTransaction :one
SELECT ` + transactionColumns + ` FROM transactions WHERE id = ? AND owner_id = ?
`

func (q *Queries) GetTransaction(ctx context.Context, id, ownerID int64) (Transaction, error) {
	return scanTransaction(q.db.QueryRowContext(ctx, getTransaction, id, ownerID))
}

const getTransactionByID = `-- name: GetTransactionByID :one
SELECT ` + transactionColumns + ` FROM transactions WHERE id = ?
`

func (q *Queries) GetTransactionByID(ctx context.Context, id int64) (Transaction, error) {
	return scanTransaction(q.db.QueryRowContext(ctx, getTransactionByID, id))
}

const listTransactionsBetween = `-- name: ListTransactionsBetween :many
SELECT ` + transactionColumns + ` FROM transactions
WHERE owner_id = ? AND date BETWEEN ? AND ?
ORDER BY date, id
`

func (q *Queries) ListTransactionsBetween(ctx context.Context, ownerID int64, from, to string) ([]Transaction, error) {
	rows, err := q.db.QueryContext(ctx, listTransactionsBetween, ownerID, from, to)
	if err != nil {
		return nil, err
	}
	return scanTransactions(rows)
}

const transactionFilter = `
WHERE t.owner_id = ?
  AND (? = '' OR t.description LIKE '%' || ? || '%')
  AND (? = '' OR t.date >= ?)
  AND (? = '' OR t.date <= ?)
  AND (? = '' OR EXISTS (
        SELECT 1 FROM transaction_items i
        JOIN categories c ON c.id = i.category_id
        WHERE i.transaction_id = t.id AND c.kind = ?))
`

const searchTransactions = `-- name: SearchTransactions :many
SELECT t.id, t.owner_id, t.description, t.date, t.total_amount, t.version, t.sync_status, t.created_at, t.updated_at
FROM transactions t` + transactionFilter + `ORDER BY t.date DESC, t.id DESC
LIMIT ? OFFSET ?
`

const countTransactions = `-- name: CountTransactions :one
SELECT COUNT(*) FROM transactions t` + transactionFilter

type SearchTransactionsParams struct {
	OwnerID int64
	Search  string
	From    string
	To      string
	Kind    string
	Limit   int64
	Offset  int64
}

func (arg SearchTransactionsParams) filterArgs() []interface{} {
	return []interface{}{
		arg.OwnerID,
		arg.Search, arg.Search,
		arg.From, arg.From,
		arg.To, arg.To,
		arg.Kind, arg.Kind,
	}
}

func (q *Queries) SearchTransactions(ctx context.Context, arg SearchTransactionsParams) ([]Transaction, error) {
	args := append(arg.filterArgs(), arg.Limit, arg.Offset)
	rows, err := q.db.QueryContext(ctx, searchTransactions, args...)
	if err != nil {
		return nil, err
	}
	return scanTransactions(rows)
}

func (q *Queries) CountTransactions(ctx context.Context, arg SearchTransactionsParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, countTransactions, arg.filterArgs()...)
	var n int64
	err := row.Scan(&n)
	return n, err
}

const deleteTransaction = `-- name: DeleteTransaction :execrows
DELETE FROM transactions WHERE id = ? AND owner_id = ?
`

func (q *Queries) DeleteTransaction(ctx context.Context, id, ownerID int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteTransaction, id, ownerID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const deleteTransactionsBetween = `-- name: DeleteTransactionsBetween :execrows
DELETE FROM transactions WHERE owner_id = ? AND date BETWEEN ? AND ?
`

func (q *Queries) DeleteTransactionsBetween(ctx context.Context, ownerID int64, from, to string) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteTransactionsBetween, ownerID, from, to)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const getPendingSync = `-- name: GetPendingSync :many
SELECT id, owner_id, version FROM transactions
WHERE sync_status = 'pending'
ORDER BY updated_at, id
LIMIT ?
`

func (q *Queries) GetPendingSync(ctx context.Context, limit int64) ([]PendingSync, error) {
	rows, err := q.db.QueryContext(ctx, getPendingSync, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []PendingSync
	for rows.Next() {
		var p PendingSync
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.Version); err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

const markSynced = `-- name: MarkSynced :execrows
UPDATE transactions SET sync_status = 'synced' WHERE id = ? AND version = ?
`

func (q *Queries) MarkSynced(ctx context.Context, id, version int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, markSynced, id, version)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const markSyncError = `-- name: MarkSyncError :exec
UPDATE transactions SET sync_status = 'error' WHERE id = ?
`

func (q *Queries) MarkSyncError(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, markSyncError, id)
	return err
}

const resetSyncErrors = `-- name: ResetSyncErrors :execrows
UPDATE transactions SET sync_status = 'pending' WHERE sync_status = 'error'
`

func (q *Queries) ResetSyncErrors(ctx context.Context) (int64, error) {
	result, err := q.db.ExecContext(ctx, resetSyncErrors)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row rowScanner) (Transaction, error) {
	var t Transaction
	err := row.Scan(&t.ID, &t.OwnerID, &t.Description, &t.Date, &t.TotalAmount, &t.Version, &t.SyncStatus, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func scanTransactions(rows *sql.Rows) ([]Transaction, error) {
	defer rows.Close()
	var items []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
