package storage

const (
	SyncPending = "pending"
	SyncSynced  = "synced"
	SyncError   = "error"
)

type Category struct {
	ID        int64
	OwnerID   int64
	Name      string
	Kind      string
	CreatedAt string
}

type Transaction struct {
	ID          int64
	OwnerID     int64
	Description string
	Date        string
	TotalAmount string
	Version     int64
	SyncStatus  string
	CreatedAt   string
	UpdatedAt   string
}

// ItemRow is a transaction item joined with its category.
type ItemRow struct {
	ID            int64
	TransactionID int64
	CategoryID    int64
	CategoryName  string
	CategoryKind  string
	Amount        string
}

type PendingSync struct {
	ID      int64
	OwnerID int64
	Version int64
}
