package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"fincontrol/internal/core"
	"fincontrol/internal/storage"
)

// TransactionStore is the persistence the service needs. SaveTransaction must
// write header, items and the recomputed total atomically.
type TransactionStore interface {
	SaveTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
	GetTransaction(ctx context.Context, ownerID, id int64) (core.Transaction, error)
	ListTransactions(ctx context.Context, ownerID int64, f storage.ListFilter) (storage.Page, error)
	DeleteTransaction(ctx context.Context, ownerID, id int64) error
}

// Publisher announces changes to the spreadsheet mirror.
type Publisher interface {
	PublishTransactionSync(ctx context.Context, id, ownerID, version int64) error
	PublishTransactionDelete(ctx context.Context, id, ownerID int64) error
}

// TransactionService validates edits before they reach storage and fans out
// change notifications after a successful write.
type TransactionService struct {
	store     TransactionStore
	publisher Publisher
	loc       *time.Location
	listeners []func(ownerID int64)

	today func() core.Date
}

// NewTransactionService builds the service. publisher may be nil when the
// mirror is disabled. loc decides what "today" is for the future-date rule.
func NewTransactionService(store TransactionStore, publisher Publisher, loc *time.Location) *TransactionService {
	if loc == nil {
		loc = time.UTC
	}
	s := &TransactionService{store: store, publisher: publisher, loc: loc}
	s.today = func() core.Date { return core.Today(s.loc) }
	return s
}

// OnChange registers fn to run after any write for ownerID.
func (s *TransactionService) OnChange(fn func(ownerID int64)) {
	s.listeners = append(s.listeners, fn)
}

func (s *TransactionService) Today() core.Date {
	return s.today()
}

func (s *TransactionService) Create(ctx context.Context, ownerID int64, t core.Transaction) (core.Transaction, error) {
	t.ID = 0
	t.OwnerID = ownerID
	return s.save(ctx, t)
}

func (s *TransactionService) Update(ctx context.Context, ownerID, id int64, t core.Transaction) (core.Transaction, error) {
	t.ID = id
	t.OwnerID = ownerID
	return s.save(ctx, t)
}

func (s *TransactionService) save(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if err := t.Validate(s.today()); err != nil {
		return core.Transaction{}, err
	}

	saved, err := s.store.SaveTransaction(ctx, t)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("save transaction: %w", err)
	}

	if s.publisher != nil {
		if err := s.publisher.PublishTransactionSync(ctx, saved.ID, saved.OwnerID, saved.Version); err != nil {
			slog.ErrorContext(ctx, "Failed to publish sync message", "id", saved.ID, "version", saved.Version, "error", err)
		}
	}
	s.changed(saved.OwnerID)
	return saved, nil
}

func (s *TransactionService) Delete(ctx context.Context, ownerID, id int64) error {
	if err := s.store.DeleteTransaction(ctx, ownerID, id); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if s.publisher != nil {
		if err := s.publisher.PublishTransactionDelete(ctx, id, ownerID); err != nil {
			slog.ErrorContext(ctx, "Failed to publish delete message", "id", id, "error", err)
		}
	}
	s.changed(ownerID)
	return nil
}

func (s *TransactionService) Get(ctx context.Context, ownerID, id int64) (core.Transaction, error) {
	return s.store.GetTransaction(ctx, ownerID, id)
}

func (s *TransactionService) List(ctx context.Context, ownerID int64, f storage.ListFilter) (storage.Page, error) {
	return s.store.ListTransactions(ctx, ownerID, f)
}

func (s *TransactionService) changed(ownerID int64) {
	for _, fn := range s.listeners {
		fn(ownerID)
	}
}
