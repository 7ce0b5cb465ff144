package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fincontrol/internal/core"
	"fincontrol/internal/storage"
)

type fakeStore struct {
	saved   []core.Transaction
	deleted []int64
	saveErr error
}

func (f *fakeStore) SaveTransaction(_ context.Context, t core.Transaction) (core.Transaction, error) {
	if f.saveErr != nil {
		return core.Transaction{}, f.saveErr
	}
	if t.ID == 0 {
		t.ID = int64(len(f.saved) + 1)
	}
	t.Version++
	t.TotalAmount = core.SignedTotal(t.Items)
	f.saved = append(f.saved, t)
	return t, nil
}

func (f *fakeStore) GetTransaction(_ context.Context, ownerID, id int64) (core.Transaction, error) {
	for _, t := range f.saved {
		if t.ID == id && t.OwnerID == ownerID {
			return t, nil
		}
	}
	return core.Transaction{}, storage.ErrNotFound
}

func (f *fakeStore) ListTransactions(context.Context, int64, storage.ListFilter) (storage.Page, error) {
	return storage.Page{Transactions: f.saved, Total: len(f.saved)}, nil
}

func (f *fakeStore) DeleteTransaction(_ context.Context, _ int64, id int64) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type fakePublisher struct {
	syncs   []int64
	deletes []int64
	err     error
}

func (p *fakePublisher) PublishTransactionSync(_ context.Context, id, _, _ int64) error {
	p.syncs = append(p.syncs, id)
	return p.err
}

func (p *fakePublisher) PublishTransactionDelete(_ context.Context, id, _ int64) error {
	p.deletes = append(p.deletes, id)
	return p.err
}

func newTestService(store *fakeStore, pub Publisher) *TransactionService {
	s := NewTransactionService(store, pub, time.UTC)
	s.today = func() core.Date { return core.NewDate(2024, 3, 15) }
	return s
}

func validInput() core.Transaction {
	return core.Transaction{
		Description: "Mercado",
		Date:        core.NewDate(2024, 3, 10),
		Items: []core.TransactionItem{{
			Category: core.Category{ID: 2, Kind: core.Expense},
			Amount:   decimal.RequireFromString("12.50"),
		}},
	}
}

func TestTransactionService_Create(t *testing.T) {
	store := &fakeStore{}
	pub := &fakePublisher{}
	s := newTestService(store, pub)
	var notified []int64
	s.OnChange(func(owner int64) { notified = append(notified, owner) })

	saved, err := s.Create(context.Background(), 7, validInput())
	if err != nil {
		t.Fatal(err)
	}
	if saved.OwnerID != 7 || saved.ID == 0 {
		t.Fatalf("unexpected saved transaction %+v", saved)
	}
	if len(pub.syncs) != 1 || pub.syncs[0] != saved.ID {
		t.Fatalf("expected one sync message, got %v", pub.syncs)
	}
	if len(notified) != 1 || notified[0] != 7 {
		t.Fatalf("expected change notification for owner 7, got %v", notified)
	}
}

func TestTransactionService_RejectsBeforeWrite(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*core.Transaction)
		check  func(error) bool
	}{
		{"future date", func(tx *core.Transaction) { tx.Date = core.NewDate(2024, 3, 16) }, func(err error) bool {
			var v core.ValidationErrors
			return errors.As(err, &v) && v.Field("date") != ""
		}},
		{"amount below minimum", func(tx *core.Transaction) { tx.Items[0].Amount = decimal.Zero }, func(err error) bool {
			var v core.ValidationErrors
			return errors.As(err, &v) && v.Field("items[0].amount") != ""
		}},
		{"no items", func(tx *core.Transaction) { tx.Items = nil }, func(err error) bool {
			return errors.Is(err, core.ErrNoItems)
		}},
	}
	for _, tc := range cases {
		store := &fakeStore{}
		pub := &fakePublisher{}
		s := newTestService(store, pub)
		in := validInput()
		tc.mutate(&in)
		_, err := s.Create(context.Background(), 1, in)
		if !tc.check(err) {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if len(store.saved) != 0 || len(pub.syncs) != 0 {
			t.Fatalf("%s: nothing may be written or published", tc.name)
		}
	}
}

func TestTransactionService_TodayIsAllowed(t *testing.T) {
	s := newTestService(&fakeStore{}, nil)
	in := validInput()
	in.Date = core.NewDate(2024, 3, 15)
	if _, err := s.Create(context.Background(), 1, in); err != nil {
		t.Fatalf("today must be accepted: %v", err)
	}
}

func TestTransactionService_PublishFailureDoesNotFail(t *testing.T) {
	store := &fakeStore{}
	s := newTestService(store, &fakePublisher{err: errors.New("broker down")})
	if _, err := s.Create(context.Background(), 1, validInput()); err != nil {
		t.Fatalf("publish errors must be swallowed: %v", err)
	}
	if err := s.Delete(context.Background(), 1, 1); err != nil {
		t.Fatalf("publish errors must be swallowed: %v", err)
	}
}

func TestTransactionService_StoreErrorPropagates(t *testing.T) {
	store := &fakeStore{saveErr: storage.ErrUnknownCategory}
	pub := &fakePublisher{}
	s := newTestService(store, pub)
	if _, err := s.Create(context.Background(), 1, validInput()); !errors.Is(err, storage.ErrUnknownCategory) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
	if len(pub.syncs) != 0 {
		t.Fatal("failed save must not publish")
	}
}

func TestTransactionService_UpdateAndDelete(t *testing.T) {
	store := &fakeStore{}
	pub := &fakePublisher{}
	s := newTestService(store, pub)

	created, err := s.Create(context.Background(), 1, validInput())
	if err != nil {
		t.Fatal(err)
	}
	in := validInput()
	in.Description = "Feira"
	updated, err := s.Update(context.Background(), 1, created.ID, in)
	if err != nil {
		t.Fatal(err)
	}
	if updated.ID != created.ID || updated.Description != "Feira" {
		t.Fatalf("unexpected update %+v", updated)
	}

	if err := s.Delete(context.Background(), 1, created.ID); err != nil {
		t.Fatal(err)
	}
	if len(store.deleted) != 1 || len(pub.deletes) != 1 || pub.deletes[0] != created.ID {
		t.Fatalf("expected delete to reach store and publisher: %v %v", store.deleted, pub.deletes)
	}
}

func TestTransactionService_NilPublisher(t *testing.T) {
	s := newTestService(&fakeStore{}, nil)
	if _, err := s.Create(context.Background(), 1, validInput()); err != nil {
		t.Fatal(err)
	}
}
