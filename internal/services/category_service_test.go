package services

import (
	"context"
	"errors"
	"testing"

	"fincontrol/internal/core"
	"fincontrol/internal/storage"
)

type fakeCategoryStore struct {
	cats      map[int64]core.Category
	next      int64
	inUse     map[int64]bool
	createErr error
}

func newFakeCategoryStore() *fakeCategoryStore {
	return &fakeCategoryStore{cats: map[int64]core.Category{}, inUse: map[int64]bool{}}
}

func (f *fakeCategoryStore) CreateCategory(_ context.Context, c core.Category) (core.Category, error) {
	if f.createErr != nil {
		return core.Category{}, f.createErr
	}
	f.next++
	c.ID = f.next
	f.cats[c.ID] = c
	return c, nil
}

func (f *fakeCategoryStore) UpdateCategory(_ context.Context, c core.Category) (core.Category, error) {
	if _, ok := f.cats[c.ID]; !ok {
		return core.Category{}, storage.ErrNotFound
	}
	f.cats[c.ID] = c
	return c, nil
}

func (f *fakeCategoryStore) GetCategory(_ context.Context, _, id int64) (core.Category, error) {
	c, ok := f.cats[id]
	if !ok {
		return core.Category{}, storage.ErrNotFound
	}
	return c, nil
}

func (f *fakeCategoryStore) ListCategories(context.Context, int64, string) ([]core.Category, error) {
	out := make([]core.Category, 0, len(f.cats))
	for _, c := range f.cats {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeCategoryStore) DeleteCategory(_ context.Context, _, id int64) error {
	if f.inUse[id] {
		return storage.ErrCategoryInUse
	}
	if _, ok := f.cats[id]; !ok {
		return storage.ErrNotFound
	}
	delete(f.cats, id)
	return nil
}

func TestCategoryService(t *testing.T) {
	store := newFakeCategoryStore()
	s := NewCategoryService(store)
	ctx := context.Background()
	changes := 0
	s.OnChange(func(int64) { changes++ })

	if _, err := s.Create(ctx, 1, core.Category{Name: "", Kind: core.Income}); err == nil {
		t.Fatal("expected validation error for empty name")
	}
	if len(store.cats) != 0 {
		t.Fatal("invalid category must not reach the store")
	}

	c, err := s.Create(ctx, 1, core.Category{Name: "Luz", Kind: core.Expense})
	if err != nil {
		t.Fatal(err)
	}
	if c.OwnerID != 1 {
		t.Fatalf("owner not applied: %+v", c)
	}

	if _, err := s.Update(ctx, 1, c.ID, core.Category{Name: "Energia", Kind: core.Expense}); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.Get(ctx, 1, c.ID); got.Name != "Energia" {
		t.Fatalf("rename not stored: %+v", got)
	}

	store.inUse[c.ID] = true
	if err := s.Delete(ctx, 1, c.ID); !errors.Is(err, storage.ErrCategoryInUse) {
		t.Fatalf("expected ErrCategoryInUse, got %v", err)
	}
	store.inUse[c.ID] = false
	if err := s.Delete(ctx, 1, c.ID); err != nil {
		t.Fatal(err)
	}
	if changes != 2 {
		t.Fatalf("expected 2 change notifications, got %d", changes)
	}
}

func TestCategoryService_DuplicatePropagates(t *testing.T) {
	store := newFakeCategoryStore()
	store.createErr = storage.ErrDuplicateCategory
	s := NewCategoryService(store)
	if _, err := s.Create(context.Background(), 1, core.Category{Name: "Luz", Kind: core.Expense}); !errors.Is(err, storage.ErrDuplicateCategory) {
		t.Fatalf("expected ErrDuplicateCategory, got %v", err)
	}
}
