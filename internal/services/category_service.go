package services

import (
	"context"
	"fmt"

	"fincontrol/internal/core"
)

type CategoryStore interface {
	CreateCategory(ctx context.Context, c core.Category) (core.Category, error)
	UpdateCategory(ctx context.Context, c core.Category) (core.Category, error)
	GetCategory(ctx context.Context, ownerID, id int64) (core.Category, error)
	ListCategories(ctx context.Context, ownerID int64, search string) ([]core.Category, error)
	DeleteCategory(ctx context.Context, ownerID, id int64) error
}

type CategoryService struct {
	store     CategoryStore
	listeners []func(ownerID int64)
}

func NewCategoryService(store CategoryStore) *CategoryService {
	return &CategoryService{store: store}
}

// OnChange registers fn to run after a category is renamed or removed.
func (s *CategoryService) OnChange(fn func(ownerID int64)) {
	s.listeners = append(s.listeners, fn)
}

func (s *CategoryService) Create(ctx context.Context, ownerID int64, c core.Category) (core.Category, error) {
	c.ID = 0
	c.OwnerID = ownerID
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	created, err := s.store.CreateCategory(ctx, c)
	if err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	return created, nil
}

func (s *CategoryService) Update(ctx context.Context, ownerID, id int64, c core.Category) (core.Category, error) {
	c.ID = id
	c.OwnerID = ownerID
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	updated, err := s.store.UpdateCategory(ctx, c)
	if err != nil {
		return core.Category{}, fmt.Errorf("update category: %w", err)
	}
	s.changed(ownerID)
	return updated, nil
}

// Delete fails with storage.ErrCategoryInUse while items still reference the category.
func (s *CategoryService) Delete(ctx context.Context, ownerID, id int64) error {
	if err := s.store.DeleteCategory(ctx, ownerID, id); err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	s.changed(ownerID)
	return nil
}

func (s *CategoryService) Get(ctx context.Context, ownerID, id int64) (core.Category, error) {
	return s.store.GetCategory(ctx, ownerID, id)
}

func (s *CategoryService) List(ctx context.Context, ownerID int64, search string) ([]core.Category, error) {
	return s.store.ListCategories(ctx, ownerID, search)
}

func (s *CategoryService) changed(ownerID int64) {
	for _, fn := range s.listeners {
		fn(ownerID)
	}
}
