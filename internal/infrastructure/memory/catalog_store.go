package memory

import (
	"context"
	"sort"
	"sync"

	domain "github.com/Zhima-Mochi/chatshop/internal/domain/catalog"
)

// CatalogStore is the in-memory inventory store. One mutex guards every
// mutation, so stock decrements and administrative edits serialize on the
// same critical section.
type CatalogStore struct {
	mu         sync.RWMutex
	categories map[string]*domain.Category
}

func NewCatalogStore() *CatalogStore {
	return &CatalogStore{
		categories: make(map[string]*domain.Category),
	}
}

func (s *CatalogStore) GetCategory(ctx context.Context, categoryID string) (*domain.Category, error) {
	_ = ctx

	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.categories[categoryID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return c.Clone(), nil
}

func (s *CatalogStore) GetProduct(ctx context.Context, categoryID, productID string) (*domain.Product, error) {
	_ = ctx

	s.mu.RLock()
	defer s.mu.RUnlock()

	p, err := s.product(categoryID, productID)
	if err != nil {
		return nil, err
	}
	return p.Clone(), nil
}

func (s *CatalogStore) ListCategories(ctx context.Context) ([]*domain.Category, error) {
	_ = ctx

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Category, 0, len(s.categories))
	for _, c := range s.categories {
		out = append(out, c.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *CatalogStore) DecrementStock(ctx context.Context, categoryID, productID string) (int, error) {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.product(categoryID, productID)
	if err != nil {
		return 0, err
	}
	if err := p.Decrement(); err != nil {
		return 0, err
	}
	return p.Stock, nil
}

func (s *CatalogStore) Restock(ctx context.Context, categoryID, productID string, n int) (int, error) {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.product(categoryID, productID)
	if err != nil {
		return 0, err
	}
	if err := p.Restock(n); err != nil {
		return 0, err
	}
	return p.Stock, nil
}

func (s *CatalogStore) AddCategory(ctx context.Context, c *domain.Category) error {
	_ = ctx
	if c == nil || c.ID == "" {
		return domain.ErrInvalidName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.categories[c.ID]; exists {
		return domain.ErrConflict
	}
	s.categories[c.ID] = c.Clone()
	return nil
}

func (s *CatalogStore) AddProduct(ctx context.Context, categoryID string, p *domain.Product) error {
	_ = ctx
	if p == nil || p.ID == "" {
		return domain.ErrInvalidName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.categories[categoryID]
	if !ok {
		return domain.ErrNotFound
	}
	return c.Add(p.Clone())
}

// product must be called with the lock held.
func (s *CatalogStore) product(categoryID, productID string) (*domain.Product, error) {
	c, ok := s.categories[categoryID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return c.Product(productID)
}
