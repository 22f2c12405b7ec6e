package catalog

import (
	"errors"
	"time"
)

var (
	ErrNotFound     = errors.New("catalog: not found")
	ErrConflict     = errors.New("catalog: already exists")
	ErrDepleted     = errors.New("catalog: product depleted")
	ErrInvalidName  = errors.New("catalog: name is required")
	ErrInvalidPrice = errors.New("catalog: price must be greater than zero")
	ErrInvalidStock = errors.New("catalog: stock must be zero or greater")
)

// Product is a purchasable item. Description holds the content delivered to
// the buyer after payment. Availability is derived from Stock, never stored.
type Product struct {
	ID          string
	Name        string
	Price       int64
	Description string
	Stock       int
	UpdatedAt   time.Time
}

func NewProduct(id, name string, price int64, description string, stock int) (*Product, error) {
	if name == "" {
		return nil, ErrInvalidName
	}
	if price <= 0 {
		return nil, ErrInvalidPrice
	}
	if stock < 0 {
		return nil, ErrInvalidStock
	}
	return &Product{
		ID:          id,
		Name:        name,
		Price:       price,
		Description: description,
		Stock:       stock,
		UpdatedAt:   time.Now().UTC(),
	}, nil
}

func (p *Product) Available() bool { return p.Stock > 0 }

// Decrement claims one unit of stock. The caller must hold the store's
// critical section; the entity itself only enforces the non-negative invariant.
func (p *Product) Decrement() error {
	if p.Stock < 1 {
		return ErrDepleted
	}
	p.Stock--
	p.touch()
	return nil
}

func (p *Product) Restock(n int) error {
	if n <= 0 {
		return ErrInvalidStock
	}
	p.Stock += n
	p.touch()
	return nil
}

func (p *Product) touch() {
	p.UpdatedAt = time.Now().UTC()
}

func (p *Product) Clone() *Product {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}

// Category owns its products; product ids are unique within the category.
type Category struct {
	ID       string
	Name     string
	Products map[string]*Product
}

func NewCategory(id, name string) (*Category, error) {
	if name == "" {
		return nil, ErrInvalidName
	}
	return &Category{
		ID:       id,
		Name:     name,
		Products: make(map[string]*Product),
	}, nil
}

func (c *Category) Add(p *Product) error {
	if _, exists := c.Products[p.ID]; exists {
		return ErrConflict
	}
	c.Products[p.ID] = p
	return nil
}

func (c *Category) Product(id string) (*Product, error) {
	p, ok := c.Products[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (c *Category) Clone() *Category {
	if c == nil {
		return nil
	}
	clone := &Category{
		ID:       c.ID,
		Name:     c.Name,
		Products: make(map[string]*Product, len(c.Products)),
	}
	for id, p := range c.Products {
		clone.Products[id] = p.Clone()
	}
	return clone
}
