package catalog

import "context"

// Repository is the single serialization point for catalog state. Stock
// decrements and administrative mutations go through the same implementation
// and share its critical section; there is no second unsynchronized path.
type Repository interface {
	GetCategory(ctx context.Context, categoryID string) (*Category, error)
	GetProduct(ctx context.Context, categoryID, productID string) (*Product, error)
	ListCategories(ctx context.Context) ([]*Category, error)

	// DecrementStock atomically claims one unit and returns the new count.
	// Two concurrent calls on a product with one unit left yield exactly one
	// success and one ErrDepleted.
	DecrementStock(ctx context.Context, categoryID, productID string) (int, error)
	Restock(ctx context.Context, categoryID, productID string, n int) (int, error)

	AddCategory(ctx context.Context, c *Category) error
	AddProduct(ctx context.Context, categoryID string, p *Product) error
}
