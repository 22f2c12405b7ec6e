package catalog

import (
	"context"
	"fmt"

	domain "github.com/Zhima-Mochi/chatshop/internal/domain/catalog"
	"github.com/Zhima-Mochi/chatshop/internal/pkg/logging"
	"go.uber.org/zap"
)

type IDGenerator interface {
	NewID() string
}

// Service is the inventory store API. Reads return snapshots; every mutation
// goes through the repository's critical section, admin edits included.
type Service struct {
	repo domain.Repository
	ids  IDGenerator
}

func NewService(repo domain.Repository, ids IDGenerator) *Service {
	return &Service{repo: repo, ids: ids}
}

func (s *Service) GetProduct(ctx context.Context, categoryID, productID string) (*domain.Product, error) {
	return s.repo.GetProduct(ctx, categoryID, productID)
}

func (s *Service) GetCategory(ctx context.Context, categoryID string) (*domain.Category, error) {
	return s.repo.GetCategory(ctx, categoryID)
}

func (s *Service) ListCategories(ctx context.Context) ([]*domain.Category, error) {
	return s.repo.ListCategories(ctx)
}

func (s *Service) DecrementStock(ctx context.Context, categoryID, productID string) (int, error) {
	return s.repo.DecrementStock(ctx, categoryID, productID)
}

func (s *Service) Restock(ctx context.Context, categoryID, productID string, n int) (int, error) {
	return s.repo.Restock(ctx, categoryID, productID, n)
}

func (s *Service) AddCategory(ctx context.Context, name string) (*domain.Category, error) {
	logger := logging.FromContext(ctx).With(zap.String("component", "catalog_service"))

	c, err := domain.NewCategory(s.ids.NewID(), name)
	if err != nil {
		return nil, err
	}
	if err := s.repo.AddCategory(ctx, c); err != nil {
		logger.Error("category_add_failed", zap.String("name", name), zap.Error(err))
		return nil, fmt.Errorf("catalog: add category: %w", err)
	}

	logger.Info("category_added", zap.String("category_id", c.ID), zap.String("name", c.Name))
	return c, nil
}

type AddProductInput struct {
	Name        string
	Price       int64
	Description string
	Stock       int
}

func (s *Service) AddProduct(ctx context.Context, categoryID string, in AddProductInput) (*domain.Product, error) {
	logger := logging.FromContext(ctx).With(zap.String("component", "catalog_service"))

	p, err := domain.NewProduct(s.ids.NewID(), in.Name, in.Price, in.Description, in.Stock)
	if err != nil {
		return nil, err
	}
	if err := s.repo.AddProduct(ctx, categoryID, p); err != nil {
		logger.Error("product_add_failed",
			zap.String("category_id", categoryID),
			zap.String("name", in.Name),
			zap.Error(err),
		)
		return nil, fmt.Errorf("catalog: add product: %w", err)
	}

	logger.Info("product_added",
		zap.String("category_id", categoryID),
		zap.String("product_id", p.ID),
		zap.String("name", p.Name),
		zap.Int("stock", p.Stock),
	)
	return p, nil
}
