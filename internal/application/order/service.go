package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	domcatalog "github.com/Zhima-Mochi/chatshop/internal/domain/catalog"
	domain "github.com/Zhima-Mochi/chatshop/internal/domain/order"
	dompayment "github.com/Zhima-Mochi/chatshop/internal/domain/payment"
	"github.com/Zhima-Mochi/chatshop/internal/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// ErrUnavailable is returned when the selected product exists but has no
// stock left. It is the only user-facing rejection at selection time.
var ErrUnavailable = errors.New("order: product unavailable")

const tracerName = "chatshop.order"

// Service is the order registry: it creates orders and owns their terminal
// transitions. All state changes go through the repository's check-and-set,
// so complete/expire succeed at most once per order.
type Service struct {
	repo    domain.Repository
	catalog domcatalog.Repository
	gateway dompayment.Gateway
	ids     IDGenerator
}

func NewService(repo domain.Repository, catalog domcatalog.Repository, gateway dompayment.Gateway, ids IDGenerator) *Service {
	return &Service{
		repo:    repo,
		catalog: catalog,
		gateway: gateway,
		ids:     ids,
	}
}

type SelectProductInput struct {
	BuyerID    string
	CategoryID string
	ProductID  string
}

type SelectProductResult struct {
	Order      *domain.Order
	PaymentURL string
}

// SelectProduct is the single entry point that creates an order. It
// snapshots the product's price and description onto the order and binds a
// payment link to the fresh order id.
func (s *Service) SelectProduct(ctx context.Context, in SelectProductInput) (_ *SelectProductResult, err error) {
	logger := logging.FromContext(ctx).With(zap.String("component", "order_service"))

	ctx, span := otel.Tracer(tracerName).Start(ctx, "SelectProduct")
	span.SetAttributes(
		attribute.String("order.buyer_id", in.BuyerID),
		attribute.String("order.category_id", in.CategoryID),
		attribute.String("order.product_id", in.ProductID),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "select_product_failed")
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}()

	if in.BuyerID == "" {
		return nil, domain.ErrInvalidBuyer
	}

	product, err := s.catalog.GetProduct(ctx, in.CategoryID, in.ProductID)
	if err != nil {
		return nil, fmt.Errorf("order: resolve product: %w", err)
	}
	if !product.Available() {
		return nil, ErrUnavailable
	}

	entity, err := domain.New(s.ids.NewID(), in.BuyerID, domain.Snapshot{
		CategoryID:  in.CategoryID,
		ProductID:   in.ProductID,
		Name:        product.Name,
		Price:       product.Price,
		Description: product.Description,
	})
	if err != nil {
		return nil, err
	}

	link, err := s.gateway.PaymentLink(ctx, entity.ID, entity.Product.Price)
	if err != nil {
		logger.Error("payment_link_failed", zap.String("order_id", entity.ID), zap.Error(err))
		return nil, fmt.Errorf("order: payment link: %w", err)
	}

	if err := s.repo.Insert(ctx, entity); err != nil {
		logger.Error("order_insert_failed", zap.String("order_id", entity.ID), zap.Error(err))
		return nil, fmt.Errorf("order: insert: %w", err)
	}

	span.SetAttributes(attribute.String("order.id", entity.ID))
	logger.Info("order_created",
		zap.String("order_id", entity.ID),
		zap.String("buyer_id", entity.BuyerID),
		zap.String("product", entity.Product.Name),
		zap.Int64("price", entity.Product.Price),
	)
	return &SelectProductResult{Order: entity, PaymentURL: link}, nil
}

// BeginPolling marks the order awaiting payment. Idempotent: a repeated call
// returns the current status without error, which lets the poller refuse
// duplicate scheduling without a separate check.
func (s *Service) BeginPolling(ctx context.Context, orderID string) (domain.Status, error) {
	o, err := s.repo.Transition(ctx, orderID, func(o *domain.Order) error {
		return o.BeginPolling()
	})
	if err != nil {
		return "", err
	}
	return o.Status, nil
}

// Complete transitions the order to paid. ErrInvalidTransition means another
// caller already closed the order.
func (s *Service) Complete(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.repo.Transition(ctx, orderID, func(o *domain.Order) error {
		return o.MarkPaid()
	})
}

func (s *Service) Expire(ctx context.Context, orderID, reason string) (*domain.Order, error) {
	return s.repo.Transition(ctx, orderID, func(o *domain.Order) error {
		return o.MarkExpired(reason)
	})
}

// MarkUnfulfilled closes a paid-but-unfulfillable order: the payment cleared
// after stock ran out. The caller surfaces it for manual refund.
func (s *Service) MarkUnfulfilled(ctx context.Context, orderID, reason string) (*domain.Order, error) {
	return s.repo.Transition(ctx, orderID, func(o *domain.Order) error {
		return o.MarkUnfulfilled(reason)
	})
}

// Get looks an order up by id, which is also its payment label.
func (s *Service) Get(ctx context.Context, orderID string) (*domain.Order, error) {
	if orderID == "" {
		return nil, domain.ErrNotFound
	}
	return s.repo.Get(ctx, orderID)
}

// PurgeTerminal drops terminal orders older than the retention window.
func (s *Service) PurgeTerminal(ctx context.Context, retention time.Duration) (int, error) {
	removed, err := s.repo.DeleteTerminalBefore(ctx, time.Now().UTC().Add(-retention))
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		logging.FromContext(ctx).Info("orders_purged", zap.Int("removed", removed))
	}
	return removed, nil
}
