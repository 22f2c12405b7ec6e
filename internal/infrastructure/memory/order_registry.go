package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	domain "github.com/Zhima-Mochi/chatshop/internal/domain/order"
)

// OrderRegistry keeps orders in a map keyed by id (the payment label), so
// label lookup is the same O(1) access.
type OrderRegistry struct {
	mu     sync.RWMutex
	orders map[string]*domain.Order
}

func NewOrderRegistry() *OrderRegistry {
	return &OrderRegistry{
		orders: make(map[string]*domain.Order),
	}
}

func (r *OrderRegistry) Insert(ctx context.Context, o *domain.Order) error {
	_ = ctx
	if o == nil || o.ID == "" {
		return fmt.Errorf("order registry: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orders[o.ID]; exists {
		return domain.ErrConflict
	}
	r.orders[o.ID] = o.Clone()
	return nil
}

func (r *OrderRegistry) Get(ctx context.Context, id string) (*domain.Order, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return o.Clone(), nil
}

// Transition runs fn against a copy of the stored order under the write lock
// and commits only on success. Terminal checks inside fn are therefore
// check-and-set: concurrent complete/expire calls race for the lock and all
// but the first fail with the entity's ErrInvalidTransition.
func (r *OrderRegistry) Transition(ctx context.Context, id string, fn func(*domain.Order) error) (*domain.Order, error) {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}

	next := o.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	r.orders[id] = next
	return next.Clone(), nil
}

func (r *OrderRegistry) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, o := range r.orders {
		if o.Terminal() && o.ClosedAt.Before(cutoff) {
			delete(r.orders, id)
			removed++
		}
	}
	return removed, nil
}
