package order

import (
	"context"
	"time"
)

// Repository stores orders keyed by id. The id is the payment label, so
// gateway-side lookups are the same O(1) map access.
type Repository interface {
	Insert(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)

	// Transition applies fn to the stored order under the registry's lock and
	// commits only when fn succeeds. Terminal-state checks inside fn therefore
	// have compare-and-set semantics: across any number of concurrent callers
	// at most one terminal transition wins.
	Transition(ctx context.Context, id string, fn func(*Order) error) (*Order, error)

	// DeleteTerminalBefore removes terminal orders closed before cutoff and
	// returns how many were dropped.
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error)
}
