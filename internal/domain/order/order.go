package order

import (
	"errors"
	"time"
)

var (
	ErrNotFound          = errors.New("order: not found")
	ErrConflict          = errors.New("order: already exists")
	ErrInvalidTransition = errors.New("order: invalid state transition")
	ErrInvalidBuyer      = errors.New("order: buyer id is required")
	ErrInvalidSnapshot   = errors.New("order: product snapshot is incomplete")
)

type Status string

const (
	StatusCreated         Status = "created"
	StatusAwaitingPayment Status = "awaiting_payment"
	StatusPaid            Status = "paid"
	StatusExpired         Status = "expired"
	// StatusUnfulfilled marks an oversold order: payment cleared but the last
	// unit of stock was already claimed by another completed order.
	StatusUnfulfilled Status = "unfulfilled"
)

func (s Status) Terminal() bool {
	switch s {
	case StatusPaid, StatusExpired, StatusUnfulfilled:
		return true
	}
	return false
}

// Snapshot captures the product at selection time. Later catalog edits never
// alter an in-flight purchase.
type Snapshot struct {
	CategoryID  string
	ProductID   string
	Name        string
	Price       int64
	Description string
}

// Order is one buyer's claim on one unit of one product. The order id doubles
// as the payment label used to query the gateway.
type Order struct {
	ID            string
	BuyerID       string
	Product       Snapshot
	Status        Status
	FailureReason string
	CreatedAt     time.Time
	ClosedAt      time.Time
}

func New(id, buyerID string, snap Snapshot) (*Order, error) {
	if buyerID == "" {
		return nil, ErrInvalidBuyer
	}
	if snap.CategoryID == "" || snap.ProductID == "" || snap.Name == "" || snap.Price <= 0 {
		return nil, ErrInvalidSnapshot
	}
	return &Order{
		ID:        id,
		BuyerID:   buyerID,
		Product:   snap,
		Status:    StatusCreated,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (o *Order) Terminal() bool { return o.Status.Terminal() }

// BeginPolling moves the order to awaiting_payment. Calling it on an order
// that is already awaiting is a no-op, which protects against scheduling a
// second poller for the same order.
func (o *Order) BeginPolling() error {
	switch o.Status {
	case StatusCreated:
		o.Status = StatusAwaitingPayment
		return nil
	case StatusAwaitingPayment:
		return nil
	default:
		return ErrInvalidTransition
	}
}

func (o *Order) MarkPaid() error {
	if o.Terminal() {
		return ErrInvalidTransition
	}
	o.Status = StatusPaid
	o.FailureReason = ""
	o.close()
	return nil
}

func (o *Order) MarkExpired(reason string) error {
	if o.Terminal() {
		return ErrInvalidTransition
	}
	o.Status = StatusExpired
	o.FailureReason = reason
	o.close()
	return nil
}

func (o *Order) MarkUnfulfilled(reason string) error {
	if o.Terminal() {
		return ErrInvalidTransition
	}
	o.Status = StatusUnfulfilled
	o.FailureReason = reason
	o.close()
	return nil
}

func (o *Order) close() {
	o.ClosedAt = time.Now().UTC()
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	return &clone
}
