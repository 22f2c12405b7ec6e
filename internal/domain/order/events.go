package order

import "time"

// OrderPaidEvent is emitted after an order's terminal transition to paid.
type OrderPaidEvent struct {
	OrderID     string
	BuyerID     string
	CategoryID  string
	ProductID   string
	ProductName string
	Price       int64
	OccurredAt  time.Time
}

func (OrderPaidEvent) EventName() string { return "order.paid" }

func NewOrderPaidEvent(o *Order) OrderPaidEvent {
	return OrderPaidEvent{
		OrderID:     o.ID,
		BuyerID:     o.BuyerID,
		CategoryID:  o.Product.CategoryID,
		ProductID:   o.Product.ProductID,
		ProductName: o.Product.Name,
		Price:       o.Product.Price,
		OccurredAt:  time.Now().UTC(),
	}
}

// OrderExpiredEvent is emitted when an order expires without a payment signal
// or after a definitive gateway failure.
type OrderExpiredEvent struct {
	OrderID    string
	BuyerID    string
	Reason     string
	OccurredAt time.Time
}

func (OrderExpiredEvent) EventName() string { return "order.expired" }

func NewOrderExpiredEvent(o *Order) OrderExpiredEvent {
	return OrderExpiredEvent{
		OrderID:    o.ID,
		BuyerID:    o.BuyerID,
		Reason:     o.FailureReason,
		OccurredAt: time.Now().UTC(),
	}
}

// OrderOversoldEvent flags a paid order that could not be fulfilled because
// stock was already claimed. It requires operator attention (manual refund).
type OrderOversoldEvent struct {
	OrderID    string
	BuyerID    string
	CategoryID string
	ProductID  string
	Price      int64
	OccurredAt time.Time
}

func (OrderOversoldEvent) EventName() string { return "order.oversold" }

func NewOrderOversoldEvent(o *Order) OrderOversoldEvent {
	return OrderOversoldEvent{
		OrderID:    o.ID,
		BuyerID:    o.BuyerID,
		CategoryID: o.Product.CategoryID,
		ProductID:  o.Product.ProductID,
		Price:      o.Product.Price,
		OccurredAt: time.Now().UTC(),
	}
}
