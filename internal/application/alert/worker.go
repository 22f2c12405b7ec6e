package alert

import (
	"context"

	domorder "github.com/Zhima-Mochi/chatshop/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/chatshop/internal/domain/outbox"
	"github.com/Zhima-Mochi/chatshop/internal/infrastructure/prometrics"
	"go.uber.org/zap"
)

// Worker turns terminal order events into operator-visible signals: outcome
// metrics for every close, and an alert-level log entry for each oversell so
// a manual refund never goes unnoticed.
type Worker struct {
	subscriber domoutbox.Subscriber
	metrics    *prometrics.Metrics
	log        *zap.Logger
}

func New(subscriber domoutbox.Subscriber, metrics *prometrics.Metrics, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		subscriber: subscriber,
		metrics:    metrics,
		log:        logger.With(zap.String("component", "alert_worker")),
	}
}

func (w *Worker) Start() {
	if w.subscriber == nil {
		return
	}
	w.subscriber.Subscribe(domorder.OrderPaidEvent{}.EventName(), w.handlePaid)
	w.subscriber.Subscribe(domorder.OrderExpiredEvent{}.EventName(), w.handleExpired)
	w.subscriber.Subscribe(domorder.OrderOversoldEvent{}.EventName(), w.handleOversold)
}

func (w *Worker) handlePaid(ctx context.Context, e domoutbox.Event) error {
	_ = ctx
	evt, ok := e.(domorder.OrderPaidEvent)
	if !ok {
		return nil
	}
	w.count(domorder.StatusPaid)
	w.log.Info("order_settled",
		zap.String("order_id", evt.OrderID),
		zap.String("product", evt.ProductName),
		zap.Int64("price", evt.Price),
	)
	return nil
}

func (w *Worker) handleExpired(ctx context.Context, e domoutbox.Event) error {
	_ = ctx
	evt, ok := e.(domorder.OrderExpiredEvent)
	if !ok {
		return nil
	}
	w.count(domorder.StatusExpired)
	w.log.Info("order_lapsed",
		zap.String("order_id", evt.OrderID),
		zap.String("reason", evt.Reason),
	)
	return nil
}

func (w *Worker) handleOversold(ctx context.Context, e domoutbox.Event) error {
	_ = ctx
	evt, ok := e.(domorder.OrderOversoldEvent)
	if !ok {
		return nil
	}
	w.count(domorder.StatusUnfulfilled)
	if w.metrics != nil {
		w.metrics.OversellTotal.Inc()
	}
	w.log.Error("oversell_requires_manual_refund",
		zap.String("order_id", evt.OrderID),
		zap.String("buyer_id", evt.BuyerID),
		zap.String("category_id", evt.CategoryID),
		zap.String("product_id", evt.ProductID),
		zap.Int64("amount", evt.Price),
	)
	return nil
}

func (w *Worker) count(status domorder.Status) {
	if w.metrics != nil {
		w.metrics.OrderOutcomes.WithLabelValues(string(status)).Inc()
	}
}
