package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	domcatalog "github.com/Zhima-Mochi/chatshop/internal/domain/catalog"
	domnotify "github.com/Zhima-Mochi/chatshop/internal/domain/notify"
	domorder "github.com/Zhima-Mochi/chatshop/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/chatshop/internal/domain/outbox"
	dompayment "github.com/Zhima-Mochi/chatshop/internal/domain/payment"
	"github.com/Zhima-Mochi/chatshop/internal/infrastructure/prometrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const tracerName = "chatshop.poller"

const (
	reasonTimeout  = "payment_timeout"
	reasonDeclined = "payment_declined"
	reasonOversold = "oversold"
)

// Registry is the slice of the order service the poller drives.
type Registry interface {
	Get(ctx context.Context, orderID string) (*domorder.Order, error)
	BeginPolling(ctx context.Context, orderID string) (domorder.Status, error)
	Complete(ctx context.Context, orderID string) (*domorder.Order, error)
	Expire(ctx context.Context, orderID, reason string) (*domorder.Order, error)
	MarkUnfulfilled(ctx context.Context, orderID, reason string) (*domorder.Order, error)
}

// Inventory is the slice of the inventory store the poller drives.
type Inventory interface {
	DecrementStock(ctx context.Context, categoryID, productID string) (int, error)
	Restock(ctx context.Context, categoryID, productID string, n int) (int, error)
}

type Config struct {
	Interval    time.Duration
	MaxAttempts int
}

// Manager runs one confirmation-polling task per awaiting order. Tasks only
// contend on the inventory store's critical section and the registry's
// terminal check-and-set; they never block each other directly.
type Manager struct {
	registry  Registry
	inventory Inventory
	gateway   dompayment.Gateway
	notifier  domnotify.Notifier
	publisher domoutbox.Publisher
	metrics   *prometrics.Metrics
	log       *zap.Logger
	cfg       Config

	mu    sync.Mutex
	tasks map[string]context.CancelFunc
	wg    sync.WaitGroup

	root   context.Context
	cancel context.CancelFunc
}

func NewManager(
	registry Registry,
	inventory Inventory,
	gateway dompayment.Gateway,
	notifier domnotify.Notifier,
	publisher domoutbox.Publisher,
	metrics *prometrics.Metrics,
	logger *zap.Logger,
	cfg Config,
) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 20
	}
	root, cancel := context.WithCancel(context.Background())
	return &Manager{
		registry:  registry,
		inventory: inventory,
		gateway:   gateway,
		notifier:  notifier,
		publisher: publisher,
		metrics:   metrics,
		log:       logger.With(zap.String("component", "confirmation_poller")),
		cfg:       cfg,
		tasks:     make(map[string]context.CancelFunc),
		root:      root,
		cancel:    cancel,
	}
}

// Watch schedules a polling task for the order. BeginPolling's idempotent
// transition plus the task map make double-scheduling a no-op.
func (m *Manager) Watch(ctx context.Context, orderID string) error {
	if _, err := m.registry.BeginPolling(ctx, orderID); err != nil {
		return fmt.Errorf("poller: begin polling: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, running := m.tasks[orderID]; running {
		return nil
	}
	select {
	case <-m.root.Done():
		return m.root.Err()
	default:
	}

	taskCtx, cancel := context.WithCancel(m.root)
	m.tasks[orderID] = cancel
	m.wg.Add(1)
	if m.metrics != nil {
		m.metrics.ActivePollers.Inc()
	}
	go m.run(taskCtx, orderID)

	m.log.Info("poller_scheduled", zap.String("order_id", orderID))
	return nil
}

// Watching reports whether a polling task is live for the order.
func (m *Manager) Watching(orderID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tasks[orderID]
	return ok
}

// Shutdown cancels every task and waits for them to drain. In-flight gateway
// queries finish or are abandoned; no task touches the registry or notifier
// after Wait returns.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) run(ctx context.Context, orderID string) {
	defer m.wg.Done()
	defer m.forget(orderID)

	log := m.log.With(zap.String("order_id", orderID))
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	attempts := 0
	for {
		select {
		case <-ctx.Done():
			log.Debug("poller_cancelled")
			return
		case <-ticker.C:
			if done := m.tick(ctx, orderID, &attempts, log); done {
				return
			}
		}
	}
}

func (m *Manager) forget(orderID string) {
	m.mu.Lock()
	if cancel, ok := m.tasks[orderID]; ok {
		cancel()
		delete(m.tasks, orderID)
	}
	m.mu.Unlock()
	if m.metrics != nil {
		m.metrics.ActivePollers.Dec()
	}
}

// tick runs one poll round and reports whether the task is finished.
func (m *Manager) tick(ctx context.Context, orderID string, attempts *int, log *zap.Logger) bool {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "PollTick")
	span.SetAttributes(attribute.String("order.id", orderID))
	defer span.End()

	o, err := m.registry.Get(ctx, orderID)
	if err != nil {
		log.Error("order_load_failed", zap.Error(err))
		return true
	}
	// Another path may have closed the order since the last tick.
	if o.Terminal() {
		log.Debug("order_already_terminal", zap.String("status", string(o.Status)))
		return true
	}

	start := time.Now()
	status, err := m.gateway.QueryStatus(ctx, o.ID)
	m.observeGateway(status, err, time.Since(start))
	if err != nil {
		// Transient by contract: retry next tick, never counts toward expiry.
		m.countTick(prometrics.OutcomeTransient)
		log.Warn("gateway_query_transient_error", zap.Error(err))
		return false
	}
	span.SetAttributes(attribute.String("payment.status", string(status)))

	switch status {
	case dompayment.StatusSuccess:
		return m.settle(ctx, o, log)
	case dompayment.StatusFailed:
		m.expire(ctx, o, reasonDeclined, log)
		return true
	case dompayment.StatusPending:
		*attempts++
		if *attempts >= m.cfg.MaxAttempts {
			log.Info("poll_budget_exhausted", zap.Int("attempts", *attempts))
			m.expire(ctx, o, reasonTimeout, log)
			return true
		}
		m.countTick(prometrics.OutcomePending)
		return false
	default:
		log.Error("gateway_unknown_status", zap.String("status", string(status)))
		return false
	}
}

// settle handles an observed successful payment: claim a unit of stock, then
// close the order. Only the caller whose terminal transition wins sends the
// buyer notification, so a duplicate success observation cannot notify twice.
func (m *Manager) settle(ctx context.Context, o *domorder.Order, log *zap.Logger) bool {
	_, err := m.inventory.DecrementStock(ctx, o.Product.CategoryID, o.Product.ProductID)
	switch {
	case err == nil:
		completed, cerr := m.registry.Complete(ctx, o.ID)
		if errors.Is(cerr, domorder.ErrInvalidTransition) {
			// The order was already closed: this success is a benign duplicate
			// and the unit claimed above would double-count. Put it back.
			if _, rerr := m.inventory.Restock(ctx, o.Product.CategoryID, o.Product.ProductID, 1); rerr != nil {
				log.Error("duplicate_restock_failed", zap.Error(rerr))
			}
			m.countTick(prometrics.OutcomeDuplicate)
			log.Warn("duplicate_payment_success_ignored")
			return true
		}
		if cerr != nil {
			log.Error("order_complete_failed", zap.Error(cerr))
			return true
		}

		m.countTick(prometrics.OutcomePaid)
		m.notify(ctx, domnotify.Notification{
			BuyerID:    completed.BuyerID,
			Text:       fmt.Sprintf("Thank you! Your order for %s is paid.", completed.Product.Name),
			Attachment: completed.Product.Description,
		}, log)
		m.publish(ctx, domorder.NewOrderPaidEvent(completed), log)
		log.Info("order_paid", zap.String("product", completed.Product.Name))
		return true

	case errors.Is(err, domcatalog.ErrDepleted), errors.Is(err, domcatalog.ErrNotFound):
		// Payment cleared but the unit is gone: a genuine oversell. Surface
		// it, never drop it silently.
		unfulfilled, uerr := m.registry.MarkUnfulfilled(ctx, o.ID, reasonOversold)
		if errors.Is(uerr, domorder.ErrInvalidTransition) {
			return true
		}
		if uerr != nil {
			log.Error("order_unfulfilled_transition_failed", zap.Error(uerr))
			return true
		}

		m.countTick(prometrics.OutcomeOversold)
		m.notify(ctx, domnotify.Notification{
			BuyerID: unfulfilled.BuyerID,
			Text: fmt.Sprintf("Your payment for %s went through, but the item just sold out. "+
				"We are refunding you; sorry for the trouble.", unfulfilled.Product.Name),
		}, log)
		m.publish(ctx, domorder.NewOrderOversoldEvent(unfulfilled), log)
		log.Error("order_oversold",
			zap.String("buyer_id", unfulfilled.BuyerID),
			zap.String("product_id", unfulfilled.Product.ProductID),
		)
		return true

	default:
		log.Error("stock_decrement_failed", zap.Error(err))
		return false
	}
}

func (m *Manager) expire(ctx context.Context, o *domorder.Order, reason string, log *zap.Logger) {
	expired, err := m.registry.Expire(ctx, o.ID, reason)
	if errors.Is(err, domorder.ErrInvalidTransition) {
		// Already closed elsewhere; nothing to announce.
		return
	}
	if err != nil {
		log.Error("order_expire_failed", zap.Error(err))
		return
	}

	m.countTick(prometrics.OutcomeExpired)
	m.notify(ctx, domnotify.Notification{
		BuyerID: expired.BuyerID,
		Text: fmt.Sprintf("We could not confirm payment for %s and your order has expired. "+
			"Please start over if you still want it.", expired.Product.Name),
	}, log)
	m.publish(ctx, domorder.NewOrderExpiredEvent(expired), log)
	log.Info("order_expired", zap.String("reason", reason))
}

func (m *Manager) notify(ctx context.Context, n domnotify.Notification, log *zap.Logger) {
	if err := m.notifier.Notify(ctx, n); err != nil {
		// Payment truth is the source of record; a failed delivery never
		// rolls the order back.
		log.Error("notification_delivery_failed", zap.String("buyer_id", n.BuyerID), zap.Error(err))
	}
}

func (m *Manager) publish(ctx context.Context, e domoutbox.Event, log *zap.Logger) {
	if m.publisher == nil {
		return
	}
	if err := m.publisher.Publish(ctx, e); err != nil {
		log.Warn("event_publish_failed", zap.String("event", e.EventName()), zap.Error(err))
	}
}

func (m *Manager) countTick(outcome string) {
	if m.metrics != nil {
		m.metrics.PollTicks.WithLabelValues(outcome).Inc()
	}
}

func (m *Manager) observeGateway(status dompayment.Status, err error, d time.Duration) {
	if m.metrics == nil {
		return
	}
	outcome := string(status)
	if err != nil {
		outcome = prometrics.OutcomeTransient
	}
	m.metrics.GatewayDuration.WithLabelValues(outcome).Observe(d.Seconds())
}
