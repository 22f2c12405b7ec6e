package poller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	appcatalog "github.com/Zhima-Mochi/chatshop/internal/application/catalog"
	apporder "github.com/Zhima-Mochi/chatshop/internal/application/order"
	domcatalog "github.com/Zhima-Mochi/chatshop/internal/domain/catalog"
	domnotify "github.com/Zhima-Mochi/chatshop/internal/domain/notify"
	domorder "github.com/Zhima-Mochi/chatshop/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/chatshop/internal/domain/outbox"
	dompayment "github.com/Zhima-Mochi/chatshop/internal/domain/payment"
	"github.com/Zhima-Mochi/chatshop/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/chatshop/internal/infrastructure/prometrics"
)

const testInterval = 5 * time.Millisecond

type gatewayResponse struct {
	status dompayment.Status
	err    error
}

// scriptedGateway replays a per-label response script; the last entry repeats
// forever, like a provider's operation history.
type scriptedGateway struct {
	mu      sync.Mutex
	scripts map[string][]gatewayResponse
	queries map[string]int
}

func newScriptedGateway() *scriptedGateway {
	return &scriptedGateway{
		scripts: make(map[string][]gatewayResponse),
		queries: make(map[string]int),
	}
}

func (g *scriptedGateway) script(label string, rs ...gatewayResponse) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.scripts[label] = rs
}

func (g *scriptedGateway) queryCount(label string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.queries[label]
}

func (g *scriptedGateway) PaymentLink(ctx context.Context, label string, amount int64) (string, error) {
	return fmt.Sprintf("https://pay.test/%s?sum=%d", label, amount), nil
}

func (g *scriptedGateway) QueryStatus(ctx context.Context, label string) (dompayment.Status, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.queries[label]++
	script := g.scripts[label]
	if len(script) == 0 {
		return dompayment.StatusPending, nil
	}
	next := script[0]
	if len(script) > 1 {
		g.scripts[label] = script[1:]
	}
	return next.status, next.err
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []domnotify.Notification
}

func (n *recordingNotifier) Notify(ctx context.Context, msg domnotify.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return nil
}

func (n *recordingNotifier) forBuyer(buyerID string) []domnotify.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []domnotify.Notification
	for _, msg := range n.sent {
		if msg.BuyerID == buyerID {
			out = append(out, msg)
		}
	}
	return out
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domoutbox.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, e domoutbox.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) byName(name string) []domoutbox.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domoutbox.Event
	for _, e := range p.events {
		if e.EventName() == name {
			out = append(out, e)
		}
	}
	return out
}

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDs) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("id-%d", g.n)
}

type fixture struct {
	manager   *Manager
	orders    *apporder.Service
	catalog   *appcatalog.Service
	store     *memory.CatalogStore
	gateway   *scriptedGateway
	notifier  *recordingNotifier
	publisher *recordingPublisher
}

func newFixture(t *testing.T, stock, maxAttempts int) *fixture {
	t.Helper()
	ctx := context.Background()

	store := memory.NewCatalogStore()
	c, _ := domcatalog.NewCategory("cat-1", "Digital goods")
	if err := store.AddCategory(ctx, c); err != nil {
		t.Fatalf("add category: %v", err)
	}
	p, _ := domcatalog.NewProduct("prod-1", "Digital item", 100, "the content", stock)
	if err := store.AddProduct(ctx, "cat-1", p); err != nil {
		t.Fatalf("add product: %v", err)
	}

	ids := &seqIDs{}
	gw := newScriptedGateway()
	notifier := &recordingNotifier{}
	publisher := &recordingPublisher{}

	orders := apporder.NewService(memory.NewOrderRegistry(), store, gw, ids)
	catalog := appcatalog.NewService(store, ids)

	manager := NewManager(
		orders, catalog, gw, notifier, publisher,
		prometrics.New(prometheus.NewRegistry()),
		zap.NewNop(),
		Config{Interval: testInterval, MaxAttempts: maxAttempts},
	)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = manager.Shutdown(ctx)
	})

	return &fixture{
		manager:   manager,
		orders:    orders,
		catalog:   catalog,
		store:     store,
		gateway:   gw,
		notifier:  notifier,
		publisher: publisher,
	}
}

func (f *fixture) createOrder(t *testing.T, buyerID string) *domorder.Order {
	t.Helper()
	result, err := f.orders.SelectProduct(context.Background(), apporder.SelectProductInput{
		BuyerID:    buyerID,
		CategoryID: "cat-1",
		ProductID:  "prod-1",
	})
	if err != nil {
		t.Fatalf("select product: %v", err)
	}
	return result.Order
}

func (f *fixture) stock(t *testing.T) int {
	t.Helper()
	p, err := f.store.GetProduct(context.Background(), "cat-1", "prod-1")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	return p.Stock
}

func (f *fixture) orderStatus(t *testing.T, id string) domorder.Status {
	t.Helper()
	o, err := f.orders.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	return o.Status
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestTransientErrorsThenSuccess(t *testing.T) {
	f := newFixture(t, 5, 10)
	o := f.createOrder(t, "buyer-1")

	// Three transient failures must not count toward expiry.
	netErr := errors.New("gateway unreachable")
	f.gateway.script(o.ID,
		gatewayResponse{err: netErr},
		gatewayResponse{err: netErr},
		gatewayResponse{err: netErr},
		gatewayResponse{status: dompayment.StatusSuccess},
	)

	if err := f.manager.Watch(context.Background(), o.ID); err != nil {
		t.Fatalf("watch: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		return f.orderStatus(t, o.ID) == domorder.StatusPaid
	})

	if got := f.stock(t); got != 4 {
		t.Fatalf("expected stock 4 after one sale, got %d", got)
	}

	sent := f.notifier.forBuyer("buyer-1")
	if len(sent) != 1 {
		t.Fatalf("expected exactly one notification, got %d", len(sent))
	}
	if sent[0].Attachment != "the content" {
		t.Fatalf("purchased content not delivered: %q", sent[0].Attachment)
	}

	if events := f.publisher.byName("order.paid"); len(events) != 1 {
		t.Fatalf("expected one paid event, got %d", len(events))
	}

	waitFor(t, time.Second, func() bool { return !f.manager.Watching(o.ID) })
}

func TestPendingUntilBudgetExpires(t *testing.T) {
	const maxAttempts = 10
	f := newFixture(t, 5, maxAttempts)
	o := f.createOrder(t, "buyer-1")
	// Default script: pending forever.

	if err := f.manager.Watch(context.Background(), o.ID); err != nil {
		t.Fatalf("watch: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		return f.orderStatus(t, o.ID) == domorder.StatusExpired
	})

	final, _ := f.orders.Get(context.Background(), o.ID)
	if final.FailureReason != "payment_timeout" {
		t.Fatalf("expected timeout reason, got %q", final.FailureReason)
	}
	if got := f.stock(t); got != 5 {
		t.Fatalf("expired order must not touch stock, got %d", got)
	}

	sent := f.notifier.forBuyer("buyer-1")
	if len(sent) != 1 {
		t.Fatalf("expected one apology, got %d", len(sent))
	}
	if sent[0].Attachment != "" {
		t.Fatal("expiry notification must not carry content")
	}

	// The task is gone: no further gateway queries for this label.
	waitFor(t, time.Second, func() bool { return !f.manager.Watching(o.ID) })
	queries := f.gateway.queryCount(o.ID)
	if queries != maxAttempts {
		t.Fatalf("expected %d gateway queries, got %d", maxAttempts, queries)
	}
	time.Sleep(10 * testInterval)
	if again := f.gateway.queryCount(o.ID); again != queries {
		t.Fatalf("poller kept querying after expiry: %d -> %d", queries, again)
	}
}

func TestDeclinedPaymentExpiresOrder(t *testing.T) {
	f := newFixture(t, 5, 10)
	o := f.createOrder(t, "buyer-1")
	f.gateway.script(o.ID, gatewayResponse{status: dompayment.StatusFailed})

	if err := f.manager.Watch(context.Background(), o.ID); err != nil {
		t.Fatalf("watch: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		return f.orderStatus(t, o.ID) == domorder.StatusExpired
	})

	final, _ := f.orders.Get(context.Background(), o.ID)
	if final.FailureReason != "payment_declined" {
		t.Fatalf("expected declined reason, got %q", final.FailureReason)
	}
	if events := f.publisher.byName("order.expired"); len(events) != 1 {
		t.Fatalf("expected one expired event, got %d", len(events))
	}
}

func TestDuplicateSuccessSignalsNotifyOnce(t *testing.T) {
	f := newFixture(t, 5, 20)
	o := f.createOrder(t, "buyer-1")
	// Five consecutive successes, as a gateway history would report.
	f.gateway.script(o.ID,
		gatewayResponse{status: dompayment.StatusSuccess},
		gatewayResponse{status: dompayment.StatusSuccess},
		gatewayResponse{status: dompayment.StatusSuccess},
		gatewayResponse{status: dompayment.StatusSuccess},
		gatewayResponse{status: dompayment.StatusSuccess},
	)

	if err := f.manager.Watch(context.Background(), o.ID); err != nil {
		t.Fatalf("watch: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		return f.orderStatus(t, o.ID) == domorder.StatusPaid
	})
	time.Sleep(10 * testInterval)

	if sent := f.notifier.forBuyer("buyer-1"); len(sent) != 1 {
		t.Fatalf("expected exactly one notification, got %d", len(sent))
	}
	if got := f.stock(t); got != 4 {
		t.Fatalf("stock must decrement exactly once, got %d", got)
	}
}

func TestOversellRace(t *testing.T) {
	f := newFixture(t, 1, 20)
	first := f.createOrder(t, "buyer-a")
	second := f.createOrder(t, "buyer-b")
	f.gateway.script(first.ID, gatewayResponse{status: dompayment.StatusSuccess})
	f.gateway.script(second.ID, gatewayResponse{status: dompayment.StatusSuccess})

	if err := f.manager.Watch(context.Background(), first.ID); err != nil {
		t.Fatalf("watch first: %v", err)
	}
	if err := f.manager.Watch(context.Background(), second.ID); err != nil {
		t.Fatalf("watch second: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		return f.orderStatus(t, first.ID).Terminal() && f.orderStatus(t, second.ID).Terminal()
	})

	statuses := map[domorder.Status]int{
		f.orderStatus(t, first.ID):  1,
		f.orderStatus(t, second.ID): 1,
	}
	if statuses[domorder.StatusPaid] != 1 || statuses[domorder.StatusUnfulfilled] != 1 {
		t.Fatalf("expected one paid and one unfulfilled, got %v", statuses)
	}
	if got := f.stock(t); got != 0 {
		t.Fatalf("expected stock 0, got %d", got)
	}

	// The oversold buyer is told, the operator alert event fires, and no one
	// silently double-claims the unit.
	if events := f.publisher.byName("order.oversold"); len(events) != 1 {
		t.Fatalf("expected one oversold event, got %d", len(events))
	}
	for _, buyer := range []string{"buyer-a", "buyer-b"} {
		if sent := f.notifier.forBuyer(buyer); len(sent) != 1 {
			t.Fatalf("buyer %s: expected one notification, got %d", buyer, len(sent))
		}
	}

	var oversoldBuyer string
	if f.orderStatus(t, first.ID) == domorder.StatusUnfulfilled {
		oversoldBuyer = "buyer-a"
	} else {
		oversoldBuyer = "buyer-b"
	}
	msg := f.notifier.forBuyer(oversoldBuyer)[0]
	if !strings.Contains(msg.Text, "refund") {
		t.Fatalf("oversold buyer must be told about the refund: %q", msg.Text)
	}
	if msg.Attachment != "" {
		t.Fatal("oversold order must not deliver content")
	}
}

func TestSettleDuplicateRestocksUnit(t *testing.T) {
	f := newFixture(t, 2, 20)
	o := f.createOrder(t, "buyer-1")
	ctx := context.Background()

	if _, err := f.orders.BeginPolling(ctx, o.ID); err != nil {
		t.Fatalf("begin polling: %v", err)
	}
	// The order closes elsewhere while this poller holds a stale copy.
	if _, err := f.orders.Complete(ctx, o.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}

	stale, _ := f.orders.Get(ctx, o.ID)
	stale.Status = domorder.StatusAwaitingPayment

	if done := f.manager.settle(ctx, stale, zap.NewNop()); !done {
		t.Fatal("duplicate settle must finish the task")
	}

	// The decrement taken for the duplicate success is put back.
	if got := f.stock(t); got != 2 {
		t.Fatalf("expected stock restored to 2, got %d", got)
	}
	if sent := f.notifier.forBuyer("buyer-1"); len(sent) != 0 {
		t.Fatalf("duplicate settle must not notify, got %d", len(sent))
	}
}

func TestWatchTerminalOrderRefused(t *testing.T) {
	f := newFixture(t, 5, 20)
	o := f.createOrder(t, "buyer-1")
	ctx := context.Background()

	_, _ = f.orders.BeginPolling(ctx, o.ID)
	_, _ = f.orders.Complete(ctx, o.ID)

	if err := f.manager.Watch(ctx, o.ID); !errors.Is(err, domorder.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if f.manager.Watching(o.ID) {
		t.Fatal("no task may be scheduled for a terminal order")
	}
}

func TestWatchTwiceSchedulesOneTask(t *testing.T) {
	f := newFixture(t, 5, 20)
	o := f.createOrder(t, "buyer-1")
	ctx := context.Background()

	if err := f.manager.Watch(ctx, o.ID); err != nil {
		t.Fatalf("watch: %v", err)
	}
	if err := f.manager.Watch(ctx, o.ID); err != nil {
		t.Fatalf("second watch must be a no-op: %v", err)
	}

	// One task means the gateway sees roughly one query per interval, not two.
	time.Sleep(10 * testInterval)
	if n := f.gateway.queryCount(o.ID); n > 12 {
		t.Fatalf("duplicate task suspected: %d queries in 10 intervals", n)
	}
}

func TestShutdownStopsAllTasks(t *testing.T) {
	f := newFixture(t, 5, 1000)
	o := f.createOrder(t, "buyer-1")

	if err := f.manager.Watch(context.Background(), o.ID); err != nil {
		t.Fatalf("watch: %v", err)
	}
	waitFor(t, time.Second, func() bool { return f.gateway.queryCount(o.ID) > 0 })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := f.manager.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	queries := f.gateway.queryCount(o.ID)
	time.Sleep(10 * testInterval)
	if again := f.gateway.queryCount(o.ID); again != queries {
		t.Fatalf("task survived shutdown: %d -> %d queries", queries, again)
	}

	if err := f.manager.Watch(context.Background(), o.ID); err == nil {
		t.Fatal("watch after shutdown must fail")
	}
}
