package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	appalert "github.com/Zhima-Mochi/chatshop/internal/application/alert"
	appcatalog "github.com/Zhima-Mochi/chatshop/internal/application/catalog"
	apporder "github.com/Zhima-Mochi/chatshop/internal/application/order"
	apppoller "github.com/Zhima-Mochi/chatshop/internal/application/poller"
	"github.com/Zhima-Mochi/chatshop/internal/config"
	"github.com/Zhima-Mochi/chatshop/internal/infrastructure/id"
	"github.com/Zhima-Mochi/chatshop/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/chatshop/internal/infrastructure/notify"
	"github.com/Zhima-Mochi/chatshop/internal/infrastructure/outbox"
	"github.com/Zhima-Mochi/chatshop/internal/infrastructure/payment"
	"github.com/Zhima-Mochi/chatshop/internal/infrastructure/prometrics"
	"github.com/Zhima-Mochi/chatshop/internal/pkg/logging"
	httppresentation "github.com/Zhima-Mochi/chatshop/internal/presentation/http"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger := logging.MustNewLogger(cfg.ServiceName, cfg.Env)
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	metrics := prometrics.New(prometheus.DefaultRegisterer)

	catalogStore := memory.NewCatalogStore()
	orderRegistry := memory.NewOrderRegistry()
	idGenerator := id.NewUUIDGenerator()
	gateway := payment.NewSimulator(cfg.GatewaySuccessRate, cfg.GatewayPendingTicks)
	notifier := notify.NewLogNotifier(logger)

	bus := outbox.NewBus(logger)
	bus.Start(context.Background())
	defer bus.Stop(context.Background())

	catalogService := appcatalog.NewService(catalogStore, idGenerator)
	orderService := apporder.NewService(orderRegistry, catalogStore, gateway, idGenerator)

	poller := apppoller.NewManager(
		orderService,
		catalogService,
		gateway,
		notifier,
		bus,
		metrics,
		logger,
		apppoller.Config{
			Interval:    cfg.PollInterval,
			MaxAttempts: cfg.MaxPollAttempts,
		},
	)

	alertWorker := appalert.New(bus, metrics, logger)
	alertWorker.Start()

	seedCatalog(catalogService, logger)

	handler := httppresentation.NewHandler(orderService, catalogService, poller, logger)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", handler.Router())

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: mux,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("http_server_start", zap.String("addr", server.Addr))
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http_server_error", zap.Error(err))
		}
	}()

	go runRetentionSweep(ctx, orderService, cfg, logger)

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http_server_shutdown_error", zap.Error(err))
	}
	if err := poller.Shutdown(shutdownCtx); err != nil {
		logger.Error("poller_shutdown_error", zap.Error(err))
	}
	logger.Info("shutdown_complete")
}

// runRetentionSweep garbage-collects terminal orders past the retention
// window so the in-memory registry does not grow without bound.
func runRetentionSweep(ctx context.Context, orders *apporder.Service, cfg config.Config, logger *zap.Logger) {
	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := orders.PurgeTerminal(ctx, cfg.RetentionWindow); err != nil {
				logger.Error("retention_sweep_failed", zap.Error(err))
			}
		}
	}
}

// seedCatalog loads the demo categories so a fresh process has something to
// sell. Real deployments replace this through the admin endpoints.
func seedCatalog(svc *appcatalog.Service, logger *zap.Logger) {
	ctx := logging.ContextWithLogger(context.Background(), logger)

	digital, err := svc.AddCategory(ctx, "Digital goods")
	if err != nil {
		logger.Error("seed_failed", zap.Error(err))
		return
	}

	seedProducts := []appcatalog.AddProductInput{
		{Name: "Digital item 1", Price: 100, Description: "Unique content for item 1. Thanks for your purchase!", Stock: 5},
		{Name: "Digital item 2", Price: 200, Description: "Unique content for item 2. Congratulations!", Stock: 3},
	}
	for _, in := range seedProducts {
		if _, err := svc.AddProduct(ctx, digital.ID, in); err != nil {
			logger.Error("seed_failed", zap.String("product", in.Name), zap.Error(err))
		}
	}

	if _, err := svc.AddCategory(ctx, "Gift cards"); err != nil {
		logger.Error("seed_failed", zap.Error(err))
	}
}
