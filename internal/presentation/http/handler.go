package httppresentation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	appcatalog "github.com/Zhima-Mochi/chatshop/internal/application/catalog"
	apporder "github.com/Zhima-Mochi/chatshop/internal/application/order"
	domcatalog "github.com/Zhima-Mochi/chatshop/internal/domain/catalog"
	domorder "github.com/Zhima-Mochi/chatshop/internal/domain/order"
	"go.uber.org/zap"
)

// PaymentWatcher schedules a confirmation poller for a freshly created order.
type PaymentWatcher interface {
	Watch(ctx context.Context, orderID string) error
}

// Handler is the thin chat/UI collaborator surface: product selection for
// buyers and the catalog admin panel. All business rules live below it.
type Handler struct {
	orders  *apporder.Service
	catalog *appcatalog.Service
	watcher PaymentWatcher
	log     *zap.Logger
}

func NewHandler(orders *apporder.Service, catalog *appcatalog.Service, watcher PaymentWatcher, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		orders:  orders,
		catalog: catalog,
		watcher: watcher,
		log:     logger.With(zap.String("component", "http_server")),
	}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Timeout(15 * time.Second))
	r.Use(h.withAccessLog)

	r.Post("/orders", h.handleSelectProduct)
	r.Get("/orders/{orderID}", h.handleGetOrder)

	r.Get("/catalog", h.handleListCatalog)
	r.Get("/catalog/{categoryID}", h.handleGetCategory)

	r.Post("/admin/categories", h.handleAddCategory)
	r.Post("/admin/categories/{categoryID}/products", h.handleAddProduct)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return r
}

type selectProductRequest struct {
	BuyerID    string `json:"buyer_id"`
	CategoryID string `json:"category_id"`
	ProductID  string `json:"product_id"`
}

type selectProductResponse struct {
	OrderID    string `json:"order_id"`
	PaymentURL string `json:"payment_url"`
	Status     string `json:"status"`
}

func (h *Handler) handleSelectProduct(w http.ResponseWriter, r *http.Request) {
	var req selectProductRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := h.orders.SelectProduct(r.Context(), apporder.SelectProductInput{
		BuyerID:    req.BuyerID,
		CategoryID: req.CategoryID,
		ProductID:  req.ProductID,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if err := h.watcher.Watch(r.Context(), result.Order.ID); err != nil {
		h.log.Error("poller_schedule_failed", zap.String("order_id", result.Order.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusCreated, selectProductResponse{
		OrderID:    result.Order.ID,
		PaymentURL: result.PaymentURL,
		Status:     string(domorder.StatusAwaitingPayment),
	})
}

type orderResponse struct {
	OrderID     string `json:"order_id"`
	BuyerID     string `json:"buyer_id"`
	CategoryID  string `json:"category_id"`
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Price       int64  `json:"price"`
	Status      string `json:"status"`
	Reason      string `json:"reason,omitempty"`
	CreatedAt   string `json:"created_at"`
	ClosedAt    string `json:"closed_at,omitempty"`
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := orderResponse{
		OrderID:     o.ID,
		BuyerID:     o.BuyerID,
		CategoryID:  o.Product.CategoryID,
		ProductID:   o.Product.ProductID,
		ProductName: o.Product.Name,
		Price:       o.Product.Price,
		Status:      string(o.Status),
		Reason:      o.FailureReason,
		CreatedAt:   o.CreatedAt.Format(time.RFC3339Nano),
	}
	if !o.ClosedAt.IsZero() {
		resp.ClosedAt = o.ClosedAt.Format(time.RFC3339Nano)
	}
	writeJSON(w, http.StatusOK, resp)
}

type productView struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Stock     int    `json:"stock"`
	Available bool   `json:"available"`
}

type categoryView struct {
	CategoryID string        `json:"category_id"`
	Name       string        `json:"name"`
	Products   []productView `json:"products"`
}

func (h *Handler) handleListCatalog(w http.ResponseWriter, r *http.Request) {
	categories, err := h.catalog.ListCategories(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]categoryView, 0, len(categories))
	for _, c := range categories {
		out = append(out, toCategoryView(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGetCategory(w http.ResponseWriter, r *http.Request) {
	c, err := h.catalog.GetCategory(r.Context(), chi.URLParam(r, "categoryID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCategoryView(c))
}

type addCategoryRequest struct {
	Name string `json:"name"`
}

func (h *Handler) handleAddCategory(w http.ResponseWriter, r *http.Request) {
	var req addCategoryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	c, err := h.catalog.AddCategory(r.Context(), req.Name)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"category_id": c.ID,
		"name":        c.Name,
	})
}

type addProductRequest struct {
	Name        string `json:"name"`
	Price       int64  `json:"price"`
	Description string `json:"description"`
	Stock       int    `json:"stock"`
}

func (h *Handler) handleAddProduct(w http.ResponseWriter, r *http.Request) {
	var req addProductRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	p, err := h.catalog.AddProduct(r.Context(), chi.URLParam(r, "categoryID"), appcatalog.AddProductInput{
		Name:        req.Name,
		Price:       req.Price,
		Description: req.Description,
		Stock:       req.Stock,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, productView{
		ProductID: p.ID,
		Name:      p.Name,
		Price:     p.Price,
		Stock:     p.Stock,
		Available: p.Available(),
	})
}

func (h *Handler) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(lrw, r)

		h.log.Info("http_access",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Int("status", lrw.status),
			zap.Int64("latency_ms", time.Since(start).Milliseconds()),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func toCategoryView(c *domcatalog.Category) categoryView {
	view := categoryView{
		CategoryID: c.ID,
		Name:       c.Name,
		Products:   make([]productView, 0, len(c.Products)),
	}
	for _, p := range c.Products {
		view.Products = append(view.Products, productView{
			ProductID: p.ID,
			Name:      p.Name,
			Price:     p.Price,
			Stock:     p.Stock,
			Available: p.Available(),
		})
	}
	return view
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domorder.ErrNotFound),
		errors.Is(err, domcatalog.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, apporder.ErrUnavailable):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, domcatalog.ErrConflict),
		errors.Is(err, domorder.ErrConflict):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, domcatalog.ErrInvalidName),
		errors.Is(err, domcatalog.ErrInvalidPrice),
		errors.Is(err, domcatalog.ErrInvalidStock),
		errors.Is(err, domorder.ErrInvalidBuyer):
		writeError(w, http.StatusBadRequest, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}
