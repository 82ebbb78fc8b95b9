// internal/service/inventory/interfaces/http_handler.go
package interfaces

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"

	"github.com/trvannhanh/elaris-marketplace-sub000/internal/service/inventory/application"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/service/inventory/domain"
)

const serviceName = "inventory-service"

// InventoryHandler 封装了库存服务的 HTTP 处理器
type InventoryHandler struct {
	service *application.InventoryApplicationService
}

func NewInventoryHandler(service *application.InventoryApplicationService) *InventoryHandler {
	return &InventoryHandler{service: service}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *InventoryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/check_stock", h.checkStockHandler)
	mux.HandleFunc("/admin/seed_item", h.seedItemHandler)
}

// CheckStockResponse 是同步库存预检查的响应体
type CheckStockResponse struct {
	Available bool `json:"available"`
	Remaining int  `json:"remaining"`
}

// checkStockHandler 是同步快路径：只读，不产生任何预占
func (h *InventoryHandler) checkStockHandler(w http.ResponseWriter, r *http.Request) {
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := otel.Tracer(serviceName).Start(ctx, "inventory-service.CheckStock")
	defer span.End()

	productID := r.URL.Query().Get("productId")
	quantity, _ := strconv.Atoi(r.URL.Query().Get("quantity"))
	if productID == "" || quantity <= 0 {
		http.Error(w, "productId and positive quantity are required", http.StatusBadRequest)
		return
	}
	span.SetAttributes(
		attribute.String("product.id", productID),
		attribute.Int("requested.quantity", quantity),
	)

	available, remaining, err := h.service.CheckStock(ctx, productID, quantity)
	if errors.Is(err, domain.ErrProductNotFound) {
		http.Error(w, "product not found", http.StatusNotFound)
		return
	}
	if err != nil {
		span.RecordError(err)
		http.Error(w, "stock check failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(CheckStockResponse{Available: available, Remaining: remaining})
}

// seedItemHandler 管理入口：创建/重置一个库存商品
func (h *InventoryHandler) seedItemHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	productID := r.URL.Query().Get("productId")
	quantity, _ := strconv.Atoi(r.URL.Query().Get("quantity"))
	threshold, _ := strconv.Atoi(r.URL.Query().Get("lowStockThreshold"))
	if productID == "" || quantity < 0 {
		http.Error(w, "productId and non-negative quantity are required", http.StatusBadRequest)
		return
	}

	if err := h.service.SeedItem(ctx, productID, quantity, threshold); err != nil {
		http.Error(w, "failed to seed item", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}
