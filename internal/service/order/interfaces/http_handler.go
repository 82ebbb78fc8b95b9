// internal/service/order/interfaces/http_handler.go
package interfaces

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"

	"github.com/trvannhanh/elaris-marketplace-sub000/internal/service/order/application"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/service/order/domain"
)

const serviceName = "order-service"

// OrderHandler 封装了订单服务的 HTTP 处理器
type OrderHandler struct {
	service *application.OrderApplicationService
}

func NewOrderHandler(service *application.OrderApplicationService) *OrderHandler {
	return &OrderHandler{service: service}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *OrderHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/orders", h.createOrderHandler)
	mux.HandleFunc("/orders/", h.getOrderHandler)
}

// CreateOrderResponse 下单成功的响应体
type CreateOrderResponse struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
}

func (h *OrderHandler) createOrderHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := otel.Tracer(serviceName).Start(ctx, "order-service.CreateOrder")
	defer span.End()

	var req application.CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	span.SetAttributes(attribute.String("user.id", req.UserID), attribute.Int("order.lines", len(req.Items)))

	orderID, err := h.service.CreateOrder(ctx, req)
	if errors.Is(err, domain.ErrInvalidOrder) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	// 预检查拒绝带着可读的原因返回给调用方
	if errors.Is(err, domain.ErrPrecheckRejected) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		span.RecordError(err)
		http.Error(w, "order creation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(CreateOrderResponse{OrderID: orderID, Status: string(domain.OrderCreated)})
}

// OrderStatusResponse 状态查询的响应体
type OrderStatusResponse struct {
	OrderID      string  `json:"orderId"`
	UserID       string  `json:"userId"`
	Status       string  `json:"status"`
	TotalAmount  float64 `json:"totalAmount"`
	CancelReason string  `json:"cancelReason,omitempty"`
}

func (h *OrderHandler) getOrderHandler(w http.ResponseWriter, r *http.Request) {
	orderID := strings.TrimPrefix(r.URL.Path, "/orders/")
	if orderID == "" {
		http.Error(w, "order id is required", http.StatusBadRequest)
		return
	}

	saga, err := h.service.GetOrder(r.Context(), orderID)
	if errors.Is(err, domain.ErrOrderNotFound) {
		http.Error(w, "order not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "order lookup failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(OrderStatusResponse{
		OrderID:      saga.OrderID,
		UserID:       saga.UserID,
		Status:       string(saga.Status),
		TotalAmount:  saga.TotalAmount,
		CancelReason: saga.CancelReason,
	})
}
