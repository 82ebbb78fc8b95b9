// internal/service/payment/interfaces/http_handler.go
package interfaces

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"

	"github.com/trvannhanh/elaris-marketplace-sub000/internal/service/payment/application"
)

const serviceName = "payment-service"

// PaymentHandler 封装了支付服务的 HTTP 处理器
type PaymentHandler struct {
	service *application.PaymentApplicationService
}

func NewPaymentHandler(service *application.PaymentApplicationService) *PaymentHandler {
	return &PaymentHandler{service: service}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *PaymentHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/pre_authorize", h.preAuthorizeHandler)
}

// preAuthorizeHandler 是同步快路径：咨询性资金探测，不落任何支付记录
func (h *PaymentHandler) preAuthorizeHandler(w http.ResponseWriter, r *http.Request) {
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := otel.Tracer(serviceName).Start(ctx, "payment-service.PreAuthorize")
	defer span.End()

	orderID := r.URL.Query().Get("orderId")
	userID := r.URL.Query().Get("userId")
	amount, _ := strconv.ParseFloat(r.URL.Query().Get("amount"), 64)
	if orderID == "" || amount <= 0 {
		http.Error(w, "orderId and positive amount are required", http.StatusBadRequest)
		return
	}
	span.SetAttributes(
		attribute.String("order.id", orderID),
		attribute.Float64("payment.amount", amount),
	)

	result, err := h.service.PreAuthorize(ctx, orderID, userID, amount)
	if err != nil {
		span.RecordError(err)
		http.Error(w, "pre-authorization failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}
