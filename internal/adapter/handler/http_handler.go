package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/rl1809/storefront-orders/internal/core/domain"
	"github.com/rl1809/storefront-orders/internal/core/service"
	"github.com/rl1809/storefront-orders/internal/metrics"
)

const HeaderIdempotencyKey = "Idempotency-Key"

type HTTPHandler struct {
	orderService    *service.OrderService
	shippingService *service.ShippingService
	metrics         *metrics.Metrics
	logger          zerolog.Logger
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func NewHTTPHandler(orderService *service.OrderService, shippingService *service.ShippingService, m *metrics.Metrics, logger zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{
		orderService:    orderService,
		shippingService: shippingService,
		metrics:         m,
		logger:          logger,
	}
}

func (h *HTTPHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Identity)
	r.Use(Logger(h.logger, h.metrics))

	r.Get("/health", h.HealthCheck)
	r.Method(http.MethodGet, "/metrics", h.metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(RequireUser)
		r.Post("/orders", h.CreateOrder)
		r.Get("/orders/mine", h.ListMyOrders)
		r.Get("/orders/{id}", h.GetOrder)
		r.Post("/orders/{id}/cancel", h.CancelOrder)
		r.Post("/shipping/quote", h.QuoteShipping)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(RequireAdmin)
		r.Patch("/orders/{id}", h.UpdateOrderStatus)
		r.Delete("/orders/{id}", h.DeleteOrder)
	})

	return r
}

func (h *HTTPHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	if key := r.Header.Get(HeaderIdempotencyKey); key != "" {
		req.IdempotencyKey = key
	}

	order, err := h.orderService.CreateOrder(r.Context(), UserIDFrom(r.Context()), req.toInput())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, newOrderResponse(order))
}

func (h *HTTPHandler) ListMyOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orderService.GetAllUserOrders(r.Context(), UserIDFrom(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newListOrdersResponse(orders))
}

func (h *HTTPHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orderService.GetOrderByID(r.Context(), UserIDFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newOrderResponse(order))
}

func (h *HTTPHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orderService.CancelOrder(r.Context(), UserIDFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newOrderResponse(order))
}

func (h *HTTPHandler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	order, err := h.orderService.UpdateOrderStatus(r.Context(), chi.URLParam(r, "id"), service.UpdateStatusInput{
		Status:        domain.OrderStatus(req.Status),
		PaymentStatus: domain.PaymentStatus(req.PaymentStatus),
		ForceRestock:  req.ForceRestock,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newOrderResponse(order))
}

func (h *HTTPHandler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.orderService.DeleteOrder(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) QuoteShipping(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	quote, err := h.shippingService.CalculateShippingFee(r.Context(), req.DistrictID, req.WardCode, req.parcelItems())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newQuoteResponse(quote))
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := httpStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("request_id", RequestIDFrom(r.Context())).Msg("request failed")
		message = "internal error"
	}
	writeJSON(w, status, ErrorResponse{Error: message})
}

func httpStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrDuplicateRequest):
		return http.StatusConflict
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
