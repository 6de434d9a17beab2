package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mkarsono/go-order-fulfillment/internal/orders"
)

// Authentication lives in front of this service; the trusted proxy injects
// the caller identity here.
const headerUserID = "X-User-Id"

type OrdersHandler struct {
	Service *orders.Service
}

type createOrderReq struct {
	AddressID     string               `json:"address_id"`
	Items         []orders.ItemInput   `json:"items"`
	PaymentMethod orders.PaymentMethod `json:"payment_method"`
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/status", h.getOrderStatus)
	r.Post("/orders/{id}/cancel", h.cancelOrder)
	r.Patch("/orders/{id}/status", h.updateStatus)
	r.Patch("/orders/{id}/payment-status", h.updatePaymentStatus)
	r.Get("/users/{id}/orders", h.listUserOrders)
}

func requestCtx(r *http.Request, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), d)
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(headerUserID)
	var req createOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if userID == "" || req.AddressID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fields"})
		return
	}

	// Generous timeout: the gateway round trip happens inside the transaction.
	ctx, cancel := requestCtx(r, 15*time.Second)
	defer cancel()

	order, err := h.Service.CreateOrder(ctx, userID, req.AddressID, req.Items, req.PaymentMethod)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := requestCtx(r, 3*time.Second)
	defer cancel()

	order, err := h.Service.GetOrder(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *OrdersHandler) getOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := requestCtx(r, 3*time.Second)
	defer cancel()

	st, ps, err := h.Service.GetOrderStatus(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":         string(st),
		"payment_status": string(ps),
	})
}

func (h *OrdersHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(headerUserID)
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing user"})
		return
	}
	ctx, cancel := requestCtx(r, 5*time.Second)
	defer cancel()

	order, err := h.Service.CancelOrder(ctx, chi.URLParam(r, "id"), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status orders.Status `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	ctx, cancel := requestCtx(r, 5*time.Second)
	defer cancel()

	order, err := h.Service.UpdateOrderStatus(ctx, chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *OrdersHandler) updatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PaymentStatus orders.PaymentStatus `json:"payment_status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	ctx, cancel := requestCtx(r, 5*time.Second)
	defer cancel()

	order, err := h.Service.UpdatePaymentStatus(ctx, chi.URLParam(r, "id"), req.PaymentStatus)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *OrdersHandler) listUserOrders(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	size, _ := strconv.Atoi(r.URL.Query().Get("page_size"))

	ctx, cancel := requestCtx(r, 5*time.Second)
	defer cancel()

	list, err := h.Service.ListUserOrders(ctx, chi.URLParam(r, "id"), page, size)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": list, "page": max(page, 1)})
}
