package httpx

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mkarsono/go-order-fulfillment/internal/payments"
)

type PaymentsHandler struct {
	Service    *payments.Service
	Reconciler *payments.Reconciler
	Logger     *zap.Logger

	WebhookSecret    string
	WebhookTolerance time.Duration
}

func (h *PaymentsHandler) Register(r *chi.Mux) {
	r.Post("/payments", h.createPayment)
	r.Post("/payments/{orderID}/confirm", h.confirmPayment)
	r.Post("/webhooks/payment", h.handleWebhook)
}

func (h *PaymentsHandler) createPayment(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(headerUserID)
	var req struct {
		OrderID string `json:"order_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OrderID == "" || userID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fields"})
		return
	}
	ctx, cancel := requestCtx(r, 15*time.Second)
	defer cancel()

	intent, err := h.Service.CreatePayment(ctx, req.OrderID, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, intent)
}

func (h *PaymentsHandler) confirmPayment(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(headerUserID)
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing user"})
		return
	}
	ctx, cancel := requestCtx(r, 15*time.Second)
	defer cancel()

	intent, err := h.Service.ConfirmPayment(ctx, chi.URLParam(r, "orderID"), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, intent)
}

// handleWebhook is the gateway's inbound door. Rejecting with 400 makes the
// gateway redeliver; any accepted event answers 200 even when it maps to a
// no-op, so duplicates drain quietly.
func (h *PaymentsHandler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}

	sig := r.Header.Get("Gateway-Signature")
	if err := payments.VerifySignature(body, sig, h.WebhookSecret, time.Now(), h.WebhookTolerance); err != nil {
		h.Logger.Warn("webhook signature rejected", zap.Error(err))
		writeError(w, err)
		return
	}
	ev, err := payments.ParseEvent(body)
	if err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := requestCtx(r, 10*time.Second)
	defer cancel()

	if err := h.Reconciler.HandleEvent(ctx, ev); err != nil {
		h.Logger.Error("webhook reconcile", zap.String("event_id", ev.ID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "reconcile failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"received": ev.ID})
}
