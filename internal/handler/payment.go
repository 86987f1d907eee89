package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"

	"github.com/vasiliy-maslov/ecommerce-checkout/internal/httpx"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/payment"
)

const maxWebhookBody = 1 << 16

// PaymentHandler handles settlement requests and provider webhooks.
type PaymentHandler struct {
	svc payment.Service
}

func NewPaymentHandler(svc payment.Service) *PaymentHandler {
	return &PaymentHandler{svc: svc}
}

type settleRequest struct {
	Method string `json:"method,omitempty"`
}

// CreateSettlement starts payment for a pending order.
func (h *PaymentHandler) CreateSettlement(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	orderID, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteError(w, errInvalidID)
		return
	}

	var req settleRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpx.WriteError(w, errInvalidBody)
			return
		}
	}

	result, err := h.svc.Settle(r.Context(), orderID, actor.ID, req.Method)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	httpx.WriteData(w, http.StatusOK, result, "")
}

// Webhook receives asynchronous payment events from the provider.
func (h *PaymentHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		httpx.WriteError(w, errInvalidBody)
		return
	}

	ack, err := h.svc.HandleWebhook(r.Context(), r.Header.Get("Stripe-Signature"), payload)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	httpx.WriteData(w, http.StatusOK, ack, "")
}
