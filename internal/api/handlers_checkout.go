package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/devsharmatech/easy-rasta-sub001/internal/store"
	"github.com/devsharmatech/easy-rasta-sub001/pkg/rastacore"
)

// Checkout handles POST /checkout: snapshot the cart into an order and open
// a payment intent for its total.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	id := identity(r)

	var req struct {
		AddressID string `json:"address_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rastacore.Fail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	order, intent, err := h.coordinator.Checkout(r.Context(), id.ParticipantID, req.AddressID)
	if err != nil {
		h.writeErr(w, err)
		return
	}

	rastacore.OK(w, http.StatusCreated, "checkout created", map[string]any{
		"order_id":         order.ID,
		"intent_id":        intent.ID,
		"gateway_order_id": intent.GatewayOrderID,
		"amount_minor":     intent.AmountMinor,
	})
}

// verifyReceipt is the shared body of both verification endpoints.
type verifyReceipt struct {
	GatewayOrderID   string `json:"gateway_order_id"`
	GatewayPaymentID string `json:"gateway_payment_id"`
	GatewaySignature string `json:"gateway_signature"`
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request, wantSubjectType string) {
	var req verifyReceipt
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rastacore.Fail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.GatewayOrderID == "" || req.GatewayPaymentID == "" || req.GatewaySignature == "" {
		rastacore.Fail(w, http.StatusBadRequest, "gateway_order_id, gateway_payment_id and gateway_signature are required")
		return
	}

	if intent, ok := h.store.Intents.Get(req.GatewayOrderID); ok && intent.SubjectType != wantSubjectType {
		rastacore.Fail(w, http.StatusBadRequest, "receipt does not belong to this endpoint")
		return
	}

	result, err := h.coordinator.VerifyAndFinalize(req.GatewayOrderID, req.GatewayPaymentID, req.GatewaySignature)
	if err != nil {
		h.writeErr(w, err)
		return
	}

	message := "payment verified"
	if result.AlreadyPaid {
		message = "payment already verified"
	}
	rastacore.OK(w, http.StatusOK, message, map[string]any{
		"intent_id":    result.Intent.ID,
		"subject_type": result.Intent.SubjectType,
		"subject_id":   result.Intent.SubjectID,
		"status":       result.Intent.Status,
	})
}

// VerifyCheckout handles POST /checkout/verify.
func (h *Handler) VerifyCheckout(w http.ResponseWriter, r *http.Request) {
	h.verify(w, r, store.SubjectOrder)
}

// Repay handles POST /orders/{id}/repay: a fresh intent for an unpaid order.
func (h *Handler) Repay(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	orderID := chi.URLParam(r, "id")

	intent, err := h.coordinator.Repay(r.Context(), orderID, id.ParticipantID)
	if err != nil {
		h.writeErr(w, err)
		return
	}

	rastacore.OK(w, http.StatusCreated, "repayment intent created", map[string]any{
		"order_id":         orderID,
		"intent_id":        intent.ID,
		"gateway_order_id": intent.GatewayOrderID,
		"amount_minor":     intent.AmountMinor,
	})
}

// GetOrder handles GET /orders/{id}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	orderID := chi.URLParam(r, "id")

	order, ok := h.store.Orders.Get(orderID)
	if !ok {
		rastacore.Fail(w, http.StatusNotFound, "order not found")
		return
	}
	if order.BuyerID != id.ParticipantID && id.Role != "admin" {
		rastacore.Fail(w, http.StatusForbidden, "not your order")
		return
	}

	rastacore.OK(w, http.StatusOK, "order", map[string]any{
		"order": order,
		"items": h.store.ItemsForOrder(orderID),
	})
}
