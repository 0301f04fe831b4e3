package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/devsharmatech/easy-rasta-sub001/internal/store"
	"github.com/devsharmatech/easy-rasta-sub001/pkg/rastacore"
)

// JoinEvent handles POST /events/{id}/join. Free events register
// immediately; paid events open a payment intent instead.
func (h *Handler) JoinEvent(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	eventID := chi.URLParam(r, "id")

	var req struct {
		VehicleID        string `json:"vehicle_id"`
		ConsentSafety    bool   `json:"consent_safety"`
		ConsentLiability bool   `json:"consent_liability"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rastacore.Fail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !req.ConsentSafety || !req.ConsentLiability {
		rastacore.Fail(w, http.StatusBadRequest, "safety and liability consents are required")
		return
	}

	event, ok := h.store.Events.Get(eventID)
	if !ok || !event.IsPublished {
		rastacore.Fail(w, http.StatusNotFound, "event not found")
		return
	}

	details := store.EventJoinDetails{
		VehicleID:        req.VehicleID,
		ConsentSafety:    req.ConsentSafety,
		ConsentLiability: req.ConsentLiability,
	}

	if event.FeeMinor == 0 {
		reg, err := h.engine.JoinFree(eventID, id.ParticipantID, details)
		if err != nil {
			h.writeErr(w, err)
			return
		}
		rastacore.OK(w, http.StatusCreated, "joined event", map[string]any{
			"registration": reg,
		})
		return
	}

	intent, err := h.coordinator.JoinEvent(r.Context(), eventID, id.ParticipantID, details)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	rastacore.OK(w, http.StatusCreated, "payment required to join", map[string]any{
		"intent_id":        intent.ID,
		"gateway_order_id": intent.GatewayOrderID,
		"amount_minor":     intent.AmountMinor,
	})
}

// VerifyEventJoin handles POST /events/{id}/verify.
func (h *Handler) VerifyEventJoin(w http.ResponseWriter, r *http.Request) {
	h.verify(w, r, store.SubjectEventRegistration)
}
