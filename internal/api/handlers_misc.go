package api

import (
	"encoding/json"
	"net/http"

	"github.com/devsharmatech/easy-rasta-sub001/internal/reward"
	"github.com/devsharmatech/easy-rasta-sub001/internal/store"
	"github.com/devsharmatech/easy-rasta-sub001/pkg/rastacore"
)

// SetCartItem handles PUT /cart/items: set a product's quantity in the
// caller's cart. Quantity zero removes the line.
func (h *Handler) SetCartItem(w http.ResponseWriter, r *http.Request) {
	id := identity(r)

	var req struct {
		ProductID string `json:"product_id"`
		Quantity  int    `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rastacore.Fail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ProductID == "" {
		rastacore.Fail(w, http.StatusBadRequest, "product_id is required")
		return
	}
	if req.Quantity < 0 {
		rastacore.Fail(w, http.StatusBadRequest, "quantity must not be negative")
		return
	}

	key := store.CartKey(id.ParticipantID, req.ProductID)
	if req.Quantity == 0 {
		h.store.CartItems.Delete(key)
		rastacore.OK(w, http.StatusOK, "cart updated", map[string]any{
			"cart": h.store.CartFor(id.ParticipantID),
		})
		return
	}

	product, ok := h.store.Products.Get(req.ProductID)
	if !ok || !product.IsActive {
		rastacore.Fail(w, http.StatusNotFound, "product not found")
		return
	}

	h.store.CartItems.Set(key, store.CartItem{
		ParticipantID: id.ParticipantID,
		ProductID:     req.ProductID,
		Quantity:      req.Quantity,
		UpdatedAt:     h.store.Now(),
	})

	rastacore.OK(w, http.StatusOK, "cart updated", map[string]any{
		"cart": h.store.CartFor(id.ParticipantID),
	})
}

// GetCart handles GET /cart.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	rastacore.OK(w, http.StatusOK, "cart", map[string]any{
		"cart": h.store.CartFor(id.ParticipantID),
	})
}

// GetProfile handles GET /profile: the caller's XP and derived level.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	id := identity(r)

	xp := 0
	if p, ok := h.store.Profiles.Get(id.ParticipantID); ok {
		xp = p.XP
	}
	rastacore.OK(w, http.StatusOK, "profile", map[string]any{
		"participant_id": id.ParticipantID,
		"xp":             xp,
		"level":          reward.ComputeLevel(h.thresholds, xp),
	})
}

// RegisterDevice handles POST /devices: store the caller's push token.
func (h *Handler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	id := identity(r)

	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rastacore.Fail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Token == "" {
		rastacore.Fail(w, http.StatusBadRequest, "token is required")
		return
	}

	h.store.Devices.Set(id.ParticipantID, store.DeviceToken{
		ParticipantID: id.ParticipantID,
		Token:         req.Token,
		UpdatedAt:     h.store.Now(),
	})
	rastacore.OK(w, http.StatusCreated, "device registered", nil)
}
