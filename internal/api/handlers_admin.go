package api

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/devsharmatech/easy-rasta-sub001/pkg/rastacore"
)

// Health handles GET /admin/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	rastacore.OK(w, http.StatusOK, "ok", map[string]any{
		"time": h.store.Now(),
	})
}

// GetState handles GET /admin/state: the full state snapshot.
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	rastacore.JSON(w, http.StatusOK, h.store.Snapshot())
}

// LoadState handles POST /admin/state: replace the full state.
func (h *Handler) LoadState(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		rastacore.Fail(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if err := h.store.LoadState(data); err != nil {
		rastacore.Fail(w, http.StatusBadRequest, "invalid state payload")
		return
	}
	rastacore.OK(w, http.StatusOK, "state loaded", nil)
}

// Reset handles POST /admin/reset: clear state and reload seeded defaults.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	h.store.Reset()
	rastacore.OK(w, http.StatusOK, "state reset", nil)
}

// AdvanceTime handles POST /admin/time/advance: move the service clock
// forward. Used by tests to cross daily-cap boundaries.
func (h *Handler) AdvanceTime(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Duration string `json:"duration"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rastacore.Fail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	d, err := time.ParseDuration(req.Duration)
	if err != nil || d < 0 {
		rastacore.Fail(w, http.StatusBadRequest, "invalid duration")
		return
	}

	h.store.Clock.Advance(d)
	rastacore.OK(w, http.StatusOK, "clock advanced", map[string]any{
		"time": h.store.Now(),
	})
}
