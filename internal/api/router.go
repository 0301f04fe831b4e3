// Package api exposes the role-scoped HTTP surface over the payment,
// fulfillment, and reward core.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/devsharmatech/easy-rasta-sub001/internal/apperr"
	"github.com/devsharmatech/easy-rasta-sub001/internal/fulfill"
	"github.com/devsharmatech/easy-rasta-sub001/internal/payment"
	"github.com/devsharmatech/easy-rasta-sub001/internal/store"
	"github.com/devsharmatech/easy-rasta-sub001/pkg/rastacore"
)

type contextKey string

const identityCtxKey contextKey = "identity"

// Identity is the verified caller identity carried on every request.
// Token issuance happens upstream; this service only verifies.
type Identity struct {
	ParticipantID string
	Role          string
}

// Handler holds all API handler state.
type Handler struct {
	store       *store.MemoryStore
	coordinator *payment.Coordinator
	engine      *fulfill.Engine
	logger      *slog.Logger
	authSecret  string
	thresholds  []int
}

// NewHandler creates a new API handler.
func NewHandler(st *store.MemoryStore, coordinator *payment.Coordinator, engine *fulfill.Engine, logger *slog.Logger, authSecret string, thresholds []int) *Handler {
	return &Handler{
		store:       st,
		coordinator: coordinator,
		engine:      engine,
		logger:      logger,
		authSecret:  authSecret,
		thresholds:  thresholds,
	}
}

// Routes mounts the API endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authMiddleware)

		r.Post("/checkout", h.Checkout)
		r.Post("/checkout/verify", h.VerifyCheckout)
		r.Post("/orders/{id}/repay", h.Repay)
		r.Get("/orders/{id}", h.GetOrder)

		r.Put("/cart/items", h.SetCartItem)
		r.Get("/cart", h.GetCart)

		r.Post("/events/{id}/join", h.JoinEvent)
		r.Post("/events/{id}/verify", h.VerifyEventJoin)

		r.Get("/profile", h.GetProfile)
		r.Post("/devices", h.RegisterDevice)
	})

	r.Get("/admin/health", h.Health)
	r.Group(func(r chi.Router) {
		r.Use(h.authMiddleware)
		r.Use(h.requireRole("admin"))

		r.Get("/admin/state", h.GetState)
		r.Post("/admin/state", h.LoadState)
		r.Post("/admin/reset", h.Reset)
		r.Post("/admin/time/advance", h.AdvanceTime)
	})
}

// authMiddleware verifies the Bearer JWT and attaches the caller identity.
func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authz := r.Header.Get("Authorization")
		if !strings.HasPrefix(authz, "Bearer ") {
			rastacore.Fail(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		claims := jwt.MapClaims{}
		token, err := jwt.ParseWithClaims(strings.TrimPrefix(authz, "Bearer "), claims,
			func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
				}
				return []byte(h.authSecret), nil
			})
		if err != nil || !token.Valid {
			rastacore.Fail(w, http.StatusUnauthorized, "invalid token")
			return
		}

		sub, _ := claims["sub"].(string)
		role, _ := claims["role"].(string)
		if sub == "" {
			rastacore.Fail(w, http.StatusUnauthorized, "token missing subject")
			return
		}

		ctx := context.WithValue(r.Context(), identityCtxKey, Identity{ParticipantID: sub, Role: role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireRole rejects callers whose token carries a different role.
func (h *Handler) requireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if identity(r).Role != role {
				rastacore.Fail(w, http.StatusForbidden, "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// identity extracts the verified caller identity from context.
func identity(r *http.Request) Identity {
	return r.Context().Value(identityCtxKey).(Identity)
}

// writeErr maps a core error onto the response envelope.
func (h *Handler) writeErr(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.Internal {
		h.logger.Error("request failed", "err", err)
	}
	rastacore.Fail(w, apperr.HTTPStatus(kind), apperr.PublicMessage(err))
}
