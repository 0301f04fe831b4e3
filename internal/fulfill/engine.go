// Package fulfill performs the side effects gated on "payment verified":
// stock decrement and cart clearing for commerce orders, participant
// insertion for event registrations. Each runs exactly once per paid intent.
package fulfill

import (
	"log/slog"
	"strings"

	"github.com/devsharmatech/easy-rasta-sub001/internal/apperr"
	"github.com/devsharmatech/easy-rasta-sub001/internal/reward"
	"github.com/devsharmatech/easy-rasta-sub001/internal/store"
)

// Engine executes fulfillment for paid intents and the free-event fast path.
type Engine struct {
	store   *store.MemoryStore
	rewards *reward.Ledger
	logger  *slog.Logger
}

// NewEngine creates a fulfillment engine.
func NewEngine(st *store.MemoryStore, rewards *reward.Ledger, logger *slog.Logger) *Engine {
	return &Engine{store: st, rewards: rewards, logger: logger}
}

// Fulfill dispatches on the intent's subject type. Called only after the
// intent has transitioned to paid.
func (e *Engine) Fulfill(intent store.PaymentIntent) error {
	switch intent.SubjectType {
	case store.SubjectOrder:
		return e.fulfillOrder(intent)
	case store.SubjectEventRegistration:
		return e.fulfillEventRegistration(intent)
	default:
		return apperr.Newf(apperr.Internal, "unknown subject type %q", intent.SubjectType)
	}
}

// fulfillOrder decrements stock, confirms the order, clears the buyer's
// cart, and awards purchase XP. Stock moves only through guarded
// conditional decrements; a shortage discovered here happened after payment
// was captured and is surfaced for manual reconciliation, never hidden.
func (e *Engine) fulfillOrder(intent store.PaymentIntent) error {
	order, ok := e.store.Orders.Get(intent.SubjectID)
	if !ok {
		return apperr.Newf(apperr.PostPaymentFulfillment,
			"order %s missing after payment", intent.SubjectID)
	}
	if order.PaymentStatus == store.PaymentPaid {
		// Already fulfilled by an earlier verification of the same intent.
		return nil
	}

	items := e.store.ItemsForOrder(order.ID)

	// Quantities were checked at checkout but may have moved since.
	for _, item := range items {
		product, ok := e.store.Products.Get(item.ProductID)
		if !ok || !product.IsActive || product.Stock < item.Quantity {
			e.logger.Error("post-payment stock conflict",
				"order_id", order.ID,
				"product_id", item.ProductID,
				"wanted", item.Quantity,
			)
			return apperr.Newf(apperr.PostPaymentFulfillment,
				"product %s unavailable after payment; order %s needs reconciliation",
				item.ProductID, order.ID)
		}
	}

	for i, item := range items {
		qty := item.Quantity
		_, applied := e.store.Products.UpdateIf(item.ProductID,
			func(p store.Product) bool { return p.IsActive && p.Stock >= qty },
			func(p store.Product) store.Product {
				p.Stock -= qty
				p.UpdatedAt = e.store.Now()
				return p
			},
		)
		if !applied {
			// A concurrent paid order won the remaining stock between the
			// validation pass and this decrement.
			e.logger.Error("post-payment stock conflict during decrement",
				"order_id", order.ID,
				"product_id", item.ProductID,
				"decremented_items", i,
			)
			return apperr.Newf(apperr.PostPaymentFulfillment,
				"stock for product %s vanished after payment; order %s needs reconciliation",
				item.ProductID, order.ID)
		}
	}

	e.store.Orders.Update(order.ID, func(o store.Order) store.Order {
		o.FulfillmentStatus = store.FulfillmentConfirmed
		o.PaymentStatus = store.PaymentPaid
		o.UpdatedAt = e.store.Now()
		return o
	})

	// The buyer's cart is cleared in full once the order is confirmed paid.
	e.store.ClearCart(order.BuyerID)

	e.rewards.Award(order.BuyerID, "purchase", order.ID, nil)

	e.logger.Info("order fulfilled", "order_id", order.ID, "buyer_id", order.BuyerID)
	return nil
}

// fulfillEventRegistration inserts the registration carried on the intent.
// Losing the uniqueness race to a concurrent free-path join is not an
// error: the participant is registered either way.
func (e *Engine) fulfillEventRegistration(intent store.PaymentIntent) error {
	details := store.EventJoinDetails{}
	if intent.Join != nil {
		details = *intent.Join
	}

	// The subject key is "{event_id}|{participant_id}".
	eventID, _, _ := strings.Cut(intent.SubjectID, "|")

	reg, inserted := e.insertRegistration(eventID, intent.ParticipantID, details)
	if !inserted {
		e.logger.Warn("registration already present at fulfillment",
			"event_id", eventID,
			"participant_id", intent.ParticipantID,
		)
		return nil
	}

	e.rewards.Award(intent.ParticipantID, "join_event", reg.EventID, nil)

	e.logger.Info("event registration fulfilled",
		"event_id", reg.EventID, "participant_id", reg.ParticipantID)
	return nil
}

// JoinFree is the zero-fee fast path: no payment intent, immediate insert
// with the same duplicate guard.
func (e *Engine) JoinFree(eventID, participantID string, details store.EventJoinDetails) (store.EventRegistration, error) {
	event, ok := e.store.Events.Get(eventID)
	if !ok || !event.IsPublished {
		return store.EventRegistration{}, apperr.Newf(apperr.NotFound, "event %s not found", eventID)
	}
	if event.FeeMinor > 0 {
		return store.EventRegistration{}, apperr.New(apperr.Validation, "event requires payment")
	}

	reg, inserted := e.insertRegistration(eventID, participantID, details)
	if !inserted {
		return store.EventRegistration{}, apperr.New(apperr.Conflict, "already joined this event")
	}

	e.rewards.Award(participantID, "join_event", eventID, nil)

	e.logger.Info("event joined (free)",
		"event_id", eventID, "participant_id", participantID)
	return reg, nil
}

// insertRegistration inserts a registration keyed on (event, participant).
// Exactly one of any set of concurrent inserts for the same pair wins.
func (e *Engine) insertRegistration(eventID, participantID string, details store.EventJoinDetails) (store.EventRegistration, bool) {
	reg := store.EventRegistration{
		ID:               e.store.Registrations.NextID(),
		EventID:          eventID,
		ParticipantID:    participantID,
		VehicleID:        details.VehicleID,
		ConsentSafety:    details.ConsentSafety,
		ConsentLiability: details.ConsentLiability,
		CreatedAt:        e.store.Now(),
	}
	key := store.RegistrationKey(eventID, participantID)
	if !e.store.Registrations.SetIfAbsent(key, reg) {
		existing, _ := e.store.Registrations.Get(key)
		return existing, false
	}
	return reg, true
}
