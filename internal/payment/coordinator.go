// Package payment owns the create -> verify -> terminal state machine for a
// purchase, whether the purchase is a product cart checkout or a paid event
// registration.
package payment

import (
	"context"
	"log/slog"

	"github.com/devsharmatech/easy-rasta-sub001/internal/apperr"
	"github.com/devsharmatech/easy-rasta-sub001/internal/fulfill"
	"github.com/devsharmatech/easy-rasta-sub001/internal/gateway"
	"github.com/devsharmatech/easy-rasta-sub001/internal/store"
)

// FinalizedResult is the outcome of a verification call.
type FinalizedResult struct {
	Intent store.PaymentIntent
	// AlreadyPaid is true when this verification was a replay of an intent
	// that had already been finalized; no side effects ran.
	AlreadyPaid bool
}

// Coordinator validates subjects, prices them, creates gateway intents, and
// finalizes them exactly once on callback.
type Coordinator struct {
	store   *store.MemoryStore
	gateway gateway.Client
	engine  *fulfill.Engine
	logger  *slog.Logger
}

// NewCoordinator creates a payment order coordinator.
func NewCoordinator(st *store.MemoryStore, gw gateway.Client, engine *fulfill.Engine, logger *slog.Logger) *Coordinator {
	return &Coordinator{store: st, gateway: gw, engine: engine, logger: logger}
}

// Checkout snapshots the buyer's cart into an order and opens a payment
// intent for its total. Prices and names are copied so later product edits
// never change this order.
func (c *Coordinator) Checkout(ctx context.Context, buyerID, addressID string) (store.Order, store.PaymentIntent, error) {
	if addressID == "" {
		return store.Order{}, store.PaymentIntent{}, apperr.New(apperr.Validation, "address_id is required")
	}

	cart := c.store.CartFor(buyerID)
	if len(cart) == 0 {
		return store.Order{}, store.PaymentIntent{}, apperr.New(apperr.Validation, "cart is empty")
	}

	var total int64
	lines := make([]store.OrderItem, 0, len(cart))
	for _, item := range cart {
		product, ok := c.store.Products.Get(item.ProductID)
		if !ok || !product.IsActive {
			return store.Order{}, store.PaymentIntent{}, apperr.Newf(apperr.Validation,
				"product %s is not available", item.ProductID)
		}
		if product.Stock < item.Quantity {
			return store.Order{}, store.PaymentIntent{}, apperr.Newf(apperr.Validation,
				"insufficient stock for product %s", item.ProductID)
		}
		lineTotal := product.PriceMinor * int64(item.Quantity)
		lines = append(lines, store.OrderItem{
			ProductID:      product.ID,
			ProductName:    product.Name,
			UnitPriceMinor: product.PriceMinor,
			Quantity:       item.Quantity,
			LineTotalMinor: lineTotal,
		})
		total += lineTotal
	}

	now := c.store.Now()
	order := store.Order{
		ID:                c.store.Orders.NextID(),
		BuyerID:           buyerID,
		AddressID:         addressID,
		TotalMinor:        total,
		FulfillmentStatus: store.FulfillmentPending,
		PaymentStatus:     store.PaymentUnpaid,
		CreatedAt:         now,
	}
	c.store.Orders.Set(order.ID, order)
	for i := range lines {
		lines[i].OrderID = order.ID
		c.store.OrderItems.Set(store.OrderItemKey(order.ID, lines[i].ProductID), lines[i])
	}

	intent, err := c.createIntent(ctx, store.SubjectOrder, order.ID, buyerID, total, nil)
	if err != nil {
		// The order snapshot stays (unpaid, pending); repay can reprice a
		// fresh intent for it once the gateway recovers.
		return order, store.PaymentIntent{}, err
	}
	return order, intent, nil
}

// Repay issues a fresh intent for an unpaid order, re-validating stock.
// Prior non-paid intents for the order are superseded (marked failed).
func (c *Coordinator) Repay(ctx context.Context, orderID, buyerID string) (store.PaymentIntent, error) {
	order, ok := c.store.Orders.Get(orderID)
	if !ok {
		return store.PaymentIntent{}, apperr.Newf(apperr.NotFound, "order %s not found", orderID)
	}
	if order.BuyerID != buyerID {
		return store.PaymentIntent{}, apperr.New(apperr.Authorization, "not your order")
	}
	if order.PaymentStatus == store.PaymentPaid {
		return store.PaymentIntent{}, apperr.New(apperr.Conflict, "order already paid")
	}

	for _, item := range c.store.ItemsForOrder(orderID) {
		product, ok := c.store.Products.Get(item.ProductID)
		if !ok || !product.IsActive || product.Stock < item.Quantity {
			return store.PaymentIntent{}, apperr.Newf(apperr.Validation,
				"product %s no longer available", item.ProductID)
		}
	}

	// Supersede live created intents first, or the new one is rejected as a
	// duplicate. paid never appears here: the order is not paid. Should the
	// gateway fail below, the abandoned intents stay failed and the next
	// repay attempt starts clean.
	stale := c.store.Intents.FilterIDs(func(id string, pi store.PaymentIntent) bool {
		return pi.SubjectType == store.SubjectOrder && pi.SubjectID == orderID &&
			pi.Status == store.IntentStatusCreated
	})
	superseded := make([]string, 0, len(stale))
	for _, key := range stale {
		_, applied := c.store.Intents.UpdateIf(key,
			func(pi store.PaymentIntent) bool { return pi.Status == store.IntentStatusCreated },
			func(pi store.PaymentIntent) store.PaymentIntent {
				pi.Status = store.IntentStatusFailed
				pi.UpdatedAt = c.store.Now()
				return pi
			},
		)
		if applied {
			superseded = append(superseded, key)
		}
	}

	intent, err := c.createIntent(ctx, store.SubjectOrder, orderID, buyerID, order.TotalMinor, nil)
	if err != nil {
		return store.PaymentIntent{}, err
	}
	for _, key := range superseded {
		c.store.Intents.Update(key, func(pi store.PaymentIntent) store.PaymentIntent {
			pi.SupersededBy = intent.ID
			return pi
		})
	}
	return intent, nil
}

// JoinEvent opens a payment intent for a paid event registration. The
// duplicate-join check short-circuits before any money moves.
func (c *Coordinator) JoinEvent(ctx context.Context, eventID, participantID string, details store.EventJoinDetails) (store.PaymentIntent, error) {
	event, ok := c.store.Events.Get(eventID)
	if !ok || !event.IsPublished {
		return store.PaymentIntent{}, apperr.Newf(apperr.NotFound, "event %s not found", eventID)
	}
	if event.FeeMinor == 0 {
		return store.PaymentIntent{}, apperr.New(apperr.Validation, "event is free to join")
	}
	if event.FeeMinor < 0 {
		return store.PaymentIntent{}, apperr.Newf(apperr.Validation, "event %s has an invalid fee", eventID)
	}
	if _, ok := c.store.Registrations.Get(store.RegistrationKey(eventID, participantID)); ok {
		return store.PaymentIntent{}, apperr.New(apperr.Conflict, "already joined this event")
	}

	subjectID := store.RegistrationKey(eventID, participantID)
	return c.createIntent(ctx, store.SubjectEventRegistration, subjectID, participantID, event.FeeMinor, &details)
}

// createIntent creates the remote gateway order first and persists the local
// row only on success, so a gateway failure leaves no orphaned created row.
func (c *Coordinator) createIntent(ctx context.Context, subjectType, subjectID, participantID string, amountMinor int64, join *store.EventJoinDetails) (store.PaymentIntent, error) {
	if amountMinor <= 0 {
		return store.PaymentIntent{}, apperr.New(apperr.Validation, "amount must be positive")
	}
	if _, ok := c.store.LiveIntentForSubject(subjectType, subjectID); ok {
		return store.PaymentIntent{}, apperr.New(apperr.Conflict, "a payment is already in progress for this subject")
	}

	gatewayOrderID, err := c.gateway.CreateIntent(ctx, amountMinor, subjectID, map[string]string{
		"subject_type": subjectType,
		"subject_id":   subjectID,
	})
	if err != nil {
		c.logger.Error("gateway intent creation failed",
			"subject_type", subjectType, "subject_id", subjectID, "err", err)
		return store.PaymentIntent{}, apperr.Wrap(apperr.Internal, "payment gateway unavailable", err)
	}

	intent := store.PaymentIntent{
		ID:             c.store.Intents.NextID(),
		SubjectType:    subjectType,
		SubjectID:      subjectID,
		ParticipantID:  participantID,
		AmountMinor:    amountMinor,
		GatewayOrderID: gatewayOrderID,
		Status:         store.IntentStatusCreated,
		Join:           join,
		CreatedAt:      c.store.Now(),
	}
	// gateway_order_id is unique; the store is keyed by it.
	if !c.store.Intents.SetIfAbsent(gatewayOrderID, intent) {
		return store.PaymentIntent{}, apperr.Newf(apperr.Internal,
			"gateway order id %s already recorded", gatewayOrderID)
	}

	c.logger.Info("payment intent created",
		"intent_id", intent.ID,
		"gateway_order_id", gatewayOrderID,
		"subject_type", subjectType,
		"subject_id", subjectID,
		"amount_minor", amountMinor,
	)
	return intent, nil
}

// VerifyAndFinalize validates a gateway receipt and transitions the intent
// exactly once. Replays of a paid intent return success without re-running
// side effects. A signature mismatch is terminal: the intent moves to
// failed and can never later become paid.
func (c *Coordinator) VerifyAndFinalize(gatewayOrderID, gatewayPaymentID, signature string) (FinalizedResult, error) {
	intent, ok := c.store.Intents.Get(gatewayOrderID)
	if !ok {
		return FinalizedResult{}, apperr.Newf(apperr.NotFound,
			"no payment intent for gateway order %s", gatewayOrderID)
	}

	// Primary idempotency guard: duplicate client submissions and retried
	// callbacks short-circuit here.
	if intent.Status == store.IntentStatusPaid {
		return FinalizedResult{Intent: intent, AlreadyPaid: true}, nil
	}

	if !c.gateway.VerifySignature(gatewayOrderID, gatewayPaymentID, signature) {
		c.store.Intents.UpdateIf(gatewayOrderID,
			func(pi store.PaymentIntent) bool { return pi.Status == store.IntentStatusCreated },
			func(pi store.PaymentIntent) store.PaymentIntent {
				pi.Status = store.IntentStatusFailed
				pi.GatewayPaymentID = gatewayPaymentID
				pi.GatewaySignature = signature
				pi.UpdatedAt = c.store.Now()
				return pi
			},
		)
		c.logger.Warn("payment signature mismatch",
			"gateway_order_id", gatewayOrderID,
			"gateway_payment_id", gatewayPaymentID,
		)
		return FinalizedResult{}, apperr.New(apperr.PaymentVerification, "payment signature verification failed")
	}

	// Conditional transition: of two concurrent verifications only one wins;
	// the loser re-reads and follows the terminal state it finds.
	_, applied := c.store.Intents.UpdateIf(gatewayOrderID,
		func(pi store.PaymentIntent) bool { return pi.Status == store.IntentStatusCreated },
		func(pi store.PaymentIntent) store.PaymentIntent {
			pi.Status = store.IntentStatusPaid
			pi.GatewayPaymentID = gatewayPaymentID
			pi.GatewaySignature = signature
			pi.UpdatedAt = c.store.Now()
			return pi
		},
	)
	current, _ := c.store.Intents.Get(gatewayOrderID)

	if !applied {
		if current.Status == store.IntentStatusPaid {
			return FinalizedResult{Intent: current, AlreadyPaid: true}, nil
		}
		// Terminally failed (earlier mismatch or superseded by repay).
		return FinalizedResult{}, apperr.New(apperr.Conflict,
			"payment intent already failed; initiate repayment for a new attempt")
	}

	c.logger.Info("payment verified",
		"intent_id", current.ID,
		"gateway_order_id", gatewayOrderID,
		"gateway_payment_id", gatewayPaymentID,
	)

	// Money has moved: the intent stays paid even if fulfillment fails;
	// that failure is a distinct, reconcilable error.
	if err := c.engine.Fulfill(current); err != nil {
		c.logger.Error("fulfillment failed after payment",
			"intent_id", current.ID, "err", err)
		return FinalizedResult{Intent: current}, err
	}

	return FinalizedResult{Intent: current}, nil
}
