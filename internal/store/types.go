// Package store defines the rasta-core domain types and in-memory state.
package store

// Payment intent status. Once paid or failed the status never changes;
// a new intent must be created to retry.
const (
	IntentStatusCreated = "created"
	IntentStatusPaid    = "paid"
	IntentStatusFailed  = "failed"
)

// Subject types a payment intent can cover.
const (
	SubjectOrder             = "order"
	SubjectEventRegistration = "event_registration"
)

// Order fulfillment status.
const (
	FulfillmentPending   = "pending"
	FulfillmentConfirmed = "confirmed"
	FulfillmentCancelled = "cancelled"
)

// Order payment status.
const (
	PaymentUnpaid = "unpaid"
	PaymentPaid   = "paid"
	PaymentFailed = "failed"
)

// Product is a sellable catalog item. Price is in currency minor units.
type Product struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PriceMinor int64  `json:"price_minor"`
	Stock      int    `json:"stock"`
	IsActive   bool   `json:"is_active"`
	UpdatedAt  string `json:"updated_at,omitempty"`
}

// CartItem is an ephemeral per-buyer product/quantity mapping.
type CartItem struct {
	ParticipantID string `json:"participant_id"`
	ProductID     string `json:"product_id"`
	Quantity      int    `json:"quantity"`
	UpdatedAt     string `json:"updated_at,omitempty"`
}

// Order is a priced snapshot of a cart at checkout time.
type Order struct {
	ID                string `json:"id"`
	BuyerID           string `json:"buyer_id"`
	AddressID         string `json:"address_id"`
	TotalMinor        int64  `json:"total_minor"`
	FulfillmentStatus string `json:"fulfillment_status"`
	PaymentStatus     string `json:"payment_status"`
	CreatedAt         string `json:"created_at"`
	UpdatedAt         string `json:"updated_at,omitempty"`
}

// OrderItem carries the price and name copied at checkout so later product
// edits don't retroactively change historical orders.
type OrderItem struct {
	OrderID        string `json:"order_id"`
	ProductID      string `json:"product_id"`
	ProductName    string `json:"product_name"`
	UnitPriceMinor int64  `json:"unit_price_minor"`
	Quantity       int    `json:"quantity"`
	LineTotalMinor int64  `json:"line_total_minor"`
}

// Event is a social ride event participants can join.
type Event struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	FeeMinor    int64  `json:"fee_minor"`
	IsPublished bool   `json:"is_published"`
	StartsAt    string `json:"starts_at,omitempty"`
}

// EventJoinDetails are the consents and vehicle reference gathered at
// registration time, carried on the intent until payment is verified.
type EventJoinDetails struct {
	VehicleID        string `json:"vehicle_id,omitempty"`
	ConsentSafety    bool   `json:"consent_safety"`
	ConsentLiability bool   `json:"consent_liability"`
}

// EventRegistration records a participant joining an event.
// At most one registration exists per (event, participant) pair.
type EventRegistration struct {
	ID               string `json:"id"`
	EventID          string `json:"event_id"`
	ParticipantID    string `json:"participant_id"`
	VehicleID        string `json:"vehicle_id,omitempty"`
	ConsentSafety    bool   `json:"consent_safety"`
	ConsentLiability bool   `json:"consent_liability"`
	CreatedAt        string `json:"created_at"`
}

// PaymentIntent is one attempt to collect money for one subject, mirroring
// the gateway's own order/payment pairing. Keyed by GatewayOrderID.
type PaymentIntent struct {
	ID               string            `json:"id"`
	SubjectType      string            `json:"subject_type"`
	SubjectID        string            `json:"subject_id"`
	ParticipantID    string            `json:"participant_id"`
	AmountMinor      int64             `json:"amount_minor"`
	GatewayOrderID   string            `json:"gateway_order_id"`
	GatewayPaymentID string            `json:"gateway_payment_id,omitempty"`
	GatewaySignature string            `json:"gateway_signature,omitempty"`
	Status           string            `json:"status"`
	SupersededBy     string            `json:"superseded_by,omitempty"`
	Join             *EventJoinDetails `json:"join,omitempty"`
	CreatedAt        string            `json:"created_at"`
	UpdatedAt        string            `json:"updated_at,omitempty"`
}

// XPRule configures the reward for a named action. Keyed by ActionKey.
type XPRule struct {
	ActionKey string `json:"action_key"`
	XPValue   int    `json:"xp_value"`
	// MaxPerDay caps how many times the action earns XP per participant
	// per UTC day. Nil means unlimited.
	MaxPerDay *int `json:"max_per_day,omitempty"`
	IsActive  bool `json:"is_active"`
}

// XPTransaction is an append-only ledger row. Never updated or deleted;
// the sum of a participant's transactions is the audit trail behind their
// cumulative XP.
type XPTransaction struct {
	ID            string `json:"id"`
	ParticipantID string `json:"participant_id"`
	ActionKey     string `json:"action_key"`
	XPEarned      int    `json:"xp_earned"`
	ReferenceID   string `json:"reference_id,omitempty"`
	CreatedAt     string `json:"created_at"`
}

// ParticipantProfile caches cumulative XP and the derived level. Both are
// written only by the reward ledger.
type ParticipantProfile struct {
	ParticipantID string `json:"participant_id"`
	XP            int    `json:"xp"`
	Level         int    `json:"level"`
	UpdatedAt     string `json:"updated_at,omitempty"`
}

// DeviceToken is a participant's registered push token. Keyed by participant.
type DeviceToken struct {
	ParticipantID string `json:"participant_id"`
	Token         string `json:"token"`
	UpdatedAt     string `json:"updated_at,omitempty"`
}
