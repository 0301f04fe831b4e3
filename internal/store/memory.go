package store

import (
	"encoding/json"
	"fmt"
	"time"

	pkgstore "github.com/devsharmatech/easy-rasta-sub001/pkg/store"
)

// MemoryStore holds all rasta-core state.
type MemoryStore struct {
	Products       *pkgstore.Store[Product]
	CartItems      *pkgstore.Store[CartItem]
	Orders         *pkgstore.Store[Order]
	OrderItems     *pkgstore.Store[OrderItem]
	Events         *pkgstore.Store[Event]
	Registrations  *pkgstore.Store[EventRegistration]
	Intents        *pkgstore.Store[PaymentIntent]
	XPRules        *pkgstore.Store[XPRule]
	XPTransactions *pkgstore.Store[XPTransaction]
	Profiles       *pkgstore.Store[ParticipantProfile]
	Devices        *pkgstore.Store[DeviceToken]

	Clock *pkgstore.Clock
}

// New creates a MemoryStore with empty state.
func New() *MemoryStore {
	return &MemoryStore{
		Products:       pkgstore.New[Product]("prod"),
		CartItems:      pkgstore.New[CartItem]("cart"),
		Orders:         pkgstore.New[Order]("ord"),
		OrderItems:     pkgstore.New[OrderItem]("oi"),
		Events:         pkgstore.New[Event]("ev"),
		Registrations:  pkgstore.New[EventRegistration]("reg"),
		Intents:        pkgstore.New[PaymentIntent]("pi"),
		XPRules:        pkgstore.New[XPRule]("rule"),
		XPTransactions: pkgstore.New[XPTransaction]("xp"),
		Profiles:       pkgstore.New[ParticipantProfile]("prof"),
		Devices:        pkgstore.New[DeviceToken]("dev"),
		Clock:          pkgstore.NewClock(),
	}
}

// Now returns the current store time formatted as RFC3339.
func (s *MemoryStore) Now() string {
	return s.Clock.Now().UTC().Format(time.RFC3339)
}

// CartKey builds the composite key for a buyer's cart line.
func CartKey(participantID, productID string) string {
	return participantID + "|" + productID
}

// OrderItemKey builds the composite key for an order line.
func OrderItemKey(orderID, productID string) string {
	return orderID + "|" + productID
}

// RegistrationKey builds the composite key enforcing at most one
// registration per (event, participant) pair.
func RegistrationKey(eventID, participantID string) string {
	return eventID + "|" + participantID
}

// CartFor returns all cart items belonging to a buyer.
func (s *MemoryStore) CartFor(participantID string) []CartItem {
	return s.CartItems.Filter(func(id string, c CartItem) bool {
		return c.ParticipantID == participantID
	})
}

// ClearCart removes every cart item belonging to a buyer.
func (s *MemoryStore) ClearCart(participantID string) {
	ids := s.CartItems.FilterIDs(func(id string, c CartItem) bool {
		return c.ParticipantID == participantID
	})
	for _, id := range ids {
		s.CartItems.Delete(id)
	}
}

// ItemsForOrder returns the line items of an order.
func (s *MemoryStore) ItemsForOrder(orderID string) []OrderItem {
	return s.OrderItems.Filter(func(id string, it OrderItem) bool {
		return it.OrderID == orderID
	})
}

// LiveIntentForSubject returns a non-failed intent covering the subject,
// if one exists. Created and paid intents both count as live.
func (s *MemoryStore) LiveIntentForSubject(subjectType, subjectID string) (PaymentIntent, bool) {
	live := s.Intents.Filter(func(id string, pi PaymentIntent) bool {
		return pi.SubjectType == subjectType && pi.SubjectID == subjectID &&
			pi.Status != IntentStatusFailed
	})
	if len(live) == 0 {
		return PaymentIntent{}, false
	}
	return live[0], true
}

// EnsureProfile returns the participant's profile, creating a zero profile
// if none exists.
func (s *MemoryStore) EnsureProfile(participantID string) ParticipantProfile {
	if p, ok := s.Profiles.Get(participantID); ok {
		return p
	}
	p := ParticipantProfile{ParticipantID: participantID, UpdatedAt: s.Now()}
	// Of two concurrent creators exactly one wins; re-read either way.
	s.Profiles.SetIfAbsent(participantID, p)
	p, _ = s.Profiles.Get(participantID)
	return p
}

func intPtr(v int) *int { return &v }

// SeedDefaults loads a usable baseline: a small product catalog, one paid
// and one free published event, and the standard XP rules.
func (s *MemoryStore) SeedDefaults() {
	now := s.Now()

	s.Products.Set("prod_000001", Product{
		ID: "prod_000001", Name: "Club Tee", PriceMinor: 79900, Stock: 40, IsActive: true, UpdatedAt: now,
	})
	s.Products.Set("prod_000002", Product{
		ID: "prod_000002", Name: "Riding Gloves", PriceMinor: 149900, Stock: 15, IsActive: true, UpdatedAt: now,
	})
	s.Products.Set("prod_000003", Product{
		ID: "prod_000003", Name: "Retired Decal", PriceMinor: 9900, Stock: 0, IsActive: false, UpdatedAt: now,
	})

	s.Events.Set("ev_000001", Event{
		ID: "ev_000001", Title: "Coastal Breakfast Ride", FeeMinor: 50000, IsPublished: true,
		StartsAt: s.Clock.Now().UTC().Add(7 * 24 * time.Hour).Format(time.RFC3339),
	})
	s.Events.Set("ev_000002", Event{
		ID: "ev_000002", Title: "Sunday City Loop", FeeMinor: 0, IsPublished: true,
		StartsAt: s.Clock.Now().UTC().Add(3 * 24 * time.Hour).Format(time.RFC3339),
	})
	s.Events.Set("ev_000003", Event{
		ID: "ev_000003", Title: "Draft: Hill Climb", FeeMinor: 25000, IsPublished: false,
	})

	s.XPRules.Set("join_event", XPRule{ActionKey: "join_event", XPValue: 50, MaxPerDay: intPtr(3), IsActive: true})
	s.XPRules.Set("complete_ride", XPRule{ActionKey: "complete_ride", XPValue: 100, MaxPerDay: intPtr(2), IsActive: true})
	s.XPRules.Set("write_review", XPRule{ActionKey: "write_review", XPValue: 20, MaxPerDay: intPtr(3), IsActive: true})
	s.XPRules.Set("purchase", XPRule{ActionKey: "purchase", XPValue: 30, IsActive: true})
}

// stateSnapshot is the JSON-serializable state for the ops endpoints.
type stateSnapshot struct {
	Products       map[string]Product            `json:"products"`
	CartItems      map[string]CartItem           `json:"cart_items"`
	Orders         map[string]Order              `json:"orders"`
	OrderItems     map[string]OrderItem          `json:"order_items"`
	Events         map[string]Event              `json:"events"`
	Registrations  map[string]EventRegistration  `json:"registrations"`
	Intents        map[string]PaymentIntent      `json:"payment_intents"`
	XPRules        map[string]XPRule             `json:"xp_rules"`
	XPTransactions map[string]XPTransaction      `json:"xp_transactions"`
	Profiles       map[string]ParticipantProfile `json:"profiles"`
	Devices        map[string]DeviceToken        `json:"devices"`
}

// Snapshot returns the full state as a JSON-serializable value.
func (s *MemoryStore) Snapshot() any {
	return stateSnapshot{
		Products:       s.Products.Snapshot(),
		CartItems:      s.CartItems.Snapshot(),
		Orders:         s.Orders.Snapshot(),
		OrderItems:     s.OrderItems.Snapshot(),
		Events:         s.Events.Snapshot(),
		Registrations:  s.Registrations.Snapshot(),
		Intents:        s.Intents.Snapshot(),
		XPRules:        s.XPRules.Snapshot(),
		XPTransactions: s.XPTransactions.Snapshot(),
		Profiles:       s.Profiles.Snapshot(),
		Devices:        s.Devices.Snapshot(),
	}
}

// LoadState replaces the full state from a JSON body.
func (s *MemoryStore) LoadState(data []byte) error {
	var snap stateSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("parsing state: %w", err)
	}

	s.Products.LoadSnapshot(snap.Products)
	s.CartItems.LoadSnapshot(snap.CartItems)
	s.Orders.LoadSnapshot(snap.Orders)
	s.OrderItems.LoadSnapshot(snap.OrderItems)
	s.Events.LoadSnapshot(snap.Events)
	s.Registrations.LoadSnapshot(snap.Registrations)
	s.Intents.LoadSnapshot(snap.Intents)
	s.XPRules.LoadSnapshot(snap.XPRules)
	s.XPTransactions.LoadSnapshot(snap.XPTransactions)
	s.Profiles.LoadSnapshot(snap.Profiles)
	s.Devices.LoadSnapshot(snap.Devices)
	return nil
}

// Reset clears all state and reloads the seeded defaults.
func (s *MemoryStore) Reset() {
	s.Products.Reset()
	s.CartItems.Reset()
	s.Orders.Reset()
	s.OrderItems.Reset()
	s.Events.Reset()
	s.Registrations.Reset()
	s.Intents.Reset()
	s.XPRules.Reset()
	s.XPTransactions.Reset()
	s.Profiles.Reset()
	s.Devices.Reset()
	s.Clock.Reset()
	s.SeedDefaults()
}
