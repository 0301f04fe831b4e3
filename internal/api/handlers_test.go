package api

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"

	"github.com/devsharmatech/easy-rasta-sub001/internal/fulfill"
	"github.com/devsharmatech/easy-rasta-sub001/internal/gateway"
	"github.com/devsharmatech/easy-rasta-sub001/internal/notify"
	"github.com/devsharmatech/easy-rasta-sub001/internal/payment"
	"github.com/devsharmatech/easy-rasta-sub001/internal/reward"
	"github.com/devsharmatech/easy-rasta-sub001/internal/store"
	"github.com/devsharmatech/easy-rasta-sub001/pkg/rastacore"
	"github.com/devsharmatech/easy-rasta-sub001/pkg/testutil"
)

const testAuthSecret = "test_auth_secret"

type testEnv struct {
	client  *testutil.Client
	store   *store.MemoryStore
	sandbox *gateway.Sandbox
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st := store.New()
	st.SeedDefaults()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gw := gateway.NewSandbox("test_gateway_secret")
	sender := notify.NewDispatcher(st, notify.Config{Logger: logger})
	thresholds := []int{0, 100, 250, 500}

	rewards := reward.NewLedger(st, sender, logger, thresholds)
	engine := fulfill.NewEngine(st, rewards, logger)
	coordinator := payment.NewCoordinator(st, gw, engine, logger)

	server := rastacore.NewServer(&rastacore.Flags{Name: "test"})
	NewHandler(st, coordinator, engine, logger, testAuthSecret, thresholds).Routes(server.Router)

	srv := httptest.NewServer(server)
	t.Cleanup(srv.Close)

	return &testEnv{
		client:  testutil.NewClient(t, srv),
		store:   st,
		sandbox: gw,
	}
}

func mintToken(t *testing.T, participantID, role string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  participantID,
		"role": role,
	}).SignedString([]byte(testAuthSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func (e *testEnv) as(t *testing.T, participantID, role string) func(method, path string, body any) *testutil.Response {
	token := mintToken(t, participantID, role)
	return func(method, path string, body any) *testutil.Response {
		return e.client.DoWithHeaders(method, path, body, map[string]string{
			"Authorization": "Bearer " + token,
		})
	}
}

func TestAuthRequired(t *testing.T) {
	e := newTestEnv(t)

	e.client.Get("/cart").AssertStatus(401).AssertBodyContains("missing bearer token")
	e.client.DoWithHeaders("GET", "/cart", nil, map[string]string{
		"Authorization": "Bearer not-a-jwt",
	}).AssertStatus(401).AssertBodyContains("invalid token")

	// Tokens signed with a different secret are rejected.
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "rider_1", "role": "rider",
	}).SignedString([]byte("wrong_secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	e.client.DoWithHeaders("GET", "/cart", nil, map[string]string{
		"Authorization": "Bearer " + forged,
	}).AssertStatus(401)
}

func TestAdminRoleRequired(t *testing.T) {
	e := newTestEnv(t)

	// Health is open.
	e.client.Get("/admin/health").AssertStatus(200)

	rider := e.as(t, "rider_1", "rider")
	rider("GET", "/admin/state", nil).AssertStatus(403).AssertBodyContains("insufficient role")

	admin := e.as(t, "ops_1", "admin")
	admin("GET", "/admin/state", nil).AssertStatus(200)
}

func TestCartEndpoints(t *testing.T) {
	e := newTestEnv(t)
	rider := e.as(t, "rider_1", "rider")

	rider("PUT", "/cart/items", map[string]any{"product_id": "prod_000001", "quantity": 2}).AssertStatus(200)

	data := rider("GET", "/cart", nil).AssertStatus(200).Data()
	cart, _ := data["cart"].([]any)
	if len(cart) != 1 {
		t.Fatalf("expected one cart line, got %v", data["cart"])
	}

	// Quantity zero removes the line.
	rider("PUT", "/cart/items", map[string]any{"product_id": "prod_000001", "quantity": 0}).AssertStatus(200)
	data = rider("GET", "/cart", nil).AssertStatus(200).Data()
	if cart, _ := data["cart"].([]any); len(cart) != 0 {
		t.Errorf("expected empty cart, got %v", data["cart"])
	}

	rider("PUT", "/cart/items", map[string]any{"product_id": "prod_999999", "quantity": 1}).AssertStatus(404)
	rider("PUT", "/cart/items", map[string]any{"product_id": "prod_000003", "quantity": 1}).AssertStatus(404)
	rider("PUT", "/cart/items", map[string]any{"product_id": "prod_000001", "quantity": -1}).AssertStatus(400)
}

func TestCheckoutAndVerifyFlow(t *testing.T) {
	e := newTestEnv(t)
	rider := e.as(t, "rider_1", "rider")

	rider("PUT", "/cart/items", map[string]any{"product_id": "prod_000001", "quantity": 2}).AssertStatus(200)

	data := rider("POST", "/checkout", map[string]any{"address_id": "addr_1"}).AssertStatus(201).Data()
	orderID, _ := data["order_id"].(string)
	gatewayOrderID, _ := data["gateway_order_id"].(string)
	if orderID == "" || gatewayOrderID == "" {
		t.Fatalf("missing identifiers in checkout response: %v", data)
	}
	if amount := data["amount_minor"].(float64); amount != 2*79900 {
		t.Errorf("expected amount %d, got %v", 2*79900, amount)
	}

	sig := e.sandbox.SignReceipt(gatewayOrderID, "pay_1")
	verified := rider("POST", "/checkout/verify", map[string]any{
		"gateway_order_id":   gatewayOrderID,
		"gateway_payment_id": "pay_1",
		"gateway_signature":  sig,
	}).AssertStatus(200).Data()
	if verified["status"] != store.IntentStatusPaid {
		t.Errorf("expected paid intent, got %v", verified["status"])
	}

	// Replay returns success without repeating side effects.
	rider("POST", "/checkout/verify", map[string]any{
		"gateway_order_id":   gatewayOrderID,
		"gateway_payment_id": "pay_1",
		"gateway_signature":  sig,
	}).AssertStatus(200).AssertBodyContains("payment already verified")

	orderData := rider("GET", "/orders/"+orderID, nil).AssertStatus(200).Data()
	order, _ := orderData["order"].(map[string]any)
	if order["payment_status"] != store.PaymentPaid {
		t.Errorf("expected paid order, got %v", order["payment_status"])
	}

	product, _ := e.store.Products.Get("prod_000001")
	if product.Stock != 38 {
		t.Errorf("expected stock 38, got %d", product.Stock)
	}

	cartData := rider("GET", "/cart", nil).AssertStatus(200).Data()
	if cart, _ := cartData["cart"].([]any); len(cart) != 0 {
		t.Errorf("expected cart cleared, got %v", cartData["cart"])
	}

	profile := rider("GET", "/profile", nil).AssertStatus(200).Data()
	if profile["xp"].(float64) != 30 {
		t.Errorf("expected 30 purchase xp, got %v", profile["xp"])
	}
	if profile["level"].(float64) != 1 {
		t.Errorf("expected level 1, got %v", profile["level"])
	}
}

func TestVerifyReceiptValidation(t *testing.T) {
	e := newTestEnv(t)
	rider := e.as(t, "rider_1", "rider")

	rider("POST", "/checkout/verify", map[string]any{
		"gateway_order_id": "order_000001",
	}).AssertStatus(400).AssertBodyContains("required")

	rider("POST", "/checkout/verify", map[string]any{
		"gateway_order_id":   "order_999999",
		"gateway_payment_id": "pay_1",
		"gateway_signature":  "sig",
	}).AssertStatus(404)
}

func TestVerifyWrongEndpointForSubject(t *testing.T) {
	e := newTestEnv(t)
	rider := e.as(t, "rider_1", "rider")

	rider("PUT", "/cart/items", map[string]any{"product_id": "prod_000001", "quantity": 1}).AssertStatus(200)
	data := rider("POST", "/checkout", map[string]any{"address_id": "addr_1"}).AssertStatus(201).Data()
	gatewayOrderID := data["gateway_order_id"].(string)

	// An order receipt submitted to the event endpoint is rejected before
	// any verification runs.
	sig := e.sandbox.SignReceipt(gatewayOrderID, "pay_1")
	rider("POST", "/events/ev_000001/verify", map[string]any{
		"gateway_order_id":   gatewayOrderID,
		"gateway_payment_id": "pay_1",
		"gateway_signature":  sig,
	}).AssertStatus(400).AssertBodyContains("does not belong")
}

func TestBadSignatureThenRepay(t *testing.T) {
	e := newTestEnv(t)
	rider := e.as(t, "rider_1", "rider")

	rider("PUT", "/cart/items", map[string]any{"product_id": "prod_000002", "quantity": 1}).AssertStatus(200)
	data := rider("POST", "/checkout", map[string]any{"address_id": "addr_1"}).AssertStatus(201).Data()
	orderID := data["order_id"].(string)
	gatewayOrderID := data["gateway_order_id"].(string)

	rider("POST", "/checkout/verify", map[string]any{
		"gateway_order_id":   gatewayOrderID,
		"gateway_payment_id": "pay_1",
		"gateway_signature":  "tampered",
	}).AssertStatus(400).AssertBodyContains("signature verification failed")

	// The failed intent is terminal; repay opens a fresh one.
	repay := rider("POST", "/orders/"+orderID+"/repay", nil).AssertStatus(201).Data()
	freshGatewayOrderID := repay["gateway_order_id"].(string)
	if freshGatewayOrderID == gatewayOrderID {
		t.Fatal("expected a new gateway order for the repayment")
	}

	sig := e.sandbox.SignReceipt(freshGatewayOrderID, "pay_2")
	rider("POST", "/checkout/verify", map[string]any{
		"gateway_order_id":   freshGatewayOrderID,
		"gateway_payment_id": "pay_2",
		"gateway_signature":  sig,
	}).AssertStatus(200)

	orderData := rider("GET", "/orders/"+orderID, nil).AssertStatus(200).Data()
	order := orderData["order"].(map[string]any)
	if order["payment_status"] != store.PaymentPaid {
		t.Errorf("expected paid order after repay, got %v", order["payment_status"])
	}
}

func TestFreeEventJoin(t *testing.T) {
	e := newTestEnv(t)
	rider := e.as(t, "rider_1", "rider")

	rider("POST", "/events/ev_000002/join", map[string]any{
		"vehicle_id": "veh_1", "consent_safety": true,
	}).AssertStatus(400).AssertBodyContains("consents are required")

	body := map[string]any{
		"vehicle_id": "veh_1", "consent_safety": true, "consent_liability": true,
	}
	data := rider("POST", "/events/ev_000002/join", body).AssertStatus(201).Data()
	if _, ok := data["registration"]; !ok {
		t.Fatalf("expected registration in response, got %v", data)
	}

	rider("POST", "/events/ev_000002/join", body).AssertStatus(409).AssertBodyContains("already joined")
	rider("POST", "/events/ev_000003/join", body).AssertStatus(404)

	profile := rider("GET", "/profile", nil).AssertStatus(200).Data()
	if profile["xp"].(float64) != 50 {
		t.Errorf("expected 50 join xp, got %v", profile["xp"])
	}
}

func TestPaidEventJoinFlow(t *testing.T) {
	e := newTestEnv(t)
	rider := e.as(t, "rider_1", "rider")
	body := map[string]any{
		"vehicle_id": "veh_1", "consent_safety": true, "consent_liability": true,
	}

	data := rider("POST", "/events/ev_000001/join", body).AssertStatus(201).Data()
	gatewayOrderID := data["gateway_order_id"].(string)
	if amount := data["amount_minor"].(float64); amount != 50000 {
		t.Errorf("expected fee 50000, got %v", amount)
	}

	sig := e.sandbox.SignReceipt(gatewayOrderID, "pay_1")
	rider("POST", "/events/ev_000001/verify", map[string]any{
		"gateway_order_id":   gatewayOrderID,
		"gateway_payment_id": "pay_1",
		"gateway_signature":  sig,
	}).AssertStatus(200)

	if _, ok := e.store.Registrations.Get(store.RegistrationKey("ev_000001", "rider_1")); !ok {
		t.Error("expected registration after verified payment")
	}
	profile := rider("GET", "/profile", nil).AssertStatus(200).Data()
	if profile["xp"].(float64) != 50 {
		t.Errorf("expected 50 join xp, got %v", profile["xp"])
	}

	rider("POST", "/events/ev_000001/join", body).AssertStatus(409)
}

func TestGetOrderAccess(t *testing.T) {
	e := newTestEnv(t)
	rider := e.as(t, "rider_1", "rider")

	rider("PUT", "/cart/items", map[string]any{"product_id": "prod_000001", "quantity": 1}).AssertStatus(200)
	data := rider("POST", "/checkout", map[string]any{"address_id": "addr_1"}).AssertStatus(201).Data()
	orderID := data["order_id"].(string)

	rider("GET", "/orders/"+orderID, nil).AssertStatus(200)
	e.as(t, "rider_2", "rider")("GET", "/orders/"+orderID, nil).AssertStatus(403)
	e.as(t, "ops_1", "admin")("GET", "/orders/"+orderID, nil).AssertStatus(200)
	rider("GET", "/orders/ord_999999", nil).AssertStatus(404)
}

func TestRegisterDevice(t *testing.T) {
	e := newTestEnv(t)
	rider := e.as(t, "rider_1", "rider")

	rider("POST", "/devices", map[string]any{"token": ""}).AssertStatus(400)
	rider("POST", "/devices", map[string]any{"token": "fcm_abc123"}).AssertStatus(201)

	device, ok := e.store.Devices.Get("rider_1")
	if !ok || device.Token != "fcm_abc123" {
		t.Errorf("expected stored device token, got %+v", device)
	}
}

func TestAdminClockAndReset(t *testing.T) {
	e := newTestEnv(t)
	admin := e.as(t, "ops_1", "admin")

	before := e.store.Now()
	admin("POST", "/admin/time/advance", map[string]any{"duration": "25h"}).AssertStatus(200)
	if after := e.store.Now(); after <= before {
		t.Errorf("expected clock to advance past %s, got %s", before, after)
	}
	admin("POST", "/admin/time/advance", map[string]any{"duration": "nope"}).AssertStatus(400)

	// Mutate state, then reset back to seeded defaults.
	e.store.Products.Update("prod_000001", func(p store.Product) store.Product {
		p.Stock = 1
		return p
	})
	admin("POST", "/admin/reset", nil).AssertStatus(200)
	product, _ := e.store.Products.Get("prod_000001")
	if product.Stock != 40 {
		t.Errorf("expected seeded stock after reset, got %d", product.Stock)
	}
}
