package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/delivery"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/storage/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// --- Test fixtures ---

type fakeIdempotency struct {
	mu       sync.Mutex
	claimed  map[string]bool
	released []string
}

func (f *fakeIdempotency) Key(op, user, key string) string { return op + ":" + user + ":" + key }

func (f *fakeIdempotency) Claim(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimed[key] {
		return false, nil
	}
	f.claimed[key] = true
	return true, nil
}

func (f *fakeIdempotency) Release(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.claimed, key)
	f.released = append(f.released, key)
	return nil
}

type env struct {
	t      *testing.T
	store  *memory.Store
	tokens *auth.Tokens
	idem   *fakeIdempotency
	router *gin.Engine
}

func newEnv(t *testing.T) *env {
	t.Helper()

	store := memory.New()
	catalog := memory.NewCatalog(
		product.Product{ID: "p1", Name: "Widget", Price: decimal.NewFromInt(100), Category: "tools"},
		product.Product{ID: "p2", Name: "Gadget", Price: decimal.RequireFromString("12.5"), Category: "toys"},
	)
	tokens := auth.NewTokens([]byte("test-secret"))
	idem := &fakeIdempotency{claimed: map[string]bool{}}

	h, err := NewHandler(
		cart.NewService(store),
		order.NewService(store, store, catalog, nil),
		delivery.NewService(store),
		tokens,
		Options{Idempotency: idem},
	)
	require.NoError(t, err)

	return &env{t: t, store: store, tokens: tokens, idem: idem, router: h.Router("storefront-test")}
}

func (e *env) token(userID, role string) string {
	e.t.Helper()
	tok, err := e.tokens.Issue(auth.Identity{UserID: userID, Role: role}, time.Hour)
	require.NoError(e.t, err)
	return tok
}

func (e *env) do(method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func validOrder() map[string]any {
	return map[string]any{
		"items": []map[string]any{
			{"productId": "p1", "name": "Widget", "price": 100, "quantity": 2},
		},
		"address":       "123 Main St",
		"paymentMethod": "COD",
	}
}

// --- Tests ---

func TestAuthentication(t *testing.T) {
	e := newEnv(t)

	w := e.do(http.MethodGet, "/api/orders", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, ErrorResponse{Code: 401, Message: "unauthorized"}, decode[ErrorResponse](t, w))

	w = e.do(http.MethodGet, "/api/orders", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(http.MethodGet, "/api/orders", e.token("u1", ""), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = e.do(http.MethodGet, "/api/nowhere", e.token("u1", ""), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCart_ReplaceAndGet(t *testing.T) {
	e := newEnv(t)
	tok := e.token("u1", "")

	w := e.do(http.MethodGet, "/api/cart/u1", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[Cart](t, w).Items)

	body := map[string]any{"items": []map[string]any{
		{"productId": "p1", "name": "Widget", "price": 100, "quantity": 1},
		{"productId": "p1", "name": "Widget", "price": 100, "quantity": 2},
		{"productId": "p2", "name": "Gadget", "price": 12.5, "quantity": 0},
	}}
	w = e.do(http.MethodPost, "/api/cart", tok, body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decode[Cart](t, w)
	assert.Equal(t, "u1", got.UserID)
	require.Len(t, got.Items, 1, "duplicates merged, zero lines dropped")
	assert.Equal(t, 3, got.Items[0].Quantity)
	assert.InDelta(t, 300, got.Total, 0.001)

	// Same replacement again yields the same document.
	w = e.do(http.MethodPost, "/api/cart", tok, body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, got.Items, decode[Cart](t, w).Items)

	w = e.do(http.MethodGet, "/api/cart/u1", tok, nil)
	assert.Equal(t, got.Items, decode[Cart](t, w).Items)
}

func TestCart_OwnerChecks(t *testing.T) {
	e := newEnv(t)

	w := e.do(http.MethodGet, "/api/cart/u2", e.token("u1", ""), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(http.MethodPost, "/api/cart", e.token("u1", ""), map[string]any{"userId": "u2", "items": []any{}})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(http.MethodGet, "/api/cart/u2", e.token("boss", "admin"), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = e.do(http.MethodPost, "/api/cart", e.token("u1", ""), map[string]any{"items": []map[string]any{{"price": 1, "quantity": 1}}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateOrder(t *testing.T) {
	e := newEnv(t)
	tok := e.token("u1", "")

	// Put something in the stored cart so we can see it removed.
	require.Equal(t, http.StatusOK, e.do(http.MethodPost, "/api/cart", tok, map[string]any{
		"items": []map[string]any{{"productId": "p1", "price": 100, "quantity": 2}},
	}).Code)

	w := e.do(http.MethodPost, "/api/orders", tok, validOrder())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	o := decode[Order](t, w)
	assert.Equal(t, "u1", o.UserID)
	assert.InDelta(t, 200, o.Total, 0.001)
	assert.Equal(t, "Pending", o.Status)
	assert.Equal(t, "in-house", o.DeliveryType)

	c, err := e.store.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, c.Lines, "stored cart deleted after order")

	w = e.do(http.MethodGet, "/api/delivery/by-order/"+o.ID, tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	d := decode[map[string]Delivery](t, w)["delivery"]
	assert.Equal(t, "pending", d.Status)
	assert.Equal(t, o.ID, d.OrderID)
}

func TestCreateOrder_IgnoresClientUserID(t *testing.T) {
	e := newEnv(t)
	body := validOrder()
	body["userId"] = "someone-else"

	w := e.do(http.MethodPost, "/api/orders", e.token("u1", ""), body)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "u1", decode[Order](t, w).UserID)
}

func TestCreateOrder_Validation(t *testing.T) {
	e := newEnv(t)
	tok := e.token("u1", "")

	tests := []struct {
		name   string
		mutate func(map[string]any)
		status int
	}{
		{"missing address", func(b map[string]any) { b["address"] = " " }, http.StatusBadRequest},
		{"bad gcash", func(b map[string]any) {
			b["paymentMethod"] = "GCash"
			b["gcashNumber"] = "12345"
		}, http.StatusBadRequest},
		{"empty cart", func(b map[string]any) { b["items"] = []any{} }, http.StatusBadRequest},
		{"unknown product", func(b map[string]any) {
			b["items"] = []map[string]any{{"productId": "zzz", "price": 1, "quantity": 1}}
		}, http.StatusUnprocessableEntity},
		{"unknown delivery type", func(b map[string]any) { b["deliveryType"] = "drone" }, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := validOrder()
			tt.mutate(body)
			w := e.do(http.MethodPost, "/api/orders", tok, body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}

	orders, err := e.store.ListByUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestCreateOrder_IdempotencyKey(t *testing.T) {
	e := newEnv(t)
	tok := e.token("u1", "")

	w := e.do(http.MethodPost, "/api/orders", tok, validOrder(), HeaderIdempotencyKey, "k1")
	require.Equal(t, http.StatusCreated, w.Code)

	w = e.do(http.MethodPost, "/api/orders", tok, validOrder(), HeaderIdempotencyKey, "k1")
	assert.Equal(t, http.StatusConflict, w.Code)

	// A failed submission frees its key for the retry.
	bad := validOrder()
	bad["address"] = ""
	w = e.do(http.MethodPost, "/api/orders", tok, bad, HeaderIdempotencyKey, "k2")
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, e.idem.released, "order:u1:k2")
	w = e.do(http.MethodPost, "/api/orders", tok, validOrder(), HeaderIdempotencyKey, "k2")
	assert.Equal(t, http.StatusCreated, w.Code)

	// Without a key nothing is deduplicated.
	assert.Equal(t, http.StatusCreated, e.do(http.MethodPost, "/api/orders", tok, validOrder()).Code)
	assert.Equal(t, http.StatusCreated, e.do(http.MethodPost, "/api/orders", tok, validOrder()).Code)
}

func TestListOrders(t *testing.T) {
	e := newEnv(t)
	tok := e.token("u1", "")

	first := decode[Order](t, e.do(http.MethodPost, "/api/orders", tok, validOrder()))
	second := decode[Order](t, e.do(http.MethodPost, "/api/orders", tok, validOrder()))

	w := e.do(http.MethodGet, "/api/orders", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	orders := decode[[]Order](t, w)
	require.Len(t, orders, 2)
	assert.Equal(t, second.ID, orders[0].ID)
	assert.Equal(t, first.ID, orders[1].ID)
	require.Len(t, orders[0].Products, 1)
	assert.Equal(t, "tools", orders[0].Products[0].Category)

	assert.Equal(t, http.StatusForbidden, e.do(http.MethodGet, "/api/orders/u1", e.token("u2", ""), nil).Code)

	w = e.do(http.MethodGet, "/api/orders/u1", e.token("boss", "Admin"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]Order](t, w), 2)
}

func TestDeliveries(t *testing.T) {
	e := newEnv(t)
	alice, bob := e.token("alice", ""), e.token("bob", "")
	driver, admin := e.token("drv-1", "driver"), e.token("boss", "admin")

	aliceOrder := decode[Order](t, e.do(http.MethodPost, "/api/orders", alice, validOrder()))
	pickup := validOrder()
	pickup["deliveryType"] = "pickup"
	pickup["address"] = ""
	bobOrder := decode[Order](t, e.do(http.MethodPost, "/api/orders", bob, pickup))
	require.NotEmpty(t, bobOrder.ID)

	// Customers only see their own.
	w := e.do(http.MethodGet, "/api/delivery", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]Delivery](t, w)
	require.Len(t, list, 1)
	assert.Equal(t, aliceOrder.ID, list[0].OrderID)

	w = e.do(http.MethodGet, "/api/delivery/mine", bob, nil)
	require.Equal(t, http.StatusOK, w.Code)
	mine := decode[map[string][]Delivery](t, w)["deliveries"]
	require.Len(t, mine, 1)
	assert.Equal(t, "pickup", mine[0].Type)

	// Someone else's order looks missing.
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/api/delivery/by-order/"+aliceOrder.ID, bob, nil).Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/api/delivery/by-order/nope", alice, nil).Code)

	// Staff see everything and can filter.
	w = e.do(http.MethodGet, "/api/delivery?type=pickup", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]Delivery](t, w), 1)
	w = e.do(http.MethodGet, "/api/delivery", admin, nil)
	assert.Len(t, decode[[]Delivery](t, w), 2)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodGet, "/api/delivery?from=yesterday", admin, nil).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodGet, "/api/delivery?status=lost", admin, nil).Code)

	// Status transitions.
	d := decode[map[string]Delivery](t, e.do(http.MethodGet, "/api/delivery/by-order/"+aliceOrder.ID, alice, nil))["delivery"]
	path := "/api/delivery/" + d.ID + "/status"

	assert.Equal(t, http.StatusForbidden, e.do(http.MethodPatch, path, alice, map[string]string{"status": "completed"}).Code)

	w = e.do(http.MethodPatch, path, driver, map[string]string{"status": "in-transit"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	moved := decode[Delivery](t, w)
	assert.Equal(t, "in-transit", moved.Status)
	assert.Equal(t, "drv-1", moved.DriverID)

	orders := decode[[]Order](t, e.do(http.MethodGet, "/api/orders", alice, nil))
	assert.Equal(t, "InTransit", orders[0].Status)

	// Another driver can neither move nor take it.
	other := e.token("drv-2", "driver")
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodPatch, path, other, map[string]string{"status": "completed"}).Code)
	assert.Equal(t, http.StatusForbidden,
		e.do(http.MethodPatch, path, driver, map[string]string{"status": "in-transit", "driverId": "drv-2"}).Code)
	got := decode[map[string]Delivery](t, e.do(http.MethodGet, "/api/delivery/by-order/"+aliceOrder.ID, alice, nil))["delivery"]
	assert.Equal(t, "in-transit", got.Status)
	assert.Equal(t, "drv-1", got.DriverID)

	w = e.do(http.MethodGet, "/api/delivery?driverId=drv-1", admin, nil)
	assert.Len(t, decode[[]Delivery](t, w), 1)

	require.Equal(t, http.StatusOK, e.do(http.MethodPatch, path, admin, map[string]string{"status": "completed"}).Code)
	assert.Equal(t, http.StatusConflict, e.do(http.MethodPatch, path, admin, map[string]string{"status": "pending"}).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPatch, path, admin, map[string]string{"status": "teleported"}).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPatch, path, admin, map[string]string{}).Code)
	assert.Equal(t, http.StatusNotFound,
		e.do(http.MethodPatch, "/api/delivery/missing/status", admin, map[string]string{"status": "assigned"}).Code)
}
