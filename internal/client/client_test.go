package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
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
	"github.com/xenking/storefront/internal/handler"
	"github.com/xenking/storefront/internal/storage/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type server struct {
	url    string
	tokens *auth.Tokens
}

func newServer(t *testing.T) *server {
	t.Helper()

	store := memory.New()
	catalog := memory.NewCatalog(
		product.Product{ID: "p1", Name: "Widget", Price: decimal.NewFromInt(100), Category: "tools"},
	)
	tokens := auth.NewTokens([]byte("client-secret"))
	h, err := handler.NewHandler(
		cart.NewService(store),
		order.NewService(store, store, catalog, nil),
		delivery.NewService(store),
		tokens,
		handler.Options{},
	)
	require.NoError(t, err)

	srv := httptest.NewServer(h.Router("storefront-test"))
	t.Cleanup(srv.Close)
	return &server{url: srv.URL, tokens: tokens}
}

func (s *server) client(t *testing.T, userID string) *Client {
	t.Helper()
	c, err := New(s.url, WithHTTPClient(http.DefaultClient))
	require.NoError(t, err)
	if userID != "" {
		tok, err := s.tokens.Issue(auth.Identity{UserID: userID}, time.Hour)
		require.NoError(t, err)
		c.SetToken(tok)
	}
	return c
}

func widgets(qty int) cart.Lines {
	return cart.Lines{{ProductID: "p1", Name: "Widget", UnitPrice: decimal.NewFromInt(100), Quantity: qty}}
}

func TestNew_RejectsRelativeURL(t *testing.T) {
	_, err := New("/api")
	require.Error(t, err)

	c, err := New("http://localhost:8080/")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", c.base)
}

func TestClient_Cart(t *testing.T) {
	c := newServer(t).client(t, "u1")
	ctx := context.Background()

	lines, err := c.GetCart(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, lines)

	require.NoError(t, c.ReplaceCart(ctx, "u1", widgets(3)))

	lines, err = c.GetCart(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 3, lines[0].Quantity)
	assert.True(t, decimal.NewFromInt(100).Equal(lines[0].UnitPrice))

	require.NoError(t, c.ReplaceCart(ctx, "u1", nil))
	lines, err = c.GetCart(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestClient_SendsPricesAsNumbers(t *testing.T) {
	var body struct {
		Items []map[string]any `json:"items"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	c, err := New(srv.URL)
	require.NoError(t, err)
	lines := cart.Lines{{ProductID: "p1", Name: "Widget", UnitPrice: decimal.RequireFromString("12.50"), Quantity: 1}}
	require.NoError(t, c.ReplaceCart(context.Background(), "u1", lines))

	require.Len(t, body.Items, 1)
	assert.Equal(t, 12.5, body.Items[0]["price"])
}

func TestClient_Unauthenticated(t *testing.T) {
	c := newServer(t).client(t, "")

	_, err := c.GetCart(context.Background(), "u1")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode())
	assert.Equal(t, "unauthorized", apiErr.Message)
}

func TestClient_OrdersAndDeliveries(t *testing.T) {
	c := newServer(t).client(t, "u1")
	ctx := context.Background()

	o, err := c.PlaceOrder(ctx, order.Checkout{
		Lines:         widgets(2),
		Address:       "123 Main St",
		PaymentMethod: order.PaymentGCash,
		GCashNumber:   "09171234567",
	}, "key-1")
	require.NoError(t, err)
	assert.NotEmpty(t, o.ID)
	assert.Equal(t, "u1", o.UserID)
	assert.True(t, decimal.NewFromInt(200).Equal(o.Total))
	assert.Equal(t, order.StatusPending, o.Status)
	assert.False(t, o.CreatedAt.IsZero())

	orders, err := c.ListOrders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, o.ID, orders[0].ID)

	mine, err := c.MyDeliveries(ctx)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, o.ID, mine[0].OrderID)
	assert.Equal(t, delivery.StatusPending, mine[0].Status)

	d, err := c.DeliveryForOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, mine[0].ID, d.ID)

	_, err = c.DeliveryForOrder(ctx, "missing")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
}

func TestClient_ValidationMessage(t *testing.T) {
	c := newServer(t).client(t, "u1")

	_, err := c.PlaceOrder(context.Background(), order.Checkout{
		Lines:         widgets(1),
		PaymentMethod: order.PaymentCOD,
	}, "")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, order.ErrMissingAddress.Error(), apiErr.Message)
}
