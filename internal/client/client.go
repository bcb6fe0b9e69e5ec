// Package client is an HTTP client for the storefront API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/delivery"
	"github.com/xenking/storefront/internal/domain/order"
)

// HeaderIdempotencyKey marks retries of one order submission.
const HeaderIdempotencyKey = "Idempotency-Key"

// APIError is a non-2xx answer of the API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

// StatusCode returns the HTTP status of the failed call.
func (e *APIError) StatusCode() int { return e.Status }

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Its transport is used
// as is.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTracerProvider sets the tracer provider of the default transport.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) { c.tp = tp }
}

// Client calls the storefront API on behalf of one session.
type Client struct {
	base string
	http *http.Client
	tp   trace.TracerProvider

	mu    sync.RWMutex
	token string
}

// New creates a Client for the API at baseURL, e.g. "http://localhost:8080".
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse base url")
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.Errorf("base url %q: scheme and host required", baseURL)
	}

	c := &Client{base: strings.TrimSuffix(u.String(), "/")}
	for _, o := range opts {
		o(c)
	}
	if c.http == nil {
		var topts []otelhttp.Option
		if c.tp != nil {
			topts = append(topts, otelhttp.WithTracerProvider(c.tp))
		}
		c.http = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport, topts...)}
	}
	return c, nil
}

// SetToken sets the bearer token sent with every call. An empty token sends
// none.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) do(ctx context.Context, method, path string, body, out any, header http.Header) error {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
		rd = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	for k, vs := range header {
		req.Header[k] = vs
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.bearer(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var e struct {
			Message string `json:"message"`
		}
		if json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&e) == nil && e.Message != "" {
			apiErr.Message = e.Message
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "decode %s %s", method, path)
	}
	return nil
}

type cartResponse struct {
	Items cart.Lines `json:"items"`
}

// GetCart returns the stored cart lines of ownerID.
func (c *Client) GetCart(ctx context.Context, ownerID string) (cart.Lines, error) {
	var out cartResponse
	if err := c.do(ctx, http.MethodGet, "/api/cart/"+url.PathEscape(ownerID), nil, &out, nil); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// ReplaceCart overwrites the stored cart of ownerID with lines.
func (c *Client) ReplaceCart(ctx context.Context, ownerID string, lines cart.Lines) error {
	if lines == nil {
		lines = cart.Lines{}
	}
	body := struct {
		UserID string     `json:"userId"`
		Items  cart.Lines `json:"items"`
	}{UserID: ownerID, Items: lines}
	return c.do(ctx, http.MethodPost, "/api/cart", body, nil, nil)
}

type orderResponse struct {
	ID            string          `json:"id"`
	UserID        string          `json:"userId"`
	Items         cart.Lines      `json:"items"`
	Total         decimal.Decimal `json:"total"`
	Address       string          `json:"address"`
	PaymentMethod string          `json:"paymentMethod"`
	GCashNumber   string          `json:"gcashNumber"`
	DeliveryType  string          `json:"deliveryType"`
	Status        string          `json:"status"`
	CreatedAt     time.Time       `json:"createdAt"`
}

func (r *orderResponse) order() order.Order {
	return order.Order{
		ID:            r.ID,
		UserID:        r.UserID,
		Lines:         r.Items,
		Total:         r.Total,
		Address:       r.Address,
		PaymentMethod: order.PaymentMethod(r.PaymentMethod),
		GCashNumber:   r.GCashNumber,
		DeliveryType:  delivery.Type(r.DeliveryType),
		Status:        order.Status(r.Status),
		CreatedAt:     r.CreatedAt,
	}
}

// PlaceOrder submits a checkout for the caller. A non-empty idempotencyKey
// is sent so that the server can reject a replay.
func (c *Client) PlaceOrder(ctx context.Context, co order.Checkout, idempotencyKey string) (*order.Order, error) {
	body := struct {
		Items         cart.Lines `json:"items"`
		Address       string     `json:"address"`
		PaymentMethod string     `json:"paymentMethod"`
		GCashNumber   string     `json:"gcashNumber,omitempty"`
		DeliveryType  string     `json:"deliveryType,omitempty"`
	}{
		Items:         co.Lines,
		Address:       co.Address,
		PaymentMethod: string(co.PaymentMethod),
		GCashNumber:   co.GCashNumber,
		DeliveryType:  string(co.DeliveryType),
	}
	var header http.Header
	if idempotencyKey != "" {
		header = http.Header{HeaderIdempotencyKey: {idempotencyKey}}
	}

	var out orderResponse
	if err := c.do(ctx, http.MethodPost, "/api/orders", body, &out, header); err != nil {
		return nil, err
	}
	o := out.order()
	return &o, nil
}

// ListOrders returns the caller's orders, newest first.
func (c *Client) ListOrders(ctx context.Context) ([]order.Order, error) {
	var out []orderResponse
	if err := c.do(ctx, http.MethodGet, "/api/orders", nil, &out, nil); err != nil {
		return nil, err
	}
	orders := make([]order.Order, len(out))
	for i := range out {
		orders[i] = out[i].order()
	}
	return orders, nil
}

type deliveryResponse struct {
	ID        string            `json:"id"`
	OrderID   string            `json:"orderId"`
	UserID    string            `json:"userId"`
	Status    string            `json:"status"`
	Type      string            `json:"type"`
	DriverID  string            `json:"driverId"`
	Vehicle   *delivery.Vehicle `json:"vehicle"`
	Address   string            `json:"address"`
	CreatedAt time.Time         `json:"createdAt"`
}

func (r *deliveryResponse) record() delivery.Record {
	return delivery.Record{
		ID:        r.ID,
		OrderID:   r.OrderID,
		UserID:    r.UserID,
		Status:    delivery.Status(r.Status),
		Type:      delivery.Type(r.Type),
		DriverID:  r.DriverID,
		Vehicle:   r.Vehicle,
		Address:   r.Address,
		CreatedAt: r.CreatedAt,
	}
}

// MyDeliveries returns the caller's deliveries, newest first.
func (c *Client) MyDeliveries(ctx context.Context) ([]delivery.Record, error) {
	var out struct {
		Deliveries []deliveryResponse `json:"deliveries"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/delivery/mine", nil, &out, nil); err != nil {
		return nil, err
	}
	records := make([]delivery.Record, len(out.Deliveries))
	for i := range out.Deliveries {
		records[i] = out.Deliveries[i].record()
	}
	return records, nil
}

// DeliveryForOrder returns the delivery of orderID.
func (c *Client) DeliveryForOrder(ctx context.Context, orderID string) (*delivery.Record, error) {
	var out struct {
		Delivery deliveryResponse `json:"delivery"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/delivery/by-order/"+url.PathEscape(orderID), nil, &out, nil); err != nil {
		return nil, err
	}
	r := out.Delivery.record()
	return &r, nil
}
