package kafka

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/delivery"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/storage/memory"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	block  bool
	closed bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func testOrder(id string) *order.Order {
	return &order.Order{
		ID:            id,
		UserID:        "u1",
		Lines:         cart.Lines{{ProductID: "p1", Name: "Widget", UnitPrice: decimal.NewFromInt(100), Quantity: 2}},
		Total:         decimal.NewFromInt(200),
		PaymentMethod: order.PaymentCOD,
		DeliveryType:  delivery.TypeInHouse,
		CreatedAt:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestPublisher_OrderCreated(t *testing.T) {
	w := &fakeWriter{}
	p := newPublisher(w, zap.NewNop(), time.Second)

	require.NoError(t, p.OrderCreated(context.Background(), testOrder("o1")))
	require.NoError(t, p.Close())
	assert.True(t, w.closed)
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "o1", string(msg.Key))
	assert.Contains(t, msg.Headers, kafka.Header{Key: "type", Value: []byte(EventOrderCreated)})

	var ev OrderCreatedEvent
	require.NoError(t, json.Unmarshal(msg.Value, &ev))
	assert.Equal(t, EventOrderCreated, ev.Type)
	assert.Equal(t, "u1", ev.UserID)
	assert.Equal(t, "in-house", ev.DeliveryType)
	assert.Equal(t, json.Number("200"), ev.Total)
	require.Len(t, ev.Items, 1)
	assert.Equal(t, 2, ev.Items[0].Quantity)
}

func TestPublisher_CloseDeliversQueued(t *testing.T) {
	w := &fakeWriter{}
	p := newPublisher(w, zap.NewNop(), time.Second)

	for _, id := range []string{"o1", "o2", "o3"} {
		require.NoError(t, p.OrderCreated(context.Background(), testOrder(id)))
	}
	require.NoError(t, p.Close())

	var keys []string
	for _, m := range w.msgs {
		keys = append(keys, string(m.Key))
	}
	assert.Equal(t, []string{"o1", "o2", "o3"}, keys)

	err := p.OrderCreated(context.Background(), testOrder("o4"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publisher closed")
}

func TestPublisher_WriteErrorIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	p := newPublisher(&fakeWriter{err: errors.New("no leader")}, zap.New(core), time.Second)

	require.NoError(t, p.OrderCreated(context.Background(), testOrder("o9")))
	require.NoError(t, p.Close())

	entries := logs.FilterMessage("Publish order events failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, []any{"o9"}, entries[0].ContextMap()["order_ids"])
}

func TestPublisher_UnreachableBrokerDoesNotBlockCheckout(t *testing.T) {
	p := newPublisher(&fakeWriter{block: true}, zap.NewNop(), 200*time.Millisecond)
	defer func() { require.NoError(t, p.Close()) }()

	store := memory.New()
	catalog := memory.NewCatalog(product.Product{ID: "p1", Name: "Widget", Price: decimal.NewFromInt(100)})
	svc := order.NewService(store, store, catalog, p)

	done := make(chan error, 1)
	go func() {
		_, err := svc.PlaceOrder(context.Background(), "u1", order.Checkout{
			Lines:         cart.Lines{{ProductID: "p1", UnitPrice: decimal.NewFromInt(100), Quantity: 1}},
			Address:       "123 Main St",
			PaymentMethod: order.PaymentCOD,
		})
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("PlaceOrder waited on the broker")
	}
}

func TestPublisher_QueueFull(t *testing.T) {
	w := &fakeWriter{block: true}
	p := newPublisher(w, zap.NewNop(), time.Hour)

	var err error
	for i := 0; i < queueSize+maxBatch+1 && err == nil; i++ {
		err = p.OrderCreated(context.Background(), testOrder("o"))
	}
	require.ErrorIs(t, err, ErrQueueFull)
}
