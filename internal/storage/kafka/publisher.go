// Package kafka publishes order events to Kafka.
package kafka

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/order"
)

// EventOrderCreated is the type of the event published after checkout.
const EventOrderCreated = "order.created"

// OrderCreatedEvent is the message body of EventOrderCreated.
type OrderCreatedEvent struct {
	Type          string      `json:"type"`
	OrderID       string      `json:"orderId"`
	UserID        string      `json:"userId"`
	Items         cart.Lines  `json:"items"`
	Total         json.Number `json:"total"`
	Address       string      `json:"address"`
	PaymentMethod string      `json:"paymentMethod"`
	DeliveryType  string      `json:"deliveryType"`
	CreatedAt     time.Time   `json:"createdAt"`
}

const (
	// DefaultWriteTimeout bounds a single delivery attempt to the brokers.
	DefaultWriteTimeout = 5 * time.Second

	queueSize = 1024
	maxBatch  = 100
)

// ErrQueueFull is returned when events are produced faster than the
// brokers accept them.
var ErrQueueFull = errors.New("event queue full")

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var _ order.Publisher = (*Publisher)(nil)

// Publisher writes order events to a single topic, keyed by order ID.
// Events are queued and delivered by a background goroutine, so a slow or
// unreachable broker never holds up the caller. Delivery failures are
// logged.
type Publisher struct {
	w       messageWriter
	lg      *zap.Logger
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan kafka.Message
	done   chan struct{}
}

// NewPublisher creates a Publisher writing to topic on brokers.
func NewPublisher(lg *zap.Logger, brokers []string, topic string) *Publisher {
	return newPublisher(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
	}, lg, DefaultWriteTimeout)
}

func newPublisher(w messageWriter, lg *zap.Logger, timeout time.Duration) *Publisher {
	p := &Publisher{
		w:       w,
		lg:      lg,
		timeout: timeout,
		queue:   make(chan kafka.Message, queueSize),
		done:    make(chan struct{}),
	}
	go p.run()
	return p
}

// OrderCreated queues an EventOrderCreated message for o. The current
// trace context travels in the message headers.
func (p *Publisher) OrderCreated(ctx context.Context, o *order.Order) error {
	body, err := json.Marshal(OrderCreatedEvent{
		Type:          EventOrderCreated,
		OrderID:       o.ID,
		UserID:        o.UserID,
		Items:         o.Lines,
		Total:         json.Number(o.Total.String()),
		Address:       o.Address,
		PaymentMethod: string(o.PaymentMethod),
		DeliveryType:  string(o.DeliveryType),
		CreatedAt:     o.CreatedAt,
	})
	if err != nil {
		return errors.Wrap(err, "encode event")
	}

	msg := kafka.Message{
		Key:     []byte(o.ID),
		Value:   body,
		Headers: injectHeaders(ctx, []kafka.Header{{Key: "type", Value: []byte(EventOrderCreated)}}),
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return errors.Errorf("publish order %s: publisher closed", o.ID)
	}
	select {
	case p.queue <- msg:
		return nil
	default:
		return errors.Wrapf(ErrQueueFull, "publish order %s", o.ID)
	}
}

func (p *Publisher) run() {
	defer close(p.done)
	for msg := range p.queue {
		batch := []kafka.Message{msg}
	fill:
		for len(batch) < maxBatch {
			select {
			case next, ok := <-p.queue:
				if !ok {
					break fill
				}
				batch = append(batch, next)
			default:
				break fill
			}
		}
		p.write(batch)
	}
}

func (p *Publisher) write(batch []kafka.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if err := p.w.WriteMessages(ctx, batch...); err != nil {
		ids := make([]string, len(batch))
		for i, m := range batch {
			ids[i] = string(m.Key)
		}
		p.lg.Warn("Publish order events failed",
			zap.Strings("order_ids", ids),
			zap.Error(err),
		)
	}
}

// Close delivers the queued events, then closes the writer.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	<-p.done
	return p.w.Close()
}

func injectHeaders(ctx context.Context, headers []kafka.Header) []kafka.Header {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	for k, v := range carrier {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return headers
}
