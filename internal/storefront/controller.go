// Package storefront is the client-side cart and checkout controller. It owns
// the cart, the checkout form and a cache of the order history, mediates
// between the guest cart on the device and the cart stored for a signed-in
// user, and turns the cart into an order.
package storefront

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/delivery"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
)

// DefaultTimeout bounds every store call.
const DefaultTimeout = 15 * time.Second

// Backend is the remote store. internal/client.Client implements it.
type Backend interface {
	// SetToken sets the bearer credential of subsequent calls.
	SetToken(token string)
	GetCart(ctx context.Context, ownerID string) (cart.Lines, error)
	ReplaceCart(ctx context.Context, ownerID string, lines cart.Lines) error
	PlaceOrder(ctx context.Context, c order.Checkout, idempotencyKey string) (*order.Order, error)
	ListOrders(ctx context.Context) ([]order.Order, error)
	MyDeliveries(ctx context.Context) ([]delivery.Record, error)
	DeliveryForOrder(ctx context.Context, orderID string) (*delivery.Record, error)
}

// State is an immutable snapshot of the controller.
type State struct {
	// Identity is zero for a guest.
	Identity      auth.Identity
	Lines         cart.Lines
	Total         decimal.Decimal
	Address       string
	PaymentMethod order.PaymentMethod
	GCashNumber   string
	DeliveryType  delivery.Type
	// Orders is the order history, newest first.
	Orders []order.Order
	// Submitting is set while a checkout is in flight.
	Submitting bool
}

func (s *State) clone() State {
	out := *s
	out.Lines = s.Lines.Clone()
	out.Total = s.Lines.Total()
	out.Orders = make([]order.Order, len(s.Orders))
	for i, o := range s.Orders {
		o.Lines = o.Lines.Clone()
		out.Orders[i] = o
	}
	return out
}

// DeliveryView is the delivery-status surface of the signed-in user.
type DeliveryView struct {
	Deliveries []delivery.Record
	// Focus is the delivery of the requested order, if any.
	Focus *delivery.Record
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger for background failures.
func WithLogger(lg *zap.Logger) Option {
	return func(c *Controller) { c.lg = lg }
}

// WithTimeout sets the bound on each store call.
func WithTimeout(d time.Duration) Option {
	return func(c *Controller) { c.timeout = d }
}

// WithSubmitLock rejects a checkout with ErrCheckoutInFlight while another
// one is still running. Without it a double submit may place two orders.
func WithSubmitLock() Option {
	return func(c *Controller) { c.submitLock = true }
}

// Controller is safe for concurrent use. Create it with New and release it
// with Close.
type Controller struct {
	backend    Backend
	guest      GuestStore
	lg         *zap.Logger
	timeout    time.Duration
	submitLock bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	wake   chan struct{}

	mu    sync.Mutex
	state State
	// seq tags every write to the cart or the order history when it is
	// issued. A write older than the last applied one is dropped.
	seq      uint64
	cartAt   uint64
	ordersAt uint64
	inflight int
	queue    []saveJob
	lastSave *Persistence
	closed   bool
	subs     map[uint64]func(State)
	nextSub  uint64

	notifyMu sync.Mutex
}

// New creates a Controller for a guest session.
func New(backend Backend, guest GuestStore, opts ...Option) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		backend: backend,
		guest:   guest,
		lg:      zap.NewNop(),
		timeout: DefaultTimeout,
		ctx:     ctx,
		cancel:  cancel,
		wake:    make(chan struct{}, 1),
		state: State{
			PaymentMethod: order.PaymentCOD,
			DeliveryType:  delivery.TypeInHouse,
		},
		subs: make(map[uint64]func(State)),
	}
	for _, o := range opts {
		o(c)
	}

	c.wg.Add(1)
	go c.writer()
	return c
}

// Close stops background work and waits for it. Results that arrive later
// are dropped.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// Subscribe calls fn with a fresh snapshot after every change until the
// returned function is called. fn runs synchronously and must not call back
// into the controller.
func (c *Controller) Subscribe(fn func(State)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

func (c *Controller) notify() {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	s := c.state.clone()
	fns := make([]func(State), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}

// next issues a sequence tag. c.mu must be held.
func (c *Controller) next() uint64 {
	c.seq++
	return c.seq
}

func (c *Controller) update(fn func(s *State)) {
	c.mu.Lock()
	fn(&c.state)
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

// background runs fn detached from the caller; Close cancels and awaits it.
func (c *Controller) background(fn func(ctx context.Context)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn(c.ctx)
	}()
}

// Cart mutations apply to the in-memory cart at once and save it in the
// background: to the stored cart when signed in, to the guest store
// otherwise.

func (c *Controller) mutateCart(fn func(cart.Lines) cart.Lines) *Persistence {
	c.mu.Lock()
	c.state.Lines = fn(c.state.Lines)
	c.cartAt = c.next()
	p := c.enqueue(c.state.Identity.UserID, c.state.Lines)
	c.lastSave = p
	c.mu.Unlock()

	c.notify()
	return p
}

// AddItem adds one unit of p.
func (c *Controller) AddItem(p product.Product) *Persistence {
	return c.mutateCart(func(ls cart.Lines) cart.Lines {
		return ls.Add(cart.Line{ProductID: p.ID, Name: p.Name, UnitPrice: p.Price})
	})
}

// SetQuantity sets the quantity of productID; zero or less removes the line.
func (c *Controller) SetQuantity(productID string, qty int) *Persistence {
	return c.mutateCart(func(ls cart.Lines) cart.Lines {
		return ls.SetQuantity(productID, qty)
	})
}

// Increment adds one unit to an existing line.
func (c *Controller) Increment(productID string) *Persistence {
	return c.mutateCart(func(ls cart.Lines) cart.Lines {
		return ls.SetQuantity(productID, ls.Quantity(productID)+1)
	})
}

// Decrement removes one unit; the line disappears at zero.
func (c *Controller) Decrement(productID string) *Persistence {
	return c.mutateCart(func(ls cart.Lines) cart.Lines {
		return ls.SetQuantity(productID, ls.Quantity(productID)-1)
	})
}

// RemoveLine drops the line for productID whatever its quantity.
func (c *Controller) RemoveLine(productID string) *Persistence {
	return c.mutateCart(func(ls cart.Lines) cart.Lines {
		return ls.Remove(productID)
	})
}

// Total returns the cart total.
func (c *Controller) Total() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Lines.Total()
}

// SetAddress sets the delivery address of the checkout form.
func (c *Controller) SetAddress(addr string) {
	c.update(func(s *State) { s.Address = addr })
}

// SetPaymentMethod sets the payment method of the checkout form.
func (c *Controller) SetPaymentMethod(m order.PaymentMethod) {
	c.update(func(s *State) { s.PaymentMethod = m })
}

// SetGCashNumber sets the GCash number of the checkout form.
func (c *Controller) SetGCashNumber(n string) {
	c.update(func(s *State) { s.GCashNumber = n })
}

// SetDeliveryType sets how the order reaches the customer.
func (c *Controller) SetDeliveryType(t delivery.Type) {
	c.update(func(s *State) { s.DeliveryType = t })
}

// PlaceOrder checks the checkout gate, submits the order and, on success,
// prepends it to the order history, empties the cart, resets the form and
// starts a background refresh. Failures leave the state untouched and are
// returned as *Error, or ErrCheckoutInFlight under the submit lock.
func (c *Controller) PlaceOrder(ctx context.Context) (*order.Order, error) {
	c.mu.Lock()
	id := c.state.Identity
	if id.IsZero() {
		c.mu.Unlock()
		return nil, &Error{Kind: KindUnauthenticated, Message: "Please sign in to place an order."}
	}
	co := order.Checkout{
		Lines:         c.state.Lines.Clone(),
		Address:       c.state.Address,
		PaymentMethod: c.state.PaymentMethod,
		GCashNumber:   c.state.GCashNumber,
		DeliveryType:  c.state.DeliveryType,
	}
	if err := order.ValidateCheckout(co); err != nil {
		c.mu.Unlock()
		return nil, checkoutError(err)
	}
	if c.submitLock && c.inflight > 0 {
		c.mu.Unlock()
		return nil, ErrCheckoutInFlight
	}
	c.inflight++
	c.state.Submitting = true
	c.mu.Unlock()
	c.notify()

	defer c.update(func(s *State) {
		c.inflight--
		s.Submitting = c.inflight > 0
	})

	callCtx, cancel := c.withTimeout(ctx)
	defer cancel()
	o, err := c.backend.PlaceOrder(callCtx, co, uuid.NewString())
	if err != nil {
		c.lg.Warn("Place order failed", zap.String("user_id", id.UserID), zap.Error(err))
		return nil, storeError(err)
	}

	c.mu.Lock()
	if c.closed || c.state.Identity.UserID != id.UserID {
		// Torn down or signed out while the order was in flight.
		c.mu.Unlock()
		return o, nil
	}
	stored := *o
	stored.Lines = o.Lines.Clone()
	seq := c.next()
	c.state.Orders = append([]order.Order{stored}, c.state.Orders...)
	c.ordersAt = seq
	c.state.Lines = nil
	c.cartAt = seq
	c.state.Address = ""
	c.state.GCashNumber = ""
	c.lastSave = c.enqueue(id.UserID, nil)
	c.mu.Unlock()
	c.notify()

	c.background(func(ctx context.Context) {
		_ = c.refresh(ctx, id)
	})
	return o, nil
}

// Refresh replaces the cart and the order history with the stored ones. The
// two fetches are independent: a failed half yields an empty collection and
// its error is returned after the other half is applied.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	id := c.state.Identity
	c.mu.Unlock()
	if id.IsZero() {
		return &Error{Kind: KindUnauthenticated, Message: "Please sign in."}
	}
	return c.refresh(ctx, id)
}

func (c *Controller) refresh(ctx context.Context, id auth.Identity) error {
	c.mu.Lock()
	seq := c.next()
	c.mu.Unlock()

	var (
		lines  cart.Lines
		orders []order.Order
		g      errgroup.Group
	)
	g.Go(func() error {
		callCtx, cancel := c.withTimeout(ctx)
		defer cancel()
		ls, err := c.backend.GetCart(callCtx, id.UserID)
		if err != nil {
			c.lg.Warn("Refresh cart failed", zap.String("user_id", id.UserID), zap.Error(err))
			return errors.Wrap(err, "get cart")
		}
		lines = ls.Normalize()
		return nil
	})
	g.Go(func() error {
		callCtx, cancel := c.withTimeout(ctx)
		defer cancel()
		list, err := c.backend.ListOrders(callCtx)
		if err != nil {
			c.lg.Warn("Refresh orders failed", zap.String("user_id", id.UserID), zap.Error(err))
			return errors.Wrap(err, "list orders")
		}
		orders = list
		return nil
	})
	err := g.Wait()

	c.mu.Lock()
	applied := false
	if !c.closed && c.state.Identity.UserID == id.UserID {
		if seq > c.cartAt {
			c.state.Lines = lines
			c.cartAt = seq
			applied = true
		}
		if seq > c.ordersAt {
			c.state.Orders = orders
			c.ordersAt = seq
			applied = true
		}
	}
	c.mu.Unlock()
	if applied {
		c.notify()
	}

	if err != nil {
		return storeError(err)
	}
	return nil
}

// flush waits for the last queued cart save.
func (c *Controller) flush(ctx context.Context) error {
	c.mu.Lock()
	p := c.lastSave
	c.mu.Unlock()
	if p == nil {
		return nil
	}
	return p.Wait(ctx)
}

// MergeGuestCart replaces the stored cart of id with the guest cart and then
// clears the guest cart. An empty guest cart leaves the stored cart alone.
// The guest cart is kept when the replacement fails.
func (c *Controller) MergeGuestCart(ctx context.Context, id auth.Identity) error {
	if id.IsZero() {
		return &Error{Kind: KindUnauthenticated, Message: "Please sign in."}
	}

	callCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	lines, err := c.guest.Load(callCtx)
	if err != nil {
		c.lg.Warn("Read guest cart failed", zap.Error(err))
		return &Error{Kind: KindStoreUnavailable, Message: "Could not read the guest cart.", Err: err}
	}
	if len(lines) == 0 {
		return nil
	}
	if err := c.backend.ReplaceCart(callCtx, id.UserID, lines); err != nil {
		c.lg.Warn("Merge guest cart failed", zap.String("user_id", id.UserID), zap.Error(err))
		return storeError(err)
	}
	if err := c.guest.Clear(callCtx); err != nil {
		c.lg.Warn("Clear guest cart failed", zap.Error(err))
		return &Error{Kind: KindStoreUnavailable, Message: "Could not clear the guest cart.", Err: err}
	}

	c.mu.Lock()
	if !c.closed && c.state.Identity.UserID == id.UserID {
		c.state.Lines = lines
		c.cartAt = c.next()
	}
	c.mu.Unlock()
	c.notify()

	c.lg.Info("Guest cart merged", zap.String("user_id", id.UserID), zap.Int("lines", len(lines)))
	return nil
}

// Login signs id in: it sets the credential, merges the guest cart once and
// refreshes the stored data. Only a failed merge is returned; login itself
// always completes.
func (c *Controller) Login(ctx context.Context, id auth.Identity, token string) error {
	if id.IsZero() {
		return &Error{Kind: KindUnauthenticated, Message: "Please sign in."}
	}

	if err := c.flush(ctx); err != nil {
		c.lg.Warn("Pending guest cart save", zap.Error(err))
	}

	c.backend.SetToken(token)
	c.update(func(s *State) { s.Identity = id })

	mergeErr := c.MergeGuestCart(ctx, id)
	_ = c.refresh(ctx, id)
	return mergeErr
}

// Logout forgets the identity, the cart, the order history and the form.
// Results of calls still in flight are dropped.
func (c *Controller) Logout() {
	c.backend.SetToken("")

	c.mu.Lock()
	c.state = State{
		PaymentMethod: order.PaymentCOD,
		DeliveryType:  delivery.TypeInHouse,
		Submitting:    c.inflight > 0,
	}
	seq := c.next()
	c.cartAt = seq
	c.ordersAt = seq
	c.mu.Unlock()
	c.notify()
}

// Start loads the initial state: the stored data when signed in, the guest
// cart otherwise.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	id := c.state.Identity
	seq := c.next()
	c.mu.Unlock()
	if !id.IsZero() {
		return c.refresh(ctx, id)
	}

	callCtx, cancel := c.withTimeout(ctx)
	defer cancel()
	lines, err := c.guest.Load(callCtx)
	if err != nil {
		c.lg.Warn("Load guest cart failed", zap.Error(err))
		return &Error{Kind: KindStoreUnavailable, Message: "Could not read the guest cart.", Err: err}
	}

	c.mu.Lock()
	applied := !c.closed && c.state.Identity.IsZero() && seq > c.cartAt
	if applied {
		c.state.Lines = lines
		c.cartAt = seq
	}
	c.mu.Unlock()
	if applied {
		c.notify()
	}
	return nil
}

// Deliveries lists the deliveries of the signed-in user and, when
// focusOrderID is set, looks up the delivery of that order. The halves are
// independent; a failed half is left empty and its error returned.
func (c *Controller) Deliveries(ctx context.Context, focusOrderID string) (DeliveryView, error) {
	c.mu.Lock()
	id := c.state.Identity
	c.mu.Unlock()
	if id.IsZero() {
		return DeliveryView{}, &Error{Kind: KindUnauthenticated, Message: "Please sign in."}
	}

	var (
		view DeliveryView
		g    errgroup.Group
	)
	g.Go(func() error {
		callCtx, cancel := c.withTimeout(ctx)
		defer cancel()
		list, err := c.backend.MyDeliveries(callCtx)
		if err != nil {
			c.lg.Warn("List deliveries failed", zap.Error(err))
			return errors.Wrap(err, "list deliveries")
		}
		view.Deliveries = list
		return nil
	})
	if focusOrderID != "" {
		g.Go(func() error {
			callCtx, cancel := c.withTimeout(ctx)
			defer cancel()
			d, err := c.backend.DeliveryForOrder(callCtx, focusOrderID)
			if err != nil {
				c.lg.Warn("Get delivery failed", zap.String("order_id", focusOrderID), zap.Error(err))
				return errors.Wrapf(err, "get delivery for order %s", focusOrderID)
			}
			view.Focus = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return view, storeError(err)
	}
	return view, nil
}
