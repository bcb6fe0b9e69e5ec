package storefront

import (
	"context"

	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/cart"
)

// Persistence tracks the background save of one cart mutation. Its outcome
// never changes the in-memory state the mutation already applied.
type Persistence struct {
	done chan struct{}
	err  error
}

func newPersistence() *Persistence {
	return &Persistence{done: make(chan struct{})}
}

func (p *Persistence) finish(err error) {
	p.err = err
	close(p.done)
}

// Done is closed once the save has finished.
func (p *Persistence) Done() <-chan struct{} { return p.done }

// Wait blocks until the save has finished or ctx is done, and returns the
// save error.
func (p *Persistence) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// saveJob is a queued cart save. An empty owner targets the guest store.
type saveJob struct {
	owner string
	lines cart.Lines
	p     *Persistence
}

// enqueue hands a save to the writer goroutine. c.mu must be held.
func (c *Controller) enqueue(owner string, lines cart.Lines) *Persistence {
	p := newPersistence()
	if c.closed {
		p.finish(context.Canceled)
		return p
	}
	c.queue = append(c.queue, saveJob{owner: owner, lines: lines.Clone(), p: p})
	select {
	case c.wake <- struct{}{}:
	default:
	}
	return p
}

// writer drains the save queue in order. Consecutive saves for the same
// owner collapse into the last one: each save replaces the whole document.
func (c *Controller) writer() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			c.mu.Lock()
			pending := c.queue
			c.queue = nil
			c.mu.Unlock()
			for _, j := range pending {
				j.p.finish(context.Canceled)
			}
			return
		case <-c.wake:
		}

		c.mu.Lock()
		batch := c.queue
		c.queue = nil
		c.mu.Unlock()

		for i := 0; i < len(batch); {
			end := i + 1
			for end < len(batch) && batch[end].owner == batch[i].owner {
				end++
			}
			last := batch[end-1]
			err := c.save(last.owner, last.lines)
			for _, j := range batch[i:end] {
				j.p.finish(err)
			}
			i = end
		}
	}
}

func (c *Controller) save(owner string, lines cart.Lines) error {
	ctx, cancel := context.WithTimeout(c.ctx, c.timeout)
	defer cancel()

	var err error
	if owner == "" {
		err = c.guest.Save(ctx, lines)
	} else {
		err = c.backend.ReplaceCart(ctx, owner, lines)
	}
	if err != nil {
		c.lg.Warn("Cart save failed",
			zap.Bool("guest", owner == ""),
			zap.Int("lines", len(lines)),
			zap.Error(err),
		)
	}
	return err
}
