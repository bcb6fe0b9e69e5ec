// Package health serves liveness and readiness probes backed by periodic
// background checks.
//
// A probe flips to unhealthy after failAfter consecutive failures and back
// after passAfter consecutive successes, so a single slow ping does not take
// the instance out of rotation.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// CheckFunc returns nil when the checked dependency is healthy.
type CheckFunc func(ctx context.Context) error

// Kind selects the endpoint a probe contributes to.
type Kind int

// Probe kinds.
const (
	Liveness Kind = iota
	Readiness
)

func (k Kind) String() string {
	if k == Liveness {
		return "liveness"
	}
	return "readiness"
}

const (
	failAfter = 3
	passAfter = 1
)

type probe struct {
	name    string
	timeout time.Duration
	fn      CheckFunc

	healthy atomic.Bool
	lastErr atomic.Pointer[string]

	// Owned by the probe's goroutine.
	fails, passes int
}

// observe runs the check once and reports whether health flipped.
func (p *probe) observe(ctx context.Context) (flipped bool, err error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err = p.fn(ctx)
	was := p.healthy.Load()
	if err != nil {
		msg := err.Error()
		p.lastErr.Store(&msg)
		p.passes = 0
		p.fails++
		if p.fails >= failAfter {
			p.healthy.Store(false)
		}
	} else {
		p.lastErr.Store(nil)
		p.fails = 0
		p.passes++
		if p.passes >= passAfter {
			p.healthy.Store(true)
		}
	}
	return was != p.healthy.Load(), err
}

func (p *probe) failure() string {
	if msg := p.lastErr.Load(); msg != nil {
		return *msg
	}
	return "check is unhealthy"
}

// Health aggregates probes. It starts not ready; call SetReady once the
// service has finished initialization.
type Health struct {
	ready atomic.Bool

	mu     sync.RWMutex
	probes [2][]*probe
	stop   context.CancelFunc
	group  *errgroup.Group
}

// New creates an empty Health.
func New() *Health {
	return &Health{}
}

// Add registers a probe. Probes start healthy until proven otherwise.
func (h *Health) Add(kind Kind, name string, timeout time.Duration, fn CheckFunc) {
	p := &probe{name: name, timeout: timeout, fn: fn}
	p.healthy.Store(true)

	h.mu.Lock()
	h.probes[kind] = append(h.probes[kind], p)
	h.mu.Unlock()
}

// Start runs every probe immediately and then every interval until Stop or
// ctx cancellation. Health transitions are logged.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)

	h.mu.Lock()
	h.stop, h.group = cancel, g
	for kind, probes := range h.probes {
		for _, p := range probes {
			g.Go(func() error {
				loop(ctx, Kind(kind), p, interval)
				return nil
			})
		}
	}
	h.mu.Unlock()
}

func loop(ctx context.Context, kind Kind, p *probe, interval time.Duration) {
	lg := zctx.From(ctx).With(zap.String("probe", p.name), zap.Stringer("kind", kind))
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		if flipped, err := p.observe(ctx); flipped {
			if err != nil {
				lg.Warn("Probe unhealthy", zap.Error(err))
			} else {
				lg.Info("Probe recovered")
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// Stop cancels the probe goroutines and waits for them to exit. It is safe
// to call more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	stop, g := h.stop, h.group
	h.stop, h.group = nil, nil
	h.mu.Unlock()

	if stop != nil {
		stop()
		_ = g.Wait()
	}
}

// SetReady sets the manual readiness flag.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// Ready reports whether the service is marked ready and every readiness
// probe passes.
func (h *Health) Ready() bool {
	return h.ready.Load() && len(h.failures(Readiness)) == 0
}

func (h *Health) failures(kind Kind) map[string]string {
	h.mu.RLock()
	probes := h.probes[kind]
	h.mu.RUnlock()

	out := make(map[string]string)
	for _, p := range probes {
		if !p.healthy.Load() {
			out[p.name] = p.failure()
		}
	}
	return out
}

type statusResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the aggregated state of kind: 200 {"status":"ok"} or 503
// with the failing probes. Readiness also fails while SetReady(false).
func (h *Health) Handler(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		failures := h.failures(kind)
		if kind == Readiness && !h.ready.Load() {
			failures["_readiness"] = "service is not ready"
		}

		resp, status := statusResponse{Status: "ok"}, http.StatusOK
		if len(failures) > 0 {
			resp = statusResponse{Status: "unhealthy", Checks: failures}
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
