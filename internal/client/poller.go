package client

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Poll timing defaults.
const (
	DefaultPollInterval = 5 * time.Second
	DefaultQuietPeriod  = 3 * time.Second
)

// Poller refreshes on a fixed interval, skipping ticks while the client is
// hidden or the user interacted within the quiet period.
type Poller struct {
	refresh  func(ctx context.Context) error
	interval time.Duration
	quiet    time.Duration
	now      func() time.Time
	pending  func() bool
	logger   *slog.Logger

	mu        sync.Mutex
	lastTouch time.Time
	visible   bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// PollerOption customises a poller.
type PollerOption func(*Poller)

// WithInterval overrides DefaultPollInterval.
func WithInterval(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithQuietPeriod overrides DefaultQuietPeriod.
func WithQuietPeriod(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d >= 0 {
			p.quiet = d
		}
	}
}

// WithPollerClock overrides the clock used for the quiet period.
func WithPollerClock(now func() time.Time) PollerOption {
	return func(p *Poller) {
		if now != nil {
			p.now = now
		}
	}
}

// WithPendingRefresh makes a visible poller refresh on the next tick,
// ignoring the quiet period, while pending reports true.
func WithPendingRefresh(pending func() bool) PollerOption {
	return func(p *Poller) {
		p.pending = pending
	}
}

// WithPollerLogger sets the logger for refresh failures.
func WithPollerLogger(logger *slog.Logger) PollerOption {
	return func(p *Poller) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPoller returns a visible, stopped poller calling refresh.
func NewPoller(refresh func(ctx context.Context) error, opts ...PollerOption) *Poller {
	p := &Poller{
		refresh:  refresh,
		interval: DefaultPollInterval,
		quiet:    DefaultQuietPeriod,
		now:      time.Now,
		logger:   slog.Default(),
		visible:  true,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Touch marks user interaction; polling pauses for the quiet period.
func (p *Poller) Touch() {
	p.mu.Lock()
	p.lastTouch = p.now()
	p.mu.Unlock()
}

// SetVisible pauses polling while the client is not shown.
func (p *Poller) SetVisible(visible bool) {
	p.mu.Lock()
	p.visible = visible
	p.mu.Unlock()
}

// Due reports whether a tick at the current time would refresh.
func (p *Poller) Due() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.visible {
		return false
	}
	if p.pending != nil && p.pending() {
		return true
	}
	return p.lastTouch.IsZero() || p.now().Sub(p.lastTouch) >= p.quiet
}

// Tick refreshes once if due. It reports whether a refresh ran.
func (p *Poller) Tick(ctx context.Context) (bool, error) {
	if !p.Due() {
		return false, nil
	}
	return true, p.refresh(ctx)
}

// Start runs the poll loop until ctx is done or Stop is called. Calling
// Start on a running poller does nothing.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.cancel != nil {
		p.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.cancel = cancel
	p.done = done
	p.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := p.Tick(ctx); err != nil && ctx.Err() == nil {
					p.logger.WarnContext(ctx, "poll refresh failed", "error", err)
				}
			}
		}
	}()
}

// Stop ends the poll loop and waits for it to exit.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
