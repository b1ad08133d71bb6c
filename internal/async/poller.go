package async

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// TickFunc performs one poll. Returning true ends the poll loop.
type TickFunc func(ctx context.Context) (stop bool)

// Poller runs a TickFunc on a fixed cadence. Ticks are serialized: the next interval is
// only armed once the previous tick has returned, so a slow tick never overlaps the next.
type Poller struct {
	tick     TickFunc
	logger   *slog.Logger
	interval time.Duration
	name     string

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}

	ticks atomic.Int64
}

type Option func(*Poller)

func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithName labels the poller in logs, typically with the task id it polls.
func WithName(name string) Option {
	return func(p *Poller) {
		p.name = name
	}
}

func NewPoller(tick TickFunc, logger *slog.Logger, opts ...Option) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Poller{
		tick:     tick,
		logger:   logger,
		interval: 2 * time.Second,
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Start launches the poll loop; the first tick fires one interval after Start. Start is a
// no-op if the poller was already started or stopped.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true
	ctx, p.cancel = context.WithCancel(ctx)
	go p.run(ctx)
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.done)
	p.logger.Debug("poller started", "name", p.name, "interval", p.interval)

	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Debug("poller cancelled", "name", p.name, "ticks", p.ticks.Load())
			return
		case <-timer.C:
		}

		p.ticks.Add(1)
		if p.tick(ctx) {
			p.logger.Debug("poller finished", "name", p.name, "ticks", p.ticks.Load())
			return
		}
		if ctx.Err() != nil {
			return
		}
		timer.Reset(p.interval)
	}
}

// Stop cancels the loop, including an in-flight tick's context, and waits for it to exit.
// No tick starts after Stop returns. Stop must not be called from inside the TickFunc.
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		<-p.done
		return
	}
	p.stopped = true
	if !p.started {
		close(p.done)
		p.mu.Unlock()
		return
	}
	cancel := p.cancel
	p.mu.Unlock()

	cancel()
	<-p.done
}

// Done is closed once the loop has exited.
func (p *Poller) Done() <-chan struct{} {
	return p.done
}

// Ticks returns the number of ticks fired so far.
func (p *Poller) Ticks() int64 {
	return p.ticks.Load()
}
