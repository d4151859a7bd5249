package poller

import (
	"context"
	"sync"
	"time"

	"github.com/oshokin/escape-alarm/internal/backend"
	"github.com/oshokin/escape-alarm/internal/domain/alarm"
	"github.com/oshokin/escape-alarm/internal/logger"
)

// DefaultInterval is the period between reconciliation passes.
const DefaultInterval = 10_000 * time.Millisecond

// Pass results reported to the observer.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Lister fetches the backend alert listing.
type Lister interface {
	ListAlerts(ctx context.Context) ([]backend.Alert, error)
}

// TrackedFunc returns the IDs currently tracked; called with the owner's lock held.
type TrackedFunc func() []alarm.AlertID

// ReconcileFunc removes resolved IDs; called with the owner's lock held.
type ReconcileFunc func(ctx context.Context, resolved []alarm.AlertID)

// ResultObserver is told the outcome of every pass that reached the backend.
type ResultObserver func(result string)

// Poller periodically reconciles tracked alarms with backend resolution status.
//
// Arm, Disarm and Armed must be called with the owner's lock held. Wait must
// be called without it.
type Poller struct {
	// ctx is the parent of every poll loop context.
	ctx context.Context
	// locker is the owner's lock.
	locker sync.Locker
	// lister queries the backend.
	lister Lister
	// interval is the tick period.
	interval time.Duration
	// tracked reads the registry IDs.
	tracked TrackedFunc
	// reconcile applies resolved IDs.
	reconcile ReconcileFunc
	// observer receives pass results.
	observer ResultObserver

	// cancel stops the running loop, nil when disarmed.
	cancel context.CancelFunc
	// generation identifies the running loop; stale passes compare unequal.
	generation uint64
	// wg tracks loop goroutines for Wait.
	wg sync.WaitGroup
}

// Option configures the poller.
type Option func(*Poller)

// WithInterval overrides the tick period; non-positive values keep the default.
func WithInterval(interval time.Duration) Option {
	return func(p *Poller) {
		if interval > 0 {
			p.interval = interval
		}
	}
}

// WithResultObserver registers a callback for pass results.
func WithResultObserver(observer ResultObserver) Option {
	return func(p *Poller) {
		p.observer = observer
	}
}

// New creates a disarmed poller.
func New(
	ctx context.Context,
	locker sync.Locker,
	lister Lister,
	tracked TrackedFunc,
	reconcile ReconcileFunc,
	opts ...Option,
) *Poller {
	p := &Poller{
		ctx:       logger.WithName(ctx, "poller"),
		locker:    locker,
		lister:    lister,
		interval:  DefaultInterval,
		tracked:   tracked,
		reconcile: reconcile,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Arm starts the poll loop unless it is already running.
func (p *Poller) Arm() {
	if p.cancel != nil {
		return
	}

	p.generation++

	ctx, cancel := context.WithCancel(p.ctx)
	p.cancel = cancel

	p.wg.Add(1)

	go p.run(ctx, p.generation)

	logger.DebugKV(p.ctx, "Resolution poller armed", "interval", p.interval)
}

// Disarm stops the poll loop. Calling it while disarmed is a no-op.
// It does not wait for the loop to exit; results of an in-flight pass are dropped.
func (p *Poller) Disarm() {
	if p.cancel == nil {
		return
	}

	p.cancel()
	p.cancel = nil
	p.generation++

	logger.Debug(p.ctx, "Resolution poller disarmed")
}

// Armed reports whether the poll loop is running.
func (p *Poller) Armed() bool {
	return p.cancel != nil
}

// Wait blocks until every poll loop started so far has exited.
func (p *Poller) Wait() {
	p.wg.Wait()
}

// run ticks until the loop context is cancelled. The first pass happens one
// interval after arming.
func (p *Poller) run(ctx context.Context, generation uint64) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pass(ctx, generation)
		}
	}
}

// pass performs one reconciliation. The backend call runs without the lock.
func (p *Poller) pass(ctx context.Context, generation uint64) {
	p.locker.Lock()

	if generation != p.generation {
		p.locker.Unlock()
		return
	}

	ids := p.tracked()

	p.locker.Unlock()

	if len(ids) == 0 {
		return
	}

	alerts, err := p.lister.ListAlerts(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}

		logger.ErrorKV(ctx, "Alert reconciliation failed, retrying next tick", "error", err)

		p.locker.Lock()
		if generation == p.generation {
			p.observe(ResultError)
		}
		p.locker.Unlock()

		return
	}

	resolved := make(map[alarm.AlertID]struct{}, len(alerts))

	for _, a := range alerts {
		if a.IsResolved() {
			resolved[a.ID] = struct{}{}
		}
	}

	p.locker.Lock()
	defer p.locker.Unlock()

	if generation != p.generation {
		return
	}

	p.observe(ResultOK)

	// Re-read the tracked IDs: alarms may have changed during the request.
	var batch []alarm.AlertID

	for _, id := range p.tracked() {
		if _, ok := resolved[id]; ok {
			batch = append(batch, id)
		}
	}

	if len(batch) == 0 {
		return
	}

	logger.InfoKV(ctx, "Backend reports alarms resolved", "alert_ids", batch)
	p.reconcile(ctx, batch)
}

// observe forwards a pass result to the observer, if any. Callers hold the lock.
func (p *Poller) observe(result string) {
	if p.observer != nil {
		p.observer(result)
	}
}
