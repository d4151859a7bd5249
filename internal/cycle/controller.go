package cycle

import (
	"context"
	"sync"
	"time"

	"github.com/oshokin/escape-alarm/internal/domain/alarm"
	"github.com/oshokin/escape-alarm/internal/logger"
)

const (
	// DefaultSounding is how long the siren plays per cycle.
	DefaultSounding = 600_000 * time.Millisecond
	// DefaultSilent is how long the siren pauses per cycle.
	DefaultSilent = 300_000 * time.Millisecond
)

// Player is the audio output the controller drives exclusively.
type Player interface {
	Start(ctx context.Context)
	Stop(ctx context.Context)
	IsPlaying() bool
}

// ActiveFunc reports whether alarms are still active. It is evaluated at
// timer fire time with the owner's lock held.
type ActiveFunc func() bool

// PhaseObserver is notified, with the owner's lock held, after every phase change.
type PhaseObserver func(ctx context.Context, phase alarm.Phase)

// Controller alternates sounding and silent phases while alarms are active.
//
// Methods must be called with the owner's lock held; timer callbacks acquire
// the same lock before touching any state.
type Controller struct {
	// ctx carries the logger for timer callbacks.
	ctx context.Context
	// locker is the owner's lock serialising all mutations.
	locker sync.Locker
	// player is the exclusively owned playback engine.
	player Player
	// active reads the registry state at fire time.
	active ActiveFunc
	// observer is told about phase changes.
	observer PhaseObserver

	// sounding is the length of the audible phase.
	sounding time.Duration
	// silent is the length of the silent phase.
	silent time.Duration

	// phase is the current state.
	phase alarm.Phase
	// timer is the single pending transition, nil when none.
	timer *time.Timer
	// generation identifies the pending timer; stale callbacks compare unequal.
	generation uint64
	// closed refuses new cycles after teardown.
	closed bool
}

// Option configures the controller.
type Option func(*Controller)

// WithDurations overrides the phase durations; non-positive values keep defaults.
func WithDurations(sounding, silent time.Duration) Option {
	return func(c *Controller) {
		if sounding > 0 {
			c.sounding = sounding
		}

		if silent > 0 {
			c.silent = silent
		}
	}
}

// WithPhaseObserver registers a callback for phase changes.
func WithPhaseObserver(observer PhaseObserver) Option {
	return func(c *Controller) {
		c.observer = observer
	}
}

// New creates an idle controller.
func New(ctx context.Context, locker sync.Locker, player Player, active ActiveFunc, opts ...Option) *Controller {
	c := &Controller{
		ctx:      logger.WithName(ctx, "cycle"),
		locker:   locker,
		player:   player,
		active:   active,
		sounding: DefaultSounding,
		silent:   DefaultSilent,
		phase:    alarm.PhaseIdle,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Start enters the sounding phase if the controller is idle.
// A running cycle is left untouched; it returns whether a cycle was started.
func (c *Controller) Start(ctx context.Context) bool {
	if c.closed || c.phase != alarm.PhaseIdle {
		return false
	}

	c.startSounding(ctx)

	return true
}

// Stop cancels any pending transition, stops playback and returns to idle.
// It is safe to call in any phase, including idle.
func (c *Controller) Stop(ctx context.Context) {
	c.cancelTimer()
	c.player.Stop(ctx)
	c.setPhase(ctx, alarm.PhaseIdle)
}

// Close stops the cycle and refuses further starts.
func (c *Controller) Close(ctx context.Context) {
	c.Stop(ctx)
	c.closed = true
}

// Phase returns the current phase.
func (c *Controller) Phase() alarm.Phase {
	return c.phase
}

// IsPlaying reports whether the siren is actually sounding.
func (c *Controller) IsPlaying() bool {
	return c.player.IsPlaying()
}

// IsSilent reports whether the cycle is in its silent pause.
func (c *Controller) IsSilent() bool {
	return c.phase == alarm.PhaseSilent
}

// Pending reports whether a transition timer is scheduled.
func (c *Controller) Pending() bool {
	return c.timer != nil
}

// startSounding restarts playback and schedules the end of the sounding phase.
func (c *Controller) startSounding(ctx context.Context) {
	c.cancelTimer()
	c.player.Start(ctx)
	c.setPhase(ctx, alarm.PhaseSounding)
	c.schedule(c.sounding, c.soundingElapsed)

	logger.InfoKV(ctx, "Sounding phase started", "duration", c.sounding, "playing", c.player.IsPlaying())
}

// soundingElapsed moves from sounding to silent.
func (c *Controller) soundingElapsed() {
	c.player.Stop(c.ctx)
	c.setPhase(c.ctx, alarm.PhaseSilent)
	c.schedule(c.silent, c.silentElapsed)

	logger.InfoKV(c.ctx, "Silent phase started", "duration", c.silent)
}

// silentElapsed resumes sounding only if alarms are still active now.
func (c *Controller) silentElapsed() {
	if c.active() {
		c.startSounding(c.ctx)
		return
	}

	logger.Info(c.ctx, "No active alarms after silent phase, cycle finished")
	c.setPhase(c.ctx, alarm.PhaseIdle)
}

// schedule arms the single transition timer. The callback runs under the
// owner's lock and only if no newer schedule or cancel happened meanwhile.
func (c *Controller) schedule(d time.Duration, fn func()) {
	c.cancelTimer()

	generation := c.generation

	c.timer = time.AfterFunc(d, func() {
		c.locker.Lock()
		defer c.locker.Unlock()

		if generation != c.generation {
			return
		}

		c.timer = nil
		fn()
	})
}

// cancelTimer stops the pending timer, if any, and invalidates its callback.
func (c *Controller) cancelTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}

	c.generation++
}

// setPhase records the phase and notifies the observer on change.
func (c *Controller) setPhase(ctx context.Context, phase alarm.Phase) {
	if c.phase == phase {
		return
	}

	c.phase = phase

	if c.observer != nil {
		c.observer(ctx, phase)
	}
}
