package engine

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/oshokin/escape-alarm/internal/cycle"
	"github.com/oshokin/escape-alarm/internal/domain/alarm"
	"github.com/oshokin/escape-alarm/internal/logger"
	"github.com/oshokin/escape-alarm/internal/playback"
	"github.com/oshokin/escape-alarm/internal/poller"
	"github.com/oshokin/escape-alarm/internal/registry"
)

// Service is the alarm lifecycle engine.
type Service struct {
	// ctx carries the engine logger for background callbacks.
	ctx context.Context
	// mu serialises every mutation, timer callback and poll completion.
	mu sync.Mutex

	// registry holds the active alarms and the visible alarm.
	registry *registry.Registry
	// cycle drives the sounding/silent policy.
	cycle *cycle.Controller
	// poller reconciles alarms with the backend while any are active.
	poller *poller.Poller
	// recorder receives instrumentation events.
	recorder Recorder
	// now is the clock used for timestamps and fresh IDs.
	now func() time.Time

	// subscribers maps subscription IDs to their latest-wins channels.
	subscribers map[uint64]chan alarm.Snapshot
	// nextSubscriber is the next subscription ID.
	nextSubscriber uint64
	// lastFreshID is the last generated millisecond ID.
	lastFreshID int64
	// closed rejects mutations after Close.
	closed bool
}

// Option configures the service.
type Option func(*settings)

// settings collects options before the components are built.
type settings struct {
	// sounding and silent are the phase durations.
	sounding, silent time.Duration
	// pollInterval is the reconciliation period.
	pollInterval time.Duration
	// recorder receives instrumentation events.
	recorder Recorder
	// now is the clock.
	now func() time.Time
}

// WithDurations overrides the sounding and silent phase lengths.
func WithDurations(sounding, silent time.Duration) Option {
	return func(s *settings) {
		s.sounding, s.silent = sounding, silent
	}
}

// WithPollInterval overrides the reconciliation period.
func WithPollInterval(interval time.Duration) Option {
	return func(s *settings) {
		s.pollInterval = interval
	}
}

// WithRecorder registers an instrumentation sink.
func WithRecorder(recorder Recorder) Option {
	return func(s *settings) {
		if recorder != nil {
			s.recorder = recorder
		}
	}
}

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

// New builds an idle engine that plays the siren on device and reconciles
// active alarms through lister.
func New(ctx context.Context, device playback.Device, lister poller.Lister, opts ...Option) *Service {
	cfg := &settings{
		recorder: nopRecorder{},
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	s := &Service{
		ctx:         logger.WithName(ctx, "engine"),
		registry:    registry.New(),
		recorder:    cfg.recorder,
		now:         cfg.now,
		subscribers: make(map[uint64]chan alarm.Snapshot),
	}

	player := playback.NewEngine(device, playback.WithFailureObserver(func(error) {
		s.recorder.PlaybackFailed()
	}))

	s.cycle = cycle.New(
		ctx,
		&s.mu,
		player,
		func() bool { return !s.registry.Empty() },
		cycle.WithDurations(cfg.sounding, cfg.silent),
		cycle.WithPhaseObserver(func(context.Context, alarm.Phase) {
			s.publishLocked()
		}),
	)

	s.poller = poller.New(
		ctx,
		&s.mu,
		lister,
		s.registry.IDs,
		s.reconcileLocked,
		poller.WithInterval(cfg.pollInterval),
		poller.WithResultObserver(s.recorder.PollCompleted),
	)

	s.publishLocked()

	return s
}

// Trigger raises an alarm for the payload and makes it the visible alarm.
// The ID comes from the payload's alert_id or alertId, or is generated. A
// known ID replaces its record. The sound cycle starts only if it is idle.
// It returns a copy of the stored record, or nil after Close.
func (s *Service) Trigger(ctx context.Context, payload alarm.Payload) *alarm.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		logger.Warn(ctx, "Trigger ignored, engine is closed")
		return nil
	}

	id, ok := payload.ID()
	if !ok {
		id = s.freshIDLocked()
	}

	rec := &alarm.Record{
		ID:          id,
		Payload:     payload.Clone(),
		TriggeredAt: s.now(),
	}

	added := s.registry.Insert(rec)
	s.registry.SetVisible(rec)
	s.recorder.AlarmTriggered(!added)

	logger.InfoKV(ctx, "Alarm triggered", "alert_id", id, "replaced", !added, "active", s.registry.Len())

	s.settleLocked(ctx)

	return rec.Clone()
}

// DismissVisual hides the visible alarm. Active alarms and audio are untouched.
func (s *Service) DismissVisual(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		logger.Warn(ctx, "Dismiss ignored, engine is closed")
		return
	}

	if !s.registry.ClearVisible() {
		return
	}

	logger.Info(ctx, "Visible alarm dismissed")
	s.publishLocked()
}

// Resolve removes the alarm with the ID, if present, and reports whether it was.
func (s *Service) Resolve(ctx context.Context, id alarm.AlertID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		logger.WarnKV(ctx, "Resolve ignored, engine is closed", "alert_id", id)
		return false
	}

	if !s.registry.Remove(id) {
		logger.DebugKV(ctx, "Resolve for unknown alarm", "alert_id", id)
		return false
	}

	s.recorder.AlarmsResolved(SourceOperator, 1)
	logger.InfoKV(ctx, "Alarm resolved", "alert_id", id, "active", s.registry.Len())

	s.settleLocked(ctx)

	return true
}

// StopAll clears every alarm and silences the siren immediately.
// It returns the number of alarms removed.
func (s *Service) StopAll(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		logger.Warn(ctx, "Stop all ignored, engine is closed")
		return 0
	}

	n := s.registry.Clear()
	if n > 0 {
		s.recorder.AlarmsResolved(SourceStopAll, n)
	}

	logger.InfoKV(ctx, "All alarms stopped", "removed", n)

	s.settleLocked(ctx)

	return n
}

// Snapshot returns the current state.
func (s *Service) Snapshot() alarm.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.snapshotLocked()
}

// Subscribe returns a channel that holds the latest published snapshot. The
// current snapshot is delivered first; a slow reader sees only the newest
// one. The channel is closed by cancel or by Close.
func (s *Service) Subscribe() (<-chan alarm.Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan alarm.Snapshot, 1)

	if s.closed {
		close(ch)
		return ch, func() {}
	}

	id := s.nextSubscriber
	s.nextSubscriber++
	s.subscribers[id] = ch
	ch <- s.snapshotLocked()

	var once sync.Once

	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()

			if sub, ok := s.subscribers[id]; ok {
				delete(s.subscribers, id)
				close(sub)
			}
		})
	}

	return ch, cancel
}

// Close stops the cycle and the poller, closes every subscription and waits
// for the poll loop to exit or ctx to end. Later mutations are ignored and
// repeated calls return nil.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()
		return nil
	}

	s.closed = true
	s.registry.Clear()
	s.poller.Disarm()
	s.cycle.Close(ctx)

	for id, ch := range s.subscribers {
		delete(s.subscribers, id)
		close(ch)
	}

	s.mu.Unlock()

	done := make(chan struct{})

	go func() {
		s.poller.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info(ctx, "Engine stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for poller: %w", ctx.Err())
	}
}

// reconcileLocked removes alarms the backend reports resolved.
func (s *Service) reconcileLocked(ctx context.Context, resolved []alarm.AlertID) {
	removed := s.registry.RemoveMany(resolved)
	if len(removed) == 0 {
		return
	}

	s.recorder.AlarmsResolved(SourceBackend, len(removed))
	logger.InfoKV(ctx, "Alarms resolved by backend", "alert_ids", removed, "active", s.registry.Len())

	s.settleLocked(ctx)
}

// settleLocked derives the cycle and poller from registry membership and
// publishes the resulting snapshot.
func (s *Service) settleLocked(ctx context.Context) {
	if s.registry.Empty() {
		s.poller.Disarm()
		s.cycle.Stop(ctx)
	} else {
		s.cycle.Start(ctx)
		s.poller.Arm()
	}

	s.publishLocked()
}

// publishLocked hands the current snapshot to the recorder and every subscriber.
func (s *Service) publishLocked() {
	snap := s.snapshotLocked()
	s.recorder.StateChanged(&snap)

	for _, ch := range s.subscribers {
		// Only the publisher sends, so after draining the send cannot block.
		select {
		case <-ch:
		default:
		}

		ch <- *snap.Clone()
	}
}

// snapshotLocked projects the current state.
func (s *Service) snapshotLocked() alarm.Snapshot {
	n := s.registry.Len()

	return alarm.Snapshot{
		HasActive:    n > 0,
		ActiveCount:  n,
		Records:      s.registry.Records(),
		Visible:      s.registry.Visible().Clone(),
		Phase:        s.cycle.Phase(),
		AudioPlaying: s.cycle.IsPlaying(),
		SilentPeriod: s.cycle.IsSilent(),
		UpdatedAt:    s.now(),
	}
}

// freshIDLocked returns a millisecond timestamp ID unused by earlier calls
// and by the registry.
func (s *Service) freshIDLocked() alarm.AlertID {
	ms := s.now().UnixMilli()
	if ms <= s.lastFreshID {
		ms = s.lastFreshID + 1
	}

	for s.registry.Contains(alarm.AlertID(strconv.FormatInt(ms, 10))) {
		ms++
	}

	s.lastFreshID = ms

	return alarm.AlertID(strconv.FormatInt(ms, 10))
}
