package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/escape-alarm/internal/backend"
	"github.com/oshokin/escape-alarm/internal/cycle"
	"github.com/oshokin/escape-alarm/internal/domain/alarm"
	"github.com/oshokin/escape-alarm/internal/poller"
)

var errTestDevice = errors.New("audio device busy")

// fakeDevice records playback calls.
type fakeDevice struct {
	mu sync.Mutex
	// err is returned from Play when set.
	err error
	// plays counts successful Play calls.
	plays int
	// halts counts Halt calls.
	halts int
}

// Play implements playback.Device.
func (d *fakeDevice) Play(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.err != nil {
		return d.err
	}

	d.plays++

	return nil
}

// Halt implements playback.Device.
func (d *fakeDevice) Halt() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.halts++
}

func (d *fakeDevice) playCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.plays
}

// fakeLister serves a fixed listing and counts requests.
type fakeLister struct {
	mu sync.Mutex
	// alerts is the listing returned.
	alerts []backend.Alert
	// calls counts requests.
	calls int
}

// ListAlerts implements poller.Lister.
func (l *fakeLister) ListAlerts(context.Context) ([]backend.Alert, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.calls++

	return l.alerts, nil
}

func (l *fakeLister) set(alerts ...backend.Alert) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.alerts = alerts
}

func (l *fakeLister) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.calls
}

// fakeRecorder counts instrumentation events.
type fakeRecorder struct {
	mu        sync.Mutex
	triggers  int
	replaced  int
	resolved  map[string]int
	polls     map[string]int
	failures  int
	lastState *alarm.Snapshot
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{resolved: make(map[string]int), polls: make(map[string]int)}
}

func (r *fakeRecorder) AlarmTriggered(replaced bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.triggers++
	if replaced {
		r.replaced++
	}
}

func (r *fakeRecorder) AlarmsResolved(source string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.resolved[source] += n
}

func (r *fakeRecorder) PollCompleted(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.polls[result]++
}

func (r *fakeRecorder) PlaybackFailed() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.failures++
}

func (r *fakeRecorder) StateChanged(s *alarm.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastState = s.Clone()
}

// fixture is a service wired to fakes.
type fixture struct {
	svc      *Service
	device   *fakeDevice
	lister   *fakeLister
	recorder *fakeRecorder
}

func newFixture(opts ...Option) *fixture {
	f := &fixture{
		device:   new(fakeDevice),
		lister:   new(fakeLister),
		recorder: newFakeRecorder(),
	}

	opts = append([]Option{WithRecorder(f.recorder)}, opts...)
	f.svc = New(context.Background(), f.device, f.lister, opts...)

	return f
}

func (f *fixture) close(t *testing.T) {
	t.Helper()

	require.NoError(t, f.svc.Close(context.Background()))
}

func trigger(f *fixture, id string) *alarm.Record {
	return f.svc.Trigger(context.Background(), alarm.Payload{"alert_id": id, "location": "Block C"})
}

// requireConsistent checks that the cycle runs exactly when alarms are active.
func requireConsistent(t *testing.T, s alarm.Snapshot) {
	t.Helper()

	require.Equal(t, s.ActiveCount > 0, s.Phase != alarm.PhaseIdle)
	require.Equal(t, s.ActiveCount > 0, s.HasActive)
	require.Len(t, s.Records, s.ActiveCount)
}

// TestService_RegistryArithmetic verifies counts after distinct triggers and resolves.
func TestService_RegistryArithmetic(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		f := newFixture()
		defer f.close(t)

		requireConsistent(t, f.svc.Snapshot())

		trigger(f, "A1")
		trigger(f, "A2")
		trigger(f, "A3")

		snap := f.svc.Snapshot()
		require.Equal(t, 3, snap.ActiveCount)
		requireConsistent(t, snap)

		require.True(t, f.svc.Resolve(context.Background(), "A2"))
		require.False(t, f.svc.Resolve(context.Background(), "A2"))
		require.False(t, f.svc.Resolve(context.Background(), "missing"))

		snap = f.svc.Snapshot()
		require.Equal(t, 2, snap.ActiveCount)
		require.Equal(t, alarm.AlertID("A1"), snap.Records[0].ID)
		require.Equal(t, alarm.AlertID("A3"), snap.Records[1].ID)
		requireConsistent(t, snap)

		require.True(t, f.svc.Resolve(context.Background(), "A1"))
		require.True(t, f.svc.Resolve(context.Background(), "A3"))

		snap = f.svc.Snapshot()
		require.Equal(t, 0, snap.ActiveCount)
		require.Equal(t, alarm.PhaseIdle, snap.Phase)
		requireConsistent(t, snap)
		require.Equal(t, 3, f.recorder.resolved[SourceOperator])
	})
}

// TestService_RetriggerReplaces verifies a known ID replaces its record.
func TestService_RetriggerReplaces(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		f := newFixture()
		defer f.close(t)

		f.svc.Trigger(context.Background(), alarm.Payload{"alert_id": "A1", "confidence": 0.8})
		rec := f.svc.Trigger(context.Background(), alarm.Payload{"alertId": "A1", "confidence": 0.95})

		require.Equal(t, alarm.AlertID("A1"), rec.ID)

		snap := f.svc.Snapshot()
		require.Equal(t, 1, snap.ActiveCount)
		require.InDelta(t, 0.95, snap.Records[0].Payload["confidence"], 1e-9)
		require.Equal(t, 1, f.device.playCount())
		require.Equal(t, 1, f.recorder.replaced)
	})
}

// TestService_DismissVisualKeepsAudio verifies dismissing only hides the modal.
func TestService_DismissVisualKeepsAudio(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		f := newFixture()
		defer f.close(t)

		trigger(f, "A1")
		require.Equal(t, alarm.AlertID("A1"), f.svc.Snapshot().Visible.ID)

		f.svc.DismissVisual(context.Background())
		first := f.svc.Snapshot()
		f.svc.DismissVisual(context.Background())
		second := f.svc.Snapshot()

		for _, snap := range []alarm.Snapshot{first, second} {
			require.Nil(t, snap.Visible)
			require.Equal(t, 1, snap.ActiveCount)
			require.Equal(t, alarm.PhaseSounding, snap.Phase)
			require.True(t, snap.AudioPlaying)
		}
	})
}

// TestService_StopAllIdempotent verifies stop-all empties state and repeats safely.
func TestService_StopAllIdempotent(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		f := newFixture()
		defer f.close(t)

		trigger(f, "A1")
		trigger(f, "A2")

		require.Equal(t, 2, f.svc.StopAll(context.Background()))
		require.Equal(t, 0, f.svc.StopAll(context.Background()))

		snap := f.svc.Snapshot()
		require.Zero(t, snap.ActiveCount)
		require.Nil(t, snap.Visible)
		require.Equal(t, alarm.PhaseIdle, snap.Phase)
		require.False(t, snap.AudioPlaying)
		require.False(t, snap.SilentPeriod)
		require.Equal(t, 2, f.recorder.resolved[SourceStopAll])

		// No transition fires later.
		time.Sleep(cycle.DefaultSounding + cycle.DefaultSilent)
		synctest.Wait()
		require.Equal(t, alarm.PhaseIdle, f.svc.Snapshot().Phase)
		require.Equal(t, 1, f.device.playCount())
	})
}

// TestService_SecondTriggerDoesNotRestartCycle verifies the sounding phase is
// measured from the first trigger.
func TestService_SecondTriggerDoesNotRestartCycle(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		f := newFixture()
		defer f.close(t)

		trigger(f, "A1")
		time.Sleep(time.Second)
		trigger(f, "A2")

		time.Sleep(cycle.DefaultSounding - time.Second - time.Millisecond)
		synctest.Wait()
		require.Equal(t, alarm.PhaseSounding, f.svc.Snapshot().Phase)

		time.Sleep(time.Millisecond)
		synctest.Wait()

		snap := f.svc.Snapshot()
		require.Equal(t, alarm.PhaseSilent, snap.Phase)
		require.True(t, snap.SilentPeriod)
		require.False(t, snap.AudioPlaying)
		require.Equal(t, alarm.StatusSilent, snap.Status())
		require.Equal(t, 1, f.device.playCount())
	})
}

// TestService_SilentResumesWhileActive verifies sounding restarts after the
// silent phase when alarms remain.
func TestService_SilentResumesWhileActive(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		f := newFixture()
		defer f.close(t)

		trigger(f, "A1")

		time.Sleep(cycle.DefaultSounding + cycle.DefaultSilent)
		synctest.Wait()

		snap := f.svc.Snapshot()
		require.Equal(t, alarm.PhaseSounding, snap.Phase)
		require.True(t, snap.AudioPlaying)
		require.Equal(t, 2, f.device.playCount())
	})
}

// TestService_ResolveDuringSilent verifies resolving the last alarm while
// silent goes idle and no sounding resumes.
func TestService_ResolveDuringSilent(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		f := newFixture()
		defer f.close(t)

		trigger(f, "A1")

		time.Sleep(cycle.DefaultSounding)
		synctest.Wait()
		require.Equal(t, alarm.PhaseSilent, f.svc.Snapshot().Phase)

		require.True(t, f.svc.Resolve(context.Background(), "A1"))

		snap := f.svc.Snapshot()
		require.Equal(t, alarm.PhaseIdle, snap.Phase)
		require.False(t, snap.SilentPeriod)

		time.Sleep(cycle.DefaultSilent)
		synctest.Wait()
		require.Equal(t, alarm.PhaseIdle, f.svc.Snapshot().Phase)
		require.Equal(t, 1, f.device.playCount())
	})
}

// TestService_ResolveVisibleKeepsCycle verifies resolving the visible alarm
// hides it while the other alarm keeps the siren going.
func TestService_ResolveVisibleKeepsCycle(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		f := newFixture()
		defer f.close(t)

		trigger(f, "A1")
		trigger(f, "A2")
		require.Equal(t, alarm.AlertID("A2"), f.svc.Snapshot().Visible.ID)

		require.True(t, f.svc.Resolve(context.Background(), "A2"))

		snap := f.svc.Snapshot()
		require.Nil(t, snap.Visible)
		require.Equal(t, 1, snap.ActiveCount)
		require.Equal(t, alarm.PhaseSounding, snap.Phase)
		require.True(t, snap.AudioPlaying)
	})
}

// TestService_ResolveHiddenKeepsVisible verifies resolving another alarm
// leaves the visible one shown.
func TestService_ResolveHiddenKeepsVisible(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		f := newFixture()
		defer f.close(t)

		trigger(f, "A1")
		trigger(f, "A2")

		require.True(t, f.svc.Resolve(context.Background(), "A1"))
		require.Equal(t, alarm.AlertID("A2"), f.svc.Snapshot().Visible.ID)
	})
}

// TestService_PollerResolvesAndTearsDown verifies the backend resolving the
// last alarm idles the cycle and stops further requests.
func TestService_PollerResolvesAndTearsDown(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		f := newFixture()
		defer f.close(t)

		f.lister.set(backend.Alert{ID: "A1"}, backend.Alert{ID: "A2", Resolved: true})

		trigger(f, "A2")

		time.Sleep(poller.DefaultInterval)
		synctest.Wait()

		snap := f.svc.Snapshot()
		require.Zero(t, snap.ActiveCount)
		require.Equal(t, alarm.PhaseIdle, snap.Phase)
		require.False(t, snap.AudioPlaying)
		require.Equal(t, 1, f.lister.callCount())
		require.Equal(t, 1, f.recorder.resolved[SourceBackend])
		require.Equal(t, 1, f.recorder.polls[poller.ResultOK])

		time.Sleep(6 * poller.DefaultInterval)
		synctest.Wait()
		require.Equal(t, 1, f.lister.callCount())
	})
}

// TestService_PollerRearms verifies polling resumes on the next trigger.
func TestService_PollerRearms(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		f := newFixture()
		defer f.close(t)

		trigger(f, "A1")
		f.svc.StopAll(context.Background())

		time.Sleep(2 * poller.DefaultInterval)
		synctest.Wait()
		require.Zero(t, f.lister.callCount())

		trigger(f, "A1")

		time.Sleep(poller.DefaultInterval)
		synctest.Wait()
		require.Equal(t, 1, f.lister.callCount())
	})
}

// TestService_StopAllThenTriggerRestartsCycle verifies a new trigger after
// stop-all gets a full sounding phase.
func TestService_StopAllThenTriggerRestartsCycle(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		f := newFixture()
		defer f.close(t)

		trigger(f, "A1")
		time.Sleep(cycle.DefaultSounding - time.Minute)
		f.svc.StopAll(context.Background())
		trigger(f, "A2")

		time.Sleep(time.Minute)
		synctest.Wait()
		require.Equal(t, alarm.PhaseSounding, f.svc.Snapshot().Phase)

		time.Sleep(cycle.DefaultSounding - time.Minute - time.Millisecond)
		synctest.Wait()
		require.Equal(t, alarm.PhaseSounding, f.svc.Snapshot().Phase)

		time.Sleep(time.Millisecond)
		synctest.Wait()
		require.Equal(t, alarm.PhaseSilent, f.svc.Snapshot().Phase)
		require.Equal(t, 2, f.device.playCount())
	})
}

// TestService_PlaybackFailure verifies a failing device leaves the cycle
// running but reports no audio.
func TestService_PlaybackFailure(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		f := newFixture()
		defer f.close(t)

		f.device.err = errTestDevice

		trigger(f, "A1")

		snap := f.svc.Snapshot()
		require.Equal(t, alarm.PhaseSounding, snap.Phase)
		require.False(t, snap.AudioPlaying)
		require.Equal(t, alarm.StatusAttention, snap.Status())
		require.Equal(t, 1, f.recorder.failures)
	})
}

// TestService_FreshIDs verifies generated IDs stay unique within a millisecond.
func TestService_FreshIDs(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		at := time.UnixMilli(1_700_000_000_000)
		f := newFixture(WithClock(func() time.Time { return at }))
		defer f.close(t)

		first := f.svc.Trigger(context.Background(), alarm.Payload{"location": "Gate 1"})
		second := f.svc.Trigger(context.Background(), nil)
		third := f.svc.Trigger(context.Background(), alarm.Payload{"alert_id": ""})

		require.Equal(t, alarm.AlertID("1700000000000"), first.ID)
		require.Equal(t, alarm.AlertID("1700000000001"), second.ID)
		require.Equal(t, alarm.AlertID("1700000000002"), third.ID)
		require.Equal(t, 3, f.svc.Snapshot().ActiveCount)
	})
}

// TestService_Subscribe verifies subscribers see the latest snapshot and are
// closed on cancel.
func TestService_Subscribe(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		f := newFixture()
		defer f.close(t)

		ch, cancel := f.svc.Subscribe()

		initial := <-ch
		require.False(t, initial.HasActive)

		trigger(f, "A1")
		trigger(f, "A2")

		latest := <-ch
		require.Equal(t, 2, latest.ActiveCount)
		require.Equal(t, alarm.PhaseSounding, latest.Phase)

		cancel()
		cancel()

		_, ok := <-ch
		require.False(t, ok)
	})
}

// TestService_Close verifies teardown stops everything and ignores later calls.
func TestService_Close(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		f := newFixture()

		ch, _ := f.svc.Subscribe()
		<-ch

		trigger(f, "A1")
		require.NoError(t, f.svc.Close(context.Background()))
		require.NoError(t, f.svc.Close(context.Background()))

		for range ch {
		}

		require.Nil(t, trigger(f, "A2"))
		require.False(t, f.svc.Resolve(context.Background(), "A1"))
		require.Zero(t, f.svc.StopAll(context.Background()))

		snap := f.svc.Snapshot()
		require.Zero(t, snap.ActiveCount)
		require.Equal(t, alarm.PhaseIdle, snap.Phase)

		late, _ := f.svc.Subscribe()
		_, ok := <-late
		require.False(t, ok)

		time.Sleep(cycle.DefaultSounding + poller.DefaultInterval)
		synctest.Wait()
		require.Zero(t, f.lister.callCount())
	})
}

// TestService_RecorderMirrorsState verifies the recorder sees every publish.
func TestService_RecorderMirrorsState(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		f := newFixture()
		defer f.close(t)

		trigger(f, "A1")

		f.recorder.mu.Lock()
		defer f.recorder.mu.Unlock()

		require.Equal(t, 1, f.recorder.triggers)
		require.Equal(t, 1, f.recorder.lastState.ActiveCount)
		require.Equal(t, alarm.PhaseSounding, f.recorder.lastState.Phase)
	})
}
