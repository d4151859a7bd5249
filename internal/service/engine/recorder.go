package engine

import "github.com/oshokin/escape-alarm/internal/domain/alarm"

// Sources of alarm removals reported to the Recorder.
const (
	SourceOperator = "operator"
	SourceBackend  = "backend"
	SourceStopAll  = "stop_all"
)

// Recorder receives engine events for instrumentation.
// Methods are called with the service lock held and must not block.
type Recorder interface {
	// AlarmTriggered counts a trigger; replaced reports a re-trigger of a known ID.
	AlarmTriggered(replaced bool)
	// AlarmsResolved counts n removals from the given source.
	AlarmsResolved(source string, n int)
	// PollCompleted counts a reconciliation pass by result.
	PollCompleted(result string)
	// PlaybackFailed counts a siren start failure.
	PlaybackFailed()
	// StateChanged mirrors the latest snapshot into gauges.
	StateChanged(snapshot *alarm.Snapshot)
}

// nopRecorder discards every event.
type nopRecorder struct{}

func (nopRecorder) AlarmTriggered(bool)          {}
func (nopRecorder) AlarmsResolved(string, int)   {}
func (nopRecorder) PollCompleted(string)         {}
func (nopRecorder) PlaybackFailed()              {}
func (nopRecorder) StateChanged(*alarm.Snapshot) {}
