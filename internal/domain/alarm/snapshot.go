package alarm

import (
	"encoding/json"
	"time"
)

// Indicator lines shown to operators for the current alarm state.
const (
	StatusSounding  = "Alarm sounding"
	StatusSilent    = "Silent period - resumes soon"
	StatusAttention = "Alert requires attention"
	StatusClear     = "No active alarms"
)

// Snapshot is a read-only projection of the engine state for observers.
type Snapshot struct {
	// HasActive reports whether at least one alarm is active.
	HasActive bool `json:"has_active"`
	// ActiveCount is the number of active alarms.
	ActiveCount int `json:"active_count"`
	// Records lists the active alarms sorted by ID.
	Records []*Record `json:"records"`
	// Visible is the alarm currently shown in the modal, if any.
	Visible *Record `json:"visible,omitempty"`
	// Phase is the sound cycle state.
	Phase Phase `json:"phase"`
	// AudioPlaying reports whether the siren is actually sounding.
	AudioPlaying bool `json:"audio_playing"`
	// SilentPeriod reports whether the cycle is in its silent pause.
	SilentPeriod bool `json:"silent_period"`
	// UpdatedAt is when the snapshot was taken.
	UpdatedAt time.Time `json:"updated_at"`
}

// Status returns the operator-facing indicator line for the snapshot.
// A sounding phase whose playback failed reads as needing attention.
func (s *Snapshot) Status() string {
	switch {
	case !s.HasActive:
		return StatusClear
	case s.AudioPlaying:
		return StatusSounding
	case s.SilentPeriod:
		return StatusSilent
	default:
		return StatusAttention
	}
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}

	cloned := *s
	cloned.Visible = s.Visible.Clone()
	cloned.Records = make([]*Record, 0, len(s.Records))

	for _, r := range s.Records {
		cloned.Records = append(cloned.Records, r.Clone())
	}

	return &cloned
}

// MarshalJSON renders the snapshot together with its indicator line.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	type plain Snapshot

	return json.Marshal(struct {
		plain
		Status string `json:"status"`
	}{
		plain:  plain(s),
		Status: s.Status(),
	})
}
