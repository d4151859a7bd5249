package alarm

// Phase is the state of the sound notification cycle.
type Phase int

const (
	// PhaseIdle means no alarm is active and no timer is pending.
	PhaseIdle Phase = iota
	// PhaseSounding means the siren is (supposed to be) playing.
	PhaseSounding
	// PhaseSilent means the siren is paused while alarms remain active.
	PhaseSilent
)

// String returns the lower-case phase name used in logs, metrics and JSON.
func (p Phase) String() string {
	switch p {
	case PhaseSounding:
		return "sounding"
	case PhaseSilent:
		return "silent"
	default:
		return "idle"
	}
}

// MarshalText renders the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText parses a phase name; unknown names decode as PhaseIdle.
func (p *Phase) UnmarshalText(text []byte) error {
	switch string(text) {
	case "sounding":
		*p = PhaseSounding
	case "silent":
		*p = PhaseSilent
	default:
		*p = PhaseIdle
	}

	return nil
}
