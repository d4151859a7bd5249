package alarm

import (
	"encoding/json"
	"maps"
	"strconv"
	"strings"
	"time"
)

// AlertID is the opaque identifier of an alert, normalised to a string.
type AlertID string

// Payload is the arbitrary metadata attached to an alert
// (subject identity, detection location, confidence, timestamp).
type Payload map[string]any

// payloadIDKeys lists the payload keys an identifier is taken from, in order.
//
//nolint:gochecknoglobals // Read-only lookup table.
var payloadIDKeys = []string{"alert_id", "alertId"}

// ID extracts the alert identifier from the payload.
// It returns false when none of the known keys carries a usable value.
func (p Payload) ID() (AlertID, bool) {
	for _, key := range payloadIDKeys {
		if id, ok := NormalizeID(p[key]); ok {
			return id, true
		}
	}

	return "", false
}

// Clone returns a shallow copy of the payload map.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}

	return maps.Clone(p)
}

// NormalizeID converts identifier values found in JSON documents and Go code
// into an AlertID. Zero numbers and blank strings are not usable identifiers.
func NormalizeID(value any) (AlertID, bool) {
	var s string

	switch v := value.(type) {
	case AlertID:
		s = string(v)
	case string:
		s = v
	case json.Number:
		s = v.String()
	case float64:
		if v == 0 {
			return "", false
		}

		s = strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		if v == 0 {
			return "", false
		}

		s = strconv.Itoa(v)
	case int64:
		if v == 0 {
			return "", false
		}

		s = strconv.FormatInt(v, 10)
	default:
		return "", false
	}

	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return "", false
	}

	return AlertID(s), true
}

// Record is one active alarm. It is immutable once inserted into the registry.
type Record struct {
	// ID identifies the alert; unique within the registry.
	ID AlertID `json:"alert_id"`
	// Payload is the alert metadata as received with the trigger.
	Payload Payload `json:"payload,omitempty"`
	// TriggeredAt is when the alarm was raised locally.
	TriggeredAt time.Time `json:"triggered_at"`
}

// Clone returns a copy of the record to avoid leaking registry references.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}

	return &Record{
		ID:          r.ID,
		Payload:     r.Payload.Clone(),
		TriggeredAt: r.TriggeredAt,
	}
}
