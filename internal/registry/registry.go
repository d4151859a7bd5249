// Package registry holds the authoritative set of active alarms and the
// single visible alarm pointer.
//
// Registry is not self-locking: it is owned by the engine service, which
// serialises every call under its own mutex.
package registry

import (
	"slices"

	"github.com/oshokin/escape-alarm/internal/domain/alarm"
)

// Registry maps alert identifiers to active alarm records.
type Registry struct {
	// records holds the active alarms keyed by ID.
	records map[alarm.AlertID]*alarm.Record
	// visible is the alarm shown in the modal, independent of membership.
	visible *alarm.Record
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		records: make(map[alarm.AlertID]*alarm.Record),
	}
}

// Insert stores the record, replacing any record with the same ID.
// It returns true when the ID was not present before.
func (r *Registry) Insert(rec *alarm.Record) bool {
	_, exists := r.records[rec.ID]
	r.records[rec.ID] = rec

	if r.visible != nil && r.visible.ID == rec.ID {
		r.visible = rec
	}

	return !exists
}

// Contains reports whether the ID is active.
func (r *Registry) Contains(id alarm.AlertID) bool {
	_, ok := r.records[id]

	return ok
}

// Get returns the record for the ID, or nil.
func (r *Registry) Get(id alarm.AlertID) *alarm.Record {
	return r.records[id]
}

// Remove deletes the record for the ID and clears the visible alarm if it
// was that record. It returns false when the ID was not present.
func (r *Registry) Remove(id alarm.AlertID) bool {
	if _, ok := r.records[id]; !ok {
		return false
	}

	delete(r.records, id)

	if r.visible != nil && r.visible.ID == id {
		r.visible = nil
	}

	return true
}

// RemoveMany removes every listed ID and returns those that were present.
func (r *Registry) RemoveMany(ids []alarm.AlertID) []alarm.AlertID {
	removed := make([]alarm.AlertID, 0, len(ids))

	for _, id := range ids {
		if r.Remove(id) {
			removed = append(removed, id)
		}
	}

	return removed
}

// Clear removes every record and the visible alarm. It returns how many
// records were removed.
func (r *Registry) Clear() int {
	n := len(r.records)
	clear(r.records)
	r.visible = nil

	return n
}

// Len returns the number of active alarms.
func (r *Registry) Len() int {
	return len(r.records)
}

// Empty reports whether no alarm is active.
func (r *Registry) Empty() bool {
	return len(r.records) == 0
}

// IDs returns the active IDs in ascending order.
func (r *Registry) IDs() []alarm.AlertID {
	ids := make([]alarm.AlertID, 0, len(r.records))
	for id := range r.records {
		ids = append(ids, id)
	}

	slices.Sort(ids)

	return ids
}

// Records returns clones of the active records ordered by ID.
func (r *Registry) Records() []*alarm.Record {
	ids := r.IDs()
	out := make([]*alarm.Record, 0, len(ids))

	for _, id := range ids {
		out = append(out, r.records[id].Clone())
	}

	return out
}

// Visible returns the visible alarm, or nil.
func (r *Registry) Visible() *alarm.Record {
	return r.visible
}

// SetVisible makes the record the visible alarm.
func (r *Registry) SetVisible(rec *alarm.Record) {
	r.visible = rec
}

// ClearVisible hides the visible alarm without touching membership.
// It returns false when nothing was visible.
func (r *Registry) ClearVisible() bool {
	if r.visible == nil {
		return false
	}

	r.visible = nil

	return true
}
