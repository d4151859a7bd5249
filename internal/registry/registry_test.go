package registry

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/escape-alarm/internal/domain/alarm"
)

// rec is a shorthand for a record with the given ID.
func rec(id alarm.AlertID) *alarm.Record {
	return &alarm.Record{ID: id, Payload: alarm.Payload{"alert_id": string(id)}}
}

// TestRegistry_InsertIsKeyed keeps each ID at most once.
func TestRegistry_InsertIsKeyed(t *testing.T) {
	t.Parallel()

	r := New()
	require.True(t, r.Empty())

	require.True(t, r.Insert(rec("A1")))
	require.False(t, r.Insert(rec("A1")))
	require.True(t, r.Insert(rec("A2")))

	require.Equal(t, 2, r.Len())
	require.Equal(t, []alarm.AlertID{"A1", "A2"}, r.IDs())
}

// TestRegistry_RemoveClearsVisible covers removal of visible and non-visible records.
func TestRegistry_RemoveClearsVisible(t *testing.T) {
	t.Parallel()

	r := New()
	a1, a2 := rec("A1"), rec("A2")
	r.Insert(a1)
	r.Insert(a2)
	r.SetVisible(a2)

	// Removing a non-visible record keeps the visible one.
	require.True(t, r.Remove("A1"))
	require.Same(t, a2, r.Visible())

	// Absent IDs are a no-op.
	require.False(t, r.Remove("A1"))

	require.True(t, r.Remove("A2"))
	require.Nil(t, r.Visible())
	require.True(t, r.Empty())
}

// TestRegistry_VisibleIsIndependent verifies dismissing does not remove the record.
func TestRegistry_VisibleIsIndependent(t *testing.T) {
	t.Parallel()

	r := New()
	a1 := rec("A1")
	r.Insert(a1)
	r.SetVisible(a1)

	require.True(t, r.ClearVisible())
	require.False(t, r.ClearVisible())
	require.True(t, r.Contains("A1"))
}

// TestRegistry_ReinsertRefreshesVisible points the visible alarm at the replacement.
func TestRegistry_ReinsertRefreshesVisible(t *testing.T) {
	t.Parallel()

	r := New()
	r.Insert(rec("A1"))
	r.SetVisible(r.Get("A1"))

	replacement := &alarm.Record{ID: "A1", Payload: alarm.Payload{"location": "Yard"}}
	r.Insert(replacement)
	require.Same(t, replacement, r.Visible())
}

// TestRegistry_RemoveManyAndClear covers batch removal and bulk clear.
func TestRegistry_RemoveManyAndClear(t *testing.T) {
	t.Parallel()

	r := New()
	for _, id := range []alarm.AlertID{"1", "2", "3"} {
		r.Insert(rec(id))
	}

	removed := r.RemoveMany([]alarm.AlertID{"2", "9", "3"})
	require.Equal(t, []alarm.AlertID{"2", "3"}, removed)
	require.Equal(t, []alarm.AlertID{"1"}, r.IDs())

	r.SetVisible(r.Get("1"))
	require.Equal(t, 1, r.Clear())
	require.Nil(t, r.Visible())
	require.Zero(t, r.Clear())
}

// TestRegistry_RecordsAreClones ensures callers cannot mutate registry state.
func TestRegistry_RecordsAreClones(t *testing.T) {
	t.Parallel()

	r := New()
	r.Insert(rec("A1"))

	out := r.Records()
	require.Len(t, out, 1)

	out[0].Payload["alert_id"] = "tampered"
	require.Equal(t, "A1", r.Get("A1").Payload["alert_id"])
}
