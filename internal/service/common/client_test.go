//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	api "github.com/oshokin/escape-alarm/internal/api/grpc/alarm"
	"github.com/oshokin/escape-alarm/internal/backend"
	"github.com/oshokin/escape-alarm/internal/domain/alarm"
	"github.com/oshokin/escape-alarm/internal/playback"
	"github.com/oshokin/escape-alarm/internal/service/engine"
)

// emptyLister reports no backend alerts.
type emptyLister struct{}

func (emptyLister) ListAlerts(context.Context) ([]backend.Alert, error) { return nil, nil }

// dialEngine serves a real engine over bufconn and returns a connected client.
func dialEngine(t *testing.T) *Client {
	t.Helper()

	svc := engine.New(context.Background(), playback.Unavailable{}, emptyLister{})

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	api.RegisterAlarmEngineServer(srv, api.NewServer(svc))

	go func() {
		_ = srv.Serve(lis)
	}()

	c, err := Dial(
		context.Background(),
		"passthrough:///bufnet",
		WithActor(&alarm.Actor{Hostname: "tower-2", Username: "guard"}),
		WithCallTimeout(3*time.Second),
		WithDialOptions(grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		})),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = c.Close()
		srv.Stop()
		_ = svc.Close(context.Background())
	})

	return c
}

// TestDial_ValidatesAddress verifies that Dial rejects empty addresses.
func TestDial_ValidatesAddress(t *testing.T) {
	t.Parallel()

	c, err := Dial(context.Background(), "")
	require.Error(t, err)
	require.Nil(t, c)
}

// TestClient_callContext checks timeout vs cancel-only behavior of callContext.
func TestClient_callContext(t *testing.T) {
	t.Parallel()

	c := &Client{
		actor:       &alarm.Actor{Hostname: "h", Username: "u"},
		callTimeout: 0,
	}

	ctx, cancel, err := c.callContext(context.Background())
	require.NoError(t, err)
	cancel()

	_, ok := ctx.Deadline()
	require.False(t, ok)

	c.callTimeout = 10 * time.Millisecond

	ctx, cancel, err = c.callContext(context.Background())
	require.NoError(t, err)

	defer cancel()

	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	require.WithinDuration(t, time.Now().Add(10*time.Millisecond), deadline, 30*time.Millisecond)
}

// TestClient_RequiresActor asserts that calls without an actor are rejected locally.
func TestClient_RequiresActor(t *testing.T) {
	t.Parallel()

	c := new(Client)

	_, err := c.Trigger(context.Background(), alarm.Payload{"alert_id": "A1"})
	require.ErrorIs(t, err, errActorRequired)

	err = c.Watch(context.Background(), func(*alarm.Snapshot) error { return nil })
	require.ErrorIs(t, err, errActorRequired)
}

// TestClient_EngineRoundtrip drives a real engine through the client.
func TestClient_EngineRoundtrip(t *testing.T) {
	t.Parallel()

	c := dialEngine(t)
	ctx := context.Background()

	rec, err := c.Trigger(ctx, alarm.Payload{"alert_id": "A1", "subject": "inmate 4471"})
	require.NoError(t, err)
	require.Equal(t, alarm.AlertID("A1"), rec.ID)

	_, err = c.Trigger(ctx, alarm.Payload{"alertId": 7})
	require.NoError(t, err)

	snap, err := c.Snapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, snap.ActiveCount)
	require.Equal(t, alarm.PhaseSounding, snap.Phase)
	require.False(t, snap.AudioPlaying)
	require.Equal(t, alarm.AlertID("7"), snap.Visible.ID)

	snap, err = c.DismissVisual(ctx)
	require.NoError(t, err)
	require.Nil(t, snap.Visible)
	require.Equal(t, 2, snap.ActiveCount)

	resolved, err := c.Resolve(ctx, "A1")
	require.NoError(t, err)
	require.True(t, resolved)

	removed, err := c.StopAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	snap, err = c.Snapshot(ctx)
	require.NoError(t, err)
	require.False(t, snap.HasActive)
	require.Equal(t, alarm.PhaseIdle, snap.Phase)
}

// TestClient_Watch receives the current snapshot first.
func TestClient_Watch(t *testing.T) {
	t.Parallel()

	c := dialEngine(t)

	_, err := c.Trigger(context.Background(), alarm.Payload{"alert_id": "A1"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var first *alarm.Snapshot

	err = c.Watch(ctx, func(s *alarm.Snapshot) error {
		first = s
		cancel()

		return nil
	})
	require.NoError(t, err)
	require.NotNil(t, first)
	require.Equal(t, 1, first.ActiveCount)
}
