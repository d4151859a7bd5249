package alarm

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	domain "github.com/oshokin/escape-alarm/internal/domain/alarm"
)

// fakeService is an in-memory engine stand-in for transport tests.
type fakeService struct {
	mu sync.Mutex
	// records holds triggered alarms.
	records map[domain.AlertID]*domain.Record
	// visible is the last triggered alarm unless dismissed.
	visible *domain.Record
	// dismissed counts DismissVisual calls.
	dismissed int
	// updates feeds Watch subscribers.
	updates chan domain.Snapshot
}

func newFakeService() *fakeService {
	return &fakeService{
		records: make(map[domain.AlertID]*domain.Record),
		updates: make(chan domain.Snapshot, 4),
	}
}

func (f *fakeService) Trigger(_ context.Context, payload domain.Payload) *domain.Record {
	f.mu.Lock()
	defer f.mu.Unlock()

	id, ok := payload.ID()
	if !ok {
		id = "generated"
	}

	rec := &domain.Record{ID: id, Payload: payload, TriggeredAt: time.Unix(1_700_000_000, 0).UTC()}
	f.records[id] = rec
	f.visible = rec

	return rec
}

func (f *fakeService) DismissVisual(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.visible = nil
	f.dismissed++
}

func (f *fakeService) Resolve(_ context.Context, id domain.AlertID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, ok := f.records[id]
	delete(f.records, id)

	return ok
}

func (f *fakeService) StopAll(context.Context) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := len(f.records)
	clear(f.records)
	f.visible = nil

	return n
}

func (f *fakeService) Snapshot() domain.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	phase := domain.PhaseIdle
	if len(f.records) > 0 {
		phase = domain.PhaseSounding
	}

	return domain.Snapshot{
		HasActive:    len(f.records) > 0,
		ActiveCount:  len(f.records),
		Visible:      f.visible.Clone(),
		Phase:        phase,
		AudioPlaying: len(f.records) > 0,
	}
}

func (f *fakeService) Subscribe() (<-chan domain.Snapshot, func()) {
	return f.updates, func() {}
}

// dialBufconn serves the service in-process and returns a connected client.
func dialBufconn(t *testing.T, svc Service) *AlarmEngineClient {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterAlarmEngineServer(srv, NewServer(svc))

	go func() {
		_ = srv.Serve(lis)
	}()

	conn, err := grpc.NewClient(
		"passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		srv.Stop()
	})

	return NewAlarmEngineClient(conn)
}

// TestServer_Roundtrip exercises every unary method over an in-process connection.
func TestServer_Roundtrip(t *testing.T) {
	t.Parallel()

	svc := newFakeService()
	client := dialBufconn(t, svc)
	ctx := WithOutgoingActor(context.Background(), &domain.Actor{Hostname: "tower-2", Username: "guard"})

	rec, err := client.Trigger(ctx, domain.Payload{"alert_id": 42, "location": "Block C"})
	require.NoError(t, err)
	require.Equal(t, domain.AlertID("42"), rec.ID)
	require.Equal(t, "Block C", rec.Payload["location"])
	require.True(t, rec.TriggeredAt.Equal(time.Unix(1_700_000_000, 0)))

	snap, err := client.GetSnapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, snap.ActiveCount)
	require.Equal(t, domain.PhaseSounding, snap.Phase)
	require.Equal(t, domain.AlertID("42"), snap.Visible.ID)

	snap, err = client.DismissVisual(ctx)
	require.NoError(t, err)
	require.Nil(t, snap.Visible)
	require.Equal(t, 1, snap.ActiveCount)

	resolved, err := client.Resolve(ctx, "42")
	require.NoError(t, err)
	require.True(t, resolved)

	resolved, err = client.Resolve(ctx, "42")
	require.NoError(t, err)
	require.False(t, resolved)

	_, err = client.Trigger(ctx, domain.Payload{"alertId": "A1"})
	require.NoError(t, err)
	_, err = client.Trigger(ctx, domain.Payload{"alertId": "A2"})
	require.NoError(t, err)

	removed, err := client.StopAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, removed)
}

// TestServer_ResolveRequiresID ensures a missing ID is rejected.
func TestServer_ResolveRequiresID(t *testing.T) {
	t.Parallel()

	client := dialBufconn(t, newFakeService())

	_, err := client.Resolve(context.Background(), "")
	require.Equal(t, codes.InvalidArgument, status.Code(err))
}

// TestServer_TriggerValidation ensures a nil payload is rejected without a connection.
func TestServer_TriggerValidation(t *testing.T) {
	t.Parallel()

	_, err := NewServer(newFakeService()).Trigger(context.Background(), nil)
	require.Equal(t, codes.InvalidArgument, status.Code(err))
}

// TestServer_Watch streams snapshots until the client stops.
func TestServer_Watch(t *testing.T) {
	t.Parallel()

	svc := newFakeService()
	client := dialBufconn(t, svc)

	svc.updates <- domain.Snapshot{}
	svc.updates <- domain.Snapshot{HasActive: true, ActiveCount: 3, Phase: domain.PhaseSilent, SilentPeriod: true}

	var got []*domain.Snapshot

	errStop := errors.New("enough")

	err := client.Watch(context.Background(), func(s *domain.Snapshot) error {
		got = append(got, s)
		if len(got) == 2 {
			return errStop
		}

		return nil
	})
	require.ErrorIs(t, err, errStop)
	require.Len(t, got, 2)
	require.False(t, got[0].HasActive)
	require.Equal(t, 3, got[1].ActiveCount)
	require.Equal(t, domain.PhaseSilent, got[1].Phase)
}

// TestActorMetadata verifies the actor survives the metadata round trip.
func TestActorMetadata(t *testing.T) {
	t.Parallel()

	require.Nil(t, ActorFromIncoming(context.Background()))

	actor := &domain.Actor{Hostname: "tower-2", Username: "guard"}

	md, ok := metadata.FromOutgoingContext(WithOutgoingActor(context.Background(), actor))
	require.True(t, ok)

	incoming := metadata.NewIncomingContext(context.Background(), md)
	require.Equal(t, actor, ActorFromIncoming(incoming))
}
