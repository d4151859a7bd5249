package alarm

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	domain "github.com/oshokin/escape-alarm/internal/domain/alarm"
	"github.com/oshokin/escape-alarm/internal/logger"
)

// Service abstracts the engine operations the transport layer depends on.
type Service interface {
	Trigger(ctx context.Context, payload domain.Payload) *domain.Record
	DismissVisual(ctx context.Context)
	Resolve(ctx context.Context, id domain.AlertID) bool
	StopAll(ctx context.Context) int
	Snapshot() domain.Snapshot
	Subscribe() (<-chan domain.Snapshot, func())
}

// Server implements the AlarmEngine gRPC API.
type Server struct {
	// service provides the alarm engine.
	service Service
}

var _ AlarmEngineServer = (*Server)(nil)

// NewServer wires the provided engine into a gRPC handler.
func NewServer(service Service) *Server {
	return &Server{
		service: service,
	}
}

// Trigger raises an alarm from the payload.
func (s *Server) Trigger(ctx context.Context, payload *structpb.Struct) (*structpb.Struct, error) {
	if payload == nil {
		return nil, status.Error(codes.InvalidArgument, "payload is required")
	}

	ctx = withActor(ctx)

	rec := s.service.Trigger(ctx, domain.Payload(payload.AsMap()))
	if rec == nil {
		return nil, status.Error(codes.Unavailable, "engine is shutting down")
	}

	out, err := RecordToStruct(rec)
	if err != nil {
		return nil, status.Error(codes.Internal, "unable to encode record")
	}

	return out, nil
}

// DismissVisual hides the visible alarm.
func (s *Server) DismissVisual(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	s.service.DismissVisual(withActor(ctx))

	return s.snapshot()
}

// Resolve removes the alarm named by alert_id.
func (s *Server) Resolve(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, ok := domain.Payload(req.AsMap()).ID()
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "alert_id is required")
	}

	resolved := s.service.Resolve(withActor(ctx), id)

	return structpb.NewStruct(map[string]any{
		"alert_id": string(id),
		"resolved": resolved,
	})
}

// StopAll clears every alarm.
func (s *Server) StopAll(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	removed := s.service.StopAll(withActor(ctx))

	return structpb.NewStruct(map[string]any{
		"removed": removed,
	})
}

// GetSnapshot returns the current snapshot.
func (s *Server) GetSnapshot(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return s.snapshot()
}

// Watch streams every published snapshot, starting with the current one.
func (s *Server) Watch(_ *emptypb.Empty, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	ctx := withActor(stream.Context())

	updates, cancel := s.service.Subscribe()
	defer cancel()

	logger.Debug(ctx, "Watch stream opened")

	for {
		select {
		case <-ctx.Done():
			return nil
		case snapshot, ok := <-updates:
			if !ok {
				return status.Error(codes.Unavailable, "engine is shutting down")
			}

			out, err := SnapshotToStruct(&snapshot)
			if err != nil {
				return status.Error(codes.Internal, "unable to encode snapshot")
			}

			if err = stream.Send(out); err != nil {
				return err
			}
		}
	}
}

// snapshot encodes the current engine snapshot.
func (s *Server) snapshot() (*structpb.Struct, error) {
	snapshot := s.service.Snapshot()

	out, err := SnapshotToStruct(&snapshot)
	if err != nil {
		return nil, status.Error(codes.Internal, "unable to encode snapshot")
	}

	return out, nil
}

// withActor tags the context logger with the calling operator, if known.
func withActor(ctx context.Context) context.Context {
	if actor := ActorFromIncoming(ctx); actor != nil {
		return logger.WithKV(ctx, "actor", actor.String())
	}

	return ctx
}
