package alarm

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	domain "github.com/oshokin/escape-alarm/internal/domain/alarm"
)

// AlarmEngineClient is a typed client over a gRPC connection.
type AlarmEngineClient struct {
	// cc is the connection used for calls.
	cc grpc.ClientConnInterface
}

// NewAlarmEngineClient wraps the connection.
func NewAlarmEngineClient(cc grpc.ClientConnInterface) *AlarmEngineClient {
	return &AlarmEngineClient{cc: cc}
}

// Trigger raises an alarm and returns the stored record.
func (c *AlarmEngineClient) Trigger(ctx context.Context, payload domain.Payload, opts ...grpc.CallOption) (*domain.Record, error) {
	in, err := structpb.NewStruct(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	out := new(structpb.Struct)
	if err = c.cc.Invoke(ctx, MethodTrigger, in, out, opts...); err != nil {
		return nil, err
	}

	return RecordFromStruct(out)
}

// DismissVisual hides the visible alarm and returns the new snapshot.
func (c *AlarmEngineClient) DismissVisual(ctx context.Context, opts ...grpc.CallOption) (*domain.Snapshot, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodDismissVisual, new(emptypb.Empty), out, opts...); err != nil {
		return nil, err
	}

	return SnapshotFromStruct(out)
}

// Resolve removes the alarm and reports whether it was active.
func (c *AlarmEngineClient) Resolve(ctx context.Context, id domain.AlertID, opts ...grpc.CallOption) (bool, error) {
	in, err := structpb.NewStruct(map[string]any{"alert_id": string(id)})
	if err != nil {
		return false, fmt.Errorf("encode request: %w", err)
	}

	out := new(structpb.Struct)
	if err = c.cc.Invoke(ctx, MethodResolve, in, out, opts...); err != nil {
		return false, err
	}

	return out.GetFields()["resolved"].GetBoolValue(), nil
}

// StopAll clears every alarm and returns how many were removed.
func (c *AlarmEngineClient) StopAll(ctx context.Context, opts ...grpc.CallOption) (int, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodStopAll, new(emptypb.Empty), out, opts...); err != nil {
		return 0, err
	}

	return int(out.GetFields()["removed"].GetNumberValue()), nil
}

// GetSnapshot returns the current snapshot.
func (c *AlarmEngineClient) GetSnapshot(ctx context.Context, opts ...grpc.CallOption) (*domain.Snapshot, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodGetSnapshot, new(emptypb.Empty), out, opts...); err != nil {
		return nil, err
	}

	return SnapshotFromStruct(out)
}

// Watch calls fn for every streamed snapshot until ctx ends, the server
// closes the stream or fn returns an error.
func (c *AlarmEngineClient) Watch(
	ctx context.Context,
	fn func(*domain.Snapshot) error,
	opts ...grpc.CallOption,
) error {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], MethodWatch, opts...)
	if err != nil {
		return err
	}

	typed := &grpc.GenericClientStream[emptypb.Empty, structpb.Struct]{ClientStream: stream}

	if err = typed.SendMsg(new(emptypb.Empty)); err != nil {
		return err
	}

	if err = typed.CloseSend(); err != nil {
		return err
	}

	for {
		msg, recvErr := typed.Recv()
		if errors.Is(recvErr, io.EOF) {
			return nil
		}

		if recvErr != nil {
			return recvErr
		}

		snapshot, decodeErr := SnapshotFromStruct(msg)
		if decodeErr != nil {
			return decodeErr
		}

		if err = fn(snapshot); err != nil {
			return err
		}
	}
}
