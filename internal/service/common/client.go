//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	api "github.com/oshokin/escape-alarm/internal/api/grpc/alarm"
	"github.com/oshokin/escape-alarm/internal/config"
	"github.com/oshokin/escape-alarm/internal/domain/alarm"
)

// Client wraps the AlarmEngine gRPC client with convenience helpers.
type Client struct {
	// conn is the underlying gRPC connection to the alarm engine.
	conn *grpc.ClientConn
	// api is the typed AlarmEngine client.
	api *api.AlarmEngineClient
	// actor identifies the operator on every call.
	actor *alarm.Actor

	// callTimeout is the default timeout for individual RPC calls.
	callTimeout time.Duration
	// dialOptions are passed to grpc.NewClient.
	dialOptions []grpc.DialOption
}

// Option configures client behaviour.
type Option func(*Client)

// WithCallTimeout sets a default timeout for service calls.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.callTimeout = timeout
		}
	}
}

// WithActor sets the operator sent with every call.
func WithActor(actor *alarm.Actor) Option {
	return func(c *Client) {
		c.actor = actor.Clone()
	}
}

// WithDialOptions appends gRPC dial options, e.g. a custom dialer in tests.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(c *Client) {
		c.dialOptions = append(c.dialOptions, opts...)
	}
}

var (
	// errAddressRequired is returned when a required address value is missing.
	errAddressRequired = errors.New("address must be provided")
	// errActorRequired is returned when an actor is not provided but is required for the operation.
	errActorRequired = errors.New("actor must be provided")
)

// Dial establishes a gRPC connection to the alarm engine.
// Note: this uses insecure transport credentials; deploy on a trusted network
// or terminate TLS in a proxy until native TLS is added.
func Dial(_ context.Context, address string, opts ...Option) (*Client, error) {
	if address == "" {
		return nil, errAddressRequired
	}

	client := &Client{
		callTimeout: config.DefaultTimeout,
		dialOptions: []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())},
	}

	for _, opt := range opts {
		opt(client)
	}

	// Use the non-context NewClient API recommended by grpc-go
	// (DialContext is deprecated as of grpc-go v1.60+).
	conn, err := grpc.NewClient(address, client.dialOptions...)
	if err != nil {
		return nil, fmt.Errorf("dial alarm engine: %w", err)
	}

	client.conn = conn
	client.api = api.NewAlarmEngineClient(conn)

	return client, nil
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}

	return c.conn.Close()
}

// Trigger raises an alarm on the engine.
func (c *Client) Trigger(ctx context.Context, payload alarm.Payload) (*alarm.Record, error) {
	callCtx, cancel, err := c.callContext(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	rec, err := c.api.Trigger(callCtx, payload)
	if err != nil {
		return nil, fmt.Errorf("trigger alarm: %w", err)
	}

	return rec, nil
}

// Resolve resolves one alarm and reports whether it was active.
func (c *Client) Resolve(ctx context.Context, id alarm.AlertID) (bool, error) {
	callCtx, cancel, err := c.callContext(ctx)
	if err != nil {
		return false, err
	}
	defer cancel()

	resolved, err := c.api.Resolve(callCtx, id)
	if err != nil {
		return false, fmt.Errorf("resolve alarm: %w", err)
	}

	return resolved, nil
}

// DismissVisual hides the visible alarm.
func (c *Client) DismissVisual(ctx context.Context) (*alarm.Snapshot, error) {
	callCtx, cancel, err := c.callContext(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	snapshot, err := c.api.DismissVisual(callCtx)
	if err != nil {
		return nil, fmt.Errorf("dismiss alarm: %w", err)
	}

	return snapshot, nil
}

// StopAll clears every alarm and returns how many were removed.
func (c *Client) StopAll(ctx context.Context) (int, error) {
	callCtx, cancel, err := c.callContext(ctx)
	if err != nil {
		return 0, err
	}
	defer cancel()

	removed, err := c.api.StopAll(callCtx)
	if err != nil {
		return 0, fmt.Errorf("stop all alarms: %w", err)
	}

	return removed, nil
}

// Snapshot retrieves the current engine state.
func (c *Client) Snapshot(ctx context.Context) (*alarm.Snapshot, error) {
	callCtx, cancel, err := c.callContext(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	snapshot, err := c.api.GetSnapshot(callCtx)
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}

	return snapshot, nil
}

// Watch streams snapshots to fn until ctx ends. The call timeout does not apply.
func (c *Client) Watch(ctx context.Context, fn func(*alarm.Snapshot) error) error {
	if c.actor == nil {
		return errActorRequired
	}

	err := c.api.Watch(api.WithOutgoingActor(ctx, c.actor), fn)
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("watch alarms: %w", err)
	}

	return nil
}

// callContext attaches the actor and the client's call timeout if configured,
// otherwise returns a cancellable child context without a deadline.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if c.actor == nil {
		return nil, nil, errActorRequired
	}

	ctx = api.WithOutgoingActor(ctx, c.actor)

	if c.callTimeout <= 0 {
		ctx, cancel := context.WithCancel(ctx)
		return ctx, cancel, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)

	return ctx, cancel, nil
}
