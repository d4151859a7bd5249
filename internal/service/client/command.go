package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/oshokin/escape-alarm/internal/config"
	"github.com/oshokin/escape-alarm/internal/domain/alarm"
	"github.com/oshokin/escape-alarm/internal/indicator"
	"github.com/oshokin/escape-alarm/internal/logger"
	"github.com/oshokin/escape-alarm/internal/service/common"
)

const (
	// defaultPushInterval defines retry delay when pushing a trigger to the engine.
	defaultPushInterval = 1 * time.Second
	// loggerName tags operator command logs.
	loggerName = "escape-alarm-client"
)

var (
	// errFieldFormat is returned for --field values without '='.
	errFieldFormat = errors.New("field must be key=value")
	// errPayloadNotObject is returned when --payload is not a JSON object.
	errPayloadNotObject = errors.New("payload must be a JSON object")
)

// Options configures how operator commands reach the engine.
type Options struct {
	// ConfigPath to YAML settings file, defaults to standard filename if empty.
	ConfigPath string
	// ServerAddress overrides the gRPC address from config when specified.
	ServerAddress string
	// Output receives the printed results; os.Stdout when nil.
	Output io.Writer
}

// Engine is the engine API used by the operator commands.
type Engine interface {
	indicator.Watcher
	Trigger(ctx context.Context, payload alarm.Payload) (*alarm.Record, error)
	Resolve(ctx context.Context, id alarm.AlertID) (bool, error)
	Snapshot(ctx context.Context) (*alarm.Snapshot, error)
	Close() error
}

// Runner executes operator commands over one engine connection.
type Runner struct {
	// client is the connected engine client.
	client Engine
	// out receives results.
	out io.Writer
}

// Connect loads settings, detects the actor and dials the engine.
func Connect(ctx context.Context, opts *Options) (*Runner, error) {
	ctx = logger.WithName(ctx, loggerName)

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	// Use server address from options if provided, otherwise use config.
	serverAddress := cfg.GRPCAddress
	if opts.ServerAddress != "" {
		serverAddress = opts.ServerAddress
	}

	// Identify current user and hostname for audit logging.
	actor, err := common.DetectActor()
	if err != nil {
		return nil, fmt.Errorf("detect actor: %w", err)
	}

	client, err := common.Dial(ctx, serverAddress,
		common.WithCallTimeout(cfg.Timeout),
		common.WithActor(actor),
	)
	if err != nil {
		return nil, fmt.Errorf("dial server: %w", err)
	}

	logger.DebugKV(ctx, "Connected to engine", "server_address", serverAddress, "actor", actor.String())

	return NewRunner(client, opts.Output), nil
}

// NewRunner wraps an existing client.
func NewRunner(client Engine, out io.Writer) *Runner {
	if out == nil {
		out = os.Stdout
	}

	return &Runner{client: client, out: out}
}

// Close releases the connection.
func (r *Runner) Close() error {
	return r.client.Close()
}

// Trigger raises an alarm. With retry it keeps pushing every second until
// the engine accepts it or ctx ends. A retried payload without an ID gets one
// up front, so an attempt that reached the engine but timed out is replaced
// rather than duplicated.
func (r *Runner) Trigger(ctx context.Context, payload alarm.Payload, retry bool) error {
	ctx = logger.WithName(ctx, loggerName)

	if _, ok := payload.ID(); retry && !ok {
		payload = payload.Clone()
		if payload == nil {
			payload = make(alarm.Payload)
		}

		payload["alert_id"] = strconv.FormatInt(time.Now().UnixMilli(), 10)
	}

	// attempt tries once to raise the alarm, returns (completed, error).
	attempt := func() (bool, error) {
		rec, err := r.client.Trigger(ctx, payload)
		if err != nil {
			if !retry {
				return false, err
			}

			// Log error but continue retrying for transient failures.
			logger.ErrorKV(ctx, "Trigger failed, retrying", "error", err)

			return false, nil
		}

		fmt.Fprintf(r.out, "Alarm %s raised\n", rec.ID)

		return true, nil
	}

	// Attempt immediately before starting retry loop.
	if done, err := attempt(); err != nil || done {
		return err
	}

	ticker := time.NewTicker(defaultPushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			done, err := attempt()
			if err != nil {
				return err
			}

			if done {
				return nil
			}
		}
	}
}

// Resolve resolves one alarm.
func (r *Runner) Resolve(ctx context.Context, id alarm.AlertID) error {
	resolved, err := r.client.Resolve(ctx, id)
	if err != nil {
		return err
	}

	if resolved {
		fmt.Fprintf(r.out, "Alarm %s resolved\n", id)
	} else {
		fmt.Fprintf(r.out, "Alarm %s is not active\n", id)
	}

	return nil
}

// Dismiss hides the visible alarm and prints the new state.
func (r *Runner) Dismiss(ctx context.Context) error {
	snapshot, err := r.client.DismissVisual(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintln(r.out, FormatSnapshot(snapshot))

	return nil
}

// StopAll clears every alarm.
func (r *Runner) StopAll(ctx context.Context) error {
	removed, err := r.client.StopAll(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(r.out, "Stopped %d alarm(s)\n", removed)

	return nil
}

// Status prints the current state, as JSON when asJSON is set.
func (r *Runner) Status(ctx context.Context, asJSON bool) error {
	snapshot, err := r.client.Snapshot(ctx)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(r.out)
		enc.SetIndent("", "  ")

		return enc.Encode(snapshot)
	}

	fmt.Fprintln(r.out, FormatSnapshot(snapshot))

	return nil
}

// Watch shows the interactive indicator, or prints one line per snapshot
// when plain is set.
func (r *Runner) Watch(ctx context.Context, plain bool) error {
	if !plain {
		return indicator.Run(ctx, r.client)
	}

	return r.client.Watch(ctx, func(s *alarm.Snapshot) error {
		_, err := fmt.Fprintf(r.out, "%s %s\n", s.UpdatedAt.Local().Format(time.TimeOnly), FormatSnapshot(s))
		return err
	})
}

// FormatSnapshot renders a snapshot as one readable line.
func FormatSnapshot(s *alarm.Snapshot) string {
	if s == nil {
		return "<nil snapshot>"
	}

	parts := []string{s.Status()}

	if s.HasActive {
		parts = append(parts, fmt.Sprintf("%d active", s.ActiveCount))
	}

	if s.Visible != nil {
		parts = append(parts, "showing "+string(s.Visible.ID))
	}

	return strings.Join(parts, " | ")
}

// ParsePayload builds a trigger payload from a JSON object, key=value fields
// and an optional alert ID, applied in that order.
func ParsePayload(raw string, fields []string, id string) (alarm.Payload, error) {
	payload := make(alarm.Payload)

	if strings.TrimSpace(raw) != "" {
		dec := json.NewDecoder(strings.NewReader(raw))
		dec.UseNumber()

		var decoded any
		if err := dec.Decode(&decoded); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}

		obj, ok := decoded.(map[string]any)
		if !ok {
			return nil, errPayloadNotObject
		}

		for k, v := range obj {
			payload[k] = normalizeNumber(v)
		}
	}

	for _, field := range fields {
		key, value, ok := strings.Cut(field, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: %q", errFieldFormat, field)
		}

		payload[key] = value
	}

	if id != "" {
		payload["alert_id"] = id
	}

	return payload, nil
}

// normalizeNumber turns json.Number into int64 or float64 so the payload can
// be encoded as a protobuf Struct.
func normalizeNumber(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}

	if i, err := n.Int64(); err == nil {
		return i
	}

	f, _ := n.Float64()

	return f
}
