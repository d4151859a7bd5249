package playback

import (
	"context"

	"github.com/oshokin/escape-alarm/internal/logger"
)

// Device is an audio output able to loop the siren.
type Device interface {
	// Play starts looped playback from the beginning of the asset.
	Play(ctx context.Context) error
	// Halt stops playback and discards the playback position.
	Halt()
}

// FailureObserver is told about every failed start.
type FailureObserver func(err error)

// Engine drives a Device with idempotent start/stop semantics.
// It is not safe for concurrent use; its owner serialises access.
type Engine struct {
	// device is the audio output.
	device Device
	// playing reports whether the device accepted the last Play.
	playing bool
	// onFailure is invoked when Play fails.
	onFailure FailureObserver
}

// Option configures the engine.
type Option func(*Engine)

// WithFailureObserver registers a callback for failed starts.
func WithFailureObserver(fn FailureObserver) Option {
	return func(e *Engine) {
		e.onFailure = fn
	}
}

// NewEngine creates an engine over the provided device.
func NewEngine(device Device, opts ...Option) *Engine {
	e := &Engine{device: device}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Start begins looped playback, halting any previous playback first.
// A failing device leaves the engine not playing.
func (e *Engine) Start(ctx context.Context) {
	if e.playing {
		e.device.Halt()
		e.playing = false
	}

	if err := e.device.Play(ctx); err != nil {
		logger.WarnKV(ctx, "Siren playback failed", "error", err)

		if e.onFailure != nil {
			e.onFailure(err)
		}

		return
	}

	e.playing = true

	logger.Debug(ctx, "Siren playback started")
}

// Stop halts playback. Calling it while idle is a no-op.
func (e *Engine) Stop(ctx context.Context) {
	if !e.playing {
		return
	}

	e.device.Halt()
	e.playing = false

	logger.Debug(ctx, "Siren playback stopped")
}

// IsPlaying reports whether the siren is sounding.
func (e *Engine) IsPlaying() bool {
	return e.playing
}
