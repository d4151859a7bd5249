package playback

import (
	"context"
	"errors"
	"fmt"
)

// ErrAudioUnavailable is returned when no audio output can be used.
var ErrAudioUnavailable = errors.New("audio output unavailable")

// Unavailable is a device that refuses to play, keeping the engine silent.
// It stands in for the speaker when the asset or the audio backend is missing.
type Unavailable struct {
	// Reason explains why audio is unavailable.
	Reason error
}

// Play always fails with ErrAudioUnavailable wrapping the reason.
func (u Unavailable) Play(context.Context) error {
	if u.Reason == nil {
		return ErrAudioUnavailable
	}

	return fmt.Errorf("%w: %w", ErrAudioUnavailable, u.Reason)
}

// Halt is a no-op.
func (Unavailable) Halt() {}
