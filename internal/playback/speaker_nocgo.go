//go:build !cgo

package playback

import "context"

// Speaker is a stub used when the binary is built without cgo.
// Audio output needs the platform backends beep links through cgo.
type Speaker struct{}

// NewSpeaker always fails without cgo.
func NewSpeaker(string, float64) (*Speaker, error) {
	return nil, ErrAudioUnavailable
}

// Play always fails without cgo.
func (*Speaker) Play(context.Context) error {
	return ErrAudioUnavailable
}

// Halt is a no-op without cgo.
func (*Speaker) Halt() {}

// Close is a no-op without cgo.
func (*Speaker) Close() error {
	return nil
}
