//go:build cgo

package playback

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/gopxl/beep/v2/wav"
)

// speakerBufferDuration is the latency of the speaker mixer.
const speakerBufferDuration = 100 * time.Millisecond

// errEmptyAsset is returned for a siren file without samples.
var errEmptyAsset = errors.New("siren asset has no samples")

// Speaker loops a decoded WAV siren through the system speaker.
type Speaker struct {
	// buffer holds the decoded siren samples.
	buffer *beep.Buffer
	// volume is the gain exponent for effects.Volume (base 2).
	volume float64

	// mu guards ctrl.
	mu sync.Mutex
	// ctrl is the currently queued streamer, nil when halted.
	ctrl *beep.Ctrl
}

// NewSpeaker decodes the siren asset, initialises the speaker and returns a device.
// volume is linear in the (0, 1] range.
func NewSpeaker(path string, volume float64) (*Speaker, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open siren asset: %w", err)
	}

	streamer, format, err := wav.Decode(f)
	if err != nil {
		_ = f.Close()

		return nil, fmt.Errorf("decode siren asset: %w", err)
	}

	defer func() {
		_ = streamer.Close()
	}()

	buffer := beep.NewBuffer(format)
	buffer.Append(streamer)

	if buffer.Len() == 0 {
		return nil, errEmptyAsset
	}

	if err = speaker.Init(format.SampleRate, format.SampleRate.N(speakerBufferDuration)); err != nil {
		return nil, fmt.Errorf("initialise speaker: %w", err)
	}

	return &Speaker{
		buffer: buffer,
		volume: math.Log2(volume),
	}, nil
}

// Play queues the siren from its first sample, looping forever.
func (s *Speaker) Play(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	looped := beep.Loop(-1, s.buffer.Streamer(0, s.buffer.Len()))

	s.ctrl = &beep.Ctrl{
		Streamer: &effects.Volume{
			Streamer: looped,
			Base:     2,
			Volume:   s.volume,
		},
	}

	speaker.Play(s.ctrl)

	return nil
}

// Halt removes the siren from the mixer.
func (s *Speaker) Halt() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctrl == nil {
		return
	}

	speaker.Lock()
	s.ctrl.Paused = true
	s.ctrl.Streamer = nil
	speaker.Unlock()

	speaker.Clear()

	s.ctrl = nil
}

// Close releases the speaker.
func (s *Speaker) Close() error {
	s.Halt()
	speaker.Close()

	return nil
}
