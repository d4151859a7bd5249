// Package playback wraps the single audio output used by the siren.
//
// Engine provides idempotent Start/Stop over a Device and records whether the
// siren is actually sounding. Device failures are logged, never returned.
// The Speaker device decodes a WAV asset with beep and loops it through the
// system speaker; builds without cgo get a device that always reports
// ErrAudioUnavailable.
package playback
