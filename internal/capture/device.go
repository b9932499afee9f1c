// Package capture owns the lifecycle of one microphone acquisition: acquire
// an exclusive audio-input stream, buffer its chunks in arrival order, and
// finalize them into a submittable asset.
package capture

import (
	"context"
	"errors"
)

// Device grants exclusive access to an audio-input stream. Acquire blocks
// (honoring ctx) until the stream is granted or refused; a refused grant is
// reported as ErrDeviceAccessDenied by the session.
type Device interface {
	Acquire(ctx context.Context) (Stream, error)
}

// Stream is one granted input stream. Chunks delivers raw PCM fragments in
// arrival order and is closed when the stream ends. Close releases the
// underlying device; it must be safe to call more than once.
type Stream interface {
	Chunks() <-chan []byte
	Close() error
}

var (
	// ErrDeviceAccessDenied means device acquisition was refused or the
	// device is unavailable. Recoverable; the session returns to Idle.
	ErrDeviceAccessDenied = errors.New("audio input device unavailable")

	// ErrAlreadyRecording means Start was called while a session is active.
	// Overlapping starts are rejected, never layered.
	ErrAlreadyRecording = errors.New("recording already in progress")

	// ErrNoAudioCaptured means Stop found an empty chunk buffer, so no
	// asset could be built. The device is still released.
	ErrNoAudioCaptured = errors.New("no audio captured")
)

// AdvisoryDeviceDenied is the user-visible message for ErrDeviceAccessDenied.
const AdvisoryDeviceDenied = "Microphone access was denied or no input device is available."
