// Package asset builds and owns submittable audio assets. An Asset is the
// uniform descriptor for user audio regardless of origin: an uploaded file or
// a finalized recording. At most one Asset is "current" for the compose
// surface at a time; see Slot.
package asset

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Accepted MIME types for uploads and recording finalization. x-wav is the
// legacy alias some browsers and tools report for the WAV container.
const (
	MIMEMpeg = "audio/mpeg"
	MIMEWav  = "audio/wav"
	MIMEXWav = "audio/x-wav"
)

// RecordingName is the generated name given to finalized recordings.
const RecordingName = "recording.wav"

// ErrInvalidAssetType is returned when the selected or recorded audio is
// outside the accepted MIME set. Rejected before any Asset exists.
var ErrInvalidAssetType = errors.New("unsupported audio type")

// AdvisoryInvalidType is the user-visible message for ErrInvalidAssetType.
const AdvisoryInvalidType = "Please upload a .wav or .mp3 file."

// Asset is a finalized, submittable audio payload plus metadata.
type Asset struct {
	ID       string
	Name     string
	MIMEType string
	Data     []byte

	// Preview is the ephemeral locator for local playback. Nil until
	// materialized; released when the asset is superseded or cleared.
	Preview *Preview
}

// ValidMIMEType reports whether m is in the accepted set.
func ValidMIMEType(m string) bool {
	switch m {
	case MIMEMpeg, MIMEWav, MIMEXWav:
		return true
	}
	return false
}

// New validates the MIME type and wraps the payload into an Asset. The
// returned Asset has no preview yet; the Slot materializes one when the
// asset becomes current.
func New(name, mimeType string, data []byte) (*Asset, error) {
	if !ValidMIMEType(mimeType) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAssetType, mimeType)
	}
	if name == "" {
		name = RecordingName
	}
	return &Asset{
		ID:       uuid.NewString(),
		Name:     name,
		MIMEType: mimeType,
		Data:     data,
	}, nil
}

// FromRecording wraps a finalized recording payload. Recordings always carry
// the generated name and the WAV container type.
func FromRecording(data []byte) *Asset {
	a, _ := New(RecordingName, MIMEWav, data)
	return a
}
