package audio

import (
	"bytes"
	"fmt"
	"time"

	"github.com/hajimehoshi/go-mp3"
)

// ProbeDuration inspects an audio payload and returns its play time. The
// container is picked by MIME type: WAV durations come from header math,
// MP3 durations from a go-mp3 decode of the frame stream. Unknown types and
// undecodable payloads return an error; callers treat that as "duration
// unknown" rather than a failure.
func ProbeDuration(data []byte, mimeType string) (time.Duration, error) {
	switch mimeType {
	case "audio/wav", "audio/x-wav":
		secs, err := WAVDuration(data)
		if err != nil {
			return 0, err
		}
		return time.Duration(secs * float64(time.Second)), nil
	case "audio/mpeg":
		return mp3Duration(data)
	default:
		return 0, fmt.Errorf("cannot probe duration of %q", mimeType)
	}
}

// mp3Duration decodes the MP3 frame stream to learn its uncompressed length.
// go-mp3 always yields 16-bit stereo output, so 4 bytes per sample frame.
func mp3Duration(data []byte) (time.Duration, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("decode mp3: %w", err)
	}
	if dec.SampleRate() <= 0 {
		return 0, fmt.Errorf("decode mp3: invalid sample rate %d", dec.SampleRate())
	}
	frames := dec.Length() / 4
	secs := float64(frames) / float64(dec.SampleRate())
	return time.Duration(secs * float64(time.Second)), nil
}
