// Package audio holds the small amount of container-level audio handling the
// daemon needs: wrapping captured PCM into a WAV container and probing
// durations of local assets for playback.
package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Capture format delivered by the device bridge. The gateway negotiates the
// stream as mono 16-bit PCM at 44.1 kHz; finalized recordings are labeled
// audio/wav accordingly.
const (
	DefaultSampleRate = 44100
	DefaultChannels   = 1
	bitsPerSample     = 16
	headerSize        = 44
)

// wavHeader is the canonical 44-byte RIFF/WAVE PCM header.
type wavHeader struct {
	ChunkID       [4]byte
	ChunkSize     uint32
	Format        [4]byte
	Subchunk1ID   [4]byte
	Subchunk1Size uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte
	Subchunk2Size uint32
}

// WrapPCM wraps raw 16-bit little-endian PCM bytes in a WAV container.
func WrapPCM(pcm []byte, sampleRate, channels int) ([]byte, error) {
	if len(pcm) == 0 {
		return nil, fmt.Errorf("cannot wrap empty PCM payload")
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("channel count must be positive, got %d", channels)
	}

	dataSize := uint32(len(pcm))
	hdr := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     uint32(headerSize-8) + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1, // PCM
		NumChannels:   uint16(channels),
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate * channels * bitsPerSample / 8),
		BlockAlign:    uint16(channels * bitsPerSample / 8),
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	buf := bytes.NewBuffer(make([]byte, 0, headerSize+len(pcm)))
	if err := binary.Write(buf, binary.LittleEndian, hdr); err != nil {
		return nil, fmt.Errorf("write WAV header: %w", err)
	}
	buf.Write(pcm)
	return buf.Bytes(), nil
}

// ValidateWAV performs a cheap header check without touching the sample data.
func ValidateWAV(data []byte) error {
	if len(data) < headerSize {
		return fmt.Errorf("WAV data too short: need at least %d bytes, got %d", headerSize, len(data))
	}
	if string(data[0:4]) != "RIFF" {
		return fmt.Errorf("invalid WAV file: missing RIFF header")
	}
	if string(data[8:12]) != "WAVE" {
		return fmt.Errorf("invalid WAV file: missing WAVE format")
	}
	if string(data[12:16]) != "fmt " {
		return fmt.Errorf("invalid WAV file: missing fmt chunk")
	}
	if string(data[36:40]) != "data" {
		return fmt.Errorf("invalid WAV file: missing data chunk")
	}
	return nil
}

// WAVDuration returns the play time of a PCM WAV payload in seconds.
func WAVDuration(data []byte) (float64, error) {
	if err := ValidateWAV(data); err != nil {
		return 0, err
	}
	sampleRate := binary.LittleEndian.Uint32(data[24:28])
	blockAlign := binary.LittleEndian.Uint16(data[32:34])
	dataSize := binary.LittleEndian.Uint32(data[40:44])
	if sampleRate == 0 || blockAlign == 0 {
		return 0, fmt.Errorf("invalid WAV header: zero sample rate or block align")
	}
	frames := dataSize / uint32(blockAlign)
	return float64(frames) / float64(sampleRate), nil
}
