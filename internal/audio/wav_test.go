package audio

import (
	"strings"
	"testing"
	"time"
)

func TestWrapPCM_RoundTripHeader(t *testing.T) {
	// One second of silence: 44100 frames * 2 bytes, mono.
	pcm := make([]byte, DefaultSampleRate*2)
	wav, err := WrapPCM(pcm, DefaultSampleRate, DefaultChannels)
	if err != nil {
		t.Fatalf("WrapPCM: %v", err)
	}
	if err := ValidateWAV(wav); err != nil {
		t.Fatalf("ValidateWAV: %v", err)
	}
	if len(wav) != 44+len(pcm) {
		t.Errorf("expected %d bytes, got %d", 44+len(pcm), len(wav))
	}

	secs, err := WAVDuration(wav)
	if err != nil {
		t.Fatalf("WAVDuration: %v", err)
	}
	if secs < 0.999 || secs > 1.001 {
		t.Errorf("expected ~1s duration, got %f", secs)
	}
}

func TestWrapPCM_Rejects(t *testing.T) {
	tests := []struct {
		name       string
		pcm        []byte
		sampleRate int
		channels   int
		wantSubstr string
	}{
		{"empty payload", nil, 44100, 1, "empty"},
		{"zero sample rate", []byte{0, 0}, 0, 1, "sample rate"},
		{"zero channels", []byte{0, 0}, 44100, 0, "channel"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := WrapPCM(tt.pcm, tt.sampleRate, tt.channels)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantSubstr) {
				t.Errorf("error %q should mention %q", err, tt.wantSubstr)
			}
		})
	}
}

func TestValidateWAV_Garbage(t *testing.T) {
	if err := ValidateWAV([]byte("not a wav")); err == nil {
		t.Error("expected error for short payload")
	}
	bad := make([]byte, 64)
	copy(bad, "RIFFxxxxNOPE")
	if err := ValidateWAV(bad); err == nil {
		t.Error("expected error for wrong format tag")
	}
}

func TestProbeDuration_WAV(t *testing.T) {
	pcm := make([]byte, DefaultSampleRate) // half a second, mono 16-bit
	wav, err := WrapPCM(pcm, DefaultSampleRate, DefaultChannels)
	if err != nil {
		t.Fatalf("WrapPCM: %v", err)
	}
	d, err := ProbeDuration(wav, "audio/wav")
	if err != nil {
		t.Fatalf("ProbeDuration: %v", err)
	}
	want := 500 * time.Millisecond
	if d < want-time.Millisecond || d > want+time.Millisecond {
		t.Errorf("expected ~%v, got %v", want, d)
	}
}

func TestProbeDuration_UnknownType(t *testing.T) {
	if _, err := ProbeDuration([]byte{1}, "audio/ogg"); err == nil {
		t.Error("expected error for unprobeable type")
	}
}

func TestProbeDuration_BadMP3(t *testing.T) {
	if _, err := ProbeDuration([]byte("definitely not mpeg frames"), "audio/mpeg"); err == nil {
		t.Error("expected decode error for garbage mp3 payload")
	}
}
