package fileutil

import (
	"strings"
	"testing"
)

func TestSanitizeForFilename(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "recording", "recording"},
		{"spaces collapse", "my  cool   clip", "my-cool-clip"},
		{"illegal chars collapse to hyphens", `a/b\c:d*e?f"g<h>i|j`, "a-b-c-d-e-f-g-h-i-j"},
		{"empty", "", "audio"},
		{"only illegal", "///", "audio"},
		{"unicode kept", "café-loop", "café-loop"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeForFilename(tc.input); got != tc.want {
				t.Errorf("SanitizeForFilename(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestSanitizeForFilename_CapsLength(t *testing.T) {
	long := strings.Repeat("x", 200)
	if got := SanitizeForFilename(long); len(got) > 50 {
		t.Errorf("expected cap at 50 bytes, got %d", len(got))
	}
}
