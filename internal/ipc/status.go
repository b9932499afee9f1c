package ipc

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// AssetInfo summarizes the current asset for the status surface. Payload
// bytes never leave the daemon; the preview locator is enough for a local
// renderer.
type AssetInfo struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	MIMEType       string  `json:"mime_type"`
	SizeBytes      int     `json:"size_bytes"`
	DurationSec    float64 `json:"duration_sec,omitempty"`
	PreviewLocator string  `json:"preview_locator,omitempty"`
}

// ResultInfo summarizes one search result for the status surface.
type ResultInfo struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	ScorePercent int    `json:"score_percent"`
	URL          string `json:"url"`
}

// PlaybackInfo summarizes one playback engine for the status surface. Bars
// carries the waveform magnitudes so renderers draw the same shape the
// daemon computed; FilledBars is how many of them read as played.
type PlaybackInfo struct {
	Locator     string    `json:"locator"`
	Playing     bool      `json:"playing"`
	PositionSec float64   `json:"position_sec"`
	DurationSec float64   `json:"duration_sec,omitempty"`
	Progress    float64   `json:"progress"` // fraction in [0,1]
	Bars        []float64 `json:"bars,omitempty"`
	FilledBars  int       `json:"filled_bars"`
}

// StatusSnapshot represents the complete daemon state at a point in time.
type StatusSnapshot struct {
	RecordingState string         `json:"recording_state"` // capture session state
	SearchStatus   string         `json:"search_status"`   // search request state
	RequestID      string         `json:"request_id,omitempty"`
	Results        []ResultInfo   `json:"results,omitempty"` // delivery order
	UsedFallback   bool           `json:"used_fallback"`
	Query          string         `json:"query,omitempty"`
	Asset          *AssetInfo     `json:"asset,omitempty"`
	Playback       []PlaybackInfo `json:"playback,omitempty"`
	Advisory       string         `json:"advisory,omitempty"` // last user-visible message
	LastError      string         `json:"last_error,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}

// StatusPath returns the status file location, ~/.cache/obi/status.json.
func StatusPath() string {
	return filepath.Join(os.Getenv("HOME"), ".cache", "obi", "status.json")
}

// WriteStatus persists the snapshot atomically so readers never observe a
// half-written file.
func WriteStatus(status *StatusSnapshot) error {
	if _, err := cacheDir(); err != nil {
		return err
	}
	return atomicWriteJSON(StatusPath(), status)
}

// ReadStatus loads the last written snapshot.
func ReadStatus() (*StatusSnapshot, error) {
	data, err := os.ReadFile(StatusPath())
	if err != nil {
		return nil, err
	}
	var status StatusSnapshot
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// atomicWriteJSON writes data to a file atomically using temp file + rename.
func atomicWriteJSON(path string, data interface{}) error {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, "status-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpFile != nil {
			tmpFile.Close()
			os.Remove(tmpPath)
		}
	}()

	encoder := json.NewEncoder(tmpFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return err
	}

	if err := tmpFile.Sync(); err != nil {
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	tmpFile = nil // Prevent defer cleanup

	return os.Rename(tmpPath, path)
}
