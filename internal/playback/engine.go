// Package playback models per-track playback state for result previews and
// the current asset: play/pause toggling, position tracking fed by an
// external clock source, and click-to-seek mapping against a rendered
// waveform.
package playback

import (
	"sync"
	"time"

	"github.com/obi-sound/obi-core/internal/diaglog"
	"github.com/obi-sound/obi-core/internal/events"
)

// Engine tracks one audio source. It holds no decoder; position updates
// come from whatever is actually rendering the audio, and the engine's job
// is to keep the observable state (playing flag, progress fraction)
// consistent under out-of-order updates.
type Engine struct {
	locator string

	mu          sync.Mutex
	playing     bool
	positionSec float64
	durationSec float64
	lastSeekAt  time.Time

	logger   *diaglog.Logger
	loggerMu sync.RWMutex
}

// NewEngine creates an Engine for the given source locator. Duration starts
// unknown; progress reads 0 until SetDuration is called.
func NewEngine(locator string) *Engine {
	return &Engine{locator: locator}
}

// SetLogger injects a diaglog.Logger for debug logging.
func (e *Engine) SetLogger(l *diaglog.Logger) {
	e.loggerMu.Lock()
	e.logger = l
	e.loggerMu.Unlock()
}

func (e *Engine) log(entry diaglog.LogEntry) {
	e.loggerMu.RLock()
	l := e.logger
	e.loggerMu.RUnlock()
	if l == nil {
		return
	}
	if entry.Component == "" {
		entry.Component = diaglog.ComponentPlayback
	}
	l.Log(entry)
}

// Locator returns the source locator this engine tracks.
func (e *Engine) Locator() string { return e.locator }

// Toggle flips between playing and paused and returns the new playing
// state. Toggling a track that previously ended starts it from the top;
// OnEnded already reset the position.
func (e *Engine) Toggle() bool {
	e.mu.Lock()
	e.playing = !e.playing
	playing := e.playing
	position := e.positionSec
	e.mu.Unlock()

	e.log(diaglog.LogEntry{
		Event:   diaglog.EventPlaybackToggle,
		Payload: map[string]interface{}{"locator": e.locator, "playing": playing},
	})
	events.Publish(events.TopicPlaybackState, events.PlaybackEventData{
		Locator:  e.locator,
		Playing:  playing,
		Position: position,
	})
	return playing
}

// Playing reports whether the track is currently playing.
func (e *Engine) Playing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playing
}

// SetDuration records the track duration once known (metadata load or a
// local probe). Non-positive values are ignored.
func (e *Engine) SetDuration(seconds float64) {
	if seconds <= 0 {
		return
	}
	e.mu.Lock()
	e.durationSec = seconds
	e.mu.Unlock()
}

// Duration returns the known duration in seconds, 0 while unknown.
func (e *Engine) Duration() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.durationSec
}

// OnPositionUpdate records a position observation from the renderer.
// Updates are dropped while the duration is unknown, and observations made
// before the most recent seek are stale and dropped too, so a slow update
// cannot yank the cursor back after the user has already jumped.
func (e *Engine) OnPositionUpdate(seconds float64, observedAt time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.durationSec <= 0 {
		return
	}
	if observedAt.Before(e.lastSeekAt) {
		return
	}
	if seconds < 0 {
		seconds = 0
	}
	if seconds > e.durationSec {
		seconds = e.durationSec
	}
	e.positionSec = seconds
}

// OnEnded marks the track finished: paused, position back at the start.
func (e *Engine) OnEnded() {
	e.mu.Lock()
	e.playing = false
	e.positionSec = 0
	e.mu.Unlock()

	events.Publish(events.TopicPlaybackState, events.PlaybackEventData{
		Locator: e.locator,
	})
}

// Seek maps a pointer position against the waveform's horizontal extent
// onto the track and jumps there. x is the pointer coordinate, left and
// width describe the rendered waveform rect. The resulting fraction is
// clamped to [0,1] so clicks in the surrounding padding snap to the edges.
// Returns the clamped fraction.
func (e *Engine) Seek(x, left, width float64) float64 {
	fraction := 0.0
	if width > 0 {
		fraction = (x - left) / width
	}
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}

	e.mu.Lock()
	e.positionSec = fraction * e.durationSec
	e.lastSeekAt = time.Now()
	position := e.positionSec
	playing := e.playing
	e.mu.Unlock()

	e.log(diaglog.LogEntry{
		Event:   diaglog.EventPlaybackSeek,
		Payload: map[string]interface{}{"locator": e.locator, "fraction": fraction},
	})
	events.Publish(events.TopicPlaybackState, events.PlaybackEventData{
		Locator:  e.locator,
		Playing:  playing,
		Position: position,
	})
	return fraction
}

// Progress returns playback progress as a fraction in [0,1], 0 while the
// duration is unknown.
func (e *Engine) Progress() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.durationSec <= 0 {
		return 0
	}
	return e.positionSec / e.durationSec
}

// Position returns the current position in seconds.
func (e *Engine) Position() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.positionSec
}
