// Package compose coordinates the submission surface: the text query, the
// current audio asset (uploaded or recorded), and the hand-off to the
// search orchestrator. All the recoverable error conditions of the
// surrounding packages surface here as short advisories; none of them
// disturb state the user has already built up.
package compose

import (
	"context"
	"errors"
	"sync"

	"github.com/obi-sound/obi-core/internal/asset"
	"github.com/obi-sound/obi-core/internal/capture"
	"github.com/obi-sound/obi-core/internal/diaglog"
	"github.com/obi-sound/obi-core/internal/events"
	"github.com/obi-sound/obi-core/internal/search"
)

// Additional advisories for conditions owned by this surface.
const (
	AdvisoryNoAudioCaptured = "No audio was captured. Try recording again."
	AdvisoryRequestInFlight = "A search is already in progress."
)

// Surface is the single compose surface of the daemon. Methods are safe for
// concurrent use; the command watcher and the IPC layer both call in.
type Surface struct {
	slot         *asset.Slot
	session      *capture.Session
	orchestrator *search.Orchestrator

	mu    sync.Mutex
	query string

	logger   *diaglog.Logger
	loggerMu sync.RWMutex
}

// New assembles the surface over its three collaborators.
func New(slot *asset.Slot, session *capture.Session, orchestrator *search.Orchestrator) *Surface {
	return &Surface{
		slot:         slot,
		session:      session,
		orchestrator: orchestrator,
	}
}

// SetLogger injects a diaglog.Logger for debug logging.
func (s *Surface) SetLogger(l *diaglog.Logger) {
	s.loggerMu.Lock()
	s.logger = l
	s.loggerMu.Unlock()
}

func (s *Surface) log(entry diaglog.LogEntry) {
	s.loggerMu.RLock()
	l := s.logger
	s.loggerMu.RUnlock()
	if l == nil {
		return
	}
	if entry.Component == "" {
		entry.Component = diaglog.ComponentCompose
	}
	l.Log(entry)
}

// SetQuery replaces the query text. Setting a query never touches the
// attached asset; the two inputs combine on Submit.
func (s *Surface) SetQuery(q string) {
	s.mu.Lock()
	s.query = q
	s.mu.Unlock()
}

// Query returns the current query text.
func (s *Surface) Query() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.query
}

// AttachFile validates an uploaded file and makes it the current asset,
// superseding whatever was there. A rejected type leaves the surface
// untouched.
func (s *Surface) AttachFile(name, mimeType string, data []byte) error {
	a, err := asset.New(name, mimeType, data)
	if err != nil {
		s.log(diaglog.LogEntry{Event: diaglog.EventSearchRejected, Reason: "invalid asset type", Payload: map[string]interface{}{"mime_type": mimeType}})
		events.Publish(events.TopicAdvisory, events.AdvisoryEventData{
			Condition: "invalid_asset_type",
			Message:   asset.AdvisoryInvalidType,
		})
		return err
	}
	return s.setAsset(a)
}

// StartRecording begins a capture session. Denial is recoverable; the
// surface keeps its query and asset.
func (s *Surface) StartRecording(ctx context.Context) error {
	err := s.session.Start(ctx)
	if errors.Is(err, capture.ErrDeviceAccessDenied) {
		events.Publish(events.TopicAdvisory, events.AdvisoryEventData{
			Condition: "device_denied",
			Message:   capture.AdvisoryDeviceDenied,
		})
	}
	return err
}

// StopRecording finalizes the active capture and attaches the result as the
// current asset. An empty capture attaches nothing and reports
// ErrNoAudioCaptured; a stop with no active session is a no-op.
func (s *Surface) StopRecording() error {
	a, err := s.session.Stop()
	if err != nil {
		if errors.Is(err, capture.ErrNoAudioCaptured) {
			events.Publish(events.TopicAdvisory, events.AdvisoryEventData{
				Condition: "no_audio_captured",
				Message:   AdvisoryNoAudioCaptured,
			})
		}
		return err
	}
	if a == nil {
		return nil
	}
	return s.setAsset(a)
}

// ClearAsset discards the current asset and releases its preview locator.
func (s *Surface) ClearAsset() {
	s.slot.Clear()
	s.log(diaglog.LogEntry{Event: diaglog.EventAssetCleared})
	events.Publish(events.TopicAssetChanged, events.AssetEventData{})
}

// CurrentAsset returns the attached asset, nil when none.
func (s *Surface) CurrentAsset() *asset.Asset {
	return s.slot.Current()
}

// RecordingState exposes the capture session state for status snapshots.
func (s *Surface) RecordingState() capture.State {
	return s.session.State()
}

// Submit hands the query and current asset to the orchestrator. The surface
// keeps both inputs; a later Clear or retype is the user's call, not a side
// effect of submitting.
func (s *Surface) Submit(ctx context.Context) (string, error) {
	s.mu.Lock()
	query := s.query
	s.mu.Unlock()

	id, err := s.orchestrator.Submit(ctx, query, s.slot.Current())
	if errors.Is(err, search.ErrRequestInFlight) {
		events.Publish(events.TopicAdvisory, events.AdvisoryEventData{
			Condition: "request_in_flight",
			Message:   AdvisoryRequestInFlight,
		})
	}
	return id, err
}

func (s *Surface) setAsset(a *asset.Asset) error {
	if err := s.slot.SetCurrent(a); err != nil {
		return err
	}
	s.log(diaglog.LogEntry{
		Event:   diaglog.EventAssetSet,
		Payload: map[string]interface{}{"asset_id": a.ID, "name": a.Name, "mime_type": a.MIMEType},
	})
	events.Publish(events.TopicAssetChanged, events.AssetEventData{
		AssetID:  a.ID,
		Name:     a.Name,
		MIMEType: a.MIMEType,
	})
	return nil
}

// AdvisoryFor maps a recoverable error from any surface operation onto its
// user-visible message, "" for errors with no canned advisory.
func AdvisoryFor(err error) string {
	switch {
	case errors.Is(err, asset.ErrInvalidAssetType):
		return asset.AdvisoryInvalidType
	case errors.Is(err, capture.ErrDeviceAccessDenied):
		return capture.AdvisoryDeviceDenied
	case errors.Is(err, capture.ErrNoAudioCaptured):
		return AdvisoryNoAudioCaptured
	case errors.Is(err, search.ErrMissingInput):
		return search.AdvisoryMissingInput
	case errors.Is(err, search.ErrRequestInFlight):
		return AdvisoryRequestInFlight
	case errors.Is(err, search.ErrRequestFailed):
		return search.AdvisoryRequestFailed
	}
	return ""
}
