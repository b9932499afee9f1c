// Package events is the in-process notification bus for state transitions.
// Components publish discrete transition events here instead of calling into
// the status writer or logger directly; subscribers (status snapshotting,
// diagnostics) attach at daemon startup.
package events

import (
	"sync"

	evbus "github.com/asaskevich/EventBus"
)

// Topics. Payloads are the *EventData structs below.
const (
	TopicCaptureState  = "capture:state"
	TopicSearchState   = "search:state"
	TopicAssetChanged  = "asset:changed"
	TopicAdvisory      = "advisory"
	TopicPlaybackState = "playback:state"
)

// CaptureEventData describes a recording session transition.
type CaptureEventData struct {
	SessionID string `json:"session_id"`
	From      string `json:"from"`
	To        string `json:"to"`
	Reason    string `json:"reason,omitempty"`
}

// SearchEventData describes a search request transition.
type SearchEventData struct {
	RequestID   string `json:"request_id"`
	Status      string `json:"status"`
	ResultCount int    `json:"result_count"`
	Fallback    bool   `json:"fallback"`
}

// AssetEventData describes the current-asset slot changing.
type AssetEventData struct {
	AssetID  string `json:"asset_id,omitempty"` // empty when cleared
	Name     string `json:"name,omitempty"`
	MIMEType string `json:"mime_type,omitempty"`
}

// PlaybackEventData describes a playback engine transition.
type PlaybackEventData struct {
	Locator  string  `json:"locator"`
	Playing  bool    `json:"playing"`
	Position float64 `json:"position_sec"`
}

// AdvisoryEventData carries a short user-visible message. Never fatal.
type AdvisoryEventData struct {
	Condition string `json:"condition"`
	Message   string `json:"message"`
}

var (
	bus  evbus.Bus
	once sync.Once
)

// Get returns the process-wide bus, creating it on first use.
func Get() evbus.Bus {
	once.Do(func() {
		bus = evbus.New()
	})
	return bus
}

// Publish publishes a synchronous event on topic.
func Publish(topic string, args ...interface{}) {
	Get().Publish(topic, args...)
}

// Subscribe registers fn for topic. fn's signature must match the published
// arguments; EventBus checks this at subscribe time.
func Subscribe(topic string, fn interface{}) error {
	return Get().Subscribe(topic, fn)
}

// Unsubscribe removes a previously registered handler.
func Unsubscribe(topic string, fn interface{}) error {
	return Get().Unsubscribe(topic, fn)
}
