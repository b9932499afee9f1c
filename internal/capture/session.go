package capture

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/obi-sound/obi-core/internal/asset"
	"github.com/obi-sound/obi-core/internal/audio"
	"github.com/obi-sound/obi-core/internal/diaglog"
	"github.com/obi-sound/obi-core/internal/events"
)

// State is the recording session state.
type State string

const (
	StateIdle       State = "idle"
	StateAcquiring  State = "acquiring_device"
	StateRecording  State = "recording"
	StateFinalizing State = "finalizing"
)

// Session manages one microphone acquisition-to-finalization cycle at a
// time. All transitions go through the methods below; chunk arrival is fed
// into the session by a single consumer goroutine, never from arbitrary
// call sites.
type Session struct {
	device Device

	mu            sync.Mutex
	state         State
	sessionID     string
	stream        Stream
	chunks        [][]byte
	stopRequested bool // Stop arrived while acquisition was still pending
	consumerDone  chan struct{}

	sampleRate int
	channels   int

	logger *diaglog.Logger
}

// NewSession creates an idle session bound to device. sampleRate/channels
// describe the PCM format the device delivers; zero values take the
// defaults the device bridge negotiates.
func NewSession(device Device, sampleRate, channels int) *Session {
	if sampleRate <= 0 {
		sampleRate = audio.DefaultSampleRate
	}
	if channels <= 0 {
		channels = audio.DefaultChannels
	}
	return &Session{
		device:     device,
		state:      StateIdle,
		sampleRate: sampleRate,
		channels:   channels,
	}
}

// SetLogger injects a diaglog.Logger for structured event logging.
func (s *Session) SetLogger(l *diaglog.Logger) {
	s.mu.Lock()
	s.logger = l
	s.mu.Unlock()
}

// State returns the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SessionID returns the identifier of the active (or last) session.
func (s *Session) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Start acquires the input device and begins buffering chunks. Valid only
// from Idle; a Start while a session is active returns ErrAlreadyRecording.
// Acquisition is asynchronous in the sense that Start blocks only this
// caller — ctx bounds the wait for the device grant.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return fmt.Errorf("%w (state=%s)", ErrAlreadyRecording, s.state)
	}
	s.state = StateAcquiring
	s.sessionID = uuid.NewString()
	s.stopRequested = false
	id := s.sessionID
	logger := s.logger
	s.mu.Unlock()

	s.publishTransition(id, StateIdle, StateAcquiring, "")
	logger.Log(diaglog.LogEntry{
		Component: diaglog.ComponentCapture,
		Event:     diaglog.EventDeviceAcquire,
		SessionID: id,
	})

	stream, err := s.device.Acquire(ctx)

	s.mu.Lock()
	if err != nil {
		s.state = StateIdle
		s.mu.Unlock()
		s.publishTransition(id, StateAcquiring, StateIdle, "device_denied")
		logger.Log(diaglog.LogEntry{
			Component: diaglog.ComponentCapture,
			Event:     diaglog.EventDeviceDenied,
			SessionID: id,
			Reason:    err.Error(),
		})
		return fmt.Errorf("%w: %v", ErrDeviceAccessDenied, err)
	}

	if s.stopRequested {
		// Stop landed while the grant was pending. Best effort: release
		// immediately upon grant and record nothing.
		s.state = StateIdle
		s.mu.Unlock()
		_ = stream.Close()
		s.publishTransition(id, StateAcquiring, StateIdle, "stopped_before_grant")
		logger.Log(diaglog.LogEntry{
			Component: diaglog.ComponentCapture,
			Event:     diaglog.EventRecordingDiscard,
			SessionID: id,
			Reason:    "stop requested before device grant",
		})
		return nil
	}

	s.stream = stream
	s.chunks = nil
	s.state = StateRecording
	done := make(chan struct{})
	s.consumerDone = done
	s.mu.Unlock()

	s.publishTransition(id, StateAcquiring, StateRecording, "")
	logger.Log(diaglog.LogEntry{
		Component: diaglog.ComponentCapture,
		Event:     diaglog.EventRecordingStart,
		SessionID: id,
	})

	go s.consume(stream, done)
	return nil
}

// consume appends stream chunks to the buffer in arrival order until the
// stream's channel closes.
func (s *Session) consume(stream Stream, done chan struct{}) {
	defer close(done)
	for chunk := range stream.Chunks() {
		s.mu.Lock()
		if s.state == StateRecording && s.stream == stream {
			s.chunks = append(s.chunks, chunk)
		}
		s.mu.Unlock()
	}
}

// Stop finalizes the session into an Asset. Idempotent: calling it from
// Idle or Finalizing is a no-op returning (nil, nil), so duplicate stop
// signals (pointer-up racing pointer-leave upstream) are harmless. A Stop
// during a pending acquisition marks the grant for immediate release and
// returns (nil, nil).
//
// The device stream is released unconditionally on every path out of
// Recording; that is this component's central obligation.
func (s *Session) Stop() (*asset.Asset, error) {
	s.mu.Lock()
	switch s.state {
	case StateIdle, StateFinalizing:
		s.mu.Unlock()
		return nil, nil
	case StateAcquiring:
		s.stopRequested = true
		s.mu.Unlock()
		return nil, nil
	}

	// Recording → Finalizing.
	s.state = StateFinalizing
	stream := s.stream
	s.stream = nil
	done := s.consumerDone
	s.consumerDone = nil
	id := s.sessionID
	logger := s.logger
	s.mu.Unlock()

	s.publishTransition(id, StateRecording, StateFinalizing, "")

	// Release the device first, then wait for the consumer goroutine to
	// observe the closed chunk channel so it never outlives the session.
	// Chunks landing after the Recording→Finalizing transition are dropped.
	closeErr := stream.Close()
	if done != nil {
		<-done
	}
	logger.Log(diaglog.LogEntry{
		Component: diaglog.ComponentCapture,
		Event:     diaglog.EventDeviceReleased,
		SessionID: id,
	})

	s.mu.Lock()
	var total int
	for _, c := range s.chunks {
		total += len(c)
	}
	pcm := make([]byte, 0, total)
	for _, c := range s.chunks {
		pcm = append(pcm, c...)
	}
	s.chunks = nil
	s.state = StateIdle
	s.mu.Unlock()

	s.publishTransition(id, StateFinalizing, StateIdle, "finalized")

	if len(pcm) == 0 {
		logger.Log(diaglog.LogEntry{
			Component: diaglog.ComponentCapture,
			Event:     diaglog.EventRecordingDiscard,
			SessionID: id,
			Reason:    "empty chunk buffer",
		})
		if closeErr != nil {
			return nil, fmt.Errorf("%w (release: %v)", ErrNoAudioCaptured, closeErr)
		}
		return nil, ErrNoAudioCaptured
	}

	wav, err := audio.WrapPCM(pcm, s.sampleRate, s.channels)
	if err != nil {
		return nil, fmt.Errorf("finalize recording: %w", err)
	}

	a := asset.FromRecording(wav)
	logger.Log(diaglog.LogEntry{
		Component: diaglog.ComponentCapture,
		Event:     diaglog.EventRecordingStop,
		SessionID: id,
		Payload:   map[string]interface{}{"bytes": len(wav), "asset_id": a.ID},
	})
	return a, nil
}

// Close releases any held device resource regardless of state. Used on
// daemon shutdown so a crash path never leaves the microphone open.
func (s *Session) Close() {
	s.mu.Lock()
	stream := s.stream
	s.stream = nil
	done := s.consumerDone
	s.consumerDone = nil
	s.stopRequested = true
	prev := s.state
	s.state = StateIdle
	s.chunks = nil
	id := s.sessionID
	logger := s.logger
	s.mu.Unlock()

	if stream != nil {
		_ = stream.Close()
		if done != nil {
			<-done
		}
		logger.Log(diaglog.LogEntry{
			Component: diaglog.ComponentCapture,
			Event:     diaglog.EventDeviceReleased,
			SessionID: id,
			Reason:    "session closed",
		})
	}
	if prev != StateIdle {
		s.publishTransition(id, prev, StateIdle, "closed")
	}
}

func (s *Session) publishTransition(id string, from, to State, reason string) {
	events.Publish(events.TopicCaptureState, events.CaptureEventData{
		SessionID: id,
		From:      string(from),
		To:        string(to),
		Reason:    reason,
	})
}
