package search

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/obi-sound/obi-core/internal/asset"
	"github.com/obi-sound/obi-core/internal/diaglog"
	"github.com/obi-sound/obi-core/internal/events"
)

// Orchestrator serializes search submissions. At most one request is in
// flight; Submit transitions to Pending synchronously and the terminal
// transition (Success or Error) happens on the resolver goroutine. Results
// from a terminal state stay readable until the next Submit.
type Orchestrator struct {
	backend Backend

	mu        sync.Mutex
	status    Status
	requestID string
	results   []Result
	advisory  string
	fallback  bool          // last terminal state used placeholder results
	done      chan struct{} // closed when the current request resolves

	fallbackEnabled bool

	logger   *diaglog.Logger
	loggerMu sync.RWMutex
}

// NewOrchestrator creates an Orchestrator over the given backend. When
// fallbackEnabled is set, a failed submission surfaces the placeholder
// result set instead of an empty list; the status still reads Error.
func NewOrchestrator(backend Backend, fallbackEnabled bool) *Orchestrator {
	return &Orchestrator{
		backend:         backend,
		status:          StatusIdle,
		fallbackEnabled: fallbackEnabled,
	}
}

// SetLogger injects a diaglog.Logger for debug logging.
func (o *Orchestrator) SetLogger(l *diaglog.Logger) {
	o.loggerMu.Lock()
	o.logger = l
	o.loggerMu.Unlock()
}

func (o *Orchestrator) log(entry diaglog.LogEntry) {
	o.loggerMu.RLock()
	l := o.logger
	o.loggerMu.RUnlock()
	if l == nil {
		return
	}
	if entry.Component == "" {
		entry.Component = diaglog.ComponentSearch
	}
	l.Log(entry)
}

// SetFallbackEnabled flips the fallback policy. Takes effect for the next
// terminal transition; an already-resolved Error keeps its results.
func (o *Orchestrator) SetFallbackEnabled(enabled bool) {
	o.mu.Lock()
	o.fallbackEnabled = enabled
	o.mu.Unlock()
}

// Status returns the current lifecycle state.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// RequestID returns the identifier of the current or most recent request,
// empty before the first Submit.
func (o *Orchestrator) RequestID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.requestID
}

// Results returns a copy of the current result set in delivery order.
func (o *Orchestrator) Results() []Result {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Result, len(o.results))
	copy(out, o.results)
	return out
}

// Advisory returns the user-visible message for the current state, empty
// when there is nothing to surface.
func (o *Orchestrator) Advisory() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.advisory
}

// UsedFallback reports whether the most recent terminal state substituted
// placeholder results.
func (o *Orchestrator) UsedFallback() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.fallback
}

// Done returns a channel closed when the current request reaches a terminal
// state. With no request in flight the returned channel is already closed.
func (o *Orchestrator) Done() <-chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.done != nil {
		return o.done
	}
	closed := make(chan struct{})
	close(closed)
	return closed
}

// Submit starts a search for the given query and/or asset. The Pending
// transition happens before Submit returns; resolution is asynchronous.
// An empty submission or one racing an in-flight request is rejected
// synchronously without touching the current state.
func (o *Orchestrator) Submit(ctx context.Context, query string, a *asset.Asset) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" && a == nil {
		o.log(diaglog.LogEntry{Event: diaglog.EventSearchRejected, Reason: "missing input"})
		events.Publish(events.TopicAdvisory, events.AdvisoryEventData{
			Condition: "missing_input",
			Message:   AdvisoryMissingInput,
		})
		return "", ErrMissingInput
	}

	o.mu.Lock()
	if o.status == StatusPending {
		o.mu.Unlock()
		o.log(diaglog.LogEntry{Event: diaglog.EventSearchRejected, Reason: "request in flight"})
		return "", ErrRequestInFlight
	}
	id := uuid.NewString()
	o.status = StatusPending
	o.requestID = id
	o.results = nil
	o.advisory = ""
	o.fallback = false
	o.done = make(chan struct{})
	done := o.done
	o.mu.Unlock()

	o.log(diaglog.LogEntry{
		Event:   diaglog.EventSearchSubmit,
		Payload: map[string]interface{}{"request_id": id, "has_query": query != "", "has_audio": a != nil},
	})
	events.Publish(events.TopicSearchState, events.SearchEventData{
		RequestID: id,
		Status:    string(StatusPending),
	})

	go o.resolve(ctx, id, query, a, done)
	return id, nil
}

// resolve performs the round trip and applies the terminal transition.
func (o *Orchestrator) resolve(ctx context.Context, id, query string, a *asset.Asset, done chan struct{}) {
	defer close(done)

	results, err := o.backend.Search(ctx, query, a)

	o.mu.Lock()
	if o.requestID != id {
		// Superseded; never overwrite a newer request's state.
		o.mu.Unlock()
		return
	}
	if err == nil {
		o.status = StatusSuccess
		o.results = results
		o.mu.Unlock()
		o.log(diaglog.LogEntry{
			Event:   diaglog.EventSearchSuccess,
			Payload: map[string]interface{}{"request_id": id, "result_count": len(results)},
		})
		events.Publish(events.TopicSearchState, events.SearchEventData{
			RequestID:   id,
			Status:      string(StatusSuccess),
			ResultCount: len(results),
		})
		return
	}

	o.status = StatusError
	if o.fallbackEnabled {
		o.results = FallbackResults()
		o.advisory = AdvisoryFallback
		o.fallback = true
	} else {
		o.results = nil
		o.advisory = AdvisoryRequestFailed
	}
	resultCount := len(o.results)
	usedFallback := o.fallback
	advisory := o.advisory
	o.mu.Unlock()

	o.log(diaglog.LogEntry{
		Event:   diaglog.EventSearchError,
		Reason:  err.Error(),
		Payload: map[string]interface{}{"request_id": id},
	})
	if usedFallback {
		o.log(diaglog.LogEntry{
			Event:   diaglog.EventSearchFallback,
			Payload: map[string]interface{}{"request_id": id, "result_count": resultCount},
		})
	}
	events.Publish(events.TopicSearchState, events.SearchEventData{
		RequestID:   id,
		Status:      string(StatusError),
		ResultCount: resultCount,
		Fallback:    usedFallback,
	})
	events.Publish(events.TopicAdvisory, events.AdvisoryEventData{
		Condition: "search_failed",
		Message:   advisory,
	})
}
