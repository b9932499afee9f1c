// Package search manages the lifecycle of one sound-search submission: the
// outbound multipart request carrying a text query and/or an audio asset,
// the Idle→Pending→terminal state machine around it, and the fallback
// policy that keeps the interface usable while no real backend exists.
package search

import (
	"context"
	"errors"

	"github.com/obi-sound/obi-core/internal/asset"
)

// Status is the search request lifecycle state.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Result is one ranked match. Similarity is the canonical 0..1 unit; the
// wire may deliver 0–100 integer percentages instead, normalized on parse.
// Delivery order is preserved verbatim; the client never re-sorts.
type Result struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Similarity float64 `json:"similarity"`
	URL        string  `json:"url"`
}

// ScorePercent returns the display unit: an integer 0–100 match percentage.
func (r Result) ScorePercent() int {
	return int(r.Similarity*100 + 0.5)
}

// normalizeScore maps a wire score in either unit onto 0..1.
func normalizeScore(s float64) float64 {
	if s > 1 {
		s = s / 100
	}
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

var (
	// ErrMissingInput means Submit was called with neither query nor asset.
	// Rejected before any state transition or network attempt.
	ErrMissingInput = errors.New("nothing to search for")

	// ErrRequestInFlight means Submit was called while a request is
	// Pending. Rejected synchronously; the in-flight request is unaffected.
	ErrRequestInFlight = errors.New("search request already in flight")

	// ErrRequestFailed wraps transport failures, non-2xx statuses and
	// malformed response bodies.
	ErrRequestFailed = errors.New("search request failed")
)

// User-visible advisories for the conditions above.
const (
	AdvisoryMissingInput  = "Please type a query or upload an audio file to search."
	AdvisoryFallback      = "Using mock data because POST /search failed (endpoint may not exist yet)."
	AdvisoryRequestFailed = "Search failed. Check that the search backend is reachable."
)

// Backend performs one search round trip. Implemented by Client for the
// HTTP backend and by test doubles.
type Backend interface {
	Search(ctx context.Context, query string, a *asset.Asset) ([]Result, error)
}
