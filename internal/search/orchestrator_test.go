package search

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/obi-sound/obi-core/internal/asset"
)

// fakeBackend resolves with a fixed result set or error, optionally
// blocking until released.
type fakeBackend struct {
	results []Result
	err     error
	block   chan struct{} // when non-nil, Search waits on it
	calls   atomic.Int32
}

func (b *fakeBackend) Search(ctx context.Context, query string, a *asset.Asset) ([]Result, error) {
	b.calls.Add(1)
	if b.block != nil {
		select {
		case <-b.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return b.results, b.err
}

func waitDone(t *testing.T, o *Orchestrator) {
	t.Helper()
	select {
	case <-o.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("request never reached a terminal state")
	}
}

func TestSubmit_Success(t *testing.T) {
	backend := &fakeBackend{results: []Result{
		{ID: "9", Title: "Reverb Stab", Similarity: 0.77, URL: "u9"},
		{ID: "4", Title: "Brass Hit", Similarity: 0.31, URL: "u4"},
	}}
	o := NewOrchestrator(backend, false)

	id, err := o.Submit(context.Background(), "brass", nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if id == "" {
		t.Fatal("expected a request id")
	}
	waitDone(t, o)

	if o.Status() != StatusSuccess {
		t.Fatalf("expected success, got %s", o.Status())
	}
	results := o.Results()
	if len(results) != 2 || results[0].ID != "9" || results[1].ID != "4" {
		t.Errorf("delivery order not preserved: %+v", results)
	}
	if o.Advisory() != "" {
		t.Errorf("no advisory on success, got %q", o.Advisory())
	}
}

func TestSubmit_MissingInputNoNetwork(t *testing.T) {
	backend := &fakeBackend{}
	o := NewOrchestrator(backend, false)

	_, err := o.Submit(context.Background(), "   ", nil)
	if !errors.Is(err, ErrMissingInput) {
		t.Fatalf("expected ErrMissingInput, got %v", err)
	}
	if o.Status() != StatusIdle {
		t.Errorf("empty submission must not transition, got %s", o.Status())
	}
	if backend.calls.Load() != 0 {
		t.Error("empty submission must not reach the backend")
	}
}

func TestSubmit_RejectsSecondWhilePending(t *testing.T) {
	release := make(chan struct{})
	backend := &fakeBackend{results: []Result{{ID: "1"}}, block: release}
	o := NewOrchestrator(backend, false)

	first, err := o.Submit(context.Background(), "q", nil)
	if err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	if o.Status() != StatusPending {
		t.Fatalf("expected pending before resolution, got %s", o.Status())
	}

	_, err = o.Submit(context.Background(), "another", nil)
	if !errors.Is(err, ErrRequestInFlight) {
		t.Fatalf("expected ErrRequestInFlight, got %v", err)
	}
	if o.RequestID() != first {
		t.Error("rejected submission must not disturb the in-flight request")
	}

	close(release)
	waitDone(t, o)
	if o.Status() != StatusSuccess {
		t.Errorf("in-flight request must still resolve, got %s", o.Status())
	}
	if backend.calls.Load() != 1 {
		t.Errorf("expected 1 backend call, got %d", backend.calls.Load())
	}
}

func TestSubmit_ErrorWithFallback(t *testing.T) {
	backend := &fakeBackend{err: errors.New("connection refused")}
	o := NewOrchestrator(backend, true)

	if _, err := o.Submit(context.Background(), "q", nil); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitDone(t, o)

	if o.Status() != StatusError {
		t.Fatalf("fallback must not mask the error status, got %s", o.Status())
	}
	if !o.UsedFallback() {
		t.Fatal("expected fallback results")
	}
	if o.Advisory() != AdvisoryFallback {
		t.Errorf("expected fallback advisory, got %q", o.Advisory())
	}
	results := o.Results()
	want := FallbackResults()
	if len(results) != len(want) {
		t.Fatalf("expected %d placeholder results, got %d", len(want), len(results))
	}
	for i := range want {
		if results[i] != want[i] {
			t.Errorf("placeholder %d: got %+v, want %+v", i, results[i], want[i])
		}
	}
}

func TestSubmit_ErrorWithoutFallback(t *testing.T) {
	backend := &fakeBackend{err: errors.New("boom")}
	o := NewOrchestrator(backend, false)

	if _, err := o.Submit(context.Background(), "q", nil); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitDone(t, o)

	if o.Status() != StatusError {
		t.Fatalf("expected error status, got %s", o.Status())
	}
	if len(o.Results()) != 0 {
		t.Error("no placeholder results when fallback is disabled")
	}
	if o.Advisory() != AdvisoryRequestFailed {
		t.Errorf("expected failure advisory, got %q", o.Advisory())
	}
}

func TestSubmit_RecoverableAfterError(t *testing.T) {
	backend := &fakeBackend{err: errors.New("boom")}
	o := NewOrchestrator(backend, false)

	if _, err := o.Submit(context.Background(), "q", nil); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitDone(t, o)

	backend.err = nil
	backend.results = []Result{{ID: "1", Title: "a", Similarity: 1, URL: "u"}}
	if _, err := o.Submit(context.Background(), "q", nil); err != nil {
		t.Fatalf("Submit after error: %v", err)
	}
	waitDone(t, o)
	if o.Status() != StatusSuccess {
		t.Errorf("expected recovery to success, got %s", o.Status())
	}
	if o.Advisory() != "" {
		t.Errorf("stale advisory survived resubmission: %q", o.Advisory())
	}
}

func TestSubmit_AudioOnlyIsValid(t *testing.T) {
	backend := &fakeBackend{results: []Result{}}
	o := NewOrchestrator(backend, false)

	a, err := asset.New("clip.mp3", asset.MIMEMpeg, []byte{0xFF})
	if err != nil {
		t.Fatalf("asset.New: %v", err)
	}
	if _, err := o.Submit(context.Background(), "", a); err != nil {
		t.Fatalf("audio-only Submit: %v", err)
	}
	waitDone(t, o)
	if o.Status() != StatusSuccess {
		t.Errorf("expected success, got %s", o.Status())
	}
}
