package search

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/obi-sound/obi-core/internal/asset"
)

var _ Backend = (*Client)(nil)

func newTestClient(url string) *Client {
	c := NewClient(Config{BaseURL: url, TimeoutSeconds: 5, Retries: 2})
	c.backoffBase = time.Millisecond
	return c
}

func TestSearch_ParsesResultsInDeliveryOrder(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[
			{"id":"7","title":"Tape Hiss Pad","similarity":0.91,"url":"https://cdn.example/7.mp3"},
			{"id":"3","title":"Vinyl Crackle","similarity":0.42,"url":"https://cdn.example/3.mp3"}
		]}`))
	}))
	defer ts.Close()

	results, err := newTestClient(ts.URL).Search(context.Background(), "dusty drums", nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	// Delivery order preserved even though scores are not descending-sorted
	// by ID.
	if results[0].ID != "7" || results[1].ID != "3" {
		t.Errorf("delivery order broken: %q, %q", results[0].ID, results[1].ID)
	}
	if results[0].Similarity != 0.91 {
		t.Errorf("expected similarity 0.91, got %v", results[0].Similarity)
	}
	if got := results[0].ScorePercent(); got != 91 {
		t.Errorf("expected 91%%, got %d", got)
	}
}

func TestSearch_NormalizesPercentScores(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[{"id":"1","title":"a","score":85,"audio_url":"https://cdn.example/a.mp3"}]}`))
	}))
	defer ts.Close()

	results, err := newTestClient(ts.URL).Search(context.Background(), "q", nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if results[0].Similarity != 0.85 {
		t.Errorf("expected 0.85 after percent normalization, got %v", results[0].Similarity)
	}
	if results[0].URL != "https://cdn.example/a.mp3" {
		t.Errorf("audio_url alias not mapped: %q", results[0].URL)
	}
}

func TestSearch_SendsMultipartFields(t *testing.T) {
	var gotQuery, gotFilename, gotPartType string
	var gotAudio []byte
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		gotQuery = r.FormValue("query")
		f, hdr, err := r.FormFile("audio")
		if err != nil {
			t.Errorf("audio part: %v", err)
			http.Error(w, "no audio", http.StatusBadRequest)
			return
		}
		defer f.Close()
		gotFilename = hdr.Filename
		gotPartType = hdr.Header.Get("Content-Type")
		gotAudio, _ = io.ReadAll(f)
		_, _ = w.Write([]byte(`{"results":[]}`))
	}))
	defer ts.Close()

	a, err := asset.New("clip.wav", asset.MIMEWav, []byte{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("asset.New: %v", err)
	}
	if _, err := newTestClient(ts.URL).Search(context.Background(), "flute break", a); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if gotQuery != "flute break" {
		t.Errorf("query field: got %q", gotQuery)
	}
	if gotFilename != "clip.wav" {
		t.Errorf("audio filename: got %q", gotFilename)
	}
	if gotPartType != asset.MIMEWav {
		t.Errorf("audio part content type: got %q", gotPartType)
	}
	if len(gotAudio) != 4 || gotAudio[0] != 1 {
		t.Errorf("audio payload mangled: %v", gotAudio)
	}
}

func TestSearch_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "flaky", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"results":[{"id":"1","title":"a","similarity":0.5,"url":"u"}]}`))
	}))
	defer ts.Close()

	results, err := newTestClient(ts.URL).Search(context.Background(), "q", nil)
	if err != nil {
		t.Fatalf("Search after retries: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestSearch_ZeroRetriesFailsOnFirstAttempt(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	c := NewClient(Config{BaseURL: ts.URL, TimeoutSeconds: 5, Retries: 0})
	c.backoffBase = time.Millisecond
	_, err := c.Search(context.Background(), "q", nil)
	if !errors.Is(err, ErrRequestFailed) {
		t.Fatalf("expected ErrRequestFailed, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("Retries: 0 must mean a single attempt, got %d", calls.Load())
	}
}

func TestSearch_NoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad submission", http.StatusUnprocessableEntity)
	}))
	defer ts.Close()

	_, err := newTestClient(ts.URL).Search(context.Background(), "q", nil)
	if !errors.Is(err, ErrRequestFailed) {
		t.Fatalf("expected ErrRequestFailed, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("4xx must not retry, got %d attempts", calls.Load())
	}
}

func TestSearch_TransportFailure(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://127.0.0.1:1", TimeoutSeconds: 1, Retries: 1})
	c.backoffBase = time.Millisecond
	_, err := c.Search(context.Background(), "q", nil)
	if !errors.Is(err, ErrRequestFailed) {
		t.Fatalf("expected ErrRequestFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "retries exhausted") {
		t.Errorf("expected exhausted-retries wording, got %v", err)
	}
}

func TestSearch_SendsBearerToken(t *testing.T) {
	var gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"results":[]}`))
	}))
	defer ts.Close()

	c := NewClient(Config{BaseURL: ts.URL, Token: "sekret"})
	c.backoffBase = time.Millisecond
	if _, err := c.Search(context.Background(), "q", nil); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if gotAuth != "Bearer sekret" {
		t.Errorf("expected bearer header, got %q", gotAuth)
	}
}
