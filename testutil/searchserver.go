package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
)

// StubResult mirrors one wire result of the search backend.
type StubResult struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Similarity float64 `json:"similarity"`
	URL        string  `json:"url"`
}

// StubSearchServer simulates the search backend for tests. It records what
// each request carried and can be flipped into a failing mode.
type StubSearchServer struct {
	Server *httptest.Server

	mu       sync.Mutex
	results  []StubResult
	failWith int // HTTP status; 0 means succeed
	requests []StubRequest
}

// StubRequest captures one observed submission.
type StubRequest struct {
	Query         string
	AudioFilename string
	AudioBytes    int
}

// NewStubSearchServer starts a backend that answers POST /search with the
// given results. Callers own Close.
func NewStubSearchServer(results ...StubResult) *StubSearchServer {
	s := &StubSearchServer{results: results}
	mux := http.NewServeMux()
	mux.HandleFunc("/search", s.handleSearch)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	s.Server = httptest.NewServer(mux)
	return s
}

// URL returns the backend base URL.
func (s *StubSearchServer) URL() string { return s.Server.URL }

// Close shuts the server down.
func (s *StubSearchServer) Close() { s.Server.Close() }

// FailWith makes subsequent requests answer with the given HTTP status.
// Pass 0 to restore success.
func (s *StubSearchServer) FailWith(status int) {
	s.mu.Lock()
	s.failWith = status
	s.mu.Unlock()
}

// Requests returns the submissions observed so far.
func (s *StubSearchServer) Requests() []StubRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]StubRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

func (s *StubSearchServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		http.Error(w, "bad multipart form", http.StatusBadRequest)
		return
	}

	req := StubRequest{Query: r.FormValue("query")}
	if f, hdr, err := r.FormFile("audio"); err == nil {
		req.AudioFilename = hdr.Filename
		req.AudioBytes = int(hdr.Size)
		f.Close()
	}

	s.mu.Lock()
	s.requests = append(s.requests, req)
	failWith := s.failWith
	results := s.results
	s.mu.Unlock()

	if failWith != 0 {
		http.Error(w, "stubbed failure", failWith)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"results": results})
}
