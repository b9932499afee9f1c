package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"sync"
	"time"

	"github.com/obi-sound/obi-core/internal/asset"
	"github.com/obi-sound/obi-core/internal/diaglog"
)

// Config configures the search backend client.
type Config struct {
	BaseURL        string
	Token          string // optional auth token, sent as Bearer
	TimeoutSeconds int    // default 30
	Retries        int    // extra attempts on transient failure; 0 means fail on the first
}

// Client posts search submissions to the HTTP backend. It implements
// Backend.
type Client struct {
	cfg         Config
	client      *http.Client
	backoffBase time.Duration // default time.Second; tests override to 1ms

	logger   *diaglog.Logger
	loggerMu sync.RWMutex
}

// NewClient creates a search backend client.
func NewClient(cfg Config) *Client {
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 30
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	return &Client{
		cfg:         cfg,
		backoffBase: time.Second,
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

// SetLogger injects a diaglog.Logger for debug logging.
func (c *Client) SetLogger(l *diaglog.Logger) {
	c.loggerMu.Lock()
	c.logger = l
	c.loggerMu.Unlock()
}

func (c *Client) log(entry diaglog.LogEntry) {
	c.loggerMu.RLock()
	l := c.logger
	c.loggerMu.RUnlock()
	if l == nil {
		return
	}
	if entry.Component == "" {
		entry.Component = diaglog.ComponentSearch
	}
	l.Log(entry)
}

// searchResponse mirrors the JSON shape returned by the backend. Scores may
// arrive as 0..1 similarity or 0–100 percentages depending on backend
// version; whichever of the two score fields is set wins.
type searchResponse struct {
	Results []struct {
		ID         string  `json:"id"`
		Title      string  `json:"title"`
		Similarity float64 `json:"similarity"`
		Score      float64 `json:"score"`
		URL        string  `json:"url"`
		AudioURL   string  `json:"audio_url"`
	} `json:"results"`
}

// Search posts the query and/or asset to POST /search and returns the
// ranked results in delivery order. Retries on transient errors (5xx,
// network); a 4xx or a malformed body fails immediately.
func (c *Client) Search(ctx context.Context, query string, a *asset.Asset) ([]Result, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.Retries; attempt++ {
		if attempt > 0 {
			backoff := c.backoff(attempt)
			c.log(diaglog.LogEntry{
				Event:   "search_retry",
				Payload: map[string]interface{}{"attempt": attempt, "backoff_ms": backoff.Milliseconds()},
			})
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrRequestFailed, ctx.Err())
			}
		}

		results, err := c.doSearch(ctx, query, a)
		if err == nil {
			return results, nil
		}

		if !isRetryable(err) {
			return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
		}
		lastErr = err
	}

	return nil, fmt.Errorf("%w: all %d retries exhausted: %v", ErrRequestFailed, c.cfg.Retries, lastErr)
}

// doSearch performs a single multipart POST to the submission endpoint.
func (c *Client) doSearch(ctx context.Context, query string, a *asset.Asset) ([]Result, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if query != "" {
		if err := writer.WriteField("query", query); err != nil {
			return nil, fmt.Errorf("write query field: %w", err)
		}
	}
	if a != nil {
		part, err := writer.CreatePart(audioPartHeader(a))
		if err != nil {
			return nil, fmt.Errorf("create audio part: %w", err)
		}
		if _, err := part.Write(a.Data); err != nil {
			return nil, fmt.Errorf("write audio data: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalize multipart body: %w", err)
	}

	url := c.cfg.BaseURL + "/search"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("http request: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("read response body: %w", err)}
	}

	if resp.StatusCode >= 500 {
		return nil, &retryableError{err: fmt.Errorf("server error %d: %s", resp.StatusCode, truncate(respBody, 200))}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, truncate(respBody, 200))
	}

	var parsed searchResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	results := make([]Result, len(parsed.Results))
	for i, r := range parsed.Results {
		score := r.Similarity
		if score == 0 && r.Score != 0 {
			score = r.Score
		}
		url := r.URL
		if url == "" {
			url = r.AudioURL
		}
		results[i] = Result{
			ID:         r.ID,
			Title:      r.Title,
			Similarity: normalizeScore(score),
			URL:        url,
		}
	}
	return results, nil
}

// audioPartHeader builds the form part header for the "audio" field so the
// asset's MIME type travels with the upload instead of the multipart
// default of application/octet-stream.
func audioPartHeader(a *asset.Asset) textproto.MIMEHeader {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="audio"; filename=%q`, a.Name))
	h.Set("Content-Type", a.MIMEType)
	return h
}

// ── helpers ──────────────────────────────────────────────────────────────────

// retryableError wraps errors that should trigger a retry.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// isRetryable returns true for retryableError instances.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	_, ok := err.(*retryableError)
	return ok
}

// backoff returns exponential backoff duration: base * 2^(attempt-1) + jitter.
func (c *Client) backoff(attempt int) time.Duration {
	base := c.backoffBase
	if base <= 0 {
		base = time.Second
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	// Add jitter: 0–25% of delay.
	jitter := time.Duration(rand.Int63n(int64(delay/4) + 1))
	return delay + jitter
}

// truncate returns the first n bytes of body as a string.
func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
