package asset

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/obi-sound/obi-core/internal/fileutil"
)

// Preview is an ephemeral, revocable locator for local playback of an asset.
// It is backed by a temp file so any player that resolves file paths can
// stream it. Release removes the file; it is safe to call more than once but
// only the first call does work.
type Preview struct {
	path string

	mu       sync.Mutex
	released bool
}

// Materialize writes the asset payload to a temp file and attaches the
// resulting Preview to the asset. Calling it on an asset that already has a
// live preview returns that preview unchanged.
func (a *Asset) Materialize(dir string) (*Preview, error) {
	if a.Preview != nil && !a.Preview.Released() {
		return a.Preview, nil
	}
	if dir == "" {
		dir = os.TempDir()
	}
	base := fileutil.SanitizeForFilename(strings.TrimSuffix(a.Name, extForMIME(a.MIMEType)))
	f, err := os.CreateTemp(dir, "obi-preview-"+base+"-*"+extForMIME(a.MIMEType))
	if err != nil {
		return nil, fmt.Errorf("create preview: %w", err)
	}
	if _, err := f.Write(a.Data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("write preview: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("close preview: %w", err)
	}
	a.Preview = &Preview{path: f.Name()}
	return a.Preview, nil
}

// Locator returns the playback locator for the preview, or "" once released.
func (p *Preview) Locator() string {
	if p == nil {
		return ""
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return ""
	}
	return p.path
}

// Release revokes the locator and deletes the backing file. Idempotent.
func (p *Preview) Release() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return nil
	}
	p.released = true
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release preview: %w", err)
	}
	return nil
}

// Released reports whether the locator has been revoked.
func (p *Preview) Released() bool {
	if p == nil {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.released
}

// extForMIME maps accepted MIME types to a file extension so players can
// sniff the container from the preview path.
func extForMIME(m string) string {
	if strings.Contains(m, "mpeg") {
		return ".mp3"
	}
	return ".wav"
}
