package asset

import (
	"sync"
)

// Slot is the single-writer holder of the "current" asset on the compose
// surface. Whoever sets the slot is responsible for what it replaces: the
// superseded asset's preview locator is released as part of the swap, so
// there is no window where two undiscarded locators coexist beyond the
// reassignment instant.
type Slot struct {
	mu         sync.Mutex
	current    *Asset
	previewDir string
}

// NewSlot creates an empty slot. previewDir is where preview temp files are
// materialized; "" means the OS temp dir.
func NewSlot(previewDir string) *Slot {
	return &Slot{previewDir: previewDir}
}

// SetCurrent makes a the current asset, materializes its preview locator and
// releases the previous asset's preview. Passing nil is equivalent to Clear.
func (s *Slot) SetCurrent(a *Asset) error {
	s.mu.Lock()
	prev := s.current
	s.current = a
	s.mu.Unlock()

	if prev != nil {
		_ = prev.Preview.Release()
	}
	if a == nil {
		return nil
	}
	_, err := a.Materialize(s.previewDir)
	return err
}

// Clear empties the slot and releases the current preview locator.
func (s *Slot) Clear() {
	s.mu.Lock()
	prev := s.current
	s.current = nil
	s.mu.Unlock()

	if prev != nil {
		_ = prev.Preview.Release()
	}
}

// Current returns the current asset, or nil when the slot is empty.
func (s *Slot) Current() *Asset {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}
