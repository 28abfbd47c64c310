// Package prefs tracks per-submitter option flags for the process lifetime.
package prefs

import "sync"

// Store holds the enhanced-restoration preference per submitter.
// Unseen submitters default to false. Nothing is persisted.
type Store struct {
	mu      sync.RWMutex
	restore map[string]bool
}

// New creates an empty preference store.
func New() *Store {
	return &Store{restore: make(map[string]bool)}
}

// Restore reports the enhanced-restoration flag for a submitter.
func (s *Store) Restore(submitterID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.restore[submitterID]
}

// ToggleRestore flips the enhanced-restoration flag and returns the new value.
func (s *Store) ToggleRestore(submitterID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restore[submitterID] = !s.restore[submitterID]
	return s.restore[submitterID]
}
