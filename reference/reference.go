// Package reference provides the deduplicated, stably-ordered store of
// citable content chunks accumulated during one turn. Ordinals are assigned
// on first insertion and never change, so citations remain valid across
// rounds.
package reference

import (
	"sync"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/logging"
)

// Store merges chunks by their (source, locator) key. It is owned exclusively
// by the orchestrator for the turn's lifetime.
type Store struct {
	mu      sync.RWMutex
	byKey   map[string]int // key -> index into ordered
	ordered []core.Chunk
	logger  logging.Logger
}

// NewStore constructs an empty reference store.
func NewStore(logger logging.Logger) *Store {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Store{byKey: map[string]int{}, logger: logger}
}

// Add merges chunks by dedup key, assigning a new ordinal only to previously
// unseen keys. Existing ordinals are immutable; re-adding a known key is a
// no-op beyond a debug log line.
func (s *Store) Add(chunks []core.Chunk) {
	if len(chunks) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range chunks {
		key := c.Key()
		if _, ok := s.byKey[key]; ok {
			s.logger.Debug("reference.duplicate", "source", c.Source, "locator", c.Locator)
			continue
		}
		c.Ordinal = len(s.ordered) + 1
		s.byKey[key] = len(s.ordered)
		s.ordered = append(s.ordered, c)
	}
}

// ExtractFromResults pulls each tool result's content chunks and folds them
// in via the same merge rule as Add.
func (s *Store) ExtractFromResults(results []core.ToolCallResult) {
	for _, r := range results {
		s.Add(r.Chunks)
	}
}

// Chunks returns the current chunk set in stable ordinal order.
func (s *Store) Chunks() []core.Chunk {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Chunk, len(s.ordered))
	copy(out, s.ordered)
	return out
}

// Len returns the number of distinct chunks.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ordered)
}
