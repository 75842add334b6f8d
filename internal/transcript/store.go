package transcript

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Filter narrows the result set of [Store.Entries].
// All non-zero fields are applied as AND conditions.
type Filter struct {
	// Since restricts results to entries with a timestamp strictly after
	// this instant. The zero value matches all entries.
	Since time.Time

	// MinConfidence restricts results to entries at or above this STT
	// confidence. Zero matches all entries.
	MinConfidence float64

	// Role restricts results to entries from speakers with this role.
	// An empty value matches all roles.
	Role Role
}

// Store is a thread-safe, in-memory, per-session transcript collection.
// Entries append in arrival order and are never mutated afterwards.
// The zero value is ready to use.
type Store struct {
	mu       sync.RWMutex
	sessions map[string][]Entry
}

// NewStore returns an initialised [Store].
func NewStore() *Store {
	return &Store{
		sessions: make(map[string][]Entry),
	}
}

// Append adds an entry to its session's transcript. A missing ID is replaced
// with a generated UUID and a zero timestamp is stamped with the current
// time. Returns the stored entry.
func (s *Store) Append(entry Entry) (Entry, error) {
	if entry.SessionID == "" {
		return Entry{}, fmt.Errorf("transcript: append: session id is required")
	}
	if entry.SpeakerRole != "" && !entry.SpeakerRole.IsValid() {
		return Entry{}, fmt.Errorf("transcript: append: speaker role %q is invalid", entry.SpeakerRole)
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sessions == nil {
		s.sessions = make(map[string][]Entry)
	}
	s.sessions[entry.SessionID] = append(s.sessions[entry.SessionID], entry)
	return entry, nil
}

// Entries returns a copy of the session's entries matching f, preserving
// arrival order. An unknown session yields an empty slice.
func (s *Store) Entries(sessionID string, f Filter) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.sessions[sessionID]
	result := make([]Entry, 0, len(stored))
	for _, e := range stored {
		if !f.Since.IsZero() && !e.Timestamp.After(f.Since) {
			continue
		}
		if f.MinConfidence > 0 && e.Confidence < f.MinConfidence {
			continue
		}
		if f.Role != "" && e.SpeakerRole != f.Role {
			continue
		}
		result = append(result, e)
	}
	return result
}

// SessionCount returns the number of entries stored for a session.
func (s *Store) SessionCount(sessionID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions[sessionID])
}

// ClearSession drops all entries for a session. Used at session teardown.
func (s *Store) ClearSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}
