package alert

import (
	"sync"
	"time"
)

// Query narrows the result set of [Store.List].
// All non-zero fields are applied as AND conditions.
type Query struct {
	// Status restricts results to alerts in this lifecycle state.
	Status Status

	// Urgency restricts results to alerts of this severity.
	Urgency Urgency

	// BreakoutRoom restricts results to alerts detected in this breakout
	// room (by display name).
	BreakoutRoom string
}

// Store is a thread-safe, session-scoped, in-memory alert collection.
// Alerts within a session are kept in insertion order, which is
// chronological by detection time.
//
// The store exclusively owns its records: every accessor returns copies and
// every mutation happens atomically under the store lock. The zero value is
// ready to use.
type Store struct {
	mu       sync.RWMutex
	sessions map[string][]Alert
}

// NewStore returns an initialised [Store].
func NewStore() *Store {
	return &Store{
		sessions: make(map[string][]Alert),
	}
}

// Create appends a to its classroom session. The caller (the lifecycle
// service) is responsible for ID generation and validation.
func (s *Store) Create(a Alert) Alert {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sessions == nil {
		s.sessions = make(map[string][]Alert)
	}
	s.sessions[a.ClassroomSessionID] = append(s.sessions[a.ClassroomSessionID], a.clone())
	return a
}

// Get returns a copy of the alert with the given ID, searching across all
// known sessions and short-circuiting on first match. The linear scan is the
// accepted cost at classroom scale.
func (s *Store) Get(id string) (Alert, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, alerts := range s.sessions {
		for i := range alerts {
			if alerts[i].ID == id {
				return alerts[i].clone(), true
			}
		}
	}
	return Alert{}, false
}

// Update applies fn to the alert with the given ID as a single atomic
// read-check-write. fn receives the stored record and must either mutate it
// and return nil, or leave it untouched and return an error (a failed
// precondition). Two racing updates therefore serialize: one observes the
// pre-transition state and wins, the other observes the post-transition
// state and fails its check.
//
// Returns the post-update copy and whether the ID was found. fn's error is
// passed through unchanged.
func (s *Store) Update(id string, fn func(*Alert) error) (Alert, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, alerts := range s.sessions {
		for i := range alerts {
			if alerts[i].ID != id {
				continue
			}
			if err := fn(&alerts[i]); err != nil {
				return Alert{}, true, err
			}
			return alerts[i].clone(), true, nil
		}
	}
	return Alert{}, false, nil
}

// List returns copies of the session's alerts matching q, in insertion
// order. An unknown session yields an empty slice.
func (s *Store) List(sessionID string, q Query) []Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.sessions[sessionID]
	result := make([]Alert, 0, len(stored))
	for i := range stored {
		a := &stored[i]
		if q.Status != "" && a.Status != q.Status {
			continue
		}
		if q.Urgency != "" && a.Urgency != q.Urgency {
			continue
		}
		if q.BreakoutRoom != "" && a.BreakoutRoomName != q.BreakoutRoom {
			continue
		}
		result = append(result, a.clone())
	}
	return result
}

// Counts returns per-status totals for a session.
func (s *Store) Counts(sessionID string) Counts {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var c Counts
	for i := range s.sessions[sessionID] {
		switch s.sessions[sessionID][i].Status {
		case StatusPending:
			c.Pending++
		case StatusAcknowledged:
			c.Acknowledged++
		case StatusResolved:
			c.Resolved++
		case StatusDismissed:
			c.Dismissed++
		}
		c.Total++
	}
	return c
}

// PendingOlderThan returns the IDs of alerts still pending whose detection
// time is before cutoff, across all sessions. Used by the auto-dismiss
// sweeper; the returned IDs are re-checked under [Store.Update] when
// dismissed, so a concurrent acknowledge cannot be clobbered.
func (s *Store) PendingOlderThan(cutoff time.Time) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for _, alerts := range s.sessions {
		for i := range alerts {
			if alerts[i].Status == StatusPending && alerts[i].DetectedAt.Before(cutoff) {
				ids = append(ids, alerts[i].ID)
			}
		}
	}
	return ids
}

// ClearSession drops all alerts for a session and returns the number that
// were still pending, so the caller can keep the pending gauge accurate.
// Used at session teardown.
func (s *Store) ClearSession(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := 0
	for i := range s.sessions[sessionID] {
		if s.sessions[sessionID][i].Status == StatusPending {
			pending++
		}
	}
	delete(s.sessions, sessionID)
	return pending
}
