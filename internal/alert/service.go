package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"time"

	nanoid "github.com/matoous/go-nanoid/v2"

	"github.com/classmesh/handraise/internal/observe"
)

// idSuffixAlphabet and idSuffixLength shape the random part of alert IDs.
// The generation-time prefix already orders IDs; the suffix only has to
// break ties within a millisecond.
const (
	idSuffixAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	idSuffixLength   = 8
)

// CreateParams carries the pre-computed detection fields for a new alert.
type CreateParams struct {
	// ClassroomSessionID is the main classroom session. Required.
	ClassroomSessionID string

	// BreakoutRoomSessionID is the room the detection occurred in.
	// Defaults to ClassroomSessionID when empty.
	BreakoutRoomSessionID string

	// BreakoutRoomName is the breakout room display name, if any.
	BreakoutRoomName string

	// Topic is the extracted topic. Required.
	Topic string

	// Urgency is the computed severity. Required.
	Urgency Urgency

	// TriggerKeywords lists the matched phrases. Required, non-empty.
	TriggerKeywords []string

	// ContextSnippet is the rendered speech tail.
	ContextSnippet string

	// SourceTranscriptIDs lists contributing transcript entries.
	SourceTranscriptIDs []string

	// DetectedAt overrides the detection timestamp. Zero means now.
	DetectedAt time.Time
}

// validate rejects malformed params before any store mutation.
func (p CreateParams) validate() error {
	var errs []error
	if p.ClassroomSessionID == "" {
		errs = append(errs, errors.New("classroom session id is required"))
	}
	if p.Topic == "" {
		errs = append(errs, errors.New("topic is required"))
	}
	if !p.Urgency.IsValid() {
		errs = append(errs, fmt.Errorf("urgency %q is invalid; valid values: low, medium, high", p.Urgency))
	}
	if len(p.TriggerKeywords) == 0 {
		errs = append(errs, errors.New("at least one trigger keyword is required"))
	}
	return errors.Join(errs...)
}

// Service wraps the alert [Store] with the validated lifecycle state
// machine and the convenience queries the HTTP layer maps onto.
//
// Transition methods return (nil, nil) when the alert ID is unknown —
// not-found is an expected condition (racing dismiss calls) and is never an
// error. A found alert in a status outside the transition's allowed set
// yields a [*StateConflictError] and leaves the record unchanged.
//
// All methods are safe for concurrent use.
type Service struct {
	store   *Store
	metrics *observe.Metrics
}

// NewService creates a Service over store, reporting to the default metrics
// instance.
func NewService(store *Store) *Service {
	return &Service{store: store, metrics: observe.DefaultMetrics()}
}

// Create validates params, assigns an ID and detection timestamp, and
// persists a new pending alert. The store is never touched when validation
// fails.
func (s *Service) Create(params CreateParams) (Alert, error) {
	if err := params.validate(); err != nil {
		return Alert{}, fmt.Errorf("alert: create: %w", err)
	}

	detectedAt := params.DetectedAt
	if detectedAt.IsZero() {
		detectedAt = time.Now().UTC()
	}

	suffix, err := nanoid.Generate(idSuffixAlphabet, idSuffixLength)
	if err != nil {
		return Alert{}, fmt.Errorf("alert: generate id: %w", err)
	}

	roomSession := params.BreakoutRoomSessionID
	if roomSession == "" {
		roomSession = params.ClassroomSessionID
	}

	a := Alert{
		ID:                    fmt.Sprintf("alert-%d-%s", detectedAt.UnixMilli(), suffix),
		ClassroomSessionID:    params.ClassroomSessionID,
		BreakoutRoomSessionID: roomSession,
		BreakoutRoomName:      params.BreakoutRoomName,
		DetectedAt:            detectedAt,
		Topic:                 params.Topic,
		Urgency:               params.Urgency,
		TriggerKeywords:       slices.Clone(params.TriggerKeywords),
		ContextSnippet:        params.ContextSnippet,
		Status:                StatusPending,
		SourceTranscriptIDs:   slices.Clone(params.SourceTranscriptIDs),
	}
	s.store.Create(a)
	s.metrics.RecordAlertCreated(context.Background(), string(a.Urgency))

	slog.Info("alert created",
		"alert_id", a.ID,
		"classroom_session_id", a.ClassroomSessionID,
		"room_session_id", a.BreakoutRoomSessionID,
		"urgency", a.Urgency,
		"topic", a.Topic,
		"keywords", len(a.TriggerKeywords),
	)
	return a, nil
}

// Acknowledge transitions a pending alert to acknowledged, recording who
// first engaged with it. Returns (nil, nil) when the ID is unknown.
func (s *Service) Acknowledge(id, actorID string) (*Alert, error) {
	return s.transition("acknowledge", id, []Status{StatusPending}, func(a *Alert) {
		now := time.Now().UTC()
		a.Status = StatusAcknowledged
		a.AcknowledgedBy = actorID
		a.AcknowledgedAt = &now
	})
}

// Resolve transitions a pending or acknowledged alert to resolved.
// Returns (nil, nil) when the ID is unknown.
func (s *Service) Resolve(id, actorID string) (*Alert, error) {
	return s.transition("resolve", id, []Status{StatusPending, StatusAcknowledged}, func(a *Alert) {
		now := time.Now().UTC()
		a.Status = StatusResolved
		a.ResolvedBy = actorID
		a.ResolvedAt = &now
	})
}

// Dismiss transitions a pending, acknowledged, or resolved alert to
// dismissed. Dismissed is terminal. Returns (nil, nil) when the ID is
// unknown.
func (s *Service) Dismiss(id, actorID string) (*Alert, error) {
	return s.transition("dismiss", id, []Status{StatusPending, StatusAcknowledged, StatusResolved}, func(a *Alert) {
		now := time.Now().UTC()
		a.Status = StatusDismissed
		a.DismissedBy = actorID
		a.DismissedAt = &now
	})
}

// transition applies a state-machine step as one atomic read-check-write.
func (s *Service) transition(op, id string, from []Status, apply func(*Alert)) (*Alert, error) {
	ctx := context.Background()
	wasPending := false
	updated, found, err := s.store.Update(id, func(a *Alert) error {
		if !slices.Contains(from, a.Status) {
			return &StateConflictError{Op: op, ID: id, Current: a.Status, Required: from}
		}
		wasPending = a.Status == StatusPending
		apply(a)
		return nil
	})
	if !found {
		s.metrics.RecordTransition(ctx, op, "not_found", false)
		slog.Debug("alert transition on unknown id", "op", op, "alert_id", id)
		return nil, nil
	}
	if err != nil {
		s.metrics.RecordTransition(ctx, op, "conflict", false)
		return nil, err
	}
	s.metrics.RecordTransition(ctx, op, "ok", wasPending)

	slog.Info("alert transition",
		"op", op,
		"alert_id", id,
		"status", updated.Status,
	)
	return &updated, nil
}

// GetAlerts returns the session's alerts matching q, in detection order.
func (s *Service) GetAlerts(sessionID string, q Query) []Alert {
	return s.store.List(sessionID, q)
}

// GetAlertCounts returns per-status totals for a session.
func (s *Service) GetAlertCounts(sessionID string) Counts {
	return s.store.Counts(sessionID)
}

// GetPendingAlertsByPriority returns the session's pending alerts ordered
// by urgency (high first), then chronologically by detection time.
func (s *Service) GetPendingAlertsByPriority(sessionID string) []Alert {
	pending := s.store.List(sessionID, Query{Status: StatusPending})
	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].Urgency.rank() > pending[j].Urgency.rank()
	})
	return pending
}

// GetAlertByID returns the alert with the given ID from any session, or nil
// when no such alert exists.
func (s *Service) GetAlertByID(id string) *Alert {
	a, ok := s.store.Get(id)
	if !ok {
		return nil
	}
	return &a
}

// StalePendingIDs returns the IDs of alerts still pending whose detection
// time is before cutoff, across all sessions. Used by the [Sweeper].
func (s *Service) StalePendingIDs(cutoff time.Time) []string {
	return s.store.PendingOlderThan(cutoff)
}

// ClearSession drops all alerts for a session. Used at session teardown.
func (s *Service) ClearSession(sessionID string) {
	pending := s.store.ClearSession(sessionID)
	if pending > 0 {
		s.metrics.RecordClearedPending(context.Background(), int64(pending))
	}
	slog.Info("alert session cleared", "session_id", sessionID, "dropped_pending", pending)
}
