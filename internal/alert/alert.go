// Package alert provides the help-alert record, its session-scoped store,
// and the lifecycle service enforcing the alert state machine.
//
// Alerts are created only by the detection pipeline, always in status
// pending, and are mutated only through the three validated transitions:
// acknowledge, resolve, and dismiss. Callers receive copies; mutating a
// returned alert never affects the store.
package alert

import (
	"fmt"
	"time"
)

// Urgency is the coarse severity classification driving instructor triage.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// IsValid reports whether u is a recognised urgency level.
func (u Urgency) IsValid() bool {
	switch u {
	case UrgencyLow, UrgencyMedium, UrgencyHigh:
		return true
	}
	return false
}

// rank orders urgencies for priority queries. Higher is more urgent.
func (u Urgency) rank() int {
	switch u {
	case UrgencyHigh:
		return 2
	case UrgencyMedium:
		return 1
	}
	return 0
}

// Status is the lifecycle state of an alert.
type Status string

const (
	StatusPending      Status = "pending"
	StatusAcknowledged Status = "acknowledged"
	StatusResolved     Status = "resolved"
	StatusDismissed    Status = "dismissed"
)

// IsValid reports whether s is a recognised alert status.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusAcknowledged, StatusResolved, StatusDismissed:
		return true
	}
	return false
}

// Alert is a persisted, lifecycle-managed record created from a detection.
//
// AcknowledgedBy and AcknowledgedAt record who first engaged with the alert
// and are never overwritten by later transitions; resolve and dismiss stamp
// their own actor fields instead.
type Alert struct {
	// ID is the globally unique alert identifier.
	ID string

	// ClassroomSessionID is the main classroom session this alert belongs to.
	ClassroomSessionID string

	// BreakoutRoomSessionID is the room session the detection occurred in.
	// Equals ClassroomSessionID for main-room detections.
	BreakoutRoomSessionID string

	// BreakoutRoomName is the display name of the breakout room, if any.
	BreakoutRoomName string

	// DetectedAt is when the detection produced this alert.
	DetectedAt time.Time

	// Topic is a short description of what the student is struggling with.
	Topic string

	// Urgency is the computed severity.
	Urgency Urgency

	// TriggerKeywords lists the matched phrases, deduplicated in order of
	// first occurrence.
	TriggerKeywords []string

	// ContextSnippet is the rendered tail of the speaker's recent speech.
	// Always at most 300 characters.
	ContextSnippet string

	// Status is the current lifecycle state.
	Status Status

	// AcknowledgedBy is the actor who first acknowledged the alert.
	// Empty while the alert is pending.
	AcknowledgedBy string

	// AcknowledgedAt is when the alert was first acknowledged.
	AcknowledgedAt *time.Time

	// ResolvedBy is the actor who resolved the alert, if resolved.
	ResolvedBy string

	// ResolvedAt is when the alert was resolved.
	ResolvedAt *time.Time

	// DismissedBy is the actor who dismissed the alert, if dismissed.
	// The sweeper records "auto-dismiss".
	DismissedBy string

	// DismissedAt is when the alert was dismissed.
	DismissedAt *time.Time

	// SourceTranscriptIDs lists the transcript entries that contributed
	// matches, deduplicated.
	SourceTranscriptIDs []string
}

// clone returns a deep copy of a so store internals never leak to callers.
func (a Alert) clone() Alert {
	c := a
	c.TriggerKeywords = append([]string(nil), a.TriggerKeywords...)
	c.SourceTranscriptIDs = append([]string(nil), a.SourceTranscriptIDs...)
	if a.AcknowledgedAt != nil {
		t := *a.AcknowledgedAt
		c.AcknowledgedAt = &t
	}
	if a.ResolvedAt != nil {
		t := *a.ResolvedAt
		c.ResolvedAt = &t
	}
	if a.DismissedAt != nil {
		t := *a.DismissedAt
		c.DismissedAt = &t
	}
	return c
}

// Counts aggregates per-status alert totals for one session.
// Pending+Acknowledged+Resolved+Dismissed always equals Total.
type Counts struct {
	Pending      int
	Acknowledged int
	Resolved     int
	Dismissed    int
	Total        int
}

// StateConflictError reports a lifecycle transition attempted from a status
// outside the transition's allowed set. The alert is left unchanged.
type StateConflictError struct {
	// Op is the attempted transition ("acknowledge", "resolve", "dismiss").
	Op string

	// ID is the alert the transition was attempted on.
	ID string

	// Current is the alert's status at the time of the attempt.
	Current Status

	// Required lists the statuses the transition is valid from.
	Required []Status
}

// Error implements the error interface.
func (e *StateConflictError) Error() string {
	return fmt.Sprintf("cannot %s alert %s with status %q; must be one of %v",
		e.Op, e.ID, e.Current, e.Required)
}
