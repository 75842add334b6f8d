// Package transcript provides the session-scoped transcript store consumed
// by the help-alert pipeline. Speech capture appends entries; the pipeline
// only reads them back, filtered by timestamp, confidence, and speaker role.
//
// The store is in-memory and process-local. All operations are safe for
// concurrent use; reads return copies so callers never observe concurrent
// mutation.
package transcript

import "time"

// Role identifies the kind of speaker a transcript entry belongs to.
type Role string

const (
	RoleInstructor Role = "instructor"
	RoleStudent    Role = "student"
)

// IsValid reports whether r is a recognised speaker role.
func (r Role) IsValid() bool {
	return r == RoleInstructor || r == RoleStudent
}

// Entry is one timestamped speech-to-text segment attributed to a speaker.
// Entries are produced by the speech capture collaborator and are read-only
// to the pipeline.
type Entry struct {
	// ID uniquely identifies this entry. Assigned on append when empty.
	ID string

	// SessionID is the room session this entry was captured in.
	SessionID string

	// SpeakerID identifies the speaker across entries.
	SpeakerID string

	// SpeakerRole is the speaker's role in the classroom.
	SpeakerRole Role

	// SpeakerName is the speaker's display name, used in context snippets.
	SpeakerName string

	// Text is the transcribed speech content. May be empty for segments the
	// STT provider could not decode.
	Text string

	// Timestamp marks when the utterance was captured. Stamped on append
	// when zero.
	Timestamp time.Time

	// Confidence is the STT confidence score (0.0–1.0).
	Confidence float64

	// BreakoutRoomName is the display name of the breakout room the entry
	// was captured in. Empty for main-room speech.
	BreakoutRoomName string
}
