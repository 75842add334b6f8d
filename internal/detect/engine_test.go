package detect

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/classmesh/handraise/internal/alert"
	"github.com/classmesh/handraise/internal/taxonomy"
	"github.com/classmesh/handraise/internal/transcript"
)

func studentEntry(id, speaker, text string) transcript.Entry {
	return transcript.Entry{
		ID:          id,
		SessionID:   "session-1",
		SpeakerID:   speaker,
		SpeakerName: strings.ToUpper(speaker[:1]) + speaker[1:],
		SpeakerRole: transcript.RoleStudent,
		Text:        text,
		Confidence:  0.9,
	}
}

func TestAnalyzeSingleConfusion(t *testing.T) {
	e := NewEngine(taxonomy.Default())

	got := e.Analyze([]transcript.Entry{
		studentEntry("e1", "alice", "I don't understand this"),
	})
	if len(got) != 1 {
		t.Fatalf("detections = %d, want 1", len(got))
	}
	d := got[0]
	if d.SpeakerID != "alice" {
		t.Errorf("speaker = %q, want alice", d.SpeakerID)
	}
	if d.Urgency != alert.UrgencyMedium {
		t.Errorf("urgency = %q, want medium (confusion weight 2 meets the medium score)", d.Urgency)
	}
	if len(d.Keywords) != 1 || d.Keywords[0] != "I don't understand" {
		t.Errorf("keywords = %v, want [I don't understand]", d.Keywords)
	}
	if len(d.SourceIDs) != 1 || d.SourceIDs[0] != "e1" {
		t.Errorf("source ids = %v, want [e1]", d.SourceIDs)
	}
	if d.Score != 2 {
		t.Errorf("score = %d, want 2", d.Score)
	}
}

func TestAnalyzeEscalatesToHigh(t *testing.T) {
	e := NewEngine(taxonomy.Default())

	got := e.Analyze([]transcript.Entry{
		studentEntry("e1", "alice", "I'm confused about recursion"),
		studentEntry("e2", "alice", "I don't understand this part"),
		studentEntry("e3", "alice", "I need help"),
	})
	if len(got) != 1 {
		t.Fatalf("detections = %d, want 1", len(got))
	}
	d := got[0]
	if d.Urgency != alert.UrgencyHigh {
		t.Errorf("urgency = %q, want high", d.Urgency)
	}
	if d.Score != 7 {
		t.Errorf("score = %d, want 7 (2+2+3)", d.Score)
	}
	if len(d.Keywords) != 3 {
		t.Errorf("keywords = %v, want 3 distinct phrases", d.Keywords)
	}
	if len(d.SourceIDs) != 3 {
		t.Errorf("source ids = %v, want all three entries", d.SourceIDs)
	}
}

func TestAnalyzeHighByKeywordCount(t *testing.T) {
	// Raise the score cut-points out of reach so only the distinct-count
	// rule can produce high.
	tax := taxonomy.Default()
	tax.Thresholds = taxonomy.Thresholds{HighScore: 100, HighCount: 3, MediumScore: 50, MediumCount: 2}
	e := NewEngine(tax)

	got := e.Analyze([]transcript.Entry{
		studentEntry("e1", "alice", "how do I start, what happens if it breaks, is there a way around it"),
	})
	if len(got) != 1 {
		t.Fatalf("detections = %d, want 1", len(got))
	}
	if got[0].Urgency != alert.UrgencyHigh {
		t.Errorf("urgency = %q, want high via distinct keyword count", got[0].Urgency)
	}
	if got[0].Score != 3 {
		t.Errorf("score = %d, want 3", got[0].Score)
	}
}

func TestAnalyzeLowUrgency(t *testing.T) {
	e := NewEngine(taxonomy.Default())

	got := e.Analyze([]transcript.Entry{
		studentEntry("e1", "alice", "how do I submit the assignment"),
	})
	if len(got) != 1 {
		t.Fatalf("detections = %d, want 1", len(got))
	}
	if got[0].Urgency != alert.UrgencyLow {
		t.Errorf("urgency = %q, want low (one question keyword, weight 1)", got[0].Urgency)
	}
}

func TestAnalyzeCaseInsensitive(t *testing.T) {
	e := NewEngine(taxonomy.Default())

	got := e.Analyze([]transcript.Entry{
		studentEntry("e1", "alice", "i'M CoNfUsEd"),
	})
	if len(got) != 1 {
		t.Fatalf("detections = %d, want 1", len(got))
	}
	if got[0].Keywords[0] != "I'm confused" {
		t.Errorf("keyword = %q, want the configured literal form", got[0].Keywords[0])
	}
}

func TestAnalyzeFalsePositiveSuppressesEntry(t *testing.T) {
	e := NewEngine(taxonomy.Default())

	t.Run("whole entry skipped", func(t *testing.T) {
		got := e.Analyze([]transcript.Entry{
			studentEntry("e1", "alice", "I'm confused but wait, I understand now"),
		})
		if len(got) != 0 {
			t.Fatalf("detections = %v, want none; false positives take precedence", got)
		}
	})

	t.Run("other entries still scanned", func(t *testing.T) {
		got := e.Analyze([]transcript.Entry{
			studentEntry("e1", "alice", "oh I see, that helps"),
			studentEntry("e2", "alice", "actually I'm stuck again"),
		})
		if len(got) != 1 {
			t.Fatalf("detections = %d, want 1", len(got))
		}
		if len(got[0].SourceIDs) != 1 || got[0].SourceIDs[0] != "e2" {
			t.Errorf("source ids = %v, want only e2", got[0].SourceIDs)
		}
	})
}

func TestAnalyzeSkipsInstructors(t *testing.T) {
	e := NewEngine(taxonomy.Default())

	got := e.Analyze([]transcript.Entry{
		{
			ID: "e1", SessionID: "session-1", SpeakerID: "teacher",
			SpeakerName: "Ms. Reed", SpeakerRole: transcript.RoleInstructor,
			Text: "raise your hand if you need help",
		},
		studentEntry("e2", "alice", "I need help with this"),
	})
	if len(got) != 1 {
		t.Fatalf("detections = %d, want 1 (instructor speech excluded)", len(got))
	}
	if got[0].SpeakerID != "alice" {
		t.Errorf("speaker = %q, want alice", got[0].SpeakerID)
	}
}

func TestAnalyzeGroupsBySpeaker(t *testing.T) {
	e := NewEngine(taxonomy.Default())

	got := e.Analyze([]transcript.Entry{
		studentEntry("e1", "alice", "I'm lost"),
		studentEntry("e2", "bob", "nice weather today"),
		studentEntry("e3", "bob", "this is impossible"),
		studentEntry("e4", "alice", "I give up"),
	})
	if len(got) != 2 {
		t.Fatalf("detections = %d, want 2", len(got))
	}
	if got[0].SpeakerID != "alice" || got[1].SpeakerID != "bob" {
		t.Errorf("speakers = %q, %q; want first-appearance order alice, bob", got[0].SpeakerID, got[1].SpeakerID)
	}
	// Alice's score: confusion 2 + frustration 4 = 6 → high.
	if got[0].Urgency != alert.UrgencyHigh {
		t.Errorf("alice urgency = %q, want high", got[0].Urgency)
	}
	// Bob's score: frustration 4 from one keyword → high by score alone.
	if got[1].Urgency != alert.UrgencyHigh {
		t.Errorf("bob urgency = %q, want high", got[1].Urgency)
	}
}

func TestAnalyzeDeduplicatesKeywords(t *testing.T) {
	e := NewEngine(taxonomy.Default())

	got := e.Analyze([]transcript.Entry{
		studentEntry("e1", "alice", "I'm stuck"),
		studentEntry("e2", "alice", "seriously, I'm stuck"),
	})
	if len(got) != 1 {
		t.Fatalf("detections = %d, want 1", len(got))
	}
	d := got[0]
	if len(d.Keywords) != 1 {
		t.Errorf("keywords = %v, want the phrase once", d.Keywords)
	}
	if len(d.SourceIDs) != 2 {
		t.Errorf("source ids = %v, want both entries", d.SourceIDs)
	}
	if d.Score != 6 {
		t.Errorf("score = %d, want 6; repeat matches still accumulate weight", d.Score)
	}
}

func TestAnalyzeNoMatches(t *testing.T) {
	e := NewEngine(taxonomy.Default())

	cases := map[string][]transcript.Entry{
		"empty batch":  nil,
		"empty text":   {studentEntry("e1", "alice", "")},
		"benign text":  {studentEntry("e1", "alice", "the mitochondria is the powerhouse of the cell")},
		"role missing": {{ID: "e1", SessionID: "session-1", SpeakerID: "x", Text: "nothing to see"}},
	}
	for name, entries := range cases {
		t.Run(name, func(t *testing.T) {
			if got := e.Analyze(entries); len(got) != 0 {
				t.Errorf("detections = %v, want none", got)
			}
		})
	}
}

func TestContextSnippet(t *testing.T) {
	e := NewEngine(taxonomy.Default())

	t.Run("last three entries rendered", func(t *testing.T) {
		got := e.Analyze([]transcript.Entry{
			studentEntry("e1", "alice", "first thing"),
			studentEntry("e2", "alice", "second thing"),
			studentEntry("e3", "alice", "third thing"),
			studentEntry("e4", "alice", "I'm stuck"),
		})
		if len(got) != 1 {
			t.Fatalf("detections = %d, want 1", len(got))
		}
		want := `Alice: "second thing" Alice: "third thing" Alice: "I'm stuck"`
		if got[0].ContextSnippet != want {
			t.Errorf("snippet = %q, want %q", got[0].ContextSnippet, want)
		}
	})

	t.Run("truncated with ellipsis", func(t *testing.T) {
		long := strings.Repeat("very long rambling speech ", 20)
		got := e.Analyze([]transcript.Entry{
			studentEntry("e1", "alice", long),
			studentEntry("e2", "alice", long+"and now I'm stuck"),
		})
		if len(got) != 1 {
			t.Fatalf("detections = %d, want 1", len(got))
		}
		snippet := got[0].ContextSnippet
		if n := utf8.RuneCountInString(snippet); n > 300 {
			t.Errorf("snippet length = %d runes, want at most 300", n)
		}
		if !strings.HasSuffix(snippet, "...") {
			t.Errorf("snippet %q should end with ellipsis", snippet)
		}
	})
}
