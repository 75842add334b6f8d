package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/classmesh/handraise/internal/alert"
	"github.com/classmesh/handraise/internal/detect"
	"github.com/classmesh/handraise/internal/taxonomy"
	"github.com/classmesh/handraise/internal/transcript"
)

type fixture struct {
	transcripts *transcript.Store
	alerts      *alert.Service
	analyzer    *Analyzer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	transcripts := transcript.NewStore()
	alerts := alert.NewService(alert.NewStore())
	analyzer := NewAnalyzer(AnalyzerConfig{
		Transcripts: transcripts,
		Detector:    detect.NewEngine(taxonomy.Default()),
		Alerts:      alerts,
	})
	return &fixture{transcripts: transcripts, alerts: alerts, analyzer: analyzer}
}

func (f *fixture) append(t *testing.T, e transcript.Entry) transcript.Entry {
	t.Helper()
	if e.SessionID == "" {
		e.SessionID = "room-1"
	}
	if e.SpeakerRole == "" {
		e.SpeakerRole = transcript.RoleStudent
	}
	if e.Confidence == 0 {
		e.Confidence = 0.9
	}
	stored, err := f.transcripts.Append(e)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	return stored
}

func TestAnalyzeTranscripts(t *testing.T) {
	ctx := context.Background()

	t.Run("empty window is a no-op", func(t *testing.T) {
		f := newFixture(t)
		got, err := f.analyzer.AnalyzeTranscripts(ctx, "room-1", Options{})
		if err != nil {
			t.Fatalf("AnalyzeTranscripts: %v", err)
		}
		if got == nil || len(got) != 0 {
			t.Errorf("created = %v, want non-nil empty slice", got)
		}
	})

	t.Run("detection creates a pending alert", func(t *testing.T) {
		f := newFixture(t)
		entry := f.append(t, transcript.Entry{
			SpeakerID:        "alice",
			SpeakerName:      "Alice",
			Text:             "I'm stuck on this problem",
			BreakoutRoomName: "Room B",
		})

		got, err := f.analyzer.AnalyzeTranscripts(ctx, "room-1", Options{
			ClassroomSessionID: "class-1",
		})
		if err != nil {
			t.Fatalf("AnalyzeTranscripts: %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("created = %d alerts, want 1", len(got))
		}
		a := got[0]
		if a.Status != alert.StatusPending {
			t.Errorf("status = %q, want pending", a.Status)
		}
		if a.ClassroomSessionID != "class-1" || a.BreakoutRoomSessionID != "room-1" {
			t.Errorf("sessions = %q / %q, want class-1 / room-1", a.ClassroomSessionID, a.BreakoutRoomSessionID)
		}
		if a.BreakoutRoomName != "Room B" {
			t.Errorf("room name = %q, want Room B", a.BreakoutRoomName)
		}
		if len(a.SourceTranscriptIDs) != 1 || a.SourceTranscriptIDs[0] != entry.ID {
			t.Errorf("source ids = %v, want [%s]", a.SourceTranscriptIDs, entry.ID)
		}

		// The alert is stored under the classroom session.
		if c := f.alerts.GetAlertCounts("class-1"); c.Pending != 1 {
			t.Errorf("classroom counts = %+v, want 1 pending", c)
		}
	})

	t.Run("classroom defaults to analyzed session", func(t *testing.T) {
		f := newFixture(t)
		f.append(t, transcript.Entry{SpeakerID: "alice", Text: "I need help"})

		got, err := f.analyzer.AnalyzeTranscripts(ctx, "room-1", Options{})
		if err != nil {
			t.Fatalf("AnalyzeTranscripts: %v", err)
		}
		if len(got) != 1 || got[0].ClassroomSessionID != "room-1" {
			t.Errorf("created = %+v, want classroom session room-1", got)
		}
	})

	t.Run("low confidence entries filtered by default", func(t *testing.T) {
		f := newFixture(t)
		f.append(t, transcript.Entry{SpeakerID: "alice", Text: "I need help", Confidence: 0.4})

		got, err := f.analyzer.AnalyzeTranscripts(ctx, "room-1", Options{})
		if err != nil {
			t.Fatalf("AnalyzeTranscripts: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("created = %v, want none below the default confidence floor", got)
		}
	})

	t.Run("min confidence override", func(t *testing.T) {
		f := newFixture(t)
		f.append(t, transcript.Entry{SpeakerID: "alice", Text: "I need help", Confidence: 0.4})

		got, err := f.analyzer.AnalyzeTranscripts(ctx, "room-1", Options{MinConfidence: 0.3})
		if err != nil {
			t.Fatalf("AnalyzeTranscripts: %v", err)
		}
		if len(got) != 1 {
			t.Errorf("created = %d, want 1 with the lowered floor", len(got))
		}
	})

	t.Run("since windows out consumed entries", func(t *testing.T) {
		f := newFixture(t)
		base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
		f.append(t, transcript.Entry{SpeakerID: "alice", Text: "I need help", Timestamp: base})

		first, err := f.analyzer.AnalyzeTranscripts(ctx, "room-1", Options{})
		if err != nil {
			t.Fatalf("first pass: %v", err)
		}
		if len(first) != 1 {
			t.Fatalf("first pass created %d alerts, want 1", len(first))
		}

		second, err := f.analyzer.AnalyzeTranscripts(ctx, "room-1", Options{Since: base})
		if err != nil {
			t.Fatalf("second pass: %v", err)
		}
		if len(second) != 0 {
			t.Errorf("second pass created %d alerts, want 0; caller windowing must prevent duplicates", len(second))
		}
	})

	t.Run("swap races safely with analysis", func(t *testing.T) {
		f := newFixture(t)
		f.append(t, transcript.Entry{SpeakerID: "alice", Text: "I need help"})

		// A taxonomy reload may fire while an analysis pass is running; the
		// engine swap and the pass must not trip over each other.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for i := 0; i < 100; i++ {
				f.analyzer.SetDetector(detect.NewEngine(taxonomy.Default()))
			}
		}()
		for i := 0; i < 100; i++ {
			if _, err := f.analyzer.AnalyzeTranscripts(ctx, "room-1", Options{}); err != nil {
				t.Fatalf("AnalyzeTranscripts: %v", err)
			}
		}
		<-done
	})

	t.Run("detector swap takes effect", func(t *testing.T) {
		f := newFixture(t)
		f.append(t, transcript.Entry{SpeakerID: "alice", Text: "widget trouble here"})

		got, err := f.analyzer.AnalyzeTranscripts(ctx, "room-1", Options{})
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 0 {
			t.Fatalf("created = %d before swap, want 0", len(got))
		}

		custom := taxonomy.Default()
		custom.Categories[taxonomy.CategoryDirect] = []string{"widget trouble"}
		f.analyzer.SetDetector(detect.NewEngine(custom))

		got, err = f.analyzer.AnalyzeTranscripts(ctx, "room-1", Options{})
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 1 {
			t.Errorf("created = %d after swap, want 1", len(got))
		}
	})
}
