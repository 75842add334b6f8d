package schedule

import (
	"slices"
	"testing"
	"time"

	"github.com/classmesh/handraise/internal/alert"
	"github.com/classmesh/handraise/internal/detect"
	"github.com/classmesh/handraise/internal/pipeline"
	"github.com/classmesh/handraise/internal/taxonomy"
	"github.com/classmesh/handraise/internal/transcript"
)

func newTestScheduler(t *testing.T, spec string) (*Scheduler, *transcript.Store, *alert.Service) {
	t.Helper()
	transcripts := transcript.NewStore()
	alerts := alert.NewService(alert.NewStore())
	analyzer := pipeline.NewAnalyzer(pipeline.AnalyzerConfig{
		Transcripts: transcripts,
		Detector:    detect.NewEngine(taxonomy.Default()),
		Alerts:      alerts,
	})
	return NewScheduler(SchedulerConfig{Analyzer: analyzer, Spec: spec}), transcripts, alerts
}

func TestRegister(t *testing.T) {
	t.Run("duplicate rejected", func(t *testing.T) {
		s, _, _ := newTestScheduler(t, DefaultSpec)
		if err := s.Register("room-1"); err != nil {
			t.Fatalf("Register: %v", err)
		}
		if err := s.Register("room-1"); err == nil {
			t.Fatal("expected error for duplicate registration")
		}
	})

	t.Run("invalid spec surfaces", func(t *testing.T) {
		s, _, _ := newTestScheduler(t, "not a cron spec")
		if err := s.Register("room-1"); err == nil {
			t.Fatal("expected error for invalid cron spec")
		}
	})

	t.Run("registered lists sessions", func(t *testing.T) {
		s, _, _ := newTestScheduler(t, DefaultSpec)
		for _, id := range []string{"room-1", "room-2"} {
			if err := s.Register(id); err != nil {
				t.Fatal(err)
			}
		}
		got := s.Registered()
		slices.Sort(got)
		if len(got) != 2 || got[0] != "room-1" || got[1] != "room-2" {
			t.Errorf("Registered = %v, want [room-1 room-2]", got)
		}
	})

	t.Run("unregister", func(t *testing.T) {
		s, _, _ := newTestScheduler(t, DefaultSpec)
		if err := s.Register("room-1"); err != nil {
			t.Fatal(err)
		}
		s.Unregister("room-1")
		s.Unregister("room-1") // unknown session is a no-op
		if got := s.Registered(); len(got) != 0 {
			t.Errorf("Registered = %v, want empty", got)
		}
	})
}

func TestScheduledAnalysis(t *testing.T) {
	s, transcripts, alerts := newTestScheduler(t, "@every 1s")
	if err := s.Register("room-1"); err != nil {
		t.Fatal(err)
	}
	s.Start()
	defer s.Stop()

	// Appended after registration, so the entry lands inside the first
	// job window.
	if _, err := transcripts.Append(transcript.Entry{
		SessionID:   "room-1",
		SpeakerID:   "alice",
		SpeakerName: "Alice",
		SpeakerRole: transcript.RoleStudent,
		Text:        "I'm stuck on this",
		Confidence:  0.9,
	}); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(5 * time.Second)
	for {
		if alerts.GetAlertCounts("room-1").Total >= 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for the scheduled analysis pass")
		case <-time.After(10 * time.Millisecond):
		}
	}

	// The watermark advanced past the consumed entry; the next pass must
	// not create a duplicate alert for it.
	time.Sleep(1200 * time.Millisecond)
	if got := alerts.GetAlertCounts("room-1").Total; got != 1 {
		t.Errorf("alerts = %d after further passes, want 1", got)
	}
}
