// Package schedule drives periodic transcript analysis for active sessions.
//
// Each registered session gets a cron-scheduled job that invokes the
// pipeline over the transcript window since the job's last run. The
// watermark advances before each analysis pass, so re-running never
// re-detects an already-consumed window and never creates duplicate alerts.
//
// All methods are safe for concurrent use.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/classmesh/handraise/internal/pipeline"
)

// DefaultSpec analyzes each registered session every 30 seconds.
const DefaultSpec = "@every 30s"

// Scheduler owns the cron instance and the per-session analysis jobs.
type Scheduler struct {
	analyzer *pipeline.Analyzer
	cron     *cron.Cron
	spec     string

	mu   sync.Mutex
	jobs map[string]*job
}

// job tracks one session's cron entry and its analysis watermark.
type job struct {
	entryID   cron.EntryID
	sessionID string

	mu        sync.Mutex
	watermark time.Time
}

// SchedulerConfig configures a [Scheduler].
type SchedulerConfig struct {
	// Analyzer runs the per-session analysis passes.
	Analyzer *pipeline.Analyzer

	// Spec is the cron schedule shared by all session jobs
	// (robfig/cron syntax, e.g. "@every 30s"). Defaults to [DefaultSpec].
	Spec string
}

// NewScheduler creates a [Scheduler]. Call [Scheduler.Start] to begin
// running registered jobs.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	spec := cfg.Spec
	if spec == "" {
		spec = DefaultSpec
	}
	return &Scheduler{
		analyzer: cfg.Analyzer,
		cron:     cron.New(),
		spec:     spec,
		jobs:     make(map[string]*job),
	}
}

// Start begins executing registered session jobs on their schedule.
func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Info("analysis scheduler started", "spec", s.spec)
}

// Stop halts the scheduler and waits for any running job to complete.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	slog.Info("analysis scheduler stopped")
}

// Register adds a periodic analysis job for sessionID. The first run
// analyzes the window starting at registration time. Registering an
// already-registered session is an error.
func (s *Scheduler) Register(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[sessionID]; exists {
		return fmt.Errorf("schedule: session %q is already registered", sessionID)
	}

	j := &job{
		sessionID: sessionID,
		watermark: time.Now().UTC(),
	}
	entryID, err := s.cron.AddFunc(s.spec, func() {
		s.runJob(j)
	})
	if err != nil {
		return fmt.Errorf("schedule: add job for session %q: %w", sessionID, err)
	}
	j.entryID = entryID
	s.jobs[sessionID] = j

	slog.Info("analysis job registered", "session_id", sessionID, "spec", s.spec)
	return nil
}

// Unregister removes the session's analysis job. Unknown sessions are a
// no-op: teardown paths may race with each other.
func (s *Scheduler) Unregister(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, exists := s.jobs[sessionID]
	if !exists {
		return
	}
	s.cron.Remove(j.entryID)
	delete(s.jobs, sessionID)

	slog.Info("analysis job unregistered", "session_id", sessionID)
}

// Registered returns the IDs of all sessions with active analysis jobs.
func (s *Scheduler) Registered() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	return ids
}

// runJob performs one analysis pass for a session, advancing its watermark
// so the next run only sees newer entries. The watermark advances to the
// pass's start time before analysis: entries appended mid-pass land in the
// next window rather than being lost.
func (s *Scheduler) runJob(j *job) {
	j.mu.Lock()
	since := j.watermark
	j.watermark = time.Now().UTC()
	j.mu.Unlock()

	created, err := s.analyzer.AnalyzeTranscripts(context.Background(), j.sessionID, pipeline.Options{
		Since: since,
	})
	if err != nil {
		slog.Warn("scheduled analysis failed",
			"session_id", j.sessionID,
			"error", err,
		)
		return
	}
	if len(created) > 0 {
		slog.Info("scheduled analysis created alerts",
			"session_id", j.sessionID,
			"alerts", len(created),
		)
	}
}
