// Package pipeline coordinates the transcript store, the detection engine,
// and the alert lifecycle service into the on-demand analysis operation
// callers poll.
//
// Analysis is synchronous and purely in-memory: no call here blocks on I/O,
// and any timeout belongs to the calling transport layer. The pipeline
// performs no cross-call deduplication — callers are responsible for
// windowing (passing an increasing Since) so the same transcript window is
// not re-detected.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/classmesh/handraise/internal/alert"
	"github.com/classmesh/handraise/internal/detect"
	"github.com/classmesh/handraise/internal/observe"
	"github.com/classmesh/handraise/internal/transcript"
)

// DefaultMinConfidence filters low-quality STT output from analysis when
// the caller does not supply a threshold.
const DefaultMinConfidence = 0.7

// Options tunes one analysis invocation.
type Options struct {
	// Since restricts analysis to entries captured strictly after this
	// instant. Zero analyzes the whole session transcript.
	Since time.Time

	// MinConfidence overrides [DefaultMinConfidence] when positive.
	MinConfidence float64

	// ClassroomSessionID is the main classroom session the created alerts
	// belong to. Defaults to the analyzed session ID, which supports both
	// main-room and breakout-room invocations.
	ClassroomSessionID string
}

// Analyzer runs the transcript → detection → alert pipeline on demand.
// All methods are safe for concurrent use.
type Analyzer struct {
	transcripts *transcript.Store
	alerts      *alert.Service
	metrics     *observe.Metrics

	// mu guards detector, which is swapped on taxonomy hot-reload.
	mu       sync.RWMutex
	detector *detect.Engine
}

// AnalyzerConfig holds the dependencies for an [Analyzer].
type AnalyzerConfig struct {
	// Transcripts is the store analysis reads from.
	Transcripts *transcript.Store

	// Detector scans transcript batches for help signals.
	Detector *detect.Engine

	// Alerts is the lifecycle service detections are persisted through.
	Alerts *alert.Service

	// Metrics receives analysis telemetry. Defaults to
	// [observe.DefaultMetrics] when nil.
	Metrics *observe.Metrics
}

// NewAnalyzer creates an [Analyzer] with the given dependencies.
func NewAnalyzer(cfg AnalyzerConfig) *Analyzer {
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Analyzer{
		transcripts: cfg.Transcripts,
		detector:    cfg.Detector,
		alerts:      cfg.Alerts,
		metrics:     metrics,
	}
}

// SetDetector swaps the detection engine, typically after a taxonomy
// hot-reload. In-flight analysis passes keep the engine they started with.
func (an *Analyzer) SetDetector(d *detect.Engine) {
	an.mu.Lock()
	an.detector = d
	an.mu.Unlock()
}

// AnalyzeTranscripts fetches the session's transcript window, runs
// detection, and creates one pending alert per positive detection. Returns
// the newly created alerts in speaker-group order. An empty transcript
// window is a no-op, not an error.
func (an *Analyzer) AnalyzeTranscripts(ctx context.Context, sessionID string, opts Options) ([]alert.Alert, error) {
	ctx, span := observe.StartSpan(ctx, "pipeline.AnalyzeTranscripts",
		trace.WithAttributes(attribute.String("session_id", sessionID)),
	)
	defer span.End()
	start := time.Now()

	minConfidence := opts.MinConfidence
	if minConfidence <= 0 {
		minConfidence = DefaultMinConfidence
	}

	entries := an.transcripts.Entries(sessionID, transcript.Filter{
		Since:         opts.Since,
		MinConfidence: minConfidence,
	})
	if len(entries) == 0 {
		an.metrics.RecordAnalysis(ctx, time.Since(start).Seconds(), 0)
		return []alert.Alert{}, nil
	}

	an.mu.RLock()
	detector := an.detector
	an.mu.RUnlock()
	detections := detector.Analyze(entries)

	classroomID := opts.ClassroomSessionID
	if classroomID == "" {
		classroomID = sessionID
	}
	roomName := entries[0].BreakoutRoomName

	created := make([]alert.Alert, 0, len(detections))
	for _, d := range detections {
		a, err := an.alerts.Create(alert.CreateParams{
			ClassroomSessionID:    classroomID,
			BreakoutRoomSessionID: sessionID,
			BreakoutRoomName:      roomName,
			Topic:                 d.Topic,
			Urgency:               d.Urgency,
			TriggerKeywords:       d.Keywords,
			ContextSnippet:        d.ContextSnippet,
			SourceTranscriptIDs:   d.SourceIDs,
		})
		if err != nil {
			return created, fmt.Errorf("pipeline: create alert for speaker %s: %w", d.SpeakerID, err)
		}
		created = append(created, a)
	}

	an.metrics.RecordAnalysis(ctx, time.Since(start).Seconds(), len(entries))
	span.SetAttributes(
		attribute.Int("entries", len(entries)),
		attribute.Int("detections", len(detections)),
		attribute.Int("alerts_created", len(created)),
	)

	observe.Logger(ctx).Debug("transcript analysis complete",
		"session_id", sessionID,
		"entries", len(entries),
		"detections", len(detections),
		"alerts_created", len(created),
	)
	return created, nil
}
