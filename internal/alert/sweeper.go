package alert

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/classmesh/handraise/internal/observe"
)

// AutoDismissActor is recorded as the dismissing actor for alerts the
// sweeper expires.
const AutoDismissActor = "auto-dismiss"

// Default sweep policy: stale pending alerts are dismissed after 30 minutes,
// checked once a minute.
const (
	defaultAutoDismissTTL = 30 * time.Minute
	defaultSweepInterval  = time.Minute
)

// Sweeper periodically dismisses alerts that stayed pending longer than the
// configured TTL, bounding store growth and clearing stale signals nobody
// acted on.
//
// Each expiry goes through the regular Dismiss transition, so a concurrent
// acknowledge always beats the sweep: the losing side observes the
// post-transition state and skips the alert.
//
// All methods are safe for concurrent use.
type Sweeper struct {
	svc      *Service
	ttl      time.Duration
	interval time.Duration
	metrics  *observe.Metrics

	done     chan struct{}
	stopOnce sync.Once
}

// SweeperConfig configures a [Sweeper].
type SweeperConfig struct {
	// Service is the lifecycle service alerts are dismissed through.
	Service *Service

	// TTL is how long an alert may stay pending before it is auto-dismissed.
	// Defaults to 30 minutes if zero.
	TTL time.Duration

	// Interval is how often to sweep. Defaults to 1 minute if zero.
	Interval time.Duration

	// Metrics receives swept-alert counts. Defaults to
	// [observe.DefaultMetrics] when nil.
	Metrics *observe.Metrics
}

// NewSweeper creates a [Sweeper] with the given configuration.
func NewSweeper(cfg SweeperConfig) *Sweeper {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultAutoDismissTTL
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Sweeper{
		svc:      cfg.Service,
		ttl:      ttl,
		interval: interval,
		metrics:  metrics,
		done:     make(chan struct{}),
	}
}

// Start begins periodic sweeping in a background goroutine. The goroutine
// runs until [Sweeper.Stop] is called or ctx is cancelled.
func (sw *Sweeper) Start(ctx context.Context) {
	go sw.loop(ctx)
}

// Stop halts the sweep loop. Safe to call multiple times.
func (sw *Sweeper) Stop() {
	sw.stopOnce.Do(func() {
		close(sw.done)
	})
}

// loop runs the periodic sweep ticker.
func (sw *Sweeper) loop(ctx context.Context) {
	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sw.done:
			return
		case <-ticker.C:
			sw.SweepNow(ctx)
		}
	}
}

// SweepNow performs an immediate sweep and returns the number of alerts
// dismissed.
func (sw *Sweeper) SweepNow(ctx context.Context) int {
	cutoff := time.Now().UTC().Add(-sw.ttl)
	dismissed := sw.dismissStale(sw.svc.StalePendingIDs(cutoff))

	if dismissed > 0 {
		sw.metrics.RecordSweptAlerts(ctx, int64(dismissed))
		slog.Info("stale pending alerts auto-dismissed",
			"count", dismissed,
			"ttl", sw.ttl,
		)
	}
	return dismissed
}

// dismissStale dismisses each listed alert, skipping ones that lost a race
// against a manual transition or a session clear. Returns how many were
// actually dismissed.
func (sw *Sweeper) dismissStale(ids []string) int {
	dismissed := 0
	for _, id := range ids {
		a, err := sw.svc.Dismiss(id, AutoDismissActor)
		if err != nil {
			var conflict *StateConflictError
			if errors.As(err, &conflict) {
				continue
			}
			slog.Warn("alert sweep dismiss failed", "alert_id", id, "error", err)
			continue
		}
		if a == nil {
			// The alert vanished, via a concurrent session clear.
			continue
		}
		dismissed++
	}
	return dismissed
}
