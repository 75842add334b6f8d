// Command handraise is the main entry point for the Handraise help-alert
// server. It wires the transcript store, detection engine, alert lifecycle
// service, auto-dismiss sweeper, and analysis scheduler, and serves the ops
// endpoints (health probes and Prometheus metrics).
//
// The instructor-facing request API is mounted by the deployment's HTTP
// layer on top of the pipeline and lifecycle service; this binary only
// hosts the core and its operational surface.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/classmesh/handraise/internal/alert"
	"github.com/classmesh/handraise/internal/config"
	"github.com/classmesh/handraise/internal/detect"
	"github.com/classmesh/handraise/internal/health"
	"github.com/classmesh/handraise/internal/observe"
	"github.com/classmesh/handraise/internal/pipeline"
	"github.com/classmesh/handraise/internal/schedule"
	"github.com/classmesh/handraise/internal/taxonomy"
	"github.com/classmesh/handraise/internal/transcript"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "handraise: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "handraise: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("handraise starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "handraise",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Keyword taxonomy ──────────────────────────────────────────────────────
	tax, err := loadTaxonomy(cfg)
	if err != nil {
		slog.Error("failed to load taxonomy", "err", err)
		return 1
	}

	// ── Core wiring ───────────────────────────────────────────────────────────
	transcripts := transcript.NewStore()
	alerts := alert.NewStore()
	lifecycle := alert.NewService(alerts)

	analyzer := pipeline.NewAnalyzer(pipeline.AnalyzerConfig{
		Transcripts: transcripts,
		Detector:    detect.NewEngine(tax),
		Alerts:      lifecycle,
	})

	// The watcher starts only after the analyzer exists, so the reload
	// callback can never observe a half-wired pipeline.
	if cfg.Analysis.TaxonomyFile != "" && cfg.Analysis.TaxonomyReloadSeconds > 0 {
		taxWatcher, err := taxonomy.NewWatcher(cfg.Analysis.TaxonomyFile,
			func(_, updated *taxonomy.Taxonomy) {
				analyzer.SetDetector(detect.NewEngine(updated))
			},
			taxonomy.WithInterval(time.Duration(cfg.Analysis.TaxonomyReloadSeconds)*time.Second),
		)
		if err != nil {
			slog.Error("failed to start taxonomy watcher", "err", err)
			return 1
		}
		defer taxWatcher.Stop()
	}

	sweeper := alert.NewSweeper(alert.SweeperConfig{
		Service:  lifecycle,
		TTL:      cfg.Alerts.AutoDismissTTL(),
		Interval: cfg.Alerts.SweepInterval(),
	})
	sweeper.Start(ctx)
	defer sweeper.Stop()

	scheduler := schedule.NewScheduler(schedule.SchedulerConfig{
		Analyzer: analyzer,
		Spec:     cfg.Analysis.CronSpec,
	})
	scheduler.Start()
	defer scheduler.Stop()

	// ── Ops HTTP server (health + metrics) ────────────────────────────────────
	healthHandler := health.New(
		health.Checker{
			Name: "alerts",
			Check: func(ctx context.Context) error {
				// A reachable store answers counts for any session key.
				_ = lifecycle.GetAlertCounts("healthcheck")
				return nil
			},
		},
		health.Checker{
			Name: "scheduler",
			Check: func(ctx context.Context) error {
				_ = scheduler.Registered()
				return nil
			},
		},
	)

	mux := http.NewServeMux()
	healthHandler.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: observe.Middleware(observe.DefaultMetrics())(mux),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("ops server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// loadTaxonomy builds the keyword taxonomy from config: the built-in
// defaults, or an override file merged over them.
func loadTaxonomy(cfg *config.Config) (*taxonomy.Taxonomy, error) {
	if cfg.Analysis.TaxonomyFile == "" {
		tax := taxonomy.Default()
		if err := tax.Validate(); err != nil {
			return nil, err
		}
		return tax, nil
	}
	return taxonomy.Load(cfg.Analysis.TaxonomyFile)
}

// newLogger builds the process-wide slog logger at the configured level.
func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
