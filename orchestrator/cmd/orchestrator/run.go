package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/warehousepulse/warehousepulse/orchestrator/internal/alerts"
	"github.com/warehousepulse/warehousepulse/orchestrator/internal/api"
	"github.com/warehousepulse/warehousepulse/orchestrator/internal/config"
	"github.com/warehousepulse/warehousepulse/orchestrator/internal/health"
	"github.com/warehousepulse/warehousepulse/orchestrator/internal/metrics"
	"github.com/warehousepulse/warehousepulse/orchestrator/internal/notify"
	"github.com/warehousepulse/warehousepulse/orchestrator/internal/observability"
	"github.com/warehousepulse/warehousepulse/orchestrator/internal/orchestrator"
	"github.com/warehousepulse/warehousepulse/orchestrator/internal/runner"
	"github.com/warehousepulse/warehousepulse/orchestrator/internal/schedule"
	"github.com/warehousepulse/warehousepulse/orchestrator/internal/stages"
	"github.com/warehousepulse/warehousepulse/orchestrator/internal/stream"
	"github.com/warehousepulse/warehousepulse/orchestrator/internal/telemetry"
	"github.com/warehousepulse/warehousepulse/pkg/dataset"
)

const (
	shutdownTimeout = 10 * time.Second

	// streamInterval is how often status is pushed to WebSocket clients.
	streamInterval = 5 * time.Second
)

func runCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the scheduler until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return run(ctx, configPath)
		},
	}
	configFlag(cmd, &configPath)
	return cmd
}

func run(ctx context.Context, configPath string) error {
	slog.Info("warehousepulse orchestrator starting", "config", configPath, "version", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		return err
	}

	a, err := build(ctx, cfg)
	if err != nil {
		slog.Error("failed to start", "err", err)
		return err
	}
	defer a.close()

	for _, nr := range a.orch.NextRuns(time.Now()) {
		slog.Info("stage scheduled", "stage", nr.Stage, "schedule", nr.Schedule, "next_run", nr.At)
	}

	go a.handoff.Run(ctx)
	go a.hub.Run(ctx)

	go func() {
		err := config.Watch(ctx, configPath, func(*config.Config) {
			slog.Warn("config changed; restart to apply", "path", configPath)
		})
		if err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	var httpSrv *http.Server
	if cfg.Server.HTTPAddr != "" {
		auth := cfg.Server.Auth
		httpSrv = &http.Server{
			Addr:              cfg.Server.HTTPAddr,
			Handler:           api.APIKey(auth.Mode, auth.Header, auth.Key(), a.handler()),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			slog.Info("HTTP status API listening", "addr", cfg.Server.HTTPAddr)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("HTTP server stopped", "err", err)
			}
		}()
	}

	err = a.orch.Run(ctx, schedule.SystemClock{})

	slog.Info("warehousepulse orchestrator shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if httpSrv != nil {
		_ = httpSrv.Shutdown(shutdownCtx)
	}
	if err := a.obs.Shutdown(shutdownCtx); err != nil {
		slog.Warn("observability shutdown", "err", err)
	}
	return err
}

// app holds every long-lived component of a running orchestrator.
type app struct {
	cfg        *config.Config
	recorder   *telemetry.Recorder
	ring       *telemetry.Ring
	collector  *metrics.Collector
	health     *health.Engine
	hub        *stream.Hub
	obs        *observability.Provider
	handoff    *stages.Handoff
	pipeline   *stages.Pipeline
	evaluator  *alerts.Evaluator
	suppressor alerts.Suppressor
	orch       *orchestrator.Orchestrator
}

// build wires the components in dependency order. Any error is a startup
// failure; components built before it are released.
func build(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	primary, err := openSink(cfg.Telemetry)
	if err != nil {
		return nil, err
	}
	a.ring = telemetry.NewRing(cfg.Telemetry.History)
	a.collector = metrics.NewCollector()
	a.health = health.NewEngine()
	a.recorder = telemetry.NewRecorder(primary, a.ring, a.collector, a.health)
	a.hub = stream.New(a.health, a.ring, streamInterval)

	obs, err := observability.New(ctx, observability.FromConfig(cfg.Observability, version))
	if err != nil {
		return nil, fmt.Errorf("observability: %w", err)
	}
	a.obs = obs
	r := runner.New(a.recorder, runner.WithObservability(a.obs))

	a.handoff = stages.NewHandoff(cfg.Handoff.TTL)
	pipeline, err := stages.NewPipeline(ctx, cfg, a.handoff)
	if err != nil {
		return nil, err
	}
	a.pipeline = pipeline

	a.orch = orchestrator.New(r)
	defs, err := orchestrator.Definitions(cfg, a.pipeline.Actions())
	if err != nil {
		return nil, err
	}
	if err := a.orch.RegisterAll(defs); err != nil {
		return nil, err
	}
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}
	a.health.Observe(names...)

	if err := a.wireAlerting(); err != nil {
		return nil, err
	}
	ok = true
	return a, nil
}

func (a *app) wireAlerting() error {
	cfg := a.cfg
	rules, err := alerts.CompileAll(cfg.Thresholds)
	if err != nil {
		return err
	}
	n, err := notify.New(cfg.Notifier)
	if err != nil {
		return err
	}
	opts := []alerts.Option{alerts.WithHistory(cfg.Alerts.History)}
	if a.suppressor = alerts.NewSuppressor(cfg.Alerts.Suppression); a.suppressor != nil {
		opts = append(opts, alerts.WithSuppressor(a.suppressor))
	}
	a.evaluator = alerts.NewEvaluator(rules, opts...)
	d := notify.NewDispatcherFromConfig(n, cfg.Notifier,
		notify.WithObservability(a.obs),
		notify.WithObserver(a.collector),
	)

	action := cfg.Alerts.Stage
	for _, st := range cfg.Stages {
		if st.Name == cfg.Alerts.Stage {
			action = st.ActionName()
		}
	}
	source := func() (dataset.Dataset, bool) { return a.handoff.Get(action) }
	a.orch.WithAlerting(cfg.Alerts.Stage, source, a.evaluator, d)
	slog.Info("alerting enabled", "stage", cfg.Alerts.Stage, "rules", len(rules), "transport", cfg.Notifier.Transport)
	return nil
}

func (a *app) handler() http.Handler {
	return api.New(api.Deps{
		Health:   a.health,
		Schedule: a.orch,
		Outcomes: a.ring,
		Alerts:   a.evaluator,
		Outputs:  a.handoff,
		Metrics:  a.collector,
		Stream:   a.hub,
	})
}

func (a *app) close() {
	if a.pipeline != nil {
		if err := a.pipeline.Close(); err != nil {
			slog.Warn("pipeline close", "err", err)
		}
	}
	if c, ok := a.suppressor.(io.Closer); ok {
		_ = c.Close()
	}
	if a.recorder != nil {
		if err := a.recorder.Close(); err != nil {
			slog.Warn("telemetry close", "err", err)
		}
	}
}

// openSink opens the durable telemetry sink selected by cfg.Backend.
func openSink(cfg config.TelemetryConfig) (telemetry.Sink, error) {
	if cfg.Backend == "sqlite" {
		return telemetry.OpenSQLite(cfg.Path)
	}
	return telemetry.NewFileSink(cfg.Path)
}
