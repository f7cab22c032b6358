package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/warehousepulse/warehousepulse/orchestrator/internal/alerts"
	"github.com/warehousepulse/warehousepulse/orchestrator/internal/config"
	"github.com/warehousepulse/warehousepulse/orchestrator/internal/orchestrator"
	"github.com/warehousepulse/warehousepulse/orchestrator/internal/runner"
	"github.com/warehousepulse/warehousepulse/orchestrator/internal/telemetry"
)

func validateCmd(out io.Writer) *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the config file and print the schedule",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return validate(out, configPath, time.Now())
		},
	}
	configFlag(cmd, &configPath)
	return cmd
}

// validate loads the config and builds the stage registry without opening
// any connection.
func validate(out io.Writer, path string, now time.Time) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	actions := make(map[string]runner.Action, len(config.Actions))
	for _, name := range config.Actions {
		actions[name] = runner.ActionFunc(func(context.Context) error { return nil })
	}
	defs, err := orchestrator.Definitions(cfg, actions)
	if err != nil {
		return err
	}
	o := orchestrator.New(runner.New(telemetry.NewRecorder()))
	if err := o.RegisterAll(defs); err != nil {
		return err
	}
	rules, err := alerts.CompileAll(cfg.Thresholds)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STAGE\tSCHEDULE\tNEXT RUN")
	for _, nr := range o.NextRuns(now) {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", nr.Stage, nr.Schedule, nr.At.Format(time.RFC3339))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%d alert rule(s) evaluated after stage %q\n", len(rules), cfg.Alerts.Stage)
	fmt.Fprintln(out, "config OK")
	return nil
}

func outcomesCmd(out io.Writer) *cobra.Command {
	var (
		configPath string
		limit      int
		stage      string
	)
	cmd := &cobra.Command{
		Use:   "outcomes",
		Short: "Print recent task outcomes from the telemetry sink",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			outcomes, err := readOutcomes(cmd.Context(), cfg.Telemetry, stage, limit)
			if err != nil {
				return err
			}
			return printOutcomes(out, outcomes)
		},
	}
	configFlag(cmd, &configPath)
	cmd.Flags().IntVar(&limit, "limit", 20, "number of outcomes to print")
	cmd.Flags().StringVar(&stage, "stage", "", "only outcomes of this stage")
	return cmd
}

// readOutcomes returns the last limit outcomes, optionally of one stage,
// oldest first.
func readOutcomes(ctx context.Context, cfg config.TelemetryConfig, stage string, limit int) ([]telemetry.TaskOutcome, error) {
	var (
		all []telemetry.TaskOutcome
		err error
	)
	if cfg.Backend == "sqlite" {
		var s *telemetry.SQLiteSink
		if s, err = telemetry.OpenSQLite(cfg.Path); err != nil {
			return nil, err
		}
		defer s.Close()
		all, err = s.Recent(ctx, -1) // no limit
	} else {
		all, err = telemetry.ReadFile(cfg.Path, 0)
	}
	if err != nil {
		return nil, err
	}

	var out []telemetry.TaskOutcome
	for _, o := range all {
		if stage == "" || o.Stage == stage {
			out = append(out, o)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func printOutcomes(out io.Writer, outcomes []telemetry.TaskOutcome) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "START\tSTAGE\tSTATUS\tDURATION\tDETAIL")
	for _, o := range outcomes {
		detail := o.Error
		if o.Alert != "" {
			detail = o.Alert + ": " + detail
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.3fs\t%s\n",
			o.Start.Format(time.RFC3339), o.Stage, o.Status, o.DurationSeconds, detail)
	}
	return tw.Flush()
}
