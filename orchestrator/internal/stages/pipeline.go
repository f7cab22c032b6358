package stages

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/warehousepulse/warehousepulse/orchestrator/internal/config"
	"github.com/warehousepulse/warehousepulse/orchestrator/internal/runner"
	"github.com/warehousepulse/warehousepulse/pkg/dataset"
)

// ErrNoInput means the upstream stage produced no current output, either
// because it has not run yet, failed on its last run, or its output expired.
var ErrNoInput = errors.New("no upstream output")

// upstream maps each action to the action whose output it consumes.
var upstream = map[string]string{
	"transform": "extract",
	"load":      "transform",
	"kpi":       "transform",
	"dashboard": "kpi",
}

// Pipeline holds the collaborators behind the built-in actions.
type Pipeline struct {
	handoff     *Handoff
	extractor   *Extractor
	transformer *Transformer
	warehouse   *Warehouse
	exporter    Exporter
	kpis        []KPI
}

// NewPipeline builds the collaborators described by cfg. The warehouse
// connection is opened here; Close releases it.
func NewPipeline(ctx context.Context, cfg *config.Config, h *Handoff) (*Pipeline, error) {
	wh, err := OpenWarehouse(cfg.Warehouse)
	if err != nil {
		return nil, err
	}
	exp, err := NewExporter(ctx, cfg.Dashboard)
	if err != nil {
		_ = wh.Close()
		return nil, err
	}
	return &Pipeline{
		handoff:     h,
		extractor:   NewExtractor(cfg.Sources),
		transformer: NewTransformer(cfg.Transform),
		warehouse:   wh,
		exporter:    exp,
		kpis:        DefaultKPIs,
	}, nil
}

// Actions returns the built-in actions keyed by name. Each action clears its
// own handoff entry before running so a failed run leaves no stale output.
func (p *Pipeline) Actions() map[string]runner.Action {
	return map[string]runner.Action{
		"extract":   p.step("extract", p.extract),
		"transform": p.step("transform", p.transform),
		"load":      p.step("load", p.load),
		"kpi":       p.step("kpi", p.kpi),
		"dashboard": p.step("dashboard", p.dashboard),
	}
}

// Output returns the current output of the named action.
func (p *Pipeline) Output(action string) (dataset.Dataset, bool) {
	return p.handoff.Get(action)
}

// Close releases the warehouse connection and any exporter client.
func (p *Pipeline) Close() error {
	var errs []error
	if p.warehouse != nil {
		errs = append(errs, p.warehouse.Close())
	}
	if c, ok := p.exporter.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

func (p *Pipeline) step(name string, fn func(context.Context, dataset.Dataset) (dataset.Dataset, error)) runner.Action {
	return runner.ActionFunc(func(ctx context.Context) error {
		p.handoff.Delete(name)

		var in dataset.Dataset
		if from, ok := upstream[name]; ok {
			ds, ok := p.handoff.Get(from)
			if !ok {
				return fmt.Errorf("%s: %w from %s", name, ErrNoInput, from)
			}
			in = ds
		}
		out, err := fn(ctx, in)
		if err != nil {
			return err
		}
		p.handoff.Put(name, out)
		return nil
	})
}

func (p *Pipeline) extract(ctx context.Context, _ dataset.Dataset) (dataset.Dataset, error) {
	return p.extractor.Extract(ctx)
}

func (p *Pipeline) transform(_ context.Context, in dataset.Dataset) (dataset.Dataset, error) {
	return p.transformer.Transform(in)
}

func (p *Pipeline) load(ctx context.Context, in dataset.Dataset) (dataset.Dataset, error) {
	res, err := p.warehouse.Load(ctx, in)
	if err != nil {
		return nil, err
	}
	slog.Info("stages: warehouse loaded", "table", res.Table, "rows", res.Rows)
	return in, nil
}

func (p *Pipeline) kpi(_ context.Context, in dataset.Dataset) (dataset.Dataset, error) {
	return ComputeKPIs(in, p.kpis), nil
}

func (p *Pipeline) dashboard(ctx context.Context, in dataset.Dataset) (dataset.Dataset, error) {
	out := PrepareForDashboard(in)
	var buf bytes.Buffer
	if err := EncodeCSV(&buf, out); err != nil {
		return nil, fmt.Errorf("dashboard: encode: %w", err)
	}
	if err := p.exporter.Export(ctx, buf.Bytes()); err != nil {
		return nil, err
	}
	slog.Info("stages: dashboard exported", "target", p.exporter.String(), "rows", len(out))
	return out, nil
}
