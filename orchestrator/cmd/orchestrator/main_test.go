package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warehousepulse/warehousepulse/orchestrator/internal/config"
	"github.com/warehousepulse/warehousepulse/orchestrator/internal/health"
	"github.com/warehousepulse/warehousepulse/orchestrator/internal/telemetry"
)

const pipelineYAML = `
timezone: UTC
stages:
  - {name: extract, at: "02:00"}
  - {name: transform, at: "02:30"}
  - {name: load, at: "03:00"}
  - {name: kpi, at: "03:30"}
  - {name: dashboard, at: "04:00"}
sources:
  - {name: inventory, type: csv, path: "{{dir}}/inventory.csv"}
warehouse: {driver: sqlite, dsn: "{{dir}}/warehouse.db"}
dashboard: {export_path: "{{dir}}/dashboard.csv"}
telemetry: {backend: file, path: "{{dir}}/telemetry.log"}
`

const inventoryCSV = `product_id,warehouse_id,quantity,date,storage_capacity
P1,W1,400,2024-06-01,1000
P2,W2,30,2024-06-01,500
P3,W2,20,2024-06-01,500
`

// writeConfig writes content with {{dir}} replaced by a fresh temp dir and
// returns the config path and the dir.
func writeConfig(t *testing.T, content string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	content = string(bytes.ReplaceAll([]byte(content), []byte("{{dir}}"), []byte(dir)))
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path, dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs(append(args, "--log-level", "error"))
	err := cmd.Execute()
	return out.String(), err
}

func TestValidate(t *testing.T) {
	path, _ := writeConfig(t, pipelineYAML)

	var out bytes.Buffer
	now := time.Date(2024, 6, 1, 2, 15, 0, 0, time.UTC)
	require.NoError(t, validate(&out, path, now))

	s := out.String()
	assert.Contains(t, s, "extract")
	assert.Contains(t, s, "daily at 02:00")
	assert.Contains(t, s, "2024-06-01T02:30:00Z", "transform runs next at 02:30")
	assert.Contains(t, s, "2024-06-02T02:00:00Z", "extract already ran today")
	assert.Contains(t, s, "config OK")
}

func TestValidate_Invalid(t *testing.T) {
	path, _ := writeConfig(t, `stages: [{name: extract, at: "25:00"}]`)
	_, err := execute(t, "validate", "--config", path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, config.ErrInvalid))
}

func TestRun_ConfigErrorIsReturned(t *testing.T) {
	_, err := execute(t, "run", "--config", filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestRoot_BadLogLevel(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs([]string{"validate", "--log-level", "loud"})
	assert.Error(t, cmd.Execute())
}

func TestOutcomes(t *testing.T) {
	path, dir := writeConfig(t, pipelineYAML)
	sink, err := telemetry.NewFileSink(filepath.Join(dir, "telemetry.log"))
	require.NoError(t, err)

	t0 := time.Date(2024, 6, 1, 2, 0, 0, 0, time.UTC)
	ctx := context.Background()
	require.NoError(t, sink.Append(ctx, telemetry.NewOutcome("extract", t0, t0.Add(time.Second), nil)))
	require.NoError(t, sink.Append(ctx, telemetry.NewOutcome("load", t0, t0.Add(time.Second), errors.New("disk full"))))
	require.NoError(t, sink.Append(ctx, telemetry.NewOutcome("load", t0.Add(time.Hour), t0.Add(time.Hour), nil)))

	out, err := execute(t, "outcomes", "--config", path, "--stage", "load", "--limit", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "STAGE")
	assert.Contains(t, out, "2024-06-01T03:00:00Z")
	assert.NotContains(t, out, "disk full", "limit keeps only the newest")
	assert.NotContains(t, out, "extract")
}

func TestBuild_NightlyRun(t *testing.T) {
	path, dir := writeConfig(t, pipelineYAML)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "inventory.csv"), []byte(inventoryCSV), 0o600))
	cfg, err := config.Load(path)
	require.NoError(t, err)

	ctx := context.Background()
	a, err := build(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(a.close)

	day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	for _, at := range []time.Duration{
		2 * time.Hour, 2*time.Hour + 30*time.Minute, 3 * time.Hour, 3*time.Hour + 30*time.Minute, 4 * time.Hour,
	} {
		outcomes := a.orch.Tick(ctx, day.Add(at))
		require.Len(t, outcomes, 1, "one stage per slot at %v", at)
		require.False(t, outcomes[0].Failed(), "%s: %s", outcomes[0].Stage, outcomes[0].Error)
	}

	// W2 holds 50 units, under the default 100 unit threshold.
	sent := a.evaluator.Recent(0)
	require.Len(t, sent, 1)
	assert.Equal(t, "Low Inventory Alert", sent[0].Subject)
	assert.Equal(t, "delivered", sent[0].Delivery)
	assert.Contains(t, sent[0].Body, "W2")

	_, err = os.Stat(filepath.Join(dir, "dashboard.csv"))
	assert.NoError(t, err)

	assert.Equal(t, health.StateHealthy, a.health.Report().State)

	rr := httptest.NewRecorder()
	a.handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rr.Body.String(), `warehousepulse_notifications_total{rule="low_inventory",status="delivered"} 1`)

	logged, err := telemetry.ReadFile(filepath.Join(dir, "telemetry.log"), 0)
	require.NoError(t, err)
	assert.Len(t, logged, 5)
}
