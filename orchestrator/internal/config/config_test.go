package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const minimal = `
stages:
  - name: extract
    at: "02:00"
  - name: transform
    at: "02:30"
  - name: load
    at: "03:00"
  - name: kpi
    at: "03:30"
`

func TestLoad_Valid(t *testing.T) {
	yaml := `
timezone: UTC
stages:
  - name: extract
    at: "02:00"
  - name: kpi
    every: 15m
thresholds:
  - field: totalInventory
    comparator: LessThan
    limit: 100
    subject: Low stock
    template: "Warehouse {{.Row.warehouseId}} at {{.Value}}"
notifier:
  transport: smtp
  endpoint: smtp.example.com:587
  from: alerts@example.com
  recipients: [manager@example.com]
telemetry:
  backend: sqlite
  path: /var/lib/pipeline/telemetry.db
`
	cfg := loadFromString(t, yaml)

	if len(cfg.Stages) != 2 {
		t.Fatalf("stages: got %d, want 2", len(cfg.Stages))
	}
	if cfg.Stages[0].At != "02:00" {
		t.Errorf("stages[0].at: got %q", cfg.Stages[0].At)
	}
	if cfg.Stages[1].Every != 15*time.Minute {
		t.Errorf("stages[1].every: got %v", cfg.Stages[1].Every)
	}
	if len(cfg.Thresholds) != 1 {
		t.Fatalf("thresholds: got %d, want 1 (file replaces defaults)", len(cfg.Thresholds))
	}
	th := cfg.Thresholds[0]
	if th.Name != "Low stock" {
		t.Errorf("threshold name defaults to subject: got %q", th.Name)
	}
	if len(th.Recipients) != 1 || th.Recipients[0] != "manager@example.com" {
		t.Errorf("threshold recipients: got %v", th.Recipients)
	}
	if cfg.Telemetry.Backend != "sqlite" {
		t.Errorf("telemetry backend: got %q", cfg.Telemetry.Backend)
	}
	loc, err := cfg.Location()
	if err != nil || loc != time.UTC {
		t.Errorf("Location(): got %v, %v", loc, err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg := loadFromString(t, minimal)

	if cfg.Telemetry.Path != DefaultTelemetryPath {
		t.Errorf("default telemetry path: got %q", cfg.Telemetry.Path)
	}
	if cfg.Notifier.Transport != "log" {
		t.Errorf("default transport: got %q", cfg.Notifier.Transport)
	}
	if cfg.Notifier.Concurrency != DefaultConcurrency {
		t.Errorf("default concurrency: got %d", cfg.Notifier.Concurrency)
	}
	if cfg.Alerts.Stage != DefaultAlertStage {
		t.Errorf("default alert stage: got %q", cfg.Alerts.Stage)
	}
	if cfg.Handoff.TTL != DefaultHandoffTTL {
		t.Errorf("default handoff ttl: got %v", cfg.Handoff.TTL)
	}
	if len(cfg.Thresholds) != 2 {
		t.Fatalf("default thresholds: got %d, want 2", len(cfg.Thresholds))
	}
	if cfg.Thresholds[0].Limit != 100 || cfg.Thresholds[1].Limit != 90 {
		t.Errorf("default limits: got %v, %v", cfg.Thresholds[0].Limit, cfg.Thresholds[1].Limit)
	}
	if cfg.Stages[0].ActionName() != "extract" {
		t.Errorf("action defaults to name: got %q", cfg.Stages[0].ActionName())
	}
}

func TestLoad_EmptyThresholdsDisableDefaults(t *testing.T) {
	cfg := loadFromString(t, minimal+"thresholds: []\n")
	if len(cfg.Thresholds) != 0 {
		t.Errorf("thresholds: got %d, want 0", len(cfg.Thresholds))
	}
}

func TestLoad_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"no stages", `telemetry: {path: x}`},
		{"duplicate stage", `
stages:
  - {name: extract, at: "02:00"}
  - {name: extract, at: "03:00"}
`},
		{"malformed time", `
stages:
  - {name: extract, at: "2am"}
`},
		{"hour out of range", `
stages:
  - {name: extract, at: "24:00"}
`},
		{"no schedule", `
stages:
  - {name: extract}
`},
		{"both schedules", `
stages:
  - {name: extract, at: "02:00", every: 1h}
`},
		{"unknown action", `
stages:
  - {name: extract, action: teleport, at: "02:00"}
`},
		{"unknown comparator", minimal + `
thresholds:
  - {field: total_quantity, comparator: between, limit: 1}
`},
		{"bad template", minimal + `
thresholds:
  - {field: total_quantity, comparator: lt, limit: 1, template: "{{.Row"}
`},
		{"alert stage missing", `
stages:
  - {name: extract, at: "02:00"}
`},
		{"unknown transport", minimal + `
notifier: {transport: pigeon}
`},
		{"smtp without endpoint", minimal + `
notifier: {transport: smtp, from: a@example.com}
`},
		{"unknown timezone", minimal + `
timezone: Mars/Olympus
`},
		{"redis without addr", minimal + `
alerts:
  suppression: {backend: redis, cooldown: 1h}
`},
		{"malformed yaml", "stages: [\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := loadStringErr(t, tc.yaml)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("error %v does not wrap ErrInvalid", err)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if errors.Is(err, ErrInvalid) {
		t.Error("a read failure is not a validation error")
	}
}

func TestComparatorValid(t *testing.T) {
	for _, s := range []string{"lt", "LessThan", "<", "gt", "GreaterThan", ">"} {
		if !ComparatorValid(s) {
			t.Errorf("ComparatorValid(%q) = false", s)
		}
	}
	if ComparatorValid("==") {
		t.Error("ComparatorValid(==) = true")
	}
}

func TestSecretsFromEnvironment(t *testing.T) {
	t.Setenv("TEST_SMTP_PASSWORD", "hunter2")
	t.Setenv("TEST_WEBHOOK_URL", "https://hooks.example.com/x")
	t.Setenv("TEST_WAREHOUSE_DSN", "postgres://wh")

	n := NotifierConfig{From: "alerts@example.com", PasswordEnv: "TEST_SMTP_PASSWORD"}
	if got := n.Password(); got != "hunter2" {
		t.Errorf("Password(): got %q", got)
	}
	if got := n.Username(); got != "alerts@example.com" {
		t.Errorf("Username() falls back to From: got %q", got)
	}
	w := WebhookConfig{Type: "slack", URLEnv: "TEST_WEBHOOK_URL"}
	if got := w.URL(); got != "https://hooks.example.com/x" {
		t.Errorf("URL(): got %q", got)
	}
	wh := WarehouseConfig{DSN: "file.db", DSNEnv: "TEST_WAREHOUSE_DSN"}
	if got := wh.ConnString(); got != "postgres://wh" {
		t.Errorf("ConnString(): got %q", got)
	}
	if got := (AuthConfig{}).Key(); got != "" {
		t.Errorf("Key() with no KeyEnv: got %q", got)
	}
}

// loadFromString writes yaml to a temp file and calls Load, failing on error.
func loadFromString(t *testing.T, content string) *Config {
	t.Helper()
	cfg, err := loadStringErr(t, content)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	return cfg
}

// loadStringErr writes yaml to a temp file and calls Load, returning any error.
func loadStringErr(t *testing.T, content string) (*Config, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return Load(path)
}

func TestLoad_ExampleFile(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "..", "config.example.yaml"))
	if err != nil {
		t.Fatalf("Load example: %v", err)
	}
	if len(cfg.Stages) != 5 {
		t.Errorf("stages: got %d, want 5", len(cfg.Stages))
	}
	if len(cfg.Sources) != 2 || cfg.Sources[1].Driver != "postgres" {
		t.Errorf("sources: got %+v", cfg.Sources)
	}
	if cfg.Alerts.Suppression.Backend != "" {
		t.Errorf("suppression should be off, got %q", cfg.Alerts.Suppression.Backend)
	}
	if cfg.Thresholds[0].KeyField != DefaultKeyField {
		t.Errorf("key field: got %q", cfg.Thresholds[0].KeyField)
	}
}
