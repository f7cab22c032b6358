package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation error. A configuration error is
// fatal at startup.
var ErrInvalid = errors.New("invalid configuration")

// Default values applied when fields are absent from the config file.
const (
	DefaultTelemetryPath    = "pipeline_telemetry.log"
	DefaultTelemetryHistory = 500
	DefaultAlertStage       = "kpi"
	DefaultAlertHistory     = 200
	DefaultConcurrency      = 4
	DefaultNotifyTimeout    = 30 * time.Second
	DefaultHandoffTTL       = 36 * time.Hour
	DefaultDashboardPath    = "dashboard_ready_data.csv"
	DefaultWarehouseTable   = "WAREHOUSE_ANALYTICS"
	DefaultAPIKeyHeader     = "X-API-Key"
	DefaultKeyField         = "warehouse_id"
)

// Actions is the set of built-in stage actions a stage may reference.
var Actions = []string{"extract", "transform", "load", "kpi", "dashboard"}

var timeOfDay = regexp.MustCompile(`^([01]\d|2[0-3]):([0-5]\d)$`)

// Config is the full orchestrator configuration.
// Fields map 1:1 to config.example.yaml.
type Config struct {
	// Timezone is an IANA zone name used to interpret stage times.
	// Empty means the host's local zone.
	Timezone string `yaml:"timezone"`

	// Stages is the ordered schedule. Declaration order is execution order
	// within a tick.
	Stages []Stage `yaml:"stages"`

	// Thresholds is the ordered list of alert rules.
	Thresholds []Threshold `yaml:"thresholds"`

	Alerts        AlertsConfig        `yaml:"alerts"`
	Telemetry     TelemetryConfig     `yaml:"telemetry"`
	Notifier      NotifierConfig      `yaml:"notifier"`
	Sources       []Source            `yaml:"sources"`
	Transform     TransformConfig     `yaml:"transform"`
	Warehouse     WarehouseConfig     `yaml:"warehouse"`
	Dashboard     DashboardConfig     `yaml:"dashboard"`
	Handoff       HandoffConfig       `yaml:"handoff"`
	Server        ServerConfig        `yaml:"server"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// Stage schedules one unit of pipeline work.
type Stage struct {
	// Name is unique across the schedule and appears in every TaskOutcome.
	Name string `yaml:"name"`

	// Action selects the built-in action; defaults to Name.
	Action string `yaml:"action"`

	// At is a daily time of day, "HH:MM".
	At string `yaml:"at"`

	// Every is a fixed interval aligned to wall-clock multiples.
	Every time.Duration `yaml:"every"`
}

// ActionName returns the action this stage runs.
func (s Stage) ActionName() string {
	if s.Action == "" {
		return s.Name
	}
	return s.Action
}

// Threshold is one alert rule evaluated against the alerting stage's output.
type Threshold struct {
	// Name identifies the rule in logs and suppression keys; defaults to Subject.
	Name string `yaml:"name"`

	Field      string  `yaml:"field"`
	Comparator string  `yaml:"comparator"` // lt | gt
	Limit      float64 `yaml:"limit"`

	// Subject is the notification subject line.
	Subject string `yaml:"subject"`

	// Template is a text/template for the body. It receives
	// {Row, Field, Value, Limit}.
	Template string `yaml:"template"`

	// Recipients overrides notifier.recipients for this rule.
	Recipients []string `yaml:"recipients"`

	// Severity is one of: critical | warning | info.
	Severity string `yaml:"severity"`

	// KeyField identifies the entity a row describes, used for suppression.
	KeyField string `yaml:"key_field"`
}

// AlertsConfig selects which stage feeds the evaluator and how repeats are handled.
type AlertsConfig struct {
	// Stage names the stage whose output dataset is evaluated after it succeeds.
	Stage string `yaml:"stage"`

	// History bounds the in-memory list of recent alerts served by the API.
	History int `yaml:"history"`

	// Suppression is disabled unless Backend is set; every tick then
	// re-reports every violation.
	Suppression SuppressionConfig `yaml:"suppression"`
}

// SuppressionConfig configures the optional alert cooldown.
type SuppressionConfig struct {
	// Backend is one of: "" (off) | memory | redis.
	Backend  string        `yaml:"backend"`
	Cooldown time.Duration `yaml:"cooldown"`

	RedisAddr        string `yaml:"redis_addr"`
	RedisPasswordEnv string `yaml:"redis_password_env"`
	RedisDB          int    `yaml:"redis_db"`
	KeyPrefix        string `yaml:"key_prefix"`
}

// RedisPassword resolves the Redis password from the environment.
func (s SuppressionConfig) RedisPassword() string {
	return env(s.RedisPasswordEnv)
}

// TelemetryConfig configures the append-only TaskOutcome log.
type TelemetryConfig struct {
	// Backend is one of: file | sqlite.
	Backend string `yaml:"backend"`

	// Path is the JSON Lines file or SQLite database path.
	Path string `yaml:"path"`

	// History bounds the in-memory outcome history served by the API.
	History int `yaml:"history"`
}

// NotifierConfig configures alert delivery.
type NotifierConfig struct {
	// Transport is one of: log | smtp | webhook.
	Transport string `yaml:"transport"`

	// Endpoint is the SMTP server address, host:port.
	Endpoint    string `yaml:"endpoint"`
	From        string `yaml:"from"`
	UsernameEnv string `yaml:"username_env"`
	PasswordEnv string `yaml:"password_env"`

	// Webhook holds the target when Transport is webhook.
	Webhook WebhookConfig `yaml:"webhook"`

	// Recipients is the default recipient set for every rule.
	Recipients []string `yaml:"recipients"`

	// Concurrency bounds simultaneous deliveries within one batch.
	Concurrency int `yaml:"concurrency"`

	// RatePerSecond paces deliveries; 0 disables pacing.
	RatePerSecond float64 `yaml:"rate_per_second"`

	// Timeout bounds a single delivery.
	Timeout time.Duration `yaml:"timeout"`
}

// Username resolves the SMTP username; it falls back to From.
func (n NotifierConfig) Username() string {
	if u := env(n.UsernameEnv); u != "" {
		return u
	}
	return n.From
}

// Password resolves the SMTP password from the environment.
func (n NotifierConfig) Password() string {
	return env(n.PasswordEnv)
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: slack | teams | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable holding the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	return env(w.URLEnv)
}

// Source is one extraction input.
type Source struct {
	Name string `yaml:"name"`

	// Type is one of: csv | sql.
	Type string `yaml:"type"`

	// Path is a CSV file or glob, for csv sources.
	Path string `yaml:"path"`

	// Driver is one of: sqlite | postgres, for sql sources.
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	DSNEnv string `yaml:"dsn_env"`
	Query  string `yaml:"query"`
}

// ConnString resolves the data source name, preferring the environment.
func (s Source) ConnString() string {
	if v := env(s.DSNEnv); v != "" {
		return v
	}
	return s.DSN
}

// TransformConfig controls cleaning and aggregation.
type TransformConfig struct {
	Required []string `yaml:"required"`
	GroupBy  []string `yaml:"group_by"`
	Sum      []string `yaml:"sum"`
	Mean     []string `yaml:"mean"`
	Max      []string `yaml:"max"`

	// Rename maps aggregated field names to their output names.
	Rename map[string]string `yaml:"rename"`
}

// WarehouseConfig configures the load target.
type WarehouseConfig struct {
	// Driver is one of: sqlite | postgres.
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	DSNEnv string `yaml:"dsn_env"`
	Table  string `yaml:"table"`
}

// ConnString resolves the data source name, preferring the environment.
func (w WarehouseConfig) ConnString() string {
	if v := env(w.DSNEnv); v != "" {
		return v
	}
	return w.DSN
}

// DashboardConfig configures the dashboard export.
type DashboardConfig struct {
	// ExportPath is a local path, s3://bucket/key or gs://bucket/object.
	ExportPath string `yaml:"export_path"`

	// Region and Endpoint apply to s3:// targets.
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
}

// HandoffConfig controls how long a stage output stays available downstream.
type HandoffConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// ServerConfig configures the optional read-only status API.
type ServerConfig struct {
	// HTTPAddr is the listen address; empty disables the API.
	HTTPAddr string     `yaml:"http_addr"`
	Auth     AuthConfig `yaml:"auth"`
}

// AuthConfig configures status API authentication.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode   string `yaml:"mode"`
	Header string `yaml:"header"`
	KeyEnv string `yaml:"key_env"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	return env(a.KeyEnv)
}

// ObservabilityConfig configures OpenTelemetry export.
type ObservabilityConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	ServiceName string  `yaml:"service_name"`
	SampleRate  float64 `yaml:"sample_rate"`
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML document.
func Parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w: %w", ErrInvalid, err)
	}
	applyRuleDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// defaults returns a Config pre-populated with default values. The
// thresholds mirror the limits operators started from (100 units, 90%);
// they are replaced wholesale when the file declares its own.
func defaults() *Config {
	return &Config{
		Thresholds: []Threshold{
			{
				Name:       "low_inventory",
				Field:      "total_quantity",
				Comparator: "lt",
				Limit:      100,
				Subject:    "Low Inventory Alert",
				Template:   "Alert: Inventory in Warehouse {{.Row.warehouse_id}} is critically low at {{.Value}} units.",
				Severity:   "critical",
			},
			{
				Name:       "high_utilization",
				Field:      "storage_utilization",
				Comparator: "gt",
				Limit:      90,
				Subject:    "High Utilization Alert",
				Template:   "Alert: Warehouse {{.Row.warehouse_id}} has high storage utilization at {{printf \"%.1f\" .Value}}%.",
				Severity:   "warning",
			},
		},
		Alerts: AlertsConfig{
			Stage:   DefaultAlertStage,
			History: DefaultAlertHistory,
		},
		Telemetry: TelemetryConfig{
			Backend: "file",
			Path:    DefaultTelemetryPath,
			History: DefaultTelemetryHistory,
		},
		Notifier: NotifierConfig{
			Transport:   "log",
			Concurrency: DefaultConcurrency,
			Timeout:     DefaultNotifyTimeout,
		},
		Transform: TransformConfig{
			Required: []string{"product_id", "warehouse_id", "quantity"},
			GroupBy:  []string{"warehouse_id", "date"},
			Sum:      []string{"quantity", "cost_of_goods_sold", "correct_orders", "total_orders"},
			Mean:     []string{"order_value", "average_inventory"},
			Max:      []string{"used_space", "total_space", "storage_capacity"},
			Rename: map[string]string{
				"quantity":    "total_quantity",
				"order_value": "average_order_value",
			},
		},
		Warehouse: WarehouseConfig{
			Driver: "sqlite",
			DSN:    "warehouse.db",
			Table:  DefaultWarehouseTable,
		},
		Dashboard: DashboardConfig{
			ExportPath: DefaultDashboardPath,
		},
		Handoff: HandoffConfig{
			TTL: DefaultHandoffTTL,
		},
		Server: ServerConfig{
			Auth: AuthConfig{Mode: "none", Header: DefaultAPIKeyHeader},
		},
		Observability: ObservabilityConfig{
			ServiceName: "warehousepulse-orchestrator",
			SampleRate:  1,
		},
	}
}

// applyRuleDefaults fills per-rule fields that depend on other fields.
func applyRuleDefaults(cfg *Config) {
	for i := range cfg.Thresholds {
		th := &cfg.Thresholds[i]
		if th.Subject == "" {
			th.Subject = th.Field + " threshold alert"
		}
		if th.Name == "" {
			th.Name = th.Subject
		}
		if th.Severity == "" {
			th.Severity = "warning"
		}
		if th.KeyField == "" {
			th.KeyField = DefaultKeyField
		}
		if len(th.Recipients) == 0 {
			th.Recipients = cfg.Notifier.Recipients
		}
	}
}

// ComparatorValid reports whether s names a supported comparator.
func ComparatorValid(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "lt", "<", "lessthan", "less_than", "gt", ">", "greaterthan", "greater_than":
		return true
	}
	return false
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	if _, err := cfg.Location(); err != nil {
		return invalid("timezone %q: %v", cfg.Timezone, err)
	}

	if len(cfg.Stages) == 0 {
		return invalid("at least one stage is required")
	}
	seen := make(map[string]bool, len(cfg.Stages))
	for i, st := range cfg.Stages {
		if st.Name == "" {
			return invalid("stages[%d]: name is required", i)
		}
		if seen[st.Name] {
			return invalid("stages[%d]: duplicate stage name %q", i, st.Name)
		}
		seen[st.Name] = true

		switch {
		case st.At != "" && st.Every != 0:
			return invalid("stages[%d] %q: set either at or every, not both", i, st.Name)
		case st.At != "":
			if !timeOfDay.MatchString(st.At) {
				return invalid("stages[%d] %q: malformed time of day %q (want HH:MM)", i, st.Name, st.At)
			}
		case st.Every < 0:
			return invalid("stages[%d] %q: every must be positive", i, st.Name)
		case st.Every == 0:
			return invalid("stages[%d] %q: at or every is required", i, st.Name)
		}

		if !knownAction(st.ActionName()) {
			return invalid("stages[%d] %q: unknown action %q", i, st.Name, st.ActionName())
		}
	}

	for i, th := range cfg.Thresholds {
		if th.Field == "" {
			return invalid("thresholds[%d]: field is required", i)
		}
		if !ComparatorValid(th.Comparator) {
			return invalid("thresholds[%d] %q: unknown comparator %q", i, th.Name, th.Comparator)
		}
		if th.Template != "" {
			if _, err := template.New(th.Name).Parse(th.Template); err != nil {
				return invalid("thresholds[%d] %q: template: %v", i, th.Name, err)
			}
		}
		switch th.Severity {
		case "critical", "warning", "info":
		default:
			return invalid("thresholds[%d] %q: unknown severity %q", i, th.Name, th.Severity)
		}
	}
	if len(cfg.Thresholds) > 0 && !seen[cfg.Alerts.Stage] {
		return invalid("alerts.stage %q is not a configured stage", cfg.Alerts.Stage)
	}
	switch cfg.Alerts.Suppression.Backend {
	case "":
	case "memory", "redis":
		if cfg.Alerts.Suppression.Cooldown <= 0 {
			return invalid("alerts.suppression.cooldown must be positive")
		}
		if cfg.Alerts.Suppression.Backend == "redis" && cfg.Alerts.Suppression.RedisAddr == "" {
			return invalid("alerts.suppression.redis_addr is required for the redis backend")
		}
	default:
		return invalid("alerts.suppression: unknown backend %q", cfg.Alerts.Suppression.Backend)
	}

	switch cfg.Telemetry.Backend {
	case "file", "sqlite":
	default:
		return invalid("telemetry: unknown backend %q", cfg.Telemetry.Backend)
	}
	if cfg.Telemetry.Path == "" {
		return invalid("telemetry.path is required")
	}

	n := cfg.Notifier
	switch n.Transport {
	case "log":
	case "smtp":
		if n.Endpoint == "" {
			return invalid("notifier.endpoint is required for smtp")
		}
		if n.From == "" {
			return invalid("notifier.from is required for smtp")
		}
	case "webhook":
		switch n.Webhook.Type {
		case "slack", "teams", "http":
		default:
			return invalid("notifier.webhook: unknown type %q", n.Webhook.Type)
		}
		if n.Webhook.URLEnv == "" {
			return invalid("notifier.webhook.url_env is required")
		}
	default:
		return invalid("notifier: unknown transport %q", n.Transport)
	}
	if n.Concurrency <= 0 {
		return invalid("notifier.concurrency must be positive")
	}
	if n.RatePerSecond < 0 {
		return invalid("notifier.rate_per_second must not be negative")
	}

	names := make(map[string]bool, len(cfg.Sources))
	for i, src := range cfg.Sources {
		if src.Name == "" {
			return invalid("sources[%d]: name is required", i)
		}
		if names[src.Name] {
			return invalid("sources[%d]: duplicate source name %q", i, src.Name)
		}
		names[src.Name] = true
		switch src.Type {
		case "csv":
			if src.Path == "" {
				return invalid("sources[%d] %q: path is required", i, src.Name)
			}
		case "sql":
			if !knownDriver(src.Driver) {
				return invalid("sources[%d] %q: unknown driver %q", i, src.Name, src.Driver)
			}
			if src.Query == "" {
				return invalid("sources[%d] %q: query is required", i, src.Name)
			}
		default:
			return invalid("sources[%d] %q: unknown type %q", i, src.Name, src.Type)
		}
	}

	if !knownDriver(cfg.Warehouse.Driver) {
		return invalid("warehouse: unknown driver %q", cfg.Warehouse.Driver)
	}
	if cfg.Warehouse.Table == "" {
		return invalid("warehouse.table is required")
	}
	if cfg.Dashboard.ExportPath == "" {
		return invalid("dashboard.export_path is required")
	}
	if cfg.Handoff.TTL <= 0 {
		return invalid("handoff.ttl must be positive")
	}

	switch cfg.Server.Auth.Mode {
	case "none", "":
	case "apikey":
		if cfg.Server.Auth.KeyEnv == "" {
			return invalid("server.auth.key_env is required for apikey mode")
		}
	default:
		return invalid("server.auth: unknown mode %q", cfg.Server.Auth.Mode)
	}

	if cfg.Observability.Enabled && cfg.Observability.Endpoint == "" {
		return invalid("observability.endpoint is required when enabled")
	}
	return nil
}

func knownAction(name string) bool {
	for _, a := range Actions {
		if a == name {
			return true
		}
	}
	return false
}

func knownDriver(d string) bool {
	return d == "sqlite" || d == "postgres"
}

func env(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}
