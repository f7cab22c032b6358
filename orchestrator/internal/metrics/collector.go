package metrics

import (
	"context"
	"io"
	"net/http"
	"sort"
	"sync"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/warehousepulse/warehousepulse/orchestrator/internal/alerts"
	"github.com/warehousepulse/warehousepulse/orchestrator/internal/notify"
	"github.com/warehousepulse/warehousepulse/orchestrator/internal/telemetry"
)

// Metric names.
const (
	StageRuns        = "warehousepulse_stage_runs_total"
	StageDuration    = "warehousepulse_stage_last_duration_seconds"
	StageLastSuccess = "warehousepulse_stage_last_success_timestamp_seconds"
	Notifications    = "warehousepulse_notifications_total"
)

type runKey struct {
	stage  string
	status telemetry.Status
}

type notifyKey struct {
	rule   string
	status notify.Status
}

// Collector accumulates counters in memory. Safe for concurrent use.
type Collector struct {
	mu          sync.Mutex
	runs        map[runKey]float64
	duration    map[string]float64
	lastSuccess map[string]float64
	notified    map[notifyKey]float64
}

// NewCollector returns an empty Collector.
func NewCollector() *Collector {
	return &Collector{
		runs:        make(map[runKey]float64),
		duration:    make(map[string]float64),
		lastSuccess: make(map[string]float64),
		notified:    make(map[notifyKey]float64),
	}
}

// Append implements telemetry.Sink. Notification failure outcomes are
// skipped; deliveries are counted by ObserveNotification.
func (c *Collector) Append(_ context.Context, o telemetry.TaskOutcome) error {
	if o.Alert != "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runs[runKey{o.Stage, o.Status}]++
	c.duration[o.Stage] = o.DurationSeconds
	if !o.Failed() {
		c.lastSuccess[o.Stage] = float64(o.End.UnixNano()) / 1e9
	}
	return nil
}

// ObserveNotification implements notify.Observer.
func (c *Collector) ObserveNotification(a alerts.Alert, r notify.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notified[notifyKey{a.Rule, r.Status}]++
}

// Families snapshots the current values, sorted by name then labels.
func (c *Collector) Families() []*dto.MetricFamily {
	c.mu.Lock()
	defer c.mu.Unlock()

	runs := family(StageRuns, "Stage executions by outcome.", dto.MetricType_COUNTER)
	for k, v := range c.runs {
		runs.Metric = append(runs.Metric, counter(v, "stage", k.stage, "status", string(k.status)))
	}
	dur := family(StageDuration, "Duration of the most recent execution.", dto.MetricType_GAUGE)
	for stage, v := range c.duration {
		dur.Metric = append(dur.Metric, gauge(v, "stage", stage))
	}
	last := family(StageLastSuccess, "Unix time of the most recent successful execution.", dto.MetricType_GAUGE)
	for stage, v := range c.lastSuccess {
		last.Metric = append(last.Metric, gauge(v, "stage", stage))
	}
	sent := family(Notifications, "Alert notifications by delivery status.", dto.MetricType_COUNTER)
	for k, v := range c.notified {
		sent.Metric = append(sent.Metric, counter(v, "rule", k.rule, "status", string(k.status)))
	}

	out := []*dto.MetricFamily{runs, dur, last, sent}
	for _, mf := range out {
		sortMetrics(mf.Metric)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GetName() < out[j].GetName() })
	return out
}

// WriteText writes every non-empty family in the Prometheus text format.
func (c *Collector) WriteText(w io.Writer) error {
	for _, mf := range c.Families() {
		if len(mf.Metric) == 0 {
			continue
		}
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

func (c *Collector) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", string(expfmt.NewFormat(expfmt.TypeTextPlain)))
	_ = c.WriteText(w)
}

func family(name, help string, typ dto.MetricType) *dto.MetricFamily {
	return &dto.MetricFamily{Name: &name, Help: &help, Type: typ.Enum()}
}

func counter(v float64, labels ...string) *dto.Metric {
	return &dto.Metric{Label: labelPairs(labels), Counter: &dto.Counter{Value: &v}}
}

func gauge(v float64, labels ...string) *dto.Metric {
	return &dto.Metric{Label: labelPairs(labels), Gauge: &dto.Gauge{Value: &v}}
}

// labelPairs turns name, value, name, value... into label pairs.
func labelPairs(kv []string) []*dto.LabelPair {
	out := make([]*dto.LabelPair, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		name, value := kv[i], kv[i+1]
		out = append(out, &dto.LabelPair{Name: &name, Value: &value})
	}
	return out
}

func sortMetrics(ms []*dto.Metric) {
	key := func(m *dto.Metric) string {
		var s string
		for _, lp := range m.GetLabel() {
			s += lp.GetName() + "=" + lp.GetValue() + ","
		}
		return s
	}
	sort.Slice(ms, func(i, j int) bool { return key(ms[i]) < key(ms[j]) })
}
