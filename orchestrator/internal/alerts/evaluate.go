package alerts

import (
	"bytes"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/warehousepulse/warehousepulse/pkg/dataset"
)

// Alert is one violating row of one rule.
type Alert struct {
	ID         string      `json:"id"`
	Rule       string      `json:"rule"`
	Subject    string      `json:"subject"`
	Body       string      `json:"body"`
	Recipients []string    `json:"recipients"`
	Severity   string      `json:"severity"`
	Field      string      `json:"field"`
	Value      float64     `json:"value"`
	Limit      float64     `json:"limit"`
	Key        string      `json:"key"`
	Row        dataset.Row `json:"row"`
	CreatedAt  time.Time   `json:"created_at"`

	// Delivery is empty until the notifier reports back, then
	// "delivered" or "failed".
	Delivery string `json:"delivery,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// templateData is what a rule template sees.
type templateData struct {
	Row   dataset.Row
	Field string
	Value float64
	Limit float64
}

// Evaluate scans every row against every rule, rules first. A rule whose
// field is missing from, or not numeric in, any row yields no alerts; the
// omission is logged and the remaining rules still run.
func Evaluate(ds dataset.Dataset, rules []Rule) []Alert {
	return evaluate(ds, rules, time.Now())
}

func evaluate(ds dataset.Dataset, rules []Rule, now time.Time) []Alert {
	var out []Alert
	for _, rule := range rules {
		alerts, err := evaluateRule(ds, rule, now)
		if err != nil {
			slog.Warn("alerts: rule skipped",
				"rule", rule.Name,
				"field", rule.Field,
				"err", err,
			)
			continue
		}
		out = append(out, alerts...)
	}
	return out
}

func evaluateRule(ds dataset.Dataset, rule Rule, now time.Time) ([]Alert, error) {
	var out []Alert
	for i, row := range ds {
		v, err := row.Number(rule.Field)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		if !rule.Comparator.Violates(v, rule.Limit) {
			continue
		}
		out = append(out, Alert{
			ID:         uuid.NewString(),
			Rule:       rule.Name,
			Subject:    rule.Subject,
			Body:       render(rule, row, v),
			Recipients: append([]string(nil), rule.Recipients...),
			Severity:   rule.Severity,
			Field:      rule.Field,
			Value:      v,
			Limit:      rule.Limit,
			Key:        entityKey(rule, row, i),
			Row:        row.Clone(),
			CreatedAt:  now,
		})
	}
	return out, nil
}

func render(rule Rule, row dataset.Row, v float64) string {
	if rule.Template != nil {
		var buf bytes.Buffer
		err := rule.Template.Execute(&buf, templateData{Row: row, Field: rule.Field, Value: v, Limit: rule.Limit})
		if err == nil {
			return buf.String()
		}
		slog.Warn("alerts: template failed, using default body", "rule", rule.Name, "err", err)
	}
	return fmt.Sprintf("%s: %s is %v (%s %v)", rule.Subject, rule.Field, v, rule.Comparator, rule.Limit)
}

// entityKey names the thing a row describes, falling back to its index.
func entityKey(rule Rule, row dataset.Row, i int) string {
	if rule.KeyField != "" && row.Has(rule.KeyField) {
		return row.String(rule.KeyField)
	}
	return fmt.Sprintf("#%d", i)
}
