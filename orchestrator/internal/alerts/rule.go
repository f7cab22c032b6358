package alerts

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/warehousepulse/warehousepulse/orchestrator/internal/config"
)

// Comparator decides whether a value violates a limit.
type Comparator int

const (
	LessThan Comparator = iota + 1
	GreaterThan
)

// ParseComparator accepts lt, <, LessThan, gt, >, GreaterThan in any case.
func ParseComparator(s string) (Comparator, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "lt", "<", "lessthan", "less_than":
		return LessThan, nil
	case "gt", ">", "greaterthan", "greater_than":
		return GreaterThan, nil
	}
	return 0, fmt.Errorf("unknown comparator %q", s)
}

// Violates reports whether v is on the alerting side of limit.
func (c Comparator) Violates(v, limit float64) bool {
	switch c {
	case LessThan:
		return v < limit
	case GreaterThan:
		return v > limit
	}
	return false
}

func (c Comparator) String() string {
	switch c {
	case LessThan:
		return "lt"
	case GreaterThan:
		return "gt"
	}
	return "unknown"
}

func (c Comparator) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Rule is a compiled threshold.
type Rule struct {
	Name       string
	Field      string
	Comparator Comparator
	Limit      float64
	Subject    string
	Template   *template.Template // nil renders the default body
	Recipients []string
	Severity   string
	KeyField   string
}

// Compile turns a configured threshold into a Rule.
func Compile(th config.Threshold) (Rule, error) {
	cmp, err := ParseComparator(th.Comparator)
	if err != nil {
		return Rule{}, fmt.Errorf("alerts: rule %q: %w", th.Name, err)
	}
	r := Rule{
		Name:       th.Name,
		Field:      th.Field,
		Comparator: cmp,
		Limit:      th.Limit,
		Subject:    th.Subject,
		Recipients: append([]string(nil), th.Recipients...),
		Severity:   th.Severity,
		KeyField:   th.KeyField,
	}
	if th.Template != "" {
		tmpl, err := template.New(th.Name).Option("missingkey=zero").Parse(th.Template)
		if err != nil {
			return Rule{}, fmt.Errorf("alerts: rule %q: template: %w", th.Name, err)
		}
		r.Template = tmpl
	}
	return r, nil
}

// CompileAll compiles thresholds in order.
func CompileAll(ths []config.Threshold) ([]Rule, error) {
	rules := make([]Rule, 0, len(ths))
	for _, th := range ths {
		r, err := Compile(th)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}
