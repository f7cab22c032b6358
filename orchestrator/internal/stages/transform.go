package stages

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/warehousepulse/warehousepulse/orchestrator/internal/config"
	"github.com/warehousepulse/warehousepulse/pkg/dataset"
)

// ErrNoRows is returned when a stage has nothing to work on.
var ErrNoRows = errors.New("no rows")

// Transformer cleans raw rows and aggregates them into daily summaries.
type Transformer struct {
	cfg config.TransformConfig
}

func NewTransformer(cfg config.TransformConfig) *Transformer {
	return &Transformer{cfg: cfg}
}

// Transform runs Clean then Aggregate.
func (t *Transformer) Transform(ds dataset.Dataset) (dataset.Dataset, error) {
	cleaned := Clean(ds, t.cfg.Required)
	if len(cleaned) == 0 {
		return nil, fmt.Errorf("transform: %w left after cleaning %d input rows", ErrNoRows, len(ds))
	}
	return Aggregate(cleaned, t.cfg)
}

// Clean drops rows missing any required field, fills missing values in
// numeric columns with 0 and parses the date column. Dates that do not
// parse become nil. The input is not modified.
func Clean(ds dataset.Dataset, required []string) dataset.Dataset {
	numeric := numericColumns(ds)
	out := make(dataset.Dataset, 0, len(ds))
	for _, r := range ds {
		if !hasAll(r, required) {
			continue
		}
		row := r.Clone()
		for col := range numeric {
			if !row.Has(col) {
				row[col] = 0.0
			}
		}
		if v, ok := row["date"]; ok {
			row["date"] = toDate(v)
		}
		out = append(out, row)
	}
	return out
}

func hasAll(r dataset.Row, fields []string) bool {
	for _, f := range fields {
		if !r.Has(f) {
			return false
		}
	}
	return true
}

// numericColumns are the columns whose present values are all numbers.
func numericColumns(ds dataset.Dataset) map[string]bool {
	cols := make(map[string]bool)
	for _, r := range ds {
		for k, v := range r {
			if v == nil {
				continue
			}
			isNum := false
			switch v.(type) {
			case int64, float64, int, float32:
				isNum = true
			}
			if prev, seen := cols[k]; seen {
				cols[k] = prev && isNum
			} else {
				cols[k] = isNum
			}
		}
	}
	for k, ok := range cols {
		if !ok {
			delete(cols, k)
		}
	}
	return cols
}

func toDate(v any) any {
	switch x := v.(type) {
	case time.Time:
		return x
	case string:
		if t, ok := dataset.ParseValue(x).(time.Time); ok {
			return t
		}
	}
	return nil
}

// Aggregate groups rows by cfg.GroupBy and reduces the Sum, Mean and Max
// fields, then applies cfg.Rename. Rows missing a group field are dropped.
// Groups are ordered by their key values, first group field first.
func Aggregate(ds dataset.Dataset, cfg config.TransformConfig) (dataset.Dataset, error) {
	if len(cfg.GroupBy) == 0 {
		return nil, errors.New("transform: group_by is empty")
	}
	present := make(map[string]bool)
	for _, f := range ds.Fields() {
		present[f] = true
	}
	for _, f := range cfg.GroupBy {
		if !present[f] {
			return nil, fmt.Errorf("transform: %w", &dataset.MissingFieldError{Field: f})
		}
	}

	type acc struct {
		row   dataset.Row
		sum   map[string]float64
		nsum  map[string]int
		mean  map[string]float64
		nmean map[string]int
		max   map[string]float64
		seenM map[string]bool
	}
	groups := make(map[string]*acc)
	var order []string
	for _, r := range ds {
		if !hasAll(r, cfg.GroupBy) {
			continue
		}
		parts := make([]string, len(cfg.GroupBy))
		for i, f := range cfg.GroupBy {
			parts[i] = dataset.FormatValue(r[f])
		}
		key := strings.Join(parts, "\x00")
		g, ok := groups[key]
		if !ok {
			g = &acc{
				row:   dataset.Row{},
				sum:   map[string]float64{},
				nsum:  map[string]int{},
				mean:  map[string]float64{},
				nmean: map[string]int{},
				max:   map[string]float64{},
				seenM: map[string]bool{},
			}
			for _, f := range cfg.GroupBy {
				g.row[f] = r[f]
			}
			groups[key] = g
			order = append(order, key)
		}
		for _, f := range cfg.Sum {
			if v, err := r.Number(f); err == nil {
				g.sum[f] += v
				g.nsum[f]++
			}
		}
		for _, f := range cfg.Mean {
			if v, err := r.Number(f); err == nil {
				g.mean[f] += v
				g.nmean[f]++
			}
		}
		for _, f := range cfg.Max {
			if v, err := r.Number(f); err == nil {
				if !g.seenM[f] || v > g.max[f] {
					g.max[f] = v
				}
				g.seenM[f] = true
			}
		}
	}

	out := make(dataset.Dataset, 0, len(order))
	for _, key := range order {
		g := groups[key]
		row := g.row
		for _, f := range cfg.Sum {
			if g.nsum[f] > 0 {
				row[f] = g.sum[f]
			}
		}
		for _, f := range cfg.Mean {
			if g.nmean[f] > 0 {
				row[f] = g.mean[f] / float64(g.nmean[f])
			}
		}
		for _, f := range cfg.Max {
			if g.seenM[f] {
				row[f] = g.max[f]
			}
		}
		for from, to := range cfg.Rename {
			if v, ok := row[from]; ok {
				delete(row, from)
				row[to] = v
			}
		}
		out = append(out, row)
	}

	// Stable sorts from the last key to the first give lexicographic order.
	for i := len(cfg.GroupBy) - 1; i >= 0; i-- {
		field := cfg.GroupBy[i]
		if to, ok := cfg.Rename[field]; ok {
			field = to
		}
		out.SortBy(field)
	}
	return out, nil
}
