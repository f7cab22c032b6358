package stages

import (
	"log/slog"

	"github.com/warehousepulse/warehousepulse/pkg/dataset"
)

// KPI derives one field as Numerator / Denominator * Scale.
type KPI struct {
	Name        string
	Numerator   string
	Denominator string
	Scale       float64
}

// DefaultKPIs are the warehouse indicators computed by the kpi action.
var DefaultKPIs = []KPI{
	{Name: "inventory_turnover", Numerator: "cost_of_goods_sold", Denominator: "average_inventory", Scale: 1},
	{Name: "order_accuracy", Numerator: "correct_orders", Denominator: "total_orders", Scale: 100},
	{Name: "storage_utilization", Numerator: "used_space", Denominator: "total_space", Scale: 100},
}

// ComputeKPIs returns a copy of ds with each KPI added. A KPI whose input
// columns are absent from ds is skipped with a warning; a row with a
// missing input or zero denominator is left without that KPI.
func ComputeKPIs(ds dataset.Dataset, kpis []KPI) dataset.Dataset {
	out := ds.Clone()
	present := make(map[string]bool)
	for _, f := range ds.Fields() {
		present[f] = true
	}
	for _, k := range kpis {
		if !present[k.Numerator] || !present[k.Denominator] {
			slog.Warn("stages: kpi skipped, inputs missing",
				"kpi", k.Name,
				"numerator", k.Numerator,
				"denominator", k.Denominator,
			)
			continue
		}
		for _, row := range out {
			num, err := row.Number(k.Numerator)
			if err != nil {
				continue
			}
			den, err := row.Number(k.Denominator)
			if err != nil || den == 0 {
				continue
			}
			row[k.Name] = num / den * k.Scale
		}
	}
	return out
}
