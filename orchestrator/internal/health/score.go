package health

// Weight constants for the stage score. They must sum to 1.0.
const (
	weightSuccess  = 0.60
	weightLast     = 0.30
	weightDelivery = 0.10
)

// State names returned by Compute.
const (
	StateHealthy  = "healthy"
	StateDegraded = "degraded"
	StateFailing  = "failing"
	StateUnknown  = "unknown"
)

// Thresholds that map a score to a state.
const (
	ThresholdHealthy  = 85.0
	ThresholdDegraded = 60.0
)

// Input holds the values fed into the score. Percentages are 0–100.
type Input struct {
	// Runs is the number of stage executions observed in the window.
	Runs int

	// SuccessPct is the share of those executions that succeeded.
	SuccessPct float64

	// LastOK reports whether the most recent execution succeeded.
	LastOK bool

	// DeliveryPct is the share of alert notifications delivered. Use 100
	// when the stage raised none.
	DeliveryPct float64
}

// Output is the computed score and state.
type Output struct {
	Score float64
	State string
}

// Compute scores a stage:
//
//	score = (success_pct/100 * 0.60 + last_ok * 0.30 + delivery_pct/100 * 0.10) * 100
//
// A stage with no runs is unknown.
func Compute(in Input) Output {
	if in.Runs == 0 {
		return Output{State: StateUnknown}
	}
	last := 0.0
	if in.LastOK {
		last = 1
	}
	score := (clamp01(in.SuccessPct/100)*weightSuccess +
		last*weightLast +
		clamp01(in.DeliveryPct/100)*weightDelivery) * 100
	return Output{Score: score, State: stateFromScore(score)}
}

func stateFromScore(score float64) string {
	switch {
	case score >= ThresholdHealthy:
		return StateHealthy
	case score >= ThresholdDegraded:
		return StateDegraded
	default:
		return StateFailing
	}
}

// Worst combines stage states into one. Unknown stages are ignored unless
// every stage is unknown.
func Worst(states ...string) string {
	rank := map[string]int{StateHealthy: 1, StateDegraded: 2, StateFailing: 3}
	worst := StateUnknown
	for _, s := range states {
		if rank[s] > rank[worst] {
			worst = s
		}
	}
	return worst
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
