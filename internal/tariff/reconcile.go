package tariff

import "time"

// PeriodCost is the cost of one reconciled half-hour of consumption, in the
// same currency unit as the rate (pence).
type PeriodCost struct {
	IntervalStart time.Time `json:"interval_start"`
	Quantity      float64   `json:"quantity"`
	Cost          float64   `json:"cost"`
}

// ReconcileResult is the outcome of matching a day of metered consumption
// against that day's rate table.
type ReconcileResult struct {
	PerPeriod []PeriodCost `json:"per_period"`
	TotalCost float64      `json:"total_cost"`
}

// Reconcile pairs each consumption record with the rate covering the same
// half-hour by ordinal position; both sequences are ordered by time and must
// be the same length. A length mismatch is an AlignmentError: computing
// against misaligned data silently produces wrong costs, which is strictly
// worse than retrying on the next cycle.
func Reconcile(consumption []ConsumptionRecord, rates DayRateTable) (ReconcileResult, error) {
	if len(consumption) == 0 || len(consumption) != rates.Len() {
		return ReconcileResult{}, &AlignmentError{Consumption: len(consumption), Rates: rates.Len()}
	}
	res := ReconcileResult{PerPeriod: make([]PeriodCost, 0, len(consumption))}
	for i, c := range consumption {
		cost := c.Quantity * rates.Periods[i].Rate
		res.PerPeriod = append(res.PerPeriod, PeriodCost{
			IntervalStart: c.IntervalStart,
			Quantity:      c.Quantity,
			Cost:          cost,
		})
		res.TotalCost += cost
	}
	return res, nil
}

// TotalQuantity sums raw metered quantities. Gas meters skip cost
// conversion and report this figure only.
func TotalQuantity(consumption []ConsumptionRecord) float64 {
	total := 0.0
	for _, c := range consumption {
		total += c.Quantity
	}
	return total
}
