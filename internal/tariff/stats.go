package tariff

import "errors"

// ErrEmptyTable is returned when statistics are requested over a table with
// no records.
var ErrEmptyTable = errors.New("rate table has no records")

// DayStats are the daily aggregate figures over a rate table.
type DayStats struct {
	Min     float64
	Max     float64
	Average float64
}

// StatWindow is the lowest-average-cost contiguous run of LengthSlots
// half-hour slots found in a table. Derived each refresh, never persisted.
type StatWindow struct {
	LengthSlots int
	Start       PeriodID
	AverageRate float64
}

// WindowLengths are the window sizes computed each refresh, in half-hour
// slots: 30m, 1h, 2h, 3h and 4h.
var WindowLengths = []int{1, 2, 4, 6, 8}

// Stats computes min, max and plain mean over the table's rates. Slots are
// equal length so the mean needs no time weighting.
func Stats(t DayRateTable) (DayStats, error) {
	if t.Len() == 0 {
		return DayStats{}, ErrEmptyTable
	}
	s := DayStats{Min: t.Periods[0].Rate, Max: t.Periods[0].Rate}
	sum := 0.0
	for _, p := range t.Periods {
		sum += p.Rate
		if p.Rate < s.Min {
			s.Min = p.Rate
		}
		if p.Rate > s.Max {
			s.Max = p.Rate
		}
	}
	s.Average = sum / float64(t.Len())
	return s, nil
}

// LowestCostWindows finds, for each requested length, the contiguous run of
// that many slots with the lowest mean rate. Ties go to the earliest start.
// Windows that would run past the final slot are excluded; there is no
// wraparound into the next day. Lengths longer than the table are omitted
// from the result.
func LowestCostWindows(t DayRateTable, lengths []int) map[int]StatWindow {
	out := make(map[int]StatWindow, len(lengths))
	for _, n := range lengths {
		if n <= 0 || n > t.Len() {
			continue
		}
		sum := 0.0
		for i := 0; i < n; i++ {
			sum += t.Periods[i].Rate
		}
		best := StatWindow{
			LengthSlots: n,
			Start:       PeriodOf(t.Periods[0].Start),
			AverageRate: sum / float64(n),
		}
		for i := 1; i+n <= t.Len(); i++ {
			sum += t.Periods[i+n-1].Rate - t.Periods[i-1].Rate
			if avg := sum / float64(n); avg < best.AverageRate {
				best.Start = PeriodOf(t.Periods[i].Start)
				best.AverageRate = avg
			}
		}
		out[n] = best
	}
	return out
}
