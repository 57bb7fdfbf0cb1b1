package tariff

import (
	"testing"
	"time"
)

func tableWithRates(t *testing.T, date string, rates []float64) DayRateTable {
	t.Helper()
	start, err := time.Parse("2006-01-02", date)
	if err != nil {
		t.Fatalf("bad date %q: %v", date, err)
	}
	table := DayRateTable{Date: date}
	for i, r := range rates {
		table.Periods = append(table.Periods, RatePeriod{
			Start: start.Add(time.Duration(i) * 30 * time.Minute),
			Rate:  r,
		})
	}
	return table
}

func TestStats(t *testing.T) {
	table := tableWithRates(t, "2024-06-01", []float64{10, 20, 30, 40})

	s, err := Stats(table)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Min != 10 || s.Max != 40 || s.Average != 25 {
		t.Errorf("got min=%v max=%v avg=%v, want 10/40/25", s.Min, s.Max, s.Average)
	}
}

func TestStatsEmptyTable(t *testing.T) {
	if _, err := Stats(DayRateTable{}); err != ErrEmptyTable {
		t.Errorf("got %v, want ErrEmptyTable", err)
	}
}

func TestLowestCostWindows(t *testing.T) {
	// 48 slots: expensive everywhere except a dip in slots 10-13.
	rates := make([]float64, 48)
	for i := range rates {
		rates[i] = 25
	}
	rates[10] = 8
	rates[11] = 5
	rates[12] = 6
	rates[13] = 9
	table := tableWithRates(t, "2024-06-01", rates)

	windows := LowestCostWindows(table, []int{1, 2, 4, 6, 8, 48})

	if w := windows[1]; w.Start != PeriodOf(table.Periods[11].Start) || w.AverageRate != 5 {
		t.Errorf("length 1: got start=%s avg=%v, want cheapest single slot", w.Start, w.AverageRate)
	}
	if w := windows[2]; w.Start != PeriodOf(table.Periods[11].Start) || w.AverageRate != 5.5 {
		t.Errorf("length 2: got start=%s avg=%v, want 11-12 at 5.5", w.Start, w.AverageRate)
	}
	if w := windows[4]; w.Start != PeriodOf(table.Periods[10].Start) || w.AverageRate != 7 {
		t.Errorf("length 4: got start=%s avg=%v, want 10-13 at 7", w.Start, w.AverageRate)
	}

	// The whole-table window is the table's own average.
	s, err := Stats(table)
	if err != nil {
		t.Fatal(err)
	}
	if w := windows[48]; w.Start != PeriodOf(table.Periods[0].Start) || !almostEqual(w.AverageRate, s.Average) {
		t.Errorf("length 48: got start=%s avg=%v, want table average %v", w.Start, w.AverageRate, s.Average)
	}
}

func TestLowestCostWindowsTieBreaksEarliest(t *testing.T) {
	table := tableWithRates(t, "2024-06-01", []float64{5, 9, 5, 9, 5})

	w := LowestCostWindows(table, []int{1})[1]
	if w.Start != PeriodOf(table.Periods[0].Start) {
		t.Errorf("tie must go to earliest start, got %s", w.Start)
	}
}

func TestLowestCostWindowsNoWraparound(t *testing.T) {
	// Cheap tail: a window of 2 must not wrap past the final slot to use it.
	table := tableWithRates(t, "2024-06-01", []float64{10, 10, 10, 1})

	w := LowestCostWindows(table, []int{2})[2]
	if w.Start != PeriodOf(table.Periods[2].Start) {
		t.Errorf("got start %s, want final valid offset", w.Start)
	}
	if w.AverageRate != 5.5 {
		t.Errorf("got avg %v, want 5.5", w.AverageRate)
	}
}

func TestLowestCostWindowsLongerThanTable(t *testing.T) {
	table := tableWithRates(t, "2024-06-01", []float64{10, 20})
	if _, ok := LowestCostWindows(table, []int{4})[4]; ok {
		t.Error("window longer than the table must be omitted")
	}
}

func almostEqual(a, b float64) bool {
	d := a - b
	return d < 1e-9 && d > -1e-9
}
