package charge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neilk/octowatch/internal/tariff"
)

// dayTable builds a 48-slot table for the given UTC day with a default rate
// and per-slot overrides.
func dayTable(t *testing.T, date string, def float64, overrides map[int]float64) tariff.DayRateTable {
	t.Helper()
	start, err := time.Parse("2006-01-02", date)
	require.NoError(t, err)
	table := tariff.DayRateTable{Date: date}
	for i := 0; i < 48; i++ {
		rate := def
		if r, ok := overrides[i]; ok {
			rate = r
		}
		table.Periods = append(table.Periods, tariff.RatePeriod{
			Start: start.Add(time.Duration(i) * 30 * time.Minute),
			Rate:  rate,
		})
	}
	return table
}

func TestConfigValidate(t *testing.T) {
	valid := Config{Band: BandNight, DesiredHours: 2, PriceCeiling: 15}
	assert.NoError(t, valid.Validate())

	var confErr *tariff.ConfigurationError
	for name, cfg := range map[string]Config{
		"unknown band":   {Band: "weekend", DesiredHours: 2, PriceCeiling: 15},
		"zero hours":     {Band: BandDay, DesiredHours: 0, PriceCeiling: 15},
		"too many hours": {Band: BandDay, DesiredHours: 11, PriceCeiling: 15},
		"no ceiling":     {Band: BandDay, DesiredHours: 2, PriceCeiling: 0},
	} {
		err := cfg.Validate()
		require.ErrorAs(t, err, &confErr, name)
	}
}

func TestEvaluatePreferredSetAndIncrement(t *testing.T) {
	// Night band, 2 desired hours: the preferred set is the 4 cheapest
	// night slots. Slots 4-7 (02:00-03:30) at 12p, everything else 20p.
	table := dayTable(t, "2024-01-15", 20, map[int]float64{4: 12, 5: 12, 6: 12, 7: 12})

	eng, err := New(Config{Band: BandNight, DesiredHours: 2, PriceCeiling: 15})
	require.NoError(t, err)

	st := &State{}
	now := time.Date(2024, 1, 15, 2, 3, 0, 0, time.UTC) // inside slot 4

	require.True(t, eng.Evaluate(st, table, now))
	assert.True(t, st.On)
	assert.True(t, st.RatesAvailable)
	assert.Equal(t, 0.5, st.DeliveredHours)
	assert.Len(t, st.PreferredPeriods, 4)
	for _, r := range st.PreferredRates {
		assert.Equal(t, 12.0, r)
	}

	// Re-evaluating inside the same period must not increment again.
	require.False(t, eng.Evaluate(st, table, now.Add(10*time.Minute)))
	require.False(t, eng.Evaluate(st, table, now.Add(20*time.Minute)))
	assert.Equal(t, 0.5, st.DeliveredHours)

	// Next preferred period delivers another half hour.
	require.True(t, eng.Evaluate(st, table, now.Add(30*time.Minute)))
	assert.True(t, st.On)
	assert.Equal(t, 1.0, st.DeliveredHours)
}

func TestEvaluateOffOutsidePreferredSet(t *testing.T) {
	table := dayTable(t, "2024-01-15", 20, map[int]float64{4: 12, 5: 12, 6: 12, 7: 12})
	eng, err := New(Config{Band: BandNight, DesiredHours: 2, PriceCeiling: 15})
	require.NoError(t, err)

	// Slot 0 (00:00) is a night slot but at 20p it is not among the 4
	// cheapest and sits above the ceiling anyway.
	st := &State{}
	eng.Evaluate(st, table, time.Date(2024, 1, 15, 0, 10, 0, 0, time.UTC))
	assert.False(t, st.On)
	assert.Zero(t, st.DeliveredHours)
}

func TestEvaluateCeilingIsInclusive(t *testing.T) {
	// The cheapest night slot sits exactly on the ceiling: still on.
	table := dayTable(t, "2024-01-15", 20, map[int]float64{4: 15})
	eng, err := New(Config{Band: BandNight, DesiredHours: 1, PriceCeiling: 15})
	require.NoError(t, err)

	st := &State{}
	eng.Evaluate(st, table, time.Date(2024, 1, 15, 2, 0, 0, 0, time.UTC))
	assert.True(t, st.On)

	// A hair above the ceiling: off, even though the period is preferred.
	table2 := dayTable(t, "2024-01-15", 20, map[int]float64{4: 15.01})
	st2 := &State{}
	eng2, err := New(Config{Band: BandNight, DesiredHours: 1, PriceCeiling: 15})
	require.NoError(t, err)
	eng2.Evaluate(st2, table2, time.Date(2024, 1, 15, 2, 0, 0, 0, time.UTC))
	assert.False(t, st2.On)
}

func TestEvaluateBlackoutWindows(t *testing.T) {
	table := dayTable(t, "2024-01-15", 20, nil)

	tests := []struct {
		band      Band
		hour      int
		available bool
	}{
		{BandNight, 2, true},
		{BandNight, 9, false},
		{BandNight, 18, true},
		{BandDay, 10, true},
		{BandDay, 16, false},
		{BandDay, 18, true},
		{BandEvening, 12, false},
		{BandEvening, 20, true},
	}
	for _, tt := range tests {
		eng, err := New(Config{Band: tt.band, DesiredHours: 2, PriceCeiling: 15})
		require.NoError(t, err)
		st := &State{}
		eng.Evaluate(st, table, time.Date(2024, 1, 15, tt.hour, 0, 0, 0, time.UTC))
		assert.Equal(t, tt.available, st.RatesAvailable, "band %s hour %d", tt.band, tt.hour)
	}
}

func TestEvaluateDeliveredHoursResetOncePerDay(t *testing.T) {
	table := dayTable(t, "2024-01-15", 20, nil)
	eng, err := New(Config{Band: BandNight, DesiredHours: 2, PriceCeiling: 15})
	require.NoError(t, err)

	st := &State{DeliveredHours: 2.5}

	// The night band resets its counter at 19:00 UTC.
	eng.Evaluate(st, table, time.Date(2024, 1, 15, 19, 5, 0, 0, time.UTC))
	assert.Zero(t, st.DeliveredHours)
	assert.Equal(t, "2024-01-15", st.LastResetDay)

	// The second period of the reset hour does not reset accumulated time.
	st.DeliveredHours = 1.5
	eng.Evaluate(st, table, time.Date(2024, 1, 15, 19, 35, 0, 0, time.UTC))
	assert.Equal(t, 1.5, st.DeliveredHours)
}

func TestBandMembership(t *testing.T) {
	table := dayTable(t, "2024-01-15", 20, nil)

	count := func(b Band) int {
		n := 0
		for _, p := range table.Periods {
			if b.spec().contains(p) {
				n++
			}
		}
		return n
	}

	assert.Equal(t, 16, count(BandNight))   // 00:00-07:30
	assert.Equal(t, 16, count(BandDay))     // 08:00-15:30
	assert.Equal(t, 9, count(BandEvening))  // 19:30-23:30
}
