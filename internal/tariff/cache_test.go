package tariff

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource serves generated tables keyed by date and counts fetches.
type fakeSource struct {
	counts     map[string]int // date -> record count to serve
	errs       map[string]error
	rateCalls  int
	chargeErr  error
	standing   float64
	chargeHits int
}

func (f *fakeSource) Rates(_ context.Context, _ string, date string) (DayRateTable, error) {
	f.rateCalls++
	if err := f.errs[date]; err != nil {
		return DayRateTable{}, err
	}
	n, ok := f.counts[date]
	if !ok {
		n = 48
	}
	start, _ := time.Parse("2006-01-02", date)
	t := DayRateTable{Date: date}
	for i := 0; i < n; i++ {
		t.Periods = append(t.Periods, RatePeriod{Start: start.Add(time.Duration(i) * 30 * time.Minute), Rate: 10})
	}
	return t, nil
}

func (f *fakeSource) StandingCharge(context.Context, string) (float64, error) {
	f.chargeHits++
	if f.chargeErr != nil {
		return 0, f.chargeErr
	}
	return f.standing, nil
}

func (f *fakeSource) Consumption(context.Context, MeterRef, time.Time, time.Time) ([]ConsumptionRecord, error) {
	return nil, nil
}

func (f *fakeSource) ResolveRegion(context.Context, string) (string, error) {
	return "C", nil
}

func london(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/London")
	require.NoError(t, err)
	return loc
}

func TestExpectedPeriodCount(t *testing.T) {
	loc := london(t)

	tests := []struct {
		date string
		want int
	}{
		{"2024-03-31", 46}, // spring forward, 23-hour day
		{"2024-07-01", 48}, // BST in effect
		{"2024-01-15", 47}, // GMT, final period unpublished
	}
	for _, tt := range tests {
		got, err := ExpectedPeriodCount(tt.date, loc)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "date %s", tt.date)
	}
}

func TestValidateTable(t *testing.T) {
	loc := london(t)

	table := func(date string, n int) DayRateTable {
		start, _ := time.Parse("2006-01-02", date)
		dt := DayRateTable{Date: date}
		for i := 0; i < n; i++ {
			dt.Periods = append(dt.Periods, RatePeriod{Start: start.Add(time.Duration(i) * 30 * time.Minute)})
		}
		return dt
	}

	// 46 records is a full day only on a spring-forward transition day.
	assert.NoError(t, ValidateTable(table("2024-03-31", 46), loc))
	assert.Error(t, ValidateTable(table("2024-01-15", 46), loc))

	// 48 records is always a full day.
	assert.NoError(t, ValidateTable(table("2024-01-15", 48), loc))
	assert.NoError(t, ValidateTable(table("2024-07-01", 48), loc))

	// 47 records suffices outside daylight saving but not within it.
	assert.NoError(t, ValidateTable(table("2024-01-15", 47), loc))
	assert.Error(t, ValidateTable(table("2024-07-01", 47), loc))

	var incomplete *IncompleteDataError
	err := ValidateTable(table("2024-07-01", 20), loc)
	require.ErrorAs(t, err, &incomplete)
	assert.Equal(t, 20, incomplete.Got)
	assert.Equal(t, 48, incomplete.Want)
}

func TestRefreshIfNeededIdempotentWithinPeriod(t *testing.T) {
	src := &fakeSource{standing: 21.5}
	cache := &RateCache{Source: src, Region: "C", Location: london(t)}
	entry := &TariffCacheEntry{}

	now := time.Date(2024, 7, 1, 0, 5, 0, 0, time.UTC)

	refreshed, err := cache.RefreshIfNeeded(context.Background(), entry, now)
	require.NoError(t, err)
	assert.True(t, refreshed)
	assert.Equal(t, 2, src.rateCalls, "today and yesterday each fetched once")
	assert.Equal(t, "2024-07-01", entry.LastRefreshed)
	assert.Equal(t, 48, entry.Today.Len())
	assert.Equal(t, 48, entry.Yesterday.Len())
	assert.Equal(t, 21.5, entry.StandingCharge)
	assert.Equal(t, 21.5, entry.YesterdayStandingCharge, "first run backfills yesterday's charge")

	// Same period, no upstream change: no further network fetch.
	refreshed, err = cache.RefreshIfNeeded(context.Background(), entry, now.Add(10*time.Minute))
	require.NoError(t, err)
	assert.False(t, refreshed)
	assert.Equal(t, 2, src.rateCalls)
}

func TestRefreshIfNeededAfternoonLatch(t *testing.T) {
	src := &fakeSource{standing: 21.5}
	cache := &RateCache{Source: src, Region: "C", Location: london(t)}
	entry := &TariffCacheEntry{}

	morning := time.Date(2024, 1, 15, 0, 1, 0, 0, time.UTC)
	_, err := cache.RefreshIfNeeded(context.Background(), entry, morning)
	require.NoError(t, err)
	require.Equal(t, 2, src.rateCalls)
	assert.False(t, entry.AfternoonRefreshDone)

	// 17:00Z period triggers the second daily fetch.
	afternoon := time.Date(2024, 1, 15, 17, 2, 0, 0, time.UTC)
	refreshed, err := cache.RefreshIfNeeded(context.Background(), entry, afternoon)
	require.NoError(t, err)
	assert.True(t, refreshed)
	assert.Equal(t, 4, src.rateCalls)
	assert.True(t, entry.AfternoonRefreshDone)

	// Second evaluation at the same fixed hour does not re-trigger.
	refreshed, err = cache.RefreshIfNeeded(context.Background(), entry, afternoon.Add(5*time.Minute))
	require.NoError(t, err)
	assert.False(t, refreshed)
	assert.Equal(t, 4, src.rateCalls)

	// The flag re-arms only at local-day rollover.
	nextDay := time.Date(2024, 1, 16, 0, 1, 0, 0, time.UTC)
	_, err = cache.RefreshIfNeeded(context.Background(), entry, nextDay)
	require.NoError(t, err)
	assert.False(t, entry.AfternoonRefreshDone)
}

func TestRefreshPartialFailureKeepsStaleSide(t *testing.T) {
	loc := london(t)
	src := &fakeSource{standing: 21.5}
	cache := &RateCache{Source: src, Region: "C", Location: loc}
	entry := &TariffCacheEntry{}

	day1 := time.Date(2024, 1, 15, 0, 1, 0, 0, time.UTC)
	_, err := cache.RefreshIfNeeded(context.Background(), entry, day1)
	require.NoError(t, err)
	oldYesterday := entry.Yesterday

	// Next day: yesterday's fetch fails, today's succeeds.
	src.errs = map[string]error{"2024-01-15": &FetchError{Op: "rates", Status: 503}}
	day2 := time.Date(2024, 1, 16, 0, 1, 0, 0, time.UTC)
	refreshed, err := cache.RefreshIfNeeded(context.Background(), entry, day2)
	assert.True(t, refreshed)
	require.Error(t, err)

	assert.Equal(t, "2024-01-16", entry.Today.Date, "successful half is written")
	assert.Equal(t, oldYesterday.Date, entry.Yesterday.Date, "failed half keeps stale data")
	assert.Equal(t, "2024-01-16", entry.LastRefreshed)
}

func TestRefreshIncompleteTableRetriedNextCycle(t *testing.T) {
	src := &fakeSource{standing: 21.5, counts: map[string]int{"2024-01-15": 12}}
	cache := &RateCache{Source: src, Region: "C", Location: london(t)}
	entry := &TariffCacheEntry{}

	now := time.Date(2024, 1, 15, 9, 1, 0, 0, time.UTC)
	_, err := cache.RefreshIfNeeded(context.Background(), entry, now)
	var incomplete *IncompleteDataError
	require.ErrorAs(t, err, &incomplete)
	assert.Empty(t, entry.LastRefreshed, "incomplete table must not be written")
	assert.Zero(t, entry.Today.Len())

	// The next boundary retries because LastRefreshed never advanced.
	src.counts = nil
	refreshed, err := cache.RefreshIfNeeded(context.Background(), entry, now.Add(30*time.Minute))
	require.NoError(t, err)
	assert.True(t, refreshed)
	assert.Equal(t, "2024-01-15", entry.LastRefreshed)
}
