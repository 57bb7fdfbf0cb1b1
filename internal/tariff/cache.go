package tariff

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// AfternoonRefreshHour is the UTC hour at which the upstream source is
// expected to have published the remainder of the day's rates. Not all
// periods are available at midnight, so a second refresh at this hour
// recovers late-published data without waiting for the next day.
const AfternoonRefreshHour = 17

// TariffCacheEntry holds the most recently fetched rate tables for one
// tariff entity. It is owned exclusively by that entity and only mutated by
// RateCache.RefreshIfNeeded.
type TariffCacheEntry struct {
	Today                   DayRateTable
	Yesterday               DayRateTable
	LastRefreshed           string // local calendar day of the last successful today fetch
	AfternoonRefreshDone    bool
	StandingCharge          float64
	YesterdayStandingCharge float64
}

// NeedsDailyRefresh reports whether the cached today table is for a
// different calendar day than today.
func (e *TariffCacheEntry) NeedsDailyRefresh(today string) bool {
	return e.LastRefreshed != today
}

// NeedsAfternoonRefresh reports whether the fixed afternoon re-publish
// refresh is due: we are in the 17:00Z period of today and it has not
// already run.
func NeedsAfternoonRefresh(current PeriodID, today string, done bool) bool {
	if done {
		return false
	}
	return current == PeriodID(fmt.Sprintf("%sT%02d:00:00Z", today, AfternoonRefreshHour))
}

// ExpectedPeriodCount returns the number of half-hour rate records upstream
// publishes for the given local calendar day. A 23-hour spring-forward day
// has 46 periods. With daylight saving in effect a full 48 are published;
// outside it the final late-evening period is not, leaving 47. The missing
// slot on 47-record days is treated as genuinely absent upstream rather than
// borrowed from the adjacent day's table.
func ExpectedPeriodCount(date string, loc *time.Location) (int, error) {
	day, err := time.ParseInLocation("2006-01-02", date, loc)
	if err != nil {
		return 0, fmt.Errorf("parsing date %q: %w", date, err)
	}
	next := day.AddDate(0, 0, 1)
	if hours := next.Sub(day).Hours(); hours < 24 {
		return 46, nil
	}
	// The 25-hour fall-back day takes the plain winter path: upstream
	// publishes at most 48 records for it, never the clock's extra two
	// slots, and 48 is always accepted below.
	noon := time.Date(day.Year(), day.Month(), day.Day(), 12, 0, 0, 0, loc)
	if noon.IsDST() {
		return 48, nil
	}
	return 47, nil
}

// ValidateTable checks that a fetched table has the record count a full day
// requires. A 48-record table is always accepted as complete. Anything else
// must match the DST-derived expected count exactly.
func ValidateTable(t DayRateTable, loc *time.Location) error {
	want, err := ExpectedPeriodCount(t.Date, loc)
	if err != nil {
		return err
	}
	if t.Len() == 48 || t.Len() == want {
		return nil
	}
	return &IncompleteDataError{Date: t.Date, Got: t.Len(), Want: want}
}

// RateCache decides when the cached tables for a tariff entity must be
// re-fetched from the upstream source and performs the fetch. All timezone
// arithmetic for completeness checks lives here and in ExpectedPeriodCount.
type RateCache struct {
	Source   RateSource
	Region   string
	Location *time.Location
	Timeout  time.Duration
}

// RefreshIfNeeded refreshes the entry when the day has rolled over or the
// afternoon re-publish window is due. It returns whether a fetch was
// attempted. On partial failure the stale side of the cache is retained and
// an error returned; the caller retries on the next eligible boundary.
func (c *RateCache) RefreshIfNeeded(ctx context.Context, e *TariffCacheEntry, now time.Time) (bool, error) {
	today := LocalDay(now, c.Location)
	current := CurrentPeriod(now)

	daily := e.NeedsDailyRefresh(today)
	if daily {
		// Local-day rollover re-arms the afternoon refresh.
		e.AfternoonRefreshDone = false
	}
	afternoon := NeedsAfternoonRefresh(current, today, e.AfternoonRefreshDone)
	if !daily && !afternoon {
		return false, nil
	}

	err := c.refresh(ctx, e, now)
	if afternoon && !e.NeedsDailyRefresh(today) {
		// Only latch once today's table actually landed.
		e.AfternoonRefreshDone = true
	}
	return true, err
}

// refresh fetches today's and yesterday's tables and the standing charge.
// Yesterday is always re-fetched from source rather than copied forward so a
// first-ever run, or one that missed a cycle, still gets correct data. Each
// sub-fetch fails independently; whichever halves succeed are kept.
func (c *RateCache) refresh(ctx context.Context, e *TariffCacheEntry, now time.Time) error {
	today := LocalDay(now, c.Location)
	yesterday := LocalDay(now.AddDate(0, 0, -1), c.Location)

	var errs []error

	if table, err := c.fetchDay(ctx, today); err != nil {
		errs = append(errs, fmt.Errorf("today: %w", err))
	} else {
		e.Today = table
		e.LastRefreshed = today
	}

	if table, err := c.fetchDay(ctx, yesterday); err != nil {
		errs = append(errs, fmt.Errorf("yesterday: %w", err))
	} else {
		e.Yesterday = table
	}

	fctx, cancel := c.fetchContext(ctx)
	charge, err := c.Source.StandingCharge(fctx, c.Region)
	cancel()
	if err != nil {
		errs = append(errs, fmt.Errorf("standing charge: %w", err))
	} else {
		if e.StandingCharge != 0 {
			e.YesterdayStandingCharge = e.StandingCharge
		}
		e.StandingCharge = charge
		if e.YesterdayStandingCharge == 0 {
			// First run: applying today's charge to yesterday beats
			// reporting zero, at the cost of being a day late if the
			// charge changed yesterday.
			e.YesterdayStandingCharge = charge
		}
	}

	return errors.Join(errs...)
}

func (c *RateCache) fetchDay(ctx context.Context, date string) (DayRateTable, error) {
	fctx, cancel := c.fetchContext(ctx)
	defer cancel()
	table, err := c.Source.Rates(fctx, c.Region, date)
	if err != nil {
		return DayRateTable{}, err
	}
	table.Date = date
	if err := ValidateTable(table, c.Location); err != nil {
		return DayRateTable{}, err
	}
	return table, nil
}

func (c *RateCache) fetchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.Timeout)
}
